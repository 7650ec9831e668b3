package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/jpalmerr/statushub"
	"github.com/jpalmerr/statushub/internal/normalize"
	"github.com/jpalmerr/statushub/internal/store"
)

// BuildOptions converts parsed configuration into SDK options.
//
// The origin allow-list comes from [ResolveOrigins]. logger is passed to the
// SDK and may be nil.
func BuildOptions(cfg *Config, logger *slog.Logger) ([]statushub.Option, error) {
	if logger == nil {
		logger = slog.Default()
	}

	origins, err := ResolveOrigins(cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("allowed origins resolved", "category", "SYSTEM", "count", len(origins), "origins", origins)

	using, err := normalize.ParseUsingMapping(cfg.Legacy.UsingMapping)
	if err != nil {
		return nil, fmt.Errorf("legacy.using_mapping: %w", err)
	}
	media, err := store.ParseMediaPolicy(cfg.MediaPolicy)
	if err != nil {
		return nil, fmt.Errorf("media_policy: %w", err)
	}

	opts := []statushub.Option{
		statushub.WithLogger(logger),
		statushub.WithLogLevel(cfg.LogLevel),
		statushub.WithTitle(cfg.Title),
		statushub.WithHost(cfg.Host),
		statushub.WithPort(cfg.Port),
		statushub.WithAllowedOrigins(origins...),
		statushub.WithHeartbeatInterval(cfg.HeartbeatInterval.Duration()),
		statushub.WithTrustProxy(cfg.TrustProxy),
		statushub.WithUsingMapping(using),
		statushub.WithMediaPolicy(media),
		statushub.WithObserverBroadcast(cfg.ObserverBroadcast),
	}

	// empty secrets fall through to the SDK defaults, which log a warning
	if cfg.Secrets.Set != "" {
		opts = append(opts, statushub.WithSetSecret(cfg.Secrets.Set))
	}
	if cfg.Secrets.Get != "" {
		opts = append(opts, statushub.WithGetSecret(cfg.Secrets.Get))
	}

	if r := cfg.RateLimits.Read; r != nil {
		opts = append(opts, statushub.WithReadRateLimit(r.Requests, r.Window.Duration()))
	}
	if r := cfg.RateLimits.Write; r != nil {
		opts = append(opts, statushub.WithWriteRateLimit(r.Requests, r.Window.Duration()))
	}

	return opts, nil
}

// ResolveOrigins returns the union of allowed_origins and the origins file,
// in that order and without duplicates. If neither yields an origin,
// [statushub.DefaultAllowedOrigins] is returned.
//
// A missing origins file is an error unless it is the implicit default.
func ResolveOrigins(cfg *Config) ([]string, error) {
	seen := make(map[string]struct{})
	var origins []string
	add := func(list []string) {
		for _, o := range list {
			if _, dup := seen[o]; dup {
				continue
			}
			seen[o] = struct{}{}
			origins = append(origins, o)
		}
	}

	add(cfg.AllowedOrigins)

	if cfg.AllowedOriginsFile != "" {
		fromFile, err := LoadOriginsFile(cfg.AllowedOriginsFile)
		switch {
		case err == nil:
			add(fromFile)
		case cfg.originsFileOptional && errors.Is(err, os.ErrNotExist):
			// the implicit default file is allowed to be missing
		default:
			return nil, err
		}
	}

	if len(origins) == 0 {
		add(statushub.DefaultAllowedOrigins)
	}
	return origins, nil
}
