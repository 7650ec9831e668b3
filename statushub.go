package statushub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/jpalmerr/statushub/dashboard"
	"github.com/jpalmerr/statushub/internal/hub"
	"github.com/jpalmerr/statushub/internal/metrics"
	"github.com/jpalmerr/statushub/internal/normalize"
	"github.com/jpalmerr/statushub/internal/server"
	"github.com/jpalmerr/statushub/internal/store"
)

const (
	defaultPort        = 3000
	defaultLogLevel    = "info"
	defaultSetSecret   = "default-set-secret"
	defaultGetSecret   = "default-get-secret"
	defaultReadLimit   = 100
	defaultReadWindow  = 15 * time.Minute
	defaultWriteLimit  = 30
	defaultWriteWindow = time.Minute
)

// DefaultAllowedOrigins is the origin allow-list used when none is configured.
var DefaultAllowedOrigins = []string{"http://localhost:3000", "http://127.0.0.1:5500"}

// ErrAlreadyStarted is returned by [StatusHub.Start] on a second call.
var ErrAlreadyStarted = errors.New("statushub already started")

// StatusHub is the main orchestrator: it owns the presence document, the
// subscriber registry and heartbeat, and the HTTP surface that feeds them.
//
// StatusHub is created using [New] with functional options and started with
// [StatusHub.Start]. The typical lifecycle is:
//
//	sh, err := statushub.New(statushub.WithSetSecret(os.Getenv("SECRET")))
//	if err != nil {
//	    slog.Error("failed to create statushub", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	sh.Start(ctx) // blocks until context cancelled
//
// A StatusHub runs once. After Start returns every subscriber has been
// closed and the instance cannot be restarted.
type StatusHub struct {
	port              int
	heartbeatInterval time.Duration
	allowedOrigins    []string
	logger            *slog.Logger

	hub    *hub.Hub
	server *server.Server

	mu      sync.Mutex
	started bool
}

// New creates a new [StatusHub] instance with the given options.
//
// Every option has a default:
//   - Port: 3000
//   - Heartbeat interval: 30 seconds
//   - Read rate limit: 100 requests per 15 minutes per client
//   - Write rate limit: 30 requests per minute per client
//   - Allowed origins: [DefaultAllowedOrigins]
//   - Secrets: insecure built-in values, logged as a warning
//
// Returns an error if any option is invalid.
func New(opts ...Option) (*StatusHub, error) {
	cfg := &hubConfig{
		port:              defaultPort,
		logLevel:          defaultLogLevel,
		allowedOrigins:    DefaultAllowedOrigins,
		heartbeatInterval: hub.DefaultHeartbeatInterval,
		readLimit:         rateLimit{requests: defaultReadLimit, window: defaultReadWindow},
		writeLimit:        rateLimit{requests: defaultWriteLimit, window: defaultWriteWindow},
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	// default to slog.Default() if no logger provided
	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.setSecret == "" {
		logger.Warn("SET secret not configured, using insecure default", "category", "SECURITY")
		cfg.setSecret = defaultSetSecret
	}
	if cfg.getSecret == "" {
		logger.Warn("GET secret not configured, using insecure default", "category", "SECURITY")
		cfg.getSecret = defaultGetSecret
	}
	if cfg.setSecret == cfg.getSecret {
		return nil, errors.New("set secret and get secret must differ")
	}

	m := metrics.New()
	st := store.NewMemoryStore(cfg.mediaPolicy)
	h := hub.New(st, hub.Config{
		Origins:           hub.AllowList(cfg.allowedOrigins),
		ObserverBroadcast: cfg.observerBroadcast,
		Metrics:           m,
		Logger:            logger,
	})

	sh := &StatusHub{
		port:              cfg.port,
		heartbeatInterval: cfg.heartbeatInterval,
		allowedOrigins:    append([]string(nil), cfg.allowedOrigins...),
		logger:            logger,
		hub:               h,
	}

	callbacks := cfg.updateCallbacks
	sh.server = server.NewServer(h, server.Config{
		Host:           cfg.host,
		Port:           cfg.port,
		Title:          cfg.title,
		Assets:         dashboard.Assets,
		SetSecret:      cfg.setSecret,
		GetSecret:      cfg.getSecret,
		AllowedOrigins: cfg.allowedOrigins,
		ReadLimit:      server.RateLimit{Requests: cfg.readLimit.requests, Window: cfg.readLimit.window},
		WriteLimit:     server.RateLimit{Requests: cfg.writeLimit.requests, Window: cfg.writeLimit.window},
		TrustProxy:     cfg.trustProxy,
		LogLevel:       cfg.logLevel,
		Normalizer:     normalize.Normalizer{Using: cfg.usingMapping},
		OnUpdate: func(doc store.Document) {
			for _, cb := range callbacks {
				invokeCallbackSafe(cb, doc, logger)
			}
		},
	}, m, logger)

	return sh, nil
}

// Start begins serving the update API and the event streams.
//
// Start is a blocking call that runs until the provided context is cancelled.
// During execution:
//
//   - The HTTP server listens on the configured host and port
//   - A heartbeat is sent to connected subscribers at the configured interval
//
// On cancellation every subscriber is closed, in-flight requests are given a
// short grace period, and Start returns nil.
//
// Returns an error if the HTTP server fails to start or if Start was already
// called.
func (sh *StatusHub) Start(ctx context.Context) error {
	sh.mu.Lock()
	if sh.started {
		sh.mu.Unlock()
		return ErrAlreadyStarted
	}
	sh.started = true
	sh.mu.Unlock()

	sh.logger.Info("statushub starting", "category", "SYSTEM", "allowed_origins", len(sh.allowedOrigins))
	sh.logger.Info("heartbeat configured", "category", "SYSTEM", "interval", sh.heartbeatInterval.String())

	// check if context already cancelled
	if ctx.Err() != nil {
		sh.hub.Close()
		return nil
	}

	heartbeat := hub.NewHeartbeat(sh.hub, sh.heartbeatInterval)
	heartbeat.Start(ctx)

	if err := sh.server.Start(ctx); err != nil {
		heartbeat.Stop()
		sh.hub.Close()
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	sh.logger.Info("event stream available", "category", "SYSTEM", "url", fmt.Sprintf("http://%s/events", sh.server.Addr()))

	<-ctx.Done()
	heartbeat.Stop()
	sh.logger.Info("statushub stopped", "category", "SYSTEM")
	return nil
}

// Handler returns the HTTP handler serving every route, for mounting inside
// an existing server. Subscribers connected through it are closed only when
// [StatusHub.Start]'s context is cancelled, so embedders that never call
// Start should not expect heartbeats.
func (sh *StatusHub) Handler() http.Handler {
	return sh.server.Handler()
}

// Addr returns the bound listener address, or nil before [StatusHub.Start]
// has bound it.
func (sh *StatusHub) Addr() net.Addr {
	return sh.server.Addr()
}

// Snapshot returns a copy of the current presence document.
func (sh *StatusHub) Snapshot() Document {
	return sh.hub.Snapshot()
}

// Subscribers returns the number of live stream subscribers.
func (sh *StatusHub) Subscribers() int {
	return sh.hub.Size()
}

// Port returns the configured HTTP port.
func (sh *StatusHub) Port() int {
	return sh.port
}

// HeartbeatInterval returns the configured interval between heartbeats.
func (sh *StatusHub) HeartbeatInterval() time.Duration {
	return sh.heartbeatInterval
}

// AllowedOrigins returns a copy of the origin allow-list.
func (sh *StatusHub) AllowedOrigins() []string {
	return append([]string(nil), sh.allowedOrigins...)
}

// invokeCallbackSafe calls an update callback with panic recovery.
// Panics are logged but do not propagate.
func invokeCallbackSafe(cb func(Document), doc Document, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("update callback panicked",
				"category", "API",
				"panic", r,
				"status", doc.Status,
			)
		}
	}()
	cb(doc)
}
