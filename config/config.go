// Package config provides YAML configuration parsing for StatusHub.
//
// This package enables running StatusHub as a standalone binary with a
// configuration file, as an alternative to the programmatic SDK approach.
//
// Example configuration:
//
//	title: Home
//	port: 3000
//	log_level: info
//
//	secrets:
//	  set: ${SECRET}
//	  get: ${GET_SECRET:-observe}
//
//	allowed_origins_file: allowedOrigins.json
//	heartbeat_interval: 30s
//
//	rate_limits:
//	  read:  {requests: 100, window: 15m}
//	  write: {requests: 30, window: 1m}
//
//	legacy:
//	  using_mapping: active_zero
//	media_policy: preserve
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jpalmerr/statushub/internal/normalize"
	"github.com/jpalmerr/statushub/internal/store"
)

const (
	defaultPort              = 3000
	defaultLogLevel          = "info"
	defaultHeartbeatInterval = 30 * time.Second

	// DefaultAllowedOriginsFile is read from the working directory when no
	// other origins file is configured. Unlike an explicitly configured file,
	// it may be absent.
	DefaultAllowedOriginsFile = "allowedOrigins.json"

	// minHeartbeatInterval keeps heartbeats from flooding subscribers.
	minHeartbeatInterval = 1 * time.Second
)

// Config is the root configuration structure for StatusHub.
//
// It maps directly to the YAML configuration file structure.
// Use [Load], [Parse] or [Default] to create a Config.
type Config struct {
	// Title is the presence page title. Defaults to "StatusHub" if not set.
	Title string `yaml:"title"`

	// Host is the bind interface. Empty binds all interfaces.
	Host string `yaml:"host"`

	// Port is the HTTP server port. Defaults to 3000.
	Port int `yaml:"port"`

	// LogLevel is one of debug, info, warn, error. Defaults to info.
	LogLevel string `yaml:"log_level"`

	// Secrets guard the update and stream routes.
	Secrets SecretsConfig `yaml:"secrets"`

	// AllowedOrigins lists origins granted browser access.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// AllowedOriginsFile names a JSON array of additional origins.
	AllowedOriginsFile string `yaml:"allowed_origins_file"`

	// HeartbeatInterval is the keep-alive period for subscribers.
	// Accepts duration strings like "30s" or "1m". Defaults to 30s.
	HeartbeatInterval Duration `yaml:"heartbeat_interval"`

	// RateLimits bounds requests per client address.
	RateLimits RateLimitsConfig `yaml:"rate_limits"`

	// TrustProxy takes the client address from X-Forwarded-For.
	TrustProxy bool `yaml:"trust_proxy"`

	// Legacy configures the single-device payload shape.
	Legacy LegacyConfig `yaml:"legacy"`

	// MediaPolicy is "preserve" (default) or "clear".
	MediaPolicy string `yaml:"media_policy"`

	// ObserverBroadcast notifies existing subscribers when one joins.
	ObserverBroadcast bool `yaml:"observer_broadcast"`

	// originsFileOptional is set when AllowedOriginsFile came from the
	// built-in default rather than the user.
	originsFileOptional bool
}

// SecretsConfig holds the two shared secrets.
//
// Values support environment variable substitution: ${VAR} or ${VAR:-default}
type SecretsConfig struct {
	Set string `yaml:"set"`
	Get string `yaml:"get"`
}

// RateLimitsConfig holds the per-client request budgets.
type RateLimitsConfig struct {
	// Read applies to every update and stream route.
	Read *RateLimitConfig `yaml:"read"`

	// Write applies additionally to update submissions.
	Write *RateLimitConfig `yaml:"write"`
}

// RateLimitConfig allows Requests per Window. Zero requests disables it.
type RateLimitConfig struct {
	Requests int      `yaml:"requests"`
	Window   Duration `yaml:"window"`
}

// LegacyConfig configures the single-device payload shape.
type LegacyConfig struct {
	// UsingMapping is "active_zero" (default) or "active_one".
	UsingMapping string `yaml:"using_mapping"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// already have an error, skip processing
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Default returns the configuration used when no file is given: every
// default applied, then the process environment.
func Default() (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads and parses a YAML configuration file.
//
// Environment variables in the file are expanded before parsing.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in secret values and the origins file
// path. Defaults are applied for Port (3000), LogLevel (info) and
// HeartbeatInterval (30s). Environment overrides are not applied; see
// [Config.ApplyEnv].
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = Duration(defaultHeartbeatInterval)
	}
	if c.AllowedOriginsFile == "" {
		c.AllowedOriginsFile = DefaultAllowedOriginsFile
		c.originsFileOptional = true
	}
}

// ApplyEnv overrides fields from environment variables:
// PORT, HOST, SECRET, GET_SECRET, LOG_LEVEL and ALLOWED_ORIGINS_FILE.
// lookup is normally [os.LookupEnv].
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT: invalid port %q", v)
		}
		c.Port = port
	}
	if v, ok := lookup("HOST"); ok {
		c.Host = v
	}
	if v, ok := lookup("SECRET"); ok && v != "" {
		c.Secrets.Set = v
	}
	if v, ok := lookup("GET_SECRET"); ok && v != "" {
		c.Secrets.Get = v
	}
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		c.LogLevel = v
	}
	if v, ok := lookup("ALLOWED_ORIGINS_FILE"); ok && v != "" {
		c.AllowedOriginsFile = v
		c.originsFileOptional = false
	}
	return c.validate()
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	var err error
	if c.Secrets.Set, err = expandEnvVars(c.Secrets.Set); err != nil {
		return fmt.Errorf("secrets.set: %w", err)
	}
	if c.Secrets.Get, err = expandEnvVars(c.Secrets.Get); err != nil {
		return fmt.Errorf("secrets.get: %w", err)
	}
	if c.AllowedOriginsFile, err = expandEnvVars(c.AllowedOriginsFile); err != nil {
		return fmt.Errorf("allowed_origins_file: %w", err)
	}
	return c.validate()
}

func (c *Config) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 0 and 65535, got %d", c.Port)
	}

	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}

	if c.Secrets.Set != "" && c.Secrets.Set == c.Secrets.Get {
		return errors.New("secrets.set and secrets.get must differ")
	}

	for i, origin := range c.AllowedOrigins {
		if err := validateOrigin(origin); err != nil {
			return fmt.Errorf("allowed_origins[%d]: %w", i, err)
		}
	}

	if c.HeartbeatInterval.Duration() < minHeartbeatInterval {
		return fmt.Errorf("heartbeat_interval must be at least %s, got %s",
			minHeartbeatInterval, c.HeartbeatInterval.Duration())
	}

	if err := c.RateLimits.Read.validate("rate_limits.read"); err != nil {
		return err
	}
	if err := c.RateLimits.Write.validate("rate_limits.write"); err != nil {
		return err
	}

	if _, err := normalize.ParseUsingMapping(c.Legacy.UsingMapping); err != nil {
		return fmt.Errorf("legacy.using_mapping: %w", err)
	}
	if _, err := store.ParseMediaPolicy(c.MediaPolicy); err != nil {
		return fmt.Errorf("media_policy: %w", err)
	}

	return nil
}

func (r *RateLimitConfig) validate(field string) error {
	if r == nil {
		return nil // unset means the built-in default
	}
	if r.Requests < 0 {
		return fmt.Errorf("%s: requests cannot be negative, got %d", field, r.Requests)
	}
	if r.Requests > 0 && r.Window.Duration() <= 0 {
		return fmt.Errorf("%s: window must be positive when requests is set", field)
	}
	return nil
}

// validateOrigin checks that origin is a bare scheme://host[:port].
func validateOrigin(origin string) error {
	u, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("invalid origin %q: %w", origin, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("origin %q must use http or https", origin)
	}
	if u.Host == "" {
		return fmt.Errorf("origin %q has no host", origin)
	}
	if (u.Path != "" && u.Path != "/") || u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("origin %q must not carry a path, query or fragment", origin)
	}
	return nil
}

// ParseLogLevel maps a level name to a [slog.Level].
func ParseLogLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (expected debug, info, warn or error)", name)
	}
}

// LoadOriginsFile reads a JSON array of origins.
//
// A missing file is reported with an error wrapping [os.ErrNotExist].
func LoadOriginsFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read origins file: %w", err)
	}

	var origins []string
	if err := json.Unmarshal(data, &origins); err != nil {
		return nil, fmt.Errorf("origins file %s: expected a JSON array of strings: %w", path, err)
	}

	for i, origin := range origins {
		if err := validateOrigin(origin); err != nil {
			return nil, fmt.Errorf("origins file %s: [%d]: %w", path, i, err)
		}
	}
	return origins, nil
}
