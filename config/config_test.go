package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParse_MinimalConfig(t *testing.T) {
	cfg, err := Parse([]byte(`title: Home`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	// check defaults applied
	if cfg.Port != 3000 {
		t.Errorf("Port = %d, want 3000", cfg.Port)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
	if cfg.HeartbeatInterval.Duration() != 30*time.Second {
		t.Errorf("HeartbeatInterval = %v, want 30s", cfg.HeartbeatInterval.Duration())
	}
	if cfg.AllowedOriginsFile != DefaultAllowedOriginsFile {
		t.Errorf("AllowedOriginsFile = %q, want %q", cfg.AllowedOriginsFile, DefaultAllowedOriginsFile)
	}
	if !cfg.originsFileOptional {
		t.Error("default origins file should be optional")
	}
	if cfg.Title != "Home" {
		t.Errorf("Title = %q, want Home", cfg.Title)
	}
}

func TestParse_EmptyDocument(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Port != 3000 {
		t.Errorf("Port = %d, want 3000", cfg.Port)
	}
}

func TestParse_FullConfig(t *testing.T) {
	yaml := `
title: Studio
host: 127.0.0.1
port: 9090
log_level: debug
secrets:
  set: report
  get: observe
allowed_origins:
  - https://status.example.com
allowed_origins_file: /etc/statushub/origins.json
heartbeat_interval: 10s
rate_limits:
  read:  {requests: 50, window: 5m}
  write: {requests: 0}
trust_proxy: true
legacy:
  using_mapping: active_one
media_policy: clear
observer_broadcast: true
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Host != "127.0.0.1" || cfg.Port != 9090 {
		t.Errorf("Host:Port = %s:%d, want 127.0.0.1:9090", cfg.Host, cfg.Port)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.Secrets.Set != "report" || cfg.Secrets.Get != "observe" {
		t.Errorf("Secrets = %+v", cfg.Secrets)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "https://status.example.com" {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
	if cfg.originsFileOptional {
		t.Error("explicit origins file should not be optional")
	}
	if cfg.HeartbeatInterval.Duration() != 10*time.Second {
		t.Errorf("HeartbeatInterval = %v, want 10s", cfg.HeartbeatInterval.Duration())
	}
	if r := cfg.RateLimits.Read; r == nil || r.Requests != 50 || r.Window.Duration() != 5*time.Minute {
		t.Errorf("RateLimits.Read = %+v, want 50/5m", r)
	}
	if r := cfg.RateLimits.Write; r == nil || r.Requests != 0 {
		t.Errorf("RateLimits.Write = %+v, want disabled", r)
	}
	if !cfg.TrustProxy || !cfg.ObserverBroadcast {
		t.Error("TrustProxy and ObserverBroadcast should be true")
	}
	if cfg.Legacy.UsingMapping != "active_one" {
		t.Errorf("Legacy.UsingMapping = %q, want active_one", cfg.Legacy.UsingMapping)
	}
	if cfg.MediaPolicy != "clear" {
		t.Errorf("MediaPolicy = %q, want clear", cfg.MediaPolicy)
	}
}

func TestParse_EnvVarSubstitution(t *testing.T) {
	t.Setenv("TEST_SET_SECRET", "from-env")

	cfg, err := Parse([]byte(`
secrets:
  set: ${TEST_SET_SECRET}
  get: ${TEST_GET_SECRET_UNSET:-fallback}
`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Secrets.Set != "from-env" {
		t.Errorf("Secrets.Set = %q, want %q", cfg.Secrets.Set, "from-env")
	}
	if cfg.Secrets.Get != "fallback" {
		t.Errorf("Secrets.Get = %q, want %q", cfg.Secrets.Get, "fallback")
	}
}

func TestParse_EnvVarMissing(t *testing.T) {
	_, err := Parse([]byte(`
secrets:
  set: ${STATUSHUB_DEFINITELY_UNSET}
`))
	if err == nil {
		t.Fatal("Parse() expected error for missing env var, got nil")
	}
	if !strings.Contains(err.Error(), "STATUSHUB_DEFINITELY_UNSET") {
		t.Errorf("error = %v, want it to name the variable", err)
	}
}

func TestParse_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"port too large", `port: 70000`, "port must be between"},
		{"unknown log level", `log_level: loud`, "unknown log level"},
		{"same secrets", "secrets:\n  set: x\n  get: x", "must differ"},
		{"origin without scheme", "allowed_origins: [example.com]", "must use http or https"},
		{"origin with path", "allowed_origins: [\"https://example.com/app\"]", "must not carry a path"},
		{"heartbeat too short", `heartbeat_interval: 100ms`, "heartbeat_interval must be at least"},
		{"negative rate limit", "rate_limits:\n  read: {requests: -1, window: 1m}", "cannot be negative"},
		{"rate limit without window", "rate_limits:\n  write: {requests: 5}", "window must be positive"},
		{"unknown using mapping", "legacy:\n  using_mapping: sideways", "legacy.using_mapping"},
		{"unknown media policy", `media_policy: shuffle`, "media_policy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatalf("Parse() expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Parse() error = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("port: [unclosed"))
	if err == nil {
		t.Fatal("Parse() expected error for invalid YAML, got nil")
	}
	if !strings.Contains(err.Error(), "failed to parse YAML") {
		t.Errorf("Parse() error = %v, want YAML parse error", err)
	}
}

func TestDuration_UnmarshalYAML(t *testing.T) {
	tests := []struct {
		input   string
		want    time.Duration
		wantErr bool
	}{
		{"30s", 30 * time.Second, false},
		{"1m30s", 90 * time.Second, false},
		{"2h", 2 * time.Hour, false},
		{"soon", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			cfg, err := Parse([]byte("rate_limits:\n  read: {requests: 1, window: " + tt.input + "}"))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got := cfg.RateLimits.Read.Window.Duration(); got != tt.want {
				t.Errorf("Window = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "statushub.yaml")
	if err := os.WriteFile(path, []byte("port: 4000\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != 4000 {
		t.Errorf("Port = %d, want 4000", cfg.Port)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("Load() expected error for missing file, got nil")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Load() error = %v, want os.ErrNotExist", err)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"PORT":                 "8081",
		"HOST":                 "0.0.0.0",
		"SECRET":               "env-set",
		"GET_SECRET":           "env-get",
		"LOG_LEVEL":            "warn",
		"ALLOWED_ORIGINS_FILE": "/tmp/origins.json",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg, err := Parse([]byte("secrets:\n  set: file-set\n  get: file-get"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if err := cfg.ApplyEnv(lookup); err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}

	if cfg.Port != 8081 {
		t.Errorf("Port = %d, want 8081", cfg.Port)
	}
	if cfg.Host != "0.0.0.0" {
		t.Errorf("Host = %q, want 0.0.0.0", cfg.Host)
	}
	if cfg.Secrets.Set != "env-set" || cfg.Secrets.Get != "env-get" {
		t.Errorf("Secrets = %+v, want env values", cfg.Secrets)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn", cfg.LogLevel)
	}
	if cfg.AllowedOriginsFile != "/tmp/origins.json" || cfg.originsFileOptional {
		t.Errorf("AllowedOriginsFile = %q (optional=%v), want explicit /tmp/origins.json",
			cfg.AllowedOriginsFile, cfg.originsFileOptional)
	}
}

func TestApplyEnv_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad port", map[string]string{"PORT": "http"}},
		{"bad level", map[string]string{"LOG_LEVEL": "verbose"}},
		{"same secrets", map[string]string{"SECRET": "x", "GET_SECRET": "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse(nil)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			lookup := func(k string) (string, bool) {
				v, ok := tt.env[k]
				return v, ok
			}
			if err := cfg.ApplyEnv(lookup); err == nil {
				t.Error("ApplyEnv() expected error, got nil")
			}
		})
	}
}

func TestDefault_ReadsEnvironment(t *testing.T) {
	t.Setenv("PORT", "5050")
	t.Setenv("SECRET", "env-set")
	t.Setenv("GET_SECRET", "env-get")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	if cfg.Port != 5050 {
		t.Errorf("Port = %d, want 5050", cfg.Port)
	}
	if cfg.Secrets.Set != "env-set" {
		t.Errorf("Secrets.Set = %q, want env-set", cfg.Secrets.Set)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"trace", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLogLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLogLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestLoadOriginsFile(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "good.json")
	if err := os.WriteFile(good, []byte(`["http://localhost:8080","https://home.example"]`), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	origins, err := LoadOriginsFile(good)
	if err != nil {
		t.Fatalf("LoadOriginsFile() error = %v", err)
	}
	if len(origins) != 2 || origins[1] != "https://home.example" {
		t.Errorf("LoadOriginsFile() = %v", origins)
	}

	notArray := filepath.Join(dir, "object.json")
	if err := os.WriteFile(notArray, []byte(`{"origins":[]}`), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if _, err := LoadOriginsFile(notArray); err == nil {
		t.Error("LoadOriginsFile() expected error for non-array, got nil")
	}

	invalid := filepath.Join(dir, "invalid.json")
	if err := os.WriteFile(invalid, []byte(`["ftp://files.example"]`), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if _, err := LoadOriginsFile(invalid); err == nil {
		t.Error("LoadOriginsFile() expected error for non-http origin, got nil")
	}

	if _, err := LoadOriginsFile(filepath.Join(dir, "missing.json")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("LoadOriginsFile() error = %v, want os.ErrNotExist", err)
	}
}
