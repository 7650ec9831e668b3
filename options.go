package statushub

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// hubConfig holds mutable state during StatusHub construction.
type hubConfig struct {
	title             string
	host              string
	port              int
	logger            *slog.Logger
	logLevel          string
	setSecret         string
	getSecret         string
	allowedOrigins    []string
	heartbeatInterval time.Duration
	readLimit         rateLimit
	writeLimit        rateLimit
	trustProxy        bool
	usingMapping      UsingMapping
	observerBroadcast bool
	mediaPolicy       MediaPolicy
	updateCallbacks   []func(Document)
}

type rateLimit struct {
	requests int
	window   time.Duration
}

// Option is a function that configures a [StatusHub] instance during construction.
//
// Option implements the functional options pattern, allowing optional
// configuration to be passed to [New] in a type-safe, extensible way.
// Options return an error if validation fails.
type Option func(*hubConfig) error

// WithHost sets the interface the HTTP server binds to.
//
// Defaults to all interfaces.
func WithHost(host string) Option {
	return func(cfg *hubConfig) error {
		cfg.host = host
		return nil
	}
}

// WithPort sets the HTTP port for the update API and the event streams.
//
// Defaults to 3000 if not specified. Port 0 binds a free port chosen by the
// operating system; the bound address is then available from
// [StatusHub.Addr] once [StatusHub.Start] is running.
//
// Returns an error if the port is outside the valid range (0-65535).
func WithPort(port int) Option {
	return func(cfg *hubConfig) error {
		if port < 0 || port > 65535 {
			return errors.New("port must be between 0 and 65535")
		}
		cfg.port = port
		return nil
	}
}

// WithLogger sets a custom [slog.Logger] for the StatusHub instance.
//
// This allows SDK consumers to control where logs are written and in what
// format. If not specified, [slog.Default] is used.
//
// Example:
//
//	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
//	sh, err := statushub.New(
//	    statushub.WithLogger(logger),
//	)
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *hubConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithLogLevel records the configured log level name so it can be reported
// by the health endpoint. It does not change the logger itself.
func WithLogLevel(level string) Option {
	return func(cfg *hubConfig) error {
		cfg.logLevel = level
		return nil
	}
}

// WithSetSecret sets the secret required to submit updates.
//
// Clients supply it in the X-Set-Secret header, a "secret" field of the JSON
// body, or the secret query parameter. If not specified, an insecure default
// is used and a warning is logged at startup.
//
// Returns an error if the secret is empty.
func WithSetSecret(secret string) Option {
	return func(cfg *hubConfig) error {
		if secret == "" {
			return errors.New("set secret cannot be empty")
		}
		cfg.setSecret = secret
		return nil
	}
}

// WithGetSecret sets the secret required to subscribe to the event streams.
//
// Clients supply it in the X-Get-Secret header or the secret query parameter.
// If not specified, an insecure default is used and a warning is logged at
// startup.
//
// Returns an error if the secret is empty.
func WithGetSecret(secret string) Option {
	return func(cfg *hubConfig) error {
		if secret == "" {
			return errors.New("get secret cannot be empty")
		}
		cfg.getSecret = secret
		return nil
	}
}

// WithAllowedOrigins replaces the origin allow-list.
//
// Browser requests whose Origin is not listed are refused, both on the API
// and on the event streams. Requests with no Origin header are always
// admitted. Defaults to http://localhost:3000 and http://127.0.0.1:5500.
func WithAllowedOrigins(origins ...string) Option {
	return func(cfg *hubConfig) error {
		for _, o := range origins {
			if o == "" {
				return errors.New("allowed origin cannot be empty")
			}
		}
		cfg.allowedOrigins = append([]string(nil), origins...)
		return nil
	}
}

// WithHeartbeatInterval sets how often a heartbeat event is sent while at
// least one subscriber is connected.
//
// Defaults to 30 seconds if not specified.
//
// Returns an error if the duration is zero or negative.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(cfg *hubConfig) error {
		if d <= 0 {
			return errors.New("heartbeat interval must be positive")
		}
		cfg.heartbeatInterval = d
		return nil
	}
}

// WithReadRateLimit admits at most requests per window from each client on
// the update API and the event streams. Defaults to 100 requests per 15
// minutes. A zero requests value disables the limit.
//
// Returns an error if requests is negative or the window is not positive.
func WithReadRateLimit(requests int, window time.Duration) Option {
	return func(cfg *hubConfig) error {
		l, err := newRateLimit("read", requests, window)
		if err != nil {
			return err
		}
		cfg.readLimit = l
		return nil
	}
}

// WithWriteRateLimit admits at most requests per window from each client on
// update submissions, in addition to the read limit. Defaults to 30 requests
// per minute. A zero requests value disables the limit.
//
// Returns an error if requests is negative or the window is not positive.
func WithWriteRateLimit(requests int, window time.Duration) Option {
	return func(cfg *hubConfig) error {
		l, err := newRateLimit("write", requests, window)
		if err != nil {
			return err
		}
		cfg.writeLimit = l
		return nil
	}
}

func newRateLimit(class string, requests int, window time.Duration) (rateLimit, error) {
	if requests < 0 {
		return rateLimit{}, fmt.Errorf("%s rate limit requests cannot be negative", class)
	}
	if requests > 0 && window <= 0 {
		return rateLimit{}, fmt.Errorf("%s rate limit window must be positive", class)
	}
	return rateLimit{requests: requests, window: window}, nil
}

// WithTrustProxy takes the client address from the first X-Forwarded-For
// entry. Enable it only behind a reverse proxy that sets the header.
func WithTrustProxy(trust bool) Option {
	return func(cfg *hubConfig) error {
		cfg.trustProxy = trust
		return nil
	}
}

// WithUsingMapping selects how a legacy payload's using flag becomes the
// global status code. Defaults to [UsingActiveZero].
func WithUsingMapping(m UsingMapping) Option {
	return func(cfg *hubConfig) error {
		if m != UsingActiveZero && m != UsingActiveOne {
			return fmt.Errorf("unknown using mapping %d", int(m))
		}
		cfg.usingMapping = m
		return nil
	}
}

// WithObserverBroadcast controls whether existing subscribers receive an
// update event when a new subscriber connects, so their observer count stays
// current. Off by default.
func WithObserverBroadcast(enabled bool) Option {
	return func(cfg *hubConfig) error {
		cfg.observerBroadcast = enabled
		return nil
	}
}

// WithMediaPolicy selects what happens to stored media fields when a device
// update omits them. Defaults to [MediaPreserve].
func WithMediaPolicy(p MediaPolicy) Option {
	return func(cfg *hubConfig) error {
		if p != MediaPreserve && p != MediaClear {
			return fmt.Errorf("unknown media policy %d", int(p))
		}
		cfg.mediaPolicy = p
		return nil
	}
}

// WithUpdateCallback registers a function to be called after every applied
// update with the resulting [Document].
//
// Multiple callbacks may be registered by calling WithUpdateCallback multiple
// times; they execute in registration order.
//
// IMPORTANT: Callbacks must be non-blocking. They run on the request
// goroutine that submitted the update, after the update has been published
// to subscribers. Panics within callbacks are recovered and logged.
//
// Example:
//
//	sh, err := statushub.New(
//	    statushub.WithUpdateCallback(func(doc statushub.Document) {
//	        log.Printf("status is now %d", doc.Status)
//	    }),
//	)
//
// Nil callbacks are silently ignored.
func WithUpdateCallback(cb func(Document)) Option {
	return func(cfg *hubConfig) error {
		if cb == nil {
			return nil // no-op for nil callback (safe to call)
		}
		cfg.updateCallbacks = append(cfg.updateCallbacks, cb)
		return nil
	}
}

// WithTitle sets the presence page title displayed in the browser tab and header.
//
// If not specified, defaults to "StatusHub".
func WithTitle(title string) Option {
	return func(cfg *hubConfig) error {
		cfg.title = title
		return nil
	}
}
