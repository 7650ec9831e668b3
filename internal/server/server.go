package server

import (
	"context"
	"fmt"
	"html"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jpalmerr/statushub/internal/hub"
	"github.com/jpalmerr/statushub/internal/metrics"
	"github.com/jpalmerr/statushub/internal/normalize"
	"github.com/jpalmerr/statushub/internal/store"
)

const (
	// streamWriteTimeout is the maximum time allowed for a single stream write.
	// This prevents goroutine leaks when clients are slow or disconnected.
	// Must be <= shutdown timeout to ensure clean shutdown.
	streamWriteTimeout = 5 * time.Second

	// shutdownTimeout bounds graceful shutdown of in-flight requests.
	shutdownTimeout = 5 * time.Second

	// maxBodyBytes caps update request bodies.
	maxBodyBytes = 1 << 20

	// defaultTitle is used when no custom title is configured.
	defaultTitle = "StatusHub"

	// titlePlaceholder is the marker in HTML that gets replaced with the actual title.
	titlePlaceholder = "{{.Title}}"
)

// Log categories attached to every server log line.
const (
	categorySystem    = "SYSTEM"
	categoryAPI       = "API"
	categoryStream    = "SSE"
	categoryAuth      = "AUTH"
	categorySecurity  = "SECURITY"
	categoryCORS      = "CORS"
	categoryRateLimit = "RATE_LIMIT"
)

// Config holds the HTTP surface settings.
type Config struct {
	Host  string
	Port  int
	Title string

	// Assets holds assets/index.html for the presence page. May be nil.
	Assets fs.FS

	// SetSecret guards update routes; GetSecret guards stream and read routes.
	SetSecret string
	GetSecret string

	// AllowedOrigins lists origins granted CORS access. Requests with no
	// Origin header are always allowed.
	AllowedOrigins []string

	// ReadLimit applies to every API and stream route; WriteLimit applies
	// additionally to update submissions. A zero RateLimit disables the limit.
	ReadLimit  RateLimit
	WriteLimit RateLimit

	// TrustProxy takes the client address from X-Forwarded-For.
	TrustProxy bool

	// LogLevel is reported by the health endpoint.
	LogLevel string

	Normalizer normalize.Normalizer

	// OnUpdate is called with the resulting document after every applied
	// update. It runs on the request goroutine.
	OnUpdate func(store.Document)
}

// Server handles HTTP requests for the status hub.
//
// Server provides these routes:
//   - POST /api/status, GET /api/status: submit an update (body or query)
//   - POST /device/set, GET /device/set: alias of /api/status
//   - GET /events: Server-Sent Events stream
//   - GET /events/ws: WebSocket stream carrying the same events
//   - GET /health: liveness and connection count
//   - GET /auth/test/get, POST /auth/test/set: secret probes
//   - GET /metrics: Prometheus exposition
//   - GET /: embedded presence page
//
// The server is designed for graceful shutdown via context cancellation.
type Server struct {
	hub        *hub.Hub
	cfg        Config
	origins    hub.OriginChecker
	metrics    *metrics.Metrics
	logger     *slog.Logger
	upgrader   websocket.Upgrader
	readLimit  *clientLimiter
	writeLimit *clientLimiter

	mu         sync.Mutex
	httpServer *http.Server
	addr       net.Addr
}

// NewServer creates a new HTTP [Server] publishing through h.
//
// The server is not started until [Server.Start] is called. m may be nil.
func NewServer(h *hub.Hub, cfg Config, m *metrics.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		hub:     h,
		cfg:     cfg,
		origins: hub.AllowList(cfg.AllowedOrigins),
		metrics: m,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// the hub has already admitted the origin before the upgrade
			CheckOrigin: func(*http.Request) bool { return true },
		},
		readLimit:  newClientLimiter("read", cfg.ReadLimit),
		writeLimit: newClientLimiter("write", cfg.WriteLimit),
	}
}

// Handler returns the fully wrapped route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	submit := s.requireSetSecret(http.HandlerFunc(s.handleSubmit))
	query := s.requireSetSecret(http.HandlerFunc(s.handleQuery))
	for _, path := range []string{"/api/status", "/device/set"} {
		mux.Handle("POST "+path, s.limit(s.readLimit, s.limit(s.writeLimit, submit)))
		mux.Handle("GET "+path, s.limit(s.readLimit, query))
	}

	mux.Handle("GET /events", s.limit(s.readLimit, s.requireGetSecret(http.HandlerFunc(s.handleSSE))))
	mux.Handle("GET /events/ws", s.limit(s.readLimit, s.requireGetSecret(http.HandlerFunc(s.handleWebSocket))))

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /auth/test/get", s.requireGetSecret(s.handleAuthProbe("GET")))
	mux.Handle("POST /auth/test/set", s.requireSetSecret(s.handleAuthProbe("SET")))

	if s.metrics != nil {
		mux.Handle("GET /metrics", s.requireGetSecret(s.metrics.Handler()))
	}

	if s.cfg.Assets != nil {
		mux.HandleFunc("GET /{$}", s.handleDashboard)
	}

	return s.recoverPanics(s.logRequests(s.cors(mux)))
}

// Start begins serving HTTP requests in a background goroutine.
//
// Start is non-blocking and returns immediately after confirming the server
// is listening. When ctx is cancelled every subscriber is closed and the
// server shuts down gracefully with a 5-second timeout.
//
// Returns an error if the server fails to bind to the configured address.
func (s *Server) Start(ctx context.Context) error {
	// create listener first to verify port availability synchronously
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to %s: %w", addr, err)
	}

	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// BaseContext derives all request contexts from the server context.
		// When ctx is cancelled, all request contexts are also cancelled,
		// enabling graceful shutdown of long-running stream handlers.
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	s.mu.Lock()
	s.httpServer = httpServer
	s.addr = ln.Addr()
	s.mu.Unlock()

	s.logger.Info("server started",
		"category", categorySystem,
		"addr", ln.Addr().String(),
	)

	go func() {
		if err := httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server error", "category", categorySystem, "error", err)
		}
	}()

	// shutdown on context cancellation
	go func() {
		<-ctx.Done()
		s.logger.Info("shutting down, closing all subscribers", "category", categorySystem)
		s.hub.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "category", categorySystem, "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listener address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// handleDashboard serves the presence page.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	// read index.html from embedded assets
	content, err := fs.ReadFile(s.cfg.Assets, "assets/index.html")
	if err != nil {
		http.Error(w, "Dashboard not found", http.StatusInternalServerError)
		return
	}

	// apply title substitution with HTML escaping to prevent XSS
	title := s.cfg.Title
	if title == "" {
		title = defaultTitle
	}
	rendered := strings.ReplaceAll(string(content), titlePlaceholder, html.EscapeString(title))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err = w.Write([]byte(rendered)); err != nil {
		s.logger.Error("failed to write dashboard response", "category", categorySystem, "error", err)
	}
}
