package server

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
)

// errorResponse is the body of auth, CORS and rate-limit rejections.
type errorResponse struct {
	Error         string `json:"error"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// secretScope describes where a secret may be supplied.
type secretScope struct {
	name     string
	header   string
	fromBody bool
	missing  string
}

var (
	setScope = secretScope{
		name:     "SET",
		header:   "X-Set-Secret",
		fromBody: true,
		missing:  "SET secret required. Provide via x-set-secret header, POST body, or query parameter",
	}
	getScope = secretScope{
		name:    "GET",
		header:  "X-Get-Secret",
		missing: "GET secret required. Provide via x-get-secret header or secret query parameter",
	}
)

// requireSetSecret admits requests carrying the SET secret in the
// X-Set-Secret header, a JSON body "secret" field, or the secret query
// parameter, checked in that order.
func (s *Server) requireSetSecret(next http.Handler) http.Handler {
	return s.requireSecret(setScope, s.cfg.SetSecret, next)
}

// requireGetSecret admits requests carrying the GET secret in the
// X-Get-Secret header or the secret query parameter.
func (s *Server) requireGetSecret(next http.Handler) http.Handler {
	return s.requireSecret(getScope, s.cfg.GetSecret, next)
}

func (s *Server) requireSecret(scope secretScope, want string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		provided := r.Header.Get(scope.header)

		if provided == "" && scope.fromBody && r.Method == http.MethodPost && r.Body != nil {
			body, err := bufferBody(w, r)
			if err != nil {
				s.writeBodyError(w, err)
				return
			}
			provided = bodySecret(body)
		}

		if provided == "" {
			provided = r.URL.Query().Get("secret")
		}

		if provided == "" {
			s.metrics.RecordAuthFailure(scope.name, "401")
			s.logger.Warn(scope.name+" secret missing",
				"category", categoryAuth,
				"ip", s.clientIP(r),
				"user_agent", r.UserAgent(),
				"endpoint", r.URL.Path,
			)
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: scope.missing})
			return
		}

		if subtle.ConstantTimeCompare([]byte(provided), []byte(want)) != 1 {
			s.metrics.RecordAuthFailure(scope.name, "403")
			s.logger.Warn("invalid "+scope.name+" secret attempt",
				"category", categorySecurity,
				"ip", s.clientIP(r),
				"user_agent", r.UserAgent(),
				"endpoint", r.URL.Path,
			)
			writeJSON(w, http.StatusForbidden, errorResponse{Error: "Invalid " + scope.name + " secret"})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// bufferBody reads the request body and replaces it so later handlers can
// read it again.
func bufferBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	_ = r.Body.Close()
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}

// bodySecret extracts a string "secret" field from a JSON object body.
func bodySecret(body []byte) string {
	var fields struct {
		Secret json.RawMessage `json:"secret"`
	}
	if err := json.Unmarshal(body, &fields); err != nil {
		return ""
	}
	var secret string
	if err := json.Unmarshal(fields.Secret, &secret); err != nil {
		return ""
	}
	return secret
}

// writeBodyError reports a body that could not be read.
func (s *Server) writeBodyError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{
			Error: fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit),
		})
		return
	}
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: "failed to read request body"})
}

// isStreamPath reports whether path is a long-lived stream route. Stream
// routes do their own origin admission and are not request-logged.
func isStreamPath(path string) bool {
	return path == "/events" || path == "/events/ws"
}

// cors applies the origin allow-list to every non-stream route. Requests with
// no Origin header pass through untouched.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" || isStreamPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		if !s.origins(origin) {
			s.logger.Warn("CORS request blocked", "category", categoryCORS, "origin", origin)
			writeJSON(w, http.StatusForbidden, errorResponse{Error: "CORS Forbidden: Origin not allowed"})
			return
		}

		h := w.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Credentials", "true")
		h.Add("Vary", "Origin")

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, X-Set-Secret, X-Get-Secret")
			h.Set("Access-Control-Max-Age", "600")
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response code for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// logRequests logs one line per request, skipping health checks and streams.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || isStreamPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.logger.Debug("http request",
			"category", categorySystem,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start).String(),
			"ip", s.clientIP(r),
		)
	})
}

// recoverPanics turns a handler panic into a 500 carrying a correlation id.
// The full stack is logged server-side under the same id.
func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			correlationID := uuid.NewString()
			s.logger.Error("handler panic",
				"category", categorySystem,
				"correlation_id", correlationID,
				"panic", fmt.Sprintf("%v", rec),
				"stack", string(debug.Stack()),
				"method", r.Method,
				"path", r.URL.Path,
			)
			writeJSON(w, http.StatusInternalServerError, errorResponse{
				Error:         "Internal server error",
				CorrelationID: correlationID,
			})
		}()
		next.ServeHTTP(w, r)
	})
}

// clientIP returns the address used for rate admission and logging.
func (s *Server) clientIP(r *http.Request) string {
	if s.cfg.TrustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// writeJSON encodes v with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
