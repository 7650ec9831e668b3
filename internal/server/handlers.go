package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/jpalmerr/statushub/internal/normalize"
	"github.com/jpalmerr/statushub/internal/store"
)

// ackResponse acknowledges or rejects an update submission.
type ackResponse struct {
	Success       bool             `json:"success"`
	Code          int              `json:"code"`
	Message       string           `json:"message"`
	Reason        normalize.Reason `json:"reason,omitempty"`
	Detail        string           `json:"detail,omitempty"`
	CorrelationID string           `json:"correlation_id,omitempty"`
}

// snapshotResponse is the document returned by a GET submission.
type snapshotResponse struct {
	store.Document
	Meta responseMeta `json:"_meta"`
}

type responseMeta struct {
	LastUpdated    time.Time       `json:"last_updated"`
	PostMethodInfo *postMethodInfo `json:"post_method_info,omitempty"`
}

type postMethodInfo struct {
	Message     string      `json:"message"`
	URL         string      `json:"url"`
	Method      string      `json:"method"`
	ContentType string      `json:"content_type"`
	ExampleBody exampleBody `json:"example_body"`
}

type exampleBody struct {
	Status int                      `json:"status"`
	Device map[string]exampleDevice `json:"device"`
	Time   time.Time                `json:"time"`
}

type exampleDevice struct {
	Using    bool   `json:"using"`
	AppName  string `json:"app_name"`
	ShowName string `json:"show_name"`
}

type redirectResponse struct {
	Success  bool         `json:"success"`
	Code     int          `json:"code"`
	Message  string       `json:"message"`
	Redirect redirectHint `json:"redirect"`
}

type redirectHint struct {
	Method     string            `json:"method"`
	URL        string            `json:"url"`
	BodyFormat map[string]string `json:"body_format"`
}

type healthResponse struct {
	Status      string        `json:"status"`
	Connections int           `json:"connections"`
	Timestamp   time.Time     `json:"timestamp"`
	Auth        healthAuth    `json:"auth"`
	Logging     healthLogging `json:"logging"`
}

type healthAuth struct {
	SetSecretConfigured bool `json:"setSecretConfigured"`
	GetSecretConfigured bool `json:"getSecretConfigured"`
}

type healthLogging struct {
	Level string `json:"level"`
}

type probeResponse struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// handleSubmit applies an update carried in a JSON body.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.writeBodyError(w, err)
		return
	}

	res, err := s.normalizeBody(body)
	if err != nil {
		s.rejectPayload(w, r, err)
		return
	}

	doc := s.apply(res)

	s.logger.Info("status updated",
		"category", categoryAPI,
		"ip", s.clientIP(r),
		"shape", res.Shape.String(),
		"status", doc.Status,
		"devices", len(doc.Devices),
		"duration", time.Since(start).String(),
	)

	writeJSON(w, http.StatusOK, ackResponse{
		Success: true,
		Code:    http.StatusOK,
		Message: "status updated",
	})
}

// handleQuery applies an update carried in query parameters and returns the
// resulting document.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if q.Get("redirect_to_post") == "true" {
		s.logger.Info("GET request redirected to POST", "category", categoryAPI, "ip", s.clientIP(r))
		writeJSON(w, http.StatusTemporaryRedirect, redirectResponse{
			Success: false,
			Code:    http.StatusTemporaryRedirect,
			Message: "use POST for status updates",
			Redirect: redirectHint{
				Method: http.MethodPost,
				URL:    r.URL.Path,
				BodyFormat: map[string]string{
					"status": "number (0 or 1)",
					"device": "object with device data",
					"time":   "ISO string (optional)",
				},
			},
		})
		return
	}

	res, err := s.normalizeQuery(q)
	if err != nil {
		s.rejectPayload(w, r, err)
		return
	}

	doc := s.apply(res)

	hasUpdate := q.Has("status") || q.Has("device") || res.Shape == normalize.ShapeLegacy
	s.logger.Info("status GET request",
		"category", categoryAPI,
		"ip", s.clientIP(r),
		"shape", res.Shape.String(),
		"has_update", hasUpdate,
	)

	resp := snapshotResponse{
		Document: doc,
		Meta:     responseMeta{LastUpdated: doc.LastUpdated},
	}
	if hasUpdate {
		resp.Meta.PostMethodInfo = &postMethodInfo{
			Message:     "complex status updates should use POST",
			URL:         r.URL.Path,
			Method:      http.MethodPost,
			ContentType: "application/json",
			ExampleBody: exampleBody{
				Status: 0,
				Device: map[string]exampleDevice{
					"device_id": {Using: true, AppName: "Example App", ShowName: "Device display name"},
				},
				Time: time.Now().UTC(),
			},
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// apply publishes a normalized update and runs the update callback.
func (s *Server) apply(res normalize.Result) store.Document {
	doc := s.hub.Update(res.Delta)
	if s.cfg.OnUpdate != nil {
		s.cfg.OnUpdate(doc)
	}
	return doc
}

// normalizeBody and normalizeQuery add a last-resort recover so a fault in
// the normalizer is reported as an internal failure, never a crash.
func (s *Server) normalizeBody(body []byte) (res normalize.Result, err error) {
	defer s.recoverNormalize(&err)
	return s.cfg.Normalizer.Body(body)
}

func (s *Server) normalizeQuery(q url.Values) (res normalize.Result, err error) {
	defer s.recoverNormalize(&err)
	return s.cfg.Normalizer.Query(q)
}

func (s *Server) recoverNormalize(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%w: %v", normalize.ErrInternal, r)
	}
}

// rejectPayload writes a 400 for invalid payloads and a 500 for internal
// failures. State is never touched in either case.
func (s *Server) rejectPayload(w http.ResponseWriter, r *http.Request, err error) {
	var ipe *normalize.InvalidPayloadError
	if errors.As(err, &ipe) {
		s.metrics.RecordUpdateRejected(string(ipe.Reason))
		s.logger.Warn("invalid update payload",
			"category", categoryAPI,
			"ip", s.clientIP(r),
			"reason", string(ipe.Reason),
			"detail", ipe.Detail,
		)
		writeJSON(w, http.StatusBadRequest, ackResponse{
			Success: false,
			Code:    http.StatusBadRequest,
			Message: "request parameters are incomplete or malformed",
			Reason:  ipe.Reason,
			Detail:  ipe.Detail,
		})
		return
	}

	correlationID := uuid.NewString()
	s.logger.Error("update normalization failed",
		"category", categoryAPI,
		"correlation_id", correlationID,
		"error", err,
		"stack", string(debug.Stack()),
	)
	writeJSON(w, http.StatusInternalServerError, ackResponse{
		Success:       false,
		Code:          http.StatusInternalServerError,
		Message:       "internal server error",
		CorrelationID: correlationID,
	})
}

// handleHealth reports liveness and the live connection count.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:      "OK",
		Connections: s.hub.Size(),
		Timestamp:   time.Now().UTC(),
		Auth: healthAuth{
			SetSecretConfigured: s.cfg.SetSecret != "",
			GetSecretConfigured: s.cfg.GetSecret != "",
		},
		Logging: healthLogging{Level: s.cfg.LogLevel},
	})
}

// handleAuthProbe confirms that the request passed the secret check.
func (s *Server) handleAuthProbe(scope string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.logger.Info(scope+" auth test successful", "category", categoryAuth, "ip", s.clientIP(r))
		writeJSON(w, http.StatusOK, probeResponse{
			Message:   scope + " authentication successful",
			Timestamp: time.Now().UTC(),
		})
	})
}
