package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jpalmerr/statushub/internal/hub"
)

const (
	// wsPongWait is how long a WebSocket peer may stay silent, pongs included.
	wsPongWait = 60 * time.Second

	// wsPingPeriod must be shorter than wsPongWait.
	wsPingPeriod = wsPongWait * 9 / 10

	// wsReadLimit caps inbound client messages, which are ignored.
	wsReadLimit = 512
)

// subscribe registers a new outbox with the hub, writing the rejection
// response itself when admission fails.
func (s *Server) subscribe(w http.ResponseWriter, r *http.Request) (*hub.Subscriber, *hub.Outbox, bool) {
	outbox := hub.NewOutbox(hub.DefaultOutboxSize)
	origin := r.Header.Get("Origin")

	sub, err := s.hub.Subscribe(outbox, origin, s.clientIP(r))
	switch {
	case err == nil:
		return sub, outbox, true
	case errors.Is(err, hub.ErrOriginForbidden):
		s.logger.Warn("stream CORS forbidden", "category", categoryCORS, "origin", origin)
		http.Error(w, "CORS Forbidden: Origin not allowed", http.StatusForbidden)
	case errors.Is(err, hub.ErrClosed):
		http.Error(w, "Server shutting down", http.StatusServiceUnavailable)
	default:
		s.logger.Error("stream subscribe failed", "category", categoryStream, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
	return nil, nil, false
}

// handleSSE streams hub events via Server-Sent Events.
//
// The handler uses write deadlines to prevent goroutine leaks when clients are
// slow or disconnected. Without deadlines, a blocked write would prevent the
// handler from detecting context cancellation or eviction.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	// check if flushing is supported
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	sub, outbox, ok := s.subscribe(w, r)
	if !ok {
		return
	}
	defer s.hub.Unsubscribe(sub.ID)

	// ResponseController provides deadline-aware write and flush operations.
	rc := http.NewResponseController(w)

	// track if write deadlines are supported (may not be for some ResponseWriter impls)
	deadlinesSupported := true

	writeAndFlush := func(data []byte) error {
		if deadlinesSupported {
			if err := rc.SetWriteDeadline(time.Now().Add(streamWriteTimeout)); err != nil {
				// deadline not supported by underlying connection, continue without
				s.logger.Debug("sse write deadlines not supported", "category", categoryStream, "error", err)
				deadlinesSupported = false
			}
		}

		if _, err := w.Write(data); err != nil {
			return err
		}

		// ResponseController.Flush respects the write deadline
		return rc.Flush()
	}

	h := w.Header()
	if origin := r.Header.Get("Origin"); origin != "" {
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Credentials", "true")
	}
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		return
	}

	for {
		select {
		case ev := <-outbox.Events():
			if err := writeAndFlush(ev.SSE()); err != nil {
				return
			}

		case <-outbox.Done():
			// evicted by the hub or closed at shutdown
			return

		case <-r.Context().Done():
			// request context is derived from server context via BaseContext,
			// so this fires on both client disconnect AND server shutdown
			return
		}
	}
}

// handleWebSocket streams hub events over a WebSocket connection. Each event
// is one text message of the form {"event":"<name>","data":<json>}.
//
// The origin is admitted by the hub before the upgrade so a rejected client
// receives a plain 403 rather than a failed handshake.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sub, outbox, ok := s.subscribe(w, r)
	if !ok {
		return
	}
	defer s.hub.Unsubscribe(sub.ID)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response
		s.logger.Warn("websocket upgrade failed",
			"category", categoryStream,
			"remote_addr", r.RemoteAddr,
			"error", err,
		)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// the read pump only detects disconnects and answers pings
	go func() {
		defer cancel()
		conn.SetReadLimit(wsReadLimit)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev := <-outbox.Events():
			msg, err := ev.Frame()
			if err != nil {
				s.logger.Error("failed to encode websocket frame", "category", categoryStream, "error", err)
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			deadline := time.Now().Add(streamWriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}

		case <-outbox.Done():
			deadline := time.Now().Add(time.Second)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server closing"), deadline)
			return

		case <-ctx.Done():
			return
		}
	}
}
