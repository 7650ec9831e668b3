package hub

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jpalmerr/statushub/internal/metrics"
	"github.com/jpalmerr/statushub/internal/store"
)

var (
	// ErrOriginForbidden is returned by [Hub.Subscribe] when the origin check
	// rejects the connection. The caller still owns the transport.
	ErrOriginForbidden = errors.New("origin not allowed")

	// ErrClosed is returned by [Hub.Subscribe] after [Hub.Close].
	ErrClosed = errors.New("hub closed")
)

// OriginChecker reports whether a stream connection from origin is admitted.
type OriginChecker func(origin string) bool

// AllowList returns an [OriginChecker] admitting the listed origins and
// requests that carry no Origin header.
func AllowList(origins []string) OriginChecker {
	allowed := slices.Clone(origins)
	return func(origin string) bool {
		return origin == "" || slices.Contains(allowed, origin)
	}
}

// Config holds the collaborators and policies of a [Hub].
type Config struct {
	// Origins admits or rejects new subscribers. Nil admits everyone.
	Origins OriginChecker

	// ObserverBroadcast, when true, publishes an update to every existing
	// subscriber whenever one joins, so the observer count they see stays
	// current. When false only the joining subscriber receives a snapshot.
	ObserverBroadcast bool

	// Metrics is optional.
	Metrics *metrics.Metrics

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// PublishResult reports the outcome of one fan-out.
type PublishResult struct {
	Delivered int
	Failed    int
}

// Hub owns the subscriber registry and fans events out to it.
//
// A single mutex serializes apply+publish and subscribe+initial-send. As a
// result every subscriber sees events in publish order, a new subscriber's
// snapshot precedes any live event it receives, and publish order matches the
// order in which updates were applied to the store.
type Hub struct {
	mu       sync.Mutex
	closed   bool
	store    store.Store
	registry *Registry

	origins           OriginChecker
	observerBroadcast bool
	metrics           *metrics.Metrics
	logger            *slog.Logger
}

// New creates a [Hub] publishing snapshots of st.
func New(st store.Store, cfg Config) *Hub {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		store:             st,
		registry:          NewRegistry(),
		origins:           cfg.Origins,
		observerBroadcast: cfg.ObserverBroadcast,
		metrics:           cfg.Metrics,
		logger:            logger,
	}
}

// Update applies delta to the store and publishes the resulting document as
// an update event. It returns the published document.
func (h *Hub) Update(delta store.Delta) store.Document {
	h.mu.Lock()
	defer h.mu.Unlock()

	doc := h.store.Apply(delta)
	h.metrics.RecordUpdateApplied()
	h.publishLocked(EventUpdate, doc, uuid.Nil)
	return doc
}

// Publish encodes payload once and writes it to every subscriber.
//
// A subscriber whose write fails is evicted and its transport closed. Failures
// never abort the fan-out and are never returned to the caller.
func (h *Hub) Publish(name string, payload any) PublishResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.publishLocked(name, payload, uuid.Nil)
}

// publishLocked fans out to every subscriber except skip. The caller holds h.mu.
func (h *Hub) publishLocked(name string, payload any, skip uuid.UUID) PublishResult {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("failed to encode event", "event", name, "error", err)
		return PublishResult{}
	}
	ev := Event{Name: name, Data: data}

	var res PublishResult
	for _, sub := range h.registry.List() {
		if sub.ID == skip {
			continue
		}
		if err := sub.transport.Send(ev); err != nil {
			res.Failed++
			h.evictLocked(sub, err)
			continue
		}
		res.Delivered++
	}

	if res.Failed > 0 {
		h.syncObserverCount()
	}
	h.metrics.RecordPublish(name, res.Failed)

	if name != EventHeartbeat {
		h.logger.Debug("event published",
			"event", name,
			"delivered", res.Delivered,
			"failed", res.Failed,
		)
	}
	return res
}

// Subscribe admits a new subscriber writing through t.
//
// The origin check runs first; on rejection Subscribe returns
// [ErrOriginForbidden] and does not touch t. On success the subscriber is
// registered and receives the current snapshot before any other event. If that
// first write fails the subscriber is evicted and an error is returned.
func (h *Hub) Subscribe(t Transport, origin, remoteAddr string) (*Subscriber, error) {
	if h.origins != nil && !h.origins(origin) {
		h.logger.Warn("subscriber origin rejected", "origin", origin, "remote_addr", remoteAddr)
		return nil, ErrOriginForbidden
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrClosed
	}

	sub := &Subscriber{
		ID:          uuid.New(),
		Origin:      origin,
		RemoteAddr:  remoteAddr,
		ConnectedAt: time.Now(),
		transport:   t,
	}
	h.registry.Add(sub)
	h.syncObserverCount()

	data, err := json.Marshal(h.store.Snapshot())
	if err != nil {
		h.evictLocked(sub, err)
		h.syncObserverCount()
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	if err := t.Send(Event{Name: EventUpdate, Data: data}); err != nil {
		h.evictLocked(sub, err)
		h.syncObserverCount()
		return nil, fmt.Errorf("send snapshot: %w", err)
	}

	if h.observerBroadcast {
		h.publishLocked(EventUpdate, h.store.Snapshot(), sub.ID)
	}

	h.logger.Info("subscriber connected",
		"subscriber", sub.ID,
		"origin", originOrUnknown(origin),
		"remote_addr", remoteAddr,
		"total", h.registry.Len(),
	)
	return sub, nil
}

// Unsubscribe removes the subscriber and closes its transport. Calling it for
// an unknown or already-removed id is a no-op.
func (h *Hub) Unsubscribe(id uuid.UUID) {
	sub, ok := h.registry.Remove(id)
	if !ok {
		return
	}
	_ = sub.transport.Close()
	h.syncObserverCount()

	h.logger.Info("subscriber disconnected",
		"subscriber", sub.ID,
		"origin", originOrUnknown(sub.Origin),
		"connected_for", time.Since(sub.ConnectedAt).Round(time.Millisecond).String(),
		"total", h.registry.Len(),
	)
}

// Size returns the number of live subscribers.
func (h *Hub) Size() int {
	return h.registry.Len()
}

// Subscribers returns a snapshot of the live subscribers.
func (h *Hub) Subscribers() []*Subscriber {
	return h.registry.List()
}

// Snapshot returns the current document.
func (h *Hub) Snapshot() store.Document {
	return h.store.Snapshot()
}

// Close closes every subscriber transport and refuses new subscribers.
// It is idempotent.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true

	subs := h.registry.Drain()
	for _, sub := range subs {
		_ = sub.transport.Close()
	}
	h.syncObserverCount()

	if len(subs) > 0 {
		h.logger.Info("closed all subscribers", "count", len(subs))
	}
}

// evictLocked removes sub after a failed write. Only the first eviction of a
// subscriber closes its transport.
func (h *Hub) evictLocked(sub *Subscriber, cause error) {
	if _, ok := h.registry.Remove(sub.ID); !ok {
		return
	}
	_ = sub.transport.Close()
	h.metrics.RecordEviction()

	h.logger.Warn("subscriber evicted",
		"subscriber", sub.ID,
		"remote_addr", sub.RemoteAddr,
		"error", cause,
	)
}

// syncObserverCount mirrors the registry size into the document and metrics.
func (h *Hub) syncObserverCount() {
	n := h.registry.Len()
	h.store.SetObserverCount(n)
	h.metrics.SetSubscribers(n)
}

func originOrUnknown(origin string) string {
	if origin == "" {
		return "local/unknown"
	}
	return origin
}
