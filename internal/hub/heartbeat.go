package hub

import (
	"context"
	"sync"
	"time"
)

// DefaultHeartbeatInterval is the keep-alive period for stream subscribers.
const DefaultHeartbeatInterval = 30 * time.Second

// Heartbeat periodically publishes a heartbeat event carrying the current
// time, but only while at least one subscriber is connected.
//
// Heartbeats keep idle connections alive through proxies and surface dead
// subscribers: a failed heartbeat write evicts the subscriber like any other
// failed publish.
//
// All lifecycle methods (Start, Stop) are safe for concurrent use.
type Heartbeat struct {
	hub      *Hub
	interval time.Duration
	nowFn    func() time.Time
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped bool
}

// NewHeartbeat creates a [Heartbeat] for h. A non-positive interval uses
// [DefaultHeartbeatInterval].
func NewHeartbeat(h *Hub, interval time.Duration) *Heartbeat {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	return &Heartbeat{
		hub:      h,
		interval: interval,
		nowFn:    time.Now,
	}
}

// Interval returns the tick period.
func (b *Heartbeat) Interval() time.Duration {
	return b.interval
}

// Start begins ticking in a background goroutine.
//
// If ctx is nil, context.Background() is used. Start is idempotent; calls
// after the first, or after Stop, are no-ops.
func (b *Heartbeat) Start(ctx context.Context) {
	b.mu.Lock()
	if b.started || b.stopped {
		b.mu.Unlock()
		return
	}
	b.started = true

	if ctx == nil {
		ctx = context.Background()
	}
	tickCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.wg.Add(1)
	b.mu.Unlock()

	go func() {
		defer b.wg.Done()

		ticker := time.NewTicker(b.interval)
		defer ticker.Stop()

		for {
			select {
			case <-tickCtx.Done():
				return
			case <-ticker.C:
				b.Tick()
			}
		}
	}()
}

// Tick publishes one heartbeat if anyone is listening. It reports whether an
// event was published.
func (b *Heartbeat) Tick() bool {
	if b.hub.Size() == 0 {
		return false
	}
	b.hub.Publish(EventHeartbeat, b.nowFn().UTC().Format(time.RFC3339Nano))
	b.hub.metrics.RecordHeartbeat()
	return true
}

// Stop halts the ticker and waits for the loop to exit. Stop is idempotent
// and safe to call before Start.
func (b *Heartbeat) Stop() {
	b.mu.Lock()
	if !b.stopped {
		b.stopped = true
		if b.cancel != nil {
			b.cancel()
		}
	}
	b.mu.Unlock()

	b.wg.Wait()
}
