package hub

import (
	"errors"
	"sync"
)

// DefaultOutboxSize is the per-subscriber queue depth used by the HTTP
// stream handlers.
const DefaultOutboxSize = 64

var (
	// ErrOutboxFull is returned by [Outbox.Send] when the subscriber has
	// fallen too far behind.
	ErrOutboxFull = errors.New("subscriber outbox full")

	// ErrOutboxClosed is returned by [Outbox.Send] after [Outbox.Close].
	ErrOutboxClosed = errors.New("subscriber outbox closed")
)

// Transport is the write side of one subscriber connection.
//
// Send must not block on the network: the hub calls it while holding its
// publish lock. A non-nil error marks the subscriber as dead.
type Transport interface {
	Send(ev Event) error
	Close() error
}

// Outbox is a bounded, non-blocking [Transport].
//
// The hub enqueues with Send; the connection goroutine drains Events and
// writes to the network at its own pace. When the queue is full the send fails
// and the hub evicts the subscriber instead of waiting.
type Outbox struct {
	events chan Event
	done   chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewOutbox creates an outbox holding up to size pending events.
// A size below 1 uses [DefaultOutboxSize].
func NewOutbox(size int) *Outbox {
	if size < 1 {
		size = DefaultOutboxSize
	}
	return &Outbox{
		events: make(chan Event, size),
		done:   make(chan struct{}),
	}
}

// Send enqueues ev without blocking.
func (o *Outbox) Send(ev Event) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return ErrOutboxClosed
	}

	select {
	case o.events <- ev:
		return nil
	default:
		return ErrOutboxFull
	}
}

// Close marks the outbox closed and signals [Outbox.Done]. It is idempotent.
// Pending events stay readable from Events.
func (o *Outbox) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.closed {
		o.closed = true
		close(o.done)
	}
	return nil
}

// Events returns the queue of pending events.
func (o *Outbox) Events() <-chan Event {
	return o.events
}

// Done is closed once the outbox is closed by either side.
func (o *Outbox) Done() <-chan struct{} {
	return o.done
}
