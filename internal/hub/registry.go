package hub

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Subscriber is one registered stream observer.
type Subscriber struct {
	ID          uuid.UUID
	Origin      string
	RemoteAddr  string
	ConnectedAt time.Time

	transport Transport
}

// Registry is the set of live subscribers, kept in registration order.
//
// Registry is safe for concurrent use. List returns a copy so callers can
// iterate while other goroutines add or remove entries.
type Registry struct {
	mu   sync.RWMutex
	subs []*Subscriber
}

// NewRegistry creates an empty [Registry].
func NewRegistry() *Registry {
	return &Registry{}
}

// Add registers s.
func (r *Registry) Add(s *Subscriber) {
	r.mu.Lock()
	r.subs = append(r.subs, s)
	r.mu.Unlock()
}

// Remove unregisters the subscriber with the given id. It reports whether the
// subscriber was present, so a second Remove for the same id is a no-op.
func (r *Registry) Remove(id uuid.UUID) (*Subscriber, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, s := range r.subs {
		if s.ID == id {
			r.subs = append(r.subs[:i], r.subs[i+1:]...)
			return s, true
		}
	}
	return nil, false
}

// Len returns the number of registered subscribers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// List returns a snapshot of the registered subscribers.
func (r *Registry) List() []*Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Subscriber, len(r.subs))
	copy(out, r.subs)
	return out
}

// Drain removes and returns every subscriber.
func (r *Registry) Drain() []*Subscriber {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := r.subs
	r.subs = nil
	return out
}
