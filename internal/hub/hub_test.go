package hub

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/jpalmerr/statushub/internal/metrics"
	"github.com/jpalmerr/statushub/internal/store"
)

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recorder is a Transport that keeps every event it receives.
type recorder struct {
	mu      sync.Mutex
	events  []Event
	fail    bool
	closed  int
	sendErr error
}

func (r *recorder) Send(ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		if r.sendErr != nil {
			return r.sendErr
		}
		return errors.New("broken pipe")
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) Close() error {
	r.mu.Lock()
	r.closed++
	r.mu.Unlock()
	return nil
}

func (r *recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recorder) setFail(fail bool) {
	r.mu.Lock()
	r.fail = fail
	r.mu.Unlock()
}

func (r *recorder) closeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func newTestHub(t *testing.T, cfg Config) (*Hub, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore(store.MediaPreserve)
	if cfg.Logger == nil {
		cfg.Logger = testLogger()
	}
	return New(st, cfg), st
}

func decodeDoc(t *testing.T, ev Event) store.Document {
	t.Helper()
	var doc store.Document
	if err := json.Unmarshal(ev.Data, &doc); err != nil {
		t.Fatalf("failed to decode %q event: %v", ev.Name, err)
	}
	return doc
}

func TestHub_SubscribeSendsSnapshotFirst(t *testing.T) {
	h, _ := newTestHub(t, Config{})
	h.Update(store.Delta{Status: json.RawMessage("4")})

	rec := &recorder{}
	sub, err := h.Subscribe(rec, "", "127.0.0.1:1234")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if sub == nil {
		t.Fatal("Subscribe() returned nil subscriber")
	}

	events := rec.Events()
	if len(events) != 1 {
		t.Fatalf("events = %v, want 1", len(events))
	}
	if events[0].Name != EventUpdate {
		t.Errorf("first event = %q, want %q", events[0].Name, EventUpdate)
	}

	doc := decodeDoc(t, events[0])
	if doc.Status != 4 {
		t.Errorf("snapshot Status = %v, want %v", doc.Status, 4)
	}
	if doc.ObserverCount != 1 {
		t.Errorf("snapshot ObserverCount = %v, want %v", doc.ObserverCount, 1)
	}
}

func TestHub_SubscribeOriginForbidden(t *testing.T) {
	h, _ := newTestHub(t, Config{Origins: AllowList([]string{"http://localhost:3000"})})

	rec := &recorder{}
	_, err := h.Subscribe(rec, "http://evil.example", "")
	if !errors.Is(err, ErrOriginForbidden) {
		t.Fatalf("Subscribe() error = %v, want ErrOriginForbidden", err)
	}
	if h.Size() != 0 {
		t.Errorf("Size() = %v, want 0", h.Size())
	}
	if len(rec.Events()) != 0 {
		t.Error("rejected subscriber should receive nothing")
	}

	// listed origin and missing origin are both admitted
	for _, origin := range []string{"http://localhost:3000", ""} {
		if _, err := h.Subscribe(&recorder{}, origin, ""); err != nil {
			t.Errorf("Subscribe(%q) error = %v", origin, err)
		}
	}
}

func TestHub_UpdateFansOut(t *testing.T) {
	h, _ := newTestHub(t, Config{})

	recs := []*recorder{{}, {}, {}}
	for _, rec := range recs {
		if _, err := h.Subscribe(rec, "", ""); err != nil {
			t.Fatalf("Subscribe() error = %v", err)
		}
	}

	doc := h.Update(store.Delta{Status: json.RawMessage("2")})
	if doc.Status != 2 {
		t.Errorf("Update().Status = %v, want %v", doc.Status, 2)
	}

	for i, rec := range recs {
		events := rec.Events()
		last := events[len(events)-1]
		if last.Name != EventUpdate {
			t.Errorf("subscriber %d last event = %q, want %q", i, last.Name, EventUpdate)
		}
		if got := decodeDoc(t, last).Status; got != 2 {
			t.Errorf("subscriber %d Status = %v, want %v", i, got, 2)
		}
	}
}

func TestHub_FailedWriteEvictsOnlyThatSubscriber(t *testing.T) {
	m := metrics.New()
	h, st := newTestHub(t, Config{Metrics: m})

	good := &recorder{}
	bad := &recorder{}
	for _, rec := range []*recorder{good, bad} {
		if _, err := h.Subscribe(rec, "", ""); err != nil {
			t.Fatalf("Subscribe() error = %v", err)
		}
	}

	bad.setFail(true)
	res := h.Publish(EventUpdate, map[string]int{"status": 1})

	if res.Delivered != 1 || res.Failed != 1 {
		t.Errorf("Publish() = %+v, want 1 delivered, 1 failed", res)
	}
	if h.Size() != 1 {
		t.Errorf("Size() = %v, want 1", h.Size())
	}
	if bad.closeCount() != 1 {
		t.Errorf("evicted transport closed %v times, want 1", bad.closeCount())
	}
	if got := st.Snapshot().ObserverCount; got != 1 {
		t.Errorf("ObserverCount = %v, want 1", got)
	}

	// a second publish must not touch the evicted subscriber again
	h.Publish(EventUpdate, map[string]int{"status": 2})
	if bad.closeCount() != 1 {
		t.Errorf("evicted transport closed %v times after second publish, want 1", bad.closeCount())
	}

	if got := testutil.ToFloat64(m.SubscribersEvicted); got != 1 {
		t.Errorf("SubscribersEvicted = %v, want 1", got)
	}
}

func TestHub_PublishWithNoSubscribers(t *testing.T) {
	h, _ := newTestHub(t, Config{})

	res := h.Publish(EventUpdate, "x")
	if res.Delivered != 0 || res.Failed != 0 {
		t.Errorf("Publish() = %+v, want zero result", res)
	}
}

func TestHub_PublishUnencodablePayload(t *testing.T) {
	h, _ := newTestHub(t, Config{})
	rec := &recorder{}
	if _, err := h.Subscribe(rec, "", ""); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	res := h.Publish(EventUpdate, make(chan int))
	if res.Delivered != 0 {
		t.Errorf("Publish() delivered = %v, want 0", res.Delivered)
	}
	if h.Size() != 1 {
		t.Error("encoding failure must not evict subscribers")
	}
}

func TestHub_ObserverBroadcast(t *testing.T) {
	tests := []struct {
		name      string
		broadcast bool
		wantFirst int
	}{
		{"off", false, 1},
		{"on", true, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestHub(t, Config{ObserverBroadcast: tt.broadcast})

			first := &recorder{}
			if _, err := h.Subscribe(first, "", ""); err != nil {
				t.Fatalf("Subscribe() error = %v", err)
			}
			second := &recorder{}
			if _, err := h.Subscribe(second, "", ""); err != nil {
				t.Fatalf("Subscribe() error = %v", err)
			}

			if got := len(first.Events()); got != tt.wantFirst {
				t.Errorf("first subscriber events = %v, want %v", got, tt.wantFirst)
			}
			if got := len(second.Events()); got != 1 {
				t.Errorf("second subscriber events = %v, want 1", got)
			}
			if tt.broadcast {
				last := first.Events()[1]
				if got := decodeDoc(t, last).ObserverCount; got != 2 {
					t.Errorf("broadcast ObserverCount = %v, want 2", got)
				}
			}
		})
	}
}

func TestHub_SubscribeInitialSendFailure(t *testing.T) {
	h, _ := newTestHub(t, Config{})

	rec := &recorder{fail: true}
	if _, err := h.Subscribe(rec, "", ""); err == nil {
		t.Fatal("Subscribe() expected error when initial send fails")
	}
	if h.Size() != 0 {
		t.Errorf("Size() = %v, want 0", h.Size())
	}
	if rec.closeCount() != 1 {
		t.Errorf("transport closed %v times, want 1", rec.closeCount())
	}
}

func TestHub_UnsubscribeIdempotent(t *testing.T) {
	h, st := newTestHub(t, Config{})

	rec := &recorder{}
	sub, err := h.Subscribe(rec, "", "")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	h.Unsubscribe(sub.ID)
	h.Unsubscribe(sub.ID)

	if h.Size() != 0 {
		t.Errorf("Size() = %v, want 0", h.Size())
	}
	if rec.closeCount() != 1 {
		t.Errorf("transport closed %v times, want 1", rec.closeCount())
	}
	if got := st.Snapshot().ObserverCount; got != 0 {
		t.Errorf("ObserverCount = %v, want 0", got)
	}
}

func TestHub_Close(t *testing.T) {
	h, _ := newTestHub(t, Config{})

	recs := []*recorder{{}, {}}
	for _, rec := range recs {
		if _, err := h.Subscribe(rec, "", ""); err != nil {
			t.Fatalf("Subscribe() error = %v", err)
		}
	}

	h.Close()
	h.Close()

	for i, rec := range recs {
		if rec.closeCount() != 1 {
			t.Errorf("subscriber %d closed %v times, want 1", i, rec.closeCount())
		}
	}
	if _, err := h.Subscribe(&recorder{}, "", ""); !errors.Is(err, ErrClosed) {
		t.Errorf("Subscribe() after Close error = %v, want ErrClosed", err)
	}
}

func TestHub_PerSubscriberOrder(t *testing.T) {
	h, _ := newTestHub(t, Config{})

	rec := &recorder{}
	if _, err := h.Subscribe(rec, "", ""); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				h.Update(store.Delta{Status: json.RawMessage("1")})
			}
		}()
	}
	wg.Wait()

	// last_updated is non-decreasing, so delivery order must preserve it
	events := rec.Events()
	if len(events) != 101 {
		t.Fatalf("events = %v, want 101", len(events))
	}
	prev := decodeDoc(t, events[0]).LastUpdated
	for _, ev := range events[1:] {
		cur := decodeDoc(t, ev).LastUpdated
		if cur.Before(prev) {
			t.Fatalf("events delivered out of order: %v after %v", cur, prev)
		}
		prev = cur
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	a := &Subscriber{ID: [16]byte{1}}
	b := &Subscriber{ID: [16]byte{2}}

	r.Add(a)
	r.Add(b)

	list := r.List()
	if len(list) != 2 || list[0] != a || list[1] != b {
		t.Fatalf("List() = %v, want [a b] in order", list)
	}

	if _, ok := r.Remove(a.ID); !ok {
		t.Error("Remove() first call = false, want true")
	}
	if _, ok := r.Remove(a.ID); ok {
		t.Error("Remove() second call = true, want false")
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %v, want 1", r.Len())
	}

	// the earlier copy is unaffected by removal
	if len(list) != 2 {
		t.Errorf("List() copy length changed to %v", len(list))
	}

	drained := r.Drain()
	if len(drained) != 1 || r.Len() != 0 {
		t.Errorf("Drain() = %v items, Len() = %v, want 1 and 0", len(drained), r.Len())
	}
}

func TestAllowList(t *testing.T) {
	check := AllowList([]string{"http://a.example", "http://b.example"})

	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://a.example", true},
		{"http://b.example", true},
		{"http://c.example", false},
		{"http://a.example/", false},
	}

	for _, tt := range tests {
		if got := check(tt.origin); got != tt.want {
			t.Errorf("AllowList(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}
