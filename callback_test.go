package statushub

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

func postUpdate(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/status", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Set-Secret", "report")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func newCallbackHub(t *testing.T, opts ...Option) *StatusHub {
	t.Helper()
	base := []Option{
		WithSetSecret("report"),
		WithGetSecret("observe"),
		WithLogger(testLogger()),
	}
	sh, err := New(append(base, opts...)...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return sh
}

func TestWithUpdateCallback_ReceivesDocument(t *testing.T) {
	var got []Document
	sh := newCallbackHub(t, WithUpdateCallback(func(doc Document) {
		got = append(got, doc)
	}))

	rec := postUpdate(t, sh.Handler(), `{"status":2,"device":{"pc":{"using":true,"app_name":"Editor"}}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %v, want %v", rec.Code, http.StatusOK)
	}

	if len(got) != 1 {
		t.Fatalf("callback invocations = %v, want 1", len(got))
	}
	if got[0].Status != 2 {
		t.Errorf("Status = %v, want 2", got[0].Status)
	}
	if got[0].Devices["pc"].AppName != "Editor" {
		t.Errorf("AppName = %q, want %q", got[0].Devices["pc"].AppName, "Editor")
	}
}

func TestWithUpdateCallback_NotCalledOnRejection(t *testing.T) {
	calls := 0
	sh := newCallbackHub(t, WithUpdateCallback(func(Document) { calls++ }))

	rec := postUpdate(t, sh.Handler(), `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %v, want %v", rec.Code, http.StatusBadRequest)
	}
	if calls != 0 {
		t.Errorf("callback invocations = %v, want 0", calls)
	}
}

func TestWithUpdateCallback_ExecutionOrder(t *testing.T) {
	var order []int
	var mu sync.Mutex
	record := func(n int) func(Document) {
		return func(Document) {
			mu.Lock()
			order = append(order, n)
			mu.Unlock()
		}
	}

	sh := newCallbackHub(t,
		WithUpdateCallback(record(1)),
		WithUpdateCallback(record(2)),
		WithUpdateCallback(record(3)),
	)

	h := sh.Handler()
	postUpdate(t, h, `{"status":1}`)
	postUpdate(t, h, `{"status":0}`)

	mu.Lock()
	defer mu.Unlock()

	if len(order) != 6 {
		t.Fatalf("expected 6 callback invocations, got %d", len(order))
	}
	// verify order is always 1, 2, 3, 1, 2, 3
	for i := 0; i < len(order); i++ {
		expected := (i % 3) + 1
		if order[i] != expected {
			t.Errorf("order[%d] = %d, want %d (callbacks should execute in registration order)", i, order[i], expected)
		}
	}
}

func TestWithUpdateCallback_PanicRecovered(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	secondCalled := false
	sh := newCallbackHub(t,
		WithLogger(logger),
		WithUpdateCallback(func(Document) { panic("callback exploded") }),
		WithUpdateCallback(func(Document) { secondCalled = true }),
	)

	rec := postUpdate(t, sh.Handler(), `{"status":1}`)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %v, want %v", rec.Code, http.StatusOK)
	}
	if !secondCalled {
		t.Error("callback after a panicking one should still run")
	}
	if !strings.Contains(buf.String(), "update callback panicked") {
		t.Errorf("expected panic to be logged, got: %s", buf.String())
	}
	if sh.Snapshot().Status != 1 {
		t.Errorf("Snapshot().Status = %v, want 1", sh.Snapshot().Status)
	}
}

func TestWithUpdateCallback_MutationDoesNotLeak(t *testing.T) {
	sh := newCallbackHub(t, WithUpdateCallback(func(doc Document) {
		doc.Devices["injected"] = Device{ShowName: "nope"}
	}))

	postUpdate(t, sh.Handler(), `{"device":{"pc":{"using":true}}}`)

	if _, ok := sh.Snapshot().Devices["injected"]; ok {
		t.Error("callback mutation leaked into the stored document")
	}
}

func TestWithUsingMapping_AppliesToLegacy(t *testing.T) {
	tests := []struct {
		name    string
		mapping UsingMapping
		want    int
	}{
		{"active zero", UsingActiveZero, 0},
		{"active one", UsingActiveOne, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sh := newCallbackHub(t, WithUsingMapping(tt.mapping))

			rec := postUpdate(t, sh.Handler(), `{"id":"pc","app_name":"Editor","using":true}`)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %v, want %v", rec.Code, http.StatusOK)
			}
			if got := sh.Snapshot().Status; got != tt.want {
				t.Errorf("Status = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWithMediaPolicy_Clear(t *testing.T) {
	sh := newCallbackHub(t, WithMediaPolicy(MediaClear))
	h := sh.Handler()

	postUpdate(t, h, `{"device":{"pc":{"using":true,"media":true,"media_content":"song"}}}`)
	postUpdate(t, h, `{"device":{"pc":{"using":false}}}`)

	dev := sh.Snapshot().Devices["pc"]
	if dev.Media != nil || dev.MediaContent != nil {
		t.Errorf("media = %s / %s, want cleared", dev.Media, dev.MediaContent)
	}
}
