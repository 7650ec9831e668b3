// Package statushub provides an embeddable presence hub: one shared status
// document describing which devices are active, pushed in real time to every
// connected observer.
//
// Devices report through a small HTTP API; browsers and other observers
// subscribe to a Server-Sent Events stream (or its WebSocket twin) and receive
// the full document on connect and after every change.
//
// # Quick Start
//
//	sh, _ := statushub.New(
//	    statushub.WithSetSecret(os.Getenv("SECRET")),
//	    statushub.WithGetSecret(os.Getenv("GET_SECRET")),
//	)
//
//	// Set up graceful shutdown on SIGINT/SIGTERM
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	sh.Start(ctx) // blocks until context is cancelled
//
// # Reporting Status
//
// Updates are accepted in three shapes, all merged into the same document:
//
//	POST /api/status   {"status":1,"device":{"pc":{"using":true,"app_name":"Editor"}}}
//	POST /api/status   {"id":"pc","app_name":"Editor","using":true}
//	GET  /api/status?status=1&device=%7B%22pc%22%3A%7B%22using%22%3Atrue%7D%7D
//
// The second form is the legacy single-device shape; its using flag also sets
// the global status according to [WithUsingMapping]. Every update route
// requires the SET secret.
//
// # Observing
//
// GET /events (SSE) and GET /events/ws (WebSocket) require the GET secret.
// Each subscriber first receives an "update" event carrying the current
// document, then every later update in order, plus a "heartbeat" event at the
// configured interval. A subscriber whose connection cannot keep up is
// disconnected; it reconnects and resynchronizes from the snapshot.
//
// # Architecture
//
// StatusHub consists of several internal packages (under internal/):
//
//   - internal/store: The in-memory presence document and its merge rules
//   - internal/normalize: Translation of the accepted payload shapes into one delta
//   - internal/hub: Subscriber registry, event fan-out, and heartbeat
//   - internal/server: HTTP routes, secrets, origin checks, and rate admission
//   - internal/metrics: Prometheus instrumentation served at /metrics
//   - dashboard: Embedded presence page
//
// The internal packages are not part of the public API and may change
// without notice.
package statushub
