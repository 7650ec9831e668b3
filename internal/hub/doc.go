// Package hub fans status events out to stream subscribers.
//
// The main components are:
//
//   - [Registry]: the set of live subscribers
//   - [Hub]: applies updates and publishes events to every subscriber
//   - [Heartbeat]: periodic keep-alive publisher
//   - [Outbox]: bounded, non-blocking [Transport] used by the HTTP handlers
//
// Delivery is best effort. A subscriber whose write fails is evicted on the
// spot; nothing is buffered or retried on its behalf.
package hub
