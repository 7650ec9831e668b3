// Package server provides the HTTP surface of the status hub.
//
// This package is internal and handles all HTTP concerns:
//
//   - Update submission: "/api/status" and its "/device/set" alias, by JSON
//     body (POST) or query parameters (GET)
//   - Streams: Server-Sent Events at "/events" and WebSocket at "/events/ws"
//   - Guards: shared-secret checks, the origin allow-list, and per-client
//     rate admission
//   - Operations: "/health", "/metrics", and the embedded presence page at "/"
//
// The server supports graceful shutdown via context cancellation: every
// subscriber is closed first, then in-flight requests get a 5-second timeout.
//
// Users of the statushub library should not need to interact with this
// package directly. The server is started by [statushub.StatusHub.Start].
package server
