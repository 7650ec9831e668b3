package hub

import (
	"bytes"
	"encoding/json"
)

// Event names carried on the stream.
const (
	EventUpdate    = "update"
	EventHeartbeat = "heartbeat"
)

// Event is one named, already-encoded message.
//
// Data holds the JSON payload. It is encoded once per publish and shared by
// every subscriber, so transports must treat it as read-only.
type Event struct {
	Name string
	Data []byte
}

// SSE renders the event in text/event-stream framing:
//
//	event: <name>
//	data: <json>
//
// JSON from encoding/json never contains a raw newline, so a single data line
// is always sufficient.
func (e Event) SSE() []byte {
	var buf bytes.Buffer
	buf.Grow(len(e.Name) + len(e.Data) + 16)
	buf.WriteString("event: ")
	buf.WriteString(e.Name)
	buf.WriteString("\ndata: ")
	buf.Write(e.Data)
	buf.WriteString("\n\n")
	return buf.Bytes()
}

// frame is the WebSocket message envelope.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Frame renders the event as a WebSocket text message of the form
// {"event":"<name>","data":<json>}.
func (e Event) Frame() ([]byte, error) {
	return json.Marshal(frame{Event: e.Name, Data: e.Data})
}
