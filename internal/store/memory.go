package store

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"
)

// unknownShowName is the last link of the display name fallback chain.
const unknownShowName = "Unknown"

// timeLayouts are the accepted formats for a caller-supplied device time.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
}

// MemoryStore is an in-memory implementation of [Store].
//
// MemoryStore holds exactly one [Document], created with status 0 and an empty
// device map. A single mutex serializes every mutation, so applies are
// last-writer-wins per device key with no cross-device ordering.
type MemoryStore struct {
	mu    sync.Mutex
	doc   Document
	media MediaPolicy
	nowFn func() time.Time
}

// NewMemoryStore creates a new in-memory [Store] using the given media policy.
//
// The store is immediately ready for use. No cleanup is required when done.
func NewMemoryStore(media MediaPolicy) *MemoryStore {
	return &MemoryStore{
		doc: Document{
			Devices:     make(map[string]Device),
			LastUpdated: time.Now().UTC(),
		},
		media: media,
		nowFn: time.Now,
	}
}

// Apply merges delta into the document and returns a snapshot.
//
// A numeric Status replaces the stored status; a non-numeric one is ignored.
// Each device update is merged over the existing entry. LastUpdated is set on
// every call, including for an empty delta.
//
// The merge is staged before it is committed so a call either applies fully
// or not at all.
func (m *MemoryStore) Apply(delta Delta) Document {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.nowFn().UTC()

	staged := make(map[string]Device, len(delta.Devices))
	if len(delta.Devices) > 0 {
		stamp := resolveTime(delta.Time, now)
		for key, update := range delta.Devices {
			existing, exists := m.doc.Devices[key]
			staged[key] = m.merge(key, existing, exists, update, stamp)
		}
	}

	if code, ok := parseStatusCode(delta.Status); ok {
		m.doc.Status = code
	}
	for key, dev := range staged {
		m.doc.Devices[key] = dev
	}
	if now.After(m.doc.LastUpdated) {
		m.doc.LastUpdated = now
	}

	return m.doc.clone()
}

// Snapshot returns a deep copy of the current document.
func (m *MemoryStore) Snapshot() Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.doc.clone()
}

// SetObserverCount records the number of live subscribers.
func (m *MemoryStore) SetObserverCount(n int) {
	m.mu.Lock()
	m.doc.ObserverCount = n
	m.mu.Unlock()
}

// merge applies a single device update over the existing entry.
func (m *MemoryStore) merge(key string, existing Device, exists bool, update DeviceUpdate, stamp time.Time) Device {
	next := existing.clone()

	if update.Using != nil {
		next.Using = *update.Using
	}
	if update.AppName != nil {
		next.AppName = *update.AppName
	}

	switch m.media {
	case MediaClear:
		next.Media = cloneRaw(update.Media)
		next.MediaContent = cloneRaw(update.MediaContent)
	default:
		if update.Media != nil {
			next.Media = cloneRaw(update.Media)
		}
		if update.MediaContent != nil {
			next.MediaContent = cloneRaw(update.MediaContent)
		}
	}

	next.ShowName = resolveShowName(key, existing.ShowName, update.ShowName)

	// per-key time never moves backwards, even for an older explicit time
	if exists && stamp.Before(existing.Time) {
		stamp = existing.Time
	}
	next.Time = stamp

	return next
}

// resolveShowName walks the fallback chain: incoming, stored, key, "Unknown".
func resolveShowName(key, stored string, incoming *string) string {
	switch {
	case incoming != nil && *incoming != "":
		return *incoming
	case stored != "":
		return stored
	case key != "":
		return key
	default:
		return unknownShowName
	}
}

// resolveTime parses a caller-supplied time, falling back to now.
// A string of digits is read as Unix milliseconds.
func resolveTime(raw string, now time.Time) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return now
	}

	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC()
	}

	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC()
		}
	}
	return now
}

// parseStatusCode extracts an integral JSON number from raw.
// Strings, booleans, null, objects and fractional numbers are rejected.
func parseStatusCode(raw json.RawMessage) (int, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0, false
	}
	if c := raw[0]; c != '-' && (c < '0' || c > '9') {
		return 0, false
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, false
	}
	if f != math.Trunc(f) || f > math.MaxInt32 || f < math.MinInt32 {
		return 0, false
	}
	return int(f), true
}

func (d Document) clone() Document {
	out := d
	out.Devices = make(map[string]Device, len(d.Devices))
	for k, v := range d.Devices {
		out.Devices[k] = v.clone()
	}
	return out
}

func (d Device) clone() Device {
	out := d
	out.Media = cloneRaw(d.Media)
	out.MediaContent = cloneRaw(d.MediaContent)
	return out
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	out := make(json.RawMessage, len(raw))
	copy(out, raw)
	return out
}
