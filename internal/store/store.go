package store

import (
	"encoding/json"
	"fmt"
	"time"
)

// Document is the presence document shared by every observer.
//
// Document is the JSON representation pushed on the event stream and returned
// by the snapshot endpoint. Values returned by a [Store] are deep copies; they
// never alias the store's internal state.
type Document struct {
	// Status is the global status code. There is no fixed set of legal values.
	Status int `json:"status"`

	// Devices maps a device key to its latest reported state.
	Devices map[string]Device `json:"device"`

	// LastUpdated is set on every apply. It never moves backwards.
	LastUpdated time.Time `json:"last_updated"`

	// ObserverCount mirrors the number of live stream subscribers.
	ObserverCount int `json:"observer_count"`
}

// Device is the stored state of a single device key.
type Device struct {
	// Using reports whether the device is actively in use.
	Using bool `json:"using"`

	// AppName is the foreground application reported by the device.
	AppName string `json:"app_name"`

	// ShowName is the display name. Never empty.
	ShowName string `json:"show_name"`

	// Media and MediaContent are opaque values passed through unchanged.
	Media        json.RawMessage `json:"media,omitempty"`
	MediaContent json.RawMessage `json:"media_content,omitempty"`

	// Time is the timestamp of the last write to this device key.
	Time time.Time `json:"time"`
}

// DeviceUpdate is a partial [Device]. Nil fields are absent from the update
// and leave the stored value untouched.
type DeviceUpdate struct {
	Using        *bool
	AppName      *string
	ShowName     *string
	Media        json.RawMessage
	MediaContent json.RawMessage
}

// Delta is the canonical, shape-independent description of one update.
type Delta struct {
	// Status is the raw JSON value of the incoming status. Numbers replace the
	// stored status; anything else is ignored by [Store.Apply].
	Status json.RawMessage

	// Devices holds the per-device partial updates.
	Devices map[string]DeviceUpdate

	// Time is the caller-supplied timestamp for device writes. Empty or
	// unparsable values fall back to the wall clock.
	Time string
}

// Empty reports whether the delta carries no status and no device updates.
func (d Delta) Empty() bool {
	return len(d.Status) == 0 && len(d.Devices) == 0
}

// MediaPolicy decides what happens to a device's media fields when an update
// for that device omits them.
type MediaPolicy int

const (
	// MediaPreserve keeps the stored media fields when an update omits them.
	MediaPreserve MediaPolicy = iota

	// MediaClear drops the stored media fields when an update omits them.
	MediaClear
)

// String returns the config name of the policy.
func (p MediaPolicy) String() string {
	switch p {
	case MediaPreserve:
		return "preserve"
	case MediaClear:
		return "clear"
	default:
		return fmt.Sprintf("MediaPolicy(%d)", int(p))
	}
}

// ParseMediaPolicy maps a config name to a [MediaPolicy].
// An empty name selects [MediaPreserve].
func ParseMediaPolicy(name string) (MediaPolicy, error) {
	switch name {
	case "", "preserve":
		return MediaPreserve, nil
	case "clear":
		return MediaClear, nil
	default:
		return MediaPreserve, fmt.Errorf("unknown media policy %q (expected 'preserve' or 'clear')", name)
	}
}

// Store defines the operations on the presence document.
//
// Store implementations must be safe for concurrent access. Each call to
// Apply is a single critical section: concurrent applies are serialized and
// never observe or publish a partial merge.
type Store interface {
	// Apply merges the delta into the document and returns a snapshot of the
	// result.
	Apply(delta Delta) Document

	// Snapshot returns a copy of the current document.
	Snapshot() Document

	// SetObserverCount records the current subscriber count. It does not
	// touch LastUpdated.
	SetObserverCount(n int)
}
