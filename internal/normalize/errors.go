package normalize

import (
	"errors"
	"fmt"
)

// ErrInvalidPayload is matched by every [*InvalidPayloadError] via errors.Is.
var ErrInvalidPayload = errors.New("invalid payload")

// ErrInternal reports an unexpected fault inside the normalizer.
var ErrInternal = errors.New("normalizer internal failure")

// Reason is the machine-readable cause of a rejected payload.
type Reason string

const (
	// ReasonMalformedJSON means the body is not a JSON object.
	ReasonMalformedJSON Reason = "malformed_json"

	// ReasonUnsatisfiableShape means neither the canonical nor the legacy
	// shape could be recognized.
	ReasonUnsatisfiableShape Reason = "unsatisfiable_shape"

	// ReasonIncompleteLegacy means legacy fields were present but id,
	// app_name or a boolean using was missing.
	ReasonIncompleteLegacy Reason = "incomplete_legacy"

	// ReasonInvalidDevice means the device map or one of its entries has the
	// wrong type.
	ReasonInvalidDevice Reason = "invalid_device"

	// ReasonInvalidDeviceQuery means a query-encoded device value could not
	// be decoded.
	ReasonInvalidDeviceQuery Reason = "invalid_device_query"
)

// InvalidPayloadError is the structured rejection returned by [Normalizer].
type InvalidPayloadError struct {
	Reason Reason
	Detail string
}

func (e *InvalidPayloadError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("invalid payload: %s", e.Reason)
	}
	return fmt.Sprintf("invalid payload: %s: %s", e.Reason, e.Detail)
}

// Is lets errors.Is(err, ErrInvalidPayload) match any InvalidPayloadError.
func (e *InvalidPayloadError) Is(target error) bool {
	return target == ErrInvalidPayload
}

func reject(reason Reason, format string, args ...any) error {
	return &InvalidPayloadError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// ReasonOf returns the rejection reason carried by err, or "" when err is not
// an [*InvalidPayloadError].
func ReasonOf(err error) Reason {
	var ipe *InvalidPayloadError
	if errors.As(err, &ipe) {
		return ipe.Reason
	}
	return ""
}
