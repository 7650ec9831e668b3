package normalize

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/jpalmerr/statushub/internal/store"
)

// Shape identifies which inbound payload form produced a [Result].
type Shape int

const (
	// ShapeCanonical is a JSON body with status and/or device.
	ShapeCanonical Shape = iota + 1

	// ShapeLegacy is a flat single-device payload keyed by id.
	ShapeLegacy

	// ShapeQueryEncoded is the canonical form carried in query parameters.
	ShapeQueryEncoded
)

func (s Shape) String() string {
	switch s {
	case ShapeCanonical:
		return "canonical"
	case ShapeLegacy:
		return "legacy"
	case ShapeQueryEncoded:
		return "query"
	default:
		return "unknown"
	}
}

// UsingMapping decides how a legacy payload's using flag becomes a status code.
type UsingMapping int

const (
	// UsingActiveZero maps using=true to status 0 and using=false to status 1.
	UsingActiveZero UsingMapping = iota

	// UsingActiveOne maps using=true to status 1 and using=false to status 0.
	UsingActiveOne
)

// StatusFor returns the status code for the given using flag.
func (m UsingMapping) StatusFor(using bool) int {
	if m == UsingActiveOne {
		if using {
			return 1
		}
		return 0
	}
	if using {
		return 0
	}
	return 1
}

func (m UsingMapping) String() string {
	switch m {
	case UsingActiveZero:
		return "active_zero"
	case UsingActiveOne:
		return "active_one"
	default:
		return fmt.Sprintf("UsingMapping(%d)", int(m))
	}
}

// ParseUsingMapping maps a config name to a [UsingMapping].
// An empty name selects [UsingActiveZero].
func ParseUsingMapping(name string) (UsingMapping, error) {
	switch name {
	case "", "active_zero":
		return UsingActiveZero, nil
	case "active_one":
		return UsingActiveOne, nil
	default:
		return UsingActiveZero, fmt.Errorf("unknown legacy using mapping %q (expected 'active_zero' or 'active_one')", name)
	}
}

// Result is a successfully normalized payload.
type Result struct {
	Shape Shape
	Delta store.Delta
}

// Normalizer converts raw payloads into canonical deltas.
//
// The zero value is ready to use and applies [UsingActiveZero].
type Normalizer struct {
	Using UsingMapping
}

// wireDevice is the JSON form of one device entry.
type wireDevice struct {
	Using        *bool           `json:"using"`
	AppName      *string         `json:"app_name"`
	ShowName     *string         `json:"show_name"`
	Media        json.RawMessage `json:"media"`
	MediaContent json.RawMessage `json:"media_content"`
}

func (w wireDevice) update() store.DeviceUpdate {
	return store.DeviceUpdate{
		Using:        w.Using,
		AppName:      w.AppName,
		ShowName:     w.ShowName,
		Media:        w.Media,
		MediaContent: w.MediaContent,
	}
}

// Body normalizes a JSON request body in canonical or legacy shape.
//
// A canonical body is rejected only when status is missing or non-numeric
// and device is missing or not an object at the same time. A present but
// non-numeric status alongside a valid device passes through and is ignored
// when applied.
func (n Normalizer) Body(body []byte) (res Result, err error) {
	defer guard(&err)

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return Result{}, reject(ReasonMalformedJSON, "%v", err)
	}
	if fields == nil {
		return Result{}, reject(ReasonMalformedJSON, "body must be a JSON object")
	}

	statusRaw, hasStatus := present(fields, "status")
	deviceRaw, hasDevice := present(fields, "device")

	if !hasStatus && !hasDevice {
		if hasLegacyField(fields) {
			return n.legacyFromBody(fields)
		}
		return Result{}, reject(ReasonUnsatisfiableShape, "status or device is required")
	}

	numeric := hasStatus && isNumber(statusRaw)
	object := hasDevice && isObject(deviceRaw)
	if !numeric && !object {
		return Result{}, reject(ReasonUnsatisfiableShape, "status must be a number or device must be an object")
	}
	if hasDevice && !object {
		return Result{}, reject(ReasonInvalidDevice, "device must be an object")
	}

	delta := store.Delta{Time: timeValue(fields["time"])}
	if hasStatus {
		delta.Status = statusRaw
	}
	if object {
		devices, err := decodeDevices(deviceRaw, ReasonInvalidDevice)
		if err != nil {
			return Result{}, err
		}
		delta.Devices = devices
	}

	return Result{Shape: ShapeCanonical, Delta: delta}, nil
}

// Query normalizes query-string parameters.
//
// The device parameter is parsed as JSON, then once more after
// percent-decoding. A device value that fails both is rejected. A status that
// is not a number is passed through and ignored when applied. Parameters with
// no update fields produce an empty delta.
func (n Normalizer) Query(values url.Values) (res Result, err error) {
	defer guard(&err)

	hasStatus := values.Has("status")
	hasDevice := values.Has("device")

	if !hasStatus && !hasDevice && (values.Has("id") || values.Has("app_name") || values.Has("using")) {
		return n.legacyFromQuery(values)
	}

	delta := store.Delta{Time: values.Get("time")}
	if hasStatus {
		delta.Status = queryStatus(values.Get("status"))
	}
	if hasDevice {
		devices, err := decodeDeviceParam(values.Get("device"))
		if err != nil {
			return Result{}, err
		}
		delta.Devices = devices
	}

	return Result{Shape: ShapeQueryEncoded, Delta: delta}, nil
}

func (n Normalizer) legacyFromBody(fields map[string]json.RawMessage) (Result, error) {
	key, ok := legacyKey(fields["id"])
	if !ok {
		return Result{}, reject(ReasonIncompleteLegacy, "id must be a non-empty string")
	}

	var appName string
	if err := json.Unmarshal(fields["app_name"], &appName); err != nil || appName == "" {
		return Result{}, reject(ReasonIncompleteLegacy, "app_name must be a non-empty string")
	}

	var using bool
	if raw, ok := present(fields, "using"); !ok || json.Unmarshal(raw, &using) != nil {
		return Result{}, reject(ReasonIncompleteLegacy, "using must be a boolean")
	}

	var showName string
	if raw, ok := present(fields, "show_name"); ok {
		// a non-string show_name falls back to the id
		_ = json.Unmarshal(raw, &showName)
	}

	mediaContent, _ := present(fields, "media_content")
	media, _ := present(fields, "media")

	delta := n.legacyDelta(key, appName, using, showName, media, mediaContent)
	delta.Time = timeValue(fields["time"])
	return Result{Shape: ShapeLegacy, Delta: delta}, nil
}

func (n Normalizer) legacyFromQuery(values url.Values) (Result, error) {
	key := values.Get("id")
	if key == "" {
		return Result{}, reject(ReasonIncompleteLegacy, "id must be a non-empty string")
	}

	appName := values.Get("app_name")
	if appName == "" {
		return Result{}, reject(ReasonIncompleteLegacy, "app_name must be a non-empty string")
	}

	using, err := strconv.ParseBool(values.Get("using"))
	if err != nil {
		return Result{}, reject(ReasonIncompleteLegacy, "using must be a boolean")
	}

	var media, mediaContent json.RawMessage
	if values.Has("media") {
		media, _ = json.Marshal(values.Get("media"))
	}
	if values.Has("media_content") {
		mediaContent, _ = json.Marshal(values.Get("media_content"))
	}

	delta := n.legacyDelta(key, appName, using, values.Get("show_name"), media, mediaContent)
	delta.Time = values.Get("time")
	return Result{Shape: ShapeLegacy, Delta: delta}, nil
}

// legacyDelta builds the single-device delta for a legacy payload. The media
// field collapses to a boolean: true when media or media_content is truthy.
func (n Normalizer) legacyDelta(key, appName string, using bool, showName string, media, mediaContent json.RawMessage) store.Delta {
	if showName == "" {
		showName = key
	}

	mediaFlag := json.RawMessage("false")
	if truthy(media) || truthy(mediaContent) {
		mediaFlag = json.RawMessage("true")
	}

	update := store.DeviceUpdate{
		Using:    &using,
		AppName:  &appName,
		ShowName: &showName,
		Media:    mediaFlag,
	}
	if len(mediaContent) > 0 {
		update.MediaContent = mediaContent
	}

	return store.Delta{
		Status:  json.RawMessage(strconv.Itoa(n.Using.StatusFor(using))),
		Devices: map[string]store.DeviceUpdate{key: update},
	}
}

// decodeDeviceParam parses a query-encoded device value, retrying once after
// percent-decoding.
func decodeDeviceParam(param string) (map[string]store.DeviceUpdate, error) {
	devices, err := decodeDevices([]byte(param), ReasonInvalidDeviceQuery)
	if err == nil {
		return devices, nil
	}

	unescaped, uerr := url.PathUnescape(param)
	if uerr != nil || unescaped == param {
		return nil, err
	}
	return decodeDevices([]byte(unescaped), ReasonInvalidDeviceQuery)
}

// decodeDevices parses a device map. A JSON null yields no devices.
func decodeDevices(raw []byte, reason Reason) (map[string]store.DeviceUpdate, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "null" {
		return nil, nil
	}
	if !isObject(json.RawMessage(trimmed)) {
		return nil, reject(reason, "device must be a JSON object")
	}

	var entries map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &entries); err != nil {
		return nil, reject(reason, "device must be a JSON object: %v", err)
	}

	devices := make(map[string]store.DeviceUpdate, len(entries))
	for key, entry := range entries {
		if !isObject(entry) {
			return nil, reject(reason, "device %q must be an object", key)
		}
		var w wireDevice
		if err := json.Unmarshal(entry, &w); err != nil {
			return nil, reject(reason, "device %q: %v", key, err)
		}
		devices[key] = w.update()
	}
	return devices, nil
}

// queryStatus converts a status parameter to raw JSON. Numbers become JSON
// numbers; anything else becomes a JSON string that the store will ignore.
func queryStatus(param string) json.RawMessage {
	param = strings.TrimSpace(param)
	if param == "" {
		return nil
	}
	if f, err := strconv.ParseFloat(param, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return json.RawMessage(strconv.FormatFloat(f, 'f', -1, 64))
	}
	quoted, _ := json.Marshal(param)
	return quoted
}

// guard converts a panic into ErrInternal so callers always get a typed result.
func guard(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%w: %v", ErrInternal, r)
	}
}
