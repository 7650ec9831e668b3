package normalize

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// legacyFields are the keys that mark a body as a legacy payload attempt.
var legacyFields = []string{"id", "app_name", "using"}

// present returns the raw value for key, treating JSON null as absent.
func present(fields map[string]json.RawMessage, key string) (json.RawMessage, bool) {
	raw, ok := fields[key]
	if !ok {
		return nil, false
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, false
	}
	return trimmed, true
}

func hasLegacyField(fields map[string]json.RawMessage) bool {
	for _, key := range legacyFields {
		if _, ok := present(fields, key); ok {
			return true
		}
	}
	return false
}

// legacyKey accepts a non-empty string id, or a number rendered as text.
func legacyKey(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", false
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, s != ""
	}
	if isNumber(raw) {
		return string(raw), true
	}
	return "", false
}

func isNumber(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return false
	}
	if c := raw[0]; c != '-' && (c < '0' || c > '9') {
		return false
	}
	return json.Valid(raw)
}

func isObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}

// timeValue renders a time field as text. Strings are unquoted, numbers kept
// verbatim, anything else is dropped.
func timeValue(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	if isNumber(raw) {
		return string(raw)
	}
	return ""
}

// truthy mirrors loose truthiness for opaque media values: null, false, 0 and
// the empty string are false.
func truthy(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	switch string(raw) {
	case "", "null", "false", `""`:
		return false
	}
	if isNumber(raw) {
		f, err := strconv.ParseFloat(string(raw), 64)
		return err != nil || f != 0
	}
	return true
}
