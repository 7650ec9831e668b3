// Package normalize turns inbound status payloads into canonical deltas.
//
// Three payload shapes are accepted:
//
//   - Canonical: {"status": 1, "device": {"pc": {"using": true, "app_name": "X"}}, "time": "..."}
//   - Legacy: {"id": "pc", "app_name": "X", "using": true} with no status or device
//   - Query-encoded: the canonical or legacy fields as query parameters, with
//     device carried as a JSON string that may be percent-encoded once more
//
// Every input yields either a [Result] or an error matching
// [ErrInvalidPayload]. The normalizer never panics and never touches state.
package normalize
