// Package store owns the canonical presence document.
//
// This package is internal to statushub. It holds the single, process-wide
// [Document] describing which devices are active, and applies canonical
// [Delta] values to it.
//
// The main components are:
//
//   - [Store]: Interface defining apply and snapshot operations
//   - [MemoryStore]: In-memory implementation guarded by a mutex
//   - [Document], [Device]: JSON representation of the presence state
//   - [Delta], [DeviceUpdate]: Canonical update produced by the normalizer
//
// Device updates are shallow merges: fields present in the update overwrite,
// absent fields are kept. The display name falls back from the incoming value
// to the stored value, then to the device key, then to "Unknown".
//
// State is in memory only and starts from zero on every process start.
package store
