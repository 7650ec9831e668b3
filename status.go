package statushub

import (
	"github.com/jpalmerr/statushub/internal/normalize"
	"github.com/jpalmerr/statushub/internal/store"
)

// Document is the shared presence document: a global status code, one entry
// per device key, the time of the last applied update, and the number of
// live observers.
//
// Values handed to callers are deep copies and may be retained or modified
// freely.
type Document = store.Document

// Device is the stored state of a single device key.
type Device = store.Device

// UsingMapping selects how the legacy "using" flag translates to a status
// code. See [WithUsingMapping].
type UsingMapping = normalize.UsingMapping

const (
	// UsingActiveZero maps using=true to status 0 and using=false to 1.
	// This is the default.
	UsingActiveZero = normalize.UsingActiveZero

	// UsingActiveOne maps using=true to status 1 and using=false to 0.
	UsingActiveOne = normalize.UsingActiveOne
)

// MediaPolicy selects how media fields behave when a device update omits
// them. See [WithMediaPolicy].
type MediaPolicy = store.MediaPolicy

const (
	// MediaPreserve keeps the stored media values when an update omits them.
	// This is the default.
	MediaPreserve = store.MediaPreserve

	// MediaClear drops the stored media values when an update omits them.
	MediaClear = store.MediaClear
)
