// Package errtypes contains the typed errors shared across the ingestion
// core. Each is a string type implementing error plus a small marker
// interface, so callers can type-switch instead of comparing strings or
// sentinel values.
package errtypes

import "fmt"

// NotFound is returned when a resource (record, object) does not exist.
type NotFound string

func (e NotFound) Error() string { return "not found: " + string(e) }

// IsNotFound implements the IsNotFound marker interface.
func (e NotFound) IsNotFound() {}

// AlreadyExists is returned when a uniqueness constraint would be violated.
type AlreadyExists string

func (e AlreadyExists) Error() string { return "already exists: " + string(e) }

// IsAlreadyExists implements the IsAlreadyExists marker interface.
func (e AlreadyExists) IsAlreadyExists() {}

// MissingFile is returned when no file bytes were supplied.
type MissingFile string

func (e MissingFile) Error() string { return "missing file: " + string(e) }

// IsMissingFile implements the IsMissingFile marker interface.
func (e MissingFile) IsMissingFile() {}

// MissingUserID is returned when no userId was supplied.
type MissingUserID string

func (e MissingUserID) Error() string { return "missing user id: " + string(e) }

// IsMissingUserID implements the IsMissingUserID marker interface.
func (e MissingUserID) IsMissingUserID() {}

// InvalidFormat is returned when the probed content type is not allowed by
// policy.
type InvalidFormat string

func (e InvalidFormat) Error() string { return "invalid format: " + string(e) }

// IsInvalidFormat implements the IsInvalidFormat marker interface.
func (e InvalidFormat) IsInvalidFormat() {}

// FileTooLarge is returned when the byte size exceeds the policy cap for the
// detected category.
type FileTooLarge string

func (e FileTooLarge) Error() string { return "file too large: " + string(e) }

// IsFileTooLarge implements the IsFileTooLarge marker interface.
func (e FileTooLarge) IsFileTooLarge() {}

// DimensionsOutOfBounds is returned when image width/height fall outside the
// policy's configured min/max.
type DimensionsOutOfBounds string

func (e DimensionsOutOfBounds) Error() string { return "dimensions out of bounds: " + string(e) }

// IsDimensionsOutOfBounds implements the marker interface.
func (e DimensionsOutOfBounds) IsDimensionsOutOfBounds() {}

// InvalidStateTransition is returned by the state machine when an edge is
// not in the allowed transition table.
type InvalidStateTransition string

func (e InvalidStateTransition) Error() string { return "invalid state transition: " + string(e) }

// IsInvalidStateTransition implements the marker interface.
func (e InvalidStateTransition) IsInvalidStateTransition() {}

// ConcurrentTransition is returned when a transition loses a race against
// another writer: the row it tried to update no longer matched the expected
// current state.
type ConcurrentTransition string

func (e ConcurrentTransition) Error() string { return "concurrent transition: " + string(e) }

// IsConcurrentTransition implements the marker interface.
func (e ConcurrentTransition) IsConcurrentTransition() {}

// RateLimited is returned when a user's request would exceed the configured
// window maximum.
type RateLimited struct {
	UserID     string
	RetryAfter int64 // seconds
	Reset      int64 // unix seconds
	Max        int
}

func (e RateLimited) Error() string {
	return fmt.Sprintf("rate limited: user %s, retry after %ds", e.UserID, e.RetryAfter)
}

// IsRateLimited implements the IsRateLimited marker interface.
func (e RateLimited) IsRateLimited() {}

// Markers, one per type above, so callers can do:
//
//	var nf errtypes.IsNotFound
//	if errors.As(err, &nf) { ... }
type (
	IsNotFound               interface{ IsNotFound() }
	IsAlreadyExists          interface{ IsAlreadyExists() }
	IsMissingFile            interface{ IsMissingFile() }
	IsMissingUserID          interface{ IsMissingUserID() }
	IsInvalidFormat          interface{ IsInvalidFormat() }
	IsFileTooLarge           interface{ IsFileTooLarge() }
	IsDimensionsOutOfBounds  interface{ IsDimensionsOutOfBounds() }
	IsInvalidStateTransition interface{ IsInvalidStateTransition() }
	IsConcurrentTransition   interface{ IsConcurrentTransition() }
	IsRateLimited            interface{ IsRateLimited() }
)
