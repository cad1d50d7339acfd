package wallpaper

import (
	"fmt"

	"github.com/wallpaperhq/ingest/pkg/errtypes"
)

// transitions is the allowed-edge table from spec.md §4.1. Any edge not
// listed here fails with errtypes.InvalidStateTransition.
var transitions = map[UploadState]map[UploadState]bool{
	StateInitiated:  {StateUploading: true, StateFailed: true},
	StateUploading:  {StateStored: true, StateFailed: true},
	StateStored:     {StateProcessing: true, StateFailed: true},
	StateProcessing: {StateCompleted: true, StateFailed: true},
	StateCompleted:  {},
	StateFailed:     {},
}

// ValidateTransition reports whether from -> to is a legal edge. It
// performs no I/O and carries no notion of "current" state beyond the two
// arguments — the caller (the metadata store's Transition implementation)
// is responsible for loading the current state and writing the new one
// atomically.
func ValidateTransition(from, to UploadState) error {
	edges, known := transitions[from]
	if !known {
		return errtypes.InvalidStateTransition(fmt.Sprintf("unknown state %q", from))
	}
	if !edges[to] {
		return errtypes.InvalidStateTransition(fmt.Sprintf("%s -> %s", from, to))
	}
	return nil
}
