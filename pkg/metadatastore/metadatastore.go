// Package metadatastore ports transactional CRUD on the wallpapers table,
// including the state machine's atomic transition operation.
package metadatastore

import (
	"context"
	"time"

	"github.com/wallpaperhq/ingest/pkg/wallpaper"
)

// Patch carries the optional field updates that ride along with a
// transition or a direct update. Nil fields are left untouched.
type Patch struct {
	ContentHash      *string
	ProcessingError  *string
	FileType         *wallpaper.FileType
	MIMEType         *string
	FileSizeBytes    *int64
	Width            *int
	Height           *int
	AspectRatio      *float64
	StorageKey       *string
	StorageBucket    *string
	OriginalFilename *string
}

// ListFilter selects records for the reconciler's aging scans.
type ListFilter struct {
	State       wallpaper.UploadState
	OlderThan   time.Time // stateChangedAt < OlderThan
	RequireFull bool      // only records with complete metadata (invariant 2 fields)
}

// Port is the interface the orchestrator and reconciler depend on.
type Port interface {
	// InsertIntent writes the write-ahead log entry: a new record in
	// StateInitiated with uploadAttempts=0.
	InsertIntent(ctx context.Context, w *wallpaper.Wallpaper) error

	// Get loads a record by id.
	Get(ctx context.Context, id string) (*wallpaper.Wallpaper, error)

	// FindActiveByUserAndHash looks up (userId, contentHash) among records
	// whose state is in {stored, processing, completed} — the dedup query.
	FindActiveByUserAndHash(ctx context.Context, userID, contentHash string) (*wallpaper.Wallpaper, error)

	// GetCurrentState returns just the state column, for callers that don't
	// need the full row.
	GetCurrentState(ctx context.Context, id string) (wallpaper.UploadState, error)

	// Transition atomically loads the current state, validates the edge via
	// wallpaper.ValidateTransition, and writes newState, stateChangedAt=now,
	// and patch in a single update. It fails with
	// errtypes.ConcurrentTransition if another writer changed the state
	// first, and errtypes.InvalidStateTransition if the edge is illegal.
	Transition(ctx context.Context, id string, fromState, newState wallpaper.UploadState, patch Patch) (*wallpaper.Wallpaper, error)

	// IncrementAttempts bumps uploadAttempts without changing state, used by
	// the reconciler to track retry counts across reconciliation passes.
	IncrementAttempts(ctx context.Context, id string) (int, error)

	// List returns records matching filter, for the reconciler's scans.
	List(ctx context.Context, filter ListFilter) ([]*wallpaper.Wallpaper, error)

	// Delete removes a record outright. Only ever called by the reconciler's
	// orphan-intent sweep against records in StateInitiated.
	Delete(ctx context.Context, id string) error

	// Close releases any held resources (connection pool, etc).
	Close() error
}
