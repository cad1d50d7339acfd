// Package wallpaper defines the Wallpaper record, its lifecycle states, and
// the state machine that enforces legal transitions between them. The
// machine performs no business logic beyond edge validation — the
// orchestrator and reconciler supply the field patches that ride along with
// each transition.
package wallpaper

import "time"

// UploadState is one of the six lifecycle states a Wallpaper record can be
// in.
type UploadState string

const (
	StateInitiated  UploadState = "initiated"
	StateUploading  UploadState = "uploading"
	StateStored     UploadState = "stored"
	StateProcessing UploadState = "processing"
	StateCompleted  UploadState = "completed"
	StateFailed     UploadState = "failed"
)

// FileType mirrors probe.FileType without importing it, keeping this
// package free of a dependency on probe.
type FileType string

const (
	FileTypeImage FileType = "image"
	FileTypeVideo FileType = "video"
)

// Wallpaper is the primary entity, owned by the metadata store.
type Wallpaper struct {
	ID              string
	UserID          string
	ContentHash     *string
	UploadState     UploadState
	StateChangedAt  time.Time
	UploadAttempts  int
	ProcessingError *string

	FileType      *FileType
	MIMEType      *string
	FileSizeBytes *int64
	Width         *int
	Height        *int
	AspectRatio   *float64

	StorageKey       *string
	StorageBucket    *string
	OriginalFilename *string

	UploadedAt time.Time
	UpdatedAt  time.Time
}

// HasCompleteMetadata reports whether every field invariant 2 requires for
// states {stored, processing, completed} is populated. The reconciler uses
// this as the precondition for republishing an announcement.
func (w *Wallpaper) HasCompleteMetadata() bool {
	return w.FileType != nil &&
		w.MIMEType != nil &&
		w.FileSizeBytes != nil &&
		w.Width != nil &&
		w.Height != nil &&
		w.StorageKey != nil &&
		w.StorageBucket != nil &&
		w.ContentHash != nil
}

// IsTerminal reports whether the record can no longer transition.
func (s UploadState) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}
