package metadatastore

import (
	"context"
	"sync"

	"github.com/wallpaperhq/ingest/pkg/clock"
	"github.com/wallpaperhq/ingest/pkg/errtypes"
	"github.com/wallpaperhq/ingest/pkg/wallpaper"
)

// MemoryStore is an in-process Port implementation for tests. It applies
// the same optimistic compare-and-swap discipline as the SQL
// implementation so tests exercise real concurrency semantics, not a
// simplified stand-in.
type MemoryStore struct {
	clock clock.Clock
	mu    sync.Mutex
	rows  map[string]*wallpaper.Wallpaper
}

// NewMemoryStore returns an empty in-memory metadata store.
func NewMemoryStore(c clock.Clock) *MemoryStore {
	return &MemoryStore{clock: c, rows: make(map[string]*wallpaper.Wallpaper)}
}

// InsertIntent implements Port.
func (m *MemoryStore) InsertIntent(_ context.Context, w *wallpaper.Wallpaper) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.rows[w.ID]; exists {
		return errtypes.AlreadyExists(w.ID)
	}
	now := m.clock.Now()
	cp := *w
	cp.UploadState = wallpaper.StateInitiated
	cp.UploadAttempts = 0
	cp.StateChangedAt = now
	cp.UploadedAt = now
	cp.UpdatedAt = now
	m.rows[w.ID] = &cp
	return nil
}

// Get implements Port.
func (m *MemoryStore) Get(_ context.Context, id string) (*wallpaper.Wallpaper, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, errtypes.NotFound(id)
	}
	cp := *row
	return &cp, nil
}

// FindActiveByUserAndHash implements Port.
func (m *MemoryStore) FindActiveByUserAndHash(_ context.Context, userID, contentHash string) (*wallpaper.Wallpaper, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.UserID != userID || row.ContentHash == nil || *row.ContentHash != contentHash {
			continue
		}
		if !isActiveState(row.UploadState) {
			continue
		}
		cp := *row
		return &cp, nil
	}
	return nil, errtypes.NotFound("no active record for user+hash")
}

// GetCurrentState implements Port.
func (m *MemoryStore) GetCurrentState(_ context.Context, id string) (wallpaper.UploadState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return "", errtypes.NotFound(id)
	}
	return row.UploadState, nil
}

// Transition implements Port.
func (m *MemoryStore) Transition(_ context.Context, id string, fromState, newState wallpaper.UploadState, patch Patch) (*wallpaper.Wallpaper, error) {
	if err := wallpaper.ValidateTransition(fromState, newState); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.rows[id]
	if !ok {
		return nil, errtypes.NotFound(id)
	}
	if row.UploadState != fromState {
		return nil, errtypes.ConcurrentTransition(id)
	}

	if newState == wallpaper.StateStored && row.ContentHash != nil {
		for otherID, other := range m.rows {
			if otherID == id || other.UserID != row.UserID || other.ContentHash == nil {
				continue
			}
			if *other.ContentHash == *row.ContentHash && isActiveState(other.UploadState) {
				return nil, errtypes.AlreadyExists("active record " + otherID + " already holds content hash for this user")
			}
		}
	}

	row.UploadState = newState
	row.StateChangedAt = m.clock.Now()
	row.UpdatedAt = row.StateChangedAt
	applyPatch(row, patch)

	cp := *row
	return &cp, nil
}

// IncrementAttempts implements Port.
func (m *MemoryStore) IncrementAttempts(_ context.Context, id string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return 0, errtypes.NotFound(id)
	}
	row.UploadAttempts++
	row.UpdatedAt = m.clock.Now()
	return row.UploadAttempts, nil
}

// List implements Port.
func (m *MemoryStore) List(_ context.Context, filter ListFilter) ([]*wallpaper.Wallpaper, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*wallpaper.Wallpaper
	for _, row := range m.rows {
		if row.UploadState != filter.State {
			continue
		}
		if !row.StateChangedAt.Before(filter.OlderThan) {
			continue
		}
		if filter.RequireFull && !row.HasCompleteMetadata() {
			continue
		}
		cp := *row
		out = append(out, &cp)
	}
	return out, nil
}

// Delete implements Port.
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, id)
	return nil
}

// Close implements Port.
func (m *MemoryStore) Close() error { return nil }

func isActiveState(s wallpaper.UploadState) bool {
	return s == wallpaper.StateStored || s == wallpaper.StateProcessing || s == wallpaper.StateCompleted
}

func applyPatch(row *wallpaper.Wallpaper, p Patch) {
	if p.ContentHash != nil {
		row.ContentHash = p.ContentHash
	}
	if p.ProcessingError != nil {
		row.ProcessingError = p.ProcessingError
	}
	if p.FileType != nil {
		row.FileType = p.FileType
	}
	if p.MIMEType != nil {
		row.MIMEType = p.MIMEType
	}
	if p.FileSizeBytes != nil {
		row.FileSizeBytes = p.FileSizeBytes
	}
	if p.Width != nil {
		row.Width = p.Width
	}
	if p.Height != nil {
		row.Height = p.Height
	}
	if p.AspectRatio != nil {
		row.AspectRatio = p.AspectRatio
	}
	if p.StorageKey != nil {
		row.StorageKey = p.StorageKey
	}
	if p.StorageBucket != nil {
		row.StorageBucket = p.StorageBucket
	}
	if p.OriginalFilename != nil {
		row.OriginalFilename = p.OriginalFilename
	}
}
