package objectstore

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/wallpaperhq/ingest/pkg/errtypes"
)

// MemoryStore is an in-process Port implementation for tests.
type MemoryStore struct {
	bucket string
	mu     sync.RWMutex
	blobs  map[string][]byte
}

// NewMemoryStore returns an empty in-memory object store.
func NewMemoryStore(bucket string) *MemoryStore {
	return &MemoryStore{bucket: bucket, blobs: make(map[string][]byte)}
}

// Bucket implements Port.
func (m *MemoryStore) Bucket() string { return m.bucket }

// Put implements Port.
func (m *MemoryStore) Put(_ context.Context, key string, data io.Reader, _ int64, _ string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = b
	return nil
}

// Get implements Port.
func (m *MemoryStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.blobs[key]
	if !ok {
		return nil, errtypes.NotFound(key)
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

// Exists implements Port.
func (m *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.blobs[key]
	return ok, nil
}

// Delete implements Port.
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, key)
	return nil
}

// List implements Port.
func (m *MemoryStore) List(_ context.Context, prefix string) ([]ObjectInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ObjectInfo
	for k, v := range m.blobs {
		if strings.HasPrefix(k, prefix) {
			out = append(out, ObjectInfo{Key: k, Size: int64(len(v))})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
