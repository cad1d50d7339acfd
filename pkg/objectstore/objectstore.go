// Package objectstore ports the bucket operations the ingestion core needs:
// put, get, list, delete, and existence checks, over a content-addressed
// key layout.
package objectstore

import (
	"context"
	"io"
)

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key  string
	Size int64
}

// Port is the interface the orchestrator and reconciler depend on. Concrete
// implementations (S3-compatible, in-memory) live in sibling files.
type Port interface {
	// Put uploads size bytes of data under key with the given content type.
	Put(ctx context.Context, key string, data io.Reader, size int64, contentType string) error
	// Get returns a reader for the object at key. Callers must Close it.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Exists reports whether an object exists at key.
	Exists(ctx context.Context, key string) (bool, error)
	// Delete removes the object at key. Deleting a missing key is not an
	// error.
	Delete(ctx context.Context, key string) error
	// List returns every object whose key has the given prefix.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	// Bucket returns the configured bucket name, for metadata population.
	Bucket() string
}
