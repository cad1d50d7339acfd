// Package hashing computes the content-addressed hash used for per-user
// deduplication.
package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
)

// SHA256Hex streams r through SHA-256 and returns the lowercase hex digest.
// It does not buffer the whole stream in memory.
func SHA256Hex(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// TeeHasher wraps a reader so bytes read through it are simultaneously
// hashed, letting a caller compute the content hash and forward the same
// bytes to another sink (e.g. the object store) in a single pass.
type TeeHasher struct {
	r io.Reader
	h interface {
		io.Writer
		Sum(b []byte) []byte
	}
}

// NewTeeHasher returns a reader that hashes everything read from src.
func NewTeeHasher(src io.Reader) *TeeHasher {
	h := sha256.New()
	return &TeeHasher{r: io.TeeReader(src, h), h: h}
}

// Read implements io.Reader.
func (t *TeeHasher) Read(p []byte) (int, error) { return t.r.Read(p) }

// SumHex returns the hex digest of everything read so far.
func (t *TeeHasher) SumHex() string {
	return hex.EncodeToString(t.h.Sum(nil))
}
