package hashing

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSHA256Hex(t *testing.T) {
	data := []byte("wallpaper bytes")
	want := sha256.Sum256(data)

	got, err := SHA256Hex(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(want[:]), got)
}

func TestSHA256Hex_Deterministic(t *testing.T) {
	data := []byte("identical content")
	a, err := SHA256Hex(bytes.NewReader(data))
	require.NoError(t, err)
	b, err := SHA256Hex(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestTeeHasher_MatchesDirectHash(t *testing.T) {
	data := []byte("some wallpaper content to stream through")
	want := sha256.Sum256(data)

	th := NewTeeHasher(bytes.NewReader(data))
	n, err := io.Copy(io.Discard, th)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), n)
	assert.Equal(t, hex.EncodeToString(want[:]), th.SumHex())
}
