package objectstore

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wallpaperhq/ingest/pkg/errtypes"
)

func TestMemoryStore_PutGetRoundtrip(t *testing.T) {
	s := NewMemoryStore("wallpapers")
	ctx := context.Background()
	data := []byte("bytes")

	require.NoError(t, s.Put(ctx, "id1/original.jpg", bytes.NewReader(data), int64(len(data)), "image/jpeg"))

	r, err := s.Get(ctx, "id1/original.jpg")
	require.NoError(t, err)
	defer r.Close()
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestMemoryStore_GetMissingReturnsNotFound(t *testing.T) {
	s := NewMemoryStore("wallpapers")
	_, err := s.Get(context.Background(), "missing")
	assert.Error(t, err)
	var nf errtypes.IsNotFound
	assert.ErrorAs(t, err, &nf)
}

func TestMemoryStore_Exists(t *testing.T) {
	s := NewMemoryStore("wallpapers")
	ctx := context.Background()
	ok, err := s.Exists(ctx, "id1/original.jpg")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, "id1/original.jpg", bytes.NewReader([]byte("x")), 1, "image/jpeg"))
	ok, err = s.Exists(ctx, "id1/original.jpg")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryStore_DeleteIsIdempotent(t *testing.T) {
	s := NewMemoryStore("wallpapers")
	ctx := context.Background()
	require.NoError(t, s.Delete(ctx, "never-existed"))

	require.NoError(t, s.Put(ctx, "id1/original.jpg", bytes.NewReader([]byte("x")), 1, "image/jpeg"))
	require.NoError(t, s.Delete(ctx, "id1/original.jpg"))
	ok, err := s.Exists(ctx, "id1/original.jpg")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_ListByPrefix(t *testing.T) {
	s := NewMemoryStore("wallpapers")
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "id1/original.jpg", bytes.NewReader([]byte("a")), 1, "image/jpeg"))
	require.NoError(t, s.Put(ctx, "id1/thumb.jpg", bytes.NewReader([]byte("bb")), 2, "image/jpeg"))
	require.NoError(t, s.Put(ctx, "id2/original.png", bytes.NewReader([]byte("ccc")), 3, "image/png"))

	objs, err := s.List(ctx, "id1/")
	require.NoError(t, err)
	require.Len(t, objs, 2)
	assert.Equal(t, "id1/original.jpg", objs[0].Key)
	assert.Equal(t, "id1/thumb.jpg", objs[1].Key)

	all, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
