package wallpaper

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wallpaperhq/ingest/pkg/errtypes"
)

func TestValidateTransition(t *testing.T) {
	tests := []struct {
		from    UploadState
		to      UploadState
		wantErr bool
	}{
		{StateInitiated, StateUploading, false},
		{StateInitiated, StateFailed, false},
		{StateInitiated, StateStored, true},
		{StateInitiated, StateProcessing, true},
		{StateInitiated, StateCompleted, true},
		{StateUploading, StateStored, false},
		{StateUploading, StateFailed, false},
		{StateUploading, StateInitiated, true},
		{StateUploading, StateProcessing, true},
		{StateStored, StateProcessing, false},
		{StateStored, StateFailed, false},
		{StateStored, StateUploading, true},
		{StateProcessing, StateCompleted, false},
		{StateProcessing, StateFailed, false},
		{StateProcessing, StateStored, true},
		{StateCompleted, StateProcessing, true},
		{StateCompleted, StateFailed, true},
		{StateFailed, StateInitiated, true},
		{UploadState("bogus"), StateInitiated, true},
	}

	for _, tt := range tests {
		err := ValidateTransition(tt.from, tt.to)
		if tt.wantErr {
			assert.Error(t, err, "%s -> %s", tt.from, tt.to)
			var ist errtypes.IsInvalidStateTransition
			assert.ErrorAs(t, err, &ist)
		} else {
			assert.NoError(t, err, "%s -> %s", tt.from, tt.to)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, StateCompleted.IsTerminal())
	assert.True(t, StateFailed.IsTerminal())
	assert.False(t, StateInitiated.IsTerminal())
	assert.False(t, StateUploading.IsTerminal())
	assert.False(t, StateStored.IsTerminal())
	assert.False(t, StateProcessing.IsTerminal())
}

func TestHasCompleteMetadata(t *testing.T) {
	w := &Wallpaper{}
	assert.False(t, w.HasCompleteMetadata())

	ft := FileTypeImage
	mt := "image/jpeg"
	var size int64 = 1024
	width, height := 1920, 1080
	key, bucket, hash := "id/original.jpg", "wallpapers", "deadbeef"
	w = &Wallpaper{
		FileType:      &ft,
		MIMEType:      &mt,
		FileSizeBytes: &size,
		Width:         &width,
		Height:        &height,
		StorageKey:    &key,
		StorageBucket: &bucket,
		ContentHash:   &hash,
	}
	assert.True(t, w.HasCompleteMetadata())
}
