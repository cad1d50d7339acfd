package probe

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 0, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func TestProbe_PNG(t *testing.T) {
	data := encodePNG(t, 64, 32)
	result, err := Probe(data)
	require.NoError(t, err)
	assert.Equal(t, FileTypeImage, result.FileType)
	assert.Equal(t, "image/png", result.MIMEType)
	assert.Equal(t, "png", result.Extension)
	assert.Equal(t, 64, result.Width)
	assert.Equal(t, 32, result.Height)
}

func TestProbe_JPEG(t *testing.T) {
	data := encodeJPEG(t, 100, 50)
	result, err := Probe(data)
	require.NoError(t, err)
	assert.Equal(t, FileTypeImage, result.FileType)
	assert.Equal(t, "image/jpeg", result.MIMEType)
	assert.Equal(t, "jpg", result.Extension)
	assert.Equal(t, 100, result.Width)
	assert.Equal(t, 50, result.Height)
}

func TestProbe_UnrecognizedFormat(t *testing.T) {
	result, err := Probe([]byte("not an image, just plain text bytes"))
	require.NoError(t, err)
	assert.Equal(t, FileType(""), result.FileType)
	assert.NotEmpty(t, result.MIMEType)
}

func TestProbe_IgnoresDeclaredExtension(t *testing.T) {
	// A PNG byte stream claiming (via its test name / caller intent) to be a
	// JPEG should still be sniffed as image/png, since Probe never looks at
	// a filename or a declared header — only the bytes.
	data := encodePNG(t, 10, 10)
	result, err := Probe(data)
	require.NoError(t, err)
	assert.Equal(t, "image/png", result.MIMEType)
}

func TestAspectRatio(t *testing.T) {
	assert.InDelta(t, 1.7778, AspectRatio(1920, 1080), 0.0001)
	assert.Equal(t, 0.0, AspectRatio(100, 0))
	assert.Equal(t, 1.0, AspectRatio(100, 100))
}

func TestProbeReader_BoundsBuffer(t *testing.T) {
	data := encodePNG(t, 200, 200)
	_, err := ProbeReader(bytes.NewReader(data), int64(len(data)-1))
	assert.Error(t, err)

	result, err := ProbeReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	assert.Equal(t, 200, result.Width)
}
