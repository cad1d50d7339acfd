// Package probe detects the real MIME type of uploaded bytes and, for
// images, extracts pixel dimensions — never trusting the filename or a
// client-declared Content-Type. It also refuses to fully decode images
// whose declared dimensions would make them decompression bombs.
package probe

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/webp"
)

// MaxPixels bounds width*height for any image this probe will decode the
// header of. Anything beyond this is refused before an attacker can force a
// large allocation via a tiny, highly-compressed file.
const MaxPixels = 100_000_000 // e.g. ~13300x7500

// FileType mirrors the Wallpaper record's fileType enum.
type FileType string

const (
	FileTypeImage FileType = "image"
	FileTypeVideo FileType = "video"
)

// Result is everything the orchestrator needs out of a probe.
type Result struct {
	FileType  FileType
	MIMEType  string
	Extension string // without leading dot: jpg, png, webp
	Width     int
	Height    int
}

// ErrDecompressionBomb is returned when the decoded header implies a pixel
// count over MaxPixels.
type ErrDecompressionBomb struct {
	Width, Height int
}

func (e ErrDecompressionBomb) Error() string {
	return fmt.Sprintf("refusing to decode %dx%d image: exceeds pixel budget", e.Width, e.Height)
}

var imageMIMEExt = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
}

// Probe sniffs data's real content type and, if it is a supported image
// format, decodes just enough of the header to obtain width/height.
func Probe(data []byte) (Result, error) {
	m := mimetype.Detect(data)
	mt := m.String()
	// mimetype appends a charset parameter for some text-like detections;
	// strip it so downstream comparisons are exact.
	if i := bytes.IndexByte([]byte(mt), ';'); i >= 0 {
		mt = mt[:i]
	}

	if isVideoMIME(mt) {
		return Result{FileType: FileTypeVideo, MIMEType: mt}, nil
	}

	ext, ok := imageMIMEExt[mt]
	if !ok {
		return Result{MIMEType: mt}, nil
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Result{}, fmt.Errorf("decoding image header: %w", err)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return Result{}, ErrDecompressionBomb{Width: cfg.Width, Height: cfg.Height}
	}

	return Result{
		FileType:  FileTypeImage,
		MIMEType:  mt,
		Extension: ext,
		Width:     cfg.Width,
		Height:    cfg.Height,
	}, nil
}

// ProbeReader is Probe over a streaming source, for the reconciler's
// re-probe of an already-stored object. It reads the whole stream because
// image.DecodeConfig needs random access into the header only, but the
// caller may be handed a non-seekable io.Reader (e.g. an S3 GetObject
// body), so the bytes are buffered once, bounded by maxBuffer.
func ProbeReader(r io.Reader, maxBuffer int64) (Result, error) {
	lr := io.LimitReader(r, maxBuffer+1)
	data, err := io.ReadAll(lr)
	if err != nil {
		return Result{}, err
	}
	if int64(len(data)) > maxBuffer {
		return Result{}, fmt.Errorf("object exceeds re-probe buffer of %d bytes", maxBuffer)
	}
	return Probe(data)
}

func isVideoMIME(mt string) bool {
	return len(mt) >= 6 && mt[:6] == "video/"
}

// AspectRatio rounds width/height to 4 decimal places, per the orchestrator's
// metadata-finalize contract.
func AspectRatio(width, height int) float64 {
	if height == 0 {
		return 0
	}
	ratio := float64(width) / float64(height)
	const scale = 10000
	return float64(int64(ratio*scale+0.5)) / scale
}
