// Package policy applies per-user validation limits to a probed upload:
// allowed formats, size caps per category, and min/max dimensions.
package policy

import (
	"fmt"

	"github.com/wallpaperhq/ingest/pkg/errtypes"
	"github.com/wallpaperhq/ingest/pkg/probe"
)

// Policy is the set of limits applied to one user's uploads. A zero-value
// Policy is unusable; use Default() for sane limits.
type Policy struct {
	AllowedMIMETypes map[string]bool
	MaxBytesByType   map[probe.FileType]int64
	MinWidth         int
	MinHeight        int
	MaxWidth         int
	MaxHeight        int
}

// Default returns a permissive-but-sane policy for JPEG/PNG/WebP wallpapers.
func Default() Policy {
	return Policy{
		AllowedMIMETypes: map[string]bool{
			"image/jpeg": true,
			"image/png":  true,
			"image/webp": true,
		},
		MaxBytesByType: map[probe.FileType]int64{
			probe.FileTypeImage: 50 << 20, // 50MiB
			probe.FileTypeVideo: 0,        // video not accepted in this iteration
		},
		MinWidth:  320,
		MinHeight: 240,
		MaxWidth:  15360, // 16K
		MaxHeight: 8640,
	}
}

// Validate checks size first (so an oversized-and-unrecognized file returns
// FileTooLarge rather than InvalidFormat, per the orchestrator contract),
// then format, then dimensions.
func (p Policy) Validate(result probe.Result, sizeBytes int64) error {
	cap, hasCap := p.MaxBytesByType[result.FileType]
	if !hasCap {
		// Unknown/unrecognized file type: fall back to the image cap so an
		// oversized garbage upload still gets a size verdict, not a format
		// verdict that would hide the real problem.
		cap = p.MaxBytesByType[probe.FileTypeImage]
	}
	if cap > 0 && sizeBytes > cap {
		return errtypes.FileTooLarge(fmt.Sprintf("%d bytes exceeds cap of %d", sizeBytes, cap))
	}

	if result.FileType == probe.FileTypeVideo {
		return errtypes.InvalidFormat("video uploads are not accepted")
	}

	if !p.AllowedMIMETypes[result.MIMEType] {
		return errtypes.InvalidFormat(result.MIMEType)
	}

	if result.Width < p.MinWidth || result.Height < p.MinHeight ||
		result.Width > p.MaxWidth || result.Height > p.MaxHeight {
		return errtypes.DimensionsOutOfBounds(fmt.Sprintf("%dx%d", result.Width, result.Height))
	}

	return nil
}
