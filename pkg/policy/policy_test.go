package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wallpaperhq/ingest/pkg/errtypes"
	"github.com/wallpaperhq/ingest/pkg/probe"
)

func TestValidate_Accepts(t *testing.T) {
	p := Default()
	err := p.Validate(probe.Result{
		FileType: probe.FileTypeImage,
		MIMEType: "image/jpeg",
		Width:    1920,
		Height:   1080,
	}, 1<<20)
	assert.NoError(t, err)
}

func TestValidate_RejectsVideo(t *testing.T) {
	p := Default()
	err := p.Validate(probe.Result{FileType: probe.FileTypeVideo, MIMEType: "video/mp4"}, 1024)
	assert.Error(t, err)
	var invalid errtypes.IsInvalidFormat
	assert.ErrorAs(t, err, &invalid)
}

func TestValidate_RejectsDisallowedFormat(t *testing.T) {
	p := Default()
	err := p.Validate(probe.Result{FileType: probe.FileTypeImage, MIMEType: "image/gif", Width: 800, Height: 600}, 1024)
	assert.Error(t, err)
	var invalid errtypes.IsInvalidFormat
	assert.ErrorAs(t, err, &invalid)
}

func TestValidate_RejectsDimensionsOutOfBounds(t *testing.T) {
	p := Default()
	err := p.Validate(probe.Result{FileType: probe.FileTypeImage, MIMEType: "image/jpeg", Width: 10, Height: 10}, 1024)
	assert.Error(t, err)
	var oob errtypes.IsDimensionsOutOfBounds
	assert.ErrorAs(t, err, &oob)
}

func TestValidate_OversizeUnrecognizedFormatReturnsTooLarge(t *testing.T) {
	// An unrecognized format falls back to the image size cap, so an
	// oversized garbage upload still gets a size verdict, not a format
	// verdict that would hide the real problem.
	p := Default()
	err := p.Validate(probe.Result{FileType: probe.FileType("unknown"), MIMEType: ""}, 100<<20)
	assert.Error(t, err)
	var tooLarge errtypes.IsFileTooLarge
	assert.ErrorAs(t, err, &tooLarge)
}

func TestValidate_OversizeImageReturnsTooLarge(t *testing.T) {
	p := Default()
	err := p.Validate(probe.Result{FileType: probe.FileTypeImage, MIMEType: "image/jpeg", Width: 1920, Height: 1080}, 100<<20)
	assert.Error(t, err)
	var tooLarge errtypes.IsFileTooLarge
	assert.ErrorAs(t, err, &tooLarge)
}
