// Package orchestrator implements the upload write path: the sequence of
// hashing, dedup check, intent write, byte upload, metadata finalize, and
// event publish that turns raw bytes into a durable Wallpaper record.
package orchestrator

import (
	"bytes"
	"context"
	"regexp"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"

	"github.com/wallpaperhq/ingest/pkg/appctx"
	"github.com/wallpaperhq/ingest/pkg/clock"
	"github.com/wallpaperhq/ingest/pkg/errtypes"
	"github.com/wallpaperhq/ingest/pkg/events"
	"github.com/wallpaperhq/ingest/pkg/hashing"
	"github.com/wallpaperhq/ingest/pkg/metadatastore"
	"github.com/wallpaperhq/ingest/pkg/objectstore"
	"github.com/wallpaperhq/ingest/pkg/policy"
	"github.com/wallpaperhq/ingest/pkg/probe"
	"github.com/wallpaperhq/ingest/pkg/ratelimit"
	"github.com/wallpaperhq/ingest/pkg/walid"
	"github.com/wallpaperhq/ingest/pkg/wallpaper"
)

var tracer = otel.Tracer("github.com/wallpaperhq/ingest/pkg/orchestrator")

// UploadRequest is the orchestrator's public input, per spec.md §4.2.
type UploadRequest struct {
	Bytes            []byte
	Filename         string
	DeclaredMIMEType string
	UserID           string
}

// Status mirrors handleUpload's two success outcomes.
type Status string

const (
	StatusProcessing      Status = "processing"
	StatusAlreadyUploaded Status = "already_uploaded"
)

// UploadResult is returned on success.
type UploadResult struct {
	ID        string
	Status    Status
	Wallpaper *wallpaper.Wallpaper
	RateLimit ratelimit.Result
}

// PolicyResolver resolves a per-user validation policy. A single shared
// policy.Policy can be wrapped in a resolver that always returns it.
type PolicyResolver interface {
	PolicyFor(userID string) policy.Policy
}

// StaticPolicy implements PolicyResolver with one policy for every user.
type StaticPolicy struct{ Policy policy.Policy }

// PolicyFor implements PolicyResolver.
func (s StaticPolicy) PolicyFor(string) policy.Policy { return s.Policy }

// Orchestrator sequences the upload write path. It holds no locks across
// suspension points; all coordination with the Reconciler happens through
// the Metadata Store's stateChangedAt and transition validity.
type Orchestrator struct {
	MetadataStore metadatastore.Port
	ObjectStore   objectstore.Port
	Publisher     events.Publisher
	Limiter       ratelimit.Limiter
	Policies      PolicyResolver
	Clock         clock.Clock
	// Semaphore bounds concurrent uploads per process per spec.md §5. A nil
	// semaphore means unbounded.
	Semaphore chan struct{}
}

var sanitizeDisallowed = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// SanitizeFilename strips every character outside [A-Za-z0-9._-] and
// truncates to 255 bytes. Sanitizing an already-sanitized name is a no-op.
func SanitizeFilename(name string) string {
	clean := sanitizeDisallowed.ReplaceAllString(name, "")
	if len(clean) > 255 {
		clean = clean[:255]
	}
	return clean
}

// HandleUpload runs the full nine-step algorithm from spec.md §4.2.
func (o *Orchestrator) HandleUpload(ctx context.Context, req UploadRequest) (UploadResult, error) {
	ctx, span := tracer.Start(ctx, "HandleUpload")
	defer span.End()
	log := appctx.GetLogger(ctx)

	if req.UserID == "" {
		return UploadResult{}, errtypes.MissingUserID("userId is required")
	}
	if len(req.Bytes) == 0 {
		return UploadResult{}, errtypes.MissingFile("no bytes supplied")
	}

	if o.Semaphore != nil {
		select {
		case o.Semaphore <- struct{}{}:
			defer func() { <-o.Semaphore }()
		case <-ctx.Done():
			return UploadResult{}, ctx.Err()
		}
	}

	// Step 1: rate-limit check.
	_, rlSpan := tracer.Start(ctx, "rate-limit-check")
	rl, err := o.Limiter.CheckAndIncrement(ctx, req.UserID)
	rlSpan.End()
	if err != nil {
		return UploadResult{}, err
	}

	// Step 2: validate and probe. MIME is sniffed from bytes; the declared
	// header and filename are never trusted for this decision.
	_, probeSpan := tracer.Start(ctx, "probe")
	result, err := probe.Probe(req.Bytes)
	probeSpan.End()
	if err != nil {
		return UploadResult{}, errtypes.InvalidFormat(err.Error())
	}

	pol := o.Policies.PolicyFor(req.UserID)
	if err := pol.Validate(result, int64(len(req.Bytes))); err != nil {
		return UploadResult{}, err
	}

	_, hashSpan := tracer.Start(ctx, "hash")
	contentHash, err := hashing.SHA256Hex(bytes.NewReader(req.Bytes))
	hashSpan.End()
	if err != nil {
		return UploadResult{}, err
	}

	// Step 3: deduplication check.
	_, dedupSpan := tracer.Start(ctx, "dedup-check")
	existing, err := o.MetadataStore.FindActiveByUserAndHash(ctx, req.UserID, contentHash)
	dedupSpan.End()
	if err == nil {
		log.Info().Str("wallpaper_id", existing.ID).Str("user_id", req.UserID).Msg("upload collapsed to existing record")
		return UploadResult{
			ID:        existing.ID,
			Status:    StatusAlreadyUploaded,
			Wallpaper: existing,
			RateLimit: rl,
		}, nil
	}
	if _, isNotFound := err.(errtypes.IsNotFound); !isNotFound {
		return UploadResult{}, err
	}

	// Step 4: intent write. contentHash is computed before the insert (see
	// SPEC_FULL.md's resolution of the intent-insert-ordering open question),
	// so the record's contentHash is never null even in its earliest
	// observable moment.
	id := walid.New()
	w := &wallpaper.Wallpaper{
		ID:          id,
		UserID:      req.UserID,
		ContentHash: &contentHash,
	}
	_, intentSpan := tracer.Start(ctx, "insert-intent")
	err = o.MetadataStore.InsertIntent(ctx, w)
	intentSpan.End()
	if err != nil {
		return UploadResult{}, err
	}

	sub := log.With().Str("wallpaper_id", id).Str("user_id", req.UserID).Logger()
	log = &sub
	ctx = appctx.WithLogger(ctx, log)

	// Step 5: begin upload.
	_, beginSpan := tracer.Start(ctx, "transition-uploading")
	_, err = o.MetadataStore.Transition(ctx, id, wallpaper.StateInitiated, wallpaper.StateUploading, metadatastore.Patch{})
	beginSpan.End()
	if err != nil {
		return UploadResult{}, err
	}

	// Step 6: upload bytes.
	ext := result.Extension
	if ext == "" {
		ext = "bin"
	}
	storageKey := id + "/original." + ext
	_, putSpan := tracer.Start(ctx, "object-put")
	err = o.ObjectStore.Put(ctx, storageKey, bytes.NewReader(req.Bytes), int64(len(req.Bytes)), result.MIMEType)
	putSpan.End()
	if err != nil {
		errMsg := err.Error()
		if _, ferr := o.MetadataStore.Transition(ctx, id, wallpaper.StateUploading, wallpaper.StateFailed, metadatastore.Patch{ProcessingError: &errMsg}); ferr != nil {
			log.Error().Err(ferr).Msg("failed to mark upload failed after object-store error")
		}
		return UploadResult{}, err
	}

	// Step 7: finalize metadata.
	bucket := o.ObjectStore.Bucket()
	sanitized := SanitizeFilename(req.Filename)
	fileType := wallpaper.FileType(result.FileType)
	mimeType := result.MIMEType
	size := int64(len(req.Bytes))
	width := result.Width
	height := result.Height
	aspect := probe.AspectRatio(result.Width, result.Height)

	patch := metadatastore.Patch{
		FileType:         &fileType,
		MIMEType:         &mimeType,
		FileSizeBytes:    &size,
		Width:            &width,
		Height:           &height,
		AspectRatio:      &aspect,
		StorageKey:       &storageKey,
		StorageBucket:    &bucket,
		OriginalFilename: &sanitized,
	}
	_, finalizeSpan := tracer.Start(ctx, "transition-stored")
	stored, err := o.MetadataStore.Transition(ctx, id, wallpaper.StateUploading, wallpaper.StateStored, patch)
	finalizeSpan.End()
	if err != nil {
		if _, dup := err.(errtypes.IsAlreadyExists); dup {
			// Lost a race against a concurrent upload of identical bytes: the
			// winner already holds the content hash. Fail this record instead
			// of leaving it stuck at uploading, where it would otherwise sit
			// until the reconciler's attempt budget gives up on it and its
			// bytes are never swept (the record itself still exists).
			errMsg := err.Error()
			if _, ferr := o.MetadataStore.Transition(ctx, id, wallpaper.StateUploading, wallpaper.StateFailed, metadatastore.Patch{ProcessingError: &errMsg}); ferr != nil {
				log.Error().Err(ferr).Msg("failed to mark upload failed after losing dedup race")
			}
		}
		return UploadResult{}, err
	}

	// Step 8: announce. A publish failure does not fail the request — the
	// reconciler's missing-announcement loop will retry it.
	stored = o.announce(ctx, log, id, stored)

	return UploadResult{ID: id, Status: StatusProcessing, Wallpaper: stored, RateLimit: rl}, nil
}

func (o *Orchestrator) announce(ctx context.Context, log *zerolog.Logger, id string, stored *wallpaper.Wallpaper) *wallpaper.Wallpaper {
	payload := events.WallpaperPayload{
		ID:               stored.ID,
		UserID:           stored.UserID,
		FileType:         string(*stored.FileType),
		MIMEType:         *stored.MIMEType,
		FileSizeBytes:    *stored.FileSizeBytes,
		Width:            *stored.Width,
		Height:           *stored.Height,
		AspectRatio:      *stored.AspectRatio,
		StorageKey:       *stored.StorageKey,
		StorageBucket:    *stored.StorageBucket,
		OriginalFilename: derefString(stored.OriginalFilename),
		UploadedAt:       stored.UploadedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}
	env := events.NewWallpaperUploaded(payload, o.Clock.Now())
	body, err := events.MarshalWallpaperUploaded(env)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal announcement payload")
		return stored
	}

	hdrs := events.Headers{}
	events.InjectTraceHeaders(ctx, hdrs)
	_, pubSpan := tracer.Start(ctx, "publish")
	pubErr := o.Publisher.Publish(ctx, events.Subject, body, hdrs)
	pubSpan.End()
	if pubErr != nil {
		log.Warn().Err(pubErr).Msg("announcement publish failed, leaving record at stored for reconciler")
		return stored
	}

	_, procSpan := tracer.Start(ctx, "transition-processing")
	processing, err := o.MetadataStore.Transition(ctx, id, wallpaper.StateStored, wallpaper.StateProcessing, metadatastore.Patch{})
	procSpan.End()
	if err != nil {
		// The announcement is already out; a transition race here just means
		// the reconciler (or another writer) beat us to it. The upload
		// itself already succeeded from the caller's point of view.
		log.Warn().Err(err).Msg("post-publish transition to processing failed")
		return stored
	}
	return processing
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
