// Package reconciler runs the three periodic loops that bring the ingestion
// pipeline back into consistency after a partial failure: stuck uploads,
// missing announcements, and orphaned intents or bytes. Every action is
// framed as compare-and-act so overlapping runs, or a run racing a live
// orchestration, degrade to a harmless no-op rather than corrupting state.
package reconciler

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/wallpaperhq/ingest/pkg/appctx"
	"github.com/wallpaperhq/ingest/pkg/clock"
	"github.com/wallpaperhq/ingest/pkg/errtypes"
	"github.com/wallpaperhq/ingest/pkg/events"
	"github.com/wallpaperhq/ingest/pkg/metadatastore"
	"github.com/wallpaperhq/ingest/pkg/objectstore"
	"github.com/wallpaperhq/ingest/pkg/probe"
	"github.com/wallpaperhq/ingest/pkg/wallpaper"
)

var tracer = otel.Tracer("github.com/wallpaperhq/ingest/pkg/reconciler")

// MaxReconciliationAttempts bounds how many times any loop will retry a
// single record before leaving it in failed and surfacing it via health
// metrics instead of retrying indefinitely, per spec.md §4.3.
const MaxReconciliationAttempts = 5

// Config carries the cadence and grace-period knobs for all three loops.
type Config struct {
	StuckUploadInterval time.Duration
	StuckUploadGrace    time.Duration

	MissingEventInterval time.Duration
	MissingEventGrace    time.Duration

	OrphanSweepInterval time.Duration
	OrphanIntentGrace   time.Duration
}

// DefaultConfig returns the cadences and grace periods named in spec.md
// §4.3.
func DefaultConfig() Config {
	return Config{
		StuckUploadInterval:  time.Second,
		StuckUploadGrace:     10 * time.Minute,
		MissingEventInterval: time.Second,
		MissingEventGrace:    5 * time.Minute,
		OrphanSweepInterval:  2 * time.Second,
		OrphanIntentGrace:    time.Hour,
	}
}

// Metrics receives a per-loop attempt counter, surfaced by the health
// package. A nil Metrics is valid; counts are simply dropped.
type Metrics interface {
	IncReconcileAttempt(loop string, outcome string)
	IncTerminalFailure(loop string)
}

// Reconciler owns the three loops. Construct with New and call Run once per
// process; Run blocks until ctx is cancelled.
type Reconciler struct {
	MetadataStore metadatastore.Port
	ObjectStore   objectstore.Port
	Publisher     events.Publisher
	Clock         clock.Clock
	Config        Config
	Metrics       Metrics

	// ReprobeMaxBytes bounds Loop A's re-probe buffer when metadata for a
	// stuck-then-found object needs to be reconstructed.
	ReprobeMaxBytes int64
}

// New returns a Reconciler with DefaultConfig and a 64MiB re-probe buffer.
func New(ms metadatastore.Port, os objectstore.Port, pub events.Publisher, c clock.Clock) *Reconciler {
	return &Reconciler{
		MetadataStore:   ms,
		ObjectStore:     os,
		Publisher:       pub,
		Clock:           c,
		Config:          DefaultConfig(),
		ReprobeMaxBytes: 64 << 20,
	}
}

// Run starts all three loops and blocks until ctx is cancelled. In-flight
// passes finish before Run returns; no further pass is scheduled once
// cancellation is observed.
func (r *Reconciler) Run(ctx context.Context) {
	done := make(chan struct{}, 3)
	go r.loop(ctx, "stuck-uploads", r.Config.StuckUploadInterval, r.runStuckUploads, done)
	go r.loop(ctx, "missing-announcements", r.Config.MissingEventInterval, r.runMissingAnnouncements, done)
	go r.loop(ctx, "orphan-sweep", r.Config.OrphanSweepInterval, r.runOrphanSweep, done)
	for i := 0; i < 3; i++ {
		<-done
	}
}

func (r *Reconciler) loop(ctx context.Context, name string, interval time.Duration, pass func(context.Context), done chan<- struct{}) {
	log := appctx.GetLogger(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			done <- struct{}{}
			return
		case <-ticker.C:
			func() {
				defer func() {
					if rec := recover(); rec != nil {
						log.Error().Interface("panic", rec).Str("loop", name).Msg("reconciler pass panicked")
					}
				}()
				pass(ctx)
			}()
		}
	}
}

// runStuckUploads implements Loop A.
func (r *Reconciler) runStuckUploads(ctx context.Context) {
	ctx, span := tracer.Start(ctx, "reconciler.stuck-uploads")
	defer span.End()
	log := appctx.GetLogger(ctx)
	cutoff := r.Clock.Now().Add(-r.Config.StuckUploadGrace)
	records, err := r.MetadataStore.List(ctx, metadatastore.ListFilter{State: wallpaper.StateUploading, OlderThan: cutoff})
	if err != nil {
		log.Warn().Err(err).Str("loop", "stuck-uploads").Msg("list failed")
		return
	}

	for _, rec := range records {
		r.reconcileStuckUpload(ctx, rec)
	}
}

func (r *Reconciler) reconcileStuckUpload(ctx context.Context, rec *wallpaper.Wallpaper) {
	log := appctx.GetLogger(ctx)
	if !r.underAttemptBudget(ctx, "stuck-uploads", rec) {
		return
	}

	exists, err := r.findObjectByIDPrefix(ctx, rec.ID)
	if err != nil {
		log.Warn().Err(err).Str("wallpaper_id", rec.ID).Msg("stuck-upload object lookup failed")
		r.bumpAttempts(ctx, "stuck-uploads", rec.ID)
		return
	}

	if exists == nil {
		r.markFailed(ctx, "stuck-uploads", rec.ID, wallpaper.StateUploading, "upload never completed")
		return
	}
	storageKey := exists.Key
	size := exists.Size

	patch := metadatastore.Patch{}
	if !rec.HasCompleteMetadata() {
		obj, err := r.ObjectStore.Get(ctx, storageKey)
		if err != nil {
			log.Warn().Err(err).Str("wallpaper_id", rec.ID).Msg("stuck-upload re-fetch failed")
			r.bumpAttempts(ctx, "stuck-uploads", rec.ID)
			return
		}
		result, perr := probe.ProbeReader(obj, r.ReprobeMaxBytes)
		_ = obj.Close()
		if perr != nil {
			log.Warn().Err(perr).Str("wallpaper_id", rec.ID).Msg("stuck-upload re-probe failed")
			r.bumpAttempts(ctx, "stuck-uploads", rec.ID)
			return
		}
		ft := wallpaper.FileType(result.FileType)
		mt := result.MIMEType
		width, height := result.Width, result.Height
		aspect := probe.AspectRatio(result.Width, result.Height)
		bucket := r.ObjectStore.Bucket()
		patch = metadatastore.Patch{
			FileType:      &ft,
			MIMEType:      &mt,
			Width:         &width,
			Height:        &height,
			AspectRatio:   &aspect,
			StorageKey:    &storageKey,
			StorageBucket: &bucket,
			FileSizeBytes: &size,
		}
	}

	_, err = r.MetadataStore.Transition(ctx, rec.ID, wallpaper.StateUploading, wallpaper.StateStored, patch)
	if err != nil {
		if _, concurrent := err.(errtypes.IsConcurrentTransition); concurrent {
			// another actor already moved this record; a no-op is correct.
			return
		}
		log.Warn().Err(err).Str("wallpaper_id", rec.ID).Msg("stuck-upload transition failed")
		r.bumpAttempts(ctx, "stuck-uploads", rec.ID)
		return
	}
	r.recordOutcome("stuck-uploads", "advanced")
}

// findObjectByIDPrefix is a compare-and-act helper: it returns the first
// object whose key is prefixed by id, or nil if none exists.
func (r *Reconciler) findObjectByIDPrefix(ctx context.Context, id string) (*objectstore.ObjectInfo, error) {
	objs, err := r.ObjectStore.List(ctx, id+"/")
	if err != nil {
		return nil, err
	}
	if len(objs) == 0 {
		return nil, nil
	}
	return &objs[0], nil
}

// runMissingAnnouncements implements Loop B.
func (r *Reconciler) runMissingAnnouncements(ctx context.Context) {
	ctx, span := tracer.Start(ctx, "reconciler.missing-announcements")
	defer span.End()
	log := appctx.GetLogger(ctx)
	cutoff := r.Clock.Now().Add(-r.Config.MissingEventGrace)
	records, err := r.MetadataStore.List(ctx, metadatastore.ListFilter{State: wallpaper.StateStored, OlderThan: cutoff, RequireFull: true})
	if err != nil {
		log.Warn().Err(err).Str("loop", "missing-announcements").Msg("list failed")
		return
	}
	for _, rec := range records {
		r.reconcileMissingAnnouncement(ctx, rec)
	}
}

func (r *Reconciler) reconcileMissingAnnouncement(ctx context.Context, rec *wallpaper.Wallpaper) {
	log := appctx.GetLogger(ctx)
	if !r.underAttemptBudget(ctx, "missing-announcements", rec) {
		return
	}
	if !rec.HasCompleteMetadata() {
		// shouldn't happen given RequireFull, but guards against a race with
		// a concurrent writer clearing a field.
		return
	}

	payload := events.WallpaperPayload{
		ID:               rec.ID,
		UserID:           rec.UserID,
		FileType:         string(*rec.FileType),
		MIMEType:         *rec.MIMEType,
		FileSizeBytes:    derefInt64(rec.FileSizeBytes),
		Width:            derefInt(rec.Width),
		Height:           derefInt(rec.Height),
		AspectRatio:      derefFloat(rec.AspectRatio),
		StorageKey:       *rec.StorageKey,
		StorageBucket:    *rec.StorageBucket,
		OriginalFilename: derefStr(rec.OriginalFilename),
		UploadedAt:       rec.UploadedAt.UTC().Format(time.RFC3339Nano),
	}
	env := events.NewWallpaperUploaded(payload, r.Clock.Now())
	body, err := events.MarshalWallpaperUploaded(env)
	if err != nil {
		log.Error().Err(err).Str("wallpaper_id", rec.ID).Msg("failed to marshal republished announcement")
		return
	}

	if err := r.Publisher.Publish(ctx, events.Subject, body, events.Headers{}); err != nil {
		log.Warn().Err(err).Str("wallpaper_id", rec.ID).Msg("republish failed")
		r.bumpAttempts(ctx, "missing-announcements", rec.ID)
		return
	}

	_, err = r.MetadataStore.Transition(ctx, rec.ID, wallpaper.StateStored, wallpaper.StateProcessing, metadatastore.Patch{})
	if err != nil {
		if _, concurrent := err.(errtypes.IsConcurrentTransition); concurrent {
			return
		}
		log.Warn().Err(err).Str("wallpaper_id", rec.ID).Msg("post-republish transition failed")
		return
	}
	r.recordOutcome("missing-announcements", "republished")
}

// runOrphanSweep implements Loop C's two sub-tasks.
func (r *Reconciler) runOrphanSweep(ctx context.Context) {
	ctx, span := tracer.Start(ctx, "reconciler.orphan-sweep")
	defer span.End()
	log := appctx.GetLogger(ctx)

	intentCutoff := r.Clock.Now().Add(-r.Config.OrphanIntentGrace)
	intents, err := r.MetadataStore.List(ctx, metadatastore.ListFilter{State: wallpaper.StateInitiated, OlderThan: intentCutoff})
	if err != nil {
		log.Warn().Err(err).Str("loop", "orphan-sweep").Msg("list intents failed")
	} else {
		for _, rec := range intents {
			if err := r.MetadataStore.Delete(ctx, rec.ID); err != nil {
				log.Warn().Err(err).Str("wallpaper_id", rec.ID).Msg("orphan intent delete failed")
				continue
			}
			r.recordOutcome("orphan-sweep", "intent-deleted")
		}
	}

	objs, err := r.ObjectStore.List(ctx, "")
	if err != nil {
		log.Warn().Err(err).Str("loop", "orphan-sweep").Msg("list objects failed")
		return
	}
	for _, obj := range objs {
		id := firstPathSegment(obj.Key)
		if id == "" {
			continue
		}
		// A metadata record in any state, terminal or not, claims the
		// object. Only a true absence makes it an orphan.
		_, err := r.MetadataStore.Get(ctx, id)
		if err == nil {
			continue
		}
		if _, notFound := err.(errtypes.IsNotFound); !notFound {
			log.Warn().Err(err).Str("object_key", obj.Key).Msg("orphan-object lookup failed")
			continue
		}
		if err := r.ObjectStore.Delete(ctx, obj.Key); err != nil {
			log.Warn().Err(err).Str("object_key", obj.Key).Msg("orphan object delete failed")
			continue
		}
		r.recordOutcome("orphan-sweep", "object-deleted")
	}
}

func firstPathSegment(key string) string {
	if i := strings.IndexByte(key, '/'); i >= 0 {
		return key[:i]
	}
	return ""
}

// underAttemptBudget reports whether rec may still be reconciled, marking it
// terminally failed and surfacing it via Metrics once MaxReconciliationAttempts
// is reached.
func (r *Reconciler) underAttemptBudget(ctx context.Context, loop string, rec *wallpaper.Wallpaper) bool {
	if rec.UploadAttempts < MaxReconciliationAttempts {
		return true
	}
	log := appctx.GetLogger(ctx)
	log.Error().Str("wallpaper_id", rec.ID).Str("loop", loop).Int("attempts", rec.UploadAttempts).
		Msg("record exceeded reconciliation attempt budget, leaving failed")
	if r.Metrics != nil {
		r.Metrics.IncTerminalFailure(loop)
	}
	r.markFailed(ctx, loop, rec.ID, rec.UploadState, "reconciliation attempt budget exhausted")
	return false
}

func (r *Reconciler) bumpAttempts(ctx context.Context, loop, id string) {
	log := appctx.GetLogger(ctx)
	if _, err := r.MetadataStore.IncrementAttempts(ctx, id); err != nil {
		log.Warn().Err(err).Str("wallpaper_id", id).Msg("failed to increment reconciliation attempts")
	}
	r.recordOutcome(loop, "retry")
}

// markFailed transitions id from `from` to failed with reason recorded as
// processingError. A concurrent-transition error is swallowed: another
// actor already decided the record's fate.
func (r *Reconciler) markFailed(ctx context.Context, loop string, id string, from wallpaper.UploadState, reason string) {
	log := appctx.GetLogger(ctx)
	_, err := r.MetadataStore.Transition(ctx, id, from, wallpaper.StateFailed, metadatastore.Patch{ProcessingError: &reason})
	if err != nil {
		if _, concurrent := err.(errtypes.IsConcurrentTransition); concurrent {
			return
		}
		log.Warn().Err(err).Str("wallpaper_id", id).Str("loop", loop).Msg("mark-failed transition failed")
		return
	}
	r.recordOutcome(loop, "failed")
}

func (r *Reconciler) recordOutcome(loop, outcome string) {
	if r.Metrics != nil {
		r.Metrics.IncReconcileAttempt(loop, outcome)
	}
}

func derefInt64(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func derefFloat(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

func derefStr(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
