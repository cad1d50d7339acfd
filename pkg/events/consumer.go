package events

import (
	"context"

	"github.com/wallpaperhq/ingest/pkg/appctx"
)

// Handler materializes one wallpaper.uploaded event into a downstream read
// model. Concrete handlers (variant generation, search indexing) are out of
// scope; this interface exists so the consumer loop and its tests have
// something concrete to call.
type Handler interface {
	HandleUploaded(ctx context.Context, e WallpaperUploaded) error
}

// DeadLetterSink receives messages that exhausted their processing-error
// retry budget.
type DeadLetterSink interface {
	DeadLetter(ctx context.Context, reason string, raw []byte) error
}

// MaxProcessingRetries bounds how many times in total, the first attempt
// included, ConsumeLoop calls the handler for a message whose processing
// fails (a validation/unmarshal error is never retried) before routing the
// message to the dead-letter sink.
const MaxProcessingRetries = 3

// ConsumeLoop drains msgs, dispatching each to handler. Validation errors
// (malformed payload) are logged and acknowledged immediately to avoid a
// poison-pill loop; a message whose processing fails is attempted up to
// MaxProcessingRetries times in total before it is dead-lettered. Redelivery is
// assumed to be possible at any time, so handler.HandleUploaded must be an
// idempotent upsert keyed by wallpaper id.
func ConsumeLoop(ctx context.Context, msgs <-chan Message, handler Handler, dlq DeadLetterSink) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			consumeOne(ctx, msg, handler, dlq)
		}
	}
}

func consumeOne(ctx context.Context, msg Message, handler Handler, dlq DeadLetterSink) {
	log := appctx.GetLogger(ctx)

	e, err := UnmarshalWallpaperUploaded(msg.Payload)
	if err != nil {
		log.Warn().Err(err).Str("subject", msg.Subject).Msg("dropping malformed event")
		_ = msg.Ack()
		return
	}
	if e.EventType != EventTypeWallpaperUploaded {
		// Unknown event type on the stream: skip, per spec.md's design note.
		_ = msg.Ack()
		return
	}

	var lastErr error
	for attempt := 0; attempt < MaxProcessingRetries; attempt++ {
		if lastErr = handler.HandleUploaded(ctx, e); lastErr == nil {
			_ = msg.Ack()
			return
		}
		log.Warn().Err(lastErr).Str("eventId", e.EventID).Int("attempt", attempt+1).Msg("retrying event processing")
	}

	log.Error().Err(lastErr).Str("eventId", e.EventID).Msg("processing exhausted retries, dead-lettering")
	if dlq != nil {
		_ = dlq.DeadLetter(ctx, lastErr.Error(), msg.Payload)
	}
	_ = msg.Ack()
}
