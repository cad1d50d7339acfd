// Package events defines the wire payloads published on the durable event
// stream and the Publisher/Consumer ports the orchestrator, reconciler, and
// downstream consumers depend on.
//
// Unlike the teacher's reflect-based event registry (one queue, dispatched
// by a string type name recovered via reflect.TypeOf), every event here
// carries an explicit EventType field in its envelope. Consumers that see
// an EventType they don't recognize skip the message instead of failing,
// per spec.md's design note on versioned event schemas.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventTypeWallpaperUploaded is the only event type this core publishes.
const EventTypeWallpaperUploaded = "wallpaper.uploaded"

// Subject is the stream subject wallpaper events are published under.
const Subject = "wallpaper.uploaded"

// WallpaperPayload mirrors the "wallpaper" object inside a
// wallpaper.uploaded event, per spec.md §6.
type WallpaperPayload struct {
	ID               string  `json:"id"`
	UserID           string  `json:"userId"`
	FileType         string  `json:"fileType"`
	MIMEType         string  `json:"mimeType"`
	FileSizeBytes    int64   `json:"fileSizeBytes"`
	Width            int     `json:"width"`
	Height           int     `json:"height"`
	AspectRatio      float64 `json:"aspectRatio"`
	StorageKey       string  `json:"storageKey"`
	StorageBucket    string  `json:"storageBucket"`
	OriginalFilename string  `json:"originalFilename"`
	UploadedAt       string  `json:"uploadedAt"`
}

// WallpaperUploaded is the envelope published to the stream.
type WallpaperUploaded struct {
	EventID   string           `json:"eventId"`
	EventType string           `json:"eventType"`
	Timestamp string           `json:"timestamp"`
	Wallpaper WallpaperPayload `json:"wallpaper"`
}

// NewWallpaperUploaded stamps a new envelope with a fresh event id and the
// given timestamp in ISO-8601.
func NewWallpaperUploaded(w WallpaperPayload, now time.Time) WallpaperUploaded {
	return WallpaperUploaded{
		EventID:   uuid.NewString(),
		EventType: EventTypeWallpaperUploaded,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
		Wallpaper: w,
	}
}

// Headers carries W3C traceparent propagation, when present. Its absence is
// not an error.
type Headers map[string]string

const TraceparentHeader = "traceparent"

// Publisher is the Event Bus Port's write side.
type Publisher interface {
	Publish(ctx context.Context, subject string, payload []byte, headers Headers) error
}

// Consumer is the Event Bus Port's read side, used by downstream
// materialization described at the interface level only (spec.md §4.5).
type Consumer interface {
	// Consume returns a channel of raw messages for the named durable,
	// grouped consumer. Redelivery must be tolerated by callers.
	Consume(ctx context.Context, group string) (<-chan Message, error)
}

// Message is a single delivery from the stream.
type Message struct {
	Subject string
	Payload []byte
	Headers Headers
	// Ack must be called after successful processing. At-least-once
	// delivery means a message may be redelivered if Ack is never called.
	Ack func() error
}

// MarshalWallpaperUploaded is the codec used on the write side.
func MarshalWallpaperUploaded(e WallpaperUploaded) ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalWallpaperUploaded is the codec used on the read side. It ignores
// unknown fields on ingress by virtue of encoding/json's default behavior,
// per spec.md's design note.
func UnmarshalWallpaperUploaded(data []byte) (WallpaperUploaded, error) {
	var e WallpaperUploaded
	err := json.Unmarshal(data, &e)
	return e, err
}
