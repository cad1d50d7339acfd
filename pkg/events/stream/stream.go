// Package stream provides the concrete Publisher/Consumer implementations
// used by the event bus port: a durable NATS JetStream client for
// production, and an in-process channel pair for tests.
package stream

import (
	"context"

	"github.com/cenkalti/backoff"
	gmevents "go-micro.dev/v4/events"

	"github.com/go-micro/plugins/v4/events/natsjs"

	"github.com/wallpaperhq/ingest/pkg/appctx"
	"github.com/wallpaperhq/ingest/pkg/events"
)

// NatsStream adapts a go-micro events.Stream (backed by NATS JetStream via
// natsjs) to the events.Publisher/events.Consumer ports.
type NatsStream struct {
	stream gmevents.Stream
	name   string // stream/queue name, e.g. "WALLPAPER"
}

// Nats connects to a NATS JetStream server, retrying with exponential
// backoff the way the teacher's stream.Nats() does, and returns a
// NatsStream bound to streamName.
func Nats(streamName string, opts ...natsjs.Option) (*NatsStream, error) {
	b := backoff.NewExponentialBackOff()
	var s gmevents.Stream
	op := func() error {
		var err error
		s, err = natsjs.NewStream(opts...)
		return err
	}
	if err := backoff.Retry(op, b); err != nil {
		return nil, err
	}
	return &NatsStream{stream: s, name: streamName}, nil
}

// Publish implements events.Publisher.
func (n *NatsStream) Publish(ctx context.Context, subject string, payload []byte, headers events.Headers) error {
	opts := []gmevents.PublishOption{}
	if len(headers) > 0 {
		md := make(map[string]string, len(headers))
		for k, v := range headers {
			md[k] = v
		}
		opts = append(opts, gmevents.WithMetadata(md))
	}
	return n.stream.Publish(subject, payload, opts...)
}

// Consume implements events.Consumer.
func (n *NatsStream) Consume(ctx context.Context, group string) (<-chan events.Message, error) {
	c, err := n.stream.Consume(n.name, gmevents.WithGroup(group))
	if err != nil {
		return nil, err
	}

	out := make(chan events.Message)
	go func() {
		defer close(out)
		log := appctx.GetLogger(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-c:
				if !ok {
					return
				}
				hdrs := make(events.Headers, len(ev.Metadata))
				for k, v := range ev.Metadata {
					hdrs[k] = v
				}
				msg := events.Message{
					Subject: n.name,
					Payload: ev.Payload,
					Headers: hdrs,
					Ack:     func() error { return ev.Ack() },
				}
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
				log.Debug().Str("eventId", ev.ID).Msg("dispatched event")
			}
		}
	}()
	return out, nil
}

// Chan is an in-process Publisher+Consumer pair for tests, modeled directly
// on the teacher's channel-based streaming client. Publish and Consume share
// one buffered channel, which lets a test wire a single in-memory bus
// without a running NATS server.
type Chan struct {
	toConsumers chan events.Message
}

// NewChan returns a ready-to-use in-process bus.
func NewChan() *Chan {
	return &Chan{toConsumers: make(chan events.Message, 64)}
}

// Publish implements events.Publisher.
func (c *Chan) Publish(_ context.Context, subject string, payload []byte, headers events.Headers) error {
	msg := events.Message{
		Subject: subject,
		Payload: payload,
		Headers: headers,
		Ack:     func() error { return nil },
	}
	go func() { c.toConsumers <- msg }()
	return nil
}

// Consume implements events.Consumer. Every call shares the same backing
// channel: this is a fan-out-free test double, not a real consumer-group
// implementation, so at most one active consumer should be attached per
// test.
func (c *Chan) Consume(ctx context.Context, _ string) (<-chan events.Message, error) {
	return c.toConsumers, nil
}
