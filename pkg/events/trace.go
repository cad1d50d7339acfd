package events

import (
	"context"

	"go.opentelemetry.io/otel/propagation"
)

// headerCarrier adapts a Headers map to propagation.TextMapCarrier.
type headerCarrier Headers

func (c headerCarrier) Get(key string) string { return c[key] }
func (c headerCarrier) Set(key, value string) { c[key] = value }
func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

var propagator = propagation.TraceContext{}

// InjectTraceHeaders writes the W3C traceparent header (if the context
// carries a span) into headers. Its absence is not an error — a context
// with no active span simply produces no header.
func InjectTraceHeaders(ctx context.Context, headers Headers) {
	propagator.Inject(ctx, headerCarrier(headers))
}

// ExtractTraceContext returns a context carrying the remote span described
// by headers, or ctx unchanged if no traceparent header is present.
func ExtractTraceContext(ctx context.Context, headers Headers) context.Context {
	return propagator.Extract(ctx, headerCarrier(headers))
}
