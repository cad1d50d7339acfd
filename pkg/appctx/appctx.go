// Package appctx attaches request-scoped facilities — currently just a
// structured logger — to a context.Context so deep call paths don't need a
// logger threaded through every function signature.
package appctx

import (
	"context"

	"github.com/rs/zerolog"
)

// WithLogger returns a context with an associated logger.
func WithLogger(ctx context.Context, l *zerolog.Logger) context.Context {
	return l.WithContext(ctx)
}

// GetLogger returns the logger associated with the given context, or a
// disabled logger if none was attached.
func GetLogger(ctx context.Context) *zerolog.Logger {
	return zerolog.Ctx(ctx)
}
