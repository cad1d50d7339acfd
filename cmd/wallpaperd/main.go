// Command wallpaperd is the ingestion core's composition-root entrypoint.
// It wires the configured backing-system adapters into the orchestrator and
// reconciler and runs the reconciler loops until a shutdown signal arrives.
// The HTTP/multipart intake layer that calls the orchestrator is out of
// scope here (see spec.md's non-goals); this binary exists to prove the
// wiring and to host the reconciler.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/wallpaperhq/ingest/internal/composition"
	"github.com/wallpaperhq/ingest/pkg/appctx"
	"github.com/wallpaperhq/ingest/pkg/clock"
	"github.com/wallpaperhq/ingest/pkg/config"
)

func main() {
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	ctx := appctx.WithLogger(context.Background(), &logger)
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logger.Error().Err(err).Msg("wallpaperd exited with error")
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	log := appctx.GetLogger(ctx)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	sys, err := composition.Build(ctx, cfg, clock.Real{})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sys.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("error closing system")
		}
	}()

	log.Info().Str("node_env", cfg.NodeEnv).Msg("wallpaperd starting reconciler loops")
	sys.Reconciler.Run(ctx)
	log.Info().Msg("wallpaperd shut down")
	return nil
}
