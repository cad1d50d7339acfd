// Package composition is the explicit construction root: it reads Config,
// builds every concrete backing-system adapter, and wires them into the
// Orchestrator and Reconciler. No dependency-injection container or
// reflection is used, per the redesign note on DI containers in spec.md.
package composition

import (
	"context"

	"github.com/go-micro/plugins/v4/events/natsjs"
	"github.com/go-redis/redis/v8"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/wallpaperhq/ingest/pkg/appctx"
	"github.com/wallpaperhq/ingest/pkg/clock"
	"github.com/wallpaperhq/ingest/pkg/config"
	"github.com/wallpaperhq/ingest/pkg/events"
	eventstream "github.com/wallpaperhq/ingest/pkg/events/stream"
	"github.com/wallpaperhq/ingest/pkg/health"
	"github.com/wallpaperhq/ingest/pkg/metadatastore"
	"github.com/wallpaperhq/ingest/pkg/objectstore"
	"github.com/wallpaperhq/ingest/pkg/orchestrator"
	"github.com/wallpaperhq/ingest/pkg/policy"
	"github.com/wallpaperhq/ingest/pkg/ratelimit"
	"github.com/wallpaperhq/ingest/pkg/reconciler"
)

// System holds every constructed component the entrypoint needs to run and
// tear down.
type System struct {
	Config        *config.Config
	MetadataStore metadatastore.Port
	ObjectStore   objectstore.Port
	Stream        *eventstream.NatsStream
	Limiter       ratelimit.Limiter
	Orchestrator  *orchestrator.Orchestrator
	Reconciler    *reconciler.Reconciler
	Health        *health.Registry
}

// Build constructs the whole system from cfg. It does not start the
// reconciler loops or serve any transport; callers decide when to call
// sys.Reconciler.Run and when to route intake requests to sys.Orchestrator.
func Build(ctx context.Context, cfg *config.Config, c clock.Clock) (*System, error) {
	log := appctx.GetLogger(ctx)

	objStore, err := buildObjectStore(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "composition: object store")
	}

	metaStore, err := buildMetadataStore(cfg, c)
	if err != nil {
		return nil, errors.Wrap(err, "composition: metadata store")
	}

	stream, err := buildStream(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "composition: event stream")
	}

	limiter := buildLimiter(cfg, c, log)

	reg := health.NewRegistry()
	reg.Register(objectStoreChecker{objStore})
	reg.Register(metadataStoreChecker{metaStore})

	orch := &orchestrator.Orchestrator{
		MetadataStore: metaStore,
		ObjectStore:   objStore,
		Publisher:     stream,
		Limiter:       limiter,
		Policies:      orchestrator.StaticPolicy{Policy: policy.Default()},
		Clock:         c,
		Semaphore:     make(chan struct{}, 32),
	}

	rec := reconciler.New(metaStore, objStore, stream, c)
	rec.Config.StuckUploadGrace = cfg.StuckUploadGrace()
	rec.Config.MissingEventGrace = cfg.MissingEventGrace()
	rec.Config.OrphanIntentGrace = cfg.OrphanIntentGrace()
	rec.Metrics = reg

	return &System{
		Config:        cfg,
		MetadataStore: metaStore,
		ObjectStore:   objStore,
		Stream:        stream,
		Limiter:       limiter,
		Orchestrator:  orch,
		Reconciler:    rec,
		Health:        reg,
	}, nil
}

// Close closes the metadata store's connection pool. The event stream and
// the Redis client, if any, are not closed here.
func (s *System) Close() error {
	return s.MetadataStore.Close()
}

func buildObjectStore(cfg *config.Config) (objectstore.Port, error) {
	secure := true
	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKeyID, cfg.S3SecretAccessKey, ""),
		Secure: secure,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, err
	}
	return objectstore.NewS3Store(client, cfg.S3Bucket), nil
}

func buildMetadataStore(cfg *config.Config, c clock.Clock) (metadatastore.Port, error) {
	store, err := metadatastore.NewSQLStoreFromDSN(cfg.DatabaseURL, c)
	if err != nil {
		return nil, err
	}
	if err := store.EnsureSchema(context.Background()); err != nil {
		return nil, err
	}
	return store, nil
}

func buildStream(cfg *config.Config) (*eventstream.NatsStream, error) {
	opts := []natsjs.Option{}
	if cfg.NatsURL != "" {
		opts = append(opts, natsjs.Address(cfg.NatsURL))
	}
	return eventstream.Nats(cfg.NatsStream, opts...)
}

func buildLimiter(cfg *config.Config, c clock.Clock, log *zerolog.Logger) ratelimit.Limiter {
	window := cfg.RateLimitWindow()
	if cfg.RedisURL == "" {
		log.Warn().Msg("REDIS_URL not set, falling back to in-memory rate limiter (single-process only)")
		return ratelimit.NewMemoryLimiter(cfg.RateLimitMax, window, c)
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Warn().Err(err).Msg("REDIS_URL unparseable, falling back to in-memory rate limiter")
		return ratelimit.NewMemoryLimiter(cfg.RateLimitMax, window, c)
	}
	rdb := redis.NewClient(opts)
	return ratelimit.NewRedisLimiter(rdb, cfg.RateLimitMax, window, "wlpr:ratelimit:")
}

type objectStoreChecker struct{ store objectstore.Port }

func (c objectStoreChecker) Name() string { return "object-store" }
func (c objectStoreChecker) Check(ctx context.Context) error {
	_, err := c.store.List(ctx, "")
	return err
}

type metadataStoreChecker struct{ store metadatastore.Port }

func (c metadataStoreChecker) Name() string { return "metadata-store" }
func (c metadataStoreChecker) Check(ctx context.Context) error {
	_, err := c.store.GetCurrentState(ctx, "__health_probe__")
	if err == nil {
		return nil
	}
	// A not-found on a probe id means the connection itself is healthy.
	if _, notFound := err.(interface{ IsNotFound() }); notFound {
		return nil
	}
	return err
}
