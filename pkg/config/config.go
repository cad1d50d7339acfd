// Package config binds the ingestion core's environment-variable surface
// (spec.md §6) into a typed Config via viper, the way the teacher's
// cmd/revad/config package binds REVA_* environment variables onto a
// package-level viper instance.
package config

import (
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Config is every externally-tunable knob the composition root needs to
// construct the backing-system adapters, the orchestrator, and the
// reconciler.
type Config struct {
	NodeEnv string `mapstructure:"NODE_ENV"`

	S3Endpoint        string `mapstructure:"S3_ENDPOINT"`
	S3AccessKeyID     string `mapstructure:"S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `mapstructure:"S3_SECRET_ACCESS_KEY"`
	S3Bucket          string `mapstructure:"S3_BUCKET"`
	S3Region          string `mapstructure:"S3_REGION"`

	DatabaseURL string `mapstructure:"DATABASE_URL"`

	NatsURL    string `mapstructure:"NATS_URL"`
	NatsStream string `mapstructure:"NATS_STREAM"`

	// RedisURL backs the distributed rate limiter. Not named in the
	// original environment-variable list; added because a distributed
	// fixed-window counter needs a shared store address. Empty means "use
	// the in-memory limiter" (single-process deployments, tests).
	RedisURL string `mapstructure:"REDIS_URL"`

	RateLimitMax      int `mapstructure:"RATE_LIMIT_MAX"`
	RateLimitWindowMS int `mapstructure:"RATE_LIMIT_WINDOW_MS"`

	ReconcileStuckUploadAgeMS  int `mapstructure:"RECONCILE_STUCK_UPLOAD_AGE_MS"`
	ReconcileMissingEventAgeMS int `mapstructure:"RECONCILE_MISSING_EVENT_AGE_MS"`
	ReconcileOrphanIntentAgeMS int `mapstructure:"RECONCILE_ORPHAN_INTENT_AGE_MS"`
}

var envKeys = []string{
	"NODE_ENV",
	"S3_ENDPOINT", "S3_ACCESS_KEY_ID", "S3_SECRET_ACCESS_KEY", "S3_BUCKET", "S3_REGION",
	"DATABASE_URL",
	"NATS_URL", "NATS_STREAM", "REDIS_URL",
	"RATE_LIMIT_MAX", "RATE_LIMIT_WINDOW_MS",
	"RECONCILE_STUCK_UPLOAD_AGE_MS", "RECONCILE_MISSING_EVENT_AGE_MS", "RECONCILE_ORPHAN_INTENT_AGE_MS",
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"NODE_ENV":                       "development",
		"S3_REGION":                      "us-east-1",
		"RATE_LIMIT_MAX":                 60,
		"RATE_LIMIT_WINDOW_MS":           60_000,
		"RECONCILE_STUCK_UPLOAD_AGE_MS":  int(10 * time.Minute / time.Millisecond),
		"RECONCILE_MISSING_EVENT_AGE_MS": int(5 * time.Minute / time.Millisecond),
		"RECONCILE_ORPHAN_INTENT_AGE_MS": int(time.Hour / time.Millisecond),
	}
}

// Load reads the environment, falling back to the defaults above, and
// decodes it into a Config. No config file is read.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	for key, val := range defaults() {
		v.SetDefault(key, val)
	}
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, errors.Wrapf(err, "config: binding %s", key)
		}
	}

	var c Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		// Environment variables always arrive as strings; viper's defaults
		// don't. WeaklyTypedInput lets both land on the same int/string
		// struct fields without a per-key cast pass here.
		WeaklyTypedInput: true,
		Result:           &c,
	})
	if err != nil {
		return nil, errors.Wrap(err, "config: building decoder")
	}
	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, errors.Wrap(err, "config: decoding settings")
	}
	return &c, nil
}

// StuckUploadGrace is ReconcileStuckUploadAgeMS as a time.Duration.
func (c *Config) StuckUploadGrace() time.Duration {
	return time.Duration(c.ReconcileStuckUploadAgeMS) * time.Millisecond
}

// MissingEventGrace is ReconcileMissingEventAgeMS as a time.Duration.
func (c *Config) MissingEventGrace() time.Duration {
	return time.Duration(c.ReconcileMissingEventAgeMS) * time.Millisecond
}

// OrphanIntentGrace is ReconcileOrphanIntentAgeMS as a time.Duration.
func (c *Config) OrphanIntentGrace() time.Duration {
	return time.Duration(c.ReconcileOrphanIntentAgeMS) * time.Millisecond
}

// RateLimitWindow is RateLimitWindowMS as a time.Duration.
func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowMS) * time.Millisecond
}
