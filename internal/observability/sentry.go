package observability

import (
	"os"
	"time"

	"github.com/getsentry/sentry-go"
)

// SentryConfig holds error reporting configuration.
type SentryConfig struct {
	DSN         string
	Environment string
	Release     string
}

// SentryConfigFromEnv reads SENTRY_DSN, SENTRY_ENVIRONMENT and APP_VERSION.
func SentryConfigFromEnv() SentryConfig {
	cfg := SentryConfig{
		DSN:         os.Getenv("SENTRY_DSN"),
		Environment: os.Getenv("SENTRY_ENVIRONMENT"),
		Release:     os.Getenv("APP_VERSION"),
	}
	if cfg.Environment == "" {
		cfg.Environment = "production"
	}
	if cfg.Release == "" {
		cfg.Release = "dev"
	}
	return cfg
}

// InitSentry initialises the global Sentry hub when a DSN is configured.
// The returned flush func is safe to call even when Sentry is disabled.
func InitSentry(cfg SentryConfig, logger Logger) (flush func(), enabled bool) {
	flush = func() {}
	if cfg.DSN == "" {
		return flush, false
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          cfg.Release,
		AttachStacktrace: true,
	})
	if err != nil {
		logger.Warn("sentry initialization failed", "error", err)
		return flush, false
	}
	logger.Info("sentry initialized", "environment", cfg.Environment, "release", cfg.Release)
	return func() { sentry.Flush(2 * time.Second) }, true
}

// CaptureError reports err to Sentry. It is a no-op when Sentry is not
// initialised.
func CaptureError(err error) {
	if err == nil {
		return
	}
	sentry.CaptureException(err)
}
