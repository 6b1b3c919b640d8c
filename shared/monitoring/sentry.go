package monitoring

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
)

// SentryConfig holds sentry settings
type SentryConfig struct {
	DSN         string
	Environment string
	Release     string
}

// InitSentry initializes sentry error reporting. A missing DSN disables it.
func InitSentry(cfg SentryConfig) error {
	if cfg.DSN == "" {
		return nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: cfg.Environment,
		Release:     cfg.Release,
	})
	if err != nil {
		return fmt.Errorf("failed to init sentry: %w", err)
	}
	return nil
}

// FlushSentry flushes buffered events before shutdown
func FlushSentry() {
	sentry.Flush(2 * time.Second)
}

// CaptureError reports an error to sentry if it is enabled
func CaptureError(err error) {
	if err == nil {
		return
	}
	sentry.CaptureException(err)
}
