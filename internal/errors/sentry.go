package errors

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
)

// SentryConfig controls Sentry error reporting.
type SentryConfig struct {
	DSN         string
	Environment string
	Release     string
	SampleRate  float64
}

// InitSentry initializes the Sentry client and installs it as the error
// reporter. It returns a flush function to call on shutdown. An empty DSN is a
// no-op.
func InitSentry(cfg SentryConfig) (func(), error) {
	if cfg.DSN == "" {
		return func() {}, nil
	}
	sampleRate := cfg.SampleRate
	if sampleRate <= 0 {
		sampleRate = 1.0
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: cfg.Environment,
		Release:     cfg.Release,
		SampleRate:  sampleRate,
	}); err != nil {
		return func() {}, fmt.Errorf("sentry init: %w", err)
	}

	SetReporter(func(ee *EnhancedError) {
		sentry.WithScope(func(scope *sentry.Scope) {
			scope.SetTag("component", ee.Component())
			scope.SetTag("category", string(ee.Category()))
			if ctx := ee.Context(); len(ctx) > 0 {
				scope.SetContext("details", ctx)
			}
			sentry.CaptureException(ee.Err)
		})
	})

	return func() {
		SetReporter(nil)
		sentry.Flush(2 * time.Second)
	}, nil
}
