// Package sentryutil reports unit failures to Sentry. A Reporter without a
// DSN is a no-op, so callers never need to check whether reporting is on.
package sentryutil

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/hupe1980/agentcore/core"
	"github.com/hupe1980/agentcore/engine"
)

// Config holds Sentry configuration.
type Config struct {
	DSN              string
	Environment      string
	Release          string
	TracesSampleRate float64
	Debug            bool

	// Transport overrides the HTTP transport, mainly for tests.
	Transport sentry.Transport
}

// Reporter captures errors on its own hub.
type Reporter struct {
	hub *sentry.Hub
}

// New creates a Reporter. An empty DSN yields a disabled reporter.
func New(cfg Config) (*Reporter, error) {
	if cfg.DSN == "" {
		return &Reporter{}, nil
	}

	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          cfg.Release,
		TracesSampleRate: cfg.TracesSampleRate,
		Debug:            cfg.Debug,
		AttachStacktrace: true,
		Transport:        cfg.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Sentry: %w", err)
	}

	return &Reporter{hub: sentry.NewHub(client, sentry.NewScope())}, nil
}

// Enabled reports whether events are sent anywhere.
func (r *Reporter) Enabled() bool { return r != nil && r.hub != nil }

// CaptureError captures err with additional tags and extras. Cancellations
// are expected control flow and are not reported.
func (r *Reporter) CaptureError(err error, tags map[string]string, extras map[string]any) {
	if !r.Enabled() || err == nil {
		return
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, core.ErrCancelled) {
		return
	}

	r.hub.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		for k, v := range extras {
			scope.SetExtra(k, v)
		}
		r.hub.CaptureException(err)
	})
}

// CaptureMessage captures message with level.
func (r *Reporter) CaptureMessage(message string, level sentry.Level, tags map[string]string) {
	if !r.Enabled() {
		return
	}

	r.hub.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		scope.SetLevel(level)
		r.hub.CaptureMessage(message)
	})
}

// Flush waits for queued events to be sent.
func (r *Reporter) Flush(timeout time.Duration) bool {
	if !r.Enabled() {
		return true
	}
	return r.hub.Flush(timeout)
}

// Callback returns an engine OnError callback that reports failed agent
// runs and tool calls.
func (r *Reporter) Callback() engine.Callback {
	return engine.NewFunctionCallback(engine.CallbackOnError, func(_ context.Context, cb *engine.CallbackContext) error {
		r.CaptureError(cb.Err, map[string]string{
			"unit":   cb.Name,
			"engine": cb.EngineID.String(),
		}, map[string]any{
			"caller": cb.Caller.String(),
			"user":   cb.User,
		})
		return nil
	})
}
