package sentryutil

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentcore/core"
	"github.com/hupe1980/agentcore/engine"
)

type recordingTransport struct {
	mu     sync.Mutex
	events []*sentry.Event
}

func (t *recordingTransport) Configure(sentry.ClientOptions)        {}
func (t *recordingTransport) Flush(time.Duration) bool              { return true }
func (t *recordingTransport) FlushWithContext(context.Context) bool { return true }
func (t *recordingTransport) Close()                                {}

func (t *recordingTransport) SendEvent(e *sentry.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, e)
}

func (t *recordingTransport) Events() []*sentry.Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*sentry.Event(nil), t.events...)
}

func newReporter(t *testing.T) (*Reporter, *recordingTransport) {
	t.Helper()

	tr := &recordingTransport{}
	r, err := New(Config{DSN: "https://public@example.com/1", Transport: tr})
	require.NoError(t, err)
	require.True(t, r.Enabled())

	return r, tr
}

func TestDisabled(t *testing.T) {
	r, err := New(Config{})
	require.NoError(t, err)
	assert.False(t, r.Enabled())

	r.CaptureError(errors.New("boom"), nil, nil)
	r.CaptureMessage("hello", sentry.LevelInfo, nil)
	assert.True(t, r.Flush(time.Millisecond))

	var nilReporter *Reporter
	assert.False(t, nilReporter.Enabled())
}

func TestCaptureError(t *testing.T) {
	r, tr := newReporter(t)

	r.CaptureError(errors.New("boom"), map[string]string{"unit": "echo"}, map[string]any{"user": "alice"})
	r.CaptureError(fmt.Errorf("run: %w", core.ErrCancelled), nil, nil)
	r.CaptureError(context.Canceled, nil, nil)
	r.CaptureError(nil, nil, nil)

	events := tr.Events()
	require.Len(t, events, 1, "cancellations and nil errors are skipped")
	assert.Equal(t, "echo", events[0].Tags["unit"])
	assert.Equal(t, "alice", events[0].Extra["user"])
}

func TestCaptureMessage(t *testing.T) {
	r, tr := newReporter(t)

	r.CaptureMessage("rate limit exceeded", sentry.LevelWarning, map[string]string{"caller": "x"})

	events := tr.Events()
	require.Len(t, events, 1)
	assert.Equal(t, sentry.LevelWarning, events[0].Level)
	assert.Equal(t, "rate limit exceeded", events[0].Message)
}

func TestCallback(t *testing.T) {
	r, tr := newReporter(t)

	cb := r.Callback()
	assert.Equal(t, engine.CallbackOnError, cb.Type())

	err := cb.Execute(context.Background(), &engine.CallbackContext{
		Name:   "researcher",
		Caller: core.AnonymousPrincipal,
		User:   "bob",
		Err:    errors.New("model unavailable"),
	})
	require.NoError(t, err)

	events := tr.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "researcher", events[0].Tags["unit"])
	assert.Equal(t, "bob", events[0].Extra["user"])
}
