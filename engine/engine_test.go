package engine

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	otelcodes "go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/hupe1980/agentcore/core"
	"github.com/hupe1980/agentcore/internal/testutil"
	"github.com/hupe1980/agentcore/logging"
	"github.com/hupe1980/agentcore/model"
)

var bob = core.PrincipalFromBytes([]byte("bob"))

func echoParrotEngine(t *testing.T, opts ...func(b *Builder)) *Engine {
	t.Helper()

	b := NewBuilder().WithName("test engine")
	for _, fn := range opts {
		fn(b)
	}

	require.NoError(t, b.RegisterTool(testutil.NewEchoTool()))
	require.NoError(t, b.RegisterAgent(testutil.NewEchoingAgent("parrot", "echo")))

	e, err := b.ExportTools("echo").Build("Parrot")
	require.NoError(t, err)
	t.Cleanup(e.Cancel)

	return e
}

func TestEchoParrot(t *testing.T) {
	e := echoParrotEngine(t)
	ctx := context.Background()

	out, err := e.AgentRun(ctx, "", "hello", nil, bob, "alice")
	require.NoError(t, err)
	assert.Equal(t, "hello", out.Content)
	assert.Nil(t, out.FullHistory)

	out, err = e.AgentRun(ctx, "PARROT", "again", nil, core.AnonymousPrincipal, "")
	require.NoError(t, err)
	assert.Equal(t, "again", out.Content)

	res, err := e.ToolCall(ctx, "echo", `{"text":"direct"}`, bob, "")
	require.NoError(t, err)
	assert.Equal(t, core.ToolResult{Output: "direct", Continue: true}, res)

	assert.Equal(t, "parrot", e.DefaultAgent())
	assert.Equal(t, "test engine", e.Name())
	assert.Equal(t, core.AnonymousPrincipal, e.ID())
	assert.Zero(t, e.ActiveInvocations())
}

func TestUnknownOrInvalidNames(t *testing.T) {
	e := echoParrotEngine(t)
	ctx := context.Background()

	_, err := e.AgentRun(ctx, "missing", "x", nil, bob, "")
	assert.ErrorIs(t, err, core.ErrAgentNotFound)

	_, err = e.ToolCall(ctx, "missing", "{}", bob, "")
	assert.ErrorIs(t, err, core.ErrToolNotFound)

	_, err = e.AgentRun(ctx, "parrot", "x", nil, bob, "a/b")
	assert.ErrorIs(t, err, core.ErrInvalidUser)
}

func TestExportFiltering(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.RegisterTools(testutil.NewEchoTool(), &testutil.EchoTool{ToolName: "hidden"}))
	require.NoError(t, b.RegisterAgents(testutil.NewParrotAgent("parrot"), testutil.NewParrotAgent("internal")))

	e, err := b.ExportTools("echo").Build("parrot")
	require.NoError(t, err)
	defer e.Cancel()

	ctx := context.Background()

	_, err = e.ToolCall(ctx, "hidden", "{}", bob, "")
	assert.ErrorIs(t, err, core.ErrToolNotFound)

	_, err = e.AgentRun(ctx, "internal", "x", nil, bob, "")
	assert.ErrorIs(t, err, core.ErrAgentNotFound)

	info := e.Information(false)
	assert.Equal(t, "parrot", info.DefaultAgent)
	assert.Equal(t, DefaultName, info.Name)
	assert.Empty(t, info.AgentDefinitions)
	assert.Empty(t, info.ToolDefinitions)

	info = e.Information(true)
	require.Len(t, info.AgentDefinitions, 1)
	assert.Equal(t, "parrot", info.AgentDefinitions[0].Name)
	require.Len(t, info.ToolDefinitions, 1)
	assert.Equal(t, "echo", info.ToolDefinitions[0].Name)

	assert.Empty(t, e.ToolDefinitions([]string{"hidden"}))
	assert.Len(t, e.AgentDefinitions([]string{"PARROT", "internal"}), 1)

	// Internal units stay reachable from inside the engine.
	actx, err := e.CtxWith("parrot", bob, "")
	require.NoError(t, err)
	defer actx.Cancel()

	out, err := actx.AgentRun("internal", "inside", nil)
	require.NoError(t, err)
	assert.Equal(t, "inside", out.Content)

	_, err = e.CtxWith("internal", bob, "")
	assert.ErrorIs(t, err, core.ErrAgentNotFound)
}

func TestUnexportedToolUsedInternally(t *testing.T) {
	echo := testutil.NewEchoTool()

	b := NewBuilder()
	require.NoError(t, b.RegisterTool(echo))
	require.NoError(t, b.RegisterAgent(testutil.NewEchoingAgent("parrot", "echo")))

	e, err := b.Build("parrot")
	require.NoError(t, err)
	defer e.Cancel()

	ctx := context.Background()

	_, err = e.ToolCall(ctx, "echo", `{"text":"direct"}`, bob, "")
	assert.ErrorIs(t, err, core.ErrToolNotFound)
	assert.Zero(t, echo.Calls())

	out, err := e.AgentRun(ctx, "parrot", "via agent", nil, bob, "")
	require.NoError(t, err)
	assert.Equal(t, "via agent", out.Content)
	assert.EqualValues(t, 1, echo.Calls())
}

func TestAgentRunClearsFullHistory(t *testing.T) {
	var inner []core.Message
	historian := &testutil.AgentFunc{
		AgentName: "historian",
		Fn: func(ctx *core.AgentCtx, prompt string, _ []byte) (core.AgentOutput, error) {
			out, err := ctx.Completion(core.CompletionRequest{Prompt: prompt})
			inner = out.FullHistory
			return out, err
		},
	}

	b := NewBuilder().WithModel(model.NewMockModel("mock"))
	require.NoError(t, b.RegisterAgent(historian))

	e, err := b.Build("historian")
	require.NoError(t, err)
	defer e.Cancel()

	out, err := e.AgentRun(context.Background(), "", "remember this", nil, bob, "")
	require.NoError(t, err)
	assert.Equal(t, "Mock response to: remember this", out.Content)
	assert.NotEmpty(t, inner)
	assert.Nil(t, out.FullHistory)
}

func TestBuilderConsumedAfterBuild(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.RegisterTool(testutil.NewEchoTool()))
	require.NoError(t, b.RegisterAgent(testutil.NewParrotAgent("parrot")))

	e, err := b.ExportTools("echo").Build("parrot")
	require.NoError(t, err)
	defer e.Cancel()

	assert.ErrorIs(t, b.RegisterTool(&testutil.EchoTool{ToolName: "late"}), ErrBuilderConsumed)
	assert.ErrorIs(t, b.RegisterTools(&testutil.EchoTool{ToolName: "later"}), ErrBuilderConsumed)
	assert.ErrorIs(t, b.RegisterAgent(testutil.NewParrotAgent("late")), ErrBuilderConsumed)
	assert.ErrorIs(t, b.RegisterAgents(testutil.NewParrotAgent("later")), ErrBuilderConsumed)

	_, err = b.Build("parrot")
	assert.ErrorIs(t, err, ErrBuilderConsumed)

	assert.Equal(t, 1, e.ctx.Tools().Len())
	assert.Equal(t, 1, e.ctx.Agents().Len())

	b.ExportTools("late")
	_, err = e.ToolCall(context.Background(), "late", "{}", bob, "")
	assert.ErrorIs(t, err, core.ErrToolNotFound)
}

func TestInvocationLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewLogger(&logging.LoggerConfig{Level: logging.LogLevelInfo, Format: "text", Output: &buf})

	e := echoParrotEngine(t, func(b *Builder) {
		b.WithLogger(logger)
		b.WithCallbacks(NewFunctionCallback(CallbackBeforeTool, func(_ context.Context, c *CallbackContext) error {
			if c.User == "mallory" {
				return errors.New("denied")
			}
			return nil
		}))
	})

	ctx := context.Background()

	_, err := e.AgentRun(ctx, "", "hi", nil, bob, "alice")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "msg=agent.run.success")
	assert.Contains(t, buf.String(), "agent=parrot")
	assert.Contains(t, buf.String(), "user=alice")

	buf.Reset()
	_, err = e.ToolCall(ctx, "echo", "{}", bob, "mallory")
	require.Error(t, err)
	assert.Contains(t, buf.String(), "msg=tool.call.error")
	assert.Contains(t, buf.String(), "tool=echo")
	assert.Contains(t, buf.String(), "denied")
}

func TestBuilderErrors(t *testing.T) {
	t.Run("missing dependency", func(t *testing.T) {
		b := NewBuilder()
		parrot := testutil.NewEchoingAgent("parrot", "echo")
		err := b.RegisterAgent(parrot)
		assert.ErrorIs(t, err, core.ErrMissingDependency)

		_, err = b.Build("parrot")
		assert.ErrorIs(t, err, core.ErrDefaultAgentNotFound)

		require.NoError(t, b.RegisterTool(testutil.NewEchoTool()))
		assert.NoError(t, b.RegisterAgent(parrot))
	})

	t.Run("duplicate tool", func(t *testing.T) {
		b := NewBuilder()
		require.NoError(t, b.RegisterTool(testutil.NewEchoTool()))
		assert.ErrorIs(t, b.RegisterTool(testutil.NewEchoTool()), core.ErrDuplicateName)
	})

	t.Run("duplicate agent ignores case", func(t *testing.T) {
		b := NewBuilder()
		require.NoError(t, b.RegisterAgent(testutil.NewParrotAgent("parrot")))
		assert.ErrorIs(t, b.RegisterAgent(testutil.NewParrotAgent("Parrot")), core.ErrDuplicateName)
	})

	t.Run("bulk tools are atomic", func(t *testing.T) {
		b := NewBuilder()
		err := b.RegisterTools(&testutil.EchoTool{ToolName: "a"}, &testutil.EchoTool{ToolName: "a"})
		assert.ErrorIs(t, err, core.ErrDuplicateName)
		assert.NoError(t, b.RegisterTool(&testutil.EchoTool{ToolName: "a"}))
	})

	t.Run("bulk agents are atomic", func(t *testing.T) {
		b := NewBuilder()
		err := b.RegisterAgents(testutil.NewParrotAgent("ok"), testutil.NewEchoingAgent("needs", "echo"))
		assert.ErrorIs(t, err, core.ErrMissingDependency)
		assert.NoError(t, b.RegisterAgent(testutil.NewParrotAgent("ok")))
	})

	t.Run("default agent not found", func(t *testing.T) {
		b := NewBuilder()
		require.NoError(t, b.RegisterAgent(testutil.NewParrotAgent("parrot")))
		_, err := b.Build("other")
		assert.ErrorIs(t, err, core.ErrDefaultAgentNotFound)
	})
}

func TestBuildInitializers(t *testing.T) {
	echo := testutil.NewEchoTool()

	var initCtx *core.AgentCtx
	agent := testutil.NewParrotAgent("parrot", "echo")
	agent.InitFn = func(ctx *core.AgentCtx) error {
		initCtx = ctx
		return nil
	}

	b := NewBuilder().WithID(bob).WithName("init")
	require.NoError(t, b.RegisterTool(echo))
	require.NoError(t, b.RegisterAgent(agent))

	e, err := b.Build("parrot")
	require.NoError(t, err)

	assert.EqualValues(t, 1, echo.Inits())
	assert.Empty(t, e.Information(true).ToolDefinitions)
	require.NotNil(t, initCtx)
	assert.Equal(t, bob, initCtx.Caller())
	assert.Equal(t, "init", initCtx.User())
	assert.Equal(t, core.AgentPath("parrot"), initCtx.Path())
	assert.NoError(t, initCtx.Err())

	e.Cancel()
	assert.ErrorIs(t, initCtx.Err(), core.ErrCancelled)
}

func TestBuildInitFailureCancelsRoot(t *testing.T) {
	var initCtx *core.AgentCtx
	boom := errors.New("boom")

	agent := testutil.NewParrotAgent("parrot")
	agent.InitFn = func(ctx *core.AgentCtx) error {
		initCtx = ctx
		return boom
	}

	b := NewBuilder()
	require.NoError(t, b.RegisterAgent(agent))

	_, err := b.Build("parrot")
	assert.ErrorIs(t, err, boom)
	require.NotNil(t, initCtx)
	assert.ErrorIs(t, initCtx.Err(), core.ErrCancelled)

	echo := &testutil.EchoTool{ToolName: "echo", InitErr: boom}
	b = NewBuilder()
	require.NoError(t, b.RegisterTool(echo))
	require.NoError(t, b.RegisterAgent(testutil.NewParrotAgent("parrot")))

	_, err = b.Build("parrot")
	assert.ErrorIs(t, err, boom)
}

func TestCallerCancellation(t *testing.T) {
	blocking := testutil.NewBlockingAgent("blocking")

	b := NewBuilder()
	require.NoError(t, b.RegisterAgent(blocking))
	e, err := b.Build("blocking")
	require.NoError(t, err)
	defer e.Cancel()

	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, err := e.AgentRun(ctx, "", "wait", nil, bob, "")
		errCh <- err
	}()

	<-blocking.Started
	assert.Equal(t, 1, e.ActiveInvocations())

	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, core.ErrCancelled)
	case <-time.After(time.Second):
		t.Fatal("agent run did not observe cancellation")
	}

	assert.Zero(t, e.ActiveInvocations())
}

func TestCancelInvocationAndEngine(t *testing.T) {
	blocking := testutil.NewBlockingAgent("blocking")

	b := NewBuilder()
	require.NoError(t, b.RegisterAgent(blocking))
	e, err := b.Build("blocking")
	require.NoError(t, err)

	token, cancelToken := e.CancellationToken()
	cancelToken()
	assert.Error(t, token.Err())

	errCh := make(chan error, 2)
	run := func() {
		_, err := e.AgentRun(context.Background(), "", "wait", nil, bob, "")
		errCh <- err
	}

	go run()
	first := <-blocking.Started
	assert.True(t, e.CancelInvocation(first.ID()))
	assert.ErrorIs(t, <-errCh, core.ErrCancelled)
	assert.False(t, e.CancelInvocation(first.ID()))

	token, cancelToken = e.CancellationToken()
	defer cancelToken()

	go run()
	<-blocking.Started
	e.Cancel()
	assert.ErrorIs(t, <-errCh, core.ErrCancelled)
	assert.Error(t, token.Err())
}

func TestMaxConcurrentInvocations(t *testing.T) {
	blocking := testutil.NewBlockingAgent("blocking")

	b := NewBuilder().WithMaxConcurrentInvocations(1)
	require.NoError(t, b.RegisterAgent(blocking))
	e, err := b.Build("blocking")
	require.NoError(t, err)
	defer e.Cancel()

	go func() { _, _ = e.AgentRun(context.Background(), "", "wait", nil, bob, "") }()
	<-blocking.Started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = e.AgentRun(ctx, "", "second", nil, bob, "")
	assert.ErrorIs(t, err, core.ErrCancelled)
	assert.Equal(t, 1, e.ActiveInvocations())
}

func TestCallbacks(t *testing.T) {
	var seen []CallbackType
	record := func(ct CallbackType) Callback {
		return NewFunctionCallback(ct, func(_ context.Context, c *CallbackContext) error {
			seen = append(seen, c.CallbackType)
			return nil
		})
	}

	var failures atomic.Int64
	onError := NewFunctionCallback(CallbackOnError, func(_ context.Context, c *CallbackContext) error {
		failures.Add(1)
		assert.Error(t, c.Err)
		return nil
	})

	denyAnonymous := NewFunctionCallback(CallbackBeforeTool, func(_ context.Context, c *CallbackContext) error {
		if c.Caller.IsAnonymous() {
			return errors.New("anonymous callers may not call tools")
		}
		return nil
	})

	e := echoParrotEngine(t, func(b *Builder) {
		b.WithCallbacks(
			record(CallbackBeforeAgent), record(CallbackAfterAgent),
			record(CallbackBeforeTool), record(CallbackAfterTool),
			onError, denyAnonymous,
			NewLoggingCallback(CallbackAfterAgent, logging.NoOpLogger{}),
		)
	})

	ctx := context.Background()

	_, err := e.AgentRun(ctx, "", "hi", nil, bob, "")
	require.NoError(t, err)
	assert.Equal(t, []CallbackType{CallbackBeforeAgent, CallbackAfterAgent}, seen)

	seen = nil
	_, err = e.ToolCall(ctx, "echo", "{}", core.AnonymousPrincipal, "")
	assert.ErrorContains(t, err, "before_tool callback")
	assert.EqualValues(t, 1, failures.Load())

	_, err = e.ToolCall(ctx, "echo", "{}", bob, "")
	require.NoError(t, err)
	assert.Equal(t, []CallbackType{CallbackBeforeTool, CallbackBeforeTool, CallbackAfterTool}, seen)
}

func TestCallbackManager(t *testing.T) {
	cm := NewCallbackManager()
	assert.Zero(t, cm.Len())

	boom := errors.New("boom")
	cm.RegisterCallback(NewFunctionCallback(CallbackAfterTool, func(context.Context, *CallbackContext) error { return boom }))
	assert.Equal(t, 1, cm.Len())

	assert.NoError(t, cm.ExecuteCallbacks(context.Background(), CallbackBeforeTool, &CallbackContext{}))
	assert.ErrorIs(t, cm.ExecuteCallbacks(context.Background(), CallbackAfterTool, &CallbackContext{}), boom)
}

func TestInstrumentation(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	e := echoParrotEngine(t, func(b *Builder) {
		b.WithMeterProvider(mp).WithTracerProvider(tp)
	})

	ctx := context.Background()

	_, err := e.AgentRun(ctx, "", "hi", nil, bob, "")
	require.NoError(t, err)

	_, err = e.ToolCall(ctx, "echo", "not json at all", bob, "")
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "agentcore.invocations" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	assert.EqualValues(t, 2, total)

	spans := sr.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "agent parrot", spans[0].Name())
	assert.Equal(t, "tool echo", spans[1].Name())
	assert.NotEqual(t, otelcodes.Error, spans[0].Status().Code)
}
