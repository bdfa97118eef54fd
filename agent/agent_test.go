package agent

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentcore/core"
	"github.com/hupe1980/agentcore/engine"
	"github.com/hupe1980/agentcore/internal/testutil"
	"github.com/hupe1980/agentcore/logging"
	"github.com/hupe1980/agentcore/model"
)

type engineSetup struct {
	model     core.Model
	tools     []core.Tool
	maxCalls  int
	agents    []core.Agent
	defaultAg string
	logger    logging.Logger
}

func newEngine(t *testing.T, s engineSetup) *engine.Engine {
	t.Helper()

	if s.model == nil {
		s.model = model.NewMockModel("mock")
	}

	b := engine.NewBuilder().WithModel(s.model).WithMaxModelCalls(s.maxCalls).WithLogger(s.logger)
	require.NoError(t, b.RegisterTools(s.tools...))
	require.NoError(t, b.RegisterAgents(s.agents...))

	names := make([]string, len(s.agents))
	for i, a := range s.agents {
		names[i] = a.Name()
	}
	b.ExportAgents(names...)

	def := s.defaultAg
	if def == "" {
		def = names[len(names)-1]
	}

	e, err := b.Build(def)
	require.NoError(t, err)
	t.Cleanup(e.Cancel)

	return e
}

func run(t *testing.T, e *engine.Engine, name, prompt string) (core.AgentOutput, error) {
	t.Helper()
	return e.AgentRun(context.Background(), name, prompt, nil, core.AnonymousPrincipal, "alice")
}

func TestModelAgentToolLoop(t *testing.T) {
	m := model.NewMockModel("mock")
	m.Enqueue(
		testutil.NewOutputBuilder().ToolCall("echo", `{"text":"hi"}`).Build(),
		testutil.NewOutputBuilder().Text("done").Build(),
	)

	echo := testutil.NewEchoTool()
	a := NewModelAgent("helper", func(o *ModelAgentOptions) { o.Tools = []string{"echo"} })

	e := newEngine(t, engineSetup{model: m, tools: []core.Tool{echo}, agents: []core.Agent{a}})

	out, err := run(t, e, "helper", "say hi")
	require.NoError(t, err)
	assert.Equal(t, "done", out.Content)
	assert.EqualValues(t, 1, echo.Calls())
	assert.Equal(t, int64(len("say hi")), out.Usage.InputTokens)

	reqs := m.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "say hi", reqs[0].Prompt)
	require.Len(t, reqs[0].Tools, 1)
	assert.Equal(t, "echo", reqs[0].Tools[0].Name)

	assert.Empty(t, reqs[1].Prompt)
	history := reqs[1].ChatHistory
	require.NotEmpty(t, history)
	last := history[len(history)-1]
	assert.Equal(t, core.RoleTool, last.Role)
	assert.Equal(t, "hi", last.Content)
	assert.Equal(t, "call_1", last.ToolCallID)
}

func TestModelAgentLogsModelCalls(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewLogger(&logging.LoggerConfig{Level: logging.LogLevelInfo, Format: "text", Output: &buf})

	e := newEngine(t, engineSetup{logger: logger, agents: []core.Agent{NewModelAgent("helper")}})

	_, err := run(t, e, "helper", "ping")
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "msg=model.call.success")
	assert.Contains(t, buf.String(), "model=mock")
	assert.Contains(t, buf.String(), "input_tokens=4")
	assert.Contains(t, buf.String(), "path=A:helper")
}

func TestModelAgentTerminalTool(t *testing.T) {
	m := model.NewMockModel("mock")
	m.Enqueue(testutil.NewOutputBuilder().ToolCall("finish", `{"text":"result"}`).Build())

	finish := &testutil.EchoTool{ToolName: "finish", Terminal: true}
	a := NewModelAgent("helper", func(o *ModelAgentOptions) { o.Tools = []string{"finish"} })

	e := newEngine(t, engineSetup{model: m, tools: []core.Tool{finish}, agents: []core.Agent{a}})

	out, err := run(t, e, "", "go")
	require.NoError(t, err)
	require.Len(t, out.ToolCalls, 1)
	assert.Equal(t, "result", out.ToolCalls[0].Result)
	assert.False(t, out.ToolCalls[0].Continue)
	assert.Len(t, m.Requests(), 1)
}

func TestModelAgentMaxTurns(t *testing.T) {
	m := model.NewMockModel("mock")
	for range 3 {
		m.Enqueue(testutil.NewOutputBuilder().ToolCall("echo", `{"text":"again"}`).Build())
	}

	a := NewModelAgent("helper", func(o *ModelAgentOptions) {
		o.Tools = []string{"echo"}
		o.MaxTurns = 2
	})

	e := newEngine(t, engineSetup{model: m, tools: []core.Tool{testutil.NewEchoTool()}, agents: []core.Agent{a}})

	_, err := run(t, e, "helper", "loop")
	require.NoError(t, err)
	assert.Len(t, m.Requests(), 2)
}

func TestModelAgentModelCallLimit(t *testing.T) {
	m := model.NewMockModel("mock")
	m.Enqueue(
		testutil.NewOutputBuilder().ToolCall("echo", `{"text":"a"}`).Build(),
		testutil.NewOutputBuilder().ToolCall("echo", `{"text":"b"}`).Build(),
	)

	a := NewModelAgent("helper", func(o *ModelAgentOptions) { o.Tools = []string{"echo"} })

	e := newEngine(t, engineSetup{model: m, maxCalls: 1, tools: []core.Tool{testutil.NewEchoTool()}, agents: []core.Agent{a}})

	_, err := run(t, e, "helper", "x")
	assert.ErrorIs(t, err, core.ErrModelCallLimit)
}

func TestModelAgentInstructionTemplate(t *testing.T) {
	m := model.NewMockModel("mock")
	a := NewModelAgent("Helper", func(o *ModelAgentOptions) {
		o.Instruction = NewInstructionFromText("You are {{.agent}} working for {{.user}}.")
		o.Description = "Helps."
	})

	assert.Equal(t, "Helps.", a.Definition().Description)
	assert.Equal(t, "Helper", a.Name())

	e := newEngine(t, engineSetup{model: m, agents: []core.Agent{a}})

	out, err := run(t, e, "HELPER", "hello")
	require.NoError(t, err)
	assert.Equal(t, "Mock response to: hello", out.Content)

	require.Len(t, m.Requests(), 1)
	assert.Equal(t, "You are helper working for alice.", m.Requests()[0].System)
	assert.Empty(t, m.Requests()[0].Tools)
}

func TestInstructionProvider(t *testing.T) {
	i := NewInstructionFromFunc(func(ctx *core.AgentCtx) (string, error) {
		return "caller " + ctx.Caller().String(), nil
	})
	assert.False(t, i.IsStatic())
	assert.True(t, NewInstructionFromText("x").IsStatic())

	m := model.NewMockModel("mock")
	a := NewModelAgent("helper", func(o *ModelAgentOptions) { o.Instruction = i })
	e := newEngine(t, engineSetup{model: m, agents: []core.Agent{a}})

	_, err := run(t, e, "helper", "hi")
	require.NoError(t, err)
	assert.Equal(t, "caller "+core.AnonymousPrincipal.String(), m.Requests()[0].System)
}

func TestTrimHistory(t *testing.T) {
	history := []core.Message{
		{Role: core.RoleUser},
		{Role: core.RoleAssistant},
		{Role: core.RoleTool},
		{Role: core.RoleTool},
		{Role: core.RoleAssistant},
	}

	assert.Len(t, trimHistory(history, 0), 5)
	assert.Len(t, trimHistory(history, 10), 5)

	trimmed := trimHistory(history, 3)
	require.Len(t, trimmed, 1)
	assert.Equal(t, core.RoleAssistant, trimmed[0].Role)
}

// mockModel is a testify mock for scripting single completions.
type mockModel struct {
	mock.Mock
}

func (m *mockModel) Completion(ctx context.Context, req core.CompletionRequest) (core.AgentOutput, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(core.AgentOutput), args.Error(1)
}

type Contact struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

func TestExtractor(t *testing.T) {
	m := new(mockModel)
	m.On("Completion", mock.Anything, mock.MatchedBy(func(req core.CompletionRequest) bool {
		return req.ToolChoiceRequired && len(req.Tools) == 1 && req.Tools[0].Name == "submit_contact" && req.Tools[0].IsStrict()
	})).Return(testutil.NewOutputBuilder().ToolCall("submit_contact", `{"name":"Ada","email":"ada@example.com"}`).Build(), nil)

	ex := NewExtractor[Contact]()
	assert.Equal(t, "contact_extractor", ex.Name())
	assert.Equal(t, "submit_contact", ex.SubmitTool().Name())

	e := newEngine(t, engineSetup{model: m, agents: []core.Agent{ex}})

	ctx, err := e.CtxWith(ex.Name(), core.AnonymousPrincipal, "")
	require.NoError(t, err)
	defer ctx.Cancel()

	c, _, err := ex.Extract(ctx, "Ada, reach her at ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, Contact{Name: "Ada", Email: "ada@example.com"}, c)

	out, err := run(t, e, ex.Name(), "again")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Ada","email":"ada@example.com"}`, out.Content)

	m.AssertNumberOfCalls(t, "Completion", 2)
}

func TestExtractorNoToolCalls(t *testing.T) {
	m := new(mockModel)
	m.On("Completion", mock.Anything, mock.Anything).
		Return(testutil.NewOutputBuilder().Text("I refuse").Build(), nil)

	ex := NewExtractor[Contact](func(o *ExtractorOptions) { o.Name = "People" })
	assert.Equal(t, "people", ex.Name())

	e := newEngine(t, engineSetup{model: m, agents: []core.Agent{ex}})

	_, err := run(t, e, "people", "nothing here")
	assert.ErrorIs(t, err, ErrNoToolCalls)
	assert.Contains(t, err.Error(), "no tool_calls")
}

func TestExtractorInvalidSubmission(t *testing.T) {
	m := new(mockModel)
	m.On("Completion", mock.Anything, mock.Anything).
		Return(testutil.NewOutputBuilder().ToolCall("submit_contact", `{"name":"Ada"}`).Build(), nil)

	ex := NewExtractor[Contact]()
	e := newEngine(t, engineSetup{model: m, agents: []core.Agent{ex}})

	_, err := run(t, e, ex.Name(), "x")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoToolCalls)
}

func upperAgent(name string) *testutil.AgentFunc {
	return &testutil.AgentFunc{
		AgentName: name,
		Fn: func(_ *core.AgentCtx, prompt string, _ []byte) (core.AgentOutput, error) {
			return core.AgentOutput{Content: strings.ToUpper(prompt), Usage: core.Usage{InputTokens: 1}}, nil
		},
	}
}

func suffixAgent(name, suffix string) *testutil.AgentFunc {
	return &testutil.AgentFunc{
		AgentName: name,
		Fn: func(_ *core.AgentCtx, prompt string, _ []byte) (core.AgentOutput, error) {
			return core.AgentOutput{Content: prompt + suffix, Usage: core.Usage{InputTokens: 1}}, nil
		},
	}
}

func TestSequentialAgent(t *testing.T) {
	up := upperAgent("up")
	bang := suffixAgent("bang", "!")
	seq := NewSequentialAgent("pipeline", up, bang)

	assert.Len(t, seq.Children(), 2)
	assert.Empty(t, seq.ToolDependencies())

	e := newEngine(t, engineSetup{agents: []core.Agent{up, bang, seq}})

	out, err := run(t, e, "pipeline", "hi")
	require.NoError(t, err)
	assert.Equal(t, "HI!", out.Content)
	assert.Equal(t, int64(2), out.Usage.InputTokens)
}

func TestSequentialAgentStops(t *testing.T) {
	boom := errors.New("boom")
	failing := testutil.NewFailingAgent("failing", boom)
	bang := suffixAgent("bang", "!")

	e := newEngine(t, engineSetup{agents: []core.Agent{failing, bang, NewSequentialAgent("pipeline", failing, bang)}})

	_, err := run(t, e, "pipeline", "hi")
	assert.ErrorIs(t, err, boom)

	refusing := &testutil.AgentFunc{
		AgentName: "refusing",
		Fn: func(_ *core.AgentCtx, _ string, _ []byte) (core.AgentOutput, error) {
			return core.AgentOutput{FailedReason: "refusal"}, nil
		},
	}

	e = newEngine(t, engineSetup{agents: []core.Agent{refusing, bang, NewSequentialAgent("pipeline", refusing, bang)}})

	out, err := run(t, e, "pipeline", "hi")
	require.NoError(t, err)
	assert.Equal(t, "refusal", out.FailedReason)
}

func TestParallelAgent(t *testing.T) {
	up := upperAgent("up")
	bang := suffixAgent("bang", "!")
	par := NewParallelAgent("fanout", []core.Agent{up, bang})

	e := newEngine(t, engineSetup{agents: []core.Agent{up, bang, par}})

	out, err := run(t, e, "fanout", "hi")
	require.NoError(t, err)
	assert.Equal(t, "[up]\nHI\n\n[bang]\nhi!", out.Content)
	assert.Equal(t, int64(2), out.Usage.InputTokens)
}

func TestParallelAgentFailureCancelsSiblings(t *testing.T) {
	boom := errors.New("boom")
	blocking := testutil.NewBlockingAgent("blocking")

	failing := &testutil.AgentFunc{
		AgentName: "failing",
		Fn: func(_ *core.AgentCtx, _ string, _ []byte) (core.AgentOutput, error) {
			<-blocking.Started
			return core.AgentOutput{}, boom
		},
	}

	par := NewParallelAgent("fanout", []core.Agent{blocking, failing})
	e := newEngine(t, engineSetup{agents: []core.Agent{blocking, failing, par}})

	_, err := run(t, e, "fanout", "hi")
	assert.ErrorIs(t, err, boom)
}

func TestParallelAgentTimeout(t *testing.T) {
	blocking := testutil.NewBlockingAgent("blocking")
	par := NewParallelAgent("fanout", []core.Agent{blocking}, func(o *ParallelOptions) {
		o.Timeout = 20 * time.Millisecond
		o.MaxConcurrency = 1
	})

	e := newEngine(t, engineSetup{agents: []core.Agent{blocking, par}})

	_, err := run(t, e, "fanout", "hi")
	assert.ErrorIs(t, err, core.ErrCancelled)
}

func counterAgent(name string, n *atomic.Int64) *testutil.AgentFunc {
	return &testutil.AgentFunc{
		AgentName: name,
		Fn: func(_ *core.AgentCtx, prompt string, _ []byte) (core.AgentOutput, error) {
			i := n.Add(1)
			return core.AgentOutput{Content: prompt + "+", Usage: core.Usage{OutputTokens: i}}, nil
		},
	}
}

func TestLoopAgent(t *testing.T) {
	t.Run("max iterations", func(t *testing.T) {
		var n atomic.Int64
		child := counterAgent("step", &n)
		e := newEngine(t, engineSetup{agents: []core.Agent{child, NewLoopAgent("loop", child, WithMaxIters(3))}})

		out, err := run(t, e, "loop", "x")
		require.NoError(t, err)
		assert.EqualValues(t, 3, n.Load())
		assert.Equal(t, "x+", out.Content)
		assert.Equal(t, int64(1+2+3), out.Usage.OutputTokens)
	})

	t.Run("feedback and predicate", func(t *testing.T) {
		var n atomic.Int64
		child := counterAgent("step", &n)
		loop := NewLoopAgent("loop", child, WithFeedback(), WithPredicate(func(s string) bool {
			return strings.HasSuffix(s, "+++")
		}))
		assert.Same(t, child, loop.Child())

		e := newEngine(t, engineSetup{agents: []core.Agent{child, loop}})

		out, err := run(t, e, "loop", "x")
		require.NoError(t, err)
		assert.Equal(t, "x+++", out.Content)
		assert.EqualValues(t, 3, n.Load())
	})

	t.Run("escalation", func(t *testing.T) {
		var n atomic.Int64
		child := &testutil.AgentFunc{
			AgentName: "step",
			Fn: func(_ *core.AgentCtx, _ string, _ []byte) (core.AgentOutput, error) {
				if n.Add(1) == 2 {
					return core.AgentOutput{}, ErrEscalated
				}
				return core.AgentOutput{Content: "working"}, nil
			},
		}
		e := newEngine(t, engineSetup{agents: []core.Agent{child, NewLoopAgent("loop", child)}})

		out, err := run(t, e, "loop", "x")
		require.NoError(t, err)
		assert.Equal(t, "working", out.Content)
		assert.EqualValues(t, 2, n.Load())
	})

	t.Run("escalate reason", func(t *testing.T) {
		child := &testutil.AgentFunc{
			AgentName: "step",
			Fn: func(_ *core.AgentCtx, _ string, _ []byte) (core.AgentOutput, error) {
				return core.AgentOutput{FailedReason: EscalateReason}, nil
			},
		}
		e := newEngine(t, engineSetup{agents: []core.Agent{child, NewLoopAgent("loop", child)}})

		out, err := run(t, e, "loop", "x")
		require.NoError(t, err)
		assert.Equal(t, EscalateReason, out.FailedReason)
	})

	t.Run("errors", func(t *testing.T) {
		boom := errors.New("boom")
		var n atomic.Int64
		child := &testutil.AgentFunc{
			AgentName: "step",
			Fn: func(_ *core.AgentCtx, _ string, _ []byte) (core.AgentOutput, error) {
				n.Add(1)
				return core.AgentOutput{}, boom
			},
		}

		e := newEngine(t, engineSetup{agents: []core.Agent{child, NewLoopAgent("loop", child, WithMaxIters(5))}})
		_, err := run(t, e, "loop", "x")
		assert.ErrorIs(t, err, boom)
		assert.EqualValues(t, 1, n.Load())

		n.Store(0)
		e = newEngine(t, engineSetup{agents: []core.Agent{child, NewLoopAgent("loop", child, WithMaxIters(4), WithStopOnError(false))}})
		_, err = run(t, e, "loop", "x")
		assert.NoError(t, err)
		assert.EqualValues(t, 4, n.Load())
	})

	t.Run("cancelled during interval", func(t *testing.T) {
		var n atomic.Int64
		child := counterAgent("step", &n)
		e := newEngine(t, engineSetup{agents: []core.Agent{child, NewLoopAgent("loop", child, WithInterval(time.Hour))}})

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err := e.AgentRun(ctx, "loop", "x", nil, core.AnonymousPrincipal, "")
		assert.ErrorIs(t, err, core.ErrCancelled)
		assert.EqualValues(t, 1, n.Load())
	})
}
