package testutil

import (
	"encoding/json"
	"sync/atomic"

	"github.com/hupe1980/agentcore/core"
)

// EchoTool returns its "text" argument (or the raw args) as output.
type EchoTool struct {
	ToolName string
	Terminal bool
	InitErr  error

	calls atomic.Int64
	inits atomic.Int64
}

// NewEchoTool returns an echo tool named "echo".
func NewEchoTool() *EchoTool { return &EchoTool{ToolName: "echo"} }

// Name implements core.Tool.
func (t *EchoTool) Name() string { return t.ToolName }

// Definition implements core.Tool.
func (t *EchoTool) Definition() core.FunctionDefinition {
	return core.FunctionDefinition{
		Name:        t.ToolName,
		Description: "Echoes the given text.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"text": map[string]any{"type": "string"},
			},
		},
	}
}

// Call implements core.Tool.
func (t *EchoTool) Call(ctx *core.BaseCtx, args string) (core.ToolResult, error) {
	t.calls.Add(1)

	if err := ctx.Err(); err != nil {
		return core.ToolResult{}, err
	}

	var in struct {
		Text *string `json:"text"`
	}
	if err := json.Unmarshal([]byte(args), &in); err == nil && in.Text != nil {
		return core.ToolResult{Output: *in.Text, Continue: !t.Terminal}, nil
	}

	return core.ToolResult{Output: args, Continue: !t.Terminal}, nil
}

// Init implements core.ToolInitializer.
func (t *EchoTool) Init(_ *core.BaseCtx) error {
	t.inits.Add(1)
	return t.InitErr
}

// Calls returns how often Call ran.
func (t *EchoTool) Calls() int64 { return t.calls.Load() }

// Inits returns how often Init ran.
func (t *EchoTool) Inits() int64 { return t.inits.Load() }

// AgentFunc adapts a function to core.Agent.
type AgentFunc struct {
	AgentName string
	Deps      []string
	Fn        func(ctx *core.AgentCtx, prompt string, attachment []byte) (core.AgentOutput, error)
	InitFn    func(ctx *core.AgentCtx) error
}

// Name implements core.Agent.
func (a *AgentFunc) Name() string { return a.AgentName }

// Definition implements core.Agent.
func (a *AgentFunc) Definition() core.FunctionDefinition {
	return core.FunctionDefinition{
		Name:        a.AgentName,
		Description: "Test agent " + a.AgentName,
		Parameters:  core.PromptParameters("prompt"),
	}
}

// ToolDependencies implements core.Agent.
func (a *AgentFunc) ToolDependencies() []string { return a.Deps }

// Run implements core.Agent.
func (a *AgentFunc) Run(ctx *core.AgentCtx, prompt string, attachment []byte) (core.AgentOutput, error) {
	return a.Fn(ctx, prompt, attachment)
}

// Init implements core.AgentInitializer.
func (a *AgentFunc) Init(ctx *core.AgentCtx) error {
	if a.InitFn == nil {
		return nil
	}
	return a.InitFn(ctx)
}

// NewParrotAgent returns an agent that answers with its prompt.
func NewParrotAgent(name string, deps ...string) *AgentFunc {
	return &AgentFunc{
		AgentName: name,
		Deps:      deps,
		Fn: func(_ *core.AgentCtx, prompt string, _ []byte) (core.AgentOutput, error) {
			return core.AgentOutput{Content: prompt}, nil
		},
	}
}

// NewEchoingAgent returns an agent that calls the echo tool with the prompt
// and answers with the tool output.
func NewEchoingAgent(name, toolName string) *AgentFunc {
	return &AgentFunc{
		AgentName: name,
		Deps:      []string{toolName},
		Fn: func(ctx *core.AgentCtx, prompt string, _ []byte) (core.AgentOutput, error) {
			args, _ := json.Marshal(map[string]string{"text": prompt})

			res, err := ctx.ToolCall(toolName, string(args))
			if err != nil {
				return core.AgentOutput{}, err
			}

			return core.AgentOutput{Content: res.Output}, nil
		},
	}
}

// NewFailingAgent returns an agent that always fails with err.
func NewFailingAgent(name string, err error) *AgentFunc {
	return &AgentFunc{
		AgentName: name,
		Fn: func(_ *core.AgentCtx, _ string, _ []byte) (core.AgentOutput, error) {
			return core.AgentOutput{}, err
		},
	}
}

// BlockingAgent blocks until its context is cancelled. Started receives one
// value per run once the agent is waiting.
type BlockingAgent struct {
	AgentFunc
	Started chan *core.AgentCtx
}

// NewBlockingAgent returns a blocking agent.
func NewBlockingAgent(name string) *BlockingAgent {
	b := &BlockingAgent{Started: make(chan *core.AgentCtx, 16)}
	b.AgentName = name
	b.Fn = func(ctx *core.AgentCtx, _ string, _ []byte) (core.AgentOutput, error) {
		b.Started <- ctx
		<-ctx.Done()
		return core.AgentOutput{}, ctx.Err()
	}
	return b
}

var (
	_ core.Tool             = (*EchoTool)(nil)
	_ core.ToolInitializer  = (*EchoTool)(nil)
	_ core.Agent            = (*AgentFunc)(nil)
	_ core.AgentInitializer = (*AgentFunc)(nil)
)
