package agent

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/hupe1980/agentcore/core"
	"github.com/hupe1980/agentcore/logging"
	"github.com/hupe1980/agentcore/model"
)

// ModelAgentOptions configures a ModelAgent instance.
//
// Use functional options with NewModelAgent to override defaults.
type ModelAgentOptions struct {
	Description        string
	Instruction        Instruction
	Tools              []string
	MaxTurns           int
	MaxTokens          int
	Temperature        *float64
	ToolChoiceRequired bool
	MaxHistoryMessages int
}

// ModelAgent talks to the engine's model and lets it call tools.
//
// Every turn sends the conversation to the model through AgentCtx.Completion,
// which executes the requested tools. The loop keeps going while every tool
// call of a turn asked to continue; it ends on a plain answer, on a terminal
// tool result (for example a submit tool) or after MaxTurns.
type ModelAgent struct {
	BaseAgent
	opts ModelAgentOptions
}

// NewModelAgent creates a new model-based agent.
//
// Defaults:
//   - instruction "You are {{.agent}}, a helpful AI assistant."
//   - no tools
//   - at most 10 model turns per run
//   - 20 history messages carried between turns
func NewModelAgent(name string, optFns ...func(o *ModelAgentOptions)) *ModelAgent {
	opts := ModelAgentOptions{
		Instruction:        NewInstructionFromText("You are {{.agent}}, a helpful AI assistant."),
		MaxTurns:           10,
		MaxHistoryMessages: 20,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	base := NewBaseAgent(name, opts.Tools...)
	if opts.Description != "" {
		base.SetDescription(opts.Description)
	}

	return &ModelAgent{BaseAgent: base, opts: opts}
}

// Run implements core.Agent.
func (a *ModelAgent) Run(ctx *core.AgentCtx, prompt string, attachment []byte) (core.AgentOutput, error) {
	start := time.Now()

	ctx.LogDebug("agent.run.start", "agent", a.Name(), "tools", len(a.opts.Tools))

	system, err := a.opts.Instruction.Resolve(ctx)
	if err != nil {
		return core.AgentOutput{}, fmt.Errorf("resolve instruction: %w", err)
	}

	var tools []core.FunctionDefinition
	if len(a.opts.Tools) > 0 {
		tools = ctx.ToolDefinitions(a.opts.Tools)
	}

	req := core.CompletionRequest{
		System:             system,
		Prompt:             prompt,
		Tools:              tools,
		ToolChoiceRequired: a.opts.ToolChoiceRequired && len(tools) > 0,
		MaxTokens:          a.opts.MaxTokens,
		Temperature:        a.opts.Temperature,
	}

	if len(attachment) > 0 && utf8.Valid(attachment) {
		req.ChatHistory = []core.Message{{Role: core.RoleUser, Content: string(attachment)}}
	}

	var (
		usage core.Usage
		out   core.AgentOutput
	)

	modelName := model.Name(ctx.Model())

	for turn := 1; ; turn++ {
		callStart := time.Now()
		out, err = ctx.Completion(req)
		logging.RecordModelCall(ctx.Logger(), modelName, out.Usage.InputTokens, out.Usage.OutputTokens, time.Since(callStart), err)
		addUsage(&usage, out.Usage)
		if err != nil {
			ctx.LogError("agent.run.error", "agent", a.Name(), "turn", turn, "error", err.Error())
			return core.AgentOutput{}, err
		}

		if !continueLoop(out.ToolCalls) {
			break
		}

		if turn >= a.opts.MaxTurns {
			ctx.LogWarn("agent.run.max_turns", "agent", a.Name(), "turns", turn)
			break
		}

		ctx.LogDebug("agent.run.turn", "agent", a.Name(), "turn", turn, "tool_calls", len(out.ToolCalls))

		// Later turns carry the conversation instead of the prompt; the
		// first model reply already contains it.
		req.Prompt = ""
		req.ChatHistory = trimHistory(out.FullHistory, a.opts.MaxHistoryMessages)
		req.ToolChoiceRequired = false
	}

	out.Usage = usage

	ctx.LogDebug("agent.run.complete", "agent", a.Name(), "duration_ms", time.Since(start).Milliseconds())

	return out, nil
}

// continueLoop reports whether the model should see the tool results.
func continueLoop(calls []core.ToolCall) bool {
	if len(calls) == 0 {
		return false
	}
	for _, c := range calls {
		if !c.Continue {
			return false
		}
	}
	return true
}

// trimHistory keeps the last max messages. A leading tool message would be
// orphaned from its assistant call, so the cut moves forward past it.
func trimHistory(history []core.Message, max int) []core.Message {
	if max <= 0 || len(history) <= max {
		return history
	}

	cut := len(history) - max
	for cut < len(history) && history[cut].Role == core.RoleTool {
		cut++
	}

	return history[cut:]
}

var _ core.Agent = (*ModelAgent)(nil)
