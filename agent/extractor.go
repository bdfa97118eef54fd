package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/agentcore/core"
	"github.com/hupe1980/agentcore/internal/util"
	"github.com/hupe1980/agentcore/tool"
)

// ErrNoToolCalls is returned by an Extractor when the model answered without
// calling the submit tool.
var ErrNoToolCalls = errors.New("no tool_calls")

// ExtractorOptions configure an Extractor.
type ExtractorOptions struct {
	Name        string
	Description string
	Instruction Instruction
	MaxTokens   int
}

// Extractor is an agent that turns free text into a value of type T. It
// offers the model a single strict submit tool and requires it to be called.
// The submit tool does not need to be registered with the engine.
type Extractor[T any] struct {
	BaseAgent
	submit *tool.SubmitTool[T]
	opts   ExtractorOptions
}

// NewExtractor creates an extractor for T named <type name>_extractor.
func NewExtractor[T any](optFns ...func(o *ExtractorOptions)) *Extractor[T] {
	var zero T

	title := util.SchemaTitle(zero)

	opts := ExtractorOptions{
		Name:        title + "_extractor",
		Description: fmt.Sprintf("Extracts %s data from the provided text.", title),
		Instruction: NewInstructionFromText(fmt.Sprintf(
			"Extract the %s information from the user's text and submit it with the provided tool. "+
				"Always call the tool.", title)),
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	base := NewBaseAgent(strings.ToLower(opts.Name))
	base.SetDescription(opts.Description)

	return &Extractor[T]{
		BaseAgent: base,
		submit:    tool.NewSubmitTool[T](),
		opts:      opts,
	}
}

// SubmitTool returns the tool offered to the model.
func (e *Extractor[T]) SubmitTool() *tool.SubmitTool[T] { return e.submit }

// Extract asks the model for T and decodes the first submit call. The raw
// completion output is returned alongside the value.
func (e *Extractor[T]) Extract(ctx *core.AgentCtx, prompt string) (T, core.AgentOutput, error) {
	var zero T

	system, err := e.opts.Instruction.Resolve(ctx)
	if err != nil {
		return zero, core.AgentOutput{}, fmt.Errorf("resolve instruction: %w", err)
	}

	out, err := ctx.Completion(core.CompletionRequest{
		System:             system,
		Prompt:             prompt,
		Tools:              []core.FunctionDefinition{e.submit.Definition()},
		ToolChoiceRequired: true,
		MaxTokens:          e.opts.MaxTokens,
	})
	if err != nil {
		return zero, out, err
	}

	for _, call := range out.ToolCalls {
		if call.Name != e.submit.Name() {
			continue
		}

		v, err := e.submit.Decode(call.Args)
		if err != nil {
			ctx.LogWarn("agent.extract.invalid", "agent", e.Name(), "error", err.Error())
			return zero, out, err
		}

		return v, out, nil
	}

	ctx.LogWarn("agent.extract.no_tool_calls", "agent", e.Name(), "content_len", len(out.Content))

	return zero, out, fmt.Errorf("%s: %w", e.Name(), ErrNoToolCalls)
}

// Run implements core.Agent. The extracted value is returned JSON encoded as
// the output content.
func (e *Extractor[T]) Run(ctx *core.AgentCtx, prompt string, _ []byte) (core.AgentOutput, error) {
	v, out, err := e.Extract(ctx, prompt)
	if err != nil {
		return core.AgentOutput{}, err
	}

	b, err := json.Marshal(v)
	if err != nil {
		return core.AgentOutput{}, fmt.Errorf("encode %s: %w", e.submit.Name(), err)
	}

	out.Content = string(b)

	return out, nil
}

var _ core.Agent = (*Extractor[struct{}])(nil)
