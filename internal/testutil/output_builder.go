package testutil

import (
	"fmt"

	"github.com/hupe1980/agentcore/core"
)

// OutputBuilder provides a fluent helper for constructing scripted model
// replies. Example:
//
//	out := NewOutputBuilder().Text("calling").ToolCall("echo", `{"text":"hi"}`).Build()
//
// Chain only the parts you need; tool call ids are generated.
type OutputBuilder struct {
	out core.AgentOutput
}

// NewOutputBuilder returns an empty builder.
func NewOutputBuilder() *OutputBuilder { return &OutputBuilder{} }

// Text sets the reply content.
func (b *OutputBuilder) Text(s string) *OutputBuilder {
	b.out.Content = s
	return b
}

// ToolCall appends a tool call with a generated id.
func (b *OutputBuilder) ToolCall(name, args string) *OutputBuilder {
	b.out.ToolCalls = append(b.out.ToolCalls, core.ToolCall{
		ID:   fmt.Sprintf("call_%d", len(b.out.ToolCalls)+1),
		Name: name,
		Args: args,
	})
	return b
}

// Failed sets the failure reason.
func (b *OutputBuilder) Failed(reason string) *OutputBuilder {
	b.out.FailedReason = reason
	return b
}

// Usage sets token usage.
func (b *OutputBuilder) Usage(in, out int64) *OutputBuilder {
	b.out.Usage = core.Usage{InputTokens: in, OutputTokens: out}
	return b
}

// Build returns the reply.
func (b *OutputBuilder) Build() core.AgentOutput { return b.out }
