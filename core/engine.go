package core

import (
	"context"
)

// Information describes an engine to outside callers. Definitions are only
// filled in when detail was requested.
type Information struct {
	ID               Principal            `json:"id" cbor:"id"`
	Name             string               `json:"name" cbor:"name"`
	DefaultAgent     string               `json:"default_agent" cbor:"default_agent"`
	AgentDefinitions []FunctionDefinition `json:"agent_definitions,omitempty" cbor:"agent_definitions,omitempty"`
	ToolDefinitions  []FunctionDefinition `json:"tool_definitions,omitempty" cbor:"tool_definitions,omitempty"`
}

// Runtime is the dispatch surface of a built engine as consumed by the
// transport boundaries (HTTP, MCP, CLI).
//
// Implementations must:
//   - Resolve only exported units; everything else is reported as not found
//   - Derive a fresh context per invocation and cancel it on return
//   - Cancel the derived context when ctx is cancelled
type Runtime interface {
	// AgentRun runs an exported agent. An empty name selects the default agent.
	AgentRun(ctx context.Context, name, prompt string, attachment []byte, caller Principal, user string) (AgentOutput, error)

	// ToolCall calls an exported tool with JSON encoded args.
	ToolCall(ctx context.Context, name, args string, caller Principal, user string) (ToolResult, error)

	// Information describes the engine; withDetail adds unit definitions.
	Information(withDetail bool) Information

	// AgentDefinitions returns exported agent definitions; nil means all.
	AgentDefinitions(names []string) []FunctionDefinition

	// ToolDefinitions returns exported tool definitions; nil means all.
	ToolDefinitions(names []string) []FunctionDefinition
}
