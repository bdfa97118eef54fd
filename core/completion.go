package core

import "context"

// Message roles used in chat histories.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one entry of a provider-neutral chat history.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content,omitempty"`
	Name       string     `json:"name,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall is a function call requested by a model. Result and Continue are
// filled in once the call has been executed.
type ToolCall struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Args     string `json:"args"`
	Result   string `json:"result,omitempty"`
	Continue bool   `json:"continue,omitempty"`
}

// CompletionRequest is the provider-neutral model input.
type CompletionRequest struct {
	System             string               `json:"system,omitempty"`
	Prompt             string               `json:"prompt,omitempty"`
	ChatHistory        []Message            `json:"chat_history,omitempty"`
	Tools              []FunctionDefinition `json:"tools,omitempty"`
	ToolChoiceRequired bool                 `json:"tool_choice_required,omitempty"`
	MaxTokens          int                  `json:"max_tokens,omitempty"`
	Temperature        *float64             `json:"temperature,omitempty"`
}

// Usage reports token consumption of a completion.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// AgentOutput is the result of a completion or an agent run. FullHistory holds
// the complete transcript (excluding the system prompt); the engine clears it
// before returning an agent run to an outside caller.
type AgentOutput struct {
	Content      string     `json:"content"`
	FailedReason string     `json:"failed_reason,omitempty"`
	ToolCalls    []ToolCall `json:"tool_calls,omitempty"`
	FullHistory  []Message  `json:"full_history,omitempty"`
	Usage        Usage      `json:"usage"`
}

// Model is the completion backend handed to agents through AgentCtx.
type Model interface {
	Completion(ctx context.Context, req CompletionRequest) (AgentOutput, error)
}
