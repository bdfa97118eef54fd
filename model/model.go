package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/agentcore/core"
)

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "mock", ...
	SupportsTools bool   `json:"supports_tools"`
}

// Describer is implemented by models that can describe themselves. Agents use
// it to label logs and metrics.
type Describer interface {
	Info() Info
}

// Name returns the model name of m, or "unknown".
func Name(m core.Model) string {
	if d, ok := m.(Describer); ok {
		return d.Info().Name
	}
	return "unknown"
}

// BuildHistory returns the transcript of one completion: the request's chat
// history, the prompt as a user message (if any) and the assistant reply.
func BuildHistory(req core.CompletionRequest, reply core.Message) []core.Message {
	history := make([]core.Message, 0, len(req.ChatHistory)+2)
	history = append(history, req.ChatHistory...)

	if req.Prompt != "" {
		history = append(history, core.Message{Role: core.RoleUser, Content: req.Prompt})
	}

	return append(history, reply)
}

// NotImplemented fails every completion with core.ErrNotImplemented. It is the
// builder default when no model is configured.
type NotImplemented struct{}

// Completion fails with core.ErrNotImplemented.
func (NotImplemented) Completion(context.Context, core.CompletionRequest) (core.AgentOutput, error) {
	return core.AgentOutput{}, fmt.Errorf("%w: model", core.ErrNotImplemented)
}

// MockModel is a lightweight in-memory Model useful for tests and examples.
// Queued outputs are returned first in FIFO order; afterwards canned
// responses keyed by prompt apply, and anything else is echoed back.
type MockModel struct {
	info Info

	mu        sync.Mutex
	queue     []core.AgentOutput
	responses map[string]string
	requests  []core.CompletionRequest
}

// NewMockModel constructs a MockModel with tool support enabled.
func NewMockModel(name string) *MockModel {
	return &MockModel{
		info:      Info{Name: name, Provider: "mock", SupportsTools: true},
		responses: make(map[string]string),
	}
}

// AddResponse registers a deterministic completion for a prompt.
func (m *MockModel) AddResponse(prompt, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.responses[prompt] = response
}

// Enqueue schedules outputs to be returned by the next completions.
func (m *MockModel) Enqueue(outs ...core.AgentOutput) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.queue = append(m.queue, outs...)
}

// Requests returns a copy of all requests received so far.
func (m *MockModel) Requests() []core.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]core.CompletionRequest(nil), m.requests...)
}

// Completion implements core.Model.
func (m *MockModel) Completion(ctx context.Context, req core.CompletionRequest) (core.AgentOutput, error) {
	if err := ctx.Err(); err != nil {
		return core.AgentOutput{}, fmt.Errorf("%w: %w", core.ErrCancelled, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)

	var out core.AgentOutput
	switch {
	case len(m.queue) > 0:
		out = m.queue[0]
		m.queue = m.queue[1:]
	case m.responses[req.Prompt] != "":
		out = core.AgentOutput{Content: m.responses[req.Prompt]}
	default:
		out = core.AgentOutput{Content: "Mock response to: " + req.Prompt}
	}

	if out.FullHistory == nil {
		out.FullHistory = BuildHistory(req, core.Message{
			Role:      core.RoleAssistant,
			Content:   out.Content,
			ToolCalls: out.ToolCalls,
		})
	}

	out.Usage.InputTokens += int64(len(req.Prompt))
	out.Usage.OutputTokens += int64(len(out.Content))

	return out, nil
}

// Info implements Describer.
func (m *MockModel) Info() Info { return m.info }

var (
	_ core.Model = NotImplemented{}
	_ core.Model = (*MockModel)(nil)
)
