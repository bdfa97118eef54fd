package agent

import (
	"fmt"
	"slices"

	"github.com/hupe1980/agentcore/core"
)

// BaseAgent bundles the identity every agent shares: name, description and
// declared tool dependencies. Embed it in concrete agent implementations and
// supply a Run method to satisfy core.Agent.
type BaseAgent struct {
	name        string
	description string
	tools       []string
}

// NewBaseAgent constructs a BaseAgent with a generated description
// (customizable via SetDescription).
func NewBaseAgent(name string, tools ...string) BaseAgent {
	return BaseAgent{
		name:        name,
		description: fmt.Sprintf("Agent %s", name),
		tools:       tools,
	}
}

// Name returns the agent name.
func (b *BaseAgent) Name() string { return b.name }

// Description returns a detailed description of this agent's purpose.
func (b *BaseAgent) Description() string { return b.description }

// SetDescription updates the agent's description.
func (b *BaseAgent) SetDescription(desc string) { b.description = desc }

// Definition describes the agent as a function taking a single prompt.
func (b *BaseAgent) Definition() core.FunctionDefinition {
	return core.FunctionDefinition{
		Name:        b.name,
		Description: b.description,
		Parameters:  core.PromptParameters("The prompt to run the agent with."),
	}
}

// ToolDependencies returns the tools this agent needs at runtime.
func (b *BaseAgent) ToolDependencies() []string { return slices.Clone(b.tools) }

func addUsage(total *core.Usage, u core.Usage) {
	total.InputTokens += u.InputTokens
	total.OutputTokens += u.OutputTokens
}
