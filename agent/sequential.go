package agent

import (
	"fmt"

	"github.com/hupe1980/agentcore/core"
)

// SequentialAgent runs child agents one after another as a pipeline: the
// output content of each step becomes the prompt of the next one. The
// attachment is handed to every step.
//
// Execution stops at the first error or at the first step reporting a
// FailedReason. Usage is summed across steps.
type SequentialAgent struct {
	BaseAgent
	children []core.Agent
}

// NewSequentialAgent creates a new sequential coordinator. The children must
// be registered with the same engine.
func NewSequentialAgent(name string, children ...core.Agent) *SequentialAgent {
	return &SequentialAgent{
		BaseAgent: NewBaseAgent(name),
		children:  children,
	}
}

// Children returns the child agents in execution order.
func (s *SequentialAgent) Children() []core.Agent { return s.children }

// Run implements core.Agent.
func (s *SequentialAgent) Run(ctx *core.AgentCtx, prompt string, attachment []byte) (core.AgentOutput, error) {
	var (
		usage core.Usage
		out   core.AgentOutput
		input = prompt
	)

	for i, child := range s.children {
		ctx.LogDebug("agent.sequential.step", "agent", s.Name(), "step", i, "child", child.Name())

		var err error

		out, err = ctx.AgentRun(child.Name(), input, attachment)
		addUsage(&usage, out.Usage)
		if err != nil {
			return core.AgentOutput{}, fmt.Errorf("sequential execution failed at agent %s: %w", child.Name(), err)
		}

		if out.FailedReason != "" {
			ctx.LogWarn("agent.sequential.stopped", "agent", s.Name(), "child", child.Name(), "reason", out.FailedReason)
			break
		}

		input = out.Content
	}

	out.Usage = usage

	return out, nil
}

var _ core.Agent = (*SequentialAgent)(nil)
