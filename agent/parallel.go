package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/agentcore/core"
)

// ParallelOptions configure a ParallelAgent.
type ParallelOptions struct {
	// Timeout bounds the whole fan-out. Zero means no timeout.
	Timeout time.Duration
	// MaxConcurrency limits simultaneously running children. Zero means no limit.
	MaxConcurrency int
	// Merge combines the child outputs (in child order) into the final
	// content. The default prefixes each output with the child name.
	Merge func(names []string, outputs []core.AgentOutput) string
}

// ParallelAgent runs all children concurrently with the same prompt. Each
// child gets its own context derived from the parent; the first failure
// cancels the siblings and is returned.
type ParallelAgent struct {
	BaseAgent
	children []core.Agent
	opts     ParallelOptions
}

// NewParallelAgent creates a new parallel coordinator. The children must be
// registered with the same engine.
func NewParallelAgent(name string, children []core.Agent, optFns ...func(o *ParallelOptions)) *ParallelAgent {
	opts := ParallelOptions{Merge: mergeLabelled}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &ParallelAgent{
		BaseAgent: NewBaseAgent(name),
		children:  children,
		opts:      opts,
	}
}

// Children returns the child agents.
func (p *ParallelAgent) Children() []core.Agent { return p.children }

// Run implements core.Agent.
func (p *ParallelAgent) Run(ctx *core.AgentCtx, prompt string, attachment []byte) (core.AgentOutput, error) {
	parent := ctx.Context()
	if p.opts.Timeout > 0 {
		var cancel context.CancelFunc
		parent, cancel = context.WithTimeout(parent, p.opts.Timeout)
		defer cancel()
	}

	g, gctx := errgroup.WithContext(parent)
	if p.opts.MaxConcurrency > 0 {
		g.SetLimit(p.opts.MaxConcurrency)
	}

	names := make([]string, len(p.children))
	outputs := make([]core.AgentOutput, len(p.children))

	for i, c := range p.children {
		names[i] = c.Name()

		g.Go(func() error {
			child, err := ctx.ChildWith(c.Name(), ctx.Caller(), ctx.User())
			if err != nil {
				return fmt.Errorf("parallel execution failed for agent %s: %w", c.Name(), err)
			}
			defer child.Cancel()

			stop := context.AfterFunc(gctx, child.Cancel)
			defer stop()

			out, err := ctx.Agents().Run(child, c.Name(), prompt, attachment)
			if err != nil {
				return fmt.Errorf("parallel execution failed for agent %s: %w", c.Name(), err)
			}

			outputs[i] = out

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		ctx.LogWarn("agent.parallel.error", "agent", p.Name(), "error", err.Error())
		return core.AgentOutput{}, err
	}

	var out core.AgentOutput
	for _, o := range outputs {
		addUsage(&out.Usage, o.Usage)
		out.ToolCalls = append(out.ToolCalls, o.ToolCalls...)
	}
	out.Content = p.opts.Merge(names, outputs)

	return out, nil
}

func mergeLabelled(names []string, outputs []core.AgentOutput) string {
	var sb strings.Builder
	for i, o := range outputs {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "[%s]\n%s", names[i], o.Content)
	}
	return sb.String()
}

var _ core.Agent = (*ParallelAgent)(nil)
