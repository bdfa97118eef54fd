package agent

import (
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/agentcore/core"
)

// ErrEscalated can be returned by a child agent to end a loop early. The loop
// treats it as a successful termination.
var ErrEscalated = errors.New("child agent escalated")

// EscalateReason ends a loop when reported as a child's FailedReason.
const EscalateReason = "escalate"

// LoopAgent runs a child agent repeatedly.
//
// Termination, whichever comes first:
//   - maximum iterations (default 100)
//   - predicate returning true for the child's output
//   - escalation by the child (ErrEscalated or FailedReason "escalate")
//   - a child error when stopOnError is set (default)
//   - cancellation of the context
//
// With feedback enabled each iteration is prompted with the previous output;
// otherwise every iteration receives the original prompt.
type LoopAgent struct {
	BaseAgent
	child       core.Agent
	maxIters    int
	interval    time.Duration
	stopOnError bool
	feedback    bool
	predicate   func(string) bool
}

// LoopOption defines a configuration function for customizing LoopAgent behavior.
type LoopOption func(*LoopAgent)

// NewLoopAgent constructs a looping coordinator around a child agent that is
// registered with the same engine.
func NewLoopAgent(name string, child core.Agent, opts ...LoopOption) *LoopAgent {
	la := &LoopAgent{
		BaseAgent:   NewBaseAgent(name),
		child:       child,
		maxIters:    100,
		stopOnError: true,
	}

	for _, o := range opts {
		o(la)
	}

	return la
}

// WithMaxIters sets the maximum number of iterations for the loop.
func WithMaxIters(n int) LoopOption {
	return func(l *LoopAgent) { l.maxIters = n }
}

// WithInterval sets the delay between iterations.
func WithInterval(d time.Duration) LoopOption {
	return func(l *LoopAgent) { l.interval = d }
}

// WithPredicate ends the loop once pred returns true for the child's output.
//
//	WithPredicate(func(output string) bool {
//	    return strings.Contains(output, "COMPLETE")
//	})
func WithPredicate(pred func(string) bool) LoopOption {
	return func(l *LoopAgent) { l.predicate = pred }
}

// WithStopOnError controls whether a failing iteration ends the loop.
func WithStopOnError(stop bool) LoopOption {
	return func(l *LoopAgent) { l.stopOnError = stop }
}

// WithFeedback prompts each iteration with the previous iteration's output.
func WithFeedback() LoopOption {
	return func(l *LoopAgent) { l.feedback = true }
}

// Child returns the looped agent.
func (l *LoopAgent) Child() core.Agent { return l.child }

// Run implements core.Agent. The output of the last successful iteration is
// returned with usage summed over all iterations.
func (l *LoopAgent) Run(ctx *core.AgentCtx, prompt string, attachment []byte) (core.AgentOutput, error) {
	var (
		usage core.Usage
		last  core.AgentOutput
		input = prompt
	)

	done := func() (core.AgentOutput, error) {
		last.Usage = usage
		return last, nil
	}

	for i := 1; i <= l.maxIters; i++ {
		if err := ctx.Err(); err != nil {
			return core.AgentOutput{}, err
		}

		ctx.LogDebug("agent.loop.iteration", "agent", l.Name(), "iteration", i)

		out, err := ctx.AgentRun(l.child.Name(), input, attachment)
		addUsage(&usage, out.Usage)

		switch {
		case errors.Is(err, ErrEscalated):
			ctx.LogInfo("agent.loop.escalated", "agent", l.Name(), "iteration", i)
			return done()
		case err != nil:
			if l.stopOnError || ctx.Err() != nil {
				return core.AgentOutput{}, fmt.Errorf("loop iteration %d failed for agent %s: %w", i, l.child.Name(), err)
			}
			ctx.LogWarn("agent.loop.iteration_failed", "agent", l.Name(), "iteration", i, "error", err.Error())
		default:
			last = out

			if out.FailedReason == EscalateReason {
				ctx.LogInfo("agent.loop.escalated", "agent", l.Name(), "iteration", i)
				return done()
			}

			if l.predicate != nil && l.predicate(out.Content) {
				ctx.LogDebug("agent.loop.predicate_met", "agent", l.Name(), "iteration", i)
				return done()
			}

			if l.feedback {
				input = out.Content
			}
		}

		if l.interval > 0 && i < l.maxIters {
			t := time.NewTimer(l.interval)
			select {
			case <-ctx.Done():
				t.Stop()
				return core.AgentOutput{}, ctx.Err()
			case <-t.C:
			}
		}
	}

	ctx.LogDebug("agent.loop.completed", "agent", l.Name(), "iterations", l.maxIters)

	return done()
}

var _ core.Agent = (*LoopAgent)(nil)
