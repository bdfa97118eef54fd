package core

import (
	"fmt"
)

// AgentOptions configures an AgentCtx tree.
type AgentOptions struct {
	// MaxModelCalls bounds Completion calls per agent invocation; 0 means unlimited.
	MaxModelCalls int
}

// AgentCtx is the execution context handed to agents. On top of BaseCtx it
// carries the model handle and the engine's tool and agent registries, so an
// agent can call tools, run other agents and talk to the model in-process.
type AgentCtx struct {
	*BaseCtx

	model   Model
	tools   *ToolSet
	agents  *AgentSet
	opts    AgentOptions
	limiter *ModelLimiter
}

// NewAgentCtx wraps base with the model handle and registries.
func NewAgentCtx(base *BaseCtx, model Model, tools *ToolSet, agents *AgentSet, optFns ...func(o *AgentOptions)) *AgentCtx {
	opts := AgentOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	if tools == nil {
		tools = NewToolSet()
	}

	if agents == nil {
		agents = NewAgentSet()
	}

	return &AgentCtx{
		BaseCtx: base,
		model:   model,
		tools:   tools,
		agents:  agents,
		opts:    opts,
		limiter: NewModelLimiter(opts.MaxModelCalls),
	}
}

// ChildBaseWith derives a tool context at T:<toolName>.
func (c *AgentCtx) ChildBaseWith(toolName string, caller Principal, user string) (*BaseCtx, error) {
	return c.BaseCtx.ChildWith(ToolPath(toolName), caller, user)
}

// ChildWith derives an agent context at A:<agentName>. The path check comes
// first, so a name outside the path set reports ErrNameNotAllowed even if it
// is also unregistered.
func (c *AgentCtx) ChildWith(agentName string, caller Principal, user string) (*AgentCtx, error) {
	name := c.agents.Key(agentName)

	base, err := c.BaseCtx.ChildWith(AgentPath(name), caller, user)
	if err != nil {
		return nil, err
	}

	if !c.agents.Contains(name) {
		base.Cancel()
		return nil, fmt.Errorf("%w: %q", ErrAgentNotFound, name)
	}

	return &AgentCtx{
		BaseCtx: base,
		model:   c.model,
		tools:   c.tools,
		agents:  c.agents,
		opts:    c.opts,
		limiter: NewModelLimiter(c.opts.MaxModelCalls),
	}, nil
}

// Model returns the model handle.
func (c *AgentCtx) Model() Model { return c.model }

// Limiter returns the model call limiter of this invocation.
func (c *AgentCtx) Limiter() *ModelLimiter { return c.limiter }

// ToolCall runs the named tool in a derived context that keeps this
// context's caller and user.
func (c *AgentCtx) ToolCall(name, args string) (ToolResult, error) {
	if !c.tools.Contains(name) {
		return ToolResult{}, fmt.Errorf("%w: %q", ErrToolNotFound, name)
	}

	child, err := c.ChildBaseWith(name, c.caller, c.user)
	if err != nil {
		return ToolResult{}, err
	}
	defer child.Cancel()

	child.LogDebug("tool.call.start", "tool", name)

	return c.tools.Call(child, name, args)
}

// AgentRun runs the named agent in a derived context that keeps this
// context's caller and user.
func (c *AgentCtx) AgentRun(name, prompt string, attachment []byte) (AgentOutput, error) {
	child, err := c.ChildWith(name, c.caller, c.user)
	if err != nil {
		return AgentOutput{}, err
	}
	defer child.Cancel()

	child.LogDebug("agent.run.start", "agent", name)

	return c.agents.Run(child, name, prompt, attachment)
}

// Completion sends req to the model. Every returned tool call that names a
// registered tool is executed; its result and continue flag are recorded on
// the call and a tool message is appended to the full history. Calls to
// unknown tools are left untouched for the agent to handle.
func (c *AgentCtx) Completion(req CompletionRequest) (AgentOutput, error) {
	if c.model == nil {
		return AgentOutput{}, fmt.Errorf("%w: model", ErrNotImplemented)
	}

	if err := c.Err(); err != nil {
		return AgentOutput{}, err
	}

	if err := c.limiter.Increment(); err != nil {
		return AgentOutput{}, err
	}

	out, err := c.model.Completion(c.ctx, req)
	if err != nil {
		return AgentOutput{}, err
	}

	for i := range out.ToolCalls {
		call := &out.ToolCalls[i]
		if !c.tools.Contains(call.Name) {
			continue
		}

		res, err := c.ToolCall(call.Name, call.Args)
		if err != nil {
			return out, fmt.Errorf("tool %q: %w", call.Name, err)
		}

		call.Result = res.Output
		call.Continue = res.Continue

		out.FullHistory = append(out.FullHistory, Message{
			Role:       RoleTool,
			Name:       call.Name,
			Content:    res.Output,
			ToolCallID: call.ID,
		})
	}

	return out, nil
}

// ToolDefinitions returns definitions of registered tools; nil means all.
func (c *AgentCtx) ToolDefinitions(names []string) []FunctionDefinition {
	return c.tools.Definitions(names)
}

// AgentDefinitions returns definitions of registered agents; nil means all.
func (c *AgentCtx) AgentDefinitions(names []string) []FunctionDefinition {
	return c.agents.Definitions(names)
}

// Tools returns the shared tool registry.
func (c *AgentCtx) Tools() *ToolSet { return c.tools }

// Agents returns the shared agent registry.
func (c *AgentCtx) Agents() *AgentSet { return c.agents }
