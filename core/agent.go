package core

// Tool is a named, directly callable unit. Arguments arrive as a JSON encoded
// string and the result is returned as text plus a continue flag.
//
// Implementations must be safe for concurrent use and should return promptly
// once ctx is cancelled.
type Tool interface {
	Name() string
	Definition() FunctionDefinition
	Call(ctx *BaseCtx, args string) (ToolResult, error)
}

// ToolResult is the outcome of a tool call. Continue tells an orchestrating
// agent loop whether it should keep prompting the model after this result;
// terminal tools (for example submit tools) return false.
type ToolResult struct {
	Output   string `json:"output"`
	Continue bool   `json:"continue"`
}

// Agent is a named unit that processes a prompt, usually by talking to a model
// and calling tools. Agents declare the tools they depend on so the builder
// can verify them at registration time.
type Agent interface {
	Name() string
	Definition() FunctionDefinition
	ToolDependencies() []string
	Run(ctx *AgentCtx, prompt string, attachment []byte) (AgentOutput, error)
}

// ToolInitializer is implemented by tools that need one-time setup. Init runs
// during Build against a context scoped to the tool.
type ToolInitializer interface {
	Init(ctx *BaseCtx) error
}

// AgentInitializer is implemented by agents that need one-time setup.
type AgentInitializer interface {
	Init(ctx *AgentCtx) error
}
