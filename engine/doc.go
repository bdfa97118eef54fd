// Package engine assembles tools, agents and collaborators into an Engine and
// dispatches invocations from outside callers.
//
// # Building
//
// A Builder collects units and collaborators. Tools must be registered before
// the agents that depend on them:
//
//	b := engine.NewBuilder().WithModel(m).WithLogger(logger)
//	if err := b.RegisterTool(echo); err != nil { ... }
//	if err := b.RegisterAgent(parrot); err != nil { ... }
//	e, err := b.ExportTools("echo").Build("parrot")
//
// Build computes the engine's path set (the root plus T:<tool> and A:<agent>
// for every registered unit), runs the optional initializers and freezes the
// registries.
//
// # Dispatch
//
// AgentRun and ToolCall only resolve exported units. Each invocation runs in a
// context derived from the root with the given caller and user, so the unit
// sees its own path and a cancellation signal tied to the caller's
// context.Context. Callbacks observe each invocation, and every invocation is
// traced and measured through OpenTelemetry.
//
// # Cancellation
//
// Cancel cancels the root signal and every context derived from it.
// CancellationToken hands out child signals for background work, and
// CancelInvocation cancels a single in-flight invocation.
package engine
