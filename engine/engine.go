package engine

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/semaphore"

	"github.com/hupe1980/agentcore/core"
	"github.com/hupe1980/agentcore/logging"
)

// Engine dispatches agent runs and tool calls from outside callers. It is
// immutable after Build and safe for concurrent use.
//
// Every invocation gets its own context derived from the engine's root
// context. The derived context is cancelled when the invocation returns, when
// the caller's context is cancelled, when the invocation is cancelled through
// CancelInvocation, or when the whole engine is cancelled.
type Engine struct {
	id           core.Principal
	name         string
	defaultAgent string

	ctx          *core.AgentCtx
	exportTools  []string
	exportAgents []string

	callbacks *CallbackManager
	logger    logging.Logger
	inst      *instruments
	sem       *semaphore.Weighted

	activeInvocations map[uuid.UUID]context.CancelFunc
	invocationsMu     sync.Mutex
}

type engineConfig struct {
	id            core.Principal
	name          string
	defaultAgent  string
	ctx           *core.AgentCtx
	exportTools   map[string]struct{}
	exportAgents  map[string]struct{}
	callbacks     *CallbackManager
	logger        logging.Logger
	maxConcurrent int64
	instruments   *instruments
}

func newEngine(cfg engineConfig) *Engine {
	e := &Engine{
		id:                cfg.id,
		name:              cfg.name,
		defaultAgent:      cfg.defaultAgent,
		ctx:               cfg.ctx,
		exportTools:       sortedKeys(cfg.exportTools),
		exportAgents:      sortedKeys(cfg.exportAgents),
		callbacks:         cfg.callbacks,
		logger:            logging.With(cfg.logger, "engine_id", cfg.id.String()),
		inst:              cfg.instruments,
		activeInvocations: make(map[uuid.UUID]context.CancelFunc),
	}

	if cfg.maxConcurrent > 0 {
		e.sem = semaphore.NewWeighted(cfg.maxConcurrent)
	}

	return e
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// ID returns the engine identity.
func (e *Engine) ID() core.Principal { return e.id }

// Name returns the engine name.
func (e *Engine) Name() string { return e.name }

// DefaultAgent returns the lowercased name of the default agent.
func (e *Engine) DefaultAgent() string { return e.defaultAgent }

// AgentRun runs an exported agent on behalf of caller. An empty name selects
// the default agent. The returned output never carries the full history.
func (e *Engine) AgentRun(
	ctx context.Context,
	name, prompt string,
	attachment []byte,
	caller core.Principal,
	user string,
) (core.AgentOutput, error) {
	if name == "" {
		name = e.defaultAgent
	}
	name = e.ctx.Agents().Key(name)

	if !e.isExportedAgent(name) || !e.ctx.Agents().Contains(name) {
		return core.AgentOutput{}, fmt.Errorf("%w: %q", core.ErrAgentNotFound, name)
	}

	release, err := e.acquire(ctx)
	if err != nil {
		return core.AgentOutput{}, err
	}
	defer release()

	spanCtx, finish := e.inst.start(ctx, kindAgent, name, attribute.String("agentcore.caller", caller.String()))

	cb := &CallbackContext{EngineID: e.id, Caller: caller, User: user, Name: name, Input: prompt}

	out, err := e.runAgent(ctx, spanCtx, cb, prompt, attachment)
	if err != nil {
		e.fail(spanCtx, cb, err)
	}

	logging.RecordAgentRun(e.invocationLogger(cb), name, finish(err), err)

	if err != nil {
		return core.AgentOutput{}, err
	}

	return out, nil
}

func (e *Engine) runAgent(ctx, spanCtx context.Context, cb *CallbackContext, prompt string, attachment []byte) (core.AgentOutput, error) {
	child, err := e.ctx.ChildWith(cb.Name, cb.Caller, cb.User)
	if err != nil {
		return core.AgentOutput{}, err
	}

	untrack := e.track(ctx, child.BaseCtx)
	defer untrack()

	cb.Ctx = child.BaseCtx

	if err := e.callbacks.ExecuteCallbacks(spanCtx, CallbackBeforeAgent, cb); err != nil {
		return core.AgentOutput{}, err
	}

	child.LogInfo("engine.agent_run.start", "agent", cb.Name, "user", cb.User)

	out, err := e.ctx.Agents().Run(child, cb.Name, prompt, attachment)
	if err != nil {
		return core.AgentOutput{}, err
	}

	out.FullHistory = nil
	cb.AgentOutput = &out

	if err := e.callbacks.ExecuteCallbacks(spanCtx, CallbackAfterAgent, cb); err != nil {
		return core.AgentOutput{}, err
	}

	child.LogDebug("engine.agent_run.usage",
		"agent", cb.Name,
		"input_tokens", out.Usage.InputTokens,
		"output_tokens", out.Usage.OutputTokens,
	)

	return out, nil
}

// ToolCall calls an exported tool on behalf of caller with JSON encoded args.
func (e *Engine) ToolCall(
	ctx context.Context,
	name, args string,
	caller core.Principal,
	user string,
) (core.ToolResult, error) {
	if !e.isExportedTool(name) || !e.ctx.Tools().Contains(name) {
		return core.ToolResult{}, fmt.Errorf("%w: %q", core.ErrToolNotFound, name)
	}

	release, err := e.acquire(ctx)
	if err != nil {
		return core.ToolResult{}, err
	}
	defer release()

	spanCtx, finish := e.inst.start(ctx, kindTool, name, attribute.String("agentcore.caller", caller.String()))

	cb := &CallbackContext{EngineID: e.id, Caller: caller, User: user, Name: name, Input: args}

	res, err := e.callTool(ctx, spanCtx, cb, args)
	if err != nil {
		e.fail(spanCtx, cb, err)
	}

	logging.RecordToolCall(e.invocationLogger(cb), name, finish(err), err)

	if err != nil {
		return core.ToolResult{}, err
	}

	return res, nil
}

func (e *Engine) callTool(ctx, spanCtx context.Context, cb *CallbackContext, args string) (core.ToolResult, error) {
	child, err := e.ctx.ChildBaseWith(cb.Name, cb.Caller, cb.User)
	if err != nil {
		return core.ToolResult{}, err
	}

	untrack := e.track(ctx, child)
	defer untrack()

	cb.Ctx = child

	if err := e.callbacks.ExecuteCallbacks(spanCtx, CallbackBeforeTool, cb); err != nil {
		return core.ToolResult{}, err
	}

	child.LogInfo("engine.tool_call.start", "tool", cb.Name, "user", cb.User)

	res, err := e.ctx.Tools().Call(child, cb.Name, args)
	if err != nil {
		return core.ToolResult{}, err
	}

	cb.ToolResult = &res

	if err := e.callbacks.ExecuteCallbacks(spanCtx, CallbackAfterTool, cb); err != nil {
		return core.ToolResult{}, err
	}

	child.LogDebug("engine.tool_call.result", "tool", cb.Name, "continue", res.Continue)

	return res, nil
}

func (e *Engine) fail(ctx context.Context, cb *CallbackContext, err error) {
	cb.Err = err

	if cbErr := e.callbacks.ExecuteCallbacks(ctx, CallbackOnError, cb); cbErr != nil {
		e.logger.Warn("engine.callback.error", "name", cb.Name, "error", cbErr)
	}
}

func (e *Engine) invocationLogger(cb *CallbackContext) logging.Logger {
	return logging.With(e.logger, "caller", cb.Caller.String(), "user", cb.User)
}

// track links the derived context to the caller's context and registers it
// for CancelInvocation. The returned func cancels the derived context.
func (e *Engine) track(ctx context.Context, child *core.BaseCtx) func() {
	stop := context.AfterFunc(ctx, child.Cancel)

	e.invocationsMu.Lock()
	e.activeInvocations[child.ID()] = child.Cancel
	e.invocationsMu.Unlock()

	return func() {
		stop()
		child.Cancel()

		e.invocationsMu.Lock()
		delete(e.activeInvocations, child.ID())
		e.invocationsMu.Unlock()
	}
}

func (e *Engine) acquire(ctx context.Context) (func(), error) {
	if e.sem == nil {
		return func() {}, nil
	}

	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrCancelled, err)
	}

	return func() { e.sem.Release(1) }, nil
}

// CancelInvocation cancels one in-flight invocation by id. It reports whether
// the invocation was found.
func (e *Engine) CancelInvocation(id uuid.UUID) bool {
	e.invocationsMu.Lock()
	cancel, ok := e.activeInvocations[id]
	e.invocationsMu.Unlock()

	if ok {
		cancel()
	}

	return ok
}

// ActiveInvocations returns the number of in-flight invocations.
func (e *Engine) ActiveInvocations() int {
	e.invocationsMu.Lock()
	defer e.invocationsMu.Unlock()

	return len(e.activeInvocations)
}

// Cancel cancels the root signal and with it every context of the engine.
func (e *Engine) Cancel() {
	e.logger.Info("engine.cancel")
	e.ctx.Cancel()
}

// CancellationToken returns a fresh child of the root signal. Cancelling it
// does not affect the engine; cancelling the engine cancels it.
func (e *Engine) CancellationToken() (context.Context, context.CancelFunc) {
	return context.WithCancel(e.ctx.Context())
}

// CtxWith derives an agent context for embedding code that wants to drive an
// exported agent or its registries directly. The context stays alive until it
// or the engine is cancelled.
func (e *Engine) CtxWith(agentName string, caller core.Principal, user string) (*core.AgentCtx, error) {
	name := e.ctx.Agents().Key(agentName)
	if !e.isExportedAgent(name) || !e.ctx.Agents().Contains(name) {
		return nil, fmt.Errorf("%w: %q", core.ErrAgentNotFound, name)
	}

	return e.ctx.ChildWith(name, caller, user)
}

// AgentDefinitions returns definitions of exported agents. Nil means all
// exported agents; names outside the export set are skipped.
func (e *Engine) AgentDefinitions(names []string) []core.FunctionDefinition {
	return e.ctx.AgentDefinitions(e.filterExported(e.exportAgents, names, e.ctx.Agents().Key))
}

// ToolDefinitions returns definitions of exported tools. Nil means all
// exported tools; names outside the export set are skipped.
func (e *Engine) ToolDefinitions(names []string) []core.FunctionDefinition {
	return e.ctx.ToolDefinitions(e.filterExported(e.exportTools, names, e.ctx.Tools().Key))
}

func (e *Engine) filterExported(exported, names []string, key func(string) string) []string {
	if names == nil {
		// Never nil: a nil filter would select every registered unit.
		return append([]string{}, exported...)
	}

	out := make([]string, 0, len(names))
	for _, n := range names {
		if k := key(n); slices.Contains(exported, k) {
			out = append(out, k)
		}
	}

	return out
}

// Information describes the engine. Unit definitions are only included when
// withDetail is set.
func (e *Engine) Information(withDetail bool) core.Information {
	info := core.Information{
		ID:           e.id,
		Name:         e.name,
		DefaultAgent: e.defaultAgent,
	}

	if withDetail {
		info.AgentDefinitions = e.AgentDefinitions(nil)
		info.ToolDefinitions = e.ToolDefinitions(nil)
	}

	return info
}

func (e *Engine) isExportedAgent(name string) bool {
	_, ok := slices.BinarySearch(e.exportAgents, name)
	return ok
}

func (e *Engine) isExportedTool(name string) bool {
	_, ok := slices.BinarySearch(e.exportTools, name)
	return ok
}

var _ core.Runtime = (*Engine)(nil)
