package engine

import (
	"context"
	"fmt"

	"github.com/hupe1980/agentcore/core"
	"github.com/hupe1980/agentcore/logging"
)

// CallbackType defines the lifecycle points at which callbacks run.
//
// Before callbacks run after the invocation context was derived and before
// the unit is dispatched; an error aborts the invocation. After callbacks run
// once the unit returned successfully; an error replaces the result. OnError
// callbacks observe failures and cannot change them.
type CallbackType string

const (
	// CallbackBeforeAgent is triggered before an agent run is dispatched.
	CallbackBeforeAgent CallbackType = "before_agent"

	// CallbackAfterAgent is triggered after an agent run succeeded.
	CallbackAfterAgent CallbackType = "after_agent"

	// CallbackBeforeTool is triggered before a tool call is dispatched.
	CallbackBeforeTool CallbackType = "before_tool"

	// CallbackAfterTool is triggered after a tool call succeeded.
	CallbackAfterTool CallbackType = "after_tool"

	// CallbackOnError is triggered when an agent run or tool call failed.
	CallbackOnError CallbackType = "on_error"
)

// CallbackContext describes the invocation a callback observes.
type CallbackContext struct {
	// Ctx is the derived invocation context. It is nil for OnError callbacks
	// fired before derivation succeeded.
	Ctx *core.BaseCtx

	CallbackType CallbackType
	EngineID     core.Principal
	Caller       core.Principal
	User         string

	// Name is the agent or tool name.
	Name string

	// Input is the prompt of an agent run or the args of a tool call.
	Input string

	AgentOutput *core.AgentOutput
	ToolResult  *core.ToolResult
	Err         error

	// Metadata provides extensible storage for custom callback data.
	Metadata map[string]any
}

// Callback is an invocation lifecycle hook.
type Callback interface {
	Type() CallbackType
	Execute(ctx context.Context, cbCtx *CallbackContext) error
}

// FunctionCallback wraps a function as a callback implementation.
//
// Example:
//
//	cb := NewFunctionCallback(CallbackBeforeAgent, func(ctx context.Context, c *CallbackContext) error {
//	    if c.Caller.IsAnonymous() {
//	        return errors.New("anonymous callers may not run agents")
//	    }
//	    return nil
//	})
type FunctionCallback struct {
	callbackType CallbackType
	fn           func(ctx context.Context, cbCtx *CallbackContext) error
}

// NewFunctionCallback creates a new function-based callback.
func NewFunctionCallback(callbackType CallbackType, fn func(ctx context.Context, cbCtx *CallbackContext) error) *FunctionCallback {
	return &FunctionCallback{callbackType: callbackType, fn: fn}
}

// Type returns the callback type this function handles.
func (c *FunctionCallback) Type() CallbackType { return c.callbackType }

// Execute calls the wrapped function.
func (c *FunctionCallback) Execute(ctx context.Context, cbCtx *CallbackContext) error {
	return c.fn(ctx, cbCtx)
}

// CallbackManager routes callbacks by type. Registration happens while the
// builder is configured; execution afterwards is safe for concurrent use.
type CallbackManager struct {
	callbacks map[CallbackType][]Callback
}

// NewCallbackManager creates an empty callback manager.
func NewCallbackManager() *CallbackManager {
	return &CallbackManager{callbacks: make(map[CallbackType][]Callback)}
}

// RegisterCallback adds a callback. Callbacks of one type run in
// registration order.
func (cm *CallbackManager) RegisterCallback(callback Callback) {
	t := callback.Type()
	cm.callbacks[t] = append(cm.callbacks[t], callback)
}

// Len returns the number of registered callbacks.
func (cm *CallbackManager) Len() int {
	n := 0
	for _, cbs := range cm.callbacks {
		n += len(cbs)
	}
	return n
}

// ExecuteCallbacks runs all callbacks of the given type and stops at the
// first error.
func (cm *CallbackManager) ExecuteCallbacks(ctx context.Context, callbackType CallbackType, cbCtx *CallbackContext) error {
	cbCtx.CallbackType = callbackType

	for _, cb := range cm.callbacks[callbackType] {
		if err := cb.Execute(ctx, cbCtx); err != nil {
			return fmt.Errorf("%s callback: %w", callbackType, err)
		}
	}

	return nil
}

// LoggingCallback writes one structured log entry per lifecycle event.
type LoggingCallback struct {
	callbackType CallbackType
	logger       logging.Logger
}

// NewLoggingCallback creates a logging callback for the given type.
func NewLoggingCallback(callbackType CallbackType, logger logging.Logger) *LoggingCallback {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &LoggingCallback{callbackType: callbackType, logger: logger}
}

// Type returns the callback type this logger handles.
func (c *LoggingCallback) Type() CallbackType { return c.callbackType }

// Execute logs the lifecycle event.
func (c *LoggingCallback) Execute(_ context.Context, cbCtx *CallbackContext) error {
	args := []any{"name", cbCtx.Name, "caller", cbCtx.Caller.String(), "user", cbCtx.User}
	if cbCtx.Ctx != nil {
		args = append(args, "invocation_id", cbCtx.Ctx.ID().String())
	}

	if cbCtx.Err != nil {
		c.logger.Error("callback."+string(c.callbackType), append(args, "error", cbCtx.Err)...)
		return nil
	}

	c.logger.Info("callback."+string(c.callbackType), args...)

	return nil
}
