package tool

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/agentcore/core"
	"github.com/hupe1980/agentcore/internal/util"
)

// Func is the signature wrapped by FunctionTool. Args have already been
// validated against the tool's parameter schema.
type Func func(ctx *core.BaseCtx, args map[string]any) (any, error)

// FunctionToolOptions configure a FunctionTool.
type FunctionToolOptions struct {
	// Strict asks models to adhere exactly to the parameter schema.
	Strict bool
	// Terminal marks results as final; orchestrating agents stop prompting
	// the model after a terminal tool returns.
	Terminal bool
}

// FunctionTool is a generic adapter that exposes a plain Go function as a
// core.Tool.
//
// Call decodes the JSON arguments, validates them against the declared
// schema and invokes the wrapped function. Errors are normalized to
// *ToolError:
//
//	validation failure              -> Code VALIDATION_ERROR
//	other error                     -> Code EXECUTION_ERROR
//	*ToolError returned by the func -> forwarded unchanged
//
// Cancellation is reported as the context error so callers can match
// core.ErrCancelled. A FunctionTool has no mutable state after construction
// and is safe for concurrent use.
type FunctionTool struct {
	def  core.FunctionDefinition
	fn   Func
	opts FunctionToolOptions
}

// NewFunctionTool constructs a FunctionTool from an explicit schema and function.
//
// Example:
//
//	sumTool := tool.NewFunctionTool(
//	  "calculate_sum",
//	  "Calculate the sum of two numbers",
//	  map[string]any{
//	    "type": "object",
//	    "properties": map[string]any{
//	      "a": map[string]any{"type": "number"},
//	      "b": map[string]any{"type": "number"},
//	    },
//	    "required": []string{"a", "b"},
//	  },
//	  func(_ *core.BaseCtx, args map[string]any) (any, error) {
//	    return args["a"].(float64) + args["b"].(float64), nil
//	  },
//	)
func NewFunctionTool(name, description string, parameters map[string]any, fn Func, optFns ...func(o *FunctionToolOptions)) *FunctionTool {
	var opts FunctionToolOptions
	for _, f := range optFns {
		f(&opts)
	}

	if parameters == nil {
		parameters = core.EmptyParameters()
	}

	def := core.FunctionDefinition{
		Name:        name,
		Description: description,
		Parameters:  parameters,
	}
	if opts.Strict {
		strict := true
		def.Strict = &strict
	}

	return &FunctionTool{def: def, fn: fn, opts: opts}
}

// NewFunctionToolFromStruct derives the parameter schema from a struct using
// reflection (see util.CreateSchema).
//
//	type SumArgs struct {
//	  A float64 `json:"a" jsonschema:"description=First addend"`
//	  B float64 `json:"b" jsonschema:"description=Second addend"`
//	}
func NewFunctionToolFromStruct(name, description string, structType any, fn Func, optFns ...func(o *FunctionToolOptions)) *FunctionTool {
	return NewFunctionTool(name, description, util.CreateSchema(structType), fn, optFns...)
}

// NewTypedTool builds a FunctionTool whose arguments are decoded into A. The
// parameter schema is reflected from A.
func NewTypedTool[A any](name, description string, fn func(ctx *core.BaseCtx, args A) (any, error), optFns ...func(o *FunctionToolOptions)) *FunctionTool {
	var zero A

	return NewFunctionToolFromStruct(name, description, zero, func(ctx *core.BaseCtx, params map[string]any) (any, error) {
		var args A
		if err := remarshal(params, &args); err != nil {
			return nil, NewToolError(name, err.Error(), CodeValidation)
		}
		return fn(ctx, args)
	}, optFns...)
}

// Name returns the unique tool name used for routing.
func (t *FunctionTool) Name() string { return t.def.Name }

// Definition returns the definition exposed to models.
func (t *FunctionTool) Definition() core.FunctionDefinition { return t.def }

// Call validates args and invokes the wrapped function.
func (t *FunctionTool) Call(ctx *core.BaseCtx, args string) (core.ToolResult, error) {
	start := time.Now()
	name := t.def.Name

	ctx.LogDebug("tool.call.start", "tool", name)

	if err := ctx.Err(); err != nil {
		return core.ToolResult{}, err
	}

	params, err := util.DecodeArgs(args)
	if err == nil {
		err = util.ValidateParameters(params, t.def.Parameters)
	}
	if err != nil {
		ctx.LogWarn("tool.call.validation_failed", "tool", name, "error", err.Error())
		return core.ToolResult{}, validationError(name, err)
	}

	result, err := t.fn(ctx, params)
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			ctx.LogWarn("tool.call.cancelled", "tool", name)
			return core.ToolResult{}, cerr
		}

		var toolErr *ToolError
		if errors.As(err, &toolErr) {
			ctx.LogError("tool.call.error", "tool", name, "error", toolErr.Message)
			return core.ToolResult{}, toolErr
		}

		ctx.LogError("tool.call.error", "tool", name, "error", err.Error())
		return core.ToolResult{}, executionError(name, err)
	}

	output, err := EncodeOutput(result)
	if err != nil {
		ctx.LogError("tool.call.error", "tool", name, "error", err.Error())
		return core.ToolResult{}, executionError(name, err)
	}

	ctx.LogInfo("tool.call.success", "tool", name, "duration_ms", time.Since(start).Milliseconds())

	return core.ToolResult{Output: output, Continue: !t.opts.Terminal}, nil
}

// EncodeOutput renders a tool result as text: strings and byte slices pass
// through, nil becomes empty and everything else is JSON encoded.
func EncodeOutput(v any) (string, error) {
	switch r := v.(type) {
	case nil:
		return "", nil
	case string:
		return r, nil
	case []byte:
		return string(r), nil
	case json.RawMessage:
		return string(r), nil
	}

	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}
	return string(b), nil
}

func remarshal(in any, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

var _ core.Tool = (*FunctionTool)(nil)
