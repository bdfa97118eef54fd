package tool

import (
	"encoding/json"
	"fmt"

	"github.com/hupe1980/agentcore/core"
	"github.com/hupe1980/agentcore/internal/util"
)

const submitDescription = "Submit the structured data you extracted from the provided text."

// SubmitTool is a terminal tool that accepts a value of type T. Its schema is
// reflected from T and marked strict so models produce exactly that shape.
// It is usually driven by agent.Extractor.
type SubmitTool[T any] struct {
	def core.FunctionDefinition
}

// NewSubmitTool creates the submit tool for T, named submit_<type name>.
func NewSubmitTool[T any]() *SubmitTool[T] {
	var zero T

	strict := true

	return &SubmitTool[T]{
		def: core.FunctionDefinition{
			Name:        "submit_" + util.SchemaTitle(zero),
			Description: submitDescription,
			Parameters:  util.CreateSchema(zero),
			Strict:      &strict,
		},
	}
}

// Name returns the tool name.
func (t *SubmitTool[T]) Name() string { return t.def.Name }

// Definition returns the strict definition of the tool.
func (t *SubmitTool[T]) Definition() core.FunctionDefinition { return t.def }

// Decode validates args and decodes them into T.
func (t *SubmitTool[T]) Decode(args string) (T, error) {
	var out T

	params, err := util.DecodeArgs(args)
	if err == nil {
		err = util.ValidateParameters(params, t.def.Parameters)
	}
	if err != nil {
		return out, validationError(t.def.Name, err)
	}

	if err := json.Unmarshal([]byte(args), &out); err != nil {
		return out, validationError(t.def.Name, fmt.Errorf("decode %s: %w", t.def.Name, err))
	}

	return out, nil
}

// Call decodes args into T and returns them re-encoded. The result never asks
// the caller to continue.
func (t *SubmitTool[T]) Call(ctx *core.BaseCtx, args string) (core.ToolResult, error) {
	if err := ctx.Err(); err != nil {
		return core.ToolResult{}, err
	}

	v, err := t.Decode(args)
	if err != nil {
		ctx.LogWarn("tool.call.validation_failed", "tool", t.def.Name, "error", err.Error())
		return core.ToolResult{}, err
	}

	b, err := json.Marshal(v)
	if err != nil {
		return core.ToolResult{}, executionError(t.def.Name, err)
	}

	return core.ToolResult{Output: string(b), Continue: false}, nil
}

var _ core.Tool = (*SubmitTool[struct{}])(nil)
