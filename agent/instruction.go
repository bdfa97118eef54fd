package agent

import (
	"github.com/hupe1980/agentcore/core"
	"github.com/hupe1980/agentcore/internal/util"
)

// Provider supplies dynamic instruction text at runtime.
type Provider interface {
	Instruction(*core.AgentCtx) (string, error)
}

// Func is a functional adapter to allow ordinary functions to be used as Providers.
type Func func(*core.AgentCtx) (string, error)

// Instruction implements Provider.
func (f Func) Instruction(ctx *core.AgentCtx) (string, error) { return f(ctx) }

// Instruction represents either a static instruction template or a dynamic
// provider.
//
// Static text is rendered as a text/template with these variables:
//
//	.agent   agent name
//	.caller  caller principal
//	.user    user label
//	.path    context path
type Instruction struct {
	text     string
	provider Provider
}

// NewInstructionFromText creates an Instruction from a static template.
func NewInstructionFromText(text string) Instruction { return Instruction{text: text} }

// NewInstructionFromProvider creates an Instruction from a dynamic provider.
func NewInstructionFromProvider(p Provider) Instruction { return Instruction{provider: p} }

// NewInstructionFromFunc creates an Instruction from a function.
func NewInstructionFromFunc(f func(*core.AgentCtx) (string, error)) Instruction {
	return Instruction{provider: Func(f)}
}

// IsStatic returns true if the instruction is backed by a static template.
func (i Instruction) IsStatic() bool { return i.provider == nil }

// Resolve returns the instruction text, invoking the provider if needed.
func (i Instruction) Resolve(ctx *core.AgentCtx) (string, error) {
	if i.provider != nil {
		return i.provider.Instruction(ctx)
	}

	name, _ := ctx.Path().UnitName()

	return util.RenderTemplate(i.text, map[string]any{
		"agent":  name,
		"caller": ctx.Caller().String(),
		"user":   ctx.User(),
		"path":   ctx.Path().String(),
	})
}
