package core

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Unit is the common surface of tools and agents.
type Unit interface {
	Name() string
	Definition() FunctionDefinition
}

// Registry maps unit names to units. Iteration order is the sorted name order.
// A Registry is populated by the builder and only read afterwards, so lookups
// take no locks.
type Registry[T Unit] struct {
	units     map[string]T
	normalize func(string) string
}

func newRegistry[T Unit](normalize func(string) string) Registry[T] {
	if normalize == nil {
		normalize = func(s string) string { return s }
	}
	return Registry[T]{units: make(map[string]T), normalize: normalize}
}

// Key returns the normalised registry key for name.
func (r *Registry[T]) Key(name string) string { return r.normalize(name) }

// Add inserts u. It fails with ErrDuplicateName when the name is taken; the
// existing unit is kept.
func (r *Registry[T]) Add(u T) error {
	name := r.normalize(u.Name())
	if _, exists := r.units[name]; exists {
		return fmt.Errorf("%w: %q already exists", ErrDuplicateName, name)
	}
	r.units[name] = u
	return nil
}

// Contains reports whether a unit with the given name is registered.
func (r *Registry[T]) Contains(name string) bool {
	_, ok := r.units[r.normalize(name)]
	return ok
}

// Get returns the unit registered under name.
func (r *Registry[T]) Get(name string) (T, bool) {
	u, ok := r.units[r.normalize(name)]
	return u, ok
}

// Names returns the registered names in ascending order.
func (r *Registry[T]) Names() []string {
	return slices.Sorted(maps.Keys(r.units))
}

// Len returns the number of registered units.
func (r *Registry[T]) Len() int { return len(r.units) }

// Definitions returns the definitions of all units when names is nil, or of
// the requested units otherwise. Unknown names are skipped.
func (r *Registry[T]) Definitions(names []string) []FunctionDefinition {
	var wanted map[string]struct{}
	if names != nil {
		wanted = make(map[string]struct{}, len(names))
		for _, n := range names {
			wanted[r.normalize(n)] = struct{}{}
		}
	}

	defs := make([]FunctionDefinition, 0, len(r.units))
	for _, name := range r.Names() {
		if wanted != nil {
			if _, ok := wanted[name]; !ok {
				continue
			}
		}
		defs = append(defs, r.units[name].Definition())
	}

	return defs
}

// ToolSet is the tool registry. Tool names are case sensitive.
type ToolSet struct {
	Registry[Tool]
}

// NewToolSet returns an empty tool registry.
func NewToolSet() *ToolSet {
	return &ToolSet{Registry: newRegistry[Tool](nil)}
}

// Call dispatches args to the named tool.
func (s *ToolSet) Call(ctx *BaseCtx, name, args string) (ToolResult, error) {
	t, ok := s.Get(name)
	if !ok {
		return ToolResult{}, fmt.Errorf("%w: %q", ErrToolNotFound, name)
	}
	return t.Call(ctx, args)
}

// AgentSet is the agent registry. Agent names are lowercased.
type AgentSet struct {
	Registry[Agent]
}

// NewAgentSet returns an empty agent registry.
func NewAgentSet() *AgentSet {
	return &AgentSet{Registry: newRegistry[Agent](strings.ToLower)}
}

// Run dispatches the prompt to the named agent.
func (s *AgentSet) Run(ctx *AgentCtx, name, prompt string, attachment []byte) (AgentOutput, error) {
	a, ok := s.Get(name)
	if !ok {
		return AgentOutput{}, fmt.Errorf("%w: %q", ErrAgentNotFound, name)
	}
	return a.Run(ctx, prompt, attachment)
}
