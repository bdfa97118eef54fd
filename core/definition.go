package core

// FunctionDefinition is the machine readable description of a unit. It is
// what a model sees when selecting tools and what introspection returns.
// Parameters is a JSON schema object.
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
	Strict      *bool          `json:"strict,omitempty"`
}

// IsStrict reports whether the definition requests strict schema adherence.
func (d FunctionDefinition) IsStrict() bool { return d.Strict != nil && *d.Strict }

// EmptyParameters returns the schema of a unit that takes no arguments.
func EmptyParameters() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}
}

// PromptParameters returns the schema agents use: a single required prompt.
func PromptParameters(description string) map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"prompt": map[string]any{
				"type":        "string",
				"description": description,
			},
		},
		"required": []any{"prompt"},
	}
}
