// Package tool implements reusable core.Tool building blocks: function tools
// with schema validated arguments, typed submit tools for structured
// extraction and small store backed memo tools.
package tool

import (
	"fmt"

	"github.com/hupe1980/agentcore/internal/util"
)

// Error codes carried by ToolError.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeExecution  = "EXECUTION_ERROR"
)

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details

	err error
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *ToolError) Unwrap() error { return e.err }

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}

func validationError(tool string, err error) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: fmt.Sprintf("parameter validation failed: %v", err),
		Code:    CodeValidation,
		Details: err,
		err:     err,
	}
}

func executionError(tool string, err error) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: err.Error(),
		Code:    CodeExecution,
		err:     err,
	}
}
