// Package tool implements the tool calling boundary: immutable declaration
// registries, schema validated function tools and the structured ToolError
// fed back to models when a call fails.
package tool

import (
	"context"
	"fmt"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/internal/util"
)

// Error codes carried by ToolError.
const (
	CodeNotFound   = "NOT_FOUND"
	CodeValidation = "VALIDATION_ERROR"
	CodeExecution  = "EXECUTION_ERROR"
	CodePanic      = "PANIC"
	CodeTimeout    = "TIMEOUT"
)

// Tool is an in-process capability that can be registered next to its declaration.
//
// Implementations must be safe for concurrent use: calls from one batch run
// in parallel.
type Tool interface {
	// Declaration returns the name, description and parameter schema exposed to models.
	Declaration() core.ToolDeclaration

	// Call executes the tool with arguments decoded from the model's request.
	Call(ctx context.Context, args map[string]any) (any, error)
}

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}

// AsToolError returns err as a *ToolError, wrapping foreign errors with code.
func AsToolError(tool string, err error, code string) *ToolError {
	if te, ok := err.(*ToolError); ok {
		return te
	}
	return NewToolError(tool, err.Error(), code)
}
