// Package tool implements the capability subsystem: a registry of named
// tools with schema-validated arguments, per-call timeouts and a uniform
// result envelope. The registry never propagates raw errors or panics to
// an agent; every failure becomes a core.ToolResult with Success=false.
package tool

import (
	"context"
	"fmt"

	"github.com/scholarmesh/scholarmesh/internal/util"
)

// Tool defines a single capability agents can invoke. Tools are stateless
// with respect to session identity: anything they need arrives as
// arguments.
//
// Implementations should:
//   - Provide clear, descriptive names (snake_case recommended)
//   - Declare a minimal JSON schema for Parameters
//   - Honor ctx cancellation in Execute
//   - Be safe for concurrent use
type Tool interface {
	// Name returns the unique identifier for this tool.
	Name() string

	// Description tells the model when and how to use the tool.
	Description() string

	// Parameters returns a JSON-schema-like map describing the expected
	// arguments; the registry validates against it before Execute runs.
	Parameters() map[string]any

	// Execute runs the tool with validated arguments.
	Execute(ctx context.Context, args map[string]any) (any, error)
}

// ValidationError re-exports the internal validation error type.
type ValidationError = util.ValidationError

// Error codes attached to ToolError by the registry and FunctionTool.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeExecution  = "EXECUTION_ERROR"
	CodeTimeout    = "TIMEOUT"
	CodeUnknown    = "UNKNOWN_TOOL"
)

// ToolError represents a failure during tool execution with a stable code
// for categorization.
type ToolError struct {
	Tool    string `json:"tool"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{Tool: tool, Message: message, Code: code}
}
