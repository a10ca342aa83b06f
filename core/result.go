package core

// ToolResult is the uniform envelope returned by every tool execution.
// It is immutable once produced: failures are values, not panics, so a
// failed capability never aborts a session on its own.
type ToolResult struct {
	Success  bool           `json:"success"`
	Data     any            `json:"data,omitempty"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ToolSuccess wraps a payload in a successful result.
func ToolSuccess(data any) ToolResult {
	return ToolResult{Success: true, Data: data}
}

// ToolFailure wraps an error message in a failed result.
func ToolFailure(msg string) ToolResult {
	return ToolResult{Success: false, Error: msg}
}
