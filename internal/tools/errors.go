package tools

import "fmt"

// ToolErrorType classifies tool failures in the output the model sees.
type ToolErrorType string

const (
	ErrInvalidParams   ToolErrorType = "invalid_params"
	ErrFileNotFound    ToolErrorType = "file_not_found"
	ErrBinaryFile      ToolErrorType = "binary_file"
	ErrExecutionFailed ToolErrorType = "execution_failed"
)

// ToolError is a structured error surfaced to the model as tool output
// rather than failing the turn.
type ToolError struct {
	Type    ToolErrorType
	Message string
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func NewToolError(t ToolErrorType, message string) *ToolError {
	return &ToolError{Type: t, Message: message}
}

func NewToolErrorf(t ToolErrorType, format string, args ...any) *ToolError {
	return &ToolError{Type: t, Message: fmt.Sprintf(format, args...)}
}

// formatToolError formats a ToolError for model consumption.
func formatToolError(err *ToolError) string {
	return fmt.Sprintf("Error [%s]: %s", err.Type, err.Message)
}
