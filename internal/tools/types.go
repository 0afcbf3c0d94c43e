// Package tools provides the model-callable tools and the dispatcher that
// runs them.
package tools

import (
	"context"
	"fmt"

	"github.com/samsaffron/tierchat/internal/llm"
)

// Tool names.
const (
	ClockToolName     = "get_current_time"
	LookupToolName    = "lookup"
	WebSearchToolName = "web_search"
	WeatherToolName   = "get_weather"
)

// Tool is a callable tool. Input is the model's decoded argument object.
type Tool interface {
	Spec() llm.ToolSpec
	// Label returns a short human-readable status shown while the tool runs
	// (e.g. "Searching the web for go generics").
	Label(input map[string]any) string
	Execute(ctx context.Context, input map[string]any) (llm.ToolResult, error)
}

// Requirer is implemented by tools that only work when named secrets are configured.
type Requirer interface {
	Requires() []string
}

// ToolErrorType classifies tool failures.
type ToolErrorType string

const (
	ErrInvalidParams     ToolErrorType = "INVALID_PARAMS"
	ErrMissingCredential ToolErrorType = "MISSING_CREDENTIAL"
	ErrExecutionFailed   ToolErrorType = "EXECUTION_FAILED"
	ErrUpstream          ToolErrorType = "UPSTREAM_ERROR"
)

// ToolError provides structured error information.
type ToolError struct {
	Type    ToolErrorType `json:"type"`
	Message string        `json:"message"`
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// NewToolError creates a new ToolError.
func NewToolError(errType ToolErrorType, message string) *ToolError {
	return &ToolError{Type: errType, Message: message}
}

// NewToolErrorf creates a new ToolError with formatted message.
func NewToolErrorf(errType ToolErrorType, format string, args ...interface{}) *ToolError {
	return &ToolError{Type: errType, Message: fmt.Sprintf(format, args...)}
}
