package testutil

import (
	"context"
	"sync"

	"github.com/samsaffron/tierchat/internal/llm"
)

// MockTool is a configurable tool for testing.
type MockTool struct {
	SpecData    llm.ToolSpec
	ExecuteFn   func(ctx context.Context, input map[string]any) (llm.ToolResult, error)
	LabelFn     func(input map[string]any) string
	RequiresSet []string

	mu          sync.Mutex
	Invocations []MockToolInvocation
}

// MockToolInvocation records a single tool invocation.
type MockToolInvocation struct {
	Input  map[string]any
	Result llm.ToolResult
	Error  error
}

// Spec implements tools.Tool.
func (m *MockTool) Spec() llm.ToolSpec {
	return m.SpecData
}

// Label implements tools.Tool.
func (m *MockTool) Label(input map[string]any) string {
	if m.LabelFn == nil {
		return ""
	}
	return m.LabelFn(input)
}

// Execute implements tools.Tool.
func (m *MockTool) Execute(ctx context.Context, input map[string]any) (llm.ToolResult, error) {
	var result llm.ToolResult
	var err error
	if m.ExecuteFn != nil {
		result, err = m.ExecuteFn(ctx, input)
	}
	m.mu.Lock()
	m.Invocations = append(m.Invocations, MockToolInvocation{Input: input, Result: result, Error: err})
	m.mu.Unlock()
	return result, err
}

// Requires implements tools.Requirer when RequiresSet is non-empty.
func (m *MockTool) Requires() []string {
	return m.RequiresSet
}

// NewMockTool creates a mock tool with the given name that returns a fixed result.
func NewMockTool(name string, result string) *MockTool {
	return &MockTool{
		SpecData: llm.ToolSpec{
			Name:        name,
			Description: "Mock tool: " + name,
			Schema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
		ExecuteFn: func(ctx context.Context, input map[string]any) (llm.ToolResult, error) {
			return llm.PlainResult(result), nil
		},
	}
}

// InvocationCount returns the number of times the tool was invoked.
func (m *MockTool) InvocationCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Invocations)
}

// LastInput returns the input of the last invocation, or nil if never invoked.
func (m *MockTool) LastInput() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Invocations) == 0 {
		return nil
	}
	return m.Invocations[len(m.Invocations)-1].Input
}

// StaticKeys is a fixed secret source.
type StaticKeys map[string]string

// Lookup implements llm.KeySource.
func (k StaticKeys) Lookup(name string) (string, bool) {
	v, ok := k[name]
	return v, ok && v != ""
}

// FakeCompleter returns scripted completions in order; the last one repeats.
type FakeCompleter struct {
	mu        sync.Mutex
	Responses []llm.Completion
	Err       error
	Requests  []llm.CompletionRequest
}

// Complete implements llm.Completer.
func (f *FakeCompleter) Complete(ctx context.Context, req llm.CompletionRequest) (llm.Completion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Requests = append(f.Requests, req)
	if f.Err != nil {
		return llm.Completion{}, f.Err
	}
	if len(f.Responses) == 0 {
		return llm.Completion{}, nil
	}
	idx := len(f.Requests) - 1
	if idx >= len(f.Responses) {
		idx = len(f.Responses) - 1
	}
	return f.Responses[idx], nil
}
