package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/samsaffron/tierchat/internal/llm"
	"github.com/samsaffron/tierchat/internal/secrets"
)

// Registry holds the tools and dispatches calls to them. Availability is
// recomputed from the secret source on every call.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	order  []string
	keys   llm.KeySource
	logger *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(keys llm.KeySource, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:  make(map[string]Tool),
		keys:   keys,
		logger: logger,
	}
}

// Register adds or replaces a tool.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := tool.Spec().Name
	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = tool
}

// Get returns a registered tool regardless of availability.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Available returns specs for tools whose required secrets are configured,
// in registration order.
func (r *Registry) Available() []llm.ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs := make([]llm.ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		tool := r.tools[name]
		if missing := r.missingSecrets(tool); len(missing) > 0 {
			continue
		}
		specs = append(specs, tool.Spec())
	}
	return specs
}

// Label returns the "tool running" text for a call.
func (r *Registry) Label(name string, input map[string]any) string {
	tool, ok := r.Get(name)
	if !ok {
		return fmt.Sprintf("Running %s", name)
	}
	if label := tool.Label(input); label != "" {
		return label
	}
	return fmt.Sprintf("Running %s", name)
}

// Execute runs a tool. It never fails: unknown names, missing credentials,
// errors and panics all become a plain explanatory result.
func (r *Registry) Execute(ctx context.Context, name string, input map[string]any) (result llm.ToolResult) {
	tool, ok := r.Get(name)
	if !ok {
		return llm.PlainResult(fmt.Sprintf("Error: unknown tool %q. It is not available in this conversation.", name))
	}
	if missing := r.missingSecrets(tool); len(missing) > 0 {
		return llm.PlainResult(fmt.Sprintf("The %s tool is unavailable because %s is not configured.", name, describeSecrets(missing)))
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("tool panicked", "tool", name, "panic", p)
			result = llm.PlainResult(fmt.Sprintf("Error: the %s tool failed unexpectedly.", name))
		}
	}()

	if input == nil {
		input = map[string]any{}
	}
	res, err := tool.Execute(ctx, input)
	if err != nil {
		r.logger.Warn("tool failed", "tool", name, "error", err)
		return llm.PlainResult(errorText(name, err))
	}
	if known := schemaKeys(tool.Spec()); len(known) > 0 {
		if warning := WarnUnknownParams(input, known); warning != "" {
			res.Text = warning + res.Text
		}
	}
	return res
}

// schemaKeys lists the top-level properties a tool's schema declares.
func schemaKeys(spec llm.ToolSpec) []string {
	props, _ := spec.Schema["properties"].(map[string]interface{})
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	return keys
}

func (r *Registry) missingSecrets(tool Tool) []string {
	req, ok := tool.(Requirer)
	if !ok {
		return nil
	}
	var missing []string
	for _, name := range req.Requires() {
		if r.keys == nil {
			missing = append(missing, name)
			continue
		}
		if v, ok := r.keys.Lookup(name); !ok || v == "" {
			missing = append(missing, name)
		}
	}
	return missing
}

func describeSecrets(names []string) string {
	if len(names) == 1 {
		return fmt.Sprintf("the %s credential (env %s)", names[0], secrets.EnvName(names[0]))
	}
	return fmt.Sprintf("the credentials %v", names)
}

func errorText(name string, err error) string {
	var toolErr *ToolError
	if errors.As(err, &toolErr) {
		switch toolErr.Type {
		case ErrInvalidParams:
			return fmt.Sprintf("Error: invalid input for %s: %s", name, toolErr.Message)
		case ErrMissingCredential:
			return fmt.Sprintf("The %s tool is unavailable: %s", name, toolErr.Message)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Sprintf("Error: %s timed out.", name)
	}
	return fmt.Sprintf("Error: %s failed: %v", name, err)
}
