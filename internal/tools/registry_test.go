package tools

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/samsaffron/tierchat/internal/llm"
	"github.com/samsaffron/tierchat/internal/secrets"
	"github.com/samsaffron/tierchat/internal/testutil"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func specNames(specs []llm.ToolSpec) []string {
	names := make([]string, 0, len(specs))
	for _, s := range specs {
		names = append(names, s.Name)
	}
	return names
}

func TestAvailableTracksSecretsPerCall(t *testing.T) {
	keys := testutil.StaticKeys{}
	r := NewRegistry(keys, quietLogger())
	clock, err := NewClockTool("UTC")
	if err != nil {
		t.Fatal(err)
	}
	r.Register(clock)
	r.Register(NewWebSearchTool(NewSearcher("", keys, nil, 0)))

	if got := strings.Join(specNames(r.Available()), ","); got != ClockToolName {
		t.Fatalf("available without key=%s", got)
	}

	keys[secrets.SearchAPIKey] = "k"
	if got := strings.Join(specNames(r.Available()), ","); got != ClockToolName+","+WebSearchToolName {
		t.Fatalf("available with key=%s", got)
	}
}

func TestExecuteNeverFails(t *testing.T) {
	keys := testutil.StaticKeys{}
	r := NewRegistry(keys, quietLogger())
	r.Register(NewWebSearchTool(NewSearcher("http://127.0.0.1:0", keys, nil, 0)))

	failing := testutil.NewMockTool("failing", "")
	failing.ExecuteFn = func(ctx context.Context, input map[string]any) (llm.ToolResult, error) {
		return llm.ToolResult{}, errors.New("kaboom")
	}
	r.Register(failing)

	panicky := testutil.NewMockTool("panicky", "")
	panicky.ExecuteFn = func(ctx context.Context, input map[string]any) (llm.ToolResult, error) {
		panic("nil map")
	}
	r.Register(panicky)

	tests := []struct {
		name string
		want string
	}{
		{"does_not_exist", `unknown tool "does_not_exist"`},
		{WebSearchToolName, "search_api_key"},
		{"failing", "kaboom"},
		{"panicky", "failed unexpectedly"},
	}
	for _, tt := range tests {
		res := r.Execute(context.Background(), tt.name, nil)
		if !strings.Contains(res.Text, tt.want) {
			t.Fatalf("%s: text=%q, want it to contain %q", tt.name, res.Text, tt.want)
		}
		if res.Payload != nil {
			t.Fatalf("%s: unexpected payload", tt.name)
		}
	}
}

func TestExecuteInvalidParams(t *testing.T) {
	keys := testutil.StaticKeys{secrets.SearchAPIKey: "k"}
	r := NewRegistry(keys, quietLogger())
	r.Register(NewWebSearchTool(NewSearcher("http://127.0.0.1:0", keys, nil, 0)))
	res := r.Execute(context.Background(), WebSearchToolName, map[string]any{"query": 42})
	if !strings.HasPrefix(res.Text, "Error: invalid input for web_search") {
		t.Fatalf("text=%q", res.Text)
	}
}

func TestLabelFallback(t *testing.T) {
	r := NewRegistry(nil, quietLogger())
	r.Register(testutil.NewMockTool("quiet", "x"))
	if got := r.Label("quiet", nil); got != "Running quiet" {
		t.Fatalf("label=%q", got)
	}
	if got := r.Label("ghost", nil); got != "Running ghost" {
		t.Fatalf("label=%q", got)
	}
}

func TestWarnUnknownParams(t *testing.T) {
	got := WarnUnknownParams(map[string]any{"query": "x", "zeta": 1, "alpha": 2}, []string{"query"})
	want := "Unknown parameter 'alpha' was ignored\nUnknown parameter 'zeta' was ignored\n"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestExecuteReportsUnknownParams(t *testing.T) {
	r := NewRegistry(nil, quietLogger())
	tool := testutil.NewMockTool("echo", "done")
	tool.SpecData.Schema["properties"] = map[string]interface{}{
		"query": map[string]interface{}{"type": "string"},
	}
	r.Register(tool)

	res := r.Execute(context.Background(), "echo", map[string]any{"query": "x", "limit": 3})
	if res.Text != "Unknown parameter 'limit' was ignored\ndone" {
		t.Fatalf("text=%q", res.Text)
	}
	res = r.Execute(context.Background(), "echo", map[string]any{"query": "x"})
	if res.Text != "done" {
		t.Fatalf("text=%q", res.Text)
	}
}
