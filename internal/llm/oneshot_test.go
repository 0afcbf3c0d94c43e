package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSDKCompleterComplete(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path=%q", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-haiku-4-5",
			"content": [{"type": "text", "text": "{\"tier\":\"cheap\",\"confidence\":0.9}"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 40, "output_tokens": 12}
		}`)
	}))
	defer srv.Close()

	c := NewSDKCompleter(srv.URL, testKeys(), srv.Client(), 0)
	comp, err := c.Complete(context.Background(), CompletionRequest{
		Model:  "claude-haiku-4-5",
		System: "classify",
		Prompt: "hello",
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if comp.Text != `{"tier":"cheap","confidence":0.9}` {
		t.Fatalf("text=%q", comp.Text)
	}
	if comp.Usage != (Usage{InputTokens: 40, OutputTokens: 12}) {
		t.Fatalf("usage=%+v", comp.Usage)
	}
	if got["model"] != "claude-haiku-4-5" || got["max_tokens"] != float64(1024) {
		t.Fatalf("payload=%v", got)
	}
}

func TestSDKCompleterMissingKey(t *testing.T) {
	c := NewSDKCompleter("", mapKeys{}, nil, 0)
	_, err := c.Complete(context.Background(), CompletionRequest{Model: "m", Prompt: "p"})
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("err=%v, want ErrMissingAPIKey", err)
	}
}

func TestSDKCompleterHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`)
	}))
	defer srv.Close()

	c := NewSDKCompleter(srv.URL, testKeys(), srv.Client(), 0)
	if _, err := c.Complete(context.Background(), CompletionRequest{Model: "m", Prompt: "p"}); err == nil {
		t.Fatal("expected error")
	}
}
