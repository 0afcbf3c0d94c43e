package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/google/go-cmp/cmp"
)

const toolStream = `event: message_start
data: {"type":"message_start","message":{"usage":{"input_tokens":25,"output_tokens":1}}}

event: content_block_start
data: {"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}

event: ping
data: {"type":"ping"}

event: content_block_delta
data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Checking "}}

event: content_block_delta
data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"now."}}

event: content_block_stop
data: {"type":"content_block_stop","index":0}

event: content_block_start
data: {"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"toolu_1","name":"get_weather","input":{}}}

event: content_block_delta
data: {"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{\"locat"}}

event: content_block_delta
data: {"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"ion\": \"Oslo\"}"}}

event: content_block_stop
data: {"type":"content_block_stop","index":1}

event: message_delta
data: {"type":"message_delta","delta":{"stop_reason":"tool_use"},"usage":{"output_tokens":42}}

event: message_stop
data: {"type":"message_stop"}

data: [DONE]
`

func wantToolStreamResult() StreamResult {
	return StreamResult{
		Text:       "Checking now.",
		ToolCalls:  []ToolCall{{ID: "toolu_1", Name: "get_weather", Input: map[string]any{"location": "Oslo"}}},
		StopReason: StopToolUse,
		Usage:      Usage{InputTokens: 25, OutputTokens: 42},
	}
}

func TestDecodeToolStream(t *testing.T) {
	var deltas []string
	got, err := Decode(context.Background(), strings.NewReader(toolStream), func(s string) {
		deltas = append(deltas, s)
	})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if diff := cmp.Diff(wantToolStreamResult(), got); diff != "" {
		t.Fatalf("result mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Checking ", "now."}, deltas); diff != "" {
		t.Fatalf("deltas mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeOneByteReads(t *testing.T) {
	got, err := Decode(context.Background(), iotest.OneByteReader(strings.NewReader(toolStream)), nil)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if diff := cmp.Diff(wantToolStreamResult(), got); diff != "" {
		t.Fatalf("result mismatch (-want +got):\n%s", diff)
	}
}

func TestDecoderChunkingInvariance(t *testing.T) {
	for _, size := range []int{1, 2, 3, 7, 16, 64, 1000} {
		d := NewDecoder(nil)
		data := []byte(toolStream)
		for len(data) > 0 {
			n := size
			if n > len(data) {
				n = len(data)
			}
			if _, err := d.Write(data[:n]); err != nil {
				t.Fatalf("chunk %d: Write: %v", size, err)
			}
			data = data[n:]
		}
		d.Flush()
		if diff := cmp.Diff(wantToolStreamResult(), d.Result()); diff != "" {
			t.Fatalf("chunk %d: result mismatch (-want +got):\n%s", size, diff)
		}
	}
}

func TestToolInputSplitAnywhere(t *testing.T) {
	input := `{"query":"go generics","limit":3}`
	for i := 0; i <= len(input); i++ {
		acc := newToolCallAccumulator()
		acc.Start(2, "id", "lookup", nil)
		acc.Append(2, input[:i])
		acc.Append(2, input[i:])
		call, ok := acc.Finish(2)
		if !ok {
			t.Fatalf("split %d: call not finished", i)
		}
		want := map[string]any{"query": "go generics", "limit": float64(3)}
		if diff := cmp.Diff(want, call.Input); diff != "" {
			t.Fatalf("split %d: input mismatch (-want +got):\n%s", i, diff)
		}
	}
}

func TestToolInputInvalidBecomesEmpty(t *testing.T) {
	tests := []struct {
		name    string
		partial string
	}{
		{"truncated", `{"query":"go`},
		{"array", `[1,2]`},
		{"null", `null`},
		{"empty", ``},
	}
	for _, tt := range tests {
		acc := newToolCallAccumulator()
		acc.Start(0, "id", "lookup", nil)
		acc.Append(0, tt.partial)
		call, ok := acc.Finish(0)
		if !ok {
			t.Fatalf("%s: call not finished", tt.name)
		}
		if call.Input == nil || len(call.Input) != 0 {
			t.Fatalf("%s: input=%v, want empty map", tt.name, call.Input)
		}
	}
}

func TestToolInputFallsBackToStartBlock(t *testing.T) {
	acc := newToolCallAccumulator()
	acc.Start(0, "id", "get_current_time", []byte(`{"timezone":"UTC"}`))
	call, _ := acc.Finish(0)
	if call.Input["timezone"] != "UTC" {
		t.Fatalf("input=%v", call.Input)
	}
}

func TestDecodeIgnoresNoise(t *testing.T) {
	stream := ": keepalive\n" +
		"data: not json\n" +
		"data:\n" +
		"retry: 100\n" +
		`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"ok"}}` + "\n" +
		`data: {"type":"content_block_stop","index":5}` + "\n" +
		`data: {"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":3}}`
	got, err := Decode(context.Background(), strings.NewReader(stream), nil)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := StreamResult{Text: "ok", ToolCalls: []ToolCall{}, StopReason: StopEndTurn, Usage: Usage{OutputTokens: 3}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("result mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeErrorEvent(t *testing.T) {
	stream := `data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"partial"}}` + "\n" +
		`data: {"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}` + "\n"
	got, err := Decode(context.Background(), strings.NewReader(stream), nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err=%v, want *APIError", err)
	}
	if apiErr.Type != "overloaded_error" || apiErr.Message != "Overloaded" {
		t.Fatalf("apiErr=%+v", apiErr)
	}
	if got.Text != "" {
		t.Fatalf("partial result leaked: %+v", got)
	}
}

func TestDecodeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Decode(ctx, strings.NewReader(toolStream), nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v, want context.Canceled", err)
	}
}
