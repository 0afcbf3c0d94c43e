package llm

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
)

// streamEvent is the subset of a Messages API stream event the decoder reads.
type streamEvent struct {
	Type    string `json:"type"`
	Index   int64  `json:"index"`
	Message *struct {
		Usage *wireUsage `json:"usage"`
	} `json:"message"`
	ContentBlock *struct {
		Type  string          `json:"type"`
		ID    string          `json:"id"`
		Name  string          `json:"name"`
		Input json.RawMessage `json:"input"`
	} `json:"content_block"`
	Delta *struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		PartialJSON string `json:"partial_json"`
		StopReason  string `json:"stop_reason"`
	} `json:"delta"`
	Usage *wireUsage `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

type wireUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Decoder turns Messages API server-sent-event lines into a StreamResult.
// It is insensitive to how the byte stream is chunked: Write buffers partial
// lines, and Feed accepts whole lines.
type Decoder struct {
	onText  func(string)
	pending []byte
	text    strings.Builder
	tools   *toolCallAccumulator
	calls   []ToolCall
	stop    StopReason
	usage   Usage
	err     error
}

// NewDecoder returns a decoder that forwards each text delta to onText (may be nil).
func NewDecoder(onText func(string)) *Decoder {
	return &Decoder{onText: onText, tools: newToolCallAccumulator()}
}

// Write implements io.Writer, splitting p into lines.
func (d *Decoder) Write(p []byte) (int, error) {
	d.pending = append(d.pending, p...)
	for {
		i := indexNewline(d.pending)
		if i < 0 {
			break
		}
		d.Feed(string(d.pending[:i]))
		d.pending = d.pending[i+1:]
	}
	return len(p), nil
}

// Flush processes any buffered partial line.
func (d *Decoder) Flush() {
	if len(d.pending) > 0 {
		d.Feed(string(d.pending))
		d.pending = nil
	}
}

// Feed processes one line of the stream.
func (d *Decoder) Feed(line string) {
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, "data:") {
		return
	}
	data := strings.TrimSpace(line[len("data:"):])
	if data == "" || data == "[DONE]" {
		return
	}
	var ev streamEvent
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		return
	}
	d.apply(ev)
}

func (d *Decoder) apply(ev streamEvent) {
	switch ev.Type {
	case "message_start":
		if ev.Message != nil && ev.Message.Usage != nil {
			d.usage.InputTokens = ev.Message.Usage.InputTokens
			d.usage.OutputTokens = ev.Message.Usage.OutputTokens
		}
	case "content_block_start":
		if ev.ContentBlock != nil && ev.ContentBlock.Type == "tool_use" {
			d.tools.Start(ev.Index, ev.ContentBlock.ID, ev.ContentBlock.Name, ev.ContentBlock.Input)
		}
	case "content_block_delta":
		if ev.Delta == nil {
			return
		}
		switch ev.Delta.Type {
		case "text_delta":
			if ev.Delta.Text == "" {
				return
			}
			d.text.WriteString(ev.Delta.Text)
			if d.onText != nil {
				d.onText(ev.Delta.Text)
			}
		case "input_json_delta":
			d.tools.Append(ev.Index, ev.Delta.PartialJSON)
		}
	case "content_block_stop":
		if call, ok := d.tools.Finish(ev.Index); ok {
			d.calls = append(d.calls, call)
		}
	case "message_delta":
		if ev.Delta != nil && ev.Delta.StopReason != "" {
			d.stop = StopReason(ev.Delta.StopReason)
		}
		if ev.Usage != nil {
			d.usage.OutputTokens = ev.Usage.OutputTokens
		}
	case "error":
		apiErr := &APIError{Message: "stream error"}
		if ev.Error != nil {
			apiErr.Type = ev.Error.Type
			if ev.Error.Message != "" {
				apiErr.Message = ev.Error.Message
			}
		}
		if d.err == nil {
			d.err = apiErr
		}
	}
}

// Err reports an error event received in the stream, if any.
func (d *Decoder) Err() error {
	return d.err
}

// Result returns the accumulated StreamResult.
func (d *Decoder) Result() StreamResult {
	calls := make([]ToolCall, len(d.calls))
	copy(calls, d.calls)
	return StreamResult{
		Text:       d.text.String(),
		ToolCalls:  calls,
		StopReason: d.stop,
		Usage:      d.usage,
	}
}

// Decode reads the whole stream from r. An I/O failure or an in-stream error
// event yields an error and no partial result.
func Decode(ctx context.Context, r io.Reader, onText func(string)) (StreamResult, error) {
	d := NewDecoder(onText)
	br := bufio.NewReaderSize(r, 64*1024)
	for {
		if err := ctx.Err(); err != nil {
			return StreamResult{}, err
		}
		line, err := br.ReadString('\n')
		if len(line) > 0 {
			d.Feed(line)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return StreamResult{}, err
		}
	}
	if d.err != nil {
		return StreamResult{}, d.err
	}
	return d.Result(), nil
}

func indexNewline(b []byte) int {
	for i, c := range b {
		if c == '\n' {
			return i
		}
	}
	return -1
}

// toolCallAccumulator collects tool_use blocks by content-block index.
type toolCallAccumulator struct {
	calls    map[int64]ToolCall
	fallback map[int64]json.RawMessage
	partial  map[int64]*strings.Builder
}

func newToolCallAccumulator() *toolCallAccumulator {
	return &toolCallAccumulator{
		calls:    make(map[int64]ToolCall),
		fallback: make(map[int64]json.RawMessage),
		partial:  make(map[int64]*strings.Builder),
	}
}

func (a *toolCallAccumulator) Start(index int64, id, name string, input json.RawMessage) {
	if len(input) > 0 {
		a.fallback[index] = input
	}
	delete(a.partial, index)
	a.calls[index] = ToolCall{ID: id, Name: name}
}

func (a *toolCallAccumulator) Append(index int64, partial string) {
	if partial == "" {
		return
	}
	if _, ok := a.calls[index]; !ok {
		return
	}
	builder := a.partial[index]
	if builder == nil {
		builder = &strings.Builder{}
		a.partial[index] = builder
	}
	builder.WriteString(partial)
}

func (a *toolCallAccumulator) Finish(index int64) (ToolCall, bool) {
	call, ok := a.calls[index]
	if !ok {
		return ToolCall{}, false
	}
	var raw json.RawMessage
	if builder := a.partial[index]; builder != nil && builder.Len() > 0 {
		raw = json.RawMessage(builder.String())
	} else if fallback, ok := a.fallback[index]; ok {
		raw = fallback
	}
	call.Input = parseToolInput(raw)
	delete(a.calls, index)
	delete(a.partial, index)
	delete(a.fallback, index)
	return call, true
}

// parseToolInput decodes a tool input object. Anything that is not a valid
// JSON object becomes an empty map.
func parseToolInput(raw json.RawMessage) map[string]any {
	input := map[string]any{}
	if len(raw) == 0 {
		return input
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil || decoded == nil {
		return input
	}
	return decoded
}
