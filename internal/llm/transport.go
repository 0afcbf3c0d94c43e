package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultBaseURL    = "https://api.anthropic.com"
	DefaultAPIVersion = "2023-06-01"
	DefaultMaxTokens  = 4096

	// APIKeySecret names the chat endpoint credential in the secret provider.
	APIKeySecret = "anthropic_api_key"
)

// KeySource resolves named credentials.
type KeySource interface {
	Lookup(name string) (string, bool)
}

// Models maps tiers to concrete model identifiers.
type Models struct {
	Cheap   string
	Mid     string
	Premium string
}

// DefaultModels returns the stock model for each tier.
func DefaultModels() Models {
	return Models{
		Cheap:   "claude-haiku-4-5",
		Mid:     "claude-sonnet-4-5",
		Premium: "claude-opus-4-1",
	}
}

// For returns the model id for a tier.
func (m Models) For(t Tier) string {
	switch t {
	case TierCheap:
		return m.Cheap
	case TierPremium:
		return m.Premium
	}
	return m.Mid
}

// Request is one streaming exchange.
type Request struct {
	Model     string
	System    string
	Messages  []Message
	Tools     []ToolSpec
	MaxTokens int
}

// Streamer runs one streaming exchange, forwarding text deltas to onText.
type Streamer interface {
	Stream(ctx context.Context, req Request, onText func(string)) (StreamResult, error)
}

// ClientConfig configures the streaming transport.
type ClientConfig struct {
	BaseURL        string
	APIVersion     string
	MaxTokens      int
	IdleTimeout    time.Duration // fail the exchange when no bytes arrive for this long
	ConnectTimeout time.Duration
	HTTPClient     *http.Client
}

// Client posts streaming Messages API requests over plain HTTP.
type Client struct {
	baseURL     string
	version     string
	maxTokens   int
	idleTimeout time.Duration
	keys        KeySource
	http        *http.Client
}

// NewClient creates a streaming client. The API key is resolved from keys on every request.
func NewClient(cfg ClientConfig, keys KeySource) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		version:     cfg.APIVersion,
		maxTokens:   cfg.MaxTokens,
		idleTimeout: cfg.IdleTimeout,
		keys:        keys,
		http:        cfg.HTTPClient,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.version == "" {
		c.version = DefaultAPIVersion
	}
	if c.http == nil {
		c.http = NewHTTPClient(cfg.ConnectTimeout)
	}
	return c
}

// NewHTTPClient returns an HTTP client whose dial, TLS, and header waits are bounded.
// The body read is left unbounded so long streams are not cut off.
func NewHTTPClient(connectTimeout time.Duration) *http.Client {
	if connectTimeout <= 0 {
		connectTimeout = 30 * time.Second
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: connectTimeout, KeepAlive: 30 * time.Second}).DialContext
	transport.TLSHandshakeTimeout = connectTimeout
	transport.ResponseHeaderTimeout = 2 * connectTimeout
	return &http.Client{Transport: transport}
}

var errStalled = errors.New("stream stalled")

// Stream posts req with stream:true and decodes the event stream.
func (c *Client) Stream(ctx context.Context, req Request, onText func(string)) (StreamResult, error) {
	apiKey, ok := "", false
	if c.keys != nil {
		apiKey, ok = c.keys.Lookup(APIKeySecret)
	}
	if !ok || apiKey == "" {
		return StreamResult{}, ErrMissingAPIKey
	}

	body, err := json.Marshal(c.buildPayload(req))
	if err != nil {
		return StreamResult{}, fmt.Errorf("encode request: %w", err)
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return StreamResult{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("X-API-Key", apiKey)
	httpReq.Header.Set("Anthropic-Version", c.version)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return StreamResult{}, fmt.Errorf("anthropic request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return StreamResult{}, readAPIError(resp)
	}

	var r io.Reader = resp.Body
	if c.idleTimeout > 0 {
		idle := newIdleReader(resp.Body, c.idleTimeout, func() { cancel(errStalled) })
		defer idle.Stop()
		r = idle
	}

	result, err := Decode(ctx, r, onText)
	if err != nil {
		if errors.Is(context.Cause(ctx), errStalled) {
			return StreamResult{}, fmt.Errorf("%w: no data for %s", errStalled, c.idleTimeout)
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return StreamResult{}, apiErr
		}
		return StreamResult{}, fmt.Errorf("read stream: %w", err)
	}
	return result, nil
}

// idleReader fires onIdle when no bytes have been read for d.
type idleReader struct {
	r     io.Reader
	d     time.Duration
	timer *time.Timer
}

func newIdleReader(r io.Reader, d time.Duration, onIdle func()) *idleReader {
	return &idleReader{r: r, d: d, timer: time.AfterFunc(d, onIdle)}
}

func (r *idleReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if n > 0 {
		r.timer.Reset(r.d)
	}
	return n, err
}

func (r *idleReader) Stop() {
	r.timer.Stop()
}

type wirePayload struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	System    string        `json:"system,omitempty"`
	Messages  []wireMessage `json:"messages"`
	Tools     []wireTool    `json:"tools,omitempty"`
	Stream    bool          `json:"stream"`
}

type wireMessage struct {
	Role    string      `json:"role"`
	Content []wireBlock `json:"content"`
}

type wireBlock struct {
	Type      string       `json:"type"`
	Text      string       `json:"text,omitempty"`
	Source    *wireSource  `json:"source,omitempty"`
	ID        string       `json:"id,omitempty"`
	Name      string       `json:"name,omitempty"`
	Input     any          `json:"input,omitempty"`
	ToolUseID string       `json:"tool_use_id,omitempty"`
	Content   *wireContent `json:"content,omitempty"`
}

// wireContent is a tool_result body. It marshals as a plain string.
type wireContent struct {
	text string
}

func (c *wireContent) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.text)
}

type wireSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type wireTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}

func (c *Client) buildPayload(req Request) wirePayload {
	payload := wirePayload{
		Model:     req.Model,
		MaxTokens: maxTokens(req.MaxTokens, c.maxTokens),
		System:    req.System,
		Messages:  buildWireMessages(req.Messages),
		Stream:    true,
	}
	for _, spec := range req.Tools {
		schema := spec.Schema
		if schema == nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		payload.Tools = append(payload.Tools, wireTool{
			Name:        spec.Name,
			Description: spec.Description,
			InputSchema: schema,
		})
	}
	return payload
}

func buildWireMessages(messages []Message) []wireMessage {
	out := make([]wireMessage, 0, len(messages))
	for _, msg := range messages {
		wm := wireMessage{Role: string(msg.Role)}
		for _, part := range msg.Parts {
			switch part.Type {
			case PartText:
				if part.Text == "" {
					continue
				}
				wm.Content = append(wm.Content, wireBlock{Type: "text", Text: part.Text})
			case PartImage:
				if part.Image == nil {
					continue
				}
				wm.Content = append(wm.Content, wireBlock{
					Type:   "image",
					Source: &wireSource{Type: "base64", MediaType: part.Image.MediaType, Data: part.Image.Data},
				})
			case PartToolUse:
				if part.ToolCall == nil {
					continue
				}
				input := part.ToolCall.Input
				if input == nil {
					input = map[string]any{}
				}
				wm.Content = append(wm.Content, wireBlock{
					Type:  "tool_use",
					ID:    part.ToolCall.ID,
					Name:  part.ToolCall.Name,
					Input: input,
				})
			case PartToolResult:
				wm.Content = append(wm.Content, wireBlock{
					Type:      "tool_result",
					ToolUseID: part.ToolUseID,
					Content:   &wireContent{text: part.Text},
				})
			}
		}
		if len(wm.Content) == 0 {
			continue
		}
		out = append(out, wm)
	}
	return out
}

func maxTokens(requested, fallback int) int {
	if requested > 0 {
		return requested
	}
	if fallback > 0 {
		return fallback
	}
	return DefaultMaxTokens
}
