package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// CompletionRequest is a single non-streaming prompt.
type CompletionRequest struct {
	Model     string
	System    string
	Prompt    string
	MaxTokens int
}

// Completion is the text of the first content block and the call's usage.
type Completion struct {
	Text  string
	Usage Usage
}

// Completer issues one-shot, non-streaming requests.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (Completion, error)
}

// SDKCompleter implements Completer with the Anthropic Go SDK.
type SDKCompleter struct {
	baseURL    string
	keys       KeySource
	httpClient *http.Client
	maxRetries int
}

// NewSDKCompleter returns a completer against baseURL (empty means the SDK default).
// maxRetries is handed to the SDK; zero disables automatic retry.
func NewSDKCompleter(baseURL string, keys KeySource, httpClient *http.Client, maxRetries int) *SDKCompleter {
	return &SDKCompleter{
		baseURL:    strings.TrimRight(baseURL, "/"),
		keys:       keys,
		httpClient: httpClient,
		maxRetries: maxRetries,
	}
}

func (c *SDKCompleter) client() (anthropic.Client, error) {
	apiKey, ok := "", false
	if c.keys != nil {
		apiKey, ok = c.keys.Lookup(APIKeySecret)
	}
	if !ok || apiKey == "" {
		return anthropic.Client{}, ErrMissingAPIKey
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(c.maxRetries),
	}
	if c.baseURL != "" {
		opts = append(opts, option.WithBaseURL(c.baseURL+"/"))
	}
	if c.httpClient != nil {
		opts = append(opts, option.WithHTTPClient(c.httpClient))
	}
	return anthropic.NewClient(opts...), nil
}

// Complete sends req and returns the first text block.
func (c *SDKCompleter) Complete(ctx context.Context, req CompletionRequest) (Completion, error) {
	client, err := c.client()
	if err != nil {
		return Completion{}, err
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(maxTokens(req.MaxTokens, 1024)),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	msg, err := client.Messages.New(ctx, params)
	if err != nil {
		return Completion{}, fmt.Errorf("anthropic completion: %w", err)
	}

	out := Completion{
		Usage: Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}
	if len(msg.Content) > 0 {
		if block, ok := msg.Content[0].AsAny().(anthropic.TextBlock); ok {
			out.Text = block.Text
		}
	}
	return out, nil
}
