package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/samsaffron/tierchat/internal/llm"
	"github.com/samsaffron/tierchat/internal/secrets"
	"github.com/tidwall/gjson"
)

const (
	DefaultSearchURL  = "https://api.tavily.com"
	DefaultMaxResults = 5
)

// SearchHit is one search result.
type SearchHit struct {
	Title   string
	URL     string
	Snippet string
}

// SearchResponse is an AI summary (may be empty) plus result snippets.
type SearchResponse struct {
	Answer string
	Hits   []SearchHit
}

// Text renders the response as one block for the model.
func (r SearchResponse) Text() string {
	var b strings.Builder
	if r.Answer != "" {
		b.WriteString("Summary: ")
		b.WriteString(strings.TrimSpace(r.Answer))
		b.WriteString("\n\n")
	}
	for _, h := range r.Hits {
		if h.URL == "" || h.Title == "" {
			continue
		}
		b.WriteString("- [")
		b.WriteString(h.Title)
		b.WriteString("](")
		b.WriteString(h.URL)
		b.WriteString(")")
		if h.Snippet != "" {
			b.WriteString(" - ")
			b.WriteString(h.Snippet)
		}
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

// Searcher queries the Tavily search API.
type Searcher struct {
	baseURL    string
	keys       llm.KeySource
	client     *http.Client
	maxResults int
}

// NewSearcher creates a searcher. The API key is read from keys on each search.
func NewSearcher(baseURL string, keys llm.KeySource, client *http.Client, maxResults int) *Searcher {
	if baseURL == "" {
		baseURL = DefaultSearchURL
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	return &Searcher{
		baseURL:    strings.TrimRight(baseURL, "/"),
		keys:       keys,
		client:     client,
		maxResults: maxResults,
	}
}

// Available reports whether a search credential is configured.
func (s *Searcher) Available() bool {
	if s == nil || s.keys == nil {
		return false
	}
	v, ok := s.keys.Lookup(secrets.SearchAPIKey)
	return ok && v != ""
}

// Search runs query and returns the summary and up to maxResults hits.
func (s *Searcher) Search(ctx context.Context, query string) (SearchResponse, error) {
	if !s.Available() {
		return SearchResponse{}, NewToolError(ErrMissingCredential, "no search API key is configured")
	}
	apiKey, _ := s.keys.Lookup(secrets.SearchAPIKey)

	body, err := json.Marshal(map[string]any{
		"query":          query,
		"max_results":    s.maxResults,
		"include_answer": true,
		"search_depth":   "basic",
	})
	if err != nil {
		return SearchResponse{}, fmt.Errorf("encode search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return SearchResponse{}, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return SearchResponse{}, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return SearchResponse{}, fmt.Errorf("read search response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := gjson.GetBytes(data, "detail.error").String()
		if msg == "" {
			msg = strings.TrimSpace(string(data))
			if len(msg) > 200 {
				msg = msg[:200] + "..."
			}
		}
		return SearchResponse{}, NewToolErrorf(ErrUpstream, "search API returned %d: %s", resp.StatusCode, msg)
	}
	if !gjson.ValidBytes(data) {
		return SearchResponse{}, NewToolError(ErrUpstream, "search API returned invalid JSON")
	}

	parsed := gjson.ParseBytes(data)
	out := SearchResponse{Answer: parsed.Get("answer").String()}
	parsed.Get("results").ForEach(func(_, r gjson.Result) bool {
		out.Hits = append(out.Hits, SearchHit{
			Title:   strings.TrimSpace(r.Get("title").String()),
			URL:     strings.TrimSpace(r.Get("url").String()),
			Snippet: collapseSnippet(r.Get("content").String()),
		})
		return len(out.Hits) < s.maxResults
	})
	return out, nil
}

func collapseSnippet(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return truncateText(s, 500)
}

// WebSearchTool exposes the searcher to the model.
type WebSearchTool struct {
	searcher *Searcher
}

func NewWebSearchTool(searcher *Searcher) *WebSearchTool {
	return &WebSearchTool{searcher: searcher}
}

func (t *WebSearchTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        WebSearchToolName,
		Description: "Search the web for current information. Returns a short summary and the top results with links.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "The search query",
				},
			},
			"required": []string{"query"},
		},
	}
}

func (t *WebSearchTool) Requires() []string {
	return []string{secrets.SearchAPIKey}
}

func (t *WebSearchTool) Label(input map[string]any) string {
	if q, _ := input["query"].(string); q != "" {
		return "Searching the web for " + q
	}
	return "Searching the web"
}

func (t *WebSearchTool) Execute(ctx context.Context, input map[string]any) (llm.ToolResult, error) {
	var args struct {
		Query string `json:"query"`
	}
	if err := decodeInput(input, &args); err != nil {
		return llm.ToolResult{}, err
	}
	if strings.TrimSpace(args.Query) == "" {
		return llm.ToolResult{}, NewToolError(ErrInvalidParams, "query is required")
	}
	resp, err := t.searcher.Search(ctx, args.Query)
	if err != nil {
		return llm.ToolResult{}, err
	}
	text := resp.Text()
	if text == "" {
		return llm.PlainResult(fmt.Sprintf("No results found for %q.", args.Query)), nil
	}
	return llm.PlainResult(text), nil
}
