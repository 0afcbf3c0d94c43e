package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/samsaffron/tierchat/internal/fetch"
	"github.com/samsaffron/tierchat/internal/llm"
)

const maxLookupChars = 20000

// SourceFetcher walks an ordered source list.
type SourceFetcher interface {
	FetchWithFallback(ctx context.Context, sources []fetch.Source, params map[string]string) (fetch.Result, error)
}

// LookupTool answers category lookups from configured sources, falling back
// to web search.
type LookupTool struct {
	catalog  *fetch.Catalog
	fetcher  SourceFetcher
	searcher *Searcher
	logger   *slog.Logger
}

func NewLookupTool(catalog *fetch.Catalog, fetcher SourceFetcher, searcher *Searcher, logger *slog.Logger) *LookupTool {
	if catalog == nil {
		catalog = fetch.DefaultCatalog()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LookupTool{catalog: catalog, fetcher: fetcher, searcher: searcher, logger: logger}
}

func (t *LookupTool) Spec() llm.ToolSpec {
	categories := append(t.catalog.Names(), fetch.SearchCategory)
	return llm.ToolSpec{
		Name: LookupToolName,
		Description: fmt.Sprintf("Look up reference information by category from curated sources. Categories: %s. "+
			"Use %q for anything that does not fit a category.", strings.Join(categories, ", "), fetch.SearchCategory),
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"category": map[string]interface{}{
					"type":        "string",
					"description": "Lookup category",
					"enum":        categories,
				},
				"query": map[string]interface{}{
					"type":        "string",
					"description": "What to look up, e.g. a word, article title, or package name",
				},
				"params": map[string]interface{}{
					"type":                 "object",
					"description":          "Optional named parameters for the category's sources",
					"additionalProperties": map[string]interface{}{"type": "string"},
				},
			},
			"required": []string{"category", "query"},
		},
	}
}

func (t *LookupTool) Label(input map[string]any) string {
	category, _ := input["category"].(string)
	query, _ := input["query"].(string)
	switch {
	case query == "":
		return "Looking it up"
	case category == "" || category == fetch.SearchCategory:
		return "Looking up " + query
	}
	return fmt.Sprintf("Looking up %s (%s)", query, category)
}

func (t *LookupTool) Execute(ctx context.Context, input map[string]any) (llm.ToolResult, error) {
	var args struct {
		Category string         `json:"category"`
		Query    string         `json:"query"`
		Params   map[string]any `json:"params"`
	}
	if err := decodeInput(input, &args); err != nil {
		return llm.ToolResult{}, err
	}
	args.Category = strings.ToLower(strings.TrimSpace(args.Category))
	args.Query = strings.TrimSpace(args.Query)
	if args.Query == "" {
		return llm.ToolResult{}, NewToolError(ErrInvalidParams, "query is required")
	}

	if args.Category != fetch.SearchCategory && args.Category != "" {
		if sources := t.catalog.Sources(args.Category); len(sources) > 0 && t.fetcher != nil {
			params := stringParams(args.Params)
			if _, ok := params["query"]; !ok {
				params["query"] = args.Query
			}
			res, err := t.fetcher.FetchWithFallback(ctx, sources, params)
			if err == nil {
				return llm.PlainResult(formatLookup(res)), nil
			}
			if ctx.Err() != nil {
				return llm.ToolResult{}, ctx.Err()
			}
			t.logger.Debug("lookup sources failed, using web search", "category", args.Category, "error", err)
		}
	}
	return t.search(ctx, args.Category, args.Query)
}

func (t *LookupTool) search(ctx context.Context, category, query string) (llm.ToolResult, error) {
	if !t.searcher.Available() {
		return llm.PlainResult(fmt.Sprintf(
			"No curated source had an answer for %q and web search is unavailable because no search API key is configured. "+
				"Answer from your own knowledge and say that it could not be verified.", query)), nil
	}
	q := query
	if category != "" && category != fetch.SearchCategory {
		q = strings.ReplaceAll(category, "_", " ") + " " + query
	}
	resp, err := t.searcher.Search(ctx, q)
	if err != nil {
		return llm.ToolResult{}, err
	}
	text := resp.Text()
	if text == "" {
		return llm.PlainResult(fmt.Sprintf("No results found for %q.", query)), nil
	}
	return llm.PlainResult(text), nil
}

func formatLookup(res fetch.Result) string {
	var b strings.Builder
	b.WriteString("Source: ")
	b.WriteString(res.SourceURL)
	b.WriteString("\n")
	if res.Hint != "" {
		b.WriteString("Note: ")
		b.WriteString(res.Hint)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(truncateText(res.Content, maxLookupChars))
	return b.String()
}
