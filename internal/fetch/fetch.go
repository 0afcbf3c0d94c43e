// Package fetch retrieves reference content from an ordered list of URL
// sources, stopping at the first one that returns a usable page.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultMaxBytes   = 512 * 1024
	DefaultMinContent = 200
	DefaultTimeout    = 15 * time.Second
	userAgent         = "tierchat/1.0 (+https://github.com/samsaffron/tierchat)"
)

// Source is one URL pattern for a category. Placeholders look like {query}.
type Source struct {
	Name     string `yaml:"name"`
	URL      string `yaml:"url"`
	Priority int    `yaml:"priority"`
	Hint     string `yaml:"hint"`
}

// Result is the content of the first source that succeeded.
type Result struct {
	Content   string
	SourceURL string
	Hint      string
	Title     string
}

// Error reports that every source failed. Reason is the last failure.
type Error struct {
	Reason   string
	Attempts int
}

func (e *Error) Error() string {
	if e.Attempts == 0 {
		return "fetch: " + e.Reason
	}
	return fmt.Sprintf("fetch: all %d sources failed, last: %s", e.Attempts, e.Reason)
}

// Options configures a Fetcher.
type Options struct {
	HTTPClient    *http.Client
	RatePerSecond float64 // zero means unlimited
	MaxBytes      int64
	MinContent    int
	Timeout       time.Duration
}

// Fetcher performs the fallback walk.
type Fetcher struct {
	client     *http.Client
	limiter    *rate.Limiter
	maxBytes   int64
	minContent int
	timeout    time.Duration
}

// New creates a Fetcher.
func New(opts Options) *Fetcher {
	f := &Fetcher{
		client:     opts.HTTPClient,
		maxBytes:   opts.MaxBytes,
		minContent: opts.MinContent,
		timeout:    opts.Timeout,
	}
	if f.client == nil {
		f.client = &http.Client{}
	}
	if f.maxBytes <= 0 {
		f.maxBytes = DefaultMaxBytes
	}
	if f.minContent <= 0 {
		f.minContent = DefaultMinContent
	}
	if f.timeout <= 0 {
		f.timeout = DefaultTimeout
	}
	if opts.RatePerSecond > 0 {
		f.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), 2)
	} else {
		f.limiter = rate.NewLimiter(rate.Inf, 0)
	}
	return f
}

// FetchWithFallback tries sources in ascending priority and returns the first
// success. Callers should treat any error as "fall back to search".
func (f *Fetcher) FetchWithFallback(ctx context.Context, sources []Source, params map[string]string) (Result, error) {
	if len(sources) == 0 {
		return Result{}, &Error{Reason: "no sources configured"}
	}
	ordered := SortSources(sources)

	lastErr := &Error{}
	for _, src := range ordered {
		if err := ctx.Err(); err != nil {
			lastErr.Reason = err.Error()
			return Result{}, lastErr
		}
		lastErr.Attempts++
		res, err := f.fetchOne(ctx, src, params)
		if err == nil {
			return res, nil
		}
		lastErr.Reason = fmt.Sprintf("%s: %v", sourceLabel(src), err)
	}
	return Result{}, lastErr
}

func (f *Fetcher) fetchOne(ctx context.Context, src Source, params map[string]string) (Result, error) {
	target, err := Expand(src.URL, params)
	if err != nil {
		return Result{}, err
	}
	if err := f.limiter.Wait(ctx); err != nil {
		return Result{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Result{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/json;q=0.9,text/plain;q=0.8,*/*;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return Result{}, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return Result{}, fmt.Errorf("read body: %w", err)
	}

	var page Page
	if isHTML(resp.Header.Get("Content-Type"), body) {
		page = ExtractHTML(string(body))
	} else {
		page = Page{Text: strings.TrimSpace(string(body))}
	}

	if reason := rejectReason(page, f.minContent); reason != "" {
		return Result{}, errors.New(reason)
	}
	return Result{
		Content:   page.Text,
		SourceURL: target,
		Hint:      src.Hint,
		Title:     page.Title,
	}, nil
}

var placeholderRe = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

// Expand substitutes {name} placeholders from params. Values in the query
// string are query-escaped; values in the path are path-escaped.
func Expand(pattern string, params map[string]string) (string, error) {
	queryStart := strings.Index(pattern, "?")
	var missing []string
	var out strings.Builder
	last := 0
	for _, loc := range placeholderRe.FindAllStringSubmatchIndex(pattern, -1) {
		name := pattern[loc[2]:loc[3]]
		value, ok := params[name]
		if !ok || strings.TrimSpace(value) == "" {
			missing = append(missing, name)
			continue
		}
		out.WriteString(pattern[last:loc[0]])
		if queryStart >= 0 && loc[0] > queryStart {
			out.WriteString(url.QueryEscape(value))
		} else {
			out.WriteString(url.PathEscape(value))
		}
		last = loc[1]
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("missing parameter %s", strings.Join(missing, ", "))
	}
	out.WriteString(pattern[last:])
	return out.String(), nil
}

// SortSources returns a copy of sources in ascending priority, keeping the
// given order among equal priorities.
func SortSources(sources []Source) []Source {
	ordered := append([]Source(nil), sources...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Priority < ordered[j].Priority })
	return ordered
}

func sourceLabel(src Source) string {
	if src.Name != "" {
		return src.Name
	}
	if u, err := url.Parse(src.URL); err == nil && u.Host != "" {
		return u.Host
	}
	return src.URL
}

func isHTML(contentType string, body []byte) bool {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		switch mediaType {
		case "text/html", "application/xhtml+xml":
			return true
		case "application/json", "text/plain":
			return false
		}
	}
	return strings.Contains(http.DetectContentType(body), "text/html")
}
