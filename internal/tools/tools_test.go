package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/samsaffron/tierchat/internal/fetch"
	"github.com/samsaffron/tierchat/internal/llm"
	"github.com/samsaffron/tierchat/internal/secrets"
	"github.com/samsaffron/tierchat/internal/testutil"
)

// fakeTavily records queries and answers with a fixed result set.
type fakeTavily struct {
	mu      sync.Mutex
	queries []string
	auth    []string
	status  int
}

func (f *fakeTavily) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Query      string `json:"query"`
			MaxResults int    `json:"max_results"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.queries = append(f.queries, body.Query)
		f.auth = append(f.auth, r.Header.Get("Authorization"))
		f.mu.Unlock()
		if f.status != 0 {
			w.WriteHeader(f.status)
			fmt.Fprint(w, `{"detail":{"error":"quota exceeded"}}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"answer":"It is mild.","results":[
			{"title":"One","url":"https://one.test","content":"first   result"},
			{"title":"Two","url":"https://two.test","content":"second result"},
			{"title":"Three","url":"https://three.test","content":"third result"}]}`)
	})
}

func (f *fakeTavily) lastQuery() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queries) == 0 {
		return ""
	}
	return f.queries[len(f.queries)-1]
}

func newSearchServer(t *testing.T) (*fakeTavily, *httptest.Server) {
	t.Helper()
	ft := &fakeTavily{}
	srv := httptest.NewServer(ft.handler())
	t.Cleanup(srv.Close)
	return ft, srv
}

func TestClockTool(t *testing.T) {
	clock, err := NewClockTool("America/New_York")
	if err != nil {
		t.Fatal(err)
	}
	clock.now = func() time.Time { return time.Date(2026, 1, 5, 20, 4, 0, 0, time.UTC) }
	res, err := clock.Execute(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	want := "Current date and time: Monday, January 5, 2026 at 3:04 PM EST"
	if res.Text != want {
		t.Fatalf("text=%q, want %q", res.Text, want)
	}
	if _, err := NewClockTool("Not/AZone"); err == nil {
		t.Fatal("expected error for bad timezone")
	}
}

func TestWebSearchTool(t *testing.T) {
	ft, srv := newSearchServer(t)
	keys := testutil.StaticKeys{secrets.SearchAPIKey: "tvly-test"}
	tool := NewWebSearchTool(NewSearcher(srv.URL, keys, srv.Client(), 2))

	res, err := tool.Execute(context.Background(), map[string]any{"query": "go 1.25 release"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	want := "Summary: It is mild.\n\n- [One](https://one.test) - first result\n- [Two](https://two.test) - second result"
	if res.Text != want {
		t.Fatalf("text=%q\nwant=%q", res.Text, want)
	}
	if ft.lastQuery() != "go 1.25 release" || ft.auth[0] != "Bearer tvly-test" {
		t.Fatalf("query=%q auth=%q", ft.lastQuery(), ft.auth[0])
	}
}

func TestSearcherUpstreamError(t *testing.T) {
	ft, srv := newSearchServer(t)
	ft.status = http.StatusTooManyRequests
	s := NewSearcher(srv.URL, testutil.StaticKeys{secrets.SearchAPIKey: "k"}, srv.Client(), 0)
	_, err := s.Search(context.Background(), "x")
	var toolErr *ToolError
	if !errors.As(err, &toolErr) || toolErr.Type != ErrUpstream {
		t.Fatalf("err=%v", err)
	}
	if !strings.Contains(err.Error(), "429") || !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("err=%v", err)
	}
}

type failingFetcher struct {
	calls int
}

func (f *failingFetcher) FetchWithFallback(ctx context.Context, sources []fetch.Source, params map[string]string) (fetch.Result, error) {
	f.calls++
	return fetch.Result{}, &fetch.Error{Reason: "HTTP 404", Attempts: len(sources)}
}

type okFetcher struct {
	params map[string]string
}

func (f *okFetcher) FetchWithFallback(ctx context.Context, sources []fetch.Source, params map[string]string) (fetch.Result, error) {
	f.params = params
	return fetch.Result{Content: "serendipity: a happy accident", SourceURL: "https://dict.test/serendipity", Hint: "dictionary"}, nil
}

func TestLookupAllSourcesFailFallsThroughToSearch(t *testing.T) {
	ft, srv := newSearchServer(t)
	keys := testutil.StaticKeys{secrets.SearchAPIKey: "k"}
	fetcher := &failingFetcher{}
	tool := NewLookupTool(fetch.DefaultCatalog(), fetcher, NewSearcher(srv.URL, keys, srv.Client(), 1), quietLogger())

	res, err := tool.Execute(context.Background(), map[string]any{"category": "definition", "query": "serendipity"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if fetcher.calls != 1 {
		t.Fatalf("fetcher calls=%d", fetcher.calls)
	}
	if ft.lastQuery() != "definition serendipity" {
		t.Fatalf("search query=%q", ft.lastQuery())
	}
	if !strings.Contains(res.Text, "[One](https://one.test)") {
		t.Fatalf("text=%q", res.Text)
	}
}

func TestLookupSearchSentinelAndUnknownCategory(t *testing.T) {
	for _, category := range []string{"search", "no_such_category"} {
		ft, srv := newSearchServer(t)
		keys := testutil.StaticKeys{secrets.SearchAPIKey: "k"}
		fetcher := &failingFetcher{}
		tool := NewLookupTool(fetch.DefaultCatalog(), fetcher, NewSearcher(srv.URL, keys, srv.Client(), 1), quietLogger())
		if _, err := tool.Execute(context.Background(), map[string]any{"category": category, "query": "q"}); err != nil {
			t.Fatalf("%s: %v", category, err)
		}
		if fetcher.calls != 0 {
			t.Fatalf("%s: fetcher should not be consulted", category)
		}
		if len(ft.queries) != 1 {
			t.Fatalf("%s: searches=%d", category, len(ft.queries))
		}
	}
}

func TestLookupUsesSources(t *testing.T) {
	fetcher := &okFetcher{}
	tool := NewLookupTool(fetch.DefaultCatalog(), fetcher, NewSearcher("", testutil.StaticKeys{}, nil, 0), quietLogger())
	res, err := tool.Execute(context.Background(), map[string]any{
		"category": "Definition",
		"query":    "serendipity",
		"params":   map[string]any{"lang": "en", "limit": 3.0},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	want := "Source: https://dict.test/serendipity\nNote: dictionary\n\nserendipity: a happy accident"
	if res.Text != want {
		t.Fatalf("text=%q", res.Text)
	}
	if diff := cmp.Diff(map[string]string{"lang": "en", "limit": "3", "query": "serendipity"}, fetcher.params); diff != "" {
		t.Fatalf("params mismatch (-want +got):\n%s", diff)
	}
}

func TestLookupWithoutSearchCredential(t *testing.T) {
	tool := NewLookupTool(fetch.DefaultCatalog(), &failingFetcher{}, NewSearcher("", testutil.StaticKeys{}, nil, 0), quietLogger())
	res, err := tool.Execute(context.Background(), map[string]any{"category": "definition", "query": "x"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(res.Text, "no search API key is configured") {
		t.Fatalf("text=%q", res.Text)
	}
}

const extractionJSON = "```json\n" + `{
  "location": "San Francisco, CA",
  "current": {"temp": 61.6, "feels_like": "cold", "conditions": "Fog", "icon": "50d"},
  "high": 66,
  "utc_offset": -7,
  "hourly": [
    {"label": "1 PM", "temp": 62, "conditions": "Fog", "icon": "50d", "precip": 10},
    {"label": "2 PM", "temp": 63, "conditions": "Clear", "icon": "01d", "precip": 0},
    {"label": "3 PM", "temp": 63, "conditions": "Clear", "icon": "01d"},
    {"label": "4 PM", "temp": 62, "conditions": "Clouds", "icon": "04d"},
    {"label": "5 PM", "temp": 60, "conditions": "Clouds", "icon": "04d"},
    {"label": "6 PM", "temp": 58, "conditions": "Rain", "icon": "10n"},
    {"label": "7 PM", "temp": 57, "conditions": "Rain", "icon": "10n"}
  ]
}` + "\n```"

func TestWeatherDefaultLocationBeforeSearch(t *testing.T) {
	ft, srv := newSearchServer(t)
	keys := testutil.StaticKeys{secrets.SearchAPIKey: "k"}
	completer := &testutil.FakeCompleter{Responses: []llm.Completion{{Text: extractionJSON, Usage: llm.Usage{InputTokens: 300, OutputTokens: 120}}}}
	tool := NewWeatherTool(NewSearcher(srv.URL, keys, srv.Client(), 0), completer, "cheap-model", "", quietLogger())

	res, err := tool.Execute(context.Background(), map[string]any{"location": "Current Location"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(ft.lastQuery(), DefaultLocation) {
		t.Fatalf("search query=%q, want default location", ft.lastQuery())
	}
	if completer.Requests[0].Model != "cheap-model" {
		t.Fatalf("extraction model=%q", completer.Requests[0].Model)
	}
	if res.Payload == nil || res.Payload.Kind != WeatherPayloadKind {
		t.Fatalf("payload=%+v", res.Payload)
	}
	if res.Overhead != (llm.Usage{InputTokens: 300, OutputTokens: 120}) {
		t.Fatalf("overhead=%+v", res.Overhead)
	}

	report := res.Payload.Data.(WeatherReport)
	if report.Current.FeelsLike != 0 || report.Current.Temp != 61.6 || report.Current.Symbol != "cloud.fog.fill" {
		t.Fatalf("current=%+v", report.Current)
	}
	if report.High == nil || *report.High != 66 || report.Low != nil {
		t.Fatalf("high=%v low=%v", report.High, report.Low)
	}
	if len(report.Hourly) != 6 {
		t.Fatalf("hourly=%d, want 6", len(report.Hourly))
	}
	if report.Hourly[5].Symbol != "cloud.moon.rain.fill" || report.Hourly[2].Precip != 0 {
		t.Fatalf("hourly=%+v", report.Hourly)
	}
	if !strings.HasPrefix(res.Text, "Weather for San Francisco, CA: 62°F (feels like 0°F), Fog. High 66°F.") {
		t.Fatalf("text=%q", res.Text)
	}
}

func TestWeatherExtractionFailureReturnsSearchText(t *testing.T) {
	_, srv := newSearchServer(t)
	keys := testutil.StaticKeys{secrets.SearchAPIKey: "k"}

	for name, completer := range map[string]*testutil.FakeCompleter{
		"call error":   {Err: errors.New("overloaded")},
		"not json":     {Responses: []llm.Completion{{Text: "Sorry, I can't.", Usage: llm.Usage{InputTokens: 5, OutputTokens: 5}}}},
		"json array":   {Responses: []llm.Completion{{Text: "[1,2]"}}},
		"truncated js": {Responses: []llm.Completion{{Text: `{"location": "Oslo", "current": {`}}},
	} {
		tool := NewWeatherTool(NewSearcher(srv.URL, keys, srv.Client(), 0), completer, "m", "Oslo", quietLogger())
		res, err := tool.Execute(context.Background(), map[string]any{"location": "Bergen"})
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if res.Payload != nil {
			t.Fatalf("%s: expected plain result", name)
		}
		if !strings.HasPrefix(res.Text, "Summary: It is mild.") {
			t.Fatalf("%s: text=%q", name, res.Text)
		}
	}
}

func TestParseWeatherDefaults(t *testing.T) {
	report, err := ParseWeather(`{"current": {"temp": "warm"}, "hourly": "none", "low": null}`, "Oslo")
	if err != nil {
		t.Fatalf("ParseWeather: %v", err)
	}
	want := WeatherReport{
		Location: "Oslo",
		Current:  Conditions{Symbol: "cloud.fill"},
		Hourly:   []HourlyForecast{},
	}
	if diff := cmp.Diff(want, report); diff != "" {
		t.Fatalf("report mismatch (-want +got):\n%s", diff)
	}
}

func TestParseWeatherFencedReply(t *testing.T) {
	for _, text := range []string{
		"```json {\"location\": \"Lisbon\", \"current\": {\"temp\": 72}}```",
		"```json\n{\"location\": \"Lisbon\", \"current\": {\"temp\": 72}}\n```",
		"```{\"location\": \"Lisbon\", \"current\": {\"temp\": 72}}```",
	} {
		report, err := ParseWeather(text, "Oslo")
		if err != nil {
			t.Fatalf("ParseWeather(%q): %v", text, err)
		}
		if report.Location != "Lisbon" || report.Current.Temp != 72 {
			t.Fatalf("ParseWeather(%q) = %+v", text, report)
		}
	}
}

func TestIconSymbol(t *testing.T) {
	tests := map[string]string{
		"01d": "sun.max.fill",
		"01n": "moon.stars.fill",
		"02d": "cloud.sun.fill",
		"02n": "cloud.moon.fill",
		"03d": "cloud.fill",
		"04n": "cloud.fill",
		"09d": "cloud.drizzle.fill",
		"10d": "cloud.sun.rain.fill",
		"10n": "cloud.moon.rain.fill",
		"11d": "cloud.bolt.rain.fill",
		"13n": "cloud.snow.fill",
		"50d": "cloud.fog.fill",
		"99d": "cloud.fill",
		"":    "cloud.fill",
		"1":   "cloud.fill",
	}
	for code, want := range tests {
		if got := IconSymbol(code); got != want {
			t.Fatalf("IconSymbol(%q)=%q, want %q", code, got, want)
		}
	}
}
