package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/samsaffron/tierchat/internal/llm"
	"github.com/samsaffron/tierchat/internal/prompt"
	"github.com/samsaffron/tierchat/internal/secrets"
	"github.com/tidwall/gjson"
)

const (
	// DefaultLocation is used when the model asks for weather "here".
	DefaultLocation = "San Francisco, CA"

	// WeatherPayloadKind tags weather data markers.
	WeatherPayloadKind = "weather"

	maxHourly = 6
)

var placeholderLocations = map[string]bool{
	"":                 true,
	"here":             true,
	"current":          true,
	"current location": true,
	"my location":      true,
	"local":            true,
	"unknown":          true,
	"auto":             true,
}

// WeatherReport is the structured payload for the UI.
type WeatherReport struct {
	Location  string           `json:"location"`
	Current   Conditions       `json:"current"`
	High      *float64         `json:"high,omitempty"`
	Low       *float64         `json:"low,omitempty"`
	UTCOffset float64          `json:"utc_offset"`
	Hourly    []HourlyForecast `json:"hourly"`
}

// Conditions are the current conditions.
type Conditions struct {
	Temp       float64 `json:"temp"`
	FeelsLike  float64 `json:"feels_like"`
	Conditions string  `json:"conditions"`
	Icon       string  `json:"icon"`
	Symbol     string  `json:"symbol"`
}

// HourlyForecast is one hour of the short-range forecast.
type HourlyForecast struct {
	Label      string  `json:"label"`
	Temp       float64 `json:"temp"`
	Conditions string  `json:"conditions"`
	Icon       string  `json:"icon"`
	Symbol     string  `json:"symbol"`
	Precip     float64 `json:"precip"`
}

// Summary renders the report as text for the model.
func (w WeatherReport) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Weather for %s: %s°F (feels like %s°F)", w.Location, formatTemp(w.Current.Temp), formatTemp(w.Current.FeelsLike))
	if w.Current.Conditions != "" {
		fmt.Fprintf(&b, ", %s", w.Current.Conditions)
	}
	b.WriteString(".")
	if w.High != nil && w.Low != nil {
		fmt.Fprintf(&b, " High %s°F, low %s°F.", formatTemp(*w.High), formatTemp(*w.Low))
	} else if w.High != nil {
		fmt.Fprintf(&b, " High %s°F.", formatTemp(*w.High))
	} else if w.Low != nil {
		fmt.Fprintf(&b, " Low %s°F.", formatTemp(*w.Low))
	}
	if len(w.Hourly) > 0 {
		b.WriteString("\nHourly:")
		for _, h := range w.Hourly {
			fmt.Fprintf(&b, "\n- %s: %s°F, %s (%s%% precip)", h.Label, formatTemp(h.Temp), h.Conditions, formatTemp(h.Precip))
		}
	}
	return b.String()
}

func formatTemp(v float64) string {
	return fmt.Sprintf("%.0f", v)
}

// WeatherTool searches for conditions and extracts them with a cheap-tier call.
type WeatherTool struct {
	searcher        *Searcher
	completer       llm.Completer
	model           string
	defaultLocation string
	logger          *slog.Logger
}

// NewWeatherTool creates the tool. model is the cheap-tier model used for extraction.
func NewWeatherTool(searcher *Searcher, completer llm.Completer, model, defaultLocation string, logger *slog.Logger) *WeatherTool {
	if defaultLocation == "" {
		defaultLocation = DefaultLocation
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WeatherTool{
		searcher:        searcher,
		completer:       completer,
		model:           model,
		defaultLocation: defaultLocation,
		logger:          logger,
	}
}

func (t *WeatherTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        WeatherToolName,
		Description: "Get current weather conditions and the next few hours of forecast for a location.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"location": map[string]interface{}{
					"type":        "string",
					"description": "City and region, e.g. \"Lisbon, Portugal\". Leave empty for the user's default location.",
				},
			},
		},
	}
}

func (t *WeatherTool) Requires() []string {
	return []string{secrets.SearchAPIKey}
}

func (t *WeatherTool) Label(input map[string]any) string {
	loc, _ := input["location"].(string)
	return "Checking the weather in " + t.resolveLocation(loc)
}

func (t *WeatherTool) resolveLocation(loc string) string {
	if placeholderLocations[strings.ToLower(strings.TrimSpace(loc))] {
		return t.defaultLocation
	}
	return strings.TrimSpace(loc)
}

func (t *WeatherTool) Execute(ctx context.Context, input map[string]any) (llm.ToolResult, error) {
	var args struct {
		Location string `json:"location"`
	}
	if err := decodeInput(input, &args); err != nil {
		return llm.ToolResult{}, err
	}
	location := t.resolveLocation(args.Location)

	resp, err := t.searcher.Search(ctx, prompt.WeatherSearchQuery(location))
	if err != nil {
		return llm.ToolResult{}, err
	}
	raw := resp.Text()
	if raw == "" {
		return llm.PlainResult(fmt.Sprintf("No weather information found for %s.", location)), nil
	}
	if t.completer == nil {
		return llm.PlainResult(raw), nil
	}

	comp, err := t.completer.Complete(ctx, llm.CompletionRequest{
		Model:     t.model,
		System:    prompt.WeatherExtractionSystemPrompt,
		Prompt:    prompt.WeatherExtractionPrompt(location, raw),
		MaxTokens: 1024,
	})
	if err != nil {
		t.logger.Warn("weather extraction failed", "location", location, "error", err)
		return llm.PlainResult(raw), nil
	}

	report, err := ParseWeather(comp.Text, location)
	if err != nil {
		t.logger.Warn("weather extraction unparseable", "location", location, "error", err)
		return llm.ToolResult{Text: raw, Overhead: comp.Usage}, nil
	}
	return llm.RichResult(report.Summary(), WeatherPayloadKind, report, comp.Usage), nil
}

var errNotObject = errors.New("extraction is not a JSON object")

// ParseWeather reads the extraction reply. Missing or wrong-typed numbers
// become zero; missing high/low stay absent.
func ParseWeather(text, fallbackLocation string) (WeatherReport, error) {
	body := jsonBody(text)
	if !gjson.Valid(body) {
		return WeatherReport{}, errNotObject
	}
	root := gjson.Parse(body)
	if !root.IsObject() {
		return WeatherReport{}, errNotObject
	}

	report := WeatherReport{
		Location:  stringField(root.Get("location"), fallbackLocation),
		UTCOffset: number(root.Get("utc_offset")),
		High:      optionalNumber(root.Get("high")),
		Low:       optionalNumber(root.Get("low")),
		Hourly:    []HourlyForecast{},
	}

	cur := root.Get("current")
	report.Current = Conditions{
		Temp:       number(cur.Get("temp")),
		FeelsLike:  number(cur.Get("feels_like")),
		Conditions: stringField(cur.Get("conditions"), ""),
		Icon:       stringField(cur.Get("icon"), ""),
	}
	report.Current.Symbol = IconSymbol(report.Current.Icon)

	root.Get("hourly").ForEach(func(_, h gjson.Result) bool {
		if !h.IsObject() {
			return true
		}
		entry := HourlyForecast{
			Label:      stringField(h.Get("label"), ""),
			Temp:       number(h.Get("temp")),
			Conditions: stringField(h.Get("conditions"), ""),
			Icon:       stringField(h.Get("icon"), ""),
			Precip:     number(h.Get("precip")),
		}
		entry.Symbol = IconSymbol(entry.Icon)
		report.Hourly = append(report.Hourly, entry)
		return len(report.Hourly) < maxHourly
	})
	return report, nil
}

func number(r gjson.Result) float64 {
	if r.Type == gjson.Number {
		return r.Float()
	}
	return 0
}

func optionalNumber(r gjson.Result) *float64 {
	if r.Type != gjson.Number {
		return nil
	}
	v := r.Float()
	return &v
}

func stringField(r gjson.Result, fallback string) string {
	if r.Type == gjson.String {
		if s := strings.TrimSpace(r.String()); s != "" {
			return s
		}
	}
	return fallback
}
