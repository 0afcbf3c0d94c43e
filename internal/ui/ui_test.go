package ui

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/samsaffron/tierchat/internal/llm"
	"github.com/samsaffron/tierchat/internal/markers"
	"github.com/samsaffron/tierchat/internal/tools"
)

func TestPrinterStreamsTextAndStatus(t *testing.T) {
	var out, status bytes.Buffer
	stats := NewSessionStats()
	p := NewPrinter(&out, &status, stats)

	p.OnEvent(llm.Event{Type: llm.EventRouted, Tier: llm.TierMid})
	p.OnEvent(llm.Event{Type: llm.EventTextDelta, Text: "Let me check."})
	p.OnEvent(llm.Event{Type: llm.EventToolStart, ToolName: "get_weather", ToolInfo: "Checking the weather in Lisbon"})
	p.OnEvent(llm.Event{Type: llm.EventToolEnd, ToolName: "get_weather"})
	p.OnEvent(llm.Event{Type: llm.EventTextDelta, Text: "\n\nSunny."})
	p.OnEvent(llm.Event{Type: llm.EventDone, Message: &llm.AssembledMessage{Content: "Sunny."}})

	if got, want := out.String(), "Let me check.\n\n\nSunny.\n"; got != want {
		t.Fatalf("out=%q, want %q", got, want)
	}
	if !strings.Contains(status.String(), "[mid]") {
		t.Fatalf("status missing tier: %q", status.String())
	}
	if !strings.Contains(status.String(), "Checking the weather in Lisbon...") {
		t.Fatalf("status missing tool label: %q", status.String())
	}
	if stats.ToolCallCount != 1 {
		t.Fatalf("tool calls=%d, want 1", stats.ToolCallCount)
	}
}

func TestPrinterQuietStatus(t *testing.T) {
	var out, status bytes.Buffer
	p := NewPrinter(&out, &status, nil)
	p.ShowStatus = false

	p.OnEvent(llm.Event{Type: llm.EventRouted, Tier: llm.TierCheap})
	p.OnEvent(llm.Event{Type: llm.EventToolStart, ToolInfo: "Searching"})
	p.OnEvent(llm.Event{Type: llm.EventTextDelta, Text: "hi"})
	p.OnEvent(llm.Event{Type: llm.EventDone, Message: &llm.AssembledMessage{Content: "hi", Truncated: true}})

	if status.Len() != 0 {
		t.Fatalf("status=%q, want empty", status.String())
	}
	if out.String() != "hi\n" {
		t.Fatalf("out=%q", out.String())
	}
}

func TestPrinterHidesSplitTipMarker(t *testing.T) {
	var out, status bytes.Buffer
	p := NewPrinter(&out, &status, nil)

	for _, delta := range []string{"Hello! How can I help?", "\n<!-", "- tip: user ", "greeted -->"} {
		p.OnEvent(llm.Event{Type: llm.EventTextDelta, Text: delta})
	}
	p.OnEvent(llm.Event{Type: llm.EventDone, Message: &llm.AssembledMessage{Content: "Hello! How can I help?", Tip: "user greeted"}})

	if got, want := out.String(), "Hello! How can I help?\n"; got != want {
		t.Fatalf("out=%q, want %q", got, want)
	}
}

func TestPrinterRendersWeatherCard(t *testing.T) {
	high := 75.0
	marker, err := markers.EncodeData(tools.WeatherPayloadKind, tools.WeatherReport{
		Location: "Lisbon",
		Current:  tools.Conditions{Temp: 72, FeelsLike: 70, Conditions: "Sunny"},
		High:     &high,
		Hourly:   []tools.HourlyForecast{{Label: "3pm", Temp: 71, Conditions: "Clear", Precip: 10}},
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	var out, status bytes.Buffer
	p := NewPrinter(&out, &status, nil)
	p.OnEvent(llm.Event{Type: llm.EventDone, Message: &llm.AssembledMessage{Content: marker + "\nIt is sunny."}})

	for _, want := range []string{"Lisbon", "72°F Sunny", "H 75°", "3pm", "10%"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("card missing %q:\n%s", want, out.String())
		}
	}
}

func TestSessionStatsRender(t *testing.T) {
	stats := NewSessionStats()
	stats.AddTurn(&llm.AssembledMessage{
		Usage:       llm.Usage{InputTokens: 1200, OutputTokens: 300},
		RouterUsage: llm.Usage{InputTokens: 80, OutputTokens: 20},
	})
	stats.Finalize()

	got := stats.Render()
	if !strings.Contains(got, "1.2k in / 300 out (+100 routing)") {
		t.Fatalf("render=%q", got)
	}
	if strings.Contains(got, "turns") {
		t.Fatalf("single turn should not show turn count: %q", got)
	}

	stats.AddTurn(&llm.AssembledMessage{Truncated: true})
	if !strings.Contains(stats.Render(), "2 turns") || stats.Truncated != 1 {
		t.Fatalf("render=%q truncated=%d", stats.Render(), stats.Truncated)
	}
}

func TestFormatHelpers(t *testing.T) {
	tests := []struct {
		n    int
		want string
	}{
		{999, "999"},
		{1000, "1k"},
		{1500, "1.5k"},
		{2000000, "2M"},
		{3400000, "3.4M"},
	}
	for _, tt := range tests {
		if got := FormatCount(tt.n); got != tt.want {
			t.Fatalf("FormatCount(%d)=%q, want %q", tt.n, got, tt.want)
		}
	}
	if got := FormatTokens(0, 0); got != "-" {
		t.Fatalf("FormatTokens(0,0)=%q", got)
	}
	if got := FormatRelativeTime(time.Now().Add(-2 * time.Hour)); got != "2h ago" {
		t.Fatalf("FormatRelativeTime=%q", got)
	}
	if got := Truncate("héllo world", 8); got != "héllo..." {
		t.Fatalf("Truncate=%q", got)
	}
}
