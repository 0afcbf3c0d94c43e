package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/samsaffron/tierchat/internal/llm"
	"github.com/samsaffron/tierchat/internal/markers"
	"github.com/samsaffron/tierchat/internal/tools"
)

// Printer is an llm.Observer that streams reply text to out and writes
// routing and tool status lines to status.
type Printer struct {
	out    io.Writer
	status io.Writer
	styles *Styles
	stats  *SessionStats

	// ShowStatus enables the routing and tool lines.
	ShowStatus bool

	atLineStart bool
	filter      markers.StreamFilter
}

// NewPrinter creates a Printer. stats may be nil.
func NewPrinter(out, status io.Writer, stats *SessionStats) *Printer {
	return &Printer{
		out:         out,
		status:      status,
		styles:      NewStyles(status),
		stats:       stats,
		ShowStatus:  true,
		atLineStart: true,
	}
}

// OnEvent implements llm.Observer.
func (p *Printer) OnEvent(ev llm.Event) {
	switch ev.Type {
	case llm.EventRouted:
		p.statusLine(p.styles.Tier.Render("["+ev.Tier.String()+"]") + " " + p.styles.Muted.Render("routing"))
	case llm.EventTextDelta:
		p.writeText(p.filter.Write(ev.Text))
	case llm.EventToolStart:
		if p.stats != nil {
			p.stats.ToolStart()
		}
		p.statusLine(p.styles.Muted.Render(ToolIcon + " " + ev.ToolInfo + "..."))
	case llm.EventToolEnd:
		if p.stats != nil {
			p.stats.ToolEnd()
		}
	case llm.EventDone:
		p.writeText(p.filter.Flush())
		p.endLine()
		if ev.Message == nil {
			return
		}
		for _, card := range p.cards(ev.Message.Content) {
			fmt.Fprintln(p.out, card)
		}
		if ev.Message.Truncated {
			p.statusLine(p.styles.Warning.Render(WarnIcon + " stopped after the tool iteration limit"))
		}
	}
}

// writeText writes reply text with tip and data markers already removed.
func (p *Printer) writeText(text string) {
	if text == "" {
		return
	}
	io.WriteString(p.out, text)
	p.atLineStart = strings.HasSuffix(text, "\n")
}

func (p *Printer) statusLine(line string) {
	if !p.ShowStatus {
		return
	}
	p.endLine()
	fmt.Fprintln(p.status, line)
}

func (p *Printer) endLine() {
	if !p.atLineStart {
		io.WriteString(p.out, "\n")
		p.atLineStart = true
	}
}

// cards renders the structured payloads carried in content.
func (p *Printer) cards(content string) []string {
	var out []string
	for _, d := range markers.ExtractData(content) {
		switch d.Kind {
		case tools.WeatherPayloadKind:
			var report tools.WeatherReport
			if err := d.Decode(&report); err != nil {
				continue
			}
			out = append(out, RenderWeather(p.styles, report))
		}
	}
	return out
}

// RenderWeather renders a weather report as a bordered card.
func RenderWeather(s *Styles, r tools.WeatherReport) string {
	var b strings.Builder
	b.WriteString(s.Title.Render(r.Location))
	fmt.Fprintf(&b, "\n%.0f°F", r.Current.Temp)
	if r.Current.Conditions != "" {
		fmt.Fprintf(&b, " %s", r.Current.Conditions)
	}
	b.WriteString(s.Muted.Render(fmt.Sprintf(" (feels like %.0f°F)", r.Current.FeelsLike)))
	if r.High != nil || r.Low != nil {
		var parts []string
		if r.High != nil {
			parts = append(parts, fmt.Sprintf("H %.0f°", *r.High))
		}
		if r.Low != nil {
			parts = append(parts, fmt.Sprintf("L %.0f°", *r.Low))
		}
		b.WriteString("\n" + strings.Join(parts, "  "))
	}
	for _, h := range r.Hourly {
		line := fmt.Sprintf("%-6s %3.0f°  %s", h.Label, h.Temp, h.Conditions)
		if h.Precip > 0 {
			line += fmt.Sprintf("  %.0f%%", h.Precip)
		}
		b.WriteString("\n" + s.Muted.Render(line))
	}
	return s.Card.Render(b.String())
}
