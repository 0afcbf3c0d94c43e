// Package markers encodes and extracts the HTML-comment annotations embedded
// in assistant message content: one tip summarizing the turn, and any number
// of structured-data payloads produced by tools.
//
//	<!-- tip: Asked about the weather in Lisbon -->
//	<!-- data:weather {"location":"Lisbon",...} -->
//
// Both render as nothing in markdown, so content carrying them stays displayable.
package markers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	tipRe   = regexp.MustCompile(`(?s)<!--\s*tip:\s*(.*?)\s*-->`)
	dataRe  = regexp.MustCompile(`(?s)<!--\s*data:([A-Za-z0-9_.-]+)\s*(.*?)\s*-->`)
	anyRe   = regexp.MustCompile(`(?s)<!--\s*(?:tip:|data:[A-Za-z0-9_.-]+).*?-->`)
	blankRe = regexp.MustCompile(`\n{3,}`)
	kindRe  = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)
)

// Data is one structured-data marker.
type Data struct {
	Kind string
	JSON json.RawMessage
}

// Decode unmarshals the payload into v.
func (d Data) Decode(v any) error {
	return json.Unmarshal(d.JSON, v)
}

// Tip renders a tip marker. Newlines are flattened and any comment terminator
// inside the summary is defused.
func Tip(summary string) string {
	summary = strings.Join(strings.Fields(summary), " ")
	summary = strings.ReplaceAll(summary, "-->", "->")
	return "<!-- tip: " + summary + " -->"
}

// EncodeData renders a data marker for payload. The JSON encoder escapes '>'
// so the payload can never terminate the comment early.
func EncodeData(kind string, payload any) (string, error) {
	if !kindRe.MatchString(kind) {
		return "", fmt.Errorf("invalid marker kind %q", kind)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(true)
	if err := enc.Encode(payload); err != nil {
		return "", fmt.Errorf("encode %s payload: %w", kind, err)
	}
	return "<!-- data:" + kind + " " + strings.TrimSpace(buf.String()) + " -->", nil
}

// ExtractTip returns the last tip in text and text with every tip marker removed.
func ExtractTip(text string) (tip, rest string) {
	matches := tipRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return "", text
	}
	tip = matches[len(matches)-1][1]
	rest = tipRe.ReplaceAllString(text, "")
	rest = blankRe.ReplaceAllString(rest, "\n\n")
	return tip, strings.TrimRight(rest, " \t\r\n")
}

// ExtractData returns every data marker in text, in order. Markers whose
// payload is not valid JSON are skipped.
func ExtractData(text string) []Data {
	var out []Data
	for _, m := range dataRe.FindAllStringSubmatch(text, -1) {
		raw := strings.TrimSpace(m[2])
		if !json.Valid([]byte(raw)) {
			continue
		}
		out = append(out, Data{Kind: m[1], JSON: json.RawMessage(raw)})
	}
	return out
}

// StripAll removes every tip and data marker from text.
func StripAll(text string) string {
	if !strings.Contains(text, "<!--") {
		return text
	}
	out := anyRe.ReplaceAllString(text, "")
	out = blankRe.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}

const commentOpen, commentClose = "<!--", "-->"

// StreamFilter removes markers from text that arrives in pieces. Text that
// could be the start of a marker is held until its comment closes, so a
// marker split across writes never leaks. The zero value is ready to use.
type StreamFilter struct {
	held string
}

// Write accepts the next piece of text and returns the part that is safe to
// show.
func (f *StreamFilter) Write(s string) string {
	buf := f.held + s
	f.held = ""

	var out strings.Builder
	for {
		start := strings.Index(buf, commentOpen)
		if start < 0 {
			break
		}
		end := strings.Index(buf[start+len(commentOpen):], commentClose)
		if end < 0 {
			out.WriteString(buf[:start])
			f.held = buf[start:]
			return out.String()
		}
		end += start + len(commentOpen) + len(commentClose)
		out.WriteString(buf[:start])
		if comment := buf[start:end]; !anyRe.MatchString(comment) {
			out.WriteString(comment)
		}
		buf = buf[end:]
	}

	keep := partialOpen(buf)
	out.WriteString(buf[:len(buf)-keep])
	f.held = buf[len(buf)-keep:]
	return out.String()
}

// Flush returns any held text, such as a comment that never closed, and
// resets the filter.
func (f *StreamFilter) Flush() string {
	held := f.held
	f.held = ""
	return held
}

// partialOpen reports how many trailing bytes of s could begin "<!--".
func partialOpen(s string) int {
	for n := len(commentOpen) - 1; n > 0; n-- {
		if strings.HasSuffix(s, commentOpen[:n]) {
			return n
		}
	}
	return 0
}
