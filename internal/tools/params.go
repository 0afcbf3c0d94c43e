package tools

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// decodeInput copies the untyped input map into the typed struct v.
func decodeInput(input map[string]any, v any) error {
	if input == nil {
		input = map[string]any{}
	}
	data, err := json.Marshal(input)
	if err != nil {
		return NewToolErrorf(ErrInvalidParams, "encode input: %v", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return NewToolErrorf(ErrInvalidParams, "decode input: %v", err)
	}
	return nil
}

// WarnUnknownParams returns one warning line per key of input not in
// knownKeys, sorted, or "" if every key is known.
func WarnUnknownParams(input map[string]any, knownKeys []string) string {
	known := make(map[string]bool, len(knownKeys))
	for _, k := range knownKeys {
		known[k] = true
	}
	var unknown []string
	for k := range input {
		if !known[k] {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) == 0 {
		return ""
	}
	sort.Strings(unknown)
	var sb strings.Builder
	for _, k := range unknown {
		sb.WriteString(fmt.Sprintf("Unknown parameter '%s' was ignored\n", k))
	}
	return sb.String()
}

// stringParams flattens a parameter object into strings. Non-string scalars
// are formatted; nested values are JSON-encoded.
func stringParams(raw map[string]any) map[string]string {
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case nil:
			continue
		case string:
			out[k] = val
		case float64, bool, int, int64:
			out[k] = fmt.Sprint(val)
		default:
			data, err := json.Marshal(val)
			if err != nil {
				continue
			}
			out[k] = string(data)
		}
	}
	return out
}

// truncateText cuts s to at most n runes, marking the cut.
func truncateText(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "\n\n[truncated]"
}

// jsonBody strips a markdown code fence and, for multi-line replies, any
// prose outside the outermost braces.
func jsonBody(text string) string {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimLeftFunc(s, unicode.IsLetter) // language tag
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	if strings.Contains(s, "\n") {
		start := strings.Index(s, "{")
		end := strings.LastIndex(s, "}")
		if start >= 0 && end > start {
			s = s[start : end+1]
		}
	}
	return s
}
