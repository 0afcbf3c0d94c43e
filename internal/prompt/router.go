package prompt

import (
	"fmt"
	"strings"
)

// TierOption is one tier the classifier may answer with.
type TierOption struct {
	Name        string
	Description string
}

// RouterSystemPrompt returns the classification instruction for the given tiers.
func RouterSystemPrompt(options []TierOption) string {
	var b strings.Builder
	b.WriteString("You route chat messages to a model tier. Classify the current message into exactly one tier:\n\n")
	names := make([]string, 0, len(options))
	for _, opt := range options {
		fmt.Fprintf(&b, "- %s: %s\n", opt.Name, opt.Description)
		names = append(names, fmt.Sprintf("%q", opt.Name))
	}
	fmt.Fprintf(&b, `
Respond with ONLY a JSON object, no prose and no code fences:
{"tier": %s, "confidence": <number between 0.0 and 1.0>}

confidence is how sure you are that the chosen tier is sufficient.`, strings.Join(names, " | "))
	return b.String()
}

// RouterUserPrompt formats the message to classify, prefixed by the
// conversation arc when earlier turns left tips.
func RouterUserPrompt(message string, tips []string) string {
	var b strings.Builder
	if len(tips) > 0 {
		b.WriteString("## Conversation arc\n")
		for i, tip := range tips {
			fmt.Fprintf(&b, "%d. %s\n", i+1, tip)
		}
		b.WriteString("\n")
	}
	b.WriteString("## Current message\n")
	b.WriteString(message)
	return b.String()
}
