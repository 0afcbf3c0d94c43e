package prompt

import (
	"fmt"
	"strings"
)

// ChatSystemPrompt returns the system prompt for the main conversation.
// instructions, when non-empty, is appended as user-configured guidance.
func ChatSystemPrompt(instructions string) string {
	base := `You are a helpful, concise assistant in an ongoing conversation.

Rules:
1. Answer directly; use markdown when it helps readability
2. Use the available tools when the question needs current or external information
3. Never invent tool results; if a tool could not help, say so briefly
4. Structured tool data is shown to the user separately, so summarize it rather than repeating every field
5. End every reply with a one-line summary of this exchange in the form <!-- tip: summary -->`

	if strings.TrimSpace(instructions) != "" {
		base += fmt.Sprintf(`

User instructions:
%s`, strings.TrimSpace(instructions))
	}
	return base
}
