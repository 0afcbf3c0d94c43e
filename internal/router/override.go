package router

import (
	"strings"

	"github.com/samsaffron/tierchat/internal/llm"
)

var overrideCommands = map[string]llm.Tier{
	"cheap":   llm.TierCheap,
	"haiku":   llm.TierCheap,
	"mid":     llm.TierMid,
	"sonnet":  llm.TierMid,
	"premium": llm.TierPremium,
	"opus":    llm.TierPremium,
}

// ParseOverride recognizes a leading model command such as "/opus explain this".
// It returns the tier and the message with the command removed.
func ParseOverride(text string) (llm.Tier, string, bool) {
	trimmed := strings.TrimLeft(text, " \t")
	if !strings.HasPrefix(trimmed, "/") {
		return 0, text, false
	}
	word := trimmed[1:]
	rest := ""
	if i := strings.IndexAny(word, " \t\r\n"); i >= 0 {
		word, rest = word[:i], word[i:]
	}
	tier, ok := overrideCommands[strings.ToLower(word)]
	if !ok {
		return 0, text, false
	}
	return tier, strings.TrimSpace(rest), true
}
