package ui

import (
	"fmt"
	"time"

	"github.com/samsaffron/tierchat/internal/llm"
)

// SessionStats accumulates usage and timing across the turns of one CLI run.
type SessionStats struct {
	StartTime     time.Time
	InputTokens   int
	OutputTokens  int
	RouterTokens  int
	ToolCallCount int
	TurnCount     int
	Truncated     int

	// Time tracking
	LLMTime       time.Duration
	ToolTime      time.Duration
	lastEventTime time.Time
	inTool        bool
}

// NewSessionStats creates a new SessionStats with StartTime set to now.
func NewSessionStats() *SessionStats {
	now := time.Now()
	return &SessionStats{
		StartTime:     now,
		lastEventTime: now,
	}
}

// AddTurn folds a completed turn into the totals.
func (s *SessionStats) AddTurn(msg *llm.AssembledMessage) {
	s.TurnCount++
	if msg == nil {
		return
	}
	s.InputTokens += msg.Usage.InputTokens
	s.OutputTokens += msg.Usage.OutputTokens
	s.RouterTokens += msg.RouterUsage.Total()
	if msg.Truncated {
		s.Truncated++
	}
}

// ToolStart marks the start of a tool execution.
func (s *SessionStats) ToolStart() {
	now := time.Now()
	if !s.inTool {
		s.LLMTime += now.Sub(s.lastEventTime)
	}
	s.lastEventTime = now
	s.inTool = true
	s.ToolCallCount++
}

// ToolEnd marks the end of tool execution (back to LLM).
func (s *SessionStats) ToolEnd() {
	now := time.Now()
	if s.inTool {
		s.ToolTime += now.Sub(s.lastEventTime)
	}
	s.lastEventTime = now
	s.inTool = false
}

// Finalize records any remaining time.
func (s *SessionStats) Finalize() {
	now := time.Now()
	if s.inTool {
		s.ToolTime += now.Sub(s.lastEventTime)
	} else {
		s.LLMTime += now.Sub(s.lastEventTime)
	}
	s.lastEventTime = now
	s.inTool = false
}

// Render returns the stats as a compact single-line string.
func (s SessionStats) Render() string {
	total := time.Since(s.StartTime)

	tokensStr := fmt.Sprintf("%s in / %s out", FormatCount(s.InputTokens), FormatCount(s.OutputTokens))
	if s.RouterTokens > 0 {
		tokensStr += fmt.Sprintf(" (+%s routing)", FormatCount(s.RouterTokens))
	}

	var timeStr string
	if s.ToolCallCount > 0 {
		timeStr = fmt.Sprintf("%.1fs (llm %.1fs + tool %.1fs)",
			total.Seconds(), s.LLMTime.Seconds(), s.ToolTime.Seconds())
	} else {
		timeStr = fmt.Sprintf("%.1fs", total.Seconds())
	}

	if s.TurnCount > 1 {
		// Stats: 34.5s | 3 turns | 1.2k in / 4.5k out | 5 tools
		return fmt.Sprintf("Stats: %s | %d turns | %s | %d tools",
			timeStr, s.TurnCount, tokensStr, s.ToolCallCount)
	}

	return fmt.Sprintf("Stats: %s | %s | %d tools",
		timeStr, tokensStr, s.ToolCallCount)
}

// FormatCount formats a number in compact form (e.g., 1k, 1.2k, 3.4M)
func FormatCount(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		val := float64(n) / 1000
		if val == float64(int(val)) {
			return fmt.Sprintf("%dk", int(val))
		}
		return fmt.Sprintf("%.1fk", val)
	}
	val := float64(n) / 1000000
	if val == float64(int(val)) {
		return fmt.Sprintf("%dM", int(val))
	}
	return fmt.Sprintf("%.1fM", val)
}

// FormatTokens formats input/output tokens as "in/out", or "-" when both are zero.
func FormatTokens(input, output int) string {
	if input == 0 && output == 0 {
		return "-"
	}
	return fmt.Sprintf("%s/%s", FormatCount(input), FormatCount(output))
}

// FormatRelativeTime renders t relative to now ("5m ago", "Jan 2").
func FormatRelativeTime(t time.Time) string {
	dur := time.Since(t)
	switch {
	case dur < time.Minute:
		return "just now"
	case dur < time.Hour:
		return fmt.Sprintf("%dm ago", int(dur.Minutes()))
	case dur < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(dur.Hours()))
	case dur < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(dur.Hours()/24))
	default:
		return t.Format("Jan 2")
	}
}
