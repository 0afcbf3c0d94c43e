package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/samsaffron/tierchat/internal/llm"
)

// DefaultTimezone is used when no timezone is configured.
const DefaultTimezone = "America/New_York"

const clockLayout = "Monday, January 2, 2006 at 3:04 PM MST"

// ClockTool reports the current time in a fixed timezone.
type ClockTool struct {
	loc *time.Location
	now func() time.Time
}

// NewClockTool returns a clock for the IANA timezone tz.
func NewClockTool(tz string) (*ClockTool, error) {
	if tz == "" {
		tz = DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", tz, err)
	}
	return &ClockTool{loc: loc, now: time.Now}, nil
}

func (t *ClockTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        ClockToolName,
		Description: "Get the current date and time. Use this whenever the answer depends on today's date or the current time.",
		Schema: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{},
		},
	}
}

func (t *ClockTool) Label(map[string]any) string {
	return "Checking the time"
}

func (t *ClockTool) Execute(ctx context.Context, input map[string]any) (llm.ToolResult, error) {
	return llm.PlainResult("Current date and time: " + t.now().In(t.loc).Format(clockLayout)), nil
}
