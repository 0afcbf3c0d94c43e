package llm

import (
	"strings"
)

// Tier is a model capability/cost tier. Tiers are ordered: cheap < mid < premium.
type Tier int

const (
	TierCheap Tier = iota
	TierMid
	TierPremium
)

// AllTiers lists every tier in ascending order.
var AllTiers = []Tier{TierCheap, TierMid, TierPremium}

func (t Tier) String() string {
	switch t {
	case TierCheap:
		return "cheap"
	case TierMid:
		return "mid"
	case TierPremium:
		return "premium"
	}
	return "unknown"
}

// ParseTier maps a tier name (or its model-family alias) to a Tier.
// Matching is case-insensitive and ignores surrounding whitespace.
func ParseTier(s string) (Tier, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cheap", "haiku", "fast", "low":
		return TierCheap, true
	case "mid", "sonnet", "medium", "standard":
		return TierMid, true
	case "premium", "opus", "high":
		return TierPremium, true
	}
	return TierCheap, false
}

// Role identifies a message role.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// PartType identifies a message content part.
type PartType string

const (
	PartText       PartType = "text"
	PartImage      PartType = "image"
	PartToolUse    PartType = "tool_use"
	PartToolResult PartType = "tool_result"
)

// Message holds a role with structured parts.
type Message struct {
	Role  Role
	Parts []Part
}

// Part represents a single content part.
type Part struct {
	Type      PartType
	Text      string    // PartText, or the result text of PartToolResult
	Image     *Image    // PartImage
	ToolCall  *ToolCall // PartToolUse
	ToolUseID string    // PartToolResult: id of the tool_use it answers
}

// Image is an already-encoded image attachment.
type Image struct {
	MediaType string // e.g. image/jpeg
	Data      string // base64
}

// ToolSpec describes a callable tool.
type ToolSpec struct {
	Name        string
	Description string
	Schema      map[string]interface{}
}

// ToolCall is a model-requested tool invocation.
type ToolCall struct {
	ID    string
	Name  string
	Input map[string]any
}

// StopReason is why the model stopped generating.
type StopReason string

const (
	StopEndTurn   StopReason = "end_turn"
	StopToolUse   StopReason = "tool_use"
	StopMaxTokens StopReason = "max_tokens"
)

// Usage captures token usage.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Add returns the element-wise sum of u and o.
func (u Usage) Add(o Usage) Usage {
	return Usage{
		InputTokens:  u.InputTokens + o.InputTokens,
		OutputTokens: u.OutputTokens + o.OutputTokens,
	}
}

// Total is input plus output tokens.
func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// StreamResult is the outcome of one streaming exchange.
type StreamResult struct {
	Text       string
	ToolCalls  []ToolCall
	StopReason StopReason
	Usage      Usage
}

// Payload is structured tool output intended for the UI.
type Payload struct {
	Kind string
	Data any
}

// ToolResult is the output from dispatching a tool call. Text always goes to
// the model; Payload only reaches the UI, through a data marker.
type ToolResult struct {
	Text     string
	Payload  *Payload
	Overhead Usage // tokens spent by sub-calls made while executing the tool
}

// PlainResult returns a text-only tool result.
func PlainResult(text string) ToolResult {
	return ToolResult{Text: text}
}

// RichResult returns a tool result carrying a structured payload.
func RichResult(text, kind string, data any, overhead Usage) ToolResult {
	return ToolResult{
		Text:     text,
		Payload:  &Payload{Kind: kind, Data: data},
		Overhead: overhead,
	}
}

// RouteDecision is the router's answer for one user message.
type RouteDecision struct {
	Tier       Tier
	Confidence float64
	Usage      Usage
	Fallback   bool // true when classification failed and the default pair was used
}

// Turn is the user input that starts one orchestrated turn.
type Turn struct {
	ID    string
	Text  string
	Media []Image
	// Iteration counts the streaming exchanges made for the turn so far.
	// The engine advances it; callers leave it zero.
	Iteration int
}

// AssembledMessage is the single result of a completed turn.
type AssembledMessage struct {
	TurnID      string
	Role        Role
	Content     string // data markers, newline-joined, then the tip-stripped text
	Tip         string
	Tier        Tier
	Usage       Usage // every streaming exchange plus tool overhead
	RouterUsage Usage // classification call, reported separately
	Iterations  int
	ToolCalls   int
	Truncated   bool // the iteration cap ended the turn while tools were still requested
	Final       bool
}

// EventType describes observer events.
type EventType string

const (
	EventRouted    EventType = "routed"
	EventIteration EventType = "iteration"
	EventTextDelta EventType = "text_delta"
	EventToolStart EventType = "tool_start"
	EventToolEnd   EventType = "tool_end"
	EventDone      EventType = "done"
)

// Event is a progress update delivered to an Observer.
type Event struct {
	Type       EventType
	Text       string
	Tier       Tier
	Iteration  int
	ToolCallID string
	ToolName   string
	ToolInfo   string // human-readable "tool running" label
	Message    *AssembledMessage
}

// Observer receives progress events. The engine never calls it concurrently.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnEvent(ev Event) {
	if f != nil {
		f(ev)
	}
}

// UserText builds a user message with a single text part.
func UserText(text string) Message {
	return Message{Role: RoleUser, Parts: []Part{{Type: PartText, Text: text}}}
}

// AssistantText builds an assistant message with a single text part.
func AssistantText(text string) Message {
	return Message{Role: RoleAssistant, Parts: []Part{{Type: PartText, Text: text}}}
}

// UserTurnMessage builds the user message for a turn, images first.
func UserTurnMessage(turn Turn) Message {
	msg := Message{Role: RoleUser}
	for i := range turn.Media {
		img := turn.Media[i]
		msg.Parts = append(msg.Parts, Part{Type: PartImage, Image: &img})
	}
	if turn.Text != "" || len(msg.Parts) == 0 {
		msg.Parts = append(msg.Parts, Part{Type: PartText, Text: turn.Text})
	}
	return msg
}
