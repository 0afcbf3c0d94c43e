package session

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samsaffron/tierchat/internal/llm"
)

// DefaultGrade is the relevance grade given to new messages.
const DefaultGrade = 1

// Session is a stored conversation.
type Session struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	Summary   string    `json:"summary,omitempty"` // first user message
	Threshold int       `json:"threshold"`         // messages graded below this are not sent to the model
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is one persisted conversation message.
type Message struct {
	ID           int64     `json:"id"`
	SessionID    string    `json:"session_id"`
	TurnID       string    `json:"turn_id"`
	Role         llm.Role  `json:"role"`
	Content      string    `json:"content"`
	Tip          string    `json:"tip,omitempty"`
	Grade        int       `json:"grade"`
	IsFinal      bool      `json:"is_final"`
	Tier         string    `json:"tier,omitempty"`
	InputTokens  int       `json:"input_tokens,omitempty"`
	OutputTokens int       `json:"output_tokens,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	Sequence     int       `json:"sequence"`
}

// SessionSummary is a lightweight view of a session for listing.
type SessionSummary struct {
	ID           string    `json:"id"`
	Name         string    `json:"name,omitempty"`
	Summary      string    `json:"summary,omitempty"`
	Threshold    int       `json:"threshold"`
	MessageCount int       `json:"message_count"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ListOptions configures session listing.
type ListOptions struct {
	Limit  int // 0 means the default of 50
	Offset int
}

// NewID returns a fresh session id.
func NewID() string {
	return uuid.NewString()
}

// UserMessage builds the stored form of a user turn.
func UserMessage(turnID, text string) *Message {
	return &Message{
		TurnID:  turnID,
		Role:    llm.RoleUser,
		Content: text,
		Grade:   DefaultGrade,
		IsFinal: true,
	}
}

// AssistantMessage builds the stored form of an assembled turn.
func AssistantMessage(m *llm.AssembledMessage) *Message {
	return &Message{
		TurnID:       m.TurnID,
		Role:         llm.RoleAssistant,
		Content:      m.Content,
		Tip:          m.Tip,
		Grade:        DefaultGrade,
		IsFinal:      m.Final,
		Tier:         m.Tier.String(),
		InputTokens:  m.Usage.InputTokens,
		OutputTokens: m.Usage.OutputTokens,
	}
}

// History converts stored messages into engine history. Non-final messages are skipped.
func History(messages []Message) []llm.HistoryEntry {
	out := make([]llm.HistoryEntry, 0, len(messages))
	for _, m := range messages {
		if !m.IsFinal {
			continue
		}
		msg := llm.UserText(m.Content)
		if m.Role == llm.RoleAssistant {
			msg = llm.AssistantText(m.Content)
		}
		out = append(out, llm.HistoryEntry{Message: msg, Grade: m.Grade})
	}
	return out
}

// Tips returns the tips of the most recent max assistant messages, oldest first.
func Tips(messages []Message, max int) []string {
	if max <= 0 {
		return nil
	}
	var tips []string
	for i := len(messages) - 1; i >= 0 && len(tips) < max; i-- {
		m := messages[i]
		if m.Role != llm.RoleAssistant || strings.TrimSpace(m.Tip) == "" {
			continue
		}
		tips = append(tips, m.Tip)
	}
	for i, j := 0, len(tips)-1; i < j; i, j = i+1, j-1 {
		tips[i], tips[j] = tips[j], tips[i]
	}
	return tips
}

// TruncateSummary returns the first line of content, truncated to 100 chars.
func TruncateSummary(content string) string {
	content = strings.TrimSpace(content)
	if idx := strings.Index(content, "\n"); idx != -1 {
		content = content[:idx]
	}
	if runes := []rune(content); len(runes) > 100 {
		content = string(runes[:97]) + "..."
	}
	return content
}
