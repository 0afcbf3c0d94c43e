// Package conversation runs user turns against a stored session.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/samsaffron/tierchat/internal/llm"
	"github.com/samsaffron/tierchat/internal/router"
	"github.com/samsaffron/tierchat/internal/session"
)

// DefaultMaxTips is how many earlier turn summaries are given to the router.
const DefaultMaxTips = 5

var (
	// ErrTurnInProgress is returned when Send is called while a turn is still running.
	ErrTurnInProgress = errors.New("a turn is already in progress")
	// ErrEmptyMessage is returned for a turn with neither text nor media.
	ErrEmptyMessage = errors.New("message is empty")
)

// Runner executes one orchestrated turn.
type Runner interface {
	Run(ctx context.Context, in llm.TurnInput, obs llm.Observer) (*llm.AssembledMessage, error)
}

// Options configures a Conversation.
type Options struct {
	System  string
	MaxTips int
	// Tier forces a tier for every turn unless the message carries its own
	// override command.
	Tier   *llm.Tier
	Logger *slog.Logger
}

// Conversation binds a session to an engine. Only one turn runs at a time.
type Conversation struct {
	sessionID string
	store     session.Store
	runner    Runner
	opts      Options
	logger    *slog.Logger

	mu sync.Mutex
}

// New creates a Conversation for sessionID.
func New(sessionID string, store session.Store, runner Runner, opts Options) *Conversation {
	if opts.MaxTips <= 0 {
		opts.MaxTips = DefaultMaxTips
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Conversation{
		sessionID: sessionID,
		store:     store,
		runner:    runner,
		opts:      opts,
		logger:    logger.With("session", sessionID),
	}
}

// SessionID returns the bound session id.
func (c *Conversation) SessionID() string {
	return c.sessionID
}

// Send runs one turn. The user message and the assembled reply are persisted
// only when the turn completes; a failed or cancelled turn leaves the session
// untouched.
func (c *Conversation) Send(ctx context.Context, text string, media []llm.Image, obs llm.Observer) (*llm.AssembledMessage, error) {
	if !c.mu.TryLock() {
		return nil, ErrTurnInProgress
	}
	defer c.mu.Unlock()

	override := c.opts.Tier
	if tier, rest, ok := router.ParseOverride(text); ok {
		override = &tier
		text = rest
	}
	if strings.TrimSpace(text) == "" && len(media) == 0 {
		return nil, ErrEmptyMessage
	}

	stored, err := c.store.LoadMessages(ctx, c.sessionID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	threshold, err := c.store.LoadContextThreshold(ctx, c.sessionID)
	if err != nil {
		return nil, fmt.Errorf("load threshold: %w", err)
	}

	turn := llm.Turn{ID: uuid.NewString(), Text: text, Media: media}
	msg, err := c.runner.Run(ctx, llm.TurnInput{
		Turn:      turn,
		History:   session.History(stored),
		Threshold: threshold,
		Tips:      session.Tips(stored, c.opts.MaxTips),
		System:    c.opts.System,
		Override:  override,
	}, obs)
	if err != nil {
		return nil, err
	}

	// The turn is done; an interrupt from here on must not split the pair.
	saveCtx := context.WithoutCancel(ctx)
	if err := c.store.AppendTurn(saveCtx, c.sessionID, session.UserMessage(turn.ID, text), session.AssistantMessage(msg)); err != nil {
		return msg, fmt.Errorf("save turn: %w", err)
	}
	c.logger.Debug("turn complete",
		"turn", msg.TurnID,
		"tier", msg.Tier.String(),
		"iterations", msg.Iterations,
		"tool_calls", msg.ToolCalls,
		"input_tokens", msg.Usage.InputTokens,
		"output_tokens", msg.Usage.OutputTokens,
		"router_tokens", msg.RouterUsage.Total())
	return msg, nil
}
