package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/samsaffron/tierchat/internal/markers"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxIterations caps streaming exchanges per turn.
const DefaultMaxIterations = 5

const maxParallelTools = 4

// Router picks the tier for a message. It must not fail.
type Router interface {
	Classify(ctx context.Context, message string, tips []string) RouteDecision
}

// Dispatcher lists and runs tools. Execute must not fail.
type Dispatcher interface {
	Available() []ToolSpec
	Label(name string, input map[string]any) string
	Execute(ctx context.Context, name string, input map[string]any) ToolResult
}

// EngineConfig tunes the tool loop.
type EngineConfig struct {
	Models        Models
	MaxIterations int
	MaxTokens     int
	ParallelTools bool
}

// Engine runs one user turn through routing, streaming, and tool rounds.
type Engine struct {
	streamer Streamer
	router   Router
	tools    Dispatcher
	cfg      EngineConfig
	logger   *slog.Logger
}

// NewEngine wires the collaborators. router and tools may be nil.
func NewEngine(streamer Streamer, router Router, tools Dispatcher, cfg EngineConfig, logger *slog.Logger) *Engine {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.Models == (Models{}) {
		cfg.Models = DefaultModels()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		streamer: streamer,
		router:   router,
		tools:    tools,
		cfg:      cfg,
		logger:   logger,
	}
}

// HistoryEntry is a prior message with its relevance grade.
type HistoryEntry struct {
	Message Message
	Grade   int
}

// TurnInput is everything a turn depends on.
type TurnInput struct {
	Turn      Turn
	History   []HistoryEntry
	Threshold int      // history entries graded below this are not sent
	Tips      []string // summaries of earlier turns, oldest first
	System    string
	Override  *Tier // skips routing when set
}

// emitter serializes observer calls.
type emitter struct {
	mu  sync.Mutex
	obs Observer
}

func (e *emitter) emit(ev Event) {
	if e.obs == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.obs.OnEvent(ev)
}

// Run executes the turn. Only a failed streaming exchange (or cancellation)
// returns an error; nothing partial is returned in that case.
func (e *Engine) Run(ctx context.Context, in TurnInput, obs Observer) (*AssembledMessage, error) {
	turn := in.Turn
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	em := &emitter{obs: obs}

	// Routing
	var tier Tier
	var routerUsage Usage
	switch {
	case in.Override != nil:
		tier = *in.Override
	case e.router != nil:
		decision := e.router.Classify(ctx, turn.Text, in.Tips)
		tier = decision.Tier
		routerUsage = decision.Usage
	default:
		tier = TierMid
	}
	em.emit(Event{Type: EventRouted, Tier: tier})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	messages := BuildContext(in.History, in.Threshold)
	messages = append(messages, UserTurnMessage(turn))

	var (
		display     strings.Builder
		dataMarkers []string
		usage       Usage
		toolCalls   int
		truncated   bool
	)

	for {
		turn.Iteration++
		iteration := turn.Iteration
		em.emit(Event{Type: EventIteration, Iteration: iteration, Tier: tier})

		var specs []ToolSpec
		if e.tools != nil {
			specs = e.tools.Available()
		}

		separated := display.Len() == 0
		onText := func(delta string) {
			if !separated {
				separated = true
				em.emit(Event{Type: EventTextDelta, Text: "\n\n", Iteration: iteration})
			}
			em.emit(Event{Type: EventTextDelta, Text: delta, Iteration: iteration})
		}

		res, err := e.streamer.Stream(ctx, Request{
			Model:     e.cfg.Models.For(tier),
			System:    in.System,
			Messages:  messages,
			Tools:     specs,
			MaxTokens: e.cfg.MaxTokens,
		}, onText)
		if err != nil {
			return nil, err
		}
		usage = usage.Add(res.Usage)
		if res.Text != "" {
			if display.Len() > 0 {
				display.WriteString("\n\n")
			}
			display.WriteString(res.Text)
		}

		if res.StopReason != StopToolUse || len(res.ToolCalls) == 0 {
			break
		}
		if iteration >= e.cfg.MaxIterations {
			truncated = true
			e.logger.Info("iteration cap reached, assembling partial response",
				"turn", turn.ID, "iterations", iteration, "pending_tools", len(res.ToolCalls))
			break
		}

		// ToolExecuting
		calls := dedupeToolCalls(ensureToolCallIDs(res.ToolCalls))
		messages = append(messages, buildAssistantMessage(res.Text, calls))

		results := e.executeToolCalls(ctx, calls, em, iteration)
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resultMsg := Message{Role: RoleUser}
		for i, call := range calls {
			r := results[i]
			usage = usage.Add(r.Overhead)
			if r.Payload != nil {
				marker, err := markers.EncodeData(r.Payload.Kind, r.Payload.Data)
				if err != nil {
					e.logger.Warn("dropping tool payload", "tool", call.Name, "error", err)
				} else {
					dataMarkers = append(dataMarkers, marker)
				}
			}
			resultMsg.Parts = append(resultMsg.Parts, Part{
				Type:      PartToolResult,
				ToolUseID: call.ID,
				Text:      r.Text,
			})
		}
		toolCalls += len(calls)
		messages = append(messages, resultMsg)
	}

	// Assembling
	tip, text := markers.ExtractTip(display.String())
	content := text
	if len(dataMarkers) > 0 {
		parts := append([]string(nil), dataMarkers...)
		if text != "" {
			parts = append(parts, text)
		}
		content = strings.Join(parts, "\n")
	}

	msg := &AssembledMessage{
		TurnID:      turn.ID,
		Role:        RoleAssistant,
		Content:     content,
		Tip:         tip,
		Tier:        tier,
		Usage:       usage,
		RouterUsage: routerUsage,
		Iterations:  turn.Iteration,
		ToolCalls:   toolCalls,
		Truncated:   truncated,
		Final:       true,
	}
	em.emit(Event{Type: EventDone, Tier: tier, Iteration: turn.Iteration, Message: msg})
	return msg, nil
}

// executeToolCalls runs one round. Results are returned in call order.
func (e *Engine) executeToolCalls(ctx context.Context, calls []ToolCall, em *emitter, iteration int) []ToolResult {
	results := make([]ToolResult, len(calls))
	run := func(ctx context.Context, i int) {
		call := calls[i]
		label := fmt.Sprintf("Running %s", call.Name)
		if e.tools != nil {
			label = e.tools.Label(call.Name, call.Input)
		}
		em.emit(Event{Type: EventToolStart, ToolCallID: call.ID, ToolName: call.Name, ToolInfo: label, Iteration: iteration})
		if e.tools == nil {
			results[i] = PlainResult(fmt.Sprintf("Error: unknown tool %q.", call.Name))
		} else {
			results[i] = e.tools.Execute(ctx, call.Name, call.Input)
		}
		em.emit(Event{Type: EventToolEnd, ToolCallID: call.ID, ToolName: call.Name, ToolInfo: label, Iteration: iteration})
	}

	if !e.cfg.ParallelTools || len(calls) == 1 {
		for i := range calls {
			if ctx.Err() != nil {
				break
			}
			run(ctx, i)
		}
		return results
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelTools)
	for i := range calls {
		g.Go(func() error {
			run(gctx, i)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// BuildContext converts history into API messages, omitting entries graded
// below threshold and removing embedded markers from their text.
func BuildContext(history []HistoryEntry, threshold int) []Message {
	out := make([]Message, 0, len(history)+1)
	for _, entry := range history {
		if entry.Grade < threshold {
			continue
		}
		msg := Message{Role: entry.Message.Role}
		for _, part := range entry.Message.Parts {
			if part.Type == PartText {
				part.Text = markers.StripAll(part.Text)
				if strings.TrimSpace(part.Text) == "" {
					continue
				}
			}
			msg.Parts = append(msg.Parts, part)
		}
		if len(msg.Parts) == 0 {
			continue
		}
		out = append(out, msg)
	}
	return out
}

func buildAssistantMessage(text string, calls []ToolCall) Message {
	msg := Message{Role: RoleAssistant}
	if text != "" {
		msg.Parts = append(msg.Parts, Part{Type: PartText, Text: text})
	}
	for i := range calls {
		call := calls[i]
		msg.Parts = append(msg.Parts, Part{Type: PartToolUse, ToolCall: &call})
	}
	return msg
}

func ensureToolCallIDs(calls []ToolCall) []ToolCall {
	for i := range calls {
		if strings.TrimSpace(calls[i].ID) == "" {
			calls[i].ID = fmt.Sprintf("toolcall-%d", i+1)
		}
		if calls[i].Input == nil {
			calls[i].Input = map[string]any{}
		}
	}
	return calls
}

func dedupeToolCalls(calls []ToolCall) []ToolCall {
	if len(calls) < 2 {
		return calls
	}
	seen := make(map[string]struct{}, len(calls))
	out := make([]ToolCall, 0, len(calls))
	for _, call := range calls {
		if _, ok := seen[call.ID]; ok {
			continue
		}
		seen[call.ID] = struct{}{}
		out = append(out, call)
	}
	return out
}
