// Package router picks a model tier for a user message with a single
// cheap-tier classification call.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/samsaffron/tierchat/internal/llm"
	"github.com/samsaffron/tierchat/internal/prompt"
)

var tierDescriptions = map[llm.Tier]string{
	llm.TierCheap:   "greetings, small talk, short factual questions, simple tool lookups such as time or weather",
	llm.TierMid:     "explanations, writing, analysis, coding, multi-step reasoning, anything that needs care",
	llm.TierPremium: "long, difficult, or high-stakes work where the best available model matters",
}

// Router classifies messages into tiers. Classify never fails.
type Router struct {
	completer llm.Completer
	model     string
	policy    Policy
	logger    *slog.Logger
}

// New returns a router that calls model (the cheap tier) through completer.
func New(completer llm.Completer, model string, policy Policy, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		completer: completer,
		model:     model,
		policy:    policy.normalized(),
		logger:    logger,
	}
}

// Policy returns the active policy.
func (r *Router) Policy() Policy {
	return r.policy
}

// Classify returns the tier for message. tips are summaries of earlier turns,
// oldest first. Any failure yields the policy default without escalation.
func (r *Router) Classify(ctx context.Context, message string, tips []string) llm.RouteDecision {
	fallback := llm.RouteDecision{
		Tier:       r.policy.Default,
		Confidence: r.policy.DefaultConfidence,
		Fallback:   true,
	}
	if r.completer == nil {
		return fallback
	}

	resp, err := r.completer.Complete(ctx, llm.CompletionRequest{
		Model:     r.model,
		System:    prompt.RouterSystemPrompt(r.options()),
		Prompt:    prompt.RouterUserPrompt(message, tips),
		MaxTokens: 64,
	})
	fallback.Usage = resp.Usage
	if err != nil {
		r.logger.Warn("router classification failed", "error", err)
		return fallback
	}

	tier, confidence, err := parseClassification(resp.Text)
	if errors.Is(err, errUnknownTier) {
		// An unknown tier ranks below every allowed one.
		r.logger.Debug("router returned unknown tier", "error", err)
		tier, err = r.policy.Allowed[0], nil
	}
	if err != nil {
		r.logger.Warn("router response unusable", "error", err, "response", truncate(resp.Text, 200))
		return fallback
	}

	chosen := r.policy.Cap(tier)
	chosen = r.policy.Escalate(chosen, confidence)
	r.logger.Debug("routed message", "tier", chosen, "classified", tier, "confidence", confidence)
	return llm.RouteDecision{
		Tier:       chosen,
		Confidence: confidence,
		Usage:      resp.Usage,
	}
}

func (r *Router) options() []prompt.TierOption {
	opts := make([]prompt.TierOption, 0, len(r.policy.Allowed))
	for _, t := range r.policy.Allowed {
		opts = append(opts, prompt.TierOption{Name: t.String(), Description: tierDescriptions[t]})
	}
	return opts
}

var (
	errNoJSON      = errors.New("no JSON object in response")
	errUnknownTier = errors.New("unknown tier")
)

// parseClassification reads {"tier": ..., "confidence": ...} from a model reply.
// An unrecognized tier returns errUnknownTier along with the clamped confidence.
func parseClassification(text string) (llm.Tier, float64, error) {
	body := stripCodeFence(strings.TrimSpace(text))
	if strings.Contains(body, "\n") {
		start := strings.Index(body, "{")
		end := strings.LastIndex(body, "}")
		if start < 0 || end < start {
			return 0, 0, errNoJSON
		}
		body = body[start : end+1]
	}

	var parsed struct {
		Tier       *string  `json:"tier"`
		Confidence *float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		return 0, 0, fmt.Errorf("decode classification: %w", err)
	}
	if parsed.Tier == nil || parsed.Confidence == nil {
		return 0, 0, errors.New("classification missing tier or confidence")
	}
	confidence := clamp(*parsed.Confidence, 0, 1)
	tier, ok := llm.ParseTier(*parsed.Tier)
	if !ok {
		return 0, confidence, fmt.Errorf("%w %q", errUnknownTier, *parsed.Tier)
	}
	return tier, confidence, nil
}

// stripCodeFence removes a surrounding ``` or ```json fence, on one line or
// several.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimLeftFunc(s, unicode.IsLetter) // language tag
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
