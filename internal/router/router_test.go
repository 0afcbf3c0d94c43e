package router

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/samsaffron/tierchat/internal/llm"
)

type fakeCompleter struct {
	text  string
	usage llm.Usage
	err   error
	reqs  []llm.CompletionRequest
}

func (f *fakeCompleter) Complete(ctx context.Context, req llm.CompletionRequest) (llm.Completion, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return llm.Completion{}, f.err
	}
	return llm.Completion{Text: f.text, Usage: f.usage}, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestClassifyTable(t *testing.T) {
	tests := []struct {
		name     string
		policy   Policy
		response string
		wantTier llm.Tier
		wantConf float64
		fallback bool
	}{
		{"confident cheap", TwoTierPolicy(), `{"tier":"haiku","confidence":0.9}`, llm.TierCheap, 0.9, false},
		{"unsure cheap escalates", TwoTierPolicy(), `{"tier":"cheap","confidence":0.4}`, llm.TierMid, 0.4, false},
		{"unsure mid stays at ceiling", TwoTierPolicy(), `{"tier":"sonnet","confidence":0.1}`, llm.TierMid, 0.1, false},
		{"premium capped in two tier", TwoTierPolicy(), `{"tier":"OPUS","confidence":0.95}`, llm.TierMid, 0.95, false},
		{"legacy allows premium", LegacyThreeTierPolicy(), `{"tier":"opus","confidence":0.95}`, llm.TierPremium, 0.95, false},
		{"legacy escalates single step", LegacyThreeTierPolicy(), `{"tier":"haiku","confidence":0.2}`, llm.TierMid, 0.2, false},
		{"threshold is inclusive", TwoTierPolicy(), `{"tier":"haiku","confidence":0.7}`, llm.TierCheap, 0.7, false},
		{"confidence clamped", TwoTierPolicy(), `{"tier":"haiku","confidence":7}`, llm.TierCheap, 1, false},
		{"code fence", TwoTierPolicy(), "```json\n{\"tier\": \"haiku\", \"confidence\": 0.8}\n```", llm.TierCheap, 0.8, false},
		{"prose around json", TwoTierPolicy(), "Sure!\n{\"tier\": \"haiku\", \"confidence\": 0.8}\nThanks", llm.TierCheap, 0.8, false},
		{"single line code fence", TwoTierPolicy(), "```json {\"tier\":\"cheap\",\"confidence\":0.9}```", llm.TierCheap, 0.9, false},
		{"unknown tier drops to lowest allowed", TwoTierPolicy(), `{"tier":"gigantic","confidence":0.9}`, llm.TierCheap, 0.9, false},
		{"unknown tier still escalates", TwoTierPolicy(), `{"tier":"gigantic","confidence":0.3}`, llm.TierMid, 0.3, false},
		{"missing confidence", TwoTierPolicy(), `{"tier":"haiku"}`, llm.TierMid, 1, true},
		{"not json", TwoTierPolicy(), "haiku", llm.TierMid, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := &fakeCompleter{text: tt.response, usage: llm.Usage{InputTokens: 50, OutputTokens: 9}}
			r := New(fc, "claude-haiku-4-5", tt.policy, quietLogger())
			got := r.Classify(context.Background(), "hello", nil)
			if got.Tier != tt.wantTier {
				t.Fatalf("tier=%v, want %v", got.Tier, tt.wantTier)
			}
			if got.Confidence != tt.wantConf {
				t.Fatalf("confidence=%v, want %v", got.Confidence, tt.wantConf)
			}
			if got.Fallback != tt.fallback {
				t.Fatalf("fallback=%v, want %v", got.Fallback, tt.fallback)
			}
			if got.Usage.InputTokens != 50 || got.Usage.OutputTokens != 9 {
				t.Fatalf("usage=%+v", got.Usage)
			}
			if fc.reqs[0].Model != "claude-haiku-4-5" {
				t.Fatalf("model=%q", fc.reqs[0].Model)
			}
		})
	}
}

func TestClassifyCompleterError(t *testing.T) {
	r := New(&fakeCompleter{err: errors.New("boom")}, "m", TwoTierPolicy(), quietLogger())
	got := r.Classify(context.Background(), "hello", nil)
	if got.Tier != llm.TierMid || got.Confidence != 1 || !got.Fallback {
		t.Fatalf("decision=%+v", got)
	}
}

func TestClassifyIncludesConversationArc(t *testing.T) {
	fc := &fakeCompleter{text: `{"tier":"haiku","confidence":0.9}`}
	r := New(fc, "m", TwoTierPolicy(), quietLogger())
	r.Classify(context.Background(), "and tomorrow?", []string{"Weather in Oslo"})
	if !strings.Contains(fc.reqs[0].Prompt, "1. Weather in Oslo") {
		t.Fatalf("prompt=%q", fc.reqs[0].Prompt)
	}
	if strings.Contains(fc.reqs[0].System, "premium") {
		t.Fatalf("two-tier system prompt offers premium:\n%s", fc.reqs[0].System)
	}
}

// Escalation is monotone in confidence and never exceeds the ceiling.
func TestEscalationMonotoneAndBounded(t *testing.T) {
	for _, policy := range []Policy{TwoTierPolicy(), LegacyThreeTierPolicy()} {
		for _, tier := range llm.AllTiers {
			prev := llm.TierPremium + 1
			for c := 0.0; c <= 1.0; c += 0.05 {
				got := policy.Escalate(policy.Cap(tier), c)
				if got > policy.Ceiling() {
					t.Fatalf("%s: tier %v conf %.2f escalated past ceiling to %v", policy.Name, tier, c, got)
				}
				if got > prev {
					t.Fatalf("%s: tier %v rose from %v to %v as confidence increased", policy.Name, tier, prev, got)
				}
				if got < policy.Cap(tier) {
					t.Fatalf("%s: tier %v lowered to %v", policy.Name, tier, got)
				}
				prev = got
			}
		}
	}
}

func TestParseOverride(t *testing.T) {
	tests := []struct {
		in       string
		tier     llm.Tier
		rest     string
		override bool
	}{
		{"/opus explain monads", llm.TierPremium, "explain monads", true},
		{"  /Haiku\thi", llm.TierCheap, "hi", true},
		{"/sonnet", llm.TierMid, "", true},
		{"/opusx hi", 0, "/opusx hi", false},
		{"hello /opus", 0, "hello /opus", false},
	}
	for _, tt := range tests {
		tier, rest, ok := ParseOverride(tt.in)
		if ok != tt.override || rest != tt.rest || (ok && tier != tt.tier) {
			t.Fatalf("ParseOverride(%q)=(%v,%q,%v), want (%v,%q,%v)", tt.in, tier, rest, ok, tt.tier, tt.rest, tt.override)
		}
	}
}

func TestPolicyByName(t *testing.T) {
	p, err := PolicyByName("legacy-three-tier")
	if err != nil || !p.Allows(llm.TierPremium) {
		t.Fatalf("policy=%+v err=%v", p, err)
	}
	p, err = PolicyByName("")
	if err != nil || p.Allows(llm.TierPremium) {
		t.Fatalf("default policy=%+v err=%v", p, err)
	}
	if _, err := PolicyByName("nope"); err == nil {
		t.Fatal("expected error")
	}
}
