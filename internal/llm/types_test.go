package llm

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseTier(t *testing.T) {
	tests := []struct {
		in   string
		want Tier
		ok   bool
	}{
		{"cheap", TierCheap, true},
		{" Haiku ", TierCheap, true},
		{"SONNET", TierMid, true},
		{"mid", TierMid, true},
		{"opus", TierPremium, true},
		{"premium", TierPremium, true},
		{"gpt", TierCheap, false},
		{"", TierCheap, false},
	}
	for _, tt := range tests {
		got, ok := ParseTier(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Fatalf("ParseTier(%q)=(%v, %v), want (%v, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestTierString(t *testing.T) {
	var got []string
	for _, tier := range AllTiers {
		got = append(got, tier.String())
	}
	if diff := cmp.Diff([]string{"cheap", "mid", "premium"}, got); diff != "" {
		t.Fatalf("names mismatch (-want +got):\n%s", diff)
	}
}

func TestUserTurnMessageImagesFirst(t *testing.T) {
	msg := UserTurnMessage(Turn{Text: "what is this", Media: []Image{{MediaType: "image/png", Data: "a"}, {MediaType: "image/jpeg", Data: "b"}}})
	var types []PartType
	for _, p := range msg.Parts {
		types = append(types, p.Type)
	}
	if diff := cmp.Diff([]PartType{PartImage, PartImage, PartText}, types); diff != "" {
		t.Fatalf("parts mismatch (-want +got):\n%s", diff)
	}
	if msg.Parts[1].Image.Data != "b" {
		t.Fatalf("second image=%+v", msg.Parts[1].Image)
	}
}

func TestUserTurnMessageEmpty(t *testing.T) {
	msg := UserTurnMessage(Turn{})
	if len(msg.Parts) != 1 || msg.Parts[0].Type != PartText {
		t.Fatalf("parts=%+v", msg.Parts)
	}
}

func TestUsageAdd(t *testing.T) {
	got := Usage{InputTokens: 1, OutputTokens: 2}.Add(Usage{InputTokens: 10, OutputTokens: 20})
	if got != (Usage{InputTokens: 11, OutputTokens: 22}) || got.Total() != 33 {
		t.Fatalf("got %+v", got)
	}
}
