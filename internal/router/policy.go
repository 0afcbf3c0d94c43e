package router

import (
	"fmt"
	"sort"
	"strings"

	"github.com/samsaffron/tierchat/internal/llm"
)

// DefaultThreshold is the confidence below which a classification escalates one step.
const DefaultThreshold = 0.7

// Policy decides which tiers automatic routing may pick and how it escalates.
type Policy struct {
	Name              string
	Allowed           []llm.Tier // ascending
	Threshold         float64
	Default           llm.Tier
	DefaultConfidence float64
}

// TwoTierPolicy routes between cheap and mid only. Premium is reachable
// solely through an explicit override.
func TwoTierPolicy() Policy {
	return Policy{
		Name:              "two-tier",
		Allowed:           []llm.Tier{llm.TierCheap, llm.TierMid},
		Threshold:         DefaultThreshold,
		Default:           llm.TierMid,
		DefaultConfidence: 1.0,
	}
}

// LegacyThreeTierPolicy lets the classifier pick premium as well.
func LegacyThreeTierPolicy() Policy {
	return Policy{
		Name:              "legacy-three-tier",
		Allowed:           []llm.Tier{llm.TierCheap, llm.TierMid, llm.TierPremium},
		Threshold:         DefaultThreshold,
		Default:           llm.TierMid,
		DefaultConfidence: 1.0,
	}
}

// PolicyByName resolves a configured policy name.
func PolicyByName(name string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "two-tier", "two_tier", "2":
		return TwoTierPolicy(), nil
	case "legacy-three-tier", "three-tier", "legacy", "3":
		return LegacyThreeTierPolicy(), nil
	}
	return Policy{}, fmt.Errorf("unknown router policy %q (want two-tier or legacy-three-tier)", name)
}

// normalized returns p with a sorted, non-empty tier list.
func (p Policy) normalized() Policy {
	if len(p.Allowed) == 0 {
		p.Allowed = []llm.Tier{p.Default}
	}
	allowed := append([]llm.Tier(nil), p.Allowed...)
	sort.Slice(allowed, func(i, j int) bool { return allowed[i] < allowed[j] })
	p.Allowed = allowed
	if p.Threshold < 0 {
		p.Threshold = 0
	}
	if p.DefaultConfidence < p.Threshold {
		p.DefaultConfidence = 1.0
	}
	return p
}

// Ceiling is the highest tier automatic routing may return.
func (p Policy) Ceiling() llm.Tier {
	p = p.normalized()
	return p.Allowed[len(p.Allowed)-1]
}

// Cap maps t to the highest allowed tier at or below it. A tier below every
// allowed tier maps to the lowest allowed tier.
func (p Policy) Cap(t llm.Tier) llm.Tier {
	p = p.normalized()
	capped := p.Allowed[0]
	for _, a := range p.Allowed {
		if a <= t {
			capped = a
		}
	}
	return capped
}

// Escalate promotes t by exactly one allowed step when confidence is below
// the threshold. It never goes past the ceiling.
func (p Policy) Escalate(t llm.Tier, confidence float64) llm.Tier {
	p = p.normalized()
	if confidence >= p.Threshold {
		return t
	}
	for _, a := range p.Allowed {
		if a > t {
			return a
		}
	}
	return t
}

// Allows reports whether t is in the policy.
func (p Policy) Allows(t llm.Tier) bool {
	for _, a := range p.normalized().Allowed {
		if a == t {
			return true
		}
	}
	return false
}
