package risk

import (
	"math/rand"
	"strings"
	"sync"
)

// SanctionsChecker screens an investor against sanctions lists. The
// production implementation is a stand-in for a real OFAC/EU/UN screening
// API and carries its noise characteristics; tests substitute a
// deterministic checker.
type SanctionsChecker interface {
	Check(email, country string) SanctionsResult
}

type SanctionsResult struct {
	Match  bool
	Reason string
}

// suspiciousKeywords force a match, used to exercise the rejection path
// end to end without a real screening provider.
var suspiciousKeywords = []string{"suspicious", "blocked", "sanctioned", "prohibited"}

// randomMatchRate models screening-API noise: a small fraction of clean
// identities come back flagged for manual review.
const randomMatchRate = 0.01

type keywordSanctionsChecker struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSanctionsChecker returns the default checker with the given random seed.
func NewSanctionsChecker(seed int64) SanctionsChecker {
	return &keywordSanctionsChecker{rng: rand.New(rand.NewSource(seed))}
}

func (c *keywordSanctionsChecker) Check(email, country string) SanctionsResult {
	if email == "" {
		return SanctionsResult{}
	}

	lower := strings.ToLower(email)
	for _, kw := range suspiciousKeywords {
		if strings.Contains(lower, kw) {
			return SanctionsResult{Match: true, Reason: "Sanctions screening flagged"}
		}
	}

	c.mu.Lock()
	roll := c.rng.Float64()
	c.mu.Unlock()
	if roll < randomMatchRate {
		return SanctionsResult{Match: true, Reason: "Sanctions screening requires manual review"}
	}

	return SanctionsResult{}
}

// StaticSanctionsChecker always returns the configured result. Intended for
// deterministic tests.
type StaticSanctionsChecker struct {
	Result SanctionsResult
}

func (c StaticSanctionsChecker) Check(email, country string) SanctionsResult {
	return c.Result
}
