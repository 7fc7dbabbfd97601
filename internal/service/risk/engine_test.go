package risk

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rwaswift/compliance-api/internal/model"
)

func cleanEngine() *Engine {
	return NewEngine(StaticSanctionsChecker{})
}

func recentVerification(email string, age time.Duration, now time.Time) *model.Verification {
	return &model.Verification{
		ID:            uuid.New(),
		InvestorEmail: email,
		CreatedAt:     now.Add(-age),
	}
}

func TestScoreLevelBoundaries(t *testing.T) {
	tests := []struct {
		score int
		level model.RiskLevel
	}{
		{0, model.RiskLevelLow},
		{29, model.RiskLevelLow},
		{30, model.RiskLevelMedium},
		{69, model.RiskLevelMedium},
		{70, model.RiskLevelHigh},
		{100, model.RiskLevelHigh},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.level, levelFor(tt.score), "score %d", tt.score)
	}
}

func TestShouldApproveBoundary(t *testing.T) {
	now := time.Now()

	eng := NewEngine(StaticSanctionsChecker{Result: SanctionsResult{Match: true, Reason: "Sanctions screening flagged"}})

	// 30 (IRN) + 10 (free domain) + 25 (sanctions) + 5 (velocity pair) = 70
	recent := []*model.Verification{
		recentVerification("blocked@gmail.com", time.Hour, now),
		recentVerification("blocked@gmail.com", 2*time.Hour, now),
	}
	at70 := eng.Score(Input{
		Email:               "blocked@gmail.com",
		Country:             "IRN",
		Now:                 now,
		RecentVerifications: recent,
	})
	require.Equal(t, 70, at70.Score)
	assert.False(t, at70.ShouldApprove, "boundary equality at 70 is not approved")
	assert.Equal(t, model.RiskLevelHigh, at70.Level)

	// Same input without the velocity pair scores 65 and approves.
	at65 := eng.Score(Input{
		Email:   "blocked@gmail.com",
		Country: "IRN",
		Now:     now,
	})
	require.Equal(t, 65, at65.Score)
	assert.True(t, at65.ShouldApprove)
}

func TestCountryRisk(t *testing.T) {
	tests := []struct {
		country string
		score   int
	}{
		{"", 15},
		{"IRN", 30},
		{"PRK", 30},
		{"rus", 30},
		{"MEX", 15},
		{"IND", 15},
		{"USA", 0},
		{"GBR", 0},
		{"XXX", 0}, // unknown but present: low risk
	}
	for _, tt := range tests {
		c := scoreCountry(tt.country)
		assert.Equal(t, tt.score, c.Score, "country %q", tt.country)
	}

	flagged := scoreCountry("IRN")
	assert.True(t, flagged.Flagged)
	assert.Equal(t, "High-risk jurisdiction: IRN", flagged.Reason)
}

func TestEmailRisk(t *testing.T) {
	assert.Equal(t, 10, scoreEmail("").Score)
	assert.Equal(t, 20, scoreEmail("no-domain").Score)
	assert.Equal(t, 20, scoreEmail("trailing@").Score)
	assert.Equal(t, 10, scoreEmail("investor@gmail.com").Score)
	assert.Equal(t, 10, scoreEmail("investor@GMAIL.COM").Score)
	assert.Equal(t, 0, scoreEmail("investor@fund.example.com").Score)
}

func TestVelocityRisk(t *testing.T) {
	now := time.Now()
	email := "repeat@example.com"

	build := func(n int, age time.Duration) []*model.Verification {
		out := make([]*model.Verification, 0, n)
		for i := 0; i < n; i++ {
			out = append(out, recentVerification(email, age, now))
		}
		return out
	}

	tests := []struct {
		name    string
		recent  []*model.Verification
		score   int
		flagged bool
	}{
		{"none", nil, 0, false},
		{"one", build(1, time.Hour), 0, false},
		{"two", build(2, time.Hour), 5, false},
		{"three", build(3, time.Hour), 15, false},
		{"five", build(5, time.Hour), 25, true},
		{"stale", build(5, 25*time.Hour), 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := scoreVelocity(email, now, tt.recent)
			assert.Equal(t, tt.score, c.Score)
			assert.Equal(t, tt.flagged, c.Flagged)
		})
	}

	t.Run("case insensitive", func(t *testing.T) {
		recent := build(5, time.Hour)
		c := scoreVelocity("REPEAT@EXAMPLE.COM", now, recent)
		assert.Equal(t, 25, c.Score)
		assert.Equal(t, "Multiple verification attempts (5 in 24h)", c.Reason)
	})

	t.Run("other emails ignored", func(t *testing.T) {
		recent := []*model.Verification{
			recentVerification("other@example.com", time.Hour, now),
			recentVerification("another@example.com", time.Hour, now),
		}
		assert.Equal(t, 0, scoreVelocity(email, now, recent).Score)
	})
}

func TestSanctionsKeywords(t *testing.T) {
	checker := NewSanctionsChecker(1)

	for _, kw := range []string{"suspicious", "blocked", "sanctioned", "prohibited"} {
		res := checker.Check(fmt.Sprintf("%s.person@example.com", kw), "USA")
		assert.True(t, res.Match, "keyword %q", kw)
		assert.Equal(t, "Sanctions screening flagged", res.Reason)
	}

	res := checker.Check("", "USA")
	assert.False(t, res.Match, "empty email never matches")
}

func TestCleanInvestorApproves(t *testing.T) {
	eng := cleanEngine()

	a := eng.Score(Input{
		Email:   "investor@gmail.com",
		Country: "USA",
		Now:     time.Now(),
	})

	assert.Equal(t, 10, a.Score, "free email domain only")
	assert.Equal(t, model.RiskLevelLow, a.Level)
	assert.True(t, a.ShouldApprove)
	assert.Equal(t, []string{"Free email domain"}, a.Factors)
	assert.Equal(t, 0, a.Breakdown.Country.Score)
	assert.Equal(t, 0, a.Breakdown.Velocity.Score)
	assert.Equal(t, 0, a.Breakdown.Sanctions.Score)
}

func TestHighRiskJurisdictionFactorOrdering(t *testing.T) {
	eng := NewEngine(StaticSanctionsChecker{Result: SanctionsResult{Match: true, Reason: "Sanctions screening flagged"}})

	a := eng.Score(Input{
		Email:   "reject.investor@gmail.com",
		Country: "IRN",
		Now:     time.Now(),
	})

	require.Len(t, a.Factors, 3)
	assert.Equal(t, "High-risk jurisdiction: IRN", a.Factors[0])
	assert.Equal(t, "Free email domain", a.Factors[1])
	assert.Equal(t, "Sanctions screening flagged", a.Factors[2])
	assert.Equal(t, 65, a.Score)
}

func TestScoreWithinRange(t *testing.T) {
	now := time.Now()
	eng := NewEngine(StaticSanctionsChecker{Result: SanctionsResult{Match: true, Reason: "Sanctions screening flagged"}})

	// Worst case across all components: 30 + 20 + 25 + 25 = 100.
	recent := make([]*model.Verification, 0, 6)
	for i := 0; i < 6; i++ {
		recent = append(recent, recentVerification("prohibited", time.Hour, now))
	}
	a := eng.Score(Input{
		Email:               "prohibited",
		Country:             "PRK",
		Now:                 now,
		RecentVerifications: recent,
	})
	assert.Equal(t, 100, a.Score)
	assert.Equal(t, model.RiskLevelHigh, a.Level)
	assert.False(t, a.ShouldApprove)
}
