package risk

import (
	"fmt"
	"strings"
	"time"

	"github.com/rwaswift/compliance-api/internal/model"
)

// Country risk classifications (ISO 3166-1 alpha-3). Membership follows
// FATF monitoring and sanctions lists and changes over time.
var (
	highRiskCountries = newSet(
		"IRN", "PRK", "SYR", "VEN", "MMR", "AFG", "YEM", "LBY", "SOM", "SDN",
		"CUB", "BLR", "ZWE", "RUS",
	)
	mediumRiskCountries = newSet(
		"MEX", "BRA", "ARG", "CHL", "COL", "PER", "THA", "MYS", "IDN", "PHL",
		"IND", "CHN", "ZAF", "TUR", "POL", "CZE", "HUN", "ROU", "BGR", "HRV",
		"SVN", "SVK", "EST", "LVA", "LTU", "GRC", "PRT", "CYP", "MLT",
	)
)

// Free email providers carry a moderate fraud penalty.
var freeEmailDomains = newSet(
	"gmail.com", "yahoo.com", "hotmail.com", "outlook.com", "aol.com",
	"icloud.com", "mail.com", "protonmail.com", "zoho.com", "yandex.com",
	"gmx.com", "mail.ru",
)

func newSet(members ...string) map[string]struct{} {
	s := make(map[string]struct{}, len(members))
	for _, m := range members {
		s[m] = struct{}{}
	}
	return s
}

const (
	// Scores below this threshold auto-approve; the boundary itself does not.
	autoApprovalThreshold = 70

	levelMediumFloor = 30
	levelHighFloor   = 70

	velocityWindow = 24 * time.Hour
)

// Input carries everything the engine scores. RecentVerifications is the
// organization's other verifications from the trailing 24 hours, supplied
// by the caller so the engine itself stays free of I/O.
type Input struct {
	Email               string
	Country             string
	IPAddress           string
	Now                 time.Time
	RecentVerifications []*model.Verification
}

// Component is one weighted sub-score with its explanation.
type Component struct {
	Score   int    `json:"score"`
	Reason  string `json:"reason,omitempty"`
	Flagged bool   `json:"flagged,omitempty"`
}

// Assessment is the engine's verdict for one verification.
type Assessment struct {
	Score         int             `json:"score"`
	Level         model.RiskLevel `json:"level"`
	Factors       []string        `json:"factors"`
	ShouldApprove bool            `json:"should_approve"`
	Breakdown     Breakdown       `json:"breakdown"`
}

type Breakdown struct {
	Country   Component `json:"country"`
	Email     Component `json:"email"`
	Velocity  Component `json:"velocity"`
	Sanctions Component `json:"sanctions"`
}

// Engine computes risk scores. Pure apart from the injected sanctions
// checker; safe for concurrent use.
type Engine struct {
	sanctions SanctionsChecker
}

func NewEngine(sanctions SanctionsChecker) *Engine {
	return &Engine{sanctions: sanctions}
}

// Score sums four independent sub-scores and derives level and approval.
func (e *Engine) Score(in Input) Assessment {
	if in.Now.IsZero() {
		in.Now = time.Now()
	}

	breakdown := Breakdown{
		Country:   scoreCountry(in.Country),
		Email:     scoreEmail(in.Email),
		Velocity:  scoreVelocity(in.Email, in.Now, in.RecentVerifications),
		Sanctions: e.scoreSanctions(in.Email, in.Country),
	}

	total := breakdown.Country.Score + breakdown.Email.Score +
		breakdown.Velocity.Score + breakdown.Sanctions.Score

	factors := make([]string, 0, 4)
	for _, c := range []Component{breakdown.Country, breakdown.Email, breakdown.Velocity, breakdown.Sanctions} {
		if c.Reason != "" {
			factors = append(factors, c.Reason)
		}
	}

	return Assessment{
		Score:         total,
		Level:         levelFor(total),
		Factors:       factors,
		ShouldApprove: total < autoApprovalThreshold,
		Breakdown:     breakdown,
	}
}

func levelFor(score int) model.RiskLevel {
	switch {
	case score < levelMediumFloor:
		return model.RiskLevelLow
	case score < levelHighFloor:
		return model.RiskLevelMedium
	default:
		return model.RiskLevelHigh
	}
}

func scoreCountry(country string) Component {
	if country == "" {
		return Component{Score: 15, Reason: "Country not provided"}
	}

	code := strings.ToUpper(country)
	if _, ok := highRiskCountries[code]; ok {
		return Component{
			Score:   30,
			Reason:  fmt.Sprintf("High-risk jurisdiction: %s", code),
			Flagged: true,
		}
	}
	if _, ok := mediumRiskCountries[code]; ok {
		return Component{Score: 15}
	}
	// Unknown codes are treated as low risk; only missing data is penalized.
	return Component{}
}

func scoreEmail(email string) Component {
	if email == "" {
		return Component{Score: 10, Reason: "Email not provided"}
	}

	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return Component{Score: 20, Reason: "Invalid email format"}
	}

	domain := strings.ToLower(email[at+1:])
	if _, ok := freeEmailDomains[domain]; ok {
		return Component{Score: 10, Reason: "Free email domain"}
	}
	return Component{}
}

func scoreVelocity(email string, now time.Time, recent []*model.Verification) Component {
	if email == "" {
		return Component{}
	}

	cutoff := now.Add(-velocityWindow)
	lower := strings.ToLower(email)

	attempts := 0
	for _, v := range recent {
		if v == nil || v.InvestorEmail == "" {
			continue
		}
		if strings.ToLower(v.InvestorEmail) == lower && v.CreatedAt.After(cutoff) {
			attempts++
		}
	}

	switch {
	case attempts >= 5:
		return Component{
			Score:   25,
			Reason:  fmt.Sprintf("Multiple verification attempts (%d in 24h)", attempts),
			Flagged: true,
		}
	case attempts >= 3:
		return Component{
			Score:  15,
			Reason: fmt.Sprintf("Repeated verification attempts (%d in 24h)", attempts),
		}
	case attempts >= 2:
		return Component{Score: 5}
	default:
		return Component{}
	}
}

func (e *Engine) scoreSanctions(email, country string) Component {
	res := e.sanctions.Check(email, country)
	if !res.Match {
		return Component{}
	}
	return Component{Score: 25, Reason: res.Reason, Flagged: true}
}
