package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/wellbeing-safety-engine/internal/risk"
)

// Payload is what a recipient learns about an escalation.
type Payload struct {
	UserID          string           `json:"user_id"`
	RiskLevel       risk.Level       `json:"risk_level"`
	EscalationLevel int              `json:"escalation_level"`
	ResponseTime    time.Duration    `json:"response_time_requirement"`
	Summary         SanitizedSummary `json:"risk_summary"`
	IssuedAt        time.Time        `json:"issued_at"`
}

// NewPayload builds a payload from an assessment, sanitizing its factors.
func NewPayload(a *risk.Assessment, escalationLevel int, issuedAt time.Time) Payload {
	return Payload{
		UserID:          a.UserID,
		RiskLevel:       a.RiskLevel,
		EscalationLevel: escalationLevel,
		ResponseTime:    a.ActionPlan.ResponseTime,
		Summary:         Sanitize(a.ActiveRiskFactors),
		IssuedAt:        issuedAt.UTC(),
	}
}

// Subject renders an email subject line.
func (p Payload) Subject() string {
	return fmt.Sprintf("[Wellbeing] %s escalation (level %d): respond within %s",
		humanLevel(p.RiskLevel), p.EscalationLevel, humanDuration(p.ResponseTime))
}

// Text renders a plain text body.
func (p Payload) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "A wellbeing escalation needs your attention.\n\n")
	fmt.Fprintf(&b, "Reference: %s\n", p.UserID)
	fmt.Fprintf(&b, "Risk level: %s\n", humanLevel(p.RiskLevel))
	fmt.Fprintf(&b, "Escalation level: %d\n", p.EscalationLevel)
	fmt.Fprintf(&b, "Respond within: %s\n", humanDuration(p.ResponseTime))
	fmt.Fprintf(&b, "Issued: %s\n\n", p.IssuedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Active risk factors: %d\n", p.Summary.TotalFactors)
	for _, sev := range []Severity{SeverityCritical, SeverityHigh, SeverityModerate, SeverityLow} {
		if n := p.Summary.SeverityDistribution[string(sev)]; n > 0 {
			fmt.Fprintf(&b, "  %s: %d\n", sev, n)
		}
	}
	return b.String()
}

func humanLevel(l risk.Level) string {
	s := strings.TrimSuffix(string(l), "_risk")
	return strings.ReplaceAll(s, "_", " ")
}

func humanDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "next review"
	case d%(24*time.Hour) == 0:
		return fmt.Sprintf("%dd", d/(24*time.Hour))
	case d%time.Hour == 0:
		return fmt.Sprintf("%dh", d/time.Hour)
	}
	return d.String()
}
