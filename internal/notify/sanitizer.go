// Package notify sanitizes escalation details and delivers them to professional
// recipients over email and queue channels.
//
// Nothing in this package may carry risk factor names, keywords or journal text.
// Channels only accept Payload, whose summary is built by Sanitize.
package notify

import (
	"github.com/wolfman30/wellbeing-safety-engine/internal/risk"
)

// Severity buckets a factor weight for external reporting.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityModerate Severity = "moderate"
	SeverityLow      Severity = "low"
)

// SeverityFor maps a factor weight to its bucket.
func SeverityFor(weight float64) Severity {
	switch {
	case weight >= 8:
		return SeverityCritical
	case weight >= 5:
		return SeverityHigh
	case weight >= 3:
		return SeverityModerate
	}
	return SeverityLow
}

// SanitizedSummary is the only view of risk factors that leaves the process.
// Map keys are drawn from fixed vocabularies: severity buckets and factor categories.
type SanitizedSummary struct {
	TotalFactors         int            `json:"total_factors"`
	SeverityDistribution map[string]int `json:"severity_distribution"`
	CategoryDistribution map[string]int `json:"category_distribution"`
}

// Sanitize reduces factors to counts. The output depends only on the weight and
// category of each factor, never on its name.
func Sanitize(factors []risk.RiskFactorRecord) SanitizedSummary {
	out := SanitizedSummary{
		TotalFactors:         len(factors),
		SeverityDistribution: make(map[string]int),
		CategoryDistribution: make(map[string]int),
	}
	for _, f := range factors {
		out.SeverityDistribution[string(SeverityFor(f.Weight))]++
		out.CategoryDistribution[categoryLabel(f.Category)]++
	}
	return out
}

// categoryLabel keeps unknown categories from leaking arbitrary strings.
func categoryLabel(c risk.FactorCategory) string {
	switch c {
	case risk.FactorPrimary, risk.FactorWarning, risk.FactorBehavioral:
		return string(c)
	}
	return "other"
}
