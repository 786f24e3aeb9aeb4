package risk

import (
	"math"
	"time"
)

// Level is the five-tier classification of an assessment.
type Level string

const (
	LevelMinimal         Level = "minimal_risk"
	LevelLow             Level = "low_risk"
	LevelModerate        Level = "moderate_risk"
	LevelElevated        Level = "elevated_risk"
	LevelImmediateCrisis Level = "immediate_crisis"
)

// Rank orders levels from minimal (0) to immediate crisis (4).
func (l Level) Rank() int {
	switch l {
	case LevelLow:
		return 1
	case LevelModerate:
		return 2
	case LevelElevated:
		return 3
	case LevelImmediateCrisis:
		return 4
	}
	return 0
}

// Score thresholds.
const (
	CrisisScore       = 8.0
	ElevatedScore     = 6.0
	ModerateScore     = 4.0
	LowScore          = 2.0
	ProfessionalScore = 6.0
	EmergencyScore    = 9.0
)

// LevelFor is the pure mapping from a final score and the immediate-action flag
// to a risk level.
func LevelFor(score float64, immediateAction bool) Level {
	switch {
	case immediateAction || score >= CrisisScore:
		return LevelImmediateCrisis
	case score >= ElevatedScore:
		return LevelElevated
	case score >= ModerateScore:
		return LevelModerate
	case score >= LowScore:
		return LevelLow
	}
	return LevelMinimal
}

// FactorCategory classifies a risk factor record.
type FactorCategory string

const (
	FactorPrimary    FactorCategory = "primary"
	FactorWarning    FactorCategory = "warning"
	FactorBehavioral FactorCategory = "behavioral"
)

// RiskFactorRecord is an active risk factor. Name must never reach a log line or
// notification payload; use notify.Sanitize for anything leaving the process.
type RiskFactorRecord struct {
	Name                    string         `json:"name"`
	Category                FactorCategory `json:"category"`
	Weight                  float64        `json:"weight"`
	Frequency               int            `json:"frequency"`
	ImmediateActionRequired bool           `json:"immediate_action_required"`
}

// ProtectiveFactorRecord is an active protective factor.
type ProtectiveFactorRecord struct {
	Name                string `json:"name"`
	Strength            int    `json:"strength"`
	StrengtheningTarget bool   `json:"strengthening_target"`
}

// ActionPlan is the response plan attached to an assessment.
type ActionPlan struct {
	ImmediateActions        []ActionKind  `json:"immediate_actions"`
	ResponseTime            time.Duration `json:"response_time_requirement"`
	FollowUpRequirements    []string      `json:"follow_up_requirements"`
	RiskMitigation          []string      `json:"risk_mitigation"`
	ProtectiveStrengthening []string      `json:"protective_strengthening"`
}

// EscalationRequirements flags how far the assessment should escalate.
type EscalationRequirements struct {
	EscalationNeeded                 bool `json:"escalation_needed"`
	ProfessionalConsultationRequired bool `json:"professional_consultation_required"`
	EmergencyServicesConsideration   bool `json:"emergency_services_consideration"`
}

// MonitoringRequirements sets the reassessment rhythm.
type MonitoringRequirements struct {
	Frequency       time.Duration `json:"frequency"`
	DurationDays    int           `json:"duration_days"`
	CheckInRequired bool          `json:"check_in_required"`
}

// Signals is the collected input to scoring.
type Signals struct {
	Content     ContentAnalysis      `json:"content_analysis"`
	MoodTrend   Trend                `json:"mood_trend"`
	StressTrend Trend                `json:"stress_trend"`
	Behavior    BehavioralChanges    `json:"behavioral_changes"`
	Response    InterventionResponse `json:"intervention_response_patterns"`
}

// Assessment is an immutable crisis risk assessment. A later assessment
// supersedes it; it is never updated in place.
type Assessment struct {
	UserID             string                   `json:"user_id"`
	Timestamp          time.Time                `json:"timestamp"`
	RawScore           float64                  `json:"raw_score"`
	ProtectiveScore    float64                  `json:"protective_score"`
	RiskScore          float64                  `json:"risk_score"`
	RiskLevel          Level                    `json:"risk_level"`
	ActiveRiskFactors  []RiskFactorRecord       `json:"active_risk_factors"`
	ProtectiveFactors  []ProtectiveFactorRecord `json:"protective_factors"`
	ActionPlan         ActionPlan               `json:"action_plan"`
	Escalation         EscalationRequirements   `json:"escalation_requirements"`
	Monitoring         MonitoringRequirements   `json:"monitoring_requirements"`
	NextAssessmentDate time.Time                `json:"next_assessment_date"`
	Signals            Signals                  `json:"-"`
}

// HasImmediateAction reports whether any active factor demands immediate action.
func (a *Assessment) HasImmediateAction() bool {
	for _, f := range a.ActiveRiskFactors {
		if f.ImmediateActionRequired {
			return true
		}
	}
	return false
}

// Score accumulates the weighted risk score. Numeric bands are mutually
// exclusive; keyword, behavioral and intervention signals add up.
func Score(s Signals) (raw, protective, final float64) {
	for _, c := range []Category{CategoryPrimary, CategoryWarning} {
		for _, hit := range s.Content[c] {
			raw += hit.Weight * float64(hit.Frequency)
		}
	}

	if s.MoodTrend.Count > 0 {
		switch {
		case s.MoodTrend.Average < 3:
			raw += 5
		case s.MoodTrend.Average < 4:
			raw += 3
		}
	}
	switch s.MoodTrend.Direction {
	case DirectionSeverelyDeclining:
		raw += 4
	case DirectionDeclining:
		raw += 2
	}

	if s.StressTrend.Count > 0 {
		switch {
		case s.StressTrend.Average >= 4.5:
			raw += 3
		case s.StressTrend.Average >= 4:
			raw += 2
		}
	}

	if s.Behavior.SocialWithdrawal {
		raw += 3
	}
	if s.Behavior.WorkPerformanceDecline {
		raw += 2
	}
	if s.Response.PoorResponse {
		raw += 2
	}
	if s.Response.Avoidance {
		raw += 1
	}

	for _, hit := range s.Content[CategoryProtective] {
		protective += math.Abs(hit.Weight) * float64(hit.Frequency)
	}
	final = round1(math.Max(0, raw-protective))
	return raw, protective, final
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
