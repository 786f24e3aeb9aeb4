package escalation

import (
	"time"

	"github.com/wolfman30/wellbeing-safety-engine/internal/risk"
	"github.com/wolfman30/wellbeing-safety-engine/internal/wellbeing"
)

// TriggerKind names a condition that boosts the escalation level.
type TriggerKind string

const (
	TriggerDeterioratingTrend      TriggerKind = "deteriorating_trend"
	TriggerHighFrequencyDistress   TriggerKind = "high_frequency_distress"
	TriggerInterventionNonResponse TriggerKind = "intervention_non_response"
	TriggerCrisisIndicators        TriggerKind = "crisis_indicators"
)

var triggerBoosts = map[TriggerKind]int{
	TriggerDeterioratingTrend:      1,
	TriggerHighFrequencyDistress:   1,
	TriggerInterventionNonResponse: 1,
	TriggerCrisisIndicators:        3,
}

// Trigger is a transient, per-decision boost.
type Trigger struct {
	Kind     TriggerKind `json:"kind"`
	Severity string      `json:"severity"`
	Boost    int         `json:"escalation_boost"`
}

func newTrigger(kind TriggerKind, severity string) Trigger {
	return Trigger{Kind: kind, Severity: severity, Boost: triggerBoosts[kind]}
}

// DistressWindow bounds the high-frequency distress count.
const DistressWindow = 7 * 24 * time.Hour

const highFrequencyDistressCount = 3

// TriggerSignals is what trigger detection reads.
type TriggerSignals struct {
	MoodTrend        risk.Trend
	RecentEntries    []wellbeing.JournalEntry
	Response         risk.InterventionResponse
	CrisisIndicators bool
	Now              time.Time
}

// DetectTriggers returns the active triggers in a fixed order.
func DetectTriggers(s TriggerSignals) []Trigger {
	var out []Trigger
	switch s.MoodTrend.Direction {
	case risk.DirectionSeverelyDeclining:
		out = append(out, newTrigger(TriggerDeterioratingTrend, "high"))
	case risk.DirectionDeclining:
		out = append(out, newTrigger(TriggerDeterioratingTrend, "moderate"))
	}

	if n := distressCount(s.RecentEntries, s.Now); n >= highFrequencyDistressCount {
		severity := "moderate"
		if n >= 5 {
			severity = "high"
		}
		out = append(out, newTrigger(TriggerHighFrequencyDistress, severity))
	}

	if s.Response.PoorResponse || s.Response.Avoidance {
		severity := "moderate"
		if s.Response.PoorResponse && s.Response.Avoidance {
			severity = "high"
		}
		out = append(out, newTrigger(TriggerInterventionNonResponse, severity))
	}

	if s.CrisisIndicators {
		out = append(out, newTrigger(TriggerCrisisIndicators, "critical"))
	}
	return out
}

func distressCount(entries []wellbeing.JournalEntry, now time.Time) int {
	since := now.Add(-DistressWindow)
	n := 0
	for _, e := range entries {
		if e.Timestamp.Before(since) || e.Timestamp.After(now) {
			continue
		}
		stress, hasStress := e.Metric(wellbeing.MetricStress)
		mood, hasMood := e.Metric(wellbeing.MetricMood)
		if (hasStress && stress >= 4) || (hasMood && mood <= 3) {
			n++
		}
	}
	return n
}

// ApplyBoosts adds every trigger's boost to level, capped at crisis.
func ApplyBoosts(level Level, triggers []Trigger) Level {
	total := 0
	for _, t := range triggers {
		total += t.Boost
	}
	return clamp(level + Level(total))
}
