package risk

import (
	"math"

	"github.com/wolfman30/wellbeing-safety-engine/internal/wellbeing"
)

// MaxUrgency caps the per-entry urgency score.
const MaxUrgency = 10.0

// UrgencyScore rates a single entry 0-10 from its metrics and keyword hits.
// analysis must cover only that entry.
func UrgencyScore(entry wellbeing.JournalEntry, analysis ContentAnalysis) float64 {
	score := 0.0
	if v, ok := entry.Metric(wellbeing.MetricStress); ok {
		switch {
		case v >= 5:
			score += 3
		case v >= 4:
			score += 2
		}
	}
	if v, ok := entry.Metric(wellbeing.MetricMood); ok {
		switch {
		case v <= 2:
			score += 3
		case v <= 4:
			score += 2
		}
	}
	if v, ok := entry.Metric(wellbeing.MetricEnergy); ok && v <= 2 {
		score++
	}
	for _, hit := range analysis[CategoryPrimary] {
		if hit.ImmediateAction {
			score += 3 * float64(hit.Frequency)
		}
	}
	score += float64(analysis.Hits(CategoryWarning))
	return math.Min(score, MaxUrgency)
}
