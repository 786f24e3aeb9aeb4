package risk

import (
	"math"
	"sort"

	"github.com/wolfman30/wellbeing-safety-engine/internal/wellbeing"
)

// Direction classifies how a wellbeing metric moved across the window.
type Direction string

const (
	DirectionImproving         Direction = "improving"
	DirectionStable            Direction = "stable"
	DirectionDeclining         Direction = "declining"
	DirectionSeverelyDeclining Direction = "severely_declining"
	DirectionInsufficientData  Direction = "insufficient_data"
)

// MinTrendPoints is the fewest data points that produce a direction.
const MinTrendPoints = 3

// Trend summarises one metric over the analysis window.
type Trend struct {
	Metric              wellbeing.MetricKind `json:"metric"`
	Direction           Direction            `json:"direction"`
	Average             float64              `json:"average"`
	Variability         float64              `json:"variability"`
	Concerning          bool                 `json:"concerning"`
	Count               int                  `json:"count"`
	HighStressFrequency int                  `json:"high_stress_frequency,omitempty"`
}

// Worsening reports a declining or severely declining direction.
func (t Trend) Worsening() bool {
	return t.Direction == DirectionDeclining || t.Direction == DirectionSeverelyDeclining
}

// SortChronological returns a copy of entries ordered oldest-first. All half-split
// analysis runs on this ordering.
func SortChronological(entries []wellbeing.JournalEntry) []wellbeing.JournalEntry {
	out := make([]wellbeing.JournalEntry, len(entries))
	copy(out, entries)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// AnalyzeTrend compares the earlier and later halves of the metric sequence.
// For stress a rise is reported as declining, so Direction always describes
// wellbeing rather than the raw number.
func AnalyzeTrend(entries []wellbeing.JournalEntry, kind wellbeing.MetricKind) Trend {
	var values []float64
	highStress := 0
	for _, e := range SortChronological(entries) {
		v, ok := e.Metric(kind)
		if !ok {
			continue
		}
		values = append(values, float64(v))
		if kind == wellbeing.MetricStress && v >= 4 {
			highStress++
		}
	}

	t := Trend{Metric: kind, Direction: DirectionInsufficientData, Count: len(values)}
	if kind == wellbeing.MetricStress {
		t.HighStressFrequency = highStress
	}
	if len(values) == 0 {
		return t
	}
	t.Average = mean(values)
	t.Variability = stddev(values, t.Average)
	if len(values) < MinTrendPoints {
		return t
	}

	half := len(values) / 2
	diff := mean(values[half:]) - mean(values[:half])
	if kind == wellbeing.MetricStress {
		diff = -diff
	}
	switch {
	case diff <= -2:
		t.Direction = DirectionSeverelyDeclining
	case diff <= -1:
		t.Direction = DirectionDeclining
	case diff >= 1:
		t.Direction = DirectionImproving
	default:
		t.Direction = DirectionStable
	}

	switch kind {
	case wellbeing.MetricMood:
		t.Concerning = t.Average < 4 && t.Worsening()
	case wellbeing.MetricStress:
		t.Concerning = t.Average >= 4 && t.HighStressFrequency >= 3
	}
	return t
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stddev is the population standard deviation.
func stddev(xs []float64, m float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sq := 0.0
	for _, x := range xs {
		sq += (x - m) * (x - m)
	}
	return math.Sqrt(sq / float64(len(xs)))
}
