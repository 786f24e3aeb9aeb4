// Package escalation maps a user's current state and recent history to one of
// four intervention-intensity levels. Level transitions are rate limited to one
// step per week and never de-escalate without a full response to interventions.
package escalation

import (
	"fmt"

	"github.com/wolfman30/wellbeing-safety-engine/internal/wellbeing"
)

// Level is an intervention-intensity tier.
type Level int

const (
	LevelNone       Level = 0
	LevelPreventive Level = 1
	LevelResponsive Level = 2
	LevelIntensive  Level = 3
	LevelCrisis     Level = 4
)

func (l Level) String() string {
	switch l {
	case LevelPreventive:
		return "preventive"
	case LevelResponsive:
		return "responsive"
	case LevelIntensive:
		return "intensive"
	case LevelCrisis:
		return "crisis"
	case LevelNone:
		return "none"
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// Valid reports whether l is one of the four assignable levels.
func (l Level) Valid() bool {
	return l >= LevelPreventive && l <= LevelCrisis
}

func clamp(l Level) Level {
	if l < LevelPreventive {
		return LevelPreventive
	}
	if l > LevelCrisis {
		return LevelCrisis
	}
	return l
}

// Range is an inclusive bound.
type Range struct {
	Min float64
	Max float64
}

func (r Range) contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Criteria describes the state a level is designed for.
type Criteria struct {
	Level                    Level
	Mood                     Range
	Stress                   Range
	Energy                   Range
	Urgency                  Range
	RequiresCrisisIndicators bool
}

// CriteriaTable is evaluated in ascending level order.
var CriteriaTable = []Criteria{
	{Level: LevelPreventive, Mood: Range{5, 10}, Stress: Range{1, 3}, Energy: Range{4, 10}, Urgency: Range{0, 3}},
	{Level: LevelResponsive, Mood: Range{3, 6}, Stress: Range{3, 4}, Energy: Range{3, 7}, Urgency: Range{2, 5}},
	{Level: LevelIntensive, Mood: Range{2, 4}, Stress: Range{4, 5}, Energy: Range{1, 5}, Urgency: Range{4, 7}},
	{Level: LevelCrisis, Mood: Range{1, 3}, Stress: Range{4, 5}, Energy: Range{1, 3}, Urgency: Range{6, 10}, RequiresCrisisIndicators: true},
}

// CurrentState is the snapshot the base level is matched against.
type CurrentState struct {
	Mood             *int
	Stress           *int
	Energy           *int
	Urgency          float64
	CrisisIndicators bool
}

// StateFromEntry builds a snapshot from a journal entry.
func StateFromEntry(e *wellbeing.JournalEntry, urgency float64, crisis bool) CurrentState {
	s := CurrentState{Urgency: urgency, CrisisIndicators: crisis}
	if e != nil {
		s.Mood, s.Stress, s.Energy = e.Mood, e.Stress, e.Energy
	}
	return s
}

func (c Criteria) matches(s CurrentState) bool {
	if c.RequiresCrisisIndicators && !s.CrisisIndicators {
		return false
	}
	if !metricIn(s.Mood, c.Mood) || !metricIn(s.Stress, c.Stress) || !metricIn(s.Energy, c.Energy) {
		return false
	}
	return c.Urgency.contains(s.Urgency)
}

// An unreported metric places no constraint on matching.
func metricIn(v *int, r Range) bool {
	return v == nil || r.contains(float64(*v))
}

// BaseLevel returns the first level, in ascending order, whose criteria the
// state satisfies. It falls back to preventive.
func BaseLevel(s CurrentState) Level {
	for _, c := range CriteriaTable {
		if c.matches(s) {
			return c.Level
		}
	}
	return LevelPreventive
}

// ApplyOverrides raises the base level for high urgency or crisis indicators.
// It never lowers the level.
func ApplyOverrides(base Level, s CurrentState) Level {
	floor := LevelNone
	switch {
	case s.Urgency >= 8 || s.CrisisIndicators:
		floor = LevelCrisis
	case s.Urgency >= 6:
		floor = LevelIntensive
	case s.Urgency >= 4:
		floor = LevelResponsive
	}
	if floor > base {
		return floor
	}
	return base
}
