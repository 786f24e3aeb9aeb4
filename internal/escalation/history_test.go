package escalation

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"github.com/wolfman30/wellbeing-safety-engine/internal/wellbeing"
)

var t0 = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

func hours(n int) time.Duration {
	return time.Duration(n) * time.Hour
}

func TestSummarizeHistory(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		h := SummarizeHistory(nil, t0)
		assert.False(t, h.HasRecent)
		assert.Equal(t, LevelNone, h.Ceiling)
	})

	t.Run("single recent assignment", func(t *testing.T) {
		h := SummarizeHistory([]Assignment{{LevelPreventive, t0.Add(-hours(48))}}, t0)
		assert.True(t, h.HasRecent)
		assert.Equal(t, LevelPreventive, h.RecentMax)
		assert.Equal(t, LevelResponsive, h.Ceiling)
	})

	t.Run("ceiling anchors on the lowest weekly max", func(t *testing.T) {
		h := SummarizeHistory([]Assignment{
			{LevelPreventive, t0.Add(-hours(100))},
			{LevelResponsive, t0.Add(-hours(50))},
		}, t0)
		assert.Equal(t, LevelResponsive, h.RecentMax)
		assert.Equal(t, LevelResponsive, h.Ceiling)
	})

	t.Run("assignment older than a week still bounds the next week", func(t *testing.T) {
		h := SummarizeHistory([]Assignment{{LevelPreventive, t0.Add(-hours(24 * 10))}}, t0)
		assert.False(t, h.HasRecent)
		assert.Equal(t, LevelResponsive, h.Ceiling)
	})

	t.Run("history older than two weeks is ignored", func(t *testing.T) {
		h := SummarizeHistory([]Assignment{{LevelIntensive, t0.Add(-hours(24 * 15))}}, t0)
		assert.False(t, h.HasRecent)
		assert.Equal(t, LevelNone, h.Ceiling)
	})
}

func TestValidate(t *testing.T) {
	recent := func(level Level) History {
		return SummarizeHistory([]Assignment{{level, t0.Add(-hours(24))}}, t0)
	}

	tests := []struct {
		name     string
		proposed Level
		history  History
		evidence bool
		response ResponseClass
		want     Level
		limited  bool
		held     bool
	}{
		{"no history places directly", LevelIntensive, History{}, false, ResponseUnknown, LevelIntensive, false, false},
		{"one step allowed", LevelResponsive, recent(LevelPreventive), false, ResponseUnknown, LevelResponsive, false, false},
		{"two steps clamped", LevelIntensive, recent(LevelPreventive), false, ResponseUnknown, LevelResponsive, true, false},
		{"crisis without evidence clamped", LevelCrisis, recent(LevelPreventive), false, ResponseUnknown, LevelResponsive, true, false},
		{"crisis with evidence passes", LevelCrisis, recent(LevelPreventive), true, ResponseUnknown, LevelCrisis, false, false},
		{"partial response holds", LevelPreventive, recent(LevelIntensive), false, ResponsePartial, LevelIntensive, false, true},
		{"poor response holds", LevelPreventive, recent(LevelIntensive), false, ResponsePoor, LevelIntensive, false, true},
		{"unknown response holds", LevelResponsive, recent(LevelIntensive), false, ResponseUnknown, LevelIntensive, false, true},
		{"full response de-escalates", LevelPreventive, recent(LevelIntensive), false, ResponseFull, LevelPreventive, false, false},
		{"same level", LevelResponsive, recent(LevelResponsive), false, ResponsePartial, LevelResponsive, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Validate(tt.proposed, tt.history, tt.evidence, tt.response)
			assert.Equal(t, tt.want, v.Level)
			assert.Equal(t, tt.limited, v.RateLimited)
			assert.Equal(t, tt.held, v.Held)
			assert.NotEmpty(t, v.Reason)
		})
	}
}

func TestValidateRateLimitClampsBaseLevel(t *testing.T) {
	h := SummarizeHistory([]Assignment{{LevelPreventive, t0.Add(-hours(30))}}, t0)

	assert.Equal(t, LevelResponsive, Validate(LevelResponsive, h, false, ResponseUnknown).Level)
	assert.Equal(t, LevelResponsive, Validate(LevelIntensive, h, false, ResponseUnknown).Level)
}

func TestClassifyResponse(t *testing.T) {
	since := t0.Add(-HistoryWindow)
	rated := func(ago time.Duration, completed bool, score int) wellbeing.Delivery {
		return wellbeing.Delivery{UserID: "u", DeliveredAt: t0.Add(-ago), WasCompleted: completed, PerceivedHelpfulness: wellbeing.IntPtr(score)}
	}

	assert.Equal(t, ResponseUnknown, ClassifyResponse(nil, since))
	assert.Equal(t, ResponseFull, ClassifyResponse([]wellbeing.Delivery{rated(hours(5), true, 4), rated(hours(6), true, 5)}, since))
	assert.Equal(t, ResponsePartial, ClassifyResponse([]wellbeing.Delivery{rated(hours(5), true, 3), rated(hours(6), true, 3)}, since))
	assert.Equal(t, ResponsePoor, ClassifyResponse([]wellbeing.Delivery{rated(hours(5), true, 1), rated(hours(6), true, 3)}, since))
	assert.Equal(t, ResponseUnknown, ClassifyResponse([]wellbeing.Delivery{rated(hours(5), false, 5)}, since))
	assert.Equal(t, ResponseUnknown, ClassifyResponse([]wellbeing.Delivery{rated(hours(24*8), true, 5)}, since))
}

func TestRateLimitHoldsAcrossAWeekOfCalls(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	properties.Property("no call within a week rises more than one level without crisis evidence", prop.ForAll(
		func(start int, proposals []int, gaps []int, response int) bool {
			l := Level(start)
			history := []Assignment{{l, t0}}
			classes := []ResponseClass{ResponseFull, ResponsePartial, ResponsePoor, ResponseUnknown}
			at := t0
			for i, p := range proposals {
				gap := 1
				if i < len(gaps) {
					gap = gaps[i]
				}
				at = at.Add(time.Duration(gap) * time.Minute)
				if at.Sub(t0) >= HistoryWindow {
					break
				}
				v := Validate(Level(p), SummarizeHistory(history, at), false, classes[response])
				if v.Level > l+1 {
					return false
				}
				history = append(history, Assignment{v.Level, at})
			}
			return true
		},
		gen.IntRange(1, 3),
		gen.SliceOf(gen.IntRange(1, 4)),
		gen.SliceOf(gen.IntRange(1, 3000)),
		gen.IntRange(0, 3),
	))

	properties.Property("crisis evidence is the only way past the ceiling", prop.ForAll(
		func(start int, proposed int, evidence bool) bool {
			h := SummarizeHistory([]Assignment{{Level(start), t0.Add(-time.Hour)}}, t0)
			v := Validate(Level(proposed), h, evidence, ResponseUnknown)
			if v.Level <= Level(start)+1 {
				return true
			}
			return proposed == int(LevelCrisis) && evidence
		},
		gen.IntRange(1, 3),
		gen.IntRange(1, 4),
		gen.Bool(),
	))

	properties.Property("partial response never flaps", prop.ForAll(
		func(recentLevel int, proposed int) bool {
			h := SummarizeHistory([]Assignment{{Level(recentLevel), t0.Add(-hours(2))}}, t0)
			first := Validate(Level(proposed), h, false, ResponsePartial)
			second := Validate(Level(proposed), h, false, ResponsePartial)
			return first == second && first.Level >= minLevel(Level(recentLevel), Level(proposed))
		},
		gen.IntRange(1, 4),
		gen.IntRange(1, 4),
	))

	properties.TestingRun(t)
}

func minLevel(a, b Level) Level {
	if a < b {
		return a
	}
	return b
}
