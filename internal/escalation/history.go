package escalation

import (
	"fmt"
	"time"

	"github.com/wolfman30/wellbeing-safety-engine/internal/wellbeing"
)

// HistoryWindow is how far back recent_max looks, and the rate-limit period.
const HistoryWindow = 7 * 24 * time.Hour

// FullResponseHelpfulness is the average helpfulness that earns de-escalation.
const (
	FullResponseHelpfulness    = 4.0
	PartialResponseHelpfulness = 2.5
)

// ResponseClass summarises how well recent interventions landed.
type ResponseClass string

const (
	ResponseFull    ResponseClass = "full"
	ResponsePartial ResponseClass = "partial"
	ResponsePoor    ResponseClass = "poor"
	ResponseUnknown ResponseClass = "unknown"
)

// ClassifyResponse averages helpfulness over rated, completed deliveries since
// the cutoff.
func ClassifyResponse(deliveries []wellbeing.Delivery, since time.Time) ResponseClass {
	sum, n := 0, 0
	for _, d := range deliveries {
		if !d.WasCompleted || d.PerceivedHelpfulness == nil || d.DeliveredAt.Before(since) {
			continue
		}
		sum += *d.PerceivedHelpfulness
		n++
	}
	if n == 0 {
		return ResponseUnknown
	}
	avg := float64(sum) / float64(n)
	switch {
	case avg >= FullResponseHelpfulness:
		return ResponseFull
	case avg >= PartialResponseHelpfulness:
		return ResponsePartial
	}
	return ResponsePoor
}

// Assignment is one persisted level decision.
type Assignment struct {
	Level Level
	At    time.Time
}

// History is what the state store knows about a user at transition time.
type History struct {
	Current *State
	// RecentMax is the highest level assigned in the last week.
	RecentMax Level
	HasRecent bool
	// Ceiling is the highest level reachable without crisis evidence. Zero
	// means no assignment constrains the user yet.
	Ceiling Level
}

// RateLimitLookback is how much history SummarizeHistory needs.
const RateLimitLookback = 2 * HistoryWindow

// SummarizeHistory derives recent_max and the rate-limit ceiling at instant at.
// The ceiling is one above the lowest weekly maximum seen at any point in the
// past week, so a run of calls cannot climb more than one level per week.
func SummarizeHistory(assignments []Assignment, at time.Time) History {
	var h History
	h.RecentMax, h.HasRecent = maxAssigned(assignments, at.Add(-HistoryWindow), at)

	lo := at.Add(-HistoryWindow)
	candidates := []time.Time{at, lo.Add(time.Nanosecond)}
	for _, a := range assignments {
		if a.At.After(lo) && !a.At.After(at) {
			candidates = append(candidates, a.At)
		}
		leaves := a.At.Add(HistoryWindow + time.Nanosecond)
		if leaves.After(lo) && !leaves.After(at) {
			candidates = append(candidates, leaves)
		}
	}

	found := false
	lowest := LevelNone
	for _, t := range candidates {
		m, ok := maxAssigned(assignments, t.Add(-HistoryWindow), t)
		if ok && (!found || m < lowest) {
			lowest, found = m, true
		}
	}
	if found {
		h.Ceiling = clamp(lowest + 1)
	}
	return h
}

func maxAssigned(assignments []Assignment, from, to time.Time) (Level, bool) {
	best, ok := LevelNone, false
	for _, a := range assignments {
		if a.At.Before(from) || a.At.After(to) || !a.Level.Valid() {
			continue
		}
		if !ok || a.Level > best {
			best, ok = a.Level, true
		}
	}
	return best, ok
}

// Validation is the outcome of checking a proposed level against history.
type Validation struct {
	Level       Level
	RateLimited bool
	Held        bool
	Reason      string
}

// Validate applies the weekly rate limit and de-escalation hysteresis.
// crisisEvidence allows a direct jump to crisis past the rate limit.
func Validate(proposed Level, h History, crisisEvidence bool, response ResponseClass) Validation {
	proposed = clamp(proposed)
	if !h.HasRecent && !h.Ceiling.Valid() {
		return Validation{Level: proposed, Reason: "initial placement"}
	}

	v := Validation{Level: proposed, Reason: "within weekly limit"}
	if h.Ceiling.Valid() && proposed > h.Ceiling {
		if proposed == LevelCrisis && crisisEvidence {
			v.Reason = "crisis override of weekly rate limit"
		} else {
			v.Level = h.Ceiling
			v.RateLimited = true
			v.Reason = fmt.Sprintf("rate limited from %s to %s", proposed, h.Ceiling)
		}
	}
	if h.HasRecent && v.Level < h.RecentMax {
		if response == ResponseFull {
			v.Reason = "de-escalated on full intervention response"
		} else {
			v.Level = h.RecentMax
			v.Held = true
			v.RateLimited = false
			v.Reason = fmt.Sprintf("held at %s on %s intervention response", h.RecentMax, response)
		}
	}
	return v
}
