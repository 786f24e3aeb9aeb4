// Package wellbeing holds the journal, intervention and consent records shared by
// the risk, escalation and monitoring services, plus the stores that load them.
package wellbeing

import (
	"fmt"
	"strings"
	"time"
)

// MetricKind names a self-reported wellbeing metric.
type MetricKind string

const (
	MetricMood   MetricKind = "mood"
	MetricStress MetricKind = "stress"
	MetricEnergy MetricKind = "energy"
)

// Metric scales. Mood and energy are 1-10, stress is 1-5.
const (
	MoodMin   = 1
	MoodMax   = 10
	StressMin = 1
	StressMax = 5
	EnergyMin = 1
	EnergyMax = 10
)

// JournalEntry is a single journal submission. Metrics are optional; a nil pointer
// means the user did not report it.
type JournalEntry struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
	Mood           *int      `json:"mood_rating,omitempty"`
	Stress         *int      `json:"stress_level,omitempty"`
	Energy         *int      `json:"energy_level,omitempty"`
	StressTriggers []string  `json:"stress_triggers,omitempty"`
}

// Metric returns the reported value for kind and whether it was present.
func (e JournalEntry) Metric(kind MetricKind) (int, bool) {
	var v *int
	switch kind {
	case MetricMood:
		v = e.Mood
	case MetricStress:
		v = e.Stress
	case MetricEnergy:
		v = e.Energy
	}
	if v == nil {
		return 0, false
	}
	return *v, true
}

// Validate rejects entries whose fields cannot be trusted for risk scoring.
func (e JournalEntry) Validate() error {
	if strings.TrimSpace(e.UserID) == "" {
		return fmt.Errorf("%w: entry %q has no user id", ErrInvalidInput, e.ID)
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("%w: entry %q has no timestamp", ErrInvalidInput, e.ID)
	}
	if err := checkRange(e.ID, MetricMood, e.Mood, MoodMin, MoodMax); err != nil {
		return err
	}
	if err := checkRange(e.ID, MetricStress, e.Stress, StressMin, StressMax); err != nil {
		return err
	}
	return checkRange(e.ID, MetricEnergy, e.Energy, EnergyMin, EnergyMax)
}

// OwnedBy returns a validated copy of e attributed to userID. An entry with no
// user id takes userID; one belonging to another user is rejected.
func (e JournalEntry) OwnedBy(userID string) (*JournalEntry, error) {
	if e.UserID == "" {
		e.UserID = userID
	} else if e.UserID != userID {
		return nil, fmt.Errorf("%w: entry %q belongs to another user", ErrInvalidInput, e.ID)
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return &e, nil
}

func checkRange(id string, kind MetricKind, v *int, lo, hi int) error {
	if v == nil {
		return nil
	}
	if *v < lo || *v > hi {
		return fmt.Errorf("%w: entry %q %s %d outside %d-%d", ErrInvalidInput, id, kind, *v, lo, hi)
	}
	return nil
}

// Delivery is a record of an intervention delivered to a user.
type Delivery struct {
	ID                    string    `json:"id"`
	UserID                string    `json:"user_id"`
	InterventionType      string    `json:"intervention_type"`
	DeliveredAt           time.Time `json:"delivered_at"`
	WasCompleted          bool      `json:"was_completed"`
	PerceivedHelpfulness  *int      `json:"perceived_helpfulness,omitempty"` // 1-5
	CrisisEscalationLevel int       `json:"crisis_escalation_level"`         // 0-10
}

// Consent captures what a user allowed the platform to share during escalation.
// A nil *Consent means the user never set a preference.
type Consent struct {
	CrisisInterventionConsent bool `json:"crisis_intervention_consent"`
	ManagerAccessConsent      bool `json:"manager_access_consent"`
}

// IntPtr is a helper for building entries with optional metrics.
func IntPtr(v int) *int { return &v }
