package escalation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/wellbeing-safety-engine/internal/observability/metrics"
	"github.com/wolfman30/wellbeing-safety-engine/internal/risk"
	"github.com/wolfman30/wellbeing-safety-engine/internal/wellbeing"
	"github.com/wolfman30/wellbeing-safety-engine/pkg/logging"
)

// Input is one level determination request.
type Input struct {
	UserID     string
	Assessment *risk.Assessment
	// Current is the entry that prompted the decision. When nil the latest
	// entry of the last week stands in for the user's current state.
	Current *wellbeing.JournalEntry
}

// Decision is the validated escalation level plus how it was reached.
type Decision struct {
	UserID           string    `json:"user_id"`
	Level            Level     `json:"level"`
	BaseLevel        Level     `json:"base_level"`
	ProposedLevel    Level     `json:"proposed_level"`
	PreviousMax      Level     `json:"previous_max"`
	Urgency          float64   `json:"urgency_score"`
	CrisisIndicators bool      `json:"crisis_indicators"`
	Triggers         []Trigger `json:"triggers_active"`
	RateLimited      bool      `json:"rate_limited"`
	HeldForResponse  bool      `json:"held_for_response"`
	Rationale        []string  `json:"rationale"`
	DecidedAt        time.Time `json:"decided_at"`
}

// TriggerKinds lists the active trigger kinds.
func (d *Decision) TriggerKinds() []TriggerKind {
	out := make([]TriggerKind, 0, len(d.Triggers))
	for _, t := range d.Triggers {
		out = append(out, t.Kind)
	}
	return out
}

// Calculator determines and persists escalation levels.
type Calculator struct {
	entries    wellbeing.EntryStore
	deliveries wellbeing.DeliveryStore
	states     StateStore
	analyzer   *risk.ContentAnalyzer
	metrics    *metrics.SafetyMetrics
	logger     *logging.Logger
	now        func() time.Time
}

func NewCalculator(entries wellbeing.EntryStore, deliveries wellbeing.DeliveryStore, states StateStore, analyzer *risk.ContentAnalyzer, logger *logging.Logger) *Calculator {
	if analyzer == nil {
		analyzer = risk.NewContentAnalyzer(nil)
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Calculator{
		entries:    entries,
		deliveries: deliveries,
		states:     states,
		analyzer:   analyzer,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (c *Calculator) WithMetrics(m *metrics.SafetyMetrics) *Calculator {
	c.metrics = m
	return c
}

func (c *Calculator) WithClock(now func() time.Time) *Calculator {
	if now != nil {
		c.now = now
	}
	return c
}

// DetermineLevel computes the base level, overrides and trigger boosts, then
// validates the proposal against the user's last week inside one state
// transition. Identical inputs and history yield the same level.
func (c *Calculator) DetermineLevel(ctx context.Context, in Input) (*Decision, error) {
	if strings.TrimSpace(in.UserID) == "" {
		return nil, fmt.Errorf("%w: escalation: missing user id", wellbeing.ErrInvalidInput)
	}
	if in.Assessment == nil {
		return nil, fmt.Errorf("%w: escalation: missing assessment", wellbeing.ErrInvalidInput)
	}
	if c.states == nil || c.entries == nil || c.deliveries == nil {
		return nil, fmt.Errorf("%w: escalation: stores not configured", wellbeing.ErrDataUnavailable)
	}

	now := c.now()
	since := now.Add(-HistoryWindow)
	recent, err := c.entries.FetchEntries(ctx, in.UserID, since, now)
	if err != nil {
		return nil, storeErr("fetch entries", err)
	}
	deliveries, err := c.deliveries.FetchDeliveries(ctx, in.UserID, since)
	if err != nil {
		return nil, storeErr("fetch deliveries", err)
	}
	recent = risk.SortChronological(recent)

	current := in.Current
	if current != nil {
		if current, err = current.OwnedBy(in.UserID); err != nil {
			return nil, err
		}
		if !containsID(recent, current.ID) {
			recent = append(recent, *current)
		}
	} else if len(recent) > 0 {
		latest := recent[len(recent)-1]
		current = &latest
	}

	urgency, crisis := 0.0, false
	if current != nil {
		analysis := c.analyzer.Analyze(nil, current)
		urgency = risk.UrgencyScore(*current, analysis)
		crisis = analysis.HasImmediateAction()
	}
	state := StateFromEntry(current, urgency, crisis)

	base := BaseLevel(state)
	overridden := ApplyOverrides(base, state)
	triggers := DetectTriggers(TriggerSignals{
		MoodTrend:        in.Assessment.Signals.MoodTrend,
		RecentEntries:    recent,
		Response:         in.Assessment.Signals.Response,
		CrisisIndicators: crisis,
		Now:              now,
	})
	proposed := ApplyBoosts(overridden, triggers)

	evidence := crisis || in.Assessment.HasImmediateAction() || in.Assessment.RiskScore >= risk.CrisisScore
	response := ClassifyResponse(deliveries, since)

	var v Validation
	var seen History
	st, err := c.states.Transition(ctx, in.UserID, now, func(h History) Level {
		seen = h
		v = Validate(proposed, h, evidence, response)
		return v.Level
	})
	if err != nil {
		return nil, fmt.Errorf("escalation: transition: %w", err)
	}

	d := &Decision{
		UserID:           in.UserID,
		Level:            st.CurrentLevel,
		BaseLevel:        base,
		ProposedLevel:    proposed,
		PreviousMax:      seen.RecentMax,
		Urgency:          urgency,
		CrisisIndicators: crisis,
		Triggers:         triggers,
		RateLimited:      v.RateLimited,
		HeldForResponse:  v.Held,
		DecidedAt:        now,
	}
	d.Rationale = rationale(base, overridden, triggers, v)

	c.metrics.ObserveEscalationDecision(int(d.Level), d.RateLimited)
	c.logger.Info("escalation level determined",
		"user_id", in.UserID,
		"level", d.Level.String(),
		"proposed_level", proposed.String(),
		"previous_max", seen.RecentMax.String(),
		"trigger_count", len(triggers),
		"rate_limited", d.RateLimited,
		"held", d.HeldForResponse,
	)
	return d, nil
}

func rationale(base, overridden Level, triggers []Trigger, v Validation) []string {
	out := []string{fmt.Sprintf("base level %s from current state", base)}
	if overridden != base {
		out = append(out, fmt.Sprintf("raised to %s by urgency or crisis indicators", overridden))
	}
	for _, t := range triggers {
		out = append(out, fmt.Sprintf("%s trigger (+%d)", t.Kind, t.Boost))
	}
	return append(out, v.Reason)
}

func containsID(entries []wellbeing.JournalEntry, id string) bool {
	if id == "" {
		return false
	}
	for _, e := range entries {
		if e.ID == id {
			return true
		}
	}
	return false
}

func storeErr(op string, err error) error {
	if errors.Is(err, wellbeing.ErrDataUnavailable) {
		return fmt.Errorf("escalation: %s: %w", op, err)
	}
	return fmt.Errorf("%w: escalation: %s: %v", wellbeing.ErrDataUnavailable, op, err)
}
