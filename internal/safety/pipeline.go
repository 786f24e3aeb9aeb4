// Package safety wires assessment, level determination and escalation into the
// single flow run for new journal entries, manual reassessments and sweeps.
package safety

import (
	"context"
	"fmt"

	"github.com/wolfman30/wellbeing-safety-engine/internal/coordinator"
	"github.com/wolfman30/wellbeing-safety-engine/internal/escalation"
	"github.com/wolfman30/wellbeing-safety-engine/internal/risk"
	"github.com/wolfman30/wellbeing-safety-engine/internal/wellbeing"
	"github.com/wolfman30/wellbeing-safety-engine/pkg/logging"
)

// Assessor produces a risk assessment.
type Assessor interface {
	Assess(ctx context.Context, userID string, current *wellbeing.JournalEntry, windowDays int) (*risk.Assessment, error)
}

// LevelDeterminer validates and stores an escalation level.
type LevelDeterminer interface {
	DetermineLevel(ctx context.Context, in escalation.Input) (*escalation.Decision, error)
}

// Escalator runs the professional escalation protocol.
type Escalator interface {
	Escalate(ctx context.Context, userID string, a *risk.Assessment, level escalation.Level) (*coordinator.Result, error)
}

// Outcome is what one pipeline run did for a user.
type Outcome struct {
	Assessment *risk.Assessment    `json:"assessment"`
	Decision   *escalation.Decision `json:"decision"`
	Escalation *coordinator.Result  `json:"escalation,omitempty"`
}

// Escalated reports whether the escalation protocol ran to completion.
func (o *Outcome) Escalated() bool {
	return o != nil && o.Escalation != nil && o.Escalation.Success
}

// InterventionsDelivered counts actions the escalation scheduled.
func (o *Outcome) InterventionsDelivered() int {
	if o == nil || o.Escalation == nil {
		return 0
	}
	return o.Escalation.ActionsCompleted
}

// Pipeline runs assess, determine level, then escalate.
type Pipeline struct {
	assessor    Assessor
	levels      LevelDeterminer
	coordinator Escalator
	logger      *logging.Logger
}

func NewPipeline(assessor Assessor, levels LevelDeterminer, coord Escalator, logger *logging.Logger) *Pipeline {
	if logger == nil {
		logger = logging.Default()
	}
	return &Pipeline{assessor: assessor, levels: levels, coordinator: coord, logger: logger}
}

// Process escalates whenever the risk level is low or above. Assessment and
// level errors are fatal. An escalation error is returned together with the
// outcome so callers can see what already happened.
func (p *Pipeline) Process(ctx context.Context, userID string, current *wellbeing.JournalEntry, windowDays int) (*Outcome, error) {
	a, err := p.assessor.Assess(ctx, userID, current, windowDays)
	if err != nil {
		return nil, fmt.Errorf("safety: assess: %w", err)
	}
	d, err := p.levels.DetermineLevel(ctx, escalation.Input{UserID: userID, Assessment: a, Current: current})
	if err != nil {
		return nil, fmt.Errorf("safety: determine level: %w", err)
	}
	out := &Outcome{Assessment: a, Decision: d}

	if a.RiskLevel.Rank() < risk.LevelLow.Rank() {
		p.logger.Debug("no escalation required", "user_id", userID, "risk_level", a.RiskLevel)
		return out, nil
	}

	res, err := p.coordinator.Escalate(ctx, userID, a, d.Level)
	out.Escalation = res
	if err != nil {
		return out, fmt.Errorf("safety: escalate: %w", err)
	}
	return out, nil
}
