package risk

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/wellbeing-safety-engine/internal/observability/metrics"
	"github.com/wolfman30/wellbeing-safety-engine/internal/wellbeing"
	"github.com/wolfman30/wellbeing-safety-engine/pkg/logging"
)

var riskTracer = otel.Tracer("wellbeing/risk")

// DefaultWindowDays is the standard analysis window.
const DefaultWindowDays = 14

var behavioralWeights = map[string]float64{
	"social_withdrawal":        3,
	"work_performance_decline": 2,
}

var mitigationByCategory = map[FactorCategory]string{
	FactorPrimary:    "connect user with crisis resources and a licensed professional",
	FactorWarning:    "address early warning signs through targeted check-ins",
	FactorBehavioral: "re-engage user with routine and social connection",
}

// Engine produces crisis risk assessments. It fails safe: store or input errors
// are returned, never replaced by a low default score.
type Engine struct {
	entries    wellbeing.EntryStore
	deliveries wellbeing.DeliveryStore
	analyzer   *ContentAnalyzer
	metrics    *metrics.SafetyMetrics
	logger     *logging.Logger
	now        func() time.Time
}

// NewEngine creates an assessment engine.
func NewEngine(entries wellbeing.EntryStore, deliveries wellbeing.DeliveryStore, table *FactorTable, logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{
		entries:    entries,
		deliveries: deliveries,
		analyzer:   NewContentAnalyzer(table),
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithMetrics attaches Prometheus metrics.
func (e *Engine) WithMetrics(m *metrics.SafetyMetrics) *Engine {
	e.metrics = m
	return e
}

// WithClock overrides the time source.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	if now != nil {
		e.now = now
	}
	return e
}

// Analyzer exposes the content analyzer for per-entry urgency scoring.
func (e *Engine) Analyzer() *ContentAnalyzer {
	return e.analyzer
}

// Assess builds a fresh assessment for the user over the last windowDays,
// including current when it is not yet stored.
func (e *Engine) Assess(ctx context.Context, userID string, current *wellbeing.JournalEntry, windowDays int) (*Assessment, error) {
	ctx, span := riskTracer.Start(ctx, "risk.assess")
	defer span.End()
	span.SetAttributes(attribute.String("wellbeing.user_id", userID))
	start := time.Now()

	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	now := e.now()
	since := now.AddDate(0, 0, -windowDays)

	entries, deliveries, err := e.load(ctx, userID, since, now)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if current != nil {
		if current, err = current.OwnedBy(userID); err != nil {
			span.RecordError(err)
			return nil, err
		}
		if !containsEntry(entries, current) {
			entries = append(entries, *current)
		}
	}
	for _, entry := range entries {
		if err := entry.Validate(); err != nil {
			return nil, err
		}
	}
	entries = SortChronological(entries)

	signals := Signals{
		Content:     e.analyzer.Analyze(entries, nil),
		MoodTrend:   AnalyzeTrend(entries, wellbeing.MetricMood),
		StressTrend: AnalyzeTrend(entries, wellbeing.MetricStress),
		Behavior:    DetectBehavioralChanges(entries, since, now),
		Response:    AnalyzeInterventionResponse(deliveries),
	}
	a := build(userID, now, signals)

	span.SetAttributes(
		attribute.String("risk.level", string(a.RiskLevel)),
		attribute.Float64("risk.score", a.RiskScore),
	)
	e.metrics.ObserveAssessment(string(a.RiskLevel), time.Since(start).Seconds())
	e.logger.Info("risk assessment completed",
		"user_id", userID,
		"risk_level", a.RiskLevel,
		"risk_score", a.RiskScore,
		"active_factor_count", len(a.ActiveRiskFactors),
		"protective_factor_count", len(a.ProtectiveFactors),
		"entries", len(entries),
	)
	return a, nil
}

func (e *Engine) load(ctx context.Context, userID string, since, until time.Time) ([]wellbeing.JournalEntry, []wellbeing.Delivery, error) {
	if e.entries == nil || e.deliveries == nil {
		return nil, nil, fmt.Errorf("%w: risk: stores not configured", wellbeing.ErrDataUnavailable)
	}
	entries, err := e.entries.FetchEntries(ctx, userID, since, until)
	if err != nil {
		return nil, nil, asUnavailable("fetch entries", err)
	}
	deliveries, err := e.deliveries.FetchDeliveries(ctx, userID, since)
	if err != nil {
		return nil, nil, asUnavailable("fetch deliveries", err)
	}
	return entries, deliveries, nil
}

func asUnavailable(op string, err error) error {
	if errors.Is(err, wellbeing.ErrDataUnavailable) || errors.Is(err, wellbeing.ErrInvalidInput) {
		return fmt.Errorf("risk: %s: %w", op, err)
	}
	return fmt.Errorf("risk: %s: %w: %v", op, wellbeing.ErrDataUnavailable, err)
}

// Build assembles an assessment from already collected signals.
func Build(userID string, at time.Time, s Signals) *Assessment {
	return build(userID, at, s)
}

func build(userID string, at time.Time, s Signals) *Assessment {
	raw, protective, final := Score(s)
	factors := riskFactors(s)
	protectives := protectiveFactors(s.Content)

	immediate := false
	for _, f := range factors {
		if f.ImmediateActionRequired {
			immediate = true
			break
		}
	}
	level := LevelFor(final, immediate)
	cadence := FollowUpCadence(level)

	a := &Assessment{
		UserID:            userID,
		Timestamp:         at,
		RawScore:          raw,
		ProtectiveScore:   protective,
		RiskScore:         final,
		RiskLevel:         level,
		ActiveRiskFactors: factors,
		ProtectiveFactors: protectives,
		Escalation: EscalationRequirements{
			EscalationNeeded:                 level == LevelImmediateCrisis || level == LevelElevated,
			ProfessionalConsultationRequired: final >= ProfessionalScore,
			EmergencyServicesConsideration:   final >= EmergencyScore,
		},
		Monitoring:         monitoringFor(level, cadence),
		NextAssessmentDate: at.Add(cadence),
		Signals:            s,
	}
	a.ActionPlan = actionPlan(level, factors, protectives, s)
	return a
}

func riskFactors(s Signals) []RiskFactorRecord {
	var out []RiskFactorRecord
	for _, pair := range []struct {
		c   Category
		cat FactorCategory
	}{{CategoryPrimary, FactorPrimary}, {CategoryWarning, FactorWarning}} {
		hits := s.Content[pair.c]
		for _, name := range sortedKeys(hits) {
			hit := hits[name]
			out = append(out, RiskFactorRecord{
				Name:                    name,
				Category:                pair.cat,
				Weight:                  hit.Weight,
				Frequency:               hit.Frequency,
				ImmediateActionRequired: hit.ImmediateAction,
			})
		}
	}
	if s.Behavior.SocialWithdrawal {
		out = append(out, RiskFactorRecord{Name: "social_withdrawal", Category: FactorBehavioral, Weight: behavioralWeights["social_withdrawal"], Frequency: 1})
	}
	if s.Behavior.WorkPerformanceDecline {
		out = append(out, RiskFactorRecord{Name: "work_performance_decline", Category: FactorBehavioral, Weight: behavioralWeights["work_performance_decline"], Frequency: 1})
	}
	return out
}

func protectiveFactors(c ContentAnalysis) []ProtectiveFactorRecord {
	hits := c[CategoryProtective]
	out := make([]ProtectiveFactorRecord, 0, len(hits))
	for _, name := range sortedKeys(hits) {
		strength := hits[name].Frequency
		out = append(out, ProtectiveFactorRecord{
			Name:                name,
			Strength:            strength,
			StrengtheningTarget: strength < 2,
		})
	}
	return out
}

func actionPlan(level Level, factors []RiskFactorRecord, protectives []ProtectiveFactorRecord, s Signals) ActionPlan {
	p, _ := ProtocolFor(level)
	plan := ActionPlan{
		ImmediateActions:     p.ImmediateActions,
		ResponseTime:         p.ResponseTime,
		FollowUpRequirements: p.FollowUpRequirements,
	}

	seen := make(map[FactorCategory]bool)
	for _, f := range factors {
		if seen[f.Category] {
			continue
		}
		seen[f.Category] = true
		plan.RiskMitigation = append(plan.RiskMitigation, mitigationByCategory[f.Category])
	}
	if s.MoodTrend.Concerning {
		plan.RiskMitigation = append(plan.RiskMitigation, "track mood trajectory daily")
	}
	if s.StressTrend.Concerning {
		plan.RiskMitigation = append(plan.RiskMitigation, "offer stress reduction support")
	}
	if s.Response.PoorResponse || s.Response.Avoidance {
		plan.RiskMitigation = append(plan.RiskMitigation, "review intervention fit with the user")
	}

	for _, pf := range protectives {
		if pf.StrengtheningTarget {
			plan.ProtectiveStrengthening = append(plan.ProtectiveStrengthening, "reinforce "+pf.Name)
		}
	}
	if len(protectives) == 0 && level != LevelMinimal {
		plan.ProtectiveStrengthening = append(plan.ProtectiveStrengthening, "build social support and coping skills")
	}
	return plan
}

func monitoringFor(level Level, cadence time.Duration) MonitoringRequirements {
	m := MonitoringRequirements{Frequency: cadence}
	switch level {
	case LevelImmediateCrisis, LevelElevated:
		m.DurationDays = 14
		m.CheckInRequired = true
	case LevelModerate:
		m.DurationDays = 7
		m.CheckInRequired = true
	case LevelLow:
		m.DurationDays = 7
	}
	return m
}
