// Package monitoring sweeps the high-risk cohort and re-runs the safety
// pipeline for each user.
package monitoring

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/wellbeing-safety-engine/internal/observability/metrics"
	"github.com/wolfman30/wellbeing-safety-engine/internal/safety"
	"github.com/wolfman30/wellbeing-safety-engine/internal/wellbeing"
	"github.com/wolfman30/wellbeing-safety-engine/pkg/logging"
)

var tracer = otel.Tracer("wellbeing/monitoring")

const (
	// CohortWindow bounds how recent the qualifying delivery must be.
	CohortWindow = 7 * 24 * time.Hour
	// SweepWindowDays is the shortened assessment window used by sweeps.
	SweepWindowDays = 7
	// DefaultThreshold is the minimum crisis escalation level on the latest delivery.
	DefaultThreshold = 6
	// DefaultConcurrency bounds parallel user pipelines.
	DefaultConcurrency = 4
)

// Processor runs the safety pipeline for one user.
type Processor interface {
	Process(ctx context.Context, userID string, current *wellbeing.JournalEntry, windowDays int) (*safety.Outcome, error)
}

// Summary tallies one sweep.
type Summary struct {
	CohortSize             int           `json:"cohort_size"`
	AssessmentsCompleted   int           `json:"assessments_completed"`
	EscalationsTriggered   int           `json:"escalations_triggered"`
	InterventionsDelivered int           `json:"interventions_delivered"`
	Failures               int           `json:"failures"`
	StartedAt              time.Time     `json:"started_at"`
	Duration               time.Duration `json:"duration"`
}

// Loop is one sweep over the cohort. Users are independent, so they run in
// parallel up to the configured limit; one user's failure never stops the rest.
type Loop struct {
	deliveries  wellbeing.DeliveryStore
	pipeline    Processor
	concurrency int
	metrics     *metrics.SafetyMetrics
	logger      *logging.Logger
	now         func() time.Time
}

func NewLoop(deliveries wellbeing.DeliveryStore, pipeline Processor, logger *logging.Logger) *Loop {
	if logger == nil {
		logger = logging.Default()
	}
	return &Loop{
		deliveries:  deliveries,
		pipeline:    pipeline,
		concurrency: DefaultConcurrency,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (l *Loop) WithConcurrency(n int) *Loop {
	if n > 0 {
		l.concurrency = n
	}
	return l
}

func (l *Loop) WithMetrics(m *metrics.SafetyMetrics) *Loop {
	l.metrics = m
	return l
}

func (l *Loop) WithClock(now func() time.Time) *Loop {
	if now != nil {
		l.now = now
	}
	return l
}

// Run sweeps users whose latest delivery in the last week carries a crisis
// escalation level of at least threshold. Only a failed cohort query or a
// cancelled context is returned as an error.
func (l *Loop) Run(ctx context.Context, threshold int) (*Summary, error) {
	ctx, span := tracer.Start(ctx, "monitoring.sweep")
	defer span.End()

	start := l.now()
	summary := &Summary{StartedAt: start}

	cohort, err := l.deliveries.HighRiskUsers(ctx, start.Add(-CohortWindow), threshold)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("monitoring: cohort: %w", err)
	}
	summary.CohortSize = len(cohort)
	span.SetAttributes(attribute.Int("monitoring.cohort_size", len(cohort)), attribute.Int("monitoring.threshold", threshold))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)
	for _, userID := range cohort {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			out, err := l.pipeline.Process(gctx, userID, nil, SweepWindowDays)

			mu.Lock()
			defer mu.Unlock()
			if out != nil && out.Assessment != nil {
				summary.AssessmentsCompleted++
			}
			if out.Escalated() {
				summary.EscalationsTriggered++
			}
			summary.InterventionsDelivered += out.InterventionsDelivered()
			if err != nil {
				summary.Failures++
				l.logger.Warn("monitoring sweep user failed", "user_id", userID, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	summary.Duration = l.now().Sub(start)
	l.metrics.ObserveSweep(summary.CohortSize, summary.EscalationsTriggered, summary.Failures)
	l.logger.Info("monitoring sweep completed",
		"threshold", threshold,
		"cohort_size", summary.CohortSize,
		"assessments_completed", summary.AssessmentsCompleted,
		"escalations_triggered", summary.EscalationsTriggered,
		"interventions_delivered", summary.InterventionsDelivered,
		"failures", summary.Failures,
	)
	if err := ctx.Err(); err != nil {
		return summary, fmt.Errorf("monitoring: sweep interrupted: %w", err)
	}
	return summary, nil
}
