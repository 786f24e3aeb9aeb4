// Package coordinator carries out a professional escalation: consent check,
// immediate actions, sanitized notifications, follow-up monitoring and the
// compliance record.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/wellbeing-safety-engine/internal/compliance"
	"github.com/wolfman30/wellbeing-safety-engine/internal/escalation"
	"github.com/wolfman30/wellbeing-safety-engine/internal/notify"
	"github.com/wolfman30/wellbeing-safety-engine/internal/observability/metrics"
	"github.com/wolfman30/wellbeing-safety-engine/internal/risk"
	"github.com/wolfman30/wellbeing-safety-engine/internal/scheduler"
	"github.com/wolfman30/wellbeing-safety-engine/internal/wellbeing"
	"github.com/wolfman30/wellbeing-safety-engine/pkg/logging"
)

var tracer = otel.Tracer("wellbeing/coordinator")

// Refusal reasons.
const (
	ReasonPrivacyRestrictions  = "privacy_restrictions"
	ReasonNoEscalationRequired = "no_escalation_required"
	ReasonAuditFailed          = "audit_failed"
)

// ErrNoAuditor is returned by Escalate when no audit log is configured.
var ErrNoAuditor = errors.New("coordinator: no audit log configured")

// Outcome labels for metrics.
const (
	outcomeEscalated  = "escalated"
	outcomeRestricted = "privacy_restricted"
	outcomeNotNeeded  = "not_required"
	outcomeAuditFail  = "audit_failed"
)

// Notifier fans a sanitized payload out to recipients.
type Notifier interface {
	Dispatch(ctx context.Context, userID string, p notify.Payload, recipients []risk.RecipientKind) []notify.Delivery
}

// Auditor writes compliance records.
type Auditor interface {
	LogEscalation(ctx context.Context, userID, riskLevel string, escalationLevel int, score float64, at time.Time, details compliance.EscalationDetails) (string, error)
	LogPrivacyRefusal(ctx context.Context, userID, riskLevel string, score float64, at time.Time) error
}

// Result summarizes one escalation.
type Result struct {
	UserID                 string           `json:"user_id"`
	RiskLevel              risk.Level       `json:"risk_level"`
	EscalationLevel        escalation.Level `json:"escalation_level"`
	Success                bool             `json:"success"`
	Reason                 string           `json:"reason,omitempty"`
	ActionsCompleted       int              `json:"actions_completed"`
	ActionsFailed          int              `json:"actions_failed"`
	NotificationsSent      int              `json:"notifications_sent"`
	NotificationsFailed    int              `json:"notifications_failed"`
	NotificationsThrottled int              `json:"notifications_throttled"`
	MonitoringActive       bool             `json:"monitoring_active"`
	NextFollowUp           time.Time        `json:"next_follow_up,omitempty"`
	AuditID                string           `json:"audit_id,omitempty"`
}

// Coordinator executes escalation protocols.
type Coordinator struct {
	consents  wellbeing.ConsentStore
	scheduler scheduler.Scheduler
	notifier  Notifier
	audit     Auditor
	metrics   *metrics.SafetyMetrics
	logger    *logging.Logger
	now       func() time.Time
}

func New(consents wellbeing.ConsentStore, sched scheduler.Scheduler, notifier Notifier, audit Auditor, logger *logging.Logger) *Coordinator {
	if logger == nil {
		logger = logging.Default()
	}
	return &Coordinator{
		consents:  consents,
		scheduler: sched,
		notifier:  notifier,
		audit:     audit,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (c *Coordinator) WithMetrics(m *metrics.SafetyMetrics) *Coordinator {
	c.metrics = m
	return c
}

func (c *Coordinator) WithClock(now func() time.Time) *Coordinator {
	if now != nil {
		c.now = now
	}
	return c
}

// Escalate runs the protocol for the assessment's risk level. A privacy
// refusal is a result, not an error. Errors are returned for an unreadable
// consent store below crisis level and for a failed audit write; in the latter
// case the result still reports what was done.
func (c *Coordinator) Escalate(ctx context.Context, userID string, a *risk.Assessment, level escalation.Level) (*Result, error) {
	if strings.TrimSpace(userID) == "" || a == nil {
		return nil, fmt.Errorf("%w: coordinator: user id and assessment required", wellbeing.ErrInvalidInput)
	}
	ctx, span := tracer.Start(ctx, "coordinator.escalate", trace.WithAttributes(
		attribute.String("wellbeing.user_id", userID),
		attribute.String("risk.level", string(a.RiskLevel)),
		attribute.Int("escalation.level", int(level)),
	))
	defer span.End()

	now := c.now()
	res := &Result{UserID: userID, RiskLevel: a.RiskLevel, EscalationLevel: level}

	protocol, ok := risk.ProtocolFor(a.RiskLevel)
	if !ok {
		res.Reason = ReasonNoEscalationRequired
		c.metrics.ObserveEscalationOutcome(string(a.RiskLevel), outcomeNotNeeded)
		return res, nil
	}

	permitted, err := c.permitted(ctx, userID, a.RiskLevel)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if !permitted {
		res.Reason = ReasonPrivacyRestrictions
		if c.audit != nil {
			if err := c.audit.LogPrivacyRefusal(ctx, userID, string(a.RiskLevel), a.RiskScore, now); err != nil {
				c.logger.Error("privacy refusal audit failed", "user_id", userID, "error", err)
			}
		}
		c.metrics.ObserveEscalationOutcome(string(a.RiskLevel), outcomeRestricted)
		c.logger.Info("escalation refused by privacy settings", "user_id", userID, "risk_level", a.RiskLevel)
		return res, nil
	}

	actions := a.ActionPlan.ImmediateActions
	if len(actions) == 0 {
		actions = protocol.ImmediateActions
	}
	res.NextFollowUp = now.Add(protocol.FollowUpCadence)
	for _, action := range actions {
		ref, err := c.runAction(ctx, userID, action, a, level, protocol.FollowUpCadence, now)
		if err != nil {
			res.ActionsFailed++
			c.metrics.ObserveAction(string(action), "failed")
			c.logger.Warn("escalation action failed", "user_id", userID, "action", action, "error", err)
			continue
		}
		res.ActionsCompleted++
		c.metrics.ObserveAction(string(action), "completed")
		if ref == scheduler.InterventionSafetyCheckIn {
			// The monitoring check-in lands on the follow-up cadence and stands in for it.
			res.MonitoringActive = true
		}
	}

	if len(protocol.NotificationRecipients) > 0 && c.notifier != nil {
		deliveries := c.notifier.Dispatch(ctx, userID, notify.NewPayload(a, int(level), now), protocol.NotificationRecipients)
		for _, d := range deliveries {
			switch d.Status {
			case notify.StatusSent:
				res.NotificationsSent++
			case notify.StatusThrottled:
				res.NotificationsThrottled++
			default:
				res.NotificationsFailed++
			}
		}
	}

	if !res.MonitoringActive && c.scheduler != nil {
		_, err := c.scheduler.ScheduleDelivery(ctx, userID, scheduler.InterventionSafetyFollowUp, map[string]string{
			"risk_level":       string(a.RiskLevel),
			"escalation_level": strconv.Itoa(int(level)),
		}, res.NextFollowUp)
		if err != nil {
			c.logger.Warn("follow-up scheduling failed", "user_id", userID, "error", err)
		} else {
			res.MonitoringActive = true
		}
	}

	id, err := c.record(ctx, userID, a, level, res, now)
	if err != nil {
		res.Reason = ReasonAuditFailed
		span.RecordError(err)
		c.metrics.ObserveEscalationOutcome(string(a.RiskLevel), outcomeAuditFail)
		return res, fmt.Errorf("coordinator: audit record: %w", err)
	}
	res.AuditID = id
	res.Success = true

	c.metrics.ObserveEscalationOutcome(string(a.RiskLevel), outcomeEscalated)
	span.SetAttributes(
		attribute.Int("escalation.actions_completed", res.ActionsCompleted),
		attribute.Int("escalation.notifications_sent", res.NotificationsSent),
	)
	c.logger.Info("escalation completed",
		"user_id", userID,
		"risk_level", a.RiskLevel,
		"escalation_level", int(level),
		"actions_completed", res.ActionsCompleted,
		"actions_failed", res.ActionsFailed,
		"notifications_sent", res.NotificationsSent,
		"notifications_failed", res.NotificationsFailed,
		"monitoring_active", res.MonitoringActive,
	)
	return res, nil
}

// record writes the escalation's audit entry. An escalation without a record
// is not complete.
func (c *Coordinator) record(ctx context.Context, userID string, a *risk.Assessment, level escalation.Level, res *Result, now time.Time) (string, error) {
	if c.audit == nil {
		return "", ErrNoAuditor
	}
	return c.audit.LogEscalation(ctx, userID, string(a.RiskLevel), int(level), a.RiskScore, now, compliance.EscalationDetails{
		ActionsCompleted:    res.ActionsCompleted,
		ActionsFailed:       res.ActionsFailed,
		NotificationsSent:   res.NotificationsSent,
		NotificationsFailed: res.NotificationsFailed,
		MonitoringActive:    res.MonitoringActive,
		NextFollowUp:        res.NextFollowUp.Format(time.RFC3339),
		SanitizedSummary:    notify.Sanitize(a.ActiveRiskFactors),
	})
}

// permitted reads consent. A crisis never waits on the consent store.
func (c *Coordinator) permitted(ctx context.Context, userID string, level risk.Level) (bool, error) {
	if level == risk.LevelImmediateCrisis {
		return true, nil
	}
	if c.consents == nil {
		return false, nil
	}
	consent, err := c.consents.GetConsent(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("coordinator: consent lookup: %w", asUnavailable(err))
	}
	return PermitEscalation(consent, level), nil
}

// actionPlan maps an immediate action to the intervention it schedules and
// its delay.
func actionPlan(action risk.ActionKind, cadence time.Duration) (ref string, delay time.Duration, ok bool) {
	switch action {
	case risk.ActionDeliverCrisisResources:
		return scheduler.InterventionCrisisResources, 0, true
	case risk.ActionTriggerProfessionalConsultation:
		return scheduler.InterventionProfessionalConsultation, 0, true
	case risk.ActionInitiateSafetyMonitoring:
		return scheduler.InterventionSafetyCheckIn, cadence, true
	case risk.ActionIntensifyInterventions:
		return scheduler.InterventionIntensifiedSupport, 0, true
	case risk.ActionScheduleCheckIn:
		return scheduler.InterventionWellbeingCheckIn, 24 * time.Hour, true
	case risk.ActionDeliverPreventiveResources:
		return scheduler.InterventionPreventiveResources, 0, true
	}
	return "", 0, false
}

func (c *Coordinator) runAction(ctx context.Context, userID string, action risk.ActionKind, a *risk.Assessment, level escalation.Level, cadence time.Duration, now time.Time) (string, error) {
	ref, delay, ok := actionPlan(action, cadence)
	if !ok {
		return "", fmt.Errorf("%w: unknown action %q", wellbeing.ErrActionExecution, action)
	}
	if c.scheduler == nil {
		return "", fmt.Errorf("%w: %s: scheduler not configured", wellbeing.ErrActionExecution, action)
	}
	_, err := c.scheduler.ScheduleDelivery(ctx, userID, ref, map[string]string{
		"action":           string(action),
		"risk_level":       string(a.RiskLevel),
		"escalation_level": strconv.Itoa(int(level)),
	}, now.Add(delay))
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", wellbeing.ErrActionExecution, action, err)
	}
	return ref, nil
}

func asUnavailable(err error) error {
	if errors.Is(err, wellbeing.ErrDataUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", wellbeing.ErrDataUnavailable, err)
}
