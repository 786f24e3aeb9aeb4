package archive

import (
	"context"
	"encoding/json"
	"time"

	"github.com/wolfman30/wellbeing-safety-engine/internal/compliance"
	"github.com/wolfman30/wellbeing-safety-engine/pkg/logging"
)

// Auditor is the audit sink the coordinator writes to.
type Auditor interface {
	LogEscalation(ctx context.Context, userID, riskLevel string, escalationLevel int, score float64, at time.Time, details compliance.EscalationDetails) (string, error)
	LogPrivacyRefusal(ctx context.Context, userID, riskLevel string, score float64, at time.Time) error
}

// ArchivingAuditor forwards to the database audit log and then copies
// escalations to S3. Archive failures never fail the escalation.
type ArchivingAuditor struct {
	next   Auditor
	store  *Store
	logger *logging.Logger
}

func NewArchivingAuditor(next Auditor, store *Store, logger *logging.Logger) *ArchivingAuditor {
	if logger == nil {
		logger = logging.Default()
	}
	return &ArchivingAuditor{next: next, store: store, logger: logger}
}

func (a *ArchivingAuditor) LogEscalation(ctx context.Context, userID, riskLevel string, escalationLevel int, score float64, at time.Time, details compliance.EscalationDetails) (string, error) {
	id, err := a.next.LogEscalation(ctx, userID, riskLevel, escalationLevel, score, at, details)
	if err != nil {
		return id, err
	}
	raw, _ := json.Marshal(details)
	a.archive(ctx, Record{
		AuditID:         id,
		UserHash:        HashUserID(userID),
		RiskLevel:       riskLevel,
		EscalationLevel: escalationLevel,
		RiskScore:       score,
		Outcome:         string(compliance.EventEscalationInitiated),
		Details:         raw,
		OccurredAt:      at,
	})
	return id, nil
}

func (a *ArchivingAuditor) LogPrivacyRefusal(ctx context.Context, userID, riskLevel string, score float64, at time.Time) error {
	return a.next.LogPrivacyRefusal(ctx, userID, riskLevel, score, at)
}

func (a *ArchivingAuditor) archive(ctx context.Context, r Record) {
	if !a.store.Enabled() {
		return
	}
	if err := a.store.Put(ctx, r); err != nil {
		a.logger.Warn("failed to archive escalation", "error", err, "audit_id", r.AuditID)
	}
}
