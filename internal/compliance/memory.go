package compliance

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryAuditLog keeps audit events in process. It backs deployments without a
// database so escalations still leave a record; records do not survive a
// restart.
type MemoryAuditLog struct {
	mu     sync.Mutex
	events []AuditEvent
	now    func() time.Time

	// Err, when set, fails every write.
	Err error
}

func NewMemoryAuditLog() *MemoryAuditLog {
	return &MemoryAuditLog{now: time.Now}
}

func (m *MemoryAuditLog) LogEvent(ctx context.Context, event AuditEvent) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return "", m.Err
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = m.now().UTC()
	}
	if len(event.Details) == 0 {
		event.Details = json.RawMessage(`{}`)
	}
	m.events = append(m.events, event)
	return event.ID, nil
}

func (m *MemoryAuditLog) LogEscalation(ctx context.Context, userID, riskLevel string, escalationLevel int, score float64, at time.Time, details EscalationDetails) (string, error) {
	event, err := escalationEvent(userID, riskLevel, escalationLevel, score, at, details)
	if err != nil {
		return "", err
	}
	return m.LogEvent(ctx, event)
}

func (m *MemoryAuditLog) LogPrivacyRefusal(ctx context.Context, userID, riskLevel string, score float64, at time.Time) error {
	_, err := m.LogEvent(ctx, privacyRefusalEvent(userID, riskLevel, score, at))
	return err
}

// DueForReview mirrors AuditService.DueForReview.
func (m *MemoryAuditLog) DueForReview(_ context.Context, asOf time.Time, limit int) ([]AuditReview, error) {
	if limit <= 0 {
		limit = 100
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []AuditReview
	for _, e := range m.events {
		if e.EventType != EventEscalationInitiated || e.ReviewDate == nil || e.ReviewDate.After(asOf) {
			continue
		}
		out = append(out, AuditReview{ID: e.ID, UserID: e.UserID, EscalationLevel: e.EscalationLevel, ReviewDate: *e.ReviewDate})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ReviewDate.Before(out[j].ReviewDate) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Events returns a copy of everything logged for userID, oldest first.
func (m *MemoryAuditLog) Events(userID string) []AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []AuditEvent
	for _, e := range m.events {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out
}
