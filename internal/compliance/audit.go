// Package compliance records escalation decisions for regulatory traceability.
package compliance

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// AuditEventType represents the type of compliance event.
type AuditEventType string

const (
	// EventEscalationInitiated is logged for every escalation that passed the privacy gate.
	EventEscalationInitiated AuditEventType = "escalation.initiated"
	// EventPrivacyRefusal is logged when consent blocked an escalation.
	EventPrivacyRefusal AuditEventType = "escalation.privacy_refusal"
	// EventManualReassessment is logged when an operator triggers a reassessment.
	EventManualReassessment AuditEventType = "escalation.manual_reassessment"
)

// ReviewPeriod is how long after an escalation its record must be reviewed.
const ReviewPeriod = 7 * 24 * time.Hour

// AuditEvent is an immutable escalation audit record. Details must only hold
// sanitized aggregates.
type AuditEvent struct {
	ID              string          `json:"id"`
	EventType       AuditEventType  `json:"event_type"`
	UserID          string          `json:"user_id"`
	RiskLevel       string          `json:"risk_level,omitempty"`
	EscalationLevel int             `json:"escalation_level,omitempty"`
	RiskScore       float64         `json:"risk_score"`
	Protocol        string          `json:"protocol,omitempty"`
	Details         json.RawMessage `json:"details,omitempty"`
	ReviewDate      *time.Time      `json:"review_date,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// EscalationDetails is the details document of an initiated escalation.
type EscalationDetails struct {
	ActionsCompleted    int    `json:"actions_completed"`
	ActionsFailed       int    `json:"actions_failed"`
	NotificationsSent   int    `json:"notifications_sent"`
	NotificationsFailed int    `json:"notifications_failed"`
	MonitoringActive    bool   `json:"monitoring_active"`
	NextFollowUp        string `json:"next_follow_up,omitempty"`
	SanitizedSummary    any    `json:"risk_summary,omitempty"`
}

// AuditService handles compliance audit logging.
type AuditService struct {
	db  *sql.DB
	now func() time.Time
}

// NewAuditService creates a new audit service.
func NewAuditService(db *sql.DB) *AuditService {
	return &AuditService{db: db, now: time.Now}
}

// LogEvent records an audit event and returns its ID.
func (s *AuditService) LogEvent(ctx context.Context, event AuditEvent) (string, error) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = s.now().UTC()
	}
	if len(event.Details) == 0 {
		event.Details = json.RawMessage(`{}`)
	}

	query := `
		INSERT INTO escalation_audit_records (
			id, event_type, user_id, risk_level, escalation_level,
			risk_score, protocol, details, review_date, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.EventType,
		event.UserID,
		nullString(event.RiskLevel),
		nullInt(event.EscalationLevel),
		event.RiskScore,
		nullString(event.Protocol),
		[]byte(event.Details),
		nullTime(event.ReviewDate),
		event.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("compliance: failed to log audit event: %w", err)
	}
	return event.ID, nil
}

// LogEscalation records an initiated escalation with a review date one
// ReviewPeriod after at.
func (s *AuditService) LogEscalation(ctx context.Context, userID, riskLevel string, escalationLevel int, score float64, at time.Time, details EscalationDetails) (string, error) {
	event, err := escalationEvent(userID, riskLevel, escalationLevel, score, at, details)
	if err != nil {
		return "", err
	}
	return s.LogEvent(ctx, event)
}

// LogPrivacyRefusal records that consent blocked an escalation.
func (s *AuditService) LogPrivacyRefusal(ctx context.Context, userID, riskLevel string, score float64, at time.Time) error {
	_, err := s.LogEvent(ctx, privacyRefusalEvent(userID, riskLevel, score, at))
	return err
}

func escalationEvent(userID, riskLevel string, escalationLevel int, score float64, at time.Time, details EscalationDetails) (AuditEvent, error) {
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return AuditEvent{}, fmt.Errorf("compliance: marshal details: %w", err)
	}
	review := at.Add(ReviewPeriod).UTC()
	return AuditEvent{
		EventType:       EventEscalationInitiated,
		UserID:          userID,
		RiskLevel:       riskLevel,
		EscalationLevel: escalationLevel,
		RiskScore:       score,
		Protocol:        riskLevel,
		Details:         detailsJSON,
		ReviewDate:      &review,
		CreatedAt:       at.UTC(),
	}, nil
}

func privacyRefusalEvent(userID, riskLevel string, score float64, at time.Time) AuditEvent {
	return AuditEvent{
		EventType: EventPrivacyRefusal,
		UserID:    userID,
		RiskLevel: riskLevel,
		RiskScore: score,
		Details:   json.RawMessage(`{"reason":"privacy_restrictions"}`),
		CreatedAt: at.UTC(),
	}
}

// QueryEvents retrieves audit events with filters.
func (s *AuditService) QueryEvents(ctx context.Context, filter AuditFilter) ([]AuditEvent, error) {
	query := `
		SELECT id, event_type, user_id, risk_level, escalation_level,
			   risk_score, protocol, details, review_date, created_at
		FROM escalation_audit_records
		WHERE user_id = $1
	`
	args := []interface{}{filter.UserID}
	argIdx := 2

	if filter.EventType != "" {
		query += fmt.Sprintf(" AND event_type = $%d", argIdx)
		args = append(args, filter.EventType)
		argIdx++
	}
	if len(filter.EventTypes) > 0 {
		types := make([]string, len(filter.EventTypes))
		for i, t := range filter.EventTypes {
			types[i] = string(t)
		}
		query += fmt.Sprintf(" AND event_type = ANY($%d)", argIdx)
		args = append(args, pq.Array(types))
		argIdx++
	}
	if !filter.StartTime.IsZero() {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, filter.StartTime)
		argIdx++
	}
	if !filter.EndTime.IsZero() {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, filter.EndTime)
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("compliance: failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []AuditEvent
	for rows.Next() {
		var e AuditEvent
		var riskLevel, protocol sql.NullString
		var level sql.NullInt64
		var review sql.NullTime
		var details []byte
		if err := rows.Scan(
			&e.ID, &e.EventType, &e.UserID, &riskLevel, &level,
			&e.RiskScore, &protocol, &details, &review, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("compliance: failed to scan audit event: %w", err)
		}
		e.RiskLevel = riskLevel.String
		e.EscalationLevel = int(level.Int64)
		e.Protocol = protocol.String
		e.Details = append(json.RawMessage(nil), details...)
		if review.Valid {
			t := review.Time
			e.ReviewDate = &t
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("compliance: failed to iterate audit events: %w", err)
	}
	return events, nil
}

// AuditFilter specifies criteria for querying audit events.
type AuditFilter struct {
	UserID     string
	EventType  AuditEventType
	EventTypes []AuditEventType
	StartTime  time.Time
	EndTime    time.Time
	Limit      int
}

// DueForReview lists escalation records whose review date has passed.
func (s *AuditService) DueForReview(ctx context.Context, asOf time.Time, limit int) ([]AuditReview, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, escalation_level, review_date
		FROM escalation_audit_records
		WHERE event_type = ANY($1) AND review_date IS NOT NULL AND review_date <= $2
		ORDER BY review_date ASC
		LIMIT $3
	`, pq.Array([]string{string(EventEscalationInitiated)}), asOf, limit)
	if err != nil {
		return nil, fmt.Errorf("compliance: failed to query due reviews: %w", err)
	}
	defer rows.Close()

	var out []AuditReview
	for rows.Next() {
		var r AuditReview
		var level sql.NullInt64
		if err := rows.Scan(&r.ID, &r.UserID, &level, &r.ReviewDate); err != nil {
			return nil, fmt.Errorf("compliance: failed to scan due review: %w", err)
		}
		r.EscalationLevel = int(level.Int64)
		out = append(out, r)
	}
	return out, rows.Err()
}

// AuditReview is an escalation record awaiting clinical review.
type AuditReview struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	EscalationLevel int       `json:"escalation_level"`
	ReviewDate      time.Time `json:"review_date"`
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullInt(v int) sql.NullInt64 {
	if v == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(v), Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
