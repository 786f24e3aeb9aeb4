package wellbeing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// EntryStore loads journal entries for a user within [since, until].
type EntryStore interface {
	FetchEntries(ctx context.Context, userID string, since, until time.Time) ([]JournalEntry, error)
}

// DeliveryStore loads intervention delivery history.
type DeliveryStore interface {
	FetchDeliveries(ctx context.Context, userID string, since time.Time) ([]Delivery, error)
	// HighRiskUsers returns users whose most recent delivery since the given time
	// carries a crisis escalation level of at least minLevel.
	HighRiskUsers(ctx context.Context, since time.Time, minLevel int) ([]string, error)
}

// ConsentStore loads privacy consent. A nil consent with a nil error means no
// record exists for the user.
type ConsentStore interface {
	GetConsent(ctx context.Context, userID string) (*Consent, error)
}

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore reads journal, delivery and consent tables. Every driver error is
// reported as ErrDataUnavailable so callers can fail safe.
type PostgresStore struct {
	db DB
}

var (
	_ EntryStore    = (*PostgresStore)(nil)
	_ DeliveryStore = (*PostgresStore)(nil)
	_ ConsentStore  = (*PostgresStore)(nil)
)

// NewPostgresStore creates a store backed by the given pgx connection or pool.
func NewPostgresStore(db DB) *PostgresStore {
	if db == nil {
		panic("wellbeing: pgx db required")
	}
	return &PostgresStore{db: db}
}

// FetchEntries returns entries oldest-first.
func (s *PostgresStore) FetchEntries(ctx context.Context, userID string, since, until time.Time) ([]JournalEntry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, content, created_at, mood_rating, stress_level, energy_level, stress_triggers
		FROM journal_entries
		WHERE user_id = $1 AND created_at >= $2 AND created_at <= $3
		ORDER BY created_at ASC`, userID, since, until)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch entries: %v", ErrDataUnavailable, err)
	}
	defer rows.Close()

	var entries []JournalEntry
	for rows.Next() {
		var e JournalEntry
		var mood, stress, energy *int
		if err := rows.Scan(&e.ID, &e.UserID, &e.Content, &e.Timestamp, &mood, &stress, &energy, &e.StressTriggers); err != nil {
			return nil, fmt.Errorf("%w: scan entry: %v", ErrDataUnavailable, err)
		}
		e.Mood, e.Stress, e.Energy = mood, stress, energy
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate entries: %v", ErrDataUnavailable, err)
	}
	return entries, nil
}

// FetchDeliveries returns deliveries newest-first.
func (s *PostgresStore) FetchDeliveries(ctx context.Context, userID string, since time.Time) ([]Delivery, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, intervention_type, delivered_at, was_completed, perceived_helpfulness, crisis_escalation_level
		FROM intervention_deliveries
		WHERE user_id = $1 AND delivered_at >= $2
		ORDER BY delivered_at DESC`, userID, since)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch deliveries: %v", ErrDataUnavailable, err)
	}
	defer rows.Close()

	var out []Delivery
	for rows.Next() {
		var d Delivery
		var helpfulness *int
		if err := rows.Scan(&d.ID, &d.UserID, &d.InterventionType, &d.DeliveredAt, &d.WasCompleted, &helpfulness, &d.CrisisEscalationLevel); err != nil {
			return nil, fmt.Errorf("%w: scan delivery: %v", ErrDataUnavailable, err)
		}
		d.PerceivedHelpfulness = helpfulness
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate deliveries: %v", ErrDataUnavailable, err)
	}
	return out, nil
}

// HighRiskUsers picks each user's latest delivery since the cutoff and keeps
// those at or above minLevel.
func (s *PostgresStore) HighRiskUsers(ctx context.Context, since time.Time, minLevel int) ([]string, error) {
	rows, err := s.db.Query(ctx, `
		SELECT user_id FROM (
			SELECT DISTINCT ON (user_id) user_id, crisis_escalation_level
			FROM intervention_deliveries
			WHERE delivered_at >= $1
			ORDER BY user_id, delivered_at DESC
		) latest
		WHERE crisis_escalation_level >= $2
		ORDER BY user_id`, since, minLevel)
	if err != nil {
		return nil, fmt.Errorf("%w: high risk cohort: %v", ErrDataUnavailable, err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%w: scan cohort: %v", ErrDataUnavailable, err)
		}
		users = append(users, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate cohort: %v", ErrDataUnavailable, err)
	}
	return users, nil
}

// GetConsent returns nil, nil when the user has no consent row.
func (s *PostgresStore) GetConsent(ctx context.Context, userID string) (*Consent, error) {
	var c Consent
	err := s.db.QueryRow(ctx, `
		SELECT crisis_intervention_consent, manager_access_consent
		FROM privacy_consents
		WHERE user_id = $1`, userID).Scan(&c.CrisisInterventionConsent, &c.ManagerAccessConsent)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get consent: %v", ErrDataUnavailable, err)
	}
	return &c, nil
}
