package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresStore persists tasks in scheduled_interventions.
type PostgresStore struct {
	db db
}

func NewPostgresStore(db db) *PostgresStore {
	if db == nil {
		panic("scheduler: pgx db required")
	}
	return &PostgresStore{db: db}
}

// ScheduleDelivery inserts a pending task and returns its ID.
func (s *PostgresStore) ScheduleDelivery(ctx context.Context, userID, interventionRef string, deliveryContext map[string]string, when time.Time) (string, error) {
	data, err := json.Marshal(deliveryContextOrEmpty(deliveryContext))
	if err != nil {
		return "", fmt.Errorf("scheduler: marshal context: %w", err)
	}
	id := uuid.New()
	query := `
		INSERT INTO scheduled_interventions (id, user_id, intervention_ref, delivery_context, scheduled_for, status)
		VALUES ($1, $2, $3, $4, $5, 'pending')
	`
	if _, err := s.db.Exec(ctx, query, id, userID, interventionRef, data, when.UTC()); err != nil {
		return "", fmt.Errorf("scheduler: insert %s: %w", interventionRef, err)
	}
	return id.String(), nil
}

// Claim moves up to limit due tasks to claimed and returns them, oldest first.
// SKIP LOCKED keeps concurrent dispatchers off each other's rows; claims older
// than ClaimLease are retaken so a crashed dispatcher does not strand a task.
func (s *PostgresStore) Claim(ctx context.Context, now time.Time, limit int) ([]Task, error) {
	now = now.UTC()
	query := `
		UPDATE scheduled_interventions
		SET status = 'claimed', claimed_at = $1
		WHERE id IN (
			SELECT id FROM scheduled_interventions
			WHERE (status = 'pending' AND scheduled_for <= $1)
			   OR (status = 'claimed' AND claimed_at <= $3)
			ORDER BY scheduled_for
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, user_id, intervention_ref, delivery_context, scheduled_for, status, created_at, claimed_at
	`
	rows, err := s.db.Query(ctx, query, now, limit, now.Add(-ClaimLease))
	if err != nil {
		return nil, fmt.Errorf("scheduler: claim due: %w", err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		var t Task
		var id uuid.UUID
		var raw []byte
		if err := rows.Scan(&id, &t.UserID, &t.InterventionRef, &raw, &t.ScheduledFor, &t.Status, &t.CreatedAt, &t.ClaimedAt); err != nil {
			return nil, fmt.Errorf("scheduler: scan task: %w", err)
		}
		t.ID = id.String()
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &t.DeliveryContext); err != nil {
				return nil, fmt.Errorf("scheduler: decode context for %s: %w", t.ID, err)
			}
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scheduler: claim due: %w", err)
	}
	sortTasks(tasks)
	return tasks, nil
}

// MarkDispatched reports false when the claim was lost to another dispatcher.
func (s *PostgresStore) MarkDispatched(ctx context.Context, id string, at time.Time) (bool, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return false, fmt.Errorf("scheduler: bad task id %q: %w", id, err)
	}
	query := `
		UPDATE scheduled_interventions
		SET status = 'dispatched', dispatched_at = $2
		WHERE id = $1 AND status = 'claimed'
	`
	ct, err := s.db.Exec(ctx, query, uid, at.UTC())
	if err != nil {
		return false, fmt.Errorf("scheduler: mark dispatched: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// Release returns a claimed task to pending after a failed publish.
func (s *PostgresStore) Release(ctx context.Context, id string) error {
	uid, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("scheduler: bad task id %q: %w", id, err)
	}
	query := `
		UPDATE scheduled_interventions
		SET status = 'pending', claimed_at = NULL
		WHERE id = $1 AND status = 'claimed'
	`
	if _, err := s.db.Exec(ctx, query, uid); err != nil {
		return fmt.Errorf("scheduler: release: %w", err)
	}
	return nil
}

func deliveryContextOrEmpty(in map[string]string) map[string]string {
	if in == nil {
		return map[string]string{}
	}
	return in
}

var (
	_ Scheduler = (*PostgresStore)(nil)
	_ TaskStore = (*PostgresStore)(nil)
)
