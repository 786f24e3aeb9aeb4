package escalation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wolfman30/wellbeing-safety-engine/internal/wellbeing"
	"github.com/wolfman30/wellbeing-safety-engine/pkg/logging"
)

type db interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// MaxTransitionAttempts bounds retries after serialization failures.
const MaxTransitionAttempts = 3

// PostgresStateStore persists escalation state in escalation_states with an
// append-only escalation_level_history. The state row is locked FOR UPDATE
// while recent history is read and the new level written.
type PostgresStateStore struct {
	db     db
	logger *logging.Logger
}

func NewPostgresStateStore(db db, logger *logging.Logger) *PostgresStateStore {
	if db == nil {
		panic("escalation: nil db")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &PostgresStateStore{db: db, logger: logger}
}

func (s *PostgresStateStore) Transition(ctx context.Context, userID string, at time.Time, fn TransitionFunc) (State, error) {
	var lastErr error
	for attempt := 1; attempt <= MaxTransitionAttempts; attempt++ {
		st, err := s.transitionOnce(ctx, userID, at, fn)
		if err == nil {
			return st, nil
		}
		if !isRetryable(err) {
			return State{}, err
		}
		lastErr = err
		s.logger.Warn("escalation transition conflicted, retrying",
			"user_id", userID,
			"attempt", attempt,
		)
	}
	return State{}, fmt.Errorf("%w: escalation: %d attempts: %v", wellbeing.ErrConcurrentEscalation, MaxTransitionAttempts, lastErr)
}

func (s *PostgresStateStore) transitionOnce(ctx context.Context, userID string, at time.Time, fn TransitionFunc) (State, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return State{}, unavailable("begin tx", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO escalation_states (user_id, current_level, level_set_at, last_review_date)
		VALUES ($1, 0, $2, $2)
		ON CONFLICT (user_id) DO NOTHING
	`, userID, at); err != nil {
		return State{}, unavailable("ensure state row", err)
	}

	var current State
	var level int
	if err := tx.QueryRow(ctx, `
		SELECT current_level, level_set_at, last_review_date
		FROM escalation_states
		WHERE user_id = $1
		FOR UPDATE
	`, userID).Scan(&level, &current.LevelSetAt, &current.LastReviewDate); err != nil {
		return State{}, unavailable("lock state row", err)
	}
	current.UserID = userID
	current.CurrentLevel = Level(level)

	rows, err := tx.Query(ctx, `
		SELECT level, assigned_at
		FROM escalation_level_history
		WHERE user_id = $1 AND assigned_at >= $2 AND assigned_at <= $3
		ORDER BY assigned_at
	`, userID, at.Add(-RateLimitLookback), at)
	if err != nil {
		return State{}, unavailable("read recent history", err)
	}
	var assignments []Assignment
	for rows.Next() {
		var a Assignment
		var lvl int
		if err := rows.Scan(&lvl, &a.At); err != nil {
			rows.Close()
			return State{}, unavailable("scan history", err)
		}
		a.Level = Level(lvl)
		assignments = append(assignments, a)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return State{}, unavailable("read recent history", err)
	}

	h := SummarizeHistory(assignments, at)
	if current.CurrentLevel.Valid() {
		cp := current
		h.Current = &cp
	}

	next := fn(h)
	if !next.Valid() {
		return State{}, fmt.Errorf("%w: escalation: level %d out of range", wellbeing.ErrInvalidInput, int(next))
	}

	out := State{UserID: userID, CurrentLevel: next, LevelSetAt: at, LastReviewDate: at}
	if current.CurrentLevel == next {
		out.LevelSetAt = current.LevelSetAt
	}

	if _, err := tx.Exec(ctx, `
		UPDATE escalation_states
		SET current_level = $2, level_set_at = $3, last_review_date = $4
		WHERE user_id = $1
	`, userID, int(next), out.LevelSetAt, at); err != nil {
		return State{}, unavailable("update state", err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO escalation_level_history (user_id, level, assigned_at)
		VALUES ($1, $2, $3)
	`, userID, int(next), at); err != nil {
		return State{}, unavailable("append history", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return State{}, unavailable("commit", err)
	}
	return out, nil
}

func (s *PostgresStateStore) Get(ctx context.Context, userID string) (*State, error) {
	st := State{UserID: userID}
	var level int
	err := s.db.QueryRow(ctx, `
		SELECT current_level, level_set_at, last_review_date
		FROM escalation_states
		WHERE user_id = $1
	`, userID).Scan(&level, &st.LevelSetAt, &st.LastReviewDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("get state", err)
	}
	st.CurrentLevel = Level(level)
	if !st.CurrentLevel.Valid() {
		return nil, nil
	}
	return &st, nil
}

func unavailable(op string, err error) error {
	if isRetryable(err) {
		return fmt.Errorf("escalation: %s: %w", op, err)
	}
	return fmt.Errorf("%w: escalation: %s: %v", wellbeing.ErrDataUnavailable, op, err)
}

// isRetryable matches serialization failures and deadlocks.
func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}
