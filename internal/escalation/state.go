package escalation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wolfman30/wellbeing-safety-engine/internal/wellbeing"
)

// State is the persisted per-user escalation level.
type State struct {
	UserID         string    `json:"user_id"`
	CurrentLevel   Level     `json:"current_level"`
	LevelSetAt     time.Time `json:"level_set_at"`
	LastReviewDate time.Time `json:"last_review_date"`
}

// TransitionFunc computes the next level from history. It may run more than
// once when a store retries a conflicted transaction, so it must not have side
// effects beyond its return value and captured results.
type TransitionFunc func(h History) Level

// StateStore persists escalation state. Transition reads recent history and
// writes the validated level as one atomic step per user.
type StateStore interface {
	Transition(ctx context.Context, userID string, at time.Time, fn TransitionFunc) (State, error)
	Get(ctx context.Context, userID string) (*State, error)
}

// MemoryStateStore keeps state in process, serialising transitions per user.
type MemoryStateStore struct {
	mu      sync.Mutex
	locks   map[string]*sync.Mutex
	states  map[string]State
	history map[string][]Assignment
}

// NewMemoryStateStore creates an empty store.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{
		locks:   make(map[string]*sync.Mutex),
		states:  make(map[string]State),
		history: make(map[string][]Assignment),
	}
}

func (m *MemoryStateStore) userLock(userID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[userID] = l
	}
	return l
}

// Seed records a past assignment, for tests and imports.
func (m *MemoryStateStore) Seed(userID string, level Level, at time.Time) {
	l := m.userLock(userID)
	l.Lock()
	defer l.Unlock()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history[userID] = append(m.history[userID], Assignment{Level: level, At: at})
	st, ok := m.states[userID]
	if !ok || !at.Before(st.LevelSetAt) {
		m.states[userID] = State{UserID: userID, CurrentLevel: level, LevelSetAt: at, LastReviewDate: at}
	}
}

func (m *MemoryStateStore) Transition(ctx context.Context, userID string, at time.Time, fn TransitionFunc) (State, error) {
	if err := ctx.Err(); err != nil {
		return State{}, err
	}
	l := m.userLock(userID)
	l.Lock()
	defer l.Unlock()

	m.mu.Lock()
	h := SummarizeHistory(m.history[userID], at)
	if st, ok := m.states[userID]; ok {
		cp := st
		h.Current = &cp
	}
	m.mu.Unlock()

	next := fn(h)
	if !next.Valid() {
		return State{}, fmt.Errorf("%w: escalation: level %d out of range", wellbeing.ErrInvalidInput, int(next))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	st := State{UserID: userID, CurrentLevel: next, LevelSetAt: at, LastReviewDate: at}
	if h.Current != nil && h.Current.CurrentLevel == next {
		st.LevelSetAt = h.Current.LevelSetAt
	}
	m.states[userID] = st
	m.history[userID] = append(m.history[userID], Assignment{Level: next, At: at})
	return st, nil
}

func (m *MemoryStateStore) Get(_ context.Context, userID string) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[userID]
	if !ok {
		return nil, nil
	}
	return &st, nil
}
