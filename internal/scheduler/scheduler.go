// Package scheduler records intervention deliveries to run at a given time and
// hands them to the delivery queue once they fall due.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Intervention references understood by the delivery workers.
const (
	InterventionCrisisResources          = "crisis_resources"
	InterventionProfessionalConsultation = "professional_consultation"
	InterventionSafetyCheckIn            = "safety_check_in"
	InterventionIntensifiedSupport       = "intensified_support"
	InterventionWellbeingCheckIn         = "wellbeing_check_in"
	InterventionPreventiveResources      = "preventive_resources"
	InterventionSafetyFollowUp           = "safety_follow_up"
)

// Task statuses. A claimed task belongs to one dispatcher until it is marked
// dispatched, released, or its claim outlives ClaimLease.
const (
	StatusPending    = "pending"
	StatusClaimed    = "claimed"
	StatusDispatched = "dispatched"
)

// ClaimLease is how long a claim holds before another dispatcher may retake
// the task.
const ClaimLease = 5 * time.Minute

// Task is a scheduled intervention delivery.
type Task struct {
	ID              string            `json:"id"`
	UserID          string            `json:"user_id"`
	InterventionRef string            `json:"intervention_ref"`
	DeliveryContext map[string]string `json:"delivery_context,omitempty"`
	ScheduledFor    time.Time         `json:"scheduled_for"`
	Status          string            `json:"status"`
	CreatedAt       time.Time         `json:"created_at"`
	ClaimedAt       time.Time         `json:"-"`
}

// Scheduler accepts deliveries and returns a handle for the scheduled task.
type Scheduler interface {
	ScheduleDelivery(ctx context.Context, userID, interventionRef string, deliveryContext map[string]string, when time.Time) (string, error)
}

// TaskStore is the side of a scheduler the dispatcher drains. Claim hands each
// due task to exactly one caller; the caller then marks it dispatched or
// releases it.
type TaskStore interface {
	Claim(ctx context.Context, now time.Time, limit int) ([]Task, error)
	MarkDispatched(ctx context.Context, id string, at time.Time) (bool, error)
	Release(ctx context.Context, id string) error
}

// MemoryScheduler keeps tasks in process. Used by tests and local runs.
type MemoryScheduler struct {
	mu    sync.Mutex
	tasks map[string]*Task
	now   func() time.Time

	// Err, when set, fails every ScheduleDelivery.
	Err error
}

func NewMemoryScheduler() *MemoryScheduler {
	return &MemoryScheduler{tasks: make(map[string]*Task), now: time.Now}
}

func (m *MemoryScheduler) ScheduleDelivery(ctx context.Context, userID, interventionRef string, deliveryContext map[string]string, when time.Time) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return "", fmt.Errorf("scheduler: schedule %s: %w", interventionRef, m.Err)
	}
	id := uuid.NewString()
	m.tasks[id] = &Task{
		ID:              id,
		UserID:          userID,
		InterventionRef: interventionRef,
		DeliveryContext: copyContext(deliveryContext),
		ScheduledFor:    when.UTC(),
		Status:          StatusPending,
		CreatedAt:       m.now().UTC(),
	}
	return id, nil
}

func (m *MemoryScheduler) Claim(_ context.Context, now time.Time, limit int) ([]Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []*Task
	for _, t := range m.tasks {
		if claimable(t, now) {
			due = append(due, t)
		}
	}
	sort.SliceStable(due, func(i, j int) bool { return taskLess(*due[i], *due[j]) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	out := make([]Task, 0, len(due))
	for _, t := range due {
		t.Status = StatusClaimed
		t.ClaimedAt = now
		out = append(out, *t)
	}
	return out, nil
}

func claimable(t *Task, now time.Time) bool {
	switch t.Status {
	case StatusPending:
		return !t.ScheduledFor.After(now)
	case StatusClaimed:
		return !t.ClaimedAt.Add(ClaimLease).After(now)
	}
	return false
}

func (m *MemoryScheduler) MarkDispatched(_ context.Context, id string, _ time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok || t.Status != StatusClaimed {
		return false, nil
	}
	t.Status = StatusDispatched
	return true, nil
}

func (m *MemoryScheduler) Release(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tasks[id]; ok && t.Status == StatusClaimed {
		t.Status = StatusPending
		t.ClaimedAt = time.Time{}
	}
	return nil
}

// Tasks returns every task for a user ordered by scheduled time.
func (m *MemoryScheduler) Tasks(userID string) []Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Task
	for _, t := range m.tasks {
		if t.UserID == userID {
			out = append(out, *t)
		}
	}
	sortTasks(out)
	return out
}

func sortTasks(ts []Task) {
	sort.SliceStable(ts, func(i, j int) bool { return taskLess(ts[i], ts[j]) })
}

func taskLess(a, b Task) bool {
	if a.ScheduledFor.Equal(b.ScheduledFor) {
		return a.InterventionRef < b.InterventionRef
	}
	return a.ScheduledFor.Before(b.ScheduledFor)
}

func copyContext(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

var (
	_ Scheduler = (*MemoryScheduler)(nil)
	_ TaskStore = (*MemoryScheduler)(nil)
)
