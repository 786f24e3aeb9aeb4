package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/wellbeing-safety-engine/internal/queue"
	"github.com/wolfman30/wellbeing-safety-engine/internal/risk"
	"github.com/wolfman30/wellbeing-safety-engine/internal/wellbeing"
)

var testIssued = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func testPayload(level risk.Level) Payload {
	return NewPayload(&risk.Assessment{
		UserID:     "user-1",
		RiskLevel:  level,
		ActionPlan: risk.ActionPlan{ResponseTime: 4 * time.Hour},
		ActiveRiskFactors: []risk.RiskFactorRecord{
			{Name: "hopelessness", Category: risk.FactorPrimary, Weight: 6, Frequency: 2},
		},
	}, 3, testIssued)
}

type recordingSender struct {
	mu   sync.Mutex
	msgs []EmailMessage
}

func (r *recordingSender) Send(_ context.Context, msg EmailMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

func fastConfig() DispatcherConfig {
	return DispatcherConfig{Timeout: time.Second, MaxAttempts: 3, Backoff: time.Millisecond}
}

func TestDispatcher_FansOutIndependently(t *testing.T) {
	crisisQueue := queue.NewMemoryQueue()
	email := &recordingSender{}
	d := NewDispatcher(map[risk.RecipientKind]Channel{
		risk.RecipientCrisisTeam:         NewQueueChannel(crisisQueue, risk.RecipientCrisisTeam),
		risk.RecipientEmployeeAssistance: NewEmailChannel(email, "eap@example.com", "EAP"),
		risk.RecipientHRWellness: ChannelFunc(func(context.Context, string, Payload) error {
			return errors.New("smtp down")
		}),
	}, fastConfig(), nil)

	res := d.Dispatch(context.Background(), "user-1", testPayload(risk.LevelImmediateCrisis), []risk.RecipientKind{
		risk.RecipientCrisisTeam, risk.RecipientEmployeeAssistance, risk.RecipientHRWellness,
	})

	require.Len(t, res, 3)
	assert.Equal(t, StatusSent, res[0].Status)
	assert.Equal(t, StatusSent, res[1].Status)
	assert.Equal(t, StatusFailed, res[2].Status)
	assert.Equal(t, 3, res[2].Attempts)
	assert.ErrorIs(t, res[2].Err, wellbeing.ErrNotificationChannel)
	assert.Equal(t, 2, Sent(res))
	assert.Equal(t, 1, Failed(res))

	msgs := crisisQueue.Messages()
	require.Len(t, msgs, 1)
	var qm QueueMessage
	require.NoError(t, json.Unmarshal([]byte(msgs[0].Body), &qm))
	assert.Equal(t, risk.RecipientCrisisTeam, qm.Recipient)
	assert.Equal(t, 1, qm.Payload.Summary.TotalFactors)
	assert.NotContains(t, msgs[0].Body, "hopelessness")

	require.Len(t, email.msgs, 1)
	assert.Equal(t, "eap@example.com", email.msgs[0].To)
	assert.NotContains(t, email.msgs[0].Body, "hopelessness")
	assert.Contains(t, email.msgs[0].Subject, "immediate crisis")
}

func TestDispatcher_RetriesThenSucceeds(t *testing.T) {
	var calls int32
	d := NewDispatcher(map[risk.RecipientKind]Channel{
		risk.RecipientEmployeeAssistance: ChannelFunc(func(context.Context, string, Payload) error {
			if atomic.AddInt32(&calls, 1) < 2 {
				return errors.New("transient")
			}
			return nil
		}),
	}, fastConfig(), nil)

	res := d.Dispatch(context.Background(), "user-1", testPayload(risk.LevelModerate), []risk.RecipientKind{risk.RecipientEmployeeAssistance})
	assert.Equal(t, StatusSent, res[0].Status)
	assert.Equal(t, 2, res[0].Attempts)
}

func TestDispatcher_RejectedSendIsNotRetried(t *testing.T) {
	var calls int32
	d := NewDispatcher(map[risk.RecipientKind]Channel{
		risk.RecipientHRWellness: ChannelFunc(func(context.Context, string, Payload) error {
			atomic.AddInt32(&calls, 1)
			return statusError(400)
		}),
	}, fastConfig(), nil)

	res := d.Dispatch(context.Background(), "user-1", testPayload(risk.LevelElevated), []risk.RecipientKind{risk.RecipientHRWellness})
	assert.Equal(t, StatusFailed, res[0].Status)
	assert.Equal(t, 1, res[0].Attempts)
	assert.ErrorIs(t, res[0].Err, ErrRejected)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestDispatcher_TimeoutPerAttempt(t *testing.T) {
	d := NewDispatcher(map[risk.RecipientKind]Channel{
		risk.RecipientHRWellness: ChannelFunc(func(ctx context.Context, _ string, _ Payload) error {
			<-ctx.Done()
			return ctx.Err()
		}),
	}, DispatcherConfig{Timeout: 5 * time.Millisecond, MaxAttempts: 2, Backoff: time.Millisecond}, nil)

	res := d.Dispatch(context.Background(), "user-1", testPayload(risk.LevelElevated), []risk.RecipientKind{risk.RecipientHRWellness})
	assert.Equal(t, StatusFailed, res[0].Status)
	assert.Equal(t, 2, res[0].Attempts)
	assert.ErrorIs(t, res[0].Err, context.DeadlineExceeded)
}

func TestDispatcher_MissingChannel(t *testing.T) {
	d := NewDispatcher(nil, fastConfig(), nil)
	res := d.Dispatch(context.Background(), "user-1", testPayload(risk.LevelModerate), []risk.RecipientKind{risk.RecipientEmployeeAssistance})
	assert.Equal(t, StatusFailed, res[0].Status)
	assert.ErrorIs(t, res[0].Err, wellbeing.ErrNotificationChannel)
}

func TestDispatcher_ThrottlesRepeatsButNotCrisisTeam(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	email := &recordingSender{}
	crisisQueue := queue.NewMemoryQueue()

	d := NewDispatcher(map[risk.RecipientKind]Channel{
		risk.RecipientCrisisTeam:         NewQueueChannel(crisisQueue, risk.RecipientCrisisTeam),
		risk.RecipientEmployeeAssistance: NewEmailChannel(email, "eap@example.com", ""),
	}, fastConfig(), nil).WithThrottle(NewThrottle(client, time.Hour, nil))

	recipients := []risk.RecipientKind{risk.RecipientCrisisTeam, risk.RecipientEmployeeAssistance}
	first := d.Dispatch(context.Background(), "user-1", testPayload(risk.LevelImmediateCrisis), recipients)
	second := d.Dispatch(context.Background(), "user-1", testPayload(risk.LevelImmediateCrisis), recipients)

	assert.Equal(t, StatusSent, first[1].Status)
	assert.Equal(t, StatusSent, second[0].Status)
	assert.Equal(t, StatusThrottled, second[1].Status)
	assert.Len(t, crisisQueue.Messages(), 2)
	assert.Len(t, email.msgs, 1)

	mr.FastForward(2 * time.Hour)
	third := d.Dispatch(context.Background(), "user-1", testPayload(risk.LevelImmediateCrisis), recipients)
	assert.Equal(t, StatusSent, third[1].Status)
}

func TestThrottle_ReleaseAfterFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	var fail atomic.Bool
	fail.Store(true)

	d := NewDispatcher(map[risk.RecipientKind]Channel{
		risk.RecipientHRWellness: ChannelFunc(func(context.Context, string, Payload) error {
			if fail.Load() {
				return errors.New("down")
			}
			return nil
		}),
	}, fastConfig(), nil).WithThrottle(NewThrottle(client, time.Hour, nil))

	res := d.Dispatch(context.Background(), "user-1", testPayload(risk.LevelElevated), []risk.RecipientKind{risk.RecipientHRWellness})
	assert.Equal(t, StatusFailed, res[0].Status)

	fail.Store(false)
	res = d.Dispatch(context.Background(), "user-1", testPayload(risk.LevelElevated), []risk.RecipientKind{risk.RecipientHRWellness})
	assert.Equal(t, StatusSent, res[0].Status)
}

func TestThrottle_FailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	th := NewThrottle(client, time.Hour, nil)
	mr.Close()

	assert.True(t, th.Reserve(context.Background(), risk.RecipientHRWellness, "user-1", risk.LevelElevated))
	assert.True(t, th.Reserve(context.Background(), risk.RecipientHRWellness, "user-1", risk.LevelElevated))
}

func TestThrottle_KeyedByRiskLevel(t *testing.T) {
	mr := miniredis.RunT(t)
	th := NewThrottle(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Hour, nil)
	ctx := context.Background()

	assert.True(t, th.Reserve(ctx, risk.RecipientHRWellness, "user-1", risk.LevelModerate))
	assert.False(t, th.Reserve(ctx, risk.RecipientHRWellness, "user-1", risk.LevelModerate))
	assert.True(t, th.Reserve(ctx, risk.RecipientHRWellness, "user-1", risk.LevelElevated))
	assert.True(t, th.Reserve(ctx, risk.RecipientHRWellness, "user-2", risk.LevelModerate))
}

func TestRateLimitedChannel(t *testing.T) {
	var calls int32
	ch := NewRateLimitedChannel(ChannelFunc(func(context.Context, string, Payload) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}), 1, 1)

	require.NoError(t, ch.Notify(context.Background(), "user-1", testPayload(risk.LevelLow)))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := ch.Notify(ctx, "user-1", testPayload(risk.LevelLow))
	assert.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestEmailChannel_NotConfigured(t *testing.T) {
	err := NewEmailChannel(&recordingSender{}, "", "").Notify(context.Background(), "user-1", testPayload(risk.LevelLow))
	assert.Error(t, err)
}

func TestPayloadText(t *testing.T) {
	p := testPayload(risk.LevelElevated)
	assert.Equal(t, "[Wellbeing] elevated escalation (level 3): respond within 4h", p.Subject())
	assert.Contains(t, p.Text(), "Active risk factors: 1")
	assert.Contains(t, p.Text(), "high: 1")
}
