package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/wellbeing-safety-engine/internal/risk"
	"github.com/wolfman30/wellbeing-safety-engine/pkg/logging"
)

// Throttle suppresses repeat notifications of the same risk level to the same
// recipient for a user within a window. Crisis team pages always go out.
type Throttle struct {
	redis  redis.Cmdable
	window time.Duration
	logger *logging.Logger
}

func NewThrottle(client redis.Cmdable, window time.Duration, logger *logging.Logger) *Throttle {
	if logger == nil {
		logger = logging.Default()
	}
	return &Throttle{redis: client, window: window, logger: logger}
}

func throttleKey(recipient risk.RecipientKind, userID string, level risk.Level) string {
	return fmt.Sprintf("wellbeing:notify:%s:%s:%s", recipient, userID, level)
}

// Reserve claims the send slot. It returns false when an identical notification
// went out within the window. Redis errors allow the send.
func (t *Throttle) Reserve(ctx context.Context, recipient risk.RecipientKind, userID string, level risk.Level) bool {
	if t == nil || t.redis == nil || t.window <= 0 || recipient == risk.RecipientCrisisTeam {
		return true
	}
	ok, err := t.redis.SetNX(ctx, throttleKey(recipient, userID, level), time.Now().UTC().Format(time.RFC3339), t.window).Result()
	if err != nil {
		t.logger.Warn("notify throttle: redis unavailable, sending anyway", "error", err, "recipient", recipient, "user_id", userID)
		return true
	}
	return ok
}

// Release frees a slot claimed by Reserve after the send failed, so a retry on
// the next escalation is not suppressed.
func (t *Throttle) Release(ctx context.Context, recipient risk.RecipientKind, userID string, level risk.Level) {
	if t == nil || t.redis == nil || t.window <= 0 || recipient == risk.RecipientCrisisTeam {
		return
	}
	if err := t.redis.Del(ctx, throttleKey(recipient, userID, level)).Err(); err != nil {
		t.logger.Warn("notify throttle: release failed", "error", err, "recipient", recipient, "user_id", userID)
	}
}
