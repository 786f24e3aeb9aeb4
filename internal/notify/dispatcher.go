package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wolfman30/wellbeing-safety-engine/internal/observability/metrics"
	"github.com/wolfman30/wellbeing-safety-engine/internal/risk"
	"github.com/wolfman30/wellbeing-safety-engine/internal/wellbeing"
	"github.com/wolfman30/wellbeing-safety-engine/pkg/logging"
)

// Status is the outcome of one recipient notification.
type Status string

const (
	StatusSent      Status = "sent"
	StatusFailed    Status = "failed"
	StatusThrottled Status = "throttled"
)

// Delivery reports what happened for one recipient.
type Delivery struct {
	Recipient risk.RecipientKind
	Status    Status
	Attempts  int
	Err       error
}

// DispatcherConfig bounds each recipient's delivery.
type DispatcherConfig struct {
	Timeout     time.Duration // per attempt
	MaxAttempts int
	Backoff     time.Duration // doubled after each failed attempt
}

func (c DispatcherConfig) withDefaults() DispatcherConfig {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.Backoff <= 0 {
		c.Backoff = 200 * time.Millisecond
	}
	return c
}

// Dispatcher fans a payload out to recipient channels concurrently. One
// recipient failing never stops the others.
type Dispatcher struct {
	channels map[risk.RecipientKind]Channel
	cfg      DispatcherConfig
	throttle *Throttle
	metrics  *metrics.SafetyMetrics
	logger   *logging.Logger
}

func NewDispatcher(channels map[risk.RecipientKind]Channel, cfg DispatcherConfig, logger *logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.Default()
	}
	return &Dispatcher{
		channels: channels,
		cfg:      cfg.withDefaults(),
		logger:   logger,
	}
}

func (d *Dispatcher) WithThrottle(t *Throttle) *Dispatcher {
	d.throttle = t
	return d
}

func (d *Dispatcher) WithMetrics(m *metrics.SafetyMetrics) *Dispatcher {
	d.metrics = m
	return d
}

// Dispatch notifies every recipient and returns one Delivery per recipient, in
// the order given.
func (d *Dispatcher) Dispatch(ctx context.Context, userID string, p Payload, recipients []risk.RecipientKind) []Delivery {
	out := make([]Delivery, len(recipients))
	var wg sync.WaitGroup
	for i, r := range recipients {
		wg.Add(1)
		go func(i int, r risk.RecipientKind) {
			defer wg.Done()
			out[i] = d.deliver(ctx, userID, p, r)
			d.metrics.ObserveNotification(string(r), string(out[i].Status))
			if out[i].Err != nil {
				d.logger.Warn("notification failed", "user_id", userID, "recipient", r, "attempts", out[i].Attempts, "error", out[i].Err)
			}
		}(i, r)
	}
	wg.Wait()
	return out
}

func (d *Dispatcher) deliver(ctx context.Context, userID string, p Payload, r risk.RecipientKind) Delivery {
	res := Delivery{Recipient: r}
	ch, ok := d.channels[r]
	if !ok || ch == nil {
		res.Status = StatusFailed
		res.Err = fmt.Errorf("%w: no channel for %s", wellbeing.ErrNotificationChannel, r)
		return res
	}
	if !d.throttle.Reserve(ctx, r, userID, p.RiskLevel) {
		res.Status = StatusThrottled
		return res
	}

	backoff := d.cfg.Backoff
	var lastErr error
retry:
	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		res.Attempts = attempt
		attemptCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
		lastErr = ch.Notify(attemptCtx, userID, p)
		cancel()
		if lastErr == nil {
			res.Status = StatusSent
			return res
		}
		if attempt == d.cfg.MaxAttempts || ctx.Err() != nil || errors.Is(lastErr, ErrRejected) {
			break
		}
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			lastErr = errors.Join(lastErr, ctx.Err())
			break retry
		case <-timer.C:
		}
		backoff *= 2
	}

	d.throttle.Release(context.WithoutCancel(ctx), r, userID, p.RiskLevel)
	res.Status = StatusFailed
	res.Err = fmt.Errorf("%w: %s: %w", wellbeing.ErrNotificationChannel, r, lastErr)
	return res
}

// Sent counts successful deliveries.
func Sent(ds []Delivery) int {
	n := 0
	for _, d := range ds {
		if d.Status == StatusSent {
			n++
		}
	}
	return n
}

// Failed counts failed deliveries. Throttled ones are neither sent nor failed.
func Failed(ds []Delivery) int {
	n := 0
	for _, d := range ds {
		if d.Status == StatusFailed {
			n++
		}
	}
	return n
}
