package monitoring

import (
	"context"
	"time"

	"github.com/wolfman30/wellbeing-safety-engine/pkg/logging"
)

// Runner repeats the sweep on an interval until its context ends.
type Runner struct {
	loop      *Loop
	interval  time.Duration
	threshold int
	logger    *logging.Logger
}

func NewRunner(loop *Loop, interval time.Duration, threshold int, logger *logging.Logger) *Runner {
	if logger == nil {
		logger = logging.Default()
	}
	if interval <= 0 {
		interval = time.Hour
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Runner{loop: loop, interval: interval, threshold: threshold, logger: logger}
}

// Start sweeps once immediately, then on every tick.
func (r *Runner) Start(ctx context.Context) {
	if r.loop == nil {
		return
	}
	r.sweep(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Runner) sweep(ctx context.Context) {
	if _, err := r.loop.Run(ctx, r.threshold); err != nil && ctx.Err() == nil {
		r.logger.Error("monitoring sweep failed", "error", err)
	}
}
