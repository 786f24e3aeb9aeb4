package scheduler

import (
	"context"
	"encoding/json"
	"time"

	"github.com/wolfman30/wellbeing-safety-engine/internal/queue"
	"github.com/wolfman30/wellbeing-safety-engine/pkg/logging"
)

// Dispatcher polls due tasks and publishes them to the delivery queue.
type Dispatcher struct {
	store     TaskStore
	sender    queue.Sender
	logger    *logging.Logger
	batchSize int
	interval  time.Duration
	now       func() time.Time
}

func NewDispatcher(store TaskStore, sender queue.Sender, logger *logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.Default()
	}
	return &Dispatcher{
		store:     store,
		sender:    sender,
		logger:    logger,
		batchSize: 50,
		interval:  30 * time.Second,
		now:       time.Now,
	}
}

func (d *Dispatcher) WithBatchSize(size int) *Dispatcher {
	if size > 0 {
		d.batchSize = size
	}
	return d
}

func (d *Dispatcher) WithInterval(interval time.Duration) *Dispatcher {
	if interval > 0 {
		d.interval = interval
	}
	return d
}

func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	if now != nil {
		d.now = now
	}
	return d
}

// Start drains due tasks every interval until ctx is done.
func (d *Dispatcher) Start(ctx context.Context) {
	if d.store == nil || d.sender == nil {
		return
	}
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := d.ProcessDue(ctx); err != nil {
				d.logger.Error("scheduler fetch failed", "error", err)
			}
		}
	}
}

// ProcessDue claims one batch, publishes it and returns how many tasks were
// dispatched. A task that fails to publish is released for the next pass.
func (d *Dispatcher) ProcessDue(ctx context.Context) (int, error) {
	now := d.now().UTC()
	tasks, err := d.store.Claim(ctx, now, d.batchSize)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, t := range tasks {
		if err := d.publish(ctx, t); err != nil {
			d.logger.Error("scheduler publish failed", "error", err, "task_id", t.ID, "intervention_ref", t.InterventionRef)
			if err := d.store.Release(ctx, t.ID); err != nil {
				d.logger.Error("failed to release task", "error", err, "task_id", t.ID)
			}
			continue
		}
		ok, err := d.store.MarkDispatched(ctx, t.ID, now)
		if err != nil {
			d.logger.Error("failed to mark task dispatched", "error", err, "task_id", t.ID)
			continue
		}
		if ok {
			sent++
		}
	}
	return sent, nil
}

func (d *Dispatcher) publish(ctx context.Context, t Task) error {
	body, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return d.sender.Send(ctx, string(body), map[string]string{"intervention_ref": t.InterventionRef})
}
