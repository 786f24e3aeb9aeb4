package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/wellbeing-safety-engine/internal/archive"
	"github.com/wolfman30/wellbeing-safety-engine/internal/compliance"
	appconfig "github.com/wolfman30/wellbeing-safety-engine/internal/config"
	"github.com/wolfman30/wellbeing-safety-engine/internal/coordinator"
	"github.com/wolfman30/wellbeing-safety-engine/internal/escalation"
	"github.com/wolfman30/wellbeing-safety-engine/internal/monitoring"
	"github.com/wolfman30/wellbeing-safety-engine/internal/notify"
	"github.com/wolfman30/wellbeing-safety-engine/internal/observability/metrics"
	"github.com/wolfman30/wellbeing-safety-engine/internal/queue"
	"github.com/wolfman30/wellbeing-safety-engine/internal/risk"
	"github.com/wolfman30/wellbeing-safety-engine/internal/safety"
	"github.com/wolfman30/wellbeing-safety-engine/internal/scheduler"
	"github.com/wolfman30/wellbeing-safety-engine/internal/wellbeing"
	"github.com/wolfman30/wellbeing-safety-engine/pkg/logging"
)

// Deps are the external clients a safety stack can use. Any may be nil; the
// stack falls back to in-memory stores and queues.
type Deps struct {
	Pool    *pgxpool.Pool
	Redis   redis.Cmdable
	SQS     queue.SQSAPI
	SES     notify.SESAPI
	S3      archive.S3API
	Metrics *metrics.SafetyMetrics
}

// AuditLog is the compliance record a stack writes and reviews. Postgres
// backs it when a pool is configured; otherwise it lives in memory.
type AuditLog interface {
	coordinator.Auditor
	LogEvent(ctx context.Context, event compliance.AuditEvent) (string, error)
	DueForReview(ctx context.Context, asOf time.Time, limit int) ([]compliance.AuditReview, error)
}

var (
	_ AuditLog = (*compliance.AuditService)(nil)
	_ AuditLog = (*compliance.MemoryAuditLog)(nil)
)

// Stack is the wired safety engine.
type Stack struct {
	Pipeline   *safety.Pipeline
	Loop       *monitoring.Loop
	Deliveries *scheduler.Dispatcher
	Audit      AuditLog

	auditDB *sql.DB
}

// Close releases the audit connection opened over the pool.
func (s *Stack) Close() error {
	if s == nil || s.auditDB == nil {
		return nil
	}
	return s.auditDB.Close()
}

// BuildSafetyStack wires assessment, escalation, notification, scheduling and
// auditing from configuration.
func BuildSafetyStack(cfg *appconfig.Config, deps Deps, logger *logging.Logger) (*Stack, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	var table *risk.FactorTable
	if path := strings.TrimSpace(cfg.RiskFactorsPath); path != "" {
		t, err := risk.LoadFactorTable(path)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: risk factors: %w", err)
		}
		table = t
	}

	var (
		entries    wellbeing.EntryStore
		deliveries wellbeing.DeliveryStore
		consents   wellbeing.ConsentStore
		states     escalation.StateStore
		tasks      interface {
			scheduler.Scheduler
			scheduler.TaskStore
		}
	)
	stack := &Stack{}
	if deps.Pool != nil {
		store := wellbeing.NewPostgresStore(deps.Pool)
		entries, deliveries, consents = store, store, store
		states = escalation.NewPostgresStateStore(deps.Pool, logger)
		tasks = scheduler.NewPostgresStore(deps.Pool)
		stack.auditDB = stdlib.OpenDBFromPool(deps.Pool)
		stack.Audit = compliance.NewAuditService(stack.auditDB)
	} else {
		logger.Warn("no database configured; using in-memory stores")
		store := wellbeing.NewMemoryStore()
		entries, deliveries, consents = store, store, store
		states = escalation.NewMemoryStateStore()
		tasks = scheduler.NewMemoryScheduler()
		stack.Audit = compliance.NewMemoryAuditLog()
	}

	engine := risk.NewEngine(entries, deliveries, table, logger).WithMetrics(deps.Metrics)
	calc := escalation.NewCalculator(entries, deliveries, states, engine.Analyzer(), logger).WithMetrics(deps.Metrics)

	dispatcher := notify.NewDispatcher(BuildChannels(cfg, deps, logger), notify.DispatcherConfig{
		Timeout:     cfg.NotifyTimeout,
		MaxAttempts: cfg.NotifyMaxAttempts,
	}, logger).WithMetrics(deps.Metrics)
	if deps.Redis != nil {
		dispatcher = dispatcher.WithThrottle(notify.NewThrottle(deps.Redis, cfg.NotifyDedupWindow, logger))
	}

	var auditor coordinator.Auditor = stack.Audit
	if store := archive.NewStore(deps.S3, cfg.AuditArchiveBucket, logger); store.Enabled() {
		auditor = archive.NewArchivingAuditor(stack.Audit, store, logger)
	}
	coord := coordinator.New(consents, tasks, dispatcher, auditor, logger).WithMetrics(deps.Metrics)

	stack.Pipeline = safety.NewPipeline(engine, calc, coord, logger)
	stack.Loop = monitoring.NewLoop(deliveries, stack.Pipeline, logger).
		WithConcurrency(cfg.MonitorConcurrency).
		WithMetrics(deps.Metrics)
	stack.Deliveries = scheduler.NewDispatcher(tasks, buildQueue(deps.SQS, cfg.InterventionQueueURL, "intervention", logger), logger).
		WithInterval(cfg.DispatchInterval)
	return stack, nil
}

// BuildChannels maps each recipient to its delivery channel. The crisis team
// reads a queue; the wellness and assistance programmes receive email.
func BuildChannels(cfg *appconfig.Config, deps Deps, logger *logging.Logger) map[risk.RecipientKind]notify.Channel {
	sender := BuildEmailSender(cfg, deps.SES, logger)
	email := func(to, name string) notify.Channel {
		var ch notify.Channel = notify.NewEmailChannel(sender, to, name)
		if cfg.NotifyRatePerSecond > 0 {
			ch = notify.NewRateLimitedChannel(ch, cfg.NotifyRatePerSecond, 1)
		}
		return ch
	}

	channels := map[risk.RecipientKind]notify.Channel{
		risk.RecipientCrisisTeam: notify.NewQueueChannel(
			buildQueue(deps.SQS, cfg.CrisisTeamQueueURL, "crisis team", logger), risk.RecipientCrisisTeam),
	}
	if cfg.HRWellnessEmail != "" {
		channels[risk.RecipientHRWellness] = email(cfg.HRWellnessEmail, "HR Wellness")
	} else {
		logger.Warn("HR_WELLNESS_EMAIL not set; hr wellness notifications will fail")
	}
	if cfg.EAPEmail != "" {
		channels[risk.RecipientEmployeeAssistance] = email(cfg.EAPEmail, "Employee Assistance")
	} else {
		logger.Warn("EAP_EMAIL not set; employee assistance notifications will fail")
	}
	return channels
}

// BuildEmailSender prefers SendGrid, then SES, then a logging stub.
func BuildEmailSender(cfg *appconfig.Config, ses notify.SESAPI, logger *logging.Logger) notify.EmailSender {
	if s := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger); s != nil {
		return s
	}
	if cfg.SESFromEmail != "" {
		if s := notify.NewSESSender(ses, notify.SESConfig{FromEmail: cfg.SESFromEmail, FromName: cfg.SendGridFromName}, logger); s != nil {
			return s
		}
	}
	logger.Warn("no email provider configured; emails will only be logged")
	return notify.NewStubEmailSender(logger)
}

func buildQueue(client queue.SQSAPI, url, name string, logger *logging.Logger) queue.Sender {
	if client == nil || strings.TrimSpace(url) == "" {
		logger.Warn("queue not configured; messages kept in memory", "queue", name)
		return queue.NewMemoryQueue()
	}
	return queue.NewSQSQueue(client, url)
}
