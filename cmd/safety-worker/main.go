package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/wellbeing-safety-engine/cmd/mainconfig"
	"github.com/wolfman30/wellbeing-safety-engine/internal/app/bootstrap"
	appconfig "github.com/wolfman30/wellbeing-safety-engine/internal/config"
	"github.com/wolfman30/wellbeing-safety-engine/internal/monitoring"
	"github.com/wolfman30/wellbeing-safety-engine/internal/observability/metrics"
	"github.com/wolfman30/wellbeing-safety-engine/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting safety worker",
		"env", cfg.Env,
		"monitor_interval", cfg.MonitorInterval.String(),
		"dispatch_interval", cfg.DispatchInterval.String(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	safetyMetrics := metrics.NewSafetyMetrics(registry)

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}
	clients := mainconfig.NewClients(awsCfg, cfg)

	pool := bootstrap.ConnectPostgres(ctx, cfg.DatabaseURL, logger)
	if pool == nil {
		logger.Error("safety worker requires a reachable DATABASE_URL")
		os.Exit(1)
	}
	defer pool.Close()

	deps := bootstrap.Deps{Pool: pool, SQS: clients.SQS, SES: clients.SES, S3: clients.S3, Metrics: safetyMetrics}
	if redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true); redisClient != nil {
		defer redisClient.Close()
		deps.Redis = redisClient
	}

	stack, err := bootstrap.BuildSafetyStack(cfg, deps, logger)
	if err != nil {
		logger.Error("failed to build safety stack", "error", err)
		os.Exit(1)
	}
	defer stack.Close()

	metricsSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()

	runner := monitoring.NewRunner(stack.Loop, cfg.MonitorInterval, cfg.MonitorThreshold, logger)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		runner.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		stack.Deliveries.Start(ctx)
	}()

	<-ctx.Done()
	logger.Info("shutting down safety worker...")
	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
	logger.Info("safety worker stopped")
}
