package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/wellbeing-safety-engine/cmd/mainconfig"
	"github.com/wolfman30/wellbeing-safety-engine/internal/api/router"
	"github.com/wolfman30/wellbeing-safety-engine/internal/app/bootstrap"
	appconfig "github.com/wolfman30/wellbeing-safety-engine/internal/config"
	"github.com/wolfman30/wellbeing-safety-engine/internal/http/handlers"
	"github.com/wolfman30/wellbeing-safety-engine/internal/observability/metrics"
	"github.com/wolfman30/wellbeing-safety-engine/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting wellbeing safety API", "env", cfg.Env, "port", cfg.Port)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	safetyMetrics := metrics.NewSafetyMetrics(registry)

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}
	clients := mainconfig.NewClients(awsCfg, cfg)

	pool := bootstrap.ConnectPostgres(ctx, cfg.DatabaseURL, logger)
	if pool != nil {
		defer pool.Close()
	} else if cfg.IsProduction() {
		logger.Error("DATABASE_URL is required in production")
		os.Exit(1)
	}

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

	safetyHandler := handlers.NewSafetyHandler(stack.Pipeline, stack.Loop, stack.Audit, logger).WithReviews(stack.Audit)

	srv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: router.New(&router.Config{
			Logger:             logger,
			Safety:             safetyHandler,
			AdminAuthSecret:    cfg.AdminJWTSecret,
			MetricsHandler:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
			AdminRatePerSecond: 2,
			AdminBurst:         10,
		}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
