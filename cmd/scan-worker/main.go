package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/imageguard-labs/imageguard-backend/internal/assets"
	"github.com/imageguard-labs/imageguard-backend/internal/scans"
	"github.com/imageguard-labs/imageguard-backend/internal/scanworker"
	"github.com/imageguard-labs/imageguard-backend/internal/search"
	"github.com/imageguard-labs/imageguard-backend/internal/syslog"
	"github.com/imageguard-labs/imageguard-backend/pkg/config"
	"github.com/imageguard-labs/imageguard-backend/pkg/db"
	"github.com/imageguard-labs/imageguard-backend/pkg/logger"
	"github.com/imageguard-labs/imageguard-backend/pkg/metrics"
	"github.com/imageguard-labs/imageguard-backend/pkg/migrate"
	"github.com/imageguard-labs/imageguard-backend/pkg/pubsub"
	"github.com/imageguard-labs/imageguard-backend/pkg/redis"
	"github.com/imageguard-labs/imageguard-backend/pkg/vision"
)

const lockKeyFormat = "imageguard:scan-worker:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "scan-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "scan-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	defer pubsubClient.Close()

	visionClient, err := vision.NewClient(cfg.Gemini)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap vision client", err)
		os.Exit(1)
	}

	scanMetrics := metrics.NewScanMetrics(prometheus.DefaultRegisterer)
	jobMetrics := metrics.NewJobMetrics(prometheus.DefaultRegisterer)

	events := syslog.NewService(syslog.NewRepository(dbClient.DB()), logg)

	assetRepo := assets.NewRepository(dbClient.DB())

	candidateLimit := cfg.Scan.PlatformCandidates
	orchestrator := search.NewOrchestrator(
		cfg.Scan, logg, visionClient, redisClient, scanMetrics,
		search.NewShopeeAdapter(candidateLimit),
		search.NewMomoAdapter(candidateLimit),
		search.NewRutenAdapter(candidateLimit),
		search.NewGoogleAdapter(cfg.Search, candidateLimit),
	)

	scanRepo := scans.NewRepository(dbClient.DB())
	executor := scans.NewExecutor(cfg.Worker.DispatchTimeout, logg)
	defer executor.Wait()

	scanService, err := scans.NewService(scanRepo, assetRepo, orchestrator, executor, pubsubClient, scanMetrics, events, logg, cfg.Scan)
	if err != nil {
		logg.Error(context.Background(), "failed to create scan service", err)
		os.Exit(1)
	}

	reconcileJob, err := scanworker.NewStaleScanJob(scanworker.StaleScanJobParams{
		Logger:     logg,
		Scans:      scanRepo,
		Dispatcher: scanService,
		PendingAge: cfg.Worker.PendingScanAge,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create stale scan job", err)
		os.Exit(1)
	}

	lock, err := scanworker.NewCycleLock(redisClient, lockKey(cfg.App.Env), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create worker lock", err)
		os.Exit(1)
	}

	service, err := scanworker.NewService(scanworker.ServiceParams{
		Logger:   logg,
		Registry: scanworker.NewRegistry(reconcileJob),
		Lock:     lock,
		Metrics:  jobMetrics,
		Interval: cfg.Worker.PollInterval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create worker service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithField(ctx, "env", cfg.App.Env)
	logg.Info(ctx, "starting scan worker")

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           metricsMux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "metrics server stopped unexpectedly", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "scan worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "scan worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
