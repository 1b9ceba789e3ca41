package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/imageguard-labs/imageguard-backend/api/controllers"
	"github.com/imageguard-labs/imageguard-backend/api/routes"
	"github.com/imageguard-labs/imageguard-backend/internal/assets"
	"github.com/imageguard-labs/imageguard-backend/internal/evidence"
	"github.com/imageguard-labs/imageguard-backend/internal/infringements"
	"github.com/imageguard-labs/imageguard-backend/internal/scans"
	"github.com/imageguard-labs/imageguard-backend/internal/search"
	"github.com/imageguard-labs/imageguard-backend/internal/syslog"
	"github.com/imageguard-labs/imageguard-backend/pkg/config"
	"github.com/imageguard-labs/imageguard-backend/pkg/db"
	"github.com/imageguard-labs/imageguard-backend/pkg/logger"
	"github.com/imageguard-labs/imageguard-backend/pkg/metrics"
	"github.com/imageguard-labs/imageguard-backend/pkg/migrate"
	"github.com/imageguard-labs/imageguard-backend/pkg/pubsub"
	"github.com/imageguard-labs/imageguard-backend/pkg/redis"
	"github.com/imageguard-labs/imageguard-backend/pkg/screenshot"
	"github.com/imageguard-labs/imageguard-backend/pkg/storage/gcs"
	"github.com/imageguard-labs/imageguard-backend/pkg/vision"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	gcsClient, err := gcs.NewClient(context.Background(), cfg.GCS, cfg.GCP, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap gcs", err)
		os.Exit(1)
	}
	defer func() {
		if err := gcsClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing gcs", err)
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
	capturer := screenshot.NewCapturer(cfg.Screenshot)

	scanMetrics := metrics.NewScanMetrics(prometheus.DefaultRegisterer)

	events := syslog.NewService(syslog.NewRepository(dbClient.DB()), logg)

	assetService, err := assets.NewService(assets.NewRepository(dbClient.DB()), gcsClient.AssetBucket(), cfg.Upload)
	if err != nil {
		logg.Error(context.Background(), "failed to create asset service", err)
		os.Exit(1)
	}

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

	scanService, err := scans.NewService(scanRepo, assetService, orchestrator, executor, pubsubClient, scanMetrics, events, logg, cfg.Scan)
	if err != nil {
		logg.Error(context.Background(), "failed to create scan service", err)
		os.Exit(1)
	}

	infringementService, err := infringements.NewService(
		infringements.NewRepository(dbClient.DB()),
		assetService,
		scanRepo,
		capturer,
		gcsClient.EvidenceBucket(),
		visionClient,
		events,
		logg,
		cfg.Scan,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create infringement service", err)
		os.Exit(1)
	}

	evidenceService, err := evidence.NewService(
		evidence.NewRepository(dbClient.DB()),
		gcsClient.EvidenceBucket(),
		scanRepo,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create evidence service", err)
		os.Exit(1)
	}

	router := routes.NewRouter(routes.Deps{
		Config: cfg,
		Logger: logg,
		Redis:  redisClient,
		ReadyChecks: map[string]controllers.Pinger{
			"database": dbClient,
			"redis":    redisClient,
			"gcs":      gcsClient,
			"pubsub":   pubsubClient,
		},
		Assets:        assetService,
		Scans:         scanService,
		Infringements: infringementService,
		Evidence:      evidenceService,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
