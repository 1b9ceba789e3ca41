package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/imageguard-labs/imageguard-backend/api/controllers"
	"github.com/imageguard-labs/imageguard-backend/api/middleware"
	"github.com/imageguard-labs/imageguard-backend/internal/assets"
	"github.com/imageguard-labs/imageguard-backend/internal/evidence"
	"github.com/imageguard-labs/imageguard-backend/internal/infringements"
	"github.com/imageguard-labs/imageguard-backend/internal/scans"
	"github.com/imageguard-labs/imageguard-backend/pkg/config"
	"github.com/imageguard-labs/imageguard-backend/pkg/logger"
	"github.com/imageguard-labs/imageguard-backend/pkg/redis"
)

// Deps collects everything the router wires into handlers.
type Deps struct {
	Config        *config.Config
	Logger        *logger.Logger
	Redis         *redis.Client
	ReadyChecks   map[string]controllers.Pinger
	Assets        assets.Service
	Scans         scans.Service
	Infringements infringements.Service
	Evidence      evidence.Service
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.ReadyChecks))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	mutationPolicy := middleware.RateLimitPolicy{
		Name:   "mutations",
		Limit:  120,
		Window: time.Minute,
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RateLimit(mutationPolicy, deps.Redis, logg))
		r.Use(middleware.Idempotency(deps.Redis, logg))

		r.Route("/assets", func(r chi.Router) {
			r.Post("/", controllers.UploadAsset(deps.Assets, cfg.Upload, logg))
			r.Get("/", controllers.ListAssets(deps.Assets, logg))
			r.Get("/{assetId}", controllers.GetAsset(deps.Assets, logg))
			r.Patch("/{assetId}", controllers.UpdateAsset(deps.Assets, logg))
			r.Delete("/{assetId}", controllers.DeleteAsset(deps.Assets, logg))
		})

		r.Route("/scans", func(r chi.Router) {
			r.Post("/", controllers.CreateScan(deps.Scans, logg))
			r.Get("/", controllers.ListScans(deps.Scans, logg))
			r.Get("/{scanId}", controllers.GetScan(deps.Scans, logg))
			r.Post("/{scanId}/rescan", controllers.RescanScan(deps.Scans, logg))
		})

		r.Route("/matches", func(r chi.Router) {
			r.Get("/", controllers.ListMatches(deps.Scans, logg))
			r.Post("/{matchId}/status", controllers.UpdateMatchStatus(deps.Scans, logg))
		})

		r.Route("/infringements", func(r chi.Router) {
			r.Get("/", controllers.ListInfringements(deps.Infringements, logg))
			r.Get("/stats", controllers.InfringementStats(deps.Infringements, logg))
			r.Post("/", controllers.CreateInfringement(deps.Infringements, logg))
			r.Post("/from-match", controllers.CreateInfringementFromMatch(deps.Infringements, logg))
			r.Get("/{caseId}", controllers.GetInfringement(deps.Infringements, logg))
			r.Post("/{caseId}/evidence", controllers.CaptureInfringementEvidence(deps.Infringements, logg))
			r.Post("/{caseId}/assess", controllers.AssessInfringement(deps.Infringements, logg))
			r.Post("/{caseId}/report", controllers.GenerateInfringementReport(deps.Infringements, logg))
			r.Post("/{caseId}/mark-reported", controllers.MarkInfringementReported(deps.Infringements, logg))
			r.Post("/{caseId}/status", controllers.UpdateInfringementStatus(deps.Infringements, logg))
			r.Delete("/{caseId}", controllers.DeleteInfringement(deps.Infringements, logg))
		})

		r.Route("/evidence", func(r chi.Router) {
			r.Post("/", controllers.CreateEvidence(deps.Evidence, cfg.Upload, logg))
			r.Post("/from-match", controllers.CreateEvidenceFromMatch(deps.Evidence, logg))
			r.Get("/", controllers.ListEvidence(deps.Evidence, logg))
			r.Get("/{evidenceId}", controllers.GetEvidence(deps.Evidence, logg))
			r.Patch("/{evidenceId}", controllers.UpdateEvidence(deps.Evidence, logg))
			r.Delete("/{evidenceId}", controllers.DeleteEvidence(deps.Evidence, logg))
		})
	})

	return r
}
