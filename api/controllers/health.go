package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/imageguard-labs/imageguard-backend/api/responses"
	"github.com/imageguard-labs/imageguard-backend/pkg/config"
	"github.com/imageguard-labs/imageguard-backend/pkg/logger"
)

// Pinger is the health check surface shared by the hard dependencies.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-ImageGuard-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings the hard dependencies. Any failing check flips the
// overall status to degraded with a 503 so orchestrators stop routing.
func HealthReady(cfg *config.Config, logg *logger.Logger, deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-ImageGuard-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		checks := map[string]string{}
		healthy := true
		for name, dep := range deps {
			if dep == nil {
				checks[name] = "skipped"
				continue
			}
			if err := dep.Ping(ctx); err != nil {
				checks[name] = "down"
				healthy = false
				if logg != nil {
					logg.Error(logg.WithField(ctx, "dependency", name), "readiness check failed", err)
				}
				continue
			}
			checks[name] = "up"
		}

		status := http.StatusOK
		payload := map[string]any{"status": "ready", "checks": checks}
		if !healthy {
			status = http.StatusServiceUnavailable
			payload["status"] = "degraded"
		}
		responses.WriteSuccessStatus(w, status, payload)
	}
}
