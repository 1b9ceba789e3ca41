package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/imageguard-labs/imageguard-backend/api/responses"
	pkgerrors "github.com/imageguard-labs/imageguard-backend/pkg/errors"
	"github.com/imageguard-labs/imageguard-backend/pkg/logger"
)

// rateLimiter is the subset of the redis client the limiter needs.
type rateLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// RateLimitPolicy bounds how often a tenant may hit a route group.
type RateLimitPolicy struct {
	Name   string
	Limit  int64
	Window time.Duration
}

// RateLimit applies a fixed-window limit per organization. A missing limiter
// or an unscoped request passes through; limiter failures fail open so a
// Redis outage cannot take down mutations.
func RateLimit(policy RateLimitPolicy, limiter rateLimiter, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil || policy.Limit <= 0 || policy.Window <= 0 {
				next.ServeHTTP(w, r)
				return
			}
			orgID := OrgIDFromContext(r.Context())
			if orgID == "" {
				next.ServeHTTP(w, r)
				return
			}

			scope := fmt.Sprintf("%s:%s", policy.Name, orgID)
			allowed, count, err := limiter.FixedWindowAllow(r.Context(), scope, policy.Limit, policy.Window)
			if err != nil {
				if logg != nil {
					logg.Error(r.Context(), "rate limit check failed", err)
				}
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				ctx := r.Context()
				if logg != nil {
					ctx = logg.WithFields(ctx, map[string]any{"scope": scope, "count": count})
					logg.Warn(ctx, "rate limit exceeded")
				}
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many requests"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
