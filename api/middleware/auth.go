package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/imageguard-labs/imageguard-backend/api/responses"
	pkgauth "github.com/imageguard-labs/imageguard-backend/pkg/auth"
	"github.com/imageguard-labs/imageguard-backend/pkg/config"
	pkgerrors "github.com/imageguard-labs/imageguard-backend/pkg/errors"
	"github.com/imageguard-labs/imageguard-backend/pkg/logger"
)

// Auth validates a bearer token and seeds the request context with the user
// and organization claims. Every tenant-scoped handler downstream resolves
// the org id from the context this middleware builds.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			token := raw
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgauth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			if claims.OrgID == uuid.Nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing org claim"))
				return
			}

			ctx := WithUserID(r.Context(), claims.UserID.String())
			ctx = WithOrgID(ctx, claims.OrgID.String())

			if logg != nil {
				ctx = logg.WithFields(ctx, map[string]any{
					"user_id": claims.UserID.String(),
					"org_id":  claims.OrgID.String(),
				})
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
