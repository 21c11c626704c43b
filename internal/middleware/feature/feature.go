package feature

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"fabprogress/internal/featuregate"
)

const TenantHeader = "X-Tenant-ID"

type Checker interface {
	Check(ctx context.Context, tenantID, feature string) featuregate.Decision
}

type deniedResponse struct {
	Error  string `json:"error"`
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

// Require lets a request through only when the tenant named in X-Tenant-ID
// has key enabled.
func Require(log *slog.Logger, gate Checker, key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenant := r.Header.Get(TenantHeader)

			d := gate.Check(r.Context(), tenant, key)
			if !d.Allowed {
				log.Info("feature denied",
					slog.String("tenant", tenant),
					slog.String("feature", key),
					slog.String("reason", d.Reason))

				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, deniedResponse{Error: "feature not enabled", Code: "feature_denied", Reason: d.Reason})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
