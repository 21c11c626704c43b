package update

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"fabprogress/http-server/respond"
	"fabprogress/internal/service/progress"
)

type CheckPerformer interface {
	PerformCheck(ctx context.Context, in progress.PerformCheckInput) (*progress.CheckOutcome, error)
}

// PerformCheck records an inspection result. The response carries the NCR
// opened by a failure, if any.
func PerformCheck(log *slog.Logger, svc CheckPerformer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.quality_check.PerformCheck"

		var req progress.PerformCheckInput
		if err := respond.Decode(r, &req); err != nil {
			respond.BadRequest(w, r, "invalid JSON body: "+err.Error())
			return
		}
		req.CheckID = chi.URLParam(r, "id")
		req.CheckedBy = respond.Actor(r, req.CheckedBy)

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		out, err := svc.PerformCheck(ctx, req)
		if err != nil {
			respond.Error(w, r, log, op, err)
			return
		}

		render.JSON(w, r, out)
	}
}
