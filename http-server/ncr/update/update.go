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
	"fabprogress/internal/storage"
)

type NCRUpdater interface {
	UpdateNCR(ctx context.Context, in progress.UpdateNCRInput) (*storage.NonComplianceRecord, error)
}

func UpdateNCR(log *slog.Logger, svc NCRUpdater) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.ncr.UpdateNCR"

		var req progress.UpdateNCRInput
		if err := respond.Decode(r, &req); err != nil {
			respond.BadRequest(w, r, "invalid JSON body: "+err.Error())
			return
		}
		req.NCRID = chi.URLParam(r, "id")
		req.UpdatedBy = respond.Actor(r, req.UpdatedBy)

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		ncr, err := svc.UpdateNCR(ctx, req)
		if err != nil {
			respond.Error(w, r, log, op, err)
			return
		}

		render.JSON(w, r, ncr)
	}
}
