package save

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"

	"fabprogress/http-server/respond"
	"fabprogress/internal/service/progress"
	"fabprogress/internal/storage"
)

type NCROpener interface {
	OpenNCR(ctx context.Context, in progress.OpenNCRInput) (*storage.NonComplianceRecord, error)
}

func OpenNCR(log *slog.Logger, svc NCROpener) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.ncr.OpenNCR"

		var req progress.OpenNCRInput
		if err := respond.Decode(r, &req); err != nil {
			respond.BadRequest(w, r, "invalid JSON body: "+err.Error())
			return
		}
		if req.AssemblyID == "" {
			respond.BadRequest(w, r, "assembly_id is required")
			return
		}
		req.DiscoveredBy = respond.Actor(r, req.DiscoveredBy)

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		ncr, err := svc.OpenNCR(ctx, req)
		if err != nil {
			respond.Error(w, r, log, op, err)
			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, ncr)
	}
}
