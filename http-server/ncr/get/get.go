package get

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"fabprogress/http-server/respond"
	"fabprogress/internal/storage"
)

type NCRReader interface {
	GetNCR(ctx context.Context, id string) (*storage.NonComplianceRecord, error)
	ListOpenNCRs(ctx context.Context) ([]*storage.NonComplianceRecord, error)
}

func GetNCR(log *slog.Logger, svc NCRReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.ncr.GetNCR"

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		ncr, err := svc.GetNCR(ctx, chi.URLParam(r, "id"))
		if err != nil {
			respond.Error(w, r, log, op, err)
			return
		}

		render.JSON(w, r, ncr)
	}
}

// GetOpen lists every NCR not yet closed, newest first.
func GetOpen(log *slog.Logger, svc NCRReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.ncr.GetOpen"

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		ncrs, err := svc.ListOpenNCRs(ctx)
		if err != nil {
			respond.Error(w, r, log, op, err)
			return
		}

		render.JSON(w, r, respond.NonNil(ncrs))
	}
}
