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

type CoatingReader interface {
	ListReadyForOutsourcing(ctx context.Context) ([]*storage.ProgressState, error)
	ListAwaitingReturn(ctx context.Context) ([]*storage.ProgressState, error)
	ListCoatingRecords(ctx context.Context, assemblyID string) ([]*storage.OutsourcedCoatingRecord, error)
}

func GetReady(log *slog.Logger, svc CoatingReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.coating.GetReady"

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		states, err := svc.ListReadyForOutsourcing(ctx)
		if err != nil {
			respond.Error(w, r, log, op, err)
			return
		}

		render.JSON(w, r, respond.NonNil(states))
	}
}

func GetAwaiting(log *slog.Logger, svc CoatingReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.coating.GetAwaiting"

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		states, err := svc.ListAwaitingReturn(ctx)
		if err != nil {
			respond.Error(w, r, log, op, err)
			return
		}

		render.JSON(w, r, respond.NonNil(states))
	}
}

func GetRecords(log *slog.Logger, svc CoatingReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.coating.GetRecords"

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		records, err := svc.ListCoatingRecords(ctx, chi.URLParam(r, "id"))
		if err != nil {
			respond.Error(w, r, log, op, err)
			return
		}

		render.JSON(w, r, respond.NonNil(records))
	}
}
