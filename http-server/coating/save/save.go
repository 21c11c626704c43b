package save

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

type CoatingMutator interface {
	SendOutCoating(ctx context.Context, in progress.SendOutInput) (*storage.OutsourcedCoatingRecord, error)
	RecordCoatingReturn(ctx context.Context, assemblyID, actor, notes string) (*storage.ProgressState, error)
}

// SendOut hands the assembly to an external coater.
func SendOut(log *slog.Logger, svc CoatingMutator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.coating.SendOut"

		var req progress.SendOutInput
		if err := respond.Decode(r, &req); err != nil {
			respond.BadRequest(w, r, "invalid JSON body: "+err.Error())
			return
		}
		req.AssemblyID = chi.URLParam(r, "id")
		req.Actor = respond.Actor(r, req.Actor)

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		rec, err := svc.SendOutCoating(ctx, req)
		if err != nil {
			respond.Error(w, r, log, op, err)
			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, rec)
	}
}

// RecordReturn books the coater's return and advances to CoatingDone.
func RecordReturn(log *slog.Logger, svc CoatingMutator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.coating.RecordReturn"

		var req struct {
			Actor string `json:"actor"`
			Notes string `json:"notes"`
		}
		if err := respond.Decode(r, &req); err != nil {
			respond.BadRequest(w, r, "invalid JSON body: "+err.Error())
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		state, err := svc.RecordCoatingReturn(ctx, chi.URLParam(r, "id"), respond.Actor(r, req.Actor), req.Notes)
		if err != nil {
			respond.Error(w, r, log, op, err)
			return
		}

		render.JSON(w, r, state)
	}
}
