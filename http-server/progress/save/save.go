package save

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

type ProgressMutator interface {
	Initialize(ctx context.Context, assemblyID, actor string) (*storage.ProgressState, error)
	AdvanceToNextStep(ctx context.Context, assemblyID, actor, notes string) (*storage.ProgressState, error)
	TransitionTo(ctx context.Context, assemblyID string, target storage.ManufacturingStep, actor, notes string) (*storage.ProgressState, error)
	CompleteCurrentStep(ctx context.Context, assemblyID, actor, notes string) (*storage.ProgressState, error)
}

type Request struct {
	Actor  string                     `json:"actor"`
	Notes  string                     `json:"notes"`
	ToStep *storage.ManufacturingStep `json:"to_step,omitempty"`
}

func decode(w http.ResponseWriter, r *http.Request) (Request, bool) {
	var req Request
	if err := respond.Decode(r, &req); err != nil {
		respond.BadRequest(w, r, "invalid JSON body: "+err.Error())
		return req, false
	}
	req.Actor = respond.Actor(r, req.Actor)
	return req, true
}

// InitializeProgress starts tracking the assembly; repeating it is harmless.
func InitializeProgress(log *slog.Logger, svc ProgressMutator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.progress.InitializeProgress"

		req, ok := decode(w, r)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		state, err := svc.Initialize(ctx, chi.URLParam(r, "id"), req.Actor)
		if err != nil {
			respond.Error(w, r, log, op, err)
			return
		}

		render.JSON(w, r, state)
	}
}

// Advance moves the assembly one step on. With to_step set the target is
// checked against the actual successor.
func Advance(log *slog.Logger, svc ProgressMutator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.progress.Advance"

		req, ok := decode(w, r)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		id := chi.URLParam(r, "id")
		var (
			state *storage.ProgressState
			err   error
		)
		if req.ToStep != nil {
			state, err = svc.TransitionTo(ctx, id, *req.ToStep, req.Actor, req.Notes)
		} else {
			state, err = svc.AdvanceToNextStep(ctx, id, req.Actor, req.Notes)
		}
		if err != nil {
			respond.Error(w, r, log, op, err)
			return
		}

		render.JSON(w, r, state)
	}
}

func CompleteStep(log *slog.Logger, svc ProgressMutator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.progress.CompleteStep"

		req, ok := decode(w, r)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		state, err := svc.CompleteCurrentStep(ctx, chi.URLParam(r, "id"), req.Actor, req.Notes)
		if err != nil {
			respond.Error(w, r, log, op, err)
			return
		}

		render.JSON(w, r, state)
	}
}
