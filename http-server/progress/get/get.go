package get

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

type ProgressReader interface {
	GetDetail(ctx context.Context, assemblyID string) (*progress.Detail, error)
	GateStatus(ctx context.Context, assemblyID string) (*progress.GateReport, error)
	ListHistory(ctx context.Context, assemblyID string) ([]*storage.StepHistoryEntry, error)
	ListChecks(ctx context.Context, assemblyID string, step *storage.ManufacturingStep) ([]*storage.QualityCheck, error)
	ListAssemblyNCRs(ctx context.Context, assemblyID string) ([]*storage.NonComplianceRecord, error)
	ListProgressAtStep(ctx context.Context, step storage.ManufacturingStep) ([]*storage.ProgressState, error)
}

// GetDetail returns progress, gate status, current checks and NCRs of an assembly.
func GetDetail(log *slog.Logger, svc ProgressReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.progress.GetDetail"

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		d, err := svc.GetDetail(ctx, chi.URLParam(r, "id"))
		if err != nil {
			respond.Error(w, r, log, op, err)
			return
		}

		d.Checks = respond.NonNil(d.Checks)
		d.NCRs = respond.NonNil(d.NCRs)
		render.JSON(w, r, d)
	}
}

func GetGate(log *slog.Logger, svc ProgressReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.progress.GetGate"

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		gate, err := svc.GateStatus(ctx, chi.URLParam(r, "id"))
		if err != nil {
			respond.Error(w, r, log, op, err)
			return
		}

		render.JSON(w, r, gate)
	}
}

func GetHistory(log *slog.Logger, svc ProgressReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.progress.GetHistory"

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		entries, err := svc.ListHistory(ctx, chi.URLParam(r, "id"))
		if err != nil {
			respond.Error(w, r, log, op, err)
			return
		}

		render.JSON(w, r, respond.NonNil(entries))
	}
}

// GetChecks lists the assembly's quality checks, optionally for ?step= only.
func GetChecks(log *slog.Logger, svc ProgressReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.progress.GetChecks"

		var step *storage.ManufacturingStep
		if raw := r.URL.Query().Get("step"); raw != "" {
			s, err := storage.ParseStep(raw)
			if err != nil {
				respond.BadRequest(w, r, err.Error())
				return
			}
			step = &s
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		checks, err := svc.ListChecks(ctx, chi.URLParam(r, "id"), step)
		if err != nil {
			respond.Error(w, r, log, op, err)
			return
		}

		render.JSON(w, r, respond.NonNil(checks))
	}
}

func GetAssemblyNCRs(log *slog.Logger, svc ProgressReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.progress.GetAssemblyNCRs"

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		ncrs, err := svc.ListAssemblyNCRs(ctx, chi.URLParam(r, "id"))
		if err != nil {
			respond.Error(w, r, log, op, err)
			return
		}

		render.JSON(w, r, respond.NonNil(ncrs))
	}
}

// GetAtStep lists every tracked assembly at ?step=.
func GetAtStep(log *slog.Logger, svc ProgressReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.progress.GetAtStep"

		raw := r.URL.Query().Get("step")
		if raw == "" {
			respond.BadRequest(w, r, "missing required query parameter 'step'")
			return
		}
		step, err := storage.ParseStep(raw)
		if err != nil {
			respond.BadRequest(w, r, err.Error())
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		states, err := svc.ListProgressAtStep(ctx, step)
		if err != nil {
			respond.Error(w, r, log, op, err)
			return
		}

		render.JSON(w, r, respond.NonNil(states))
	}
}
