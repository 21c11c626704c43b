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

type AssemblyRegistrar interface {
	RegisterAssembly(ctx context.Context, in progress.RegisterAssemblyInput) (*storage.Assembly, error)
}

// RegisterAssembly adds an assembly so that its progress can be tracked.
func RegisterAssembly(log *slog.Logger, svc AssemblyRegistrar) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.admin.RegisterAssembly"

		var req progress.RegisterAssemblyInput
		if err := respond.Decode(r, &req); err != nil {
			respond.BadRequest(w, r, "invalid JSON body: "+err.Error())
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		a, err := svc.RegisterAssembly(ctx, req)
		if err != nil {
			respond.Error(w, r, log, op, err)
			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, a)
	}
}
