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

type AssemblyProvider interface {
	GetAssembly(ctx context.Context, id string) (*storage.Assembly, error)
}

func GetAssembly(log *slog.Logger, svc AssemblyProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.admin.GetAssembly"

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		a, err := svc.GetAssembly(ctx, chi.URLParam(r, "id"))
		if err != nil {
			respond.Error(w, r, log, op, err)
			return
		}

		render.JSON(w, r, a)
	}
}
