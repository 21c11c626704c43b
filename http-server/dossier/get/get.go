package get

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"fabprogress/http-server/respond"
)

type DossierGenerator interface {
	Generate(ctx context.Context, assemblyID string) ([]byte, error)
}

// DownloadDossier streams the traceability workbook of an assembly.
func DownloadDossier(log *slog.Logger, gen DossierGenerator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.dossier.DownloadDossier"

		id := chi.URLParam(r, "id")

		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		defer cancel()

		b, err := gen.Generate(ctx, id)
		if err != nil {
			respond.Error(w, r, log, op, err)
			return
		}

		fileName := fmt.Sprintf("dossier_%s_%s.xlsx", id, time.Now().Format("2006-01-02_150405"))

		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="`+fileName+`"`)
		if _, err := w.Write(b); err != nil {
			log.With(slog.String("op", op), slog.String("error", err.Error())).Warn("dossier write aborted")
		}
	}
}
