// Package respond holds the JSON error mapping and request helpers shared by
// the HTTP handlers.
package respond

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/render"

	"fabprogress/internal/service/progress"
	"fabprogress/internal/storage"
)

const ActorHeader = "X-Actor"

type ErrorResponse struct {
	Error        string              `json:"error"`
	Code         string              `json:"code"`
	Step         string              `json:"step,omitempty"`
	Missing      []storage.CheckType `json:"missing_checks,omitempty"`
	BlockingNCRs []string            `json:"blocking_ncrs,omitempty"`
}

type kind struct {
	err    error
	status int
	code   string
}

// kinds is matched in order; the specific not-found errors precede the
// generic one.
var kinds = []kind{
	{progress.ErrAssemblyNotFound, http.StatusNotFound, "assembly_not_found"},
	{progress.ErrNoProgressTracking, http.StatusNotFound, "no_progress_tracking"},
	{progress.ErrCheckNotFound, http.StatusNotFound, "check_not_found"},
	{progress.ErrNCRNotFound, http.StatusNotFound, "ncr_not_found"},
	{progress.ErrNotFound, http.StatusNotFound, "not_found"},
	{progress.ErrQualityGateBlocked, http.StatusConflict, "quality_gate_blocked"},
	{progress.ErrCriticalNCRBlocked, http.StatusConflict, "critical_ncr_blocked"},
	{progress.ErrAwaitingCoatingReturn, http.StatusConflict, "awaiting_coating_return"},
	{progress.ErrAlreadyTerminal, http.StatusConflict, "already_terminal"},
	{progress.ErrConcurrencyConflict, http.StatusConflict, "concurrency_conflict"},
	{progress.ErrNotOutsourced, http.StatusConflict, "not_outsourced"},
	{progress.ErrAlreadyOutsourced, http.StatusConflict, "already_outsourced"},
	{progress.ErrNCRClosed, http.StatusConflict, "ncr_closed"},
	{progress.ErrInvalidProgression, http.StatusUnprocessableEntity, "invalid_progression"},
	{progress.ErrWrongStep, http.StatusUnprocessableEntity, "wrong_step"},
	{progress.ErrActorRequired, http.StatusBadRequest, "actor_required"},
	{progress.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
	{storage.ErrDuplicate, http.StatusConflict, "duplicate"},
}

// Error writes err as a JSON body with the status of its kind. Unknown errors
// are logged and answered with 500 without their text.
func Error(w http.ResponseWriter, r *http.Request, log *slog.Logger, op string, err error) {
	for _, k := range kinds {
		if !errors.Is(err, k.err) {
			continue
		}

		resp := ErrorResponse{Error: err.Error(), Code: k.code}
		var gateErr *progress.GateError
		if errors.As(err, &gateErr) {
			resp.Step = gateErr.Step.String()
			resp.Missing = gateErr.Missing
		}
		var ncrErr *progress.NCRBlockError
		if errors.As(err, &ncrErr) {
			resp.BlockingNCRs = ncrErr.Numbers
		}

		log.With(slog.String("op", op), slog.String("error", err.Error())).Warn("request rejected")
		render.Status(r, k.status)
		render.JSON(w, r, resp)
		return
	}

	log.With(slog.String("op", op), slog.String("error", err.Error())).Error("request failed")
	render.Status(r, http.StatusInternalServerError)
	render.JSON(w, r, ErrorResponse{Error: "internal error", Code: "internal"})
}

// BadRequest answers a malformed request.
func BadRequest(w http.ResponseWriter, r *http.Request, msg string) {
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, ErrorResponse{Error: msg, Code: "bad_request"})
}

// Decode reads a JSON body into v. An empty body leaves v untouched.
func Decode(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	if err := render.DecodeJSON(r.Body, v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Actor returns the acting user from the X-Actor header, falling back to
// the actor named in the body.
func Actor(r *http.Request, fromBody string) string {
	if a := strings.TrimSpace(r.Header.Get(ActorHeader)); a != "" {
		return a
	}
	return strings.TrimSpace(fromBody)
}

// NonNil turns a nil slice into an empty one so lists encode as [].
func NonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
