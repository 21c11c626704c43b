package save

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"fabprogress/http-server/respond"
	"fabprogress/internal/service/progress"
	"fabprogress/internal/storage"
)

type MockProgressMutator struct {
	mock.Mock
}

func (m *MockProgressMutator) Initialize(ctx context.Context, assemblyID, actor string) (*storage.ProgressState, error) {
	args := m.Called(ctx, assemblyID, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.ProgressState), args.Error(1)
}

func (m *MockProgressMutator) AdvanceToNextStep(ctx context.Context, assemblyID, actor, notes string) (*storage.ProgressState, error) {
	args := m.Called(ctx, assemblyID, actor, notes)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.ProgressState), args.Error(1)
}

func (m *MockProgressMutator) TransitionTo(ctx context.Context, assemblyID string, target storage.ManufacturingStep, actor, notes string) (*storage.ProgressState, error) {
	args := m.Called(ctx, assemblyID, target, actor, notes)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.ProgressState), args.Error(1)
}

func (m *MockProgressMutator) CompleteCurrentStep(ctx context.Context, assemblyID, actor, notes string) (*storage.ProgressState, error) {
	args := m.Called(ctx, assemblyID, actor, notes)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.ProgressState), args.Error(1)
}

func newRouter(svc ProgressMutator) http.Handler {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := chi.NewRouter()
	r.Post("/api/assemblies/{id}/progress", InitializeProgress(log, svc))
	r.Post("/api/assemblies/{id}/advance", Advance(log, svc))
	r.Post("/api/assemblies/{id}/complete-step", CompleteStep(log, svc))
	return r
}

func TestInitializeProgress_ActorFromHeader(t *testing.T) {
	svc := new(MockProgressMutator)
	svc.On("Initialize", mock.Anything, "a-1", "anna").
		Return(&storage.ProgressState{AssemblyID: "a-1", CurrentStep: storage.StepNotStarted}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/assemblies/a-1/progress", nil)
	req.Header.Set(respond.ActorHeader, "anna")
	rr := httptest.NewRecorder()

	newRouter(svc).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	var resp storage.ProgressState
	assert.NoError(t, render.DecodeJSON(strings.NewReader(rr.Body.String()), &resp))
	assert.Equal(t, storage.StepNotStarted, resp.CurrentStep)
	svc.AssertExpectations(t)
}

func TestAdvance_NextStep(t *testing.T) {
	svc := new(MockProgressMutator)
	prev := storage.StepAssembled
	svc.On("AdvanceToNextStep", mock.Anything, "a-1", "anna", "done").
		Return(&storage.ProgressState{AssemblyID: "a-1", CurrentStep: storage.StepWelded, PreviousStep: &prev}, nil)

	body := `{"actor":"anna","notes":"done"}`
	req := httptest.NewRequest(http.MethodPost, "/api/assemblies/a-1/advance", strings.NewReader(body))
	rr := httptest.NewRecorder()

	newRouter(svc).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	var resp storage.ProgressState
	assert.NoError(t, render.DecodeJSON(strings.NewReader(rr.Body.String()), &resp))
	assert.Equal(t, storage.StepWelded, resp.CurrentStep)
	assert.Equal(t, storage.StepAssembled, *resp.PreviousStep)
	svc.AssertExpectations(t)
}

func TestAdvance_ExplicitTarget(t *testing.T) {
	svc := new(MockProgressMutator)
	svc.On("TransitionTo", mock.Anything, "a-1", storage.StepDelivered, "anna", "").
		Return(nil, progress.ErrInvalidProgression)

	body := `{"actor":"anna","to_step":"Delivered"}`
	req := httptest.NewRequest(http.MethodPost, "/api/assemblies/a-1/advance", strings.NewReader(body))
	rr := httptest.NewRecorder()

	newRouter(svc).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	var resp respond.ErrorResponse
	assert.NoError(t, render.DecodeJSON(strings.NewReader(rr.Body.String()), &resp))
	assert.Equal(t, "invalid_progression", resp.Code)
	svc.AssertExpectations(t)
}

func TestAdvance_GateBlocked(t *testing.T) {
	svc := new(MockProgressMutator)
	svc.On("AdvanceToNextStep", mock.Anything, "a-1", "anna", "").
		Return(nil, &progress.GateError{Step: storage.StepAssembled, Missing: []storage.CheckType{storage.CheckQualityAssurance}})

	req := httptest.NewRequest(http.MethodPost, "/api/assemblies/a-1/advance", strings.NewReader(`{"actor":"anna"}`))
	rr := httptest.NewRecorder()

	newRouter(svc).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusConflict, rr.Code)
	var resp respond.ErrorResponse
	assert.NoError(t, render.DecodeJSON(strings.NewReader(rr.Body.String()), &resp))
	assert.Equal(t, "quality_gate_blocked", resp.Code)
	assert.Equal(t, []storage.CheckType{storage.CheckQualityAssurance}, resp.Missing)
}

func TestAdvance_BadBody(t *testing.T) {
	svc := new(MockProgressMutator)

	for _, body := range []string{`{"actor":`, `{"actor":"anna","to_step":"Painted"}`} {
		req := httptest.NewRequest(http.MethodPost, "/api/assemblies/a-1/advance", strings.NewReader(body))
		rr := httptest.NewRecorder()

		newRouter(svc).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code, body)
	}
	svc.AssertNotCalled(t, "AdvanceToNextStep", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	svc.AssertNotCalled(t, "TransitionTo", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCompleteStep_ActorRequired(t *testing.T) {
	svc := new(MockProgressMutator)
	svc.On("CompleteCurrentStep", mock.Anything, "a-1", "", "").Return(nil, progress.ErrActorRequired)

	req := httptest.NewRequest(http.MethodPost, "/api/assemblies/a-1/complete-step", nil)
	rr := httptest.NewRecorder()

	newRouter(svc).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "actor_required")
}
