package main

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fabprogress/http-server/respond"
	"fabprogress/internal/config"
	"fabprogress/internal/featuregate"
	"fabprogress/internal/lock"
	"fabprogress/internal/middleware/feature"
	"fabprogress/internal/service/dossier"
	"fabprogress/internal/service/progress"
	"fabprogress/internal/storage"
	"fabprogress/internal/storage/sqlstore"
)

func testServer(t *testing.T) *httptest.Server {
	t.Helper()

	store, err := sqlstore.OpenSQLite(filepath.Join(t.TempDir(), "routes.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := progress.NewService(log, store, lock.NewLocal(), progress.Options{ConflictRetries: 3})
	cfg := &config.Config{AdminLogin: "admin", AdminPass: "secret"}
	gate := featuregate.NewStatic(map[string][]string{"shop-1": {featuregate.ManufacturingProgress}})

	srv := httptest.NewServer(routes(cfg, log, svc, dossier.NewGenerator(svc), gate))
	t.Cleanup(srv.Close)
	return srv
}

func call(t *testing.T, srv *httptest.Server, method, path, body string, edit func(*http.Request)) *http.Response {
	t.Helper()

	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, srv.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set(feature.TenantHeader, "shop-1")
	req.Header.Set(respond.ActorHeader, "anna")
	if edit != nil {
		edit(req)
	}

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func asAdmin(req *http.Request) { req.SetBasicAuth("admin", "secret") }

func TestProgressFlowOverHTTP(t *testing.T) {
	srv := testServer(t)

	resp := call(t, srv, http.MethodPost, "/api/admin/assemblies", `{"id":"a-1","mark":"B-7"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = call(t, srv, http.MethodPost, "/api/admin/assemblies", `{"id":"a-1","mark":"B-7"}`, asAdmin)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = call(t, srv, http.MethodPost, "/api/assemblies/a-1/advance", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = call(t, srv, http.MethodPost, "/api/assemblies/a-1/progress", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = call(t, srv, http.MethodPost, "/api/assemblies/a-1/advance", `{"notes":"fit-up"}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var state storage.ProgressState
	require.NoError(t, render.DecodeJSON(resp.Body, &state))
	assert.Equal(t, storage.StepAssembled, state.CurrentStep)

	resp = call(t, srv, http.MethodPost, "/api/assemblies/a-1/advance", "", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	var rejected respond.ErrorResponse
	require.NoError(t, render.DecodeJSON(resp.Body, &rejected))
	assert.Equal(t, "quality_gate_blocked", rejected.Code)
	assert.Len(t, rejected.Missing, 3)

	resp = call(t, srv, http.MethodGet, "/api/assemblies/a-1/checks?step=Assembled", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var checks []*storage.QualityCheck
	require.NoError(t, render.DecodeJSON(resp.Body, &checks))
	require.Len(t, checks, 3)

	for _, c := range checks {
		resp = call(t, srv, http.MethodPost, "/api/quality-checks/"+c.ID, `{"status":"Passed"}`, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp = call(t, srv, http.MethodPost, "/api/assemblies/a-1/advance", `{"to_step":"Welded"}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = call(t, srv, http.MethodGet, "/api/progress?step=Welded", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var atStep []*storage.ProgressState
	require.NoError(t, render.DecodeJSON(resp.Body, &atStep))
	require.Len(t, atStep, 1)
	assert.Equal(t, "a-1", atStep[0].AssemblyID)

	resp = call(t, srv, http.MethodGet, "/api/assemblies/a-1/dossier", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestFeatureGateDeniesUnknownTenant(t *testing.T) {
	srv := testServer(t)

	resp := call(t, srv, http.MethodGet, "/api/ncrs/open", "", func(r *http.Request) {
		r.Header.Set(feature.TenantHeader, "shop-2")
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = call(t, srv, http.MethodGet, "/api/ncrs/open", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
