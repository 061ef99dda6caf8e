package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/metric/noop"

	"flowkit/internal/auth"
	"flowkit/internal/backends"
	"flowkit/internal/config"
	"flowkit/internal/orchestrator"
	"flowkit/internal/repository"
	"flowkit/internal/services"
	"flowkit/internal/validation"
	"flowkit/pkg/models"
)

type staticSource struct{ doc *models.FlowDocument }

func (s *staticSource) Load(context.Context) (*models.FlowDocument, error) { return s.doc, nil }
func (s *staticSource) Name() string                                       { return "test.yaml" }

type failingStore struct{ repository.RunStore }

func (failingStore) ListRuns(context.Context, string, int) ([]*models.RunRecord, error) {
	return nil, errors.New("connection refused")
}

func (failingStore) Ping(context.Context) error { return errors.New("connection refused") }

func newTestServer(t *testing.T, store repository.RunStore, middleware ...echo.MiddlewareFunc) *echo.Echo {
	t.Helper()
	doc := &models.FlowDocument{Flows: []models.Flow{
		{Name: "test-flow", Description: "smoke", Steps: []models.Step{{ID: "analyze", Prompt: "Analyze this: {{language}}"}}},
	}}
	orch := orchestrator.New(&staticSource{doc: doc}, backends.NewSelector(config.LLMConfig{}, nil), validation.New(false, nil), nil)
	svc, err := services.NewFlowService(orch, store, services.WithMeter(noop.NewMeterProvider().Meter("test")))
	require.NoError(t, err)

	e := echo.New()
	e.HTTPErrorHandler = ProblemErrorHandler
	Mount(e, NewHandler(svc, "test"), DocsConfig{Issuer: "https://issuer.example/", ClientID: "client-1"}, middleware...)
	return e
}

func do(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	e := newTestServer(t, repository.NewMemoryRunStore())

	rec := do(e, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", gjson.Get(rec.Body.String(), "status").String())
	assert.Equal(t, "flowkit", gjson.Get(rec.Body.String(), "service").String())

	rec = do(e, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(newTestServer(t, failingStore{}), http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestFlowRoutes(t *testing.T) {
	e := newTestServer(t, repository.NewMemoryRunStore())

	rec := do(e, http.MethodGet, "/api/v1/flows", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"name":"test-flow","description":"smoke","steps":1}]`, rec.Body.String())

	rec = do(e, http.MethodGet, "/api/v1/flows/test-flow", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "analyze", gjson.Get(rec.Body.String(), "steps.0.id").String())

	rec = do(e, http.MethodGet, "/api/v1/flows/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get(echo.HeaderContentType))
	assert.Equal(t, int64(404), gjson.Get(rec.Body.String(), "status").Int())
	assert.Equal(t, "/api/v1/flows/missing", gjson.Get(rec.Body.String(), "instance").String())
}

func TestRunFlowAndHistory(t *testing.T) {
	e := newTestServer(t, repository.NewMemoryRunStore())

	rec := do(e, http.MethodPost, "/api/v1/flows/test-flow/runs", `{"target_model":"dummy","variables":{"language":"go"}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := rec.Body.String()
	assert.True(t, gjson.Get(body, "success").Bool())
	assert.Equal(t, "ECHO: Analyze this: go", gjson.Get(body, "final_output").String())
	runID := gjson.Get(body, "run_id").String()
	require.NotEmpty(t, runID)

	rec = do(e, http.MethodPost, "/api/v1/flows/test-flow/runs", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "dummy", gjson.Get(rec.Body.String(), "target_model").String())

	rec = do(e, http.MethodGet, "/api/v1/runs/"+runID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, runID, gjson.Get(rec.Body.String(), "result.run_id").String())

	rec = do(e, http.MethodGet, "/api/v1/runs?flow=test-flow&limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1), gjson.Get(rec.Body.String(), "#").Int())

	rec = do(e, http.MethodGet, "/api/v1/runs?flow=other", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestRunFlowErrors(t *testing.T) {
	e := newTestServer(t, repository.NewMemoryRunStore())

	rec := do(e, http.MethodPost, "/api/v1/flows/missing/runs", `{"target_model":"dummy"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, gjson.Get(rec.Body.String(), "detail").String(), `"missing"`)

	rec = do(e, http.MethodPost, "/api/v1/flows/test-flow/runs", `{"variables":["x"]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(e, http.MethodGet, "/api/v1/runs/unknown", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListRunsParams(t *testing.T) {
	e := newTestServer(t, repository.NewMemoryRunStore())

	rec := do(e, http.MethodGet, "/api/v1/runs?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, gjson.Get(rec.Body.String(), "detail").String(), "limit")

	rec = do(e, http.MethodGet, "/api/v1/runs?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(newTestServer(t, failingStore{}), http.MethodGet, "/api/v1/runs", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal error", gjson.Get(rec.Body.String(), "detail").String())
}

func TestAPIGroupUsesMiddleware(t *testing.T) {
	a, err := auth.New(context.Background(), &config.Config{Environment: "DEV", Auth: config.AuthConfig{DevBypass: true}}, nil)
	require.NoError(t, err)

	store := repository.NewMemoryRunStore()
	e := newTestServer(t, store, echo.WrapMiddleware(a.RequireAuth))

	rec := do(e, http.MethodPost, "/api/v1/flows/test-flow/runs", `{}`)
	require.Equal(t, http.StatusOK, rec.Code)

	runs, err := store.ListRuns(context.Background(), "", 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, auth.DevUser, runs[0].RequestedBy)

	deny := func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error { return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token") }
	}
	e = newTestServer(t, store, deny)
	assert.Equal(t, http.StatusUnauthorized, do(e, http.MethodGet, "/api/v1/flows", "").Code)
	assert.Equal(t, http.StatusOK, do(e, http.MethodGet, "/healthz", "").Code)
}

func TestDocs(t *testing.T) {
	e := newTestServer(t, repository.NewMemoryRunStore())

	rec := do(e, http.MethodGet, "/openapi.yaml", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "https://issuer.example/.well-known/openid-configuration")
	assert.NotContains(t, rec.Body.String(), "{issuer}")

	rec = do(e, http.MethodGet, "/docs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `clientId: "client-1"`)
	assert.Contains(t, rec.Body.String(), "http://example.com/docs/oauth2-redirect.html")

	rec = do(e, http.MethodGet, "/docs/oauth2-redirect.html", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProblemErrorHandlerPlainError(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/x", nil), rec)

	ProblemErrorHandler(errors.New("secret detail"), c)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var p ProblemDetails
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, "Internal Server Error", p.Detail)
	assert.NotContains(t, rec.Body.String(), "secret")
}
