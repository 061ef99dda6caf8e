// Package api contains the HTTP handlers for the flowkit REST API
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"flowkit/internal/orchestrator"
	"flowkit/internal/repository"
	"flowkit/pkg/models"
)

// FlowService is the part of the run service exposed over REST.
type FlowService interface {
	Execute(ctx context.Context, in orchestrator.RunInput) (*models.OrchestrationResult, error)
	ListFlows(ctx context.Context) []models.FlowSummary
	GetFlow(ctx context.Context, name string) (*models.Flow, error)
	ListRuns(ctx context.Context, flowName string, limit int) ([]*models.RunRecord, error)
	GetRun(ctx context.Context, id string) (*models.RunRecord, error)
	Ping(ctx context.Context) error
}

// Handler contains HTTP handlers for the flowkit REST API
type Handler struct {
	flows   FlowService
	version string
}

var _ ServerInterface = (*Handler)(nil)

// NewHandler creates a new Handler with required dependencies
func NewHandler(flows FlowService, version string) *Handler {
	return &Handler{flows: flows, version: version}
}

// HealthStatus represents the health check response
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
	Version   string    `json:"version"`
}

// RunFlowRequest is the body of POST /flows/{name}/runs.
type RunFlowRequest struct {
	TargetModel     string            `json:"target_model,omitempty"`
	ContextFilePath string            `json:"context_file_path,omitempty"`
	Variables       map[string]string `json:"variables,omitempty"`
}

// HandleHealth returns basic health status (always returns 200 OK)
func (h *Handler) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, h.status("ok"))
}

// HandleReady reports whether the run history store is reachable.
func (h *Handler) HandleReady(c echo.Context) error {
	if err := h.flows.Ping(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, h.status("unavailable"))
	}
	return c.JSON(http.StatusOK, h.status("ok"))
}

func (h *Handler) status(s string) HealthStatus {
	return HealthStatus{
		Status:    s,
		Timestamp: time.Now(),
		Service:   "flowkit",
		Version:   h.version,
	}
}

// ListFlows returns a summary of every available flow
// (GET /api/v1/flows)
func (h *Handler) ListFlows(c echo.Context) error {
	return c.JSON(http.StatusOK, h.flows.ListFlows(c.Request().Context()))
}

// GetFlow returns one flow definition
// (GET /api/v1/flows/{name})
func (h *Handler) GetFlow(c echo.Context, name string) error {
	flow, err := h.flows.GetFlow(c.Request().Context(), name)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, flow)
}

// RunFlow executes a flow and returns its result
// (POST /api/v1/flows/{name}/runs)
func (h *Handler) RunFlow(c echo.Context, name string) error {
	var body RunFlowRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&body); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
		}
	}

	result, err := h.flows.Execute(c.Request().Context(), orchestrator.RunInput{
		FlowName:        name,
		TargetModel:     body.TargetModel,
		ContextFilePath: body.ContextFilePath,
		Variables:       body.Variables,
	})
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, result)
}

// ListRuns returns recent runs, newest first
// (GET /api/v1/runs)
func (h *Handler) ListRuns(c echo.Context, params ListRunsParams) error {
	var flow string
	if params.Flow != nil {
		flow = *params.Flow
	}
	var limit int
	if params.Limit != nil {
		if *params.Limit < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be positive")
		}
		limit = *params.Limit
	}

	runs, err := h.flows.ListRuns(c.Request().Context(), flow, limit)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, runs)
}

// GetRun returns one recorded run
// (GET /api/v1/runs/{id})
func (h *Handler) GetRun(c echo.Context, id string) error {
	run, err := h.flows.GetRun(c.Request().Context(), id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, run)
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, orchestrator.ErrFlowNotFound), errors.Is(err, repository.ErrRunNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error").SetInternal(err)
	}
}

// ProblemDetails represents an RFC 7807 Problem Details response
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance,omitempty"`
}

// ProblemErrorHandler is an echo.HTTPErrorHandler that writes every error
// as an RFC 7807 Problem Details JSON response
func ProblemErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	detail := http.StatusText(status)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		if msg, ok := he.Message.(string); ok {
			detail = msg
		} else {
			detail = http.StatusText(status)
		}
	}

	problem := ProblemDetails{
		Type:     "about:blank",
		Title:    http.StatusText(status),
		Status:   status,
		Detail:   detail,
		Instance: c.Request().URL.Path,
	}
	c.Response().Header().Set(echo.HeaderContentType, "application/problem+json")
	c.Response().WriteHeader(status)
	if c.Request().Method != http.MethodHead {
		_ = json.NewEncoder(c.Response()).Encode(problem)
	}
}
