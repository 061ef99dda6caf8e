// Package services composes the orchestrator with run history and metrics.
package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"flowkit/internal/auth"
	"flowkit/internal/orchestrator"
	"flowkit/internal/repository"
	"flowkit/pkg/models"
)

const meterName = "flowkit"

// FlowRunner executes flows and exposes the loaded flow document.
type FlowRunner interface {
	Run(ctx context.Context, in orchestrator.RunInput) (*models.OrchestrationResult, error)
	LoadFlows(ctx context.Context) *models.FlowDocument
}

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// FlowService is the entry point shared by the MCP, REST and CLI surfaces.
type FlowService struct {
	runner  FlowRunner
	store   repository.RunStore
	logger  Logger
	meter   metric.Meter
	newID   func() string
	now     func() time.Time
	metrics *runMetrics
}

// Option configures a FlowService.
type Option func(*FlowService)

// WithLogger sets the service logger.
func WithLogger(logger Logger) Option {
	return func(s *FlowService) { s.logger = logger }
}

// WithMeter sets the meter run metrics are recorded with. The global meter
// provider is used otherwise.
func WithMeter(meter metric.Meter) Option {
	return func(s *FlowService) { s.meter = meter }
}

// WithIDGenerator replaces the run id generator.
func WithIDGenerator(newID func() string) Option {
	return func(s *FlowService) { s.newID = newID }
}

// NewFlowService creates a new FlowService.
func NewFlowService(runner FlowRunner, store repository.RunStore, opts ...Option) (*FlowService, error) {
	s := &FlowService{
		runner: runner,
		store:  store,
		logger: nopLogger{},
		newID:  func() string { return uuid.New().String() },
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.meter == nil {
		s.meter = otel.Meter(meterName)
	}

	m, err := newRunMetrics(s.meter)
	if err != nil {
		return nil, err
	}
	s.metrics = m
	return s, nil
}

// Execute runs a flow, assigns it a run id and records it in the run
// history. Failing to record a run is logged and does not fail the call.
func (s *FlowService) Execute(ctx context.Context, in orchestrator.RunInput) (*models.OrchestrationResult, error) {
	result, err := s.runner.Run(ctx, in)
	if err != nil {
		s.metrics.runs.Add(ctx, 1, metric.WithAttributes(
			attribute.String("flow", in.FlowName),
			attribute.String("outcome", "error"),
		))
		s.logger.Warn("flow run rejected", "flow", in.FlowName, "error", err)
		return nil, err
	}

	result.RunID = s.newID()
	s.metrics.record(ctx, result)

	record := &models.RunRecord{
		Result:      *result,
		RequestedBy: auth.UserFromContext(ctx),
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.SaveRun(context.WithoutCancel(ctx), record); err != nil {
		s.logger.Error("failed to record run", "run_id", result.RunID, "error", err)
	}

	s.logger.Info("flow run recorded", "run_id", result.RunID, "flow", result.FlowName, "success", result.Success)
	return result, nil
}

// ListFlows summarizes the flows currently available.
func (s *FlowService) ListFlows(ctx context.Context) []models.FlowSummary {
	return s.runner.LoadFlows(ctx).Summarize()
}

// GetFlow returns the named flow definition.
func (s *FlowService) GetFlow(ctx context.Context, name string) (*models.Flow, error) {
	flow := s.runner.LoadFlows(ctx).Find(name)
	if flow == nil {
		return nil, &orchestrator.FlowNotFoundError{Name: name}
	}
	return flow, nil
}

// ListRuns returns recent runs, newest first.
func (s *FlowService) ListRuns(ctx context.Context, flowName string, limit int) ([]*models.RunRecord, error) {
	return s.store.ListRuns(ctx, flowName, limit)
}

// GetRun returns a recorded run.
func (s *FlowService) GetRun(ctx context.Context, id string) (*models.RunRecord, error) {
	return s.store.GetRun(ctx, id)
}

// Ping checks the run history store.
func (s *FlowService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
