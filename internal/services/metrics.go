package services

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"flowkit/pkg/models"
)

type runMetrics struct {
	runs     metric.Int64Counter
	steps    metric.Int64Counter
	duration metric.Float64Histogram
}

func newRunMetrics(meter metric.Meter) (*runMetrics, error) {
	runs, err := meter.Int64Counter("flowkit.runs",
		metric.WithDescription("Flow runs by outcome"),
		metric.WithUnit("{run}"))
	if err != nil {
		return nil, err
	}
	steps, err := meter.Int64Counter("flowkit.steps",
		metric.WithDescription("Executed flow steps"),
		metric.WithUnit("{step}"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("flowkit.run.duration",
		metric.WithDescription("Wall-clock duration of flow runs"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}
	return &runMetrics{runs: runs, steps: steps, duration: duration}, nil
}

func (m *runMetrics) record(ctx context.Context, result *models.OrchestrationResult) {
	outcome := "success"
	if !result.Success {
		outcome = "halted"
	}
	attrs := metric.WithAttributes(
		attribute.String("flow", result.FlowName),
		attribute.String("model", result.TargetModel),
		attribute.String("outcome", outcome),
	)
	m.runs.Add(ctx, 1, attrs)
	m.steps.Add(ctx, int64(len(result.StepsExecuted)), attrs)
	m.duration.Record(ctx, float64(result.TotalDurationMs), attrs)
}
