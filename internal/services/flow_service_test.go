package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	"flowkit/internal/auth"
	"flowkit/internal/backends"
	"flowkit/internal/config"
	"flowkit/internal/orchestrator"
	"flowkit/internal/repository"
	"flowkit/internal/validation"
	"flowkit/pkg/models"
)

type staticSource struct{ doc *models.FlowDocument }

func (s *staticSource) Load(context.Context) (*models.FlowDocument, error) { return s.doc, nil }
func (s *staticSource) Name() string                                       { return "test.yaml" }

// MockRunStore is a mock implementation of repository.RunStore.
type MockRunStore struct {
	mock.Mock
}

func (m *MockRunStore) SaveRun(ctx context.Context, run *models.RunRecord) error {
	return m.Called(ctx, run).Error(0)
}

func (m *MockRunStore) GetRun(ctx context.Context, id string) (*models.RunRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RunRecord), args.Error(1)
}

func (m *MockRunStore) ListRuns(ctx context.Context, flowName string, limit int) ([]*models.RunRecord, error) {
	args := m.Called(ctx, flowName, limit)
	return args.Get(0).([]*models.RunRecord), args.Error(1)
}

func (m *MockRunStore) EnsureSchema(ctx context.Context) error { return m.Called(ctx).Error(0) }
func (m *MockRunStore) Ping(ctx context.Context) error         { return m.Called(ctx).Error(0) }

func testOrchestrator() *orchestrator.Orchestrator {
	doc := &models.FlowDocument{Flows: []models.Flow{
		{Name: "test-flow", Description: "smoke test", Steps: []models.Step{{Prompt: "Analyze this: {{language}}"}}},
		{Name: "strict", Steps: []models.Step{
			{Prompt: "x", Validation: &models.ValidationRule{Type: models.ValidationContains, Rule: "nope", HaltOnFailure: true}},
			{Prompt: "y"},
		}},
	}}
	return orchestrator.New(&staticSource{doc: doc}, backends.NewSelector(config.LLMConfig{}, nil), validation.New(false, nil), nil)
}

func newTestService(t *testing.T, store repository.RunStore) *FlowService {
	t.Helper()
	ids := []string{"run-1", "run-2", "run-3"}
	next := 0
	svc, err := NewFlowService(testOrchestrator(), store,
		WithMeter(noop.NewMeterProvider().Meter("test")),
		WithIDGenerator(func() string {
			id := ids[next]
			next++
			return id
		}),
	)
	require.NoError(t, err)
	return svc
}

func TestExecuteRecordsRun(t *testing.T) {
	store := repository.NewMemoryRunStore()
	svc := newTestService(t, store)

	ctx := auth.WithUser(context.Background(), "user@acme.com")
	res, err := svc.Execute(ctx, orchestrator.RunInput{FlowName: "test-flow", TargetModel: "dummy"})
	require.NoError(t, err)
	assert.Equal(t, "run-1", res.RunID)
	assert.True(t, res.Success)

	rec, err := svc.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, *res, rec.Result)
	assert.Equal(t, "user@acme.com", rec.RequestedBy)
	assert.False(t, rec.CreatedAt.IsZero())

	_, err = svc.Execute(context.Background(), orchestrator.RunInput{FlowName: "strict"})
	require.NoError(t, err)

	runs, err := svc.ListRuns(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].Result.RunID)
	assert.False(t, runs[0].Result.Success)
	assert.Empty(t, runs[0].RequestedBy)

	runs, err = svc.ListRuns(ctx, "test-flow", 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestExecuteUnknownFlow(t *testing.T) {
	store := new(MockRunStore)
	svc := newTestService(t, store)

	res, err := svc.Execute(context.Background(), orchestrator.RunInput{FlowName: "missing"})
	assert.Nil(t, res)
	assert.ErrorIs(t, err, orchestrator.ErrFlowNotFound)
	store.AssertNotCalled(t, "SaveRun", mock.Anything, mock.Anything)
}

func TestExecuteToleratesStoreFailure(t *testing.T) {
	store := new(MockRunStore)
	store.On("SaveRun", mock.Anything, mock.MatchedBy(func(r *models.RunRecord) bool {
		return r.Result.RunID == "run-1" && r.Result.FlowName == "test-flow"
	})).Return(errors.New("database down"))

	svc := newTestService(t, store)

	res, err := svc.Execute(context.Background(), orchestrator.RunInput{FlowName: "test-flow"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	store.AssertExpectations(t)
}

func TestFlowQueries(t *testing.T) {
	svc := newTestService(t, repository.NewMemoryRunStore())
	ctx := context.Background()

	assert.Equal(t, []models.FlowSummary{
		{Name: "test-flow", Description: "smoke test", Steps: 1},
		{Name: "strict", Steps: 2},
	}, svc.ListFlows(ctx))

	flow, err := svc.GetFlow(ctx, "strict")
	require.NoError(t, err)
	assert.Len(t, flow.Steps, 2)

	_, err = svc.GetFlow(ctx, "missing")
	assert.ErrorIs(t, err, orchestrator.ErrFlowNotFound)

	_, err = svc.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrRunNotFound)

	assert.NoError(t, svc.Ping(ctx))
}

func TestNewFlowServiceDefaults(t *testing.T) {
	svc, err := NewFlowService(testOrchestrator(), repository.NewMemoryRunStore())
	require.NoError(t, err)

	res, err := svc.Execute(context.Background(), orchestrator.RunInput{FlowName: "test-flow"})
	require.NoError(t, err)
	assert.Len(t, res.RunID, 36)
}
