package repository

import (
	"context"
	"sync"
	"time"

	"flowkit/pkg/models"
)

// MemoryRunStore keeps the most recent runs in process memory. It is used
// when no database is configured.
type MemoryRunStore struct {
	mu       sync.RWMutex
	runs     []*models.RunRecord
	byID     map[string]*models.RunRecord
	capacity int
}

// NewMemoryRunStore creates an empty MemoryRunStore holding up to
// MaxListLimit runs.
func NewMemoryRunStore() *MemoryRunStore {
	return &MemoryRunStore{byID: make(map[string]*models.RunRecord), capacity: MaxListLimit}
}

// WithCapacity sets how many runs are kept; the oldest are dropped first.
func (s *MemoryRunStore) WithCapacity(n int) *MemoryRunStore {
	if n > 0 {
		s.capacity = n
	}
	return s
}

// EnsureSchema is a no-op.
func (s *MemoryRunStore) EnsureSchema(context.Context) error { return nil }

// Ping always succeeds.
func (s *MemoryRunStore) Ping(context.Context) error { return nil }

// SaveRun saves a copy of run.
func (s *MemoryRunStore) SaveRun(_ context.Context, run *models.RunRecord) error {
	if err := validateRecord(run); err != nil {
		return err
	}

	stored := clone(run)
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[stored.Result.RunID]; ok {
		return &DuplicateRunError{ID: stored.Result.RunID}
	}
	s.runs = append(s.runs, stored)
	s.byID[stored.Result.RunID] = stored

	if excess := len(s.runs) - s.capacity; excess > 0 {
		for _, old := range s.runs[:excess] {
			delete(s.byID, old.Result.RunID)
		}
		s.runs = append(s.runs[:0:0], s.runs[excess:]...)
	}
	return nil
}

// GetRun returns a copy of the run with the given id.
func (s *MemoryRunStore) GetRun(_ context.Context, id string) (*models.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.byID[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	return clone(run), nil
}

// ListRuns returns copies of recent runs, newest first.
func (s *MemoryRunStore) ListRuns(_ context.Context, flowName string, limit int) ([]*models.RunRecord, error) {
	limit = normalizeLimit(limit)

	s.mu.RLock()
	defer s.mu.RUnlock()
	runs := []*models.RunRecord{}
	for i := len(s.runs) - 1; i >= 0 && len(runs) < limit; i-- {
		if flowName != "" && s.runs[i].Result.FlowName != flowName {
			continue
		}
		runs = append(runs, clone(s.runs[i]))
	}
	return runs, nil
}

// DuplicateRunError is returned when a run id is saved twice.
type DuplicateRunError struct {
	ID string
}

func (e *DuplicateRunError) Error() string {
	return "run " + e.ID + " already exists"
}

func clone(run *models.RunRecord) *models.RunRecord {
	c := *run
	c.Result.StepsExecuted = append([]models.StepResult(nil), run.Result.StepsExecuted...)
	return &c
}
