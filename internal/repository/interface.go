package repository

import (
	"context"
	"errors"

	"flowkit/pkg/models"
)

// ErrRunNotFound is returned when no run has the requested id.
var ErrRunNotFound = errors.New("run not found")

const (
	// DefaultListLimit is used when ListRuns is called without a limit.
	DefaultListLimit = 50
	// MaxListLimit caps the number of runs returned by ListRuns.
	MaxListLimit = 500
)

// RunStore is an interface for storing and retrieving run history.
type RunStore interface {
	// SaveRun saves a finished run. The run must carry a run id.
	SaveRun(ctx context.Context, run *models.RunRecord) error
	// GetRun retrieves a run by its id.
	GetRun(ctx context.Context, id string) (*models.RunRecord, error)
	// ListRuns returns the most recent runs first, optionally filtered by
	// flow name.
	ListRuns(ctx context.Context, flowName string, limit int) ([]*models.RunRecord, error)
	// EnsureSchema creates whatever the store needs to persist runs.
	EnsureSchema(ctx context.Context) error
	// Ping checks that the store is reachable.
	Ping(ctx context.Context) error
}

func normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	default:
		return limit
	}
}

func validateRecord(run *models.RunRecord) error {
	if run == nil {
		return errors.New("run record is nil")
	}
	if run.Result.RunID == "" {
		return errors.New("run record has no run id")
	}
	return nil
}
