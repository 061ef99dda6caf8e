package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"flowkit/pkg/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS flow_runs (
	id UUID PRIMARY KEY,
	flow_name TEXT NOT NULL,
	target_model TEXT NOT NULL,
	success BOOLEAN NOT NULL,
	final_output TEXT,
	total_duration_ms BIGINT NOT NULL,
	steps JSONB NOT NULL,
	requested_by TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS flow_runs_flow_created_idx ON flow_runs (flow_name, created_at DESC);
`

const selectRun = `SELECT id::text, flow_name, target_model, success, final_output, total_duration_ms, steps, requested_by, created_at FROM flow_runs`

// PostgresRunStore is a PostgreSQL implementation of the RunStore interface.
type PostgresRunStore struct {
	db *pgxpool.Pool
}

// NewPostgresRunStore creates a new PostgresRunStore.
func NewPostgresRunStore(db *pgxpool.Pool) *PostgresRunStore {
	return &PostgresRunStore{db: db}
}

// Connect opens and pings a connection pool.
func Connect(ctx context.Context, url string, maxConns int32) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	if maxConns > 0 {
		poolConfig.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// EnsureSchema creates the flow_runs table if it does not exist.
func (s *PostgresRunStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Ping checks the database connection.
func (s *PostgresRunStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// SaveRun saves a run to the store.
func (s *PostgresRunStore) SaveRun(ctx context.Context, run *models.RunRecord) error {
	if err := validateRecord(run); err != nil {
		return err
	}
	id, err := uuid.Parse(run.Result.RunID)
	if err != nil {
		return fmt.Errorf("invalid run id %q: %w", run.Result.RunID, err)
	}

	steps, err := json.Marshal(run.Result.StepsExecuted)
	if err != nil {
		return fmt.Errorf("failed to encode steps: %w", err)
	}

	createdAt := run.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = s.db.Exec(ctx,
		"INSERT INTO flow_runs (id, flow_name, target_model, success, final_output, total_duration_ms, steps, requested_by, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)",
		id.String(), run.Result.FlowName, run.Result.TargetModel, run.Result.Success, run.Result.FinalOutput,
		run.Result.TotalDurationMs, steps, run.RequestedBy, createdAt)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by its id.
func (s *PostgresRunStore) GetRun(ctx context.Context, id string) (*models.RunRecord, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrRunNotFound
	}

	run, err := scanRun(s.db.QueryRow(ctx, selectRun+" WHERE id = $1", parsed.String()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns returns recent runs, newest first.
func (s *PostgresRunStore) ListRuns(ctx context.Context, flowName string, limit int) ([]*models.RunRecord, error) {
	rows, err := s.db.Query(ctx,
		selectRun+" WHERE ($1::text = '' OR flow_name = $1::text) ORDER BY created_at DESC LIMIT $2",
		flowName, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []*models.RunRecord{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

func scanRun(row pgx.Row) (*models.RunRecord, error) {
	var (
		run   models.RunRecord
		steps []byte
	)
	err := row.Scan(&run.Result.RunID, &run.Result.FlowName, &run.Result.TargetModel, &run.Result.Success,
		&run.Result.FinalOutput, &run.Result.TotalDurationMs, &steps, &run.RequestedBy, &run.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(steps, &run.Result.StepsExecuted); err != nil {
		return nil, fmt.Errorf("failed to decode steps: %w", err)
	}
	return &run, nil
}
