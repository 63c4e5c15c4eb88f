package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/foliosim/internal/metrics"
)

// ErrRunNotFound is returned when no run exists under the requested ID.
var ErrRunNotFound = errors.New("run not found")

// RunStatus is the lifecycle state of a persisted run
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run represents a persisted simulation run record
type Run struct {
	ID                uuid.UUID
	Name              string
	Status            RunStatus
	Config            json.RawMessage
	Result            json.RawMessage
	Error             *string
	FinalCapital      *float64
	TotalReturn       *float64
	MaxDrawdown       *float64
	TotalCycles       *int
	ProtectionEntries *int
	ProtectionExits   *int
	CreatedAt         time.Time
	StartedAt         *time.Time
	CompletedAt       *time.Time
}

// RunSummary holds the headline figures extracted from a completed run.
type RunSummary struct {
	FinalCapital      float64
	TotalReturn       float64
	MaxDrawdown       float64
	TotalCycles       int
	ProtectionEntries int
	ProtectionExits   int
}

// PoolInterface defines the interface for database pool operations
type PoolInterface interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// RunStore persists simulation runs
type RunStore struct {
	pool PoolInterface
}

// NewRunStore creates a run store on a database connection
func NewRunStore(pool PoolInterface) *RunStore {
	return &RunStore{pool: pool}
}

// NewRunStoreWithDB creates a run store on the wrapped connection pool
func NewRunStoreWithDB(database *DB) *RunStore {
	return &RunStore{pool: database.Pool()}
}

// CreateRun inserts a new run record. A zero ID is assigned, an empty
// status defaults to pending.
func (s *RunStore) CreateRun(ctx context.Context, run *Run) error {
	query := `
		INSERT INTO runs (id, name, status, config, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.Status == "" {
		run.Status = RunStatusPending
	}
	run.CreatedAt = time.Now()

	start := time.Now()
	_, err := s.pool.Exec(ctx, query,
		run.ID,
		run.Name,
		run.Status,
		run.Config,
		run.CreatedAt,
	)
	metrics.RecordDatabaseQuery("create_run", float64(time.Since(start).Milliseconds()))

	if err != nil {
		log.Error().
			Err(err).
			Str("run_id", run.ID.String()).
			Msg("Failed to create run")
		return fmt.Errorf("failed to create run: %w", err)
	}

	log.Info().
		Str("run_id", run.ID.String()).
		Str("name", run.Name).
		Msg("Simulation run created")

	return nil
}

// GetRun retrieves a run by ID
func (s *RunStore) GetRun(ctx context.Context, id uuid.UUID) (*Run, error) {
	query := `
		SELECT id, name, status, config, result, error,
		       final_capital, total_return, max_drawdown,
		       total_cycles, protection_entries, protection_exits,
		       created_at, started_at, completed_at
		FROM runs
		WHERE id = $1
	`

	start := time.Now()
	var run Run
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&run.ID,
		&run.Name,
		&run.Status,
		&run.Config,
		&run.Result,
		&run.Error,
		&run.FinalCapital,
		&run.TotalReturn,
		&run.MaxDrawdown,
		&run.TotalCycles,
		&run.ProtectionEntries,
		&run.ProtectionExits,
		&run.CreatedAt,
		&run.StartedAt,
		&run.CompletedAt,
	)
	metrics.RecordDatabaseQuery("get_run", float64(time.Since(start).Milliseconds()))

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("run %s: %w", id, ErrRunNotFound)
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return &run, nil
}

// ListRuns returns runs ordered newest first. A non-positive limit falls
// back to 50.
func (s *RunStore) ListRuns(ctx context.Context, limit, offset int) ([]*Run, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT id, name, status, config, result, error,
		       final_capital, total_return, max_drawdown,
		       total_cycles, protection_entries, protection_exits,
		       created_at, started_at, completed_at
		FROM runs
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	start := time.Now()
	rows, err := s.pool.Query(ctx, query, limit, offset)
	metrics.RecordDatabaseQuery("list_runs", float64(time.Since(start).Milliseconds()))
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		var run Run
		err := rows.Scan(
			&run.ID,
			&run.Name,
			&run.Status,
			&run.Config,
			&run.Result,
			&run.Error,
			&run.FinalCapital,
			&run.TotalReturn,
			&run.MaxDrawdown,
			&run.TotalCycles,
			&run.ProtectionEntries,
			&run.ProtectionExits,
			&run.CreatedAt,
			&run.StartedAt,
			&run.CompletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, &run)
	}

	return runs, rows.Err()
}

// UpdateRunStatus moves a run to the given status. The first transition
// to running stamps started_at.
func (s *RunStore) UpdateRunStatus(ctx context.Context, id uuid.UUID, status RunStatus) error {
	switch status {
	case RunStatusPending, RunStatusRunning, RunStatusCompleted, RunStatusFailed:
	default:
		return fmt.Errorf("invalid run status: %s", status)
	}

	query := `
		UPDATE runs
		SET status = $2,
		    started_at = CASE
		        WHEN $2 = 'running' AND started_at IS NULL THEN NOW()
		        ELSE started_at
		    END
		WHERE id = $1
	`

	start := time.Now()
	result, err := s.pool.Exec(ctx, query, id, status)
	metrics.RecordDatabaseQuery("update_run_status", float64(time.Since(start).Milliseconds()))

	if err != nil {
		log.Error().
			Err(err).
			Str("run_id", id.String()).
			Str("status", string(status)).
			Msg("Failed to update run status")
		return fmt.Errorf("failed to update run status: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("run %s: %w", id, ErrRunNotFound)
	}

	log.Debug().
		Str("run_id", id.String()).
		Str("status", string(status)).
		Msg("Run status updated")

	return nil
}

// SaveResult marks a run completed and persists its result document plus
// the headline summary columns.
func (s *RunStore) SaveResult(ctx context.Context, id uuid.UUID, result json.RawMessage, summary RunSummary) error {
	query := `
		UPDATE runs
		SET status = 'completed',
		    result = $2,
		    final_capital = $3,
		    total_return = $4,
		    max_drawdown = $5,
		    total_cycles = $6,
		    protection_entries = $7,
		    protection_exits = $8,
		    completed_at = NOW()
		WHERE id = $1
	`

	start := time.Now()
	tag, err := s.pool.Exec(ctx, query,
		id,
		result,
		summary.FinalCapital,
		summary.TotalReturn,
		summary.MaxDrawdown,
		summary.TotalCycles,
		summary.ProtectionEntries,
		summary.ProtectionExits,
	)
	metrics.RecordDatabaseQuery("save_result", float64(time.Since(start).Milliseconds()))

	if err != nil {
		log.Error().
			Err(err).
			Str("run_id", id.String()).
			Msg("Failed to save run result")
		return fmt.Errorf("failed to save run result: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("run %s: %w", id, ErrRunNotFound)
	}

	log.Info().
		Str("run_id", id.String()).
		Float64("final_capital", summary.FinalCapital).
		Float64("total_return", summary.TotalReturn).
		Int("total_cycles", summary.TotalCycles).
		Msg("Run result saved")

	return nil
}

// FailRun marks a run failed and records the failure reason.
func (s *RunStore) FailRun(ctx context.Context, id uuid.UUID, reason string) error {
	query := `
		UPDATE runs
		SET status = 'failed',
		    error = $2,
		    completed_at = NOW()
		WHERE id = $1
	`

	start := time.Now()
	tag, err := s.pool.Exec(ctx, query, id, reason)
	metrics.RecordDatabaseQuery("fail_run", float64(time.Since(start).Milliseconds()))

	if err != nil {
		log.Error().
			Err(err).
			Str("run_id", id.String()).
			Msg("Failed to mark run failed")
		return fmt.Errorf("failed to mark run failed: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("run %s: %w", id, ErrRunNotFound)
	}

	log.Warn().
		Str("run_id", id.String()).
		Str("reason", reason).
		Msg("Run marked failed")

	return nil
}

// DeleteRun removes a run record
func (s *RunStore) DeleteRun(ctx context.Context, id uuid.UUID) error {
	start := time.Now()
	tag, err := s.pool.Exec(ctx, `DELETE FROM runs WHERE id = $1`, id)
	metrics.RecordDatabaseQuery("delete_run", float64(time.Since(start).Milliseconds()))

	if err != nil {
		log.Error().
			Err(err).
			Str("run_id", id.String()).
			Msg("Failed to delete run")
		return fmt.Errorf("failed to delete run: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("run %s: %w", id, ErrRunNotFound)
	}

	log.Info().
		Str("run_id", id.String()).
		Msg("Run deleted")

	return nil
}
