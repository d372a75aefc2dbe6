package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nodewave/flowrunner/common/db"
	"github.com/nodewave/flowrunner/common/models"
)

// RunRepository persists runs in Postgres
type RunRepository struct {
	db *db.DB
}

func NewRunRepository(database *db.DB) *RunRepository {
	return &RunRepository{db: database}
}

// EnsureSchema creates the runs and tasks tables when they do not exist yet
func EnsureSchema(ctx context.Context, database *db.DB) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS runs (
			id UUID PRIMARY KEY,
			parent_id UUID REFERENCES runs(id),
			run_type TEXT NOT NULL,
			status TEXT NOT NULL,
			definition JSONB NOT NULL,
			initial_input JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE TABLE IF NOT EXISTS tasks (
			run_id UUID NOT NULL REFERENCES runs(id),
			node_id TEXT NOT NULL,
			status TEXT NOT NULL,
			inputs JSONB,
			outputs JSONB,
			subworkflow JSONB,
			subworkflow_output JSONB,
			error TEXT,
			is_downstream_of_pause BOOLEAN NOT NULL DEFAULT FALSE,
			start_time TIMESTAMPTZ NOT NULL DEFAULT now(),
			end_time TIMESTAMPTZ,
			PRIMARY KEY (run_id, node_id)
		);
		CREATE INDEX IF NOT EXISTS idx_tasks_run_id ON tasks(run_id);
	`
	if _, err := database.Pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Create inserts a new run row
func (r *RunRepository) Create(ctx context.Context, run *models.Run) error {
	query := `
		INSERT INTO runs (id, parent_id, run_type, status, definition, initial_input)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`
	err := r.db.Pool.QueryRow(ctx, query,
		run.ID, run.ParentID, run.RunType, run.Status, run.Definition, run.InitialInput,
	).Scan(&run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	return nil
}

// GetByID fetches a run by id. Missing runs return pgx.ErrNoRows.
func (r *RunRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Run, error) {
	query := `
		SELECT id, parent_id, run_type, status, definition, initial_input, created_at, updated_at
		FROM runs
		WHERE id = $1
	`
	var run models.Run
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&run.ID, &run.ParentID, &run.RunType, &run.Status,
		&run.Definition, &run.InitialInput, &run.CreatedAt, &run.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("select run %s: %w", id, err)
	}
	return &run, nil
}

// UpdateStatus moves a run to a new lifecycle state
func (r *RunRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.RunStatus) error {
	query := `UPDATE runs SET status = $2, updated_at = now() WHERE id = $1`
	tag, err := r.db.Pool.Exec(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("update run %s status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("run %s not found", id)
	}
	return nil
}
