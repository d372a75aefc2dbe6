package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nodewave/flowrunner/common/db"
	"github.com/nodewave/flowrunner/common/models"
)

// TaskRepository persists per-node task records in Postgres
type TaskRepository struct {
	db *db.DB
}

func NewTaskRepository(database *db.DB) *TaskRepository {
	return &TaskRepository{db: database}
}

// TaskPatch is a partial update of a task row. Nil fields are left untouched.
type TaskPatch struct {
	Status              *string
	Inputs              map[string]any
	Outputs             map[string]any
	Subworkflow         map[string]any
	SubworkflowOutput   map[string]any
	Error               *string
	IsDownstreamOfPause *bool
	EndTime             *time.Time
}

// Create inserts a task row in PENDING state
func (r *TaskRepository) Create(ctx context.Context, task *models.Task) error {
	query := `
		INSERT INTO tasks (run_id, node_id, status, inputs)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (run_id, node_id) DO UPDATE SET status = EXCLUDED.status
		RETURNING start_time
	`
	err := r.db.Pool.QueryRow(ctx, query,
		task.RunID, task.NodeID, task.Status, task.Inputs,
	).Scan(&task.StartTime)
	if err != nil {
		return fmt.Errorf("insert task %s/%s: %w", task.RunID, task.NodeID, err)
	}
	return nil
}

// Update applies a patch to a task row, setting only the provided fields
func (r *TaskRepository) Update(ctx context.Context, runID uuid.UUID, nodeID string, patch TaskPatch) error {
	sets := []string{}
	args := []any{runID, nodeID}
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Status != nil {
		add("status", *patch.Status)
	}
	if patch.Inputs != nil {
		add("inputs", patch.Inputs)
	}
	if patch.Outputs != nil {
		add("outputs", patch.Outputs)
	}
	if patch.Subworkflow != nil {
		add("subworkflow", patch.Subworkflow)
	}
	if patch.SubworkflowOutput != nil {
		add("subworkflow_output", patch.SubworkflowOutput)
	}
	if patch.Error != nil {
		add("error", *patch.Error)
	}
	if patch.IsDownstreamOfPause != nil {
		add("is_downstream_of_pause", *patch.IsDownstreamOfPause)
	}
	if patch.EndTime != nil {
		add("end_time", *patch.EndTime)
	}
	if len(sets) == 0 {
		return nil
	}

	query := fmt.Sprintf(
		"UPDATE tasks SET %s WHERE run_id = $1 AND node_id = $2",
		strings.Join(sets, ", "),
	)
	tag, err := r.db.Pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update task %s/%s: %w", runID, nodeID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("task %s/%s not found", runID, nodeID)
	}
	return nil
}

// Get fetches one task. Missing tasks return pgx.ErrNoRows.
func (r *TaskRepository) Get(ctx context.Context, runID uuid.UUID, nodeID string) (*models.Task, error) {
	query := `
		SELECT run_id, node_id, status, inputs, outputs, subworkflow, subworkflow_output,
		       error, is_downstream_of_pause, start_time, end_time
		FROM tasks
		WHERE run_id = $1 AND node_id = $2
	`
	var task models.Task
	err := r.db.Pool.QueryRow(ctx, query, runID, nodeID).Scan(
		&task.RunID, &task.NodeID, &task.Status, &task.Inputs, &task.Outputs,
		&task.Subworkflow, &task.SubworkflowOutput, &task.Error,
		&task.IsDownstreamOfPause, &task.StartTime, &task.EndTime,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("select task %s/%s: %w", runID, nodeID, err)
	}
	return &task, nil
}

// ListByRun returns every task of a run in creation order
func (r *TaskRepository) ListByRun(ctx context.Context, runID uuid.UUID) ([]models.Task, error) {
	query := `
		SELECT run_id, node_id, status, inputs, outputs, subworkflow, subworkflow_output,
		       error, is_downstream_of_pause, start_time, end_time
		FROM tasks
		WHERE run_id = $1
		ORDER BY start_time, node_id
	`
	rows, err := r.db.Pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("list tasks for run %s: %w", runID, err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		var task models.Task
		if err := rows.Scan(
			&task.RunID, &task.NodeID, &task.Status, &task.Inputs, &task.Outputs,
			&task.Subworkflow, &task.SubworkflowOutput, &task.Error,
			&task.IsDownstreamOfPause, &task.StartTime, &task.EndTime,
		); err != nil {
			return nil, fmt.Errorf("scan task row: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}
