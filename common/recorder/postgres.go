package recorder

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/nodewave/flowrunner/common/models"
	"github.com/nodewave/flowrunner/common/repository"
)

// Postgres records tasks for one run into the tasks table
type Postgres struct {
	runID uuid.UUID
	tasks *repository.TaskRepository
}

func NewPostgres(runID uuid.UUID, tasks *repository.TaskRepository) *Postgres {
	return &Postgres{runID: runID, tasks: tasks}
}

func (p *Postgres) CreateTask(ctx context.Context, nodeID string, metadata map[string]any) error {
	task := &models.Task{
		RunID:  p.runID,
		NodeID: nodeID,
		Status: string(StatusPending),
		Inputs: metadata,
	}
	if err := p.tasks.Create(ctx, task); err != nil {
		return fmt.Errorf("record task %s: %w", nodeID, err)
	}
	return nil
}

func (p *Postgres) UpdateTask(ctx context.Context, nodeID string, update Update) error {
	patch := repository.TaskPatch{
		Inputs:            update.Inputs,
		Outputs:           update.Outputs,
		Subworkflow:       update.Subworkflow,
		SubworkflowOutput: update.SubworkflowOutput,
		EndTime:           update.EndTime,
	}
	if update.Status != "" {
		status := string(update.Status)
		patch.Status = &status
	}
	if update.Error != "" {
		errText := update.Error
		patch.Error = &errText
	}
	if update.IsDownstreamOfPause {
		flag := true
		patch.IsDownstreamOfPause = &flag
	}

	if err := p.tasks.Update(ctx, p.runID, nodeID, patch); err != nil {
		return fmt.Errorf("patch task %s: %w", nodeID, err)
	}
	return nil
}
