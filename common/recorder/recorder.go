package recorder

import (
	"context"
	"time"
)

// TaskStatus is the lifecycle state of one node execution
type TaskStatus string

const (
	StatusPending   TaskStatus = "PENDING"
	StatusRunning   TaskStatus = "RUNNING"
	StatusCompleted TaskStatus = "COMPLETED"
	StatusFailed    TaskStatus = "FAILED"
	StatusPaused    TaskStatus = "PAUSED"
	StatusCanceled  TaskStatus = "CANCELED"
)

// Update is a partial task update. Zero-valued fields are skipped, so a
// caller only touches what it names.
type Update struct {
	Status              TaskStatus
	Inputs              map[string]any
	Outputs             map[string]any
	Subworkflow         map[string]any
	SubworkflowOutput   map[string]any
	Error               string
	IsDownstreamOfPause bool
	EndTime             *time.Time
}

// TaskRecorder receives the execution trail of a run. Implementations must be
// safe for concurrent use; the scheduler calls them from one goroutine per
// node.
type TaskRecorder interface {
	// CreateTask registers a node the moment its task is scheduled
	CreateTask(ctx context.Context, nodeID string, metadata map[string]any) error
	// UpdateTask applies a partial update to a node's task record
	UpdateTask(ctx context.Context, nodeID string, update Update) error
}

// Multi fans every call out to each recorder in order, returning the first error
type Multi []TaskRecorder

func (m Multi) CreateTask(ctx context.Context, nodeID string, metadata map[string]any) error {
	for _, r := range m {
		if err := r.CreateTask(ctx, nodeID, metadata); err != nil {
			return err
		}
	}
	return nil
}

func (m Multi) UpdateTask(ctx context.Context, nodeID string, update Update) error {
	for _, r := range m {
		if err := r.UpdateTask(ctx, nodeID, update); err != nil {
			return err
		}
	}
	return nil
}
