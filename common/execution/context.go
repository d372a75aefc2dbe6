package execution

import (
	"context"

	"github.com/nodewave/flowrunner/common/models"
)

// RunStore is the run-level state the executor reports into. The HTTP
// service backs it with Postgres; tests and persistence-free runs use the
// in-memory store.
type RunStore interface {
	Get(ctx context.Context, runID string) (*models.Run, error)
	UpdateStatus(ctx context.Context, runID string, status models.RunStatus) error
}

// Context identifies the run an executor is serving
type Context struct {
	RunID       string
	ParentRunID string
	RunType     models.RunType
	Runs        RunStore
}
