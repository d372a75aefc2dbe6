package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/nodewave/flowrunner/common/db"
	"github.com/nodewave/flowrunner/common/execution"
	"github.com/nodewave/flowrunner/common/models"
	"github.com/nodewave/flowrunner/common/recorder"
	"github.com/nodewave/flowrunner/common/repository"
)

// Store is the run persistence surface of the service. The Postgres store is
// used when DATABASE_URL is configured; otherwise runs live in memory for
// the lifetime of the process.
type Store interface {
	CreateRun(ctx context.Context, run *models.Run) error
	GetRun(ctx context.Context, id uuid.UUID) (*models.Run, error)
	UpdateRunStatus(ctx context.Context, id uuid.UUID, status models.RunStatus) error
	ListTasks(ctx context.Context, runID uuid.UUID) ([]models.Task, error)
	GetTask(ctx context.Context, runID uuid.UUID, nodeID string) (*models.Task, error)
	// RecorderFor returns the task recorder backing one run
	RecorderFor(runID uuid.UUID) recorder.TaskRecorder
}

// RunStoreAdapter exposes a Store as the executor's RunStore
type RunStoreAdapter struct {
	Store Store
}

func (a *RunStoreAdapter) Get(ctx context.Context, runID string) (*models.Run, error) {
	id, err := uuid.Parse(runID)
	if err != nil {
		return nil, fmt.Errorf("parse run id: %w", err)
	}
	return a.Store.GetRun(ctx, id)
}

func (a *RunStoreAdapter) UpdateStatus(ctx context.Context, runID string, status models.RunStatus) error {
	id, err := uuid.Parse(runID)
	if err != nil {
		return fmt.Errorf("parse run id: %w", err)
	}
	return a.Store.UpdateRunStatus(ctx, id, status)
}

var _ execution.RunStore = (*RunStoreAdapter)(nil)

// PostgresStore persists runs and tasks through the repositories
type PostgresStore struct {
	runs  *repository.RunRepository
	tasks *repository.TaskRepository
}

func NewPostgresStore(ctx context.Context, database *db.DB) (*PostgresStore, error) {
	if err := repository.EnsureSchema(ctx, database); err != nil {
		return nil, err
	}
	return &PostgresStore{
		runs:  repository.NewRunRepository(database),
		tasks: repository.NewTaskRepository(database),
	}, nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, run *models.Run) error {
	return s.runs.Create(ctx, run)
}

func (s *PostgresStore) GetRun(ctx context.Context, id uuid.UUID) (*models.Run, error) {
	return s.runs.GetByID(ctx, id)
}

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, id uuid.UUID, status models.RunStatus) error {
	return s.runs.UpdateStatus(ctx, id, status)
}

func (s *PostgresStore) ListTasks(ctx context.Context, runID uuid.UUID) ([]models.Task, error) {
	return s.tasks.ListByRun(ctx, runID)
}

func (s *PostgresStore) GetTask(ctx context.Context, runID uuid.UUID, nodeID string) (*models.Task, error) {
	return s.tasks.Get(ctx, runID, nodeID)
}

func (s *PostgresStore) RecorderFor(runID uuid.UUID) recorder.TaskRecorder {
	return recorder.NewPostgres(runID, s.tasks)
}

// MemoryStore keeps runs and their task trails in process
type MemoryStore struct {
	runs *execution.MemoryRunStore

	mu        sync.Mutex
	recorders map[uuid.UUID]*recorder.Memory
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:      execution.NewMemoryRunStore(),
		recorders: make(map[uuid.UUID]*recorder.Memory),
	}
}

func (s *MemoryStore) CreateRun(_ context.Context, run *models.Run) error {
	s.runs.Put(run)
	return nil
}

func (s *MemoryStore) GetRun(ctx context.Context, id uuid.UUID) (*models.Run, error) {
	return s.runs.Get(ctx, id.String())
}

func (s *MemoryStore) UpdateRunStatus(ctx context.Context, id uuid.UUID, status models.RunStatus) error {
	return s.runs.UpdateStatus(ctx, id.String(), status)
}

func (s *MemoryStore) ListTasks(_ context.Context, runID uuid.UUID) ([]models.Task, error) {
	tasks := make([]models.Task, 0)
	for _, rec := range s.recorderSnapshot(runID) {
		tasks = append(tasks, taskFromRecord(runID, rec))
	}
	return tasks, nil
}

func (s *MemoryStore) GetTask(_ context.Context, runID uuid.UUID, nodeID string) (*models.Task, error) {
	s.mu.Lock()
	mem, ok := s.recorders[runID]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("run %s has no tasks", runID)
	}
	rec, ok := mem.Task(nodeID)
	if !ok {
		return nil, fmt.Errorf("task %s/%s not found", runID, nodeID)
	}
	task := taskFromRecord(runID, rec)
	return &task, nil
}

func (s *MemoryStore) RecorderFor(runID uuid.UUID) recorder.TaskRecorder {
	s.mu.Lock()
	defer s.mu.Unlock()
	mem, ok := s.recorders[runID]
	if !ok {
		mem = recorder.NewMemory()
		s.recorders[runID] = mem
	}
	return mem
}

func (s *MemoryStore) recorderSnapshot(runID uuid.UUID) []recorder.TaskRecord {
	s.mu.Lock()
	mem, ok := s.recorders[runID]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return mem.All()
}

func taskFromRecord(runID uuid.UUID, rec recorder.TaskRecord) models.Task {
	task := models.Task{
		RunID:               runID,
		NodeID:              rec.NodeID,
		Status:              string(rec.Status),
		Inputs:              rec.Inputs,
		Outputs:             rec.Outputs,
		Subworkflow:         rec.Subworkflow,
		SubworkflowOutput:   rec.SubworkflowOutput,
		IsDownstreamOfPause: rec.IsDownstreamOfPause,
		StartTime:           rec.StartTime,
		EndTime:             rec.EndTime,
	}
	if rec.Error != "" {
		errText := rec.Error
		task.Error = &errText
	}
	return task
}
