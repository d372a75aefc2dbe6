package execution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nodewave/flowrunner/common/models"
)

// MemoryRunStore keeps run state in process, for persistence-free runs and tests
type MemoryRunStore struct {
	mu   sync.Mutex
	runs map[string]*models.Run
}

func NewMemoryRunStore() *MemoryRunStore {
	return &MemoryRunStore{runs: make(map[string]*models.Run)}
}

// Put registers a run, replacing any previous entry with the same id
func (s *MemoryRunStore) Put(run *models.Run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *run
	s.runs[run.ID.String()] = &copied
}

func (s *MemoryRunStore) Get(_ context.Context, runID string) (*models.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return nil, fmt.Errorf("run %s not found", runID)
	}
	copied := *run
	return &copied, nil
}

func (s *MemoryRunStore) UpdateStatus(_ context.Context, runID string, status models.RunStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return fmt.Errorf("run %s not found", runID)
	}
	run.Status = status
	run.UpdatedAt = time.Now().UTC()
	return nil
}
