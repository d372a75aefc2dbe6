package recorder

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// TaskRecord is the in-memory view of one node's task
type TaskRecord struct {
	NodeID              string
	Status              TaskStatus
	Inputs              map[string]any
	Outputs             map[string]any
	Subworkflow         map[string]any
	SubworkflowOutput   map[string]any
	Error               string
	IsDownstreamOfPause bool
	StartTime           time.Time
	EndTime             *time.Time
	CreateCount         int
}

// Memory keeps task records in process, in creation order. It backs
// persistence-free runs and the engine's tests.
type Memory struct {
	mu    sync.Mutex
	order []string
	tasks map[string]*TaskRecord
}

func NewMemory() *Memory {
	return &Memory{tasks: make(map[string]*TaskRecord)}
}

func (m *Memory) CreateTask(_ context.Context, nodeID string, _ map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec, ok := m.tasks[nodeID]; ok {
		rec.CreateCount++
		return nil
	}
	m.tasks[nodeID] = &TaskRecord{
		NodeID:      nodeID,
		Status:      StatusPending,
		StartTime:   time.Now().UTC(),
		CreateCount: 1,
	}
	m.order = append(m.order, nodeID)
	return nil
}

func (m *Memory) UpdateTask(_ context.Context, nodeID string, update Update) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.tasks[nodeID]
	if !ok {
		return fmt.Errorf("task %s was never created", nodeID)
	}

	if update.Status != "" {
		rec.Status = update.Status
	}
	if update.Inputs != nil {
		rec.Inputs = update.Inputs
	}
	if update.Outputs != nil {
		rec.Outputs = update.Outputs
	}
	if update.Subworkflow != nil {
		rec.Subworkflow = update.Subworkflow
	}
	if update.SubworkflowOutput != nil {
		rec.SubworkflowOutput = update.SubworkflowOutput
	}
	if update.Error != "" {
		rec.Error = update.Error
	}
	if update.IsDownstreamOfPause {
		rec.IsDownstreamOfPause = true
	}
	if update.EndTime != nil {
		rec.EndTime = update.EndTime
	}
	return nil
}

// Task returns a copy of one node's record
func (m *Memory) Task(nodeID string) (TaskRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.tasks[nodeID]
	if !ok {
		return TaskRecord{}, false
	}
	return *rec, true
}

// All returns copies of every record in creation order
func (m *Memory) All() []TaskRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TaskRecord, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, *m.tasks[id])
	}
	return out
}
