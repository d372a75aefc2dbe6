package models

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus is the lifecycle state of a workflow run
type RunStatus string

const (
	RunStatusPending   RunStatus = "PENDING"
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusCompleted RunStatus = "COMPLETED"
	RunStatusFailed    RunStatus = "FAILED"
	RunStatusPaused    RunStatus = "PAUSED"
)

// RunType distinguishes single interactive runs from batch fan-outs
type RunType string

const (
	RunTypeInteractive RunType = "interactive"
	RunTypeBatch       RunType = "batch"
)

// Run is one execution of a workflow definition
type Run struct {
	ID           uuid.UUID      `json:"id"`
	ParentID     *uuid.UUID     `json:"parent_id,omitempty"`
	RunType      RunType        `json:"run_type"`
	Status       RunStatus      `json:"status"`
	Definition   map[string]any `json:"definition"`
	InitialInput map[string]any `json:"initial_input,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}
