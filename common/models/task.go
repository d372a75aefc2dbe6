package models

import (
	"time"

	"github.com/google/uuid"
)

// Task is the durable record of one node execution inside a run
type Task struct {
	RunID             uuid.UUID      `json:"run_id"`
	NodeID            string         `json:"node_id"`
	Status            string         `json:"status"`
	Inputs            map[string]any `json:"inputs,omitempty"`
	Outputs           map[string]any `json:"outputs,omitempty"`
	Subworkflow       map[string]any `json:"subworkflow,omitempty"`
	SubworkflowOutput map[string]any `json:"subworkflow_output,omitempty"`
	Error             *string        `json:"error,omitempty"`
	// IsDownstreamOfPause marks nodes left PENDING because an upstream
	// pause point is holding them, as opposed to nodes that never ran.
	IsDownstreamOfPause bool       `json:"is_downstream_of_pause"`
	StartTime           time.Time  `json:"start_time"`
	EndTime             *time.Time `json:"end_time,omitempty"`
}
