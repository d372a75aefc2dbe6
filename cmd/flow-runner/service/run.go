package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/google/uuid"

	"github.com/nodewave/flowrunner/common/config"
	"github.com/nodewave/flowrunner/common/execution"
	"github.com/nodewave/flowrunner/common/logger"
	"github.com/nodewave/flowrunner/common/models"
	"github.com/nodewave/flowrunner/common/nodes"
	"github.com/nodewave/flowrunner/common/recorder"
	"github.com/nodewave/flowrunner/common/redis"
	"github.com/nodewave/flowrunner/common/serialize"
	"github.com/nodewave/flowrunner/common/workflow"
)

// CreateRunRequest submits a workflow for execution. Exactly one input mode
// applies: Input runs the definition once; BatchInputs fans it out over many
// inputs; UseTestInputs runs the definition's own test_inputs as a batch.
type CreateRunRequest struct {
	Definition    map[string]any   `json:"definition"`
	Input         map[string]any   `json:"input,omitempty"`
	BatchInputs   []map[string]any `json:"batch_inputs,omitempty"`
	UseTestInputs bool             `json:"use_test_inputs,omitempty"`
	// NodeIDs restricts execution to the named nodes
	NodeIDs []string `json:"node_ids,omitempty"`
}

// RunResult is the outcome of one workflow execution
type RunResult struct {
	RunID      string                    `json:"run_id"`
	Status     models.RunStatus          `json:"status"`
	Outputs    map[string]map[string]any `json:"outputs"`
	PausedNode string                    `json:"paused_node,omitempty"`
}

// BatchRunResult is the outcome of a batch submission
type BatchRunResult struct {
	RunID   string           `json:"run_id"`
	Status  models.RunStatus `json:"status"`
	Results []RunResult      `json:"results"`
}

// ResolveRequest resolves a paused node: Patch is a JSON merge patch applied
// to the recorded pause output before the run resumes.
type ResolveRequest struct {
	Patch map[string]any `json:"patch,omitempty"`
}

// RunService executes workflow runs against the configured store
type RunService struct {
	store  Store
	events *redis.Client
	cfg    *config.Config
	log    *logger.Logger
}

func NewRunService(store Store, events *redis.Client, cfg *config.Config, log *logger.Logger) *RunService {
	return &RunService{store: store, events: events, cfg: cfg, log: log}
}

// ErrRunNotResumable marks resolve attempts against runs that are not paused
var ErrRunNotResumable = errors.New("run is not paused")

// CreateRun validates the submitted definition and executes it
func (s *RunService) CreateRun(ctx context.Context, req *CreateRunRequest) (*RunResult, *BatchRunResult, error) {
	def, err := s.parseDefinition(req.Definition)
	if err != nil {
		return nil, nil, err
	}

	if req.UseTestInputs || len(req.BatchInputs) > 0 {
		batch, err := s.runBatch(ctx, def, req)
		return nil, batch, err
	}

	result, err := s.runInteractive(ctx, def, req)
	return result, nil, err
}

// GetRun returns the stored run record
func (s *RunService) GetRun(ctx context.Context, runID uuid.UUID) (*models.Run, error) {
	return s.store.GetRun(ctx, runID)
}

// ListTasks returns the execution trail of a run
func (s *RunService) ListTasks(ctx context.Context, runID uuid.UUID) ([]models.Task, error) {
	return s.store.ListTasks(ctx, runID)
}

// ResolvePause merge-patches the recorded pause output, stamps its resume
// time, and re-runs the workflow with every completed output precomputed.
func (s *RunService) ResolvePause(ctx context.Context, runID uuid.UUID, nodeID string, req *ResolveRequest) (*RunResult, error) {
	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load run: %w", err)
	}
	if run.Status != models.RunStatusPaused {
		return nil, fmt.Errorf("%w: run %s is %s", ErrRunNotResumable, runID, run.Status)
	}

	task, err := s.store.GetTask(ctx, runID, nodeID)
	if err != nil {
		return nil, fmt.Errorf("load paused task: %w", err)
	}
	if task.Status != string(recorder.StatusPaused) {
		return nil, fmt.Errorf("%w: node %s is %s", ErrRunNotResumable, nodeID, task.Status)
	}

	resolved, err := applyMergePatch(task.Outputs, req.Patch)
	if err != nil {
		return nil, err
	}
	resolved["resume_time"] = time.Now().UTC().Format(time.RFC3339)

	def, err := s.parseDefinition(run.Definition)
	if err != nil {
		return nil, err
	}

	precomputed := map[string]map[string]any{nodeID: resolved}
	tasks, err := s.store.ListTasks(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}
	for _, t := range tasks {
		if t.Status == string(recorder.StatusCompleted) && t.Outputs != nil {
			precomputed[t.NodeID] = t.Outputs
		}
	}

	return s.execute(ctx, run, def, run.InitialInput, nil, precomputed)
}

func (s *RunService) runInteractive(ctx context.Context, def *workflow.Definition, req *CreateRunRequest) (*RunResult, error) {
	run := &models.Run{
		ID:           uuid.New(),
		RunType:      models.RunTypeInteractive,
		Status:       models.RunStatusPending,
		Definition:   req.Definition,
		InitialInput: req.Input,
	}
	if err := s.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	return s.execute(ctx, run, def, req.Input, req.NodeIDs, nil)
}

func (s *RunService) runBatch(ctx context.Context, def *workflow.Definition, req *CreateRunRequest) (*BatchRunResult, error) {
	inputs := req.BatchInputs
	if req.UseTestInputs {
		inputs = def.TestInputs
	}
	if len(inputs) == 0 {
		return nil, &workflow.InvalidGraphError{Reason: "batch run has no inputs"}
	}

	run := &models.Run{
		ID:         uuid.New(),
		RunType:    models.RunTypeBatch,
		Status:     models.RunStatusRunning,
		Definition: req.Definition,
	}
	if err := s.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	runner := &execution.BatchRunner{
		BatchSize: s.cfg.Engine.BatchSize,
		New: func() (*execution.WorkflowExecutor, error) {
			return execution.NewWorkflowExecutor(execution.ExecutorOpts{
				Definition:     def,
				Factory:        s.newRegistry(),
				Recorder:       recorder.NewMemory(),
				Logger:         s.log,
				MaxErrorLength: s.cfg.Engine.MaxErrorLength,
				Context: execution.Context{
					RunID:   uuid.New().String(),
					RunType: models.RunTypeBatch,
				},
			})
		},
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Engine.RunTimeout)
	defer cancel()

	results, err := runner.Run(ctx, inputs)
	if err != nil {
		if statusErr := s.store.UpdateRunStatus(ctx, run.ID, models.RunStatusFailed); statusErr != nil {
			s.log.Warn("update batch run status failed", "run_id", run.ID, "error", statusErr)
		}
		return nil, fmt.Errorf("run batch: %w", err)
	}

	out := &BatchRunResult{RunID: run.ID.String(), Status: models.RunStatusCompleted}
	for _, res := range results {
		entry := RunResult{RunID: run.ID.String(), Outputs: serializeOutputs(res.Outputs)}
		switch {
		case res.Err == nil:
			entry.Status = models.RunStatusCompleted
		default:
			var pause *nodes.PauseSignal
			if errors.As(res.Err, &pause) {
				entry.Status = models.RunStatusPaused
				entry.PausedNode = pause.NodeID
			} else {
				entry.Status = models.RunStatusFailed
			}
			out.Status = models.RunStatusFailed
		}
		out.Results = append(out.Results, entry)
	}

	if err := s.store.UpdateRunStatus(ctx, run.ID, out.Status); err != nil {
		s.log.Warn("update batch run status failed", "run_id", run.ID, "error", err)
	}
	return out, nil
}

func (s *RunService) execute(
	ctx context.Context,
	run *models.Run,
	def *workflow.Definition,
	input map[string]any,
	nodeIDs []string,
	precomputed map[string]map[string]any,
) (*RunResult, error) {
	rec := recorder.Multi{s.store.RecorderFor(run.ID)}
	if s.events != nil {
		rec = append(rec, recorder.NewEvents(run.ID.String(), s.events))
	}

	exec, err := execution.NewWorkflowExecutor(execution.ExecutorOpts{
		Definition:     def,
		Factory:        s.newRegistry(),
		Recorder:       rec,
		Logger:         s.log,
		MaxErrorLength: s.cfg.Engine.MaxErrorLength,
		Context: execution.Context{
			RunID:   run.ID.String(),
			RunType: run.RunType,
			Runs:    &RunStoreAdapter{Store: s.store},
		},
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Engine.RunTimeout)
	defer cancel()

	outputs, err := exec.Run(ctx, input, nodeIDs, precomputed)
	result := &RunResult{
		RunID:   run.ID.String(),
		Outputs: serializeOutputs(outputs),
	}
	if err != nil {
		var pause *nodes.PauseSignal
		if errors.As(err, &pause) {
			result.Status = models.RunStatusPaused
			result.PausedNode = pause.NodeID
			return result, nil
		}
		return nil, err
	}

	stored, err := s.store.GetRun(ctx, run.ID)
	if err != nil {
		return nil, fmt.Errorf("reload run: %w", err)
	}
	result.Status = stored.Status
	return result, nil
}

func (s *RunService) newRegistry() *nodes.Registry {
	registry := nodes.NewRegistry()
	execution.RegisterSubworkflow(registry, s.log)
	return registry
}

// parseDefinition runs the raw definition through the wire schema and the
// structural checks before any run record is created.
func (s *RunService) parseDefinition(raw map[string]any) (*workflow.Definition, error) {
	if raw == nil {
		return nil, &workflow.InvalidGraphError{Reason: "no definition"}
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, &workflow.InvalidGraphError{Reason: fmt.Sprintf("marshal definition: %v", err)}
	}
	return workflow.Load(data)
}

func applyMergePatch(original, patch map[string]any) (map[string]any, error) {
	if len(patch) == 0 {
		merged := make(map[string]any, len(original))
		for k, v := range original {
			merged[k] = v
		}
		return merged, nil
	}

	originalJSON, err := json.Marshal(original)
	if err != nil {
		return nil, fmt.Errorf("marshal pause output: %w", err)
	}
	patchJSON, err := json.Marshal(patch)
	if err != nil {
		return nil, fmt.Errorf("marshal patch: %w", err)
	}
	mergedJSON, err := jsonpatch.MergePatch(originalJSON, patchJSON)
	if err != nil {
		return nil, fmt.Errorf("apply merge patch: %w", err)
	}

	var merged map[string]any
	if err := json.Unmarshal(mergedJSON, &merged); err != nil {
		return nil, fmt.Errorf("unmarshal patched output: %w", err)
	}
	return merged, nil
}

func serializeOutputs(outputs map[string]nodes.Output) map[string]map[string]any {
	result := make(map[string]map[string]any, len(outputs))
	for id, out := range outputs {
		result[id] = serialize.Output(out)
	}
	return result
}
