package execution

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/nodewave/flowrunner/common/logger"
	"github.com/nodewave/flowrunner/common/models"
	"github.com/nodewave/flowrunner/common/nodes"
	"github.com/nodewave/flowrunner/common/recorder"
	"github.com/nodewave/flowrunner/common/serialize"
	"github.com/nodewave/flowrunner/common/workflow"
)

const defaultMaxErrorLength = 2048

// linkKey identifies one producer/consumer pair. Routers may feed the same
// consumer through several handles, so handles are kept as a list.
type linkKey struct {
	source string
	target string
}

// nodeTask is one node's in-flight execution. The done channel closes after
// output and err are final; readers must await it before touching either.
type nodeTask struct {
	done   chan struct{}
	output nodes.Output
	err    error
}

// ExecutorOpts configures a WorkflowExecutor
type ExecutorOpts struct {
	Definition *workflow.Definition
	Factory    nodes.Factory
	Recorder   recorder.TaskRecorder
	Context    Context
	Logger     *logger.Logger
	// MaxErrorLength bounds recorded error text; 0 means the default
	MaxErrorLength int
}

// WorkflowExecutor schedules one run of a definition. Each node executes at
// most once: the first request for a node installs its task, every later
// request awaits the same task. An executor serves a single run and is not
// reusable.
type WorkflowExecutor struct {
	def       *workflow.Definition
	factory   nodes.Factory
	rec       recorder.TaskRecorder
	runCtx    Context
	log       *logger.Logger
	maxErrLen int

	nodeByID      map[string]workflow.Node
	deps          map[string]map[string]struct{}
	sourceHandles map[linkKey][]string
	inputNodeID   string

	mu sync.Mutex
	// outputs holds terminal results. Presence is the terminal marker: a
	// nil entry means the node was canceled or its route was not taken.
	// Entries are written once and never downgraded to nil afterwards.
	outputs       map[string]nodes.Output
	failed        map[string]struct{}
	tasks         map[string]*nodeTask
	initialInputs map[string]map[string]any
	// pause is the first pause signal raised during this run
	pause *nodes.PauseSignal
}

// NewWorkflowExecutor normalizes and validates the definition and prepares a
// single-run executor over it.
func NewWorkflowExecutor(opts ExecutorOpts) (*WorkflowExecutor, error) {
	if opts.Definition == nil {
		return nil, &workflow.InvalidGraphError{Reason: "no definition"}
	}
	def, err := workflow.Normalize(opts.Definition)
	if err != nil {
		return nil, err
	}
	if err := workflow.Validate(def); err != nil {
		return nil, err
	}

	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}
	maxErrLen := opts.MaxErrorLength
	if maxErrLen <= 0 {
		maxErrLen = defaultMaxErrorLength
	}

	e := &WorkflowExecutor{
		def:           def,
		factory:       opts.Factory,
		rec:           opts.Recorder,
		runCtx:        opts.Context,
		log:           log.WithRunID(opts.Context.RunID),
		maxErrLen:     maxErrLen,
		nodeByID:      make(map[string]workflow.Node, len(def.Nodes)),
		deps:          workflow.DependencyMap(def),
		sourceHandles: make(map[linkKey][]string),
		outputs:       make(map[string]nodes.Output),
		failed:        make(map[string]struct{}),
		tasks:         make(map[string]*nodeTask),
		initialInputs: make(map[string]map[string]any),
	}
	if e.rec == nil {
		e.rec = recorder.NewMemory()
	}

	for _, n := range def.Nodes {
		e.nodeByID[n.ID] = n
		if n.NodeType == workflow.TypeInput {
			e.inputNodeID = n.ID
		}
	}
	for _, l := range def.Links {
		if source, ok := e.nodeByID[l.SourceID]; ok && source.NodeType == workflow.TypeRouter {
			key := linkKey{source: l.SourceID, target: l.TargetID}
			e.sourceHandles[key] = append(e.sourceHandles[key], l.SourceHandle)
		}
	}
	return e, nil
}

// Run executes the workflow against the initial input. nodeIDs restricts
// execution to the named nodes; precomputed injects validated outputs for
// nodes that already ran (the resume path). The returned map holds every
// node that produced output. A pause surfaces as a *nodes.PauseSignal error
// alongside the outputs gathered so far; node failures do not fail the run,
// they show up as missing outputs with FAILED task records.
func (e *WorkflowExecutor) Run(
	ctx context.Context,
	input map[string]any,
	nodeIDs []string,
	precomputed map[string]map[string]any,
) (map[string]nodes.Output, error) {
	e.injectPrecomputed(precomputed)

	e.mu.Lock()
	e.initialInputs[e.inputNodeID] = input
	e.mu.Unlock()

	toRun, err := e.selectNodes(nodeIDs)
	if err != nil {
		return nil, err
	}

	e.updateRunStatus(ctx, models.RunStatusRunning)

	launched := make(map[string]*nodeTask, len(toRun))
	for _, id := range toRun {
		launched[id] = e.taskFor(ctx, id)
	}
	for _, id := range toRun {
		select {
		case <-launched[id].done:
		case <-ctx.Done():
			return e.collectOutputs(), ctx.Err()
		}
	}

	e.sweepPauseDownstream(ctx, launched)

	e.mu.Lock()
	pause := e.pause
	anyFailed := len(e.failed) > 0
	e.mu.Unlock()

	results := e.collectOutputs()
	if pause != nil {
		return results, pause
	}
	if anyFailed {
		e.updateRunStatus(ctx, models.RunStatusFailed)
	} else {
		e.updateRunStatus(ctx, models.RunStatusCompleted)
	}
	return results, nil
}

// Paused returns the pause signal raised during the run, nil if none
func (e *WorkflowExecutor) Paused() *nodes.PauseSignal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pause
}

// Definition returns the normalized definition the executor runs
func (e *WorkflowExecutor) Definition() *workflow.Definition {
	return e.def
}

// injectPrecomputed validates raw outputs through each node's output model
// and installs them as terminal results. Entries that fail validation are
// skipped with a warning rather than failing the run.
func (e *WorkflowExecutor) injectPrecomputed(precomputed map[string]map[string]any) {
	for id, raw := range precomputed {
		node, ok := e.nodeByID[id]
		if !ok {
			e.log.Warn("precomputed output for unknown node", "node_id", id)
			continue
		}
		inst, err := e.factory.Create(node.NodeType, node.Title, node.Config)
		if err != nil {
			e.log.Warn("cannot build model for precomputed output", "node_id", id, "error", err)
			continue
		}
		out, err := inst.OutputModel().Validate(raw)
		if err != nil {
			e.log.Warn("precomputed output rejected", "node_id", id, "error", err)
			continue
		}
		e.mu.Lock()
		e.outputs[id] = out
		e.mu.Unlock()
	}
}

// selectNodes resolves the set of nodes to execute, excluding nodes that
// already hold terminal output.
func (e *WorkflowExecutor) selectNodes(nodeIDs []string) ([]string, error) {
	requested := nodeIDs
	if len(requested) == 0 {
		requested = make([]string, 0, len(e.def.Nodes))
		for _, n := range e.def.Nodes {
			requested = append(requested, n.ID)
		}
	} else if err := e.checkReachability(nodeIDs); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	toRun := make([]string, 0, len(requested))
	for _, id := range requested {
		if _, done := e.outputs[id]; done {
			continue
		}
		toRun = append(toRun, id)
	}
	return toRun, nil
}

// checkReachability validates a restricted node set up front: every
// predecessor of a selected node must itself be selected, already hold
// output, or be the input node. Anything else would dangle.
func (e *WorkflowExecutor) checkReachability(nodeIDs []string) error {
	selected := make(map[string]struct{}, len(nodeIDs))
	for _, id := range nodeIDs {
		if _, ok := e.nodeByID[id]; !ok {
			return &workflow.InvalidGraphError{Reason: fmt.Sprintf("selected node %q does not exist", id)}
		}
		selected[id] = struct{}{}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for id := range selected {
		for dep := range e.deps[id] {
			if _, ok := selected[dep]; ok {
				continue
			}
			if _, done := e.outputs[dep]; done {
				continue
			}
			if dep == e.inputNodeID {
				continue
			}
			return &workflow.InvalidGraphError{
				Reason: fmt.Sprintf("selected node %q depends on %q which is neither selected nor resolved", id, dep),
			}
		}
	}
	return nil
}

// taskFor returns the node's task, installing and launching it on first
// request. The lookup and insert happen under one lock acquisition, which is
// what makes execution at-most-once.
func (e *WorkflowExecutor) taskFor(ctx context.Context, id string) *nodeTask {
	e.mu.Lock()
	if t, ok := e.tasks[id]; ok {
		e.mu.Unlock()
		return t
	}
	t := &nodeTask{done: make(chan struct{})}
	e.tasks[id] = t
	e.mu.Unlock()

	go func() {
		if err := e.rec.CreateTask(ctx, id, nil); err != nil {
			e.log.Warn("create task record failed", "node_id", id, "error", err)
		}
		t.output, t.err = e.executeNode(ctx, id)
		close(t.done)
	}()
	return t
}

// executeNode runs the node and settles its failure bookkeeping: upstream
// failures record CANCELED, everything else records FAILED with the error
// text, and both leave a nil terminal output behind.
func (e *WorkflowExecutor) executeNode(ctx context.Context, id string) (nodes.Output, error) {
	out, err := e.runNode(ctx, id)
	if err == nil {
		return out, nil
	}

	now := time.Now().UTC()
	e.markFailed(id)
	e.storeOutputIfAbsent(id, nil)

	var upstream *UpstreamFailure
	if errors.As(err, &upstream) {
		e.recordUpdate(ctx, id, recorder.Update{
			Status:  recorder.StatusCanceled,
			Error:   "Upstream failure",
			EndTime: &now,
		})
		return nil, err
	}

	e.log.Error("node failed", "node_id", id, "error", err)
	e.recordUpdate(ctx, id, recorder.Update{
		Status:  recorder.StatusFailed,
		Error:   e.truncate(err.Error()),
		EndTime: &now,
	})
	return nil, err
}

func (e *WorkflowExecutor) runNode(ctx context.Context, id string) (nodes.Output, error) {
	e.mu.Lock()
	if out, terminal := e.outputs[id]; terminal {
		e.mu.Unlock()
		return out, nil
	}
	e.mu.Unlock()

	node := e.nodeByID[id]
	depIDs := e.sortedDeps(id)

	for _, depID := range depIDs {
		e.taskFor(ctx, depID)
	}
	for _, depID := range depIDs {
		t := e.taskFor(ctx, depID)
		select {
		case <-t.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if t.err != nil {
			return nil, &UpstreamFailure{NodeID: id}
		}
	}

	if e.heldByPause(id, depIDs) {
		e.storeOutputIfAbsent(id, nil)
		e.recordUpdate(ctx, id, recorder.Update{
			Status:              recorder.StatusPending,
			IsDownstreamOfPause: true,
		})
		return nil, nil
	}

	input, live := e.assembleInput(node, depIDs)
	if !live {
		now := time.Now().UTC()
		e.storeOutputIfAbsent(id, nil)
		e.recordUpdate(ctx, id, recorder.Update{
			Status:  recorder.StatusCanceled,
			EndTime: &now,
		})
		return nil, nil
	}

	runningUpdate := recorder.Update{Status: recorder.StatusRunning}
	if node.NodeType != workflow.TypeInput {
		runningUpdate.Inputs = serialize.Map(input)
	}
	e.recordUpdate(ctx, id, runningUpdate)

	if len(input) == 0 && node.NodeType != workflow.TypeInput {
		e.storeOutputIfAbsent(id, nil)
		return nil, &UnconnectedNode{NodeID: id}
	}

	inst, err := e.factory.Create(node.NodeType, node.Title, node.Config)
	if err != nil {
		return nil, err
	}

	if aware, ok := inst.(nodes.ContextAware); ok {
		aware.SetRunContext(nodes.RunContext{
			RunID:       e.runCtx.RunID,
			ParentRunID: e.runCtx.ParentRunID,
			RunType:     string(e.runCtx.RunType),
			Definition:  e.def,
		})
	}
	if aware, ok := inst.(nodes.NodeIDAware); ok {
		aware.SetNodeID(id)
	}
	if sub, ok := inst.(nodes.SubworkflowReporter); ok {
		e.recordUpdate(ctx, id, recorder.Update{Subworkflow: sub.Subworkflow()})
	}

	out, err := inst.Call(ctx, input)
	if err != nil {
		var pauseSig *nodes.PauseSignal
		if errors.As(err, &pauseSig) {
			return e.handlePause(ctx, id, pauseSig)
		}
		return nil, fmt.Errorf("node %s: %w", id, err)
	}

	e.setOutput(id, out)
	now := time.Now().UTC()
	completed := recorder.Update{
		Status:  recorder.StatusCompleted,
		Outputs: serialize.Output(out),
		EndTime: &now,
	}
	if sub, ok := inst.(nodes.SubworkflowReporter); ok {
		completed.SubworkflowOutput = sub.SubworkflowOutput()
	}
	e.recordUpdate(ctx, id, completed)
	return out, nil
}

// heldByPause reports whether the node must stay PENDING: either a direct
// dependency is a live pause point blocking it, or the run's pause blocks it
// transitively.
func (e *WorkflowExecutor) heldByPause(id string, depIDs []string) bool {
	for _, depID := range depIDs {
		if h, ok := e.outputOf(depID).(*nodes.HumanInterventionOutput); ok && h.Paused() && h.Blocks(id) {
			return true
		}
	}

	e.mu.Lock()
	pause := e.pause
	e.mu.Unlock()
	if pause == nil {
		return false
	}
	if h, ok := pause.Output.(*nodes.HumanInterventionOutput); ok {
		return h.Paused() && h.Blocks(id)
	}
	return false
}

// assembleInput builds the node's input from its dependencies. For ordinary
// nodes the dependencies' fields are merged and any nil dependency cancels
// the node (live == false). Coalesce nodes instead receive one entry per
// dependency, keyed by source id, with nil marking dead branches.
func (e *WorkflowExecutor) assembleInput(node workflow.Node, depIDs []string) (map[string]any, bool) {
	if node.NodeType == workflow.TypeInput {
		e.mu.Lock()
		seed := e.initialInputs[node.ID]
		e.mu.Unlock()
		return seed, true
	}

	isCoalesce := node.NodeType == workflow.TypeCoalesce
	input := make(map[string]any)

	for _, depID := range depIDs {
		out := e.outputOf(depID)

		if router, ok := out.(*nodes.RouterOutput); ok {
			out = e.selectRoute(router, depID, node.ID)
		}

		if out == nil {
			if isCoalesce {
				input[depID] = nil
				continue
			}
			return nil, false
		}

		fields := out.Fields()
		if isCoalesce {
			input[depID] = fields
			continue
		}
		for k, v := range fields {
			if v == nil {
				continue
			}
			input[k] = v
		}
	}
	return input, true
}

// selectRoute resolves a router dependency to the output on the first handle
// that carries a value for this consumer, nil when every linked route was not
// taken.
func (e *WorkflowExecutor) selectRoute(router *nodes.RouterOutput, sourceID, targetID string) nodes.Output {
	handles := e.sourceHandles[linkKey{source: sourceID, target: targetID}]
	for _, handle := range handles {
		if out := router.Selected(handle); out != nil {
			return out
		}
	}
	return nil
}

func (e *WorkflowExecutor) handlePause(ctx context.Context, id string, sig *nodes.PauseSignal) (nodes.Output, error) {
	sig.NodeID = id
	out := sig.Output

	e.mu.Lock()
	e.outputs[id] = out
	if e.pause == nil {
		e.pause = sig
	}
	e.mu.Unlock()

	e.log.Info("workflow paused", "node_id", id)

	now := time.Now().UTC()
	e.recordUpdate(ctx, id, recorder.Update{
		Status:  recorder.StatusPaused,
		Outputs: serialize.Output(out),
		EndTime: &now,
	})
	e.updateRunStatus(ctx, models.RunStatusPaused)
	return out, nil
}

// sweepPauseDownstream downgrades failures downstream of the pause point to
// PENDING: those nodes did not fail, they are waiting for the pause to
// resolve.
func (e *WorkflowExecutor) sweepPauseDownstream(ctx context.Context, launched map[string]*nodeTask) {
	e.mu.Lock()
	pause := e.pause
	e.mu.Unlock()
	if pause == nil {
		return
	}

	downstream := workflow.Descendants(e.def, pause.NodeID)
	for id, t := range launched {
		if t.err == nil {
			continue
		}
		if _, ok := downstream[id]; !ok {
			continue
		}
		e.mu.Lock()
		delete(e.failed, id)
		e.mu.Unlock()
		e.recordUpdate(ctx, id, recorder.Update{
			Status:              recorder.StatusPending,
			IsDownstreamOfPause: true,
		})
	}
}

func (e *WorkflowExecutor) sortedDeps(id string) []string {
	deps := e.deps[id]
	out := make([]string, 0, len(deps))
	for dep := range deps {
		out = append(out, dep)
	}
	sort.Strings(out)
	return out
}

func (e *WorkflowExecutor) outputOf(id string) nodes.Output {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.outputs[id]
}

// setOutput records a terminal output, never downgrading a value to nil
func (e *WorkflowExecutor) setOutput(id string, out nodes.Output) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if existing, ok := e.outputs[id]; ok && existing != nil && out == nil {
		return
	}
	e.outputs[id] = out
}

func (e *WorkflowExecutor) storeOutputIfAbsent(id string, out nodes.Output) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.outputs[id]; ok {
		return
	}
	e.outputs[id] = out
}

func (e *WorkflowExecutor) markFailed(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failed[id] = struct{}{}
}

func (e *WorkflowExecutor) collectOutputs() map[string]nodes.Output {
	e.mu.Lock()
	defer e.mu.Unlock()
	results := make(map[string]nodes.Output, len(e.outputs))
	for id, out := range e.outputs {
		if out != nil {
			results[id] = out
		}
	}
	return results
}

func (e *WorkflowExecutor) recordUpdate(ctx context.Context, id string, update recorder.Update) {
	if err := e.rec.UpdateTask(ctx, id, update); err != nil {
		e.log.Warn("update task record failed", "node_id", id, "error", err)
	}
}

func (e *WorkflowExecutor) updateRunStatus(ctx context.Context, status models.RunStatus) {
	if e.runCtx.Runs == nil || e.runCtx.RunID == "" {
		return
	}
	if err := e.runCtx.Runs.UpdateStatus(ctx, e.runCtx.RunID, status); err != nil {
		e.log.Warn("update run status failed", "status", status, "error", err)
	}
}

// truncate bounds recorded error text, cutting on a rune boundary so the
// result stays valid UTF-8.
func (e *WorkflowExecutor) truncate(s string) string {
	if len(s) <= e.maxErrLen {
		return s
	}
	cut := e.maxErrLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
