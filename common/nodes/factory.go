package nodes

import (
	"context"
	"fmt"

	"github.com/nodewave/flowrunner/common/workflow"
)

// Instance is a live node ready to execute. Instances are created per run,
// per node; the scheduler never calls the same instance twice.
type Instance interface {
	// Call executes the node against its assembled input
	Call(ctx context.Context, input map[string]any) (Output, error)
	// OutputModel describes and validates the node's output shape
	OutputModel() OutputModel
}

// OutputModel validates a raw output map (e.g. precomputed outputs injected
// on resume) into the node's typed Output.
type OutputModel interface {
	Validate(raw map[string]any) (Output, error)
}

// RunContext carries run identity and the owning definition to nodes that
// need graph awareness (pause points computing their blocked set,
// subworkflow nodes reporting lineage).
type RunContext struct {
	RunID       string
	ParentRunID string
	RunType     string
	Definition  *workflow.Definition
}

// ContextAware is implemented by nodes that need the run context before Call
type ContextAware interface {
	SetRunContext(rc RunContext)
}

// NodeIDAware is implemented by nodes that need to know their own id in the
// definition before Call.
type NodeIDAware interface {
	SetNodeID(id string)
}

// SubworkflowReporter is implemented by nodes that execute a nested
// definition and expose it for task recording.
type SubworkflowReporter interface {
	Subworkflow() map[string]any
	SubworkflowOutput() map[string]any
}

// Constructor builds an instance from a node's title and config
type Constructor func(title string, config map[string]any) (Instance, error)

// Factory creates node instances by type
type Factory interface {
	Create(nodeType, title string, config map[string]any) (Instance, error)
}

// Registry is the default factory: a mutable mapping from node type to
// constructor. Unknown types fail loudly so a typo in a definition surfaces
// as a node failure rather than a silent no-op.
type Registry struct {
	constructors map[string]Constructor
}

// NewRegistry returns a registry preloaded with the builtin node types
func NewRegistry() *Registry {
	r := &Registry{constructors: make(map[string]Constructor)}
	r.Register(workflow.TypeInput, NewInputNode)
	r.Register(workflow.TypeOutput, NewOutputNode)
	r.Register(workflow.TypeRouter, NewRouterNode)
	r.Register(workflow.TypeCoalesce, NewCoalesceNode)
	r.Register(workflow.TypeHumanIntervention, NewHumanInterventionNode)
	r.Register(workflow.TypeTransform, NewTransformNode)
	return r
}

// Register binds a node type to its constructor, replacing any previous binding
func (r *Registry) Register(nodeType string, c Constructor) {
	r.constructors[nodeType] = c
}

// Create instantiates a node of the given type
func (r *Registry) Create(nodeType, title string, config map[string]any) (Instance, error) {
	c, ok := r.constructors[nodeType]
	if !ok {
		return nil, fmt.Errorf("unknown node type %q", nodeType)
	}
	inst, err := c(title, config)
	if err != nil {
		return nil, fmt.Errorf("create %s node: %w", nodeType, err)
	}
	return inst, nil
}
