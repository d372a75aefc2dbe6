package execution

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/nodewave/flowrunner/common/logger"
	"github.com/nodewave/flowrunner/common/models"
	"github.com/nodewave/flowrunner/common/nodes"
	"github.com/nodewave/flowrunner/common/recorder"
	"github.com/nodewave/flowrunner/common/serialize"
	"github.com/nodewave/flowrunner/common/workflow"
)

// SubworkflowNode runs a nested definition inline: the parent's assembled
// input seeds the child's input node, and the child's output node (when
// present) becomes this node's output. A pause inside the child propagates
// to the parent run.
type SubworkflowNode struct {
	title    string
	def      *workflow.Definition
	defMap   map[string]any
	factory  nodes.Factory
	log      *logger.Logger
	runCtx   nodes.RunContext
	childOut map[string]any
}

// RegisterSubworkflow binds the SubworkflowNode constructor into a registry.
// The constructor captures the registry so child nodes resolve against the
// same node set as the parent, nested subworkflows included. Child runs
// record into their own in-memory trail; the parent task carries the child's
// definition and serialized outputs.
func RegisterSubworkflow(r *nodes.Registry, log *logger.Logger) {
	r.Register(workflow.TypeSubworkflow, func(title string, config map[string]any) (nodes.Instance, error) {
		raw, ok := config["subworkflow"].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("subworkflow node has no subworkflow config")
		}
		def, err := workflow.FromMap(raw)
		if err != nil {
			return nil, fmt.Errorf("parse subworkflow: %w", err)
		}
		return &SubworkflowNode{
			title:   title,
			def:     def,
			defMap:  raw,
			factory: r,
			log:     log,
		}, nil
	})
}

func (n *SubworkflowNode) SetRunContext(rc nodes.RunContext) {
	n.runCtx = rc
}

func (n *SubworkflowNode) Call(ctx context.Context, input map[string]any) (nodes.Output, error) {
	child, err := NewWorkflowExecutor(ExecutorOpts{
		Definition: n.def,
		Factory:    n.factory,
		Recorder:   recorder.NewMemory(),
		Logger:     n.log,
		Context: Context{
			RunID:       uuid.New().String(),
			ParentRunID: n.runCtx.RunID,
			RunType:     models.RunType(n.runCtx.RunType),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("build subworkflow executor: %w", err)
	}

	outputs, err := child.Run(ctx, input, nil, nil)
	if err != nil {
		var pauseSig *nodes.PauseSignal
		if errors.As(err, &pauseSig) {
			return nil, pauseSig
		}
		return nil, fmt.Errorf("run subworkflow: %w", err)
	}

	n.childOut = make(map[string]any, len(outputs))
	for id, out := range outputs {
		n.childOut[id] = serialize.Output(out)
	}

	for _, childNode := range n.def.Nodes {
		if childNode.NodeType == workflow.TypeOutput {
			if out, ok := outputs[childNode.ID]; ok {
				return out, nil
			}
		}
	}
	return nil, fmt.Errorf("subworkflow produced no output node result")
}

func (n *SubworkflowNode) OutputModel() nodes.OutputModel {
	return nodes.NewOutputModel(nil)
}

// Subworkflow returns the nested definition for task recording
func (n *SubworkflowNode) Subworkflow() map[string]any {
	return n.defMap
}

// SubworkflowOutput returns the serialized child outputs, nil before Call
func (n *SubworkflowNode) SubworkflowOutput() map[string]any {
	return n.childOut
}
