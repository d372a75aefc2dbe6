package nodes

import (
	"context"
	"fmt"
	"time"

	"github.com/nodewave/flowrunner/common/workflow"
)

// HumanInterventionNode suspends the run for approval. It captures its input
// as the payload presented to the approver, computes the set of nodes held
// back until resolution, and raises a PauseSignal carrying its own output.
type HumanInterventionNode struct {
	title   string
	nodeID  string
	def     *workflow.Definition
	blocked []string
}

func NewHumanInterventionNode(title string, config map[string]any) (Instance, error) {
	n := &HumanInterventionNode{title: title}
	if raw, ok := config["blocked_nodes"].([]any); ok {
		for i, v := range raw {
			id, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("blocked_nodes[%d] is not a string", i)
			}
			n.blocked = append(n.blocked, id)
		}
	}
	return n, nil
}

// SetRunContext gives the node the definition it sits in so it can default
// its blocked set to everything transitively downstream of itself.
func (n *HumanInterventionNode) SetRunContext(rc RunContext) {
	n.def = rc.Definition
}

// SetNodeID is called by the scheduler before Call so the node can locate
// itself in the definition.
func (n *HumanInterventionNode) SetNodeID(id string) {
	n.nodeID = id
}

func (n *HumanInterventionNode) Call(_ context.Context, input map[string]any) (Output, error) {
	blocked := NewStringSet(n.blocked...)
	if len(blocked) == 0 && n.def != nil && n.nodeID != "" {
		for id := range workflow.Descendants(n.def, n.nodeID) {
			blocked.Add(id)
		}
	}

	out := &HumanInterventionOutput{
		Data:         input,
		BlockedNodes: blocked,
		ResumeTime:   nil,
	}
	return nil, &PauseSignal{Output: out}
}

func (n *HumanInterventionNode) OutputModel() OutputModel { return humanModel{} }

// humanModel rebuilds a HumanInterventionOutput from recorded or patched
// fields. A non-null resume_time means the pause has been resolved and the
// node no longer blocks its downstream set.
type humanModel struct{}

func (humanModel) Validate(raw map[string]any) (Output, error) {
	out := &HumanInterventionOutput{
		Data:         map[string]any{},
		BlockedNodes: NewStringSet(),
	}

	if data, ok := raw["data"].(map[string]any); ok {
		out.Data = data
	}
	switch blocked := raw["blocked_nodes"].(type) {
	case []any:
		for i, v := range blocked {
			id, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("blocked_nodes[%d] is not a string", i)
			}
			out.BlockedNodes.Add(id)
		}
	case []string:
		out.BlockedNodes = NewStringSet(blocked...)
	case StringSet:
		out.BlockedNodes = blocked
	case nil:
	default:
		return nil, fmt.Errorf("blocked_nodes has unsupported type %T", blocked)
	}

	switch rt := raw["resume_time"].(type) {
	case nil:
	case *time.Time:
		out.ResumeTime = rt
	case time.Time:
		out.ResumeTime = &rt
	case string:
		parsed, err := time.Parse(time.RFC3339, rt)
		if err != nil {
			return nil, fmt.Errorf("parse resume_time: %w", err)
		}
		out.ResumeTime = &parsed
	default:
		return nil, fmt.Errorf("resume_time has unsupported type %T", rt)
	}

	return out, nil
}
