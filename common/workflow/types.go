package workflow

import "encoding/json"

// Engine-significant node types. The node registry accepts arbitrary user
// types; the scheduler branches only on this closed set.
const (
	TypeInput             = "InputNode"
	TypeOutput            = "OutputNode"
	TypeRouter            = "RouterNode"
	TypeCoalesce          = "CoalesceNode"
	TypeHumanIntervention = "HumanInterventionNode"
	TypeSubworkflow       = "SubworkflowNode"
	TypeTransform         = "TransformNode"
)

// Node is one vertex of a workflow definition
type Node struct {
	ID       string         `json:"id"`
	Title    string         `json:"title"`
	NodeType string         `json:"node_type"`
	Config   map[string]any `json:"config,omitempty"`
	// ParentID is non-nil iff this node is a child in a subworkflow.
	// The loader folds children into parent.config.subworkflow, so a
	// normalized definition carries no parent ids.
	ParentID *string `json:"parent_id,omitempty"`
}

// Link carries a typed value from a producer's output to a consumer's input.
// SourceHandle is required when the source is a RouterNode and names the
// output channel feeding the consumer; it is ignored otherwise.
type Link struct {
	SourceID     string `json:"source_id"`
	TargetID     string `json:"target_id"`
	SourceHandle string `json:"source_handle,omitempty"`
}

// Definition is an immutable workflow graph. Node ordering only determines
// iteration order for reporting.
type Definition struct {
	Nodes      []Node           `json:"nodes"`
	Links      []Link           `json:"links"`
	TestInputs []map[string]any `json:"test_inputs,omitempty"`
}

// Node returns the node with the given id
func (d *Definition) Node(id string) (Node, bool) {
	for _, n := range d.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// AsMap renders the definition as a JSON-shaped map, the form stored under a
// parent node's config.subworkflow.
func (d *Definition) AsMap() (map[string]any, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// FromMap rebuilds a definition from its JSON-shaped map form
func FromMap(m map[string]any) (*Definition, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var d Definition
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// DependencyMap builds id -> set of predecessor ids for every node.
// Every node id is present, even when it has no predecessors.
func DependencyMap(d *Definition) map[string]map[string]struct{} {
	deps := make(map[string]map[string]struct{}, len(d.Nodes))
	for _, n := range d.Nodes {
		deps[n.ID] = make(map[string]struct{})
	}
	for _, l := range d.Links {
		if _, ok := deps[l.TargetID]; ok {
			deps[l.TargetID][l.SourceID] = struct{}{}
		}
	}
	return deps
}

// Descendants returns the set of nodes transitively downstream of id
func Descendants(d *Definition, id string) map[string]struct{} {
	succ := make(map[string][]string)
	for _, l := range d.Links {
		succ[l.SourceID] = append(succ[l.SourceID], l.TargetID)
	}

	seen := make(map[string]struct{})
	queue := append([]string(nil), succ[id]...)
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if _, ok := seen[next]; ok {
			continue
		}
		seen[next] = struct{}{}
		queue = append(queue, succ[next]...)
	}
	return seen
}
