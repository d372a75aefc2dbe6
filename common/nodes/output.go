package nodes

import (
	"sort"
	"time"
)

// Output is what a node produces. Fields returns the key/value view that
// downstream nodes consume as input.
type Output interface {
	Fields() map[string]any
}

// MapOutput is the common case: a flat bag of named values
type MapOutput map[string]any

func (m MapOutput) Fields() map[string]any { return map[string]any(m) }

// StringSet is an unordered set of strings. Serialization renders it as a
// sorted slice so recorded outputs are deterministic.
type StringSet map[string]struct{}

func NewStringSet(values ...string) StringSet {
	s := make(StringSet, len(values))
	for _, v := range values {
		s[v] = struct{}{}
	}
	return s
}

func (s StringSet) Add(v string)           { s[v] = struct{}{} }
func (s StringSet) Contains(v string) bool { _, ok := s[v]; return ok }

// Values returns the members in lexicographic order
func (s StringSet) Values() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// RouterOutput maps each route handle to the output flowing down it. Handles
// whose predicate did not match carry nil; consumers on those handles are
// canceled by the scheduler.
type RouterOutput struct {
	Routes map[string]Output
}

func (r *RouterOutput) Fields() map[string]any {
	fields := make(map[string]any, len(r.Routes))
	for handle, out := range r.Routes {
		if out == nil {
			fields[handle] = nil
			continue
		}
		fields[handle] = out.Fields()
	}
	return fields
}

// Selected returns the output on the given handle, nil when the route was not taken
func (r *RouterOutput) Selected(handle string) Output {
	return r.Routes[handle]
}

// HumanInterventionOutput is the output of a pause point. Data is the payload
// shown to the approver, BlockedNodes the set of node ids held back until the
// pause is resolved, and ResumeTime the moment the run was resumed (nil while
// still paused).
type HumanInterventionOutput struct {
	Data         map[string]any `json:"data"`
	BlockedNodes StringSet      `json:"blocked_nodes"`
	ResumeTime   *time.Time     `json:"resume_time"`
}

func (h *HumanInterventionOutput) Fields() map[string]any {
	return map[string]any{
		"data":          h.Data,
		"blocked_nodes": h.BlockedNodes,
		"resume_time":   h.ResumeTime,
	}
}

// Paused reports whether this pause point is still holding its blocked nodes
func (h *HumanInterventionOutput) Paused() bool {
	return h.ResumeTime == nil
}

// Blocks reports whether the given node is held back by this pause point
func (h *HumanInterventionOutput) Blocks(nodeID string) bool {
	return h.BlockedNodes.Contains(nodeID)
}
