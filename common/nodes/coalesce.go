package nodes

import (
	"context"
	"fmt"
	"sort"
)

// CoalesceNode merges exclusive branches back together: it waits for all of
// its upstreams and emits the first non-nil input by lexicographic source id.
// The scheduler feeds it nil for branches that were canceled or routed away
// instead of canceling the coalesce itself.
type CoalesceNode struct {
	title string
	model OutputModel
}

func NewCoalesceNode(title string, config map[string]any) (Instance, error) {
	return &CoalesceNode{title: title, model: NewOutputModel(config)}, nil
}

func (n *CoalesceNode) Call(_ context.Context, input map[string]any) (Output, error) {
	keys := make([]string, 0, len(input))
	for k := range input {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if input[k] == nil {
			continue
		}
		if m, ok := input[k].(map[string]any); ok {
			return n.model.Validate(m)
		}
		return n.model.Validate(map[string]any{"value": input[k]})
	}
	return nil, fmt.Errorf("no live branch reached coalesce")
}

func (n *CoalesceNode) OutputModel() OutputModel { return n.model }
