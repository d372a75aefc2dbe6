package nodes

import (
	"context"
	"fmt"

	"github.com/expr-lang/expr"
)

// OutputNode projects upstream fields into the run's result. Its output_map
// config maps result keys to dotted paths into the assembled input
// ("bon_node.response"); without an output_map it passes the input through.
type OutputNode struct {
	title     string
	outputMap map[string]string
	model     OutputModel
}

func NewOutputNode(title string, config map[string]any) (Instance, error) {
	n := &OutputNode{title: title, model: NewOutputModel(config)}
	if raw, ok := config["output_map"].(map[string]any); ok {
		n.outputMap = make(map[string]string, len(raw))
		for key, path := range raw {
			p, ok := path.(string)
			if !ok {
				return nil, fmt.Errorf("output_map value for %q is not a string", key)
			}
			n.outputMap[key] = p
		}
	}
	return n, nil
}

func (n *OutputNode) Call(_ context.Context, input map[string]any) (Output, error) {
	if len(n.outputMap) == 0 {
		return n.model.Validate(input)
	}

	result := make(map[string]any, len(n.outputMap))
	for key, path := range n.outputMap {
		val, err := expr.Eval(path, input)
		if err != nil {
			return nil, fmt.Errorf("resolve output path %q: %w", path, err)
		}
		result[key] = val
	}
	return n.model.Validate(result)
}

func (n *OutputNode) OutputModel() OutputModel { return n.model }
