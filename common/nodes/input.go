package nodes

import "context"

// InputNode seeds the run: it echoes the initial input handed to the run,
// validated against its output_schema when one is declared.
type InputNode struct {
	title string
	model OutputModel
}

func NewInputNode(title string, config map[string]any) (Instance, error) {
	return &InputNode{title: title, model: NewOutputModel(config)}, nil
}

func (n *InputNode) Call(_ context.Context, input map[string]any) (Output, error) {
	return n.model.Validate(input)
}

func (n *InputNode) OutputModel() OutputModel { return n.model }
