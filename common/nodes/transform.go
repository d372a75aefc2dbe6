package nodes

import (
	"context"
	"fmt"

	"github.com/expr-lang/expr"
)

// TransformNode evaluates a single expression over its assembled input. A map
// result becomes the output directly; any other value is wrapped under
// "value".
type TransformNode struct {
	title      string
	expression string
	model      OutputModel
}

func NewTransformNode(title string, config map[string]any) (Instance, error) {
	expression, _ := config["expression"].(string)
	if expression == "" {
		return nil, fmt.Errorf("transform requires an expression")
	}
	if _, err := expr.Compile(expression, expr.AllowUndefinedVariables()); err != nil {
		return nil, fmt.Errorf("compile expression: %w", err)
	}
	return &TransformNode{
		title:      title,
		expression: expression,
		model:      NewOutputModel(config),
	}, nil
}

func (n *TransformNode) Call(_ context.Context, input map[string]any) (Output, error) {
	result, err := expr.Eval(n.expression, input)
	if err != nil {
		return nil, fmt.Errorf("evaluate expression: %w", err)
	}
	if m, ok := result.(map[string]any); ok {
		return n.model.Validate(m)
	}
	return n.model.Validate(map[string]any{"value": result})
}

func (n *TransformNode) OutputModel() OutputModel { return n.model }
