package execution

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodewave/flowrunner/common/nodes"
	"github.com/nodewave/flowrunner/common/recorder"
	"github.com/nodewave/flowrunner/common/workflow"
)

func batchDefinition() *workflow.Definition {
	return &workflow.Definition{
		Nodes: []workflow.Node{
			{ID: "input_node", NodeType: workflow.TypeInput},
			{ID: "echo", NodeType: "EchoNode"},
		},
		Links: []workflow.Link{
			{SourceID: "input_node", TargetID: "echo"},
		},
	}
}

func TestBatchRunner_ResultsKeepInputOrder(t *testing.T) {
	def := batchDefinition()
	registry := newTestRegistry()

	runner := &BatchRunner{
		New: func() (*WorkflowExecutor, error) {
			return NewWorkflowExecutor(ExecutorOpts{
				Definition: def,
				Factory:    registry,
				Recorder:   recorder.NewMemory(),
			})
		},
		BatchSize: 3,
	}

	inputs := make([]map[string]any, 10)
	for i := range inputs {
		inputs[i] = map[string]any{"n": i}
	}

	results, err := runner.Run(context.Background(), inputs)
	require.NoError(t, err)
	require.Len(t, results, 10)

	for i, res := range results {
		require.NoError(t, res.Err)
		echo, ok := res.Outputs["echo"]
		require.True(t, ok)
		assert.Equal(t, i, echo.Fields()["n"], "result %d must come from input %d", i, i)
	}
}

func TestBatchRunner_BatchSizeCapsConcurrency(t *testing.T) {
	def := batchDefinition()
	registry := nodes.NewRegistry()

	var mu sync.Mutex
	inFlight, peak := 0, 0
	registry.Register("EchoNode", func(_ string, config map[string]any) (nodes.Instance, error) {
		return stubInstance{
			call: func(_ context.Context, input map[string]any) (nodes.Output, error) {
				mu.Lock()
				inFlight++
				if inFlight > peak {
					peak = inFlight
				}
				mu.Unlock()
				defer func() {
					mu.Lock()
					inFlight--
					mu.Unlock()
				}()
				return nodes.MapOutput(input), nil
			},
			model: nodes.NewOutputModel(config),
		}, nil
	})

	runner := &BatchRunner{
		New: func() (*WorkflowExecutor, error) {
			return NewWorkflowExecutor(ExecutorOpts{
				Definition: def,
				Factory:    registry,
				Recorder:   recorder.NewMemory(),
			})
		},
		BatchSize: 2,
	}

	inputs := make([]map[string]any, 8)
	for i := range inputs {
		inputs[i] = map[string]any{"n": i}
	}

	results, err := runner.Run(context.Background(), inputs)
	require.NoError(t, err)
	require.Len(t, results, 8)

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, peak, 2)
}

func TestBatchRunner_FreshExecutorPerInput(t *testing.T) {
	def := batchDefinition()
	registry := newTestRegistry()

	var mu sync.Mutex
	built := 0
	runner := &BatchRunner{
		New: func() (*WorkflowExecutor, error) {
			mu.Lock()
			built++
			mu.Unlock()
			return NewWorkflowExecutor(ExecutorOpts{
				Definition: def,
				Factory:    registry,
				Recorder:   recorder.NewMemory(),
			})
		},
	}

	_, err := runner.Run(context.Background(), []map[string]any{
		{"n": 0}, {"n": 1}, {"n": 2},
	})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, built)
}
