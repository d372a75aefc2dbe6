package execution

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/nodewave/flowrunner/common/nodes"
)

const defaultBatchSize = 100

// BatchResult is one input's outcome inside a batch run. Err carries the
// run-level error (a pause inside a batch surfaces here as well); per-node
// failures stay inside the run's task records.
type BatchResult struct {
	Outputs map[string]nodes.Output
	Err     error
}

// BatchRunner executes many inputs over the same definition, a batch at a
// time. Every run gets a fresh executor from New, so no state leaks between
// inputs. Each batch runs fully before the next one starts.
type BatchRunner struct {
	// New builds the executor for one input
	New func() (*WorkflowExecutor, error)
	// BatchSize caps how many runs are in flight at once; 0 means the default
	BatchSize int
}

// Run executes every input and returns one result per input, in input order
func (b *BatchRunner) Run(ctx context.Context, inputs []map[string]any) ([]BatchResult, error) {
	if b.New == nil {
		return nil, fmt.Errorf("batch runner has no executor constructor")
	}
	size := b.BatchSize
	if size <= 0 {
		size = defaultBatchSize
	}

	results := make([]BatchResult, len(inputs))
	for start := 0; start < len(inputs); start += size {
		end := start + size
		if end > len(inputs) {
			end = len(inputs)
		}

		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				exec, err := b.New()
				if err != nil {
					results[i] = BatchResult{Err: err}
					return nil
				}
				outputs, err := exec.Run(gctx, inputs[i], nil, nil)
				results[i] = BatchResult{Outputs: outputs, Err: err}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return results, err
		}
	}
	return results, nil
}
