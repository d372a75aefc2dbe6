package execution

import "fmt"

// UpstreamFailure marks a node skipped because a dependency failed. It
// propagates transitively: a node skipped this way fails its own consumers
// the same way.
type UpstreamFailure struct {
	NodeID string
}

func (e *UpstreamFailure) Error() string {
	return fmt.Sprintf("node %s skipped due to upstream failure", e.NodeID)
}

// UnconnectedNode marks a non-input node whose assembled input came up empty
type UnconnectedNode struct {
	NodeID string
}

func (e *UnconnectedNode) Error() string {
	return fmt.Sprintf("node %s has no input", e.NodeID)
}
