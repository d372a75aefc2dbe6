package nodes

import "fmt"

// PauseSignal is returned (as an error) by nodes that suspend the run for
// human input. It is a control-flow signal, not a failure: the scheduler
// converts it into a normal PAUSED completion of the pausing node and holds
// back the nodes its output blocks.
type PauseSignal struct {
	// NodeID is filled in by the scheduler when the signal surfaces
	NodeID string
	Output Output
}

func (p *PauseSignal) Error() string {
	return fmt.Sprintf("workflow paused at node %s", p.NodeID)
}
