package workflow

import "fmt"

// InvalidGraphError means the definition cannot be scheduled: missing link
// endpoint, missing router handle, cycle, or a malformed document. It is
// raised before any node executes.
type InvalidGraphError struct {
	Reason string
}

func (e *InvalidGraphError) Error() string {
	return "invalid graph: " + e.Reason
}

func invalidGraphf(format string, args ...any) *InvalidGraphError {
	return &InvalidGraphError{Reason: fmt.Sprintf(format, args...)}
}

// Load parses, normalizes and validates a JSON workflow document
func Load(data []byte) (*Definition, error) {
	def, err := Parse(data)
	if err != nil {
		return nil, err
	}
	def, err = Normalize(def)
	if err != nil {
		return nil, err
	}
	if err := Validate(def); err != nil {
		return nil, err
	}
	return def, nil
}

// Normalize hoists child nodes into parent-owned subworkflows. The result is
// an equivalent definition in which every node has a nil parent id: each
// parent's children and their intra-child links are folded into the parent's
// config under "subworkflow", and links crossing the parent boundary are
// dropped (a child only communicates inside its subworkflow).
func Normalize(def *Definition) (*Definition, error) {
	childless := true
	for _, n := range def.Nodes {
		if n.ParentID != nil {
			childless = false
			break
		}
	}
	if childless {
		return def, nil
	}

	childIDs := make(map[string]struct{})
	childrenByParent := make(map[string][]Node)
	var rootNodes []Node

	for _, n := range def.Nodes {
		if n.ParentID == nil {
			rootNodes = append(rootNodes, n)
			continue
		}
		parentID := *n.ParentID
		child := n
		child.ParentID = nil
		childrenByParent[parentID] = append(childrenByParent[parentID], child)
		childIDs[n.ID] = struct{}{}
	}

	// Intra-child links become the subworkflow's links; the rest survive at
	// the top level only when neither endpoint was a child.
	var rootLinks []Link
	linksByParent := make(map[string][]Link)
	memberOf := make(map[string]string)
	for parentID, children := range childrenByParent {
		for _, c := range children {
			memberOf[c.ID] = parentID
		}
	}

	for _, l := range def.Links {
		sp, sourceIsChild := memberOf[l.SourceID]
		tp, targetIsChild := memberOf[l.TargetID]
		switch {
		case sourceIsChild && targetIsChild && sp == tp:
			linksByParent[sp] = append(linksByParent[sp], l)
		case !sourceIsChild && !targetIsChild:
			rootLinks = append(rootLinks, l)
		}
	}

	out := make([]Node, 0, len(rootNodes))
	for _, parent := range rootNodes {
		children, ok := childrenByParent[parent.ID]
		if !ok {
			out = append(out, parent)
			continue
		}

		sub := Definition{Nodes: children, Links: linksByParent[parent.ID]}
		subMap, err := sub.AsMap()
		if err != nil {
			return nil, invalidGraphf("fold subworkflow of %s: %v", parent.ID, err)
		}

		cfg := make(map[string]any, len(parent.Config)+1)
		for k, v := range parent.Config {
			cfg[k] = v
		}
		cfg["subworkflow"] = subMap
		parent.Config = cfg
		out = append(out, parent)
	}

	return &Definition{Nodes: out, Links: rootLinks, TestInputs: def.TestInputs}, nil
}

// Validate checks the structural invariants required before scheduling:
// unique node ids, resolvable link endpoints, handles on router links,
// exactly one InputNode, and acyclicity.
func Validate(def *Definition) error {
	byID := make(map[string]Node, len(def.Nodes))
	inputNodes := 0
	for _, n := range def.Nodes {
		if _, dup := byID[n.ID]; dup {
			return invalidGraphf("duplicate node id %q", n.ID)
		}
		byID[n.ID] = n
		if n.NodeType == TypeInput {
			inputNodes++
		}
	}

	if inputNodes != 1 {
		return invalidGraphf("expected exactly one InputNode, found %d", inputNodes)
	}

	for _, l := range def.Links {
		source, ok := byID[l.SourceID]
		if !ok {
			return invalidGraphf("link source %q does not resolve", l.SourceID)
		}
		if _, ok := byID[l.TargetID]; !ok {
			return invalidGraphf("link target %q does not resolve", l.TargetID)
		}
		if source.NodeType == TypeRouter && l.SourceHandle == "" {
			return invalidGraphf("link from router %q to %q has no source_handle", l.SourceID, l.TargetID)
		}
	}

	return checkAcyclic(def)
}

// checkAcyclic runs Kahn's algorithm; any node left unprocessed sits on a cycle
func checkAcyclic(def *Definition) error {
	indegree := make(map[string]int, len(def.Nodes))
	succ := make(map[string][]string)
	for _, n := range def.Nodes {
		indegree[n.ID] = 0
	}
	for _, l := range def.Links {
		succ[l.SourceID] = append(succ[l.SourceID], l.TargetID)
		indegree[l.TargetID]++
	}

	var queue []string
	for id, d := range indegree {
		if d == 0 {
			queue = append(queue, id)
		}
	}

	processed := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		processed++
		for _, next := range succ[id] {
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if processed != len(def.Nodes) {
		return invalidGraphf("definition contains a cycle")
	}
	return nil
}
