package flow

// Validate checks the structural invariants of a Flow:
//
//   - node ids are unique and StartID names an existing node
//   - every edge endpoint exists in the node set
//   - at most one unconditional outgoing edge per node
//   - labeled edges originate from branch nodes, with unique labels per node
//   - data-edge inputs are unique per destination node
//   - every node is reachable from StartID
//
// Cycles are intentionally not checked here: per the generator contract they
// are detected lazily during code generation by the visiting-set walk.
func Validate(f *Flow) error {
	if f == nil {
		return Errorf(CodeInvalidFlow, "flow is nil")
	}
	ids := make(map[string]*Node, len(f.Nodes))
	for _, n := range f.Nodes {
		if n.ID == "" {
			return Errorf(CodeInvalidFlow, "node with empty id")
		}
		if _, dup := ids[n.ID]; dup {
			return Errorf(CodeInvalidFlow, "duplicate node id").With("node", n.ID)
		}
		ids[n.ID] = n
	}
	if f.StartID == "" {
		return Errorf(CodeInvalidFlow, "start node id is empty")
	}
	if _, ok := ids[f.StartID]; !ok {
		return Errorf(CodeInvalidFlow, "start node not in node set").With("node", f.StartID)
	}

	unconditional := make(map[string]bool)
	labels := make(map[string]map[string]bool)
	for _, e := range f.Control {
		if _, ok := ids[e.From]; !ok {
			return Errorf(CodeInvalidFlow, "control edge from unknown node").With("node", e.From)
		}
		if _, ok := ids[e.To]; !ok {
			return Errorf(CodeInvalidFlow, "control edge to unknown node").With("node", e.To)
		}
		if e.Label == "" {
			if unconditional[e.From] {
				return Errorf(CodeInvalidFlow,
					"multiple unconditional outgoing edges").With("node", e.From)
			}
			unconditional[e.From] = true
			continue
		}
		if ids[e.From].Kind != KindBranch {
			return Errorf(CodeInvalidFlow,
				"labeled edge from non-branch node").
				With("node", e.From).With("label", e.Label)
		}
		if labels[e.From] == nil {
			labels[e.From] = make(map[string]bool)
		}
		if labels[e.From][e.Label] {
			return Errorf(CodeInvalidFlow, "duplicate branch label").
				With("node", e.From).With("label", e.Label)
		}
		labels[e.From][e.Label] = true
	}

	inputs := make(map[string]map[string]bool)
	for _, d := range f.Data {
		if _, ok := ids[d.Source]; !ok {
			return Errorf(CodeInvalidFlow, "data edge from unknown node").With("node", d.Source)
		}
		if _, ok := ids[d.Dest]; !ok {
			return Errorf(CodeInvalidFlow, "data edge to unknown node").With("node", d.Dest)
		}
		if inputs[d.Dest] == nil {
			inputs[d.Dest] = make(map[string]bool)
		}
		if inputs[d.Dest][d.DestInput] {
			return Errorf(CodeInvalidFlow, "duplicate data edge input").
				With("node", d.Dest).With("input", d.DestInput)
		}
		inputs[d.Dest][d.DestInput] = true
	}

	reachable := make(map[string]bool, len(f.Nodes))
	stack := []string{f.StartID}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if reachable[id] {
			continue
		}
		reachable[id] = true
		for _, e := range f.Control {
			if e.From == id && !reachable[e.To] {
				stack = append(stack, e.To)
			}
		}
	}
	for _, n := range f.Nodes {
		if !reachable[n.ID] {
			return Errorf(CodeInvalidFlow, "node unreachable from start").With("node", n.ID)
		}
	}
	return nil
}
