package compile

import "fmt"

func verifierErr(format string, args ...interface{}) Diagnostic {
	return Diagnostic{Kind: "VerifierError", Message: fmt.Sprintf(format, args...)}
}

// Verify runs the IR-level checks of §4.1.2. Returns an empty slice when
// the graph is well-formed; compile fails if any diagnostic is present
// (fail-closed, per §7).
func Verify(g *Graph) []Diagnostic {
	var diags []Diagnostic

	for _, f := range g.Flows {
		if _, ok := g.Nodes[f.From]; !ok && !isBoundaryID(g, f.From) {
			diags = append(diags, verifierErr("sequenceFlow %q: unknown source %q", f.ID, f.From))
		}
		if _, ok := g.Nodes[f.To]; !ok {
			diags = append(diags, verifierErr("sequenceFlow %q: unknown target %q", f.ID, f.To))
		}
	}

	for id, n := range g.Nodes {
		if n.Kind == NodeInclusiveFork {
			out := g.Outgoing[id]
			if len(out) == 0 {
				diags = append(diags, verifierErr("inclusiveGateway %q has no outgoing flow", id))
			}
			defaults := 0
			for _, fid := range out {
				if flowByID(g, fid).IsDefaultMarked(n) {
					defaults++
				}
			}
			if defaults > 1 {
				diags = append(diags, verifierErr("inclusiveGateway %q has more than one default flow", id))
			}
		}
		if n.Kind == NodeExclusiveGateway {
			if len(g.Outgoing[id]) == 0 {
				diags = append(diags, verifierErr("exclusiveGateway %q has no outgoing flow", id))
			}
		}
	}

	for _, b := range g.Boundaries {
		target, ok := g.Nodes[b.AttachedToRef]
		if !ok || target.Kind != NodeServiceTask {
			diags = append(diags, verifierErr("boundaryEvent %q is not attached to a serviceTask", b.ID))
			continue
		}
		if b.IsTimer && b.TimerIsCycle && b.CancelActivity {
			diags = append(diags, verifierErr("boundaryEvent %q: cycle timers must be non-interrupting (cancelActivity=false)", b.ID))
		}
		if b.IsTimer && b.TimerIsCycle && b.TimerCycleCount <= 0 {
			diags = append(diags, verifierErr("boundaryEvent %q: cycle timer must have a bounded repeat count", b.ID))
		}
		if b.OutgoingFlowID == "" {
			diags = append(diags, verifierErr("boundaryEvent %q has no resolvable resume target", b.ID))
		}
	}

	for id, n := range g.Nodes {
		if n.Kind == NodeServiceTask && n.TaskType == "" {
			diags = append(diags, verifierErr("serviceTask %q has an empty task type", id))
		}
	}

	if g.StartID != "" {
		reachable := reachableFrom(g, g.StartID)
		for id, n := range g.Nodes {
			if (n.Kind == NodeEnd || n.Kind == NodeEndTerminate) && !reachable[id] {
				diags = append(diags, verifierErr("endEvent %q is not reachable from startEvent", id))
			}
		}
		for id := range g.Nodes {
			if !reachable[id] && id != g.StartID {
				// Unreachable non-end nodes are a softer signal than an
				// unreachable end event, but still indicate a malformed
				// graph the bytecode verifier would otherwise have to
				// special-case around.
				diags = append(diags, verifierErr("node %q is not reachable from startEvent", id))
			}
		}
	}

	return diags
}

func flowByID(g *Graph, id string) *Flow {
	for _, f := range g.Flows {
		if f.ID == id {
			return f
		}
	}
	return nil
}

// IsDefaultMarked reports whether f is n's declared default flow.
func (f *Flow) IsDefaultMarked(n *Node) bool {
	if f == nil {
		return false
	}
	return n.DefaultFlowID == f.ID
}

func reachableFrom(g *Graph, start string) map[string]bool {
	seen := map[string]bool{start: true}
	stack := []string{start}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, fid := range g.Outgoing[cur] {
			f := flowByID(g, fid)
			if f == nil || seen[f.To] {
				continue
			}
			seen[f.To] = true
			stack = append(stack, f.To)
		}
		for _, b := range g.BoundaryByTask[cur] {
			if !seen[b.OutgoingFlowID] {
				if f := flowByID(g, b.OutgoingFlowID); f != nil && !seen[f.To] {
					seen[f.To] = true
					stack = append(stack, f.To)
				}
			}
		}
	}
	return seen
}
