package compile

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Diagnostic is one compile-time finding (§7's ParseError / VerifierError /
// LoweringError / BytecodeVerifierError taxonomy, unified into one type
// since all four surface the same way from Compile: a combined list, never
// creating runtime state).
type Diagnostic struct {
	Kind    string // "ParseError" | "VerifierError" | "LoweringError" | "BytecodeVerifierError"
	Message string
}

func (d Diagnostic) String() string { return d.Kind + ": " + d.Message }

func parseErr(format string, args ...interface{}) Diagnostic {
	return Diagnostic{Kind: "ParseError", Message: fmt.Sprintf(format, args...)}
}

// rawElement mirrors one XML start element with its attributes and
// immediate text/children, collected via a token-by-token scan rather than
// struct-tag unmarshaling, so namespace prefixes (bpmn:, zeebe:, ...) never
// need to be declared up front — only the local element name is matched,
// mirroring how lenient BPMN tooling in the wild handles namespace noise.
type rawElement struct {
	Local string
	Attrs map[string]string
	Text  string
	Kids  []*rawElement
}

func attr(attrs []xml.Attr, local string) (string, bool) {
	for _, a := range attrs {
		if a.Name.Local == local {
			return a.Value, true
		}
	}
	return "", false
}

func parseXML(r io.Reader) (*rawElement, []Diagnostic) {
	dec := xml.NewDecoder(r)
	var stack []*rawElement
	var root *rawElement
	var diags []Diagnostic

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			diags = append(diags, parseErr("malformed XML: %v", err))
			return nil, diags
		}
		switch t := tok.(type) {
		case xml.StartElement:
			el := &rawElement{Local: t.Name.Local, Attrs: make(map[string]string)}
			for _, a := range t.Attr {
				el.Attrs[a.Name.Local] = a.Value
			}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.Kids = append(parent.Kids, el)
			} else if root == nil {
				root = el
			}
			stack = append(stack, el)
		case xml.EndElement:
			if len(stack) == 0 {
				diags = append(diags, parseErr("unbalanced closing tag </%s>", t.Name.Local))
				return nil, diags
			}
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].Text += string(t)
			}
		}
	}
	if root == nil {
		diags = append(diags, parseErr("empty document"))
	}
	return root, diags
}

func findAll(root *rawElement, local string) []*rawElement {
	var out []*rawElement
	var walk func(*rawElement)
	walk = func(e *rawElement) {
		if e.Local == local {
			out = append(out, e)
		}
		for _, k := range e.Kids {
			walk(k)
		}
	}
	walk(root)
	return out
}

func findChild(e *rawElement, local string) *rawElement {
	for _, k := range e.Kids {
		if k.Local == local {
			return k
		}
	}
	return nil
}

// Parse converts a BPMN 2.0 XML document (§4.1.1) into an IR Graph. It
// accepts: process, startEvent, endEvent (with optional
// terminateEventDefinition), serviceTask (with a taskDefinition type
// extension, expressed either as a direct "taskType" attribute or a nested
// <taskDefinition type="..."/> element — both forms are accepted so
// simplified hand-authored fixtures don't need the full Camunda/Zeebe
// extensionElements ceremony), parallelGateway, exclusiveGateway,
// inclusiveGateway, sequenceFlow (with an optional conditionFlag
// attribute — conditions are pre-lowered flag checks per §1 Non-goals, so
// there is no expression language to parse here), boundaryEvent with
// timerEventDefinition/errorEventDefinition, and intermediateCatchEvent
// (message/timer).
func Parse(r io.Reader) (*Graph, []Diagnostic) {
	root, diags := parseXML(r)
	if len(diags) > 0 {
		return nil, diags
	}

	proc := root
	if root.Local != "process" {
		if p := findChild(root, "process"); p != nil {
			proc = p
		}
	}
	if proc == nil || proc.Local != "process" {
		return nil, []Diagnostic{parseErr("no <process> element found")}
	}

	g := newGraph()

	for _, el := range proc.Kids {
		id, hasID := el.Attrs["id"]
		switch el.Local {
		case "startEvent":
			if !hasID {
				diags = append(diags, parseErr("startEvent missing id"))
				continue
			}
			g.Nodes[id] = &Node{ID: id, Kind: NodeStart}
			g.StartID = id
		case "endEvent":
			kind := NodeEnd
			if findChild(el, "terminateEventDefinition") != nil {
				kind = NodeEndTerminate
			}
			if !hasID {
				diags = append(diags, parseErr("endEvent missing id"))
				continue
			}
			g.Nodes[id] = &Node{ID: id, Kind: kind}
		case "serviceTask":
			if !hasID {
				diags = append(diags, parseErr("serviceTask missing id"))
				continue
			}
			taskType, ok := el.Attrs["taskType"]
			if !ok {
				if td := findChild(el, "taskDefinition"); td != nil {
					taskType = td.Attrs["type"]
				} else if ext := findChild(el, "extensionElements"); ext != nil {
					if td := findChild(ext, "taskDefinition"); td != nil {
						taskType = td.Attrs["type"]
					}
				}
			}
			if taskType == "" {
				diags = append(diags, parseErr("serviceTask %q has no taskDefinition type", id))
			}
			g.Nodes[id] = &Node{ID: id, Kind: NodeServiceTask, TaskType: taskType}
		case "parallelGateway":
			if !hasID {
				diags = append(diags, parseErr("parallelGateway missing id"))
				continue
			}
			// Kind (fork vs join) resolved after all flows are known.
			g.Nodes[id] = &Node{ID: id, Kind: NodeParallelFork}
		case "exclusiveGateway":
			if !hasID {
				diags = append(diags, parseErr("exclusiveGateway missing id"))
				continue
			}
			n := &Node{ID: id, Kind: NodeExclusiveGateway}
			if def, ok := el.Attrs["default"]; ok {
				n.DefaultFlowID = def
			}
			g.Nodes[id] = n
		case "inclusiveGateway":
			if !hasID {
				diags = append(diags, parseErr("inclusiveGateway missing id"))
				continue
			}
			n := &Node{ID: id, Kind: NodeInclusiveFork}
			if def, ok := el.Attrs["default"]; ok {
				n.DefaultFlowID = def
			}
			g.Nodes[id] = n
		case "intermediateCatchEvent":
			if !hasID {
				diags = append(diags, parseErr("intermediateCatchEvent missing id"))
				continue
			}
			if td := findChild(el, "timerEventDefinition"); td != nil {
				dur, _ := parseISODurationMs(childText(td, "timeDuration"))
				n := &Node{ID: id, Kind: NodeIntermediateCatchTimer}
				n.TaskType = fmt.Sprintf("%d", dur) // stash duration; read back in lowering
				g.Nodes[id] = n
			} else if md := findChild(el, "messageEventDefinition"); md != nil {
				n := &Node{ID: id, Kind: NodeIntermediateCatchMsg}
				n.MsgName = md.Attrs["messageRef"]
				n.CorrKeyExpr = el.Attrs["corrKeyExpr"]
				g.Nodes[id] = n
			} else {
				diags = append(diags, parseErr("intermediateCatchEvent %q has no supported event definition", id))
			}
		case "boundaryEvent":
			b := &Boundary{ID: id}
			b.AttachedToRef = el.Attrs["attachedToRef"]
			b.CancelActivity = true
			if v, ok := el.Attrs["cancelActivity"]; ok {
				b.CancelActivity = v == "true"
			}
			if td := findChild(el, "timerEventDefinition"); td != nil {
				b.IsTimer = true
				if cycleText := childText(td, "timeCycle"); cycleText != "" {
					b.TimerIsCycle = true
					dur, count := parseISOCycle(cycleText)
					b.TimerDurationMs = dur
					b.TimerCycleCount = count
				} else {
					dur, _ := parseISODurationMs(childText(td, "timeDuration"))
					b.TimerDurationMs = dur
				}
			} else if errDef := findChild(el, "errorEventDefinition"); errDef != nil {
				b.IsError = true
				b.ErrorCode = errDef.Attrs["errorCode"]
			} else {
				diags = append(diags, parseErr("boundaryEvent %q has no supported event definition", id))
			}
			g.Boundaries = append(g.Boundaries, b)
			g.BoundaryByTask[b.AttachedToRef] = append(g.BoundaryByTask[b.AttachedToRef], b)
		case "sequenceFlow":
			f := &Flow{
				ID:   id,
				From: el.Attrs["sourceRef"],
				To:   el.Attrs["targetRef"],
			}
			if fc, ok := el.Attrs["conditionFlag"]; ok {
				if strings.HasPrefix(fc, "!") {
					f.Negate = true
					f.FlagName = fc[1:]
				} else {
					f.FlagName = fc
				}
			}
			if lc, ok := el.Attrs["loopCounter"]; ok {
				n, err := strconv.Atoi(lc)
				if err != nil {
					diags = append(diags, parseErr("sequenceFlow %q: loopCounter must be an integer", id))
				} else {
					f.LoopCounter = n
					f.HasLoop = true
				}
			}
			if ll, ok := el.Attrs["loopLimit"]; ok {
				n, err := strconv.Atoi(ll)
				if err != nil {
					diags = append(diags, parseErr("sequenceFlow %q: loopLimit must be an integer", id))
				} else {
					f.LoopLimit = n
				}
			}
			g.Flows = append(g.Flows, f)
		}
	}

	// Second pass: attach boundary outgoing flows (the flow whose source is
	// the boundary event id) and build Outgoing/Incoming adjacency; also
	// resolve parallelGateway fork/join kind by arity.
	outgoingCount := make(map[string]int)
	incomingCount := make(map[string]int)
	for _, f := range g.Flows {
		outgoingCount[f.From]++
		incomingCount[f.To]++
	}
	for _, b := range g.Boundaries {
		for _, f := range g.Flows {
			if f.From == b.ID {
				b.OutgoingFlowID = f.ID
			}
		}
	}
	for _, f := range g.Flows {
		if _, ok := g.Nodes[f.From]; ok {
			g.Outgoing[f.From] = append(g.Outgoing[f.From], f.ID)
		}
		if _, ok := g.Nodes[f.To]; ok {
			g.Incoming[f.To] = append(g.Incoming[f.To], f.ID)
		}
	}
	for id, n := range g.Nodes {
		if n.Kind == NodeParallelFork {
			if len(g.Outgoing[id]) <= 1 && len(g.Incoming[id]) > 1 {
				n.Kind = NodeParallelJoin
			}
		}
		if n.Kind == NodeInclusiveFork {
			if len(g.Outgoing[id]) <= 1 && len(g.Incoming[id]) > 1 {
				n.Kind = NodeInclusiveJoin
			}
		}
	}

	if g.StartID == "" {
		diags = append(diags, parseErr("process has no startEvent"))
	}
	for _, f := range g.Flows {
		if _, ok := g.Nodes[f.From]; !ok {
			if !isBoundaryID(g, f.From) {
				diags = append(diags, parseErr("sequenceFlow %q references unknown source %q", f.ID, f.From))
			}
		}
		if _, ok := g.Nodes[f.To]; !ok {
			diags = append(diags, parseErr("sequenceFlow %q references unknown target %q", f.ID, f.To))
		}
	}

	if len(diags) > 0 {
		return nil, diags
	}
	return g, nil
}

func isBoundaryID(g *Graph, id string) bool {
	for _, b := range g.Boundaries {
		if b.ID == id {
			return true
		}
	}
	return false
}

func childText(e *rawElement, local string) string {
	if c := findChild(e, local); c != nil {
		return strings.TrimSpace(c.Text)
	}
	return ""
}

// parseISODurationMs parses a minimal ISO-8601 duration subset ("PT1S",
// "PT30M", "PT2H") into milliseconds. Only the seconds/minutes/hours fields
// are supported — sufficient for BPMN boundary/intermediate timers, which
// never need day/month/year granularity at bytecode level.
func parseISODurationMs(iso string) (int64, error) {
	if iso == "" {
		return 0, nil
	}
	if !strings.HasPrefix(iso, "PT") {
		return 0, fmt.Errorf("unsupported ISO-8601 duration %q", iso)
	}
	rest := iso[2:]
	var totalMs int64
	var numBuf strings.Builder
	for _, r := range rest {
		switch {
		case r >= '0' && r <= '9':
			numBuf.WriteRune(r)
		case r == 'H', r == 'M', r == 'S':
			n, _ := strconv.ParseInt(numBuf.String(), 10, 64)
			numBuf.Reset()
			switch r {
			case 'H':
				totalMs += n * 3600_000
			case 'M':
				totalMs += n * 60_000
			case 'S':
				totalMs += n * 1000
			}
		}
	}
	return totalMs, nil
}

// parseISOCycle parses an R-prefixed repeating interval ("R3/PT1S") into
// (duration_ms, count). A bare "R/PT1S" (unbounded repeat) is rejected by
// the verifier (§4.1.2: cycle timers must be non-interrupting, but an
// *unbounded* cycle would still defeat the halting guarantee the bytecode
// verifier otherwise provides for loops, so this parser requires an
// explicit repeat count).
func parseISOCycle(s string) (durationMs int64, count int) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		return 0, 0
	}
	rpart := parts[0]
	if strings.HasPrefix(rpart, "R") {
		n, _ := strconv.Atoi(rpart[1:])
		count = n
	}
	dur, _ := parseISODurationMs(parts[1])
	return dur, count
}
