// Package compile implements the BPMN-lite compiler pipeline (§4.1):
// parser (XML -> IR), verifier (IR-level checks), lowering (IR -> bytecode
// + plans), and the bytecode verifier (halting checks on the lowered
// program). Grounded on the teacher's graph construction API
// (graph/engine.go's Add/Connect/StartAt build a runtime node graph
// programmatically) generalized to build the same kind of typed node/edge
// graph from a textual source language instead of Go call sites.
package compile

// NodeKind enumerates the BPMN element kinds this compiler recognizes
// (§4.1.1's accepted element list).
type NodeKind int

const (
	NodeStart NodeKind = iota
	NodeEnd
	NodeEndTerminate
	NodeServiceTask
	NodeParallelFork
	NodeParallelJoin
	NodeExclusiveGateway
	NodeInclusiveFork
	NodeInclusiveJoin
	NodeIntermediateCatchTimer
	NodeIntermediateCatchMsg
)

// Flow is a sequenceFlow edge in the IR: From -> To, with an optional
// condition (§1 Non-goals: conditions are pre-lowered flag checks, so a
// Flow's condition is just a flag name plus a polarity, never an
// expression).
type Flow struct {
	ID        string
	From      string
	To        string
	FlagName  string // empty = unconditional
	Negate    bool
	IsDefault bool // inclusive/exclusive gateway default flow

	// LoopCounter/LoopLimit annotate a back-edge (a flow whose target is
	// an already-emitted node) as a bounded retry loop: the compiler
	// lowers it to IncCounter(LoopCounter); BrCounterLt(LoopCounter,
	// LoopLimit, target). A back-edge without these set is a
	// LoweringError (§4.1.4 would reject the unguarded backward Jump
	// anyway; the compiler fails earlier, at lowering, with a clearer
	// diagnostic).
	LoopCounter int
	LoopLimit   int
	HasLoop     bool
}

// Boundary describes a boundary event attached to a service task (§4.1.1).
type Boundary struct {
	ID                string
	AttachedToRef     string // service task node id
	CancelActivity    bool   // interrupting vs non-interrupting
	IsError           bool
	ErrorCode         string // empty = catch-all
	IsTimer           bool
	TimerDurationMs   int64
	TimerIsCycle      bool
	TimerCycleCount   int
	OutgoingFlowID    string // flow out of the boundary event (escalation target)
}

// Node is one IR graph node.
type Node struct {
	ID   string
	Kind NodeKind

	// NodeServiceTask
	TaskType string

	// NodeIntermediateCatchMsg
	MsgName     string
	CorrKeyExpr string

	// NodeInclusiveFork / NodeExclusiveGateway: default outgoing flow id,
	// if any (§4.1.2: "at most one default flow").
	DefaultFlowID string
}

// Graph is the parsed IR: nodes, flows, and boundary events, keyed by id.
type Graph struct {
	StartID string
	Nodes   map[string]*Node
	Flows   []*Flow
	// Outgoing: node id -> ordered outgoing flow ids (source order from XML).
	Outgoing map[string][]string
	// Incoming: node id -> incoming flow ids, used for join arity + reachability.
	Incoming map[string][]string

	Boundaries []*Boundary
	// BoundaryByTask: service task id -> boundaries attached to it, in
	// document order (document order is the race_plan arm order, §4.1.3).
	BoundaryByTask map[string][]*Boundary
}

func newGraph() *Graph {
	return &Graph{
		Nodes:          make(map[string]*Node),
		Outgoing:       make(map[string][]string),
		Incoming:       make(map[string][]string),
		BoundaryByTask: make(map[string][]*Boundary),
	}
}
