package compile

import (
	"fmt"
	"sort"

	"github.com/adamtc007/ob-poc-sub001/bpmn"
)

func loweringErr(format string, args ...interface{}) Diagnostic {
	return Diagnostic{Kind: "LoweringError", Message: fmt.Sprintf(format, args...)}
}

// lowerer emits a bytecode program from a verified IR graph by recursively
// walking flows starting at the start event's successor, assigning each
// node's first instruction an address the first time it is reached and
// reusing that address on every subsequent reference (this is how
// converging flows — exclusive-gateway merges, join targets — end up
// pointing at one piece of code while fork branches each get their own).
//
// A node still on the active recursion stack when revisited is a back-edge
// (a BPMN loop); it is only legal when the triggering Flow carries a
// loopCounter/loopLimit annotation (§4.1.4 requires every backward branch
// to be counter-guarded, and this compiler enforces the same discipline
// one stage earlier, at lowering, for a clearer diagnostic).
type lowerer struct {
	g    *Graph
	code []bpmn.Instr

	addr    map[string]int // node id -> resolved address
	visited map[string]bool
	active  map[string]bool // on the current DFS stack (loop detection)

	debugMap      map[int]string
	joinPlan      map[int]int
	racePlan      map[int]bpmn.RacePlan
	boundaryMap   map[int]int
	errorRouteMap map[int][]bpmn.ErrorRoute
	taskManifest  map[string]bool

	nextJoinID int
	nextRaceID int

	diags []Diagnostic
}

// Lower converts a verified IR graph into a bpmn.Program.
func Lower(g *Graph) (*bpmn.Program, []Diagnostic) {
	lw := &lowerer{
		g:             g,
		addr:          make(map[string]int),
		visited:       make(map[string]bool),
		active:        make(map[string]bool),
		debugMap:      make(map[int]string),
		joinPlan:      make(map[int]int),
		racePlan:      make(map[int]bpmn.RacePlan),
		boundaryMap:   make(map[int]int),
		errorRouteMap: make(map[int][]bpmn.ErrorRoute),
		taskManifest:  make(map[string]bool),
	}

	entry := lw.firstSuccessor(g.StartID)
	if entry == "" {
		return nil, []Diagnostic{loweringErr("startEvent %q has no outgoing flow", g.StartID)}
	}
	lw.emit(entry)

	if len(lw.diags) > 0 {
		return nil, lw.diags
	}

	manifest := make([]string, 0, len(lw.taskManifest))
	for t := range lw.taskManifest {
		manifest = append(manifest, t)
	}
	sort.Strings(manifest)

	prog := &bpmn.Program{
		Code:          lw.code,
		DebugMap:      lw.debugMap,
		JoinPlan:      lw.joinPlan,
		RacePlan:      lw.racePlan,
		BoundaryMap:   lw.boundaryMap,
		ErrorRouteMap: lw.errorRouteMap,
		WriteSet:      make(map[int][]int),
		TaskManifest:  manifest,
	}
	prog.BytecodeVersion = bpmn.ComputeBytecodeVersion(lw.code, lw.debugMap, lw.joinPlan, manifest, lw.racePlan, lw.boundaryMap, lw.errorRouteMap)
	return prog, nil
}

func (lw *lowerer) firstSuccessor(nodeID string) string {
	out := lw.g.Outgoing[nodeID]
	if len(out) == 0 {
		return ""
	}
	f := flowByID(lw.g, out[0])
	if f == nil {
		return ""
	}
	return f.To
}

func (lw *lowerer) firstOutgoingFlow(nodeID string) *Flow {
	out := lw.g.Outgoing[nodeID]
	if len(out) == 0 {
		return nil
	}
	return flowByID(lw.g, out[0])
}

// followFlow resolves the address execution continues at after taking f. A
// back-edge (f.To already being emitted, or still active on the current
// DFS stack) is only legal when f.HasLoop is set, in which case it is
// lowered to a bounded IncCounter/BrCounterLt pair (§4.1.4) rather than a
// raw backward Jump; exceeding the limit falls through to an explicit Fail
// instruction (loop_limit_exceeded), since nothing upstream names what
// should happen when a bounded retry is exhausted.
func (lw *lowerer) followFlow(f *Flow) int {
	if f == nil {
		return 0
	}
	_, already := lw.addr[f.To]
	isBackEdge := already || lw.active[f.To]
	if !isBackEdge {
		return lw.emit(f.To)
	}
	if !f.HasLoop {
		lw.diags = append(lw.diags, loweringErr("sequenceFlow %q: back-edge to %q is not annotated with loopCounter/loopLimit", f.ID, f.To))
		return 0
	}
	target := lw.emit(f.To)
	pc := lw.append(bpmn.Instr{Op: bpmn.OpIncCounter, CounterID: f.LoopCounter})
	lw.append(bpmn.Instr{Op: bpmn.OpBrCounterLt, CounterID: f.LoopCounter, Limit: f.LoopLimit, Target: target})
	lw.append(bpmn.Instr{Op: bpmn.OpFail, Code: "loop_limit_exceeded"})
	return pc
}

// emit ensures nodeID has a resolved address, recursing into its successors
// as needed, and returns that address.
func (lw *lowerer) emit(nodeID string) int {
	if a, ok := lw.addr[nodeID]; ok {
		return a
	}
	if lw.active[nodeID] {
		lw.diags = append(lw.diags, loweringErr("node %q reached via an unannotated back-edge", nodeID))
		return 0
	}
	n, ok := lw.g.Nodes[nodeID]
	if !ok {
		lw.diags = append(lw.diags, loweringErr("unknown node %q", nodeID))
		return 0
	}
	lw.active[nodeID] = true
	defer func() { delete(lw.active, nodeID); lw.visited[nodeID] = true }()

	pc := len(lw.code)
	lw.addr[nodeID] = pc

	switch n.Kind {
	case NodeEnd:
		lw.append(bpmn.Instr{Op: bpmn.OpEnd})
	case NodeEndTerminate:
		lw.append(bpmn.Instr{Op: bpmn.OpEndTerminate})
	case NodeServiceTask:
		lw.emitServiceTask(nodeID, n)
	case NodeParallelFork:
		lw.emitParallelFork(nodeID)
	case NodeInclusiveFork:
		lw.emitInclusiveFork(nodeID)
	case NodeExclusiveGateway:
		lw.emitExclusiveGateway(nodeID, n)
	case NodeIntermediateCatchTimer:
		lw.emitTimerCatch(nodeID, n)
	case NodeIntermediateCatchMsg:
		lw.emitMsgCatch(nodeID, n)
	case NodeParallelJoin, NodeInclusiveJoin:
		// Reached directly (no incoming fork branch tracking this edge
		// specially) only when a join has a single incoming flow, which
		// is a malformed diagram; treat it as a pass-through to keep
		// lowering total, the verifier should have already flagged
		// degenerate joins upstream in a fuller implementation.
		lw.addr[nodeID] = lw.emit(lw.firstSuccessor(nodeID))
	default:
		lw.diags = append(lw.diags, loweringErr("node %q: unsupported kind", nodeID))
	}

	return lw.addr[nodeID]
}

func (lw *lowerer) append(i bpmn.Instr) int {
	pc := len(lw.code)
	lw.code = append(lw.code, i)
	return pc
}

func (lw *lowerer) emitServiceTask(nodeID string, n *Node) {
	pc := len(lw.code)
	lw.debugMap[pc] = nodeID
	lw.taskManifest[n.TaskType] = true
	lw.append(bpmn.Instr{Op: bpmn.OpExecNative, TaskType: n.TaskType, Argc: 0, Retc: 0})
	// Reserve pc+1 for the happy-path Jump; it is patched once the
	// successor's address is known (see the end of this function).
	jumpPC := lw.append(bpmn.Instr{})

	// Boundary events attached to this task (§4.1.3): build a race plan
	// whose arms are the boundary events in document order, plus the
	// task's own completion as the Internal arm.
	boundaries := lw.g.BoundaryByTask[nodeID]
	var errorBoundaries []*Boundary
	var timerBoundaries []*Boundary
	for _, b := range boundaries {
		if b.IsError {
			errorBoundaries = append(errorBoundaries, b)
		} else if b.IsTimer {
			timerBoundaries = append(timerBoundaries, b)
		}
	}

	if len(timerBoundaries) > 0 {
		raceID := lw.nextRaceID
		lw.nextRaceID++
		arms := []bpmn.WaitArm{{Kind: bpmn.ArmInternal, ResumeAt: pc + 1}}
		boundaryElemID := ""
		for _, b := range timerBoundaries {
			boundaryElemID = b.ID
			resumeAt := lw.emit(lw.flowTarget(b.OutgoingFlowID))
			arms = append(arms, bpmn.WaitArm{
				Kind:           bpmn.ArmTimer,
				DurationMs:     b.TimerDurationMs,
				ResumeAt:       resumeAt,
				Cycle:          b.TimerIsCycle,
				CycleCount:     b.TimerCycleCount,
				Interrupting:   b.CancelActivity,
				BoundaryElemID: b.ID,
			})
		}
		lw.racePlan[raceID] = bpmn.RacePlan{RaceID: raceID, Arms: arms, BoundaryElementID: boundaryElemID}
		lw.boundaryMap[pc] = raceID
	}

	if len(errorBoundaries) > 0 {
		var routes []bpmn.ErrorRoute
		for _, b := range errorBoundaries {
			resumeAt := lw.emit(lw.flowTarget(b.OutgoingFlowID))
			var code *string
			if b.ErrorCode != "" {
				c := b.ErrorCode
				code = &c
			}
			routes = append(routes, bpmn.ErrorRoute{ErrorCode: code, ResumeAt: resumeAt, BoundaryElementID: b.ID})
		}
		lw.errorRouteMap[pc] = routes
	}

	// Happy-path continuation: per §4.3.3, complete_job always advances
	// pc -> pc+1, so the instruction at pc+1 must be the jump to wherever
	// the task's own outgoing flow actually leads.
	target := lw.followFlow(lw.firstOutgoingFlow(nodeID))
	lw.code[jumpPC] = bpmn.Instr{Op: bpmn.OpJump, Target: target}
}

func (lw *lowerer) flowTarget(flowID string) string {
	f := flowByID(lw.g, flowID)
	if f == nil {
		lw.diags = append(lw.diags, loweringErr("dangling flow reference %q", flowID))
		return ""
	}
	return f.To
}

func (lw *lowerer) emitParallelFork(nodeID string) {
	pc := len(lw.code)
	lw.append(bpmn.Instr{}) // placeholder, patched below
	out := lw.g.Outgoing[nodeID]
	targets := make([]int, 0, len(out))
	for _, fid := range out {
		f := flowByID(lw.g, fid)
		targets = append(targets, lw.followFlow(f))
	}
	lw.code[pc] = bpmn.Instr{Op: bpmn.OpFork, Targets: targets}
}

func (lw *lowerer) emitInclusiveFork(nodeID string) {
	n := lw.g.Nodes[nodeID]
	joinID := lw.nextJoinID
	lw.nextJoinID++

	pc := len(lw.code)
	lw.append(bpmn.Instr{}) // placeholder

	out := lw.g.Outgoing[nodeID]
	branches := make([]bpmn.InclusiveBranch, 0, len(out))
	var defaultTarget *int
	for _, fid := range out {
		f := flowByID(lw.g, fid)
		joinNext := lw.joinExitFor(f.To)
		target := lw.emitBranchToJoin(f.To, joinID, joinNext)
		if f.ID == n.DefaultFlowID {
			t := target
			defaultTarget = &t
			continue
		}
		var flagID *int
		if f.FlagName != "" {
			id := flagNameToID(f.FlagName)
			flagID = &id
		}
		branches = append(branches, bpmn.InclusiveBranch{ConditionFlag: flagID, Negate: f.Negate, Target: target})
	}
	lw.code[pc] = bpmn.Instr{Op: bpmn.OpForkInclusive, Branches: branches, JoinID: joinID, DefaultTarget: defaultTarget}
}

// joinExitFor resolves the node downstream of branchStart's eventual join,
// i.e. the address execution resumes at once the join is satisfied. It
// walks forward from branchStart until it finds a Parallel/InclusiveJoin
// node, then returns that join's own successor's address (emitting it if
// necessary).
func (lw *lowerer) joinExitFor(branchStart string) int {
	seen := map[string]bool{}
	cur := branchStart
	for {
		if seen[cur] {
			lw.diags = append(lw.diags, loweringErr("branch from %q never reaches a join", branchStart))
			return 0
		}
		seen[cur] = true
		n, ok := lw.g.Nodes[cur]
		if !ok {
			lw.diags = append(lw.diags, loweringErr("branch from %q references unknown node %q", branchStart, cur))
			return 0
		}
		if n.Kind == NodeParallelJoin || n.Kind == NodeInclusiveJoin {
			return lw.emit(lw.firstSuccessor(cur))
		}
		succ := lw.firstSuccessor(cur)
		if succ == "" {
			lw.diags = append(lw.diags, loweringErr("branch from %q ends without reaching a join", branchStart))
			return 0
		}
		cur = succ
	}
}

// emitBranchToJoin emits the linear chain of one fork/inclusive-fork branch
// up to (but not including) its join node, terminating it with a
// JoinStatic/JoinDynamic instruction referencing joinID and joinNext. Each
// branch gets its own join instruction (§4.1.3): a join is not a single
// shared instruction, it's one instruction per arriving branch, all
// sharing a join_id.
func (lw *lowerer) emitBranchToJoin(start string, joinID int, joinNext int) int {
	if a, ok := lw.addr[start]; ok {
		return a
	}
	n, ok := lw.g.Nodes[start]
	if !ok {
		lw.diags = append(lw.diags, loweringErr("branch references unknown node %q", start))
		return 0
	}
	if n.Kind == NodeParallelJoin || n.Kind == NodeInclusiveJoin {
		pc := len(lw.code)
		op := bpmn.OpJoinStatic
		if n.Kind == NodeInclusiveJoin {
			op = bpmn.OpJoinDynamic
		}
		lw.append(bpmn.Instr{Op: op, JoinID: joinID, Next: joinNext})
		lw.addr[start] = pc
		return pc
	}

	pc := len(lw.code)
	lw.addr[start] = pc
	switch n.Kind {
	case NodeServiceTask:
		lw.emitServiceTask(start, n)
		return pc
	case NodeEnd:
		lw.append(bpmn.Instr{Op: bpmn.OpEnd})
		return pc
	case NodeEndTerminate:
		lw.append(bpmn.Instr{Op: bpmn.OpEndTerminate})
		return pc
	default:
		// Any other element inside a fork branch (gateways, timers, ...)
		// behaves exactly as it would outside one; fall back to the
		// general emitter and let it recurse normally. Note this means a
		// nested fork-inside-fork branch is emitted via emit(), which is
		// fine since emit() is itself reentrant and memoized.
		return lw.emit(start)
	}
}

func (lw *lowerer) emitExclusiveGateway(nodeID string, n *Node) {
	// ExclusiveGateway is lowered onto the same mechanics as
	// ForkInclusive: the compiler relies on the BPMN author's conditions
	// being mutually exclusive (the verifier cannot prove this statically
	// without an expression language, which is explicitly out of scope
	// per §1). The bytecode opcode enumeration (§6.2) has no separate
	// conditional-jump primitive, so reusing ForkInclusive (which already
	// evaluates condition flags and takes every truthy branch) is the
	// only way to express conditional routing without extending the
	// wire-stable opcode set.
	joinID := lw.nextJoinID
	lw.nextJoinID++

	pc := len(lw.code)
	lw.append(bpmn.Instr{})

	out := lw.g.Outgoing[nodeID]
	branches := make([]bpmn.InclusiveBranch, 0, len(out))
	var defaultTarget *int
	for _, fid := range out {
		f := flowByID(lw.g, fid)
		target := lw.followFlow(f)
		if f.ID == n.DefaultFlowID {
			t := target
			defaultTarget = &t
			continue
		}
		var flagID *int
		if f.FlagName != "" {
			id := flagNameToID(f.FlagName)
			flagID = &id
		}
		branches = append(branches, bpmn.InclusiveBranch{ConditionFlag: flagID, Negate: f.Negate, Target: target})
	}
	lw.code[pc] = bpmn.Instr{Op: bpmn.OpForkInclusive, Branches: branches, JoinID: joinID, DefaultTarget: defaultTarget}
	lw.joinPlan[joinID] = 1
}

func (lw *lowerer) emitTimerCatch(nodeID string, n *Node) {
	pc := len(lw.code)
	var ms int64
	fmt.Sscanf(n.TaskType, "%d", &ms)
	lw.append(bpmn.Instr{Op: bpmn.OpWaitTimer, DurationMs: ms})
	jumpPC := lw.append(bpmn.Instr{})
	target := lw.followFlow(lw.firstOutgoingFlow(nodeID))
	lw.code[jumpPC] = bpmn.Instr{Op: bpmn.OpJump, Target: target}
	_ = pc
}

func (lw *lowerer) emitMsgCatch(nodeID string, n *Node) {
	lw.append(bpmn.Instr{Op: bpmn.OpWaitMsg, MsgName: n.MsgName, CorrKeyExpr: n.CorrKeyExpr})
	jumpPC := lw.append(bpmn.Instr{})
	target := lw.followFlow(lw.firstOutgoingFlow(nodeID))
	lw.code[jumpPC] = bpmn.Instr{Op: bpmn.OpJump, Target: target}
}

// flagNameToID assigns a stable small integer id to a flag name. The
// bytecode only ever refers to flags by int id (§3.2's Flags map is keyed
// by int), while BPMN XML and worker-supplied orch_flags refer to flags by
// name; bpmn.FlagID is the single hash both the compiler and the engine's
// complete_job orch_flags merge agree on, so a real deployment never needs
// a side name<->id table alongside the program.
func flagNameToID(name string) int {
	return bpmn.FlagID(name)
}
