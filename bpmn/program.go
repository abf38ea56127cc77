package bpmn

import (
	"crypto/sha256"
	"encoding/binary"
	"sort"
)

// ArmKind discriminates a WaitArm within a Race plan.
type ArmKind int

const (
	ArmTimer ArmKind = iota
	ArmDeadline
	ArmMsg
	ArmInternal
)

// WaitArm is one competing arm of a Race (§4.2 WaitAny / §3.1 race_plan).
// Arms are ordered within RacePlan.Arms; that order is the tie-break order
// for simultaneous expiry/arrival (§5, §9 Open Question 2 — resolved: first
// arm in index order whose win condition is satisfied wins, full stop).
type WaitArm struct {
	Kind ArmKind

	// ArmTimer, ArmDeadline
	DurationMs int64 // ArmTimer: relative; ArmDeadline: absolute epoch ms stored here too for uniformity

	// ArmMsg
	MsgName string
	CorrKey string

	// All kinds: where execution resumes if this arm wins.
	ResumeAt Addr

	// Non-interrupting cycle timers only (ArmTimer with Cycle set).
	Cycle          bool
	CycleCount     int // R3-style: number of repetitions, 0 = unbounded is rejected by the verifier
	Interrupting   bool
	BoundaryElemID string
}

// RacePlan describes the arms of one composite wait (§3.1 race_plan).
type RacePlan struct {
	RaceID           int
	Arms             []WaitArm
	BoundaryElementID string
}

// ErrorRoute is one entry of an ExecNative's error_route_map (§3.1, §4.3.4).
// ErrorCode == nil is the catch-all route.
type ErrorRoute struct {
	ErrorCode        *string
	ResumeAt         Addr
	BoundaryElementID string
}

// Program is the immutable, content-addressed compiled output of the
// compiler pipeline (§3.1). BytecodeVersion is the primary key; recompiling
// byte-identical BPMN must reproduce it exactly (§3.1 invariant).
type Program struct {
	BytecodeVersion Hash256
	Code            []Instr

	// DebugMap: program address -> BPMN element id (service task id, etc.)
	DebugMap map[Addr]string

	// JoinPlan: join id -> static expected arrival count.
	JoinPlan map[int]int

	// RacePlan: race id -> arms.
	RacePlan map[int]RacePlan

	// BoundaryMap: ExecNative address -> race id. Presence signals "this
	// task has a boundary timer."
	BoundaryMap map[Addr]int

	// ErrorRouteMap: ExecNative address -> ordered error routes.
	ErrorRouteMap map[Addr][]ErrorRoute

	// WriteSet: reserved for static write-set analysis (§3.1); unused by
	// the VM today but carried through compilation so a future static
	// analysis pass has somewhere to put its results without a wire
	// format change.
	WriteSet map[Addr][]int

	// TaskManifest: externally-implemented task type names the program
	// references.
	TaskManifest []string
}

// ComputeBytecodeVersion hashes a program's serialization deterministically:
// stable instruction order (already an invariant of Code) and stable
// (sorted) iteration of every map-valued plan, per §9's "Program hash is
// over a canonical serialization (stable instruction ordering, stable map
// iteration of plans by key)." Grounded on the teacher's
// computeIdempotencyKey (graph/checkpoint.go), which hashes run identity
// plus sorted work items plus JSON state; here the analogous "identity"
// is the instruction stream, and "sorted work items" are the plan maps.
func ComputeBytecodeVersion(code []Instr, debugMap map[Addr]string, joinPlan map[int]int, taskManifest []string, racePlan map[int]RacePlan, boundaryMap map[Addr]int, errorRouteMap map[Addr][]ErrorRoute) Hash256 {
	h := sha256.New()

	hashUint64(h, uint64(len(code)))
	for _, instr := range code {
		writeInstr(h, instr)
	}

	hashUint64(h, uint64(len(debugMap)))
	for _, addr := range sortedIntKeys(debugMap) {
		hashUint64(h, uint64(addr))
		h.Write([]byte(debugMap[addr]))
	}

	hashUint64(h, uint64(len(joinPlan)))
	for _, id := range sortedIntKeysOfIntMap(joinPlan) {
		hashUint64(h, uint64(id))
		hashUint64(h, uint64(joinPlan[id]))
	}

	manifest := append([]string(nil), taskManifest...)
	sort.Strings(manifest)
	for _, t := range manifest {
		h.Write([]byte(t))
	}

	hashUint64(h, uint64(len(racePlan)))
	for _, id := range sortedIntKeysOfRacePlan(racePlan) {
		plan := racePlan[id]
		hashUint64(h, uint64(id))
		h.Write([]byte(plan.BoundaryElementID))
		hashUint64(h, uint64(len(plan.Arms)))
		for _, arm := range plan.Arms {
			writeWaitArm(h, arm)
		}
	}

	hashUint64(h, uint64(len(boundaryMap)))
	for _, addr := range sortedIntKeysOfAddrIntMap(boundaryMap) {
		hashUint64(h, uint64(addr))
		hashUint64(h, uint64(boundaryMap[addr]))
	}

	hashUint64(h, uint64(len(errorRouteMap)))
	for _, addr := range sortedIntKeysOfErrorRouteMap(errorRouteMap) {
		hashUint64(h, uint64(addr))
		routes := errorRouteMap[addr]
		hashUint64(h, uint64(len(routes)))
		for _, r := range routes {
			if r.ErrorCode != nil {
				hashUint64(h, 1)
				h.Write([]byte(*r.ErrorCode))
			} else {
				hashUint64(h, 0)
			}
			hashUint64(h, uint64(r.ResumeAt))
			h.Write([]byte(r.BoundaryElementID))
		}
	}

	var out Hash256
	copy(out[:], h.Sum(nil))
	return out
}

func writeWaitArm(h interface{ Write([]byte) (int, error) }, arm WaitArm) {
	hashUint64(h, uint64(arm.Kind))
	hashUint64(h, uint64(arm.DurationMs))
	h.Write([]byte(arm.MsgName))
	h.Write([]byte(arm.CorrKey))
	hashUint64(h, uint64(arm.ResumeAt))
	if arm.Cycle {
		hashUint64(h, 1)
	} else {
		hashUint64(h, 0)
	}
	hashUint64(h, uint64(arm.CycleCount))
	if arm.Interrupting {
		hashUint64(h, 1)
	} else {
		hashUint64(h, 0)
	}
	h.Write([]byte(arm.BoundaryElemID))
}

func writeInstr(h interface{ Write([]byte) (int, error) }, instr Instr) {
	hashUint64(h, uint64(instr.Op))
	h.Write([]byte(instr.TaskType))
	hashUint64(h, uint64(instr.Argc))
	hashUint64(h, uint64(instr.Retc))
	hashUint64(h, uint64(instr.Target))
	for _, t := range instr.Targets {
		hashUint64(h, uint64(t))
	}
	for _, b := range instr.Branches {
		if b.ConditionFlag != nil {
			hashUint64(h, uint64(*b.ConditionFlag)+1)
		}
		if b.Negate {
			hashUint64(h, 1)
		}
		hashUint64(h, uint64(b.Target))
	}
	hashUint64(h, uint64(instr.JoinID))
	if instr.DefaultTarget != nil {
		hashUint64(h, uint64(*instr.DefaultTarget)+1)
	}
	hashUint64(h, uint64(instr.Next))
	hashUint64(h, uint64(instr.CounterID))
	hashUint64(h, uint64(instr.Limit))
	var cb [8]byte
	binary.BigEndian.PutUint64(cb[:], uint64(instr.CountTo))
	h.Write(cb[:])
	hashUint64(h, uint64(instr.DurationMs))
	h.Write([]byte(instr.MsgName))
	h.Write([]byte(instr.CorrKeyExpr))
	hashUint64(h, uint64(instr.RaceID))
	hashUint64(h, uint64(instr.FlagID))
	hashUint64(h, uint64(instr.Val.Kind))
	h.Write([]byte(instr.Val.String()))
	h.Write([]byte(instr.Code))
}

func sortedIntKeys(m map[Addr]string) []Addr {
	keys := make([]Addr, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

func sortedIntKeysOfIntMap(m map[int]int) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

func sortedIntKeysOfRacePlan(m map[int]RacePlan) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

func sortedIntKeysOfAddrIntMap(m map[Addr]int) []Addr {
	keys := make([]Addr, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

func sortedIntKeysOfErrorRouteMap(m map[Addr][]ErrorRoute) []Addr {
	keys := make([]Addr, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
