package bpmn

import "testing"

func TestComputeBytecodeVersionDeterministic(t *testing.T) {
	code := []Instr{
		{Op: OpExecNative, TaskType: "send_email"},
		{Op: OpSetFlag, FlagID: 7, Val: BoolValue(true)},
		{Op: OpEnd},
	}
	debugMap := map[Addr]string{0: "task_1", 1: "task_1", 2: "end_1"}
	joinPlan := map[int]int{0: 2, 1: 3}
	manifest := []string{"send_email", "charge_card"}

	racePlan := map[int]RacePlan{0: {RaceID: 0, Arms: []WaitArm{{Kind: ArmTimer, DurationMs: 1000, ResumeAt: 9}}, BoundaryElementID: "boundary_1"}}
	boundaryMap := map[Addr]int{0: 0}
	errCode := "RETRY_ME"
	errorRouteMap := map[Addr][]ErrorRoute{0: {{ErrorCode: &errCode, ResumeAt: 2, BoundaryElementID: "catch_1"}}}

	h1 := ComputeBytecodeVersion(code, debugMap, joinPlan, manifest, racePlan, boundaryMap, errorRouteMap)
	h2 := ComputeBytecodeVersion(code, debugMap, joinPlan, manifest, racePlan, boundaryMap, errorRouteMap)
	if h1 != h2 {
		t.Fatalf("ComputeBytecodeVersion not deterministic: %x != %x", h1, h2)
	}

	// Map iteration order must not perturb the hash: rebuild the maps with
	// a different insertion order and confirm the hash is unchanged.
	debugMap2 := map[Addr]string{2: "end_1", 0: "task_1", 1: "task_1"}
	joinPlan2 := map[int]int{1: 3, 0: 2}
	manifest2 := []string{"charge_card", "send_email"}
	h3 := ComputeBytecodeVersion(code, debugMap2, joinPlan2, manifest2, racePlan, boundaryMap, errorRouteMap)
	if h1 != h3 {
		t.Fatalf("ComputeBytecodeVersion is sensitive to map iteration order: %x != %x", h1, h3)
	}

	// A boundary/race/error-route-only difference (no change to code,
	// debugMap, joinPlan, or taskManifest) must still change the hash —
	// this is the bug the maintainer review caught: two programs that
	// differ only in a boundary timer's duration or an error route's
	// resume target previously hashed identically.
	racePlan2 := map[int]RacePlan{0: {RaceID: 0, Arms: []WaitArm{{Kind: ArmTimer, DurationMs: 5000, ResumeAt: 9}}, BoundaryElementID: "boundary_1"}}
	h4 := ComputeBytecodeVersion(code, debugMap, joinPlan, manifest, racePlan2, boundaryMap, errorRouteMap)
	if h1 == h4 {
		t.Fatalf("expected hash to change when only RacePlan differs, got equal: %x", h1)
	}

	errorRouteMap2 := map[Addr][]ErrorRoute{0: {{ErrorCode: &errCode, ResumeAt: 3, BoundaryElementID: "catch_1"}}}
	h5 := ComputeBytecodeVersion(code, debugMap, joinPlan, manifest, racePlan, boundaryMap, errorRouteMap2)
	if h1 == h5 {
		t.Fatalf("expected hash to change when only ErrorRouteMap differs, got equal: %x", h1)
	}
}

func TestComputeBytecodeVersionChangesWithCode(t *testing.T) {
	debugMap := map[Addr]string{0: "task_1"}
	joinPlan := map[int]int{}
	manifest := []string{"send_email"}
	racePlan := map[int]RacePlan{}
	boundaryMap := map[Addr]int{}
	errorRouteMap := map[Addr][]ErrorRoute{}

	h1 := ComputeBytecodeVersion([]Instr{{Op: OpExecNative, TaskType: "send_email"}}, debugMap, joinPlan, manifest, racePlan, boundaryMap, errorRouteMap)
	h2 := ComputeBytecodeVersion([]Instr{{Op: OpExecNative, TaskType: "charge_card"}}, debugMap, joinPlan, manifest, racePlan, boundaryMap, errorRouteMap)
	if h1 == h2 {
		t.Fatalf("expected different bytecode hashes for different task types, got equal: %x", h1)
	}
}

func TestHash256String(t *testing.T) {
	h := HashBytes([]byte("hello"))
	s := h.String()
	if len(s) != 64 {
		t.Fatalf("expected 64 hex characters, got %d (%q)", len(s), s)
	}
	if HashBytes([]byte("hello")).String() != s {
		t.Fatalf("String() not stable across equal inputs")
	}
}
