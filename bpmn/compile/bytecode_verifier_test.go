package compile

import (
	"testing"

	"github.com/adamtc007/ob-poc-sub001/bpmn"
)

func TestVerifyBytecodeRejectsUnguardedBackwardJump(t *testing.T) {
	prog := &bpmn.Program{
		Code: []bpmn.Instr{
			{Op: bpmn.OpExecNative, TaskType: "do_work"},
			{Op: bpmn.OpJump, Target: 0},
			{Op: bpmn.OpEnd},
		},
	}
	diags := VerifyBytecode(prog)
	if !hasKind(diags, "BytecodeVerifierError") {
		t.Fatalf("expected a BytecodeVerifierError for an unguarded backward jump, got %v", diags)
	}
}

func TestVerifyBytecodeAcceptsCounterGuardedBackwardBranch(t *testing.T) {
	prog := &bpmn.Program{
		Code: []bpmn.Instr{
			{Op: bpmn.OpExecNative, TaskType: "do_work"}, // 0
			{Op: bpmn.OpIncCounter, CounterID: 0},         // 1
			{Op: bpmn.OpBrCounterLt, CounterID: 0, Limit: 3, Target: 0}, // 2
			{Op: bpmn.OpEnd}, // 3
		},
	}
	diags := VerifyBytecode(prog)
	if len(diags) != 0 {
		t.Fatalf("expected a well-formed counter-guarded loop to pass verification, got %v", diags)
	}
}

func TestVerifyBytecodeRejectsMismatchedCounterPair(t *testing.T) {
	prog := &bpmn.Program{
		Code: []bpmn.Instr{
			{Op: bpmn.OpExecNative, TaskType: "do_work"},                  // 0
			{Op: bpmn.OpIncCounter, CounterID: 0},                         // 1
			{Op: bpmn.OpBrCounterLt, CounterID: 1, Limit: 3, Target: 0},   // 2 (different counter)
			{Op: bpmn.OpEnd},                                              // 3
		},
	}
	diags := VerifyBytecode(prog)
	if !hasKind(diags, "BytecodeVerifierError") {
		t.Fatalf("expected a diagnostic for an IncCounter/BrCounterLt counter-id mismatch, got %v", diags)
	}
}

func TestVerifyBytecodeRejectsOutOfRangeTarget(t *testing.T) {
	prog := &bpmn.Program{
		Code: []bpmn.Instr{
			{Op: bpmn.OpJump, Target: 99},
			{Op: bpmn.OpEnd},
		},
	}
	diags := VerifyBytecode(prog)
	if !hasKind(diags, "BytecodeVerifierError") {
		t.Fatalf("expected an out-of-range diagnostic, got %v", diags)
	}
}

func TestVerifyBytecodeRejectsUnboundedRaceCycle(t *testing.T) {
	prog := &bpmn.Program{
		Code: []bpmn.Instr{
			{Op: bpmn.OpWaitAny, RaceID: 0},
			{Op: bpmn.OpEnd},
		},
		RacePlan: map[int]bpmn.RacePlan{
			0: {
				RaceID: 0,
				Arms: []bpmn.WaitArm{
					{Kind: bpmn.ArmTimer, Cycle: true, CycleCount: 0, ResumeAt: 1},
				},
			},
		},
	}
	diags := VerifyBytecode(prog)
	if !hasKind(diags, "BytecodeVerifierError") {
		t.Fatalf("expected a diagnostic for an unbounded cycle race arm, got %v", diags)
	}
}

func TestVerifyBytecodeRejectsEmptyRace(t *testing.T) {
	prog := &bpmn.Program{
		Code: []bpmn.Instr{
			{Op: bpmn.OpWaitAny, RaceID: 0},
			{Op: bpmn.OpEnd},
		},
		RacePlan: map[int]bpmn.RacePlan{
			0: {RaceID: 0, Arms: nil},
		},
	}
	diags := VerifyBytecode(prog)
	if !hasKind(diags, "BytecodeVerifierError") {
		t.Fatalf("expected a diagnostic for a race with no arms, got %v", diags)
	}
}

func TestVerifyBytecodeAcceptsForwardJump(t *testing.T) {
	prog := &bpmn.Program{
		Code: []bpmn.Instr{
			{Op: bpmn.OpJump, Target: 2},
			{Op: bpmn.OpFail, Code: "unreachable"},
			{Op: bpmn.OpEnd},
		},
	}
	diags := VerifyBytecode(prog)
	if len(diags) != 0 {
		t.Fatalf("expected a forward jump to pass verification, got %v", diags)
	}
}

func TestVerifyBytecodeRejectsOutOfRangeErrorRoute(t *testing.T) {
	prog := &bpmn.Program{
		Code: []bpmn.Instr{
			{Op: bpmn.OpExecNative, TaskType: "do_work"},
			{Op: bpmn.OpEnd},
		},
		ErrorRouteMap: map[bpmn.Addr][]bpmn.ErrorRoute{
			0: {{ResumeAt: 50, BoundaryElementID: "catch1"}},
		},
	}
	diags := VerifyBytecode(prog)
	if !hasKind(diags, "BytecodeVerifierError") {
		t.Fatalf("expected a diagnostic for an out-of-range error route resume target, got %v", diags)
	}
}
