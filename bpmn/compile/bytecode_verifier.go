package compile

import (
	"fmt"

	"github.com/adamtc007/ob-poc-sub001/bpmn"
)

func bytecodeErr(format string, args ...interface{}) Diagnostic {
	return Diagnostic{Kind: "BytecodeVerifierError", Message: fmt.Sprintf(format, args...)}
}

// VerifyBytecode runs the halting/safety checks of §4.1.4 over a lowered
// program: every branch target is in range, every backward Jump is
// rejected unless it is the counter-guarded BrCounterLt form, and every
// IncCounter/BrCounterLt pair references a counter consistently.
func VerifyBytecode(prog *bpmn.Program) []Diagnostic {
	var diags []Diagnostic
	n := len(prog.Code)

	inRange := func(a bpmn.Addr, where string) {
		if a < 0 || a >= n {
			diags = append(diags, bytecodeErr("%s: address %d out of range [0,%d)", where, a, n))
		}
	}

	for pc, instr := range prog.Code {
		switch instr.Op {
		case bpmn.OpJump:
			inRange(instr.Target, fmt.Sprintf("Jump@%d", pc))
			if instr.Target <= pc {
				diags = append(diags, bytecodeErr("Jump@%d targets %d: unguarded backward jump is not allowed, use IncCounter+BrCounterLt", pc, instr.Target))
			}
		case bpmn.OpFork:
			for _, t := range instr.Targets {
				inRange(t, fmt.Sprintf("Fork@%d", pc))
			}
		case bpmn.OpForkInclusive:
			for _, b := range instr.Branches {
				inRange(b.Target, fmt.Sprintf("ForkInclusive@%d", pc))
			}
			if instr.DefaultTarget != nil {
				inRange(*instr.DefaultTarget, fmt.Sprintf("ForkInclusive@%d default", pc))
			}
		case bpmn.OpJoinStatic, bpmn.OpJoinDynamic:
			inRange(instr.Next, fmt.Sprintf("Join@%d", pc))
		case bpmn.OpBrCounterLt:
			inRange(instr.Target, fmt.Sprintf("BrCounterLt@%d", pc))
			// A backward BrCounterLt is exactly the sanctioned loop form
			// (§4.1.4): it must be immediately preceded by an IncCounter
			// on the same counter, which is what bounds the loop.
			if instr.Target <= pc {
				if pc == 0 || prog.Code[pc-1].Op != bpmn.OpIncCounter || prog.Code[pc-1].CounterID != instr.CounterID {
					diags = append(diags, bytecodeErr("BrCounterLt@%d: backward branch must be immediately preceded by IncCounter on counter %d", pc, instr.CounterID))
				}
			}
		case bpmn.OpIncCounter:
			if pc+1 >= n || prog.Code[pc+1].Op != bpmn.OpBrCounterLt || prog.Code[pc+1].CounterID != instr.CounterID {
				diags = append(diags, bytecodeErr("IncCounter@%d: must be immediately followed by BrCounterLt on the same counter", pc))
			}
		}
	}

	for raceID, plan := range prog.RacePlan {
		if len(plan.Arms) == 0 {
			diags = append(diags, bytecodeErr("race %d: no arms", raceID))
		}
		for i, arm := range plan.Arms {
			inRange(arm.ResumeAt, fmt.Sprintf("race %d arm %d resume", raceID, i))
			if arm.Cycle && arm.CycleCount <= 0 {
				diags = append(diags, bytecodeErr("race %d arm %d: cycle timer must have a bounded repeat count", raceID, i))
			}
		}
	}

	for addr, routes := range prog.ErrorRouteMap {
		inRange(addr, fmt.Sprintf("error routes for %d", addr))
		for i, r := range routes {
			inRange(r.ResumeAt, fmt.Sprintf("error route %d/%d resume", addr, i))
		}
	}

	return diags
}
