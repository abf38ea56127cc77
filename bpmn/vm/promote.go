package vm

import "github.com/adamtc007/ob-poc-sub001/bpmn"

// PromoteBoundary rewrites a fiber parked on Job{job_key} whose pc carries
// a boundary timer into a composite Race wait (§4.3.1 step 4). Gating the
// rewrite on fiber.Wait.Kind == WaitJob is itself the idempotence
// mechanism recovered from the original implementation (SPEC_FULL.md
// §12.3): once promoted, the wait's Kind is no longer WaitJob, so running
// this pass again over the same fiber is a no-op by construction — no
// separate flag is needed.
func PromoteBoundary(fiber *bpmn.Fiber, prog *bpmn.Program, now int64) (plan bpmn.RacePlan, promoted bool) {
	if fiber.Wait.Kind != bpmn.WaitJob {
		return bpmn.RacePlan{}, false
	}
	raceID, ok := prog.BoundaryMap[fiber.PC]
	if !ok {
		return bpmn.RacePlan{}, false
	}
	plan = prog.RacePlan[raceID]

	w := bpmn.RaceWait(raceID, fiber.Wait.JobKey)
	if idx, arm, found := firstTimerArm(plan); found {
		deadline := now + arm.DurationMs
		w.TimerDeadlineMs = &deadline
		w.TimerArmIndex = &idx
		w.Interrupting = arm.Interrupting
		if arm.Cycle {
			rem := arm.CycleCount
			w.CycleRemaining = &rem
		}
	}
	fiber.Wait = w
	return plan, true
}

// firstTimerArm returns the first Timer/Deadline arm of plan, in arm-index
// order (§5's tie-break rule applies to resolution, not to which arm a
// promoted wait tracks — a task carries at most one active boundary timer
// context in this module, the common BPMN case of one timer per task).
func firstTimerArm(plan bpmn.RacePlan) (int, bpmn.WaitArm, bool) {
	for i, a := range plan.Arms {
		if a.Kind == bpmn.ArmTimer || a.Kind == bpmn.ArmDeadline {
			return i, a, true
		}
	}
	return 0, bpmn.WaitArm{}, false
}
