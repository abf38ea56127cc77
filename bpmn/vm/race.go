package vm

import (
	"github.com/adamtc007/ob-poc-sub001/bpmn"
	"github.com/google/uuid"
)

// ResolveRaceResult is what resolving one arm of a Race wait produced. The
// fiber's pc/wait are mutated in place by ResolveRace; AckJobKey, when
// non-empty, is the job the engine must ack so a worker holding it cannot
// later complete it (§4.2's "Acks the pending job (if any arm was Internal
// and a job_key was recorded)").
type ResolveRaceResult struct {
	Event     bpmn.RuntimeEvent
	AckJobKey string
}

// ResolveRace advances fiber past the winning arm of a Race wait (§4.2
// "vm.resolve_race"): sets pc to the arm's resume target, clears the wait
// to Running, and reports the job to ack. Arm selection itself (first by
// index whose win condition is satisfied, per §5/§9 Open Question 2) is
// the caller's responsibility — this function only applies a decision
// already made.
func ResolveRace(fiber *bpmn.Fiber, plan bpmn.RacePlan, winningArm int) ResolveRaceResult {
	arm := plan.Arms[winningArm]
	jobKey := fiber.Wait.JobKey

	fiber.PC = arm.ResumeAt
	fiber.Wait = bpmn.Running()

	return ResolveRaceResult{
		Event: bpmn.RuntimeEvent{
			Kind:            bpmn.EvRaceResolved,
			FiberID:         fiber.FiberID,
			RaceID:          plan.RaceID,
			WinningArmIndex: winningArm,
		},
		AckJobKey: jobKey,
	}
}

// RaceTimerOutcome discriminates what CheckRaceTimer found.
type RaceTimerOutcome int

const (
	// RaceTimerNone: the deadline hasn't elapsed yet, or the fiber isn't
	// waiting on a timed race arm at all.
	RaceTimerNone RaceTimerOutcome = iota
	// RaceTimerInterrupt: an interrupting timer arm has fired; the caller
	// must resolve the race on WinningArm via ResolveRace.
	RaceTimerInterrupt
	// RaceTimerCycleFired: a non-interrupting cycle arm fired; a child
	// fiber was described for the caller to spawn, and the parent fiber's
	// wait was updated in place (re-armed, or reverted to plain Job{} on
	// exhaustion).
	RaceTimerCycleFired
)

// RaceTimerCheck is the result of one CheckRaceTimer call.
type RaceTimerCheck struct {
	Outcome RaceTimerOutcome

	WinningArm int // RaceTimerInterrupt

	SpawnedFiber *bpmn.Fiber // RaceTimerCycleFired
	Exhausted    bool        // RaceTimerCycleFired: CycleRemaining hit zero
	TotalFired   int         // RaceTimerCycleFired: CycleFiredCount after this firing
}

// FindMsgArm returns the index of the first Msg-kind arm of plan matching
// msgName/corrKey, for signal()'s Race-branch correlation (§4.3.5 step 2).
func FindMsgArm(plan bpmn.RacePlan, msgName, corrKey string) (int, bool) {
	for i, a := range plan.Arms {
		if a.Kind == bpmn.ArmMsg && a.MsgName == msgName && a.CorrKey == corrKey {
			return i, true
		}
	}
	return 0, false
}

// CheckRaceTimer implements §4.3.1 step 5 ("Race timer-check pass") for
// one fiber already parked as Race{timer_deadline_ms: Some(d), ...} with
// now >= d. Interrupting races are reported for the caller to resolve;
// non-interrupting (cycle) races mutate fiber.Wait in place to re-arm or
// revert to a plain Job wait on exhaustion, and describe the escalation
// fiber for the caller to spawn and persist.
func CheckRaceTimer(fiber *bpmn.Fiber, plan bpmn.RacePlan, now int64) RaceTimerCheck {
	w := &fiber.Wait
	if w.Kind != bpmn.WaitRace || w.TimerDeadlineMs == nil || now < *w.TimerDeadlineMs {
		return RaceTimerCheck{Outcome: RaceTimerNone}
	}

	armIdx := 0
	if w.TimerArmIndex != nil {
		armIdx = *w.TimerArmIndex
	}
	if armIdx < 0 || armIdx >= len(plan.Arms) {
		return RaceTimerCheck{Outcome: RaceTimerNone}
	}
	arm := plan.Arms[armIdx]

	if w.Interrupting {
		return RaceTimerCheck{Outcome: RaceTimerInterrupt, WinningArm: armIdx}
	}

	child := &bpmn.Fiber{FiberID: uuid.NewString(), PC: arm.ResumeAt, Wait: bpmn.Running()}
	w.CycleFiredCount++
	totalFired := w.CycleFiredCount

	exhausted := false
	if w.CycleRemaining != nil {
		rem := *w.CycleRemaining - 1
		w.CycleRemaining = &rem
		exhausted = rem <= 0
	}

	if exhausted {
		jobKey := w.JobKey
		fiber.Wait = bpmn.JobWait(jobKey)
	} else {
		deadline := now + arm.DurationMs
		w.TimerDeadlineMs = &deadline
	}

	return RaceTimerCheck{
		Outcome:      RaceTimerCycleFired,
		SpawnedFiber: child,
		Exhausted:    exhausted,
		TotalFired:   totalFired,
	}
}
