package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/adamtc007/ob-poc-sub001/bpmn"
	"github.com/adamtc007/ob-poc-sub001/bpmn/store"
	"github.com/adamtc007/ob-poc-sub001/bpmn/vm"
)

// TickInstance implements §4.3.1: drive every Running fiber forward one
// step-burst each, then run the boundary-promotion pass and the race
// timer-check pass. A terminal instance is a no-op, not an error — callers
// (a scheduler polling many instances) shouldn't need to special-case
// instances that finished since their last poll.
func (e *Engine) TickInstance(ctx context.Context, instanceID string) error {
	inst, err := e.store.LoadInstance(ctx, instanceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return bpmn.ErrInstanceNotFound
		}
		return err
	}
	if inst.State.IsTerminal() {
		return nil
	}

	prog, err := e.store.LoadProgram(ctx, inst.BytecodeVersion)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return bpmn.ErrProgramNotFound
		}
		return err
	}

	fibers, err := e.store.LoadFibers(ctx, instanceID)
	if err != nil {
		return err
	}

	if err := e.runnablePass(ctx, inst, prog, fibers); err != nil {
		return err
	}
	if inst.State != bpmn.StateRunning {
		if e.metrics != nil {
			e.metrics.Ticks.WithLabelValues(tickOutcomeLabel(inst.State)).Inc()
		}
		return nil
	}

	remaining, err := e.store.LoadFibers(ctx, instanceID)
	if err != nil {
		return err
	}
	if len(remaining) == 0 {
		now := e.clock()
		inst.State = bpmn.StateCompleted
		inst.CompletedAt = &now
		if err := e.appendEvent(ctx, inst, bpmn.EvCompleted, nil); err != nil {
			return err
		}
		if e.metrics != nil {
			e.metrics.Ticks.WithLabelValues("completed").Inc()
		}
		return e.store.SaveInstance(ctx, inst)
	}

	if err := e.boundaryPromotionPass(ctx, inst, prog, remaining); err != nil {
		return err
	}
	if err := e.raceTimerPass(ctx, inst, prog, remaining); err != nil {
		return err
	}

	if e.metrics != nil {
		e.metrics.Ticks.WithLabelValues("parked").Inc()
		e.recordFibersParked(ctx, instanceID)
	}
	return e.store.SaveInstance(ctx, inst)
}

// recordFibersParked refreshes the FibersParked gauge from the ticked
// instance's fiber set: a snapshot, not an increment, since fibers move
// between wait kinds (Job -> Race via boundaryPromotionPass) without a
// count changing. Scoped to one instance per call, so the gauge tracks
// whichever instance ticked most recently rather than a global total; a
// deployment wanting a true cross-instance total would need to sum this
// per-instance across a store scan, which no Store method exposes today.
func (e *Engine) recordFibersParked(ctx context.Context, instanceID string) {
	fibers, err := e.store.LoadFibers(ctx, instanceID)
	if err != nil {
		return
	}
	counts := map[bpmn.WaitKind]int{}
	for _, f := range fibers {
		if f.Wait.Kind == bpmn.WaitRunning {
			continue
		}
		counts[f.Wait.Kind]++
	}
	for _, kind := range []bpmn.WaitKind{bpmn.WaitTimer, bpmn.WaitMsg, bpmn.WaitJob, bpmn.WaitJoin, bpmn.WaitIncident, bpmn.WaitRace} {
		e.metrics.FibersParked.WithLabelValues(waitKindLabel(kind)).Set(float64(counts[kind]))
	}
}

func waitKindLabel(k bpmn.WaitKind) string {
	switch k {
	case bpmn.WaitTimer:
		return "timer"
	case bpmn.WaitMsg:
		return "msg"
	case bpmn.WaitJob:
		return "job"
	case bpmn.WaitJoin:
		return "join"
	case bpmn.WaitIncident:
		return "incident"
	case bpmn.WaitRace:
		return "race"
	default:
		return "unknown"
	}
}

// runnablePass steps every fiber that was Running at the start of this
// tick exactly once (to StepParked/StepEnded/StepTerminated/StepFailed).
// Fibers spawned during this pass (Fork, ForkInclusive) are left Running
// and picked up on the instance's next tick — a tick drives the fibers it
// found, not a fixed point (run_instance provides the fixed-point loop).
func (e *Engine) runnablePass(ctx context.Context, inst *bpmn.ProcessInstance, prog *bpmn.Program, fibers []*bpmn.Fiber) error {
	for _, f := range fibers {
		if f.Wait.Kind != bpmn.WaitRunning {
			continue
		}

		result, stepErr := vm.Step(prog, inst, f, e.maxSteps, e.nowMs)
		if stepErr != nil {
			return e.contractViolation(ctx, inst, f, stepErr)
		}

		for _, spawned := range result.SpawnedFiber {
			if err := e.store.SaveFiber(ctx, inst.InstanceID, spawned); err != nil {
				return err
			}
			if err := e.appendEvent(ctx, inst, bpmn.EvFiberSpawned, func(ev *bpmn.RuntimeEvent) {
				ev.FiberID = f.FiberID
				ev.SpawnedFiberID = spawned.FiberID
			}); err != nil {
				return err
			}
		}

		for _, jr := range result.JobRequests {
			job := &bpmn.Job{
				JobKey:            f.Wait.JobKey,
				ProcessInstanceID: inst.InstanceID,
				ServiceTaskID:     jr.ServiceTaskID,
				TaskType:          jr.TaskType,
				PC:                jr.PC,
				PayloadRef:        inst.DomainPayloadHash.String(),
				Status:            bpmn.JobPending,
				CreatedAt:         e.clock(),
			}
			if err := e.store.EnqueueJob(ctx, job); err != nil {
				return err
			}
			if err := e.appendEvent(ctx, inst, bpmn.EvJobEnqueued, func(ev *bpmn.RuntimeEvent) {
				ev.FiberID = f.FiberID
				ev.JobKey = job.JobKey
				ev.TaskType = job.TaskType
				ev.ServiceTaskID = job.ServiceTaskID
			}); err != nil {
				return err
			}
			if e.metrics != nil {
				e.metrics.JobsEnqueued.Inc()
			}
		}

		for _, joinID := range result.JoinsSatisfied {
			if err := e.absorbJoinArrivers(ctx, inst, fibers, f.FiberID, joinID); err != nil {
				return err
			}
		}

		switch result.Outcome {
		case vm.StepParked:
			if err := e.store.SaveFiber(ctx, inst.InstanceID, f); err != nil {
				return err
			}

		case vm.StepEnded:
			if err := e.store.DeleteFiber(ctx, inst.InstanceID, f.FiberID); err != nil {
				return err
			}

		case vm.StepTerminated:
			return e.terminateInstance(ctx, inst, f)

		case vm.StepFailed:
			if err := e.incidentFromFail(ctx, inst, f, result.FailCode); err != nil {
				return err
			}
			return nil
		}
	}
	return nil
}

// absorbJoinArrivers implements the second half of the JoinStatic/
// JoinDynamic contract (§4.2): once one fiber's arrival reaches the
// expected count and advances past the join, every other fiber still
// parked as Join{joinID} is absorbed — deleted, after recording why it
// disappeared, the same way terminateInstance/Cancel record a
// WaitCancelled before deleting a fiber they remove out from under it.
func (e *Engine) absorbJoinArrivers(ctx context.Context, inst *bpmn.ProcessInstance, fibers []*bpmn.Fiber, satisfierID string, joinID int) error {
	for _, g := range fibers {
		if g.FiberID == satisfierID {
			continue
		}
		if g.Wait.Kind != bpmn.WaitJoin || g.Wait.JoinID != joinID {
			continue
		}
		if err := e.appendEvent(ctx, inst, bpmn.EvWaitCancelled, func(ev *bpmn.RuntimeEvent) {
			ev.FiberID = g.FiberID
			ev.WaitDesc = g.Wait.Describe()
			ev.Reason = "join_satisfied"
		}); err != nil {
			return err
		}
		if err := e.store.DeleteFiber(ctx, inst.InstanceID, g.FiberID); err != nil {
			return err
		}
	}
	return nil
}

// boundaryPromotionPass implements §4.3.1 step 4: any fiber still parked
// on Job{} whose pc carries a boundary timer is rewritten into a Race.
func (e *Engine) boundaryPromotionPass(ctx context.Context, inst *bpmn.ProcessInstance, prog *bpmn.Program, fibers []*bpmn.Fiber) error {
	for _, f := range fibers {
		if f.Wait.Kind != bpmn.WaitJob {
			continue
		}
		plan, promoted := vm.PromoteBoundary(f, prog, e.nowMs())
		if !promoted {
			continue
		}
		if err := e.store.SaveFiber(ctx, inst.InstanceID, f); err != nil {
			return err
		}
		if err := e.appendEvent(ctx, inst, bpmn.EvRaceRegistered, func(ev *bpmn.RuntimeEvent) {
			ev.FiberID = f.FiberID
			ev.RaceID = plan.RaceID
			ev.Arms = plan.Arms
			ev.BoundaryElementID = plan.BoundaryElementID
		}); err != nil {
			return err
		}
	}
	return nil
}

// raceTimerPass implements §4.3.1 step 5: fibers already parked as Race
// with an elapsed timer deadline either resolve (interrupting) or re-arm
// and spawn an escalation fiber (non-interrupting cycle).
func (e *Engine) raceTimerPass(ctx context.Context, inst *bpmn.ProcessInstance, prog *bpmn.Program, fibers []*bpmn.Fiber) error {
	for _, f := range fibers {
		if f.Wait.Kind != bpmn.WaitRace || f.Wait.TimerDeadlineMs == nil {
			continue
		}
		plan := prog.RacePlan[f.Wait.RaceID]
		check := vm.CheckRaceTimer(f, plan, e.nowMs())

		switch check.Outcome {
		case vm.RaceTimerInterrupt:
			result := vm.ResolveRace(f, plan, check.WinningArm)
			if err := e.store.SaveFiber(ctx, inst.InstanceID, f); err != nil {
				return err
			}
			if result.AckJobKey != "" {
				if err := e.store.AckJob(ctx, result.AckJobKey); err != nil {
					return err
				}
			}
			if err := e.appendEventRaw(ctx, inst, result.Event); err != nil {
				return err
			}
			if e.metrics != nil {
				e.metrics.RaceResolutions.WithLabelValues(armKindLabel(plan.Arms[check.WinningArm].Kind)).Inc()
			}

		case vm.RaceTimerCycleFired:
			if err := e.store.SaveFiber(ctx, inst.InstanceID, f); err != nil {
				return err
			}
			if err := e.store.SaveFiber(ctx, inst.InstanceID, check.SpawnedFiber); err != nil {
				return err
			}
			if err := e.appendEvent(ctx, inst, bpmn.EvBoundaryFired, func(ev *bpmn.RuntimeEvent) {
				ev.FiberID = f.FiberID
				ev.SpawnedFiberID = check.SpawnedFiber.FiberID
				ev.ResumeAt = check.SpawnedFiber.PC
				ev.BoundaryElementID = plan.BoundaryElementID
			}); err != nil {
				return err
			}
			if err := e.appendEvent(ctx, inst, bpmn.EvTimerCycleIteration, func(ev *bpmn.RuntimeEvent) {
				ev.FiberID = f.FiberID
				ev.RaceID = plan.RaceID
				ev.TotalFired = check.TotalFired
			}); err != nil {
				return err
			}
			if check.Exhausted {
				if err := e.appendEvent(ctx, inst, bpmn.EvTimerCycleExhausted, func(ev *bpmn.RuntimeEvent) {
					ev.FiberID = f.FiberID
					ev.RaceID = plan.RaceID
					ev.TotalFired = check.TotalFired
				}); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// terminateInstance implements §4.3.2: a reached EndTerminate cancels
// every sibling fiber and in-flight job of the instance.
func (e *Engine) terminateInstance(ctx context.Context, inst *bpmn.ProcessInstance, terminator *bpmn.Fiber) error {
	fibers, err := e.store.LoadFibers(ctx, inst.InstanceID)
	if err != nil {
		return err
	}
	for _, g := range fibers {
		if g.FiberID == terminator.FiberID {
			continue
		}
		if g.Wait.Kind == bpmn.WaitRunning {
			continue
		}
		if err := e.appendEvent(ctx, inst, bpmn.EvWaitCancelled, func(ev *bpmn.RuntimeEvent) {
			ev.FiberID = g.FiberID
			ev.WaitDesc = g.Wait.Describe()
			ev.Reason = "terminate_end_event"
		}); err != nil {
			return err
		}
	}

	if err := e.store.CancelJobsForInstance(ctx, inst.InstanceID); err != nil {
		return err
	}
	if err := e.store.DeleteAllFibers(ctx, inst.InstanceID); err != nil {
		return err
	}

	now := e.clock()
	inst.State = bpmn.StateTerminated
	inst.TerminatedAt = &now
	if err := e.appendEvent(ctx, inst, bpmn.EvTerminated, func(ev *bpmn.RuntimeEvent) {
		ev.FiberID = terminator.FiberID
	}); err != nil {
		return err
	}
	return e.store.SaveInstance(ctx, inst)
}

// contractViolation turns a VM error (unreachable address, max steps
// exceeded, counter out of range) into a ContractViolation incident on the
// fiber that triggered it, and fails the instance (§7 propagation policy).
func (e *Engine) contractViolation(ctx context.Context, inst *bpmn.ProcessInstance, f *bpmn.Fiber, cause error) error {
	incident := &bpmn.Incident{
		IncidentID:        bpmn.NewIncidentID().String(),
		ProcessInstanceID: inst.InstanceID,
		FiberID:           f.FiberID,
		ServiceTaskID:     "",
		BytecodeAddr:      f.PC,
		ErrorClass:        bpmn.ContractViolation(),
		Message:           cause.Error(),
		CreatedAt:         e.clock(),
	}
	if err := e.store.SaveIncident(ctx, incident); err != nil {
		return err
	}
	f.Wait = bpmn.IncidentWait(incident.IncidentID)
	if err := e.store.SaveFiber(ctx, inst.InstanceID, f); err != nil {
		return err
	}
	inst.State = bpmn.StateFailed
	inst.IncidentID = incident.IncidentID
	if err := e.appendEvent(ctx, inst, bpmn.EvIncidentCreated, func(ev *bpmn.RuntimeEvent) {
		ev.IncidentID = incident.IncidentID
		ev.FiberID = f.FiberID
		ev.State = bpmn.StateFailed
	}); err != nil {
		return err
	}
	if e.metrics != nil {
		e.metrics.Incidents.WithLabelValues(errorClassLabel(bpmn.ErrorContractViolation)).Inc()
	}
	return e.store.SaveInstance(ctx, inst)
}

// incidentFromFail handles a Fail{code} instruction (§4.2): always a
// ContractViolation, since Fail is a compiler-emitted "this should be
// unreachable" guard (e.g. loop_limit_exceeded), not a worker-reported
// business error — those go through FailJob instead.
func (e *Engine) incidentFromFail(ctx context.Context, inst *bpmn.ProcessInstance, f *bpmn.Fiber, code string) error {
	return e.contractViolation(ctx, inst, f, fmt.Errorf("fail: %s", code))
}

func tickOutcomeLabel(s bpmn.ProcessState) string {
	switch s {
	case bpmn.StateCompleted:
		return "completed"
	case bpmn.StateTerminated:
		return "terminated"
	case bpmn.StateFailed:
		return "failed"
	case bpmn.StateCancelled:
		return "cancelled"
	default:
		return "parked"
	}
}

func armKindLabel(k bpmn.ArmKind) string {
	switch k {
	case bpmn.ArmTimer:
		return "timer"
	case bpmn.ArmDeadline:
		return "deadline"
	case bpmn.ArmMsg:
		return "msg"
	case bpmn.ArmInternal:
		return "internal"
	default:
		return "unknown"
	}
}
