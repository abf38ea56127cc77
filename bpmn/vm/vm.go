// Package vm implements the bytecode interpreter (§4.2, §4.3): stepping one
// fiber forward until it parks, ends, or exhausts its step budget, and
// resolving the races a promoted boundary/cycle wait produces. The VM never
// touches a Store directly — it operates purely on a bpmn.ProcessInstance
// and its bpmn.Fiber values, and returns what changed (jobs to enqueue,
// events to append) for the engine package to persist. This mirrors the
// teacher's separation between graph/scheduler.go (pure step logic) and
// graph/engine.go (orchestration + persistence).
package vm

import (
	"fmt"

	"github.com/adamtc007/ob-poc-sub001/bpmn"
	"github.com/google/uuid"
)

// StepOutcome is what running a fiber for one budget-bounded burst produced.
type StepOutcome int

const (
	StepParked StepOutcome = iota
	StepEnded
	StepTerminated
	StepFailed
)

// JobActivationRequest is an ExecNative that reached the front of its
// fiber and needs a job enqueued (the VM does not talk to the Store; the
// engine turns this into a store.EnqueueJob call).
type JobActivationRequest struct {
	ServiceTaskID string
	TaskType      string
	PC            bpmn.Addr
	LoopEpoch     uint32
}

// Result is everything one Step call produced: the fiber's new state plus
// side effects the caller (engine) must persist.
type Result struct {
	Outcome      StepOutcome
	Events       []bpmn.RuntimeEvent
	JobRequests  []JobActivationRequest
	SpawnedFiber []*bpmn.Fiber
	Incident     *bpmn.Incident

	// JoinsSatisfied lists the join ids this step released (the fiber was
	// the arrival that reached the expected count and continued past the
	// join). The engine uses this to find and absorb the other fibers
	// still parked as Join{id} for the same id (§4.2 JoinStatic/JoinDynamic
	// contract: "advance *one* fiber ... and delete the other arrivers").
	JoinsSatisfied []int

	// FailCode is set on StepFailed: the Fail instruction's Code operand,
	// for the engine to build a ContractViolation incident from.
	FailCode string
}

// Step runs fiber forward against prog within inst's state, up to
// maxSteps bytecode instructions, stopping the moment the fiber parks
// (its WaitState becomes non-Running), ends, terminates the instance, or
// fails. Exceeding maxSteps without any of those is
// bpmn.ErrMaxStepsExceeded, a VM contract violation the engine turns into
// a ContractViolation incident (§7).
func Step(prog *bpmn.Program, inst *bpmn.ProcessInstance, fiber *bpmn.Fiber, maxSteps int, nowMs func() int64) (Result, error) {
	var res Result

	for steps := 0; steps < maxSteps; steps++ {
		if fiber.PC < 0 || fiber.PC >= len(prog.Code) {
			return res, fmt.Errorf("%w: pc=%d", bpmn.ErrUnreachableAddress, fiber.PC)
		}
		instr := prog.Code[fiber.PC]

		switch instr.Op {
		case bpmn.OpExecNative:
			epoch := loopEpoch(inst)
			taskID := prog.DebugMap[fiber.PC]
			res.JobRequests = append(res.JobRequests, JobActivationRequest{
				ServiceTaskID: taskID,
				TaskType:      instr.TaskType,
				PC:            fiber.PC,
				LoopEpoch:     epoch,
			})
			jobKey := bpmn.MakeJobKey(inst.InstanceID, taskID, fiber.PC, epoch)
			fiber.Wait = bpmn.JobWait(jobKey)
			// Boundary-timer promotion (Job -> Race) is a dedicated engine
			// tick pass (step 4 of tick_instance), not part of ExecNative
			// itself -- see vm.PromoteBoundary.
			res.Outcome = StepParked
			return res, nil

		case bpmn.OpEnd:
			res.Outcome = StepEnded
			return res, nil

		case bpmn.OpEndTerminate:
			res.Outcome = StepTerminated
			return res, nil

		case bpmn.OpJump:
			fiber.PC = instr.Target

		case bpmn.OpFork:
			for i, t := range instr.Targets {
				if i == 0 {
					fiber.PC = t
					continue
				}
				child := &bpmn.Fiber{FiberID: uuid.NewString(), PC: t, Wait: bpmn.Running()}
				res.SpawnedFiber = append(res.SpawnedFiber, child)
			}
			if len(instr.Targets) == 0 {
				res.Outcome = StepEnded
				return res, nil
			}

		case bpmn.OpForkInclusive:
			taken := 0
			for i, b := range instr.Branches {
				var fire bool
				if b.ConditionFlag == nil {
					// Unconditional branch: always taken (§4.2 ForkInclusive
					// contract — "or whose flag is None (unconditional)").
					fire = true
				} else {
					v, ok := inst.Flags[flagIDOf(b)]
					fire = ok && v.Truthy() != b.Negate
					if !ok && b.Negate {
						fire = true
					}
				}
				if !fire {
					continue
				}
				if taken == 0 {
					fiber.PC = b.Target
				} else {
					child := &bpmn.Fiber{FiberID: uuid.NewString(), PC: b.Target, Wait: bpmn.Running()}
					res.SpawnedFiber = append(res.SpawnedFiber, child)
				}
				taken++
				_ = i
			}
			if taken == 0 {
				if instr.DefaultTarget == nil {
					res.Outcome = StepEnded
					return res, nil
				}
				fiber.PC = *instr.DefaultTarget
				taken = 1
			}
			inst.JoinExpected[instr.JoinID] = taken

		case bpmn.OpJoinStatic:
			inst.Counters[joinArrivalCounterID(instr.JoinID)]++
			arrived := inst.Counters[joinArrivalCounterID(instr.JoinID)]
			expected := int64(prog.JoinPlan[instr.JoinID])
			if arrived < expected {
				// Not the last arriver: park here until a later fiber
				// satisfies the join and absorbs this one (§3.4: "Others
				// park as Join { id } until they are absorbed").
				fiber.Wait = bpmn.JoinWait(instr.JoinID)
				res.Outcome = StepParked
				return res, nil
			}
			fiber.PC = instr.Next
			res.JoinsSatisfied = append(res.JoinsSatisfied, instr.JoinID)

		case bpmn.OpJoinDynamic:
			inst.Counters[joinArrivalCounterID(instr.JoinID)]++
			arrived := inst.Counters[joinArrivalCounterID(instr.JoinID)]
			expected := int64(inst.JoinExpected[instr.JoinID])
			if arrived < expected {
				fiber.Wait = bpmn.JoinWait(instr.JoinID)
				res.Outcome = StepParked
				return res, nil
			}
			fiber.PC = instr.Next
			res.JoinsSatisfied = append(res.JoinsSatisfied, instr.JoinID)

		case bpmn.OpIncCounter:
			inst.Counters[instr.CounterID]++
			fiber.PC++

		case bpmn.OpBrCounterLt:
			if inst.Counters[instr.CounterID] < int64(instr.Limit) {
				fiber.PC = instr.Target
			} else {
				fiber.PC++
			}

		case bpmn.OpWaitTimer:
			fireAt := nowMs() + instr.DurationMs

			fiber.Wait = bpmn.TimerWait(fireAt)
			res.Outcome = StepParked
			return res, nil

		case bpmn.OpWaitMsg:
			fiber.Wait = bpmn.MsgWait(instr.MsgName, instr.CorrKeyExpr)
			res.Outcome = StepParked
			return res, nil

		case bpmn.OpWaitAny:
			plan := prog.RacePlan[instr.RaceID]
			w := bpmn.RaceWait(instr.RaceID, "")
			w.Interrupting = true
			if idx, arm, ok := firstTimerArm(plan); ok {
				deadline := nowMs() + arm.DurationMs
				w.TimerDeadlineMs = &deadline
				w.TimerArmIndex = &idx
			}
			fiber.Wait = w
			res.Outcome = StepParked
			return res, nil

		case bpmn.OpSetFlag:
			inst.Flags[instr.FlagID] = instr.Val
			fiber.PC++

		case bpmn.OpClearFlag:
			delete(inst.Flags, instr.FlagID)
			fiber.PC++

		case bpmn.OpSetCounter:
			inst.Counters[instr.CounterID] = instr.CountTo
			fiber.PC++

		case bpmn.OpFail:
			res.Outcome = StepFailed
			res.FailCode = instr.Code
			return res, nil

		default:
			return res, fmt.Errorf("bpmn: unknown opcode %v at pc=%d", instr.Op, fiber.PC)
		}
	}

	return res, bpmn.ErrMaxStepsExceeded
}

// flagIDOf reads the branch's condition flag id. Callers only invoke this
// once they've established b.ConditionFlag != nil; the unconditional arm
// is handled separately in OpForkInclusive, above.
func flagIDOf(b bpmn.InclusiveBranch) int {
	return *b.ConditionFlag
}

// joinArrivalCounterID maps a join id onto the reserved counter namespace
// used to track arrival counts, kept disjoint from BPMN-authored loop
// counters by offsetting into the upper half of the int range.
func joinArrivalCounterID(joinID int) int {
	return 1<<30 + joinID
}

// loopEpoch reports the current iteration count a fresh ExecNative should
// stamp into its job key (§4.2's ExecNative contract: "the current count
// of counters[0]"). It always reads counter id 0. Counter ids come from the
// author's loopCounter annotation, so the epoch tracks a task's loop only
// when that loop is annotated with counter 0; a task inside a loop that
// uses another counter id gets counter 0's value, whatever it is.
func loopEpoch(inst *bpmn.ProcessInstance) uint32 {
	return uint32(inst.Counters[0])
}
