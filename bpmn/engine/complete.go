package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/adamtc007/ob-poc-sub001/bpmn"
	"github.com/adamtc007/ob-poc-sub001/bpmn/store"
	"github.com/adamtc007/ob-poc-sub001/bpmn/vm"
)

// CompleteJob implements §4.3.3's three-guard flow: dedupe, instance
// state, payload hash — in that order, since a duplicate delivery should
// be swallowed silently even against a now-terminal instance, and any other
// completion against a terminal instance is recorded as SignalIgnored
// before its hash is ever compared.
func (e *Engine) CompleteJob(ctx context.Context, jobKey, payload string, payloadHash bpmn.Hash256, orchFlags map[string]bpmn.Value) error {
	dup, err := e.store.DedupeGet(ctx, jobKey)
	if err != nil {
		return err
	}
	if dup {
		return nil
	}

	instanceID, _, _, _, perr := bpmn.ParseJobKey(jobKey)
	if perr != nil {
		return perr
	}

	inst, err := e.store.LoadInstance(ctx, instanceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return bpmn.ErrInstanceNotFound
		}
		return err
	}

	if inst.State.IsTerminal() {
		if err := e.appendEvent(ctx, inst, bpmn.EvSignalIgnored, func(ev *bpmn.RuntimeEvent) {
			ev.SignalDesc = fmt.Sprintf("complete_job on %s instance: %s", inst.State, jobKey)
		}); err != nil {
			return err
		}
		return e.store.SaveInstance(ctx, inst)
	}

	expected := e.hasher([]byte(inst.DomainPayload))
	if payloadHash != expected {
		return bpmn.ErrPayloadHashMismatch
	}

	prog, err := e.store.LoadProgram(ctx, inst.BytecodeVersion)
	if err != nil {
		return err
	}
	fibers, err := e.store.LoadFibers(ctx, instanceID)
	if err != nil {
		return err
	}

	mergedPayload, merr := bpmn.MergeOrchFlags(payload, orchFlags)
	if merr != nil {
		return merr
	}

	for _, f := range fibers {
		switch {
		case f.Wait.Kind == bpmn.WaitJob && f.Wait.JobKey == jobKey:
			f.PC++
			f.Wait = bpmn.Running()
			applyOrchFlags(inst, orchFlags)
			inst.DomainPayload = mergedPayload
			inst.DomainPayloadHash = e.hasher([]byte(mergedPayload))
			if err := e.store.SaveFiber(ctx, instanceID, f); err != nil {
				return err
			}
			if err := e.appendEvent(ctx, inst, bpmn.EvJobCompleted, func(ev *bpmn.RuntimeEvent) {
				ev.JobKey = jobKey
				ev.FiberID = f.FiberID
			}); err != nil {
				return err
			}
			return e.finishCompleteJob(ctx, inst, jobKey, mergedPayload)

		case f.Wait.Kind == bpmn.WaitRace && f.Wait.JobKey == jobKey:
			plan := prog.RacePlan[f.Wait.RaceID]
			idx, ok := internalArmIndex(plan)
			if !ok {
				continue
			}
			result := vm.ResolveRace(f, plan, idx)
			applyOrchFlags(inst, orchFlags)
			inst.DomainPayload = mergedPayload
			inst.DomainPayloadHash = e.hasher([]byte(mergedPayload))
			if err := e.store.SaveFiber(ctx, instanceID, f); err != nil {
				return err
			}
			if err := e.appendEventRaw(ctx, inst, result.Event); err != nil {
				return err
			}
			if e.metrics != nil {
				e.metrics.RaceResolutions.WithLabelValues(armKindLabel(bpmn.ArmInternal)).Inc()
			}
			return e.finishCompleteJob(ctx, inst, jobKey, mergedPayload)
		}
	}

	if err := e.appendEvent(ctx, inst, bpmn.EvSignalIgnored, func(ev *bpmn.RuntimeEvent) {
		ev.SignalDesc = fmt.Sprintf("no matching fiber for %s", jobKey)
	}); err != nil {
		return err
	}
	return e.store.SaveInstance(ctx, inst)
}

// finishCompleteJob persists the shared tail of both complete_job paths:
// ack the job, dedupe-mark it, snapshot the merged payload, save the
// instance.
func (e *Engine) finishCompleteJob(ctx context.Context, inst *bpmn.ProcessInstance, jobKey, mergedPayload string) error {
	if err := e.store.AckJob(ctx, jobKey); err != nil {
		return err
	}
	if err := e.store.DedupePut(ctx, jobKey); err != nil {
		return err
	}
	if err := e.store.SavePayloadVersion(ctx, inst.InstanceID, inst.DomainPayloadHash, mergedPayload); err != nil {
		return err
	}
	if e.metrics != nil {
		e.metrics.JobsCompleted.Inc()
	}
	return e.store.SaveInstance(ctx, inst)
}

// internalArmIndex finds the Internal arm of a race plan — the arm a
// boundary-promoted fiber's own in-flight job resolves when it wins.
func internalArmIndex(plan bpmn.RacePlan) (int, bool) {
	for i, a := range plan.Arms {
		if a.Kind == bpmn.ArmInternal {
			return i, true
		}
	}
	return 0, false
}
