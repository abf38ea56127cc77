package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/adamtc007/ob-poc-sub001/bpmn"
	"github.com/adamtc007/ob-poc-sub001/bpmn/store"
	"github.com/adamtc007/ob-poc-sub001/bpmn/vm"
)

// Signal implements §4.3.5: correlate an external message against the
// instance's fibers, whether parked plainly (Msg) or as one arm of a
// Race. Only the first matching fiber is resumed. payload is optional — a
// signal may carry no data, only the message name and correlation key.
func (e *Engine) Signal(ctx context.Context, instanceID, msgName, corrKey string, payload *string) error {
	inst, err := e.store.LoadInstance(ctx, instanceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return bpmn.ErrInstanceNotFound
		}
		return err
	}

	if inst.State.IsTerminal() {
		if err := e.appendEvent(ctx, inst, bpmn.EvSignalIgnored, func(ev *bpmn.RuntimeEvent) {
			ev.SignalDesc = fmt.Sprintf("signal on %s instance: %s/%s", inst.State, msgName, corrKey)
		}); err != nil {
			return err
		}
		return e.store.SaveInstance(ctx, inst)
	}

	prog, err := e.store.LoadProgram(ctx, inst.BytecodeVersion)
	if err != nil {
		return err
	}
	fibers, err := e.store.LoadFibers(ctx, instanceID)
	if err != nil {
		return err
	}

	for _, f := range fibers {
		if f.Wait.Kind == bpmn.WaitMsg && f.Wait.MsgName == msgName && f.Wait.CorrKey == corrKey {
			f.PC++
			f.Wait = bpmn.Running()
			if payload != nil {
				inst.DomainPayload = *payload
				inst.DomainPayloadHash = e.hasher([]byte(*payload))
			}
			if err := e.store.SaveFiber(ctx, instanceID, f); err != nil {
				return err
			}
			if err := e.appendEvent(ctx, inst, bpmn.EvMsgReceived, func(ev *bpmn.RuntimeEvent) {
				ev.FiberID = f.FiberID
				ev.MsgName = msgName
				ev.CorrKey = corrKey
			}); err != nil {
				return err
			}
			return e.store.SaveInstance(ctx, inst)
		}

		if f.Wait.Kind == bpmn.WaitRace {
			plan := prog.RacePlan[f.Wait.RaceID]
			idx, ok := vm.FindMsgArm(plan, msgName, corrKey)
			if !ok {
				continue
			}
			result := vm.ResolveRace(f, plan, idx)
			if payload != nil {
				inst.DomainPayload = *payload
				inst.DomainPayloadHash = e.hasher([]byte(*payload))
			}
			if err := e.store.SaveFiber(ctx, instanceID, f); err != nil {
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
				e.metrics.RaceResolutions.WithLabelValues(armKindLabel(bpmn.ArmMsg)).Inc()
			}
			return e.store.SaveInstance(ctx, inst)
		}
	}

	if err := e.appendEvent(ctx, inst, bpmn.EvSignalIgnored, func(ev *bpmn.RuntimeEvent) {
		ev.SignalDesc = fmt.Sprintf("no matching fiber for %s/%s", msgName, corrKey)
	}); err != nil {
		return err
	}
	return e.store.SaveInstance(ctx, inst)
}
