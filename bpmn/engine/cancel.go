package engine

import (
	"context"
	"errors"

	"github.com/adamtc007/ob-poc-sub001/bpmn"
	"github.com/adamtc007/ob-poc-sub001/bpmn/store"
)

// Cancel implements §4.3.6: an operator-initiated cancellation. Already
// terminal instances are a no-op — cancel never resurrects or re-mutates
// a finished case.
func (e *Engine) Cancel(ctx context.Context, instanceID, reason string) error {
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

	fibers, err := e.store.LoadFibers(ctx, instanceID)
	if err != nil {
		return err
	}
	for _, f := range fibers {
		if f.Wait.Kind == bpmn.WaitRunning {
			continue
		}
		if err := e.appendEvent(ctx, inst, bpmn.EvWaitCancelled, func(ev *bpmn.RuntimeEvent) {
			ev.FiberID = f.FiberID
			ev.WaitDesc = f.Wait.Describe()
			ev.Reason = reason
		}); err != nil {
			return err
		}
	}

	if err := e.store.CancelJobsForInstance(ctx, instanceID); err != nil {
		return err
	}
	if err := e.store.DeleteAllFibers(ctx, instanceID); err != nil {
		return err
	}

	now := e.clock()
	inst.State = bpmn.StateCancelled
	inst.CancelledAt = &now
	inst.CancelReason = reason
	if err := e.appendEvent(ctx, inst, bpmn.EvCancelled, func(ev *bpmn.RuntimeEvent) {
		ev.Reason = reason
	}); err != nil {
		return err
	}
	return e.store.SaveInstance(ctx, inst)
}
