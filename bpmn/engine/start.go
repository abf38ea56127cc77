package engine

import (
	"context"
	"errors"

	"github.com/adamtc007/ob-poc-sub001/bpmn"
	"github.com/adamtc007/ob-poc-sub001/bpmn/store"
)

// Start creates a new ProcessInstance for the compiled program identified
// by bytecodeVersion and seeds its root fiber at address 0 (§4.3's
// "start" operation). Condition flags carried under the initial
// domainPayload's top-level "flags" object are extracted via
// bpmn.SeedFlagsFromPayload and used to seed instance.Flags, so an
// inclusive/exclusive gateway guarded by a flag the caller already knows
// at start time doesn't need a round trip through complete_job or signal
// just to set it.
func (e *Engine) Start(ctx context.Context, processKey string, bytecodeVersion bpmn.Hash256, correlationID, domainPayload string) (string, error) {
	if _, err := e.store.LoadProgram(ctx, bytecodeVersion); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", bpmn.ErrProgramNotFound
		}
		return "", err
	}

	inst := &bpmn.ProcessInstance{
		InstanceID:        bpmn.NewInstanceID().String(),
		ProcessKey:        processKey,
		BytecodeVersion:   bytecodeVersion,
		CorrelationID:     correlationID,
		CreatedAt:         e.clock(),
		DomainPayload:     domainPayload,
		DomainPayloadHash: e.hasher([]byte(domainPayload)),
		Flags:             bpmn.SeedFlagsFromPayload(domainPayload),
		Counters:          map[int]int64{},
		JoinExpected:      map[int]int{},
		State:             bpmn.StateRunning,
	}

	root := &bpmn.Fiber{FiberID: bpmn.NewFiberID().String(), PC: 0, Wait: bpmn.Running()}

	if err := e.store.SaveInstance(ctx, inst); err != nil {
		return "", err
	}
	if err := e.store.SaveFiber(ctx, inst.InstanceID, root); err != nil {
		return "", err
	}
	if err := e.appendEvent(ctx, inst, bpmn.EvInstanceStarted, func(ev *bpmn.RuntimeEvent) {
		ev.FiberID = root.FiberID
	}); err != nil {
		return "", err
	}
	if err := e.store.SaveInstance(ctx, inst); err != nil {
		return "", err
	}

	return inst.InstanceID, nil
}
