package engine

import (
	"context"

	"github.com/adamtc007/ob-poc-sub001/bpmn"
)

// appendEvent stamps ev with inst's next sequence number, persists it, and
// fans it out through the Emitter. The caller is responsible for saving
// inst afterward so the bumped NextSeq survives (§3.6: monotonically
// increasing, scoped to instance).
func (e *Engine) appendEvent(ctx context.Context, inst *bpmn.ProcessInstance, kind bpmn.EventKind, mutate func(*bpmn.RuntimeEvent)) error {
	ev := bpmn.RuntimeEvent{Seq: inst.NextSeq, Kind: kind, At: e.clock()}
	if mutate != nil {
		mutate(&ev)
	}
	inst.NextSeq++
	if err := e.store.AppendEvent(ctx, inst.InstanceID, ev); err != nil {
		return err
	}
	_ = e.emitter.EmitBatch(ctx, inst.InstanceID, []bpmn.RuntimeEvent{ev})
	return nil
}

// appendEventRaw persists an event already built by the vm package (e.g.
// vm.ResolveRace's RaceResolved), stamping only the sequence number.
func (e *Engine) appendEventRaw(ctx context.Context, inst *bpmn.ProcessInstance, ev bpmn.RuntimeEvent) error {
	ev.Seq = inst.NextSeq
	if ev.At.IsZero() {
		ev.At = e.clock()
	}
	inst.NextSeq++
	if err := e.store.AppendEvent(ctx, inst.InstanceID, ev); err != nil {
		return err
	}
	_ = e.emitter.EmitBatch(ctx, inst.InstanceID, []bpmn.RuntimeEvent{ev})
	return nil
}

// errorClassLabel names an ErrorClassKind for the incidents_total metric.
func errorClassLabel(kind bpmn.ErrorClassKind) string {
	switch kind {
	case bpmn.ErrorTransient:
		return "transient"
	case bpmn.ErrorContractViolation:
		return "contract_violation"
	case bpmn.ErrorBusinessRejection:
		return "business_rejection"
	default:
		return "unknown"
	}
}

// applyOrchFlags merges worker-supplied flags into the instance's bytecode
// flag table (keyed by bpmn.FlagID), the in-memory counterpart to
// bpmn.MergeOrchFlags's JSON-document merge — the bytecode only ever reads
// inst.Flags, never the payload.
func applyOrchFlags(inst *bpmn.ProcessInstance, orchFlags map[string]bpmn.Value) {
	for name, v := range orchFlags {
		inst.Flags[bpmn.FlagID(name)] = v
	}
}
