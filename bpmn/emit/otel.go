package emit

import (
	"context"

	"github.com/adamtc007/ob-poc-sub001/bpmn"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// OTelEmitter turns each RuntimeEvent into an OpenTelemetry span event,
// ported from graph/emit/otel.go's span-per-event shape. EmitBatch, the
// path every engine operation actually calls (appendEvent always batches
// through the Store's event log), starts each span from the caller's ctx
// so it nests under whatever tick_instance/complete_job/etc. span the
// caller already has open. The bare Emit method exists only to satisfy
// the Emitter interface's non-contextual signature; callers reaching it
// directly get a parentless span.
type OTelEmitter struct {
	tracer trace.Tracer
}

func NewOTelEmitter(tracer trace.Tracer) *OTelEmitter {
	return &OTelEmitter{tracer: tracer}
}

func (o *OTelEmitter) Emit(instanceID string, event bpmn.RuntimeEvent) {
	o.emit(context.Background(), instanceID, event)
}

func (o *OTelEmitter) emit(ctx context.Context, instanceID string, event bpmn.RuntimeEvent) {
	_, span := o.tracer.Start(ctx, event.Kind.String())
	span.SetAttributes(
		attribute.String("bpmn.instance_id", instanceID),
		attribute.Int64("bpmn.seq", int64(event.Seq)),
		attribute.String("bpmn.fiber_id", event.FiberID),
		attribute.String("bpmn.job_key", event.JobKey),
	)
	span.End()
}

func (o *OTelEmitter) EmitBatch(ctx context.Context, instanceID string, events []bpmn.RuntimeEvent) error {
	for _, e := range events {
		o.emit(ctx, instanceID, e)
	}
	return nil
}

func (o *OTelEmitter) Flush(context.Context) error { return nil }

var _ Emitter = (*OTelEmitter)(nil)
