// Package emit provides the RuntimeEvent emitter abstraction (§3.6):
// every mutation the engine makes appends exactly one RuntimeEvent to the
// instance's store log, and is additionally fanned out through an Emitter
// for observability backends (logs, traces). The Store's append-only log
// remains the sole reconstructable record (§3.6 invariant); the Emitter is
// a side-channel, never the source of truth.
package emit

import (
	"context"

	"github.com/adamtc007/ob-poc-sub001/bpmn"
)

// Emitter receives RuntimeEvents as they are appended, for side-channel
// observability (logging, tracing). Ported from the teacher's
// graph/emit.Emitter interface shape (Emit/EmitBatch/Flush), generalized
// from the teacher's generic Event to bpmn.RuntimeEvent.
type Emitter interface {
	// Emit sends one event. Must not block instance progress and must not
	// panic; implementations should swallow and log backend errors rather
	// than propagate them into the engine's hot path.
	Emit(instanceID string, event bpmn.RuntimeEvent)

	// EmitBatch sends multiple events for one instance in order.
	EmitBatch(ctx context.Context, instanceID string, events []bpmn.RuntimeEvent) error

	// Flush blocks until all buffered events are sent or ctx expires.
	Flush(ctx context.Context) error
}
