package emit

import (
	"context"

	"github.com/adamtc007/ob-poc-sub001/bpmn"
)

// NullEmitter discards every event. Ported from graph/emit.NullEmitter —
// the default when an engine is constructed without WithEmitter.
type NullEmitter struct{}

func NewNullEmitter() *NullEmitter { return &NullEmitter{} }

func (n *NullEmitter) Emit(string, bpmn.RuntimeEvent) {}

func (n *NullEmitter) EmitBatch(context.Context, string, []bpmn.RuntimeEvent) error { return nil }

func (n *NullEmitter) Flush(context.Context) error { return nil }

var _ Emitter = (*NullEmitter)(nil)
