package emit

import (
	"context"
	"sync"

	"github.com/adamtc007/ob-poc-sub001/bpmn"
)

// BufferedEmitter stores events in memory, organized by instance, for
// tests and post-execution analysis. Ported from graph/emit/buffered.go.
type BufferedEmitter struct {
	mu     sync.RWMutex
	events map[string][]bpmn.RuntimeEvent
}

func NewBufferedEmitter() *BufferedEmitter {
	return &BufferedEmitter{events: make(map[string][]bpmn.RuntimeEvent)}
}

func (b *BufferedEmitter) Emit(instanceID string, event bpmn.RuntimeEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events[instanceID] = append(b.events[instanceID], event)
}

func (b *BufferedEmitter) EmitBatch(_ context.Context, instanceID string, events []bpmn.RuntimeEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events[instanceID] = append(b.events[instanceID], events...)
	return nil
}

func (b *BufferedEmitter) Flush(context.Context) error { return nil }

// History returns a copy of all events recorded for instanceID, in arrival
// order.
func (b *BufferedEmitter) History(instanceID string) []bpmn.RuntimeEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()
	src := b.events[instanceID]
	out := make([]bpmn.RuntimeEvent, len(src))
	copy(out, src)
	return out
}

// Clear drops recorded history for instanceID, or all history if
// instanceID is empty.
func (b *BufferedEmitter) Clear(instanceID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if instanceID == "" {
		b.events = make(map[string][]bpmn.RuntimeEvent)
		return
	}
	delete(b.events, instanceID)
}

var _ Emitter = (*BufferedEmitter)(nil)
