package emit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/adamtc007/ob-poc-sub001/bpmn"
)

// LogFormat selects LogEmitter's output encoding.
type LogFormat int

const (
	LogText LogFormat = iota
	LogJSON
)

// LogEmitter writes events to an io.Writer as they arrive, either as
// human-readable text or as JSON lines. Ported from graph/emit/log.go's
// text/JSON dual-mode LogEmitter.
type LogEmitter struct {
	w      io.Writer
	format LogFormat
}

func NewLogEmitter(w io.Writer, format LogFormat) *LogEmitter {
	return &LogEmitter{w: w, format: format}
}

func (l *LogEmitter) Emit(instanceID string, event bpmn.RuntimeEvent) {
	switch l.format {
	case LogJSON:
		l.emitJSON(instanceID, event)
	default:
		l.emitText(instanceID, event)
	}
}

func (l *LogEmitter) emitText(instanceID string, e bpmn.RuntimeEvent) {
	fmt.Fprintf(l.w, "[%s] seq=%d %s fiber=%s job=%s\n",
		instanceID, e.Seq, e.Kind, e.FiberID, e.JobKey)
}

func (l *LogEmitter) emitJSON(instanceID string, e bpmn.RuntimeEvent) {
	line := struct {
		InstanceID string `json:"instance_id"`
		Seq        uint64 `json:"seq"`
		Kind       string `json:"kind"`
		FiberID    string `json:"fiber_id,omitempty"`
		JobKey     string `json:"job_key,omitempty"`
	}{
		InstanceID: instanceID,
		Seq:        e.Seq,
		Kind:       e.Kind.String(),
		FiberID:    e.FiberID,
		JobKey:     e.JobKey,
	}
	b, err := json.Marshal(line)
	if err != nil {
		return
	}
	l.w.Write(append(b, '\n'))
}

func (l *LogEmitter) EmitBatch(_ context.Context, instanceID string, events []bpmn.RuntimeEvent) error {
	for _, e := range events {
		l.Emit(instanceID, e)
	}
	return nil
}

func (l *LogEmitter) Flush(context.Context) error { return nil }

var _ Emitter = (*LogEmitter)(nil)
