package engine_test

import (
	"testing"

	"github.com/adamtc007/ob-poc-sub001/bpmn"
)

const linearEngineProcess = `
<process id="p1">
  <startEvent id="start" />
  <sequenceFlow id="f1" sourceRef="start" targetRef="task1" />
  <serviceTask id="task1" taskType="send_email" />
  <sequenceFlow id="f2" sourceRef="task1" targetRef="end1" />
  <endEvent id="end1" />
</process>
`

func TestEngineLinearProcessRunsToCompletion(t *testing.T) {
	e, ctx := newTestEngine(t, nil)
	prog := compileXML(t, e, ctx, linearEngineProcess)

	payload := `{}`
	instanceID, err := e.Start(ctx, "p1", prog.BytecodeVersion, "corr-1", payload)
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	enqueued, err := e.RunInstance(ctx, instanceID)
	if err != nil {
		t.Fatalf("RunInstance (first pass) returned error: %v", err)
	}
	if len(enqueued) != 1 || enqueued[0].TaskType != "send_email" {
		t.Fatalf("expected exactly one send_email job to be enqueued, got %+v", enqueued)
	}

	insp, err := e.Inspect(ctx, instanceID)
	if err != nil {
		t.Fatalf("Inspect returned error: %v", err)
	}
	if insp.State != bpmn.StateRunning {
		t.Fatalf("expected instance still running while job is pending, got %v", insp.State)
	}

	activations, err := e.ActivateJobs(ctx, []string{"send_email"}, 10)
	if err != nil {
		t.Fatalf("ActivateJobs returned error: %v", err)
	}
	if len(activations) != 1 {
		t.Fatalf("expected one activation, got %d", len(activations))
	}
	act := activations[0]
	if act.ProcessInstanceID != instanceID {
		t.Fatalf("activation instance id mismatch: %q != %q", act.ProcessInstanceID, instanceID)
	}

	if err := e.CompleteJob(ctx, act.JobKey, payload, bpmn.HashBytes([]byte(payload)), nil); err != nil {
		t.Fatalf("CompleteJob returned error: %v", err)
	}

	if _, err := e.RunInstance(ctx, instanceID); err != nil {
		t.Fatalf("RunInstance (second pass) returned error: %v", err)
	}

	insp, err = e.Inspect(ctx, instanceID)
	if err != nil {
		t.Fatalf("Inspect returned error: %v", err)
	}
	if insp.State != bpmn.StateCompleted {
		t.Fatalf("expected instance completed, got %v", insp.State)
	}
	if len(insp.Fibers) != 0 {
		t.Fatalf("expected no fibers left on a completed instance, got %d", len(insp.Fibers))
	}

	events, err := e.ReadEvents(ctx, instanceID, 0)
	if err != nil {
		t.Fatalf("ReadEvents returned error: %v", err)
	}
	for _, kind := range []bpmn.EventKind{bpmn.EvInstanceStarted, bpmn.EvJobEnqueued, bpmn.EvJobActivated, bpmn.EvJobCompleted, bpmn.EvCompleted} {
		if !containsKind(events, kind) {
			t.Errorf("expected event kind %v in %v", kind, eventKinds(events))
		}
	}
}

func TestEngineStartUnknownProgramFails(t *testing.T) {
	e, ctx := newTestEngine(t, nil)
	var unknown bpmn.Hash256
	if _, err := e.Start(ctx, "p1", unknown, "corr-1", "{}"); err != bpmn.ErrProgramNotFound {
		t.Fatalf("expected ErrProgramNotFound, got %v", err)
	}
}
