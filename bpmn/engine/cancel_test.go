package engine_test

import (
	"testing"

	"github.com/adamtc007/ob-poc-sub001/bpmn"
)

func TestEngineCancelRunningInstance(t *testing.T) {
	e, ctx := newTestEngine(t, nil)
	prog := compileXML(t, e, ctx, linearEngineProcess)

	instanceID, err := e.Start(ctx, "p1", prog.BytecodeVersion, "corr-1", "{}")
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if _, err := e.RunInstance(ctx, instanceID); err != nil {
		t.Fatalf("RunInstance returned error: %v", err)
	}

	if err := e.Cancel(ctx, instanceID, "operator requested"); err != nil {
		t.Fatalf("Cancel returned error: %v", err)
	}

	insp, err := e.Inspect(ctx, instanceID)
	if err != nil {
		t.Fatalf("Inspect returned error: %v", err)
	}
	if insp.State != bpmn.StateCancelled {
		t.Fatalf("expected instance cancelled, got %v", insp.State)
	}
	if len(insp.Fibers) != 0 {
		t.Fatalf("expected no fibers left after cancel, got %d", len(insp.Fibers))
	}

	events, err := e.ReadEvents(ctx, instanceID, 0)
	if err != nil {
		t.Fatalf("ReadEvents returned error: %v", err)
	}
	if !containsKind(events, bpmn.EvCancelled) {
		t.Errorf("expected a Cancelled event, got %v", eventKinds(events))
	}

	// Cancelling an already-terminal instance is a no-op, not an error.
	if err := e.Cancel(ctx, instanceID, "second call"); err != nil {
		t.Fatalf("expected re-cancelling a terminal instance to be a no-op, got error: %v", err)
	}
}

func TestEngineCancelUnknownInstance(t *testing.T) {
	e, ctx := newTestEngine(t, nil)
	if err := e.Cancel(ctx, "does-not-exist", "n/a"); err != bpmn.ErrInstanceNotFound {
		t.Fatalf("expected ErrInstanceNotFound, got %v", err)
	}
}
