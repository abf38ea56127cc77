package engine_test

import (
	"testing"
	"time"

	"github.com/adamtc007/ob-poc-sub001/bpmn"
)

const timerBoundaryProcess = `
<process id="p1">
  <startEvent id="start" />
  <sequenceFlow id="f1" sourceRef="start" targetRef="task1" />
  <serviceTask id="task1" taskType="wait_for_approval" />
  <boundaryEvent id="b1" attachedToRef="task1">
    <timerEventDefinition><timeDuration>PT30S</timeDuration></timerEventDefinition>
  </boundaryEvent>
  <sequenceFlow id="f2" sourceRef="task1" targetRef="end1" />
  <sequenceFlow id="fb" sourceRef="b1" targetRef="endTimeout" />
  <endEvent id="end1" />
  <endEvent id="endTimeout" />
</process>
`

func TestEngineInterruptingBoundaryTimerFires(t *testing.T) {
	now := time.UnixMilli(1_000_000)
	e, ctx := newTestEngine(t, func() time.Time { return now })

	prog := compileXML(t, e, ctx, timerBoundaryProcess)
	instanceID, err := e.Start(ctx, "p1", prog.BytecodeVersion, "corr-1", "{}")
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if _, err := e.RunInstance(ctx, instanceID); err != nil {
		t.Fatalf("RunInstance returned error: %v", err)
	}

	insp, err := e.Inspect(ctx, instanceID)
	if err != nil {
		t.Fatalf("Inspect returned error: %v", err)
	}
	if len(insp.Fibers) != 1 || insp.Fibers[0].Wait.Kind != bpmn.WaitRace {
		t.Fatalf("expected the fiber to be promoted onto a race wait, got %+v", insp.Fibers)
	}

	events, err := e.ReadEvents(ctx, instanceID, 0)
	if err != nil {
		t.Fatalf("ReadEvents returned error: %v", err)
	}
	if !containsKind(events, bpmn.EvRaceRegistered) {
		t.Fatalf("expected a RaceRegistered event, got %v", eventKinds(events))
	}

	now = now.Add(31 * time.Second)
	if _, err := e.RunInstance(ctx, instanceID); err != nil {
		t.Fatalf("RunInstance (post-timer) returned error: %v", err)
	}

	insp, err = e.Inspect(ctx, instanceID)
	if err != nil {
		t.Fatalf("Inspect returned error: %v", err)
	}
	if insp.State != bpmn.StateCompleted {
		t.Fatalf("expected the instance to complete via the timeout branch, got %v", insp.State)
	}

	events, err = e.ReadEvents(ctx, instanceID, 0)
	if err != nil {
		t.Fatalf("ReadEvents returned error: %v", err)
	}
	if !containsKind(events, bpmn.EvRaceResolved) {
		t.Errorf("expected a RaceResolved event, got %v", eventKinds(events))
	}
}
