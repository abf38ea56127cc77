package engine_test

import (
	"testing"

	"github.com/adamtc007/ob-poc-sub001/bpmn"
)

const errorBoundaryProcess = `
<process id="p1">
  <startEvent id="start" />
  <sequenceFlow id="f1" sourceRef="start" targetRef="task1" />
  <serviceTask id="task1" taskType="charge_card" />
  <boundaryEvent id="b1" attachedToRef="task1">
    <errorEventDefinition errorCode="card_declined" />
  </boundaryEvent>
  <sequenceFlow id="f2" sourceRef="task1" targetRef="end1" />
  <sequenceFlow id="fb" sourceRef="b1" targetRef="endErr" />
  <endEvent id="end1" />
  <endEvent id="endErr" />
</process>
`

func TestEngineFailJobBusinessRejectionRoutesToBoundary(t *testing.T) {
	e, ctx := newTestEngine(t, nil)
	prog := compileXML(t, e, ctx, errorBoundaryProcess)

	payload := `{}`
	instanceID, err := e.Start(ctx, "p1", prog.BytecodeVersion, "corr-1", payload)
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if _, err := e.RunInstance(ctx, instanceID); err != nil {
		t.Fatalf("RunInstance returned error: %v", err)
	}

	activations, err := e.ActivateJobs(ctx, []string{"charge_card"}, 10)
	if err != nil {
		t.Fatalf("ActivateJobs returned error: %v", err)
	}
	if len(activations) != 1 {
		t.Fatalf("expected one activation, got %d", len(activations))
	}

	rejection := bpmn.BusinessRejection("card_declined")
	if err := e.FailJob(ctx, activations[0].JobKey, rejection, "card was declined"); err != nil {
		t.Fatalf("FailJob returned error: %v", err)
	}

	if _, err := e.RunInstance(ctx, instanceID); err != nil {
		t.Fatalf("RunInstance (post-route) returned error: %v", err)
	}

	insp, err := e.Inspect(ctx, instanceID)
	if err != nil {
		t.Fatalf("Inspect returned error: %v", err)
	}
	if insp.State != bpmn.StateCompleted {
		t.Fatalf("expected the error route to drain to completion, got %v", insp.State)
	}

	events, err := e.ReadEvents(ctx, instanceID, 0)
	if err != nil {
		t.Fatalf("ReadEvents returned error: %v", err)
	}
	if !containsKind(events, bpmn.EvErrorRouted) {
		t.Errorf("expected an ErrorRouted event, got %v", eventKinds(events))
	}
	if containsKind(events, bpmn.EvIncidentCreated) {
		t.Errorf("routed business rejections should not create an incident, got %v", eventKinds(events))
	}
}

func TestEngineFailJobTransientCreatesIncident(t *testing.T) {
	e, ctx := newTestEngine(t, nil)
	prog := compileXML(t, e, ctx, linearEngineProcess)

	payload := `{}`
	instanceID, err := e.Start(ctx, "p1", prog.BytecodeVersion, "corr-1", payload)
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if _, err := e.RunInstance(ctx, instanceID); err != nil {
		t.Fatalf("RunInstance returned error: %v", err)
	}

	activations, err := e.ActivateJobs(ctx, []string{"send_email"}, 10)
	if err != nil {
		t.Fatalf("ActivateJobs returned error: %v", err)
	}
	if len(activations) != 1 {
		t.Fatalf("expected one activation, got %d", len(activations))
	}

	if err := e.FailJob(ctx, activations[0].JobKey, bpmn.Transient(), "smtp timeout"); err != nil {
		t.Fatalf("FailJob returned error: %v", err)
	}

	insp, err := e.Inspect(ctx, instanceID)
	if err != nil {
		t.Fatalf("Inspect returned error: %v", err)
	}
	if insp.State != bpmn.StateFailed {
		t.Fatalf("expected instance state Failed after an unrouted transient failure, got %v", insp.State)
	}
	if len(insp.Incidents) != 1 {
		t.Fatalf("expected exactly one incident, got %d", len(insp.Incidents))
	}
	if insp.Incidents[0].ErrorClass.Kind != bpmn.ErrorTransient {
		t.Errorf("expected the incident to carry the Transient error class, got %v", insp.Incidents[0].ErrorClass.Kind)
	}
}
