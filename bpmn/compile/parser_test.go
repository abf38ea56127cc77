package compile

import (
	"strings"
	"testing"
)

func TestParseRecognizesCoreElements(t *testing.T) {
	const doc = `
<process id="p1">
  <startEvent id="start" />
  <sequenceFlow id="f1" sourceRef="start" targetRef="fork" />
  <parallelGateway id="fork" />
  <sequenceFlow id="f2" sourceRef="fork" targetRef="a" />
  <sequenceFlow id="f3" sourceRef="fork" targetRef="b" />
  <serviceTask id="a" taskType="task_a" />
  <serviceTask id="b" taskType="task_b" />
  <sequenceFlow id="f4" sourceRef="a" targetRef="join" />
  <sequenceFlow id="f5" sourceRef="b" targetRef="join" />
  <parallelGateway id="join" />
  <sequenceFlow id="f6" sourceRef="join" targetRef="end1" />
  <endEvent id="end1" />
</process>
`
	g, diags := Parse(strings.NewReader(doc))
	if len(diags) > 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}
	if g.StartID != "start" {
		t.Fatalf("expected StartID=start, got %q", g.StartID)
	}
	if g.Nodes["fork"].Kind != NodeParallelFork {
		t.Errorf("expected fork to resolve as a fork (1 in, 2 out), got %v", g.Nodes["fork"].Kind)
	}
	if g.Nodes["join"].Kind != NodeParallelJoin {
		t.Errorf("expected join to resolve as a join (2 in, 1 out), got %v", g.Nodes["join"].Kind)
	}
	if g.Nodes["a"].TaskType != "task_a" || g.Nodes["b"].TaskType != "task_b" {
		t.Errorf("expected task types task_a/task_b, got %q/%q", g.Nodes["a"].TaskType, g.Nodes["b"].TaskType)
	}
}

func TestParseTaskDefinitionNestedElement(t *testing.T) {
	const doc = `
<process id="p1">
  <startEvent id="start" />
  <sequenceFlow id="f1" sourceRef="start" targetRef="task1" />
  <serviceTask id="task1">
    <extensionElements>
      <taskDefinition type="send_email" />
    </extensionElements>
  </serviceTask>
  <sequenceFlow id="f2" sourceRef="task1" targetRef="end1" />
  <endEvent id="end1" />
</process>
`
	g, diags := Parse(strings.NewReader(doc))
	if len(diags) > 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}
	if g.Nodes["task1"].TaskType != "send_email" {
		t.Fatalf("expected nested taskDefinition type to be picked up, got %q", g.Nodes["task1"].TaskType)
	}
}

func TestParseTerminateEndEvent(t *testing.T) {
	const doc = `
<process id="p1">
  <startEvent id="start" />
  <sequenceFlow id="f1" sourceRef="start" targetRef="end1" />
  <endEvent id="end1">
    <terminateEventDefinition />
  </endEvent>
</process>
`
	g, diags := Parse(strings.NewReader(doc))
	if len(diags) > 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}
	if g.Nodes["end1"].Kind != NodeEndTerminate {
		t.Fatalf("expected end1 to be NodeEndTerminate, got %v", g.Nodes["end1"].Kind)
	}
}

func TestParseBoundaryTimerCycle(t *testing.T) {
	const doc = `
<process id="p1">
  <startEvent id="start" />
  <sequenceFlow id="f1" sourceRef="start" targetRef="task1" />
  <serviceTask id="task1" taskType="slow_task" />
  <boundaryEvent id="b1" attachedToRef="task1" cancelActivity="false">
    <timerEventDefinition>
      <timeCycle>R3/PT1S</timeCycle>
    </timerEventDefinition>
  </boundaryEvent>
  <sequenceFlow id="esc" sourceRef="b1" targetRef="end1" />
  <sequenceFlow id="f2" sourceRef="task1" targetRef="end1" />
  <endEvent id="end1" />
</process>
`
	g, diags := Parse(strings.NewReader(doc))
	if len(diags) > 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}
	if len(g.Boundaries) != 1 {
		t.Fatalf("expected 1 boundary, got %d", len(g.Boundaries))
	}
	b := g.Boundaries[0]
	if !b.IsTimer || !b.TimerIsCycle {
		t.Fatalf("expected a cycle timer boundary, got %+v", b)
	}
	if b.TimerCycleCount != 3 {
		t.Errorf("expected cycle count 3, got %d", b.TimerCycleCount)
	}
	if b.TimerDurationMs != 1000 {
		t.Errorf("expected duration 1000ms, got %d", b.TimerDurationMs)
	}
	if b.CancelActivity {
		t.Errorf("expected cancelActivity=false to be honored")
	}
	if b.OutgoingFlowID != "esc" {
		t.Errorf("expected outgoing flow esc, got %q", b.OutgoingFlowID)
	}
}

func TestParseMissingProcessElement(t *testing.T) {
	const doc = `<definitions></definitions>`
	_, diags := Parse(strings.NewReader(doc))
	if len(diags) == 0 {
		t.Fatalf("expected a diagnostic for a document with no process element")
	}
}

func TestParseMalformedXML(t *testing.T) {
	const doc = `<process id="p1"><startEvent id="start"></process>`
	_, diags := Parse(strings.NewReader(doc))
	if len(diags) == 0 {
		t.Fatalf("expected a parse diagnostic for malformed XML")
	}
	if diags[0].Kind != "ParseError" {
		t.Errorf("expected ParseError, got %q", diags[0].Kind)
	}
}

func TestParseUnknownFlowReference(t *testing.T) {
	const doc = `
<process id="p1">
  <startEvent id="start" />
  <sequenceFlow id="f1" sourceRef="start" targetRef="ghost" />
</process>
`
	_, diags := Parse(strings.NewReader(doc))
	if len(diags) == 0 {
		t.Fatalf("expected a diagnostic for a sequenceFlow targeting an unknown node")
	}
}

func TestParseISODurationVariants(t *testing.T) {
	cases := map[string]int64{
		"PT1S":  1000,
		"PT30M": 1_800_000,
		"PT2H":  7_200_000,
		"":      0,
	}
	for in, want := range cases {
		got, err := parseISODurationMs(in)
		if err != nil {
			t.Fatalf("parseISODurationMs(%q) returned error: %v", in, err)
		}
		if got != want {
			t.Errorf("parseISODurationMs(%q) = %d, want %d", in, got, want)
		}
	}
}
