package compile

import (
	"strings"
	"testing"

	"github.com/adamtc007/ob-poc-sub001/bpmn"
)

const linearProcess = `
<process id="p1">
  <startEvent id="start" />
  <sequenceFlow id="f1" sourceRef="start" targetRef="task1" />
  <serviceTask id="task1" taskType="send_email" />
  <sequenceFlow id="f2" sourceRef="task1" targetRef="end1" />
  <endEvent id="end1" />
</process>
`

func TestCompileLinearProcess(t *testing.T) {
	prog, err := Compile(strings.NewReader(linearProcess))
	if err != nil {
		t.Fatalf("Compile returned error: %v", err)
	}
	if len(prog.Code) == 0 {
		t.Fatalf("expected non-empty bytecode")
	}
	if len(prog.TaskManifest) != 1 || prog.TaskManifest[0] != "send_email" {
		t.Fatalf("expected task manifest [send_email], got %v", prog.TaskManifest)
	}

	var foundExecNative, foundEnd bool
	for _, instr := range prog.Code {
		if instr.Op == bpmn.OpExecNative && instr.TaskType == "send_email" {
			foundExecNative = true
		}
		if instr.Op == bpmn.OpEnd {
			foundEnd = true
		}
	}
	if !foundExecNative {
		t.Errorf("expected an ExecNative(send_email) instruction in the lowered program")
	}
	if !foundEnd {
		t.Errorf("expected an End instruction in the lowered program")
	}
}

func TestCompileIsDeterministic(t *testing.T) {
	p1, err := Compile(strings.NewReader(linearProcess))
	if err != nil {
		t.Fatalf("first Compile returned error: %v", err)
	}
	p2, err := Compile(strings.NewReader(linearProcess))
	if err != nil {
		t.Fatalf("second Compile returned error: %v", err)
	}
	if p1.BytecodeVersion != p2.BytecodeVersion {
		t.Fatalf("expected identical bytecode_version for byte-identical input, got %x != %x",
			p1.BytecodeVersion, p2.BytecodeVersion)
	}
}

func TestCompileMissingStartEvent(t *testing.T) {
	const noStart = `
<process id="p1">
  <serviceTask id="task1" taskType="send_email" />
  <endEvent id="end1" />
</process>
`
	_, err := Compile(strings.NewReader(noStart))
	if err == nil {
		t.Fatalf("expected compilation to fail without a startEvent")
	}
}

func TestCompileServiceTaskMissingTaskType(t *testing.T) {
	const noTaskType = `
<process id="p1">
  <startEvent id="start" />
  <sequenceFlow id="f1" sourceRef="start" targetRef="task1" />
  <serviceTask id="task1" />
  <sequenceFlow id="f2" sourceRef="task1" targetRef="end1" />
  <endEvent id="end1" />
</process>
`
	_, diags := CompileWithDiagnostics(strings.NewReader(noTaskType))
	if len(diags) == 0 {
		t.Fatalf("expected at least one diagnostic for a serviceTask with no task type")
	}
	foundParseError := false
	for _, d := range diags {
		if d.Kind == "ParseError" {
			foundParseError = true
		}
	}
	if !foundParseError {
		t.Errorf("expected a ParseError diagnostic, got %+v", diags)
	}
}

func TestCompileUnguardedBackwardJumpRejected(t *testing.T) {
	// A sequenceFlow back to an already-visited node without loopCounter/
	// loopLimit must fail lowering (§4.1.4).
	const unguardedLoop = `
<process id="p1">
  <startEvent id="start" />
  <sequenceFlow id="f1" sourceRef="start" targetRef="task1" />
  <serviceTask id="task1" taskType="send_email" />
  <exclusiveGateway id="gw1" />
  <sequenceFlow id="f2" sourceRef="task1" targetRef="gw1" />
  <sequenceFlow id="f3" sourceRef="gw1" targetRef="task1" conditionFlag="retry" />
  <sequenceFlow id="f4" sourceRef="gw1" targetRef="end1" conditionFlag="!retry" />
  <endEvent id="end1" />
</process>
`
	_, err := Compile(strings.NewReader(unguardedLoop))
	if err == nil {
		t.Fatalf("expected compilation to fail for an unguarded backward flow")
	}
}

func TestParseMessageCatchCarriesCorrelation(t *testing.T) {
	const withMsg = `
<process id="p1">
  <startEvent id="start" />
  <sequenceFlow id="f1" sourceRef="start" targetRef="catch1" />
  <intermediateCatchEvent id="catch1" corrKeyExpr="order_id">
    <messageEventDefinition messageRef="OrderApproved" />
  </intermediateCatchEvent>
  <sequenceFlow id="f2" sourceRef="catch1" targetRef="end1" />
  <endEvent id="end1" />
</process>
`
	g, diags := Parse(strings.NewReader(withMsg))
	if len(diags) > 0 {
		t.Fatalf("unexpected parse diagnostics: %v", diags)
	}
	n, ok := g.Nodes["catch1"]
	if !ok {
		t.Fatalf("expected node catch1 to be parsed")
	}
	if n.Kind != NodeIntermediateCatchMsg {
		t.Fatalf("expected catch1 to be a message catch node, got %v", n.Kind)
	}
	if n.MsgName != "OrderApproved" {
		t.Errorf("expected MsgName=OrderApproved, got %q", n.MsgName)
	}
	if n.CorrKeyExpr != "order_id" {
		t.Errorf("expected CorrKeyExpr=order_id, got %q", n.CorrKeyExpr)
	}
}
