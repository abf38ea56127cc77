package engine_test

import (
	"testing"

	"github.com/adamtc007/ob-poc-sub001/bpmn"
	"github.com/adamtc007/ob-poc-sub001/bpmn/store/memory"
)

// TestEngineS3BoundedRetryLoop covers spec.md's S3 scenario: a service task
// whose error boundary routes a specific business-rejection code back to a
// counter-guarded retry, bounded at 3 attempts, completing once the counter
// is exhausted. The compiler's XML->IR->bytecode path has no construct for
// "error boundary resumes into a counter-guarded back-edge" (error routes
// resume directly into whatever node the boundary's flow targets, not
// through followFlow's back-edge machinery), so the program is built by
// hand here exactly as §8 S3 specifies it, the same way
// bytecode_verifier_test.go hand-builds programs to exercise the bytecode
// verifier directly.
func TestEngineS3BoundedRetryLoop(t *testing.T) {
	st := memory.New()
	e, ctx := newTestEngineOverStore(t, st, nil)

	code := []bpmn.Instr{
		{Op: bpmn.OpExecNative, TaskType: "charge_card"},            // pc0
		{Op: bpmn.OpJump, Target: 5},                                // pc1
		{Op: bpmn.OpIncCounter, CounterID: 0},                       // pc2: error route resumes here
		{Op: bpmn.OpBrCounterLt, CounterID: 0, Limit: 3, Target: 0}, // pc3
		{Op: bpmn.OpEnd},                                            // pc4
		{Op: bpmn.OpEnd},                                            // pc5
	}
	errCode := "RETRY_ME"
	prog := &bpmn.Program{
		Code:          code,
		DebugMap:      map[bpmn.Addr]string{0: "task1"},
		JoinPlan:      map[int]int{},
		RacePlan:      map[int]bpmn.RacePlan{},
		BoundaryMap:   map[bpmn.Addr]int{},
		ErrorRouteMap: map[bpmn.Addr][]bpmn.ErrorRoute{0: {{ErrorCode: &errCode, ResumeAt: 2, BoundaryElementID: "catch_retry"}}},
		WriteSet:      map[bpmn.Addr][]int{},
		TaskManifest:  []string{"charge_card"},
	}
	prog.BytecodeVersion = bpmn.ComputeBytecodeVersion(prog.Code, prog.DebugMap, prog.JoinPlan, prog.TaskManifest, prog.RacePlan, prog.BoundaryMap, prog.ErrorRouteMap)
	if err := st.StoreProgram(ctx, prog); err != nil {
		t.Fatalf("StoreProgram returned error: %v", err)
	}

	instanceID, err := e.Start(ctx, "p1", prog.BytecodeVersion, "corr-1", "{}")
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	jobKeys := map[string]bool{}
	for i := 0; i < 3; i++ {
		if _, err := e.RunInstance(ctx, instanceID); err != nil {
			t.Fatalf("RunInstance (iteration %d) returned error: %v", i, err)
		}
		activations, err := e.ActivateJobs(ctx, []string{"charge_card"}, 10)
		if err != nil {
			t.Fatalf("ActivateJobs (iteration %d) returned error: %v", i, err)
		}
		if len(activations) != 1 {
			t.Fatalf("iteration %d: expected exactly one activation, got %d", i, len(activations))
		}
		jobKey := activations[0].JobKey
		if jobKeys[jobKey] {
			t.Fatalf("iteration %d: job_key %q repeated across iterations, expected distinct trailing epochs", i, jobKey)
		}
		jobKeys[jobKey] = true

		if err := e.FailJob(ctx, jobKey, bpmn.BusinessRejection("RETRY_ME"), "card declined"); err != nil {
			t.Fatalf("FailJob (iteration %d) returned error: %v", i, err)
		}
	}

	if _, err := e.RunInstance(ctx, instanceID); err != nil {
		t.Fatalf("RunInstance (final pass) returned error: %v", err)
	}

	insp, err := e.Inspect(ctx, instanceID)
	if err != nil {
		t.Fatalf("Inspect returned error: %v", err)
	}
	if insp.State != bpmn.StateCompleted {
		t.Fatalf("expected instance Completed after the retry budget is exhausted, got %v", insp.State)
	}
	if len(insp.Fibers) != 0 {
		t.Fatalf("expected no fibers left on a completed instance, got %d", len(insp.Fibers))
	}

	events, err := e.ReadEvents(ctx, instanceID, 0)
	if err != nil {
		t.Fatalf("ReadEvents returned error: %v", err)
	}
	routed := 0
	for _, ev := range events {
		if ev.Kind == bpmn.EvErrorRouted {
			routed++
		}
	}
	if routed != 3 {
		t.Fatalf("expected exactly 3 ErrorRouted events, got %d (%v)", routed, eventKinds(events))
	}
	if len(jobKeys) != 3 {
		t.Fatalf("expected 3 distinct job keys (one per loop epoch), got %d", len(jobKeys))
	}
}

const terminateForkProcess = `
<process id="p1">
  <startEvent id="start" />
  <sequenceFlow id="f1" sourceRef="start" targetRef="fork" />
  <parallelGateway id="fork" />
  <sequenceFlow id="f2" sourceRef="fork" targetRef="termEnd" />
  <sequenceFlow id="f3" sourceRef="fork" targetRef="slow" />
  <endEvent id="termEnd">
    <terminateEventDefinition />
  </endEvent>
  <serviceTask id="slow" taskType="slow_task" />
  <sequenceFlow id="f4" sourceRef="slow" targetRef="end1" />
  <endEvent id="end1" />
</process>
`

// TestEngineS5TerminateKillsParallelBranch covers spec.md's S5 scenario: one
// forked branch reaches a terminate end event while its sibling is still
// outstanding, and the whole instance is killed — fibers deleted, jobs
// purged — rather than waiting for the slow branch.
func TestEngineS5TerminateKillsParallelBranch(t *testing.T) {
	e, ctx := newTestEngine(t, nil)
	prog := compileXML(t, e, ctx, terminateForkProcess)

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
	if insp.State != bpmn.StateTerminated {
		t.Fatalf("expected instance Terminated, got %v", insp.State)
	}
	if len(insp.Fibers) != 0 {
		t.Fatalf("expected no fibers left after terminate, got %d", len(insp.Fibers))
	}

	events, err := e.ReadEvents(ctx, instanceID, 0)
	if err != nil {
		t.Fatalf("ReadEvents returned error: %v", err)
	}
	if !containsKind(events, bpmn.EvTerminated) {
		t.Errorf("expected a Terminated event, got %v", eventKinds(events))
	}

	activations, err := e.ActivateJobs(ctx, []string{"slow_task"}, 1000)
	if err != nil {
		t.Fatalf("ActivateJobs returned error: %v", err)
	}
	if len(activations) != 0 {
		t.Fatalf("expected no dequeuable slow_task jobs after terminate, got %d", len(activations))
	}
}

const inclusiveTwoOfThreeProcess = `
<process id="p1">
  <startEvent id="start" />
  <sequenceFlow id="f0" sourceRef="start" targetRef="gw1" />
  <inclusiveGateway id="gw1" />
  <sequenceFlow id="fa" sourceRef="gw1" targetRef="taskA" />
  <sequenceFlow id="fb" sourceRef="gw1" targetRef="taskB" conditionFlag="flag0" />
  <sequenceFlow id="fc" sourceRef="gw1" targetRef="taskC" conditionFlag="flag1" />
  <serviceTask id="taskA" taskType="task_a" />
  <serviceTask id="taskB" taskType="task_b" />
  <serviceTask id="taskC" taskType="task_c" />
  <sequenceFlow id="ga" sourceRef="taskA" targetRef="gwjoin" />
  <sequenceFlow id="gb" sourceRef="taskB" targetRef="gwjoin" />
  <sequenceFlow id="gc" sourceRef="taskC" targetRef="gwjoin" />
  <inclusiveGateway id="gwjoin" />
  <sequenceFlow id="fend" sourceRef="gwjoin" targetRef="end1" />
  <endEvent id="end1" />
</process>
`

// TestEngineS6InclusiveGatewayTwoOfThreeBranches covers spec.md's S6
// scenario end-to-end: with flag0 true and flag1 false, only the
// unconditional branch and the flag0 branch are taken, so the dynamic join
// expects 2 arrivals; completing both activated jobs drains the join and
// carries the instance to completion.
func TestEngineS6InclusiveGatewayTwoOfThreeBranches(t *testing.T) {
	e, ctx := newTestEngine(t, nil)
	prog := compileXML(t, e, ctx, inclusiveTwoOfThreeProcess)

	payload := `{"flags":{"flag0":true,"flag1":false}}`
	instanceID, err := e.Start(ctx, "p1", prog.BytecodeVersion, "corr-1", payload)
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	enqueued, err := e.RunInstance(ctx, instanceID)
	if err != nil {
		t.Fatalf("RunInstance (first pass) returned error: %v", err)
	}
	if len(enqueued) != 2 {
		t.Fatalf("expected exactly 2 jobs enqueued (unconditional + flag0 branch), got %d: %+v", len(enqueued), enqueued)
	}

	insp, err := e.Inspect(ctx, instanceID)
	if err != nil {
		t.Fatalf("Inspect returned error: %v", err)
	}
	if insp.State != bpmn.StateRunning {
		t.Fatalf("expected instance still Running with both branch jobs outstanding, got %v", insp.State)
	}

	activations, err := e.ActivateJobs(ctx, []string{"task_a", "task_b", "task_c"}, 10)
	if err != nil {
		t.Fatalf("ActivateJobs returned error: %v", err)
	}
	if len(activations) != 2 {
		t.Fatalf("expected exactly 2 activations (task_c's branch must not have fired), got %d: %+v", len(activations), activations)
	}
	for _, act := range activations {
		if act.TaskType == "task_c" {
			t.Fatalf("task_c's branch should not have been taken (flag1=false), but got an activation for it")
		}
	}

	if err := e.CompleteJob(ctx, activations[0].JobKey, "{}", bpmn.HashBytes([]byte(payload)), nil); err != nil {
		t.Fatalf("CompleteJob (first branch) returned error: %v", err)
	}
	if _, err := e.RunInstance(ctx, instanceID); err != nil {
		t.Fatalf("RunInstance (after first branch completion) returned error: %v", err)
	}

	insp, err = e.Inspect(ctx, instanceID)
	if err != nil {
		t.Fatalf("Inspect returned error: %v", err)
	}
	if insp.State != bpmn.StateRunning {
		t.Fatalf("expected instance still Running with one join arrival outstanding, got %v", insp.State)
	}

	if err := e.CompleteJob(ctx, activations[1].JobKey, "{}", bpmn.HashBytes([]byte("{}")), nil); err != nil {
		t.Fatalf("CompleteJob (second branch) returned error: %v", err)
	}
	if _, err := e.RunInstance(ctx, instanceID); err != nil {
		t.Fatalf("RunInstance (after second branch completion) returned error: %v", err)
	}

	insp, err = e.Inspect(ctx, instanceID)
	if err != nil {
		t.Fatalf("Inspect returned error: %v", err)
	}
	if insp.State != bpmn.StateCompleted {
		t.Fatalf("expected the join to release and the instance to complete, got %v", insp.State)
	}
	if len(insp.Fibers) != 0 {
		t.Fatalf("expected no fibers left on a completed instance, got %d", len(insp.Fibers))
	}
}
