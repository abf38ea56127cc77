// Package bpmn defines the data model shared by the compiler, VM, engine,
// and store packages: the compiled Program, the mutable ProcessInstance and
// Fiber, the WaitState sum type, Job and Incident records, and the
// append-only RuntimeEvent log.
package bpmn

import "errors"

// Protocol errors: caller mistakes. Reported synchronously, no persisted effect.
var (
	ErrInstanceNotFound    = errors.New("bpmn: instance not found")
	ErrProgramNotFound     = errors.New("bpmn: program not found")
	ErrPayloadHashMismatch = errors.New("bpmn: payload hash mismatch")
	ErrJobKeyParseError    = errors.New("bpmn: malformed job key")
)

// VM-level contract violations. These never escape to an engine caller —
// the engine turns them into a ContractViolation incident on the fiber that
// triggered them (see §7 propagation policy).
var (
	ErrMaxStepsExceeded   = errors.New("bpmn: fiber exceeded max steps without parking or ending")
	ErrUnreachableAddress = errors.New("bpmn: program counter outside program bounds")
	ErrCounterOutOfRange  = errors.New("bpmn: counter id not declared by program")
)

// ErrCompileFailed is the sentinel compile.Compile's error satisfies
// (errors.Is) whenever parsing, verification, lowering, or bytecode
// verification produced at least one diagnostic. The concrete error
// returned is a *compile.CompileError carrying the full diagnostic list;
// this var exists so callers can check "did compilation fail" without
// importing compile.CompileError's shape.
var ErrCompileFailed = errors.New("bpmn: compilation failed")

// EngineError carries a machine-readable code alongside a message, for
// callers that want to branch on error kind without string matching.
type EngineError struct {
	Code    string
	Message string
}

func (e *EngineError) Error() string {
	return e.Code + ": " + e.Message
}
