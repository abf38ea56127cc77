package compile

import (
	"io"
	"strings"

	"github.com/adamtc007/ob-poc-sub001/bpmn"
)

// CompileError wraps bpmn.ErrCompileFailed with the full diagnostic list
// that produced it, so a caller that only has an error in hand (e.g.
// Engine.Compile) can still recover every ParseError/VerifierError/
// LoweringError/BytecodeVerifierError the pipeline found, per §6.1's
// compile op contract (`{bytecode_version, task_types, diagnostics}`).
type CompileError struct {
	Diagnostics []Diagnostic
}

func (e *CompileError) Error() string {
	msgs := make([]string, len(e.Diagnostics))
	for i, d := range e.Diagnostics {
		msgs[i] = d.String()
	}
	return "bpmn: compilation failed: " + strings.Join(msgs, "; ")
}

func (e *CompileError) Unwrap() error { return bpmn.ErrCompileFailed }

// Compile runs the full pipeline over a BPMN XML document: parse, verify,
// lower, verify bytecode. It returns a *CompileError (errors.Is-compatible
// with bpmn.ErrCompileFailed) wrapping every diagnostic collected at the
// first stage that produced any — later stages are not run once an
// earlier one has failed, since lowering a malformed IR graph would
// otherwise need its own defensive checks that duplicate the verifier's.
func Compile(r io.Reader) (*bpmn.Program, error) {
	graph, diags := Parse(r)
	if len(diags) > 0 {
		return nil, &CompileError{Diagnostics: diags}
	}

	diags = Verify(graph)
	if len(diags) > 0 {
		return nil, &CompileError{Diagnostics: diags}
	}

	prog, diags := Lower(graph)
	if len(diags) > 0 {
		return nil, &CompileError{Diagnostics: diags}
	}

	diags = VerifyBytecode(prog)
	if len(diags) > 0 {
		return nil, &CompileError{Diagnostics: diags}
	}

	return prog, nil
}

// CompileWithDiagnostics behaves like Compile but returns the full
// diagnostic list regardless of outcome, for callers (CLI, tests) that
// want to print every finding rather than just learn that compilation
// failed.
func CompileWithDiagnostics(r io.Reader) (*bpmn.Program, []Diagnostic) {
	graph, diags := Parse(r)
	if len(diags) > 0 {
		return nil, diags
	}

	if d := Verify(graph); len(d) > 0 {
		return nil, d
	}

	prog, diags := Lower(graph)
	if len(diags) > 0 {
		return nil, diags
	}

	if d := VerifyBytecode(prog); len(d) > 0 {
		return nil, d
	}

	return prog, nil
}
