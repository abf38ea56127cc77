package engine

import (
	"context"
	"io"

	"github.com/adamtc007/ob-poc-sub001/bpmn"
	"github.com/adamtc007/ob-poc-sub001/bpmn/compile"
	"golang.org/x/sync/errgroup"
)

// Compile is a thin pass-through to compile.Compile, kept on Engine so
// callers depend on one package for the whole facade rather than reaching
// into bpmn/compile directly — and so a future Engine could cache
// programs across repeated compiles of the same source. On failure the
// returned error is a *compile.CompileError (errors.As-recoverable, and
// errors.Is-compatible with bpmn.ErrCompileFailed) carrying the full
// diagnostic list, per §6.1's compile op contract.
func (e *Engine) Compile(ctx context.Context, r io.Reader) (*bpmn.Program, error) {
	prog, err := compile.Compile(r)
	if err != nil {
		return nil, err
	}
	if err := e.store.StoreProgram(ctx, prog); err != nil {
		return nil, err
	}
	return prog, nil
}

// RunInstance is the supplemented convenience operation (§12.1): repeatedly
// calls TickInstance until a tick produces no new events (fixed point) or
// the instance reaches a terminal state, returning every job newly
// enqueued along the way so a caller driving a single instance
// synchronously doesn't have to poll read_events itself.
func (e *Engine) RunInstance(ctx context.Context, instanceID string) ([]bpmn.JobActivation, error) {
	var enqueued []bpmn.JobActivation

	for {
		inst, err := e.store.LoadInstance(ctx, instanceID)
		if err != nil {
			return enqueued, err
		}
		if inst.State.IsTerminal() {
			break
		}
		fromSeq := inst.NextSeq

		if err := e.TickInstance(ctx, instanceID); err != nil {
			return enqueued, err
		}

		events, err := e.store.ReadEvents(ctx, instanceID, fromSeq)
		if err != nil {
			return enqueued, err
		}
		if len(events) == 0 {
			break
		}
		for _, ev := range events {
			if ev.Kind == bpmn.EvJobEnqueued {
				enqueued = append(enqueued, bpmn.JobActivation{
					JobKey:            ev.JobKey,
					ProcessInstanceID: instanceID,
					ServiceTaskID:     ev.ServiceTaskID,
					TaskType:          ev.TaskType,
				})
			}
		}
	}

	return enqueued, nil
}

// TickAll implements §11's errgroup row: tick every named instance
// concurrently, one goroutine each, returning the first error (if any).
// The first error cancels the context shared by the remaining ticks, and
// TickAll waits for every goroutine to return. Each instance is
// single-writer under §5's rule since a goroutine only ever ticks the one
// instance id it was given.
func (e *Engine) TickAll(ctx context.Context, instanceIDs []string) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, id := range instanceIDs {
		id := id
		g.Go(func() error {
			return e.TickInstance(gctx, id)
		})
	}
	return g.Wait()
}
