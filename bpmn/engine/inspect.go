package engine

import (
	"context"
	"errors"

	"github.com/adamtc007/ob-poc-sub001/bpmn"
	"github.com/adamtc007/ob-poc-sub001/bpmn/store"
)

// FiberView is a read-only projection of a Fiber for Inspect callers, with
// the wait pre-rendered to its stable description string.
type FiberView struct {
	FiberID  string
	PC       bpmn.Addr
	Wait     bpmn.WaitState
	WaitDesc string
}

// InspectResult is everything Inspect returns about one instance (§4.3.7).
type InspectResult struct {
	InstanceID string
	State      bpmn.ProcessState
	Flags      map[int]bpmn.Value
	Fibers     []FiberView
	Incidents  []*bpmn.Incident
}

// Inspect implements §4.3.7's "inspect": a point-in-time read of an
// instance's state, fiber set, and incidents — never mutates anything.
func (e *Engine) Inspect(ctx context.Context, instanceID string) (*InspectResult, error) {
	inst, err := e.store.LoadInstance(ctx, instanceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, bpmn.ErrInstanceNotFound
		}
		return nil, err
	}
	fibers, err := e.store.LoadFibers(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	incidents, err := e.store.LoadIncidentsForInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	views := make([]FiberView, 0, len(fibers))
	for _, f := range fibers {
		views = append(views, FiberView{
			FiberID:  f.FiberID,
			PC:       f.PC,
			Wait:     f.Wait,
			WaitDesc: f.Wait.Describe(),
		})
	}

	return &InspectResult{
		InstanceID: inst.InstanceID,
		State:      inst.State,
		Flags:      inst.Flags,
		Fibers:     views,
		Incidents:  incidents,
	}, nil
}

// ReadEvents implements §4.3.7's "read_events": the append-only audit log
// for one instance, from fromSeq onward.
func (e *Engine) ReadEvents(ctx context.Context, instanceID string, fromSeq uint64) ([]bpmn.RuntimeEvent, error) {
	return e.store.ReadEvents(ctx, instanceID, fromSeq)
}

// ActivateJobs implements §4.3.7's "activate_jobs": workers pull pending
// jobs of the task types they can execute, up to max at a time, and get an
// activation deadline back. Re-enqueuing through Store.EnqueueJob persists
// the InFlight status the Store sets during DequeueJobs together with the
// deadline set here — the Store contract (§6.4) has no separate "update job"
// operation, so an upsert through the same method that created the record
// is the simplest way to persist the mutation across backends.
func (e *Engine) ActivateJobs(ctx context.Context, taskTypes []string, max int) ([]bpmn.JobActivation, error) {
	jobs, err := e.store.DequeueJobs(ctx, taskTypes, max)
	if err != nil {
		return nil, err
	}

	deadline := e.clock().Add(defaultActivationTimeout)
	out := make([]bpmn.JobActivation, 0, len(jobs))
	for _, j := range jobs {
		j.ActivationDeadline = &deadline
		if err := e.store.EnqueueJob(ctx, j); err != nil {
			return nil, err
		}

		inst, err := e.store.LoadInstance(ctx, j.ProcessInstanceID)
		if err != nil {
			return nil, err
		}
		if err := e.appendEvent(ctx, inst, bpmn.EvJobActivated, func(ev *bpmn.RuntimeEvent) {
			ev.JobKey = j.JobKey
			ev.TaskType = j.TaskType
			ev.ServiceTaskID = j.ServiceTaskID
		}); err != nil {
			return nil, err
		}
		if err := e.store.SaveInstance(ctx, inst); err != nil {
			return nil, err
		}

		out = append(out, bpmn.JobActivation{
			JobKey:             j.JobKey,
			ProcessInstanceID:  j.ProcessInstanceID,
			ServiceTaskID:      j.ServiceTaskID,
			TaskType:           j.TaskType,
			PayloadRef:         j.PayloadRef,
			ActivationDeadline: deadline,
		})
	}
	return out, nil
}
