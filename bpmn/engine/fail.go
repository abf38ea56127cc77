package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/adamtc007/ob-poc-sub001/bpmn"
	"github.com/adamtc007/ob-poc-sub001/bpmn/store"
)

// FailJob implements §4.3.4: a BusinessRejection routes to the nearest
// matching error boundary if one exists; everything else (Transient,
// BusinessRejection with no matching route, ContractViolation) creates an
// Incident and fails the instance.
func (e *Engine) FailJob(ctx context.Context, jobKey string, errClass bpmn.ErrorClass, message string) error {
	instanceID, _, _, _, perr := bpmn.ParseJobKey(jobKey)
	if perr != nil {
		return perr
	}

	inst, err := e.store.LoadInstance(ctx, instanceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return bpmn.ErrInstanceNotFound
		}
		return err
	}

	if inst.State.IsTerminal() {
		if err := e.appendEvent(ctx, inst, bpmn.EvSignalIgnored, func(ev *bpmn.RuntimeEvent) {
			ev.SignalDesc = fmt.Sprintf("fail_job on %s instance: %s", inst.State, jobKey)
		}); err != nil {
			return err
		}
		return e.store.SaveInstance(ctx, inst)
	}

	prog, err := e.store.LoadProgram(ctx, inst.BytecodeVersion)
	if err != nil {
		return err
	}
	fibers, err := e.store.LoadFibers(ctx, instanceID)
	if err != nil {
		return err
	}

	var target *bpmn.Fiber
	for _, f := range fibers {
		if f.Wait.Kind == bpmn.WaitJob && f.Wait.JobKey == jobKey {
			target = f
			break
		}
	}
	if target == nil {
		if err := e.appendEvent(ctx, inst, bpmn.EvSignalIgnored, func(ev *bpmn.RuntimeEvent) {
			ev.SignalDesc = fmt.Sprintf("no matching fiber for %s", jobKey)
		}); err != nil {
			return err
		}
		return e.store.SaveInstance(ctx, inst)
	}

	if errClass.Kind == bpmn.ErrorBusinessRejection {
		if route, ok := matchErrorRoute(prog.ErrorRouteMap[target.PC], errClass.RejectionCode); ok {
			target.PC = route.ResumeAt
			target.Wait = bpmn.Running()
			if err := e.store.SaveFiber(ctx, instanceID, target); err != nil {
				return err
			}
			if err := e.store.AckJob(ctx, jobKey); err != nil {
				return err
			}
			code := ""
			if route.ErrorCode != nil {
				code = *route.ErrorCode
			}
			if err := e.appendEvent(ctx, inst, bpmn.EvErrorRouted, func(ev *bpmn.RuntimeEvent) {
				ev.JobKey = jobKey
				ev.ErrorCode = code
				ev.BoundaryElementID = route.BoundaryElementID
				ev.ResumeAt = route.ResumeAt
				ev.FiberID = target.FiberID
			}); err != nil {
				return err
			}
			return e.store.SaveInstance(ctx, inst)
		}
	}

	incident := &bpmn.Incident{
		IncidentID:        bpmn.NewIncidentID().String(),
		ProcessInstanceID: instanceID,
		FiberID:           target.FiberID,
		ServiceTaskID:     prog.DebugMap[target.PC],
		BytecodeAddr:      target.PC,
		ErrorClass:        errClass,
		Message:           message,
		CreatedAt:         e.clock(),
	}
	if err := e.store.SaveIncident(ctx, incident); err != nil {
		return err
	}
	target.Wait = bpmn.IncidentWait(incident.IncidentID)
	if err := e.store.SaveFiber(ctx, instanceID, target); err != nil {
		return err
	}
	inst.State = bpmn.StateFailed
	inst.IncidentID = incident.IncidentID
	if err := e.appendEvent(ctx, inst, bpmn.EvIncidentCreated, func(ev *bpmn.RuntimeEvent) {
		ev.IncidentID = incident.IncidentID
		ev.FiberID = target.FiberID
		ev.State = bpmn.StateFailed
	}); err != nil {
		return err
	}
	if e.metrics != nil {
		e.metrics.Incidents.WithLabelValues(errorClassLabel(errClass.Kind)).Inc()
	}
	return e.store.SaveInstance(ctx, inst)
}

// matchErrorRoute picks the first route whose ErrorCode equals code, else
// the catch-all route (ErrorCode == nil), in routes' declared order.
func matchErrorRoute(routes []bpmn.ErrorRoute, code string) (bpmn.ErrorRoute, bool) {
	var catchAll *bpmn.ErrorRoute
	for i := range routes {
		r := &routes[i]
		if r.ErrorCode != nil && *r.ErrorCode == code {
			return *r, true
		}
		if r.ErrorCode == nil && catchAll == nil {
			catchAll = r
		}
	}
	if catchAll != nil {
		return *catchAll, true
	}
	return bpmn.ErrorRoute{}, false
}
