// Package memory provides an in-memory reference implementation of
// store.Store, ported from the teacher's graph/store/memory.go
// (thread-safe maps guarded by a single sync.RWMutex). It is the store used
// by the engine's own test suite and is a reasonable choice for a
// single-process deployment that doesn't need durability across restarts.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/adamtc007/ob-poc-sub001/bpmn"
	"github.com/adamtc007/ob-poc-sub001/bpmn/store"
)

// Store is an in-memory, thread-safe implementation of store.Store.
type Store struct {
	mu sync.RWMutex

	programs map[bpmn.Hash256]*bpmn.Program
	instances map[string]*bpmn.ProcessInstance
	fibers    map[string]map[string]*bpmn.Fiber // instanceID -> fiberID -> fiber
	jobs      map[string]*bpmn.Job              // jobKey -> job
	events    map[string][]bpmn.RuntimeEvent    // instanceID -> ordered events
	incidents map[string][]*bpmn.Incident       // instanceID -> incidents
	payloads  map[string]map[bpmn.Hash256]string // instanceID -> hash -> payload
	dedupe    map[string]struct{}
}

// New returns an empty in-memory Store.
func New() *Store {
	return &Store{
		programs:  make(map[bpmn.Hash256]*bpmn.Program),
		instances: make(map[string]*bpmn.ProcessInstance),
		fibers:    make(map[string]map[string]*bpmn.Fiber),
		jobs:      make(map[string]*bpmn.Job),
		events:    make(map[string][]bpmn.RuntimeEvent),
		incidents: make(map[string][]*bpmn.Incident),
		payloads:  make(map[string]map[bpmn.Hash256]string),
		dedupe:    make(map[string]struct{}),
	}
}

func (s *Store) StoreProgram(_ context.Context, program *bpmn.Program) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.programs[program.BytecodeVersion] = program
	return nil
}

func (s *Store) LoadProgram(_ context.Context, version bpmn.Hash256) (*bpmn.Program, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.programs[version]
	if !ok {
		return nil, store.ErrNotFound
	}
	return p, nil
}

func (s *Store) SaveInstance(_ context.Context, inst *bpmn.ProcessInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *inst
	s.instances[inst.InstanceID] = &cp
	return nil
}

func (s *Store) LoadInstance(_ context.Context, instanceID string) (*bpmn.ProcessInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.instances[instanceID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *inst
	return &cp, nil
}

func (s *Store) SaveFiber(_ context.Context, instanceID string, fiber *bpmn.Fiber) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.fibers[instanceID]
	if !ok {
		m = make(map[string]*bpmn.Fiber)
		s.fibers[instanceID] = m
	}
	cp := *fiber
	m[fiber.FiberID] = &cp
	return nil
}

// LoadFibers returns fibers in stable order (by FiberID), per §5's
// requirement that within one tick fibers are visited in stable store
// iteration order.
func (s *Store) LoadFibers(_ context.Context, instanceID string) ([]*bpmn.Fiber, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m := s.fibers[instanceID]
	out := make([]*bpmn.Fiber, 0, len(m))
	for _, f := range m {
		cp := *f
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FiberID < out[j].FiberID })
	return out, nil
}

func (s *Store) DeleteFiber(_ context.Context, instanceID, fiberID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.fibers[instanceID]; ok {
		delete(m, fiberID)
	}
	return nil
}

func (s *Store) DeleteAllFibers(_ context.Context, instanceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.fibers, instanceID)
	return nil
}

func (s *Store) EnqueueJob(_ context.Context, job *bpmn.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *job
	s.jobs[job.JobKey] = &cp
	return nil
}

func (s *Store) LoadJob(_ context.Context, jobKey string) (*bpmn.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[jobKey]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (s *Store) DequeueJobs(_ context.Context, taskTypes []string, max int) ([]*bpmn.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	want := make(map[string]struct{}, len(taskTypes))
	for _, t := range taskTypes {
		want[t] = struct{}{}
	}

	keys := make([]string, 0, len(s.jobs))
	for k := range s.jobs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]*bpmn.Job, 0, max)
	for _, k := range keys {
		if max > 0 && len(out) >= max {
			break
		}
		j := s.jobs[k]
		if j.Status != bpmn.JobPending {
			continue
		}
		if _, ok := want[j.TaskType]; !ok {
			continue
		}
		j.Status = bpmn.JobInFlight
		cp := *j
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) AckJob(_ context.Context, jobKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[jobKey]; ok {
		j.Status = bpmn.JobAcked
	}
	return nil
}

func (s *Store) CancelJobsForInstance(_ context.Context, instanceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.ProcessInstanceID == instanceID && j.Status != bpmn.JobAcked {
			j.Status = bpmn.JobCancelled
		}
	}
	return nil
}

func (s *Store) JobsForInstance(_ context.Context, instanceID string) ([]*bpmn.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*bpmn.Job
	for _, j := range s.jobs {
		if j.ProcessInstanceID == instanceID {
			cp := *j
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JobKey < out[j].JobKey })
	return out, nil
}

func (s *Store) AppendEvent(_ context.Context, instanceID string, event bpmn.RuntimeEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[instanceID] = append(s.events[instanceID], event)
	return nil
}

func (s *Store) ReadEvents(_ context.Context, instanceID string, fromSeq uint64) ([]bpmn.RuntimeEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.events[instanceID]
	out := make([]bpmn.RuntimeEvent, 0, len(all))
	for _, e := range all {
		if e.Seq >= fromSeq {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) SaveIncident(_ context.Context, incident *bpmn.Incident) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *incident
	s.incidents[incident.ProcessInstanceID] = append(s.incidents[incident.ProcessInstanceID], &cp)
	return nil
}

func (s *Store) LoadIncidentsForInstance(_ context.Context, instanceID string) ([]*bpmn.Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]*bpmn.Incident(nil), s.incidents[instanceID]...)
	return out, nil
}

func (s *Store) SavePayloadVersion(_ context.Context, instanceID string, hash bpmn.Hash256, payload string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.payloads[instanceID]
	if !ok {
		m = make(map[bpmn.Hash256]string)
		s.payloads[instanceID] = m
	}
	m[hash] = payload
	return nil
}

func (s *Store) LoadPayloadVersion(_ context.Context, instanceID string, hash bpmn.Hash256) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.payloads[instanceID]
	if !ok {
		return "", store.ErrNotFound
	}
	p, ok := m[hash]
	if !ok {
		return "", store.ErrNotFound
	}
	return p, nil
}

func (s *Store) DedupeGet(_ context.Context, jobKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.dedupe[jobKey]
	return ok, nil
}

func (s *Store) DedupePut(_ context.Context, jobKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dedupe[jobKey] = struct{}{}
	return nil
}

var _ store.Store = (*Store)(nil)
