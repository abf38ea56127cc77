// Package store defines the abstract persistence contract the engine reads
// and writes through (§6.4). Only the interface is specified here; concrete
// backends live in sibling packages (memory, sqlite, mysql).
package store

import (
	"context"
	"errors"

	"github.com/adamtc007/ob-poc-sub001/bpmn"
)

// ErrNotFound is returned when a requested program, instance, job, or
// incident does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the abstract, async persistence contract (§6.4). Every method is
// a single logical operation; the engine does not assume cross-method
// atomicity except where documented (CancelJobsForInstance must be atomic
// against concurrent ActivateJobs).
type Store interface {
	// Programs, keyed by content-addressed BytecodeVersion (§3.1).
	StoreProgram(ctx context.Context, program *bpmn.Program) error
	LoadProgram(ctx context.Context, version bpmn.Hash256) (*bpmn.Program, error)

	// Instances, keyed by InstanceID.
	SaveInstance(ctx context.Context, inst *bpmn.ProcessInstance) error
	LoadInstance(ctx context.Context, instanceID string) (*bpmn.ProcessInstance, error)

	// Fibers, scoped to an instance.
	SaveFiber(ctx context.Context, instanceID string, fiber *bpmn.Fiber) error
	LoadFibers(ctx context.Context, instanceID string) ([]*bpmn.Fiber, error)
	DeleteFiber(ctx context.Context, instanceID, fiberID string) error
	DeleteAllFibers(ctx context.Context, instanceID string) error

	// Jobs.
	EnqueueJob(ctx context.Context, job *bpmn.Job) error
	LoadJob(ctx context.Context, jobKey string) (*bpmn.Job, error)
	DequeueJobs(ctx context.Context, taskTypes []string, max int) ([]*bpmn.Job, error)
	AckJob(ctx context.Context, jobKey string) error
	CancelJobsForInstance(ctx context.Context, instanceID string) error
	JobsForInstance(ctx context.Context, instanceID string) ([]*bpmn.Job, error)

	// Events: append-only, read from a sequence number (§3.6, §6.5).
	AppendEvent(ctx context.Context, instanceID string, event bpmn.RuntimeEvent) error
	ReadEvents(ctx context.Context, instanceID string, fromSeq uint64) ([]bpmn.RuntimeEvent, error)

	// Incidents.
	SaveIncident(ctx context.Context, incident *bpmn.Incident) error
	LoadIncidentsForInstance(ctx context.Context, instanceID string) ([]*bpmn.Incident, error)

	// Payload versions: keyed by (instanceID, hash), enabling later
	// hash-based payload recovery by workers (§4.3.3).
	SavePayloadVersion(ctx context.Context, instanceID string, hash bpmn.Hash256, payload string) error
	LoadPayloadVersion(ctx context.Context, instanceID string, hash bpmn.Hash256) (string, error)

	// Dedupe table: the sole durability record for complete_job's dedupe
	// guard (§4.3.3, §5 "authoritative idempotency key").
	DedupeGet(ctx context.Context, jobKey string) (found bool, err error)
	DedupePut(ctx context.Context, jobKey string) error
}
