package bpmn

import "time"

// JobStatus is the lifecycle of a queued Job (§3.5).
type JobStatus int

const (
	JobPending JobStatus = iota
	JobInFlight
	JobAcked
	JobCancelled
)

func (s JobStatus) String() string {
	switch s {
	case JobPending:
		return "Pending"
	case JobInFlight:
		return "InFlight"
	case JobAcked:
		return "Acked"
	case JobCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// Job is a unit of external work activated by a worker, keyed by a
// globally unique, canonicalized JobKey (§3.5, §6.3).
type Job struct {
	JobKey            string
	ProcessInstanceID string
	ServiceTaskID     string
	TaskType          string
	PC                Addr

	PayloadRef string // reference to the payload snapshot the job was enqueued with

	Status JobStatus

	CreatedAt         time.Time
	ActivationDeadline *time.Time
}

// JobActivation is returned by ActivateJobs: enough information for a
// worker to pick the job up and later call CompleteJob/FailJob.
type JobActivation struct {
	JobKey            string
	ProcessInstanceID string
	ServiceTaskID     string
	TaskType          string
	PayloadRef        string
	ActivationDeadline time.Time
}

// ErrorClass is the Incident.ErrorClass sum type (§3.7).
type ErrorClassKind int

const (
	ErrorTransient ErrorClassKind = iota
	ErrorContractViolation
	ErrorBusinessRejection
)

type ErrorClass struct {
	Kind           ErrorClassKind
	RejectionCode  string // only meaningful when Kind == ErrorBusinessRejection
}

func Transient() ErrorClass         { return ErrorClass{Kind: ErrorTransient} }
func ContractViolation() ErrorClass { return ErrorClass{Kind: ErrorContractViolation} }
func BusinessRejection(code string) ErrorClass {
	return ErrorClass{Kind: ErrorBusinessRejection, RejectionCode: code}
}

// Incident is an error/failure record (§3.7). Created by fail_job when no
// error route matches, or by the VM/engine on a contract violation.
type Incident struct {
	IncidentID        string
	ProcessInstanceID string
	FiberID           string
	ServiceTaskID     string
	BytecodeAddr      Addr

	ErrorClass ErrorClass
	Message    string
	RetryCount int

	CreatedAt  time.Time
	ResolvedAt *time.Time
	Resolution string
}
