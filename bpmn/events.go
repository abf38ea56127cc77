package bpmn

import "time"

// EventKind discriminates RuntimeEvent (§3.6). The set intentionally
// matches spec.md's minimal enumeration plus FiberSpawned and
// InclusiveForkTaken, both referenced by §4.2's instruction contracts
// (Fork, ForkInclusive) even though §3.6 lists them only implicitly via
// "minimally including."
type EventKind int

const (
	EvInstanceStarted EventKind = iota
	EvJobEnqueued
	EvJobActivated
	EvJobCompleted
	EvWaitCancelled
	EvMsgReceived
	EvRaceRegistered
	EvRaceResolved
	EvBoundaryFired
	EvTimerCycleIteration
	EvTimerCycleExhausted
	EvErrorRouted
	EvIncidentCreated
	EvSignalIgnored
	EvCancelled
	EvTerminated
	EvCompleted
	EvFiberSpawned
	EvInclusiveForkTaken
)

func (k EventKind) String() string {
	names := [...]string{
		"InstanceStarted", "JobEnqueued", "JobActivated", "JobCompleted",
		"WaitCancelled", "MsgReceived", "RaceRegistered", "RaceResolved", "BoundaryFired",
		"TimerCycleIteration", "TimerCycleExhausted", "ErrorRouted",
		"IncidentCreated", "SignalIgnored", "Cancelled", "Terminated",
		"Completed", "FiberSpawned", "InclusiveForkTaken",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return "Unknown"
}

// RuntimeEvent is one entry of the append-only per-instance audit log
// (§3.6). Every mutation to the instance, fiber set, job set, or incident
// set produces exactly one event (§3.6 invariant, §8 property 4). Field
// applicability is keyed off Kind, matching the tagged-struct style used
// throughout this package for wire-stable sum types.
type RuntimeEvent struct {
	Seq  uint64
	Kind EventKind
	At   time.Time

	FiberID       string
	JobKey        string
	TaskType      string
	ServiceTaskID string

	WaitDesc string
	Reason   string

	MsgName string
	CorrKey string

	RaceID            int
	Arms              []WaitArm
	WinningArmIndex   int
	SpawnedFiberID    string
	BoundaryElementID string
	ResumeAt          Addr

	TotalFired int

	ErrorCode  string
	IncidentID string
	State      ProcessState

	SignalDesc string

	SpawnedFiberIDs []string // FiberSpawned / InclusiveForkTaken: all new fiber ids
	TakenCount      int      // InclusiveForkTaken: number of branches taken
	JoinID          int
}
