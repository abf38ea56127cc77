package bpmn

import "fmt"

// WaitKind discriminates the WaitState sum type (§3.4). Exactly one
// WaitState exists per fiber at all times; transitions are made only by the
// VM (for the fiber it owns during a tick) or by the engine under the
// concurrency rules of §5.
type WaitKind int

const (
	WaitRunning WaitKind = iota
	WaitTimer
	WaitMsg
	WaitJob
	WaitJoin
	WaitIncident
	WaitRace
)

func (k WaitKind) String() string {
	switch k {
	case WaitRunning:
		return "Running"
	case WaitTimer:
		return "Timer"
	case WaitMsg:
		return "Msg"
	case WaitJob:
		return "Job"
	case WaitJoin:
		return "Join"
	case WaitIncident:
		return "Incident"
	case WaitRace:
		return "Race"
	default:
		return "Unknown"
	}
}

// WaitState is the discriminated reason a fiber is not Running. Field
// applicability is keyed off Kind:
//
//   - WaitRunning:  no fields.
//   - WaitTimer:    FireAtMs.
//   - WaitMsg:      MsgName, CorrKey.
//   - WaitJob:      JobKey.
//   - WaitJoin:     JoinID.
//   - WaitIncident: IncidentID.
//   - WaitRace:     RaceID, TimerDeadlineMs, JobKey, Interrupting,
//     TimerArmIndex, CycleRemaining, CycleFiredCount.
type WaitState struct {
	Kind WaitKind

	FireAtMs int64

	MsgName string
	CorrKey string

	JobKey string

	JoinID int

	IncidentID string

	RaceID          int
	TimerDeadlineMs *int64
	Interrupting    bool
	TimerArmIndex   *int
	CycleRemaining  *int
	CycleFiredCount int
}

func Running() WaitState { return WaitState{Kind: WaitRunning} }

func TimerWait(fireAtMs int64) WaitState {
	return WaitState{Kind: WaitTimer, FireAtMs: fireAtMs}
}

func MsgWait(msgName, corrKey string) WaitState {
	return WaitState{Kind: WaitMsg, MsgName: msgName, CorrKey: corrKey}
}

func JobWait(jobKey string) WaitState {
	return WaitState{Kind: WaitJob, JobKey: jobKey}
}

func JoinWait(joinID int) WaitState {
	return WaitState{Kind: WaitJoin, JoinID: joinID}
}

func IncidentWait(incidentID string) WaitState {
	return WaitState{Kind: WaitIncident, IncidentID: incidentID}
}

// RaceWait constructs a bare composite wait, referencing jobKey as the
// Internal arm's in-flight job (empty when the race has no Internal arm,
// e.g. one built directly from a WaitAny instruction).
func RaceWait(raceID int, jobKey string) WaitState {
	return WaitState{Kind: WaitRace, RaceID: raceID, JobKey: jobKey}
}

// Describe renders a stable, greppable description of the wait, e.g.
// "Job(job_key=iid:task:3:0)" or "Timer(fire_at_ms=1700000000000)". Used as
// the wait_desc/signal_desc payload of WaitCancelled and SignalIgnored
// events (§3.6, §4.3.3, §4.3.6) — format recovered from the original
// implementation's describe_wait helper (see SPEC_FULL.md §12.2).
func (w WaitState) Describe() string {
	switch w.Kind {
	case WaitRunning:
		return "Running"
	case WaitTimer:
		return fmt.Sprintf("Timer(fire_at_ms=%d)", w.FireAtMs)
	case WaitMsg:
		return fmt.Sprintf("Msg(msg_name=%s, corr_key=%s)", w.MsgName, w.CorrKey)
	case WaitJob:
		return fmt.Sprintf("Job(job_key=%s)", w.JobKey)
	case WaitJoin:
		return fmt.Sprintf("Join(join_id=%d)", w.JoinID)
	case WaitIncident:
		return fmt.Sprintf("Incident(incident_id=%s)", w.IncidentID)
	case WaitRace:
		return fmt.Sprintf("Race(race_id=%d)", w.RaceID)
	default:
		return "Unknown"
	}
}
