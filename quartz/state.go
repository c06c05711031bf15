package quartz

// TriggerState is one of the states in the trigger state machine (spec §4.4.1).
type TriggerState int

const (
	StateWaiting TriggerState = iota
	StatePaused
	StateAcquired
	StateExecuting
	StateCompleted
	StatePausedAndBlocked
	StateBlocked
	StateError
	// StateNone is returned for a trigger that does not exist in any index.
	StateNone
)

func (s TriggerState) String() string {
	switch s {
	case StateWaiting:
		return "Waiting"
	case StatePaused:
		return "Paused"
	case StateAcquired:
		return "Acquired"
	case StateExecuting:
		return "Executing"
	case StateCompleted:
		return "Completed"
	case StatePausedAndBlocked:
		return "PausedAndBlocked"
	case StateBlocked:
		return "Blocked"
	case StateError:
		return "Error"
	default:
		return "None"
	}
}

// ScannableStates lists the states that participate in an ordered
// (next-fire-time) sorted-set scan, per spec §4.1: "one such set per state
// that participates in ordered scans". Every state except Executing has a
// set here, PausedAndBlocked included; Executing triggers are tracked by
// their hash's state field alone.
var ScannableStates = []TriggerState{
	StateWaiting,
	StatePaused,
	StateAcquired,
	StateCompleted,
	StateBlocked,
	StatePausedAndBlocked,
	StateError,
}

// CompletedInstruction is the instruction code passed to TriggeredJobComplete
// (spec §4.4.4).
type CompletedInstruction int

const (
	NoInstruction CompletedInstruction = iota
	DeleteTrigger
	SetTriggerComplete
	SetTriggerError
	SetAllJobTriggersComplete
	SetAllJobTriggersError
)

// MisfireInstruction is the policy a trigger declares for how it should be
// recomputed when it misfires (spec §4.4.5, SPEC_FULL Open Question 3).
type MisfireInstruction int

const (
	// MisfireInstructionFireNow leaves the trigger unchanged and lets it be
	// acquired in the same pass; it fires with its stale next-fire-time as
	// the previous-fire-time basis.
	MisfireInstructionFireNow MisfireInstruction = iota
	// MisfireInstructionDoNothing leaves next-fire-time untouched; the
	// scheduler is signaled that a misfire occurred and the trigger is
	// skipped by that acquisition pass.
	MisfireInstructionDoNothing
	// MisfireInstructionSetNextFireTime recomputes next-fire-time to the
	// next valid instant at or after now using the trigger's own schedule.
	MisfireInstructionSetNextFireTime
)

// FiredTrigger is a transient record of a trigger currently Executing,
// carrying the owning scheduler instance id and a timestamp (spec §3). The
// store writes it when TriggersFired moves a trigger to Executing, and
// AcquiredAtMillis holds the time of that fire; a trigger that is Acquired
// but not yet fired has no record.
type FiredTrigger struct {
	TriggerKey       TriggerKey
	JobKey           JobKey
	InstanceID       string
	AcquiredAtMillis int64
	// FireInstanceID uniquely identifies this particular fire, distinct from
	// TriggerKey, so the same trigger can be tracked across repeated fires.
	FireInstanceID string
	// NextFireTimeAtAcquisition snapshots Trigger.NextFireTime at the moment
	// of acquisition, per spec §3's FiredTrigger definition.
	NextFireTimeAtAcquisition int64
	State                     TriggerState
}
