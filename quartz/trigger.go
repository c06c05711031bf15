package quartz

import (
	"time"

	"github.com/Dox-Sweden/QuartzRedisJobStore/quartz/calendar"
)

// Schedule is implemented by every trigger type (simple, cron,
// calendar-interval, daily-time-interval) to compute its own fire times.
// It is deliberately narrow: the store drives Trigger state, Schedule only
// knows how to advance a fire-time given the previous one.
type Schedule interface {
	// NextFireTime returns the next fire time strictly after prev, or the
	// zero time if the schedule has no further fire time (e.g. a SimpleTrigger
	// that has exhausted its repeat count).
	NextFireTime(prev time.Time) time.Time
	// Description is a short human-readable description of the schedule,
	// used for logging.
	Description() string
}

// Trigger is a schedule bound to a job (spec §3). The Schedule field carries
// the type-specific fire-time computation (simple/cron/calendar-interval/
// daily-time-interval); everything else is the common trigger record.
type Trigger struct {
	Key          TriggerKey
	JobKey       JobKey
	Description  string
	CalendarName string
	Priority     int
	Misfire      MisfireInstruction
	StartTime    time.Time
	EndTime      time.Time // zero means no end
	// NextFireTime is nil when the trigger is terminal (spec invariant 8).
	NextFireTime *time.Time
	PreviousFireTime *time.Time
	Schedule         Schedule
}

// DefaultPriority is used when a trigger does not specify one.
const DefaultPriority = 5

// NextFireTimeMillis returns t.NextFireTime in epoch milliseconds, or -1 if
// the trigger is terminal. Used as the score in the trigger_state sorted sets.
func (t Trigger) NextFireTimeMillis() int64 {
	if t.NextFireTime == nil {
		return -1
	}
	return t.NextFireTime.UnixMilli()
}

// ComputeFirstFireTime anchors the trigger's NextFireTime to the first fire
// at or after the later of StartTime and now, honoring EndTime and skipping
// any instant cal excludes. cal may be nil if the trigger names no calendar.
func (t *Trigger) ComputeFirstFireTime(now time.Time, cal calendar.Calendar) {
	from := t.StartTime
	if from.Before(now) {
		from = now
	}
	next := t.nextIncluded(from.Add(-time.Nanosecond), cal)
	t.setNext(next)
}

// Advance computes the trigger's fire time following afterTime, honoring
// EndTime and skipping any instant cal excludes, and stores it as
// NextFireTime. cal may be nil if the trigger names no calendar.
func (t *Trigger) Advance(afterTime time.Time, cal calendar.Calendar) {
	next := t.nextIncluded(afterTime, cal)
	t.setNext(next)
}

// nextIncluded walks the schedule forward from afterTime until it lands on
// an instant cal includes, per the glossary's "calendar excludes fire times"
// semantics. It is bounded so a calendar excluding every candidate cannot
// spin forever; a schedule that exhausts within the bound is treated as
// terminal, same as a bare zero return from Schedule.NextFireTime.
func (t *Trigger) nextIncluded(afterTime time.Time, cal calendar.Calendar) time.Time {
	next := t.Schedule.NextFireTime(afterTime)
	if cal == nil {
		return next
	}
	const maxCalendarSkips = 1000
	for i := 0; i < maxCalendarSkips && !next.IsZero(); i++ {
		if cal.IsTimeIncluded(next) {
			return next
		}
		skip := cal.NextIncludedTime(next)
		if !skip.After(next) {
			next = t.Schedule.NextFireTime(next)
			continue
		}
		next = t.Schedule.NextFireTime(skip.Add(-time.Nanosecond))
	}
	return time.Time{}
}

func (t *Trigger) setNext(next time.Time) {
	if next.IsZero() {
		t.NextFireTime = nil
		return
	}
	if !t.EndTime.IsZero() && next.After(t.EndTime) {
		t.NextFireTime = nil
		return
	}
	t.NextFireTime = &next
}
