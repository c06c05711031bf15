package triggers

import (
	"fmt"
	"time"
)

// TimeOfDay is a wall-clock time of day, with no date component.
type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
}

func (t TimeOfDay) onDate(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), t.Hour, t.Minute, t.Second, 0, d.Location())
}

// DailyTimeInterval fires every Interval inside [StartTimeOfDay,
// EndTimeOfDay] each day (a fire exactly at EndTimeOfDay is kept), restarting the window at StartTimeOfDay on the
// next day once EndTimeOfDay is passed.
type DailyTimeInterval struct {
	Interval      time.Duration
	StartTimeOfDay TimeOfDay
	EndTimeOfDay   TimeOfDay
	// DaysOfWeek restricts firing to these weekdays; empty means every day.
	DaysOfWeek []time.Weekday
}

// NewDailyTimeInterval returns a DailyTimeInterval trigger.
func NewDailyTimeInterval(interval time.Duration, start, end TimeOfDay) *DailyTimeInterval {
	return &DailyTimeInterval{Interval: interval, StartTimeOfDay: start, EndTimeOfDay: end}
}

func (d *DailyTimeInterval) allowedDay(t time.Time) bool {
	if len(d.DaysOfWeek) == 0 {
		return true
	}
	for _, w := range d.DaysOfWeek {
		if w == t.Weekday() {
			return true
		}
	}
	return false
}

func (d *DailyTimeInterval) NextFireTime(prev time.Time) time.Time {
	candidate := prev.Add(d.Interval)
	windowEnd := d.EndTimeOfDay.onDate(candidate)
	windowStart := d.StartTimeOfDay.onDate(candidate)

	if candidate.Before(windowStart) {
		candidate = windowStart
	}
	if candidate.After(windowEnd) || !d.allowedDay(candidate) {
		next := candidate.AddDate(0, 0, 1)
		candidate = d.StartTimeOfDay.onDate(next)
	}
	for !d.allowedDay(candidate) {
		candidate = d.StartTimeOfDay.onDate(candidate.AddDate(0, 0, 1))
	}
	return candidate
}

func (d *DailyTimeInterval) Description() string {
	return fmt.Sprintf("DailyTimeInterval: every %s within %02d:%02d:%02d-%02d:%02d:%02d",
		d.Interval,
		d.StartTimeOfDay.Hour, d.StartTimeOfDay.Minute, d.StartTimeOfDay.Second,
		d.EndTimeOfDay.Hour, d.EndTimeOfDay.Minute, d.EndTimeOfDay.Second)
}
