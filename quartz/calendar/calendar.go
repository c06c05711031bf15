// Package calendar implements the Calendar domain type: a set of
// included/excluded time ranges that filters a trigger's fire-times
// (spec glossary).
package calendar

import "time"

// Calendar excludes certain instants from a trigger's computed fire times.
// NextIncludedTime returns the first instant at or after t that IsTimeIncluded
// accepts, advancing past any excluded range.
type Calendar interface {
	IsTimeIncluded(t time.Time) bool
	NextIncludedTime(t time.Time) time.Time
}

// base chains to an optional parent calendar, so exclusions compose: a
// HolidayCalendar layered on a DailyCalendar excludes both.
type base struct {
	parent Calendar
}

func (b base) parentExcludes(t time.Time) bool {
	return b.parent != nil && !b.parent.IsTimeIncluded(t)
}

func (b base) parentNext(t time.Time) time.Time {
	if b.parent == nil {
		return t
	}
	return b.parent.NextIncludedTime(t)
}

// Parent returns the calendar this one chains to, or nil if it excludes
// nothing beyond its own rule. Serializers use this to persist the full
// chain rather than just the outermost link.
func (b base) Parent() Calendar {
	return b.parent
}
