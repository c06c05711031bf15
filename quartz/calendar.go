package quartz

import "github.com/Dox-Sweden/QuartzRedisJobStore/quartz/calendar"

// Calendar is a named calendar.Calendar: the name it is stored under and
// the decoded implementation. The triggers referencing it are tracked by
// the store's calendar_triggers index, not here.
type Calendar struct {
	Name string
	Impl calendar.Calendar
}
