package serialize

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"time"

	"github.com/Dox-Sweden/QuartzRedisJobStore/quartz"
	"github.com/Dox-Sweden/QuartzRedisJobStore/quartz/calendar"
	"github.com/Dox-Sweden/QuartzRedisJobStore/quartz/triggers"
)

// GobSerializer is a second Serializer implementation, demonstrating that
// the Serializer contract (spec §4.2) is genuinely pluggable rather than
// committed to one wire format the way the teacher's own driver.Job is.
// It shares the same wire structs as JSONSerializer; only the codec differs.
type GobSerializer struct{}

// gob requires every concrete type that ever flows through an interface{}
// (JobDetail.DataMap is map[string]any) to be registered up front. These
// cover the values callers plausibly put in a DataMap: the JSON-decodable
// scalars/containers plus time.Time for schedule-derived data.
func init() {
	gob.Register(string(""))
	gob.Register(bool(false))
	gob.Register(int(0))
	gob.Register(int64(0))
	gob.Register(float64(0))
	gob.Register([]any(nil))
	gob.Register(map[string]any(nil))
	gob.Register(time.Time{})
}

func (GobSerializer) EncodeJob(j quartz.JobDetail) ([]byte, error) {
	w := jobWire{
		Group: j.Key.Group, Name: j.Key.Name, JobClass: j.JobClass,
		Description: j.Description, Durable: j.Durable,
		RequestsRecovery: j.RequestsRecovery, DisallowConcurrent: j.DisallowConcurrent,
		PersistJobData: j.PersistJobData, DataMap: j.DataMap,
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(w); err != nil {
		return nil, fmt.Errorf("gob encode job: %w", err)
	}
	return buf.Bytes(), nil
}

func (GobSerializer) DecodeJob(data []byte) (quartz.JobDetail, error) {
	var w jobWire
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&w); err != nil {
		return quartz.JobDetail{}, fmt.Errorf("gob decode job: %w", err)
	}
	return quartz.JobDetail{
		Key: quartz.NewJobKey(w.Name, w.Group), JobClass: w.JobClass,
		Description: w.Description, Durable: w.Durable, RequestsRecovery: w.RequestsRecovery,
		DisallowConcurrent: w.DisallowConcurrent, PersistJobData: w.PersistJobData, DataMap: w.DataMap,
	}, nil
}

func (GobSerializer) EncodeTrigger(t quartz.Trigger) ([]byte, error) {
	w := triggerWire{
		Group: t.Key.Group, Name: t.Key.Name, JobGroup: t.JobKey.Group, JobName: t.JobKey.Name,
		Description: t.Description, CalendarName: t.CalendarName, Priority: t.Priority,
		Misfire: int(t.Misfire), StartTime: t.StartTime,
		NextFireTime: t.NextFireTime, PrevFireTime: t.PreviousFireTime,
	}
	if !t.EndTime.IsZero() {
		et := t.EndTime
		w.EndTime = &et
	}
	switch sched := t.Schedule.(type) {
	case *triggers.Simple:
		w.Kind = kindSimple
		w.SimpleIntervalNanos = int64(sched.Interval)
		w.SimpleRepeatCount = sched.RepeatCount
	case *triggers.Cron:
		w.Kind = kindCron
		w.CronExpression = sched.Expression()
	case *triggers.CalendarInterval:
		w.Kind = kindCalendarInterval
		w.CalIntervalUnit = sched.Unit
		w.CalInterval = sched.Interval
	case *triggers.DailyTimeInterval:
		w.Kind = kindDailyTimeInterval
		w.DailyIntervalNanos = int64(sched.Interval)
		w.DailyStart = sched.StartTimeOfDay
		w.DailyEnd = sched.EndTimeOfDay
	default:
		return nil, fmt.Errorf("gob encode trigger %s: unsupported schedule type %T", t.Key, t.Schedule)
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(w); err != nil {
		return nil, fmt.Errorf("gob encode trigger: %w", err)
	}
	return buf.Bytes(), nil
}

func (GobSerializer) DecodeTrigger(data []byte) (quartz.Trigger, error) {
	var w triggerWire
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&w); err != nil {
		return quartz.Trigger{}, fmt.Errorf("gob decode trigger: %w", err)
	}
	var sched quartz.Schedule
	switch w.Kind {
	case kindSimple:
		sched = &triggers.Simple{Interval: time.Duration(w.SimpleIntervalNanos), RepeatCount: w.SimpleRepeatCount}
	case kindCron:
		c, err := triggers.NewCron(w.CronExpression)
		if err != nil {
			return quartz.Trigger{}, fmt.Errorf("gob decode trigger: %w", err)
		}
		sched = c
	case kindCalendarInterval:
		sched = triggers.NewCalendarInterval(w.CalIntervalUnit, w.CalInterval)
	case kindDailyTimeInterval:
		sched = &triggers.DailyTimeInterval{
			Interval: time.Duration(w.DailyIntervalNanos), StartTimeOfDay: w.DailyStart, EndTimeOfDay: w.DailyEnd,
		}
	default:
		return quartz.Trigger{}, fmt.Errorf("gob decode trigger: unknown kind %q", w.Kind)
	}
	t := quartz.Trigger{
		Key: quartz.NewTriggerKey(w.Name, w.Group), JobKey: quartz.NewJobKey(w.JobName, w.JobGroup),
		Description: w.Description, CalendarName: w.CalendarName, Priority: w.Priority,
		Misfire: quartz.MisfireInstruction(w.Misfire), StartTime: w.StartTime,
		NextFireTime: w.NextFireTime, PreviousFireTime: w.PrevFireTime, Schedule: sched,
	}
	if w.EndTime != nil {
		t.EndTime = *w.EndTime
	}
	return t, nil
}

// encodeCalendarLinkGob mirrors encodeCalendarLinkJSON, walking the
// chainable parent (quartz/calendar's base.Parent()) so the full chain
// round-trips instead of just the outermost link.
func encodeCalendarLinkGob(impl calendar.Calendar) (*calendarWire, error) {
	if impl == nil {
		return nil, nil
	}
	switch v := impl.(type) {
	case *calendar.Holiday:
		data, err := gobBytes(holidayWire{Dates: v.ExcludedDates()})
		if err != nil {
			return nil, err
		}
		parent, err := encodeCalendarLinkGob(v.Parent())
		if err != nil {
			return nil, err
		}
		return &calendarWire{Kind: "holiday", Data: data, Parent: parent}, nil
	case *calendar.Daily:
		data, err := gobBytes(dailyWire{StartNanos: int64(v.Start), EndNanos: int64(v.End), Invert: v.Invert})
		if err != nil {
			return nil, err
		}
		parent, err := encodeCalendarLinkGob(v.Parent())
		if err != nil {
			return nil, err
		}
		return &calendarWire{Kind: "daily", Data: data, Parent: parent}, nil
	default:
		return nil, fmt.Errorf("unsupported calendar type %T", impl)
	}
}

func decodeCalendarLinkGob(w *calendarWire) (calendar.Calendar, error) {
	if w == nil {
		return nil, nil
	}
	parent, err := decodeCalendarLinkGob(w.Parent)
	if err != nil {
		return nil, err
	}
	switch w.Kind {
	case "holiday":
		var h holidayWire
		if err := gob.NewDecoder(bytes.NewReader(w.Data)).Decode(&h); err != nil {
			return nil, err
		}
		impl := calendar.NewHoliday(parent)
		impl.SetExcludedDates(h.Dates)
		return impl, nil
	case "daily":
		var d dailyWire
		if err := gob.NewDecoder(bytes.NewReader(w.Data)).Decode(&d); err != nil {
			return nil, err
		}
		impl := calendar.NewDaily(parent, time.Duration(d.StartNanos), time.Duration(d.EndNanos))
		impl.Invert = d.Invert
		return impl, nil
	default:
		return nil, fmt.Errorf("unknown kind %q", w.Kind)
	}
}

func (GobSerializer) EncodeCalendar(c quartz.Calendar) ([]byte, error) {
	w, err := encodeCalendarLinkGob(c.Impl)
	if err != nil {
		return nil, fmt.Errorf("gob encode calendar %s: %w", c.Name, err)
	}
	if w == nil {
		return nil, fmt.Errorf("gob encode calendar %s: nil calendar", c.Name)
	}
	w.Name = c.Name
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(w); err != nil {
		return nil, fmt.Errorf("gob encode calendar: %w", err)
	}
	return buf.Bytes(), nil
}

func (GobSerializer) DecodeCalendar(data []byte) (quartz.Calendar, error) {
	var w calendarWire
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&w); err != nil {
		return quartz.Calendar{}, fmt.Errorf("gob decode calendar: %w", err)
	}
	impl, err := decodeCalendarLinkGob(&w)
	if err != nil {
		return quartz.Calendar{}, fmt.Errorf("gob decode calendar %s: %w", w.Name, err)
	}
	return quartz.Calendar{Name: w.Name, Impl: impl}, nil
}

func gobBytes(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("gob encode: %w", err)
	}
	return buf.Bytes(), nil
}
