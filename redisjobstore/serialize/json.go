package serialize

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Dox-Sweden/QuartzRedisJobStore/quartz"
	"github.com/Dox-Sweden/QuartzRedisJobStore/quartz/calendar"
	"github.com/Dox-Sweden/QuartzRedisJobStore/quartz/triggers"
)

// JSONSerializer is the default Serializer, grounded on the teacher's own
// job.Bytes()/NewJob() encoding/json round-trip (driver/job.go).
type JSONSerializer struct{}

type jobWire struct {
	Group              string         `json:"group"`
	Name               string         `json:"name"`
	JobClass           string         `json:"job_class"`
	Description        string         `json:"description"`
	Durable            bool           `json:"durable"`
	RequestsRecovery   bool           `json:"requests_recovery"`
	DisallowConcurrent bool           `json:"disallow_concurrent"`
	PersistJobData     bool           `json:"persist_job_data"`
	DataMap            map[string]any `json:"data_map"`
}

func (JSONSerializer) EncodeJob(j quartz.JobDetail) ([]byte, error) {
	return json.Marshal(jobWire{
		Group:              j.Key.Group,
		Name:               j.Key.Name,
		JobClass:           j.JobClass,
		Description:        j.Description,
		Durable:            j.Durable,
		RequestsRecovery:   j.RequestsRecovery,
		DisallowConcurrent: j.DisallowConcurrent,
		PersistJobData:     j.PersistJobData,
		DataMap:            j.DataMap,
	})
}

func (JSONSerializer) DecodeJob(data []byte) (quartz.JobDetail, error) {
	var w jobWire
	if err := json.Unmarshal(data, &w); err != nil {
		return quartz.JobDetail{}, fmt.Errorf("decode job: %w", err)
	}
	return quartz.JobDetail{
		Key:                quartz.NewJobKey(w.Name, w.Group),
		JobClass:           w.JobClass,
		Description:        w.Description,
		Durable:            w.Durable,
		RequestsRecovery:   w.RequestsRecovery,
		DisallowConcurrent: w.DisallowConcurrent,
		PersistJobData:     w.PersistJobData,
		DataMap:            w.DataMap,
	}, nil
}

// triggerKind tags which Schedule implementation a wire trigger carries.
type triggerKind string

const (
	kindSimple            triggerKind = "simple"
	kindCron              triggerKind = "cron"
	kindCalendarInterval  triggerKind = "calendar_interval"
	kindDailyTimeInterval triggerKind = "daily_time_interval"
)

type triggerWire struct {
	Group        string      `json:"group"`
	Name         string      `json:"name"`
	JobGroup     string      `json:"job_group"`
	JobName      string      `json:"job_name"`
	Description  string      `json:"description"`
	CalendarName string      `json:"calendar_name,omitempty"`
	Priority     int         `json:"priority"`
	Misfire      int         `json:"misfire"`
	StartTime    time.Time   `json:"start_time"`
	EndTime      *time.Time  `json:"end_time,omitempty"`
	NextFireTime *time.Time  `json:"next_fire_time,omitempty"`
	PrevFireTime *time.Time  `json:"prev_fire_time,omitempty"`
	Kind         triggerKind `json:"kind"`

	// Kind-specific fields; only the one matching Kind is populated.
	SimpleIntervalNanos int64                `json:"simple_interval_nanos,omitempty"`
	SimpleRepeatCount   int                  `json:"simple_repeat_count,omitempty"`
	CronExpression      string               `json:"cron_expression,omitempty"`
	CalIntervalUnit     triggers.IntervalUnit `json:"cal_interval_unit,omitempty"`
	CalInterval         int                  `json:"cal_interval,omitempty"`
	DailyIntervalNanos  int64                `json:"daily_interval_nanos,omitempty"`
	DailyStart          triggers.TimeOfDay   `json:"daily_start,omitempty"`
	DailyEnd            triggers.TimeOfDay   `json:"daily_end,omitempty"`
}

func (JSONSerializer) EncodeTrigger(t quartz.Trigger) ([]byte, error) {
	w := triggerWire{
		Group:        t.Key.Group,
		Name:         t.Key.Name,
		JobGroup:     t.JobKey.Group,
		JobName:      t.JobKey.Name,
		Description:  t.Description,
		CalendarName: t.CalendarName,
		Priority:     t.Priority,
		Misfire:      int(t.Misfire),
		StartTime:    t.StartTime,
		NextFireTime: t.NextFireTime,
		PrevFireTime: t.PreviousFireTime,
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
		return nil, fmt.Errorf("encode trigger %s: unsupported schedule type %T", t.Key, t.Schedule)
	}

	return json.Marshal(w)
}

func (JSONSerializer) DecodeTrigger(data []byte) (quartz.Trigger, error) {
	var w triggerWire
	if err := json.Unmarshal(data, &w); err != nil {
		return quartz.Trigger{}, fmt.Errorf("decode trigger: %w", err)
	}

	var sched quartz.Schedule
	switch w.Kind {
	case kindSimple:
		sched = &triggers.Simple{
			Interval:    time.Duration(w.SimpleIntervalNanos),
			RepeatCount: w.SimpleRepeatCount,
		}
	case kindCron:
		c, err := triggers.NewCron(w.CronExpression)
		if err != nil {
			return quartz.Trigger{}, fmt.Errorf("decode trigger: %w", err)
		}
		sched = c
	case kindCalendarInterval:
		sched = triggers.NewCalendarInterval(w.CalIntervalUnit, w.CalInterval)
	case kindDailyTimeInterval:
		sched = &triggers.DailyTimeInterval{
			Interval:       time.Duration(w.DailyIntervalNanos),
			StartTimeOfDay: w.DailyStart,
			EndTimeOfDay:   w.DailyEnd,
		}
	default:
		return quartz.Trigger{}, fmt.Errorf("decode trigger: unknown kind %q", w.Kind)
	}

	t := quartz.Trigger{
		Key:              quartz.NewTriggerKey(w.Name, w.Group),
		JobKey:           quartz.NewJobKey(w.JobName, w.JobGroup),
		Description:      w.Description,
		CalendarName:     w.CalendarName,
		Priority:         w.Priority,
		Misfire:          quartz.MisfireInstruction(w.Misfire),
		StartTime:        w.StartTime,
		NextFireTime:     w.NextFireTime,
		PreviousFireTime: w.PrevFireTime,
		Schedule:         sched,
	}
	if w.EndTime != nil {
		t.EndTime = *w.EndTime
	}
	return t, nil
}

// calendarWire is recursive: Parent carries the chained parent calendar (if
// any), so a HolidayCalendar layered on a DailyCalendar round-trips as one
// link on top of the other rather than losing the chain (quartz/calendar's
// base.Parent()).
type calendarWire struct {
	Name   string          `json:"name,omitempty"`
	Kind   string          `json:"kind"`
	Data   json.RawMessage `json:"data"`
	Parent *calendarWire   `json:"parent,omitempty"`
}

type holidayWire struct {
	Dates []string `json:"dates"`
}

type dailyWire struct {
	StartNanos int64 `json:"start_nanos"`
	EndNanos   int64 `json:"end_nanos"`
	Invert     bool  `json:"invert"`
}

func encodeCalendarLinkJSON(impl calendar.Calendar) (*calendarWire, error) {
	if impl == nil {
		return nil, nil
	}
	switch v := impl.(type) {
	case *calendar.Holiday:
		data, err := json.Marshal(holidayWire{Dates: v.ExcludedDates()})
		if err != nil {
			return nil, err
		}
		parent, err := encodeCalendarLinkJSON(v.Parent())
		if err != nil {
			return nil, err
		}
		return &calendarWire{Kind: "holiday", Data: data, Parent: parent}, nil
	case *calendar.Daily:
		data, err := json.Marshal(dailyWire{StartNanos: int64(v.Start), EndNanos: int64(v.End), Invert: v.Invert})
		if err != nil {
			return nil, err
		}
		parent, err := encodeCalendarLinkJSON(v.Parent())
		if err != nil {
			return nil, err
		}
		return &calendarWire{Kind: "daily", Data: data, Parent: parent}, nil
	default:
		return nil, fmt.Errorf("unsupported calendar type %T", impl)
	}
}

func decodeCalendarLinkJSON(w *calendarWire) (calendar.Calendar, error) {
	if w == nil {
		return nil, nil
	}
	parent, err := decodeCalendarLinkJSON(w.Parent)
	if err != nil {
		return nil, err
	}
	switch w.Kind {
	case "holiday":
		var h holidayWire
		if err := json.Unmarshal(w.Data, &h); err != nil {
			return nil, err
		}
		impl := calendar.NewHoliday(parent)
		impl.SetExcludedDates(h.Dates)
		return impl, nil
	case "daily":
		var d dailyWire
		if err := json.Unmarshal(w.Data, &d); err != nil {
			return nil, err
		}
		impl := calendar.NewDaily(parent, timeDur(d.StartNanos), timeDur(d.EndNanos))
		impl.Invert = d.Invert
		return impl, nil
	default:
		return nil, fmt.Errorf("unknown kind %q", w.Kind)
	}
}

func (JSONSerializer) EncodeCalendar(c quartz.Calendar) ([]byte, error) {
	w, err := encodeCalendarLinkJSON(c.Impl)
	if err != nil {
		return nil, fmt.Errorf("encode calendar %s: %w", c.Name, err)
	}
	if w == nil {
		return nil, fmt.Errorf("encode calendar %s: nil calendar", c.Name)
	}
	w.Name = c.Name
	return json.Marshal(w)
}

func (JSONSerializer) DecodeCalendar(data []byte) (quartz.Calendar, error) {
	var w calendarWire
	if err := json.Unmarshal(data, &w); err != nil {
		return quartz.Calendar{}, fmt.Errorf("decode calendar: %w", err)
	}
	impl, err := decodeCalendarLinkJSON(&w)
	if err != nil {
		return quartz.Calendar{}, fmt.Errorf("decode calendar %s: %w", w.Name, err)
	}
	return quartz.Calendar{Name: w.Name, Impl: impl}, nil
}

func timeDur(nanos int64) time.Duration { return time.Duration(nanos) }
