package serialize

import (
	"testing"
	"time"

	"github.com/Dox-Sweden/QuartzRedisJobStore/quartz"
	"github.com/Dox-Sweden/QuartzRedisJobStore/quartz/calendar"
	"github.com/Dox-Sweden/QuartzRedisJobStore/quartz/triggers"
	"github.com/stretchr/testify/require"
)

func testSerializers() map[string]Serializer {
	return map[string]Serializer{
		"json": JSONSerializer{},
		"gob":  GobSerializer{},
	}
}

func TestJobRoundTrip(t *testing.T) {
	job := quartz.JobDetail{
		Key:                quartz.NewJobKey("myjob", "G"),
		JobClass:           "com.example.Job",
		Description:        "does a thing",
		Durable:            true,
		RequestsRecovery:   true,
		DisallowConcurrent: true,
		PersistJobData:     true,
		DataMap:            map[string]any{"count": float64(3), "name": "x"},
	}
	for name, s := range testSerializers() {
		t.Run(name, func(t *testing.T) {
			data, err := s.EncodeJob(job)
			require.NoError(t, err)
			got, err := s.DecodeJob(data)
			require.NoError(t, err)
			require.Equal(t, job, got)
		})
	}
}

func TestTriggerRoundTripSimple(t *testing.T) {
	next := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	trig := quartz.Trigger{
		Key:          quartz.NewTriggerKey("t1", "G"),
		JobKey:       quartz.NewJobKey("myjob", "G"),
		Description:  "desc",
		Priority:     7,
		Misfire:      quartz.MisfireInstructionFireNow,
		StartTime:    next.Add(-time.Hour),
		NextFireTime: &next,
		Schedule:     triggers.NewSimpleWithRepeat(time.Minute, 5),
	}
	for name, s := range testSerializers() {
		t.Run(name, func(t *testing.T) {
			data, err := s.EncodeTrigger(trig)
			require.NoError(t, err)
			got, err := s.DecodeTrigger(data)
			require.NoError(t, err)
			require.Equal(t, trig.Key, got.Key)
			require.Equal(t, trig.JobKey, got.JobKey)
			require.Equal(t, trig.Priority, got.Priority)
			require.Equal(t, trig.NextFireTime.UTC(), got.NextFireTime.UTC())
			simple, ok := got.Schedule.(*triggers.Simple)
			require.True(t, ok)
			require.Equal(t, time.Minute, simple.Interval)
			require.Equal(t, 5, simple.RepeatCount)
		})
	}
}

func TestTriggerRoundTripCron(t *testing.T) {
	cronTrig, err := triggers.NewCron("0 0 * * * *")
	require.NoError(t, err)
	trig := quartz.Trigger{
		Key:      quartz.NewTriggerKey("t2", "G"),
		JobKey:   quartz.NewJobKey("myjob", "G"),
		Schedule: cronTrig,
	}
	for name, s := range testSerializers() {
		t.Run(name, func(t *testing.T) {
			data, err := s.EncodeTrigger(trig)
			require.NoError(t, err)
			got, err := s.DecodeTrigger(data)
			require.NoError(t, err)
			c, ok := got.Schedule.(*triggers.Cron)
			require.True(t, ok)
			require.Equal(t, "0 0 * * * *", c.Expression())
		})
	}
}

func TestCalendarRoundTripPreservesParentChain(t *testing.T) {
	// A Holiday layered on a Daily: the round trip must keep both links, not
	// just the outermost one, so exclusions from both still stack afterward.
	daily := calendar.NewDaily(nil, 22*time.Hour, 23*time.Hour)
	holiday := calendar.NewHoliday(daily)
	holiday.AddExcludedDate(time.Date(2026, 12, 25, 0, 0, 0, 0, time.UTC))
	cal := quartz.Calendar{Name: "chained", Impl: holiday}

	inDailyWindow := time.Date(2026, 6, 1, 22, 30, 0, 0, time.UTC)
	onHoliday := time.Date(2026, 12, 25, 12, 0, 0, 0, time.UTC)
	unaffected := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	for name, s := range testSerializers() {
		t.Run(name, func(t *testing.T) {
			data, err := s.EncodeCalendar(cal)
			require.NoError(t, err)
			got, err := s.DecodeCalendar(data)
			require.NoError(t, err)
			require.Equal(t, "chained", got.Name)

			gotHoliday, ok := got.Impl.(*calendar.Holiday)
			require.True(t, ok)
			require.NotNil(t, gotHoliday.Parent(), "the Daily parent must survive the round trip")
			_, ok = gotHoliday.Parent().(*calendar.Daily)
			require.True(t, ok)

			require.False(t, got.Impl.IsTimeIncluded(inDailyWindow), "parent Daily's exclusion must still apply")
			require.False(t, got.Impl.IsTimeIncluded(onHoliday), "the Holiday's own exclusion must still apply")
			require.True(t, got.Impl.IsTimeIncluded(unaffected))
		})
	}
}

func TestCalendarRoundTripWithoutParent(t *testing.T) {
	daily := calendar.NewDaily(nil, time.Hour, 2*time.Hour)
	cal := quartz.Calendar{Name: "solo", Impl: daily}

	for name, s := range testSerializers() {
		t.Run(name, func(t *testing.T) {
			data, err := s.EncodeCalendar(cal)
			require.NoError(t, err)
			got, err := s.DecodeCalendar(data)
			require.NoError(t, err)
			gotDaily, ok := got.Impl.(*calendar.Daily)
			require.True(t, ok)
			require.Nil(t, gotDaily.Parent())
		})
	}
}

func TestDecodeTriggerMalformedDataFails(t *testing.T) {
	for name, s := range testSerializers() {
		t.Run(name, func(t *testing.T) {
			_, err := s.DecodeTrigger([]byte("not valid"))
			require.Error(t, err)
		})
	}
}
