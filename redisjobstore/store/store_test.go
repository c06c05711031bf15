package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Dox-Sweden/QuartzRedisJobStore/quartz"
	"github.com/Dox-Sweden/QuartzRedisJobStore/quartz/calendar"
	"github.com/Dox-Sweden/QuartzRedisJobStore/quartz/triggers"
	"github.com/Dox-Sweden/QuartzRedisJobStore/redisjobstore/redistest"
	"github.com/Dox-Sweden/QuartzRedisJobStore/redisjobstore/schema"
	"github.com/Dox-Sweden/QuartzRedisJobStore/redisjobstore/serialize"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	fake := redistest.New(func() int64 { return 0 })
	return &Store{
		KV:                 fake,
		Schema:             schema.New("qjs", ":"),
		Serializer:         serialize.JSONSerializer{},
		InstanceID:         "test-instance",
		MisfireThreshold:   5 * time.Second,
		TriggerLockTimeout: time.Minute,
		Signaler:           quartz.NoopSignaler{},
	}
}

func simpleJobAndTrigger(jobName, triggerName string, disallowConcurrent bool) (quartz.JobDetail, quartz.Trigger) {
	jobKey := quartz.NewJobKey(jobName, "")
	job := quartz.JobDetail{
		Key:                jobKey,
		JobClass:           "demo.Job",
		Durable:            true,
		DisallowConcurrent: disallowConcurrent,
	}
	trig := quartz.Trigger{
		Key:       quartz.NewTriggerKey(triggerName, ""),
		JobKey:    jobKey,
		StartTime: time.Unix(0, 0),
		Schedule:  triggers.NewSimple(time.Minute),
	}
	trig.ComputeFirstFireTime(time.Unix(0, 0), nil)
	return job, trig
}

func TestStoreJobAndTriggerRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	job, trig := simpleJobAndTrigger("job1", "trigger1", false)

	require.NoError(t, s.StoreJob(ctx, job, false))
	require.NoError(t, s.StoreTrigger(ctx, trig, false))

	gotJob, err := s.RetrieveJob(ctx, job.Key)
	require.NoError(t, err)
	require.NotNil(t, gotJob)
	require.Equal(t, job.JobClass, gotJob.JobClass)

	gotTrigger, err := s.RetrieveTrigger(ctx, trig.Key)
	require.NoError(t, err)
	require.NotNil(t, gotTrigger)
	require.Equal(t, trig.JobKey, gotTrigger.JobKey)

	state, err := s.GetTriggerState(ctx, trig.Key)
	require.NoError(t, err)
	require.Equal(t, quartz.StateWaiting, state)
}

func TestStoreJobRejectsDuplicateWithoutReplace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	job, _ := simpleJobAndTrigger("job1", "trigger1", false)

	require.NoError(t, s.StoreJob(ctx, job, false))
	err := s.StoreJob(ctx, job, false)
	require.Error(t, err)
}

func TestAcquireFireCompleteLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	job, trig := simpleJobAndTrigger("job1", "trigger1", false)
	require.NoError(t, s.StoreJob(ctx, job, false))
	require.NoError(t, s.StoreTrigger(ctx, trig, false))

	acquired, err := s.AcquireNextTriggers(ctx, *trig.NextFireTime, 10, time.Second)
	require.NoError(t, err)
	require.Len(t, acquired, 1)

	state, err := s.GetTriggerState(ctx, trig.Key)
	require.NoError(t, err)
	require.Equal(t, quartz.StateAcquired, state)

	fired, err := s.TriggersFired(ctx, acquired)
	require.NoError(t, err)
	require.Len(t, fired, 1)

	completedTrigger := fired[0].Trigger
	require.NotNil(t, completedTrigger.PreviousFireTime)
	require.NotNil(t, completedTrigger.NextFireTime)

	require.NoError(t, s.TriggeredJobComplete(ctx, completedTrigger, fired[0].Job, quartz.NoInstruction))

	state, err = s.GetTriggerState(ctx, trig.Key)
	require.NoError(t, err)
	require.Equal(t, quartz.StateWaiting, state)
}

func TestDisallowConcurrentBlocksSiblingTriggers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	job, trig1 := simpleJobAndTrigger("job1", "trigger1", true)
	_, trig2 := simpleJobAndTrigger("job1", "trigger2", true)
	trig2.JobKey = job.Key

	require.NoError(t, s.StoreJob(ctx, job, false))
	require.NoError(t, s.StoreTrigger(ctx, trig1, false))
	require.NoError(t, s.StoreTrigger(ctx, trig2, false))

	acquired, err := s.AcquireNextTriggers(ctx, *trig1.NextFireTime, 10, time.Second)
	require.NoError(t, err)
	require.Len(t, acquired, 2)

	fired, err := s.TriggersFired(ctx, acquired)
	require.NoError(t, err)
	require.Len(t, fired, 1, "second trigger should be blocked once the job is executing")

	other := trig1.Key
	if fired[0].Trigger.Key == trig1.Key {
		other = trig2.Key
	}
	state, err := s.GetTriggerState(ctx, other)
	require.NoError(t, err)
	require.Equal(t, quartz.StateBlocked, state)

	require.NoError(t, s.TriggeredJobComplete(ctx, fired[0].Trigger, fired[0].Job, quartz.NoInstruction))

	state, err = s.GetTriggerState(ctx, other)
	require.NoError(t, err)
	require.Equal(t, quartz.StateWaiting, state)
}

func TestPauseAndResumeTrigger(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	job, trig := simpleJobAndTrigger("job1", "trigger1", false)
	require.NoError(t, s.StoreJob(ctx, job, false))
	require.NoError(t, s.StoreTrigger(ctx, trig, false))

	require.NoError(t, s.PauseTrigger(ctx, trig.Key))
	state, err := s.GetTriggerState(ctx, trig.Key)
	require.NoError(t, err)
	require.Equal(t, quartz.StatePaused, state)

	acquired, err := s.AcquireNextTriggers(ctx, *trig.NextFireTime, 10, time.Second)
	require.NoError(t, err)
	require.Empty(t, acquired, "a paused trigger must not be acquired")

	require.NoError(t, s.ResumeTrigger(ctx, trig.Key))
	state, err = s.GetTriggerState(ctx, trig.Key)
	require.NoError(t, err)
	require.Equal(t, quartz.StateWaiting, state)
}

func TestPauseTriggersByGroupAffectsFutureTriggers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	job, trig := simpleJobAndTrigger("job1", "trigger1", false)
	require.NoError(t, s.StoreJob(ctx, job, false))
	require.NoError(t, s.StoreTrigger(ctx, trig, false))

	groups, err := s.PauseTriggers(ctx, quartz.GroupEquals(quartz.DefaultGroup))
	require.NoError(t, err)
	require.Contains(t, groups, quartz.DefaultGroup)

	state, err := s.GetTriggerState(ctx, trig.Key)
	require.NoError(t, err)
	require.Equal(t, quartz.StatePaused, state)

	_, trig2 := simpleJobAndTrigger("job1", "trigger2", false)
	require.NoError(t, s.StoreTrigger(ctx, trig2, false))
	state, err = s.GetTriggerState(ctx, trig2.Key)
	require.NoError(t, err)
	require.Equal(t, quartz.StatePaused, state, "a trigger stored into an already-paused group should start paused")
}

func TestMisfireDoNothingSkipsCandidateThisRound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	job, trig := simpleJobAndTrigger("job1", "trigger1", false)
	trig.Misfire = quartz.MisfireInstructionDoNothing
	require.NoError(t, s.StoreJob(ctx, job, false))
	require.NoError(t, s.StoreTrigger(ctx, trig, false))

	// The trigger's next fire time lies far more than MisfireThreshold behind
	// the store's wall clock, so it counts as misfired; acquiring an hour past
	// it keeps it inside the scanned range.
	future := trig.NextFireTime.Add(time.Hour)
	acquired, err := s.AcquireNextTriggers(ctx, future, 10, 0)
	require.NoError(t, err)
	require.Empty(t, acquired)

	state, err := s.GetTriggerState(ctx, trig.Key)
	require.NoError(t, err)
	require.Equal(t, quartz.StateWaiting, state)
}

func TestMisfireSetNextFireTimeAdvancesSchedule(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	job, trig := simpleJobAndTrigger("job1", "trigger1", false)
	trig.Misfire = quartz.MisfireInstructionSetNextFireTime
	require.NoError(t, s.StoreJob(ctx, job, false))
	require.NoError(t, s.StoreTrigger(ctx, trig, false))

	staleNextFire := *trig.NextFireTime
	s.Now = func() time.Time { return staleNextFire.Add(time.Hour) }

	acquired, err := s.AcquireNextTriggers(ctx, s.Now(), 10, 0)
	require.NoError(t, err)
	require.Empty(t, acquired)

	updated, err := s.RetrieveTrigger(ctx, trig.Key)
	require.NoError(t, err)
	require.True(t, updated.NextFireTime.After(staleNextFire))
}

func TestRemoveTriggerDeletesNonDurableJobWhenLastTriggerGone(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	jobKey := quartz.NewJobKey("job1", "")
	job := quartz.JobDetail{Key: jobKey, Durable: false}
	trig := quartz.Trigger{
		Key:       quartz.NewTriggerKey("trigger1", ""),
		JobKey:    jobKey,
		StartTime: time.Unix(0, 0),
		Schedule:  triggers.NewSimple(time.Minute),
	}
	trig.ComputeFirstFireTime(time.Unix(0, 0), nil)
	require.NoError(t, s.StoreJob(ctx, job, false))
	require.NoError(t, s.StoreTrigger(ctx, trig, false))

	found, err := s.RemoveTrigger(ctx, trig.Key)
	require.NoError(t, err)
	require.True(t, found)

	exists, err := s.CheckJobExists(ctx, jobKey)
	require.NoError(t, err)
	require.False(t, exists, "a non-durable job with no remaining triggers should be removed")
}

func TestRecoverOrphanedFiredTriggers(t *testing.T) {
	millis := int64(0)
	fake := redistest.New(func() int64 { return millis })
	s := &Store{
		KV:                 fake,
		Schema:             schema.New("qjs", ":"),
		Serializer:         serialize.JSONSerializer{},
		InstanceID:         "instance-a",
		TriggerLockTimeout: time.Minute,
		Signaler:           quartz.NoopSignaler{},
		Now:                func() time.Time { return time.UnixMilli(millis) },
	}
	ctx := context.Background()
	job, trig := simpleJobAndTrigger("job1", "trigger1", false)
	require.NoError(t, s.StoreJob(ctx, job, false))
	require.NoError(t, s.StoreTrigger(ctx, trig, false))

	acquired, err := s.AcquireNextTriggers(ctx, *trig.NextFireTime, 10, time.Second)
	require.NoError(t, err)
	require.Len(t, acquired, 1)
	_, err = s.TriggersFired(ctx, acquired)
	require.NoError(t, err)

	state, err := s.GetTriggerState(ctx, trig.Key)
	require.NoError(t, err)
	require.Equal(t, quartz.StateExecuting, state)

	millis += int64(2 * time.Minute / time.Millisecond)
	recovered, err := s.RecoverOrphanedFiredTriggers(ctx)
	require.NoError(t, err)
	require.Contains(t, recovered, trig.Key)

	state, err = s.GetTriggerState(ctx, trig.Key)
	require.NoError(t, err)
	require.Equal(t, quartz.StateWaiting, state)
}

func TestStoreTriggerRejectsUnknownCalendar(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	job, trig := simpleJobAndTrigger("job1", "trigger1", false)
	trig.CalendarName = "holidays"
	require.NoError(t, s.StoreJob(ctx, job, false))

	err := s.StoreTrigger(ctx, trig, false)
	require.Error(t, err)
}

func TestStoreTriggerAcceptsRegisteredCalendar(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	job, trig := simpleJobAndTrigger("job1", "trigger1", false)
	trig.CalendarName = "holidays"
	require.NoError(t, s.StoreJob(ctx, job, false))
	require.NoError(t, s.StoreCalendar(ctx, "holidays", quartz.Calendar{Impl: calendar.NewHoliday(nil)}, false, false))

	require.NoError(t, s.StoreTrigger(ctx, trig, false))
}

func TestFireOneSkipsCalendarExcludedFireTimes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	job, trig := simpleJobAndTrigger("job1", "trigger1", false)

	excluded := *trig.NextFireTime
	holiday := calendar.NewHoliday(nil)
	holiday.AddExcludedDate(excluded)
	require.NoError(t, s.StoreCalendar(ctx, "holidays", quartz.Calendar{Impl: holiday}, false, false))

	trig.CalendarName = "holidays"
	require.NoError(t, s.StoreJob(ctx, job, false))
	require.NoError(t, s.StoreTrigger(ctx, trig, false))

	acquired, err := s.AcquireNextTriggers(ctx, excluded, 10, time.Second)
	require.NoError(t, err)
	require.Len(t, acquired, 1)

	fired, err := s.TriggersFired(ctx, acquired)
	require.NoError(t, err)
	require.Len(t, fired, 1)
	require.NotNil(t, fired[0].Calendar)
	require.NotEqual(t, excluded, *fired[0].Trigger.NextFireTime, "the next fire time must skip the calendar-excluded instant")
	require.False(t, holiday.IsTimeIncluded(excluded))
}

func TestRecoverOrphanedFiredTriggerSchedulesSyntheticRecoveryTrigger(t *testing.T) {
	millis := int64(0)
	fake := redistest.New(func() int64 { return millis })
	s := &Store{
		KV:                 fake,
		Schema:             schema.New("qjs", ":"),
		Serializer:         serialize.JSONSerializer{},
		InstanceID:         "instance-a",
		TriggerLockTimeout: time.Minute,
		Signaler:           quartz.NoopSignaler{},
		Now:                func() time.Time { return time.UnixMilli(millis) },
	}
	ctx := context.Background()
	job, trig := simpleJobAndTrigger("job1", "trigger1", false)
	job.RequestsRecovery = true
	require.NoError(t, s.StoreJob(ctx, job, false))
	require.NoError(t, s.StoreTrigger(ctx, trig, false))

	acquired, err := s.AcquireNextTriggers(ctx, *trig.NextFireTime, 10, time.Second)
	require.NoError(t, err)
	require.Len(t, acquired, 1)
	_, err = s.TriggersFired(ctx, acquired)
	require.NoError(t, err)

	millis += int64(2 * time.Minute / time.Millisecond)
	recovered, err := s.RecoverOrphanedFiredTriggers(ctx)
	require.NoError(t, err)
	require.Contains(t, recovered, trig.Key)

	triggersForJob, err := s.TriggersForJob(ctx, job.Key)
	require.NoError(t, err)
	require.Len(t, triggersForJob, 2, "the interrupted execution must be redone via a synthetic recovery trigger")

	var synthetic *quartz.Trigger
	for i := range triggersForJob {
		if triggersForJob[i].Key != trig.Key {
			synthetic = &triggersForJob[i]
		}
	}
	require.NotNil(t, synthetic)
	require.NotNil(t, synthetic.NextFireTime)
	require.False(t, synthetic.NextFireTime.After(s.now()), "a recovery trigger must fire immediately")

	// Drive the synthetic trigger through one full fire/complete cycle: it
	// must terminate after exactly one redo-fire, not two (a primed
	// NewSimpleWithRepeat(0, 0) fires once; an unprimed one fires twice
	// before Advance finally returns zero).
	acquired, err = s.AcquireNextTriggers(ctx, *synthetic.NextFireTime, 10, time.Second)
	require.NoError(t, err)
	var syntheticAcquired *quartz.Trigger
	for i := range acquired {
		if acquired[i].Key == synthetic.Key {
			syntheticAcquired = &acquired[i]
		}
	}
	require.NotNil(t, syntheticAcquired, "the synthetic recovery trigger must be acquirable at its primed fire time")

	fired, err := s.TriggersFired(ctx, []quartz.Trigger{*syntheticAcquired})
	require.NoError(t, err)
	require.Len(t, fired, 1)
	require.Nil(t, fired[0].Trigger.NextFireTime, "a one-shot recovery trigger must terminate after its single fire")

	require.NoError(t, s.TriggeredJobComplete(ctx, fired[0].Trigger, fired[0].Job, quartz.NoInstruction))

	state, err := s.GetTriggerState(ctx, synthetic.Key)
	require.NoError(t, err)
	require.Equal(t, quartz.StateCompleted, state)

	acquired, err = s.AcquireNextTriggers(ctx, s.now().Add(time.Hour), 10, 0)
	require.NoError(t, err)
	for _, a := range acquired {
		require.NotEqual(t, synthetic.Key, a.Key, "a completed one-shot recovery trigger must never be acquired again")
	}
}
