package redisjobstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Dox-Sweden/QuartzRedisJobStore/quartz"
	"github.com/Dox-Sweden/QuartzRedisJobStore/quartz/triggers"
	"github.com/Dox-Sweden/QuartzRedisJobStore/redisjobstore/redistest"
	"github.com/Dox-Sweden/QuartzRedisJobStore/redisjobstore/serialize"
)

func newTestJobStore(t *testing.T) *JobStore {
	t.Helper()
	fake := redistest.New(func() int64 { return 0 })
	cfg := Config{KeyPrefix: "qjs-test", InstanceID: "instance-a"}.Defaults()
	return New(cfg, fake, serialize.JSONSerializer{}, quartz.NoopSignaler{}, StdLogger{})
}

func TestJobStoreInitialize(t *testing.T) {
	js := newTestJobStore(t)
	require.NoError(t, js.Initialize(context.Background()))
}

func TestJobStoreStoreAcquireFireComplete(t *testing.T) {
	js := newTestJobStore(t)
	ctx := context.Background()

	jobKey := quartz.NewJobKey("job1", "")
	job := quartz.JobDetail{Key: jobKey, JobClass: "demo.Job", Durable: true}
	trig := quartz.Trigger{
		Key:       quartz.NewTriggerKey("trigger1", ""),
		JobKey:    jobKey,
		StartTime: time.Unix(0, 0),
		Schedule:  triggers.NewSimple(time.Minute),
	}
	trig.ComputeFirstFireTime(time.Unix(0, 0), nil)

	require.NoError(t, js.StoreJobAndTrigger(ctx, job, trig))

	gotJob, err := js.RetrieveJob(ctx, jobKey)
	require.NoError(t, err)
	require.NotNil(t, gotJob)

	acquired, err := js.AcquireNextTriggers(ctx, *trig.NextFireTime, 10, time.Second)
	require.NoError(t, err)
	require.Len(t, acquired, 1)

	fired, err := js.TriggersFired(ctx, acquired)
	require.NoError(t, err)
	require.Len(t, fired, 1)

	require.NoError(t, js.TriggeredJobComplete(ctx, fired[0].Trigger, fired[0].Job, quartz.NoInstruction))

	state, err := js.GetTriggerState(ctx, trig.Key)
	require.NoError(t, err)
	require.Equal(t, quartz.StateWaiting, state)
}

func TestJobStoreRemoveJobCascadesTriggers(t *testing.T) {
	js := newTestJobStore(t)
	ctx := context.Background()

	jobKey := quartz.NewJobKey("job1", "")
	job := quartz.JobDetail{Key: jobKey, JobClass: "demo.Job", Durable: true}
	trig := quartz.Trigger{
		Key:       quartz.NewTriggerKey("trigger1", ""),
		JobKey:    jobKey,
		StartTime: time.Unix(0, 0),
		Schedule:  triggers.NewSimple(time.Minute),
	}
	trig.ComputeFirstFireTime(time.Unix(0, 0), nil)
	require.NoError(t, js.StoreJobAndTrigger(ctx, job, trig))

	found, err := js.RemoveJob(ctx, jobKey)
	require.NoError(t, err)
	require.True(t, found)

	exists, err := js.CheckTriggerExists(ctx, trig.Key)
	require.NoError(t, err)
	require.False(t, exists)
}

func TestJobStorePauseAllThenResumeAll(t *testing.T) {
	js := newTestJobStore(t)
	ctx := context.Background()

	jobKey := quartz.NewJobKey("job1", "")
	job := quartz.JobDetail{Key: jobKey, JobClass: "demo.Job", Durable: true}
	trig := quartz.Trigger{
		Key:       quartz.NewTriggerKey("trigger1", ""),
		JobKey:    jobKey,
		StartTime: time.Unix(0, 0),
		Schedule:  triggers.NewSimple(time.Minute),
	}
	trig.ComputeFirstFireTime(time.Unix(0, 0), nil)
	require.NoError(t, js.StoreJobAndTrigger(ctx, job, trig))

	require.NoError(t, js.PauseAll(ctx))
	state, err := js.GetTriggerState(ctx, trig.Key)
	require.NoError(t, err)
	require.Equal(t, quartz.StatePaused, state)

	require.NoError(t, js.ResumeAll(ctx))
	state, err = js.GetTriggerState(ctx, trig.Key)
	require.NoError(t, err)
	require.Equal(t, quartz.StateWaiting, state)
}
