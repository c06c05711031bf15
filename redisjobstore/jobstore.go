// Package redisjobstore is the facade the scheduler talks to: it wraps the
// storage core with the distributed mutex and structured logging, presenting
// the upward SPI spec §6 describes. Every exported storage operation
// acquires the lock, delegates to store.Store, and releases the lock on every
// exit path; Initialize and the scheduler lifecycle notifications take no
// lock.
package redisjobstore

import (
	"context"
	"time"

	"github.com/Dox-Sweden/QuartzRedisJobStore/errs"
	"github.com/Dox-Sweden/QuartzRedisJobStore/quartz"
	"github.com/Dox-Sweden/QuartzRedisJobStore/redisjobstore/lock"
	"github.com/Dox-Sweden/QuartzRedisJobStore/redisjobstore/rconn"
	"github.com/Dox-Sweden/QuartzRedisJobStore/redisjobstore/schema"
	"github.com/Dox-Sweden/QuartzRedisJobStore/redisjobstore/serialize"
	"github.com/Dox-Sweden/QuartzRedisJobStore/redisjobstore/store"
)

// JobStore is the top-level entry point: construct one with New, call
// Initialize once the pool is reachable, then drive it through the SPI
// methods below.
type JobStore struct {
	kv     rconn.KV
	mutex  *lock.Mutex
	store  *store.Store
	logger Logger
	cfg    Config
}

// New builds a JobStore from cfg and a KV connection. kv is typically a
// *rconn.Pool against a live Redis, or a *redistest.Fake in tests.
func New(cfg Config, kv rconn.KV, serializer serialize.Serializer, signaler quartz.Signaler, logger Logger) *JobStore {
	cfg = cfg.Defaults()
	if logger == nil {
		logger = StdLogger{}
	}
	sch := schema.New(cfg.KeyPrefix, cfg.KeyDelimiter)
	m := lock.New(kv, sch.LockKey(), cfg.InstanceID, cfg.RedisLockTimeout)
	st := &store.Store{
		KV:                 kv,
		Schema:             sch,
		Serializer:         serializer,
		InstanceID:         cfg.InstanceID,
		MisfireThreshold:   cfg.MisfireThreshold,
		TriggerLockTimeout: cfg.TriggerLockTimeout,
		Signaler:           signaler,
	}
	return &JobStore{kv: kv, mutex: m, store: st, logger: logger, cfg: cfg}
}

// withLock acquires the distributed mutex, runs fn, and releases the lock
// regardless of fn's outcome (spec §6: "acquire lock -> delegate -> release
// lock on every exit path").
func (js *JobStore) withLock(ctx context.Context, op string, fn func(context.Context) error) error {
	h, err := js.mutex.Lock(ctx)
	if err != nil {
		js.logger.Error("%s: acquire lock: %v", op, err)
		return errs.Persistence(op, err)
	}
	defer func() {
		if uerr := js.mutex.Unlock(ctx, h); uerr != nil {
			js.logger.Warn("%s: release lock: %v", op, uerr)
		}
	}()

	if err := fn(ctx); err != nil {
		js.logger.Error("%s: %v", op, err)
		return err
	}
	js.logger.Info("%s: ok", op)
	return nil
}

// Initialize verifies connectivity by pinging the KV once. It performs no
// schema migration since the key space is created lazily, key by key.
func (js *JobStore) Initialize(ctx context.Context) error {
	_, err := js.kv.Do(ctx, "PING")
	if err != nil {
		return errs.Persistence("Initialize", err)
	}
	js.logger.Info("Initialize: connected as instance %s", js.cfg.InstanceID)
	return nil
}

// SchedulerStarted, SchedulerPaused, SchedulerResumed, and Shutdown are
// lifecycle notifications the store observes but does not need to act on:
// the store's state is entirely derived from KV content, not from in-process
// scheduler state (spec §1 Non-goals).
func (js *JobStore) SchedulerStarted(ctx context.Context) error {
	js.logger.Info("SchedulerStarted")
	return nil
}

func (js *JobStore) SchedulerPaused(ctx context.Context) error {
	js.logger.Info("SchedulerPaused")
	return nil
}

func (js *JobStore) SchedulerResumed(ctx context.Context) error {
	js.logger.Info("SchedulerResumed")
	return nil
}

func (js *JobStore) Shutdown(ctx context.Context) error {
	js.logger.Info("Shutdown")
	return nil
}

// StoreJob persists job. replace controls whether an existing job under the
// same key is overwritten or rejected with ErrObjectAlreadyExists.
func (js *JobStore) StoreJob(ctx context.Context, job quartz.JobDetail, replace bool) error {
	return js.withLock(ctx, "StoreJob", func(ctx context.Context) error {
		return js.store.StoreJob(ctx, job, replace)
	})
}

// StoreJobAndTrigger persists job and trigger together, atomically with
// respect to any other lock holder.
func (js *JobStore) StoreJobAndTrigger(ctx context.Context, job quartz.JobDetail, trigger quartz.Trigger) error {
	return js.withLock(ctx, "StoreJobAndTrigger", func(ctx context.Context) error {
		if err := js.store.StoreJob(ctx, job, false); err != nil {
			return err
		}
		return js.store.StoreTrigger(ctx, trigger, false)
	})
}

// StoreJobsAndTriggers persists every job in jobs together with the triggers
// triggersByJob lists under its key.
// replace applies uniformly to every job and trigger in the batch.
func (js *JobStore) StoreJobsAndTriggers(ctx context.Context, jobs []quartz.JobDetail, triggersByJob map[quartz.JobKey][]quartz.Trigger, replace bool) error {
	return js.withLock(ctx, "StoreJobsAndTriggers", func(ctx context.Context) error {
		for _, job := range jobs {
			if err := js.store.StoreJob(ctx, job, replace); err != nil {
				return err
			}
			for _, t := range triggersByJob[job.Key] {
				if err := js.store.StoreTrigger(ctx, t, replace); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// StoreTrigger persists trigger under trigger.Key.
func (js *JobStore) StoreTrigger(ctx context.Context, trigger quartz.Trigger, replace bool) error {
	return js.withLock(ctx, "StoreTrigger", func(ctx context.Context) error {
		return js.store.StoreTrigger(ctx, trigger, replace)
	})
}

// RemoveJob deletes the job (and its triggers), reporting whether it existed.
func (js *JobStore) RemoveJob(ctx context.Context, key quartz.JobKey) (bool, error) {
	var found bool
	err := js.withLock(ctx, "RemoveJob", func(ctx context.Context) error {
		var err error
		found, err = js.store.RemoveJob(ctx, key)
		return err
	})
	return found, err
}

// RemoveJobs deletes every job in keys, reporting true only if all existed.
func (js *JobStore) RemoveJobs(ctx context.Context, keys []quartz.JobKey) (bool, error) {
	var found bool
	err := js.withLock(ctx, "RemoveJobs", func(ctx context.Context) error {
		var err error
		found, err = js.store.RemoveJobs(ctx, keys)
		return err
	})
	return found, err
}

// RemoveTrigger deletes the trigger, reporting whether it existed.
func (js *JobStore) RemoveTrigger(ctx context.Context, key quartz.TriggerKey) (bool, error) {
	var found bool
	err := js.withLock(ctx, "RemoveTrigger", func(ctx context.Context) error {
		var err error
		found, err = js.store.RemoveTrigger(ctx, key)
		return err
	})
	return found, err
}

// RemoveTriggers deletes every trigger in keys, reporting true only if all existed.
func (js *JobStore) RemoveTriggers(ctx context.Context, keys []quartz.TriggerKey) (bool, error) {
	var found bool
	err := js.withLock(ctx, "RemoveTriggers", func(ctx context.Context) error {
		var err error
		found, err = js.store.RemoveTriggers(ctx, keys)
		return err
	})
	return found, err
}

// ReplaceTrigger swaps the trigger under key for newTrigger.
func (js *JobStore) ReplaceTrigger(ctx context.Context, key quartz.TriggerKey, newTrigger quartz.Trigger) (bool, error) {
	var found bool
	err := js.withLock(ctx, "ReplaceTrigger", func(ctx context.Context) error {
		var err error
		found, err = js.store.ReplaceTrigger(ctx, key, newTrigger)
		return err
	})
	return found, err
}

// RetrieveJob returns the job stored under key, or nil if absent.
func (js *JobStore) RetrieveJob(ctx context.Context, key quartz.JobKey) (*quartz.JobDetail, error) {
	var job *quartz.JobDetail
	err := js.withLock(ctx, "RetrieveJob", func(ctx context.Context) error {
		var err error
		job, err = js.store.RetrieveJob(ctx, key)
		return err
	})
	return job, err
}

// RetrieveTrigger returns the trigger stored under key, or nil if absent.
func (js *JobStore) RetrieveTrigger(ctx context.Context, key quartz.TriggerKey) (*quartz.Trigger, error) {
	var t *quartz.Trigger
	err := js.withLock(ctx, "RetrieveTrigger", func(ctx context.Context) error {
		var err error
		t, err = js.store.RetrieveTrigger(ctx, key)
		return err
	})
	return t, err
}

// RetrieveCalendar returns the calendar stored under name, or nil if absent.
func (js *JobStore) RetrieveCalendar(ctx context.Context, name string) (*quartz.Calendar, error) {
	var cal *quartz.Calendar
	err := js.withLock(ctx, "RetrieveCalendar", func(ctx context.Context) error {
		var err error
		cal, err = js.store.RetrieveCalendar(ctx, name)
		return err
	})
	return cal, err
}

// CheckJobExists reports whether a job is stored under key (the job half of
// spec §6's "CheckExists" entry; CheckTriggerExists is the trigger half).
func (js *JobStore) CheckJobExists(ctx context.Context, key quartz.JobKey) (bool, error) {
	var exists bool
	err := js.withLock(ctx, "CheckJobExists", func(ctx context.Context) error {
		var err error
		exists, err = js.store.CheckJobExists(ctx, key)
		return err
	})
	return exists, err
}

func (js *JobStore) CheckTriggerExists(ctx context.Context, key quartz.TriggerKey) (bool, error) {
	var exists bool
	err := js.withLock(ctx, "CheckTriggerExists", func(ctx context.Context) error {
		var err error
		exists, err = js.store.CheckTriggerExists(ctx, key)
		return err
	})
	return exists, err
}

// StoreCalendar persists cal under name.
func (js *JobStore) StoreCalendar(ctx context.Context, name string, cal quartz.Calendar, replace, updateTriggers bool) error {
	return js.withLock(ctx, "StoreCalendar", func(ctx context.Context) error {
		return js.store.StoreCalendar(ctx, name, cal, replace, updateTriggers)
	})
}

// RemoveCalendar deletes the calendar under name, refusing if it is in use.
func (js *JobStore) RemoveCalendar(ctx context.Context, name string) (bool, error) {
	var found bool
	err := js.withLock(ctx, "RemoveCalendar", func(ctx context.Context) error {
		var err error
		found, err = js.store.RemoveCalendar(ctx, name)
		return err
	})
	return found, err
}

// ClearAllSchedulingData wipes every job, trigger, and calendar.
func (js *JobStore) ClearAllSchedulingData(ctx context.Context) error {
	return js.withLock(ctx, "ClearAllSchedulingData", func(ctx context.Context) error {
		return js.store.ClearAllSchedulingData(ctx)
	})
}

func (js *JobStore) GetNumberOfJobs(ctx context.Context) (int, error) {
	var n int
	err := js.withLock(ctx, "GetNumberOfJobs", func(ctx context.Context) error {
		var err error
		n, err = js.store.NumberOfJobs(ctx)
		return err
	})
	return n, err
}

func (js *JobStore) GetNumberOfTriggers(ctx context.Context) (int, error) {
	var n int
	err := js.withLock(ctx, "GetNumberOfTriggers", func(ctx context.Context) error {
		var err error
		n, err = js.store.NumberOfTriggers(ctx)
		return err
	})
	return n, err
}

func (js *JobStore) GetNumberOfCalendars(ctx context.Context) (int, error) {
	var n int
	err := js.withLock(ctx, "GetNumberOfCalendars", func(ctx context.Context) error {
		var err error
		n, err = js.store.NumberOfCalendars(ctx)
		return err
	})
	return n, err
}

func (js *JobStore) GetJobKeys(ctx context.Context, matcher quartz.GroupMatcher) ([]quartz.JobKey, error) {
	var keys []quartz.JobKey
	err := js.withLock(ctx, "GetJobKeys", func(ctx context.Context) error {
		var err error
		keys, err = js.store.JobKeys(ctx, matcher)
		return err
	})
	return keys, err
}

func (js *JobStore) GetTriggerKeys(ctx context.Context, matcher quartz.GroupMatcher) ([]quartz.TriggerKey, error) {
	var keys []quartz.TriggerKey
	err := js.withLock(ctx, "GetTriggerKeys", func(ctx context.Context) error {
		var err error
		keys, err = js.store.TriggerKeys(ctx, matcher)
		return err
	})
	return keys, err
}

func (js *JobStore) GetJobGroupNames(ctx context.Context) ([]string, error) {
	var names []string
	err := js.withLock(ctx, "GetJobGroupNames", func(ctx context.Context) error {
		var err error
		names, err = js.store.JobGroupNames(ctx)
		return err
	})
	return names, err
}

func (js *JobStore) GetTriggerGroupNames(ctx context.Context) ([]string, error) {
	var names []string
	err := js.withLock(ctx, "GetTriggerGroupNames", func(ctx context.Context) error {
		var err error
		names, err = js.store.TriggerGroupNames(ctx)
		return err
	})
	return names, err
}

func (js *JobStore) GetCalendarNames(ctx context.Context) ([]string, error) {
	var names []string
	err := js.withLock(ctx, "GetCalendarNames", func(ctx context.Context) error {
		var err error
		names, err = js.store.CalendarNames(ctx)
		return err
	})
	return names, err
}

func (js *JobStore) GetTriggersForJob(ctx context.Context, jobKey quartz.JobKey) ([]quartz.Trigger, error) {
	var triggers []quartz.Trigger
	err := js.withLock(ctx, "GetTriggersForJob", func(ctx context.Context) error {
		var err error
		triggers, err = js.store.TriggersForJob(ctx, jobKey)
		return err
	})
	return triggers, err
}

func (js *JobStore) GetTriggerState(ctx context.Context, key quartz.TriggerKey) (quartz.TriggerState, error) {
	var state quartz.TriggerState
	err := js.withLock(ctx, "GetTriggerState", func(ctx context.Context) error {
		var err error
		state, err = js.store.GetTriggerState(ctx, key)
		return err
	})
	return state, err
}

func (js *JobStore) IsJobGroupPaused(ctx context.Context, group string) (bool, error) {
	var paused bool
	err := js.withLock(ctx, "IsJobGroupPaused", func(ctx context.Context) error {
		var err error
		paused, err = js.store.IsJobGroupPaused(ctx, group)
		return err
	})
	return paused, err
}

func (js *JobStore) IsTriggerGroupPaused(ctx context.Context, group string) (bool, error) {
	var paused bool
	err := js.withLock(ctx, "IsTriggerGroupPaused", func(ctx context.Context) error {
		var err error
		paused, err = js.store.IsTriggerGroupPaused(ctx, group)
		return err
	})
	return paused, err
}

func (js *JobStore) PauseTrigger(ctx context.Context, key quartz.TriggerKey) error {
	return js.withLock(ctx, "PauseTrigger", func(ctx context.Context) error {
		return js.store.PauseTrigger(ctx, key)
	})
}

func (js *JobStore) PauseTriggers(ctx context.Context, matcher quartz.GroupMatcher) ([]string, error) {
	var groups []string
	err := js.withLock(ctx, "PauseTriggers", func(ctx context.Context) error {
		var err error
		groups, err = js.store.PauseTriggers(ctx, matcher)
		return err
	})
	return groups, err
}

func (js *JobStore) PauseJob(ctx context.Context, key quartz.JobKey) error {
	return js.withLock(ctx, "PauseJob", func(ctx context.Context) error {
		return js.store.PauseJob(ctx, key)
	})
}

func (js *JobStore) PauseJobs(ctx context.Context, matcher quartz.GroupMatcher) ([]string, error) {
	var groups []string
	err := js.withLock(ctx, "PauseJobs", func(ctx context.Context) error {
		var err error
		groups, err = js.store.PauseJobs(ctx, matcher)
		return err
	})
	return groups, err
}

func (js *JobStore) ResumeTrigger(ctx context.Context, key quartz.TriggerKey) error {
	return js.withLock(ctx, "ResumeTrigger", func(ctx context.Context) error {
		return js.store.ResumeTrigger(ctx, key)
	})
}

func (js *JobStore) ResumeTriggers(ctx context.Context, matcher quartz.GroupMatcher) ([]string, error) {
	var groups []string
	err := js.withLock(ctx, "ResumeTriggers", func(ctx context.Context) error {
		var err error
		groups, err = js.store.ResumeTriggers(ctx, matcher)
		return err
	})
	return groups, err
}

func (js *JobStore) ResumeJob(ctx context.Context, key quartz.JobKey) error {
	return js.withLock(ctx, "ResumeJob", func(ctx context.Context) error {
		return js.store.ResumeJob(ctx, key)
	})
}

func (js *JobStore) ResumeJobs(ctx context.Context, matcher quartz.GroupMatcher) ([]string, error) {
	var groups []string
	err := js.withLock(ctx, "ResumeJobs", func(ctx context.Context) error {
		var err error
		groups, err = js.store.ResumeJobs(ctx, matcher)
		return err
	})
	return groups, err
}

func (js *JobStore) GetPausedTriggerGroups(ctx context.Context) ([]string, error) {
	var groups []string
	err := js.withLock(ctx, "GetPausedTriggerGroups", func(ctx context.Context) error {
		var err error
		groups, err = js.store.PausedTriggerGroups(ctx)
		return err
	})
	return groups, err
}

func (js *JobStore) PauseAll(ctx context.Context) error {
	return js.withLock(ctx, "PauseAll", func(ctx context.Context) error {
		return js.store.PauseAll(ctx)
	})
}

func (js *JobStore) ResumeAll(ctx context.Context) error {
	return js.withLock(ctx, "ResumeAll", func(ctx context.Context) error {
		return js.store.ResumeAll(ctx)
	})
}

// AcquireNextTriggers reserves up to maxCount triggers due to fire at or
// before noLaterThan+timeWindow.
func (js *JobStore) AcquireNextTriggers(ctx context.Context, noLaterThan time.Time, maxCount int, timeWindow time.Duration) ([]quartz.Trigger, error) {
	var triggers []quartz.Trigger
	err := js.withLock(ctx, "AcquireNextTriggers", func(ctx context.Context) error {
		var err error
		triggers, err = js.store.AcquireNextTriggers(ctx, noLaterThan, maxCount, timeWindow)
		return err
	})
	return triggers, err
}

// ReleaseAcquiredTrigger returns an Acquired trigger to Waiting.
func (js *JobStore) ReleaseAcquiredTrigger(ctx context.Context, key quartz.TriggerKey) error {
	return js.withLock(ctx, "ReleaseAcquiredTrigger", func(ctx context.Context) error {
		return js.store.ReleaseAcquiredTrigger(ctx, key)
	})
}

// TriggersFired confirms execution of the given Acquired triggers.
func (js *JobStore) TriggersFired(ctx context.Context, triggers []quartz.Trigger) ([]store.FireResult, error) {
	var results []store.FireResult
	err := js.withLock(ctx, "TriggersFired", func(ctx context.Context) error {
		var err error
		results, err = js.store.TriggersFired(ctx, triggers)
		return err
	})
	return results, err
}

// TriggeredJobComplete finishes a fired trigger's execution.
func (js *JobStore) TriggeredJobComplete(ctx context.Context, trigger quartz.Trigger, job quartz.JobDetail, instruction quartz.CompletedInstruction) error {
	return js.withLock(ctx, "TriggeredJobComplete", func(ctx context.Context) error {
		return js.store.TriggeredJobComplete(ctx, trigger, job, instruction)
	})
}

// ResetTriggerFromErrorState moves an Error trigger back to Waiting/Paused.
func (js *JobStore) ResetTriggerFromErrorState(ctx context.Context, key quartz.TriggerKey) error {
	return js.withLock(ctx, "ResetTriggerFromErrorState", func(ctx context.Context) error {
		return js.store.ResetTriggerFromErrorState(ctx, key)
	})
}

// RecoverOrphanedFiredTriggers reclaims triggers whose owning instance
// crashed without completing execution (spec §4.4.7). Callers typically run
// this on startup and on a periodic timer.
func (js *JobStore) RecoverOrphanedFiredTriggers(ctx context.Context) ([]quartz.TriggerKey, error) {
	var keys []quartz.TriggerKey
	err := js.withLock(ctx, "RecoverOrphanedFiredTriggers", func(ctx context.Context) error {
		var err error
		keys, err = js.store.RecoverOrphanedFiredTriggers(ctx)
		return err
	})
	return keys, err
}
