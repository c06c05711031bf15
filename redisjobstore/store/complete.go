package store

import (
	"context"

	"github.com/Dox-Sweden/QuartzRedisJobStore/quartz"
)

// TriggeredJobComplete finishes the execution begun by TriggersFired: it
// persists the job's (possibly mutated) data map when the job requests it,
// clears the fired_triggers bookkeeping, unblocks any sibling triggers held
// back by @DisallowConcurrentExecution, and applies instruction to decide
// the trigger's resting state (spec §4.4.4).
func (s *Store) TriggeredJobComplete(ctx context.Context, t quartz.Trigger, job quartz.JobDetail, instruction quartz.CompletedInstruction) error {
	if job.PersistJobData {
		if err := s.writeJobDataMap(ctx, job.Key, job.DataMap); err != nil {
			return err
		}
	}
	if err := s.clearFiredRecordsFor(ctx, t.Key); err != nil {
		return err
	}
	if job.DisallowConcurrent {
		if err := s.unblockJob(ctx, job.Key); err != nil {
			return err
		}
	}

	switch instruction {
	case quartz.DeleteTrigger:
		_, err := s.RemoveTrigger(ctx, t.Key)
		return err

	case quartz.SetTriggerComplete:
		return s.finalizeTrigger(ctx, t)

	case quartz.SetTriggerError:
		return s.errorTrigger(ctx, t)

	case quartz.SetAllJobTriggersComplete:
		return s.forEachJobTrigger(ctx, job.Key, s.finalizeTrigger)

	case quartz.SetAllJobTriggersError:
		return s.forEachJobTrigger(ctx, job.Key, s.errorTrigger)

	default: // quartz.NoInstruction
		return s.settleAfterExecution(ctx, job, t)
	}
}

// settleAfterExecution moves a normally-completed trigger to Completed (if
// its schedule is exhausted), Paused (if its group or job's group has since
// been paused), or Waiting.
func (s *Store) settleAfterExecution(ctx context.Context, job quartz.JobDetail, t quartz.Trigger) error {
	if t.NextFireTime == nil {
		return s.finalizeTrigger(ctx, t)
	}
	paused, err := s.sismember(ctx, s.Schema.PausedTriggerGroupsSet(), t.Key.Group)
	if err != nil {
		return err
	}
	if !paused {
		paused, err = s.IsJobGroupPaused(ctx, job.Key.Group)
		if err != nil {
			return err
		}
	}
	next := quartz.StateWaiting
	if paused {
		next = quartz.StatePaused
	}
	return s.setTriggerState(ctx, t.Key, triggerScore(t), quartz.StateExecuting, next)
}

func (s *Store) finalizeTrigger(ctx context.Context, t quartz.Trigger) error {
	state, err := s.getTriggerState(ctx, t.Key)
	if err != nil {
		return err
	}
	if err := s.setTriggerState(ctx, t.Key, 0, state, quartz.StateCompleted); err != nil {
		return err
	}
	if s.Signaler != nil {
		s.Signaler.NotifySchedulerListenersFinalized(t)
	}
	return nil
}

func (s *Store) errorTrigger(ctx context.Context, t quartz.Trigger) error {
	state, err := s.getTriggerState(ctx, t.Key)
	if err != nil {
		return err
	}
	return s.setTriggerState(ctx, t.Key, triggerScore(t), state, quartz.StateError)
}

// forEachJobTrigger applies fn to every trigger currently registered
// against jobKey.
func (s *Store) forEachJobTrigger(ctx context.Context, jobKey quartz.JobKey, fn func(context.Context, quartz.Trigger) error) error {
	triggers, err := s.TriggersForJob(ctx, jobKey)
	if err != nil {
		return err
	}
	for _, t := range triggers {
		if err := fn(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

// ResetTriggerFromErrorState moves an Error trigger back to Waiting (or
// Paused, if its group is paused), the operation spec §9 leaves for the
// store to fill in: an operator- or scheduler-driven recovery action after
// whatever put the trigger in Error has been fixed.
func (s *Store) ResetTriggerFromErrorState(ctx context.Context, key quartz.TriggerKey) error {
	state, err := s.getTriggerState(ctx, key)
	if err != nil || state != quartz.StateError {
		return err
	}
	t, err := s.RetrieveTrigger(ctx, key)
	if err != nil || t == nil {
		return err
	}
	paused, err := s.sismember(ctx, s.Schema.PausedTriggerGroupsSet(), key.Group)
	if err != nil {
		return err
	}
	next := quartz.StateWaiting
	if paused {
		next = quartz.StatePaused
	}
	return s.setTriggerState(ctx, key, triggerScore(*t), quartz.StateError, next)
}

// clearFiredRecordsFor removes every fired_triggers entry this instance
// holds for key. There is normally at most one (a trigger fires once at a
// time under the distributed mutex), but the scan is written to tolerate
// more without special-casing.
func (s *Store) clearFiredRecordsFor(ctx context.Context, key quartz.TriggerKey) error {
	fields, err := s.smembers(ctx, s.Schema.FiredTriggersByInstanceSet(s.InstanceID))
	if err != nil {
		return err
	}
	for _, field := range fields {
		data, found, err := s.doBytes(ctx, "HGET", s.Schema.FiredTriggersHash(), field)
		if err != nil {
			return err
		}
		if !found {
			continue
		}
		record, err := decodeFireRecord(data)
		if err != nil {
			continue
		}
		if record.TriggerKey != key {
			continue
		}
		if err := s.removeFiredTrigger(ctx, record); err != nil {
			return err
		}
	}
	return nil
}
