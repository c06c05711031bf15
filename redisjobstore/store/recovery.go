package store

import (
	"context"

	"github.com/Dox-Sweden/QuartzRedisJobStore/quartz"
	"github.com/Dox-Sweden/QuartzRedisJobStore/quartz/triggers"
)

// RecoverOrphanedFiredTriggers scans fired_triggers for records whose
// acquisition is older than TriggerLockTimeout, regardless of which
// instance holds them, and reclaims each: the fired record is dropped, a
// @DisallowConcurrentExecution job is unblocked, the trigger returns to
// Waiting (or Completed, if it has no next fire time), and the scheduler is
// signaled so
// an idle waiter re-checks for work (spec §4.4.7, crash recovery).
//
// This is expected to run periodically or on scheduler startup, under the
// same distributed mutex every other mutating call uses.
func (s *Store) RecoverOrphanedFiredTriggers(ctx context.Context) ([]quartz.TriggerKey, error) {
	if s.TriggerLockTimeout <= 0 {
		return nil, nil
	}
	cutoff := s.now().Add(-s.TriggerLockTimeout).UnixMilli()

	raw, err := s.doStringMap(ctx, "HGETALL", s.Schema.FiredTriggersHash())
	if err != nil {
		return nil, err
	}

	var recovered []quartz.TriggerKey
	for _, v := range raw {
		record, err := decodeFireRecord([]byte(v))
		if err != nil {
			continue
		}
		if record.AcquiredAtMillis > cutoff {
			continue
		}
		if err := s.reclaimOrphan(ctx, record); err != nil {
			return recovered, err
		}
		recovered = append(recovered, record.TriggerKey)
	}

	if len(recovered) > 0 && s.Signaler != nil {
		s.Signaler.SignalSchedulingChange(0)
	}
	return recovered, nil
}

func (s *Store) reclaimOrphan(ctx context.Context, record quartz.FiredTrigger) error {
	if err := s.removeFiredTrigger(ctx, record); err != nil {
		return err
	}

	job, err := s.RetrieveJob(ctx, record.JobKey)
	if err != nil {
		return err
	}
	if job != nil && job.DisallowConcurrent {
		if err := s.unblockJob(ctx, job.Key); err != nil {
			return err
		}
	}

	t, err := s.RetrieveTrigger(ctx, record.TriggerKey)
	if err != nil || t == nil {
		return err
	}
	state, err := s.getTriggerState(ctx, t.Key)
	if err != nil || (state != quartz.StateExecuting && state != quartz.StateAcquired) {
		return err
	}

	if job != nil && job.RequestsRecovery {
		if err := s.scheduleRecoveryTrigger(ctx, *job, *t, record); err != nil {
			return err
		}
	}

	if t.NextFireTime == nil {
		return s.finalizeTrigger(ctx, *t)
	}
	return s.setTriggerState(ctx, t.Key, triggerScore(*t), state, quartz.StateWaiting)
}

// scheduleRecoveryTrigger stores a one-shot trigger firing immediately,
// standing in for the execution record's instance was interrupted mid-way
// through (spec §4.4.7: a job with RequestsRecovery must have its lost
// execution redone via "a synthetic recovery trigger with a fresh immediate
// fire time").
func (s *Store) scheduleRecoveryTrigger(ctx context.Context, job quartz.JobDetail, original quartz.Trigger, record quartz.FiredTrigger) error {
	now := s.now()
	name := original.Key.Name + "-recovery-" + record.FireInstanceID
	synthetic := quartz.Trigger{
		Key:          quartz.NewTriggerKey(name, original.Key.Group),
		JobKey:       job.Key,
		Description:  "synthetic recovery trigger for " + original.Key.String(),
		CalendarName: original.CalendarName,
		Priority:     original.Priority,
		Misfire:      quartz.MisfireInstructionFireNow,
		StartTime:    now,
		Schedule:     triggers.NewSimpleWithRepeat(0, 0),
	}
	// Prime the schedule the same way every other new trigger is primed
	// (cmd/redisjobstore-demo/main.go's ComputeFirstFireTime call before
	// StoreJobAndTrigger) rather than hand-setting NextFireTime: Simple's
	// NextFireTime increments firedCount on every call, so skipping this
	// call would leave firedCount at 0 and let the first live Advance in
	// fireOne fire the trigger a second time before it terminates.
	synthetic.ComputeFirstFireTime(now, nil)
	return s.StoreTrigger(ctx, synthetic, false)
}
