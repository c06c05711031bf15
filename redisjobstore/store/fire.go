package store

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/Dox-Sweden/QuartzRedisJobStore/quartz"
)

// FireResult pairs a fired trigger's post-fire snapshot with its job, the
// calendar resolved by name (if any), and the unique id this particular fire
// is tracked under in fired_triggers (spec §4.4.3).
type FireResult struct {
	Trigger        quartz.Trigger
	Job            quartz.JobDetail
	Calendar       *quartz.Calendar
	FireInstanceID string
}

// TriggersFired confirms execution of Acquired triggers, transitioning each
// to Executing, advancing its schedule, recording a FiredTrigger for crash
// recovery, and (for @DisallowConcurrentExecution jobs) blocking every
// sibling trigger of the same job. Triggers no longer in Acquired state
// (paused, deleted, or already fired concurrently) are silently omitted from
// the result, matching the upward SPI's tolerance for stale acquisitions. An
// Acquired trigger whose @DisallowConcurrentExecution job is already
// executing is also omitted; it moves to Blocked instead of firing.
func (s *Store) TriggersFired(ctx context.Context, triggers []quartz.Trigger) ([]FireResult, error) {
	results := make([]FireResult, 0, len(triggers))
	for _, t := range triggers {
		res, ok, err := s.fireOne(ctx, t)
		if err != nil {
			return results, err
		}
		if ok {
			results = append(results, res)
		}
	}
	return results, nil
}

func (s *Store) fireOne(ctx context.Context, acquired quartz.Trigger) (FireResult, bool, error) {
	state, err := s.getTriggerState(ctx, acquired.Key)
	if err != nil || state != quartz.StateAcquired {
		return FireResult{}, false, err
	}
	job, err := s.RetrieveJob(ctx, acquired.JobKey)
	if err != nil || job == nil {
		return FireResult{}, false, err
	}
	t, err := s.RetrieveTrigger(ctx, acquired.Key)
	if err != nil || t == nil {
		return FireResult{}, false, err
	}
	if job.DisallowConcurrent {
		// A sibling already fired this job: hold this trigger in Blocked
		// until unblockJob releases it when that execution completes.
		blocked, err := s.sismember(ctx, s.Schema.BlockedJobsSet(), s.Schema.EncodeJobKey(job.Key))
		if err != nil {
			return FireResult{}, false, err
		}
		if blocked {
			return FireResult{}, false, s.setTriggerState(ctx, t.Key, triggerScore(*t), state, quartz.StateBlocked)
		}
	}
	cal, err := s.resolveCalendar(ctx, t.CalendarName)
	if err != nil {
		return FireResult{}, false, err
	}

	firedAt := t.NextFireTime
	if firedAt == nil {
		now := s.now()
		firedAt = &now
	}
	t.PreviousFireTime = firedAt
	t.Advance(*firedAt, calendarImpl(cal))

	if err := s.persistFiredTrigger(ctx, t, state); err != nil {
		return FireResult{}, false, err
	}

	fireInstanceID := uuid.New().String()
	acquiredAtMillis := s.now().UnixMilli()
	record := quartz.FiredTrigger{
		TriggerKey:                t.Key,
		JobKey:                    t.JobKey,
		InstanceID:                s.InstanceID,
		AcquiredAtMillis:          acquiredAtMillis,
		FireInstanceID:            fireInstanceID,
		NextFireTimeAtAcquisition: firedAt.UnixMilli(),
		State:                     quartz.StateExecuting,
	}
	if err := s.writeFiredTrigger(ctx, record); err != nil {
		return FireResult{}, false, err
	}

	if job.DisallowConcurrent {
		if err := s.blockJob(ctx, job.Key, t.Key); err != nil {
			return FireResult{}, false, err
		}
	}

	return FireResult{Trigger: *t, Job: *job, Calendar: cal, FireInstanceID: fireInstanceID}, true, nil
}

// persistFiredTrigger writes t's advanced schedule back and moves it from
// Acquired to Executing (which carries no scan-index entry, spec §4.1).
func (s *Store) persistFiredTrigger(ctx context.Context, t *quartz.Trigger, oldState quartz.TriggerState) error {
	encoded, err := s.Serializer.EncodeTrigger(*t)
	if err != nil {
		return err
	}
	if _, err := s.do(ctx, "HSET", s.Schema.TriggerHash(t.Key), "detail", encoded); err != nil {
		return err
	}
	return s.setTriggerState(ctx, t.Key, triggerScore(*t), oldState, quartz.StateExecuting)
}

// blockJob adds jobKey to blocked_jobs and moves every other Waiting/Paused
// trigger of that job to Blocked/PausedAndBlocked (spec §4.4.3,
// @DisallowConcurrentExecution).
func (s *Store) blockJob(ctx context.Context, jobKey quartz.JobKey, firingTrigger quartz.TriggerKey) error {
	if err := s.sadd(ctx, s.Schema.BlockedJobsSet(), s.Schema.EncodeJobKey(jobKey)); err != nil {
		return err
	}
	siblings, err := s.TriggersForJob(ctx, jobKey)
	if err != nil {
		return err
	}
	for _, sib := range siblings {
		if sib.Key == firingTrigger {
			continue
		}
		state, err := s.getTriggerState(ctx, sib.Key)
		if err != nil {
			return err
		}
		var next quartz.TriggerState
		switch state {
		case quartz.StateWaiting:
			next = quartz.StateBlocked
		case quartz.StatePaused:
			next = quartz.StatePausedAndBlocked
		default:
			continue
		}
		if err := s.setTriggerState(ctx, sib.Key, triggerScore(sib), state, next); err != nil {
			return err
		}
	}
	return nil
}

// unblockJob removes jobKey from blocked_jobs and moves every
// Blocked/PausedAndBlocked sibling back to Waiting/Paused (spec §4.4.4).
func (s *Store) unblockJob(ctx context.Context, jobKey quartz.JobKey) error {
	if err := s.srem(ctx, s.Schema.BlockedJobsSet(), s.Schema.EncodeJobKey(jobKey)); err != nil {
		return err
	}
	siblings, err := s.TriggersForJob(ctx, jobKey)
	if err != nil {
		return err
	}
	for _, sib := range siblings {
		state, err := s.getTriggerState(ctx, sib.Key)
		if err != nil {
			return err
		}
		var next quartz.TriggerState
		switch state {
		case quartz.StateBlocked:
			next = quartz.StateWaiting
		case quartz.StatePausedAndBlocked:
			next = quartz.StatePaused
		default:
			continue
		}
		if err := s.setTriggerState(ctx, sib.Key, triggerScore(sib), state, next); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) writeFiredTrigger(ctx context.Context, r quartz.FiredTrigger) error {
	field := s.Schema.FiredTriggerField(r.TriggerKey, r.InstanceID, r.AcquiredAtMillis)
	encoded, err := json.Marshal(fireRecordWire{
		TriggerGroup:              r.TriggerKey.Group,
		TriggerName:               r.TriggerKey.Name,
		JobGroup:                  r.JobKey.Group,
		JobName:                   r.JobKey.Name,
		InstanceID:                r.InstanceID,
		AcquiredAtMillis:          r.AcquiredAtMillis,
		FireInstanceID:            r.FireInstanceID,
		NextFireTimeAtAcquisition: r.NextFireTimeAtAcquisition,
		State:                     r.State.String(),
	})
	if err != nil {
		return err
	}
	if _, err := s.do(ctx, "HSET", s.Schema.FiredTriggersHash(), field, encoded); err != nil {
		return err
	}
	return s.sadd(ctx, s.Schema.FiredTriggersByInstanceSet(r.InstanceID), field)
}

func (s *Store) removeFiredTrigger(ctx context.Context, r quartz.FiredTrigger) error {
	field := s.Schema.FiredTriggerField(r.TriggerKey, r.InstanceID, r.AcquiredAtMillis)
	if _, err := s.do(ctx, "HDEL", s.Schema.FiredTriggersHash(), field); err != nil {
		return err
	}
	return s.srem(ctx, s.Schema.FiredTriggersByInstanceSet(r.InstanceID), field)
}

// fireRecordWire is the JSON wire shape for a fired_triggers hash entry.
// FiredTrigger is not one of the pluggable Serializer's three types (spec
// §4.2 covers Job/Trigger/Calendar only), so it always travels as JSON.
type fireRecordWire struct {
	TriggerGroup              string `json:"trigger_group"`
	TriggerName               string `json:"trigger_name"`
	JobGroup                  string `json:"job_group"`
	JobName                   string `json:"job_name"`
	InstanceID                string `json:"instance_id"`
	AcquiredAtMillis          int64  `json:"acquired_at_millis"`
	FireInstanceID            string `json:"fire_instance_id"`
	NextFireTimeAtAcquisition int64  `json:"next_fire_time_at_acquisition"`
	State                     string `json:"state"`
}

func decodeFireRecord(data []byte) (quartz.FiredTrigger, error) {
	var w fireRecordWire
	if err := json.Unmarshal(data, &w); err != nil {
		return quartz.FiredTrigger{}, err
	}
	return quartz.FiredTrigger{
		TriggerKey:                quartz.TriggerKey{Group: w.TriggerGroup, Name: w.TriggerName},
		JobKey:                    quartz.JobKey{Group: w.JobGroup, Name: w.JobName},
		InstanceID:                w.InstanceID,
		AcquiredAtMillis:          w.AcquiredAtMillis,
		FireInstanceID:            w.FireInstanceID,
		NextFireTimeAtAcquisition: w.NextFireTimeAtAcquisition,
		State:                     parseState(w.State),
	}, nil
}
