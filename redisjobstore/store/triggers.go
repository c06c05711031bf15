package store

import (
	"context"

	"github.com/Dox-Sweden/QuartzRedisJobStore/errs"
	"github.com/Dox-Sweden/QuartzRedisJobStore/quartz"
)

// getTriggerState returns the trigger's current state, or StateNone if the
// trigger does not exist. It reads the redundant "state" field the trigger
// hash carries (spec §4.1's sorted sets remain authoritative for scanning;
// this field just makes point lookups O(1) instead of probing every set).
func (s *Store) getTriggerState(ctx context.Context, key quartz.TriggerKey) (quartz.TriggerState, error) {
	raw, found, err := s.doBytes(ctx, "HGET", s.Schema.TriggerHash(key), "state")
	if err != nil || !found {
		return quartz.StateNone, err
	}
	return parseState(string(raw)), nil
}

var allStates = append([]quartz.TriggerState{quartz.StateExecuting}, quartz.ScannableStates...)

func parseState(s string) quartz.TriggerState {
	for _, st := range allStates {
		if st.String() == s {
			return st
		}
	}
	return quartz.StateNone
}

// setTriggerState moves a trigger from oldState (StateNone if it has none
// yet) to newState: updates the scan index and the point-lookup field in one
// place so the two never drift apart.
func (s *Store) setTriggerState(ctx context.Context, key quartz.TriggerKey, score float64, oldState, newState quartz.TriggerState) error {
	encoded := s.Schema.EncodeTriggerKey(key)
	if oldState != quartz.StateNone && oldState != newState {
		if err := s.zrem(ctx, s.Schema.TriggerStateSet(oldState), encoded); err != nil {
			return err
		}
	}
	if newState != quartz.StateExecuting {
		if err := s.zadd(ctx, s.Schema.TriggerStateSet(newState), score, encoded); err != nil {
			return err
		}
	}
	_, err := s.do(ctx, "HSET", s.Schema.TriggerHash(key), "state", newState.String())
	return err
}

// GetTriggerState implements the enumeration SPI (spec §4.4.8): None if the
// trigger does not exist, otherwise its current state-machine state.
func (s *Store) GetTriggerState(ctx context.Context, key quartz.TriggerKey) (quartz.TriggerState, error) {
	return s.getTriggerState(ctx, key)
}

// initialTriggerState computes the state a freshly stored trigger should
// enter, honoring pause and @DisallowConcurrentExecution blocking (spec
// §4.4.1, §4.4.6).
func (s *Store) initialTriggerState(ctx context.Context, job *quartz.JobDetail, t quartz.Trigger) (quartz.TriggerState, error) {
	triggerPaused, err := s.sismember(ctx, s.Schema.PausedTriggerGroupsSet(), t.Key.Group)
	if err != nil {
		return quartz.StateNone, err
	}
	jobPaused := false
	if job != nil {
		jobPaused, err = s.IsJobGroupPaused(ctx, job.Key.Group)
		if err != nil {
			return quartz.StateNone, err
		}
	}
	paused := triggerPaused || jobPaused

	blocked := false
	if job != nil && job.DisallowConcurrent {
		blocked, err = s.sismember(ctx, s.Schema.BlockedJobsSet(), s.Schema.EncodeJobKey(job.Key))
		if err != nil {
			return quartz.StateNone, err
		}
	}

	switch {
	case paused && blocked:
		return quartz.StatePausedAndBlocked, nil
	case paused:
		return quartz.StatePaused, nil
	case blocked:
		return quartz.StateBlocked, nil
	default:
		return quartz.StateWaiting, nil
	}
}

// StoreTrigger persists t, wiring it into its job's, group's, and (if set)
// calendar's index sets and placing it in its initial state-machine state.
func (s *Store) StoreTrigger(ctx context.Context, t quartz.Trigger, replace bool) error {
	encodedKey := s.Schema.EncodeTriggerKey(t.Key)

	existed, err := s.sismember(ctx, s.Schema.TriggersSet(), encodedKey)
	if err != nil {
		return err
	}
	if existed && !replace {
		return errs.AlreadyExists("trigger", t.Key.String())
	}

	job, err := s.RetrieveJob(ctx, t.JobKey)
	if err != nil {
		return err
	}
	if job == nil {
		return errs.ConstraintViolation("trigger " + t.Key.String() + " references unknown job " + t.JobKey.String())
	}

	if t.CalendarName != "" {
		calExists, err := s.CheckCalendarExists(ctx, t.CalendarName)
		if err != nil {
			return err
		}
		if !calExists {
			return errs.ConstraintViolation("trigger " + t.Key.String() + " references unknown calendar " + t.CalendarName)
		}
	}

	if existed {
		if err := s.clearTriggerIndexEntries(ctx, t.Key); err != nil {
			return err
		}
	}

	return s.writeTrigger(ctx, job, t)
}

// writeTrigger encodes and indexes t assuming any prior index entries for
// t.Key have already been cleared.
func (s *Store) writeTrigger(ctx context.Context, job *quartz.JobDetail, t quartz.Trigger) error {
	encoded, err := s.Serializer.EncodeTrigger(t)
	if err != nil {
		return errs.Decode("trigger", t.Key.String(), err)
	}
	if _, err := s.do(ctx, "HSET", s.Schema.TriggerHash(t.Key), "detail", encoded); err != nil {
		return err
	}

	state, err := s.initialTriggerState(ctx, job, t)
	if err != nil {
		return err
	}
	if err := s.setTriggerState(ctx, t.Key, triggerScore(t), quartz.StateNone, state); err != nil {
		return err
	}

	encodedKey := s.Schema.EncodeTriggerKey(t.Key)
	if err := s.sadd(ctx, s.Schema.TriggersSet(), encodedKey); err != nil {
		return err
	}
	if err := s.sadd(ctx, s.Schema.TriggerGroupSet(t.Key.Group), t.Key.Name); err != nil {
		return err
	}
	if err := s.sadd(ctx, s.Schema.TriggerGroupsSet(), t.Key.Group); err != nil {
		return err
	}
	if err := s.sadd(ctx, s.Schema.JobTriggersSet(t.JobKey), encodedKey); err != nil {
		return err
	}
	if t.CalendarName != "" {
		if err := s.sadd(ctx, s.Schema.CalendarTriggersSet(t.CalendarName), encodedKey); err != nil {
			return err
		}
	}
	return nil
}

// clearTriggerIndexEntries removes every index membership for an existing
// trigger (state set, job_triggers, calendar_triggers) ahead of a
// replace/remove, leaving the trigger/triggers/trigger_group sets alone since
// the caller decides whether those survive.
func (s *Store) clearTriggerIndexEntries(ctx context.Context, key quartz.TriggerKey) error {
	old, err := s.RetrieveTrigger(ctx, key)
	if err != nil || old == nil {
		return err
	}
	state, err := s.getTriggerState(ctx, key)
	if err != nil {
		return err
	}
	if state != quartz.StateNone {
		if err := s.zrem(ctx, s.Schema.TriggerStateSet(state), s.Schema.EncodeTriggerKey(key)); err != nil {
			return err
		}
	}
	if err := s.srem(ctx, s.Schema.JobTriggersSet(old.JobKey), s.Schema.EncodeTriggerKey(key)); err != nil {
		return err
	}
	if old.CalendarName != "" {
		if err := s.srem(ctx, s.Schema.CalendarTriggersSet(old.CalendarName), s.Schema.EncodeTriggerKey(key)); err != nil {
			return err
		}
	}
	return nil
}

// RetrieveTrigger returns the trigger stored under key, or nil if absent.
func (s *Store) RetrieveTrigger(ctx context.Context, key quartz.TriggerKey) (*quartz.Trigger, error) {
	data, found, err := s.doBytes(ctx, "HGET", s.Schema.TriggerHash(key), "detail")
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	t, err := s.Serializer.DecodeTrigger(data)
	if err != nil {
		return nil, errs.Decode("trigger", key.String(), err)
	}
	t.Key = key
	return &t, nil
}

// CheckTriggerExists reports whether a trigger is registered under key.
func (s *Store) CheckTriggerExists(ctx context.Context, key quartz.TriggerKey) (bool, error) {
	return s.sismember(ctx, s.Schema.TriggersSet(), s.Schema.EncodeTriggerKey(key))
}

// RemoveTrigger deletes the trigger. If removing it leaves its job with no
// remaining triggers and the job is not durable, the job is deleted too
// (spec §3's definition of Durable).
func (s *Store) RemoveTrigger(ctx context.Context, key quartz.TriggerKey) (bool, error) {
	t, err := s.RetrieveTrigger(ctx, key)
	if err != nil {
		return false, err
	}
	if t == nil {
		return false, nil
	}

	if err := s.clearTriggerIndexEntries(ctx, key); err != nil {
		return false, err
	}
	if _, err := s.do(ctx, "DEL", s.Schema.TriggerHash(key)); err != nil {
		return false, err
	}
	if err := s.srem(ctx, s.Schema.TriggersSet(), s.Schema.EncodeTriggerKey(key)); err != nil {
		return false, err
	}
	if err := s.srem(ctx, s.Schema.TriggerGroupSet(key.Group), key.Name); err != nil {
		return false, err
	}
	remaining, err := s.scard(ctx, s.Schema.TriggerGroupSet(key.Group))
	if err != nil {
		return false, err
	}
	if remaining == 0 {
		if err := s.srem(ctx, s.Schema.TriggerGroupsSet(), key.Group); err != nil {
			return false, err
		}
	}

	left, err := s.scard(ctx, s.Schema.JobTriggersSet(t.JobKey))
	if err != nil {
		return false, err
	}
	if left == 0 {
		job, err := s.RetrieveJob(ctx, t.JobKey)
		if err != nil {
			return false, err
		}
		if job != nil && !job.Durable {
			if _, err := s.RemoveJob(ctx, t.JobKey); err != nil {
				return false, err
			}
		}
	}
	return true, nil
}

// RemoveTriggers removes every trigger in keys, reporting true only if all
// of them existed.
func (s *Store) RemoveTriggers(ctx context.Context, keys []quartz.TriggerKey) (bool, error) {
	allFound := true
	for _, k := range keys {
		found, err := s.RemoveTrigger(ctx, k)
		if err != nil {
			return false, err
		}
		allFound = allFound && found
	}
	return allFound, nil
}

// ReplaceTrigger swaps the trigger stored under key for newTrigger, which
// may point at a different job. It reports false if key did not exist.
func (s *Store) ReplaceTrigger(ctx context.Context, key quartz.TriggerKey, newTrigger quartz.Trigger) (bool, error) {
	old, err := s.RetrieveTrigger(ctx, key)
	if err != nil || old == nil {
		return false, err
	}
	if err := s.clearTriggerIndexEntries(ctx, key); err != nil {
		return false, err
	}
	if key != newTrigger.Key {
		if err := s.srem(ctx, s.Schema.TriggersSet(), s.Schema.EncodeTriggerKey(key)); err != nil {
			return false, err
		}
		if err := s.srem(ctx, s.Schema.TriggerGroupSet(key.Group), key.Name); err != nil {
			return false, err
		}
		if _, err := s.do(ctx, "DEL", s.Schema.TriggerHash(key)); err != nil {
			return false, err
		}
	}

	job, err := s.RetrieveJob(ctx, newTrigger.JobKey)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, errs.ConstraintViolation("replacement trigger references unknown job " + newTrigger.JobKey.String())
	}
	if err := s.writeTrigger(ctx, job, newTrigger); err != nil {
		return false, err
	}
	return true, nil
}

// NumberOfTriggers returns the total count of distinct triggers.
func (s *Store) NumberOfTriggers(ctx context.Context) (int, error) {
	n, err := s.scard(ctx, s.Schema.TriggersSet())
	return int(n), err
}

// TriggerGroupNames lists every group name with at least one trigger.
func (s *Store) TriggerGroupNames(ctx context.Context) ([]string, error) {
	return s.smembers(ctx, s.Schema.TriggerGroupsSet())
}

// IsTriggerGroupPaused reports whether group is currently paused.
func (s *Store) IsTriggerGroupPaused(ctx context.Context, group string) (bool, error) {
	return s.sismember(ctx, s.Schema.PausedTriggerGroupsSet(), group)
}

// TriggerKeys returns every trigger key whose group satisfies matcher.
func (s *Store) TriggerKeys(ctx context.Context, matcher quartz.GroupMatcher) ([]quartz.TriggerKey, error) {
	groups, err := s.TriggerGroupNames(ctx)
	if err != nil {
		return nil, err
	}
	var out []quartz.TriggerKey
	for _, g := range groups {
		if !matcher.Matches(g) {
			continue
		}
		names, err := s.smembers(ctx, s.Schema.TriggerGroupSet(g))
		if err != nil {
			return nil, err
		}
		for _, n := range names {
			out = append(out, quartz.TriggerKey{Group: g, Name: n})
		}
	}
	return out, nil
}
