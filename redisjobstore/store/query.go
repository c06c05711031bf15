package store

import (
	"context"

	"github.com/Dox-Sweden/QuartzRedisJobStore/quartz"
)

// ClearAllSchedulingData deletes every job, trigger, and calendar this
// Schema's prefix owns, along with every index and bookkeeping structure
// (spec §4.4.8); of the per-instance fired_triggers sets, only this
// instance's own is deleted. It walks the known collections rather than issuing a
// pattern DEL, since the KV interface intentionally exposes no KEYS/SCAN
// surface (spec §1 Non-goals: no reliance on key-pattern scanning).
func (s *Store) ClearAllSchedulingData(ctx context.Context) error {
	jobGroups, err := s.JobGroupNames(ctx)
	if err != nil {
		return err
	}
	for _, g := range jobGroups {
		names, err := s.smembers(ctx, s.Schema.JobGroupSet(g))
		if err != nil {
			return err
		}
		for _, n := range names {
			key := quartz.JobKey{Group: g, Name: n}
			if _, err := s.do(ctx, "DEL", s.Schema.JobHash(key), s.Schema.JobDataMapHash(key), s.Schema.JobTriggersSet(key)); err != nil {
				return err
			}
		}
		if _, err := s.do(ctx, "DEL", s.Schema.JobGroupSet(g)); err != nil {
			return err
		}
	}

	triggerGroups, err := s.TriggerGroupNames(ctx)
	if err != nil {
		return err
	}
	for _, g := range triggerGroups {
		names, err := s.smembers(ctx, s.Schema.TriggerGroupSet(g))
		if err != nil {
			return err
		}
		for _, n := range names {
			key := quartz.TriggerKey{Group: g, Name: n}
			if _, err := s.do(ctx, "DEL", s.Schema.TriggerHash(key)); err != nil {
				return err
			}
		}
		if _, err := s.do(ctx, "DEL", s.Schema.TriggerGroupSet(g)); err != nil {
			return err
		}
	}

	calendars, err := s.CalendarNames(ctx)
	if err != nil {
		return err
	}
	for _, name := range calendars {
		if _, err := s.do(ctx, "DEL", s.Schema.CalendarString(name), s.Schema.CalendarTriggersSet(name)); err != nil {
			return err
		}
	}

	for _, state := range append([]quartz.TriggerState{quartz.StateExecuting}, quartz.ScannableStates...) {
		if _, err := s.do(ctx, "DEL", s.Schema.TriggerStateSet(state)); err != nil {
			return err
		}
	}

	_, err = s.do(ctx, "DEL",
		s.Schema.JobsSet(), s.Schema.TriggersSet(),
		s.Schema.JobGroupsSet(), s.Schema.TriggerGroupsSet(),
		s.Schema.CalendarsSet(),
		s.Schema.PausedJobGroupsSet(), s.Schema.PausedTriggerGroupsSet(),
		s.Schema.BlockedJobsSet(), s.Schema.FiredTriggersHash(),
		s.Schema.FiredTriggersByInstanceSet(s.InstanceID),
	)
	return err
}
