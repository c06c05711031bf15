package store

import (
	"context"

	"github.com/Dox-Sweden/QuartzRedisJobStore/quartz"
)

// pausedStateFor maps a trigger's current state to the state it enters
// when paused (spec §4.4.6). States with no defined pause transition are
// returned unchanged.
func pausedStateFor(state quartz.TriggerState) quartz.TriggerState {
	switch state {
	case quartz.StateBlocked:
		return quartz.StatePausedAndBlocked
	case quartz.StateWaiting, quartz.StateError:
		return quartz.StatePaused
	default:
		return state
	}
}

// resumedStateFor maps PausedAndBlocked back to Blocked and Paused back to
// Waiting (a paused Error trigger therefore resumes as Waiting); any other state is left unchanged (resuming a trigger that was
// never paused is a no-op).
func resumedStateFor(state quartz.TriggerState) quartz.TriggerState {
	switch state {
	case quartz.StatePausedAndBlocked:
		return quartz.StateBlocked
	case quartz.StatePaused:
		return quartz.StateWaiting
	default:
		return state
	}
}

// PauseTrigger moves the named trigger into Paused (or PausedAndBlocked if
// it is currently Blocked). A missing trigger is a silent no-op.
func (s *Store) PauseTrigger(ctx context.Context, key quartz.TriggerKey) error {
	state, err := s.getTriggerState(ctx, key)
	if err != nil || state == quartz.StateNone {
		return err
	}
	next := pausedStateFor(state)
	if next == state {
		return nil
	}
	t, err := s.RetrieveTrigger(ctx, key)
	if err != nil || t == nil {
		return err
	}
	return s.setTriggerState(ctx, key, triggerScore(*t), state, next)
}

// ResumeTrigger moves the named trigger out of Paused/PausedAndBlocked. A
// missing or not-currently-paused trigger is a silent no-op.
func (s *Store) ResumeTrigger(ctx context.Context, key quartz.TriggerKey) error {
	state, err := s.getTriggerState(ctx, key)
	if err != nil || state == quartz.StateNone {
		return err
	}
	next := resumedStateFor(state)
	if next == state {
		return nil
	}
	t, err := s.RetrieveTrigger(ctx, key)
	if err != nil || t == nil {
		return err
	}
	return s.setTriggerState(ctx, key, triggerScore(*t), state, next)
}

// matchedGroups returns the known group names (from allGroups) that satisfy
// matcher, plus matcher.Value itself when the operator is MatchEquals — so
// pausing a not-yet-populated group still takes effect for triggers/jobs
// added to it later.
func matchedGroups(matcher quartz.GroupMatcher, allGroups []string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, g := range allGroups {
		if matcher.Matches(g) {
			if _, dup := seen[g]; !dup {
				seen[g] = struct{}{}
				out = append(out, g)
			}
		}
	}
	if matcher.Operator == quartz.MatchEquals {
		if _, dup := seen[matcher.Value]; !dup {
			out = append(out, matcher.Value)
		}
	}
	return out
}

// PauseTriggers pauses every trigger in every group matching matcher and
// records those groups as paused so triggers stored into them later also
// start paused. It returns the matched group names.
func (s *Store) PauseTriggers(ctx context.Context, matcher quartz.GroupMatcher) ([]string, error) {
	known, err := s.TriggerGroupNames(ctx)
	if err != nil {
		return nil, err
	}
	groups := matchedGroups(matcher, known)
	for _, g := range groups {
		if err := s.sadd(ctx, s.Schema.PausedTriggerGroupsSet(), g); err != nil {
			return nil, err
		}
		names, err := s.smembers(ctx, s.Schema.TriggerGroupSet(g))
		if err != nil {
			return nil, err
		}
		for _, n := range names {
			if err := s.PauseTrigger(ctx, quartz.TriggerKey{Group: g, Name: n}); err != nil {
				return nil, err
			}
		}
	}
	return groups, nil
}

// ResumeTriggers is the inverse of PauseTriggers.
func (s *Store) ResumeTriggers(ctx context.Context, matcher quartz.GroupMatcher) ([]string, error) {
	known, err := s.TriggerGroupNames(ctx)
	if err != nil {
		return nil, err
	}
	groups := matchedGroups(matcher, known)
	for _, g := range groups {
		if err := s.srem(ctx, s.Schema.PausedTriggerGroupsSet(), g); err != nil {
			return nil, err
		}
		names, err := s.smembers(ctx, s.Schema.TriggerGroupSet(g))
		if err != nil {
			return nil, err
		}
		for _, n := range names {
			if err := s.ResumeTrigger(ctx, quartz.TriggerKey{Group: g, Name: n}); err != nil {
				return nil, err
			}
		}
	}
	return groups, nil
}

// PauseJob pauses every trigger currently registered against key.
func (s *Store) PauseJob(ctx context.Context, key quartz.JobKey) error {
	triggers, err := s.TriggersForJob(ctx, key)
	if err != nil {
		return err
	}
	for _, t := range triggers {
		if err := s.PauseTrigger(ctx, t.Key); err != nil {
			return err
		}
	}
	return nil
}

// ResumeJob resumes every trigger currently registered against key.
func (s *Store) ResumeJob(ctx context.Context, key quartz.JobKey) error {
	triggers, err := s.TriggersForJob(ctx, key)
	if err != nil {
		return err
	}
	for _, t := range triggers {
		if err := s.ResumeTrigger(ctx, t.Key); err != nil {
			return err
		}
	}
	return nil
}

// PauseJobs pauses every job in every group matching matcher (and every
// trigger belonging to those jobs), recording the groups as paused for jobs
// stored into them later.
func (s *Store) PauseJobs(ctx context.Context, matcher quartz.GroupMatcher) ([]string, error) {
	known, err := s.JobGroupNames(ctx)
	if err != nil {
		return nil, err
	}
	groups := matchedGroups(matcher, known)
	for _, g := range groups {
		if err := s.sadd(ctx, s.Schema.PausedJobGroupsSet(), g); err != nil {
			return nil, err
		}
		names, err := s.smembers(ctx, s.Schema.JobGroupSet(g))
		if err != nil {
			return nil, err
		}
		for _, n := range names {
			if err := s.PauseJob(ctx, quartz.JobKey{Group: g, Name: n}); err != nil {
				return nil, err
			}
		}
	}
	return groups, nil
}

// ResumeJobs is the inverse of PauseJobs.
func (s *Store) ResumeJobs(ctx context.Context, matcher quartz.GroupMatcher) ([]string, error) {
	known, err := s.JobGroupNames(ctx)
	if err != nil {
		return nil, err
	}
	groups := matchedGroups(matcher, known)
	for _, g := range groups {
		if err := s.srem(ctx, s.Schema.PausedJobGroupsSet(), g); err != nil {
			return nil, err
		}
		names, err := s.smembers(ctx, s.Schema.JobGroupSet(g))
		if err != nil {
			return nil, err
		}
		for _, n := range names {
			if err := s.ResumeJob(ctx, quartz.JobKey{Group: g, Name: n}); err != nil {
				return nil, err
			}
		}
	}
	return groups, nil
}

// PausedTriggerGroups lists every currently paused trigger group.
func (s *Store) PausedTriggerGroups(ctx context.Context) ([]string, error) {
	return s.smembers(ctx, s.Schema.PausedTriggerGroupsSet())
}

// PauseAll pauses every currently known trigger group.
func (s *Store) PauseAll(ctx context.Context) error {
	_, err := s.PauseTriggers(ctx, quartz.AnyGroup())
	return err
}

// ResumeAll resumes every currently known trigger group. A group in the
// paused set that has no triggers is not a known group and stays paused.
func (s *Store) ResumeAll(ctx context.Context) error {
	_, err := s.ResumeTriggers(ctx, quartz.AnyGroup())
	return err
}
