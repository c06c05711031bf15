package store

import (
	"context"
	"time"

	"github.com/Dox-Sweden/QuartzRedisJobStore/quartz"
)

// applyMisfireIfDue checks whether t's next fire time is more than
// MisfireThreshold behind now and, if so, applies t's declared
// MisfireInstruction (spec §4.4.5). It reports whether t was misfired and is
// therefore no longer eligible for acquisition this round.
func (s *Store) applyMisfireIfDue(ctx context.Context, t *quartz.Trigger, now time.Time) (bool, error) {
	if t.NextFireTime == nil {
		return false, nil
	}
	if s.MisfireThreshold <= 0 {
		return false, nil
	}
	if now.Sub(*t.NextFireTime) <= s.MisfireThreshold {
		return false, nil
	}

	s.notifyMisfired(*t)

	switch t.Misfire {
	case quartz.MisfireInstructionDoNothing:
		// Leave the trigger exactly where it is; it stays Waiting with its
		// stale score and will be reconsidered on the next acquisition pass.
		return true, nil

	case quartz.MisfireInstructionSetNextFireTime:
		cal, err := s.resolveCalendar(ctx, t.CalendarName)
		if err != nil {
			return false, err
		}
		t.Advance(now.Add(-time.Nanosecond), calendarImpl(cal))
		if err := s.persistRescheduled(ctx, t); err != nil {
			return false, err
		}
		return true, nil

	case quartz.MisfireInstructionFireNow:
		fallthrough
	default:
		// Fire now: the caller proceeds to acquire it unchanged.
		return false, nil
	}
}

func (s *Store) notifyMisfired(t quartz.Trigger) {
	if s.Signaler != nil {
		s.Signaler.NotifySchedulerListenersMisfired(t)
	}
}

// persistRescheduled writes back t's new NextFireTime and re-scores it in
// whichever state set it currently occupies. If Advance terminated the
// trigger (NextFireTime == nil), it is moved to Completed and finalized.
func (s *Store) persistRescheduled(ctx context.Context, t *quartz.Trigger) error {
	state, err := s.getTriggerState(ctx, t.Key)
	if err != nil {
		return err
	}
	encoded, err := s.Serializer.EncodeTrigger(*t)
	if err != nil {
		return err
	}
	if _, err := s.do(ctx, "HSET", s.Schema.TriggerHash(t.Key), "detail", encoded); err != nil {
		return err
	}
	if t.NextFireTime == nil {
		if err := s.setTriggerState(ctx, t.Key, 0, state, quartz.StateCompleted); err != nil {
			return err
		}
		if s.Signaler != nil {
			s.Signaler.NotifySchedulerListenersFinalized(*t)
		}
		return nil
	}
	return s.setTriggerState(ctx, t.Key, triggerScore(*t), state, state)
}
