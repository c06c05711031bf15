package store

import (
	"context"
	"strconv"
	"time"

	"github.com/Dox-Sweden/QuartzRedisJobStore/errs"
	"github.com/Dox-Sweden/QuartzRedisJobStore/quartz"
)

// StoreCalendar persists cal under name. If updateTriggers is true, every
// trigger currently referencing this calendar has its next-fire-time
// recomputed against the new calendar (spec §3, Calendar's "excludes fire
// times" semantics changing underfoot).
func (s *Store) StoreCalendar(ctx context.Context, name string, cal quartz.Calendar, replace, updateTriggers bool) error {
	if !replace {
		exists, err := s.sismember(ctx, s.Schema.CalendarsSet(), name)
		if err != nil {
			return err
		}
		if exists {
			return errs.AlreadyExists("calendar", name)
		}
	}

	encoded, err := s.Serializer.EncodeCalendar(cal)
	if err != nil {
		return errs.Decode("calendar", name, err)
	}
	if _, err := s.do(ctx, "SET", s.Schema.CalendarString(name), encoded); err != nil {
		return err
	}
	if err := s.sadd(ctx, s.Schema.CalendarsSet(), name); err != nil {
		return err
	}

	if !updateTriggers {
		return nil
	}
	members, err := s.smembers(ctx, s.Schema.CalendarTriggersSet(name))
	if err != nil {
		return err
	}
	for _, m := range members {
		tk, ok := s.Schema.DecodeTriggerKey(m)
		if !ok {
			continue
		}
		t, err := s.RetrieveTrigger(ctx, tk)
		if err != nil || t == nil {
			continue
		}
		t.Advance(s.now().Add(-time.Nanosecond), cal.Impl)
		state, err := s.getTriggerState(ctx, tk)
		if err != nil {
			return err
		}
		if err := s.setTriggerState(ctx, tk, triggerScore(*t), state, state); err != nil {
			return err
		}
		encoded, err := s.Serializer.EncodeTrigger(*t)
		if err != nil {
			return errs.Decode("trigger", tk.String(), err)
		}
		if _, err := s.do(ctx, "HSET", s.Schema.TriggerHash(tk), "detail", encoded); err != nil {
			return err
		}
	}
	return nil
}

// RetrieveCalendar returns the calendar stored under name, or nil if absent.
func (s *Store) RetrieveCalendar(ctx context.Context, name string) (*quartz.Calendar, error) {
	data, found, err := s.doBytes(ctx, "GET", s.Schema.CalendarString(name))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	cal, err := s.Serializer.DecodeCalendar(data)
	if err != nil {
		return nil, errs.Decode("calendar", name, err)
	}
	cal.Name = name
	return &cal, nil
}

// CheckCalendarExists reports whether a calendar is registered under name.
func (s *Store) CheckCalendarExists(ctx context.Context, name string) (bool, error) {
	return s.sismember(ctx, s.Schema.CalendarsSet(), name)
}

// RemoveCalendar deletes the calendar, refusing if any trigger still
// references it (spec invariant: a calendar in use cannot be removed).
func (s *Store) RemoveCalendar(ctx context.Context, name string) (bool, error) {
	exists, err := s.CheckCalendarExists(ctx, name)
	if err != nil || !exists {
		return false, err
	}
	inUse, err := s.scard(ctx, s.Schema.CalendarTriggersSet(name))
	if err != nil {
		return false, err
	}
	if inUse > 0 {
		return false, errs.ConstraintViolation("calendar " + name + " is referenced by " + strconv.FormatInt(inUse, 10) + " trigger(s)")
	}
	if _, err := s.do(ctx, "DEL", s.Schema.CalendarString(name)); err != nil {
		return false, err
	}
	if err := s.srem(ctx, s.Schema.CalendarsSet(), name); err != nil {
		return false, err
	}
	return true, nil
}

// NumberOfCalendars returns the total count of distinct calendars.
func (s *Store) NumberOfCalendars(ctx context.Context) (int, error) {
	n, err := s.scard(ctx, s.Schema.CalendarsSet())
	return int(n), err
}

// CalendarNames lists every registered calendar name.
func (s *Store) CalendarNames(ctx context.Context) ([]string, error) {
	return s.smembers(ctx, s.Schema.CalendarsSet())
}
