// Package store implements the core of the distributed job store (spec
// §4.4): CRUD, the trigger state machine, acquisition, firing, completion,
// pause/resume, and misfire/crash recovery, all directly atop the Schema key
// derivation and a KV connection. It holds no in-process cache of KV state
// (spec §1 Non-goals); every read goes to Redis.
//
// Grounded on huaban-periodic's db/job.go (the Save/Get/Range/secondary-index
// pattern for a Redis-backed record) and driver/redis/redis.go (raw redigo
// command usage), generalized from a single flat job record to the full
// job/trigger/calendar graph and state-machine spec §4.4 requires.
package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/garyburd/redigo/redis"

	"github.com/Dox-Sweden/QuartzRedisJobStore/errs"
	"github.com/Dox-Sweden/QuartzRedisJobStore/quartz"
	"github.com/Dox-Sweden/QuartzRedisJobStore/quartz/calendar"
	"github.com/Dox-Sweden/QuartzRedisJobStore/redisjobstore/rconn"
	"github.com/Dox-Sweden/QuartzRedisJobStore/redisjobstore/schema"
	"github.com/Dox-Sweden/QuartzRedisJobStore/redisjobstore/serialize"
)

// Store is the storage core. It assumes its caller already holds the
// distributed mutex (spec §4.3): every method here is a plain sequence of KV
// round-trips, no locking of its own.
type Store struct {
	KV               rconn.KV
	Schema           schema.Schema
	Serializer       serialize.Serializer
	InstanceID       string
	MisfireThreshold time.Duration
	TriggerLockTimeout time.Duration
	Signaler         quartz.Signaler
	Now              func() time.Time
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Store) do(ctx context.Context, cmd string, args ...any) (any, error) {
	reply, err := s.KV.Do(ctx, cmd, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", cmd, errs.ErrTransport, err)
	}
	return reply, nil
}

func (s *Store) doInt(ctx context.Context, cmd string, args ...any) (int64, error) {
	reply, err := s.do(ctx, cmd, args...)
	if err != nil {
		return 0, err
	}
	return redis.Int64(reply, nil)
}

func (s *Store) doBytes(ctx context.Context, cmd string, args ...any) ([]byte, bool, error) {
	reply, err := s.do(ctx, cmd, args...)
	if err != nil {
		return nil, false, err
	}
	if reply == nil {
		return nil, false, nil
	}
	b, err := redis.Bytes(reply, nil)
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (s *Store) doStrings(ctx context.Context, cmd string, args ...any) ([]string, error) {
	reply, err := s.do(ctx, cmd, args...)
	if err != nil {
		return nil, err
	}
	return redis.Strings(reply, nil)
}

func (s *Store) doStringMap(ctx context.Context, cmd string, args ...any) (map[string]string, error) {
	reply, err := s.do(ctx, cmd, args...)
	if err != nil {
		return nil, err
	}
	return redis.StringMap(reply, nil)
}

func (s *Store) sadd(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]any, 0, len(members)+1)
	args = append(args, key)
	for _, m := range members {
		args = append(args, m)
	}
	_, err := s.do(ctx, "SADD", args...)
	return err
}

func (s *Store) srem(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]any, 0, len(members)+1)
	args = append(args, key)
	for _, m := range members {
		args = append(args, m)
	}
	_, err := s.do(ctx, "SREM", args...)
	return err
}

func (s *Store) sismember(ctx context.Context, key, member string) (bool, error) {
	n, err := s.doInt(ctx, "SISMEMBER", key, member)
	return n == 1, err
}

func (s *Store) scard(ctx context.Context, key string) (int64, error) {
	return s.doInt(ctx, "SCARD", key)
}

func (s *Store) smembers(ctx context.Context, key string) ([]string, error) {
	return s.doStrings(ctx, "SMEMBERS", key)
}

func (s *Store) zadd(ctx context.Context, key string, score float64, member string) error {
	_, err := s.do(ctx, "ZADD", key, score, member)
	return err
}

func (s *Store) zrem(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]any, 0, len(members)+1)
	args = append(args, key)
	for _, m := range members {
		args = append(args, m)
	}
	_, err := s.do(ctx, "ZREM", args...)
	return err
}

func (s *Store) zcard(ctx context.Context, key string) (int64, error) {
	return s.doInt(ctx, "ZCARD", key)
}

func (s *Store) zscoreExists(ctx context.Context, key, member string) (bool, error) {
	reply, err := s.do(ctx, "ZSCORE", key, member)
	if err != nil {
		return false, err
	}
	return reply != nil, nil
}

type memberScore struct {
	member string
	score  float64
}

// redisStringPairs decodes a ZRANGE/ZRANGEBYSCORE ... WITHSCORES reply
// (flat [member, score, member, score, ...]) into member/score pairs.
func redisStringPairs(reply any) ([]memberScore, error) {
	flat, err := redis.Strings(reply, nil)
	if err != nil {
		return nil, err
	}
	out := make([]memberScore, 0, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		score, err := parseFloat(flat[i+1])
		if err != nil {
			return nil, err
		}
		out = append(out, memberScore{member: flat[i], score: score})
	}
	return out, nil
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}

// triggerScore is the score used for trigger_state sorted sets, per spec §4.1
// ("score = next-fire-time (milliseconds since epoch)"). A trigger with no
// next fire time scores 0.
func triggerScore(t quartz.Trigger) float64 {
	if t.NextFireTime == nil {
		return 0
	}
	return float64(t.NextFireTime.UnixMilli())
}

// resolveCalendar looks up the calendar a trigger names, returning nil
// (not an error) if name is empty. StoreTrigger already guarantees a
// non-empty name resolves to a real calendar (spec invariant 3), so a nil
// result here only ever means "this trigger names no calendar."
func (s *Store) resolveCalendar(ctx context.Context, name string) (*quartz.Calendar, error) {
	if name == "" {
		return nil, nil
	}
	return s.RetrieveCalendar(ctx, name)
}

// calendarImpl unwraps the calendar.Calendar a resolved *quartz.Calendar
// carries, or nil if cal itself is nil.
func calendarImpl(cal *quartz.Calendar) calendar.Calendar {
	if cal == nil {
		return nil
	}
	return cal.Impl
}
