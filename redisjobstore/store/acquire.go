package store

import (
	"context"
	"sort"
	"time"

	"github.com/Dox-Sweden/QuartzRedisJobStore/quartz"
)

// acquireWindowFactor over-fetches candidates from the Waiting set since
// some will be filtered out by misfire handling or job blocking before
// maxCount survivors are found.
const acquireWindowFactor = 3

// AcquireNextTriggers first reclaims any trigger orphaned by a crashed
// instance (spec §4.4.7), then reserves up to maxCount Waiting triggers
// whose next-fire-time falls at or before noLaterThan+timeWindow, applying
// misfire policy to any candidate that is already overdue (spec §4.4.2,
// §4.4.5). Reserved triggers move to Acquired; the caller must follow up
// with TriggersFired to confirm execution or ReleaseAcquiredTrigger to give
// up.
func (s *Store) AcquireNextTriggers(ctx context.Context, noLaterThan time.Time, maxCount int, timeWindow time.Duration) ([]quartz.Trigger, error) {
	if maxCount <= 0 {
		return nil, nil
	}

	// Reclaim any trigger left Acquired/Executing by a crashed instance
	// before ranging candidates, so recovered triggers are eligible for
	// acquisition in this same cycle (spec §4.4.7: recovery runs "on every
	// acquisition cycle").
	if _, err := s.RecoverOrphanedFiredTriggers(ctx); err != nil {
		return nil, err
	}

	maxScore := float64(noLaterThan.Add(timeWindow).UnixMilli())
	fetch := maxCount * acquireWindowFactor

	candidates, err := s.rangeCandidates(ctx, quartz.StateWaiting, maxScore, fetch)
	if err != nil {
		return nil, err
	}

	acquired := make([]quartz.Trigger, 0, maxCount)
	now := s.now()
	for _, key := range candidates {
		if len(acquired) >= maxCount {
			break
		}
		t, err := s.RetrieveTrigger(ctx, key)
		if err != nil {
			return nil, err
		}
		if t == nil {
			continue
		}

		misfired, err := s.applyMisfireIfDue(ctx, t, now)
		if err != nil {
			return nil, err
		}
		if misfired {
			// No longer eligible this round; it has been rescheduled or
			// moved to a terminal state by applyMisfireIfDue.
			continue
		}

		job, err := s.RetrieveJob(ctx, t.JobKey)
		if err != nil {
			return nil, err
		}
		if job != nil && job.DisallowConcurrent {
			blocked, err := s.sismember(ctx, s.Schema.BlockedJobsSet(), s.Schema.EncodeJobKey(job.Key))
			if err != nil {
				return nil, err
			}
			if blocked {
				if err := s.setTriggerState(ctx, t.Key, triggerScore(*t), quartz.StateWaiting, quartz.StateBlocked); err != nil {
					return nil, err
				}
				continue
			}
		}

		if err := s.setTriggerState(ctx, t.Key, triggerScore(*t), quartz.StateWaiting, quartz.StateAcquired); err != nil {
			return nil, err
		}
		acquired = append(acquired, *t)
	}
	return acquired, nil
}

// rangeCandidates returns, in fire-time/priority order, every member of
// state's sorted set scoring at or below maxScore, capped at limit.
func (s *Store) rangeCandidates(ctx context.Context, state quartz.TriggerState, maxScore float64, limit int) ([]quartz.TriggerKey, error) {
	reply, err := s.do(ctx, "ZRANGEBYSCORE", s.Schema.TriggerStateSet(state), "-inf", maxScore, "WITHSCORES", "LIMIT", 0, limit)
	if err != nil {
		return nil, err
	}
	pairs, err := redisStringPairs(reply)
	if err != nil {
		return nil, err
	}

	type scored struct {
		key   quartz.TriggerKey
		score float64
	}
	items := make([]scored, 0, len(pairs))
	for _, p := range pairs {
		tk, ok := s.Schema.DecodeTriggerKey(p.member)
		if !ok {
			continue
		}
		items = append(items, scored{key: tk, score: p.score})
	}

	// Tie-break by descending priority, then ascending key, mirroring spec
	// §4.4.2's acquisition ordering; priority requires a second round-trip
	// per key so only candidates that made the score cut pay for it.
	priorities := make(map[quartz.TriggerKey]int, len(items))
	for _, it := range items {
		t, err := s.RetrieveTrigger(ctx, it.key)
		if err != nil {
			return nil, err
		}
		p := quartz.DefaultPriority
		if t != nil {
			p = t.Priority
		}
		priorities[it.key] = p
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].score != items[j].score {
			return items[i].score < items[j].score
		}
		pi, pj := priorities[items[i].key], priorities[items[j].key]
		if pi != pj {
			return pi > pj
		}
		return items[i].key.String() < items[j].key.String()
	})

	out := make([]quartz.TriggerKey, len(items))
	for i, it := range items {
		out[i] = it.key
	}
	return out, nil
}

// ReleaseAcquiredTrigger returns an Acquired trigger to Waiting without
// having fired it, e.g. when the scheduler aborts a batch (spec §4.4.2).
func (s *Store) ReleaseAcquiredTrigger(ctx context.Context, key quartz.TriggerKey) error {
	state, err := s.getTriggerState(ctx, key)
	if err != nil || state != quartz.StateAcquired {
		return err
	}
	t, err := s.RetrieveTrigger(ctx, key)
	if err != nil || t == nil {
		return err
	}
	return s.setTriggerState(ctx, key, triggerScore(*t), quartz.StateAcquired, quartz.StateWaiting)
}
