package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Dox-Sweden/QuartzRedisJobStore/errs"
	"github.com/Dox-Sweden/QuartzRedisJobStore/quartz"
)

// StoreJob persists job, creating its group/jobs-set membership. If replace
// is false and the job already exists, it returns errs.ErrObjectAlreadyExists
// (spec §4.4, invariant 3).
func (s *Store) StoreJob(ctx context.Context, job quartz.JobDetail, replace bool) error {
	jobKey := s.Schema.EncodeJobKey(job.Key)
	if !replace {
		exists, err := s.sismember(ctx, s.Schema.JobsSet(), jobKey)
		if err != nil {
			return err
		}
		if exists {
			return errs.AlreadyExists("job", job.Key.String())
		}
	}

	detail := job.Clone()
	dataMap := detail.DataMap
	detail.DataMap = nil
	encoded, err := s.Serializer.EncodeJob(detail)
	if err != nil {
		return errs.Decode("job", job.Key.String(), err)
	}

	if _, err := s.do(ctx, "HSET", s.Schema.JobHash(job.Key), "detail", encoded); err != nil {
		return err
	}
	if err := s.writeJobDataMap(ctx, job.Key, dataMap); err != nil {
		return err
	}
	if err := s.sadd(ctx, s.Schema.JobsSet(), jobKey); err != nil {
		return err
	}
	if err := s.sadd(ctx, s.Schema.JobGroupSet(job.Key.Group), job.Key.Name); err != nil {
		return err
	}
	return s.sadd(ctx, s.Schema.JobGroupsSet(), job.Key.Group)
}

// writeJobDataMap replaces the job's data-map hash wholesale: each entry is
// its own hash field, JSON-encoded individually so a partial re-persist
// after execution (spec §4.4.4, @PersistJobDataAfterExecution) doesn't
// require re-serializing the whole JobDetail.
func (s *Store) writeJobDataMap(ctx context.Context, key quartz.JobKey, dataMap map[string]any) error {
	hashKey := s.Schema.JobDataMapHash(key)
	if _, err := s.do(ctx, "DEL", hashKey); err != nil {
		return err
	}
	if len(dataMap) == 0 {
		return nil
	}
	args := make([]any, 0, len(dataMap)*2+1)
	args = append(args, hashKey)
	for k, v := range dataMap {
		encoded, err := json.Marshal(v)
		if err != nil {
			return errs.Decode("job data map", key.String(), err)
		}
		args = append(args, k, encoded)
	}
	_, err := s.do(ctx, "HSET", args...)
	return err
}

func (s *Store) readJobDataMap(ctx context.Context, key quartz.JobKey) (map[string]any, error) {
	raw, err := s.doStringMap(ctx, "HGETALL", s.Schema.JobDataMapHash(key))
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		var decoded any
		if err := json.Unmarshal([]byte(v), &decoded); err != nil {
			return nil, errs.Decode("job data map", key.String(), err)
		}
		out[k] = decoded
	}
	return out, nil
}

// RetrieveJob returns the job stored under key, or nil if it does not exist.
func (s *Store) RetrieveJob(ctx context.Context, key quartz.JobKey) (*quartz.JobDetail, error) {
	data, found, err := s.doBytes(ctx, "HGET", s.Schema.JobHash(key), "detail")
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	job, err := s.Serializer.DecodeJob(data)
	if err != nil {
		return nil, errs.Decode("job", key.String(), err)
	}
	job.Key = key
	dataMap, err := s.readJobDataMap(ctx, key)
	if err != nil {
		return nil, err
	}
	job.DataMap = dataMap
	return &job, nil
}

// CheckJobExists reports whether a job is registered under key.
func (s *Store) CheckJobExists(ctx context.Context, key quartz.JobKey) (bool, error) {
	return s.sismember(ctx, s.Schema.JobsSet(), s.Schema.EncodeJobKey(key))
}

// RemoveJob deletes the job and every trigger that references it (the
// original JobStore SPI contract: removing a job removes its triggers too).
// It reports whether the job existed.
func (s *Store) RemoveJob(ctx context.Context, key quartz.JobKey) (bool, error) {
	exists, err := s.CheckJobExists(ctx, key)
	if err != nil || !exists {
		return false, err
	}

	triggerMembers, err := s.smembers(ctx, s.Schema.JobTriggersSet(key))
	if err != nil {
		return false, err
	}
	for _, tm := range triggerMembers {
		tk, ok := s.Schema.DecodeTriggerKey(tm)
		if !ok {
			continue
		}
		if _, err := s.RemoveTrigger(ctx, tk); err != nil {
			return false, err
		}
	}

	if _, err := s.do(ctx, "DEL", s.Schema.JobHash(key), s.Schema.JobDataMapHash(key), s.Schema.JobTriggersSet(key)); err != nil {
		return false, err
	}
	if err := s.srem(ctx, s.Schema.JobsSet(), s.Schema.EncodeJobKey(key)); err != nil {
		return false, err
	}
	if err := s.srem(ctx, s.Schema.JobGroupSet(key.Group), key.Name); err != nil {
		return false, err
	}
	remaining, err := s.scard(ctx, s.Schema.JobGroupSet(key.Group))
	if err != nil {
		return false, err
	}
	if remaining == 0 {
		if err := s.srem(ctx, s.Schema.JobGroupsSet(), key.Group); err != nil {
			return false, err
		}
	}
	return true, nil
}

// RemoveJobs removes every job in keys, reporting true only if all of them
// existed.
func (s *Store) RemoveJobs(ctx context.Context, keys []quartz.JobKey) (bool, error) {
	allFound := true
	for _, k := range keys {
		found, err := s.RemoveJob(ctx, k)
		if err != nil {
			return false, fmt.Errorf("remove job %s: %w", k, err)
		}
		allFound = allFound && found
	}
	return allFound, nil
}

// NumberOfJobs returns the total count of distinct jobs.
func (s *Store) NumberOfJobs(ctx context.Context) (int, error) {
	n, err := s.scard(ctx, s.Schema.JobsSet())
	return int(n), err
}

// JobGroupNames lists every group name with at least one job.
func (s *Store) JobGroupNames(ctx context.Context) ([]string, error) {
	return s.smembers(ctx, s.Schema.JobGroupsSet())
}

// IsJobGroupPaused reports whether group is currently paused.
func (s *Store) IsJobGroupPaused(ctx context.Context, group string) (bool, error) {
	return s.sismember(ctx, s.Schema.PausedJobGroupsSet(), group)
}

// JobKeys returns every job key whose group satisfies matcher.
func (s *Store) JobKeys(ctx context.Context, matcher quartz.GroupMatcher) ([]quartz.JobKey, error) {
	groups, err := s.JobGroupNames(ctx)
	if err != nil {
		return nil, err
	}
	var out []quartz.JobKey
	for _, g := range groups {
		if !matcher.Matches(g) {
			continue
		}
		names, err := s.smembers(ctx, s.Schema.JobGroupSet(g))
		if err != nil {
			return nil, err
		}
		for _, n := range names {
			out = append(out, quartz.JobKey{Group: g, Name: n})
		}
	}
	return out, nil
}

// TriggersForJob returns every trigger currently registered against jobKey.
func (s *Store) TriggersForJob(ctx context.Context, jobKey quartz.JobKey) ([]quartz.Trigger, error) {
	members, err := s.smembers(ctx, s.Schema.JobTriggersSet(jobKey))
	if err != nil {
		return nil, err
	}
	out := make([]quartz.Trigger, 0, len(members))
	for _, m := range members {
		tk, ok := s.Schema.DecodeTriggerKey(m)
		if !ok {
			continue
		}
		t, err := s.RetrieveTrigger(ctx, tk)
		if err != nil {
			return nil, err
		}
		if t != nil {
			out = append(out, *t)
		}
	}
	return out, nil
}
