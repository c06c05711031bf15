// Package schema derives the flat Redis key strings backing every domain
// entity from spec §4.1. It is pure: no I/O, no dependency on redigo.
// Grounded on huaban-periodic's own PREFIX + ":" key building in
// db/utils_reids.go and db/index_redis.go, generalized to a configurable
// prefix and delimiter and to the full key surface spec §4.1 requires.
package schema

import (
	"strconv"
	"strings"

	"github.com/Dox-Sweden/QuartzRedisJobStore/quartz"
)

// Schema derives keys with a configurable prefix P and delimiter D.
type Schema struct {
	Prefix    string
	Delimiter string
}

// New returns a Schema with the given prefix and delimiter. An empty
// delimiter defaults to ":" per spec §4.1.
func New(prefix, delimiter string) Schema {
	if delimiter == "" {
		delimiter = ":"
	}
	return Schema{Prefix: prefix, Delimiter: delimiter}
}

func (s Schema) join(parts ...string) string {
	all := make([]string, 0, len(parts)+1)
	all = append(all, s.Prefix)
	all = append(all, parts...)
	return strings.Join(all, s.Delimiter)
}

// EncodeJobKey renders a JobKey as the flat string used as a set/hash member
// (e.g. inside the "jobs" and "blocked_jobs" sets).
func (s Schema) EncodeJobKey(k quartz.JobKey) string {
	return k.Group + s.Delimiter + k.Name
}

// DecodeJobKey is the inverse of EncodeJobKey.
func (s Schema) DecodeJobKey(encoded string) (quartz.JobKey, bool) {
	group, name, ok := strings.Cut(encoded, s.Delimiter)
	if !ok {
		return quartz.JobKey{}, false
	}
	return quartz.JobKey{Group: group, Name: name}, true
}

// EncodeTriggerKey renders a TriggerKey as a flat string.
func (s Schema) EncodeTriggerKey(k quartz.TriggerKey) string {
	return k.Group + s.Delimiter + k.Name
}

// DecodeTriggerKey is the inverse of EncodeTriggerKey.
func (s Schema) DecodeTriggerKey(encoded string) (quartz.TriggerKey, bool) {
	group, name, ok := strings.Cut(encoded, s.Delimiter)
	if !ok {
		return quartz.TriggerKey{}, false
	}
	return quartz.TriggerKey{Group: group, Name: name}, true
}

func (s Schema) JobHash(k quartz.JobKey) string {
	return s.join("job", k.Group, k.Name)
}

func (s Schema) JobDataMapHash(k quartz.JobKey) string {
	return s.join("job_data_map", k.Group, k.Name)
}

func (s Schema) TriggerHash(k quartz.TriggerKey) string {
	return s.join("trigger", k.Group, k.Name)
}

func (s Schema) CalendarString(name string) string {
	return s.join("calendar", name)
}

func (s Schema) JobGroupSet(group string) string {
	return s.join("job_group", group)
}

func (s Schema) TriggerGroupSet(group string) string {
	return s.join("trigger_group", group)
}

func (s Schema) JobsSet() string {
	return s.join("jobs")
}

func (s Schema) TriggersSet() string {
	return s.join("triggers")
}

func (s Schema) JobGroupsSet() string {
	return s.join("job_groups")
}

func (s Schema) TriggerGroupsSet() string {
	return s.join("trigger_groups")
}

func (s Schema) CalendarsSet() string {
	return s.join("calendars")
}

func (s Schema) PausedJobGroupsSet() string {
	return s.join("paused_job_groups")
}

func (s Schema) PausedTriggerGroupsSet() string {
	return s.join("paused_trigger_groups")
}

func (s Schema) BlockedJobsSet() string {
	return s.join("blocked_jobs")
}

func (s Schema) JobTriggersSet(k quartz.JobKey) string {
	return s.join("job_triggers", k.Group, k.Name)
}

func (s Schema) CalendarTriggersSet(name string) string {
	return s.join("calendar_triggers", name)
}

// TriggerStateSet returns the sorted-set key for state, e.g.
// "P:trigger_state:Waiting". Only states in quartz.ScannableStates have a
// populated set; the key derived for StateExecuting is never written to.
func (s Schema) TriggerStateSet(state quartz.TriggerState) string {
	return s.join("trigger_state", state.String())
}

func (s Schema) FiredTriggersHash() string {
	return s.join("fired_triggers")
}

// FiredTriggersByInstanceSet returns the auxiliary per-instance set used for
// the orphan scan on crash recovery (spec §4.1, §4.4.7).
func (s Schema) FiredTriggersByInstanceSet(instanceID string) string {
	return s.join("fired_triggers_by_instance", instanceID)
}

func (s Schema) LockKey() string {
	return s.join("lock")
}

// FiredTriggerField renders the composite hash field
// "<TriggerKey>|<instanceId>|<acquireTs>" spec §4.1 names for fired_triggers
// hash entries.
func (s Schema) FiredTriggerField(k quartz.TriggerKey, instanceID string, acquiredAtMillis int64) string {
	return s.EncodeTriggerKey(k) + "|" + instanceID + "|" + strconv.FormatInt(acquiredAtMillis, 10)
}
