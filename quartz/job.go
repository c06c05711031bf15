package quartz

// JobDetail describes a schedulable job (spec §3). The actual executable
// behavior lives outside this store; JobDetail only carries what the store
// needs to index and to hand back to the scheduler.
//
// DisallowConcurrent and PersistJobDataAfterExecution stand in for the
// original system's @DisallowConcurrentExecution and
// @PersistJobDataAfterExecution annotations on the job class; Go has no
// annotation mechanism, so they are plain fields set by whoever registers
// the job.
type JobDetail struct {
	Key                JobKey
	JobClass           string
	Description        string
	Durable            bool
	RequestsRecovery   bool
	DisallowConcurrent bool
	PersistJobData     bool
	DataMap            map[string]any
}

// Clone returns a deep-enough copy of j safe to mutate without affecting the
// caller's original, including a fresh DataMap.
func (j JobDetail) Clone() JobDetail {
	c := j
	if j.DataMap != nil {
		c.DataMap = make(map[string]any, len(j.DataMap))
		for k, v := range j.DataMap {
			c.DataMap[k] = v
		}
	}
	return c
}
