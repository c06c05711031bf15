// Package serialize provides the pluggable opaque-payload codec spec §4.2
// requires for JobDetail, Trigger, and Calendar values.
package serialize

import "github.com/Dox-Sweden/QuartzRedisJobStore/quartz"

// Serializer encodes/decodes the three domain aggregates the store persists
// as opaque bytes. decode(encode(x)) must reconstruct x under the equality
// the scheduler uses (spec §4.2); unknown subtypes must fail with a
// distinguishable error so the facade can surface it as a decode error.
type Serializer interface {
	EncodeJob(j quartz.JobDetail) ([]byte, error)
	DecodeJob(data []byte) (quartz.JobDetail, error)

	EncodeTrigger(t quartz.Trigger) ([]byte, error)
	DecodeTrigger(data []byte) (quartz.Trigger, error)

	EncodeCalendar(c quartz.Calendar) ([]byte, error)
	DecodeCalendar(data []byte) (quartz.Calendar, error)
}
