// Package quartz holds the domain model for the distributed job store: job
// and trigger identities, the trigger state machine's vocabulary, calendars,
// and the group matcher used by the pause/resume and enumeration SPI.
package quartz

import "fmt"

// JobKey identifies a JobDetail by (name, group). Two JobKeys are compared
// structurally, so JobKey is safe to use as a map key or set member.
type JobKey struct {
	Name  string
	Group string
}

// NewJobKey returns a JobKey, defaulting an empty group to DefaultGroup.
func NewJobKey(name, group string) JobKey {
	if group == "" {
		group = DefaultGroup
	}
	return JobKey{Name: name, Group: group}
}

func (k JobKey) String() string {
	return fmt.Sprintf("%s.%s", k.Group, k.Name)
}

// TriggerKey identifies a Trigger by (name, group).
type TriggerKey struct {
	Name  string
	Group string
}

// NewTriggerKey returns a TriggerKey, defaulting an empty group to DefaultGroup.
func NewTriggerKey(name, group string) TriggerKey {
	if group == "" {
		group = DefaultGroup
	}
	return TriggerKey{Name: name, Group: group}
}

func (k TriggerKey) String() string {
	return fmt.Sprintf("%s.%s", k.Group, k.Name)
}

// DefaultGroup is used when a caller does not specify a group name.
const DefaultGroup = "DEFAULT"
