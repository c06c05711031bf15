package triggers

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Cron fires according to a cron expression, parsed the same way
// quintans-go-scheduler's CronTrigger does: seconds optional, descriptors
// (@daily, @hourly, ...) allowed.
type Cron struct {
	expr     string
	schedule cron.Schedule
}

// NewCron parses expr and returns a Cron trigger, or an error if expr is not
// a valid cron expression.
func NewCron(expr string) (*Cron, error) {
	parser := cron.NewParser(
		cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)
	schedule, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse cron expression %q: %w", expr, err)
	}
	return &Cron{expr: expr, schedule: schedule}, nil
}

func (c *Cron) NextFireTime(prev time.Time) time.Time {
	return c.schedule.Next(prev)
}

func (c *Cron) Description() string {
	return fmt.Sprintf("Cron: %s", c.expr)
}

// Expression returns the original cron expression string, e.g. for
// re-serialization by the store.
func (c *Cron) Expression() string {
	return c.expr
}
