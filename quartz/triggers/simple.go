// Package triggers implements the concrete Schedule types a Trigger can
// carry: simple interval+repeat, cron expression, calendar-interval, and
// daily-time-interval.
package triggers

import (
	"fmt"
	"time"
)

// Simple fires every Interval: once, then RepeatCount more times
// (RepeatCount == -1 means unlimited). It is the Go analogue of the original system's SimpleTrigger,
// generalized with a repeat count since the distilled spec lists "simple
// interval+repeat" as a trigger field.
type Simple struct {
	Interval    time.Duration
	RepeatCount int
	firedCount  int
}

// NewSimple returns a Simple trigger that repeats forever at interval.
func NewSimple(interval time.Duration) *Simple {
	return &Simple{Interval: interval, RepeatCount: -1}
}

// NewSimpleWithRepeat returns a Simple trigger that fires count additional
// times after the first fire.
func NewSimpleWithRepeat(interval time.Duration, count int) *Simple {
	return &Simple{Interval: interval, RepeatCount: count}
}

func (s *Simple) NextFireTime(prev time.Time) time.Time {
	if s.RepeatCount >= 0 && s.firedCount > s.RepeatCount {
		return time.Time{}
	}
	s.firedCount++
	return prev.Add(s.Interval)
}

func (s *Simple) Description() string {
	if s.RepeatCount < 0 {
		return fmt.Sprintf("Simple: every %s, unlimited repeats", s.Interval)
	}
	return fmt.Sprintf("Simple: every %s, %d repeats", s.Interval, s.RepeatCount)
}
