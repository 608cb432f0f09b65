package scheduler

import (
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// IntervalSchedule schedules a job to run at a fixed interval.
type IntervalSchedule struct {
	Interval time.Duration
}

// NewIntervalSchedule creates a new IntervalSchedule.
func NewIntervalSchedule(interval time.Duration) *IntervalSchedule {
	return &IntervalSchedule{
		Interval: interval,
	}
}

// Definition implements Schedule.
func (s *IntervalSchedule) Definition() gocron.JobDefinition {
	return gocron.DurationJob(s.Interval)
}

// String returns the string representation of the schedule.
func (s *IntervalSchedule) String() string {
	return fmt.Sprintf("@every %s", s.Interval.String())
}

// CronSchedule schedules a job with a five-field crontab expression.
type CronSchedule struct {
	Expression string
}

// NewCronSchedule creates a new CronSchedule.
func NewCronSchedule(expr string) *CronSchedule {
	return &CronSchedule{Expression: expr}
}

// Definition implements Schedule.
func (s *CronSchedule) Definition() gocron.JobDefinition {
	return gocron.CronJob(s.Expression, false)
}

// String returns the crontab expression.
func (s *CronSchedule) String() string {
	return s.Expression
}
