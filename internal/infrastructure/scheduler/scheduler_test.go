package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	name  string
	runs  atomic.Int32
	err   error
	panic bool
}

func (j *countingJob) Name() string        { return j.name }
func (j *countingJob) Description() string { return "counts runs" }
func (j *countingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	if j.panic {
		panic("boom")
	}
	return j.err
}

func newTestScheduler(t *testing.T, runOnStart bool) *Scheduler {
	t.Helper()
	cfg := DefaultSchedulerConfig()
	cfg.RunOnStart = runOnStart
	cfg.StopTimeout = time.Second
	s, err := NewScheduler(cfg)
	require.NoError(t, err)
	return s
}

func TestScheduler_Register(t *testing.T) {
	s := newTestScheduler(t, false)
	job := &countingJob{name: "a"}

	assert.ErrorIs(t, s.Register(nil, NewIntervalSchedule(time.Minute)), ErrNilJob)
	assert.ErrorIs(t, s.Register(job, nil), ErrNilSchedule)
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Minute)))
	assert.ErrorIs(t, s.Register(job, NewIntervalSchedule(time.Minute)), ErrJobAlreadyExists)

	jobs := s.ListJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "a", jobs[0].Name)
	assert.Equal(t, "@every 1m0s", jobs[0].Schedule)
}

func TestScheduler_RegisterRejectsBadCron(t *testing.T) {
	s := newTestScheduler(t, false)
	assert.Error(t, s.Register(&countingJob{name: "bad"}, NewCronSchedule("not a cron")))
}

func TestScheduler_RunNow(t *testing.T) {
	s := newTestScheduler(t, false)
	ok := &countingJob{name: "ok"}
	failing := &countingJob{name: "failing", err: errors.New("nope")}
	panicking := &countingJob{name: "panicking", panic: true}
	for _, j := range []*countingJob{ok, failing, panicking} {
		require.NoError(t, s.Register(j, NewIntervalSchedule(time.Hour)))
	}

	res, err := s.RunNow(context.Background(), "ok")
	require.NoError(t, err)
	assert.True(t, res.Success)

	res, err = s.RunNow(context.Background(), "failing")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.EqualError(t, res.Error, "nope")

	res, err = s.RunNow(context.Background(), "panicking")
	require.NoError(t, err)
	assert.ErrorContains(t, res.Error, "panicked")

	_, err = s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)

	last, ok2 := s.LastResult("failing")
	require.True(t, ok2)
	assert.False(t, last.Success)

	for _, info := range s.ListJobs() {
		assert.Equal(t, int64(1), info.RunCount, info.Name)
	}
}

func TestScheduler_Lifecycle(t *testing.T) {
	s := newTestScheduler(t, true)
	job := &countingJob{name: "tick"}
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Hour)))

	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)
	require.NoError(t, s.Start())
	assert.True(t, s.IsRunning())
	assert.ErrorIs(t, s.Start(), ErrSchedulerAlreadyRunning)

	assert.Eventually(t, func() bool { return job.runs.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())
	assert.ErrorIs(t, s.Start(), ErrSchedulerStopped)
}

func TestPairs(t *testing.T) {
	fields := pairs([]any{"job", "x", 3, "y", "dangling"})
	require.Len(t, fields, 3)
	assert.Equal(t, "job", fields[0].Key)
	assert.Equal(t, "arg2", fields[1].Key)
	assert.Equal(t, "extra", fields[2].Key)
}
