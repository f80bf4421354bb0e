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

type fakePreloader struct {
	ready atomic.Bool
	calls atomic.Int32
	err   error
}

func (f *fakePreloader) Ready() bool { return f.ready.Load() }

func (f *fakePreloader) PreloadAll(ctx context.Context) error {
	f.calls.Add(1)
	if f.err != nil {
		return f.err
	}
	f.ready.Store(true)
	return nil
}

type recordingSweeper struct {
	got []string
	err error
}

func (r *recordingSweeper) PrepareAll(ctx context.Context, tickers []string) error {
	r.got = append(r.got, tickers...)
	return r.err
}

func noopRunners() map[string]Runner {
	return map[string]Runner{
		"noop": func(ctx context.Context) error { return nil },
	}
}

func TestRegisterRejectsUnknownType(t *testing.T) {
	s := New(noopRunners())

	err := s.Register(Job{Name: "mystery", Schedule: "* * * * *", Type: "bogus", Enabled: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown job type")
}

func TestRegisterRejectsDuplicateName(t *testing.T) {
	s := New(noopRunners())

	require.NoError(t, s.Register(Job{Name: "warm", Schedule: "* * * * *", Type: "noop", Enabled: true}))
	err := s.Register(Job{Name: "warm", Schedule: "* * * * *", Type: "noop", Enabled: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestRegisterRejectsBadSchedule(t *testing.T) {
	s := New(noopRunners())

	err := s.Register(Job{Name: "warm", Schedule: "whenever", Type: "noop", Enabled: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `schedule "whenever"`)
}

func TestRunJobRecordsOutcome(t *testing.T) {
	runners := map[string]Runner{
		"noop": func(ctx context.Context) error { return nil },
		"boom": func(ctx context.Context) error { return errors.New("boom") },
	}
	s := New(runners)
	require.NoError(t, s.Register(Job{Name: "ok", Schedule: "* * * * *", Type: "noop", Enabled: true}))
	require.NoError(t, s.Register(Job{Name: "bad", Schedule: "* * * * *", Type: "boom", Enabled: true}))

	res, err := s.RunJob(context.Background(), "ok")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Empty(t, res.Error)
	assert.False(t, res.EndTime.Before(res.StartTime))

	res, err = s.RunJob(context.Background(), "bad")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "boom", res.Error)

	jobs := s.Jobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, "ok", jobs[0].Name)
	assert.Equal(t, 1, jobs[0].Runs)
	assert.Empty(t, jobs[0].LastErr)
	assert.Equal(t, "bad", jobs[1].Name)
	assert.Equal(t, "boom", jobs[1].LastErr)
	assert.False(t, jobs[1].LastRun.IsZero())
}

func TestRunJobUnknownJob(t *testing.T) {
	s := New(noopRunners())

	_, err := s.RunJob(context.Background(), "ghost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "job not found")
}

func TestRunJobRejectsOverlap(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	runners := map[string]Runner{
		"block": func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		},
	}
	s := New(runners)
	require.NoError(t, s.Register(Job{Name: "slow", Type: "block"}))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.RunJob(context.Background(), "slow")
	}()
	<-started

	_, err := s.RunJob(context.Background(), "slow")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")

	close(release)
	<-done
}

func TestStartStopLifecycle(t *testing.T) {
	s := New(noopRunners())
	require.NoError(t, s.Register(Job{Name: "warm", Schedule: "*/5 * * * *", Type: "noop", Enabled: true}))
	require.NoError(t, s.Register(Job{Name: "off", Type: "noop"}))

	st := s.Status()
	assert.False(t, st.Running)
	assert.Equal(t, 1, st.EnabledJobs)
	assert.Equal(t, 1, st.DisabledJobs)
	assert.True(t, st.NextRun.IsZero())

	s.Start()
	st = s.Status()
	assert.True(t, st.Running)
	assert.False(t, st.NextRun.IsZero())

	jobs := s.Jobs()
	require.Len(t, jobs, 2)
	assert.False(t, jobs[0].NextRun.IsZero())
	assert.True(t, jobs[1].NextRun.IsZero())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	assert.False(t, s.Status().Running)
	require.NoError(t, s.Stop(ctx))
}

func TestPreloadRetryStopsOnceWarm(t *testing.T) {
	p := &fakePreloader{}
	run := PreloadRetry(p)

	require.NoError(t, run(context.Background()))
	require.NoError(t, run(context.Background()))
	assert.Equal(t, int32(1), p.calls.Load())
}

func TestPreloadRetryKeepsRetryingAfterFailure(t *testing.T) {
	p := &fakePreloader{err: errors.New("models offline")}
	run := PreloadRetry(p)

	require.EqualError(t, run(context.Background()), "models offline")
	assert.False(t, p.Ready())

	p.err = nil
	require.NoError(t, run(context.Background()))
	assert.True(t, p.Ready())
	assert.Equal(t, int32(2), p.calls.Load())
}

func TestNightlyBacktestSweepsUniverse(t *testing.T) {
	sw := &recordingSweeper{}
	run := NightlyBacktest(sw, func() []string { return []string{"AAPL", "MSFT"} })

	require.NoError(t, run(context.Background()))
	assert.Equal(t, []string{"AAPL", "MSFT"}, sw.got)
}

func TestNightlyBacktestSurfacesSweepFailure(t *testing.T) {
	sw := &recordingSweeper{err: errors.New("2 of 14 tickers failed")}
	run := NightlyBacktest(sw, func() []string { return []string{"AAPL"} })

	require.EqualError(t, run(context.Background()), "2 of 14 tickers failed")
}
