package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm/m2m"
)

func TestScheduler_RunsJob(t *testing.T) {
	s := New()
	defer s.Stop()

	var runs atomic.Int32
	err := s.ScheduleEvery("tick", time.Second, JobFunc(func(context.Context) error {
		runs.Add(1)
		return nil
	}))
	require.NoError(t, err)
	assert.True(t, s.IsScheduled("tick"))

	require.Eventually(t, func() bool { return runs.Load() > 0 }, 5*time.Second, 50*time.Millisecond)
}

func TestScheduler_ScheduleIsIdempotent(t *testing.T) {
	s := New()
	defer s.Stop()

	noop := JobFunc(func(context.Context) error { return nil })
	require.NoError(t, s.Schedule("cleanup", "@every 1h", noop))
	require.NoError(t, s.Schedule("cleanup", "@every 5m", noop))

	assert.Equal(t, map[string]string{"cleanup": "@every 1h"}, s.Jobs())
}

func TestScheduler_RejectsInvalidSpec(t *testing.T) {
	s := New()
	defer s.Stop()

	err := s.Schedule("broken", "every hour", JobFunc(func(context.Context) error { return nil }))
	assert.True(t, m2m.IsInvalidArgumentErr(err))
	assert.False(t, s.IsScheduled("broken"))
}

func TestScheduler_SpecFormats(t *testing.T) {
	s := New()
	defer s.Stop()
	noop := JobFunc(func(context.Context) error { return nil })

	tests := []struct {
		name  string
		spec  string
		valid bool
	}{
		{"descriptor", "@every 1h", true},
		{"daily", "@daily", true},
		{"with seconds", "0 30 * * * *", true},
		{"day of week omitted", "0 30 * * *", true},
		{"too few fields", "30 * * *", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Schedule(tt.name, tt.spec, noop)
			if tt.valid {
				require.NoError(t, err)
				assert.Equal(t, tt.spec, s.Jobs()[tt.name])
				return
			}
			assert.True(t, m2m.IsInvalidArgumentErr(err))
		})
	}
}

func TestScheduler_NoRunsAfterStop(t *testing.T) {
	s := New()
	require.True(t, s.beginRun())
	s.runningJobs.Done()

	s.Stop()
	assert.False(t, s.beginRun())

	var runs atomic.Int32
	s.run(&entry{name: "late"}, JobFunc(func(context.Context) error {
		runs.Add(1)
		return nil
	}))
	assert.Zero(t, runs.Load())
}

func TestScheduler_Unschedule(t *testing.T) {
	s := New()
	defer s.Stop()

	require.NoError(t, s.Schedule("cleanup", "@every 1h", JobFunc(func(context.Context) error { return nil })))
	s.Unschedule("cleanup")
	assert.False(t, s.IsScheduled("cleanup"))

	// unknown names are ignored
	s.Unschedule("cleanup")
}

func TestScheduler_JobCanUnscheduleItself(t *testing.T) {
	s := New()
	defer s.Stop()

	var runs atomic.Int32
	err := s.ScheduleEvery("once", time.Second, JobFunc(func(context.Context) error {
		runs.Add(1)
		s.Unschedule("once")
		return nil
	}))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return !s.IsScheduled("once") }, 5*time.Second, 50*time.Millisecond)
	assert.Equal(t, int32(1), runs.Load())
}

func TestScheduler_WaitUnscheduled(t *testing.T) {
	s := New()
	defer s.Stop()

	require.NoError(t, s.WaitUnscheduled(context.Background(), "missing"))

	err := s.ScheduleEvery("once", time.Second, JobFunc(func(context.Context) error {
		s.Unschedule("once")
		return nil
	}))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.WaitUnscheduled(ctx, "once"))

	require.NoError(t, s.Schedule("hourly", "@every 1h", JobFunc(func(context.Context) error { return nil })))
	short, cancelShort := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancelShort()
	assert.ErrorIs(t, s.WaitUnscheduled(short, "hourly"), context.DeadlineExceeded)
}

func TestScheduler_StopCancelsRunningJobs(t *testing.T) {
	s := New()

	started := make(chan struct{}, 1)
	var cancelled atomic.Bool
	err := s.ScheduleEvery("slow", time.Second, JobFunc(func(ctx context.Context) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-ctx.Done()
		cancelled.Store(true)
		return ctx.Err()
	}))
	require.NoError(t, err)

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("job did not start")
	}

	s.Stop()
	assert.True(t, cancelled.Load())
	assert.Empty(t, s.Jobs())
	assert.Error(t, s.Schedule("late", "@every 1h", JobFunc(func(context.Context) error { return nil })))
}

func TestRegisterMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, RegisterMetrics(reg))
	assert.Error(t, RegisterMetrics(reg), "registering twice must fail")
}
