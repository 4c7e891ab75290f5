// Package scheduler runs named recurring jobs on cron schedules.
//
// Every job gets its own cron runner so that it can be unscheduled on its own.
// Runs of one job never overlap: a tick that fires while the previous run is
// still going is skipped.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron"
	"go.uber.org/zap"

	"github.com/pthm/m2m"
)

type entry struct {
	name    string
	spec    string
	cron    *cron.Cron
	running sync.Mutex
	// done is closed once the job is unscheduled.
	done chan struct{}
}

// Scheduler keeps the registered jobs. The zero value is not usable; call New.
type Scheduler struct {
	mu     sync.Mutex
	jobs   map[string]*entry
	logger *zap.Logger

	ctx         context.Context
	cancel      context.CancelFunc
	runningJobs sync.WaitGroup
	stopped     bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// New returns a running scheduler without jobs.
func New(opts ...Option) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		jobs:   map[string]*entry{},
		logger: zap.NewNop(),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule registers job under name. spec is either a descriptor such as
// "@every 1h" or "@daily", or a cron expression whose first field is the
// seconds: "0 30 * * * *" runs at minute 30 of every hour. The day-of-week
// field may be omitted. Scheduling a
// name that is already registered does nothing, so callers may schedule on
// every trigger without checking first.
func (s *Scheduler) Schedule(name, spec string, job Job) error {
	schedule, err := cron.Parse(spec)
	if err != nil {
		return m2m.Invalidf("job %s: schedule %q: %v", name, spec, err)
	}
	return s.schedule(name, spec, schedule, job)
}

// ScheduleEvery registers job to run every d. d is rounded to whole seconds.
func (s *Scheduler) ScheduleEvery(name string, d time.Duration, job Job) error {
	return s.schedule(name, "@every "+d.String(), cron.Every(d), job)
}

func (s *Scheduler) schedule(name, spec string, schedule cron.Schedule, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return fmt.Errorf("scheduling job %s: scheduler stopped", name)
	}
	if _, ok := s.jobs[name]; ok {
		return nil
	}

	e := &entry{name: name, spec: spec, cron: cron.NewWithLocation(time.UTC), done: make(chan struct{})}
	e.cron.Schedule(schedule, cron.FuncJob(func() { s.run(e, job) }))
	e.cron.Start()
	s.jobs[name] = e
	jobsScheduled.Inc()

	s.logger.Info("scheduled job", zap.String("job", name), zap.String("schedule", spec))
	return nil
}

func (s *Scheduler) run(e *entry, job Job) {
	if !s.beginRun() {
		return
	}
	defer s.runningJobs.Done()

	if !e.running.TryLock() {
		s.logger.Debug("skipping job run, previous run still active", zap.String("job", e.name))
		return
	}
	defer e.running.Unlock()

	logger := s.logger.With(zap.String("job", e.name))
	start := time.Now()
	logger.Debug("starting scheduled job")
	reportJobStarted(e.name)

	err := job.Run(s.ctx)
	reportJobCompleted(e.name, time.Since(start), err)
	if err != nil {
		logger.Error("scheduled job failed", zap.Error(err))
		return
	}
	logger.Debug("scheduled job completed", zap.Duration("duration", time.Since(start)))
}

// beginRun counts a run in before it starts. It returns false once Stop has
// been called, so Stop never waits on a run it cannot see.
func (s *Scheduler) beginRun() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	s.runningJobs.Add(1)
	return true
}

// IsScheduled reports whether a job is registered under name.
func (s *Scheduler) IsScheduled(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[name]
	return ok
}

// Unschedule removes the job registered under name. A run in progress is
// allowed to finish. Unscheduling from inside the job's own run is allowed.
func (s *Scheduler) Unschedule(name string) {
	s.mu.Lock()
	e, ok := s.jobs[name]
	if ok {
		delete(s.jobs, name)
	}
	s.mu.Unlock()

	if !ok {
		return
	}
	e.cron.Stop()
	close(e.done)
	jobsScheduled.Dec()
	s.logger.Info("unscheduled job", zap.String("job", name))
}

// WaitUnscheduled blocks until the job registered under name is unscheduled
// or ctx is done. It returns immediately when no such job is registered.
func (s *Scheduler) WaitUnscheduled(ctx context.Context, name string) error {
	s.mu.Lock()
	e, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return nil
	}

	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Jobs returns the registered job names with their schedules.
func (s *Scheduler) Jobs() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.jobs))
	for name, e := range s.jobs {
		out[name] = e.spec
	}
	return out
}

// Stop unschedules every job, cancels the context passed to running jobs and
// waits for them to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	jobs := s.jobs
	s.jobs = map[string]*entry{}
	s.mu.Unlock()

	for _, e := range jobs {
		e.cron.Stop()
		close(e.done)
		jobsScheduled.Dec()
	}
	s.cancel()

	s.logger.Debug("awaiting running jobs")
	s.runningJobs.Wait()
	s.logger.Info("scheduler stopped")
}
