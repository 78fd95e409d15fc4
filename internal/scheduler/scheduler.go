// Package scheduler runs the periodic refresh jobs on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	appLog "hackonomics/internal/log"
)

// Job is one named unit of periodic work.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// Scheduler runs every job on a shared cron schedule. A job whose previous
// run is still going is skipped.
type Scheduler struct {
	spec    string
	cron    *cron.Cron
	jobs    []Job
	timeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
}

// cronLogger routes cron's own logging into ours.
type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...interface{}) {
	appLog.Debug("cron: "+msg, kv...)
}

func (cronLogger) Error(err error, msg string, kv ...interface{}) {
	appLog.Error("cron: "+msg, err, kv...)
}

// New validates spec (standard 5-field cron or a descriptor such as
// "@every 5m") and registers jobs. Each run is bounded by timeout when it
// is positive.
func New(spec string, timeout time.Duration, jobs ...Job) (*Scheduler, error) {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("scheduler: invalid schedule %q: %w", spec, err)
	}

	logger := cronLogger{}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	s := &Scheduler{spec: spec, cron: c, jobs: jobs, timeout: timeout}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	for _, j := range jobs {
		j := j
		c.Schedule(sched, cron.FuncJob(func() { s.run(s.ctx, j) }))
	}
	return s, nil
}

// Start begins firing jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	appLog.Info("scheduler started", "schedule", s.spec, "jobs", len(s.jobs))
}

// RunNow runs every job once, synchronously, outside the schedule.
func (s *Scheduler) RunNow(ctx context.Context) {
	for _, j := range s.jobs {
		s.run(ctx, j)
	}
}

// Stop halts the schedule, cancels running jobs and waits for them to
// return or for ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	s.cancel()
	select {
	case <-done.Done():
	case <-ctx.Done():
		appLog.Warn("scheduler stop timed out")
	}
	appLog.Info("scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context, j Job) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	started := time.Now()
	if err := j.Run(ctx); err != nil {
		appLog.Error("scheduled job failed", err, "job", j.Name, "elapsed", time.Since(started).String())
		return
	}
	appLog.Debug("scheduled job done", "job", j.Name, "elapsed", time.Since(started).String())
}
