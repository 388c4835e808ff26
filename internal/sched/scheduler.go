// Package sched runs the recurring observation sync across all farms. The
// scheduler is an explicitly constructed instance owned by the application
// lifecycle; jobs are registered as data (cron spec, name, handler) with a
// concurrency guard, never as implicit package state.
package sched

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Job is one recurring task: a cron expression and a handler.
type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context)
}

// Scheduler owns the cron runner. Overlapping fires of the same job are
// skipped rather than stacked, so a slow nightly batch never piles up behind
// itself.
type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	logger *slog.Logger
}

// New creates a stopped scheduler. ctx bounds every job run; cancelling it
// makes in-flight farm syncs wind down at their next suspension point.
func New(ctx context.Context, logger *slog.Logger) *Scheduler {
	cl := &cronLogger{logger: logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.SkipIfStillRunning(cl)),
		),
		ctx:    ctx,
		logger: logger,
	}
}

// Register adds a job. Returns an error for an invalid cron expression.
func (s *Scheduler) Register(job Job) error {
	_, err := s.cron.AddFunc(job.Spec, func() {
		s.logger.Info("scheduled job starting", slog.String("job", job.Name))
		job.Run(s.ctx)
		s.logger.Info("scheduled job finished", slog.String("job", job.Name))
	})
	return err
}

// Start launches the cron loop in its own goroutine.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts scheduling and returns once running jobs have completed.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// cronLogger adapts slog to the cron logging interface.
type cronLogger struct {
	logger *slog.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
