// Package scheduler runs named jobs at fixed intervals on robfig/cron.
package scheduler

import (
	"context"
	"fmt"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"time"
)

type Job func(ctx context.Context) error

type Scheduler struct {
	c   *cron.Cron
	ctx context.Context
	log *zap.Logger
}

// New returns a scheduler whose jobs receive ctx. A tick is skipped while the
// previous run of the same job is still in progress.
func New(ctx context.Context, log *zap.Logger) *Scheduler {
	cl := cronLogger{log: log}
	return &Scheduler{
		c: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		ctx: ctx,
		log: log,
	}
}

func (s *Scheduler) Every(name string, every time.Duration, job Job) error {
	if every <= 0 {
		return fmt.Errorf("scheduler: %s: interval must be positive", name)
	}
	_, err := s.c.AddFunc(fmt.Sprintf("@every %s", every), func() { s.run(name, job) })
	return err
}

func (s *Scheduler) run(name string, job Job) {
	if s.ctx.Err() != nil {
		return
	}
	start := time.Now()
	if err := job(s.ctx); err != nil {
		s.log.Error("job failed", zap.String("job", name), zap.Error(err))
		return
	}
	s.log.Debug("job done", zap.String("job", name), zap.Duration("took", time.Since(start)))
}

func (s *Scheduler) RunNow(name string, job Job) { s.run(name, job) }

func (s *Scheduler) Start() { s.c.Start() }

// Stop prevents new runs and waits for running jobs to finish.
func (s *Scheduler) Stop() { <-s.c.Stop().Done() }

// cronLogger adapts zap to cron.Logger.
type cronLogger struct{ log *zap.Logger }

func (l cronLogger) Info(msg string, kv ...interface{}) {
	l.log.Sugar().Debugw(msg, kv...)
}

func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.log.Sugar().Errorw(msg, append(kv, "error", err)...)
}
