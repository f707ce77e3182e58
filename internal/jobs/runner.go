package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// TickFunc is one scheduler pass: enrollment sweep, dispatch batch or
// pacing round. It returns how many items it handled.
type TickFunc func(ctx context.Context) (int, error)

// Runner drives the periodic loops on a cron scheduler. Each job is
// wrapped with SkipIfStillRunning so a slow tick delays the next run of
// the same job instead of stacking overlapping ones.
type Runner struct {
	cron *cron.Cron
	log  *slog.Logger

	// tickTimeout bounds one pass; a stuck provider call must not pin a
	// job slot forever.
	tickTimeout time.Duration
}

func NewRunner(log *slog.Logger) *Runner {
	cl := cronLogger{log: log}
	return &Runner{
		cron: cron.New(
			cron.WithChain(cron.SkipIfStillRunning(cl), cron.Recover(cl)),
		),
		log:         log,
		tickTimeout: 5 * time.Minute,
	}
}

// Register schedules a named tick at a fixed interval.
func (r *Runner) Register(name string, every time.Duration, tick TickFunc) error {
	if every <= 0 {
		return fmt.Errorf("jobs: %s: interval must be positive", name)
	}
	spec := "@every " + every.String()
	_, err := r.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.tickTimeout)
		defer cancel()

		started := time.Now()
		n, err := tick(ctx)
		if err != nil {
			r.log.Error("job tick failed", "job", name, "error", err)
			return
		}
		if n > 0 {
			r.log.Info("job tick done", "job", name, "handled", n, "took", time.Since(started))
		}
	})
	if err != nil {
		return fmt.Errorf("jobs: register %s: %w", name, err)
	}
	return nil
}

func (r *Runner) Start() {
	r.log.Info("starting job scheduler")
	r.cron.Start()
}

// Stop halts scheduling and waits for running jobs to finish.
func (r *Runner) Stop(ctx context.Context) {
	r.log.Info("stopping job scheduler")
	stopped := r.cron.Stop()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
		r.log.Warn("job scheduler stop timed out")
	}
}

// cronLogger adapts slog to the cron logger interface.
type cronLogger struct {
	log *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.log.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	args := append([]any{"error", err}, keysAndValues...)
	c.log.Error("cron: "+msg, args...)
}
