// Package cron provides cron-based scheduling for server jobs.
//
// A Trigger runs one named job according to a cron schedule. It is designed
// to be started once and run until the context is cancelled.
//
// Example usage:
//
//	trigger, err := cron.NewTrigger("pipeline", "0 8 * * *", startRun, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	trigger.Start(ctx)  // Returns immediately, runs in background
//	<-ctx.Done()        // Wait for shutdown signal
package cron

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrInvalidCronSpec is returned when the cron specification cannot be parsed.
var ErrInvalidCronSpec = errors.New("invalid cron spec")

// Trigger executes a job according to a cron schedule.
type Trigger struct {
	name     string
	spec     string
	schedule cron.Schedule
	job      func() error
	logger   *slog.Logger
}

// NewTrigger creates a Trigger running the named job on the given cron
// specification, standard 5-field format (minute, hour, day, month, weekday).
// Returns ErrInvalidCronSpec if the specification cannot be parsed.
func NewTrigger(name, spec string, job func() error, logger *slog.Logger) (*Trigger, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(spec)
	if err != nil {
		return nil, errors.Join(ErrInvalidCronSpec, err)
	}

	return &Trigger{
		name:     name,
		spec:     spec,
		schedule: schedule,
		job:      job,
		logger:   logger,
	}, nil
}

// Name returns the name of the job the trigger runs.
func (t *Trigger) Name() string {
	return t.name
}

// NextRun returns the next scheduled run time from now.
func (t *Trigger) NextRun() time.Time {
	return t.schedule.Next(time.Now())
}

// Start launches the scheduling loop in a goroutine and returns immediately.
// The loop exits when ctx is cancelled.
func (t *Trigger) Start(ctx context.Context) {
	go t.loop(ctx)
}

func (t *Trigger) loop(ctx context.Context) {
	for {
		next := t.schedule.Next(time.Now())
		t.logger.Debug("waiting for next scheduled run", "job", t.name, "next_run", next)

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			t.logger.Info("cron trigger stopped", "job", t.name)
			return
		case <-timer.C:
			t.run()
		}
	}
}

func (t *Trigger) run() {
	t.logger.Info("starting scheduled job", "job", t.name)

	start := time.Now()
	if err := t.job(); err != nil {
		t.logger.Warn("scheduled job failed", "job", t.name, "error", err, "duration", time.Since(start))
		return
	}
	t.logger.Info("scheduled job completed", "job", t.name, "duration", time.Since(start))
}
