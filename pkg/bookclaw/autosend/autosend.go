// Package autosend dispatches the configured outbound broadcast and
// reminder jobs: immediate sends shortly after the transport is ready,
// delayed one-shots, and recurring sends on an interval or cron
// expression. Recurring entries live in a cancellable registry that is
// torn down on transport disconnect and on shutdown; pending one-shot
// timers are not registered but are suppressed once the context is
// cancelled.
package autosend

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// startupGrace is the delay before an immediate job fires, giving the
// transport time to finish connecting.
const startupGrace = time.Second

// Schedule describes when a job fires. Interval granularity is one
// second; sub-second values are rounded up by the cron runner.
type Schedule struct {
	Immediate bool          `yaml:"immediate"`
	Delay     time.Duration `yaml:"delay"`
	Interval  time.Duration `yaml:"interval"`
	Cron      string        `yaml:"cron"`
}

// Job is one configured outbound message.
type Job struct {
	To       string   `yaml:"to"`
	Message  string   `yaml:"message"`
	Schedule Schedule `yaml:"schedule"`
}

// Config is the auto-send section of the bot configuration.
type Config struct {
	Enabled  bool  `yaml:"enabled"`
	Messages []Job `yaml:"messages"`
}

// SendFunc delivers one message through the transport.
type SendFunc func(ctx context.Context, to, message string) error

// AutoSender arms and tears down the scheduled jobs.
type AutoSender struct {
	cfg    Config
	send   SendFunc
	runner *cron.Cron
	logger *slog.Logger

	mu      sync.Mutex
	armed   bool
	entries map[int]cron.EntryID
	ctx     context.Context
	cancel  context.CancelFunc
}

// New creates an auto-sender for the given job list.
func New(cfg Config, send SendFunc, logger *slog.Logger) *AutoSender {
	return &AutoSender{
		cfg:     cfg,
		send:    send,
		runner:  cron.New(),
		logger:  logger.With("component", "autosend"),
		entries: make(map[int]cron.EntryID),
	}
}

// Arm reads the job list and arms all timers. Safe to call again after
// a disconnect; it no-ops while already armed.
func (a *AutoSender) Arm(ctx context.Context) {
	if !a.cfg.Enabled {
		return
	}

	a.mu.Lock()
	if a.armed {
		a.mu.Unlock()
		return
	}
	a.armed = true
	if a.cancel != nil {
		a.cancel()
	}
	a.ctx, a.cancel = context.WithCancel(ctx)
	a.mu.Unlock()

	a.runner.Start()
	a.logger.Info("auto-send armed", "jobs", len(a.cfg.Messages))

	for i, job := range a.cfg.Messages {
		a.armJob(i, job)
	}
}

func (a *AutoSender) armJob(idx int, job Job) {
	s := job.Schedule

	if s.Immediate {
		a.afterFunc(startupGrace, idx, job)
	}

	if s.Delay > 0 || !s.Immediate {
		delay := s.Delay
		time.AfterFunc(delay, func() {
			a.fire(idx, job)
			if s.Interval > 0 {
				a.registerEvery(idx, job, s.Interval)
			}
		})
	}

	if s.Cron != "" {
		if err := a.registerCron(idx, job, s.Cron); err != nil {
			a.logger.Error("invalid cron expression",
				"job", idx,
				"cron", s.Cron,
				"error", err,
			)
		}
	}
}

// afterFunc arms a one-shot timer firing the job. Such timers are not
// in the cancellable registry; the context check suppresses them after
// Stop.
func (a *AutoSender) afterFunc(d time.Duration, idx int, job Job) {
	time.AfterFunc(d, func() {
		a.fire(idx, job)
	})
}

// registerEvery adds a recurring entry at the given interval to the
// cancellable registry.
func (a *AutoSender) registerEvery(idx int, job Job, interval time.Duration) {
	id := a.runner.Schedule(cron.Every(interval), cron.FuncJob(func() {
		a.fire(idx, job)
	}))

	a.mu.Lock()
	a.entries[idx] = id
	a.mu.Unlock()

	a.logger.Info("recurring send scheduled",
		"job", idx,
		"to", job.To,
		"interval", interval,
	)
}

// registerCron adds a recurring entry from a cron expression.
func (a *AutoSender) registerCron(idx int, job Job, expr string) error {
	id, err := a.runner.AddFunc(expr, func() {
		a.fire(idx, job)
	})
	if err != nil {
		return fmt.Errorf("parse %q: %w", expr, err)
	}

	a.mu.Lock()
	a.entries[idx] = id
	a.mu.Unlock()

	a.logger.Info("cron send scheduled", "job", idx, "to", job.To, "cron", expr)
	return nil
}

// fire sends a job's message. Failures are logged, never fatal.
func (a *AutoSender) fire(idx int, job Job) {
	a.mu.Lock()
	ctx := a.ctx
	a.mu.Unlock()

	if ctx == nil || ctx.Err() != nil {
		return
	}

	if err := a.send(ctx, job.To, job.Message); err != nil {
		a.logger.Error("scheduled send failed",
			"job", idx,
			"to", job.To,
			"error", err,
		)
		return
	}
	a.logger.Info("scheduled message sent", "job", idx, "to", job.To)
}

// CancelRecurring removes every entry in the registry. Called on
// transport disconnect so recurring sends stop until re-armed.
func (a *AutoSender) CancelRecurring() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for idx, id := range a.entries {
		a.runner.Remove(id)
		delete(a.entries, idx)
	}
	a.armed = false
	a.logger.Info("recurring sends cancelled")
}

// Stop cancels the context, clears the registry and stops the cron
// runner. Pending one-shot timers still fire but find the context
// cancelled and do nothing.
func (a *AutoSender) Stop() {
	a.mu.Lock()
	if a.cancel != nil {
		a.cancel()
	}
	a.mu.Unlock()

	a.CancelRecurring()

	stopCtx := a.runner.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(2 * time.Second):
	}
}

// PendingRecurring returns the number of registered recurring entries.
func (a *AutoSender) PendingRecurring() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}
