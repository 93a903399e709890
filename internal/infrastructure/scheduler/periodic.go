package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"NewsDesk/internal/logging"
	"NewsDesk/internal/ports"
)

// Periodic runs a job right away and then every interval until the context ends.
// A failed or panicking run is logged and followed by the backoff delay instead.
type Periodic struct {
	name     string
	interval time.Duration
	backoff  time.Duration
	logger   *slog.Logger
	wait     func(ctx context.Context, d time.Duration) bool
}

var _ ports.Scheduler = (*Periodic)(nil)

// NewPeriodic builds a runner; name only tags log records.
func NewPeriodic(name string, interval, backoff time.Duration, logger *slog.Logger) *Periodic {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Periodic{
		name:     name,
		interval: interval,
		backoff:  backoff,
		logger:   logger.With("loop", name),
		wait:     sleep,
	}
}

// Run blocks until ctx is cancelled; it never returns a job error.
func (p *Periodic) Run(ctx context.Context, job ports.Job) error {
	if job == nil {
		return nil
	}

	for {
		delay := p.interval
		if err := p.runOnce(ctx, job); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.logger.Error("periodic job failed", "error", err, "retry_in", p.backoff)
			delay = p.backoff
		}

		if !p.wait(ctx, delay) {
			p.logger.Info("periodic loop stopped")
			return nil
		}
	}
}

func (p *Periodic) runOnce(ctx context.Context, job ports.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()

	return job(ctx)
}

// sleep waits d or until ctx is done; it reports false on cancellation.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
