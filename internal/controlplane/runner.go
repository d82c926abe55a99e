package controlplane

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// ErrInboxFull is returned by Post when the scheduler is not keeping up.
var ErrInboxFull = errors.New("scheduler inbox full")

// #region runner
// Runner owns the scheduler goroutine. Network readers and RPC handlers never
// touch the Scheduler directly: they post closures that run here in order.
type Runner struct {
	sched  *Scheduler
	inbox  chan func(*Scheduler)
	tick   time.Duration
	logger zerolog.Logger
}

// NewRunner wraps s. tick is the low-frequency timer period.
func NewRunner(s *Scheduler, tick time.Duration, inboxSize int, logger zerolog.Logger) *Runner {
	if inboxSize < 1 {
		inboxSize = 1
	}
	return &Runner{
		sched:  s,
		inbox:  make(chan func(*Scheduler), inboxSize),
		tick:   tick,
		logger: logger.With().Str("component", "runner").Logger(),
	}
}

// Post enqueues fn without waiting. It fails instead of blocking when the
// inbox is full so a reader can never stall on a slow frame.
func (r *Runner) Post(fn func(*Scheduler)) error {
	select {
	case r.inbox <- fn:
		return nil
	default:
		return ErrInboxFull
	}
}

// Call runs fn on the scheduler goroutine and waits for it.
func (r *Runner) Call(ctx context.Context, fn func(*Scheduler)) error {
	done := make(chan struct{})
	wrapped := func(s *Scheduler) {
		defer close(done)
		fn(s)
	}
	select {
	case r.inbox <- wrapped:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes the inbox and timers until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	var tickC <-chan time.Time
	if r.tick > 0 {
		t := time.NewTicker(r.tick)
		defer t.Stop()
		tickC = t.C
	}
	r.logger.Info().Dur("tick", r.tick).Msg("scheduler loop started")
	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("scheduler loop stopped")
			return ctx.Err()
		case fn := <-r.inbox:
			r.safely(fn)
		case now := <-tickC:
			r.safely(func(s *Scheduler) { s.Tick(now) })
		}
	}
}

// safely keeps a panicking closure from taking the loop down.
func (r *Runner) safely(fn func(*Scheduler)) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error().Interface("panic", p).Msg("scheduler task panicked")
		}
	}()
	fn(r.sched)
}

// #endregion runner
