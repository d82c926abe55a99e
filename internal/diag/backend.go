package diag

import (
	"context"
	"errors"
	"time"

	"github.com/danielpatrickdp/liveweb-controlplane/internal/controlplane"
	"github.com/danielpatrickdp/liveweb-controlplane/internal/preset"
)

// ErrTaskFailed reports a scheduler task that ended without a result.
var ErrTaskFailed = errors.New("scheduler task failed")

// RunnerBackend serves diagnostics from the scheduler goroutine.
type RunnerBackend struct {
	Runner *controlplane.Runner
	Now    func() time.Time // nil = time.Now
}

func (b RunnerBackend) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now()
}

func (b RunnerBackend) Status(ctx context.Context) (controlplane.Status, error) {
	return call(ctx, b.Runner, func(s *controlplane.Scheduler) controlplane.Status {
		return s.Status(b.now())
	})
}

func (b RunnerBackend) RequestPreset(ctx context.Context, req preset.Request) (preset.SwitchReport, error) {
	return call(ctx, b.Runner, func(s *controlplane.Scheduler) preset.SwitchReport {
		return s.Request(req, b.now())
	})
}

func (b RunnerBackend) SetTestOverride(ctx context.Context, o Override) (controlplane.Status, error) {
	return call(ctx, b.Runner, func(s *controlplane.Scheduler) controlplane.Status {
		applyOverride(s, o)
		return s.Status(b.now())
	})
}

func (b RunnerBackend) RecentEvents(ctx context.Context) (Events, error) {
	return call(ctx, b.Runner, func(s *controlplane.Scheduler) Events {
		return Events{Gates: s.RecentGateEvents(), Switches: s.RecentSwitches()}
	})
}

// call runs fn on the scheduler goroutine. The result travels over a
// buffered channel so a closure that runs after ctx gave up writes nowhere
// the caller can still see.
func call[T any](ctx context.Context, r *controlplane.Runner, fn func(*controlplane.Scheduler) T) (T, error) {
	var zero T
	out := make(chan T, 1)
	if err := r.Call(ctx, func(s *controlplane.Scheduler) { out <- fn(s) }); err != nil {
		return zero, err
	}
	select {
	case v := <-out:
		return v, nil
	default:
		// fn panicked; the runner recovered and closed the call.
		return zero, ErrTaskFailed
	}
}

func applyOverride(tc controlplane.TestControl, o Override) {
	if o.Override != nil {
		tc.SetOverride(*o.Override)
	}
	if o.Section != nil {
		tc.ForceSection(*o.Section)
	}
	if o.Enabled != nil {
		tc.SetEnabled(*o.Enabled)
	}
	if o.AutoCycle != nil {
		tc.SetAutoCycle(*o.AutoCycle)
	}
}
