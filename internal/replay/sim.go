package replay

import (
	"context"
	"errors"
	"time"

	"github.com/danielpatrickdp/liveweb-controlplane/internal/preset"
)

// simLoad is a load parked inside the simulated renderer.
type simLoad struct {
	presetID string
	latency  time.Duration
	release  chan struct{}
}

// simRenderer fetches instantly and applies presets according to the
// fixture script, blocking each apply until the harness releases it.
type simRenderer struct {
	loads   map[string]FixtureLoad
	entered chan *simLoad
}

func newSimRenderer(loads map[string]FixtureLoad) *simRenderer {
	return &simRenderer{loads: loads, entered: make(chan *simLoad, 1)}
}

func (r *simRenderer) Fetch(ctx context.Context, url string) (string, error) {
	return "sim:" + url, nil
}

func (r *simRenderer) Apply(ctx context.Context, scope preset.Scope, desc preset.Descriptor, content string) error {
	script := r.loads[desc.ID]
	l := &simLoad{
		presetID: desc.ID,
		latency:  time.Duration(script.LatencyMs) * time.Millisecond,
		release:  make(chan struct{}),
	}
	select {
	case r.entered <- l:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-l.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	if script.Error != "" {
		return errors.New(script.Error)
	}
	return nil
}
