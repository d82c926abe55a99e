package diag

import (
	"context"

	"github.com/danielpatrickdp/liveweb-controlplane/internal/controlplane"
	"github.com/danielpatrickdp/liveweb-controlplane/internal/gate"
	"github.com/danielpatrickdp/liveweb-controlplane/internal/preset"
	"github.com/danielpatrickdp/liveweb-controlplane/internal/signals"
)

// #region types
// Override is a partial test-control update. Nil fields are left alone.
type Override struct {
	Override  *bool            `json:"override,omitempty"`
	Section   *signals.Section `json:"section,omitempty"`
	Enabled   *bool            `json:"enabled,omitempty"`
	AutoCycle *bool            `json:"auto_cycle,omitempty"`
}

// Events is the recent-history view.
type Events struct {
	Gates    []gate.Event          `json:"gates"`
	Switches []preset.SwitchReport `json:"switches"`
}

// Backend is what the diagnostics service reads from and writes to.
type Backend interface {
	Status(ctx context.Context) (controlplane.Status, error)
	RequestPreset(ctx context.Context, req preset.Request) (preset.SwitchReport, error)
	SetTestOverride(ctx context.Context, o Override) (controlplane.Status, error)
	RecentEvents(ctx context.Context) (Events, error)
}

// #endregion types
