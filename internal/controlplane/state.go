package controlplane

import (
	"github.com/danielpatrickdp/liveweb-controlplane/internal/arbiter"
	"github.com/danielpatrickdp/liveweb-controlplane/internal/config"
	"github.com/danielpatrickdp/liveweb-controlplane/internal/gate"
	"github.com/danielpatrickdp/liveweb-controlplane/internal/preset"
	"github.com/danielpatrickdp/liveweb-controlplane/internal/regulator"
	"github.com/danielpatrickdp/liveweb-controlplane/internal/resolution"
	"github.com/danielpatrickdp/liveweb-controlplane/internal/signals"
)

// ControlPlaneState owns one instance of every component. Each component
// keeps only its own slice of state; the scheduler composes them.
type ControlPlaneState struct {
	Producer   *signals.Producer
	Section    *signals.SectionClassifier
	Gates      *gate.Engine
	Resolution *resolution.Controller
	Presets    *preset.Manager
	Arbiter    *arbiter.Arbiter
	Macros     *arbiter.Bank
	Opacity    *regulator.OpacityRegulator
	Color      *regulator.ColorRegulator
	Damper     *regulator.CouplingDamper
}

// NewState builds every component from cfg.
func NewState(cfg config.Config, deps Deps) *ControlPlaneState {
	var store preset.Store
	if deps.Store != nil {
		store = deps.Store
	}
	arb := arbiter.NewArbiter(deps.Logger)
	return &ControlPlaneState{
		Producer:   signals.NewProducer(cfg.Producer),
		Section:    signals.NewSectionClassifier(cfg.Section),
		Gates:      gate.NewEngine(cfg.Gate, deps.Logger),
		Resolution: resolution.NewController(cfg.Resolution, deps.Logger),
		Presets:    preset.NewManager(cfg.Preset, deps.Catalog, deps.Fetcher, deps.Loader, store, deps.Logger),
		Arbiter:    arb,
		Macros:     arbiter.NewBank(cfg.Arbiter, arb, cfg.Macros),
		Opacity:    regulator.NewOpacityRegulator(cfg.Opacity),
		Color:      regulator.NewColorRegulator(cfg.Color),
		Damper:     regulator.NewCouplingDamper(cfg.Damper, deps.Logger),
	}
}
