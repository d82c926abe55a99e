package controlplane

import (
	"database/sql"
	"time"

	"github.com/danielpatrickdp/liveweb-controlplane/internal/arbiter"
	"github.com/danielpatrickdp/liveweb-controlplane/internal/gate"
	"github.com/danielpatrickdp/liveweb-controlplane/internal/preset"
	"github.com/danielpatrickdp/liveweb-controlplane/internal/regulator"
	"github.com/danielpatrickdp/liveweb-controlplane/internal/resolution"
	"github.com/danielpatrickdp/liveweb-controlplane/internal/signals"
	"github.com/rs/zerolog"
)

// #region deps
// Store is the key/value persistence the scheduler needs. *state.Store
// satisfies it.
type Store interface {
	GetJSON(key string, v any) error
	SetJSON(key string, v any) error
	GetInt(key string) (int, error)
	SetInt(key string, v int) error
	GetBool(key string) (bool, error)
	SetBool(key string, v bool) error
}

// Writer runs persistence jobs off the scheduler goroutine. *state.Writer
// satisfies it.
type Writer interface {
	Enqueue(name string, fn func() error) error
}

// Deps are the external collaborators. Store, DB and Writer may be nil; with
// no Writer, report logging runs inline.
type Deps struct {
	Catalog preset.Catalog
	Fetcher preset.Fetcher
	Loader  preset.Loader
	Store   Store
	DB      *sql.DB
	Writer  Writer
	Logger  zerolog.Logger
}

// #endregion deps

// #region effects
// Effects is everything one audio frame produced, returned as data for the
// renderer, the feed and diagnostics.
type Effects struct {
	At         time.Time             `json:"at"`
	Gates      gate.State            `json:"gates"`
	GateEvents []gate.Event          `json:"gate_events,omitempty"`
	Section    signals.Section       `json:"section"`
	Intensity  float64               `json:"intensity"`
	Resolution resolution.Decision   `json:"resolution"`
	Scale      float64               `json:"scale"`
	Switches   []preset.SwitchReport `json:"switches,omitempty"`
	Ownership  []arbiter.Event       `json:"ownership,omitempty"`
	Macros     map[string]float64    `json:"macros"`
	Opacity    regulator.Output      `json:"opacity"`
	Color      regulator.Output      `json:"color"`
	Coupled    regulator.Coupled     `json:"coupled"`
	Status     string                `json:"status"`
}

// #endregion effects

// #region status
// Status is a point-in-time snapshot for diagnostics.
type Status struct {
	At           time.Time           `json:"at"`
	Enabled      bool                `json:"enabled"`
	Override     bool                `json:"override"`
	AutoCycle    bool                `json:"auto_cycle"`
	Gates        gate.State          `json:"gates"`
	Section      signals.Section     `json:"section"`
	ScaleIndex   int                 `json:"scale_index"`
	Scale        float64             `json:"scale"`
	Foreground   string              `json:"foreground"`
	Background   string              `json:"background"`
	Pending      []preset.Request    `json:"pending,omitempty"`
	InFlight     bool                `json:"in_flight"`
	Owner        arbiter.Source      `json:"owner"`
	Strikes      int                 `json:"strikes"`
	BackoffUntil time.Time           `json:"backoff_until"`
	Message      string              `json:"message"`
	LastSwitch   preset.SwitchReport `json:"last_switch"`
	Macros       map[string]float64  `json:"macros"`
	LastFrameAt  time.Time           `json:"last_frame_at"`
}

// #endregion status

// #region test-control
// TestControl is the diagnostics surface injected into remote tooling. It
// replaces ad hoc global hooks.
type TestControl interface {
	SetOverride(on bool)
	ForceSection(s signals.Section)
	SetEnabled(on bool)
	SetAutoCycle(on bool)
	LastFrameAt() time.Time
}

// #endregion test-control
