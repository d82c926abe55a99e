package preset

import (
	"context"
	"errors"
	"time"

	"github.com/danielpatrickdp/liveweb-controlplane/internal/gate"
	"github.com/danielpatrickdp/liveweb-controlplane/internal/quality"
)

// #region errors
var (
	ErrBusy          = errors.New("preset load in flight")
	ErrNoCandidate   = errors.New("no eligible preset")
	ErrUnknownPreset = errors.New("unknown preset")
	ErrBlacklisted   = errors.New("preset blacklisted")
	// ErrAesthetic marks a preset that loaded but renders badly.
	ErrAesthetic = errors.New("aesthetic failure")
)

// #endregion errors

// #region scope
// Scope is the visual layer a preset is loaded into.
type Scope string

const (
	Foreground Scope = "foreground"
	Background Scope = "background"
)

// Other returns the opposite layer.
func (s Scope) Other() Scope {
	if s == Foreground {
		return Background
	}
	return Foreground
}

// Origin says who asked for a switch.
type Origin string

const (
	Manual Origin = "manual"
	Auto   Origin = "auto"
)

// #endregion scope

// #region descriptor
// Descriptor is a catalog entry. The manager never mutates it.
type Descriptor struct {
	ID    string `json:"id" yaml:"id"`
	URL   string `json:"url" yaml:"url"`
	Label string `json:"label" yaml:"label"`
}

// Request asks for a switch on one scope. An empty PresetID on an auto
// request means "next eligible".
type Request struct {
	Scope       Scope     `json:"scope"`
	Origin      Origin    `json:"origin"`
	PresetID    string    `json:"preset_id,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

// #endregion descriptor

// #region collaborators
// Catalog enumerates presets and can retire broken ones.
type Catalog interface {
	List() []Descriptor
	MarkBroken(id string)
}

// Fetcher retrieves preset content. Called off the scheduler goroutine.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Loader applies fetched content to a layer. Called off the scheduler goroutine.
type Loader interface {
	Apply(ctx context.Context, scope Scope, desc Descriptor, content string) error
}

// Store is the key/value persistence the manager needs.
type Store interface {
	GetJSON(key string, v any) error
	SetJSON(key string, v any) error
}

// Persistence keys.
const (
	KeySoftBlacklist      = "preset.blacklist.soft"
	KeyAestheticBlacklist = "preset.blacklist.aesthetic"
	KeyTransitions        = "preset.transitions"
)

// #endregion collaborators

// #region failure-class
// FailureClass is the severity of a failed or degraded load.
type FailureClass string

const (
	FailureNone      FailureClass = ""
	FailureHard      FailureClass = "hard"
	FailureSoft      FailureClass = "soft"
	FailureAesthetic FailureClass = "aesthetic"
)

// #endregion failure-class

// #region config
// Config tunes the preset lifecycle manager.
type Config struct {
	SwitchCooldown  time.Duration    `yaml:"switch_cooldown"` // per scope, scaled by section
	CrossScopeBlock time.Duration    `yaml:"cross_scope_block"`
	ForegroundPhase gate.PhaseWindow `yaml:"foreground_phase"` // bar boundary
	BackgroundPhase gate.PhaseWindow `yaml:"background_phase"` // mid-bar

	BackoffBase time.Duration `yaml:"backoff_base"`
	BackoffMax  time.Duration `yaml:"backoff_max"`

	SlowLoad     time.Duration `yaml:"slow_load"`
	SoftTTL      time.Duration `yaml:"soft_ttl"`
	AestheticTTL time.Duration `yaml:"aesthetic_ttl"`

	StrikeThreshold int           `yaml:"strike_threshold"`
	StrikeWindow    time.Duration `yaml:"strike_window"`
	AnchorCooldown  time.Duration `yaml:"anchor_cooldown"`
	Anchors         []string      `yaml:"anchors"`

	PressureWindow time.Duration `yaml:"pressure_window"`

	CacheSize     int           `yaml:"cache_size"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`
	PrefetchDepth int           `yaml:"prefetch_depth"`

	Quality quality.Config `yaml:"quality"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		SwitchCooldown:  4 * time.Second,
		CrossScopeBlock: 1200 * time.Millisecond,
		ForegroundPhase: gate.PhaseWindow{Center: 0, HalfWidth: 0.08},
		BackgroundPhase: gate.PhaseWindow{Center: 0.5, HalfWidth: 0.1},

		BackoffBase: 2 * time.Second,
		BackoffMax:  60 * time.Second,

		SlowLoad:     2500 * time.Millisecond,
		SoftTTL:      2 * time.Minute,
		AestheticTTL: 10 * time.Minute,

		StrikeThreshold: 3,
		StrikeWindow:    12 * time.Second,
		AnchorCooldown:  20 * time.Second,

		PressureWindow: 1500 * time.Millisecond,

		CacheSize:     8,
		CacheTTL:      5 * time.Minute,
		PrefetchDepth: 3,

		Quality: quality.DefaultConfig(),
	}
}

// #endregion config

// #region conditions
// Conditions is the per-pass view of the rest of the control plane.
type Conditions struct {
	Gates              gate.State
	BeatPhase          float64
	ResolutionCooldown bool
	Override           bool    // test override: bypass trust gates
	CooldownScale      float64 // section multiplier, 0 = 1
}

// #endregion conditions

// #region report
// Outcome is the result of one switch attempt.
type Outcome string

const (
	OutcomeStarted       Outcome = "started"
	OutcomeQueued        Outcome = "queued"
	OutcomeDenied        Outcome = "denied"
	OutcomeCommitted     Outcome = "committed"
	OutcomeFailed        Outcome = "failed"
	OutcomeQualityFailed Outcome = "quality_failed"
	OutcomeRejected      Outcome = "rejected"
)

// SwitchReport describes one attempt from request to completion.
type SwitchReport struct {
	ID          string        `json:"id"`
	TaskID      string        `json:"task_id,omitempty"`
	Scope       Scope         `json:"scope"`
	Origin      Origin        `json:"origin"`
	PresetID    string        `json:"preset_id"`
	Anchor      bool          `json:"anchor"`
	Outcome     Outcome       `json:"outcome"`
	Reasons     []gate.Reason `json:"reasons,omitempty"`
	Class       FailureClass  `json:"class,omitempty"`
	Error       string        `json:"error,omitempty"`
	CacheHit    bool          `json:"cache_hit"`
	RequestedAt time.Time     `json:"requested_at"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  time.Time     `json:"finished_at"`
	Fetch       time.Duration `json:"fetch"`
	Apply       time.Duration `json:"apply"`
	Total       time.Duration `json:"total"`
}

// #endregion report
