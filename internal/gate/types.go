package gate

import (
	"strings"
	"time"
)

// #region gate-name
// Name identifies one of the three trust gates.
type Name string

const (
	AudioValid   Name = "audio_valid"
	BeatTrusted  Name = "beat_trusted"
	RenderStable Name = "render_stable"
)

// #endregion gate-name

// #region gate-config
// Config holds thresholds and windows for the trust gates.
type Config struct {
	AudioRMSFloor   float64       `yaml:"audio_rms_floor"`   // rms below this is a bad frame
	AudioGoodFrames int           `yaml:"audio_good_frames"` // consecutive good frames before asserting
	AudioCooldown   time.Duration `yaml:"audio_cooldown"`    // no re-assert after a violation

	BeatConfidenceMin float64       `yaml:"beat_confidence_min"`
	BeatStabilityMin  float64       `yaml:"beat_stability_min"`
	BeatTrustWindow   time.Duration `yaml:"beat_trust_window"` // continuous time above thresholds
	BeatCooldown      time.Duration `yaml:"beat_cooldown"`

	RenderP95CeilingMs       float64       `yaml:"render_p95_ceiling_ms"`
	RenderResolutionCooldown time.Duration `yaml:"render_resolution_cooldown"` // recent commit counts as a violation
	RenderCooldown           time.Duration `yaml:"render_cooldown"`

	EventBufferSize int `yaml:"event_buffer_size"`
}

// PhaseWindow is a circular window on the bar phase [0, 1).
type PhaseWindow struct {
	Center    float64 `yaml:"center"`
	HalfWidth float64 `yaml:"half_width"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		AudioRMSFloor:   0.01,
		AudioGoodFrames: 12,
		AudioCooldown:   1500 * time.Millisecond,

		BeatConfidenceMin: 0.55,
		BeatStabilityMin:  0.5,
		BeatTrustWindow:   2 * time.Second,
		BeatCooldown:      2 * time.Second,

		RenderP95CeilingMs:       28,
		RenderResolutionCooldown: 1500 * time.Millisecond,
		RenderCooldown:           time.Second,

		EventBufferSize: 64,
	}
}

// #endregion gate-config

// #region state
// State is the snapshot of all three gates.
type State struct {
	AudioValid   bool      `json:"audio_valid"`
	BeatTrusted  bool      `json:"beat_trusted"`
	RenderStable bool      `json:"render_stable"`
	AudioUntil   time.Time `json:"audio_cooldown_until"`
	BeatUntil    time.Time `json:"beat_cooldown_until"`
	RenderUntil  time.Time `json:"render_cooldown_until"`
}

// RenderInputs is the render-side input to the engine.
type RenderInputs struct {
	Rebuilding           bool
	LastResolutionCommit time.Time
	FrameTimeP95Ms       float64
}

// Event records a gate flip.
type Event struct {
	Gate   Name      `json:"gate"`
	Value  bool      `json:"value"`
	At     time.Time `json:"at"`
	Reason string    `json:"reason"`
}

// #endregion state

// #region reason
// Reason is a named switch-gating failure.
type Reason string

const (
	ReasonBackoff            Reason = "backoff"
	ReasonAudioInvalid       Reason = "audio_invalid"
	ReasonBeatUntrusted      Reason = "beat_untrusted"
	ReasonRenderUnstable     Reason = "render_unstable"
	ReasonResolutionCooldown Reason = "resolution_cooldown"
	ReasonSwitchCooldown     Reason = "switch_cooldown"
	ReasonCrossScopeRecent   Reason = "cross_scope_recent"
	ReasonPhaseWindow        Reason = "phase_window"
)

// #endregion reason

// #region switch-decision
// SwitchCheck bundles the inputs to a switch gate evaluation. Scope-specific
// timers are resolved by the caller into booleans.
type SwitchCheck struct {
	Auto                     bool
	Gates                    State
	Override                 bool // test override: bypass trust gates
	BackoffActive            bool
	ResolutionCooldownActive bool
	SwitchCooldownActive     bool
	CrossScopeActive         bool
	BeatPhase                float64
	Window                   PhaseWindow
}

// SwitchDecision is the output of EvaluateSwitch.
type SwitchDecision struct {
	Action     string // "commit" | "deny"
	Reasons    []Reason
	Overridden bool
}

// Allowed reports whether the switch may run now.
func (d SwitchDecision) Allowed() bool {
	return d.Action == "commit"
}

// ReasonText joins reason codes with commas.
func (d SwitchDecision) ReasonText() string {
	parts := make([]string, len(d.Reasons))
	for i, r := range d.Reasons {
		parts[i] = string(r)
	}
	return strings.Join(parts, ",")
}

// #endregion switch-decision
