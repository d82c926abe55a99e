package resolution

import "time"

// #region config
// Config tunes the probe-then-commit protocol.
type Config struct {
	Ladder []float64 `yaml:"ladder"` // descending render scales

	DownThresholdMs float64       `yaml:"down_threshold_ms"` // P95 above this arms a downscale probe
	DownArmDelay    time.Duration `yaml:"down_arm_delay"`    // continuous time over threshold before probing
	DownProbeWindow time.Duration `yaml:"down_probe_window"` // probe must hold this long before committing

	UpThresholdMs float64       `yaml:"up_threshold_ms"` // P95 below this arms an upscale probe
	UpArmDelay    time.Duration `yaml:"up_arm_delay"`
	UpProbeWindow time.Duration `yaml:"up_probe_window"`

	CommitCooldown time.Duration `yaml:"commit_cooldown"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Ladder:          []float64{1.0, 0.85, 0.7, 0.6},
		DownThresholdMs: 24,
		DownArmDelay:    500 * time.Millisecond,
		DownProbeWindow: time.Second,
		UpThresholdMs:   14,
		UpArmDelay:      8 * time.Second,
		UpProbeWindow:   2 * time.Second,
		CommitCooldown:  3 * time.Second,
	}
}

// #endregion config

// #region inputs
// Inputs is everything the controller reads per step.
type Inputs struct {
	FrameTimeP95Ms float64
	AudioValid     bool
	RenderStable   bool
	Rebuilding     bool
	LoadInFlight   bool
	UnderPressure  bool    // preset load pressure window: upscale is held
	CooldownScale  float64 // multiplies the commit cooldown, 0 = 1
}

// #endregion inputs

// #region decision
// Direction of a probe or commit.
type Direction string

const (
	Down Direction = "down"
	Up   Direction = "up"
)

// Action describes what happened during a step.
type Action string

const (
	ActionNone   Action = "none"
	ActionProbe  Action = "probe"
	ActionCommit Action = "commit"
	ActionDeny   Action = "deny"
)

// Decision is the result of one Step.
type Decision struct {
	Action    Action    `json:"action"`
	Direction Direction `json:"direction,omitempty"`
	From      int       `json:"from"`
	To        int       `json:"to"`
	Scale     float64   `json:"scale"`
	Reasons   []string  `json:"reasons,omitempty"`
	At        time.Time `json:"at"`
}

// State is the persistent part of the controller.
type State struct {
	ScaleIndex int       `json:"scale_index"`
	LastCommit time.Time `json:"last_commit"`
}

// #endregion decision
