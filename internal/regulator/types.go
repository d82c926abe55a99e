package regulator

import "time"

// #region pi-config
// PIConfig holds the gains and bands of a sampled PI loop.
type PIConfig struct {
	Kp             float64       `yaml:"kp"`
	Ki             float64       `yaml:"ki"`
	IntegralMin    float64       `yaml:"integral_min"`
	IntegralMax    float64       `yaml:"integral_max"`
	OutputMin      float64       `yaml:"output_min"`
	OutputMax      float64       `yaml:"output_max"`
	MaxRatePerSec  float64       `yaml:"max_rate_per_sec"` // output slew limit
	SampleInterval time.Duration `yaml:"sample_interval"`  // loop runs at most this often
}

// OpacityConfig tunes the luma → opacity-bias loop.
type OpacityConfig struct {
	PI         PIConfig `yaml:"pi"`
	TargetLuma float64  `yaml:"target_luma"`
}

// DefaultOpacityConfig returns sensible defaults.
func DefaultOpacityConfig() OpacityConfig {
	return OpacityConfig{
		PI: PIConfig{
			Kp:             0.8,
			Ki:             0.35,
			IntegralMin:    -0.6,
			IntegralMax:    0.6,
			OutputMin:      -0.35,
			OutputMax:      0.35,
			MaxRatePerSec:  0.25,
			SampleInterval: 250 * time.Millisecond,
		},
		TargetLuma: 0.42,
	}
}

// ColorConfig tunes the chroma → saturation-bias loop.
type ColorConfig struct {
	PI           PIConfig `yaml:"pi"`
	TargetChroma float64  `yaml:"target_chroma"`
}

// DefaultColorConfig returns sensible defaults.
func DefaultColorConfig() ColorConfig {
	return ColorConfig{
		PI: PIConfig{
			Kp:             0.6,
			Ki:             0.2,
			IntegralMin:    -0.5,
			IntegralMax:    0.5,
			OutputMin:      -0.3,
			OutputMax:      0.3,
			MaxRatePerSec:  0.2,
			SampleInterval: 500 * time.Millisecond,
		},
		TargetChroma: 0.18,
	}
}

// #endregion pi-config

// #region loop-state
// LoopState is the runtime-only state of a PI loop.
type LoopState struct {
	Integral   float64   `json:"integral"`
	Output     float64   `json:"output"`
	LastError  float64   `json:"last_error"`
	LastUpdate time.Time `json:"last_update"`
}

// Inputs gate a regulator step.
type Inputs struct {
	AudioValid     bool
	VisibilityHold bool    // recent direct user edit of opacity-affecting controls
	RenderHold     bool    // rebuild in progress or resolution cooldown
	CapScale       float64 // section cap multiplier, 0 = 1
	SlowCadence    bool    // load pressure: sample at half rate
}

// Mode describes what a regulator step did.
type Mode string

const (
	ModeDisabled Mode = "disabled"
	ModeHeld     Mode = "held"
	ModeWaiting  Mode = "waiting"
	ModeSampled  Mode = "sampled"
)

// Output is a regulator result.
type Output struct {
	Value float64 `json:"value"`
	Mode  Mode    `json:"mode"`
}

// #endregion loop-state

// #region damper-config
// DamperConfig tunes the coupling damper.
type DamperConfig struct {
	EdgeWeight       float64 `yaml:"edge_weight"`
	AudioWeight      float64 `yaml:"audio_weight"`
	PIWeight         float64 `yaml:"pi_weight"`
	PresetBiasWeight float64 `yaml:"preset_bias_weight"`
	LumaDiffWeight   float64 `yaml:"luma_diff_weight"`
	DriveLimit       float64 `yaml:"drive_limit"` // combined signal is clamped to ±DriveLimit

	FlipWindow     time.Duration `yaml:"flip_window"`
	FlipThreshold  int           `yaml:"flip_threshold"`
	DampenFactor   float64       `yaml:"dampen_factor"`
	DampenDuration time.Duration `yaml:"dampen_duration"`

	SwitchDampenFactor   float64       `yaml:"switch_dampen_factor"`
	SwitchDampenDuration time.Duration `yaml:"switch_dampen_duration"`

	ForegroundGain float64 `yaml:"foreground_gain"`
	BackgroundGain float64 `yaml:"background_gain"`
	Budget         float64 `yaml:"budget"` // ceiling on |fg| + |bg|
}

// DefaultDamperConfig returns sensible defaults.
func DefaultDamperConfig() DamperConfig {
	return DamperConfig{
		EdgeWeight:       0.3,
		AudioWeight:      0.4,
		PIWeight:         1.0,
		PresetBiasWeight: 0.5,
		LumaDiffWeight:   0.3,
		DriveLimit:       1.0,

		FlipWindow:     2 * time.Second,
		FlipThreshold:  4,
		DampenFactor:   0.5,
		DampenDuration: 1500 * time.Millisecond,

		SwitchDampenFactor:   0.3,
		SwitchDampenDuration: 600 * time.Millisecond,

		ForegroundGain: 0.6,
		BackgroundGain: 0.5,
		Budget:         0.8,
	}
}

// Drives are the signed contributions combined by the damper.
type Drives struct {
	Edge       float64 `json:"edge"`
	Audio      float64 `json:"audio"`
	PI         float64 `json:"pi"`
	PresetBias float64 `json:"preset_bias"`
	LumaDiff   float64 `json:"luma_diff"`
}

// Coupled is the damper output.
type Coupled struct {
	Combined   float64 `json:"combined"`
	Foreground float64 `json:"foreground"`
	Background float64 `json:"background"`
	Multiplier float64 `json:"multiplier"`
	Flips      int     `json:"flips"`
}

// #endregion damper-config
