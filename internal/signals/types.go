package signals

import "time"

// #region audio-frame

// AudioFrame is one analysis frame from the audio feature extractor.
// Energy, RMS and band energies are normalized to roughly [0, 1].
type AudioFrame struct {
	Energy float64 `json:"energy"`
	RMS    float64 `json:"rms"`
	Peak   float64 `json:"peak"`
	Bass   float64 `json:"bass"`
	Mid    float64 `json:"mid"`
	High   float64 `json:"high"`
	Flux   float64 `json:"flux"`   // onset flux
	Tempo  float64 `json:"tempo"`  // BPM, 0 = unknown
	Silent bool    `json:"silent"`

	BeatPhase      float64 `json:"beat_phase"` // position inside the bar, [0, 1)
	BeatConfidence float64 `json:"beat_confidence"`
	BeatStability  float64 `json:"beat_stability"`

	// HasBeatInfo is false when the extractor did not supply confidence/stability;
	// the Producer then derives them.
	HasBeatInfo bool `json:"has_beat_info"`
}

// #endregion audio-frame

// #region render-metrics

// RenderMetrics is reported by the renderer alongside each frame.
type RenderMetrics struct {
	FrameTimesMs         []float64 `json:"frame_times_ms"`
	Rebuilding           bool      `json:"rebuilding"`
	LastResolutionCommit time.Time `json:"last_resolution_commit"`
}

// #endregion render-metrics

// #region render-feedback

// LayerFeedback is the sampled average luma and color of one visual layer.
type LayerFeedback struct {
	Luma float64 `json:"luma"`
	R    float64 `json:"r"`
	G    float64 `json:"g"`
	B    float64 `json:"b"`
}

// RenderFeedback carries per-layer samples. Valid is false until the renderer
// has produced its first readback.
type RenderFeedback struct {
	Foreground LayerFeedback `json:"foreground"`
	Background LayerFeedback `json:"background"`
	Valid      bool          `json:"valid"`
}

// #endregion render-feedback

// #region section

// Section is the coarse musical-intensity state.
type Section string

const (
	SectionCalm   Section = "calm"
	SectionGroove Section = "groove"
	SectionPeak   Section = "peak"
)

// SectionState is the classifier output.
type SectionState struct {
	Section   Section
	Intensity float64 // smoothed, [0, 1]
	Scores    map[Section]float64
	ChangedAt time.Time
}

// Scale holds the multiplicative adjustments a section applies elsewhere.
type Scale struct {
	Cooldown  float64 // switch/auto-cycle cooldowns
	Threshold float64 // detection thresholds (e.g. damper flip count)
	Cap       float64 // output caps (e.g. regulator output band)
}

// SectionScale returns the adjustments for s. Unknown sections map to neutral.
func SectionScale(s Section) Scale {
	switch s {
	case SectionCalm:
		return Scale{Cooldown: 1.5, Threshold: 0.9, Cap: 0.7}
	case SectionPeak:
		return Scale{Cooldown: 0.7, Threshold: 1.1, Cap: 1.2}
	default:
		return Scale{Cooldown: 1.0, Threshold: 1.0, Cap: 1.0}
	}
}

// #endregion section

// #region config

// SectionConfig tunes the classifier filters and switching policy.
type SectionConfig struct {
	Attack      float64       `yaml:"attack"`       // filter coefficient when the input rises
	Release     float64       `yaml:"release"`      // filter coefficient when the input falls
	SlowAttack  float64       `yaml:"slow_attack"`  // ambient score rises slowly
	FastRelease float64       `yaml:"fast_release"` // ambient score drops quickly
	Margin      float64       `yaml:"margin"`       // best score must beat current by this much
	MinDwell    time.Duration `yaml:"min_dwell"`    // debounce before a switch commits
	ForceWindow time.Duration `yaml:"force_window"` // after this long without change, margin is waived
}

// DefaultSectionConfig returns sensible defaults.
func DefaultSectionConfig() SectionConfig {
	return SectionConfig{
		Attack:      0.25,
		Release:     0.05,
		SlowAttack:  0.03,
		FastRelease: 0.2,
		Margin:      0.12,
		MinDwell:    1500 * time.Millisecond,
		ForceWindow: 30 * time.Second,
	}
}

// ProducerConfig tunes beat trust derivation.
type ProducerConfig struct {
	HistorySize    int     `yaml:"history_size"`     // tempo/flux samples kept
	TempoJitterMax float64 `yaml:"tempo_jitter_max"` // BPM standard deviation mapping to stability 0
}

// DefaultProducerConfig returns sensible defaults.
func DefaultProducerConfig() ProducerConfig {
	return ProducerConfig{
		HistorySize:    48,
		TempoJitterMax: 8,
	}
}

// #endregion config
