package quality

import "time"

// #region quality-config
// Config holds thresholds for the post-load aesthetic watch.
type Config struct {
	WatchDelay          time.Duration `yaml:"watch_delay"`           // how long luma is sampled after a load
	MinSamples          int           `yaml:"min_samples"`           // fewer samples than this cannot fail a preset
	StaticVarianceFloor float64       `yaml:"static_variance_floor"` // variance below this means a frozen picture
	MinLuma             float64       `yaml:"min_luma"`
	MaxLuma             float64       `yaml:"max_luma"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		WatchDelay:          3 * time.Second,
		MinSamples:          20,
		StaticVarianceFloor: 0.00004,
		MinLuma:             0.03,
		MaxLuma:             0.92,
	}
}

// #endregion quality-config

// #region metric
// Metric captures a single check result.
type Metric struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Pass  bool    `json:"pass"`
}

// #endregion metric

// #region result
// Result is the output of a quality evaluation.
type Result struct {
	PresetID string   `json:"preset_id"`
	Passed   bool     `json:"passed"`
	Metrics  []Metric `json:"metrics"`
	Reason   string   `json:"reason"`
}

// #endregion result
