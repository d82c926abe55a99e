package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/danielpatrickdp/liveweb-controlplane/internal/arbiter"
	"github.com/danielpatrickdp/liveweb-controlplane/internal/gate"
	"github.com/danielpatrickdp/liveweb-controlplane/internal/preset"
	"github.com/danielpatrickdp/liveweb-controlplane/internal/regulator"
	"github.com/danielpatrickdp/liveweb-controlplane/internal/resolution"
	"github.com/danielpatrickdp/liveweb-controlplane/internal/signals"
	"gopkg.in/yaml.v3"
)

// #region config
// Config aggregates every component's tuning plus process settings.
type Config struct {
	Enabled        bool          `yaml:"enabled"` // kill switch: false freezes preset and regulator output
	AutoCycle      time.Duration `yaml:"auto_cycle"`
	VisibilityHold time.Duration `yaml:"visibility_hold"` // regulator pause after a direct edit
	OpacityMacros  []string      `yaml:"opacity_macros"`  // macros whose edits arm the visibility hold
	FeedAddr       string        `yaml:"feed_addr"`
	FeedOrigins    []string      `yaml:"feed_origins"` // websocket origin patterns
	DiagAddr       string        `yaml:"diag_addr"`
	DBPath         string        `yaml:"db_path"`
	LogLevel       string        `yaml:"log_level"`
	LogPretty      bool          `yaml:"log_pretty"`

	Gate       gate.Config             `yaml:"gate"`
	Section    signals.SectionConfig   `yaml:"section"`
	Producer   signals.ProducerConfig  `yaml:"producer"`
	Resolution resolution.Config       `yaml:"resolution"`
	Preset     preset.Config           `yaml:"preset"`
	Arbiter    arbiter.Config          `yaml:"arbiter"`
	Opacity    regulator.OpacityConfig `yaml:"opacity"`
	Color      regulator.ColorConfig   `yaml:"color"`
	Damper     regulator.DamperConfig  `yaml:"damper"`

	Catalog        []preset.Descriptor `yaml:"catalog"`
	PresetBias     map[string]float64  `yaml:"preset_bias"` // per-preset opacity drive bias
	Macros         map[string]float64  `yaml:"macros"`      // initial macro values
	FetchTimeout   time.Duration       `yaml:"fetch_timeout"`
	LoadAckTimeout time.Duration       `yaml:"load_ack_timeout"` // renderer ack wait, 0 = none
}

// Default returns the tuned defaults for every component.
func Default() Config {
	return Config{
		Enabled:        true,
		AutoCycle:      45 * time.Second,
		VisibilityHold: 3 * time.Second,
		OpacityMacros:  []string{"energy", "density"},
		FeedAddr:       ":8420",
		FeedOrigins:    []string{"localhost:*", "127.0.0.1:*"},
		DiagAddr:       ":8421",
		DBPath:         "liveweb.db",
		LogLevel:       "info",
		FetchTimeout:   5 * time.Second,
		LoadAckTimeout: 10 * time.Second,

		Gate:       gate.DefaultConfig(),
		Section:    signals.DefaultSectionConfig(),
		Producer:   signals.DefaultProducerConfig(),
		Resolution: resolution.DefaultConfig(),
		Preset:     preset.DefaultConfig(),
		Arbiter:    arbiter.DefaultConfig(),
		Opacity:    regulator.DefaultOpacityConfig(),
		Color:      regulator.DefaultColorConfig(),
		Damper:     regulator.DefaultDamperConfig(),

		Macros: map[string]float64{
			"energy":  0.5,
			"motion":  0.5,
			"warmth":  0.5,
			"density": 0.5,
		},
	}
}

// #endregion config

// #region load
// Load overlays the YAML file at path (if non-empty) onto Default, applies
// environment overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("LIVEWEB_DB"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("LIVEWEB_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("LIVEWEB_FEED_ADDR"); v != "" {
		c.FeedAddr = v
	}
	if v := os.Getenv("LIVEWEB_DIAG_ADDR"); v != "" {
		c.DiagAddr = v
	}
	if v := os.Getenv("CONTROLPLANE_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("CONTROLPLANE_ENABLED: %w", err)
		}
		c.Enabled = b
	}
	return nil
}

// #endregion load

// #region validate
// Validate rejects configurations the components cannot run with.
func (c Config) Validate() error {
	var errs []error
	if len(c.Resolution.Ladder) == 0 {
		errs = append(errs, errors.New("resolution.ladder must not be empty"))
	}
	for i := 1; i < len(c.Resolution.Ladder); i++ {
		if c.Resolution.Ladder[i] >= c.Resolution.Ladder[i-1] {
			errs = append(errs, errors.New("resolution.ladder must be strictly descending"))
			break
		}
	}
	if c.Gate.AudioGoodFrames < 1 {
		errs = append(errs, errors.New("gate.audio_good_frames must be at least 1"))
	}
	if c.Preset.StrikeThreshold < 1 {
		errs = append(errs, errors.New("preset.strike_threshold must be at least 1"))
	}
	if c.Preset.CacheSize < 0 || c.Preset.PrefetchDepth < 0 {
		errs = append(errs, errors.New("preset cache_size and prefetch_depth must not be negative"))
	}
	if c.Preset.BackoffMax < c.Preset.BackoffBase {
		errs = append(errs, errors.New("preset.backoff_max must not be below backoff_base"))
	}
	if c.Opacity.PI.SampleInterval <= 0 || c.Color.PI.SampleInterval <= 0 {
		errs = append(errs, errors.New("regulator sample_interval must be positive"))
	}
	if c.Damper.Budget <= 0 {
		errs = append(errs, errors.New("damper.budget must be positive"))
	}
	for _, w := range []gate.PhaseWindow{c.Preset.ForegroundPhase, c.Preset.BackgroundPhase} {
		if w.HalfWidth < 0 || w.HalfWidth > 0.5 {
			errs = append(errs, fmt.Errorf("phase window half_width %.3f out of [0, 0.5]", w.HalfWidth))
		}
	}
	for id, b := range c.PresetBias {
		if b < -1 || b > 1 {
			errs = append(errs, fmt.Errorf("preset_bias %s: %.3f out of [-1, 1]", id, b))
		}
	}
	if c.AutoCycle < 0 {
		errs = append(errs, errors.New("auto_cycle must not be negative"))
	}
	if c.LoadAckTimeout < 0 || c.FetchTimeout < 0 {
		errs = append(errs, errors.New("load_ack_timeout and fetch_timeout must not be negative"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// #endregion validate
