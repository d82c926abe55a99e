package resolution

import (
	"time"

	"github.com/danielpatrickdp/liveweb-controlplane/internal/timing"
	"github.com/rs/zerolog"
)

// #region controller
// Controller adaptively moves along the resolution ladder. Downscale is the
// fix for overload and may commit while the render is unstable; upscale is
// slow to arm and requires a stable render.
type Controller struct {
	config Config
	logger zerolog.Logger

	index      int
	lastCommit time.Time
	cooldown   timing.Cooldown

	over      timing.Since
	under     timing.Since
	downProbe bool
	upProbe   bool
}

// NewController creates a controller at full scale.
func NewController(config Config, logger zerolog.Logger) *Controller {
	if len(config.Ladder) == 0 {
		config.Ladder = []float64{1}
	}
	return &Controller{
		config: config,
		logger: logger.With().Str("component", "resolution").Logger(),
	}
}

// #endregion controller

// #region step
// Step advances the probe timers by one sample and commits when allowed.
// Denied commits leave both the index and the probe timers untouched so a
// recovered condition can commit promptly.
func (c *Controller) Step(in Inputs, now time.Time) Decision {
	overFor := c.over.Observe(in.FrameTimeP95Ms > c.config.DownThresholdMs, now)
	underFor := c.under.Observe(in.FrameTimeP95Ms < c.config.UpThresholdMs, now)

	if !c.over.Held() {
		c.downProbe = false
	}
	if !c.under.Held() {
		c.upProbe = false
	}

	if c.over.Held() && overFor >= c.config.DownArmDelay {
		if !c.downProbe {
			c.downProbe = true
			c.logger.Debug().Float64("p95_ms", in.FrameTimeP95Ms).Msg("downscale probe armed")
			return c.decision(ActionProbe, Down, c.index, nil, now)
		}
		if overFor >= c.config.DownArmDelay+c.config.DownProbeWindow {
			return c.tryCommit(Down, in, now)
		}
	}

	if c.under.Held() && underFor >= c.config.UpArmDelay {
		if !c.upProbe {
			c.upProbe = true
			c.logger.Debug().Float64("p95_ms", in.FrameTimeP95Ms).Msg("upscale probe armed")
			return c.decision(ActionProbe, Up, c.index, nil, now)
		}
		if underFor >= c.config.UpArmDelay+c.config.UpProbeWindow {
			return c.tryCommit(Up, in, now)
		}
	}

	return c.decision(ActionNone, "", c.index, nil, now)
}

func (c *Controller) tryCommit(dir Direction, in Inputs, now time.Time) Decision {
	target := c.index + 1
	if dir == Up {
		target = c.index - 1
	}

	var reasons []string
	if target < 0 || target >= len(c.config.Ladder) {
		reasons = append(reasons, "ladder_bound")
	}
	if !in.AudioValid {
		reasons = append(reasons, "audio_invalid")
	}
	if in.Rebuilding {
		reasons = append(reasons, "rebuilding")
	}
	if in.LoadInFlight {
		reasons = append(reasons, "load_in_flight")
	}
	if c.cooldown.Active(now) {
		reasons = append(reasons, "cooldown")
	}
	if dir == Up && !in.RenderStable {
		reasons = append(reasons, "render_unstable")
	}
	if dir == Up && in.UnderPressure {
		reasons = append(reasons, "load_pressure")
	}
	if len(reasons) > 0 {
		return c.decision(ActionDeny, dir, c.index, reasons, now)
	}

	from := c.index
	c.index = target
	c.lastCommit = now
	cd := c.config.CommitCooldown
	if in.CooldownScale > 0 {
		cd = time.Duration(float64(cd) * in.CooldownScale)
	}
	c.cooldown.Arm(now, cd)
	c.over.Reset()
	c.under.Reset()
	c.downProbe = false
	c.upProbe = false

	c.logger.Info().
		Str("direction", string(dir)).
		Int("from", from).
		Int("to", c.index).
		Float64("scale", c.Scale()).
		Msg("resolution commit")
	d := c.decision(ActionCommit, dir, from, nil, now)
	d.To = c.index
	return d
}

// #endregion step

// #region accessors
// Scale returns the current render scale.
func (c *Controller) Scale() float64 {
	return c.config.Ladder[c.index]
}

// State returns the index and last commit time.
func (c *Controller) State() State {
	return State{ScaleIndex: c.index, LastCommit: c.lastCommit}
}

// Restore sets the index (clamped to the ladder), e.g. from persisted settings.
func (c *Controller) Restore(index int) {
	if index < 0 {
		index = 0
	}
	if index >= len(c.config.Ladder) {
		index = len(c.config.Ladder) - 1
	}
	c.index = index
}

// CooldownActive reports whether a commit happened recently.
func (c *Controller) CooldownActive(now time.Time) bool {
	return c.cooldown.Active(now)
}

func (c *Controller) decision(a Action, dir Direction, from int, reasons []string, now time.Time) Decision {
	return Decision{
		Action:    a,
		Direction: dir,
		From:      from,
		To:        c.index,
		Scale:     c.Scale(),
		Reasons:   reasons,
		At:        now,
	}
}

// #endregion accessors
