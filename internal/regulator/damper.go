package regulator

import (
	"math"
	"time"

	"github.com/danielpatrickdp/liveweb-controlplane/internal/timing"
	"github.com/rs/zerolog"
)

// #region damper
// CouplingDamper combines drive contributions into one bounded signal,
// suppresses oscillation, and splits it into foreground/background outputs
// under a shared opacity budget.
type CouplingDamper struct {
	config DamperConfig
	logger zerolog.Logger

	lastSign int
	flips    []time.Time
	flipCD   timing.Cooldown
	switchCD timing.Cooldown
}

// NewCouplingDamper creates a damper.
func NewCouplingDamper(config DamperConfig, logger zerolog.Logger) *CouplingDamper {
	return &CouplingDamper{
		config: config,
		logger: logger.With().Str("component", "damper").Logger(),
	}
}

// #endregion damper

// #region notify-switch
// NotifySwitch asserts the shorter, stronger dampening window used around
// preset and resolution switches.
func (d *CouplingDamper) NotifySwitch(now time.Time) {
	d.switchCD.Arm(now, d.config.SwitchDampenDuration)
}

// #endregion notify-switch

// #region step
// Step combines the drives. thresholdScale adjusts the flip threshold (0 = 1).
func (d *CouplingDamper) Step(in Drives, thresholdScale float64, now time.Time) Coupled {
	c := d.config
	raw := c.EdgeWeight*finite(in.Edge) +
		c.AudioWeight*finite(in.Audio) +
		c.PIWeight*finite(in.PI) +
		c.PresetBiasWeight*finite(in.PresetBias) +
		c.LumaDiffWeight*finite(in.LumaDiff)
	combined := timing.Clamp(raw, -c.DriveLimit, c.DriveLimit)

	d.trackFlip(combined, thresholdScale, now)

	mult := 1.0
	if d.flipCD.Active(now) {
		mult = math.Min(mult, c.DampenFactor)
	}
	if d.switchCD.Active(now) {
		mult = math.Min(mult, c.SwitchDampenFactor)
	}
	combined *= mult

	fg := combined * c.ForegroundGain
	bg := -combined * c.BackgroundGain
	fg, bg = applyBudget(fg, bg, c.Budget)

	return Coupled{
		Combined:   combined,
		Foreground: fg,
		Background: bg,
		Multiplier: mult,
		Flips:      len(d.flips),
	}
}

func (d *CouplingDamper) trackFlip(v, thresholdScale float64, now time.Time) {
	cutoff := now.Add(-d.config.FlipWindow)
	kept := d.flips[:0]
	for _, t := range d.flips {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	d.flips = kept

	sign := 0
	if v > 0 {
		sign = 1
	} else if v < 0 {
		sign = -1
	}
	if sign == 0 {
		return
	}
	if d.lastSign != 0 && sign != d.lastSign {
		d.flips = append(d.flips, now)
	}
	d.lastSign = sign

	if thresholdScale <= 0 {
		thresholdScale = 1
	}
	threshold := int(math.Round(float64(d.config.FlipThreshold) * thresholdScale))
	if threshold < 1 {
		threshold = 1
	}
	if len(d.flips) >= threshold && !d.flipCD.Active(now) {
		d.flipCD.Arm(now, d.config.DampenDuration)
		d.logger.Debug().Int("flips", len(d.flips)).Msg("oscillation dampening armed")
	}
}

// #endregion step

// #region helpers
// applyBudget scales both outputs down proportionally so |fg|+|bg| <= budget.
func applyBudget(fg, bg, budget float64) (float64, float64) {
	if budget <= 0 {
		return 0, 0
	}
	sum := math.Abs(fg) + math.Abs(bg)
	if sum <= budget {
		return fg, bg
	}
	k := budget / sum
	fg, bg = fg*k, bg*k
	// Guard the rounding edge so the ceiling holds exactly.
	if s := math.Abs(fg) + math.Abs(bg); s > budget {
		k = budget / s
		fg, bg = fg*k, bg*k
	}
	return fg, bg
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// #endregion helpers
