package regulator

import (
	"math"
	"time"

	"github.com/danielpatrickdp/liveweb-controlplane/internal/timing"
)

// #region pi
// PI is a sampled proportional-integral loop with integral clamping, output
// clamping and slew limiting.
type PI struct {
	config PIConfig
	state  LoopState
}

// NewPI creates a loop with zero state.
func NewPI(config PIConfig) *PI {
	return &PI{config: config}
}

// Due reports whether a new sample should be taken.
func (p *PI) Due(now time.Time, slow bool) bool {
	if p.state.LastUpdate.IsZero() {
		return true
	}
	interval := p.config.SampleInterval
	if slow {
		interval *= 2
	}
	return now.Sub(p.state.LastUpdate) >= interval
}

// Update runs one sample with the given error. capScale widens or narrows the
// output band (1 = configured band).
func (p *PI) Update(err float64, capScale float64, now time.Time) float64 {
	if math.IsNaN(err) || math.IsInf(err, 0) {
		err = 0
	}
	if capScale <= 0 {
		capScale = 1
	}
	dt := p.config.SampleInterval.Seconds()
	if !p.state.LastUpdate.IsZero() {
		dt = now.Sub(p.state.LastUpdate).Seconds()
		// Long gaps (loop was disabled) must not dump a huge integral step.
		if limit := 2 * p.config.SampleInterval.Seconds(); dt > limit {
			dt = limit
		}
	}

	p.state.Integral = timing.Clamp(p.state.Integral+err*dt, p.config.IntegralMin, p.config.IntegralMax)
	raw := p.config.Kp*err + p.config.Ki*p.state.Integral
	raw = timing.Clamp(raw, p.config.OutputMin*capScale, p.config.OutputMax*capScale)

	maxStep := p.config.MaxRatePerSec * dt
	out := p.state.Output + timing.Clamp(raw-p.state.Output, -maxStep, maxStep)

	p.state.Output = out
	p.state.LastError = err
	p.state.LastUpdate = now
	return out
}

// Reset zeroes the loop.
func (p *PI) Reset() {
	p.state = LoopState{}
}

// State returns a copy of the loop state.
func (p *PI) State() LoopState {
	return p.state
}

// #endregion pi
