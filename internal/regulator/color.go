package regulator

import (
	"math"
	"time"

	"github.com/danielpatrickdp/liveweb-controlplane/internal/signals"
)

// #region color
// ColorRegulator steers a layer's chroma toward a target with a saturation bias.
type ColorRegulator struct {
	config ColorConfig
	pi     *PI
}

// NewColorRegulator creates a regulator.
func NewColorRegulator(config ColorConfig) *ColorRegulator {
	return &ColorRegulator{config: config, pi: NewPI(config.PI)}
}

// Step samples the loop when due, with the same gating as the opacity loop.
func (r *ColorRegulator) Step(layer signals.LayerFeedback, in Inputs, now time.Time) Output {
	return stepLoop(r.pi, r.config.TargetChroma-Chroma(layer), in, now)
}

// State returns the loop state.
func (r *ColorRegulator) State() LoopState {
	return r.pi.State()
}

// #endregion color

// #region chroma
// Chroma is the RMS deviation of the channels from their mean.
func Chroma(l signals.LayerFeedback) float64 {
	mean := (l.R + l.G + l.B) / 3
	dr, dg, db := l.R-mean, l.G-mean, l.B-mean
	return math.Sqrt((dr*dr + dg*dg + db*db) / 3)
}

// #endregion chroma
