package regulator

import "time"

// #region opacity
// OpacityRegulator converts measured output luma into a bounded opacity bias.
type OpacityRegulator struct {
	config OpacityConfig
	pi     *PI
}

// NewOpacityRegulator creates a regulator.
func NewOpacityRegulator(config OpacityConfig) *OpacityRegulator {
	return &OpacityRegulator{config: config, pi: NewPI(config.PI)}
}

// Step samples the loop when due. Audio-invalid and visibility-hold disable
// (and reset) the loop; a render hold keeps the previous output.
func (r *OpacityRegulator) Step(luma float64, in Inputs, now time.Time) Output {
	return stepLoop(r.pi, r.config.TargetLuma-luma, in, now)
}

// State returns the loop state.
func (r *OpacityRegulator) State() LoopState {
	return r.pi.State()
}

// #endregion opacity

// #region step-loop
func stepLoop(pi *PI, err float64, in Inputs, now time.Time) Output {
	if !in.AudioValid || in.VisibilityHold {
		pi.Reset()
		return Output{Value: 0, Mode: ModeDisabled}
	}
	if in.RenderHold {
		return Output{Value: pi.State().Output, Mode: ModeHeld}
	}
	if !pi.Due(now, in.SlowCadence) {
		return Output{Value: pi.State().Output, Mode: ModeWaiting}
	}
	return Output{Value: pi.Update(err, in.CapScale, now), Mode: ModeSampled}
}

// #endregion step-loop
