package gate

import "math"

// #region evaluate-switch
// EvaluateSwitch checks every switch condition and records each failing one.
// Trust gates are skipped only when the test override is set.
func EvaluateSwitch(in SwitchCheck) SwitchDecision {
	var reasons []Reason

	if in.Auto && in.BackoffActive {
		reasons = append(reasons, ReasonBackoff)
	}

	if !in.Override {
		if !in.Gates.AudioValid {
			reasons = append(reasons, ReasonAudioInvalid)
		}
		if !in.Gates.BeatTrusted {
			reasons = append(reasons, ReasonBeatUntrusted)
		}
		if !in.Gates.RenderStable {
			reasons = append(reasons, ReasonRenderUnstable)
		}
	}

	if in.ResolutionCooldownActive {
		reasons = append(reasons, ReasonResolutionCooldown)
	}
	if in.SwitchCooldownActive {
		reasons = append(reasons, ReasonSwitchCooldown)
	}
	if in.CrossScopeActive {
		reasons = append(reasons, ReasonCrossScopeRecent)
	}

	if in.Gates.BeatTrusted && !InPhase(in.BeatPhase, in.Window) {
		reasons = append(reasons, ReasonPhaseWindow)
	}

	if len(reasons) > 0 {
		return SwitchDecision{Action: "deny", Reasons: reasons, Overridden: in.Override}
	}
	return SwitchDecision{Action: "commit", Overridden: in.Override}
}

// #endregion evaluate-switch

// #region helpers
// InPhase reports whether phase lies inside the circular window.
func InPhase(phase float64, w PhaseWindow) bool {
	if w.HalfWidth >= 0.5 {
		return true
	}
	p := phase - math.Floor(phase)
	d := math.Abs(p - w.Center)
	if d > 0.5 {
		d = 1 - d
	}
	return d <= w.HalfWidth
}

// #endregion helpers
