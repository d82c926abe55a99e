package quality

import (
	"fmt"
	"math"
)

// #region harness
// Harness judges a luma trace collected after a preset load.
type Harness struct {
	config Config
}

// NewHarness creates a harness with the given configuration.
func NewHarness(config Config) *Harness {
	return &Harness{config: config}
}

// Run evaluates the samples. A trace that is too short always passes.
func (h *Harness) Run(samples []float64) Result {
	if len(samples) < h.config.MinSamples {
		return Result{
			Passed:  true,
			Metrics: []Metric{{Name: "samples", Value: float64(len(samples)), Pass: false}},
			Reason:  fmt.Sprintf("insufficient samples (%d < %d)", len(samples), h.config.MinSamples),
		}
	}

	mean, variance := meanVariance(samples)
	var metrics []Metric
	var failReasons []string

	// 1. Static picture
	varPass := variance >= h.config.StaticVarianceFloor
	metrics = append(metrics, Metric{Name: "luma_variance", Value: variance, Pass: varPass})
	if !varPass {
		failReasons = append(failReasons, fmt.Sprintf("static output: variance %.6f below %.6f", variance, h.config.StaticVarianceFloor))
	}

	// 2. Brightness range
	rangePass := mean >= h.config.MinLuma && mean <= h.config.MaxLuma
	metrics = append(metrics, Metric{Name: "luma_mean", Value: mean, Pass: rangePass})
	if !rangePass {
		failReasons = append(failReasons, fmt.Sprintf("mean luma %.3f outside [%.3f, %.3f]", mean, h.config.MinLuma, h.config.MaxLuma))
	}

	reason := "all checks passed"
	if len(failReasons) == 1 {
		reason = "quality failed: " + failReasons[0]
	} else if len(failReasons) > 1 {
		reason = fmt.Sprintf("quality failed: %d checks: %s", len(failReasons), failReasons[0])
	}

	return Result{
		Passed:  len(failReasons) == 0,
		Metrics: metrics,
		Reason:  reason,
	}
}

// #endregion harness

// #region helpers
func meanVariance(v []float64) (float64, float64) {
	var sum float64
	n := 0
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			continue
		}
		sum += x
		n++
	}
	if n == 0 {
		return 0, 0
	}
	mean := sum / float64(n)
	var sq float64
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			continue
		}
		d := x - mean
		sq += d * d
	}
	return mean, sq / float64(n)
}

// #endregion helpers
