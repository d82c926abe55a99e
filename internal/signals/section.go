package signals

import (
	"time"

	"github.com/danielpatrickdp/liveweb-controlplane/internal/timing"
)

// #region classifier

// SectionClassifier smooths energy/onset features into a debounced
// CALM/GROOVE/PEAK state.
type SectionClassifier struct {
	config    SectionConfig
	ambient   float64
	high      float64
	mid       float64
	intensity float64
	section   *timing.Debounced[Section]
	forced    Section
	started   time.Time
}

// NewSectionClassifier creates a classifier starting in GROOVE.
func NewSectionClassifier(config SectionConfig) *SectionClassifier {
	return &SectionClassifier{
		config:  config,
		section: timing.NewDebounced(SectionGroove, config.MinDwell),
	}
}

// #endregion classifier

// #region observe

// Observe folds one frame into the scores and returns the current state.
func (c *SectionClassifier) Observe(frame AudioFrame, now time.Time) SectionState {
	energy := timing.Clamp(frame.Energy, 0, 1)
	if frame.Silent {
		energy = 0
	}

	c.intensity = follow(c.intensity, energy, c.config.Attack, c.config.Release)

	// Ambient rises slowly on quiet input and collapses fast when energy returns.
	c.ambient = follow(c.ambient, 1-energy, c.config.SlowAttack, c.config.FastRelease)

	highIn := 0.5*energy + 0.3*timing.Clamp(frame.Bass, 0, 1) + 0.2*timing.Clamp(frame.Flux, 0, 1)
	c.high = follow(c.high, highIn, c.config.Attack, c.config.Release)

	midIn := timing.Clamp(frame.Mid, 0, 1)*0.6 + timing.Clamp(frame.BeatConfidence, 0, 1)*0.4
	c.mid = follow(c.mid, midIn, c.config.Attack*0.5, c.config.Release)

	scores := map[Section]float64{
		SectionCalm:   c.ambient,
		SectionGroove: c.mid,
		SectionPeak:   c.high,
	}

	if c.started.IsZero() {
		c.started = now
	}

	if c.forced != "" {
		c.section.Set(c.forced, now)
		return c.state(scores)
	}

	current := c.section.Value()
	best := current
	for _, s := range []Section{SectionCalm, SectionGroove, SectionPeak} {
		if scores[s] > scores[best] {
			best = s
		}
	}

	target := current
	if best != current {
		// The force window runs from the last commit, or from the first frame
		// when nothing has committed yet.
		ref := c.started
		if at := c.section.ChangedAt(); at.After(ref) {
			ref = at
		}
		stale := now.Sub(ref) >= c.config.ForceWindow
		if scores[best]-scores[current] >= c.config.Margin || stale {
			target = best
		}
	}
	c.section.Observe(target, now)
	return c.state(scores)
}

// #endregion observe

// #region accessors

// Current returns the committed section.
func (c *SectionClassifier) Current() Section {
	return c.section.Value()
}

// Force pins the section (diagnostics/test control). Empty clears the pin.
func (c *SectionClassifier) Force(s Section) {
	c.forced = s
}

func (c *SectionClassifier) state(scores map[Section]float64) SectionState {
	return SectionState{
		Section:   c.section.Value(),
		Intensity: c.intensity,
		Scores:    scores,
		ChangedAt: c.section.ChangedAt(),
	}
}

// #endregion accessors

// #region helpers

// follow is an asymmetric one-pole filter.
func follow(cur, in, attack, release float64) float64 {
	k := release
	if in > cur {
		k = attack
	}
	return cur + (in-cur)*k
}

// #endregion helpers
