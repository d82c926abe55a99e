package signals

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// #region section-tests

func feed(c *SectionClassifier, frame AudioFrame, start time.Time, d time.Duration) (SectionState, time.Time) {
	var st SectionState
	now := start
	for end := start.Add(d); !now.After(end); now = now.Add(20 * time.Millisecond) {
		st = c.Observe(frame, now)
	}
	return st, now
}

func TestSectionStartsInGroove(t *testing.T) {
	c := NewSectionClassifier(DefaultSectionConfig())
	assert.Equal(t, SectionGroove, c.Current())
}

func TestSectionMovesToPeakOnSustainedEnergy(t *testing.T) {
	c := NewSectionClassifier(DefaultSectionConfig())
	loud := AudioFrame{Energy: 0.95, Bass: 0.9, Flux: 0.8, Mid: 0.2}

	st, _ := feed(c, loud, t0, 5*time.Second)
	assert.Equal(t, SectionPeak, st.Section)
	assert.Greater(t, st.Intensity, 0.8)
}

func TestSectionMovesToCalmOnSilence(t *testing.T) {
	c := NewSectionClassifier(DefaultSectionConfig())
	st, _ := feed(c, AudioFrame{Silent: true}, t0, 10*time.Second)
	assert.Equal(t, SectionCalm, st.Section)
	assert.Less(t, st.Intensity, 0.05)
}

func TestSectionDoesNotFlapOnBriefSpike(t *testing.T) {
	c := NewSectionClassifier(DefaultSectionConfig())
	_, now := feed(c, AudioFrame{Silent: true}, t0, 10*time.Second)
	require.Equal(t, SectionCalm, c.Current())

	// A 200ms burst is shorter than the dwell and must not commit a switch.
	st, now := feed(c, AudioFrame{Energy: 1, Bass: 1, Flux: 1}, now, 200*time.Millisecond)
	assert.Equal(t, SectionCalm, st.Section)
	st, _ = feed(c, AudioFrame{Silent: true}, now, 2*time.Second)
	assert.Equal(t, SectionCalm, st.Section)
}

func TestSectionMarginAndForceWindow(t *testing.T) {
	// Unit filter coefficients make each score equal its input.
	cfg := SectionConfig{
		Attack: 1, Release: 1, SlowAttack: 1, FastRelease: 1,
		Margin:      0.12,
		MinDwell:    1500 * time.Millisecond,
		ForceWindow: 30 * time.Second,
	}
	nearTie := AudioFrame{Energy: 0.5, Mid: 0.75} // calm 0.50 vs groove 0.45
	clearLead := AudioFrame{Energy: 0.3, Mid: 0.75} // calm 0.70 vs groove 0.45

	tests := []struct {
		name  string
		frame AudioFrame
		after time.Duration
		want  Section
	}{
		{"lead below margin is held at startup", nearTie, 10 * time.Second, SectionGroove},
		{"lead below margin is held inside force window", nearTie, 28 * time.Second, SectionGroove},
		{"lead below margin commits after force window", nearTie, 33 * time.Second, SectionCalm},
		{"lead above margin waits for dwell", clearLead, time.Second, SectionGroove},
		{"lead above margin commits after dwell", clearLead, 2 * time.Second, SectionCalm},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewSectionClassifier(cfg)
			st, _ := feed(c, tt.frame, t0, tt.after)
			assert.Equal(t, tt.want, st.Section)
		})
	}
}

func TestSectionForceWindowRestartsOnCommit(t *testing.T) {
	cfg := SectionConfig{
		Attack: 1, Release: 1, SlowAttack: 1, FastRelease: 1,
		Margin:      0.12,
		MinDwell:    time.Second,
		ForceWindow: 30 * time.Second,
	}
	c := NewSectionClassifier(cfg)

	// Clear peak lead commits quickly.
	_, now := feed(c, AudioFrame{Energy: 1, Bass: 1, Flux: 1}, t0, 2*time.Second)
	require.Equal(t, SectionPeak, c.Current())
	committed := c.Observe(AudioFrame{Energy: 1, Bass: 1, Flux: 1}, now).ChangedAt

	// peak 0.35 vs calm 0.30 vs groove 0.42: groove leads by only 0.07.
	tie := AudioFrame{Energy: 0.7, Mid: 0.7}
	st, _ := feed(c, tie, now, 20*time.Second)
	assert.Equal(t, SectionPeak, st.Section)
	assert.Equal(t, committed, st.ChangedAt)
}

func TestSectionForcePinsState(t *testing.T) {
	c := NewSectionClassifier(DefaultSectionConfig())
	c.Force(SectionPeak)
	st := c.Observe(AudioFrame{Silent: true}, t0)
	assert.Equal(t, SectionPeak, st.Section)

	c.Force("")
	assert.Equal(t, SectionPeak, c.Current())
}

func TestSectionScale(t *testing.T) {
	assert.Equal(t, 1.5, SectionScale(SectionCalm).Cooldown)
	assert.Equal(t, 1.0, SectionScale(SectionGroove).Cap)
	assert.Equal(t, 0.7, SectionScale(SectionPeak).Cooldown)
	assert.Equal(t, 1.0, SectionScale("unknown").Threshold)
}

// #endregion section-tests

// #region producer-tests

func TestProducerPassesThroughSuppliedBeatInfo(t *testing.T) {
	p := NewProducer(DefaultProducerConfig())
	in := AudioFrame{BeatConfidence: 0.7, BeatStability: 0.6, HasBeatInfo: true}
	out := p.Produce(in)
	assert.Equal(t, in, out)
}

func TestProducerStableTempoYieldsHighStability(t *testing.T) {
	p := NewProducer(DefaultProducerConfig())
	var out AudioFrame
	for i := 0; i < 32; i++ {
		flux := 0.1
		if i%4 == 0 {
			flux = 0.9
		}
		out = p.Produce(AudioFrame{Tempo: 128, Flux: flux, Energy: 0.5})
	}
	assert.True(t, out.HasBeatInfo)
	assert.InDelta(t, 1.0, out.BeatStability, 1e-9)
	assert.Greater(t, out.BeatConfidence, 0.5)
}

func TestProducerJitteryTempoYieldsLowStability(t *testing.T) {
	p := NewProducer(DefaultProducerConfig())
	var out AudioFrame
	for i := 0; i < 32; i++ {
		tempo := 100.0
		if i%2 == 0 {
			tempo = 140
		}
		out = p.Produce(AudioFrame{Tempo: tempo, Flux: 0.5})
	}
	assert.Less(t, out.BeatStability, 0.1)
}

func TestProducerSilentFrameHasNoConfidence(t *testing.T) {
	p := NewProducer(DefaultProducerConfig())
	out := p.Produce(AudioFrame{Silent: true, Tempo: 120, Flux: 0.9})
	assert.Equal(t, 0.0, out.BeatConfidence)
}

// #endregion producer-tests
