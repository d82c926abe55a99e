package timing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestCooldownArmAndExpire(t *testing.T) {
	var c Cooldown
	assert.False(t, c.Active(t0))

	c.Arm(t0, time.Second)
	assert.True(t, c.Active(t0.Add(999*time.Millisecond)))
	assert.False(t, c.Active(t0.Add(time.Second)))
	assert.Equal(t, 500*time.Millisecond, c.Remaining(t0.Add(500*time.Millisecond)))
}

func TestCooldownShorterRearmDoesNotShorten(t *testing.T) {
	var c Cooldown
	c.Arm(t0, 2*time.Second)
	c.Arm(t0.Add(100*time.Millisecond), 100*time.Millisecond)
	assert.True(t, c.Active(t0.Add(1500*time.Millisecond)))

	c.Reset()
	assert.False(t, c.Active(t0))
}

func TestSinceTracksContinuousHold(t *testing.T) {
	var s Since
	assert.Equal(t, time.Duration(0), s.Observe(true, t0))
	assert.Equal(t, 300*time.Millisecond, s.Observe(true, t0.Add(300*time.Millisecond)))
	assert.Equal(t, time.Duration(0), s.Observe(false, t0.Add(400*time.Millisecond)))
	assert.Equal(t, time.Duration(0), s.Observe(true, t0.Add(500*time.Millisecond)))
	assert.Equal(t, 100*time.Millisecond, s.Observe(true, t0.Add(600*time.Millisecond)))
}

func TestDebouncedCommitsAfterDwell(t *testing.T) {
	d := NewDebounced("calm", time.Second)

	v, changed := d.Observe("peak", t0)
	assert.Equal(t, "calm", v)
	assert.False(t, changed)

	v, changed = d.Observe("peak", t0.Add(999*time.Millisecond))
	assert.Equal(t, "calm", v)
	assert.False(t, changed)

	v, changed = d.Observe("peak", t0.Add(time.Second))
	assert.Equal(t, "peak", v)
	assert.True(t, changed)
	assert.Equal(t, t0.Add(time.Second), d.ChangedAt())
}

func TestDebouncedCandidateChangeRestartsDwell(t *testing.T) {
	d := NewDebounced(0, time.Second)
	d.Observe(1, t0)
	d.Observe(2, t0.Add(800*time.Millisecond))
	v, changed := d.Observe(2, t0.Add(1200*time.Millisecond))
	assert.Equal(t, 0, v)
	assert.False(t, changed)

	v, changed = d.Observe(2, t0.Add(1800*time.Millisecond))
	assert.Equal(t, 2, v)
	assert.True(t, changed)
}

func TestWindowPercentile(t *testing.T) {
	w := NewWindow(10)
	assert.Equal(t, 0.0, w.Percentile(0.95))

	for i := 1; i <= 10; i++ {
		w.Add(float64(i))
	}
	assert.Equal(t, 10.0, w.Percentile(0.95))
	assert.Equal(t, 5.0, w.Percentile(0.5))
	assert.Equal(t, 5.5, w.Mean())

	// Ring eviction: oldest samples drop out.
	for i := 0; i < 10; i++ {
		w.Add(1)
	}
	assert.Equal(t, 1.0, w.Percentile(0.95))
	assert.Equal(t, 10, w.Len())
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 1.0, Clamp(3, -1, 1))
	assert.Equal(t, -1.0, Clamp(-3, -1, 1))
	assert.Equal(t, 0.5, Clamp(0.5, -1, 1))
}
