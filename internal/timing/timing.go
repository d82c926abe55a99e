package timing

import (
	"sort"
	"time"
)

// #region cooldown

// Cooldown is a re-armable "not before" window. The zero value is inactive.
type Cooldown struct {
	until time.Time
}

// Arm starts (or extends) the window so it lasts at least d from now.
// A shorter re-arm never shortens an active window.
func (c *Cooldown) Arm(now time.Time, d time.Duration) {
	if d <= 0 {
		return
	}
	next := now.Add(d)
	if next.After(c.until) {
		c.until = next
	}
}

// Active reports whether now is still inside the window.
func (c *Cooldown) Active(now time.Time) bool {
	return now.Before(c.until)
}

// Remaining returns the time left in the window, or 0.
func (c *Cooldown) Remaining(now time.Time) time.Duration {
	if !c.Active(now) {
		return 0
	}
	return c.until.Sub(now)
}

// Until returns the expiry timestamp (zero if never armed).
func (c *Cooldown) Until() time.Time {
	return c.until
}

// Reset clears the window.
func (c *Cooldown) Reset() {
	c.until = time.Time{}
}

// #endregion cooldown

// #region since

// Since tracks how long a condition has held continuously.
type Since struct {
	start time.Time
	held  bool
}

// Observe records the condition for this sample and returns how long it has
// been continuously true (0 when false).
func (s *Since) Observe(cond bool, now time.Time) time.Duration {
	if !cond {
		s.held = false
		s.start = time.Time{}
		return 0
	}
	if !s.held {
		s.held = true
		s.start = now
	}
	return now.Sub(s.start)
}

// Held reports whether the condition was true at the last observation.
func (s *Since) Held() bool {
	return s.held
}

// Reset restarts tracking.
func (s *Since) Reset() {
	s.held = false
	s.start = time.Time{}
}

// #endregion since

// #region debounced

// Debounced commits a candidate value only after it has been observed
// continuously for the dwell duration.
type Debounced[T comparable] struct {
	dwell     time.Duration
	value     T
	candidate T
	since     time.Time
	changedAt time.Time
	pending   bool
}

// NewDebounced creates a debounced value starting at initial.
func NewDebounced[T comparable](initial T, dwell time.Duration) *Debounced[T] {
	return &Debounced[T]{dwell: dwell, value: initial, candidate: initial}
}

// Observe feeds a new raw value. It returns the committed value and whether
// this observation committed a change.
func (d *Debounced[T]) Observe(v T, now time.Time) (T, bool) {
	if v == d.value {
		d.pending = false
		d.candidate = v
		return d.value, false
	}
	if !d.pending || v != d.candidate {
		d.pending = true
		d.candidate = v
		d.since = now
	}
	if now.Sub(d.since) >= d.dwell {
		d.value = v
		d.pending = false
		d.changedAt = now
		return d.value, true
	}
	return d.value, false
}

// Set forces the committed value.
func (d *Debounced[T]) Set(v T, now time.Time) {
	d.value = v
	d.candidate = v
	d.pending = false
	d.changedAt = now
}

// Value returns the committed value.
func (d *Debounced[T]) Value() T {
	return d.value
}

// ChangedAt returns when the committed value last changed (zero if never).
func (d *Debounced[T]) ChangedAt() time.Time {
	return d.changedAt
}

// #endregion debounced

// #region window

// Window keeps the most recent samples in a fixed ring.
type Window struct {
	buf  []float64
	next int
	full bool
}

// NewWindow creates a window holding up to size samples.
func NewWindow(size int) *Window {
	if size < 1 {
		size = 1
	}
	return &Window{buf: make([]float64, size)}
}

// Add appends a sample, evicting the oldest when full.
func (w *Window) Add(v float64) {
	w.buf[w.next] = v
	w.next++
	if w.next == len(w.buf) {
		w.next = 0
		w.full = true
	}
}

// Len returns the number of stored samples.
func (w *Window) Len() int {
	if w.full {
		return len(w.buf)
	}
	return w.next
}

// Values returns a copy of the stored samples, oldest first.
func (w *Window) Values() []float64 {
	n := w.Len()
	out := make([]float64, 0, n)
	if w.full {
		out = append(out, w.buf[w.next:]...)
	}
	out = append(out, w.buf[:w.next]...)
	return out
}

// Percentile returns the p-th percentile (0..1) using nearest-rank.
// Returns 0 for an empty window.
func (w *Window) Percentile(p float64) float64 {
	vals := w.Values()
	if len(vals) == 0 {
		return 0
	}
	sort.Float64s(vals)
	if p <= 0 {
		return vals[0]
	}
	if p >= 1 {
		return vals[len(vals)-1]
	}
	idx := int(p*float64(len(vals))+0.999999) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(vals) {
		idx = len(vals) - 1
	}
	return vals[idx]
}

// Mean returns the arithmetic mean, or 0 when empty.
func (w *Window) Mean() float64 {
	vals := w.Values()
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

// Reset empties the window.
func (w *Window) Reset() {
	w.next = 0
	w.full = false
}

// #endregion window

// #region helpers

// Clamp restricts v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// #endregion helpers
