package quality

import "time"

// #region watch
// Watch collects luma for one freshly loaded preset and yields a verdict once
// the watch delay has elapsed. The zero value is idle.
type Watch struct {
	harness  *Harness
	delay    time.Duration
	presetID string
	started  time.Time
	samples  []float64
	active   bool
}

// NewWatch creates an idle watch.
func NewWatch(config Config) *Watch {
	return &Watch{harness: NewHarness(config), delay: config.WatchDelay}
}

// Start begins watching presetID, discarding any previous watch.
func (w *Watch) Start(presetID string, now time.Time) {
	w.presetID = presetID
	w.started = now
	w.samples = w.samples[:0]
	w.active = true
}

// Cancel stops the current watch without a verdict.
func (w *Watch) Cancel() {
	w.active = false
	w.samples = w.samples[:0]
}

// Active reports whether a watch is running.
func (w *Watch) Active() bool {
	return w.active
}

// PresetID returns the watched id.
func (w *Watch) PresetID() string {
	return w.presetID
}

// Observe records a luma sample. done is true exactly once per watch, when
// the delay has elapsed.
func (w *Watch) Observe(luma float64, now time.Time) (Result, bool) {
	if !w.active {
		return Result{}, false
	}
	w.samples = append(w.samples, luma)
	if now.Sub(w.started) < w.delay {
		return Result{}, false
	}
	res := w.harness.Run(w.samples)
	res.PresetID = w.presetID
	w.Cancel()
	return res, true
}

// #endregion watch
