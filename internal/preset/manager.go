package preset

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/danielpatrickdp/liveweb-controlplane/internal/gate"
	"github.com/danielpatrickdp/liveweb-controlplane/internal/quality"
	"github.com/danielpatrickdp/liveweb-controlplane/internal/state"
	"github.com/danielpatrickdp/liveweb-controlplane/internal/timing"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const recentReports = 32

// #region manager
// Manager owns preset switching for both layers. All methods must be called
// from the scheduler goroutine; fetch and apply run on helper goroutines and
// report back through channels drained by Poll.
type Manager struct {
	config  Config
	logger  zerolog.Logger
	catalog Catalog
	fetcher Fetcher
	loader  Loader
	store   Store

	ctx    context.Context
	cancel context.CancelFunc

	current map[Scope]string
	pending map[Scope]*Request

	inFlight *loadTask
	yield    chan struct{}
	done     chan loadResult
	parked   *loadResult

	switchCD map[Scope]*timing.Cooldown
	crossCD  map[Scope]*timing.Cooldown
	backoff  timing.Cooldown
	failures int
	pressure timing.Cooldown

	soft      *Blacklist
	aesthetic *Blacklist
	broken    map[string]bool

	strikes       []time.Time
	anchorCD      timing.Cooldown
	anchorPending bool
	anchorIdx     int

	watches map[Scope]*quality.Watch

	cache         *Cache
	predictor     *Predictor
	prefetchQueue []string
	prefetching   *prefetchTask
	prefetchDone  chan prefetchResult

	last   SwitchReport
	recent []SwitchReport
	status string
}

// NewManager creates a manager. store may be nil.
func NewManager(config Config, catalog Catalog, fetcher Fetcher, loader Loader, store Store, logger zerolog.Logger) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		config:       config,
		logger:       logger.With().Str("component", "preset").Logger(),
		catalog:      catalog,
		fetcher:      fetcher,
		loader:       loader,
		store:        store,
		ctx:          ctx,
		cancel:       cancel,
		current:      make(map[Scope]string),
		pending:      make(map[Scope]*Request),
		done:         make(chan loadResult, 1),
		switchCD:     map[Scope]*timing.Cooldown{Foreground: {}, Background: {}},
		crossCD:      map[Scope]*timing.Cooldown{Foreground: {}, Background: {}},
		soft:         NewBlacklist(),
		aesthetic:    NewBlacklist(),
		broken:       make(map[string]bool),
		watches:      map[Scope]*quality.Watch{Foreground: quality.NewWatch(config.Quality), Background: quality.NewWatch(config.Quality)},
		cache:        NewCache(config.CacheSize, config.CacheTTL),
		predictor:    NewPredictor(),
		prefetchDone: make(chan prefetchResult, 1),
		status:       "idle",
	}
	return m
}

// Close cancels helper goroutines.
func (m *Manager) Close() {
	m.cancel()
}

// #endregion manager

// #region restore
// Restore reloads blacklists and the transition table, pruning expired entries.
func (m *Manager) Restore(now time.Time) error {
	if m.store == nil {
		return nil
	}
	var soft, aesthetic map[string]time.Time
	var transitions map[string]map[string]int

	if err := m.store.GetJSON(KeySoftBlacklist, &soft); err == nil {
		m.soft.Load(soft, now)
	} else if !errors.Is(err, state.ErrNotFound) {
		return fmt.Errorf("restore soft blacklist: %w", err)
	}
	if err := m.store.GetJSON(KeyAestheticBlacklist, &aesthetic); err == nil {
		m.aesthetic.Load(aesthetic, now)
	} else if !errors.Is(err, state.ErrNotFound) {
		return fmt.Errorf("restore aesthetic blacklist: %w", err)
	}
	if err := m.store.GetJSON(KeyTransitions, &transitions); err == nil {
		m.predictor.Load(transitions)
	} else if !errors.Is(err, state.ErrNotFound) {
		return fmt.Errorf("restore transitions: %w", err)
	}

	m.logger.Info().
		Int("soft", m.soft.Len()).
		Int("aesthetic", m.aesthetic.Len()).
		Msg("preset state restored")
	m.refreshPrefetch(now)
	return nil
}

func (m *Manager) persist(key string, v any) {
	if m.store == nil {
		return
	}
	if err := m.store.SetJSON(key, v); err != nil {
		m.logger.Error().Err(err).Str("key", key).Msg("persist failed")
	}
}

func (m *Manager) persistBlacklists() {
	m.persist(KeySoftBlacklist, m.soft.Entries())
	m.persist(KeyAestheticBlacklist, m.aesthetic.Entries())
}

// #endregion restore

// #region request
// Request submits a switch. It never blocks: the request either starts a
// load, is queued behind the in-flight load, or is denied and remembered for
// a later retry.
func (m *Manager) Request(req Request, cond Conditions, now time.Time) SwitchReport {
	if req.RequestedAt.IsZero() {
		req.RequestedAt = now
	}
	if req.Scope != Foreground && req.Scope != Background {
		return m.reject(req, fmt.Errorf("unknown scope %q", req.Scope), now)
	}
	if req.PresetID != "" {
		if _, ok := m.lookup(req.PresetID); !ok {
			return m.reject(req, fmt.Errorf("%w: %s", ErrUnknownPreset, req.PresetID), now)
		}
	}

	if m.inFlight != nil {
		m.enqueue(req)
		rep := m.newReport(req)
		rep.Outcome = OutcomeQueued
		rep.Error = ErrBusy.Error()
		m.status = fmt.Sprintf("%s %s queued: busy", req.Origin, req.Scope)
		m.record(rep)
		m.logger.Debug().Str("scope", string(req.Scope)).Str("origin", string(req.Origin)).Msg("request queued behind in-flight load")
		return rep
	}
	return m.attempt(req, cond, now, true)
}

// attempt evaluates the gate and dispatches or remembers req. Denials are
// only recorded when loud is set so per-frame retries stay quiet.
func (m *Manager) attempt(req Request, cond Conditions, now time.Time, loud bool) SwitchReport {
	dec := m.evaluate(req, cond, now)
	if !dec.Allowed() {
		m.enqueue(req)
		rep := m.newReport(req)
		rep.Outcome = OutcomeDenied
		rep.Reasons = dec.Reasons
		m.status = fmt.Sprintf("%s %s denied: %s", req.Origin, req.Scope, dec.ReasonText())
		if loud {
			m.record(rep)
			m.logger.Debug().
				Str("scope", string(req.Scope)).
				Str("origin", string(req.Origin)).
				Str("reasons", dec.ReasonText()).
				Msg("switch denied")
		}
		return rep
	}
	return m.dispatch(req, cond, now, false)
}

func (m *Manager) evaluate(req Request, cond Conditions, now time.Time) gate.SwitchDecision {
	window := m.config.ForegroundPhase
	if req.Scope == Background {
		window = m.config.BackgroundPhase
	}
	return gate.EvaluateSwitch(gate.SwitchCheck{
		Auto:                     req.Origin == Auto,
		Gates:                    cond.Gates,
		Override:                 cond.Override,
		BackoffActive:            m.backoff.Active(now),
		ResolutionCooldownActive: cond.ResolutionCooldown,
		SwitchCooldownActive:     m.switchCD[req.Scope].Active(now),
		CrossScopeActive:         m.crossCD[req.Scope].Active(now),
		BeatPhase:                cond.BeatPhase,
		Window:                   window,
	})
}

// enqueue keeps at most one pending request per scope. Latest wins, except
// that an auto request never displaces a pending manual one; a manual
// request drops every pending auto request.
func (m *Manager) enqueue(req Request) {
	if cur := m.pending[req.Scope]; cur != nil && cur.Origin == Manual && req.Origin == Auto {
		return
	}
	if req.Origin == Manual {
		for s, p := range m.pending {
			if p.Origin == Auto {
				delete(m.pending, s)
			}
		}
	}
	r := req
	m.pending[req.Scope] = &r
}

// nextPending prefers the most recent manual request, then the most recent auto one.
func (m *Manager) nextPending() *Request {
	var best *Request
	for _, s := range []Scope{Foreground, Background} {
		p := m.pending[s]
		if p == nil {
			continue
		}
		switch {
		case best == nil:
			best = p
		case p.Origin == Manual && best.Origin == Auto:
			best = p
		case p.Origin == best.Origin && p.RequestedAt.After(best.RequestedAt):
			best = p
		}
	}
	return best
}

// #endregion request

// #region poll
// Poll advances asynchronous work: it releases a load waiting for its yield,
// reacts to a finished load, flushes the queue once, and pumps prefetch.
func (m *Manager) Poll(cond Conditions, now time.Time) []SwitchReport {
	var out []SwitchReport

	if m.yield != nil {
		close(m.yield)
		m.yield = nil
	}

	completed := false
	if m.parked != nil {
		res := *m.parked
		m.parked = nil
		out = append(out, m.complete(res, now))
		completed = true
	} else {
		select {
		case res := <-m.done:
			out = append(out, m.complete(res, now))
			completed = true
		default:
		}
	}

	m.drainPrefetch(now)

	if m.inFlight == nil {
		if m.anchorPending {
			if rep, ok := m.fireAnchor(cond, now); ok {
				out = append(out, rep)
			}
		} else if req := m.nextPending(); req != nil {
			r := *req
			delete(m.pending, r.Scope)
			rep := m.attempt(r, cond, now, completed)
			if completed || rep.Outcome != OutcomeDenied {
				out = append(out, rep)
			}
		}
	}

	m.pumpPrefetch(cond, now)
	return out
}

// Await blocks until the in-flight load has finished, without completing it;
// the next Poll does that. It returns false when nothing is in flight or the
// load has not been released by a Poll yet. Offline drivers use it to make
// completion land on a deterministic step.
func (m *Manager) Await(ctx context.Context) bool {
	if m.inFlight == nil || m.yield != nil {
		return false
	}
	if m.parked != nil {
		return true
	}
	select {
	case res := <-m.done:
		m.parked = &res
		return true
	case <-ctx.Done():
		return false
	}
}

// Maintain prunes expired blacklist entries and refills the prefetch queue.
func (m *Manager) Maintain(now time.Time) {
	pruned := m.soft.Prune(now) + m.aesthetic.Prune(now)
	if pruned > 0 {
		m.persistBlacklists()
		m.logger.Debug().Int("pruned", pruned).Msg("blacklist pruned")
	}
	if len(m.prefetchQueue) == 0 && m.prefetching == nil {
		m.refreshPrefetch(now)
	}
}

// #endregion poll

// #region quality
// ObserveFeedback feeds a layer's luma into its quality watch. It returns a
// report when the watched preset fails.
func (m *Manager) ObserveFeedback(scope Scope, luma float64, now time.Time) *SwitchReport {
	w, ok := m.watches[scope]
	if !ok {
		return nil
	}
	res, done := w.Observe(luma, now)
	if !done {
		return nil
	}
	if res.Passed {
		m.strikes = m.strikes[:0]
		m.logger.Debug().Str("preset", res.PresetID).Str("reason", res.Reason).Msg("quality watch passed")
		return nil
	}
	rep := m.MarkAesthetic(scope, res.PresetID, res.Reason, now)
	return &rep
}

// MarkAesthetic records an aesthetic failure for id on scope and asks for a
// replacement on that scope.
func (m *Manager) MarkAesthetic(scope Scope, id, reason string, now time.Time) SwitchReport {
	rep := SwitchReport{
		ID:          uuid.NewString(),
		Scope:       scope,
		Origin:      Auto,
		PresetID:    id,
		Outcome:     OutcomeQualityFailed,
		Class:       FailureAesthetic,
		Error:       reason,
		RequestedAt: now,
		FinishedAt:  now,
	}
	m.logger.Warn().Str("preset", id).Str("scope", string(scope)).Str("reason", reason).Msg("aesthetic failure")
	m.penalize(id, FailureAesthetic, now)
	m.record(rep)
	m.status = fmt.Sprintf("%s rejected: %s", id, reason)
	m.enqueue(Request{Scope: scope, Origin: Auto, RequestedAt: now})
	return rep
}

// #endregion quality

// #region accessors
// InFlight reports whether a load is running.
func (m *Manager) InFlight() bool {
	return m.inFlight != nil
}

// InFlightTask returns the running task id and its start time.
func (m *Manager) InFlightTask() (string, time.Time, bool) {
	if m.inFlight == nil {
		return "", time.Time{}, false
	}
	return m.inFlight.id, m.inFlight.started, true
}

// UnderPressure reports whether a load is running or recently started.
func (m *Manager) UnderPressure(now time.Time) bool {
	return m.inFlight != nil || m.pressure.Active(now)
}

// Current returns the preset shown on scope, or "".
func (m *Manager) Current(scope Scope) string {
	return m.current[scope]
}

// Pending returns the remembered request for scope.
func (m *Manager) Pending(scope Scope) (Request, bool) {
	p := m.pending[scope]
	if p == nil {
		return Request{}, false
	}
	return *p, true
}

// Status is the last action and its outcome.
func (m *Manager) Status() string {
	return m.status
}

// LastReport returns the most recent switch report.
func (m *Manager) LastReport() SwitchReport {
	return m.last
}

// RecentReports returns a copy of the recent reports, oldest first.
func (m *Manager) RecentReports() []SwitchReport {
	return append([]SwitchReport(nil), m.recent...)
}

// Blacklisted returns the class id is blacklisted under, or FailureNone.
func (m *Manager) Blacklisted(id string, now time.Time) FailureClass {
	switch {
	case m.broken[id]:
		return FailureHard
	case m.aesthetic.Blocked(id, now):
		return FailureAesthetic
	case m.soft.Blocked(id, now):
		return FailureSoft
	}
	return FailureNone
}

// Strikes returns the number of live quality strikes.
func (m *Manager) Strikes() int {
	return len(m.strikes)
}

// BackoffUntil returns the end of the auto backoff window.
func (m *Manager) BackoffUntil() time.Time {
	return m.backoff.Until()
}

// #endregion accessors

// #region helpers
func (m *Manager) newReport(req Request) SwitchReport {
	return SwitchReport{
		ID:          uuid.NewString(),
		Scope:       req.Scope,
		Origin:      req.Origin,
		PresetID:    req.PresetID,
		RequestedAt: req.RequestedAt,
	}
}

func (m *Manager) reject(req Request, err error, now time.Time) SwitchReport {
	rep := m.newReport(req)
	rep.Outcome = OutcomeRejected
	rep.Error = err.Error()
	rep.FinishedAt = now
	m.status = fmt.Sprintf("%s %s rejected: %v", req.Origin, req.Scope, err)
	m.record(rep)
	m.logger.Debug().Err(err).Str("scope", string(req.Scope)).Msg("request rejected")
	return rep
}

func (m *Manager) record(rep SwitchReport) {
	m.last = rep
	m.recent = append(m.recent, rep)
	if len(m.recent) > recentReports {
		m.recent = m.recent[len(m.recent)-recentReports:]
	}
}

// lookup finds a usable (not broken) catalog entry.
func (m *Manager) lookup(id string) (Descriptor, bool) {
	if m.broken[id] {
		return Descriptor{}, false
	}
	for _, d := range m.catalog.List() {
		if d.ID == id {
			return d, true
		}
	}
	return Descriptor{}, false
}

// eligible reports whether auto rotation may pick id.
func (m *Manager) eligible(id string, now time.Time) bool {
	return !m.broken[id] && !m.soft.Blocked(id, now) && !m.aesthetic.Blocked(id, now)
}

// nextCandidate walks the catalog after the scope's current preset.
func (m *Manager) nextCandidate(scope Scope, now time.Time) (string, error) {
	list := m.catalog.List()
	if len(list) == 0 {
		return "", ErrNoCandidate
	}
	cur := m.current[scope]
	start := 0
	for i, d := range list {
		if d.ID == cur {
			start = i + 1
			break
		}
	}
	for i := 0; i < len(list); i++ {
		d := list[(start+i)%len(list)]
		if d.ID == cur || !m.eligible(d.ID, now) {
			continue
		}
		return d.ID, nil
	}
	return "", ErrNoCandidate
}

func scaleDuration(d time.Duration, scale float64) time.Duration {
	if scale <= 0 {
		return d
	}
	return time.Duration(float64(d) * scale)
}

// #endregion helpers
