package preset

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// #region load-task
type loadTask struct {
	id       string
	reportID string
	req      Request
	desc     Descriptor
	anchor   bool
	cacheHit bool
	started  time.Time
}

type loadResult struct {
	task    *loadTask
	content string
	err     error
	fetch   time.Duration
	apply   time.Duration
}

// #endregion load-task

// #region dispatch
// dispatch starts a load. The caller has already passed (or bypassed) the gate.
func (m *Manager) dispatch(req Request, cond Conditions, now time.Time, anchor bool) SwitchReport {
	if req.PresetID == "" {
		id, err := m.nextCandidate(req.Scope, now)
		if err != nil {
			return m.reject(req, err, now)
		}
		req.PresetID = id
	} else if req.Origin == Auto && !anchor && !m.eligible(req.PresetID, now) {
		return m.reject(req, fmt.Errorf("%w: %s", ErrBlacklisted, req.PresetID), now)
	}
	desc, ok := m.lookup(req.PresetID)
	if !ok {
		return m.reject(req, fmt.Errorf("%w: %s", ErrUnknownPreset, req.PresetID), now)
	}

	content, hit := m.cache.Get(desc.URL, now)
	task := &loadTask{
		id:       uuid.NewString(),
		req:      req,
		desc:     desc,
		anchor:   anchor,
		cacheHit: hit,
		started:  now,
	}

	m.inFlight = task
	m.yield = make(chan struct{})
	m.switchCD[req.Scope].Arm(now, scaleDuration(m.config.SwitchCooldown, cond.CooldownScale))
	m.crossCD[req.Scope.Other()].Arm(now, m.config.CrossScopeBlock)
	m.pressure.Arm(now, m.config.PressureWindow)
	m.watches[req.Scope].Cancel()

	go m.run(task, m.yield, content)

	rep := m.newReport(req)
	rep.TaskID = task.id
	rep.Anchor = anchor
	rep.Outcome = OutcomeStarted
	rep.CacheHit = hit
	rep.StartedAt = now
	task.reportID = rep.ID
	m.record(rep)

	m.status = fmt.Sprintf("loading %s into %s", desc.ID, req.Scope)
	m.logger.Info().
		Str("preset", desc.ID).
		Str("scope", string(req.Scope)).
		Str("origin", string(req.Origin)).
		Bool("cache_hit", hit).
		Bool("anchor", anchor).
		Msg("switch committed")
	return rep
}

// run executes off the scheduler goroutine. It waits for one scheduler pass
// before doing any heavy work.
func (m *Manager) run(task *loadTask, yield <-chan struct{}, content string) {
	res := loadResult{task: task}
	defer func() {
		if r := recover(); r != nil {
			res.err = fmt.Errorf("apply %s: panic: %v", task.desc.ID, r)
		}
		m.done <- res
	}()

	select {
	case <-yield:
	case <-m.ctx.Done():
		res.err = m.ctx.Err()
		return
	}

	if !task.cacheHit {
		start := time.Now()
		c, err := m.fetcher.Fetch(m.ctx, task.desc.URL)
		res.fetch = time.Since(start)
		if err != nil {
			res.err = fmt.Errorf("fetch %s: %w", task.desc.ID, err)
			return
		}
		content = c
	}
	res.content = content

	start := time.Now()
	err := m.loader.Apply(m.ctx, task.req.Scope, task.desc, content)
	res.apply = time.Since(start)
	if err != nil {
		res.err = fmt.Errorf("apply %s: %w", task.desc.ID, err)
	}
}

// #endregion dispatch

// #region complete
func (m *Manager) complete(res loadResult, now time.Time) SwitchReport {
	task := res.task
	m.inFlight = nil
	m.yield = nil

	id := task.desc.ID
	scope := task.req.Scope
	elapsed := now.Sub(task.started)
	class := ClassifyFailure(res.err, elapsed, m.config.SlowLoad)

	rep := m.newReport(task.req)
	rep.ID = task.reportID
	rep.TaskID = task.id
	rep.Anchor = task.anchor
	rep.CacheHit = task.cacheHit
	rep.StartedAt = task.started
	rep.FinishedAt = now
	rep.Fetch = res.fetch
	rep.Apply = res.apply
	rep.Total = elapsed
	rep.Class = class

	if res.err == nil {
		prev := m.current[scope]
		m.current[scope] = id
		m.predictor.Record(prev, id)
		m.persist(KeyTransitions, m.predictor.Table())
		if !task.cacheHit {
			m.cache.Put(task.desc.URL, res.content, now)
		}
		m.failures = 0
		m.backoff.Reset()
		rep.Outcome = OutcomeCommitted

		if class == FailureSoft {
			rep.Error = fmt.Sprintf("slow load: %s", elapsed)
			m.logger.Warn().Str("preset", id).Dur("elapsed", elapsed).Msg("slow load")
			m.penalize(id, class, now)
		} else {
			m.watches[scope].Start(id, now)
		}
		m.status = fmt.Sprintf("loaded %s into %s", id, scope)
		m.refreshPrefetch(now)
		m.record(rep)
		return rep
	}

	rep.Outcome = OutcomeFailed
	rep.Error = res.err.Error()
	if class == FailureHard {
		m.logger.Error().Err(res.err).Str("preset", id).Msg("hard load failure")
	} else {
		m.logger.Warn().Err(res.err).Str("preset", id).Str("class", string(class)).Msg("load failed")
	}
	m.penalize(id, class, now)

	if task.req.Origin == Auto {
		m.failures++
		m.backoff.Arm(now, m.backoffFor(m.failures))
	}
	m.status = fmt.Sprintf("failed %s (%s): %v", id, class, res.err)
	m.record(rep)
	return rep
}

// backoffFor returns base*2^(n-1), capped.
func (m *Manager) backoffFor(n int) time.Duration {
	d := m.config.BackoffBase
	for i := 1; i < n && d < m.config.BackoffMax; i++ {
		d *= 2
	}
	if d > m.config.BackoffMax {
		d = m.config.BackoffMax
	}
	return d
}

// #endregion complete

// #region penalize
// penalize applies the consequences of a failure class and records a strike.
func (m *Manager) penalize(id string, class FailureClass, now time.Time) {
	url := m.urlOf(id)
	switch class {
	case FailureHard:
		m.broken[id] = true
		m.catalog.MarkBroken(id)
		for s, cur := range m.current {
			if cur == id {
				m.current[s] = ""
			}
		}
		m.predictor.Forget(id)
		m.persist(KeyTransitions, m.predictor.Table())
	case FailureSoft:
		m.soft.Add(id, now, m.config.SoftTTL)
		m.persistBlacklists()
	case FailureAesthetic:
		m.aesthetic.Add(id, now, m.config.AestheticTTL)
		m.persistBlacklists()
	default:
		return
	}
	m.invalidate(id, url)
	m.strike(now)
}

// strike records a quality strike. Enough strikes inside the window schedule
// one anchor fallback and clear the count.
func (m *Manager) strike(now time.Time) {
	cutoff := now.Add(-m.config.StrikeWindow)
	kept := m.strikes[:0]
	for _, t := range m.strikes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	m.strikes = append(kept, now)

	if len(m.strikes) < m.config.StrikeThreshold || m.anchorPending || m.anchorCD.Active(now) {
		return
	}
	m.anchorPending = true
	m.strikes = m.strikes[:0]
	m.anchorCD.Arm(now, m.config.AnchorCooldown)
	m.logger.Warn().Int("threshold", m.config.StrikeThreshold).Msg("anchor fallback scheduled")
}

// #endregion penalize

// #region anchor
// fireAnchor loads the next anchor into the foreground, bypassing the gate.
func (m *Manager) fireAnchor(cond Conditions, now time.Time) (SwitchReport, bool) {
	m.anchorPending = false
	id := m.nextAnchor()
	if id == "" {
		m.status = "anchor fallback: no anchor available"
		m.logger.Error().Msg("anchor fallback without a usable anchor")
		return SwitchReport{}, false
	}
	if p := m.pending[Foreground]; p != nil && p.Origin == Auto {
		delete(m.pending, Foreground)
	}
	req := Request{Scope: Foreground, Origin: Auto, PresetID: id, RequestedAt: now}
	return m.dispatch(req, cond, now, true), true
}

// nextAnchor rotates through the configured anchors, skipping unusable ones.
func (m *Manager) nextAnchor() string {
	n := len(m.config.Anchors)
	for i := 0; i < n; i++ {
		idx := (m.anchorIdx + i) % n
		id := m.config.Anchors[idx]
		if _, ok := m.lookup(id); ok {
			m.anchorIdx = (idx + 1) % n
			return id
		}
	}
	return ""
}

// AnchorPending reports whether a fallback is waiting to run.
func (m *Manager) AnchorPending() bool {
	return m.anchorPending
}

// #endregion anchor
