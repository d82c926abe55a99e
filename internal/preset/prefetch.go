package preset

import (
	"context"
	"fmt"
	"time"
)

// #region prefetch-task
type prefetchTask struct {
	id     string
	url    string
	cancel context.CancelFunc
}

type prefetchResult struct {
	id      string
	url     string
	content string
	err     error
}

// #endregion prefetch-task

// #region refresh
// refreshPrefetch rebuilds the candidate queue: predicted successors of the
// current presets first, padded with catalog order after the foreground.
// An in-flight fetch that dropped out of the queue is aborted.
func (m *Manager) refreshPrefetch(now time.Time) {
	depth := m.config.PrefetchDepth
	if depth <= 0 {
		m.prefetchQueue = nil
		return
	}
	seen := map[string]bool{}
	for _, s := range []Scope{Foreground, Background} {
		if cur := m.current[s]; cur != "" {
			seen[cur] = true
		}
	}
	var queue []string
	add := func(id string) {
		if len(queue) >= depth || seen[id] {
			return
		}
		seen[id] = true
		if m.prefetchable(id, now) {
			queue = append(queue, id)
		}
	}

	for _, s := range []Scope{Foreground, Background} {
		for _, id := range m.predictor.Top(m.current[s], depth) {
			add(id)
		}
	}

	list := m.catalog.List()
	start := 0
	for i, d := range list {
		if d.ID == m.current[Foreground] {
			start = i + 1
			break
		}
	}
	for i := 0; i < len(list) && len(queue) < depth; i++ {
		add(list[(start+i)%len(list)].ID)
	}

	m.prefetchQueue = queue
	if m.prefetching != nil && !contains(queue, m.prefetching.id) {
		m.logger.Debug().Str("preset", m.prefetching.id).Msg("prefetch superseded")
		m.prefetching.cancel()
	}
}

func (m *Manager) prefetchable(id string, now time.Time) bool {
	if !m.eligible(id, now) {
		return false
	}
	desc, ok := m.lookup(id)
	if !ok {
		return false
	}
	return !m.cache.Contains(desc.URL, now)
}

// #endregion refresh

// #region pump
// pumpPrefetch starts the next fetch unless one is running, render is
// unstable, or a load is pressuring the pipeline.
func (m *Manager) pumpPrefetch(cond Conditions, now time.Time) {
	if m.prefetching != nil || len(m.prefetchQueue) == 0 {
		return
	}
	if !cond.Gates.RenderStable || m.UnderPressure(now) {
		return
	}
	for len(m.prefetchQueue) > 0 {
		id := m.prefetchQueue[0]
		m.prefetchQueue = m.prefetchQueue[1:]
		if !m.prefetchable(id, now) {
			continue
		}
		desc, _ := m.lookup(id)
		ctx, cancel := context.WithCancel(m.ctx)
		m.prefetching = &prefetchTask{id: id, url: desc.URL, cancel: cancel}
		go m.fetchAhead(ctx, id, desc.URL)
		return
	}
}

func (m *Manager) fetchAhead(ctx context.Context, id, url string) {
	res := prefetchResult{id: id, url: url}
	defer func() {
		if r := recover(); r != nil {
			res.err = fmt.Errorf("prefetch %s: panic: %v", id, r)
		}
		m.prefetchDone <- res
	}()
	res.content, res.err = m.fetcher.Fetch(ctx, url)
}

// drainPrefetch stores a finished fetch unless its preset was blacklisted meanwhile.
func (m *Manager) drainPrefetch(now time.Time) {
	select {
	case res := <-m.prefetchDone:
		if m.prefetching != nil {
			m.prefetching.cancel()
		}
		m.prefetching = nil
		if res.err != nil {
			m.logger.Debug().Err(res.err).Str("preset", res.id).Msg("prefetch failed")
			return
		}
		if !m.eligible(res.id, now) {
			return
		}
		m.cache.Put(res.url, res.content, now)
	default:
	}
}

// #endregion pump

// #region invalidate
// invalidate drops id from the cache and the prefetch queue.
func (m *Manager) invalidate(id, url string) {
	if url != "" {
		m.cache.Invalidate(url)
	}
	kept := m.prefetchQueue[:0]
	for _, q := range m.prefetchQueue {
		if q != id {
			kept = append(kept, q)
		}
	}
	m.prefetchQueue = kept
	if m.prefetching != nil && m.prefetching.id == id {
		m.prefetching.cancel()
	}
}

// PrefetchQueue returns a copy of the pending prefetch ids.
func (m *Manager) PrefetchQueue() []string {
	return append([]string(nil), m.prefetchQueue...)
}

// Cached reports whether id's content is cached.
func (m *Manager) Cached(id string, now time.Time) bool {
	url := m.urlOf(id)
	return url != "" && m.cache.Contains(url, now)
}

// urlOf looks id up in the raw catalog, broken or not.
func (m *Manager) urlOf(id string) string {
	for _, d := range m.catalog.List() {
		if d.ID == id {
			return d.URL
		}
	}
	return ""
}

// #endregion invalidate

func contains(ids []string, id string) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
