package preset

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danielpatrickdp/liveweb-controlplane/internal/gate"
	"github.com/danielpatrickdp/liveweb-controlplane/internal/state"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// #region fakes
type fakeCatalog struct {
	mu     sync.Mutex
	items  []Descriptor
	broken map[string]bool
}

func newCatalog(ids ...string) *fakeCatalog {
	c := &fakeCatalog{broken: map[string]bool{}}
	for _, id := range ids {
		c.items = append(c.items, Descriptor{ID: id, URL: "https://presets.test/" + id + ".milk", Label: id})
	}
	return c
}

func (c *fakeCatalog) List() []Descriptor {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Descriptor
	for _, d := range c.items {
		if !c.broken[d.ID] {
			out = append(out, d)
		}
	}
	return out
}

func (c *fakeCatalog) MarkBroken(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.broken[id] = true
}

type fakeFetcher struct {
	mu    sync.Mutex
	calls []string
	errs  map[string]error
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	err := f.errs[url]
	f.mu.Unlock()
	if err != nil {
		return "", err
	}
	return "content:" + url, nil
}

func (f *fakeFetcher) count(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == url {
			n++
		}
	}
	return n
}

func (f *fakeFetcher) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeLoader struct {
	mu      sync.Mutex
	applied []string
	errs    map[string]error
	release chan struct{} // nil = never block

	active    atomic.Int32
	maxActive atomic.Int32
}

func (l *fakeLoader) Apply(ctx context.Context, scope Scope, desc Descriptor, content string) error {
	n := l.active.Add(1)
	defer l.active.Add(-1)
	for {
		m := l.maxActive.Load()
		if n <= m || l.maxActive.CompareAndSwap(m, n) {
			break
		}
	}
	if l.release != nil {
		select {
		case <-l.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.applied = append(l.applied, desc.ID)
	return l.errs[desc.ID]
}

func (l *fakeLoader) appliedIDs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.applied...)
}

type memStore struct {
	data map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{data: map[string][]byte{}}
}

func (s *memStore) GetJSON(key string, v any) error {
	b, ok := s.data[key]
	if !ok {
		return state.ErrNotFound
	}
	return json.Unmarshal(b, v)
}

func (s *memStore) SetJSON(key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.data[key] = b
	return nil
}

// #endregion fakes

// #region harness
type rig struct {
	m       *Manager
	catalog *fakeCatalog
	fetcher *fakeFetcher
	loader  *fakeLoader
	store   *memStore
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ForegroundPhase = gate.PhaseWindow{HalfWidth: 0.5}
	cfg.BackgroundPhase = gate.PhaseWindow{HalfWidth: 0.5}
	cfg.SwitchCooldown = 0
	cfg.CrossScopeBlock = 0
	cfg.PrefetchDepth = 0
	cfg.Quality.WatchDelay = time.Second
	cfg.Quality.MinSamples = 5
	return cfg
}

func newRig(t *testing.T, cfg Config, ids ...string) *rig {
	t.Helper()
	r := &rig{
		catalog: newCatalog(ids...),
		fetcher: &fakeFetcher{errs: map[string]error{}},
		loader:  &fakeLoader{errs: map[string]error{}},
		store:   newMemStore(),
	}
	r.m = NewManager(cfg, r.catalog, r.fetcher, r.loader, r.store, zerolog.Nop())
	t.Cleanup(r.m.Close)
	return r
}

func url(id string) string {
	return "https://presets.test/" + id + ".milk"
}

func open() Conditions {
	return Conditions{Gates: gate.State{AudioValid: true, BeatTrusted: true, RenderStable: true}}
}

// waitDone polls until a load finishes and returns every report seen.
func waitDone(t *testing.T, m *Manager, cond Conditions, now time.Time) []SwitchReport {
	t.Helper()
	var out []SwitchReport
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		reps := m.Poll(cond, now)
		out = append(out, reps...)
		for _, r := range reps {
			if r.Outcome == OutcomeCommitted || r.Outcome == OutcomeFailed {
				return out
			}
		}
		time.Sleep(time.Millisecond)
	}
	require.FailNow(t, "load did not finish")
	return nil
}

func finished(reps []SwitchReport) SwitchReport {
	for _, r := range reps {
		if r.Outcome == OutcomeCommitted || r.Outcome == OutcomeFailed {
			return r
		}
	}
	return SwitchReport{}
}

func manual(scope Scope, id string) Request {
	return Request{Scope: scope, Origin: Manual, PresetID: id}
}

func auto(scope Scope) Request {
	return Request{Scope: scope, Origin: Auto}
}

// #endregion harness
