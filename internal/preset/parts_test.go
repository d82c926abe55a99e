package preset

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassifyFailure(t *testing.T) {
	slow := 2 * time.Second
	cases := []struct {
		name    string
		err     error
		elapsed time.Duration
		want    FailureClass
	}{
		{"ok", nil, time.Second, FailureNone},
		{"slow ok", nil, 3 * time.Second, FailureSoft},
		{"abort", errors.New("Aborted(native code called abort())"), 0, FailureHard},
		{"exception catching", fmt.Errorf("apply x: %w", errors.New("exception catching is not enabled")), 0, FailureHard},
		{"network", errors.New("dial tcp: connection refused"), 0, FailureSoft},
		{"deadline", context.DeadlineExceeded, 0, FailureSoft},
		{"aesthetic", fmt.Errorf("watch: %w", ErrAesthetic), 0, FailureAesthetic},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyFailure(tc.err, tc.elapsed, slow))
		})
	}
}

func TestBlacklistKeepsLaterExpiry(t *testing.T) {
	b := NewBlacklist()
	b.Add("x", t0, time.Hour)
	exp := b.Add("x", t0, time.Minute)
	assert.Equal(t, t0.Add(time.Hour), exp)
	assert.True(t, b.Blocked("x", t0.Add(30*time.Minute)))
}

func TestBlacklistPrune(t *testing.T) {
	b := NewBlacklist()
	b.Add("x", t0, time.Second)
	b.Add("y", t0, time.Hour)
	assert.Equal(t, 1, b.Prune(t0.Add(2*time.Second)))
	assert.Equal(t, 1, b.Len())
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewCache(2, time.Hour)
	c.Put("a", "A", t0)
	c.Put("b", "B", t0)
	_, ok := c.Get("a", t0) // a is now most recent
	assert.True(t, ok)
	c.Put("c", "C", t0)

	assert.True(t, c.Contains("a", t0))
	assert.False(t, c.Contains("b", t0))
	assert.True(t, c.Contains("c", t0))
	assert.Equal(t, 2, c.Len())
}

func TestCacheTTLIsAbsolute(t *testing.T) {
	c := NewCache(4, time.Minute)
	c.Put("a", "A", t0)
	// Reads refresh recency, not age.
	_, ok := c.Get("a", t0.Add(50*time.Second))
	assert.True(t, ok)
	_, ok = c.Get("a", t0.Add(61*time.Second))
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestCacheInvalidate(t *testing.T) {
	c := NewCache(4, time.Minute)
	c.Put("a", "A", t0)
	c.Invalidate("a")
	c.Invalidate("missing")
	assert.False(t, c.Contains("a", t0))
}

func TestPredictorTopAndForget(t *testing.T) {
	p := NewPredictor()
	p.Record("a", "b")
	p.Record("a", "c")
	p.Record("a", "c")
	p.Record("a", "a")
	p.Record("", "a")
	assert.Equal(t, []string{"c", "b"}, p.Top("a", 5))
	assert.Equal(t, []string{"c"}, p.Top("a", 1))

	p.Forget("c")
	assert.Equal(t, []string{"b"}, p.Top("a", 5))
	assert.Nil(t, p.Top("zzz", 5))
}

func TestPredictorLoadSkipsInvalidRows(t *testing.T) {
	p := NewPredictor()
	p.Load(map[string]map[string]int{"a": {"b": 2, "a": 5, "c": 0}})
	assert.Equal(t, map[string]map[string]int{"a": {"b": 2}}, p.Table())
}
