package preset

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// #region static-catalog
// StaticCatalog is an in-memory catalog built from configuration.
type StaticCatalog struct {
	mu     sync.Mutex
	items  []Descriptor
	broken map[string]bool
}

// NewStaticCatalog copies items, dropping entries without an id or url and
// duplicate ids.
func NewStaticCatalog(items []Descriptor) *StaticCatalog {
	c := &StaticCatalog{broken: make(map[string]bool)}
	seen := make(map[string]bool, len(items))
	for _, d := range items {
		if d.ID == "" || d.URL == "" || seen[d.ID] {
			continue
		}
		seen[d.ID] = true
		if d.Label == "" {
			d.Label = d.ID
		}
		c.items = append(c.items, d)
	}
	return c
}

// List returns the usable entries in catalog order.
func (c *StaticCatalog) List() []Descriptor {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Descriptor, 0, len(c.items))
	for _, d := range c.items {
		if !c.broken[d.ID] {
			out = append(out, d)
		}
	}
	return out
}

// MarkBroken removes id from rotation for the life of the process.
func (c *StaticCatalog) MarkBroken(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.broken[id] = true
}

// #endregion static-catalog

// #region http-fetcher
// HTTPFetcher retrieves preset text over HTTP.
type HTTPFetcher struct {
	Client  *http.Client
	MaxSize int64 // 0 = 4 MiB
}

// NewHTTPFetcher returns a fetcher with the given per-request timeout.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{Client: &http.Client{Timeout: timeout}}
}

// Fetch downloads url. Non-2xx responses are errors.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("get %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("get %s: status %d", url, resp.StatusCode)
	}
	limit := f.MaxSize
	if limit <= 0 {
		limit = 4 << 20
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", url, err)
	}
	return string(body), nil
}

// #endregion http-fetcher
