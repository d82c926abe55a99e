package preset

import "time"

// #region blacklist
// Blacklist maps preset ids to an expiry. An id is eligible again strictly
// after its expiry.
type Blacklist struct {
	entries map[string]time.Time
}

// NewBlacklist creates an empty blacklist.
func NewBlacklist() *Blacklist {
	return &Blacklist{entries: make(map[string]time.Time)}
}

// Add blacklists id until now+ttl. An existing later expiry is kept.
func (b *Blacklist) Add(id string, now time.Time, ttl time.Duration) time.Time {
	exp := now.Add(ttl)
	if cur, ok := b.entries[id]; ok && cur.After(exp) {
		return cur
	}
	b.entries[id] = exp
	return exp
}

// Blocked reports whether id is still blacklisted, pruning it once expired.
func (b *Blacklist) Blocked(id string, now time.Time) bool {
	exp, ok := b.entries[id]
	if !ok {
		return false
	}
	if now.After(exp) {
		delete(b.entries, id)
		return false
	}
	return true
}

// Prune drops expired entries and returns how many were removed.
func (b *Blacklist) Prune(now time.Time) int {
	n := 0
	for id, exp := range b.entries {
		if now.After(exp) {
			delete(b.entries, id)
			n++
		}
	}
	return n
}

// Entries returns a copy of the map.
func (b *Blacklist) Entries() map[string]time.Time {
	out := make(map[string]time.Time, len(b.entries))
	for id, exp := range b.entries {
		out[id] = exp
	}
	return out
}

// Load replaces the contents, skipping entries already expired at now.
func (b *Blacklist) Load(entries map[string]time.Time, now time.Time) {
	b.entries = make(map[string]time.Time, len(entries))
	for id, exp := range entries {
		if !now.After(exp) {
			b.entries[id] = exp
		}
	}
}

// Len returns the number of entries, expired or not.
func (b *Blacklist) Len() int {
	return len(b.entries)
}

// #endregion blacklist
