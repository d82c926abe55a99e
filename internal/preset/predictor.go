package preset

import "sort"

// #region predictor
// Predictor counts preset-to-preset transitions and ranks likely successors.
type Predictor struct {
	counts map[string]map[string]int
}

// NewPredictor creates an empty predictor.
func NewPredictor() *Predictor {
	return &Predictor{counts: make(map[string]map[string]int)}
}

// Record counts one transition. Self and empty transitions are ignored.
func (p *Predictor) Record(from, to string) {
	if from == "" || to == "" || from == to {
		return
	}
	row, ok := p.counts[from]
	if !ok {
		row = make(map[string]int)
		p.counts[from] = row
	}
	row[to]++
}

// Top returns up to k successors of from, most frequent first (ties by id).
func (p *Predictor) Top(from string, k int) []string {
	row := p.counts[from]
	if len(row) == 0 || k <= 0 {
		return nil
	}
	ids := make([]string, 0, len(row))
	for id := range row {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if row[ids[i]] != row[ids[j]] {
			return row[ids[i]] > row[ids[j]]
		}
		return ids[i] < ids[j]
	})
	if len(ids) > k {
		ids = ids[:k]
	}
	return ids
}

// Forget removes id as a source and as a successor.
func (p *Predictor) Forget(id string) {
	delete(p.counts, id)
	for _, row := range p.counts {
		delete(row, id)
	}
}

// Table returns a copy of the counts for persistence.
func (p *Predictor) Table() map[string]map[string]int {
	out := make(map[string]map[string]int, len(p.counts))
	for from, row := range p.counts {
		cp := make(map[string]int, len(row))
		for to, n := range row {
			cp[to] = n
		}
		out[from] = cp
	}
	return out
}

// Load replaces the counts.
func (p *Predictor) Load(table map[string]map[string]int) {
	p.counts = make(map[string]map[string]int, len(table))
	for from, row := range table {
		for to, n := range row {
			if from == "" || to == "" || from == to || n <= 0 {
				continue
			}
			if p.counts[from] == nil {
				p.counts[from] = make(map[string]int)
			}
			p.counts[from][to] = n
		}
	}
}

// #endregion predictor
