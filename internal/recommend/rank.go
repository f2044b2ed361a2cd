package recommend

import "sort"

type scored struct {
	name  string
	score float64
}

// accumulator sums scores per name and remembers first-insertion order.
type accumulator struct {
	items []scored
	idx   map[string]int
}

func newAccumulator() *accumulator {
	return &accumulator{idx: make(map[string]int)}
}

func (a *accumulator) add(name string, v float64) {
	if i, ok := a.idx[name]; ok {
		a.items[i].score += v
		return
	}
	a.idx[name] = len(a.items)
	a.items = append(a.items, scored{name: name, score: v})
}

// topN sorts by descending score, keeping input order on ties, and truncates.
func topN(items []scored, n int) []scored {
	sort.SliceStable(items, func(i, j int) bool { return items[i].score > items[j].score })
	if n >= 0 && len(items) > n {
		items = items[:n]
	}
	return items
}
