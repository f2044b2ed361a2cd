package recommend

import (
	"math"
	"sort"
)

// Similarity holds pairwise cosine similarity between interaction rows.
type Similarity struct {
	users  []string
	idx    map[string]int
	values [][]float64
}

// Neighbor is a similar user.
type Neighbor struct {
	User       string
	Similarity float64
}

// ComputeSimilarity L2-normalizes every row (zero rows stay zero) and takes
// all pairwise dot products. Only the upper triangle is computed and then
// mirrored, so the result is exactly symmetric.
func ComputeSimilarity(m *Interactions) *Similarity {
	n := len(m.users)
	normalized := make([][]float64, n)
	for i, row := range m.rows {
		var sq float64
		for _, v := range row {
			sq += v * v
		}
		norm := math.Sqrt(sq)
		out := make([]float64, len(row))
		if norm > 0 {
			for j, v := range row {
				out[j] = v / norm
			}
		}
		normalized[i] = out
	}

	values := make([][]float64, n)
	for i := range values {
		values[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			var dot float64
			for k, v := range normalized[i] {
				dot += v * normalized[j][k]
			}
			values[i][j] = dot
			values[j][i] = dot
		}
	}

	idx := make(map[string]int, n)
	for i, u := range m.users {
		idx[u] = i
	}
	return &Similarity{users: append([]string(nil), m.users...), idx: idx, values: values}
}

// Get returns sim(a, b), 0 when either user is unknown.
func (s *Similarity) Get(a, b string) float64 {
	i, ok := s.idx[a]
	if !ok {
		return 0
	}
	j, ok := s.idx[b]
	if !ok {
		return 0
	}
	return s.values[i][j]
}

// Neighbors returns up to k other users with positive similarity to user,
// most similar first. Ties keep row order.
func (s *Similarity) Neighbors(user string, k int) []Neighbor {
	i, ok := s.idx[user]
	if !ok || k <= 0 {
		return nil
	}
	var out []Neighbor
	for j, v := range s.values[i] {
		if j == i || v <= 0 {
			continue
		}
		out = append(out, Neighbor{User: s.users[j], Similarity: v})
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Similarity > out[b].Similarity })
	if len(out) > k {
		out = out[:k]
	}
	return out
}
