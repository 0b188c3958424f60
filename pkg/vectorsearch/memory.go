package vectorsearch

import (
	"context"
	"math"
	"sort"
	"sync"
)

// MemorySearcher is an in-process exact cosine search over a fixed set of
// vectors. It backs tests and local runs without pgvector.
type MemorySearcher struct {
	mu      sync.RWMutex
	vectors map[string][]float32
}

func NewMemorySearcher() *MemorySearcher {
	return &MemorySearcher{vectors: map[string][]float32{}}
}

// Put stores or replaces the vector for id
func (s *MemorySearcher) Put(id string, vec []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vectors[id] = append([]float32(nil), vec...)
}

func (s *MemorySearcher) Search(ctx context.Context, query []float32, candidateIDs []string, limit int) ([]Result, error) {
	if len(query) == 0 {
		return nil, ErrEmptyQuery
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]Result, 0, len(candidateIDs))
	for _, id := range candidateIDs {
		vec, ok := s.vectors[id]
		if !ok {
			continue
		}
		results = append(results, Result{ID: id, Score: Cosine(query, vec)})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score == results[j].Score {
			return results[i].ID < results[j].ID
		}
		return results[i].Score > results[j].Score
	})
	if limit >= 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Cosine returns the cosine similarity of a and b, 0 when either is a zero
// vector. Vectors of different length are compared over the shorter prefix.
func Cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
