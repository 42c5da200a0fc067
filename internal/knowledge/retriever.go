package knowledge

import (
	"fmt"
	"math"
	"sort"
)

// Search runs a brute-force cosine-similarity scan over the store and
// returns up to topK results with score >= minScore, ordered by descending
// similarity. Ties are broken by more recent CreatedAt, then by lower chunk
// id, so output is deterministic. An empty store yields an empty result,
// never an error; topK <= 0 or larger than the store returns all qualifying
// results.
//
// The scan holds only the read lock: query embedding happens in the
// provider layer before this call, never inside it.
//
// Brute force is deliberate at the target scale (thousands of chunks per
// agent); an index structure could be swapped in behind this contract as
// long as ranking and tie-break semantics are preserved.
func (s *Store) Search(query []float32, topK int, minScore float64) ([]Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.entries) == 0 {
		return nil, nil
	}
	if len(query) != s.dim {
		return nil, fmt.Errorf("query has %d components, store dimension is %d: %w",
			len(query), s.dim, ErrDimensionMismatch)
	}

	results := make([]Result, 0, len(s.entries))
	for _, e := range s.entries {
		score := cosineSimilarity(query, e.Vector)
		if score < minScore {
			continue
		}
		results = append(results, Result{Chunk: e.Chunk, Score: score})
	}

	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.Chunk.CreatedAt.Equal(b.Chunk.CreatedAt) {
			return a.Chunk.CreatedAt.After(b.Chunk.CreatedAt)
		}
		return a.Chunk.ID < b.Chunk.ID
	})

	if topK > 0 && topK < len(results) {
		results = results[:topK]
	}
	return results, nil
}

// cosineSimilarity computes the normalized dot product of two equal-length
// vectors, accumulating in float64 for stability. A zero-norm operand
// yields 0 rather than dividing by zero.
func cosineSimilarity(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		va, vb := float64(a[i]), float64(b[i])
		dot += va * vb
		na += va * va
		nb += vb * vb
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
