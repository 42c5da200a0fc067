package knowledge

import (
	"errors"
	"math"
	"testing"
	"time"
)

func addEntries(t *testing.T, s *Store, entries ...Entry) {
	t.Helper()
	if err := s.Add(entries); err != nil {
		t.Fatalf("Add: %v", err)
	}
}

func entryAt(id, source string, created time.Time, vec []float32) Entry {
	return Entry{
		Chunk:  Chunk{ID: id, Source: source, Position: 0, Text: "t-" + id, CreatedAt: created},
		Vector: vec,
	}
}

func TestSearchOrderedByDescendingSimilarity(t *testing.T) {
	s := testStore(t)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	addEntries(t, s,
		entryAt("far", "s", base, []float32{0, 1}),
		entryAt("near", "s", base, []float32{1, 0.1}),
		entryAt("exact", "s", base, []float32{1, 0}),
	)

	results, err := s.Search([]float32{1, 0}, 10, -1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	for i := 1; i < len(results); i++ {
		if results[i-1].Score < results[i].Score {
			t.Errorf("results not descending at %d: %f < %f", i, results[i-1].Score, results[i].Score)
		}
	}
	if results[0].Chunk.ID != "exact" {
		t.Errorf("best match = %q, want %q", results[0].Chunk.ID, "exact")
	}
}

func TestSearchScoreBounds(t *testing.T) {
	s := testStore(t)
	base := time.Now().UTC()
	addEntries(t, s,
		entryAt("same", "s", base, []float32{2, 3, 4}),
		entryAt("opposite", "s", base, []float32{-2, -3, -4}),
		entryAt("zero", "s", base, []float32{0, 0, 0}),
	)

	results, err := s.Search([]float32{2, 3, 4}, 0, -2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	byID := map[string]float64{}
	for _, r := range results {
		if r.Score < -1-1e-9 || r.Score > 1+1e-9 {
			t.Errorf("score %f for %s out of [-1, 1]", r.Score, r.Chunk.ID)
		}
		byID[r.Chunk.ID] = r.Score
	}
	if math.Abs(byID["same"]-1) > 1e-6 {
		t.Errorf("self similarity = %f, want 1", byID["same"])
	}
	if math.Abs(byID["opposite"]+1) > 1e-6 {
		t.Errorf("opposite similarity = %f, want -1", byID["opposite"])
	}
	if byID["zero"] != 0 {
		t.Errorf("zero-norm similarity = %f, want 0", byID["zero"])
	}
}

func TestSearchZeroNormQuery(t *testing.T) {
	s := testStore(t)
	addEntries(t, s, entryAt("a", "s", time.Now().UTC(), []float32{1, 2}))

	results, err := s.Search([]float32{0, 0}, 5, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Score != 0 {
		t.Errorf("zero-norm query: got %+v, want single result with score 0", results)
	}
}

func TestSearchTieBreaks(t *testing.T) {
	s := testStore(t)
	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)

	// Identical vectors: identical scores, tie-broken by recency then id.
	addEntries(t, s,
		entryAt("b-old", "s", older, []float32{1, 0}),
		entryAt("a-new", "s", newer, []float32{1, 0}),
		entryAt("c-new", "s", newer, []float32{1, 0}),
	)

	results, err := s.Search([]float32{1, 0}, 0, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	want := []string{"a-new", "c-new", "b-old"}
	if len(results) != len(want) {
		t.Fatalf("got %d results, want %d", len(results), len(want))
	}
	for i, id := range want {
		if results[i].Chunk.ID != id {
			t.Errorf("results[%d] = %q, want %q", i, results[i].Chunk.ID, id)
		}
	}
}

func TestSearchMinScoreFilter(t *testing.T) {
	s := testStore(t)
	base := time.Now().UTC()
	addEntries(t, s,
		entryAt("hit", "s", base, []float32{1, 0}),
		entryAt("miss", "s", base, []float32{0, 1}),
	)

	results, err := s.Search([]float32{1, 0}, 10, 0.5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Chunk.ID != "hit" {
		t.Errorf("min_score filter: got %+v, want only %q", results, "hit")
	}
}

func TestSearchTopKLargerThanStore(t *testing.T) {
	s := testStore(t)
	addEntries(t, s, entryAt("only", "s", time.Now().UTC(), []float32{1}))

	results, err := s.Search([]float32{1}, 100, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("got %d results, want all 1", len(results))
	}
}

func TestSearchEmptyStore(t *testing.T) {
	s := testStore(t)
	results, err := s.Search([]float32{1, 2, 3}, 5, 0)
	if err != nil {
		t.Errorf("empty store must not error, got %v", err)
	}
	if len(results) != 0 {
		t.Errorf("empty store returned %d results", len(results))
	}
}

func TestSearchQueryDimensionMismatch(t *testing.T) {
	s := testStore(t)
	addEntries(t, s, entryAt("a", "s", time.Now().UTC(), []float32{1, 2}))

	if _, err := s.Search([]float32{1}, 5, 0); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Search with wrong query dimension = %v, want ErrDimensionMismatch", err)
	}
}
