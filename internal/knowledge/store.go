package knowledge

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

// storeRecord is the on-disk layout: one JSON record per agent holding the
// dimension marker, the revision counter and every (chunk, vector) entry.
type storeRecord struct {
	Dimension int     `json:"dimension"`
	Revision  uint64  `json:"revision"`
	Entries   []Entry `json:"entries"`
}

// Store is the persistent (chunk, vector) collection for one agent.
//
// All vectors share a single dimension, established by the first Add and
// fixed afterwards. Every successful mutation increments the revision
// counter and durably persists the full record before returning: the
// payload is staged to a temp file in the store directory, fsynced, and
// atomically renamed over the canonical path, so an external reader (or a
// crash mid-flush) can never observe a half-written store.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	mu       sync.RWMutex
	path     string
	logger   *slog.Logger
	dim      int
	revision uint64
	entries  []Entry
	ids      map[string]struct{}
}

// Open returns a store handle bound to path. No I/O happens here; call
// Load to materialize persisted state, or start adding entries for a
// fresh agent.
func Open(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		path:   path,
		logger: logger,
		ids:    make(map[string]struct{}),
	}
}

// Path returns the canonical on-disk location of the store.
func (s *Store) Path() string { return s.path }

// Load replaces the in-memory state with the persisted record.
//
// Any failure to produce a consistent store — missing file, unreadable
// payload, a vector whose length disagrees with the record's own dimension
// field, duplicate chunk ids — surfaces as ErrCorruptStore. Recovery policy
// (start empty, re-ingest sources) belongs to the caller, not the store.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock := flock.New(s.lockPath())
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("locking store %s: %w", s.path, err)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			s.logger.Warn("unlocking store", "path", s.path, "error", err)
		}
	}()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("reading store %s: %v: %w", s.path, err, ErrCorruptStore)
	}

	var rec storeRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return fmt.Errorf("decoding store %s: %v: %w", s.path, err, ErrCorruptStore)
	}

	if len(rec.Entries) > 0 && rec.Dimension <= 0 {
		return fmt.Errorf("store %s: dimension field missing or invalid: %w", s.path, ErrCorruptStore)
	}

	ids := make(map[string]struct{}, len(rec.Entries))
	for _, e := range rec.Entries {
		if len(e.Vector) != rec.Dimension {
			return fmt.Errorf("store %s: chunk %s vector length %d disagrees with dimension %d: %w",
				s.path, e.ID, len(e.Vector), rec.Dimension, ErrCorruptStore)
		}
		if _, dup := ids[e.ID]; dup {
			return fmt.Errorf("store %s: duplicate chunk id %s: %w", s.path, e.ID, ErrCorruptStore)
		}
		ids[e.ID] = struct{}{}
	}

	s.dim = rec.Dimension
	s.revision = rec.Revision
	s.entries = rec.Entries
	s.ids = ids

	s.logger.Debug("loaded knowledge store",
		"path", s.path, "entries", len(s.entries), "dimension", s.dim, "revision", s.revision)
	return nil
}

// Add appends new (chunk, vector) pairs and durably persists before
// returning. The first Add on an empty store establishes the dimension;
// any vector of a different length fails the whole call with
// ErrDimensionMismatch and leaves the store unchanged.
func (s *Store) Add(entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dim := s.dim
	if dim == 0 {
		dim = len(entries[0].Vector)
		if dim == 0 {
			return fmt.Errorf("chunk %s: empty vector: %w", entries[0].ID, ErrDimensionMismatch)
		}
	}
	for _, e := range entries {
		if len(e.Vector) != dim {
			return fmt.Errorf("chunk %s: got %d components, store dimension is %d: %w",
				e.ID, len(e.Vector), dim, ErrDimensionMismatch)
		}
		if _, dup := s.ids[e.ID]; dup {
			return fmt.Errorf("chunk %s: %w", e.ID, ErrDuplicateChunk)
		}
	}

	return s.mutateLocked(func() {
		s.dim = dim
		s.entries = append(s.entries, entries...)
		for _, e := range entries {
			s.ids[e.ID] = struct{}{}
		}
	})
}

// DeleteBySource removes every chunk whose source matches. An absent
// source is a no-op, not an error, and leaves the revision unchanged.
func (s *Store) DeleteBySource(source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replaceSourceLocked(source, nil)
}

// ReplaceSource atomically supersedes every chunk of the given source with
// the provided entries in a single revision. Ingestion uses it so that
// re-ingesting a source can never leave both old and new chunks visible,
// nor a window where the source is absent.
func (s *Store) ReplaceSource(source string, entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dim := s.dim
	for _, e := range entries {
		if dim == 0 {
			dim = len(e.Vector)
		}
		if len(e.Vector) == 0 || len(e.Vector) != dim {
			return fmt.Errorf("chunk %s: got %d components, store dimension is %d: %w",
				e.ID, len(e.Vector), dim, ErrDimensionMismatch)
		}
	}
	return s.replaceSourceLocked(source, entries)
}

// replaceSourceLocked rewrites the entries of one source. Caller holds the
// write lock and has validated dimensions.
func (s *Store) replaceSourceLocked(source string, entries []Entry) error {
	kept := make([]Entry, 0, len(s.entries)+len(entries))
	removed := 0
	for _, e := range s.entries {
		if e.Source == source {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	if removed == 0 && len(entries) == 0 {
		return nil // unknown source, nothing to persist
	}
	kept = append(kept, entries...)

	return s.mutateLocked(func() {
		for id := range s.ids {
			delete(s.ids, id)
		}
		for _, e := range kept {
			s.ids[e.ID] = struct{}{}
		}
		s.entries = kept
		if s.dim == 0 && len(entries) > 0 {
			s.dim = len(entries[0].Vector)
		}
	})
}

// mutateLocked applies an in-memory change, bumps the revision and flushes.
// If the flush fails the previous state is restored, preserving the
// invariant that memory and disk never disagree from a reader's view.
func (s *Store) mutateLocked(apply func()) error {
	prevEntries := s.entries
	prevDim := s.dim
	prevRevision := s.revision
	prevIDs := make(map[string]struct{}, len(s.ids))
	for id := range s.ids {
		prevIDs[id] = struct{}{}
	}

	apply()
	s.revision++

	if err := s.flushLocked(); err != nil {
		s.entries = prevEntries
		s.dim = prevDim
		s.revision = prevRevision
		s.ids = prevIDs
		return err
	}
	return nil
}

// Flush writes the current state out even without a preceding mutation.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

// flushLocked stages the full record to a temp file in the store directory,
// fsyncs it and atomically renames it over the canonical path.
func (s *Store) flushLocked() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating store directory: %w", err)
	}

	lock := flock.New(s.lockPath())
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("locking store %s: %w", s.path, err)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			s.logger.Warn("unlocking store", "path", s.path, "error", err)
		}
	}()

	data, err := json.Marshal(storeRecord{
		Dimension: s.dim,
		Revision:  s.revision,
		Entries:   s.entries,
	})
	if err != nil {
		return fmt.Errorf("encoding store: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".store-*.tmp")
	if err != nil {
		return fmt.Errorf("staging store: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing staged store: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing staged store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing staged store: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("promoting staged store: %w", err)
	}

	s.logger.Debug("flushed knowledge store",
		"path", s.path, "entries", len(s.entries), "revision", s.revision)
	return nil
}

// All returns a snapshot of every entry, in insertion order.
func (s *Store) All() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Size returns the number of stored chunks.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Dimension returns the established vector dimension, or 0 for an empty
// store that has not seen its first Add.
func (s *Store) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dim
}

// Revision returns the revision counter, incremented on every successful
// mutation.
func (s *Store) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}

// Sources returns the distinct source identifiers present in the store,
// in first-appearance order.
func (s *Store) Sources() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	var out []string
	for _, e := range s.entries {
		if _, ok := seen[e.Source]; ok {
			continue
		}
		seen[e.Source] = struct{}{}
		out = append(out, e.Source)
	}
	return out
}

func (s *Store) lockPath() string { return s.path + ".lock" }

// Exists reports whether a persisted record is present at path. The agent
// registry uses it to distinguish a fresh agent (start empty) from a store
// that must load cleanly.
func Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}
