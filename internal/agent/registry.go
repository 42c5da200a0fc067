// Package agent manages the registry of named agents and the lifecycle of
// their per-agent knowledge stores.
//
// The registry is a single agents.json file under the data directory,
// rewritten atomically on every mutation. Each agent owns an isolated
// store at <dataDir>/agents/<id>/store.json; deleting an agent removes
// its directory so no orphaned vectors survive.
package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/juniperkb/juniper/internal/knowledge"
	"github.com/juniperkb/juniper/internal/log"
)

var (
	// ErrAgentNotFound means no agent matches the given id or name.
	ErrAgentNotFound = errors.New("agent not found")

	// ErrAgentExists means an agent with the same name is already
	// registered. Names are unique case-insensitively.
	ErrAgentExists = errors.New("agent already exists")

	// ErrInvalidName means the agent name is empty or unusable.
	ErrInvalidName = errors.New("invalid agent name")
)

// Agent is one registry entry.
type Agent struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type registryRecord struct {
	Agents []Agent `json:"agents"`
}

// Registry persists the agent roster and hands out knowledge stores.
// It is safe for concurrent use within a single process; cross-process
// writers are serialized by an advisory file lock.
type Registry struct {
	mu      sync.RWMutex
	dataDir string
	logger  log.Logger
	agents  []Agent

	storesMu sync.Mutex
	stores   map[string]*knowledge.Store
}

// OpenRegistry loads the roster from <dataDir>/agents.json, treating a
// missing file as an empty registry. logger may be nil.
func OpenRegistry(dataDir string, logger log.Logger) (*Registry, error) {
	if logger == nil {
		logger = log.NewNop()
	}
	r := &Registry{
		dataDir: dataDir,
		logger:  logger.With("component", "agent"),
		stores:  make(map[string]*knowledge.Store),
	}
	if err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) indexPath() string { return filepath.Join(r.dataDir, "agents.json") }

func (r *Registry) agentDir(id string) string {
	return filepath.Join(r.dataDir, "agents", id)
}

// StorePath returns where the agent's knowledge store lives on disk. The
// file may not exist yet for an agent that has never been trained.
func (r *Registry) StorePath(id string) string {
	return filepath.Join(r.agentDir(id), "store.json")
}

func (r *Registry) load() error {
	data, err := os.ReadFile(r.indexPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read agent registry: %w", err)
	}
	var rec registryRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return fmt.Errorf("parse agent registry %s: %w", r.indexPath(), err)
	}
	r.agents = rec.Agents
	return nil
}

// saveLocked rewrites agents.json atomically. Caller holds r.mu.
func (r *Registry) saveLocked() error {
	if err := os.MkdirAll(r.dataDir, 0o750); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	lock := flock.New(r.indexPath() + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock agent registry: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	data, err := json.MarshalIndent(registryRecord{Agents: r.agents}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode agent registry: %w", err)
	}

	tmp, err := os.CreateTemp(r.dataDir, ".agents-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp registry: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}
	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("write agent registry: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("sync agent registry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close agent registry: %w", err)
	}
	if err := os.Rename(tmpName, r.indexPath()); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace agent registry: %w", err)
	}
	return nil
}

// Create registers a new agent. Names must be non-empty after trimming
// and unique case-insensitively.
func (r *Registry) Create(name string) (Agent, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Agent{}, ErrInvalidName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range r.agents {
		if strings.EqualFold(a.Name, name) {
			return Agent{}, fmt.Errorf("%q: %w", name, ErrAgentExists)
		}
	}

	a := Agent{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	r.agents = append(r.agents, a)
	if err := r.saveLocked(); err != nil {
		r.agents = r.agents[:len(r.agents)-1]
		return Agent{}, err
	}
	r.logger.Info("agent created", "id", a.ID, "name", a.Name)
	return a, nil
}

// Get returns the agent with the given id.
func (r *Registry) Get(id string) (Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.agents {
		if a.ID == id {
			return a, nil
		}
	}
	return Agent{}, fmt.Errorf("%q: %w", id, ErrAgentNotFound)
}

// Resolve finds an agent by exact id or by case-insensitive name, in that
// order. CLI and MCP callers pass whatever the user typed.
func (r *Registry) Resolve(ref string) (Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.agents {
		if a.ID == ref {
			return a, nil
		}
	}
	for _, a := range r.agents {
		if strings.EqualFold(a.Name, ref) {
			return a, nil
		}
	}
	return Agent{}, fmt.Errorf("%q: %w", ref, ErrAgentNotFound)
}

// List returns all agents sorted by name.
func (r *Registry) List() []Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Agent, len(r.agents))
	copy(out, r.agents)
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out
}

// Delete removes the agent from the roster and deletes its knowledge
// directory. The registry rewrite happens first so a crash between the
// two steps leaves an orphaned directory rather than a roster entry
// pointing at nothing.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	idx := -1
	for i, a := range r.agents {
		if a.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		r.mu.Unlock()
		return fmt.Errorf("%q: %w", id, ErrAgentNotFound)
	}
	removed := r.agents[idx]
	r.agents = append(r.agents[:idx], r.agents[idx+1:]...)
	if err := r.saveLocked(); err != nil {
		r.agents = append(r.agents[:idx], append([]Agent{removed}, r.agents[idx:]...)...)
		r.mu.Unlock()
		return err
	}
	r.mu.Unlock()

	r.storesMu.Lock()
	delete(r.stores, id)
	r.storesMu.Unlock()

	if err := os.RemoveAll(r.agentDir(id)); err != nil {
		return fmt.Errorf("remove agent data: %w", err)
	}
	r.logger.Info("agent deleted", "id", id, "name", removed.Name)
	return nil
}

// Store returns the agent's knowledge store, loading it from disk on
// first use. An agent that has never been trained gets a fresh empty
// store; an unreadable or corrupt file is surfaced, not silently reset.
func (r *Registry) Store(id string) (*knowledge.Store, error) {
	if _, err := r.Get(id); err != nil {
		return nil, err
	}

	r.storesMu.Lock()
	defer r.storesMu.Unlock()
	if s, ok := r.stores[id]; ok {
		return s, nil
	}

	path := r.StorePath(id)
	s := knowledge.Open(path, r.logger)
	exists, err := knowledge.Exists(path)
	if err != nil {
		return nil, fmt.Errorf("stat agent store: %w", err)
	}
	if exists {
		if err := s.Load(); err != nil {
			return nil, err
		}
	}
	r.stores[id] = s
	return s, nil
}
