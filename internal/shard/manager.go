package shard

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/nidx/nidx/internal/config"
	"github.com/nidx/nidx/internal/merge"
	"github.com/nidx/nidx/internal/xerrors"
)

const shardConfigFile = "shard.yaml"

// Manager is the process-wide, explicitly-passed per-shard writer cache:
// create-or-open on first use, close on shard delete. It must never be a
// package-level singleton; callers construct one with NewManager and pass
// it to whatever needs shard access (a search handler, the merge
// scheduler, a CLI command).
type Manager struct {
	root string

	mu     sync.Mutex
	shards map[string]*Shard
}

// NewManager roots a shard cache at dir, where each subdirectory is one
// shard's on-disk state.
func NewManager(dir string) *Manager {
	return &Manager{root: dir, shards: map[string]*Shard{}}
}

// Get returns the shard's live handle, opening it from disk on first use.
func (m *Manager) Get(id string) (*Shard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getLocked(id)
}

func (m *Manager) getLocked(id string) (*Shard, error) {
	if s, ok := m.shards[id]; ok {
		return s, nil
	}

	dir := filepath.Join(m.root, id)
	cfg, err := config.Load(filepath.Join(dir, shardConfigFile))
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return nil, xerrors.Newf(xerrors.ShardNotFound, "shard %q", id)
		}
		return nil, err
	}
	s, err := Open(dir, id, cfg)
	if err != nil {
		return nil, err
	}
	m.shards[id] = s
	return s, nil
}

// Create initializes a brand new shard directory with cfg and opens it,
// failing if a shard already exists at id.
func (m *Manager) Create(id string, cfg config.ShardConfig) (*Shard, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.shards[id]; ok {
		return nil, xerrors.Newf(xerrors.InvalidRequest, "shard %q already open", id)
	}
	dir := filepath.Join(m.root, id)
	if _, err := os.Stat(dir); err == nil {
		return nil, xerrors.Newf(xerrors.InvalidRequest, "shard %q already exists", id)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, xerrors.Mark(xerrors.IO, err, "create shard dir")
	}
	if err := config.Save(filepath.Join(dir, shardConfigFile), cfg); err != nil {
		return nil, err
	}

	s, err := Open(dir, id, cfg)
	if err != nil {
		return nil, err
	}
	m.shards[id] = s
	return s, nil
}

// Delete closes and permanently removes a shard, the cache's
// close_on_shard_delete half. In-flight searches holding segment handles
// through the shard's pools keep those handles open until they release
// them; Delete itself does not wait.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	s, ok := m.shards[id]
	delete(m.shards, id)
	m.mu.Unlock()

	if ok {
		s.Close()
	}
	if err := os.RemoveAll(filepath.Join(m.root, id)); err != nil {
		return xerrors.Mark(xerrors.IO, err, "remove shard dir")
	}
	return nil
}

// ShardIDs implements merge.Lister by listing shard directories on disk,
// including ones not currently open, so an idle shard still gets swept.
func (m *Manager) ShardIDs() ([]string, error) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, xerrors.Mark(xerrors.IO, err, "list shards")
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	return ids, nil
}

// Merge implements merge.Merger, dispatching to the named shard's own
// merge pass.
func (m *Manager) Merge(ctx context.Context, shardID string, params merge.Params) error {
	s, err := m.Get(shardID)
	if err != nil {
		return err
	}
	return s.merge(ctx, params)
}
