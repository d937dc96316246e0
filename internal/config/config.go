// Package config loads the per-shard configuration that the vector,
// catalog, and merge-scheduler components are parameterized by. Similarity
// choice and dimension are immutable per shard once a segment has been
// written under them; everything else here is a tuning knob with a
// documented default.
package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/nidx/nidx/internal/xerrors"
)

// Similarity selects the vector-segment scoring function. Immutable per
// shard once a segment has been written under it.
type Similarity string

const (
	SimilarityCosine Similarity = "cosine"
	SimilarityDot    Similarity = "dot"
)

// VectorCardinality controls whether a paragraph contributes one vector
// (single) or many (multi); multi collapses results per paragraph_id.
type VectorCardinality string

const (
	CardinalitySingle VectorCardinality = "single"
	CardinalityMulti  VectorCardinality = "multi"
)

// HNSWParams are the fixed construction/search parameters for the graph
// index. Overriding the defaults is intended for tests that need small
// graphs to run fast, not for production tuning.
type HNSWParams struct {
	M              int `yaml:"m"`
	EfConstruction int `yaml:"ef_construction"`
	EfSearch       int `yaml:"ef_search"`
}

func DefaultHNSWParams() HNSWParams {
	return HNSWParams{M: 30, EfConstruction: 100, EfSearch: 100}
}

// MergeParams bound a single merge invocation.
type MergeParams struct {
	MaxNodesInMerge      int `yaml:"max_nodes_in_merge"`
	SegmentsBeforeMerge  int `yaml:"segments_before_merge"`
	MaximumDeletedEntries int `yaml:"maximum_deleted_entries"`
}

func DefaultMergeParams() MergeParams {
	return MergeParams{
		MaxNodesInMerge:       2_000_000,
		SegmentsBeforeMerge:   4,
		MaximumDeletedEntries: 50_000,
	}
}

// ShardConfig is the immutable-per-shard configuration for all four
// co-located indexes.
type ShardConfig struct {
	Dimension   int               `yaml:"dimension"`
	Similarity  Similarity        `yaml:"similarity"`
	Cardinality VectorCardinality `yaml:"cardinality"`
	HNSW        HNSWParams        `yaml:"hnsw"`
	Merge       MergeParams       `yaml:"merge"`
}

// Validate checks the minimal invariants the rest of the engine assumes.
func (c ShardConfig) Validate() error {
	if c.Dimension <= 0 {
		return xerrors.New(xerrors.InvalidRequest, "dimension must be positive")
	}
	if c.Similarity != SimilarityCosine && c.Similarity != SimilarityDot {
		return xerrors.Newf(xerrors.InvalidRequest, "unknown similarity %q", c.Similarity)
	}
	if c.Cardinality != CardinalitySingle && c.Cardinality != CardinalityMulti {
		return xerrors.Newf(xerrors.InvalidRequest, "unknown vector cardinality %q", c.Cardinality)
	}
	return nil
}

// Load reads a ShardConfig from a YAML file, filling documented defaults
// for any zero-valued tuning section.
func Load(path string) (ShardConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ShardConfig{}, xerrors.Mark(xerrors.IO, err, "read shard config")
	}
	cfg := ShardConfig{
		HNSW:  DefaultHNSWParams(),
		Merge: DefaultMergeParams(),
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return ShardConfig{}, xerrors.Mark(xerrors.InvalidRequest, err, "parse shard config")
	}
	if cfg.HNSW.M == 0 {
		cfg.HNSW = DefaultHNSWParams()
	}
	if cfg.Merge.MaxNodesInMerge == 0 {
		cfg.Merge = DefaultMergeParams()
	}
	return cfg, cfg.Validate()
}

// Save writes cfg to path as YAML, creating or truncating the file. Used
// when a shard is first created to persist the configuration Load will
// read back on every subsequent open.
func Save(path string, cfg ShardConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return xerrors.Mark(xerrors.Internal, err, "encode shard config")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return xerrors.Mark(xerrors.IO, err, "write shard config")
	}
	return nil
}
