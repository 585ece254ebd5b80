package types

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the compile-time tunables of the original engine as runtime
// configuration (spec.md §6). Zero-value Config is not valid; use
// DefaultConfig or LoadConfig.
type Config struct {
	// VertexGroupBits is the number of low bits of a VertexID used as the
	// local slot; shard size is 2^VertexGroupBits.
	VertexGroupBits uint `yaml:"vertex_group_bits"`

	// RangeLeafSize is the segment capacity. The clustered-to-range-tree
	// extraction threshold is half this value.
	RangeLeafSize int `yaml:"range_leaf_size"`

	// ArtLeafSize is the ART leaf capacity before trie deepening.
	ArtLeafSize int `yaml:"art_leaf_size"`

	// ArtExtractThreshold is the degree at which a private range tree is
	// rebuilt as an ART.
	ArtExtractThreshold int `yaml:"art_extract_threshold"`

	// SequentialScanThreshold is loaded and reported by the stats command,
	// but no search consults it: segment search is binary at every size.
	SequentialScanThreshold int `yaml:"sequential_scan_threshold"`

	// BatchUpdateThreadNum is the worker-pool size for parallel batch
	// ingest dispatch.
	BatchUpdateThreadNum int `yaml:"batch_update_thread_num"`

	// BatchUpdateEnableThreshold is the number of buffered inserts out of
	// one source vertex below which batch commit falls back to the
	// per-edge path for that vertex.
	BatchUpdateEnableThreshold int `yaml:"batch_update_enable_threshold"`

	// VertexPropertyNum / EdgePropertyNum: number of scalar properties
	// per vertex/edge. 0 disables property storage for that kind.
	VertexPropertyNum int `yaml:"vertex_property_num"`
	EdgePropertyNum   int `yaml:"edge_property_num"`

	// MaxRegisteredWorkers bounds the reader/writer registry's slot
	// table (§4.6); it is a process-wide "max threads" hint.
	MaxRegisteredWorkers int `yaml:"max_registered_workers"`
}

// DefaultConfig returns the tunables used throughout spec.md's examples:
// RANGE_LEAF_SIZE = 256 so the clustered-inline extraction threshold lands
// at 128 and every extracted range-tree leaf respects the RANGE_LEAF_SIZE/3
// lower bound of §4.4.
func DefaultConfig() Config {
	return Config{
		VertexGroupBits:            8,
		RangeLeafSize:              256,
		ArtLeafSize:                64,
		ArtExtractThreshold:        4096,
		SequentialScanThreshold:    16,
		BatchUpdateThreadNum:       4,
		BatchUpdateEnableThreshold: 64,
		VertexPropertyNum:          1,
		EdgePropertyNum:            1,
		MaxRegisteredWorkers:       256,
	}
}

// LoadConfig reads a YAML config file and overlays it on DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks internal consistency of the tunables.
func (c Config) Validate() error {
	if c.VertexGroupBits == 0 || c.VertexGroupBits > 32 {
		return fmt.Errorf("vertex_group_bits out of range: %d", c.VertexGroupBits)
	}
	if c.RangeLeafSize < 6 {
		return fmt.Errorf("range_leaf_size too small: %d", c.RangeLeafSize)
	}
	if c.ArtExtractThreshold <= c.RangeLeafSize/2 {
		return fmt.Errorf("art_extract_threshold (%d) must exceed the clustered extraction threshold (%d)",
			c.ArtExtractThreshold, c.RangeLeafSize/2)
	}
	if c.BatchUpdateThreadNum <= 0 {
		return fmt.Errorf("batch_update_thread_num must be positive")
	}
	return nil
}

// ShardSize is 2^VertexGroupBits, the number of vertex slots per shard.
func (c Config) ShardSize() int {
	return 1 << c.VertexGroupBits
}

// ClusteredExtractThreshold is the degree at which a vertex's neighborhood
// is extracted from a clustered segment into a private range tree
// (resolved Open Question in spec.md §9: RANGE_LEAF_SIZE/2).
func (c Config) ClusteredExtractThreshold() int {
	return c.RangeLeafSize / 2
}

// RangeTreeMinSegment is the asserted lower bound on a range-tree inner
// segment's size after any mutation (spec.md §4.4).
func (c Config) RangeTreeMinSegment() int {
	return c.RangeLeafSize / 3
}
