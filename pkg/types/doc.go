/*
Package types defines the core data structures shared by every layer of
the graph storage engine: vertex/edge identifiers, the runtime Config
tunables, the property value model, and the engine's sentinel errors.

# Identifiers

VertexID packs a shard index into its high VertexGroupBits bits and a
per-shard slot into the remaining low bits (Shard/Slot, MakeVertexID).
EdgeID pairs two VertexIDs; directed graphs store one EdgeID per directed
edge. Timestamp is the monotonic commit/read clock shared by every shard.

# Configuration

Config holds the tunables spec.md calls out by name (vertex_group_bits,
range_leaf_size, art_leaf_size, art_extract_threshold,
batch_update_thread_num, batch_update_enable_threshold,
max_registered_workers, and the per-kind property counts).
DefaultConfig returns the values used throughout spec.md's worked
examples; LoadConfig overlays a YAML file on top of those defaults via
gopkg.in/yaml.v3, the same library the teacher uses for its own on-disk
config.

# Properties

PropertyValue is a single scalar (NoProperty marks an unset slot).
PropertyVector is a dense, append-only-by-copy array of one property key
across every slot of a segment, clustered node, or ART leaf; vectors are
shared by reference across shard versions until a write touches one.

# Errors

The sentinel errors in errors.go (ErrVertexNotFound, ErrVertexExists,
ErrEdgeNotFound, ErrCommitPrecondition, ErrShardNotFound,
ErrPropertyKeyRange, ErrAborted, ErrTooManyWorkers) are the failure
values of pkg/shard, pkg/txn, and pkg/registry rather than panics,
following the teacher's storage-layer error style; ErrCommitPrecondition,
ErrShardNotFound and ErrAborted are defined but returned by no
operation (see errors.go). Structural-corruption
invariants are the only things that still panic.
*/
package types
