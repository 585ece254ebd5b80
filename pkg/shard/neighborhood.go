// Package shard implements one shard's copy-on-write version chain
// (spec.md §2 Components D/E, §4.2/§4.3): the shared clustered node block,
// the private range-tree/ART tiers for medium/high-degree vertices, and the
// single-writer version builder that produces the next Version from the
// current one.
package shard

import (
	"github.com/cuemby/vertexdb/pkg/art"
	"github.com/cuemby/vertexdb/pkg/metrics"
	"github.com/cuemby/vertexdb/pkg/rangetree"
	"github.com/cuemby/vertexdb/pkg/types"
)

// repKind names a vertex's current neighborhood tier (spec.md §4.3.3).
type repKind int

const (
	repClustered repKind = iota
	repRange
	repArt
)

// artRelease is the uniform Release() wrapper for a whole ART root: the
// trie's internal nodes are ordinary Go values reclaimed by the garbage
// collector once unreferenced (spec.md's manual refcounting is applied at
// the whole-tree granularity, same as a range tree's Tree value), so there
// is nothing to do here beyond letting the reference drop.
func artRelease() {}

// insertTreeEdge applies x to a non-clustered (range or ART) vertex,
// promoting range -> ART when the resulting degree reaches
// ArtExtractThreshold (spec.md §4.3.3's "Private range tree"/"ART" cases).
// It never mutates rt/at in place: both are copy-on-write so an older
// version sharing the same tree pointer is unaffected.
func insertTreeEdge(cfg types.Config, rep repKind, rt *rangetree.Tree, at *art.Tree, x types.VertexID, props []types.PropertyValue, workerSlot int, retire func(func())) (repKind, *rangetree.Tree, *art.Tree) {
	if rep == repRange {
		tr := rt.Copy()
		tr.Insert(x, props, workerSlot, retire)
		if tr.Degree() < cfg.ArtExtractThreshold {
			return repRange, tr, nil
		}
		dsts, rows := tr.All()
		built := art.BulkBuild(art.Config{LeafSize: cfg.ArtLeafSize}, dsts, rows)
		tr.Release(retire)
		metrics.RepresentationTransitionsTotal.WithLabelValues("range", "art").Inc()
		return repArt, nil, built
	}
	return repArt, nil, at.InsertCopy(x, props)
}

func removeTreeEdge(rep repKind, rt *rangetree.Tree, at *art.Tree, x types.VertexID, workerSlot int, retire func(func())) (*rangetree.Tree, *art.Tree) {
	if rep == repRange {
		tr := rt.Copy()
		tr.Remove(x, workerSlot, retire)
		return tr, nil
	}
	return nil, at.RemoveCopy(x)
}

func setTreeProperty(rep repKind, rt *rangetree.Tree, at *art.Tree, x types.VertexID, key types.PropertyKey, value types.PropertyValue, workerSlot int, retire func(func())) (*rangetree.Tree, *art.Tree) {
	if rep == repRange {
		tr := rt.Copy()
		tr.SetProperty(x, key, value, workerSlot, retire)
		return tr, nil
	}
	return nil, at.SetProperty(x, key, value)
}

func insertTreeEdgeBatch(cfg types.Config, rep repKind, rt *rangetree.Tree, at *art.Tree, dsts []types.VertexID, rows [][]types.PropertyValue, workerSlot int, retire func(func())) (repKind, *rangetree.Tree, *art.Tree) {
	if rep == repRange {
		tr := rt.Copy()
		tr.InsertBatch(dsts, rows, workerSlot, retire)
		if tr.Degree() < cfg.ArtExtractThreshold {
			return repRange, tr, nil
		}
		merged, mergedRows := tr.All()
		built := art.BulkBuild(art.Config{LeafSize: cfg.ArtLeafSize}, merged, mergedRows)
		tr.Release(retire)
		metrics.RepresentationTransitionsTotal.WithLabelValues("range", "art").Inc()
		return repArt, nil, built
	}
	return repArt, nil, at.InsertBatch(dsts, rows)
}
