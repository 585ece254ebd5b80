// Package rangetree implements the private range tree used for a vertex's
// neighborhood once its degree outgrows a clustered segment but is still
// below the ART promotion threshold (spec.md §2 Component C, §4.4).
//
// A Tree owns an ordered vector of fixed-capacity inner segments and a
// parallel key directory of each segment's smallest element. Segments are
// shared by reference (and atomic refcount) across shard versions until a
// write forces a copy-on-write rebuild of the one segment it touches.
package rangetree

import (
	"sort"

	"github.com/cuemby/vertexdb/pkg/pool"
	"github.com/cuemby/vertexdb/pkg/types"
)

// Retire is called by mutating operations for every object detached from
// the tree (an old segment or property block superseded by a fresh one).
// Callers thread a closure that appends to the owning shard version's
// retired-resources list (spec.md §4.2/§4.3).
type Retire func(release func())

// Node is one inner segment: up to RangeLeafSize sorted destination ids,
// with one parallel PropertyBlock per configured edge-property key.
type Node struct {
	Seg   *pool.Segment
	Props []*pool.PropertyBlock
}

func (n *Node) len() int { return n.Seg.Len }

// Tree is a private, per-vertex ordered collection of medium degree.
type Tree struct {
	cfg   types.Config
	pool  *pool.Pool
	nodes []*Node
	keys  []types.VertexID
}

// New returns an empty tree.
func New(cfg types.Config, p *pool.Pool) *Tree {
	return &Tree{cfg: cfg, pool: p}
}

// Degree is the total element count across every segment.
func (t *Tree) Degree() int {
	n := 0
	for _, node := range t.nodes {
		n += node.len()
	}
	return n
}

// locate returns the index of the segment that would contain x: the
// largest directory key <= x, or -1 if the tree is empty.
func (t *Tree) locate(x types.VertexID) int {
	if len(t.keys) == 0 {
		return -1
	}
	i := sort.Search(len(t.keys), func(i int) bool { return t.keys[i] > x })
	return i - 1
}

func findInSegment(n *Node, x types.VertexID) (pos int, found bool) {
	data := n.Seg.Data[:n.Seg.Len]
	i := sort.Search(len(data), func(i int) bool { return data[i] >= x })
	if i < len(data) && data[i] == x {
		return i, true
	}
	return i, false
}

// Contains reports whether x is present.
func (t *Tree) Contains(x types.VertexID) bool {
	idx := t.locate(x)
	if idx < 0 {
		return false
	}
	_, found := findInSegment(t.nodes[idx], x)
	return found
}

// GetProperty returns the scalar at (x, key), or NoProperty/false if
// absent.
func (t *Tree) GetProperty(x types.VertexID, key types.PropertyKey) (types.PropertyValue, bool) {
	idx := t.locate(x)
	if idx < 0 {
		return types.NoProperty, false
	}
	pos, found := findInSegment(t.nodes[idx], x)
	if !found {
		return types.NoProperty, false
	}
	n := t.nodes[idx]
	if int(key) < 0 || int(key) >= len(n.Props) {
		return types.NoProperty, false
	}
	return n.Props[key].Values[pos], true
}

// ForEach enumerates elements in ascending order, stopping early if fn
// returns false.
func (t *Tree) ForEach(fn func(dst types.VertexID, props []types.PropertyValue) bool) {
	buf := make([]types.PropertyValue, 0, len(t.nodes))
	for _, n := range t.nodes {
		data := n.Seg.Data[:n.Seg.Len]
		for i, dst := range data {
			buf = buf[:0]
			for _, pb := range n.Props {
				buf = append(buf, pb.Values[i])
			}
			if !fn(dst, buf) {
				return
			}
		}
	}
}

// All returns every (dst, props) pair as parallel slices, in ascending
// order. Used by promotion/extraction and by insert_batch's rebuild path.
func (t *Tree) All() ([]types.VertexID, [][]types.PropertyValue) {
	dsts := make([]types.VertexID, 0, t.Degree())
	var props [][]types.PropertyValue
	numProps := t.numProps()
	for _, n := range t.nodes {
		data := n.Seg.Data[:n.Seg.Len]
		for i, dst := range data {
			dsts = append(dsts, dst)
			if numProps > 0 {
				row := make([]types.PropertyValue, numProps)
				for k, pb := range n.Props {
					row[k] = pb.Values[i]
				}
				props = append(props, row)
			}
		}
	}
	return dsts, props
}

func (t *Tree) numProps() int {
	if len(t.nodes) == 0 {
		return t.cfg.EdgePropertyNum
	}
	return len(t.nodes[0].Props)
}

// Copy returns a new Tree sharing every segment/property block with the
// receiver, retaining a reference to each so that both trees' refcounts
// correctly reflect the extra owner (spec.md §4.3 Construction: "any
// pointer re-used without mutation is recorded as mounted").
func (t *Tree) Copy() *Tree {
	out := &Tree{
		cfg:   t.cfg,
		pool:  t.pool,
		nodes: make([]*Node, len(t.nodes)),
		keys:  make([]types.VertexID, len(t.keys)),
	}
	copy(out.keys, t.keys)
	for i, n := range t.nodes {
		n.Seg.Retain()
		for _, pb := range n.Props {
			pb.Retain()
		}
		out.nodes[i] = n
	}
	return out
}

func (t *Tree) newNodeFrom(dsts []types.VertexID, propsRows [][]types.PropertyValue, workerSlot int) *Node {
	seg := t.pool.GetSegment(workerSlot)
	n := &Node{Seg: seg}
	for i, d := range dsts {
		seg.Data[i] = d
	}
	seg.Len = len(dsts)

	numProps := t.cfg.EdgePropertyNum
	if numProps > 0 {
		n.Props = make([]*pool.PropertyBlock, numProps)
		for k := 0; k < numProps; k++ {
			pb := t.pool.GetPropertyBlock(workerSlot)
			for i := range dsts {
				if propsRows != nil && i < len(propsRows) && k < len(propsRows[i]) {
					pb.Values[i] = propsRows[i][k]
				}
			}
			n.Props[k] = pb
		}
	}
	return n
}

// Insert adds x (with optional props, one value per configured edge
// property key) via copy-on-write: the touched segment is rebuilt fresh
// and the old one retired; untouched segments are left alone (spec.md
// §4.4 "insert").
func (t *Tree) Insert(x types.VertexID, props []types.PropertyValue, workerSlot int, retire Retire) {
	if len(t.nodes) == 0 {
		n := t.newNodeFrom([]types.VertexID{x}, rowOf(props), workerSlot)
		t.nodes = []*Node{n}
		t.keys = []types.VertexID{0}
		return
	}

	idx := t.locate(x)
	if idx < 0 {
		idx = 0
	}
	node := t.nodes[idx]
	pos, found := findInSegment(node, x)
	if found {
		return
	}

	if node.len() < t.cfg.RangeLeafSize {
		dsts := insertAt(node.Seg.Data[:node.Seg.Len], pos, x)
		rows := insertRowAt(t.rowsOf(node), pos, props)
		fresh := t.newNodeFrom(dsts, rows, workerSlot)
		t.retireNode(node, retire)
		t.nodes[idx] = fresh
		if pos == 0 {
			t.keys[idx] = x
		}
		return
	}

	// Segment full: split at the midpoint, then insert into the correct
	// half (spec.md §4.3.8's "middle slot" notion specialized to a flat
	// array: split at capacity/2).
	dsts := insertAt(node.Seg.Data[:node.Seg.Len], pos, x)
	rows := insertRowAt(t.rowsOf(node), pos, props)
	mid := len(dsts) / 2

	left := t.newNodeFrom(dsts[:mid], rows[:mid], workerSlot)
	right := t.newNodeFrom(dsts[mid:], rows[mid:], workerSlot)
	t.retireNode(node, retire)

	t.nodes = append(t.nodes, nil)
	copy(t.nodes[idx+2:], t.nodes[idx+1:])
	t.nodes[idx] = left
	t.nodes[idx+1] = right

	t.keys = append(t.keys, 0)
	copy(t.keys[idx+2:], t.keys[idx+1:])
	if idx == 0 {
		t.keys[idx] = 0
	}
	t.keys[idx+1] = dsts[mid]
}

// Remove deletes x via copy-on-write, dropping the segment entirely if it
// becomes empty (spec.md §4.4 "remove").
func (t *Tree) Remove(x types.VertexID, workerSlot int, retire Retire) {
	idx := t.locate(x)
	if idx < 0 {
		return
	}
	node := t.nodes[idx]
	pos, found := findInSegment(node, x)
	if !found {
		return
	}

	if node.len() == 1 {
		t.retireNode(node, retire)
		t.nodes = append(t.nodes[:idx], t.nodes[idx+1:]...)
		t.keys = append(t.keys[:idx], t.keys[idx+1:]...)
		if len(t.keys) > 0 {
			t.keys[0] = 0
		}
		return
	}

	dsts := removeAt(node.Seg.Data[:node.Seg.Len], pos)
	rows := removeRowAt(t.rowsOf(node), pos)
	fresh := t.newNodeFrom(dsts, rows, workerSlot)
	t.retireNode(node, retire)
	t.nodes[idx] = fresh
	if pos == 0 {
		t.keys[idx] = dsts[0]
	}
}

// SetProperty rewrites the property at (x, key) via copy-on-write,
// rebuilding only the one segment that holds x. x must already be
// present.
func (t *Tree) SetProperty(x types.VertexID, key types.PropertyKey, value types.PropertyValue, workerSlot int, retire Retire) {
	idx := t.locate(x)
	if idx < 0 {
		return
	}
	node := t.nodes[idx]
	pos, found := findInSegment(node, x)
	if !found {
		return
	}
	dsts := append([]types.VertexID(nil), node.Seg.Data[:node.Seg.Len]...)
	rows := t.rowsOf(node)
	if int(key) >= len(rows[pos]) {
		return
	}
	rows[pos][key] = value
	fresh := t.newNodeFrom(dsts, rows, workerSlot)
	t.retireNode(node, retire)
	t.nodes[idx] = fresh
}

// InsertBatch merges a sorted run of new edges (with optional per-edge
// property rows) into the tree in one pass, rebuilding only the segments
// that receive new elements and leaving the rest untouched (spec.md
// §4.3.7 applied at tree scope).
func (t *Tree) InsertBatch(newDsts []types.VertexID, newRows [][]types.PropertyValue, workerSlot int, retire Retire) {
	if len(newDsts) == 0 {
		return
	}

	allDsts, allRows := t.All()
	merged, mergedRows := mergeSorted(allDsts, allRows, newDsts, newRows)

	for _, n := range t.nodes {
		t.retireNode(n, retire)
	}

	numTargets := (len(merged) + t.cfg.RangeLeafSize - 1) / t.cfg.RangeLeafSize
	if numTargets == 0 {
		numTargets = 1
	}
	target := (len(merged) + numTargets - 1) / numTargets

	nodes := make([]*Node, 0, numTargets)
	keys := make([]types.VertexID, 0, numTargets)
	for start := 0; start < len(merged); start += target {
		end := start + target
		if end > len(merged) {
			end = len(merged)
		}
		var rows [][]types.PropertyValue
		if mergedRows != nil {
			rows = mergedRows[start:end]
		}
		n := t.newNodeFrom(merged[start:end], rows, workerSlot)
		nodes = append(nodes, n)
		if start == 0 {
			keys = append(keys, 0)
		} else {
			keys = append(keys, merged[start])
		}
	}
	t.nodes = nodes
	t.keys = keys
}

// IntersectRange appends every element in [lo, hi] to out.
func (t *Tree) IntersectRange(lo, hi types.VertexID, out *[]types.VertexID) {
	for _, n := range t.nodes {
		data := n.Seg.Data[:n.Seg.Len]
		for _, d := range data {
			if d >= lo && d <= hi {
				*out = append(*out, d)
			}
		}
	}
}

// IntersectTree performs a merge-join against another tree, appending
// common elements to out in ascending order.
func (t *Tree) IntersectTree(other *Tree, out *[]types.VertexID) {
	a, _ := t.All()
	b, _ := other.All()
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			*out = append(*out, a[i])
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
}

// PromoteBuild concatenates every element (plus one extra, already-sorted
// position handled by the caller via newDst/newRow) and returns the merged
// slices, for the caller to bulk-build an ART from (spec.md §4.3.3
// "Private range tree" promotion path).
func (t *Tree) PromoteBuild(newDst types.VertexID, newRow []types.PropertyValue) ([]types.VertexID, [][]types.PropertyValue) {
	dsts, rows := t.All()
	pos := sort.Search(len(dsts), func(i int) bool { return dsts[i] >= newDst })
	dsts = insertAt(dsts, pos, newDst)
	rows = insertRowAt(rows, pos, newRow)
	return dsts, rows
}

// Release retires every segment and property block the tree owns,
// exactly like discarding each node in turn. Used when a vertex holding
// this tree is removed outright (spec.md §4.3 "remove_vertex").
func (t *Tree) Release(retire Retire) {
	for _, n := range t.nodes {
		t.retireNode(n, retire)
	}
}

func (t *Tree) retireNode(n *Node, retire Retire) {
	retire(func() { n.Seg.Release() })
	for _, pb := range n.Props {
		block := pb
		retire(func() { block.Release() })
	}
}

func (t *Tree) rowsOf(n *Node) [][]types.PropertyValue {
	if len(n.Props) == 0 {
		return nil
	}
	rows := make([][]types.PropertyValue, n.len())
	for i := range rows {
		row := make([]types.PropertyValue, len(n.Props))
		for k, pb := range n.Props {
			row[k] = pb.Values[i]
		}
		rows[i] = row
	}
	return rows
}

func rowOf(props []types.PropertyValue) [][]types.PropertyValue {
	if props == nil {
		return nil
	}
	return [][]types.PropertyValue{props}
}

func insertAt(s []types.VertexID, pos int, x types.VertexID) []types.VertexID {
	out := make([]types.VertexID, len(s)+1)
	copy(out, s[:pos])
	out[pos] = x
	copy(out[pos+1:], s[pos:])
	return out
}

func removeAt(s []types.VertexID, pos int) []types.VertexID {
	out := make([]types.VertexID, len(s)-1)
	copy(out, s[:pos])
	copy(out[pos:], s[pos+1:])
	return out
}

func insertRowAt(rows [][]types.PropertyValue, pos int, row []types.PropertyValue) [][]types.PropertyValue {
	if rows == nil && row == nil {
		return nil
	}
	out := make([][]types.PropertyValue, len(rows)+1)
	copy(out, rows[:pos])
	out[pos] = row
	copy(out[pos+1:], rows[pos:])
	return out
}

func removeRowAt(rows [][]types.PropertyValue, pos int) [][]types.PropertyValue {
	if rows == nil {
		return nil
	}
	out := make([][]types.PropertyValue, len(rows)-1)
	copy(out, rows[:pos])
	copy(out[pos:], rows[pos+1:])
	return out
}

func mergeSorted(a []types.VertexID, aRows [][]types.PropertyValue, b []types.VertexID, bRows [][]types.PropertyValue) ([]types.VertexID, [][]types.PropertyValue) {
	out := make([]types.VertexID, 0, len(a)+len(b))
	var outRows [][]types.PropertyValue
	if aRows != nil || bRows != nil {
		outRows = make([][]types.PropertyValue, 0, len(a)+len(b))
	}
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			out = append(out, a[i])
			if outRows != nil {
				outRows = append(outRows, rowAt(aRows, i))
			}
			i++
		case a[i] > b[j]:
			out = append(out, b[j])
			if outRows != nil {
				outRows = append(outRows, rowAt(bRows, j))
			}
			j++
		default:
			// Duplicate destination: keep the existing element,
			// per spec.md §7 kind 2 ("inserting an existing
			// edge is a no-op").
			out = append(out, a[i])
			if outRows != nil {
				outRows = append(outRows, rowAt(aRows, i))
			}
			i++
			j++
		}
	}
	for ; i < len(a); i++ {
		out = append(out, a[i])
		if outRows != nil {
			outRows = append(outRows, rowAt(aRows, i))
		}
	}
	for ; j < len(b); j++ {
		out = append(out, b[j])
		if outRows != nil {
			outRows = append(outRows, rowAt(bRows, j))
		}
	}
	return out, outRows
}

func rowAt(rows [][]types.PropertyValue, i int) []types.PropertyValue {
	if rows == nil || i >= len(rows) {
		return nil
	}
	return rows[i]
}
