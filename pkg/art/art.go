// Package art implements the adaptive radix tree used for a vertex's
// neighborhood once its degree reaches ArtExtractThreshold (spec.md §2
// Component B, §4.5).
//
// Keys are the full 64-bit destination VertexID (an Open Question
// resolution documented in SPEC_FULL.md: the original engine specializes
// to 3-4 byte keys because its benchmarks cap vertex ids under 2^32; this
// port generalizes to the full key width). The trie branches one byte at
// a time from the most significant byte, collapsing into a capped leaf
// array once a subtree holds at most LeafSize entries, mirroring "bounded
// leaf arrays holding the remaining byte(s)".
//
// Nodes come in four fan-out classes that grow monotonically (Node4,
// Node16, Node48, Node256); there is no explicit path compression since
// the key is only 8 bytes deep, so a leaf plays the role path compression
// would otherwise serve.
package art

import (
	"sort"

	"github.com/cuemby/vertexdb/pkg/types"
)

const keyBytes = 8

// node is the trie's element type: either an inner fan-out node or a
// leaf array. Exactly one of inner and leaf is set; callers branch on
// which one rather than going through an interface with behavior,
// keeping the copy-on-write path explicit.
type node struct {
	inner *innerNode
	leaf  *leafNode
}

type innerNode struct {
	kind     int // 4, 16, 48, 256
	keys     []byte   // kind 4/16: parallel sorted byte keys
	index    [256]int8 // kind 48: byte -> slot in children, -1 if absent
	children []*node
}

func newInner4() *innerNode { return &innerNode{kind: 4} }

type entry struct {
	key   types.VertexID
	props []types.PropertyValue
}

type leafNode struct {
	entries []entry // sorted by key
}

// Tree is one vertex's adaptive radix tree.
type Tree struct {
	cfg   Config
	root  *node
	count int
}

// Config carries the ART tunable (the leaf capacity) from types.Config without the
// package depending on the rest of the engine's config surface.
type Config struct {
	LeafSize int
}

// New returns an empty tree.
func New(cfg Config) *Tree {
	return &Tree{cfg: cfg}
}

// Degree is the number of distinct elements stored.
func (t *Tree) Degree() int { return t.count }

func keyByte(k types.VertexID, depth int) byte {
	shift := uint(keyBytes-1-depth) * 8
	return byte(uint64(k) >> shift)
}

// Contains reports whether x is present.
func (t *Tree) Contains(x types.VertexID) bool {
	_, ok := t.find(t.root, x, 0)
	return ok
}

// GetProperty returns the scalar at (x, key), or NoProperty/false if
// absent.
func (t *Tree) GetProperty(x types.VertexID, key types.PropertyKey) (types.PropertyValue, bool) {
	e, ok := t.find(t.root, x, 0)
	if !ok {
		return types.NoProperty, false
	}
	if int(key) < 0 || int(key) >= len(e.props) {
		return types.NoProperty, false
	}
	return e.props[key], true
}

func (t *Tree) find(n *node, x types.VertexID, depth int) (entry, bool) {
	if n == nil {
		return entry{}, false
	}
	if n.leaf != nil {
		i := sort.Search(len(n.leaf.entries), func(i int) bool { return n.leaf.entries[i].key >= x })
		if i < len(n.leaf.entries) && n.leaf.entries[i].key == x {
			return n.leaf.entries[i], true
		}
		return entry{}, false
	}
	b := keyByte(x, depth)
	child := childFor(n.inner, b)
	return t.find(child, x, depth+1)
}

func childFor(in *innerNode, b byte) *node {
	switch in.kind {
	case 4, 16:
		for i, k := range in.keys {
			if k == b {
				return in.children[i]
			}
		}
		return nil
	case 48:
		slot := in.index[b]
		if slot < 0 {
			return nil
		}
		return in.children[slot]
	default: // 256
		return in.children[b]
	}
}

// InsertCopy returns a new tree sharing every untouched node with the
// receiver and a freshly allocated chain of nodes/leaves along the path to
// x (spec.md §4.5 "insert_copy"). The receiver is left unmodified, so
// concurrent readers holding the old tree via an older shard version keep
// seeing exactly what they started with.
func (t *Tree) InsertCopy(x types.VertexID, props []types.PropertyValue) *Tree {
	newRoot, inserted := t.insert(t.root, x, props, 0)
	out := &Tree{cfg: t.cfg, root: newRoot, count: t.count}
	if inserted {
		out.count++
	}
	return out
}

func (t *Tree) insert(n *node, x types.VertexID, props []types.PropertyValue, depth int) (*node, bool) {
	if n == nil {
		return &node{leaf: &leafNode{entries: []entry{{key: x, props: props}}}}, true
	}
	if n.leaf != nil {
		return t.insertIntoLeaf(n.leaf, x, props, depth)
	}

	b := keyByte(x, depth)
	child := childFor(n.inner, b)
	newChild, inserted := t.insert(child, x, props, depth+1)
	return &node{inner: setChild(n.inner, b, newChild)}, inserted
}

func (t *Tree) insertIntoLeaf(l *leafNode, x types.VertexID, props []types.PropertyValue, depth int) (*node, bool) {
	i := sort.Search(len(l.entries), func(i int) bool { return l.entries[i].key >= x })
	if i < len(l.entries) && l.entries[i].key == x {
		return &node{leaf: l}, false // duplicate: no-op (spec.md §7 kind 2)
	}

	if len(l.entries) < t.cfg.LeafSize || depth >= keyBytes {
		entries := make([]entry, len(l.entries)+1)
		copy(entries, l.entries[:i])
		entries[i] = entry{key: x, props: props}
		copy(entries[i+1:], l.entries[i:])
		return &node{leaf: &leafNode{entries: entries}}, true
	}

	// Leaf would overflow: push one more byte into the trie by
	// redistributing its entries (plus x) across a fresh inner node
	// (spec.md §4.5 "If the leaf would overflow ART_LEAF_SIZE, split it
	// by pushing one more byte into the trie").
	all := make([]entry, len(l.entries)+1)
	copy(all, l.entries[:i])
	all[i] = entry{key: x, props: props}
	copy(all[i+1:], l.entries[i:])

	in := newInner4()
	var root *node = &node{inner: in}
	for _, e := range all {
		b := keyByte(e.key, depth)
		child := childFor(root.inner, b)
		newChild, _ := t.insert(child, e.key, e.props, depth+1)
		root = &node{inner: setChild(root.inner, b, newChild)}
	}
	return root, true
}

func setChild(in *innerNode, b byte, child *node) *innerNode {
	out := cloneInner(in, b)
	switch out.kind {
	case 4, 16:
		for i, k := range out.keys {
			if k == b {
				out.children[i] = child
				return out
			}
		}
		if len(out.keys) < out.kind {
			out.keys = append(out.keys, b)
			out.children = append(out.children, child)
			return out
		}
		return growAndSet(out, b, child)
	case 48:
		slot := out.index[b]
		if slot >= 0 {
			out.children[slot] = child
			return out
		}
		if len(out.children) < 48 {
			out.index[b] = int8(len(out.children))
			out.children = append(out.children, child)
			return out
		}
		return growAndSet(out, b, child)
	default: // 256
		out.children[b] = child
		return out
	}
}

// cloneInner returns an ordinary shallow copy of in, of the same kind,
// sufficient for copy-on-write; growth to a larger kind is left to
// growAndSet.
func cloneInner(in *innerNode, _ byte) *innerNode {
	out := &innerNode{kind: in.kind, index: in.index}
	out.keys = append([]byte(nil), in.keys...)
	out.children = append([]*node(nil), in.children...)
	return out
}

// growAndSet promotes a full node to the next fan-out class and sets b.
func growAndSet(in *innerNode, b byte, child *node) *innerNode {
	switch in.kind {
	case 4:
		out := widenTo(in, 16)
		out.keys = append(out.keys, b)
		out.children = append(out.children, child)
		return out
	case 16:
		out := widenTo(in, 48)
		out.index[b] = int8(len(out.children))
		out.children = append(out.children, child)
		return out
	case 48:
		out := widenTo(in, 256)
		out.children[b] = child
		return out
	default:
		in.children[b] = child
		return in
	}
}

func widenTo(in *innerNode, kind int) *innerNode {
	out := &innerNode{kind: kind}
	switch kind {
	case 16:
		out.keys = append([]byte(nil), in.keys...)
		out.children = append([]*node(nil), in.children...)
	case 48:
		for i := range out.index {
			out.index[i] = -1
		}
		out.children = make([]*node, 0, 48)
		for i, k := range in.keys {
			out.index[k] = int8(len(out.children))
			out.children = append(out.children, in.children[i])
		}
	case 256:
		out.children = make([]*node, 256)
		if in.kind == 48 {
			for b := 0; b < 256; b++ {
				if slot := in.index[b]; slot >= 0 {
					out.children[b] = in.children[slot]
				}
			}
		}
	}
	return out
}

// SetProperty returns a new tree with x's property at key replaced by
// value, sharing every untouched node with the receiver. x must already be
// present; use InsertCopy to add it first.
func (t *Tree) SetProperty(x types.VertexID, key types.PropertyKey, value types.PropertyValue) *Tree {
	newRoot, ok := t.setProperty(t.root, x, key, value, 0)
	if !ok {
		return t
	}
	return &Tree{cfg: t.cfg, root: newRoot, count: t.count}
}

func (t *Tree) setProperty(n *node, x types.VertexID, key types.PropertyKey, value types.PropertyValue, depth int) (*node, bool) {
	if n == nil {
		return nil, false
	}
	if n.leaf != nil {
		i := sort.Search(len(n.leaf.entries), func(i int) bool { return n.leaf.entries[i].key >= x })
		if i >= len(n.leaf.entries) || n.leaf.entries[i].key != x {
			return n, false
		}
		entries := append([]entry(nil), n.leaf.entries...)
		row := append([]types.PropertyValue(nil), entries[i].props...)
		for int(key) >= len(row) {
			row = append(row, types.NoProperty)
		}
		row[key] = value
		entries[i] = entry{key: x, props: row}
		return &node{leaf: &leafNode{entries: entries}}, true
	}
	b := keyByte(x, depth)
	child := childFor(n.inner, b)
	newChild, ok := t.setProperty(child, x, key, value, depth+1)
	if !ok {
		return n, false
	}
	return &node{inner: setChild(n.inner, b, newChild)}, true
}

// RemoveCopy returns a new tree with x removed, sharing every untouched
// node with the receiver; collapsing an inner node down to a leaf is not
// attempted explicitly (the leaf-vs-inner shape is driven purely by size,
// matching insert's behavior in reverse as elements drain).
func (t *Tree) RemoveCopy(x types.VertexID) *Tree {
	newRoot, removed := t.remove(t.root, x, 0)
	out := &Tree{cfg: t.cfg, root: newRoot, count: t.count}
	if removed {
		out.count--
	}
	return out
}

func (t *Tree) remove(n *node, x types.VertexID, depth int) (*node, bool) {
	if n == nil {
		return nil, false
	}
	if n.leaf != nil {
		entries := n.leaf.entries
		i := sort.Search(len(entries), func(i int) bool { return entries[i].key >= x })
		if i >= len(entries) || entries[i].key != x {
			return n, false
		}
		if len(entries) == 1 {
			return nil, true
		}
		out := make([]entry, len(entries)-1)
		copy(out, entries[:i])
		copy(out[i:], entries[i+1:])
		return &node{leaf: &leafNode{entries: out}}, true
	}

	b := keyByte(x, depth)
	child := childFor(n.inner, b)
	newChild, removed := t.remove(child, x, depth+1)
	if !removed {
		return n, false
	}
	return &node{inner: setChild(n.inner, b, newChild)}, true
}

// BulkBuild produces a fresh tree in O(n) from an already-sorted element
// list by recursive partitioning on the next distinguishing byte (spec.md
// §4.5 "bulk_build").
func BulkBuild(cfg Config, sorted []types.VertexID, props [][]types.PropertyValue) *Tree {
	t := &Tree{cfg: cfg, count: len(sorted)}
	t.root = buildRange(cfg, sorted, props, 0)
	return t
}

func buildRange(cfg Config, keys []types.VertexID, props [][]types.PropertyValue, depth int) *node {
	if len(keys) == 0 {
		return nil
	}
	if len(keys) <= cfg.LeafSize || depth >= keyBytes {
		entries := make([]entry, len(keys))
		for i, k := range keys {
			var p []types.PropertyValue
			if props != nil {
				p = props[i]
			}
			entries[i] = entry{key: k, props: p}
		}
		return &node{leaf: &leafNode{entries: entries}}
	}

	// Partition by next byte; since keys are sorted, each byte's run is
	// contiguous.
	in := &innerNode{kind: 256, children: make([]*node, 256)}
	start := 0
	for start < len(keys) {
		b := keyByte(keys[start], depth)
		end := start
		for end < len(keys) && keyByte(keys[end], depth) == b {
			end++
		}
		var sub [][]types.PropertyValue
		if props != nil {
			sub = props[start:end]
		}
		in.children[b] = buildRange(cfg, keys[start:end], sub, depth+1)
		start = end
	}
	return compact(in)
}

// compact shrinks a sparsely populated 256-node down to the smallest
// fan-out class that fits, so BulkBuild doesn't leave every branch node at
// the maximum class.
func compact(in *innerNode) *node {
	var used []byte
	for b := 0; b < 256; b++ {
		if in.children[b] != nil {
			used = append(used, byte(b))
		}
	}
	switch {
	case len(used) <= 4:
		out := &innerNode{kind: 4}
		for _, b := range used {
			out.keys = append(out.keys, b)
			out.children = append(out.children, in.children[b])
		}
		return &node{inner: out}
	case len(used) <= 16:
		out := &innerNode{kind: 16}
		for _, b := range used {
			out.keys = append(out.keys, b)
			out.children = append(out.children, in.children[b])
		}
		return &node{inner: out}
	case len(used) <= 48:
		out := &innerNode{kind: 48}
		for i := range out.index {
			out.index[i] = -1
		}
		for _, b := range used {
			out.index[b] = int8(len(out.children))
			out.children = append(out.children, in.children[b])
		}
		return &node{inner: out}
	default:
		return &node{inner: in}
	}
}

// InsertBatch applies a sorted batch of (key, props) pairs via successive
// path-wise copy-on-write inserts (spec.md §4.5 "insert_batch"). Returns
// the resulting tree; the receiver is left unmodified.
func (t *Tree) InsertBatch(keys []types.VertexID, props [][]types.PropertyValue) *Tree {
	cur := t
	for i, k := range keys {
		var p []types.PropertyValue
		if props != nil {
			p = props[i]
		}
		cur = cur.InsertCopy(k, p)
	}
	return cur
}

// ForEachElement performs an in-order traversal, yielding each (key,
// props) pair once and stopping early if fn returns false.
func (t *Tree) ForEachElement(fn func(key types.VertexID, props []types.PropertyValue) bool) {
	walk(t.root, fn)
}

func walk(n *node, fn func(types.VertexID, []types.PropertyValue) bool) bool {
	if n == nil {
		return true
	}
	if n.leaf != nil {
		for _, e := range n.leaf.entries {
			if !fn(e.key, e.props) {
				return false
			}
		}
		return true
	}
	switch n.inner.kind {
	case 4, 16:
		order := append([]int(nil), indices(len(n.inner.keys))...)
		sort.Slice(order, func(i, j int) bool { return n.inner.keys[order[i]] < n.inner.keys[order[j]] })
		for _, i := range order {
			if !walk(n.inner.children[i], fn) {
				return false
			}
		}
	case 48:
		for b := 0; b < 256; b++ {
			if slot := n.inner.index[b]; slot >= 0 {
				if !walk(n.inner.children[slot], fn) {
					return false
				}
			}
		}
	default:
		for b := 0; b < 256; b++ {
			if !walk(n.inner.children[b], fn) {
				return false
			}
		}
	}
	return true
}

func indices(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// All returns every key in ascending order (used by promotion/shard batch
// paths that need a flat view).
func (t *Tree) All() []types.VertexID {
	out := make([]types.VertexID, 0, t.count)
	t.ForEachElement(func(k types.VertexID, _ []types.PropertyValue) bool {
		out = append(out, k)
		return true
	})
	return out
}

// Intersect performs a recursive merge by common prefixes against another
// tree, appending common elements to out. Falls back to a leaf-level
// linear merge once either side reaches a leaf (spec.md §4.5 "intersect").
func (t *Tree) Intersect(other *Tree, out *[]types.VertexID) {
	intersectNodes(t.root, other.root, out)
}

func intersectNodes(a, b *node, out *[]types.VertexID) {
	if a == nil || b == nil {
		return
	}
	aLeaf, bLeaf := a.leaf, b.leaf
	if aLeaf != nil || bLeaf != nil {
		aKeys := leafKeys(a)
		bKeys := leafKeys(b)
		mergeIntersect(aKeys, bKeys, out)
		return
	}
	// Both inner: walk common bytes.
	forEachChild(a.inner, func(b2 byte, ca *node) {
		cb := childFor(b.inner, b2)
		if cb != nil {
			intersectNodes(ca, cb, out)
		}
	})
}

func leafKeys(n *node) []types.VertexID {
	var out []types.VertexID
	walk(n, func(k types.VertexID, _ []types.PropertyValue) bool {
		out = append(out, k)
		return true
	})
	return out
}

func mergeIntersect(a, b []types.VertexID, out *[]types.VertexID) {
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

func forEachChild(in *innerNode, fn func(b byte, n *node)) {
	switch in.kind {
	case 4, 16:
		for i, k := range in.keys {
			fn(k, in.children[i])
		}
	case 48:
		for b := 0; b < 256; b++ {
			if slot := in.index[b]; slot >= 0 {
				fn(byte(b), in.children[slot])
			}
		}
	default:
		for b := 0; b < 256; b++ {
			if in.children[b] != nil {
				fn(byte(b), in.children[b])
			}
		}
	}
}

// IntersectSorted intersects the tree's elements with an already-sorted
// slice (e.g. a range tree's flattened view), appending matches to out.
func (t *Tree) IntersectSorted(sorted []types.VertexID, out *[]types.VertexID) {
	mergeIntersect(t.All(), sorted, out)
}
