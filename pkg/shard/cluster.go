package shard

import (
	"sort"

	"github.com/cuemby/vertexdb/pkg/pool"
	"github.com/cuemby/vertexdb/pkg/types"
)

// clusterEntry is one vertex's window inside a clusterNode's segment:
// entries are kept sorted by slot, which per spec.md §3 also keeps them
// sorted by offset ("neighbor windows of successive vertices appear in
// vertex-slot order and in increasing-key order").
type clusterEntry struct {
	slot   int
	offset int
	degree int
}

// clusterNode is the shared low-degree tier's building block: a single
// contiguous segment holding the concatenated neighborhoods of every
// vertex slot it currently owns (spec.md §3 "clustered node block", §4.3.3).
// key is the smallest vertex slot whose window starts in this node.
type clusterNode struct {
	key     int
	seg     *pool.Segment
	props   []*pool.PropertyBlock
	entries []clusterEntry
}

func (n *clusterNode) findEntry(slot int) (int, bool) {
	for i, e := range n.entries {
		if e.slot == slot {
			return i, true
		}
	}
	return -1, false
}

func (n *clusterNode) degreeOf(slot int) int {
	if i, ok := n.findEntry(slot); ok {
		return n.entries[i].degree
	}
	return 0
}

func (n *clusterNode) contains(slot int, dst types.VertexID) bool {
	i, ok := n.findEntry(slot)
	if !ok {
		return false
	}
	e := n.entries[i]
	data := n.seg.Data[e.offset : e.offset+e.degree]
	j := sort.Search(len(data), func(k int) bool { return data[k] >= dst })
	return j < len(data) && data[j] == dst
}

func (n *clusterNode) getProperty(slot int, dst types.VertexID, key types.PropertyKey) (types.PropertyValue, bool) {
	i, ok := n.findEntry(slot)
	if !ok {
		return types.NoProperty, false
	}
	e := n.entries[i]
	data := n.seg.Data[e.offset : e.offset+e.degree]
	j := sort.Search(len(data), func(k int) bool { return data[k] >= dst })
	if j >= len(data) || data[j] != dst {
		return types.NoProperty, false
	}
	if int(key) < 0 || int(key) >= len(n.props) {
		return types.NoProperty, false
	}
	return n.props[key].Values[e.offset+j], true
}

func (n *clusterNode) forEach(slot int, fn func(types.VertexID, []types.PropertyValue) bool) {
	i, ok := n.findEntry(slot)
	if !ok {
		return
	}
	e := n.entries[i]
	buf := make([]types.PropertyValue, len(n.props))
	for k := e.offset; k < e.offset+e.degree; k++ {
		for p, pb := range n.props {
			buf[p] = pb.Values[k]
		}
		if !fn(n.seg.Data[k], buf) {
			return
		}
	}
}

// windowAll returns slot's window as independent copies, safe to mutate.
func (n *clusterNode) windowAll(slot int) ([]types.VertexID, [][]types.PropertyValue) {
	i, ok := n.findEntry(slot)
	if !ok {
		return nil, nil
	}
	e := n.entries[i]
	dsts := append([]types.VertexID(nil), n.seg.Data[e.offset:e.offset+e.degree]...)
	var rows [][]types.PropertyValue
	if len(n.props) > 0 {
		rows = make([][]types.PropertyValue, e.degree)
		for i := range rows {
			row := make([]types.PropertyValue, len(n.props))
			for k, pb := range n.props {
				row[k] = pb.Values[e.offset+i]
			}
			rows[i] = row
		}
	}
	return dsts, rows
}

// all returns every destination/row in the node, in segment order.
func (n *clusterNode) all() ([]types.VertexID, [][]types.PropertyValue) {
	dsts := append([]types.VertexID(nil), n.seg.Data[:n.seg.Len]...)
	var rows [][]types.PropertyValue
	if len(n.props) > 0 {
		rows = make([][]types.PropertyValue, n.seg.Len)
		for i := range rows {
			row := make([]types.PropertyValue, len(n.props))
			for k, pb := range n.props {
				row[k] = pb.Values[i]
			}
			rows[i] = row
		}
	}
	return dsts, rows
}

func (n *clusterNode) release(retire func(func())) {
	seg := n.seg
	retire(func() { seg.Release() })
	for _, pb := range n.props {
		block := pb
		retire(func() { block.Release() })
	}
}

// rebuildNode allocates a fresh segment/property blocks for entries/dsts/rows,
// the copy-on-write replacement for one node (spec.md §4.3.3's "copy-and-
// insert into a fresh segment").
func rebuildNode(cfg types.Config, p *pool.Pool, entries []clusterEntry, dsts []types.VertexID, rows [][]types.PropertyValue, workerSlot int) *clusterNode {
	seg := p.GetSegment(workerSlot)
	for i, d := range dsts {
		seg.Data[i] = d
	}
	seg.Len = len(dsts)

	key := 0
	if len(entries) > 0 {
		key = entries[0].slot
	}
	node := &clusterNode{key: key, seg: seg, entries: entries}
	if cfg.EdgePropertyNum > 0 {
		node.props = make([]*pool.PropertyBlock, cfg.EdgePropertyNum)
		for k := 0; k < cfg.EdgePropertyNum; k++ {
			pb := p.GetPropertyBlock(workerSlot)
			for i := range dsts {
				if rows != nil && i < len(rows) && k < len(rows[i]) {
					pb.Values[i] = rows[i][k]
				}
			}
			node.props[k] = pb
		}
	}
	return node
}

// locateClusterNode finds the node owning slot: the node with the largest
// key <= slot (spec.md §4.3.3 "pick the largest key <= src_slot"), or -1 if
// none exists yet. clusters must be sorted ascending by key.
func locateClusterNode(clusters []*clusterNode, slot int) int {
	idx := -1
	for i, n := range clusters {
		if n.key <= slot {
			idx = i
		} else {
			break
		}
	}
	return idx
}

func insertClusterPosition(clusters []*clusterNode, key int) int {
	for i, n := range clusters {
		if n.key > key {
			return i
		}
	}
	return len(clusters)
}

func insertNodeAt(clusters []*clusterNode, pos int, node *clusterNode) []*clusterNode {
	out := make([]*clusterNode, 0, len(clusters)+1)
	out = append(out, clusters[:pos]...)
	out = append(out, node)
	out = append(out, clusters[pos:]...)
	return out
}

func removeNodeAt(clusters []*clusterNode, idx int) []*clusterNode {
	out := make([]*clusterNode, 0, len(clusters)-1)
	out = append(out, clusters[:idx]...)
	out = append(out, clusters[idx+1:]...)
	return out
}

// splitClusterNode splits an over-capacity node at the first entry whose
// offset crosses RangeLeafSize/2 (spec.md §4.3.8 "middle-slot selection"),
// guaranteeing each half keeps at least one vertex and one element.
func splitClusterNode(cfg types.Config, p *pool.Pool, entries []clusterEntry, dsts []types.VertexID, rows [][]types.PropertyValue, workerSlot int) (*clusterNode, *clusterNode) {
	half := cfg.RangeLeafSize / 2
	splitIdx := len(entries) - 1
	for i, e := range entries {
		if e.offset >= half {
			splitIdx = i
			break
		}
	}
	if splitIdx == 0 {
		splitIdx = 1
	}

	leftEntries := entries[:splitIdx]
	rightEntries := entries[splitIdx:]
	splitOffset := rightEntries[0].offset

	rebasedRight := make([]clusterEntry, len(rightEntries))
	for i, e := range rightEntries {
		rebasedRight[i] = clusterEntry{slot: e.slot, offset: e.offset - splitOffset, degree: e.degree}
	}

	leftDsts, rightDsts := dsts[:splitOffset], dsts[splitOffset:]
	var leftRows, rightRows [][]types.PropertyValue
	if rows != nil {
		leftRows, rightRows = rows[:splitOffset], rows[splitOffset:]
	}

	left := rebuildNode(cfg, p, append([]clusterEntry(nil), leftEntries...), leftDsts, leftRows, workerSlot)
	right := rebuildNode(cfg, p, rebasedRight, rightDsts, rightRows, workerSlot)
	return left, right
}

// insertClusteredEdge applies dst (and its property row) to slot's window,
// creating a node if this is the shard's first clustered vertex, appending
// a fresh window if this is slot's first edge, or inserting into an
// existing window otherwise. It splits the node if it overflows
// RangeLeafSize, and reports an extraction when slot's degree reaches
// ClusteredExtractThreshold so the caller can promote slot to a range tree.
func insertClusteredEdge(cfg types.Config, p *pool.Pool, clusters []*clusterNode, slot int, dst types.VertexID, props []types.PropertyValue, workerSlot int, retire func(func())) (newClusters []*clusterNode, extractedDsts []types.VertexID, extractedRows [][]types.PropertyValue, extracted bool, duplicate bool) {
	idx := locateClusterNode(clusters, slot)
	if idx < 0 {
		node := rebuildNode(cfg, p, []clusterEntry{{slot: slot, offset: 0, degree: 1}}, []types.VertexID{dst}, []([]types.PropertyValue){props}, workerSlot)
		pos := insertClusterPosition(clusters, slot)
		return insertNodeAt(clusters, pos, node), nil, nil, false, false
	}

	node := clusters[idx]
	dsts, rows := node.all()
	ei, found := node.findEntry(slot)

	var pos int
	if found {
		e := node.entries[ei]
		winPos := sort.Search(e.degree, func(i int) bool { return dsts[e.offset+i] >= dst })
		if winPos < e.degree && dsts[e.offset+winPos] == dst {
			return clusters, nil, nil, false, true
		}
		pos = e.offset + winPos
	} else {
		pos = 0
		for _, e := range node.entries {
			if e.slot < slot {
				pos = e.offset + e.degree
			}
		}
	}

	dsts = append(dsts[:pos:pos], append([]types.VertexID{dst}, dsts[pos:]...)...)
	if rows != nil {
		rows = append(rows[:pos:pos], append([][]types.PropertyValue{props}, rows[pos:]...)...)
	}

	newEntries := make([]clusterEntry, 0, len(node.entries)+1)
	inserted := false
	for _, e := range node.entries {
		switch {
		case e.slot == slot:
			newEntries = append(newEntries, clusterEntry{slot: slot, offset: e.offset, degree: e.degree + 1})
			inserted = true
		case e.offset >= pos:
			newEntries = append(newEntries, clusterEntry{slot: e.slot, offset: e.offset + 1, degree: e.degree})
		default:
			newEntries = append(newEntries, e)
		}
	}
	if !inserted {
		at := len(newEntries)
		for i, e := range newEntries {
			if e.slot > slot {
				at = i
				break
			}
		}
		grown := make([]clusterEntry, 0, len(newEntries)+1)
		grown = append(grown, newEntries[:at]...)
		grown = append(grown, clusterEntry{slot: slot, offset: pos, degree: 1})
		grown = append(grown, newEntries[at:]...)
		newEntries = grown
	}

	node.release(retire)

	touchedDegree := 0
	for _, e := range newEntries {
		if e.slot == slot {
			touchedDegree = e.degree
		}
	}

	if touchedDegree >= cfg.ClusteredExtractThreshold() {
		var exDsts []types.VertexID
		var exRows [][]types.PropertyValue
		var keepEntries []clusterEntry
		keepDsts := make([]types.VertexID, 0, len(dsts))
		var keepRows [][]types.PropertyValue
		if rows != nil {
			keepRows = make([][]types.PropertyValue, 0, len(dsts))
		}
		shift := 0
		for _, e := range newEntries {
			if e.slot == slot {
				exDsts = append(exDsts, dsts[e.offset:e.offset+e.degree]...)
				if rows != nil {
					exRows = append(exRows, rows[e.offset:e.offset+e.degree]...)
				}
				shift = e.degree
				continue
			}
			adjusted := e
			adjusted.offset -= shift
			keepEntries = append(keepEntries, adjusted)
			keepDsts = append(keepDsts, dsts[e.offset:e.offset+e.degree]...)
			if rows != nil {
				keepRows = append(keepRows, rows[e.offset:e.offset+e.degree]...)
			}
		}
		if len(keepEntries) == 0 {
			clusters = removeNodeAt(clusters, idx)
		} else {
			clusters[idx] = rebuildNode(cfg, p, keepEntries, keepDsts, keepRows, workerSlot)
		}
		return clusters, exDsts, exRows, true, false
	}

	if len(dsts) > cfg.RangeLeafSize {
		left, right := splitClusterNode(cfg, p, newEntries, dsts, rows, workerSlot)
		clusters[idx] = left
		clusters = insertNodeAt(clusters, idx+1, right)
		return clusters, nil, nil, false, false
	}

	clusters[idx] = rebuildNode(cfg, p, newEntries, dsts, rows, workerSlot)
	return clusters, nil, nil, false, false
}

// removeClusteredEdge deletes dst from slot's window, compacting the
// owning node and dropping it entirely if it becomes empty.
func removeClusteredEdge(cfg types.Config, p *pool.Pool, clusters []*clusterNode, slot int, dst types.VertexID, workerSlot int, retire func(func())) ([]*clusterNode, bool) {
	idx := locateClusterNode(clusters, slot)
	if idx < 0 {
		return clusters, false
	}
	node := clusters[idx]
	ei, found := node.findEntry(slot)
	if !found {
		return clusters, false
	}
	entry := node.entries[ei]
	dsts, rows := node.all()
	winPos := sort.Search(entry.degree, func(i int) bool { return dsts[entry.offset+i] >= dst })
	if winPos >= entry.degree || dsts[entry.offset+winPos] != dst {
		return clusters, false
	}
	pos := entry.offset + winPos
	dsts = append(dsts[:pos], dsts[pos+1:]...)
	if rows != nil {
		rows = append(rows[:pos], rows[pos+1:]...)
	}

	newEntries := make([]clusterEntry, 0, len(node.entries))
	for _, e := range node.entries {
		switch {
		case e.slot == slot:
			if e.degree-1 > 0 {
				newEntries = append(newEntries, clusterEntry{slot: e.slot, offset: e.offset, degree: e.degree - 1})
			}
		case e.offset > entry.offset:
			newEntries = append(newEntries, clusterEntry{slot: e.slot, offset: e.offset - 1, degree: e.degree})
		default:
			newEntries = append(newEntries, e)
		}
	}

	node.release(retire)
	if len(newEntries) == 0 {
		clusters = removeNodeAt(clusters, idx)
	} else {
		clusters[idx] = rebuildNode(cfg, p, newEntries, dsts, rows, workerSlot)
	}
	return clusters, true
}

// removeClusteredVertex drops slot's entire window from its node
// regardless of degree (spec.md §4.3.5 "remove_vertex").
func removeClusteredVertex(cfg types.Config, p *pool.Pool, clusters []*clusterNode, slot int, workerSlot int, retire func(func())) []*clusterNode {
	idx := locateClusterNode(clusters, slot)
	if idx < 0 {
		return clusters
	}
	node := clusters[idx]
	ei, found := node.findEntry(slot)
	if !found {
		return clusters
	}
	entry := node.entries[ei]
	dsts, rows := node.all()
	dsts = append(dsts[:entry.offset], dsts[entry.offset+entry.degree:]...)
	if rows != nil {
		rows = append(rows[:entry.offset], rows[entry.offset+entry.degree:]...)
	}

	var newEntries []clusterEntry
	for _, e := range node.entries {
		if e.slot == slot {
			continue
		}
		if e.offset > entry.offset {
			newEntries = append(newEntries, clusterEntry{slot: e.slot, offset: e.offset - entry.degree, degree: e.degree})
		} else {
			newEntries = append(newEntries, e)
		}
	}

	node.release(retire)
	if len(newEntries) == 0 {
		clusters = removeNodeAt(clusters, idx)
	} else {
		clusters[idx] = rebuildNode(cfg, p, newEntries, dsts, rows, workerSlot)
	}
	return clusters
}

// setClusteredProperty rewrites the property at (slot -> dst, key) in
// place within a freshly rebuilt node.
func setClusteredProperty(cfg types.Config, p *pool.Pool, clusters []*clusterNode, slot int, dst types.VertexID, key types.PropertyKey, value types.PropertyValue, workerSlot int, retire func(func())) []*clusterNode {
	idx := locateClusterNode(clusters, slot)
	if idx < 0 {
		return clusters
	}
	node := clusters[idx]
	ei, found := node.findEntry(slot)
	if !found {
		return clusters
	}
	entry := node.entries[ei]
	dsts, rows := node.all()
	winPos := sort.Search(entry.degree, func(i int) bool { return dsts[entry.offset+i] >= dst })
	if winPos >= entry.degree || dsts[entry.offset+winPos] != dst {
		return clusters
	}
	if rows == nil || int(key) >= len(rows[entry.offset+winPos]) {
		return clusters
	}
	rows[entry.offset+winPos][key] = value

	node.release(retire)
	clusters[idx] = rebuildNode(cfg, p, node.entries, dsts, rows, workerSlot)
	return clusters
}
