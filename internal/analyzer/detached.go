package analyzer

import (
	"github.com/heapscope/internal/snapshot"
	"github.com/heapscope/pkg/collections"
)

// FindDetached returns the ids of filtered nodes from which no
// backward walk along strong edges reaches a root-equivalent within
// the depth bound. The walk is breadth-first with a visited set, so
// cycles terminate; the depth bound keeps the worst case linear in
// practice.
func (a *Analyzer) FindDetached(snap *snapshot.Snapshot) []uint64 {
	if snap.NodeCount() == 0 {
		return nil
	}

	// Nodes already proven attached short-circuit later walks.
	attached := collections.NewBitset(snap.NodeCount())
	for i := 0; i < snap.NodeCount(); i++ {
		if snap.IsRootEquivalent(i) {
			attached.Set(i)
		}
	}

	visited := collections.NewVersionedBitset(snap.NodeCount())
	queue := make([]int, 0, 256)

	var detached []uint64
	for _, i := range a.filteredIndexes(snap) {
		if a.reachesRoot(snap, i, attached, visited, queue[:0]) {
			attached.Set(i)
		} else {
			detached = append(detached, snap.Node(i).ID)
		}
	}
	return detached
}

// reachesRoot walks backward from start along property and element
// edges, up to the configured depth.
func (a *Analyzer) reachesRoot(snap *snapshot.Snapshot, start int, attached *collections.Bitset, visited *collections.VersionedBitset, queue []int) bool {
	if attached.Test(start) {
		return true
	}

	visited.Reset()
	visited.Set(start)
	queue = append(queue, start)
	depth := 0

	for len(queue) > 0 && depth < a.opts.DetachedMaxDepth {
		next := queue[:0:0]
		for _, cur := range queue {
			for _, ei := range snap.InEdges(cur) {
				e := snap.Edge(int(ei))
				if !e.Kind.IsStrong() {
					continue
				}
				ref := e.From
				if visited.TestAndSet(ref) {
					continue
				}
				if attached.Test(ref) || snap.IsRootEquivalent(ref) {
					return true
				}
				next = append(next, ref)
			}
		}
		queue = next
		depth++
	}
	return false
}
