package analyzer

import (
	"context"
	"fmt"
	"math/bits"
	"sort"
	"strings"

	"github.com/heapscope/internal/snapshot"
	"github.com/heapscope/pkg/model"
	"github.com/heapscope/pkg/parallel"
)

// shapeGroup is the per-key aggregation state.
type shapeGroup struct {
	name      string
	kind      string
	nodeIDs   []uint64
	totalSize int64
}

// DedupShapes groups filtered nodes by structural signature. A group
// with more than one member is flagged wasteful; its wasted memory is
// the share saved by keeping one canonical copy.
func (a *Analyzer) DedupShapes(snap *snapshot.Snapshot) []model.ShapeRecord {
	idxs := a.filteredIndexes(snap)
	if len(idxs) == 0 {
		return nil
	}

	groups := parallel.ParallelAggregate(context.Background(), idxs, parallel.DefaultPoolConfig(),
		func(i int) (string, shapeGroup) {
			n := snap.Node(i)
			return a.shapeKey(snap, i), shapeGroup{
				name:      n.Name,
				kind:      n.Kind.String(),
				nodeIDs:   []uint64{n.ID},
				totalSize: n.RetainedSize,
			}
		},
		func(existing, incoming shapeGroup) shapeGroup {
			existing.nodeIDs = append(existing.nodeIDs, incoming.nodeIDs...)
			existing.totalSize += incoming.totalSize
			return existing
		},
	)

	records := make([]model.ShapeRecord, 0, len(groups))
	for key, g := range groups {
		count := len(g.nodeIDs)
		sort.Slice(g.nodeIDs, func(x, y int) bool { return g.nodeIDs[x] < g.nodeIDs[y] })
		wasted := int64(0)
		if count > 1 {
			wasted = g.totalSize * int64(count-1) / int64(count)
		}
		records = append(records, model.ShapeRecord{
			ShapeKey:     key,
			Name:         g.name,
			Kind:         g.kind,
			NodeIDs:      g.nodeIDs,
			Count:        count,
			TotalSize:    g.totalSize,
			WastedMemory: wasted,
			Wasteful:     count > 1,
		})
	}

	sort.Slice(records, func(x, y int) bool {
		if records[x].WastedMemory != records[y].WastedMemory {
			return records[x].WastedMemory > records[y].WastedMemory
		}
		return records[x].ShapeKey < records[y].ShapeKey
	})
	return records
}

// shapeKey builds the structural signature for one node: name, kind,
// and either a self-size bucket or, in the deep variant, the shallow
// property layout.
func (a *Analyzer) shapeKey(snap *snapshot.Snapshot, idx int) string {
	n := snap.Node(idx)
	if !a.opts.DeepShapes {
		return fmt.Sprintf("%s|%s|%s", n.Name, n.Kind, sizeBucket(n.SelfSize))
	}

	props := make([]string, 0, 8)
	for _, ei := range snap.OutEdges(idx) {
		e := snap.Edge(int(ei))
		if e.Kind != snapshot.EdgeProperty {
			continue
		}
		props = append(props, e.Name+":"+snap.Node(e.To).Kind.String())
	}
	sort.Strings(props)
	return fmt.Sprintf("%s|%s|{%s}", n.Name, n.Kind, strings.Join(props, ","))
}

// sizeBucket maps a byte size to a power-of-two bucket label so that
// near-identical objects land in the same group.
func sizeBucket(size int64) string {
	if size <= 0 {
		return "0"
	}
	// Bucket by the position of the highest set bit.
	exp := bits.Len64(uint64(size)) - 1
	return fmt.Sprintf("2^%d", exp)
}
