// Package retainer reconstructs plausible root-to-object retention paths
// and scores how likely a given object is to be leaked.
package retainer

import (
	"fmt"
	"strings"

	"github.com/heapscope/internal/snapshot"
	"github.com/heapscope/pkg/collections"
	"github.com/heapscope/pkg/model"
)

// DefaultMaxDepth bounds the upward walk. Retention chains deeper than
// this are reported truncated rather than followed forever.
const DefaultMaxDepth = 32

// Tracer traces retainer paths within one snapshot.
type Tracer struct {
	snap     *snapshot.Snapshot
	maxDepth int
	visited  *collections.VersionedBitset
	ratios   *heapRatios // lazily computed, shared across assessments
}

// NewTracer creates a tracer for one snapshot.
func NewTracer(snap *snapshot.Snapshot) *Tracer {
	return &Tracer{
		snap:     snap,
		maxDepth: DefaultMaxDepth,
		visited:  collections.NewVersionedBitset(snap.NodeCount()),
	}
}

// SetMaxDepth overrides the walk bound.
func (t *Tracer) SetMaxDepth(depth int) {
	if depth > 0 {
		t.maxDepth = depth
	}
}

// TracePath walks upward from the node with the given id, at each step
// following the strongest incoming edge by referrer retained size, and
// returns the reconstructed path ordered root first. The walk stops at
// a root-equivalent, at the depth bound, or when it revisits a node.
func (t *Tracer) TracePath(id uint64) (*model.RetainerPath, error) {
	idx := t.snap.NodeByID(id)
	if idx < 0 {
		return nil, fmt.Errorf("node id %d not present in snapshot", id)
	}

	t.visited.Reset()
	t.visited.Set(idx)

	chain := []int{idx}
	cur := idx
	reachedRoot := t.snap.IsRootEquivalent(cur)

	for depth := 0; depth < t.maxDepth && !reachedRoot; depth++ {
		next := t.strongestReferrer(cur)
		if next < 0 || t.visited.TestAndSet(next) {
			break
		}
		chain = append(chain, next)
		cur = next
		reachedRoot = t.snap.IsRootEquivalent(cur)
	}

	// Reverse so the path reads root (or nearest known retainer) first.
	hops := make([]model.RetainerHop, 0, len(chain))
	for i := len(chain) - 1; i >= 0; i-- {
		n := t.snap.Node(chain[i])
		hops = append(hops, model.RetainerHop{Name: n.Name, Kind: n.Kind.String()})
	}

	rootKind := model.RootUnknown
	if len(chain) > 0 {
		rootKind = classifyRoot(t.snap.Node(chain[len(chain)-1]), reachedRoot)
	}

	return &model.RetainerPath{
		NodeID:   id,
		RootKind: rootKind,
		Hops:     hops,
	}, nil
}

// strongestReferrer picks the incoming non-weak edge whose source
// retains the most memory. Returns -1 when the node has no referrers.
func (t *Tracer) strongestReferrer(idx int) int {
	best := -1
	var bestSize int64 = -1
	for _, ei := range t.snap.InEdges(idx) {
		e := t.snap.Edge(int(ei))
		if e.Kind == snapshot.EdgeWeak {
			continue
		}
		ref := t.snap.Node(e.From)
		if ref.RetainedSize > bestSize {
			best = e.From
			bestSize = ref.RetainedSize
		}
	}
	return best
}

// classifyRoot maps the topmost node of a path to a root kind.
func classifyRoot(top *snapshot.Node, reachedRoot bool) model.RootKind {
	name := top.Name
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(name, "GC roots"):
		return model.RootGC
	case strings.Contains(lower, "window") || strings.Contains(lower, "global"):
		return model.RootGlobal
	case strings.Contains(lower, "document") || strings.Contains(lower, "html") || top.Kind == snapshot.KindNative:
		return model.RootDOM
	case top.Kind == snapshot.KindClosure:
		return model.RootClosure
	case strings.HasPrefix(name, "Fiber") || strings.HasPrefix(name, "VNode") || strings.HasPrefix(name, "Zone"):
		return model.RootFramework
	case reachedRoot:
		return model.RootGC
	default:
		return model.RootUnknown
	}
}
