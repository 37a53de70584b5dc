package analyzer

import (
	"sort"

	"github.com/heapscope/internal/snapshot"
	"github.com/heapscope/pkg/model"
)

// RankBySize sorts filtered nodes by retained size descending and
// assigns rank, share of filtered memory, and a significance tier.
func (a *Analyzer) RankBySize(snap *snapshot.Snapshot) []model.RankedNode {
	idxs := a.filteredIndexes(snap)
	if len(idxs) == 0 {
		return nil
	}

	var totalFiltered int64
	for _, i := range idxs {
		totalFiltered += snap.Node(i).RetainedSize
	}

	sort.SliceStable(idxs, func(x, y int) bool {
		nx, ny := snap.Node(idxs[x]), snap.Node(idxs[y])
		if nx.RetainedSize != ny.RetainedSize {
			return nx.RetainedSize > ny.RetainedSize
		}
		// Tie-break on id for deterministic output.
		return nx.ID < ny.ID
	})

	limit := a.opts.TopN
	if limit > len(idxs) {
		limit = len(idxs)
	}

	ranked := make([]model.RankedNode, 0, limit)
	for r, i := range idxs[:limit] {
		n := snap.Node(i)
		pct := 0.0
		if totalFiltered > 0 {
			pct = float64(n.RetainedSize) / float64(totalFiltered) * 100
		}
		ranked = append(ranked, model.RankedNode{
			Rank:           r + 1,
			NodeID:         n.ID,
			Name:           n.Name,
			Kind:           n.Kind.String(),
			SelfSize:       n.SelfSize,
			RetainedSize:   n.RetainedSize,
			SizePercentage: pct,
			Significance:   significanceFor(n.RetainedSize, pct),
		})
	}
	return ranked
}
