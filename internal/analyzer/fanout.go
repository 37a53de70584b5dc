package analyzer

import (
	"sort"
	"strings"

	"github.com/heapscope/internal/snapshot"
	"github.com/heapscope/pkg/model"
)

// Names that suggest an unbounded container. Tags are advisory and
// never raise severity on their own.
var suspiciousNameParts = []string{"cache", "registry", "pool", "map", "list", "buffer", "queue", "store"}

// AnalyzeFanout finds nodes whose outgoing non-weak, non-hidden edge
// count exceeds the high threshold. Nodes past the critical threshold,
// or past the high threshold while also retaining significant memory,
// are marked CRITICAL.
func (a *Analyzer) AnalyzeFanout(snap *snapshot.Snapshot) []model.FanoutRecord {
	var records []model.FanoutRecord

	for _, i := range a.filteredIndexes(snap) {
		degree := 0
		for _, ei := range snap.OutEdges(i) {
			k := snap.Edge(int(ei)).Kind
			if k == snapshot.EdgeWeak || k == snapshot.EdgeHidden {
				continue
			}
			degree++
		}
		if degree < a.opts.HighFanout {
			continue
		}

		n := snap.Node(i)
		severity := model.SignificanceHigh
		if degree >= a.opts.CriticalFanout || n.RetainedSize >= highAbsBytes {
			severity = model.SignificanceCritical
		}

		records = append(records, model.FanoutRecord{
			NodeID:        n.ID,
			Name:          n.Name,
			Kind:          n.Kind.String(),
			OutDegree:     degree,
			SelfSize:      n.SelfSize,
			RetainedSize:  n.RetainedSize,
			Severity:      severity,
			SuspicionTags: suspicionTags(n.Name),
		})
	}

	sort.Slice(records, func(x, y int) bool {
		if records[x].OutDegree != records[y].OutDegree {
			return records[x].OutDegree > records[y].OutDegree
		}
		return records[x].NodeID < records[y].NodeID
	})
	return records
}

// suspicionTags returns the container-ish name fragments found in a
// node name.
func suspicionTags(name string) []string {
	lower := strings.ToLower(name)
	var tags []string
	for _, part := range suspiciousNameParts {
		if strings.Contains(lower, part) {
			tags = append(tags, part)
		}
	}
	return tags
}
