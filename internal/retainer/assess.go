package retainer

import (
	"fmt"
	"strings"

	"github.com/heapscope/internal/snapshot"
	"github.com/heapscope/pkg/model"
)

// Confidence contributions for the assessment signals.
const (
	baseConfidence       = 20
	rootKindContribution = 25
	sizeContribution     = 25
	ratioContribution    = 20
	kindContribution     = 10

	minConfidence = 10
	maxConfidence = 100
)

// heapRatios holds heap-wide name-class fractions, computed once per
// snapshot and shared across assessments. They catch distributed leaks
// where no single object is large.
type heapRatios struct {
	timerFraction    float64
	detachedFraction float64
	nodeCount        int
}

func computeRatios(snap *snapshot.Snapshot) heapRatios {
	var timers, detached int
	for _, n := range snap.Nodes() {
		lower := strings.ToLower(n.Name)
		if strings.Contains(lower, "timer") || strings.Contains(lower, "interval") || strings.Contains(lower, "timeout") {
			timers++
		}
		if strings.HasPrefix(n.Name, "Detached ") {
			detached++
		}
	}
	count := snap.NodeCount()
	if count == 0 {
		return heapRatios{}
	}
	return heapRatios{
		timerFraction:    float64(timers) / float64(count),
		detachedFraction: float64(detached) / float64(count),
		nodeCount:        count,
	}
}

// Assess traces the retention path for a node and scores how likely the
// node is to be leaked, combining the path's root kind with the node's
// own size and kind and with heap-wide ratios.
func (t *Tracer) Assess(id uint64) (*model.RetainerPath, error) {
	path, err := t.TracePath(id)
	if err != nil {
		return nil, err
	}

	idx := t.snap.NodeByID(id)
	n := t.snap.Node(idx)
	if t.ratios == nil {
		r := computeRatios(t.snap)
		t.ratios = &r
	}

	confidence := baseConfidence
	var reasons []string

	switch path.RootKind {
	case model.RootGlobal, model.RootClosure:
		confidence += rootKindContribution
		reasons = append(reasons, fmt.Sprintf("retained from a %s root", path.RootKind))
	case model.RootDOM, model.RootFramework:
		confidence += rootKindContribution / 2
		reasons = append(reasons, fmt.Sprintf("retained through %s references", path.RootKind))
	case model.RootGC:
		// Ordinary reachability, weak signal on its own.
	default:
		reasons = append(reasons, "retainer chain could not be traced to a root")
	}

	switch {
	case n.RetainedSize >= 10<<20:
		confidence += sizeContribution
		reasons = append(reasons, fmt.Sprintf("retains %d bytes", n.RetainedSize))
	case n.RetainedSize >= 1<<20:
		confidence += sizeContribution / 2
		reasons = append(reasons, fmt.Sprintf("retains %d bytes", n.RetainedSize))
	}

	if n.Kind == snapshot.KindClosure || n.Kind == snapshot.KindObject {
		confidence += kindContribution
	}

	lower := strings.ToLower(n.Name)
	if (strings.Contains(lower, "timer") || strings.Contains(lower, "interval")) && t.ratios.timerFraction > 0.05 {
		confidence += ratioContribution
		reasons = append(reasons, fmt.Sprintf("%.0f%% of all heap nodes are timer-related", t.ratios.timerFraction*100))
	}
	if strings.HasPrefix(n.Name, "Detached ") && t.ratios.detachedFraction > 0.01 {
		confidence += ratioContribution
		reasons = append(reasons, fmt.Sprintf("%.0f%% of all heap nodes are detached", t.ratios.detachedFraction*100))
	}

	path.Confidence = clampConfidence(confidence)
	path.Severity = severityForSize(n.RetainedSize)
	path.Assessment = strings.Join(reasons, "; ")
	return path, nil
}

func clampConfidence(c int) int {
	if c < minConfidence {
		return minConfidence
	}
	if c > maxConfidence {
		return maxConfidence
	}
	return c
}

func severityForSize(retained int64) model.Significance {
	switch {
	case retained >= 10<<20:
		return model.SignificanceCritical
	case retained >= 5<<20:
		return model.SignificanceHigh
	case retained >= 1<<20:
		return model.SignificanceMedium
	default:
		return model.SignificanceLow
	}
}
