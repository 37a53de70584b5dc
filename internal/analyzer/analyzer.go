// Package analyzer implements the single-snapshot heap analyzers: size
// ranking, shape deduplication, fan-out scanning, and detached-reachability.
// All analyzers are pure functions over one decoded snapshot and are safe
// to run in parallel across snapshots.
package analyzer

import (
	"github.com/heapscope/internal/snapshot"
	"github.com/heapscope/pkg/filter"
	"github.com/heapscope/pkg/model"
	"github.com/heapscope/pkg/utils"
)

// Size tier cutoffs for ranking significance.
const (
	criticalAbsBytes = 10 << 20
	highAbsBytes     = 5 << 20
	mediumAbsBytes   = 1 << 20

	criticalPct = 5.0
	highPct     = 2.0
	mediumPct   = 0.5
)

// Options configures the analyzers.
type Options struct {
	// TopN caps the size-ranking table length.
	TopN int

	// MinRetainedSize is the exclusion-filter floor.
	MinRetainedSize int64

	// DeepShapes switches the shape key from size buckets to the
	// shallow property layout.
	DeepShapes bool

	// HighFanout and CriticalFanout are the out-degree thresholds.
	HighFanout     int
	CriticalFanout int

	// DetachedMaxDepth bounds the backward reachability walk.
	DetachedMaxDepth int
}

// DefaultOptions returns the default analyzer configuration.
func DefaultOptions() Options {
	return Options{
		TopN:             50,
		HighFanout:       50,
		CriticalFanout:   200,
		DetachedMaxDepth: 12,
	}
}

// Analyzer runs the single-snapshot analyses.
type Analyzer struct {
	opts   Options
	filter *filter.NodeFilter
	logger utils.Logger
}

// New creates an Analyzer. A nil filter falls back to the shared default
// filter; a nil logger disables logging.
func New(opts Options, f *filter.NodeFilter, logger utils.Logger) *Analyzer {
	if opts.TopN <= 0 {
		opts.TopN = DefaultOptions().TopN
	}
	if opts.HighFanout <= 0 {
		opts.HighFanout = DefaultOptions().HighFanout
	}
	if opts.CriticalFanout <= 0 {
		opts.CriticalFanout = DefaultOptions().CriticalFanout
	}
	if opts.DetachedMaxDepth <= 0 {
		opts.DetachedMaxDepth = DefaultOptions().DetachedMaxDepth
	}
	if f == nil {
		f = filter.Default()
	}
	if logger == nil {
		logger = utils.NewNullLogger()
	}
	f.SetMinRetainedSize(opts.MinRetainedSize)
	return &Analyzer{opts: opts, filter: f, logger: logger}
}

// Analyze runs all four analyzers over one snapshot.
func (a *Analyzer) Analyze(snap *snapshot.Snapshot) model.SnapshotReport {
	sw := utils.NewStopwatch("analyze")

	sw.Start("ranking")
	ranking := a.RankBySize(snap)
	sw.Stop("ranking")

	sw.Start("shapes")
	shapes := a.DedupShapes(snap)
	sw.Stop("shapes")

	sw.Start("fanout")
	fanout := a.AnalyzeFanout(snap)
	sw.Stop("fanout")

	sw.Start("detached")
	detached := a.FindDetached(snap)
	sw.Stop("detached")

	a.logger.Debug("analyzed snapshot: %d nodes, %d ranked, %d shapes, %d fanout, %d detached (%s)",
		snap.NodeCount(), len(ranking), len(shapes), len(fanout), len(detached), sw.Summary())

	return model.SnapshotReport{
		Ranking:  ranking,
		Shapes:   shapes,
		Fanout:   fanout,
		Detached: detached,
	}
}

// filteredIndexes returns the node indexes that pass the exclusion
// filter, skipping root-equivalents.
func (a *Analyzer) filteredIndexes(snap *snapshot.Snapshot) []int {
	out := make([]int, 0, snap.NodeCount())
	for i := 0; i < snap.NodeCount(); i++ {
		if snap.IsRootEquivalent(i) {
			continue
		}
		n := snap.Node(i)
		if !a.filter.ShouldReport(n.Name, n.RetainedSize) {
			continue
		}
		out = append(out, i)
	}
	return out
}

// significanceFor maps a retained size and its share of filtered memory
// to a tier.
func significanceFor(retained int64, pct float64) model.Significance {
	switch {
	case retained >= criticalAbsBytes || pct >= criticalPct:
		return model.SignificanceCritical
	case retained >= highAbsBytes || pct >= highPct:
		return model.SignificanceHigh
	case retained >= mediumAbsBytes || pct >= mediumPct:
		return model.SignificanceMedium
	default:
		return model.SignificanceLow
	}
}
