// Package growth implements cross-snapshot identity tracking and
// growth-pattern classification. A Tracker is a single tracking session:
// it is owned by one analysis run, fed snapshots in capture order, and
// finalized once after the last snapshot.
package growth

import (
	"sort"

	"github.com/heapscope/internal/snapshot"
	"github.com/heapscope/pkg/filter"
	"github.com/heapscope/pkg/model"
	"github.com/heapscope/pkg/utils"
)

// Options configures a tracking session.
type Options struct {
	// Threshold is the total growth, in bytes, below which a record is
	// classified STABLE.
	Threshold int64

	// Capacity caps the number of concurrently tracked ids. When the
	// first snapshot carries more candidates the largest ones at first
	// observation are kept. Precision trade-off, not a correctness
	// requirement.
	Capacity int
}

// DefaultOptions returns the default tracker configuration.
func DefaultOptions() Options {
	return Options{
		Threshold: 1 << 20,
		Capacity:  10000,
	}
}

// record is the per-id tracking state.
type record struct {
	id       uint64
	name     string
	kind     snapshot.NodeKind
	history  []int64
	gone     bool
	goneAt   int
	firstObs int64
}

// Tracker tracks object identities across a snapshot sequence. Not safe
// for concurrent use; independent sessions do not interact.
type Tracker struct {
	opts      Options
	filter    *filter.NodeFilter
	logger    utils.Logger
	tracked   map[uint64]*record
	order     []uint64 // first-observation order, for deterministic output
	snapshots int
	capped    int
	finalized bool
}

// NewTracker creates a tracking session. A nil filter falls back to the
// shared default filter.
func NewTracker(opts Options, f *filter.NodeFilter, logger utils.Logger) *Tracker {
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultOptions().Threshold
	}
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultOptions().Capacity
	}
	if f == nil {
		f = filter.Default()
	}
	if logger == nil {
		logger = utils.NewNullLogger()
	}
	return &Tracker{
		opts:    opts,
		filter:  f,
		logger:  logger,
		tracked: make(map[uint64]*record),
	}
}

// trackable reports whether a node kind participates in growth tracking.
func trackable(kind snapshot.NodeKind) bool {
	switch kind {
	case snapshot.KindObject, snapshot.KindClosure, snapshot.KindRegexp:
		return true
	default:
		return false
	}
}

// Observe feeds the next snapshot in capture order.
func (t *Tracker) Observe(snap *snapshot.Snapshot) {
	if t.finalized {
		return
	}
	t.snapshots++

	if t.snapshots == 1 {
		t.seed(snap)
		return
	}

	for _, rec := range t.tracked {
		if rec.gone {
			continue
		}
		idx := snap.NodeByID(rec.id)
		if idx < 0 {
			// A disappeared object cannot grow further.
			rec.gone = true
			rec.goneAt = t.snapshots
			continue
		}
		n := snap.Node(idx)
		if n.Name != rec.name || n.Kind != rec.kind {
			// Identity broken: a different object reuses the id.
			delete(t.tracked, rec.id)
			continue
		}
		rec.history = append(rec.history, n.RetainedSize)
	}
}

// seed starts a record for every filtered, trackable node in the first
// snapshot, keeping the largest candidates when over capacity.
func (t *Tracker) seed(snap *snapshot.Snapshot) {
	type candidate struct {
		idx  int
		size int64
	}
	candidates := make([]candidate, 0, snap.NodeCount())
	for i := 0; i < snap.NodeCount(); i++ {
		n := snap.Node(i)
		if !trackable(n.Kind) {
			continue
		}
		if !t.filter.ShouldReport(n.Name, n.RetainedSize) {
			continue
		}
		candidates = append(candidates, candidate{idx: i, size: n.RetainedSize})
	}

	if len(candidates) > t.opts.Capacity {
		t.capped = t.opts.Capacity
		sort.SliceStable(candidates, func(x, y int) bool {
			return candidates[x].size > candidates[y].size
		})
		candidates = candidates[:t.opts.Capacity]
		sort.SliceStable(candidates, func(x, y int) bool {
			return candidates[x].idx < candidates[y].idx
		})
		t.logger.Debug("growth tracker capped at %d of %d candidates", t.opts.Capacity, snap.NodeCount())
	}

	for _, c := range candidates {
		n := snap.Node(c.idx)
		t.tracked[n.ID] = &record{
			id:       n.ID,
			name:     n.Name,
			kind:     n.Kind,
			history:  []int64{n.RetainedSize},
			firstObs: n.RetainedSize,
		}
		t.order = append(t.order, n.ID)
	}
}

// Finalize classifies every record and returns the session report. With
// fewer than two snapshots it returns an explicit not-enough-data
// report rather than an error. The tracker accepts no further
// observations afterwards.
func (t *Tracker) Finalize() *model.GrowthReport {
	t.finalized = true

	report := &model.GrowthReport{
		SnapshotCount: t.snapshots,
		TrackedTotal:  len(t.tracked),
		CappedAt:      t.capped,
	}
	if t.snapshots < 2 {
		report.EnoughData = false
		return report
	}
	report.EnoughData = true

	for _, id := range t.order {
		rec, ok := t.tracked[id]
		if !ok {
			continue
		}
		pattern, total := classify(rec.history, t.opts.Threshold)
		if pattern == model.PatternStable {
			continue
		}
		report.Records = append(report.Records, model.GrowthRecord{
			NodeID:        rec.id,
			Name:          rec.name,
			Kind:          rec.kind.String(),
			SizeHistory:   append([]int64(nil), rec.history...),
			Pattern:       pattern,
			TotalGrowth:   total,
			DisappearedAt: rec.goneAt,
		})
	}

	sort.SliceStable(report.Records, func(x, y int) bool {
		return report.Records[x].TotalGrowth > report.Records[y].TotalGrowth
	})
	return report
}

// classify maps a size history to a growth pattern and total growth.
func classify(history []int64, threshold int64) (model.GrowthPattern, int64) {
	if len(history) < 2 {
		return model.PatternStable, 0
	}
	total := history[len(history)-1] - history[0]
	if total < threshold {
		return model.PatternStable, total
	}
	for i := 1; i < len(history); i++ {
		if history[i] < history[i-1] {
			return model.PatternFluctuating, total
		}
	}
	return model.PatternMonotonic, total
}
