package leak_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heapscope/internal/analyzer"
	"github.com/heapscope/internal/growth"
	"github.com/heapscope/internal/leak"
	"github.com/heapscope/internal/snapshot"
	"github.com/heapscope/internal/testutil"
	apperrors "github.com/heapscope/pkg/errors"
	"github.com/heapscope/pkg/filter"
	"github.com/heapscope/pkg/model"
)

// analyze builds classifier input from decoded snapshots, running the
// analyzers and the growth tracker the way the service does.
func analyze(t *testing.T, snaps ...*snapshot.Snapshot) *leak.Input {
	t.Helper()
	a := analyzer.New(analyzer.DefaultOptions(), filter.NewNodeFilter(), nil)
	tr := growth.NewTracker(growth.DefaultOptions(), filter.NewNodeFilter(), nil)

	in := &leak.Input{}
	roles := []model.SnapshotRole{model.RoleBaseline, model.RoleTarget, model.RoleFinal}
	for i, s := range snaps {
		report := a.Analyze(s)
		report.Role = roles[i]
		in.Snapshots = append(in.Snapshots, leak.SnapshotSignals{
			Role:   roles[i],
			Snap:   s,
			Report: report,
		})
		tr.Observe(s)
	}
	in.Growth = tr.Finalize()
	return in
}

// steadyGraph builds a fixed small heap used for the stable scenario.
func steadyGraph(t *testing.T) *snapshot.Snapshot {
	b := testutil.NewGraphBuilder()
	root := b.AddRoot()
	for i := 0; i < 100; i++ {
		n := b.AddNode("object", fmt.Sprintf("Widget%d", i), 512)
		b.AddElement(root, n, int64(i))
	}
	return b.Build(t)
}

func TestStableAppProducesNoSevereFindings(t *testing.T) {
	first := steadyGraph(t)
	second := steadyGraph(t)

	in := analyze(t, first, second)
	findings, diags := leak.New(nil).Classify(in)

	for _, f := range findings {
		assert.NotEqual(t, model.SignificanceHigh, f.Severity, "finding %s", f.Category)
		assert.NotEqual(t, model.SignificanceCritical, f.Severity, "finding %s", f.Category)
	}
	assert.Empty(t, diags)
	for _, rec := range in.Growth.Records {
		assert.NotEqual(t, model.PatternMonotonic, rec.Pattern)
	}
}

// timerScenario builds baseline/target snapshots where the target
// gained extra timer-named nodes of the given size.
func timerScenario(t *testing.T, timers int, timerSize int64) (*snapshot.Snapshot, *snapshot.Snapshot) {
	t.Helper()
	base := testutil.NewGraphBuilder()
	root := base.AddRoot()
	for i := 0; i < 100; i++ {
		n := base.AddNode("object", fmt.Sprintf("Widget%d", i), 512)
		base.AddElement(root, n, int64(i))
	}

	tgt := testutil.NewGraphBuilder()
	troot := tgt.AddRoot()
	for i := 0; i < 100; i++ {
		n := tgt.AddNode("object", fmt.Sprintf("Widget%d", i), 512)
		tgt.AddElement(troot, n, int64(i))
	}
	registry := tgt.AddNode("object", "TimerRegistry", 256)
	tgt.AddEdge(troot, registry, "property", "timers")
	for i := 0; i < timers; i++ {
		timer := tgt.AddNode("object", "Timer", timerSize)
		tgt.AddElement(registry, timer, int64(i))
	}
	return base.Build(t), tgt.Build(t)
}

func TestTimerLeakScenario(t *testing.T) {
	baseline, target := timerScenario(t, 5000, 2<<10)

	findings, _ := leak.New(nil).Classify(analyze(t, baseline, target))

	var timer *model.LeakFinding
	for i := range findings {
		if findings[i].Category == model.CategoryTimerRetention {
			timer = &findings[i]
			break
		}
	}
	require.NotNil(t, timer, "expected a timer-retention finding")
	assert.GreaterOrEqual(t, timer.Confidence, 70)
	assert.Equal(t, model.SignificanceHigh, timer.Severity)
	assert.NotEmpty(t, timer.NodeIDs)
	require.NotNil(t, timer.Path)
	assert.NotEmpty(t, timer.Path.Hops)
}

func TestFewTimersBelowSignalsNoFinding(t *testing.T) {
	baseline, target := timerScenario(t, 10, 128)

	findings, _ := leak.New(nil).Classify(analyze(t, baseline, target))
	for _, f := range findings {
		assert.NotEqual(t, model.CategoryTimerRetention, f.Category)
	}
}

func TestDetachedDOMScenario(t *testing.T) {
	baseline := steadyGraph(t)

	b, _, _ := testutil.DetachedTreeGraph(8)
	// An orphaned heavy node clears the byte signal.
	b.AddNode("native", "Detached HTMLCanvasElement", 512<<10)
	target := b.Build(t)

	findings, _ := leak.New(nil).Classify(analyze(t, baseline, target))

	var detached *model.LeakFinding
	for i := range findings {
		if findings[i].Category == model.CategoryDetachedDOM {
			detached = &findings[i]
			break
		}
	}
	require.NotNil(t, detached, "expected a detached-dom finding")
	assert.GreaterOrEqual(t, detached.Confidence, 10)
	assert.LessOrEqual(t, detached.Confidence, 100)
	assert.NotEmpty(t, detached.NodeIDs)
}

func TestShapeDuplicationScenario(t *testing.T) {
	baseline := steadyGraph(t)
	target := testutil.DuplicateShapeGraph(50, 10<<10).Build(t)

	findings, _ := leak.New(nil).Classify(analyze(t, baseline, target))

	var dup *model.LeakFinding
	for i := range findings {
		if findings[i].Category == model.CategoryShapeDuplication {
			dup = &findings[i]
			break
		}
	}
	require.NotNil(t, dup, "expected a shape-duplication finding")
	// 49/50 of 500KB.
	assert.Contains(t, dup.Description, "501760")
}

func TestCollectionGrowthScenario(t *testing.T) {
	snaps := make([]*snapshot.Snapshot, 0, 3)
	for _, size := range []int64{1 << 20, 3 << 20, 8 << 20} {
		b := testutil.NewGraphBuilder()
		root := b.AddRoot()
		arr := b.AddNode("object", "PendingCache", size)
		b.AddEdge(root, arr, "property", "pending")
		snaps = append(snaps, b.Build(t))
	}

	findings, _ := leak.New(nil).Classify(analyze(t, snaps...))

	var coll *model.LeakFinding
	for i := range findings {
		if findings[i].Category == model.CategoryCollectionGrowth {
			coll = &findings[i]
			break
		}
	}
	require.NotNil(t, coll, "expected a collection-growth finding")
	assert.Equal(t, model.SignificanceHigh, coll.Severity)
}

func TestClassifierConfidenceBounds(t *testing.T) {
	baseline, target := timerScenario(t, 5000, 2<<10)

	findings, _ := leak.New(nil).Classify(analyze(t, baseline, target))
	require.NotEmpty(t, findings)
	for _, f := range findings {
		assert.GreaterOrEqual(t, f.Confidence, 10)
		assert.LessOrEqual(t, f.Confidence, 100)
		assert.NotEmpty(t, f.NodeIDs, "finding %s has no implicated nodes", f.Category)
	}
	// Sorted by confidence descending.
	for i := 1; i < len(findings); i++ {
		assert.GreaterOrEqual(t, findings[i-1].Confidence, findings[i].Confidence)
	}
}

func TestClassifierInsufficientSnapshots(t *testing.T) {
	in := analyze(t, steadyGraph(t))
	findings, diags := leak.New(nil).Classify(in)

	assert.Empty(t, findings)
	require.Len(t, diags, 1)
	assert.Equal(t, apperrors.CodeInsufficientSnapshots, diags[0].Code)
}

// panicDetector always panics, to exercise the classifier boundary.
type panicDetector struct{}

func (d *panicDetector) Name() string { return "panic-detector" }
func (d *panicDetector) Detect(_ *leak.Input) *model.LeakFinding {
	panic("synthetic failure")
}

func TestClassifierRecoversDetectorPanic(t *testing.T) {
	c := leak.New(nil)
	c.Register(&panicDetector{})

	baseline, target := timerScenario(t, 5000, 2<<10)
	findings, diags := c.Classify(analyze(t, baseline, target))

	require.NotEmpty(t, findings, "healthy detectors still run")
	require.Len(t, diags, 1)
	assert.Equal(t, apperrors.CodeDetectorFailed, diags[0].Code)
	assert.Equal(t, "panic-detector", diags[0].Source)
}
