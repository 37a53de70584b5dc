package leak

import (
	"fmt"
	"sort"
	"strings"

	"github.com/heapscope/pkg/model"
)

// Detector thresholds. Each detector needs at least two of its signals
// to co-occur before it emits a finding.
const (
	timerCountSignal    = 50
	timerFractionSignal = 0.05
	timerBytesSignal    = 1 << 20

	detachedCountSignal = 5
	detachedBytesSignal = 100 << 10

	accumulationCountSignal = 1000
	accumulationRatioSignal = 1.2

	duplicationCountSignal = 10
	duplicationBytesSignal = 100 << 10

	collectionRecordsSignal = 3

	// implicatedCap bounds the node ids attached to one finding.
	implicatedCap = 25
)

func capIDs(ids []uint64) []uint64 {
	if len(ids) > implicatedCap {
		return ids[:implicatedCap]
	}
	return ids
}

// ----------------------------------------------------------------------------
// timer-retention
// ----------------------------------------------------------------------------

// timerRetentionDetector fires when the target snapshot gained many
// timer-named objects that together hold significant memory.
type timerRetentionDetector struct{}

func (d *timerRetentionDetector) Name() string { return "timer-retention" }

func isTimerName(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "timer") ||
		strings.Contains(lower, "interval") ||
		strings.Contains(lower, "timeout")
}

func (d *timerRetentionDetector) Detect(in *Input) *model.LeakFinding {
	baseline, target := in.Baseline(), in.Target()

	var newIDs []uint64
	var newBytes int64
	var timerTotal int
	for _, n := range target.Snap.Nodes() {
		if !isTimerName(n.Name) {
			continue
		}
		timerTotal++
		if baseline.Snap.NodeByID(n.ID) >= 0 {
			continue
		}
		newIDs = append(newIDs, n.ID)
		newBytes += n.RetainedSize
	}

	countSignal := len(newIDs) >= timerCountSignal
	fractionSignal := target.Snap.NodeCount() > 0 &&
		float64(timerTotal)/float64(target.Snap.NodeCount()) > timerFractionSignal
	bytesSignal := newBytes >= timerBytesSignal

	signals := 0
	confidence := 30
	if countSignal {
		signals++
		confidence += 20
	}
	if fractionSignal {
		signals++
		confidence += 15
	}
	if bytesSignal {
		signals++
		confidence += 20
	}
	if signals < 2 {
		return nil
	}

	return &model.LeakFinding{
		Category:   model.CategoryTimerRetention,
		Severity:   severityForBytes(newBytes),
		Confidence: confidence,
		NodeIDs:    capIDs(newIDs),
		Description: fmt.Sprintf(
			"%d new timer-related objects appeared since the baseline, retaining %d bytes",
			len(newIDs), newBytes),
		Remediation: "Clear intervals and timeouts when their owner is torn down; " +
			"store timer handles and cancel them in cleanup paths.",
	}
}

// ----------------------------------------------------------------------------
// detached-dom
// ----------------------------------------------------------------------------

// detachedDOMDetector fires when the target snapshot holds detached
// nodes and the detached set either grew since the baseline or retains
// significant memory.
type detachedDOMDetector struct{}

func (d *detachedDOMDetector) Name() string { return "detached-dom" }

func (d *detachedDOMDetector) Detect(in *Input) *model.LeakFinding {
	baseline, target := in.Baseline(), in.Target()

	detached := target.Report.Detached
	if len(detached) == 0 {
		return nil
	}

	var detachedBytes int64
	for _, id := range detached {
		if idx := target.Snap.NodeByID(id); idx >= 0 {
			detachedBytes += target.Snap.Node(idx).RetainedSize
		}
	}

	countSignal := len(detached) >= detachedCountSignal
	grewSignal := len(detached) > len(baseline.Report.Detached)
	bytesSignal := detachedBytes >= detachedBytesSignal

	signals := 0
	confidence := 30
	if countSignal {
		signals++
		confidence += 20
	}
	if grewSignal {
		signals++
		confidence += 20
	}
	if bytesSignal {
		signals++
		confidence += 15
	}
	if signals < 2 {
		return nil
	}

	return &model.LeakFinding{
		Category:   model.CategoryDetachedDOM,
		Severity:   severityForBytes(detachedBytes),
		Confidence: confidence,
		NodeIDs:    capIDs(detached),
		Description: fmt.Sprintf(
			"%d nodes are unreachable from any root-equivalent but still retained (%d bytes)",
			len(detached), detachedBytes),
		Remediation: "Remove event listeners and clear references to removed elements; " +
			"detached subtrees stay alive as long as any closure or collection points at them.",
	}
}

// ----------------------------------------------------------------------------
// global-accumulation
// ----------------------------------------------------------------------------

// globalAccumulationDetector fires when the heap gained many nodes and a
// container-like hub shows high fan-out, suggesting unbounded growth
// under a long-lived store.
type globalAccumulationDetector struct{}

func (d *globalAccumulationDetector) Name() string { return "global-accumulation" }

func (d *globalAccumulationDetector) Detect(in *Input) *model.LeakFinding {
	baseline, target := in.Baseline(), in.Target()

	delta := target.Snap.NodeCount() - baseline.Snap.NodeCount()
	ratio := 0.0
	if baseline.Snap.NodeCount() > 0 {
		ratio = float64(target.Snap.NodeCount()) / float64(baseline.Snap.NodeCount())
	}
	growthSignal := delta >= accumulationCountSignal || ratio >= accumulationRatioSignal

	// Hubs with container-ish names, largest first.
	var hubs []model.FanoutRecord
	for _, rec := range target.Report.Fanout {
		if len(rec.SuspicionTags) > 0 {
			hubs = append(hubs, rec)
		}
	}
	sort.SliceStable(hubs, func(x, y int) bool {
		return hubs[x].OutDegree > hubs[y].OutDegree
	})
	hubSignal := len(hubs) > 0

	hubGrewSignal := false
	var hubBytes int64
	if hubSignal {
		hubBytes = hubs[0].RetainedSize
		baseDegree := fanoutDegree(baseline.Report.Fanout, hubs[0].NodeID)
		hubGrewSignal = hubs[0].OutDegree > baseDegree
	}

	signals := 0
	confidence := 25
	if growthSignal {
		signals++
		confidence += 20
	}
	if hubSignal {
		signals++
		confidence += 15
	}
	if hubGrewSignal {
		signals++
		confidence += 20
	}
	if signals < 2 {
		return nil
	}

	var ids []uint64
	for _, h := range hubs {
		ids = append(ids, h.NodeID)
	}

	return &model.LeakFinding{
		Category:   model.CategoryGlobalAccumulation,
		Severity:   severityForBytes(hubBytes),
		Confidence: confidence,
		NodeIDs:    capIDs(ids),
		Description: fmt.Sprintf(
			"heap grew by %d nodes and %d container-like hubs keep accumulating references",
			delta, len(hubs)),
		Remediation: "Bound long-lived caches and registries; evict entries when their " +
			"owners go away instead of keying them forever on a global object.",
	}
}

// fanoutDegree looks up the recorded out-degree for an id, 0 if absent.
func fanoutDegree(records []model.FanoutRecord, id uint64) int {
	for _, rec := range records {
		if rec.NodeID == id {
			return rec.OutDegree
		}
	}
	return 0
}

// ----------------------------------------------------------------------------
// shape-duplication
// ----------------------------------------------------------------------------

// shapeDuplicationDetector fires when the target snapshot holds many
// structurally identical objects wasting significant memory.
type shapeDuplicationDetector struct{}

func (d *shapeDuplicationDetector) Name() string { return "shape-duplication" }

func (d *shapeDuplicationDetector) Detect(in *Input) *model.LeakFinding {
	target := in.Target()

	var top *model.ShapeRecord
	wastefulRecords := 0
	for i := range target.Report.Shapes {
		rec := &target.Report.Shapes[i]
		if !rec.Wasteful {
			continue
		}
		wastefulRecords++
		if top == nil || rec.WastedMemory > top.WastedMemory {
			top = rec
		}
	}
	if top == nil {
		return nil
	}

	countSignal := top.Count >= duplicationCountSignal
	bytesSignal := top.WastedMemory >= duplicationBytesSignal
	spreadSignal := wastefulRecords >= 3

	signals := 0
	confidence := 30
	if countSignal {
		signals++
		confidence += 20
	}
	if bytesSignal {
		signals++
		confidence += 20
	}
	if spreadSignal {
		signals++
		confidence += 10
	}
	if signals < 2 {
		return nil
	}

	return &model.LeakFinding{
		Category:   model.CategoryShapeDuplication,
		Severity:   severityForBytes(top.WastedMemory),
		Confidence: confidence,
		NodeIDs:    capIDs(top.NodeIDs),
		Description: fmt.Sprintf(
			"%d structurally identical %q objects waste %d bytes that one canonical copy would save",
			top.Count, top.Name, top.WastedMemory),
		Remediation: "Intern or share a canonical instance instead of materializing " +
			"one copy per call site.",
	}
}

// ----------------------------------------------------------------------------
// collection-growth
// ----------------------------------------------------------------------------

// collectionGrowthDetector fires when tracked objects grew monotonically
// across the run and the growth concentrates in collection-like nodes.
type collectionGrowthDetector struct{}

func (d *collectionGrowthDetector) Name() string { return "collection-growth" }

func isCollectionName(name string) bool {
	lower := strings.ToLower(name)
	for _, part := range []string{"array", "map", "set", "list", "queue", "buffer", "cache"} {
		if strings.Contains(lower, part) {
			return true
		}
	}
	return false
}

func (d *collectionGrowthDetector) Detect(in *Input) *model.LeakFinding {
	if in.Growth == nil || !in.Growth.EnoughData {
		return nil
	}

	var monotonic []model.GrowthRecord
	var totalGrowth int64
	collectionHit := false
	for _, rec := range in.Growth.Records {
		if rec.Pattern != model.PatternMonotonic {
			continue
		}
		monotonic = append(monotonic, rec)
		totalGrowth += rec.TotalGrowth
		if isCollectionName(rec.Name) || rec.Kind == "array" {
			collectionHit = true
		}
	}
	if len(monotonic) == 0 {
		return nil
	}

	countSignal := len(monotonic) >= collectionRecordsSignal
	nameSignal := collectionHit
	bytesSignal := totalGrowth >= 2<<20

	signals := 0
	confidence := 30
	if countSignal {
		signals++
		confidence += 20
	}
	if nameSignal {
		signals++
		confidence += 15
	}
	if bytesSignal {
		signals++
		confidence += 20
	}
	if signals < 2 {
		return nil
	}

	var ids []uint64
	for _, rec := range monotonic {
		ids = append(ids, rec.NodeID)
	}

	return &model.LeakFinding{
		Category:   model.CategoryCollectionGrowth,
		Severity:   severityForBytes(totalGrowth),
		Confidence: confidence,
		NodeIDs:    capIDs(ids),
		Description: fmt.Sprintf(
			"%d tracked objects grew monotonically across the run, adding %d bytes",
			len(monotonic), totalGrowth),
		Remediation: "Audit append-only collections for missing eviction or cleanup; " +
			"monotonic growth across captures means nothing ever removes entries.",
	}
}
