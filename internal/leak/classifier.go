// Package leak combines single- and cross-snapshot signals into scored,
// categorized leak findings. Detectors are independent composite rules:
// each computes several signals over the same input and emits a finding
// only when enough of them co-occur, so no single weak signal can
// produce a high-severity result on its own.
package leak

import (
	"fmt"
	"sort"

	"github.com/heapscope/internal/retainer"
	"github.com/heapscope/internal/snapshot"
	apperrors "github.com/heapscope/pkg/errors"
	"github.com/heapscope/pkg/model"
	"github.com/heapscope/pkg/utils"
)

// Confidence clamp bounds shared by all detectors.
const (
	minConfidence = 10
	maxConfidence = 100
)

// SnapshotSignals bundles one decoded snapshot with its analyzer output.
type SnapshotSignals struct {
	Role   model.SnapshotRole
	Snap   *snapshot.Snapshot
	Report model.SnapshotReport
}

// Input is everything the detectors see: two or three snapshots in
// baseline/target[/final] order plus the growth-tracker report.
type Input struct {
	Snapshots []SnapshotSignals
	Growth    *model.GrowthReport
}

// Baseline returns the signals for the first snapshot.
func (in *Input) Baseline() *SnapshotSignals {
	if len(in.Snapshots) == 0 {
		return nil
	}
	return &in.Snapshots[0]
}

// Target returns the signals for the primary comparison snapshot: the
// second one, which in a three-snapshot workflow is the post-action
// capture.
func (in *Input) Target() *SnapshotSignals {
	if len(in.Snapshots) < 2 {
		return nil
	}
	return &in.Snapshots[1]
}

// Last returns the signals for the final snapshot of the run.
func (in *Input) Last() *SnapshotSignals {
	if len(in.Snapshots) == 0 {
		return nil
	}
	return &in.Snapshots[len(in.Snapshots)-1]
}

// Detector is one composite leak rule.
type Detector interface {
	// Name identifies the detector in diagnostics.
	Name() string
	// Detect returns a finding, or nil when the signals do not co-occur.
	Detect(in *Input) *model.LeakFinding
}

// Classifier runs the registered detectors over one analysis run.
type Classifier struct {
	detectors []Detector
	logger    utils.Logger
	tracePath bool
}

// New creates a Classifier with the default detector set.
func New(logger utils.Logger) *Classifier {
	if logger == nil {
		logger = utils.NewNullLogger()
	}
	return &Classifier{
		detectors: []Detector{
			&timerRetentionDetector{},
			&detachedDOMDetector{},
			&globalAccumulationDetector{},
			&shapeDuplicationDetector{},
			&collectionGrowthDetector{},
		},
		logger:    logger,
		tracePath: true,
	}
}

// Register appends a detector to the run order.
func (c *Classifier) Register(d Detector) {
	c.detectors = append(c.detectors, d)
}

// SetTracePaths toggles retainer-path attachment on findings.
func (c *Classifier) SetTracePaths(enabled bool) {
	c.tracePath = enabled
}

// Classify runs every detector and returns the findings sorted by
// confidence descending. A detector panic is recorded as a diagnostic
// and never aborts the run. Overlapping findings are not deduplicated.
func (c *Classifier) Classify(in *Input) ([]model.LeakFinding, []model.Diagnostic) {
	var diagnostics []model.Diagnostic
	if len(in.Snapshots) < 2 {
		diagnostics = append(diagnostics, model.Diagnostic{
			Code:    apperrors.CodeInsufficientSnapshots,
			Source:  "classifier",
			Message: fmt.Sprintf("classifier needs at least 2 snapshots, got %d", len(in.Snapshots)),
		})
		return nil, diagnostics
	}

	var findings []model.LeakFinding
	for _, d := range c.detectors {
		finding, diag := c.runDetector(d, in)
		if diag != nil {
			diagnostics = append(diagnostics, *diag)
			continue
		}
		if finding == nil {
			continue
		}
		finding.Confidence = clampConfidence(finding.Confidence)
		if c.tracePath && len(finding.NodeIDs) > 0 {
			c.attachPath(finding, in)
		}
		findings = append(findings, *finding)
	}

	sort.SliceStable(findings, func(x, y int) bool {
		return findings[x].Confidence > findings[y].Confidence
	})
	return findings, diagnostics
}

// runDetector isolates one detector call so that a panic becomes a
// zero-confidence diagnostic instead of crashing the run.
func (c *Classifier) runDetector(d Detector, in *Input) (finding *model.LeakFinding, diag *model.Diagnostic) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("detector %s panicked: %v", d.Name(), r)
			finding = nil
			diag = &model.Diagnostic{
				Code:    apperrors.CodeDetectorFailed,
				Source:  d.Name(),
				Message: fmt.Sprintf("detector failed: %v", r),
			}
		}
	}()
	return d.Detect(in), nil
}

// attachPath traces the retainer path for the first implicated node in
// the last snapshot that contains it.
func (c *Classifier) attachPath(finding *model.LeakFinding, in *Input) {
	target := in.Last()
	for _, sig := range []*SnapshotSignals{in.Last(), in.Target(), in.Baseline()} {
		if sig != nil && sig.Snap.NodeByID(finding.NodeIDs[0]) >= 0 {
			target = sig
			break
		}
	}
	if target == nil || target.Snap.NodeByID(finding.NodeIDs[0]) < 0 {
		return
	}
	path, err := retainer.NewTracer(target.Snap).Assess(finding.NodeIDs[0])
	if err != nil {
		c.logger.Warn("failed to trace retainer path for node %d: %v", finding.NodeIDs[0], err)
		return
	}
	finding.Path = path
}

func clampConfidence(confidence int) int {
	if confidence < minConfidence {
		return minConfidence
	}
	if confidence > maxConfidence {
		return maxConfidence
	}
	return confidence
}

// severityForBytes derives a severity tier from an absolute byte delta.
func severityForBytes(delta int64) model.Significance {
	switch {
	case delta >= 10<<20:
		return model.SignificanceCritical
	case delta >= 5<<20:
		return model.SignificanceHigh
	case delta >= 1<<20:
		return model.SignificanceMedium
	default:
		return model.SignificanceLow
	}
}
