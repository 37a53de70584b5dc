package formatter

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heapscope/pkg/model"
	"github.com/heapscope/pkg/utils"
)

// recordingLogger captures formatted log lines for assertions.
type recordingLogger struct {
	lines []string
}

func (l *recordingLogger) Debug(msg string, args ...interface{}) { l.append(msg, args...) }
func (l *recordingLogger) Info(msg string, args ...interface{})  { l.append(msg, args...) }
func (l *recordingLogger) Warn(msg string, args ...interface{})  { l.append(msg, args...) }
func (l *recordingLogger) Error(msg string, args ...interface{}) { l.append(msg, args...) }
func (l *recordingLogger) WithField(key string, value interface{}) utils.Logger {
	return l
}

func (l *recordingLogger) append(msg string, args ...interface{}) {
	l.lines = append(l.lines, fmt.Sprintf(msg, args...))
}

func (l *recordingLogger) output() string {
	return strings.Join(l.lines, "\n")
}

func sampleResult() *model.AnalysisResult {
	return &model.AnalysisResult{
		RunUUID:    "run-7",
		AnalyzedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		Snapshots: []model.SnapshotSummary{
			{Role: model.RoleBaseline, NodeCount: 1000, EdgeCount: 2000, TotalSelfSize: 8 << 20, SizeMode: "approx"},
			{Role: model.RoleTarget, NodeCount: 1500, EdgeCount: 3000, TotalSelfSize: 24 << 20, SizeMode: "approx"},
		},
		Reports: []model.SnapshotReport{
			{
				Role: model.RoleTarget,
				Ranking: []model.RankedNode{
					{Rank: 1, NodeID: 3, Name: "TimerRegistry", Kind: "object",
						RetainedSize: 12 << 20, SizePercentage: 48.5, Significance: model.SignificanceCritical},
				},
				Detached: []uint64{77, 78},
			},
		},
		Growth: &model.GrowthReport{
			SnapshotCount: 2,
			EnoughData:    true,
			TrackedTotal:  900,
			Records: []model.GrowthRecord{
				{NodeID: 3, Name: "TimerRegistry", Kind: "object",
					Pattern: model.PatternMonotonic, TotalGrowth: 12 << 20, SizeHistory: []int64{1 << 20, 13 << 20}},
			},
		},
		Findings: []model.LeakFinding{
			{
				Category: model.CategoryTimerRetention, Severity: model.SignificanceHigh,
				Confidence: 85, NodeIDs: []uint64{3},
				Description: "1200 timers appeared since the baseline holding 12.0 MiB",
				Remediation: "clear intervals when the owning component unmounts",
				Path: &model.RetainerPath{
					NodeID: 3, RootKind: model.RootGlobal,
					Hops: []model.RetainerHop{{Name: "Window", Kind: "native"}, {Name: "TimerRegistry", Kind: "object"}},
				},
			},
		},
		Diagnostics: []model.Diagnostic{
			{Code: "MALFORMED_SNAPSHOT", Source: "final", Message: "node array truncated"},
		},
	}
}

func TestFormatter_Format(t *testing.T) {
	log := &recordingLogger{}
	New().Format(sampleResult(), log)
	out := log.output()

	assert.Contains(t, out, "Run UUID:    run-7")
	assert.Contains(t, out, "timer-retention")
	assert.Contains(t, out, "confidence  85")
	assert.Contains(t, out, "[global] Window -> TimerRegistry")
	assert.Contains(t, out, "MONOTONIC")
	assert.Contains(t, out, "12.00 MiB")
	assert.Contains(t, out, "TimerRegistry")
	assert.Contains(t, out, "detached objects: 2")
	assert.Contains(t, out, "MALFORMED_SNAPSHOT")
}

func TestFormatter_FormatNilAndEmpty(t *testing.T) {
	log := &recordingLogger{}
	New().Format(nil, log)
	assert.Empty(t, log.lines)

	log = &recordingLogger{}
	New().Format(&model.AnalysisResult{RunUUID: "empty"}, log)
	assert.Contains(t, log.output(), "(none)")
}

func TestFormatter_InsufficientGrowth(t *testing.T) {
	res := sampleResult()
	res.Growth = &model.GrowthReport{SnapshotCount: 1, EnoughData: false}

	log := &recordingLogger{}
	New().Format(res, log)
	assert.Contains(t, log.output(), "insufficient snapshots (1 captured")
}

func TestFormatter_FindingLimit(t *testing.T) {
	res := sampleResult()
	for i := 0; i < 15; i++ {
		res.Findings = append(res.Findings, model.LeakFinding{
			Category: model.CategoryShapeDuplication, Severity: model.SignificanceMedium,
			Confidence: 30, Description: "dup"})
	}

	f := New()
	log := &recordingLogger{}
	f.Format(res, log)
	assert.Contains(t, log.output(), "more findings")
}

func TestFormatSummary(t *testing.T) {
	res := sampleResult()
	summary := New().FormatSummary(res)
	require.NotNil(t, summary)

	assert.Equal(t, "run-7", summary["run_uuid"])
	assert.Equal(t, 1, summary["findings_count"])
	assert.Contains(t, summary, "growth")
	assert.Contains(t, summary, "diagnostics")

	assert.Nil(t, New().FormatSummary(nil))
}

func TestHumanBytes(t *testing.T) {
	assert.Equal(t, "512 B", humanBytes(512))
	assert.Equal(t, "2.00 KiB", humanBytes(2048))
	assert.Equal(t, "10.00 MiB", humanBytes(10<<20))
	assert.Equal(t, "1.50 GiB", humanBytes(3<<29))
	assert.Equal(t, "-2.00 KiB", humanBytes(-2048))
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", truncateString("short", 10))
	assert.Equal(t, "exactly10!", truncateString("exactly10!", 10))
	assert.Equal(t, "abcdefg...", truncateString("abcdefghijklmn", 10))
}
