// Package service orchestrates a full analysis run: decode snapshots,
// run the single-snapshot analyzers in parallel, feed the growth
// tracker in capture order, classify leaks, and optionally persist the
// result.
package service

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/heapscope/internal/analyzer"
	"github.com/heapscope/internal/growth"
	"github.com/heapscope/internal/leak"
	"github.com/heapscope/internal/snapshot"
	"github.com/heapscope/pkg/config"
	apperrors "github.com/heapscope/pkg/errors"
	"github.com/heapscope/pkg/filter"
	"github.com/heapscope/pkg/model"
	"github.com/heapscope/pkg/parallel"
	"github.com/heapscope/pkg/utils"
)

const tracerName = "github.com/heapscope/internal/service"

// ResultStore persists finished analysis results.
type ResultStore interface {
	SaveResult(ctx context.Context, result *model.AnalysisResult) error
}

// Service runs heap analyses.
type Service struct {
	cfg    *config.AnalysisConfig
	filter *filter.NodeFilter
	logger utils.Logger
	store  ResultStore // optional
}

// New creates a Service. The store may be nil when persistence is not
// configured.
func New(cfg *config.AnalysisConfig, logger utils.Logger, store ResultStore) *Service {
	if cfg == nil {
		def := config.AnalysisConfig{
			MaxWorker:        5,
			TopN:             50,
			GrowthThreshold:  1 << 20,
			TrackerCapacity:  10000,
			DetachedMaxDepth: 12,
		}
		cfg = &def
	}
	if logger == nil {
		logger = utils.NewNullLogger()
	}
	return &Service{
		cfg:    cfg,
		filter: filter.NewNodeFilter(),
		logger: logger,
		store:  store,
	}
}

// decoded pairs one decoded snapshot with its role, nil on decode failure.
type decoded struct {
	role model.SnapshotRole
	snap *snapshot.Snapshot
	err  error
}

// AnalyzeSnapshots runs the full pipeline over the request's snapshots.
// It always returns a result object; per-snapshot decode failures
// become diagnostics rather than aborting the sibling snapshots. The
// only error return is for a structurally unusable request.
func (s *Service) AnalyzeSnapshots(ctx context.Context, req *model.AnalysisRequest) (*model.AnalysisResult, error) {
	if req == nil || len(req.Snapshots) == 0 {
		return nil, apperrors.ErrInvalidInput
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "AnalyzeSnapshots",
		trace.WithAttributes(
			attribute.String("run.uuid", req.RunUUID),
			attribute.Int("run.snapshots", len(req.Snapshots)),
		))
	defer span.End()

	sw := utils.NewStopwatch("run")
	result := &model.AnalysisResult{
		RunUUID:    req.RunUUID,
		AnalyzedAt: time.Now().UTC(),
	}

	sw.Start("decode")
	snaps := s.decodeAll(ctx, req.Snapshots, result)
	sw.Stop("decode")

	a := analyzer.New(analyzer.Options{
		TopN:             s.cfg.TopN,
		MinRetainedSize:  s.cfg.MinRetainedSize,
		DetachedMaxDepth: s.cfg.DetachedMaxDepth,
	}, s.filter, s.logger)

	sw.Start("analyze")
	reports := s.analyzeAll(ctx, a, snaps)
	sw.Stop("analyze")

	sw.Start("growth")
	tracker := growth.NewTracker(growth.Options{
		Threshold: s.cfg.GrowthThreshold,
		Capacity:  s.cfg.TrackerCapacity,
	}, s.filter, s.logger)
	for _, d := range snaps {
		tracker.Observe(d.snap)
	}
	result.Growth = tracker.Finalize()
	sw.Stop("growth")

	sw.Start("classify")
	in := &leak.Input{Growth: result.Growth}
	for i, d := range snaps {
		in.Snapshots = append(in.Snapshots, leak.SnapshotSignals{
			Role:   d.role,
			Snap:   d.snap,
			Report: reports[i],
		})
		result.Snapshots = append(result.Snapshots, model.SnapshotSummary{
			Role:          d.role,
			NodeCount:     d.snap.NodeCount(),
			EdgeCount:     d.snap.EdgeCount(),
			TotalSelfSize: d.snap.TotalSelfSize(),
			SizeMode:      d.snap.SizeMode().String(),
		})
		result.Reports = append(result.Reports, reports[i])
	}
	findings, diags := leak.New(s.logger).Classify(in)
	result.Findings = findings
	result.Diagnostics = append(result.Diagnostics, diags...)
	sw.Stop("classify")

	s.logger.Info("run %s: %d snapshots analyzed, %d findings (%s)",
		req.RunUUID, len(snaps), len(findings), sw.Summary())

	if s.store != nil {
		if err := s.store.SaveResult(ctx, result); err != nil {
			s.logger.Error("failed to persist result for run %s: %v", req.RunUUID, err)
			result.Diagnostics = append(result.Diagnostics, model.Diagnostic{
				Code:    apperrors.CodeDatabaseError,
				Source:  "service",
				Message: fmt.Sprintf("failed to persist result: %v", err),
			})
		}
	}

	return result, nil
}

// decodeAll decodes every snapshot in parallel, recording failures as
// diagnostics and returning only the healthy ones in capture order.
func (s *Service) decodeAll(ctx context.Context, inputs []model.SnapshotInput, result *model.AnalysisResult) []decoded {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "decodeAll")
	defer span.End()

	pool := parallel.NewWorkerPool[int, *snapshot.Snapshot](
		parallel.DefaultPoolConfig().WithWorkers(s.cfg.MaxWorker))

	idxs := make([]int, len(inputs))
	for i := range inputs {
		idxs[i] = i
	}
	decodedResults := pool.ExecuteFunc(ctx, idxs, func(_ context.Context, i int) (*snapshot.Snapshot, error) {
		raw, err := snapshot.ParseDocument(inputs[i].Data)
		if err != nil {
			return nil, err
		}
		snap, err := snapshot.Decode(raw)
		if err != nil {
			return nil, err
		}
		if s.cfg.DominatorSizes && snap.SizeMode() == snapshot.SizeModeApprox {
			snap.ComputeRetainedSizes()
		}
		return snap, nil
	})

	var out []decoded
	for i, r := range decodedResults {
		role := inputs[i].Role
		if r.Error != nil {
			s.logger.Warn("snapshot %s failed to decode: %v", role, r.Error)
			result.Diagnostics = append(result.Diagnostics, model.Diagnostic{
				Code:    apperrors.GetErrorCode(r.Error),
				Source:  string(role),
				Message: r.Error.Error(),
			})
			continue
		}
		stats := r.Result.Stats()
		if stats.UnresolvedStrings > 0 || stats.DanglingEdges > 0 {
			result.Diagnostics = append(result.Diagnostics, model.Diagnostic{
				Code:   apperrors.CodeUnresolvableReference,
				Source: string(role),
				Message: fmt.Sprintf("%d unresolved string references, %d dangling edges",
					stats.UnresolvedStrings, stats.DanglingEdges),
			})
		}
		out = append(out, decoded{role: role, snap: r.Result})
	}
	return out
}

// analyzeAll runs the single-snapshot analyzers in parallel across
// snapshots. Each analysis is pure over its own snapshot.
func (s *Service) analyzeAll(ctx context.Context, a *analyzer.Analyzer, snaps []decoded) []model.SnapshotReport {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "analyzeAll")
	defer span.End()

	pool := parallel.NewWorkerPool[int, model.SnapshotReport](
		parallel.DefaultPoolConfig().WithWorkers(s.cfg.MaxWorker))

	idxs := make([]int, len(snaps))
	for i := range snaps {
		idxs[i] = i
	}
	results := pool.ExecuteFunc(ctx, idxs, func(_ context.Context, i int) (model.SnapshotReport, error) {
		report := a.Analyze(snaps[i].snap)
		report.Role = snaps[i].role
		return report, nil
	})

	reports := make([]model.SnapshotReport, len(snaps))
	for i, r := range results {
		reports[i] = r.Result
	}
	return reports
}
