// Package formatter renders analysis results for terminal output and
// summary serialization.
package formatter

import (
	"fmt"
	"strings"

	"github.com/heapscope/pkg/model"
	"github.com/heapscope/pkg/utils"
)

// Formatter renders one analysis result.
type Formatter struct {
	// TopRanks limits the printed size-ranking rows per snapshot.
	TopRanks int
	// MaxFindings limits the printed findings.
	MaxFindings int
}

// New creates a Formatter with default limits.
func New() *Formatter {
	return &Formatter{TopRanks: 10, MaxFindings: 10}
}

// Format outputs the full result to the logger.
func (f *Formatter) Format(res *model.AnalysisResult, log utils.Logger) {
	if res == nil {
		return
	}

	log.Info("=== Heap Analysis ===")
	log.Info("Run UUID:    %s", res.RunUUID)
	log.Info("Snapshots:   %d", len(res.Snapshots))
	for _, s := range res.Snapshots {
		log.Info("  %-8s  %7d nodes  %8d edges  %10s  (%s sizes)",
			s.Role, s.NodeCount, s.EdgeCount, humanBytes(s.TotalSelfSize), s.SizeMode)
	}
	log.Info("")

	f.printFindings(res, log)
	f.printGrowth(res, log)
	f.printReports(res, log)
	f.printDiagnostics(res, log)
}

func (f *Formatter) printFindings(res *model.AnalysisResult, log utils.Logger) {
	log.Info("=== Leak Findings ===")
	if len(res.Findings) == 0 {
		log.Info("  (none)")
		log.Info("")
		return
	}

	for i, finding := range res.Findings {
		if i >= f.MaxFindings {
			log.Info("  ... and %d more findings", len(res.Findings)-f.MaxFindings)
			break
		}
		log.Info("  %2d. [%-8s] %-20s confidence %3d", i+1, finding.Severity, finding.Category, finding.Confidence)
		log.Info("      %s", truncateString(finding.Description, 110))
		if finding.Remediation != "" {
			log.Info("      fix: %s", truncateString(finding.Remediation, 104))
		}
		if finding.Path != nil {
			log.Info("      path: %s", formatPath(finding.Path))
		}
	}
	log.Info("")
}

func (f *Formatter) printGrowth(res *model.AnalysisResult, log utils.Logger) {
	if res.Growth == nil {
		return
	}

	log.Info("=== Growth ===")
	if !res.Growth.EnoughData {
		log.Info("  insufficient snapshots (%d captured, need at least 2)", res.Growth.SnapshotCount)
		log.Info("")
		return
	}

	log.Info("  tracked %d objects across %d snapshots", res.Growth.TrackedTotal, res.Growth.SnapshotCount)
	if res.Growth.CappedAt > 0 {
		log.Info("  tracking capped at %d objects", res.Growth.CappedAt)
	}
	for i, rec := range res.Growth.Records {
		if i >= f.TopRanks {
			log.Info("  ... and %d more records", len(res.Growth.Records)-f.TopRanks)
			break
		}
		suffix := ""
		if rec.DisappearedAt > 0 {
			suffix = fmt.Sprintf("  (disappeared at snapshot %d)", rec.DisappearedAt)
		}
		log.Info("  %2d. %-11s %10s  %s%s", i+1, rec.Pattern, humanBytes(rec.TotalGrowth),
			truncateString(rec.Name, 60), suffix)
	}
	log.Info("")
}

func (f *Formatter) printReports(res *model.AnalysisResult, log utils.Logger) {
	for _, rep := range res.Reports {
		log.Info("=== Top Objects (%s) ===", rep.Role)
		count := min(f.TopRanks, len(rep.Ranking))
		for i := 0; i < count; i++ {
			r := rep.Ranking[i]
			log.Info("  %2d. [%-8s] %10s %6.2f%%  %s", r.Rank, r.Significance,
				humanBytes(r.RetainedSize), r.SizePercentage, truncateString(r.Name, 60))
		}
		if len(rep.Detached) > 0 {
			log.Info("  detached objects: %d", len(rep.Detached))
		}
		log.Info("")
	}
}

func (f *Formatter) printDiagnostics(res *model.AnalysisResult, log utils.Logger) {
	if len(res.Diagnostics) == 0 {
		return
	}

	log.Info("=== Diagnostics ===")
	for _, d := range res.Diagnostics {
		log.Warn("  [%s] %s: %s", d.Code, d.Source, truncateString(d.Message, 100))
	}
	log.Info("")
}

// FormatSummary returns a summary map for serialization.
func (f *Formatter) FormatSummary(res *model.AnalysisResult) map[string]interface{} {
	if res == nil {
		return nil
	}

	summary := map[string]interface{}{
		"run_uuid":       res.RunUUID,
		"analyzed_at":    res.AnalyzedAt,
		"snapshots":      res.Snapshots,
		"findings_count": len(res.Findings),
		"findings":       res.Findings,
	}
	if res.Growth != nil {
		summary["growth"] = res.Growth
	}
	if len(res.Diagnostics) > 0 {
		summary["diagnostics"] = res.Diagnostics
	}
	return summary
}

// formatPath renders a retainer path as a root-to-object chain.
func formatPath(p *model.RetainerPath) string {
	hops := make([]string, 0, len(p.Hops))
	for _, hop := range p.Hops {
		name := hop.Name
		if name == "" {
			name = "(" + hop.Kind + ")"
		}
		hops = append(hops, name)
	}
	chain := fmt.Sprintf("[%s] %s", p.RootKind, strings.Join(hops, " -> "))
	return truncateString(chain, 110)
}

// humanBytes renders a byte count with a binary unit suffix.
func humanBytes(n int64) string {
	neg := ""
	if n < 0 {
		neg = "-"
		n = -n
	}
	switch {
	case n >= 1<<30:
		return fmt.Sprintf("%s%.2f GiB", neg, float64(n)/(1<<30))
	case n >= 1<<20:
		return fmt.Sprintf("%s%.2f MiB", neg, float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%s%.2f KiB", neg, float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%s%d B", neg, n)
	}
}

// truncateString shortens a string to maxLen with an ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
