package formatter

import (
	"fmt"
	"io"
	"strings"

	"github.com/heapscope/pkg/model"
)

// MarkdownFormatter renders an analysis result as a markdown document.
type MarkdownFormatter struct {
	// TopRanks limits the size-ranking rows per snapshot table.
	TopRanks int
}

// NewMarkdown creates a MarkdownFormatter with default limits.
func NewMarkdown() *MarkdownFormatter {
	return &MarkdownFormatter{TopRanks: 20}
}

// Write renders the result to the writer.
func (f *MarkdownFormatter) Write(res *model.AnalysisResult, w io.Writer) error {
	if res == nil {
		return fmt.Errorf("result is nil")
	}

	var b strings.Builder

	fmt.Fprintf(&b, "# Heap Analysis %s\n\n", res.RunUUID)
	fmt.Fprintf(&b, "Analyzed at %s.\n\n", res.AnalyzedAt.Format("2006-01-02 15:04:05 UTC"))

	b.WriteString("## Snapshots\n\n")
	b.WriteString("| Role | Nodes | Edges | Self Size | Size Mode |\n")
	b.WriteString("|---|---:|---:|---:|---|\n")
	for _, s := range res.Snapshots {
		fmt.Fprintf(&b, "| %s | %d | %d | %s | %s |\n",
			s.Role, s.NodeCount, s.EdgeCount, humanBytes(s.TotalSelfSize), s.SizeMode)
	}
	b.WriteString("\n")

	f.writeFindings(&b, res)
	f.writeGrowth(&b, res)
	f.writeReports(&b, res)
	f.writeDiagnostics(&b, res)

	_, err := io.WriteString(w, b.String())
	return err
}

func (f *MarkdownFormatter) writeFindings(b *strings.Builder, res *model.AnalysisResult) {
	b.WriteString("## Leak Findings\n\n")
	if len(res.Findings) == 0 {
		b.WriteString("No findings.\n\n")
		return
	}

	for i, finding := range res.Findings {
		fmt.Fprintf(b, "### %d. %s (%s, confidence %d)\n\n",
			i+1, finding.Category, finding.Severity, finding.Confidence)
		fmt.Fprintf(b, "%s\n\n", finding.Description)
		if finding.Remediation != "" {
			fmt.Fprintf(b, "**Remediation:** %s\n\n", finding.Remediation)
		}
		if len(finding.NodeIDs) > 0 {
			fmt.Fprintf(b, "Implicated node ids: %s\n\n", joinIDs(finding.NodeIDs, 10))
		}
		if finding.Path != nil {
			fmt.Fprintf(b, "Retainer path: `%s`\n\n", formatPath(finding.Path))
		}
	}
}

func (f *MarkdownFormatter) writeGrowth(b *strings.Builder, res *model.AnalysisResult) {
	if res.Growth == nil {
		return
	}

	b.WriteString("## Growth\n\n")
	if !res.Growth.EnoughData {
		fmt.Fprintf(b, "Insufficient snapshots: %d captured, at least 2 required.\n\n",
			res.Growth.SnapshotCount)
		return
	}

	b.WriteString("| Pattern | Growth | Object | Kind |\n")
	b.WriteString("|---|---:|---|---|\n")
	for i, rec := range res.Growth.Records {
		if i >= f.TopRanks {
			break
		}
		fmt.Fprintf(b, "| %s | %s | %s | %s |\n",
			rec.Pattern, humanBytes(rec.TotalGrowth), escapeCell(rec.Name), rec.Kind)
	}
	b.WriteString("\n")
}

func (f *MarkdownFormatter) writeReports(b *strings.Builder, res *model.AnalysisResult) {
	for _, rep := range res.Reports {
		fmt.Fprintf(b, "## Top Objects (%s)\n\n", rep.Role)
		b.WriteString("| Rank | Tier | Retained | Share | Object |\n")
		b.WriteString("|---:|---|---:|---:|---|\n")
		count := min(f.TopRanks, len(rep.Ranking))
		for i := 0; i < count; i++ {
			r := rep.Ranking[i]
			fmt.Fprintf(b, "| %d | %s | %s | %.2f%% | %s |\n",
				r.Rank, r.Significance, humanBytes(r.RetainedSize), r.SizePercentage, escapeCell(r.Name))
		}
		if len(rep.Detached) > 0 {
			fmt.Fprintf(b, "\nDetached objects: %d\n", len(rep.Detached))
		}
		b.WriteString("\n")
	}
}

func (f *MarkdownFormatter) writeDiagnostics(b *strings.Builder, res *model.AnalysisResult) {
	if len(res.Diagnostics) == 0 {
		return
	}

	b.WriteString("## Diagnostics\n\n")
	for _, d := range res.Diagnostics {
		fmt.Fprintf(b, "- `%s` (%s): %s\n", d.Code, d.Source, d.Message)
	}
	b.WriteString("\n")
}

// joinIDs renders up to limit node ids.
func joinIDs(ids []uint64, limit int) string {
	parts := make([]string, 0, min(limit, len(ids)))
	for i, id := range ids {
		if i >= limit {
			parts = append(parts, fmt.Sprintf("and %d more", len(ids)-limit))
			break
		}
		parts = append(parts, fmt.Sprintf("%d", id))
	}
	return strings.Join(parts, ", ")
}

// escapeCell keeps pipe characters from breaking table cells.
func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}
