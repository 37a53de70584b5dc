package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/heapscope/internal/formatter"
	"github.com/heapscope/internal/repository"
	"github.com/heapscope/internal/service"
	"github.com/heapscope/internal/storage"
	"github.com/heapscope/pkg/config"
	"github.com/heapscope/pkg/model"
	"github.com/heapscope/pkg/telemetry"
	"github.com/heapscope/pkg/writer"
)

var (
	// Analyze command flags
	runUUID        string
	topN           int
	dominatorSizes bool
	persistResult  bool
	archiveResult  bool
)

// analyzeCmd represents the analyze command
var analyzeCmd = &cobra.Command{
	Use:   "analyze <snapshot>...",
	Short: "Analyze one or more heap snapshots",
	Long: `Analyze heap snapshot files and report likely memory leaks.

Snapshots may be plain or gzipped exports. With a single snapshot the
tool reports size ranking, shape duplication, reference fan-out, and
detached subtrees. With two or more snapshots it additionally tracks
per-object growth across the sequence and classifies the combined
evidence into leak findings.

Snapshot roles are inferred from file names: names containing
"baseline", "before", or "start" become the baseline; "final" or "end"
become the final snapshot; everything else is a target. Without a name
match, capture order decides: first is the baseline, the rest are
targets.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	binName := BinName()
	analyzeCmd.Example = `  # Compare two snapshots
  ` + binName + ` analyze before.heapsnapshot after.heapsnapshot

  # Exact retained sizes via the dominator pass
  ` + binName + ` analyze before.heapsnapshot after.heapsnapshot --dominator

  # Persist the result to the configured database
  ` + binName + ` analyze before.heapsnapshot after.heapsnapshot --persist`

	analyzeCmd.Flags().StringVar(&runUUID, "uuid", "", "Run UUID (auto-generated if empty)")
	analyzeCmd.Flags().IntVarP(&topN, "top", "n", 0, "Number of top objects to report (0 uses the configured default)")
	analyzeCmd.Flags().BoolVar(&dominatorSizes, "dominator", false, "Compute exact retained sizes with the dominator pass")
	analyzeCmd.Flags().BoolVar(&persistResult, "persist", false, "Save the result to the configured database")
	analyzeCmd.Flags().BoolVar(&archiveResult, "archive", false, "Upload the result artifact to object storage")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	log := GetLogger()
	conf := GetConfig()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	uuid := runUUID
	if uuid == "" {
		uuid = generateRunUUID()
	}

	if topN > 0 {
		conf.Analysis.TopN = topN
	}
	if dominatorSizes {
		conf.Analysis.DominatorSizes = true
	}

	if conf.Telemetry.Enabled {
		shutdown, err := telemetry.Init(ctx, telemetry.Options{
			Enabled:        true,
			ServiceName:    conf.Telemetry.ServiceName,
			ServiceVersion: Version,
			Endpoint:       conf.Telemetry.Endpoint,
			Protocol:       conf.Telemetry.Protocol,
			Insecure:       conf.Telemetry.Insecure,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		defer shutdown(context.Background())
	}

	store, cleanup, err := openStore(conf, persistResult)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}

	req, err := buildRequest(uuid, args)
	if err != nil {
		return err
	}

	log.Info("=== Heapscope ===")
	log.Info("Run UUID:  %s", uuid)
	for i, input := range req.Snapshots {
		log.Info("Snapshot:  %-8s %s", input.Role, args[i])
	}
	log.Info("")

	svc := service.New(&conf.Analysis, log, store)
	result, err := svc.AnalyzeSnapshots(ctx, req)
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}

	formatter.New().Format(result, log)

	runDir := conf.GetRunDir(uuid)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}

	resultPath := filepath.Join(runDir, "result.json")
	jw := writer.NewPrettyJSONWriter[*model.AnalysisResult]()
	if err := jw.WriteToFile(result, resultPath); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	log.Info("Result written to: %s", resultPath)

	reportPath := filepath.Join(runDir, "report.md")
	reportFile, err := os.Create(reportPath)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	if err := formatter.NewMarkdown().Write(result, reportFile); err != nil {
		reportFile.Close()
		return fmt.Errorf("failed to write report: %w", err)
	}
	reportFile.Close()
	log.Info("Report written to: %s", reportPath)

	if archiveResult {
		objStore, err := storage.New(&conf.Storage)
		if err != nil {
			return fmt.Errorf("failed to open storage: %w", err)
		}
		if err := storage.PutResult(ctx, objStore, result); err != nil {
			return fmt.Errorf("failed to archive result: %w", err)
		}
		log.Info("Result archived to: %s", objStore.GetURL(storage.ResultKey(uuid)))
	}

	return nil
}

// openStore opens the result database when persistence is requested.
func openStore(conf *config.Config, persist bool) (service.ResultStore, func(), error) {
	if !persist && !conf.Database.Enabled {
		return nil, nil, nil
	}

	db, err := repository.NewGormDB(&conf.Database, repository.Options{
		Tracing: conf.Telemetry.Enabled,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := repository.Migrate(db); err != nil {
		return nil, nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	repos := repository.NewRepositories(db)
	return repos.Result, func() { repos.Close() }, nil
}

// buildRequest reads the snapshot files and assigns roles.
func buildRequest(uuid string, paths []string) (*model.AnalysisRequest, error) {
	req := &model.AnalysisRequest{RunUUID: uuid}

	for i, path := range paths {
		data, err := writer.ReadFileMaybeGzip(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read snapshot %s: %w", path, err)
		}
		req.Snapshots = append(req.Snapshots, model.SnapshotInput{
			Role: inferRole(path, i, len(paths)),
			Data: data,
		})
	}

	return req, nil
}

// inferRole maps a snapshot file name to its role, falling back to
// capture order.
func inferRole(path string, index, total int) model.SnapshotRole {
	name := strings.ToLower(filepath.Base(path))
	switch {
	case strings.Contains(name, "baseline"), strings.Contains(name, "before"), strings.Contains(name, "start"):
		return model.RoleBaseline
	case strings.Contains(name, "final"), strings.Contains(name, "end"):
		return model.RoleFinal
	case strings.Contains(name, "target"), strings.Contains(name, "after"):
		return model.RoleTarget
	}

	if index == 0 {
		return model.RoleBaseline
	}
	if total > 2 && index == total-1 {
		return model.RoleFinal
	}
	return model.RoleTarget
}

func generateRunUUID() string {
	return fmt.Sprintf("run-%s", time.Now().UTC().Format("20060102-150405"))
}
