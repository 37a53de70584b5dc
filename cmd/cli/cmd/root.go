package cmd

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/heapscope/pkg/config"
	"github.com/heapscope/pkg/utils"
)

var (
	// Global flags
	verbose    bool
	configPath string

	cfg    *config.Config
	logger utils.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "heapscope",
	Short: "A heap snapshot memory-leak analysis tool",
	Long: `heapscope analyzes heap snapshots to find memory leaks.

It decodes snapshot exports into object graphs, ranks retained sizes,
detects duplicated object shapes and detached subtrees, tracks growth
across a snapshot sequence, and classifies the evidence into scored
leak findings with retainer paths.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}

		logLevel := utils.ParseLogLevel(cfg.Log.Level)
		if verbose {
			logLevel = utils.LevelDebug
		}
		logger = utils.NewDefaultLogger(logLevel, os.Stdout)
		utils.SetGlobalLogger(logger)

		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (default searches ., ./configs, /etc/heapscope)")

	binName := BinName()
	rootCmd.Example = `  # Compare a baseline and a target snapshot
  ` + binName + ` analyze before.heapsnapshot after.heapsnapshot

  # Analyze a longer capture session with explicit roles
  ` + binName + ` analyze baseline.heapsnapshot target.heapsnapshot final.heapsnapshot.gz

  # Persist the result and archive it to object storage
  ` + binName + ` analyze before.heapsnapshot after.heapsnapshot --persist --archive`
}

// GetLogger returns the configured logger.
func GetLogger() utils.Logger {
	return logger
}

// GetConfig returns the loaded configuration.
func GetConfig() *config.Config {
	return cfg
}

// BinName returns the base name of the current executable.
func BinName() string {
	return filepath.Base(os.Args[0])
}
