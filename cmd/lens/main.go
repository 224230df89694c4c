// Package main is the lens CLI: it runs, resumes and inspects recursive
// analysis sessions.
package main

import (
	"fmt"
	"os"

	"laserlens/internal/config"
	"laserlens/internal/logging"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose    bool
	workspace  string
	configPath string

	// Loaded in PersistentPreRunE
	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "lens",
	Short: "laserlens - recursive prompting agent",
	Long: `laserlens repeatedly feeds a model its own previous thought, streams each
reply, runs the [[COMMAND: ...]] directives embedded in it inside a sandbox
directory, and persists every turn so a run can be paused, resumed or
inspected from another terminal.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func loadConfig() error {
	ws := workspace
	if ws == "" {
		var err error
		if ws, err = os.Getwd(); err != nil {
			return fmt.Errorf("failed to resolve workspace: %w", err)
		}
	}
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath(ws)
	}

	loaded, err := config.Load(path)
	if err != nil {
		return err
	}
	loaded.Resolve(ws)
	if verbose {
		loaded.Logging.Level = "debug"
	}
	if err := logging.Initialize(logging.Options{
		Level:      loaded.Logging.Level,
		Format:     loaded.Logging.Format,
		File:       loaded.Logging.File,
		Categories: loaded.Logging.Categories,
	}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	cfg = loaded
	logging.BootDebug("config loaded from %s (workspace %s)", path, ws)
	return nil
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current directory)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: <workspace>/.lens/config.yaml)")

	rootCmd.AddCommand(
		runCmd,
		resumeCmd,
		statusCmd,
		modelsCmd,
		commandsCmd,
		historyCmd,
		exportCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
