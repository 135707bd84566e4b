// Package cli implements the maerl command-line interface: running
// pipelines, listing runs, inspecting summaries, and serving the
// monitor API.
package cli

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Tom-Jenkins/maerl-wgs-pipelines/internal/logging"
)

var (
	flagDB        string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	logger *slog.Logger
)

// defaultDB returns the default database path, checking MAERL_DB first.
func defaultDB() string {
	if p := os.Getenv("MAERL_DB"); p != "" {
		return p
	}
	return filepath.Join(".", "maerl.db")
}

// NewRootCmd creates the root cobra command for the maerl CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "maerl",
		Short: "maerl — sample-parallel genomics pipeline engine",
		Long:  "maerl runs declarative sample-parallel pipelines: channels of (sample, files) tuples flowing through stages that shell out to bioinformatics tools.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flagDebug {
				flagLogLevel = "debug"
			}
			logger = logging.NewLogger(logging.ParseLevel(flagLogLevel), flagLogFormat)
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagDB, "db", defaultDB(), "Run database path (or MAERL_DB env)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newRunCmd(),
		newListCmd(),
		newStatusCmd(),
		newPipelinesCmd(),
		newServeCmd(),
	)

	return root
}
