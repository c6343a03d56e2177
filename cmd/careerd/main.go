// Careerd serves career guidance over HTTP.
//
// It stores a user's CV and interests as embedded documents, retrieves
// them as context and asks a generation model for a recommendation. When
// no model is configured, rule-based fallbacks answer instead.
//
// Usage:
//
//	# Start the server with defaults
//	careerd
//
//	# Use a config file and override a value from the environment
//	CAREERD_SERVER_HTTP_PORT=9000 careerd serve --config ~/.config/careerd/config.yaml
//
//	# Inspect a stored profile without starting the server
//	careerd analyze --user alice
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/careerd/internal/config"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// configPath is the --config flag shared by every command.
var configPath string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "careerd",
		Short: "Career guidance service",
		Long: `careerd stores CVs and interests per user and recommends a career path
from the retrieved context. Running it without a subcommand starts the server.`,
		Version:      version,
		SilenceUsage: true,
		RunE:         runServe,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file (default ~/.config/careerd/config.yaml)")

	root.AddCommand(newServeCmd())
	root.AddCommand(newVersionCmd())
	root.AddCommand(newAnalyzeCmd())
	root.AddCommand(newRecommendCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			printVersion(cmd.OutOrStdout())
		},
	}
}

// printVersion prints version information
func printVersion(w io.Writer) {
	fmt.Fprintf(w, "careerd by Fyrsmith Labs\n")
	fmt.Fprintf(w, "Version:    %s\n", version)
	fmt.Fprintf(w, "Commit:     %s\n", gitCommit)
	fmt.Fprintf(w, "Build Date: %s\n", buildDate)
}

// loadConfig reads the file named by --config when set, and the
// environment only otherwise.
func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.Load()
	}
	return config.LoadWithFile(configPath)
}
