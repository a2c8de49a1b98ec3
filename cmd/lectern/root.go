package main

import (
	"github.com/spf13/cobra"

	"github.com/lectern-dev/lectern/internal/api"
	"github.com/lectern-dev/lectern/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "lectern",
	Short: "Personal digital library with AI-powered book analysis",
	Long: `Lectern is a personal digital library server. It stores uploaded books,
extracts text and page counts from PDFs without heavyweight parsing, and
generates cached AI analyses (summary, key points, quiz questions, mind map)
for each book.

Core pieces:
  - Book catalog backed by DefraDB with file blobs under ~/.lectern
  - Lightweight PDF text and page-count scanner
  - Content-addressed AI analysis cache with deterministic fallbacks
  - LLM call history for cost and usage tracking`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.lectern/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "lectern home directory (default: ~/.lectern)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)

	// Set output format before any command runs
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		api.SetOutputFormat(outputFormat)
	}

	rootCmd.AddCommand(versionCmd)
}
