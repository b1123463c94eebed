package main

import (
	"github.com/spf13/cobra"

	"github.com/vaginadesolator/tachiyomi/version"
)

var (
	cfgFile    string
	libraryDir string
)

var rootCmd = &cobra.Command{
	Use:   "tachiyomi",
	Short: "Background chapter downloader with a durable queue",
	Long: `Tachiyomi downloads manga chapters in the background, page by page,
and commits each chapter atomically once every page is staged.

The downloader provides:
  - A persistent queue that survives restarts
  - Per-source sequential workers, up to 5 sources in parallel
  - Retry with exponential backoff on failed pages
  - Crash- and pause-safe resume from partial files`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.tachiyomi/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&libraryDir, "library", "", "library directory (overrides config)",
	)

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(fetchCmd)
}
