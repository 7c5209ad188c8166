// Package cli implements the ictlog command tree.
package cli

import (
	"github.com/spf13/cobra"
)

var version = "dev"

func SetVersion(v string) {
	version = v
}

var rootCmd = &cobra.Command{
	Use:   "ictlog",
	Short: "In-circuit board test log viewer and archive",
	Long: `ictlog parses in-circuit tester board logs into structured results and
serves them through a local web API for air-gapped factory floors.

Logs can be parsed ad hoc on the command line, bulk-imported into the
DuckDB archive, or ingested automatically by watching a tester output
directory while the server runs.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(importCmd)
}
