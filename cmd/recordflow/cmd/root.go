package cmd

import (
	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"

	configPath string
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "recordflow",
	Short: "High-throughput configuration/reference data migration engine",
	Long: `recordflow moves configuration and reference data between two
instances of a bulk-API record-management service while preserving
record identity and relationships.

Commands:
  plan             build and print an execution plan for a schema, no I/O
  validate-config  load and validate a run configuration, then print it
  export           scan a source's entities into a portable archive
  import           read an archive and write it into a target, tiered

Examples:
  recordflow plan --schema schema.xml
  recordflow validate-config --config recordflow.yaml
  recordflow export --config recordflow.yaml --schema schema.xml
  recordflow import --config recordflow.yaml
`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion records build-time version metadata for the version
// command, set from -ldflags at build time.
func SetVersion(v, bt, gc string) {
	version, buildTime, gitCommit = v, bt, gc
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a recordflow run configuration file")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "emit JSON-lines progress events instead of a human-readable log")

	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(validateConfigCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("recordflow version %s (build %s, commit %s)\n", version, buildTime, gitCommit)
	},
}
