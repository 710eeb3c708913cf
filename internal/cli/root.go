package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version information set via ldflags
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var (
	verbose    bool
	configFile string
	projectDir string
)

var rootCmd = &cobra.Command{
	Use:   "gatehouse",
	Short: "Tool-use interception and enforcement engine for AI coding assistants",
	Long: `Gatehouse sits between an AI coding assistant and the filesystem.

It receives tool-use events (file writes, edits, session end), runs the
configured validator hooks concurrently under strict deadlines, and decides
whether to allow, warn about, or block the operation. After allowed
post-operation events it can apply safe auto-fixes with backup and rollback.

Configure hooks in:
  - ~/.gatehouse/config.yaml (global)
  - .gatehouse/config.yaml (project-specific)`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("gatehouse %s\n", Version)
		fmt.Printf("  commit: %s\n", Commit)
		fmt.Printf("  built:  %s\n", Date)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Override config file path")
	rootCmd.PersistentFlags().StringVarP(&projectDir, "project", "p", "", "Override project directory")

	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
