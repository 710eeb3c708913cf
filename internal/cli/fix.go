package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/gatehouse-dev/gatehouse/internal/enforce"
	"github.com/gatehouse-dev/gatehouse/internal/event"
	"github.com/gatehouse-dev/gatehouse/internal/fixer"
	"github.com/gatehouse-dev/gatehouse/internal/registry"
)

var fixDryRun bool

var fixCmd = &cobra.Command{
	Use:   "fix [flags] <file>",
	Short: "Run fixable hooks directly against a file",
	Long: `Run the fixable hooks' transforms against a file on disk.

Each applied fix writes a backup first; --dry-run reports the would-be
changes without touching the file or writing a backup.`,
	Args: cobra.ExactArgs(1),
	RunE: runFix,
}

func init() {
	fixCmd.Flags().BoolVar(&fixDryRun, "dry-run", false, "Report would-be changes without writing")
	rootCmd.AddCommand(fixCmd)
}

func runFix(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	initLogging(cfg)

	path := args[0]
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	reg, err := registry.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to build hook registry: %w", err)
	}
	snap, err := enforce.Load(snapshotPath(cfg), defaultLevels(cfg))
	if err != nil {
		return err
	}

	// A direct fix is a synthetic post-operation event on the file.
	ev := &event.ToolUseEvent{
		Phase:     event.PhasePostToolUse,
		ToolName:  "Write",
		FilePath:  path,
		Content:   string(content),
		Timestamp: time.Now(),
	}

	fx, err := fixer.New(cfg.Settings.BackupDir, fixDryRun || cfg.Settings.DryRunEnabled())
	if err != nil {
		return err
	}

	results := fx.Apply(ev, reg.Select(ev, snap))
	if len(results) == 0 {
		fmt.Println("nothing to fix")
		return nil
	}

	out, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal fix results: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
