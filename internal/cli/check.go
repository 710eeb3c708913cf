package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/gatehouse-dev/gatehouse/internal/config"
	"github.com/gatehouse-dev/gatehouse/internal/enforce"
	"github.com/gatehouse-dev/gatehouse/internal/engine"
	"github.com/gatehouse-dev/gatehouse/internal/event"
	"github.com/gatehouse-dev/gatehouse/internal/hook"
	"github.com/gatehouse-dev/gatehouse/internal/logger"
	"github.com/gatehouse-dev/gatehouse/internal/metrics"
	"github.com/gatehouse-dev/gatehouse/internal/registry"
)

var (
	checkEvent  string
	checkDryRun bool
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check a tool-use event from the upstream assistant",
	Long: `Check a tool-use event against the configured hooks.

Reads the hook payload as JSON from stdin (either the flat legacy
{filePath, content} shape or the nested shape with a tool_input container),
runs all matching hooks concurrently, and writes the decision as JSON to
stdout.

Exit code 0 means the operation may proceed (warnings, if any, go to
stderr); exit code 2 means it is blocked, with a remediation message on
stderr.

Example:
  echo '{"tool_name": "Write", "tool_input": {"file_path": "a.go"}}' | gatehouse check --event PreToolUse`,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringVarP(&checkEvent, "event", "e", "", "Lifecycle phase (PreToolUse, PostToolUse, Stop); payload hook_event_name wins")
	checkCmd.Flags().BoolVar(&checkDryRun, "dry-run", false, "Report would-be fixes without writing anything")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	phaseHint := event.Phase(checkEvent)
	if checkEvent != "" && !phaseHint.Valid() {
		return fmt.Errorf("invalid event type: %s", checkEvent)
	}

	// Configuration is the one fail-closed path: refuse to run rather
	// than enforce nothing.
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if checkDryRun {
		t := true
		cfg.Settings.DryRun = &t
	}

	initLogging(cfg)

	// Empty or unreadable input is an input defect, not a config fault:
	// the dispatcher fails it open like any other un-normalizable payload.
	raw, err := io.ReadAll(os.Stdin)
	if err != nil {
		logger.Warn().Err(err).Msg("Could not read hook input, failing open")
		raw = nil
	}

	reg, err := registry.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to build hook registry: %w", err)
	}

	snap, err := enforce.Load(snapshotPath(cfg), defaultLevels(cfg))
	if err != nil {
		return err
	}

	// Metrics are best-effort: a store failure degrades to no recording,
	// never to a decision failure.
	var recorder *metrics.Recorder
	store, err := metrics.NewSQLiteStore(cfg.Settings.MetricsPath)
	if err != nil {
		logger.Warn().Err(err).Msg("Metrics store unavailable, continuing without recording")
	} else {
		recorder = metrics.NewRecorder(store)
		defer func() { _ = recorder.Close() }()
	}

	eng, err := engine.New(cfg, reg, snap, recorder)
	if err != nil {
		return err
	}

	outcome := eng.Dispatch(context.Background(), raw, phaseHint)

	// Session end doubles as the out-of-band graduation point.
	if phaseOf(raw, phaseHint) == event.PhaseStop && store != nil {
		graduate(cfg, store, snap)
	}

	outputJSON, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("failed to marshal outcome: %w", err)
	}
	fmt.Println(string(outputJSON))

	for _, msg := range outcome.Messages {
		fmt.Fprintln(os.Stderr, msg)
	}
	if outcome.Verdict == hook.VerdictBlock {
		fmt.Fprintln(os.Stderr, "blocked: fix the issues above and retry the operation")
		if recorder != nil {
			_ = recorder.Close()
		}
		os.Exit(outcome.ExitCode())
	}

	return nil
}

// phaseOf re-derives the phase the dispatcher saw, for the graduation
// trigger; payload beats hint
func phaseOf(raw []byte, hint event.Phase) event.Phase {
	var probe struct {
		HookEventName string `json:"hook_event_name"`
	}
	if err := json.Unmarshal(raw, &probe); err == nil {
		if p := event.Phase(probe.HookEventName); p.Valid() {
			return p
		}
	}
	return hint
}

// graduate runs one enforcement evaluation cycle and persists the new
// snapshot. Best-effort: failures are logged, never surfaced.
func graduate(cfg *config.Config, store metrics.Store, snap *enforce.Snapshot) {
	ctl := enforce.NewController(store, graduationConfig(cfg))
	next, transitions := ctl.Evaluate(snap, time.Now())
	for _, tr := range transitions {
		logger.Info().
			Str("category", tr.Category).
			Str("from", string(tr.From)).
			Str("to", string(tr.To)).
			Str("reason", tr.Reason).
			Msg("Enforcement level transition")
	}
	if err := enforce.Save(snapshotPath(cfg), next); err != nil {
		logger.Warn().Err(err).Msg("Failed to persist enforcement snapshot")
	}
}
