package cli

import (
	"fmt"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/gatehouse-dev/gatehouse/internal/enforce"
	"github.com/gatehouse-dev/gatehouse/internal/metrics"
)

var (
	statusGraduate bool
	statusPrune    bool
	statusOverride []string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show enforcement levels and recent hook activity",
	Long: `Show the current per-category enforcement levels together with the
trailing violation and error rates from the metrics log.

--graduate runs one out-of-band graduation cycle and persists the result.
--prune deletes metrics records past the retention window.
--override category=LEVEL applies a manual de-escalation (upward moves are
refused; they must be earned through graduation).`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusGraduate, "graduate", false, "Run one graduation cycle now")
	statusCmd.Flags().BoolVar(&statusPrune, "prune", false, "Prune metrics past the retention window")
	statusCmd.Flags().StringArrayVar(&statusOverride, "override", nil, "Manually set category=LEVEL (downward only)")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	initLogging(cfg)

	snap, err := enforce.Load(snapshotPath(cfg), defaultLevels(cfg))
	if err != nil {
		return err
	}

	store, err := metrics.NewSQLiteStore(cfg.Settings.MetricsPath)
	if err != nil {
		return fmt.Errorf("failed to open metrics store: %w", err)
	}
	defer func() { _ = store.Close() }()

	for _, ov := range statusOverride {
		category, level, ok := splitOverride(ov)
		if !ok {
			return fmt.Errorf("invalid override %q, expected category=LEVEL", ov)
		}
		next, err := enforce.Override(snap, category, level)
		if err != nil {
			return err
		}
		if err := enforce.Save(snapshotPath(cfg), next); err != nil {
			return err
		}
		snap = next
		fmt.Printf("overrode %s to %s\n", category, level)
	}

	if statusGraduate {
		ctl := enforce.NewController(store, graduationConfig(cfg))
		next, transitions := ctl.Evaluate(snap, time.Now())
		if err := enforce.Save(snapshotPath(cfg), next); err != nil {
			return err
		}
		snap = next
		if len(transitions) == 0 {
			fmt.Println("graduation: no transitions")
		}
		for _, tr := range transitions {
			fmt.Printf("graduation: %s %s -> %s (%s)\n", tr.Category, tr.From, tr.To, tr.Reason)
		}
	}

	if statusPrune {
		retention := time.Duration(cfg.Settings.RetentionDays) * 24 * time.Hour
		pruned, err := store.Prune(retention)
		if err != nil {
			return err
		}
		fmt.Printf("pruned %s past %d day retention\n", humanize.Comma(pruned), cfg.Settings.RetentionDays)
	}

	window := graduationConfig(cfg).Window

	categories := make([]string, 0, len(snap.Levels))
	for cat := range snap.Levels {
		categories = append(categories, cat)
	}
	sort.Strings(categories)

	fmt.Println("enforcement levels:")
	for _, cat := range categories {
		vioRate, err := store.ViolationRate(cat, window)
		if err != nil {
			return err
		}
		errRate, err := store.ErrorRate(cat, window)
		if err != nil {
			return err
		}
		fmt.Printf("  %-12s %-8s violations %.1f%%  errors %.1f%%  streak %d/%d\n",
			cat, snap.Levels[cat], vioRate*100, errRate*100,
			snap.CleanStreak[cat], graduationConfig(cfg).RequiredWindows)
	}

	count, err := store.CountSince(window)
	if err != nil {
		return err
	}
	last, err := store.LastActivity()
	if err != nil {
		return err
	}
	if last.IsZero() {
		fmt.Println("activity: none recorded")
	} else {
		fmt.Printf("activity: %s executions in window, last %s\n",
			humanize.Comma(count), humanize.Time(last))
	}

	return nil
}

func splitOverride(s string) (string, enforce.Level, bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == '=' {
			return s[:i], enforce.Level(s[i+1:]), i > 0 && i < len(s)-1
		}
	}
	return "", "", false
}
