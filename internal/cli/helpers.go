package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gatehouse-dev/gatehouse/internal/config"
	"github.com/gatehouse-dev/gatehouse/internal/enforce"
	"github.com/gatehouse-dev/gatehouse/internal/logger"
)

// loadConfig resolves configuration from the --config override or the
// merged global/project files
func loadConfig() (*config.Config, error) {
	loader, err := config.NewLoader(projectDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create config loader: %w", err)
	}
	if configFile != "" {
		cfg, err := loader.LoadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", configFile, err)
		}
		return cfg, nil
	}
	return loader.Load()
}

// initLogging wires zerolog per config; hook invocations default to quiet
// so stderr stays clean for decision messages
func initLogging(cfg *config.Config) {
	switch {
	case verbose:
		_ = logger.Init("debug", cfg.Settings.LogFile)
	case cfg.Settings.LogLevel != "":
		_ = logger.Init(cfg.Settings.LogLevel, cfg.Settings.LogFile)
	default:
		logger.InitQuiet()
	}
}

// defaultLevels converts configured enforcement defaults into the seed
// levels for a fresh snapshot
func defaultLevels(cfg *config.Config) map[string]enforce.Level {
	levels := make(map[string]enforce.Level)
	fallback := enforce.Level(cfg.Enforcement.Default)
	if !fallback.Valid() {
		fallback = enforce.LevelFull
	}
	seen := make(map[string]bool)
	for _, h := range cfg.Hooks {
		cat := h.Category
		if cat == "" {
			cat = h.Family
		}
		if cat == "" || seen[cat] {
			continue
		}
		seen[cat] = true
		levels[cat] = fallback
	}
	for cat, lvl := range cfg.Enforcement.Categories {
		if l := enforce.Level(lvl); l.Valid() {
			levels[cat] = l
		}
	}
	return levels
}

// graduationConfig maps the config block onto controller tuning
func graduationConfig(cfg *config.Config) enforce.GraduationConfig {
	g := enforce.DefaultGraduation()
	if cfg.Graduation.ViolationThreshold > 0 {
		g.ViolationThreshold = cfg.Graduation.ViolationThreshold
	}
	if cfg.Graduation.ErrorSpikeThreshold > 0 {
		g.ErrorSpikeThreshold = cfg.Graduation.ErrorSpikeThreshold
	}
	if cfg.Graduation.RequiredWindows > 0 {
		g.RequiredWindows = cfg.Graduation.RequiredWindows
	}
	if cfg.Graduation.WindowDays > 0 {
		g.Window = time.Duration(cfg.Graduation.WindowDays) * 24 * time.Hour
	}
	return g
}

// snapshotPath resolves the enforcement snapshot location
func snapshotPath(cfg *config.Config) string {
	if cfg.Settings.SnapshotPath != "" {
		return cfg.Settings.SnapshotPath
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".gatehouse", "enforcement.yaml")
	}
	return filepath.Join(homeDir, ".gatehouse", "enforcement.yaml")
}
