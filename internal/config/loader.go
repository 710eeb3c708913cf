package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	configDir      = ".gatehouse"
	configFileName = "config.yaml"
)

// Loader handles loading and merging configuration files
type Loader struct {
	globalPath  string
	projectPath string
}

// NewLoader creates a configuration loader for the given project directory,
// defaulting to the working directory
func NewLoader(projectDir string) (*Loader, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	if projectDir == "" {
		projectDir, err = os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
	}

	return &Loader{
		globalPath:  filepath.Join(homeDir, configDir, configFileName),
		projectPath: filepath.Join(projectDir, configDir, configFileName),
	}, nil
}

// Load loads and merges configuration: defaults, then the global file, then
// the project file. A file that exists but does not parse is a hard error;
// configuration is the one place the engine fails closed.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	globalCfg, err := l.loadFile(l.globalPath)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load global config: %w", err)
	}
	if globalCfg != nil {
		cfg = mergeConfigs(cfg, globalCfg)
	}

	projectCfg, err := l.loadFile(l.projectPath)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load project config: %w", err)
	}
	if projectCfg != nil {
		cfg = mergeConfigs(cfg, projectCfg)
	}

	return cfg, nil
}

// LoadFromFile loads configuration from a specific file, merged over defaults
func (l *Loader) LoadFromFile(path string) (*Config, error) {
	cfg, err := l.loadFile(path)
	if err != nil {
		return nil, err
	}
	return mergeConfigs(DefaultConfig(), cfg), nil
}

func (l *Loader) loadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return &cfg, nil
}

// mergeConfigs merges two configurations, with override taking precedence
func mergeConfigs(base, override *Config) *Config {
	result := &Config{
		Version: coalesce(override.Version, base.Version),
		Settings: Settings{
			LogLevel:         coalesce(override.Settings.LogLevel, base.Settings.LogLevel),
			LogFile:          coalesce(override.Settings.LogFile, base.Settings.LogFile),
			HookTimeoutMs:    coalesceInt(override.Settings.HookTimeoutMs, base.Settings.HookTimeoutMs),
			GlobalDeadlineMs: coalesceInt(override.Settings.GlobalDeadlineMs, base.Settings.GlobalDeadlineMs),
			MaxConcurrency:   coalesceInt(override.Settings.MaxConcurrency, base.Settings.MaxConcurrency),
			AutoFix:          coalesceBool(override.Settings.AutoFix, base.Settings.AutoFix),
			DryRun:           coalesceBool(override.Settings.DryRun, base.Settings.DryRun),
			RetentionDays:    coalesceInt(override.Settings.RetentionDays, base.Settings.RetentionDays),
			MetricsPath:      coalesce(override.Settings.MetricsPath, base.Settings.MetricsPath),
			SnapshotPath:     coalesce(override.Settings.SnapshotPath, base.Settings.SnapshotPath),
			BackupDir:        coalesce(override.Settings.BackupDir, base.Settings.BackupDir),
		},
		Enforcement: Enforcement{
			Default:    coalesce(override.Enforcement.Default, base.Enforcement.Default),
			Categories: mergeStringMap(base.Enforcement.Categories, override.Enforcement.Categories),
		},
		Graduation: Graduation{
			ViolationThreshold:  coalesceFloat(override.Graduation.ViolationThreshold, base.Graduation.ViolationThreshold),
			ErrorSpikeThreshold: coalesceFloat(override.Graduation.ErrorSpikeThreshold, base.Graduation.ErrorSpikeThreshold),
			RequiredWindows:     coalesceInt(override.Graduation.RequiredWindows, base.Graduation.RequiredWindows),
			WindowDays:          coalesceInt(override.Graduation.WindowDays, base.Graduation.WindowDays),
		},
		Hooks: mergeHooks(base.Hooks, override.Hooks),
	}

	if len(override.Settings.EnabledFamilies) > 0 {
		result.Settings.EnabledFamilies = override.Settings.EnabledFamilies
	} else {
		result.Settings.EnabledFamilies = base.Settings.EnabledFamilies
	}

	return result
}

// mergeHooks combines hooks from base and override. Hooks with the same
// name are replaced in place; new hooks are appended after the base set,
// so the combined order is deterministic.
func mergeHooks(base, override []HookConfig) []HookConfig {
	if len(override) == 0 {
		return base
	}
	if len(base) == 0 {
		return override
	}

	hookMap := make(map[string]HookConfig)
	order := make([]string, 0, len(base)+len(override))
	for _, h := range base {
		if _, seen := hookMap[h.Name]; !seen {
			order = append(order, h.Name)
		}
		hookMap[h.Name] = h
	}
	for _, h := range override {
		if _, seen := hookMap[h.Name]; !seen {
			order = append(order, h.Name)
		}
		hookMap[h.Name] = h
	}

	result := make([]HookConfig, 0, len(hookMap))
	for _, name := range order {
		result = append(result, hookMap[name])
	}
	return result
}

func mergeStringMap(base, override map[string]string) map[string]string {
	if len(base) == 0 && len(override) == 0 {
		return nil
	}
	result := make(map[string]string, len(base)+len(override))
	for k, v := range base {
		result[k] = v
	}
	for k, v := range override {
		result[k] = v
	}
	return result
}

func coalesce(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func coalesceInt(a, b int) int {
	if a != 0 {
		return a
	}
	return b
}

func coalesceBool(a, b *bool) *bool {
	if a != nil {
		return a
	}
	return b
}

func coalesceFloat(a, b float64) float64 {
	if a != 0 {
		return a
	}
	return b
}

// GlobalConfigPath returns the path to the global config file
func (l *Loader) GlobalConfigPath() string {
	return l.globalPath
}

// ProjectConfigPath returns the path to the project config file
func (l *Loader) ProjectConfigPath() string {
	return l.projectPath
}

// Exists checks if a config file exists at the given path
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
