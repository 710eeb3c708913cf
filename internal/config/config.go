package config

// Config is the complete gatehouse configuration
type Config struct {
	Version     string       `yaml:"version"`
	Settings    Settings     `yaml:"settings"`
	Enforcement Enforcement  `yaml:"enforcement"`
	Graduation  Graduation   `yaml:"graduation"`
	Hooks       []HookConfig `yaml:"hooks,omitempty"`
}

// Settings contains global engine settings
type Settings struct {
	LogLevel         string   `yaml:"log_level"`
	LogFile          string   `yaml:"log_file,omitempty"`
	HookTimeoutMs    int      `yaml:"hook_timeout_ms"`
	GlobalDeadlineMs int      `yaml:"global_deadline_ms"`
	MaxConcurrency   int      `yaml:"max_concurrency"`
	EnabledFamilies  []string `yaml:"enabled_families,omitempty"`
	AutoFix          *bool    `yaml:"auto_fix,omitempty"`
	DryRun           *bool    `yaml:"dry_run,omitempty"`
	RetentionDays    int      `yaml:"retention_days"`
	MetricsPath      string   `yaml:"metrics_path,omitempty"`
	SnapshotPath     string   `yaml:"snapshot_path,omitempty"`
	BackupDir        string   `yaml:"backup_dir,omitempty"`
}

// AutoFixEnabled reports whether post-operation auto-remediation is on.
// Unset means enabled.
func (s Settings) AutoFixEnabled() bool {
	return s.AutoFix == nil || *s.AutoFix
}

// DryRunEnabled reports whether fixes only report diffs. Unset means off.
func (s Settings) DryRunEnabled() bool {
	return s.DryRun != nil && *s.DryRun
}

// Enforcement configures per-category level defaults used when the
// persisted snapshot has no record of a category
type Enforcement struct {
	Default    string            `yaml:"default"`
	Categories map[string]string `yaml:"categories,omitempty"`
}

// Graduation tunes the enforcement level controller
type Graduation struct {
	ViolationThreshold  float64 `yaml:"violation_threshold"`
	ErrorSpikeThreshold float64 `yaml:"error_spike_threshold"`
	RequiredWindows     int     `yaml:"required_windows"`
	WindowDays          int     `yaml:"window_days"`
}

// HookConfig declares one hook: its registration metadata plus the
// pattern rules its validator runs
type HookConfig struct {
	Name      string   `yaml:"name"`
	Family    string   `yaml:"family"`
	Category  string   `yaml:"category"`
	Priority  string   `yaml:"priority,omitempty"`
	Phases    []string `yaml:"phases,omitempty"`
	Decision  string   `yaml:"decision"`
	TimeoutMs int      `yaml:"timeout_ms,omitempty"`
	Fixable   bool     `yaml:"fixable,omitempty"`
	Match     Match    `yaml:"match,omitempty"`
	Patterns  Patterns `yaml:"patterns,omitempty"`
	Fix       *FixRule `yaml:"fix,omitempty"`
}

// Match restricts which events a hook inspects
type Match struct {
	Tools string `yaml:"tools,omitempty"`
	Files string `yaml:"files,omitempty"`
}

// Patterns holds the rules a pattern validator checks
type Patterns struct {
	Path    []PatternMatch `yaml:"path,omitempty"`
	Content []PatternMatch `yaml:"content,omitempty"`
}

// PatternMatch is one regex rule with its user-facing message. Message may
// reference {file} (the matched file's base name) and {canonical} (the base
// name rewritten through the Canonical template).
type PatternMatch struct {
	Pattern   string `yaml:"pattern"`
	Message   string `yaml:"message,omitempty"`
	Canonical string `yaml:"canonical,omitempty"`
}

// FixRule is the transform a fixable hook applies to file content
type FixRule struct {
	Pattern string `yaml:"pattern"`
	Replace string `yaml:"replace"`
}

// DefaultConfig returns the stock configuration, including the built-in
// hook set, so the engine is usable with no config files present
func DefaultConfig() *Config {
	return &Config{
		Version: "1",
		Settings: Settings{
			LogLevel:         "info",
			HookTimeoutMs:    1000,
			GlobalDeadlineMs: 5000,
			MaxConcurrency:   8,
			RetentionDays:    30,
		},
		Enforcement: Enforcement{
			Default: "FULL",
		},
		Graduation: Graduation{
			ViolationThreshold:  0.05,
			ErrorSpikeThreshold: 0.25,
			RequiredWindows:     3,
			WindowDays:          1,
		},
		Hooks: defaultHooks(),
	}
}

// defaultHooks is the built-in hook set. The rules here are ordinary
// config: a project config can replace or disable any of them by name.
func defaultHooks() []HookConfig {
	return []HookConfig{
		{
			Name:     "no-variant-suffix",
			Family:   "naming",
			Category: "naming",
			Priority: "high",
			Phases:   []string{"PreToolUse", "PostToolUse"},
			Decision: "block",
			Match: Match{
				Tools: "^(Write|Edit)$",
			},
			Patterns: Patterns{
				Path: []PatternMatch{
					{
						Pattern:   `^(.+)_(?:improved|enhanced|fixed|final|new|v\d+)\.(\w+)$`,
						Canonical: "$1.$2",
						Message:   "{file} duplicates an existing module under a variant suffix; edit {canonical} instead",
					},
				},
			},
		},
		{
			Name:     "no-debug-output",
			Family:   "debug",
			Category: "hygiene",
			Priority: "normal",
			Phases:   []string{"PreToolUse", "PostToolUse"},
			Decision: "warn",
			Fixable:  true,
			Match: Match{
				Tools: "^(Write|Edit)$",
				Files: `\.(go|js|jsx|ts|tsx|py)$`,
			},
			Patterns: Patterns{
				Content: []PatternMatch{
					{
						Pattern: `(?m)^\s*(?:console\.(?:log|debug)|fmt\.Println|print)\(`,
						Message: "debug output call left in {file}",
					},
				},
			},
			Fix: &FixRule{
				Pattern: `(?m)^[ \t]*(?:console\.(?:log|debug)|fmt\.Println|print)\(.*\);?[ \t]*\r?\n?`,
				Replace: "",
			},
		},
		{
			Name:     "no-hardcoded-secrets",
			Family:   "secrets",
			Category: "security",
			Priority: "critical",
			Phases:   []string{"PreToolUse", "PostToolUse"},
			Decision: "block",
			Match: Match{
				Tools: "^(Write|Edit)$",
			},
			Patterns: Patterns{
				Content: []PatternMatch{
					{
						Pattern: `(?i)(?:api[_-]?key|secret|password|token)\s*[:=]\s*["'][A-Za-z0-9+/_-]{16,}["']`,
						Message: "{file} contains what looks like a hardcoded credential; load it from the environment",
					},
				},
			},
		},
	}
}
