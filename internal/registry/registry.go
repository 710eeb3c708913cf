package registry

import (
	"fmt"
	"sort"

	"github.com/gatehouse-dev/gatehouse/internal/config"
	"github.com/gatehouse-dev/gatehouse/internal/enforce"
	"github.com/gatehouse-dev/gatehouse/internal/event"
	"github.com/gatehouse-dev/gatehouse/internal/hook"
	"github.com/gatehouse-dev/gatehouse/internal/logger"
	"github.com/gatehouse-dev/gatehouse/internal/validators"
)

// Registry holds the full validator set built from configuration at
// startup. It is immutable for the process lifetime; Select filters it
// per event.
type Registry struct {
	validators   []hook.Validator
	defaultLevel enforce.Level
	families     map[string]bool
}

// New builds the registry from configuration. Any hook that fails to
// compile is a startup error; this is part of the engine's single
// fail-closed path.
func New(cfg *config.Config) (*Registry, error) {
	r := &Registry{
		defaultLevel: enforce.Level(cfg.Enforcement.Default),
	}
	if r.defaultLevel == "" {
		r.defaultLevel = enforce.LevelFull
	}
	if !r.defaultLevel.Valid() {
		return nil, fmt.Errorf("invalid default enforcement level %q", cfg.Enforcement.Default)
	}
	for cat, lvl := range cfg.Enforcement.Categories {
		if !enforce.Level(lvl).Valid() {
			return nil, fmt.Errorf("invalid enforcement level %q for category %q", lvl, cat)
		}
	}

	if len(cfg.Settings.EnabledFamilies) > 0 {
		r.families = make(map[string]bool, len(cfg.Settings.EnabledFamilies))
		for _, f := range cfg.Settings.EnabledFamilies {
			r.families[f] = true
		}
	}

	for _, hc := range cfg.Hooks {
		if hc.Name == "" {
			return nil, fmt.Errorf("hook with empty name in configuration")
		}
		v, err := validators.NewPattern(hc, cfg.Settings.HookTimeoutMs)
		if err != nil {
			return nil, err
		}
		r.validators = append(r.validators, v)
	}

	return r, nil
}

// Len returns the number of registered validators
func (r *Registry) Len() int {
	return len(r.validators)
}

// Definitions returns the registration records of every validator
func (r *Registry) Definitions() []hook.Definition {
	defs := make([]hook.Definition, 0, len(r.validators))
	for _, v := range r.validators {
		defs = append(defs, v.Definition())
	}
	return defs
}

// Select returns the validators eligible for this event: phase registered,
// family enabled, matcher accepting, and category not at SILENT under the
// enforcement snapshot. Each selection carries the verdict ceiling its
// category's level imposes. Deterministic given fixed inputs: the result
// is sorted by hook name.
func (r *Registry) Select(ev *event.ToolUseEvent, snap *enforce.Snapshot) []hook.Selected {
	var selected []hook.Selected
	for _, v := range r.validators {
		def := v.Definition()
		if !def.AppliesTo(ev.Phase) {
			continue
		}
		if r.families != nil && !r.families[def.Family] {
			continue
		}

		level := snap.Level(def.Category, r.defaultLevel)
		if level == enforce.LevelSilent {
			logger.Debug().
				Str("hook", def.Name).
				Str("category", def.Category).
				Msg("Skipping hook, category enforcement is SILENT")
			continue
		}
		if !v.Match(ev) {
			continue
		}

		selected = append(selected, hook.Selected{
			Validator:  v,
			MaxVerdict: enforce.VerdictCeiling(level, def.Priority),
		})
	}

	sort.Slice(selected, func(i, j int) bool {
		return selected[i].Validator.Definition().Name < selected[j].Validator.Definition().Name
	})
	return selected
}
