package validators

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gatehouse-dev/gatehouse/internal/config"
	"github.com/gatehouse-dev/gatehouse/internal/event"
	"github.com/gatehouse-dev/gatehouse/internal/hook"
)

// compiledPattern is one rule with its regex compiled at build time
type compiledPattern struct {
	re        *regexp.Regexp
	message   string
	canonical string
}

// PatternValidator implements the hook contract for config-declared regex
// rules. It covers path conventions (naming), content checks (debug output,
// secrets) and a line-level fix transform. Instances are immutable and safe
// for concurrent Run calls.
type PatternValidator struct {
	def     hook.Definition
	tools   *regexp.Regexp
	files   *regexp.Regexp
	path    []compiledPattern
	content []compiledPattern
	fix     *regexp.Regexp
	fixRepl string
}

// NewPattern builds a validator from one hook's configuration. Every regex
// is compiled here so a bad pattern surfaces as a startup error, not a
// runtime fault.
func NewPattern(hc config.HookConfig, defaultTimeoutMs int) (*PatternValidator, error) {
	def := hook.Definition{
		Name:      hc.Name,
		Family:    hc.Family,
		Category:  hc.Category,
		Priority:  hook.Priority(hc.Priority),
		Decision:  hook.Verdict(hc.Decision),
		TimeoutMs: hc.TimeoutMs,
		Fixable:   hc.Fixable && hc.Fix != nil,
	}
	if def.Priority == "" {
		def.Priority = hook.PriorityNormal
	}
	if !def.Priority.Valid() {
		return nil, fmt.Errorf("hook %q: invalid priority %q", hc.Name, hc.Priority)
	}
	if def.Decision == "" {
		def.Decision = hook.VerdictWarn
	}
	if !def.Decision.Valid() {
		return nil, fmt.Errorf("hook %q: invalid decision %q", hc.Name, hc.Decision)
	}
	if def.Category == "" {
		def.Category = def.Family
	}
	if def.TimeoutMs <= 0 {
		def.TimeoutMs = defaultTimeoutMs
	}
	if len(hc.Phases) == 0 {
		def.Phases = []event.Phase{event.PhasePreToolUse, event.PhasePostToolUse}
	} else {
		for _, p := range hc.Phases {
			phase := event.Phase(p)
			if !phase.Valid() {
				return nil, fmt.Errorf("hook %q: invalid phase %q", hc.Name, p)
			}
			def.Phases = append(def.Phases, phase)
		}
	}

	v := &PatternValidator{def: def}

	var err error
	if hc.Match.Tools != "" {
		if v.tools, err = regexp.Compile(hc.Match.Tools); err != nil {
			return nil, fmt.Errorf("hook %q: invalid tools pattern: %w", hc.Name, err)
		}
	}
	if hc.Match.Files != "" {
		if v.files, err = regexp.Compile(hc.Match.Files); err != nil {
			return nil, fmt.Errorf("hook %q: invalid files pattern: %w", hc.Name, err)
		}
	}
	if v.path, err = compilePatterns(hc.Name, "path", hc.Patterns.Path); err != nil {
		return nil, err
	}
	if v.content, err = compilePatterns(hc.Name, "content", hc.Patterns.Content); err != nil {
		return nil, err
	}
	if hc.Fix != nil {
		if v.fix, err = regexp.Compile(hc.Fix.Pattern); err != nil {
			return nil, fmt.Errorf("hook %q: invalid fix pattern: %w", hc.Name, err)
		}
		v.fixRepl = hc.Fix.Replace
	}

	return v, nil
}

func compilePatterns(hookName, kind string, patterns []config.PatternMatch) ([]compiledPattern, error) {
	out := make([]compiledPattern, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p.Pattern)
		if err != nil {
			return nil, fmt.Errorf("hook %q: invalid %s pattern %q: %w", hookName, kind, p.Pattern, err)
		}
		out = append(out, compiledPattern{re: re, message: p.Message, canonical: p.Canonical})
	}
	return out, nil
}

// Definition returns the hook's registration record
func (v *PatternValidator) Definition() hook.Definition {
	return v.def
}

// Match reports whether the event's tool and file fall under this hook.
// An absent pattern matches everything.
func (v *PatternValidator) Match(ev *event.ToolUseEvent) bool {
	if v.tools != nil && !v.tools.MatchString(ev.ToolName) {
		return false
	}
	if v.files != nil && ev.FilePath != "" && !v.files.MatchString(ev.FilePath) {
		return false
	}
	return true
}

// Run checks the event's path and content against the configured rules
func (v *PatternValidator) Run(_ context.Context, ev *event.ToolUseEvent) ([]hook.Violation, error) {
	var violations []hook.Violation

	base := filepath.Base(ev.FilePath)
	for _, p := range v.path {
		if ev.FilePath == "" || !p.re.MatchString(base) {
			continue
		}
		violations = append(violations, v.violation(p, base))
	}
	for _, p := range v.content {
		if ev.Content == "" || !p.re.MatchString(ev.Content) {
			continue
		}
		violations = append(violations, v.violation(p, base))
	}

	return violations, nil
}

func (v *PatternValidator) violation(p compiledPattern, base string) hook.Violation {
	msg := p.message
	if msg == "" {
		msg = fmt.Sprintf("pattern %q matched", p.re.String())
	}
	msg = strings.ReplaceAll(msg, "{file}", base)
	if strings.Contains(msg, "{canonical}") {
		canonical := base
		if p.canonical != "" {
			canonical = p.re.ReplaceAllString(base, p.canonical)
		}
		msg = strings.ReplaceAll(msg, "{canonical}", canonical)
	}

	viol := hook.Violation{
		HookName: v.def.Name,
		Severity: v.def.Priority,
		Message:  msg,
	}
	if v.fix != nil {
		viol.SuggestedFix = fmt.Sprintf("auto-fixable by hook %s", v.def.Name)
	}
	return viol
}

// FixContent applies the configured transform, implementing hook.ContentFixer
// for hooks declared fixable
func (v *PatternValidator) FixContent(content string) (string, bool) {
	if v.fix == nil {
		return content, false
	}
	fixed := v.fix.ReplaceAllString(content, v.fixRepl)
	return fixed, fixed != content
}
