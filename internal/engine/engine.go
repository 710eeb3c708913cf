package engine

import (
	"context"
	"time"

	"github.com/gatehouse-dev/gatehouse/internal/aggregate"
	"github.com/gatehouse-dev/gatehouse/internal/config"
	"github.com/gatehouse-dev/gatehouse/internal/enforce"
	"github.com/gatehouse-dev/gatehouse/internal/event"
	"github.com/gatehouse-dev/gatehouse/internal/executor"
	"github.com/gatehouse-dev/gatehouse/internal/fixer"
	"github.com/gatehouse-dev/gatehouse/internal/hook"
	"github.com/gatehouse-dev/gatehouse/internal/logger"
	"github.com/gatehouse-dev/gatehouse/internal/metrics"
	"github.com/gatehouse-dev/gatehouse/internal/registry"
)

// Outcome is the external-facing result of one dispatched event
type Outcome struct {
	Verdict           hook.Verdict      `json:"verdict"`
	Messages          []string          `json:"messages"`
	ContributingHooks []string          `json:"contributingHooks,omitempty"`
	FixesApplied      []fixer.FixResult `json:"fixesApplied"`
}

// ExitCode maps the outcome onto the process exit convention: 0 for allow
// and warn, 2 for block
func (o *Outcome) ExitCode() int {
	if o.Verdict == hook.VerdictBlock {
		return 2
	}
	return 0
}

// Engine wires the full pipeline: normalize, select, run, aggregate, fix,
// record. One engine handles one invocation.
type Engine struct {
	cfg      *config.Config
	registry *registry.Registry
	executor *executor.Executor
	fixer    *fixer.Fixer
	recorder *metrics.Recorder
	snapshot *enforce.Snapshot
}

// New builds an engine over an already-validated configuration, registry
// and enforcement snapshot. recorder may be nil; metrics are best-effort.
func New(cfg *config.Config, reg *registry.Registry, snap *enforce.Snapshot, recorder *metrics.Recorder) (*Engine, error) {
	fx, err := fixer.New(cfg.Settings.BackupDir, cfg.Settings.DryRunEnabled())
	if err != nil {
		return nil, err
	}
	return &Engine{
		cfg:      cfg,
		registry: reg,
		executor: executor.New(
			time.Duration(cfg.Settings.HookTimeoutMs)*time.Millisecond,
			time.Duration(cfg.Settings.GlobalDeadlineMs)*time.Millisecond,
			cfg.Settings.MaxConcurrency,
		),
		fixer:    fx,
		recorder: recorder,
		snapshot: snap,
	}, nil
}

// Dispatch normalizes raw input and runs the pipeline, producing exactly
// one Outcome. Every failure mode past configuration loading degrades to
// allow: a parsing defect or engine fault must never block legitimate
// work, and the invoking assistant has no retry path of its own.
func (e *Engine) Dispatch(ctx context.Context, raw []byte, phaseHint event.Phase) (out *Outcome) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().
				Interface("panic", r).
				Msg("Engine fault, failing open")
			out = &Outcome{Verdict: hook.VerdictAllow, Messages: []string{}, FixesApplied: []fixer.FixResult{}}
		}
	}()

	ev, err := event.Normalize(raw, phaseHint)
	if err != nil {
		logger.Warn().
			Err(err).
			Msg("Could not normalize hook input, failing open")
		return &Outcome{Verdict: hook.VerdictAllow, Messages: []string{}, FixesApplied: []fixer.FixResult{}}
	}

	logger.Debug().
		Str("event_id", ev.ID).
		Str("phase", string(ev.Phase)).
		Str("tool", ev.ToolName).
		Str("file", ev.FilePath).
		Msg("Dispatching event")

	selected := e.registry.Select(ev, e.snapshot)
	results := e.executor.Run(ctx, ev, selected)
	decision := aggregate.Reduce(results, aggregate.DefaultLimits())

	out = &Outcome{
		Verdict:           decision.Verdict,
		Messages:          decision.Messages,
		ContributingHooks: decision.ContributingHooks,
		FixesApplied:      []fixer.FixResult{},
	}
	if out.Messages == nil {
		out.Messages = []string{}
	}

	if e.shouldFix(ev, decision) {
		out.FixesApplied = e.fixer.Apply(ev, violatedFixable(selected, results))
	}

	e.record(ev, results)

	return out
}

// shouldFix gates remediation: post-operation phase only, never after a
// block, and only when auto-fix is enabled
func (e *Engine) shouldFix(ev *event.ToolUseEvent, decision hook.Decision) bool {
	return ev.Phase == event.PhasePostToolUse &&
		decision.Verdict != hook.VerdictBlock &&
		e.cfg.Settings.AutoFixEnabled()
}

// violatedFixable narrows the selection to fixable hooks that actually
// flagged something on this event
func violatedFixable(selected []hook.Selected, results []hook.ExecutionResult) []hook.Selected {
	flagged := make(map[string]bool, len(results))
	for _, res := range results {
		if res.Verdict != hook.VerdictAllow {
			flagged[res.HookName] = true
		}
	}

	var out []hook.Selected
	for _, s := range selected {
		def := s.Validator.Definition()
		if def.Fixable && flagged[def.Name] {
			out = append(out, s)
		}
	}
	return out
}

// record appends one metrics record per execution result, best-effort
func (e *Engine) record(ev *event.ToolUseEvent, results []hook.ExecutionResult) {
	if e.recorder == nil {
		return
	}
	for _, res := range results {
		e.recorder.Record(metrics.Record{
			HookName:   res.HookName,
			Category:   res.Category,
			Verdict:    res.Verdict,
			DurationMs: res.DurationMs,
			TimedOut:   res.TimedOut,
			Failed:     res.Err != nil,
			SessionID:  ev.SessionID,
			Timestamp:  ev.Timestamp,
		})
	}
}
