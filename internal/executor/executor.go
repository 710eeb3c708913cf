package executor

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/gatehouse-dev/gatehouse/internal/event"
	"github.com/gatehouse-dev/gatehouse/internal/hook"
	"github.com/gatehouse-dev/gatehouse/internal/logger"
)

// Executor runs selected validators concurrently under per-hook timeouts
// and a global deadline. Hooks are never forcibly killed: a hook that
// outlives its timeout keeps running on its goroutine but its eventual
// output is discarded.
type Executor struct {
	defaultTimeout time.Duration
	globalDeadline time.Duration
	maxConcurrency int64
}

// New creates an executor. Zero values fall back to sane defaults.
func New(defaultTimeout, globalDeadline time.Duration, maxConcurrency int) *Executor {
	if defaultTimeout <= 0 {
		defaultTimeout = time.Second
	}
	if globalDeadline <= 0 {
		globalDeadline = 5 * time.Second
	}
	if maxConcurrency <= 0 {
		maxConcurrency = 8
	}
	return &Executor{
		defaultTimeout: defaultTimeout,
		globalDeadline: globalDeadline,
		maxConcurrency: int64(maxConcurrency),
	}
}

type outcome struct {
	violations []hook.Violation
	err        error
}

// Run executes every selected validator against the event. All hooks are
// launched at once, bounded by a worker pool of maxConcurrency; results
// are collected as they complete. When the global deadline expires, whatever
// results are in hand are finalized and still-pending hooks are recorded
// as timed out with an allow verdict. Total wall-clock time is bounded by
// min(globalDeadline, max per-hook timeout) plus scheduling overhead,
// never the sum of timeouts.
func (x *Executor) Run(ctx context.Context, ev *event.ToolUseEvent, selected []hook.Selected) []hook.ExecutionResult {
	if len(selected) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, x.globalDeadline)
	defer cancel()

	sem := semaphore.NewWeighted(x.maxConcurrency)

	// Completion is tracked by position in selected, not by hook name, so
	// two selections sharing a name still produce two results.
	type indexed struct {
		idx int
		res hook.ExecutionResult
	}
	resultCh := make(chan indexed, len(selected))

	for i, s := range selected {
		go func(i int, s hook.Selected) {
			if err := sem.Acquire(ctx, 1); err != nil {
				// Deadline hit while queued; the collector will
				// synthesize a timed-out entry for us.
				return
			}
			defer sem.Release(1)
			resultCh <- indexed{idx: i, res: x.runOne(ctx, ev, s)}
		}(i, s)
	}

	done := make([]bool, len(selected))
	results := make([]hook.ExecutionResult, 0, len(selected))
collect:
	for len(results) < len(selected) {
		select {
		case r := <-resultCh:
			done[r.idx] = true
			results = append(results, r.res)
		case <-ctx.Done():
			break collect
		}
	}

	// Drain anything that raced the deadline, then fail open the rest.
drain:
	for len(results) < len(selected) {
		select {
		case r := <-resultCh:
			done[r.idx] = true
			results = append(results, r.res)
		default:
			break drain
		}
	}
	for i, s := range selected {
		if done[i] {
			continue
		}
		def := s.Validator.Definition()
		logger.Warn().
			Str("hook", def.Name).
			Dur("deadline", x.globalDeadline).
			Msg("Global deadline reached before hook finished, failing open")
		results = append(results, timedOutResult(def))
	}

	return results
}

// runOne executes a single validator under its own timeout, converting
// panics and errors into fail-open results at this boundary so no fault
// can abort sibling hooks.
func (x *Executor) runOne(ctx context.Context, ev *event.ToolUseEvent, s hook.Selected) hook.ExecutionResult {
	def := s.Validator.Definition()
	timeout := time.Duration(def.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = x.defaultTimeout
	}

	start := time.Now()
	outCh := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				outCh <- outcome{err: fmt.Errorf("validator panic: %v", r)}
			}
		}()
		violations, err := s.Validator.Run(ctx, ev)
		outCh <- outcome{violations: violations, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case out := <-outCh:
		res := hook.ExecutionResult{
			HookName:   def.Name,
			Family:     def.Family,
			Category:   def.Category,
			Priority:   def.Priority,
			Verdict:    hook.VerdictAllow,
			DurationMs: time.Since(start).Milliseconds(),
		}
		if out.err != nil {
			// ValidatorFault: fail open, never block on a broken hook.
			logger.Warn().
				Err(out.err).
				Str("hook", def.Name).
				Msg("Validator fault, failing open")
			res.Err = out.err
			return res
		}
		if len(out.violations) > 0 {
			res.Verdict = def.Decision.Cap(s.MaxVerdict)
			for _, v := range out.violations {
				res.Messages = append(res.Messages, v.Message)
			}
		}
		return res
	case <-timer.C:
		logger.Warn().
			Str("hook", def.Name).
			Dur("timeout", timeout).
			Msg("Hook exceeded its timeout, failing open")
		return timedOutResult(def)
	case <-ctx.Done():
		return timedOutResult(def)
	}
}

func timedOutResult(def hook.Definition) hook.ExecutionResult {
	return hook.ExecutionResult{
		HookName: def.Name,
		Family:   def.Family,
		Category: def.Category,
		Priority: def.Priority,
		Verdict:  hook.VerdictAllow,
		TimedOut: true,
	}
}
