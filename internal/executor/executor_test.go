package executor

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse-dev/gatehouse/internal/event"
	"github.com/gatehouse-dev/gatehouse/internal/hook"
	"github.com/gatehouse-dev/gatehouse/internal/logger"
)

func TestMain(m *testing.M) {
	logger.InitQuiet()
	os.Exit(m.Run())
}

// fakeValidator is a scriptable hook for executor tests
type fakeValidator struct {
	def        hook.Definition
	delay      time.Duration
	violations []hook.Violation
	err        error
	panics     bool
}

func (f *fakeValidator) Definition() hook.Definition { return f.def }

func (f *fakeValidator) Match(*event.ToolUseEvent) bool { return true }

func (f *fakeValidator) Run(_ context.Context, _ *event.ToolUseEvent) ([]hook.Violation, error) {
	if f.panics {
		panic("validator exploded")
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.violations, f.err
}

func fake(name string, timeoutMs int, delay time.Duration, decision hook.Verdict, violates bool) *fakeValidator {
	f := &fakeValidator{
		def: hook.Definition{
			Name:      name,
			Family:    "test",
			Category:  "test",
			Priority:  hook.PriorityNormal,
			Decision:  decision,
			TimeoutMs: timeoutMs,
		},
		delay: delay,
	}
	if violates {
		f.violations = []hook.Violation{{HookName: name, Message: name + " violation"}}
	}
	return f
}

func selectedSet(vs ...*fakeValidator) []hook.Selected {
	out := make([]hook.Selected, 0, len(vs))
	for _, v := range vs {
		out = append(out, hook.Selected{Validator: v, MaxVerdict: hook.VerdictBlock})
	}
	return out
}

func byName(results []hook.ExecutionResult) map[string]hook.ExecutionResult {
	m := make(map[string]hook.ExecutionResult, len(results))
	for _, r := range results {
		m[r.HookName] = r
	}
	return m
}

func TestRun_AllComplete(t *testing.T) {
	x := New(time.Second, 5*time.Second, 8)
	ev := &event.ToolUseEvent{Phase: event.PhasePreToolUse}

	results := x.Run(context.Background(), ev, selectedSet(
		fake("clean", 1000, 0, hook.VerdictBlock, false),
		fake("blocker", 1000, 0, hook.VerdictBlock, true),
		fake("warner", 1000, 0, hook.VerdictWarn, true),
	))

	require.Len(t, results, 3)
	m := byName(results)
	assert.Equal(t, hook.VerdictAllow, m["clean"].Verdict)
	assert.Equal(t, hook.VerdictBlock, m["blocker"].Verdict)
	assert.Equal(t, hook.VerdictWarn, m["warner"].Verdict)
	assert.False(t, m["blocker"].TimedOut)
}

func TestRun_EnforcementCapsVerdict(t *testing.T) {
	x := New(time.Second, 5*time.Second, 8)
	ev := &event.ToolUseEvent{Phase: event.PhasePreToolUse}

	v := fake("capped", 1000, 0, hook.VerdictBlock, true)
	results := x.Run(context.Background(), ev, []hook.Selected{
		{Validator: v, MaxVerdict: hook.VerdictWarn},
	})

	require.Len(t, results, 1)
	assert.Equal(t, hook.VerdictWarn, results[0].Verdict)
}

func TestRun_PerHookTimeoutFailsOpen(t *testing.T) {
	x := New(time.Second, 5*time.Second, 8)
	ev := &event.ToolUseEvent{Phase: event.PhasePreToolUse}

	start := time.Now()
	results := x.Run(context.Background(), ev, selectedSet(
		fake("slow", 50, 2*time.Second, hook.VerdictBlock, true),
		fake("fast", 1000, 0, hook.VerdictBlock, false),
	))
	elapsed := time.Since(start)

	require.Len(t, results, 2)
	m := byName(results)
	assert.True(t, m["slow"].TimedOut, "slow hook should be marked timed out")
	assert.Equal(t, hook.VerdictAllow, m["slow"].Verdict, "timed-out hook must fail open")
	assert.False(t, m["fast"].TimedOut)
	assert.Less(t, elapsed, time.Second, "slow hook's sleep must not delay the decision")
}

func TestRun_GlobalDeadline(t *testing.T) {
	// 12 hooks, 3 stuck with 2000ms timeouts, the rest instant; global
	// deadline 500ms. The decision must arrive around the deadline with
	// fail-open entries for the stuck hooks.
	x := New(time.Second, 500*time.Millisecond, 16)
	ev := &event.ToolUseEvent{Phase: event.PhasePreToolUse}

	var vs []*fakeValidator
	for i := 0; i < 9; i++ {
		vs = append(vs, fake(string(rune('a'+i)), 2000, 0, hook.VerdictWarn, true))
	}
	vs = append(vs,
		fake("stuck-1", 2000, 10*time.Second, hook.VerdictBlock, true),
		fake("stuck-2", 2000, 10*time.Second, hook.VerdictBlock, true),
		fake("stuck-3", 2000, 10*time.Second, hook.VerdictBlock, true),
	)

	start := time.Now()
	results := x.Run(context.Background(), ev, selectedSet(vs...))
	elapsed := time.Since(start)

	require.Len(t, results, 12)
	assert.Less(t, elapsed, 1500*time.Millisecond, "deadline must cap wall clock, not the sum of timeouts")

	m := byName(results)
	for _, name := range []string{"stuck-1", "stuck-2", "stuck-3"} {
		assert.True(t, m[name].TimedOut, "%s should be timed out", name)
		assert.Equal(t, hook.VerdictAllow, m[name].Verdict, "%s must fail open", name)
	}
	completed := 0
	for _, r := range results {
		if !r.TimedOut {
			completed++
		}
	}
	assert.Equal(t, 9, completed)
}

func TestRun_PanicIsolation(t *testing.T) {
	x := New(time.Second, 5*time.Second, 8)
	ev := &event.ToolUseEvent{Phase: event.PhasePreToolUse}

	bomb := fake("bomb", 1000, 0, hook.VerdictBlock, false)
	bomb.panics = true

	results := x.Run(context.Background(), ev, selectedSet(
		bomb,
		fake("sibling", 1000, 0, hook.VerdictWarn, true),
	))

	require.Len(t, results, 2)
	m := byName(results)
	assert.Equal(t, hook.VerdictAllow, m["bomb"].Verdict, "panicking hook must fail open")
	assert.Error(t, m["bomb"].Err)
	assert.Equal(t, hook.VerdictWarn, m["sibling"].Verdict, "sibling must be unaffected")
}

func TestRun_ValidatorErrorFailsOpen(t *testing.T) {
	x := New(time.Second, 5*time.Second, 8)
	ev := &event.ToolUseEvent{Phase: event.PhasePreToolUse}

	broken := fake("broken", 1000, 0, hook.VerdictBlock, true)
	broken.err = context.DeadlineExceeded
	broken.violations = nil

	results := x.Run(context.Background(), ev, selectedSet(broken))
	require.Len(t, results, 1)
	assert.Equal(t, hook.VerdictAllow, results[0].Verdict)
	assert.Error(t, results[0].Err)
}

func TestRun_EmptySelection(t *testing.T) {
	x := New(time.Second, 5*time.Second, 8)
	assert.Empty(t, x.Run(context.Background(), &event.ToolUseEvent{}, nil))
}

func TestRun_DuplicateHookNames(t *testing.T) {
	x := New(time.Second, 5*time.Second, 8)
	ev := &event.ToolUseEvent{Phase: event.PhasePreToolUse}

	results := x.Run(context.Background(), ev, selectedSet(
		fake("dup", 1000, 0, hook.VerdictWarn, true),
		fake("dup", 1000, 0, hook.VerdictBlock, true),
	))

	require.Len(t, results, 2, "both same-named hooks must produce a result")
	verdicts := map[hook.Verdict]int{}
	for _, r := range results {
		assert.Equal(t, "dup", r.HookName)
		verdicts[r.Verdict]++
	}
	assert.Equal(t, 1, verdicts[hook.VerdictWarn])
	assert.Equal(t, 1, verdicts[hook.VerdictBlock])
}

func TestRun_DuplicateNameWithOneStuck(t *testing.T) {
	// One of two same-named hooks outlives the global deadline; the other
	// completes. Both positions must be accounted for.
	x := New(time.Second, 300*time.Millisecond, 8)
	ev := &event.ToolUseEvent{Phase: event.PhasePreToolUse}

	results := x.Run(context.Background(), ev, selectedSet(
		fake("dup", 2000, 0, hook.VerdictWarn, true),
		fake("dup", 2000, 10*time.Second, hook.VerdictBlock, true),
	))

	require.Len(t, results, 2)
	timedOut := 0
	for _, r := range results {
		if r.TimedOut {
			timedOut++
			assert.Equal(t, hook.VerdictAllow, r.Verdict)
		}
	}
	assert.Equal(t, 1, timedOut, "exactly the stuck position should time out")
}

func TestRun_ConcurrencyCapStillBounded(t *testing.T) {
	// 8 hooks sleeping 100ms with a pool of 2: wall clock is bounded by
	// the global deadline even though the pool serializes work.
	x := New(time.Second, 300*time.Millisecond, 2)
	ev := &event.ToolUseEvent{Phase: event.PhasePreToolUse}

	var vs []*fakeValidator
	for i := 0; i < 8; i++ {
		vs = append(vs, fake(string(rune('a'+i)), 1000, 100*time.Millisecond, hook.VerdictWarn, false))
	}

	start := time.Now()
	results := x.Run(context.Background(), ev, selectedSet(vs...))
	elapsed := time.Since(start)

	require.Len(t, results, 8)
	assert.Less(t, elapsed, time.Second)
}
