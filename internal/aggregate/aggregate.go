package aggregate

import (
	"fmt"
	"sort"
	"unicode/utf8"

	"github.com/gatehouse-dev/gatehouse/internal/hook"
)

// Limits caps user-facing decision output so a noisy hook set stays readable
type Limits struct {
	MaxMessages   int
	MaxMessageLen int
}

// DefaultLimits returns the stock output caps
func DefaultLimits() Limits {
	return Limits{MaxMessages: 10, MaxMessageLen: 300}
}

// Reduce folds execution results into the single Decision for the event.
// It is a pure, order-independent function: verdict precedence is
// block > warn > allow over the result set, and display ordering is a
// stable sort by priority, family, then hook name, so the same set of
// results always yields an identical Decision regardless of completion
// order. Messages are grouped by family, deduplicated by exact text, and
// capped with a "+N more" marker.
func Reduce(results []hook.ExecutionResult, limits Limits) hook.Decision {
	if limits.MaxMessages <= 0 {
		limits.MaxMessages = DefaultLimits().MaxMessages
	}
	if limits.MaxMessageLen <= 0 {
		limits.MaxMessageLen = DefaultLimits().MaxMessageLen
	}

	decision := hook.Decision{Verdict: hook.VerdictAllow}

	ordered := make([]hook.ExecutionResult, len(results))
	copy(ordered, results)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.Priority.Rank() != b.Priority.Rank() {
			return a.Priority.Rank() < b.Priority.Rank()
		}
		if a.Family != b.Family {
			return a.Family < b.Family
		}
		return a.HookName < b.HookName
	})

	seen := make(map[string]bool)
	var overflow int
	for _, res := range ordered {
		if res.Verdict.Rank() > decision.Verdict.Rank() {
			decision.Verdict = res.Verdict
		}
		if res.Verdict == hook.VerdictAllow {
			continue
		}
		decision.ContributingHooks = append(decision.ContributingHooks, res.HookName)

		for _, msg := range res.Messages {
			text := truncate(fmt.Sprintf("[%s] %s", res.Family, msg), limits.MaxMessageLen)
			if seen[text] {
				continue
			}
			seen[text] = true
			if len(decision.Messages) >= limits.MaxMessages {
				overflow++
				continue
			}
			decision.Messages = append(decision.Messages, text)
		}
	}

	if overflow > 0 {
		decision.Messages = append(decision.Messages, fmt.Sprintf("+%d more", overflow))
	}

	return decision
}

// truncate caps text at max bytes with an ellipsis, never cutting inside a
// multi-byte rune
func truncate(text string, max int) string {
	if len(text) <= max {
		return text
	}
	cut := max - 3
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}
