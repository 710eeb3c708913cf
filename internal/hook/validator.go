package hook

import (
	"context"

	"github.com/gatehouse-dev/gatehouse/internal/event"
)

// Validator is the contract every pluggable hook implements. Validators are
// stateless between invocations; Run may block on file or content-analysis
// work, so the executor runs it under a per-hook timeout.
type Validator interface {
	// Definition returns the hook's immutable registration record
	Definition() Definition

	// Match reports whether the validator wants to inspect this event.
	// It must be cheap; expensive work belongs in Run.
	Match(ev *event.ToolUseEvent) bool

	// Run inspects the event and returns any violations found. A nil
	// slice means the event passed. Errors and panics are caught at the
	// executor boundary and converted to fail-open results.
	Run(ctx context.Context, ev *event.ToolUseEvent) ([]Violation, error)
}

// ContentFixer is implemented by validators whose violations can be
// auto-remediated. FixContent returns the transformed content and whether
// anything changed; it must be a pure function of its input.
type ContentFixer interface {
	FixContent(content string) (string, bool)
}

// Selected pairs a validator chosen by the registry with the verdict
// ceiling imposed by the current enforcement level of its category.
type Selected struct {
	Validator  Validator
	MaxVerdict Verdict
}
