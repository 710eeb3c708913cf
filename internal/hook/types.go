package hook

import (
	"github.com/gatehouse-dev/gatehouse/internal/event"
)

// Verdict is the outcome of a single hook execution or of the whole decision
type Verdict string

// Verdict values, ordered allow < warn < block
const (
	VerdictAllow Verdict = "allow"
	VerdictWarn  Verdict = "warn"
	VerdictBlock Verdict = "block"
)

// Rank returns the severity order of a verdict. Unknown verdicts rank as
// allow so a malformed validator output can never escalate a decision.
func (v Verdict) Rank() int {
	switch v {
	case VerdictBlock:
		return 2
	case VerdictWarn:
		return 1
	default:
		return 0
	}
}

// Cap returns v limited to at most ceiling
func (v Verdict) Cap(ceiling Verdict) Verdict {
	if v.Rank() > ceiling.Rank() {
		return ceiling
	}
	return v
}

// Valid reports whether v is a recognized verdict
func (v Verdict) Valid() bool {
	switch v {
	case VerdictAllow, VerdictWarn, VerdictBlock:
		return true
	default:
		return false
	}
}

// Priority orders hooks for display and decides how far a PARTIAL
// enforcement level lets a hook escalate
type Priority string

// Priority values
const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityNormal   Priority = "normal"
	PriorityLow      Priority = "low"
)

// Rank returns the display order of a priority, critical first
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityNormal:
		return 2
	default:
		return 3
	}
}

// Valid reports whether p is a recognized priority
func (p Priority) Valid() bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityNormal, PriorityLow:
		return true
	default:
		return false
	}
}

// Definition is the immutable registration record for one hook, loaded
// from configuration at startup.
type Definition struct {
	Name      string
	Family    string
	Category  string
	Priority  Priority
	Phases    []event.Phase
	Decision  Verdict
	TimeoutMs int
	Fixable   bool
}

// AppliesTo reports whether the definition is registered for the phase
func (d Definition) AppliesTo(phase event.Phase) bool {
	for _, p := range d.Phases {
		if p == phase {
			return true
		}
	}
	return false
}

// Violation is the payload a validator attaches to a non-allow finding
type Violation struct {
	HookName     string
	Severity     Priority
	Message      string
	SuggestedFix string
}

// ExecutionResult is the outcome of running one validator against one event
type ExecutionResult struct {
	HookName   string
	Family     string
	Category   string
	Priority   Priority
	Verdict    Verdict
	Messages   []string
	DurationMs int64
	TimedOut   bool
	Err        error
}

// Decision is the single aggregate outcome for one event
type Decision struct {
	Verdict           Verdict  `json:"verdict"`
	Messages          []string `json:"messages"`
	ContributingHooks []string `json:"contributingHooks,omitempty"`
}
