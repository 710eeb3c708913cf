package enforce

import (
	"github.com/gatehouse-dev/gatehouse/internal/hook"
)

// Level is the per-category graduated enforcement state
type Level string

// Enforcement levels, ordered SILENT < WARNING < PARTIAL < FULL
const (
	LevelSilent  Level = "SILENT"
	LevelWarning Level = "WARNING"
	LevelPartial Level = "PARTIAL"
	LevelFull    Level = "FULL"
)

// Rank returns the graduation order of a level
func (l Level) Rank() int {
	switch l {
	case LevelSilent:
		return 0
	case LevelWarning:
		return 1
	case LevelPartial:
		return 2
	case LevelFull:
		return 3
	default:
		return -1
	}
}

// Valid reports whether l is a recognized level
func (l Level) Valid() bool {
	return l.Rank() >= 0
}

// Next returns the level one step up, saturating at FULL
func (l Level) Next() Level {
	switch l {
	case LevelSilent:
		return LevelWarning
	case LevelWarning:
		return LevelPartial
	case LevelPartial:
		return LevelFull
	default:
		return LevelFull
	}
}

// Prev returns the level one step down, saturating at SILENT
func (l Level) Prev() Level {
	switch l {
	case LevelFull:
		return LevelPartial
	case LevelPartial:
		return LevelWarning
	case LevelWarning:
		return LevelSilent
	default:
		return LevelSilent
	}
}

// VerdictCeiling converts a level into the highest verdict a hook of the
// given priority may produce under it. SILENT categories are filtered out
// by the registry before execution, so the allow ceiling here is only a
// backstop.
func VerdictCeiling(l Level, p hook.Priority) hook.Verdict {
	switch l {
	case LevelFull:
		return hook.VerdictBlock
	case LevelPartial:
		if p == hook.PriorityCritical || p == hook.PriorityHigh {
			return hook.VerdictBlock
		}
		return hook.VerdictWarn
	case LevelWarning:
		return hook.VerdictWarn
	default:
		return hook.VerdictAllow
	}
}
