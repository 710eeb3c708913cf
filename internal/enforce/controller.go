package enforce

import (
	"fmt"
	"time"

	"github.com/gatehouse-dev/gatehouse/internal/logger"
)

// History is the read side of the metrics log the controller graduates on
type History interface {
	ViolationRate(category string, window time.Duration) (float64, error)
	ErrorRate(category string, window time.Duration) (float64, error)
}

// GraduationConfig tunes the state machine
type GraduationConfig struct {
	// ViolationThreshold is the rate a category must stay below to earn
	// an upward step
	ViolationThreshold float64
	// ErrorSpikeThreshold is the hook error/timeout rate that triggers
	// immediate de-escalation
	ErrorSpikeThreshold float64
	// RequiredWindows is how many consecutive clean windows an upward
	// step requires
	RequiredWindows int
	// Window is the width of one evaluation window
	Window time.Duration
}

// DefaultGraduation returns the stock tuning
func DefaultGraduation() GraduationConfig {
	return GraduationConfig{
		ViolationThreshold:  0.05,
		ErrorSpikeThreshold: 0.25,
		RequiredWindows:     3,
		Window:              24 * time.Hour,
	}
}

// Transition records one level change for reporting
type Transition struct {
	Category string
	From     Level
	To       Level
	Reason   string
}

// Controller graduates enforcement levels from observed history. It never
// runs inline with an event's decision path; Evaluate is called out of
// band, at session end or on a schedule.
type Controller struct {
	history History
	cfg     GraduationConfig
}

// NewController creates a graduation controller over the given history
func NewController(history History, cfg GraduationConfig) *Controller {
	if cfg.RequiredWindows <= 0 {
		cfg.RequiredWindows = DefaultGraduation().RequiredWindows
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultGraduation().Window
	}
	return &Controller{history: history, cfg: cfg}
}

// Evaluate runs one graduation cycle over every category in the snapshot
// and returns a new snapshot plus the transitions taken. A category moves
// at most one step per cycle. Upward steps require the violation rate to
// stay below the threshold for RequiredWindows consecutive evaluations;
// downward steps on an error spike are immediate and reset the streak.
// History read failures leave the category untouched.
func (c *Controller) Evaluate(snap *Snapshot, now time.Time) (*Snapshot, []Transition) {
	next := snap.clone()
	next.UpdatedAt = now

	var transitions []Transition
	for category, level := range snap.Levels {
		errRate, err := c.history.ErrorRate(category, c.cfg.Window)
		if err != nil {
			logger.Warn().Err(err).Str("category", category).Msg("Skipping graduation, error rate unavailable")
			continue
		}

		if errRate >= c.cfg.ErrorSpikeThreshold && level != LevelSilent {
			to := level.Prev()
			next.Levels[category] = to
			next.CleanStreak[category] = 0
			transitions = append(transitions, Transition{
				Category: category,
				From:     level,
				To:       to,
				Reason:   fmt.Sprintf("hook error rate %.0f%% at or above %.0f%%", errRate*100, c.cfg.ErrorSpikeThreshold*100),
			})
			continue
		}

		vioRate, err := c.history.ViolationRate(category, c.cfg.Window)
		if err != nil {
			logger.Warn().Err(err).Str("category", category).Msg("Skipping graduation, violation rate unavailable")
			continue
		}

		if vioRate >= c.cfg.ViolationThreshold {
			next.CleanStreak[category] = 0
			continue
		}

		streak := next.CleanStreak[category] + 1
		if streak >= c.cfg.RequiredWindows && level != LevelFull {
			to := level.Next()
			next.Levels[category] = to
			next.CleanStreak[category] = 0
			transitions = append(transitions, Transition{
				Category: category,
				From:     level,
				To:       to,
				Reason:   fmt.Sprintf("violation rate %.1f%% below %.1f%% for %d windows", vioRate*100, c.cfg.ViolationThreshold*100, streak),
			})
			continue
		}
		next.CleanStreak[category] = streak
	}

	return next, transitions
}

// Override applies a manual de-escalation, bypassing the sustained-window
// requirement. Raising a level manually is refused; upward movement must
// be earned through graduation.
func Override(snap *Snapshot, category string, to Level) (*Snapshot, error) {
	if !to.Valid() {
		return nil, fmt.Errorf("unknown enforcement level %q", to)
	}
	current := snap.Level(category, LevelSilent)
	if to.Rank() > current.Rank() {
		return nil, fmt.Errorf("cannot raise %s from %s to %s: upward transitions are graduated, not manual", category, current, to)
	}
	next := snap.clone()
	next.Levels[category] = to
	next.CleanStreak[category] = 0
	next.UpdatedAt = time.Now()
	return next, nil
}
