package enforce

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrSnapshotInvalid is returned when the snapshot file exists but cannot
// be parsed. Like any configuration fault this fails closed: the engine
// refuses to run rather than enforcing at undefined levels.
var ErrSnapshotInvalid = errors.New("enforcement snapshot is invalid")

// Snapshot is the persisted enforcement state, read once per invocation
// and never mutated in place. Transitions produce a new snapshot which a
// single out-of-band writer persists via Save.
type Snapshot struct {
	Levels      map[string]Level `yaml:"levels"`
	CleanStreak map[string]int   `yaml:"clean_streak,omitempty"`
	UpdatedAt   time.Time        `yaml:"updated_at"`
}

// Level returns the enforcement level for a category, falling back to the
// given default for categories the snapshot has never seen.
func (s *Snapshot) Level(category string, fallback Level) Level {
	if s == nil {
		return fallback
	}
	if l, ok := s.Levels[category]; ok && l.Valid() {
		return l
	}
	return fallback
}

// clone produces a deep copy so transitions never touch the loaded snapshot
func (s *Snapshot) clone() *Snapshot {
	out := &Snapshot{
		Levels:      make(map[string]Level, len(s.Levels)),
		CleanStreak: make(map[string]int, len(s.CleanStreak)),
		UpdatedAt:   s.UpdatedAt,
	}
	for k, v := range s.Levels {
		out.Levels[k] = v
	}
	for k, v := range s.CleanStreak {
		out.CleanStreak[k] = v
	}
	return out
}

// Load reads the snapshot at path. A missing file yields a snapshot seeded
// from defaults; an unparseable file is a hard error.
func Load(path string, defaults map[string]Level) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		snap := &Snapshot{
			Levels:      make(map[string]Level, len(defaults)),
			CleanStreak: make(map[string]int),
		}
		for cat, lvl := range defaults {
			snap.Levels[cat] = lvl
		}
		return snap, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read enforcement snapshot: %w", err)
	}

	var snap Snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotInvalid, err)
	}
	for cat, lvl := range snap.Levels {
		if !lvl.Valid() {
			return nil, fmt.Errorf("%w: unknown level %q for category %q", ErrSnapshotInvalid, lvl, cat)
		}
	}
	if snap.Levels == nil {
		snap.Levels = make(map[string]Level)
	}
	if snap.CleanStreak == nil {
		snap.CleanStreak = make(map[string]int)
	}
	for cat, lvl := range defaults {
		if _, ok := snap.Levels[cat]; !ok {
			snap.Levels[cat] = lvl
		}
	}
	return &snap, nil
}

// Save writes the snapshot atomically via a temp file and rename
func Save(path string, snap *Snapshot) error {
	data, err := yaml.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode enforcement snapshot: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".enforcement-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create snapshot temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close snapshot temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return nil
}
