package metrics

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gatehouse-dev/gatehouse/internal/hook"

	_ "modernc.org/sqlite" // SQLite driver for database/sql
)

// Record is one appended hook-execution outcome. Records are never
// mutated; pruning past the retention window happens in a separate
// maintenance pass, not on the hot path.
type Record struct {
	HookName   string
	Category   string
	Verdict    hook.Verdict
	DurationMs int64
	TimedOut   bool
	Failed     bool
	SessionID  string
	Timestamp  time.Time
}

// Store is the persistence contract for the metrics log
type Store interface {
	Append(rec Record) error
	ViolationRate(category string, window time.Duration) (float64, error)
	ErrorRate(category string, window time.Duration) (float64, error)
	CountSince(window time.Duration) (int64, error)
	LastActivity() (time.Time, error)
	Prune(retention time.Duration) (int64, error)
	Close() error
}

// SQLiteStore implements Store over a single append-only table. WAL mode
// plus a busy timeout keeps appends safe when overlapping invocations
// write concurrently.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore opens (creating if needed) the metrics database.
// An empty path defaults to ~/.gatehouse/metrics.db.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dbPath = filepath.Join(homeDir, ".gatehouse", "metrics.db")
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create metrics directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open metrics database: %w", err)
	}

	store := &SQLiteStore{db: db, dbPath: dbPath}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize metrics schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS executions (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			hook_name   TEXT NOT NULL,
			category    TEXT NOT NULL,
			verdict     TEXT NOT NULL,
			duration_ms INTEGER NOT NULL,
			timed_out   INTEGER NOT NULL DEFAULT 0,
			failed      INTEGER NOT NULL DEFAULT 0,
			session_id  TEXT,
			ts          INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_executions_category_ts ON executions(category, ts);
		CREATE INDEX IF NOT EXISTS idx_executions_ts ON executions(ts);
	`)
	return err
}

// Append inserts one record. INSERT only; nothing on the hot path ever
// updates or deletes.
func (s *SQLiteStore) Append(rec Record) error {
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO executions (hook_name, category, verdict, duration_ms, timed_out, failed, session_id, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.HookName, rec.Category, string(rec.Verdict), rec.DurationMs,
		boolInt(rec.TimedOut), boolInt(rec.Failed), rec.SessionID, ts.Unix())
	if err != nil {
		return fmt.Errorf("failed to append metrics record: %w", err)
	}
	return nil
}

// ViolationRate returns the share of executions in the window for a
// category whose verdict was warn or block. No executions means 0.
func (s *SQLiteStore) ViolationRate(category string, window time.Duration) (float64, error) {
	since := time.Now().Add(-window).Unix()
	row := s.db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN verdict IN ('warn', 'block') THEN 1 ELSE 0 END), 0)
		FROM executions
		WHERE category = ? AND ts >= ?`, category, since)

	var total, violations int64
	if err := row.Scan(&total, &violations); err != nil {
		return 0, fmt.Errorf("failed to query violation rate: %w", err)
	}
	if total == 0 {
		return 0, nil
	}
	return float64(violations) / float64(total), nil
}

// ErrorRate returns the share of executions in the window for a category
// that timed out or faulted
func (s *SQLiteStore) ErrorRate(category string, window time.Duration) (float64, error) {
	since := time.Now().Add(-window).Unix()
	row := s.db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN timed_out = 1 OR failed = 1 THEN 1 ELSE 0 END), 0)
		FROM executions
		WHERE category = ? AND ts >= ?`, category, since)

	var total, faults int64
	if err := row.Scan(&total, &faults); err != nil {
		return 0, fmt.Errorf("failed to query error rate: %w", err)
	}
	if total == 0 {
		return 0, nil
	}
	return float64(faults) / float64(total), nil
}

// CountSince returns how many executions were recorded within the window
func (s *SQLiteStore) CountSince(window time.Duration) (int64, error) {
	since := time.Now().Add(-window).Unix()
	var count int64
	err := s.db.QueryRow(`SELECT COUNT(*) FROM executions WHERE ts >= ?`, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count metrics records: %w", err)
	}
	return count, nil
}

// LastActivity returns the timestamp of the newest record, zero when the
// log is empty
func (s *SQLiteStore) LastActivity() (time.Time, error) {
	var ts sql.NullInt64
	err := s.db.QueryRow(`SELECT MAX(ts) FROM executions`).Scan(&ts)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to query last activity: %w", err)
	}
	if !ts.Valid {
		return time.Time{}, nil
	}
	return time.Unix(ts.Int64, 0), nil
}

// Prune deletes records older than the retention window. Maintenance
// only; never called from the decision path.
func (s *SQLiteStore) Prune(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).Unix()
	res, err := s.db.Exec(`DELETE FROM executions WHERE ts < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune metrics records: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the underlying database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
