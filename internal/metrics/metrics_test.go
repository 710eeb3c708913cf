package metrics

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse-dev/gatehouse/internal/hook"
	"github.com/gatehouse-dev/gatehouse/internal/logger"
)

func TestMain(m *testing.M) {
	logger.InitQuiet()
	os.Exit(m.Run())
}

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "metrics.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func rec(hookName, category string, verdict hook.Verdict) Record {
	return Record{
		HookName:   hookName,
		Category:   category,
		Verdict:    verdict,
		DurationMs: 5,
		Timestamp:  time.Now(),
	}
}

func TestSQLiteStore_AppendAndRates(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Append(rec("h1", "naming", hook.VerdictAllow)))
	require.NoError(t, store.Append(rec("h1", "naming", hook.VerdictAllow)))
	require.NoError(t, store.Append(rec("h1", "naming", hook.VerdictBlock)))
	require.NoError(t, store.Append(rec("h2", "naming", hook.VerdictWarn)))
	require.NoError(t, store.Append(rec("h3", "hygiene", hook.VerdictAllow)))

	rate, err := store.ViolationRate("naming", time.Hour)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, rate, 0.001, "2 of 4 naming executions violated")

	rate, err = store.ViolationRate("hygiene", time.Hour)
	require.NoError(t, err)
	assert.Zero(t, rate)

	rate, err = store.ViolationRate("unknown", time.Hour)
	require.NoError(t, err)
	assert.Zero(t, rate, "no executions means zero, not an error")
}

func TestSQLiteStore_ErrorRate(t *testing.T) {
	store := newTestStore(t)

	ok := rec("h1", "naming", hook.VerdictAllow)
	timedOut := rec("h1", "naming", hook.VerdictAllow)
	timedOut.TimedOut = true
	faulted := rec("h1", "naming", hook.VerdictAllow)
	faulted.Failed = true

	require.NoError(t, store.Append(ok))
	require.NoError(t, store.Append(ok))
	require.NoError(t, store.Append(timedOut))
	require.NoError(t, store.Append(faulted))

	rate, err := store.ErrorRate("naming", time.Hour)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, rate, 0.001)
}

func TestSQLiteStore_WindowExcludesOldRecords(t *testing.T) {
	store := newTestStore(t)

	old := rec("h1", "naming", hook.VerdictBlock)
	old.Timestamp = time.Now().Add(-48 * time.Hour)
	require.NoError(t, store.Append(old))
	require.NoError(t, store.Append(rec("h1", "naming", hook.VerdictAllow)))

	rate, err := store.ViolationRate("naming", time.Hour)
	require.NoError(t, err)
	assert.Zero(t, rate, "the old block is outside the window")

	count, err := store.CountSince(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestSQLiteStore_Prune(t *testing.T) {
	store := newTestStore(t)

	old := rec("h1", "naming", hook.VerdictAllow)
	old.Timestamp = time.Now().Add(-72 * time.Hour)
	require.NoError(t, store.Append(old))
	require.NoError(t, store.Append(rec("h1", "naming", hook.VerdictAllow)))

	pruned, err := store.Prune(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)

	count, err := store.CountSince(30 * 24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestSQLiteStore_LastActivity(t *testing.T) {
	store := newTestStore(t)

	last, err := store.LastActivity()
	require.NoError(t, err)
	assert.True(t, last.IsZero(), "empty log has no activity")

	require.NoError(t, store.Append(rec("h1", "naming", hook.VerdictAllow)))
	last, err = store.LastActivity()
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), last, 5*time.Second)
}

// captureStore is an in-memory Store for recorder tests
type captureStore struct {
	mu      sync.Mutex
	records []Record
	gate    chan struct{}
	closed  bool
}

func (c *captureStore) Append(r Record) error {
	if c.gate != nil {
		<-c.gate
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, r)
	return nil
}

func (c *captureStore) ViolationRate(string, time.Duration) (float64, error) { return 0, nil }
func (c *captureStore) ErrorRate(string, time.Duration) (float64, error)    { return 0, nil }
func (c *captureStore) CountSince(time.Duration) (int64, error)             { return 0, nil }
func (c *captureStore) LastActivity() (time.Time, error)                    { return time.Time{}, nil }
func (c *captureStore) Prune(time.Duration) (int64, error)                  { return 0, nil }

func (c *captureStore) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *captureStore) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

func TestRecorder_FlushesOnClose(t *testing.T) {
	store := &captureStore{}
	r := NewRecorder(store)

	for i := 0; i < 50; i++ {
		r.Record(rec("h1", "naming", hook.VerdictAllow))
	}
	require.NoError(t, r.Close())

	assert.Equal(t, 50, store.count())
	assert.True(t, store.closed)
}

func TestRecorder_NeverBlocksProducers(t *testing.T) {
	// Gate the store so nothing drains, then push well past the buffer
	// capacity. Record must return promptly every time, shedding the
	// oldest entries.
	store := &captureStore{gate: make(chan struct{})}
	r := NewRecorder(store)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < defaultBufferSize*3; i++ {
			r.Record(rec("h1", "naming", hook.VerdictAllow))
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Record blocked on a full buffer")
	}

	close(store.gate)
	_ = r.Close()
	assert.LessOrEqual(t, store.count(), defaultBufferSize+2, "overflow must be shed, not queued")
}

func TestRecorder_CloseIsIdempotent(t *testing.T) {
	r := NewRecorder(&captureStore{})
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
}
