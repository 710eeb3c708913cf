package metrics

import (
	"sync"
	"time"

	"github.com/gatehouse-dev/gatehouse/internal/logger"
)

const (
	defaultBufferSize   = 256
	defaultDrainTimeout = 2 * time.Second
)

// Recorder decouples the decision path from metrics persistence: producers
// enqueue into a bounded buffer and a single background goroutine drains
// it to the store. Record never blocks; when the buffer is full the oldest
// queued record is dropped to admit the new one. Store failures are logged
// and swallowed, never surfaced to the caller.
type Recorder struct {
	store     Store
	ch        chan Record
	done      chan struct{}
	closeOnce sync.Once
}

// NewRecorder starts a recorder over the given store. The drain goroutine
// starts immediately.
func NewRecorder(store Store) *Recorder {
	r := &Recorder{
		store: store,
		ch:    make(chan Record, defaultBufferSize),
		done:  make(chan struct{}),
	}
	go r.drain()
	return r
}

// Record enqueues one execution outcome, best-effort
func (r *Recorder) Record(rec Record) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	select {
	case r.ch <- rec:
		return
	default:
	}
	// Full buffer: evict the oldest queued record, then retry once. If a
	// concurrent producer wins the race for the freed slot, this record
	// is the one dropped.
	select {
	case old := <-r.ch:
		logger.Warn().
			Str("hook", old.HookName).
			Msg("Metrics buffer full, dropping oldest record")
	default:
	}
	select {
	case r.ch <- rec:
	default:
	}
}

// Close stops accepting records, waits for the drain goroutine to flush
// (bounded by a timeout), and closes the store.
func (r *Recorder) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.ch)
		select {
		case <-r.done:
		case <-time.After(defaultDrainTimeout):
			logger.Warn().Msg("Metrics drain timed out on close")
		}
		err = r.store.Close()
	})
	return err
}

func (r *Recorder) drain() {
	defer close(r.done)
	for rec := range r.ch {
		if err := r.store.Append(rec); err != nil {
			logger.Warn().Err(err).Msg("Failed to append metrics record")
		}
	}
}
