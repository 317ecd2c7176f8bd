package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/louisbranch/examdesk/internal/platform/timeouts"
	"github.com/louisbranch/examdesk/internal/services/calculator/domain/engine"
	"github.com/louisbranch/examdesk/internal/services/calculator/storage"
)

// DefaultQueueSize is the recorder buffer used when none is configured.
const DefaultQueueSize = 256

// Stats counts recorder outcomes.
type Stats struct {
	Recorded int64
	Dropped  int64
	Failed   int64
}

// Recorder turns engine transitions into audit records and persists them off
// the input path. A full queue drops records instead of blocking the engine.
type Recorder struct {
	emitter *Emitter
	logger  *slog.Logger
	clock   func() time.Time

	mu     sync.RWMutex
	closed bool
	queue  chan storage.AuditRecord
	wg     sync.WaitGroup

	recorded atomic.Int64
	dropped  atomic.Int64
	failed   atomic.Int64
}

// NewRecorder creates a recorder that writes through emitter and mirrors each
// record to logger. Either may be nil.
func NewRecorder(emitter *Emitter, logger *slog.Logger, queueSize int) *Recorder {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Recorder{
		emitter: emitter,
		logger:  logger,
		clock:   time.Now,
		queue:   make(chan storage.AuditRecord, queueSize),
	}
}

// ForSession returns an observer that records transitions for sessionID.
func (r *Recorder) ForSession(sessionID string) engine.Observer {
	return engine.ObserverFunc(func(t engine.Transition) {
		r.Enqueue(RecordFromTransition(sessionID, t, r.now()))
	})
}

// RecordFromTransition converts one engine transition to an audit record.
func RecordFromTransition(sessionID string, t engine.Transition, at time.Time) storage.AuditRecord {
	return storage.AuditRecord{
		SessionID:    sessionID,
		Sequence:     t.Sequence,
		InputType:    string(t.Action.Kind),
		InputValue:   t.Action.Value,
		DisplayValue: t.View.Display,
		HasMemory:    t.View.HasMemory,
		RecordedAt:   at.UTC(),
	}
}

// Enqueue schedules a record for persistence without blocking.
func (r *Recorder) Enqueue(record storage.AuditRecord) {
	if r == nil {
		return
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.dropped.Add(1)
		return
	}
	select {
	case r.queue <- record:
	default:
		r.dropped.Add(1)
	}
}

// Run persists queued records until ctx ends or the recorder is closed.
func (r *Recorder) Run(ctx context.Context) error {
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return nil
	}
	r.wg.Add(1)
	r.mu.RUnlock()
	defer r.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return nil
		case record, ok := <-r.queue:
			if !ok {
				return nil
			}
			r.write(ctx, record)
		}
	}
}

// Close stops accepting records, waits for Run to return and flushes what is
// still queued.
func (r *Recorder) Close() {
	if r == nil {
		return
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	r.wg.Wait()
	for record := range r.queue {
		r.write(context.Background(), record)
	}
}

// Stats returns a snapshot of the recorder counters.
func (r *Recorder) Stats() Stats {
	return Stats{
		Recorded: r.recorded.Load(),
		Dropped:  r.dropped.Load(),
		Failed:   r.failed.Load(),
	}
}

func (r *Recorder) write(ctx context.Context, record storage.AuditRecord) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeouts.AuditFlush)
	defer cancel()

	if err := r.emitter.Emit(writeCtx, record); err != nil {
		r.failed.Add(1)
		if r.logger != nil {
			r.logger.LogAttrs(writeCtx, slog.LevelWarn, "calculator audit write failed",
				slog.String("session_id", record.SessionID),
				slog.Int64("sequence", record.Sequence),
				slog.String("error", err.Error()),
			)
		}
		return
	}
	r.recorded.Add(1)
	if r.logger != nil {
		r.logger.LogAttrs(writeCtx, slog.LevelInfo, "calculator action",
			slog.String("session_id", record.SessionID),
			slog.Int64("sequence", record.Sequence),
			slog.String("input_type", record.InputType),
			slog.String("input_value", record.InputValue),
			slog.String("display_value", record.DisplayValue),
			slog.Bool("has_memory", record.HasMemory),
		)
	}
}

func (r *Recorder) now() time.Time {
	if r.clock == nil {
		return time.Now()
	}
	return r.clock()
}
