// Package telemetryqueue is the async, fire-and-forget telemetry sink: the
// governance pipeline's hot path never blocks on a database write. Records
// are buffered in a bounded channel, drained by a fixed pool of workers that
// batch writes, retry transient failures with backoff, and dead-letter
// anything that never succeeds.
package telemetryqueue

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/wisbric/adlcgate/internal/telemetry"
)

// Record is one telemetry event: a categorized, already-redacted summary of
// a governed call. Payload must never contain raw secret material or
// unredacted PII — that invariant is enforced by the governance pipeline
// before Enqueue is ever called.
type Record struct {
	RecordID  string
	ProjectID string
	UserID    string
	Kind      string
	Payload   json.RawMessage
	CreatedAt time.Time
}

// Store persists batches of telemetry records.
type Store interface {
	EnsureSchema(ctx context.Context) error
	Write(ctx context.Context, records []Record) error
	WriteDeadLetter(ctx context.Context, record Record, reason string) error
}

// Queue buffers and asynchronously flushes telemetry records.
type Queue struct {
	store       Store
	logger      *slog.Logger
	records     chan Record
	workers     int
	flushBatch  int
	flushPeriod time.Duration
	maxRetries  int
	drainFor    time.Duration
	wg          sync.WaitGroup
}

// Config bundles the tunables for a Queue.
type Config struct {
	BufferSize   int
	Workers      int
	FlushBatch   int
	FlushPeriod  time.Duration
	MaxRetries   int
	DrainTimeout time.Duration
}

// New creates a Queue. Call Start to begin processing.
func New(store Store, logger *slog.Logger, cfg Config) *Queue {
	return &Queue{
		store:       store,
		logger:      logger,
		records:     make(chan Record, cfg.BufferSize),
		workers:     cfg.Workers,
		flushBatch:  cfg.FlushBatch,
		flushPeriod: cfg.FlushPeriod,
		maxRetries:  cfg.MaxRetries,
		drainFor:    cfg.DrainTimeout,
	}
}

// Start launches the fixed worker pool. Each worker independently batches
// and flushes; ctx cancellation begins a bounded drain in every worker.
func (q *Queue) Start(ctx context.Context) {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			q.run(ctx)
		}()
	}
}

// Close waits for all workers to finish draining.
func (q *Queue) Close() {
	close(q.records)
	q.wg.Wait()
}

// Enqueue submits a record without blocking. If the buffer is full, the
// record is dropped and TelemetryDroppedTotal is incremented — the
// governance pipeline's response to the caller must never depend on
// whether telemetry persistence succeeds.
func (q *Queue) Enqueue(r Record) {
	select {
	case q.records <- r:
	default:
		telemetry.TelemetryDroppedTotal.Inc()
		q.logger.Warn("telemetry queue full, dropping record", "record_id", r.RecordID, "kind", r.Kind)
	}
}

func (q *Queue) run(ctx context.Context) {
	ticker := time.NewTicker(q.flushPeriod)
	defer ticker.Stop()

	batch := make([]Record, 0, q.flushBatch)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		q.flushWithRetry(batch)
		batch = batch[:0]
	}

	for {
		select {
		case rec, ok := <-q.records:
			if !ok {
				flush()
				return
			}
			batch = append(batch, rec)
			if len(batch) >= q.flushBatch {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			q.drain(&batch, flush)
			return
		}
	}
}

// drain gives the worker up to drainFor to empty the channel before giving
// up, so shutdown has a bounded grace period rather than blocking forever
// on a slow or wedged store.
func (q *Queue) drain(batch *[]Record, flush func()) {
	deadline := time.After(q.drainFor)
	for {
		select {
		case rec, ok := <-q.records:
			if !ok {
				flush()
				return
			}
			*batch = append(*batch, rec)
		case <-deadline:
			flush()
			return
		}
	}
}

// flushWithRetry writes a batch, retrying the whole batch with exponential
// backoff up to maxRetries times before moving every record in it to the
// dead-letter sink.
func (q *Queue) flushWithRetry(batch []Record) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var err error
	for attempt := 0; attempt <= q.maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(backoff(attempt))
		}
		if err = q.store.Write(ctx, batch); err == nil {
			return
		}
		q.logger.Warn("telemetry flush failed, retrying", "attempt", attempt, "error", err)
	}

	q.logger.Error("telemetry flush exhausted retries, dead-lettering batch", "count", len(batch), "error", err)
	for _, rec := range batch {
		if dlErr := q.store.WriteDeadLetter(ctx, rec, err.Error()); dlErr != nil {
			q.logger.Error("writing dead-lettered telemetry record failed", "record_id", rec.RecordID, "error", dlErr)
			continue
		}
		telemetry.TelemetryDeadLetteredTotal.Inc()
	}
}

func backoff(attempt int) time.Duration {
	d := time.Duration(1<<uint(attempt-1)) * 200 * time.Millisecond
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}
