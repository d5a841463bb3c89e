package audit

import (
	"context"
	"log/slog"
	"time"
)

// Writer persists entry batches.
type Writer interface {
	InsertEntries(ctx context.Context, entries []Entry) error
}

// RetryEnqueuer hands failed batches to the background job queue so delivery
// stays at-least-once even when the store is briefly unavailable.
type RetryEnqueuer interface {
	EnqueueAuditPersist(ctx context.Context, entries []Entry) error
}

// Counter increments a metric. Satisfied by prometheus.Counter.
type Counter interface {
	Inc()
}

// RecorderConfig tunes the recorder queue and flushing.
type RecorderConfig struct {
	QueueSize     int
	BatchSize     int
	FlushInterval time.Duration
	WriteTimeout  time.Duration
}

func (c *RecorderConfig) defaults() {
	if c.QueueSize <= 0 {
		c.QueueSize = 4096
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 64
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
}

// Recorder decouples audit writes from the authorization path. Record never
// blocks: entries go into a bounded queue drained by Run. When the queue is
// full the entry is dropped and counted, trading durability for request
// latency.
type Recorder struct {
	writer  Writer
	retry   RetryEnqueuer
	logger  *slog.Logger
	dropped Counter
	cfg     RecorderConfig
	queue   chan Entry
}

// NewRecorder constructs a Recorder. retry and dropped may be nil.
func NewRecorder(writer Writer, retry RetryEnqueuer, logger *slog.Logger, dropped Counter, cfg RecorderConfig) *Recorder {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		writer:  writer,
		retry:   retry,
		logger:  logger,
		dropped: dropped,
		cfg:     cfg,
		queue:   make(chan Entry, cfg.QueueSize),
	}
}

// Record enqueues an entry without blocking. Returns false when the entry was
// dropped because the queue is full.
func (r *Recorder) Record(entry Entry) bool {
	select {
	case r.queue <- entry:
		return true
	default:
		if r.dropped != nil {
			r.dropped.Inc()
		}
		r.logger.Warn("audit queue full, entry dropped", slog.String("action", entry.Action))
		return false
	}
}

// Run drains the queue until ctx is cancelled, batching inserts. A final drain
// flushes whatever is still queued before returning.
func (r *Recorder) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]Entry, 0, r.cfg.BatchSize)
	for {
		select {
		case <-ctx.Done():
			r.drainRemaining(batch)
			return
		case entry := <-r.queue:
			batch = append(batch, entry)
			if len(batch) >= r.cfg.BatchSize {
				r.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				r.flush(batch)
				batch = batch[:0]
			}
		}
	}
}

func (r *Recorder) drainRemaining(batch []Entry) {
	for {
		select {
		case entry := <-r.queue:
			batch = append(batch, entry)
		default:
			if len(batch) > 0 {
				r.flush(batch)
			}
			return
		}
	}
}

// flush writes a batch, falling back to the retry queue on failure. Writes use
// a fresh context: the request contexts that produced these entries are gone.
func (r *Recorder) flush(batch []Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.WriteTimeout)
	defer cancel()

	err := r.writer.InsertEntries(ctx, batch)
	if err == nil {
		return
	}
	r.logger.Warn("audit batch insert failed", slog.Any("error", err), slog.Int("entries", len(batch)))
	if r.retry == nil {
		return
	}
	entries := make([]Entry, len(batch))
	copy(entries, batch)
	if err := r.retry.EnqueueAuditPersist(ctx, entries); err != nil {
		r.logger.Error("audit retry enqueue failed, entries lost", slog.Any("error", err), slog.Int("entries", len(entries)))
	}
}
