// Package collector buffers analytics events and publishes them to Kafka in
// batches. BatchCollector satisfies analytics.Tracker, so the searcher and
// evaluation runs can hand it events without blocking on the broker.
package collector

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/pkg/kafka"
)

// retainedBatches caps how many batches' worth of events are kept while the
// broker keeps failing.
const retainedBatches = 3

// Publisher writes a batch of events; *kafka.Producer implements it.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// BatchCollector flushes buffered events when batchSize is reached or every
// flushInterval, whichever comes first. Flushes are serialized so events
// reach the topic in the order they were tracked, retries included.
type BatchCollector struct {
	producer      Publisher
	batchSize     int
	flushInterval time.Duration

	mu      sync.Mutex
	buffer  []kafka.Event
	flushMu sync.Mutex
	pending sync.WaitGroup
	dropped atomic.Int64

	cancel context.CancelFunc
	done   chan struct{}
	logger *slog.Logger
}

func NewBatchCollector(producer Publisher, batchSize int, flushInterval time.Duration) *BatchCollector {
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	return &BatchCollector{
		producer:      producer,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		buffer:        make([]kafka.Event, 0, batchSize),
		logger:        slog.Default().With("component", "batch-collector"),
	}
}

// Start launches the flush loop. It stops when ctx is cancelled or Close is
// called, flushing whatever is still buffered.
func (bc *BatchCollector) Start(ctx context.Context) {
	ctx, bc.cancel = context.WithCancel(ctx)
	bc.done = make(chan struct{})
	go func() {
		defer close(bc.done)
		ticker := time.NewTicker(bc.flushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				bc.flush(ctx)
			case <-ctx.Done():
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				bc.flush(flushCtx)
				cancel()
				return
			}
		}
	}()
	bc.logger.Info("batch collector started",
		"batch_size", bc.batchSize,
		"flush_interval", bc.flushInterval,
	)
}

// Track buffers one event; a full buffer triggers an asynchronous flush.
func (bc *BatchCollector) Track(key string, value any) {
	bc.mu.Lock()
	bc.buffer = append(bc.buffer, kafka.Event{Key: key, Value: value})
	full := len(bc.buffer) >= bc.batchSize
	bc.mu.Unlock()

	if full {
		bc.pending.Add(1)
		go func() {
			defer bc.pending.Done()
			bc.flush(context.Background())
		}()
	}
}

// Close waits for size-triggered flushes, stops the flush loop and waits for
// its final flush. Without a prior Start it flushes synchronously. The
// producer may be closed once Close returns.
func (bc *BatchCollector) Close() {
	bc.pending.Wait()
	if bc.cancel == nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		bc.flush(ctx)
		return
	}
	bc.cancel()
	<-bc.done
	if n := bc.Dropped(); n > 0 {
		bc.logger.Warn("batch collector closed with dropped events", "dropped", n)
	}
}

// BufferLen returns the number of events awaiting publication.
func (bc *BatchCollector) BufferLen() int {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return len(bc.buffer)
}

// Dropped returns how many events were discarded after repeated failures.
func (bc *BatchCollector) Dropped() int64 {
	return bc.dropped.Load()
}

func (bc *BatchCollector) flush(ctx context.Context) {
	bc.flushMu.Lock()
	defer bc.flushMu.Unlock()

	bc.mu.Lock()
	if len(bc.buffer) == 0 {
		bc.mu.Unlock()
		return
	}
	batch := bc.buffer
	bc.buffer = make([]kafka.Event, 0, bc.batchSize)
	bc.mu.Unlock()

	err := bc.producer.PublishBatch(ctx, batch)
	if err == nil {
		bc.logger.Debug("batch flushed", "events", len(batch))
		return
	}
	bc.logger.Error("batch flush failed", "batch_size", len(batch), "error", err)

	// The failed batch goes back in front of anything tracked meanwhile.
	bc.mu.Lock()
	bc.buffer = append(batch, bc.buffer...)
	if limit := bc.batchSize * retainedBatches; len(bc.buffer) > limit {
		n := len(bc.buffer) - limit
		bc.buffer = bc.buffer[:limit]
		bc.dropped.Add(int64(n))
		bc.logger.Warn("buffer overflow, events dropped", "dropped", n)
	}
	bc.mu.Unlock()
}
