// Package consumer reads document events from Kafka and indexes them into
// the shard that owns each document ID.
package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/indexer/shard"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/pkg/metrics"
)

// DocumentEvent is the Kafka payload of one document to index. Publishers
// key the message by DocumentID.
type DocumentEvent struct {
	DocumentID string    `json:"document_id"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	IngestedAt time.Time `json:"ingested_at"`
}

// Indexer is the slice of shard.Router the consumer needs.
type Indexer interface {
	RouteDocument(docID string) (int, Engine)
}

// Engine indexes one document.
type Engine interface {
	IndexDocument(docID, title, body string) error
}

// IndexConsumer wraps a Kafka consumer to drive the indexing pipeline.
type IndexConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

// New creates an IndexConsumer backed by the given Kafka consumer.
func New(kafkaConsumer *kafka.Consumer) *IndexConsumer {
	return &IndexConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "index-consumer"),
	}
}

// Start begins consuming Kafka messages. It blocks until ctx is cancelled.
func (ic *IndexConsumer) Start(ctx context.Context) error {
	ic.logger.Info("index consumer starting")
	return ic.consumer.Start(ctx)
}

// RouterIndexer adapts a shard.Router to Indexer.
func RouterIndexer(r *shard.Router) Indexer {
	return routerIndexer{r}
}

type routerIndexer struct{ r *shard.Router }

func (ri routerIndexer) RouteDocument(docID string) (int, Engine) {
	id, engine := ri.r.RouteDocument(docID)
	return id, engine
}

// HandleMessage returns a Kafka MessageHandler that indexes each document
// event into its shard. Undecodable events and events without an ID are
// skipped; indexing failures leave the message uncommitted. m may be nil.
func HandleMessage(idx Indexer, m *metrics.Metrics) kafka.MessageHandler {
	logger := slog.Default().With("component", "index-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[DocumentEvent](value)
		if err != nil {
			logger.Error("failed to decode document event",
				"error", err,
				"key", string(key),
			)
			return err
		}
		if event.DocumentID == "" {
			return fmt.Errorf("%w: document event without id", kafka.ErrSkip)
		}

		shardID, engine := idx.RouteDocument(event.DocumentID)
		logger.Debug("processing document event",
			"doc_id", event.DocumentID,
			"shard_id", shardID,
		)
		if err := engine.IndexDocument(event.DocumentID, event.Title, event.Body); err != nil {
			return fmt.Errorf("indexing document %s in shard %d: %w", event.DocumentID, shardID, err)
		}
		if m != nil {
			m.DocsIndexedTotal.Inc()
		}
		logger.Debug("document indexed",
			"doc_id", event.DocumentID,
			"shard_id", shardID,
		)
		return nil
	}
}
