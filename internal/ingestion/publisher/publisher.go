// Package publisher turns ingestion requests into document events on the
// document-ingest topic. Events are keyed by document ID so that every
// version of a document lands on the same partition in order.
package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/pkg/kafka"
)

// Producer is the subset of kafka.Producer the publisher uses.
type Producer interface {
	Publish(ctx context.Context, event kafka.Event) error
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// Publisher assigns IDs and publishes document events.
type Publisher struct {
	producer Producer
	now      func() time.Time
	logger   *slog.Logger
}

func New(producer Producer) *Publisher {
	return &Publisher{
		producer: producer,
		now:      time.Now,
		logger:   slog.Default().With("component", "publisher"),
	}
}

// Ingest publishes one document and returns its ID.
func (p *Publisher) Ingest(ctx context.Context, req *ingestion.IngestRequest) (*ingestion.IngestResponse, error) {
	event := p.event(req)
	if err := p.producer.Publish(ctx, event); err != nil {
		return nil, fmt.Errorf("publishing document %s: %w", event.Key, err)
	}
	p.logger.Debug("document queued", "doc_id", event.Key)
	return &ingestion.IngestResponse{DocumentID: event.Key, Status: ingestion.StatusQueued}, nil
}

// IngestBatch publishes all documents in one write. Nothing is queued when
// the write fails.
func (p *Publisher) IngestBatch(ctx context.Context, reqs []ingestion.IngestRequest) ([]ingestion.IngestResponse, error) {
	if len(reqs) == 0 {
		return nil, nil
	}
	events := make([]kafka.Event, len(reqs))
	resps := make([]ingestion.IngestResponse, len(reqs))
	for i := range reqs {
		events[i] = p.event(&reqs[i])
		resps[i] = ingestion.IngestResponse{DocumentID: events[i].Key, Status: ingestion.StatusQueued}
	}
	if err := p.producer.PublishBatch(ctx, events); err != nil {
		return nil, fmt.Errorf("publishing %d documents: %w", len(events), err)
	}
	p.logger.Info("document batch queued", "count", len(events))
	return resps, nil
}

func (p *Publisher) event(req *ingestion.IngestRequest) kafka.Event {
	id := req.DocumentID
	if id == "" {
		id = uuid.NewString()
	}
	return kafka.Event{
		Key: id,
		Value: consumer.DocumentEvent{
			DocumentID: id,
			Title:      req.Title,
			Body:       req.Body,
			IngestedAt: p.now().UTC(),
		},
	}
}
