package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/ingestion/validator"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/trec"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/pkg/kafka"
)

var publishBatch int

// batchIngester is the publisher API publishDocuments needs.
type batchIngester interface {
	IngestBatch(ctx context.Context, reqs []ingestion.IngestRequest) ([]ingestion.IngestResponse, error)
}

var publishCmd = &cobra.Command{
	Use:   "publish <path>...",
	Short: "Publish TREC SGML documents to the document-ingest topic for the indexer service",
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return errors.New("at least one collection file or directory must be given")
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		files, err := collectionFiles(args)
		if err != nil {
			return err
		}
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest)
		defer producer.Close()

		n, err := publishDocuments(cmd.Context(), publisher.New(producer), files, publishBatch)
		if err != nil {
			return err
		}
		slog.Info("publishing complete", "files", len(files), "documents", n, "topic", cfg.Kafka.Topics.DocumentIngest)
		return nil
	},
}

func init() {
	publishCmd.Flags().IntVar(&publishBatch, "batch", 500, "documents per Kafka write")
}

// publishDocuments validates every document and publishes them in batches.
// Invalid documents are logged and skipped.
func publishDocuments(ctx context.Context, pub batchIngester, files []string, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 1
	}
	published := 0
	batch := make([]ingestion.IngestRequest, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if _, err := pub.IngestBatch(ctx, batch); err != nil {
			return err
		}
		published += len(batch)
		batch = batch[:0]
		return nil
	}
	for _, file := range files {
		err := trec.ReadDocuments(file, func(doc trec.Document) error {
			req := ingestion.IngestRequest{DocumentID: doc.DocNo, Title: doc.Title, Body: doc.Text}
			if err := validator.ValidateIngestRequest(&req); err != nil {
				slog.Warn("document skipped", "file", file, "doc_id", doc.DocNo, "error", err)
				return nil
			}
			batch = append(batch, req)
			if len(batch) >= batchSize {
				return flush()
			}
			return nil
		})
		if err != nil {
			return published, err
		}
	}
	if err := flush(); err != nil {
		return published, fmt.Errorf("publishing final batch: %w", err)
	}
	return published, nil
}
