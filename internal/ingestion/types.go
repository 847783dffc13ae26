// Package ingestion accepts documents over HTTP or from batch loaders and
// publishes them to the document-ingest Kafka topic consumed by the indexer.
package ingestion

// IngestRequest is one document submitted for indexing. DocumentID is
// optional; a random ID is assigned when it is empty. Submitting an existing
// ID replaces that document in its shard.
type IngestRequest struct {
	DocumentID string `json:"document_id"`
	Title      string `json:"title"`
	Body       string `json:"body"`
}

// IngestResponse is returned once a document is queued.
type IngestResponse struct {
	DocumentID string `json:"document_id"`
	Status     string `json:"status"`
}

// StatusQueued means the event is on the topic but not yet indexed.
const StatusQueued = "QUEUED"
