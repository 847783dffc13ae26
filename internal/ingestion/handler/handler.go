package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/ingestion/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/pkg/logger"
)

// maxBatch bounds the number of documents in one batch request.
const maxBatch = 1000

type Publisher interface {
	Ingest(ctx context.Context, req *ingestion.IngestRequest) (*ingestion.IngestResponse, error)
	IngestBatch(ctx context.Context, reqs []ingestion.IngestRequest) ([]ingestion.IngestResponse, error)
}

type Handler struct {
	publisher Publisher
	logger    *slog.Logger
}

func New(pub Publisher) *Handler {
	return &Handler{
		publisher: pub,
		logger:    slog.Default().With("component", "ingestion-handler"),
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/documents", h.Ingest)
	mux.HandleFunc("POST /api/v1/documents/batch", h.IngestBatch)
}

func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	var req ingestion.IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validator.ValidateIngestRequest(&req); err != nil {
		h.writeValidation(w, err, -1)
		return
	}

	resp, err := h.publisher.Ingest(ctx, &req)
	if err != nil {
		h.writeIngestFailure(w, log, err)
		return
	}
	log.Info("document queued", "doc_id", resp.DocumentID)
	h.writeJSON(w, http.StatusAccepted, resp)
}

// IngestBatch accepts a JSON array of documents. One invalid document
// rejects the whole batch.
func (h *Handler) IngestBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	var reqs []ingestion.IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(reqs) == 0 || len(reqs) > maxBatch {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("batch must hold between 1 and %d documents", maxBatch))
		return
	}
	for i := range reqs {
		if err := validator.ValidateIngestRequest(&reqs[i]); err != nil {
			h.writeValidation(w, err, i)
			return
		}
	}

	resps, err := h.publisher.IngestBatch(ctx, reqs)
	if err != nil {
		h.writeIngestFailure(w, log, err)
		return
	}
	log.Info("document batch queued", "count", len(resps))
	h.writeJSON(w, http.StatusAccepted, map[string]any{"documents": resps})
}

func (h *Handler) writeValidation(w http.ResponseWriter, err error, index int) {
	var validationErr *validator.ValidationError
	if !errors.As(err, &validationErr) {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	body := map[string]any{
		"error":  "validation failed",
		"fields": validationErr.Fields,
	}
	if index >= 0 {
		body["index"] = index
	}
	h.writeJSON(w, http.StatusBadRequest, body)
}

func (h *Handler) writeIngestFailure(w http.ResponseWriter, log *slog.Logger, err error) {
	statusCode := apperrors.HTTPStatusCode(err)
	log.Error("ingestion failed",
		"error", err,
		"status_code", statusCode,
	)
	h.writeError(w, statusCode, "ingestion failed")
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
