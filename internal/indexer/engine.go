// Package indexer owns one shard's inverted index: an in-memory buffer that
// is flushed into immutable .spdx segments, plus the collection statistics
// and stored document vectors that relevance feedback reads back.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/pkg/errors"
)

type Engine struct {
	memIndex *index.MemoryIndex
	writer   *segment.Writer
	// writeMu is held shared by IndexDocument and exclusively by Flush so
	// that no document lands in the buffer between snapshot and reset.
	writeMu sync.RWMutex
	// segMu serializes segment registration between Flush and
	// ReloadSegments.
	segMu sync.Mutex

	readers      []*segment.Reader
	loaded       map[string]struct{}
	readerMu     sync.RWMutex
	cfg          config.IndexerConfig
	logger       *slog.Logger
	docLengths   map[string]int
	docLengthsMu sync.RWMutex
	totalDocs    int64
	totalTokens  int64
}

func NewEngine(cfg config.IndexerConfig) (*Engine, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating index data directory: %w", err)
	}
	e := &Engine{
		memIndex:   index.NewMemoryIndex(),
		writer:     segment.NewWriter(cfg.DataDir),
		loaded:     make(map[string]struct{}),
		cfg:        cfg,
		logger:     slog.Default().With("component", "indexer", "data_dir", cfg.DataDir),
		docLengths: make(map[string]int),
	}
	if err := e.loadExistingSegments(); err != nil {
		return nil, fmt.Errorf("loading existing segments: %w", err)
	}
	return e, nil
}

func (e *Engine) IndexDocument(docID string, title string, body string) error {
	e.writeMu.RLock()
	length := e.memIndex.AddDocument(docID, title, body)
	e.recordLength(docID, length)
	size := e.memIndex.Size()
	e.writeMu.RUnlock()

	e.logger.Debug("document indexed in memory",
		"doc_id", docID,
		"token_count", length,
		"mem_size", size,
	)
	if e.cfg.SegmentMaxSize > 0 && size >= e.cfg.SegmentMaxSize {
		e.logger.Info("memory index reached max size, flushing to disk",
			"size", size,
			"threshold", e.cfg.SegmentMaxSize,
		)
		if err := e.Flush(); err != nil {
			return fmt.Errorf("flushing memory index: %w", err)
		}
	}
	return nil
}

// recordLength keeps the collection totals right when a document is
// indexed again.
func (e *Engine) recordLength(docID string, length int) {
	e.docLengthsMu.Lock()
	defer e.docLengthsMu.Unlock()
	if old, exists := e.docLengths[docID]; exists {
		e.totalTokens -= int64(old)
	} else {
		e.totalDocs++
	}
	e.docLengths[docID] = length
	e.totalTokens += int64(length)
}

func (e *Engine) Flush() error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	e.segMu.Lock()
	defer e.segMu.Unlock()

	snapshot := e.memIndex.Snapshot()
	if len(snapshot) == 0 {
		return nil
	}
	segmentName, err := e.writer.Write(snapshot, e.memIndex.VectorSnapshot())
	if err != nil {
		return fmt.Errorf("writing segment: %w", err)
	}

	segPath := filepath.Join(e.cfg.DataDir, segmentName)
	reader, err := segment.OpenReader(segPath)
	if err != nil {
		return fmt.Errorf("opening new segment for reading: %w", err)
	}
	e.readerMu.Lock()
	e.readers = append(e.readers, reader)
	e.loaded[segmentName] = struct{}{}
	active := len(e.readers)
	e.readerMu.Unlock()
	e.memIndex.Reset()
	e.logger.Info("segment flushed",
		"segment", segmentName,
		"terms", reader.Terms(),
		"docs", reader.DocCount(),
		"active_segments", active,
	)
	return nil
}

// Search analyzes a raw query word and returns its postings.
func (e *Engine) Search(term string) (index.PostingList, error) {
	tokens := tokenizer.Tokenize(term)
	if len(tokens) == 0 {
		return nil, nil
	}
	return e.Lookup(tokens[0].Term)
}

// Lookup returns the postings of an already analyzed term across the buffer
// and every segment, one posting per document.
func (e *Engine) Lookup(term string) (index.PostingList, error) {
	allPostings := e.memIndex.Search(term)
	for _, reader := range e.segments() {
		postings, err := reader.Search(term)
		if err != nil {
			e.logger.Error("segment search failed",
				"segment", reader.Path(),
				"error", err,
			)
			continue
		}
		allPostings = append(allPostings, postings...)
	}
	return deduplicatePostings(allPostings), nil
}

// TermStats returns the document and collection frequency of an analyzed
// term. A document indexed into several segments counts once per segment.
func (e *Engine) TermStats(term string) (df int64, cf int64, err error) {
	buffered := e.memIndex.Search(term)
	df = int64(len(buffered))
	cf = buffered.CollectionFrequency()
	for _, reader := range e.segments() {
		sdf, scf, err := reader.TermStats(term)
		if err != nil {
			return 0, 0, fmt.Errorf("term stats in %s: %w", reader.Path(), err)
		}
		df += int64(sdf)
		cf += scf
	}
	return df, cf, nil
}

// DocumentVector returns the term frequencies and length of docID, reading
// the buffer first and then segments newest first.
func (e *Engine) DocumentVector(docID string) (index.DocVector, error) {
	if vec, ok := e.memIndex.DocumentVector(docID); ok {
		return vec, nil
	}
	readers := e.segments()
	for i := len(readers) - 1; i >= 0; i-- {
		vec, ok, err := readers[i].DocumentVector(docID)
		if err != nil {
			return index.DocVector{}, fmt.Errorf("%s: %w", readers[i].Path(), err)
		}
		if ok {
			return vec, nil
		}
	}
	return index.DocVector{}, fmt.Errorf("vector for %s: %w", docID, apperrors.ErrDocumentNotFound)
}

func (e *Engine) segments() []*segment.Reader {
	e.readerMu.RLock()
	defer e.readerMu.RUnlock()
	readers := make([]*segment.Reader, len(e.readers))
	copy(readers, e.readers)
	return readers
}

func (e *Engine) SegmentCount() int {
	e.readerMu.RLock()
	defer e.readerMu.RUnlock()
	return len(e.readers)
}

func (e *Engine) GetDocLength(docID string) int {
	e.docLengthsMu.RLock()
	defer e.docLengthsMu.RUnlock()
	return e.docLengths[docID]
}

func (e *Engine) GetAvgDocLength() float64 {
	e.docLengthsMu.RLock()
	defer e.docLengthsMu.RUnlock()
	if e.totalDocs == 0 {
		return 0
	}
	return float64(e.totalTokens) / float64(e.totalDocs)
}

func (e *Engine) GetTotalDocs() int64 {
	e.docLengthsMu.RLock()
	defer e.docLengthsMu.RUnlock()
	return e.totalDocs
}

// TotalTokens is the number of analyzed tokens in the shard.
func (e *Engine) TotalTokens() int64 {
	e.docLengthsMu.RLock()
	defer e.docLengthsMu.RUnlock()
	return e.totalTokens
}

func (e *Engine) StartFlushLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.FlushInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				e.logger.Info("flush loop stopping, performing final flush")
				if err := e.Flush(); err != nil {
					e.logger.Error("final flush failed", "error", err)
				}
				return
			case <-ticker.C:
				if e.memIndex.DocCount() > 0 {
					if err := e.Flush(); err != nil {
						e.logger.Error("periodic flush failed", "error", err)
					}
				}
			}
		}
	}()
}

func (e *Engine) Close() error {
	if err := e.Flush(); err != nil {
		e.logger.Error("final flush on close failed", "error", err)
	}
	e.readerMu.Lock()
	defer e.readerMu.Unlock()
	for _, reader := range e.readers {
		if err := reader.Close(); err != nil {
			e.logger.Error("closing segment reader", "error", err)
		}
	}
	e.readers = nil
	e.loaded = make(map[string]struct{})
	return nil
}

// ReloadSegments opens segment files that appeared in the data directory
// since the last scan, such as those flushed by a separate indexer process,
// and returns how many were added.
func (e *Engine) ReloadSegments() int {
	e.segMu.Lock()
	defer e.segMu.Unlock()
	names, err := e.segmentFiles()
	if err != nil {
		e.logger.Error("scanning for segments", "error", err)
		return 0
	}
	added := 0
	for _, name := range names {
		e.readerMu.RLock()
		_, known := e.loaded[name]
		e.readerMu.RUnlock()
		if known {
			continue
		}
		if e.openSegment(name) {
			added++
		}
	}
	if added > 0 {
		e.logger.Info("segments reloaded", "added", added, "active_segments", e.SegmentCount())
	}
	return added
}

func (e *Engine) loadExistingSegments() error {
	names, err := e.segmentFiles()
	if err != nil {
		return err
	}
	for _, name := range names {
		e.openSegment(name)
	}
	e.logger.Info("segment recovery complete",
		"segments_loaded", e.SegmentCount(),
		"docs", e.GetTotalDocs(),
		"tokens", e.TotalTokens(),
	)
	return nil
}

func (e *Engine) segmentFiles() ([]string, error) {
	entries, err := os.ReadDir(e.cfg.DataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading data directory: %w", err)
	}
	segFiles := make([]string, 0)
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".spdx") {
			segFiles = append(segFiles, entry.Name())
		}
	}
	sort.Strings(segFiles)
	return segFiles, nil
}

// openSegment loads name and restores the lengths of documents the engine
// has not seen yet. Later segments overwrite lengths of re-indexed documents.
func (e *Engine) openSegment(name string) bool {
	path := filepath.Join(e.cfg.DataDir, name)
	reader, err := segment.OpenReader(path)
	if err != nil {
		e.logger.Error("failed to open segment, skipping",
			"segment", name,
			"error", err,
		)
		return false
	}
	reader.DocLengths(e.recordLength)
	if reader.Version() < 2 {
		e.logger.Warn("segment has no document vectors, lengths unavailable", "segment", name)
	}

	e.readerMu.Lock()
	e.readers = append(e.readers, reader)
	e.loaded[name] = struct{}{}
	e.readerMu.Unlock()
	e.logger.Info("loaded existing segment",
		"segment", name,
		"terms", reader.Terms(),
		"docs", reader.DocCount(),
	)
	return true
}

func deduplicatePostings(postings index.PostingList) index.PostingList {
	if len(postings) <= 1 {
		return postings
	}
	seen := make(map[string]int)
	result := make(index.PostingList, 0, len(postings))
	for _, p := range postings {
		if idx, exists := seen[p.DocID]; exists {
			if p.Frequency > result[idx].Frequency {
				result[idx] = p
			}
		} else {
			seen[p.DocID] = len(result)
			result = append(result, p)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].DocID < result[j].DocID
	})
	return result
}
