package index

import (
	"sort"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/indexer/tokenizer"
)

// MemoryIndex buffers postings and document vectors until the engine flushes
// them into a segment. Re-adding a document replaces its previous postings.
type MemoryIndex struct {
	mu       sync.RWMutex
	index    map[string]map[string]*Posting
	vectors  map[string]DocVector
	docCount int
	size     int64
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		index:   make(map[string]map[string]*Posting),
		vectors: make(map[string]DocVector),
	}
}

// AddDocument analyzes title and body and returns the document length.
func (m *MemoryIndex) AddDocument(docID string, title string, body string) int {
	tokens := tokenizer.Tokenize(title + " " + body)

	termData := make(map[string]*Posting)
	for _, token := range tokens {
		p, exists := termData[token.Term]
		if !exists {
			p = &Posting{
				DocID:     docID,
				Frequency: 0,
				Positions: make([]int, 0, 4),
			}
			termData[token.Term] = p
		}
		p.Frequency++
		p.Positions = append(p.Positions, token.Position)
	}
	vec := DocVector{DocID: docID, Length: len(tokens), Terms: make(map[string]int, len(termData))}

	m.mu.Lock()
	defer m.mu.Unlock()

	if old, exists := m.vectors[docID]; exists {
		m.removeLocked(old)
	}
	for term, posting := range termData {
		if _, exists := m.index[term]; !exists {
			m.index[term] = make(map[string]*Posting)
		}
		m.index[term][docID] = posting
		vec.Terms[term] = posting.Frequency
		m.size += int64(len(term) + len(docID) + len(posting.Positions)*8 + 64)
	}
	m.size += int64(len(docID) + len(vec.Terms)*16)
	m.vectors[docID] = vec
	m.docCount++
	return vec.Length
}

func (m *MemoryIndex) removeLocked(old DocVector) {
	for term := range old.Terms {
		docs := m.index[term]
		delete(docs, old.DocID)
		if len(docs) == 0 {
			delete(m.index, term)
		}
	}
	m.docCount--
}

func (m *MemoryIndex) Search(term string) PostingList {
	m.mu.RLock()
	defer m.mu.RUnlock()
	docs, exists := m.index[term]
	if !exists {
		return nil
	}
	result := make(PostingList, 0, len(docs))
	for _, posting := range docs {
		result = append(result, *posting)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].DocID < result[j].DocID
	})
	return result
}

// DocumentVector returns a copy of the buffered vector for docID.
func (m *MemoryIndex) DocumentVector(docID string) (DocVector, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	vec, ok := m.vectors[docID]
	if !ok {
		return DocVector{}, false
	}
	terms := make(map[string]int, len(vec.Terms))
	for t, n := range vec.Terms {
		terms[t] = n
	}
	vec.Terms = terms
	return vec, true
}

func (m *MemoryIndex) Snapshot() []TermEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := make([]TermEntry, 0, len(m.index))
	for term, docs := range m.index {
		postings := make(PostingList, 0, len(docs))
		for _, posting := range docs {
			postings = append(postings, *posting)
		}
		sort.Slice(postings, func(i, j int) bool {
			return postings[i].DocID < postings[j].DocID
		})
		entries = append(entries, TermEntry{
			Term:     term,
			Postings: postings,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Term < entries[j].Term
	})
	return entries
}

// VectorSnapshot returns the buffered document vectors sorted by DocID.
func (m *MemoryIndex) VectorSnapshot() []DocVector {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]DocVector, 0, len(m.vectors))
	for _, vec := range m.vectors {
		out = append(out, vec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].DocID < out[j].DocID
	})
	return out
}

func (m *MemoryIndex) Size() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

func (m *MemoryIndex) DocCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.docCount
}

func (m *MemoryIndex) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.index = make(map[string]map[string]*Posting)
	m.vectors = make(map[string]DocVector)
	m.docCount = 0
	m.size = 0
}
