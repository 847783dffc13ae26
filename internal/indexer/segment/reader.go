package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/indexer/index"
)

type Reader struct {
	file     *os.File
	filePath string
	header   SegmentHeader
	dict     []DictEntry
	vectors  []VectorEntry
	postBase int64
	tokens   int64
}

func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening segment file: %w", err)
	}
	r, err := newReader(f, path)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func newReader(f *os.File, path string) (*Reader, error) {
	headerBytes := make([]byte, HeaderSize)
	if _, err := f.ReadAt(headerBytes, 0); err != nil {
		return nil, fmt.Errorf("reading segment header: %w", err)
	}
	magic := binary.LittleEndian.Uint32(headerBytes[0:4])
	if magic != MagicBytes {
		return nil, fmt.Errorf("invalid segment file: bad magic bytes %x", magic)
	}
	header := SegmentHeader{
		Magic:      magic,
		Version:    binary.LittleEndian.Uint32(headerBytes[4:8]),
		TermCount:  binary.LittleEndian.Uint32(headerBytes[8:12]),
		DocCount:   binary.LittleEndian.Uint32(headerBytes[12:16]),
		DictOffset: int64(binary.LittleEndian.Uint64(headerBytes[16:24])),
		DictSize:   int64(binary.LittleEndian.Uint64(headerBytes[24:32])),
		PostOffset: int64(binary.LittleEndian.Uint64(headerBytes[32:40])),
		PostSize:   int64(binary.LittleEndian.Uint64(headerBytes[40:48])),
	}
	if header.Version > FormatVersion {
		return nil, fmt.Errorf("unsupported segment version %d", header.Version)
	}
	if header.Version >= 2 {
		header.VecOffset = int64(binary.LittleEndian.Uint64(headerBytes[48:56]))
		header.VecSize = int64(binary.LittleEndian.Uint64(headerBytes[56:64]))
	}
	dictBytes := make([]byte, header.DictSize)
	if _, err := f.ReadAt(dictBytes, header.DictOffset); err != nil {
		return nil, fmt.Errorf("reading dictionary: %w", err)
	}
	var dict []DictEntry
	if err := json.Unmarshal(dictBytes, &dict); err != nil {
		return nil, fmt.Errorf("parsing dictionary: %w", err)
	}
	r := &Reader{
		file:     f,
		filePath: path,
		header:   header,
		dict:     dict,
		postBase: header.PostOffset,
	}
	if header.VecSize > 0 {
		if err := r.loadVectorIndex(); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Reader) loadVectorIndex() error {
	end := r.header.VecOffset + r.header.VecSize
	trailer := make([]byte, 8)
	if _, err := r.file.ReadAt(trailer, end-8); err != nil {
		return fmt.Errorf("reading vector index length: %w", err)
	}
	idxLen := int64(binary.LittleEndian.Uint64(trailer))
	if idxLen <= 0 || idxLen > r.header.VecSize-8 {
		return fmt.Errorf("corrupt vector index length %d", idxLen)
	}
	idxBytes := make([]byte, idxLen)
	if _, err := r.file.ReadAt(idxBytes, end-8-idxLen); err != nil {
		return fmt.Errorf("reading vector index: %w", err)
	}
	var idx vectorIndex
	if err := json.Unmarshal(idxBytes, &idx); err != nil {
		return fmt.Errorf("parsing vector index: %w", err)
	}
	r.vectors = idx.Entries
	for _, e := range r.vectors {
		r.tokens += int64(e.DocLen)
	}
	return nil
}

func (r *Reader) lookup(term string) (DictEntry, bool) {
	idx := sort.Search(len(r.dict), func(i int) bool {
		return r.dict[i].Term >= term
	})
	if idx >= len(r.dict) || r.dict[idx].Term != term {
		return DictEntry{}, false
	}
	return r.dict[idx], true
}

func (r *Reader) Search(term string) (index.PostingList, error) {
	entry, ok := r.lookup(term)
	if !ok {
		return nil, nil
	}
	postingsBytes := make([]byte, entry.PostLen)
	if _, err := r.file.ReadAt(postingsBytes, r.postBase+entry.PostOffset); err != nil {
		return nil, fmt.Errorf("reading postings: %w", err)
	}
	var postings index.PostingList
	if err := json.Unmarshal(postingsBytes, &postings); err != nil {
		return nil, fmt.Errorf("parsing postings: %w", err)
	}
	return postings, nil
}

// TermStats returns the document and collection frequency of term in this
// segment without decoding postings, except for version 1 segments whose
// dictionary lacks collection frequencies.
func (r *Reader) TermStats(term string) (df int, cf int64, err error) {
	entry, ok := r.lookup(term)
	if !ok {
		return 0, 0, nil
	}
	if r.header.Version >= 2 {
		return entry.DocFreq, entry.CollFreq, nil
	}
	postings, err := r.Search(term)
	if err != nil {
		return 0, 0, err
	}
	return entry.DocFreq, postings.CollectionFrequency(), nil
}

// DocumentVector reads the stored vector for docID. ok is false when the
// segment does not hold the document or predates vector storage.
func (r *Reader) DocumentVector(docID string) (vec index.DocVector, ok bool, err error) {
	i := sort.Search(len(r.vectors), func(i int) bool {
		return r.vectors[i].DocID >= docID
	})
	if i >= len(r.vectors) || r.vectors[i].DocID != docID {
		return index.DocVector{}, false, nil
	}
	e := r.vectors[i]
	data := make([]byte, e.Len)
	if _, err := r.file.ReadAt(data, r.header.VecOffset+e.Offset); err != nil {
		return index.DocVector{}, false, fmt.Errorf("reading vector for %q: %w", docID, err)
	}
	terms := make(map[string]int, e.Distinct)
	if err := json.Unmarshal(data, &terms); err != nil {
		return index.DocVector{}, false, fmt.Errorf("parsing vector for %q: %w", docID, err)
	}
	return index.DocVector{DocID: docID, Length: e.DocLen, Terms: terms}, true, nil
}

// DocLengths calls fn for every document vector stored in the segment.
func (r *Reader) DocLengths(fn func(docID string, length int)) {
	for _, e := range r.vectors {
		fn(e.DocID, e.DocLen)
	}
}

func (r *Reader) Path() string {
	return r.filePath
}

func (r *Reader) Version() uint32 {
	return r.header.Version
}

func (r *Reader) Terms() int {
	return len(r.dict)
}

func (r *Reader) DocCount() uint32 {
	return r.header.DocCount
}

// TotalTokens is the summed length of the documents with stored vectors.
func (r *Reader) TotalTokens() int64 {
	return r.tokens
}

func (r *Reader) Close() error {
	return r.file.Close()
}
