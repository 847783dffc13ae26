package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/indexer/index"
)

// MagicBytes identifies a valid .spdx segment file.
const (
	MagicBytes    uint32 = 0x53504458
	FormatVersion uint32 = 2
	HeaderSize    int    = 64
	FooterSize    int    = 32
)

// SegmentHeader is the 64-byte header written at the start of every segment.
// Version 1 segments carry no vector section and leave VecOffset zero.
type SegmentHeader struct {
	Magic      uint32
	Version    uint32
	TermCount  uint32
	DocCount   uint32
	DictOffset int64
	DictSize   int64
	PostOffset int64
	PostSize   int64
	VecOffset  int64
	VecSize    int64
}

// DictEntry maps a term to its postings offset, length, and document frequency
// in the segment file.
type DictEntry struct {
	Term       string `json:"t"`
	PostOffset int64  `json:"o"`
	PostLen    int    `json:"l"`
	DocFreq    int    `json:"d"`
	CollFreq   int64  `json:"c"`
}

// VectorEntry locates one document vector inside the vector section.
type VectorEntry struct {
	DocID    string `json:"id"`
	Offset   int64  `json:"o"`
	Len      int    `json:"l"`
	DocLen   int    `json:"n"`
	Distinct int    `json:"u"`
}

// vectorIndex is the trailer of the vector section: entries sorted by DocID.
type vectorIndex struct {
	Entries []VectorEntry `json:"e"`
}

// Writer serialises TermEntry slices into new .spdx segment files.
type Writer struct {
	dataDir string
}

// NewWriter creates a Writer that writes segments into the given directory.
func NewWriter(dataDir string) *Writer {
	return &Writer{dataDir: dataDir}
}

// Write atomically creates a new segment file containing the given term
// entries and document vectors. vectors must be sorted by DocID. It writes
// to a .tmp file first and renames on success.
func (w *Writer) Write(entries []index.TermEntry, vectors []index.DocVector) (string, error) {
	if len(entries) == 0 {
		return "", fmt.Errorf("cannot write empty segment")
	}
	segmentName := fmt.Sprintf("seg_%d.spdx", time.Now().UnixNano())
	finalPath := filepath.Join(w.dataDir, segmentName)
	tmpPath := finalPath + ".tmp"

	if err := os.MkdirAll(w.dataDir, 0755); err != nil {
		return "", fmt.Errorf("creating segment directory: %w", err)
	}
	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("creating temp segment file: %w", err)
	}
	defer f.Close()
	headerBytes := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(headerBytes[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(headerBytes[4:8], FormatVersion)
	binary.LittleEndian.PutUint32(headerBytes[8:12], uint32(len(entries)))

	if _, err := f.Write(headerBytes); err != nil {
		return "", fmt.Errorf("writing header: %w", err)
	}

	postingsStart := int64(HeaderSize)
	offset := postingsStart
	dict := make([]DictEntry, 0, len(entries))
	docIDs := make(map[string]struct{})
	for _, entry := range entries {
		postingsData, err := json.Marshal(entry.Postings)
		if err != nil {
			return "", fmt.Errorf("marshaling postings for term %q: %w", entry.Term, err)
		}
		if _, err := f.Write(postingsData); err != nil {
			return "", fmt.Errorf("writing postings for term %q: %w", entry.Term, err)
		}
		dict = append(dict, DictEntry{
			Term:       entry.Term,
			PostOffset: offset - postingsStart,
			PostLen:    len(postingsData),
			DocFreq:    len(entry.Postings),
			CollFreq:   entry.Postings.CollectionFrequency(),
		})
		offset += int64(len(postingsData))
		for _, p := range entry.Postings {
			docIDs[p.DocID] = struct{}{}
		}
	}
	postingsSize := offset - postingsStart

	dictStart := offset
	dictData, err := json.Marshal(dict)
	if err != nil {
		return "", fmt.Errorf("marshaling dictionary: %w", err)
	}
	if _, err := f.Write(dictData); err != nil {
		return "", fmt.Errorf("writing dictionary: %w", err)
	}
	dictSize := int64(len(dictData))

	vecStart := dictStart + dictSize
	vecSize, err := writeVectors(f, vectors)
	if err != nil {
		return "", err
	}

	checksum := crc32.ChecksumIEEE(dictData)
	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], checksum)
	binary.LittleEndian.PutUint32(footer[4:8], uint32(len(docIDs)))
	binary.LittleEndian.PutUint64(footer[8:16], uint64(dictStart))
	binary.LittleEndian.PutUint64(footer[16:24], uint64(dictSize))
	binary.LittleEndian.PutUint64(footer[24:32], uint64(postingsSize))
	if _, err := f.Write(footer); err != nil {
		return "", fmt.Errorf("writing footer: %w", err)
	}
	binary.LittleEndian.PutUint32(headerBytes[12:16], uint32(len(docIDs)))
	binary.LittleEndian.PutUint64(headerBytes[16:24], uint64(dictStart))
	binary.LittleEndian.PutUint64(headerBytes[24:32], uint64(dictSize))
	binary.LittleEndian.PutUint64(headerBytes[32:40], uint64(postingsStart))
	binary.LittleEndian.PutUint64(headerBytes[40:48], uint64(postingsSize))
	binary.LittleEndian.PutUint64(headerBytes[48:56], uint64(vecStart))
	binary.LittleEndian.PutUint64(headerBytes[56:64], uint64(vecSize))
	if _, err := f.WriteAt(headerBytes, 0); err != nil {
		return "", fmt.Errorf("updating header: %w", err)
	}
	if err := f.Sync(); err != nil {
		return "", fmt.Errorf("syncing segment file: %w", err)
	}
	f.Close()
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", fmt.Errorf("renaming segment file: %w", err)
	}
	return segmentName, nil
}

// writeVectors writes each vector as a JSON object, then the JSON vector
// index, then the index length as a little-endian uint64.
func writeVectors(f *os.File, vectors []index.DocVector) (int64, error) {
	var written int64
	idx := vectorIndex{Entries: make([]VectorEntry, 0, len(vectors))}
	for _, vec := range vectors {
		data, err := json.Marshal(vec.Terms)
		if err != nil {
			return 0, fmt.Errorf("marshaling vector for %q: %w", vec.DocID, err)
		}
		if _, err := f.Write(data); err != nil {
			return 0, fmt.Errorf("writing vector for %q: %w", vec.DocID, err)
		}
		idx.Entries = append(idx.Entries, VectorEntry{
			DocID:    vec.DocID,
			Offset:   written,
			Len:      len(data),
			DocLen:   vec.Length,
			Distinct: len(vec.Terms),
		})
		written += int64(len(data))
	}
	idxData, err := json.Marshal(idx)
	if err != nil {
		return 0, fmt.Errorf("marshaling vector index: %w", err)
	}
	if _, err := f.Write(idxData); err != nil {
		return 0, fmt.Errorf("writing vector index: %w", err)
	}
	trailer := make([]byte, 8)
	binary.LittleEndian.PutUint64(trailer, uint64(len(idxData)))
	if _, err := f.Write(trailer); err != nil {
		return 0, fmt.Errorf("writing vector index length: %w", err)
	}
	return written + int64(len(idxData)) + 8, nil
}
