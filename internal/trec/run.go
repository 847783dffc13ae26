package trec

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/searcher/ranker"
)

// RunWriter writes ranked lists as "qid Q0 docno rank score run" lines.
// Ranks start at 1.
type RunWriter struct {
	w       *bufio.Writer
	runName string
	lines   int
}

func NewRunWriter(w io.Writer, runName string) *RunWriter {
	return &RunWriter{w: bufio.NewWriter(w), runName: runName}
}

// WriteTopic appends the ranking for one topic.
func (rw *RunWriter) WriteTopic(qid string, hits []ranker.ScoredDoc) error {
	for i, h := range hits {
		line := qid + " Q0 " + h.DocID + " " + strconv.Itoa(i+1) + " " +
			strconv.FormatFloat(h.Score, 'f', 6, 64) + " " + rw.runName + "\n"
		if _, err := rw.w.WriteString(line); err != nil {
			return fmt.Errorf("writing run line for %s: %w", qid, err)
		}
		rw.lines++
	}
	return nil
}

// Lines returns the number of lines written so far.
func (rw *RunWriter) Lines() int { return rw.lines }

func (rw *RunWriter) Flush() error {
	return rw.w.Flush()
}
