package trec

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// Document is one <DOC> of a TREC collection.
type Document struct {
	DocNo string
	Title string
	Text  string
}

// ParseDocuments streams every <DOC> in r to fn. <TITLE> and <HEADLINE>
// both feed Title; markup nested in a field is dropped and its text kept.
// Documents without a DOCNO are skipped. An error from fn stops the scan.
func ParseDocuments(r io.Reader, fn func(Document) error) error {
	s := newScanner(r)
	var (
		inDoc        bool
		field        string
		docno, title strings.Builder
		text         strings.Builder
	)
	buffers := map[string]*strings.Builder{
		"docno":    &docno,
		"title":    &title,
		"headline": &title,
		"text":     &text,
	}
	for {
		tt, name, chunk, err := s.next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		switch tt {
		case html.StartTagToken:
			if name == "doc" {
				inDoc = true
				field = ""
				docno.Reset()
				title.Reset()
				text.Reset()
				continue
			}
			if _, ok := buffers[name]; ok && inDoc {
				field = name
			}
		case html.EndTagToken:
			switch {
			case name == "doc" && inDoc:
				inDoc = false
				field = ""
				doc := Document{
					DocNo: collapse(docno.String()),
					Title: collapse(title.String()),
					Text:  collapse(text.String()),
				}
				if doc.DocNo == "" {
					continue
				}
				if err := fn(doc); err != nil {
					return fmt.Errorf("document %s: %w", doc.DocNo, err)
				}
			case name == field:
				field = ""
			}
		case html.TextToken:
			if inDoc && field != "" {
				b := buffers[field]
				b.WriteString(chunk)
				b.WriteByte(' ')
			}
		}
	}
}

// ReadDocuments streams the documents of the collection file at path.
func ReadDocuments(path string, fn func(Document) error) error {
	rc, err := Open(path)
	if err != nil {
		return err
	}
	defer rc.Close()
	if err := ParseDocuments(rc, fn); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}
