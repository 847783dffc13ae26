// Package trec reads TREC topic files and SGML document collections and
// writes run files in the six-column trec_eval format.
package trec

import (
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/net/html"
)

// sgmlScanner walks an SGML stream token by token. TREC markup leaves
// elements such as <num> and <title> unclosed, so a tree parser would nest
// or relocate them; the scanner only reports tag boundaries and text.
type sgmlScanner struct {
	z *html.Tokenizer
}

func newScanner(r io.Reader) *sgmlScanner {
	return &sgmlScanner{z: html.NewTokenizer(r)}
}

// next returns the next token type, the lowercased tag name for tag tokens
// and the unescaped text for text tokens. io.EOF ends the stream.
func (s *sgmlScanner) next() (html.TokenType, string, string, error) {
	tt := s.z.Next()
	switch tt {
	case html.ErrorToken:
		err := s.z.Err()
		if errors.Is(err, io.EOF) {
			return tt, "", "", io.EOF
		}
		return tt, "", "", fmt.Errorf("tokenizing sgml: %w", err)
	case html.StartTagToken, html.SelfClosingTagToken:
		name, _ := s.z.TagName()
		// <title> would otherwise be read as raw text up to </title>.
		s.z.NextIsNotRawText()
		return tt, string(name), "", nil
	case html.EndTagToken:
		name, _ := s.z.TagName()
		return tt, string(name), "", nil
	case html.TextToken:
		return tt, "", string(s.z.Text()), nil
	default:
		return tt, "", "", nil
	}
}

// Open opens a collection or topic file, decompressing .gz files.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	if !strings.HasSuffix(path, ".gz") {
		return f, nil
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("opening gzip %s: %w", path, err)
	}
	return &gzipFile{Reader: gz, f: f}, nil
}

type gzipFile struct {
	*gzip.Reader
	f *os.File
}

func (g *gzipFile) Close() error {
	err := g.Reader.Close()
	if cerr := g.f.Close(); err == nil {
		err = cerr
	}
	return err
}

// collapse trims s and folds internal whitespace runs to single spaces.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
