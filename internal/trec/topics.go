package trec

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// Topic is one TREC information need.
type Topic struct {
	ID          string
	Title       string
	Description string
	Narrative   string
}

// Query fields accepted by Topic.Query.
const (
	FieldTitle       = "title"
	FieldDescription = "desc"
	FieldNarrative   = "narr"
)

// Query joins the requested fields into one query string. With no fields
// the title is used.
func (t Topic) Query(fields ...string) string {
	if len(fields) == 0 {
		return t.Title
	}
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		var v string
		switch f {
		case FieldTitle:
			v = t.Title
		case FieldDescription:
			v = t.Description
		case FieldNarrative:
			v = t.Narrative
		}
		if v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, " ")
}

var fieldLabels = map[string]string{
	"num":   "Number:",
	"title": "Topic:",
	"desc":  "Description:",
	"narr":  "Narrative:",
}

// ParseTopics reads every <top> block. Both the classic unclosed layout and
// fully closed XML are accepted. Topics without a number are rejected.
func ParseTopics(r io.Reader) ([]Topic, error) {
	s := newScanner(r)
	var (
		topics []Topic
		fields map[string]*strings.Builder
		field  string
	)
	for {
		tt, name, text, err := s.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		switch tt {
		case html.StartTagToken:
			if name == "top" {
				fields = make(map[string]*strings.Builder)
				field = ""
				continue
			}
			if _, ok := fieldLabels[name]; ok && fields != nil {
				field = name
				if fields[field] == nil {
					fields[field] = &strings.Builder{}
				}
			}
		case html.EndTagToken:
			if name == "top" && fields != nil {
				t, err := newTopic(fields)
				if err != nil {
					return nil, fmt.Errorf("topic %d: %w", len(topics)+1, err)
				}
				topics = append(topics, t)
				fields = nil
				field = ""
			} else if name == field {
				field = ""
			}
		case html.TextToken:
			if fields != nil && field != "" {
				fields[field].WriteString(text)
				fields[field].WriteByte(' ')
			}
		}
	}
	return topics, nil
}

func newTopic(fields map[string]*strings.Builder) (Topic, error) {
	get := func(name string) string {
		b := fields[name]
		if b == nil {
			return ""
		}
		v := collapse(b.String())
		return collapse(strings.TrimPrefix(v, fieldLabels[name]))
	}
	t := Topic{
		ID:          get("num"),
		Title:       get("title"),
		Description: get("desc"),
		Narrative:   get("narr"),
	}
	if t.ID == "" {
		return Topic{}, errors.New("missing <num>")
	}
	return t, nil
}

// ReadTopics parses the topic file at path.
func ReadTopics(path string) ([]Topic, error) {
	rc, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	topics, err := ParseTopics(rc)
	if err != nil {
		return nil, fmt.Errorf("parsing topics %s: %w", path, err)
	}
	return topics, nil
}
