package validator

import (
	"errors"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/ingestion"
)

func TestValidateIngestRequest(t *testing.T) {
	tests := []struct {
		name   string
		req    ingestion.IngestRequest
		fields []string
	}{
		{"valid", ingestion.IngestRequest{DocumentID: "FT911-3", Title: "t", Body: "flood"}, nil},
		{"generated id", ingestion.IngestRequest{Body: "flood"}, nil},
		{"empty body", ingestion.IngestRequest{Body: "  \n"}, []string{"body"}},
		{"id whitespace", ingestion.IngestRequest{DocumentID: "a b", Body: "x"}, []string{"document_id"}},
		{"id too long", ingestion.IngestRequest{DocumentID: strings.Repeat("x", 256), Body: "x"}, []string{"document_id"}},
		{"all bad", ingestion.IngestRequest{DocumentID: "a\tb", Title: strings.Repeat("t", 1025)}, []string{"body", "document_id", "title"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIngestRequest(&tt.req)
			if tt.fields == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
			if len(verr.Fields) != len(tt.fields) {
				t.Fatalf("fields = %v, want %v", verr.Fields, tt.fields)
			}
			for _, f := range tt.fields {
				if _, ok := verr.Fields[f]; !ok {
					t.Errorf("missing field %q in %v", f, verr.Fields)
				}
			}
		})
	}
}

func TestValidationErrorIsSorted(t *testing.T) {
	err := &ValidationError{Fields: map[string]string{"title": "b", "body": "a"}}
	if got, want := err.Error(), "body: a; title: b"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
