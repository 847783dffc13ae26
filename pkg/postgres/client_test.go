package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/lib/pq"
)

func TestIsUniqueViolation(t *testing.T) {
	err := fmt.Errorf("insert run: %w", &pq.Error{Code: "23505"})
	if !IsUniqueViolation(err) {
		t.Error("wrapped 23505 not detected")
	}
	if IsUniqueViolation(&pq.Error{Code: "23503"}) {
		t.Error("foreign key violation reported as unique")
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{&pq.Error{Code: "08006"}, true},
		{&pq.Error{Code: "40001"}, true},
		{&pq.Error{Code: "57P01"}, true},
		{&pq.Error{Code: "23505"}, false},
		{sql.ErrConnDone, true},
		{context.DeadlineExceeded, true},
		{fmt.Errorf("syntax"), false},
	}
	for _, tt := range tests {
		if got := IsTransient(tt.err); got != tt.want {
			t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
