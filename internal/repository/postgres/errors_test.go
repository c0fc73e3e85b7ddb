package postgres

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestErrorClassification(t *testing.T) {
	wrap := func(code string) error {
		return fmt.Errorf("insert version: %w", &pgconn.PgError{Code: code})
	}

	tests := []struct {
		name string
		err  error
		is   func(error) bool
		want bool
	}{
		{"duplicate draft", wrap("23505"), IsPgDuplicateError, true},
		{"missing document", wrap("23503"), IsPgForeignKeyError, true},
		{"bad uuid", wrap("22P02"), IsPgInvalidInputError, true},
		{"no rows", fmt.Errorf("get: %w", pgx.ErrNoRows), IsPgNoRowsError, true},
		{"serialization retried", wrap("40001"), IsPgRetryableError, true},
		{"deadlock retried", wrap("40P01"), IsPgRetryableError, true},
		{"unique not retried", wrap("23505"), IsPgRetryableError, false},
		{"plain error", fmt.Errorf("boom"), IsPgDuplicateError, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.is(tt.err); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}
