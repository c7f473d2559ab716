package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestTranslate_Kinds(t *testing.T) {
	cases := []struct {
		name string
		in   error
		want error
	}{
		{"no rows", pgx.ErrNoRows, ErrNotFound},
		{"wrapped no rows", fmt.Errorf("scan: %w", pgx.ErrNoRows), ErrNotFound},
		{"foreign key", &pgconn.PgError{Code: "23503", ConstraintName: "evidence_dispute_id_fkey"}, ErrForeignKeyViolation},
		{"unique", &pgconn.PgError{Code: "23505", ConstraintName: "disputes_pkey"}, ErrConstraintViolation},
		{"check", &pgconn.PgError{Code: "23514", ConstraintName: "evidence_file_size_nonnegative"}, ErrConstraintViolation},
		{"not null", &pgconn.PgError{Code: "23502", ColumnName: "title"}, ErrConstraintViolation},
		{"bad text", &pgconn.PgError{Code: "22P02"}, ErrConstraintViolation},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Translate(tc.in)
			if !errors.Is(got, tc.want) {
				t.Fatalf("expected %v in chain, got %v", tc.want, got)
			}
			if !errors.Is(got, tc.in) {
				t.Fatalf("expected original error to be preserved, got %v", got)
			}
		})
	}
}

func TestTranslate_Passthrough(t *testing.T) {
	if Translate(nil) != nil {
		t.Fatal("expected nil for nil input")
	}

	boom := errors.New("boom")
	if got := Translate(boom); got != boom {
		t.Fatalf("expected unrecognised error unchanged, got %v", got)
	}

	serialization := &pgconn.PgError{Code: "40001"}
	if got := Translate(serialization); got != error(serialization) {
		t.Fatalf("expected unmapped SQLSTATE unchanged, got %v", got)
	}
}

func TestValidationError_Is(t *testing.T) {
	err := fmt.Errorf("dispute: create: %w", Invalid("title", "is required"))
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation match, got %v", err)
	}

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError in chain")
	}
	if verr.Field != "title" {
		t.Fatalf("expected field title, got %q", verr.Field)
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatal("validation error must not match ErrNotFound")
	}
}
