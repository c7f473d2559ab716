package db

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Error kinds surfaced by the record stores. Package level sentinels in
// dispute and evidence wrap these, so callers may match either.
var (
	ErrNotFound            = errors.New("not found")
	ErrForeignKeyViolation = errors.New("foreign key violation")
	ErrConstraintViolation = errors.New("constraint violation")
	ErrConflict            = errors.New("concurrent modification")
	ErrValidation          = errors.New("validation failed")
)

// ValidationError reports a missing or malformed field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

// Is lets errors.Is(err, ErrValidation) match any *ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Invalid builds a *ValidationError.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// SQLSTATE codes mapped by Translate.
const (
	codeForeignKeyViolation = "23503"
	codeUniqueViolation     = "23505"
	codeCheckViolation      = "23514"
	codeNotNullViolation    = "23502"
	codeInvalidText         = "22P02"
	codeNumericOutOfRange   = "22003"
	codeDatetimeOverflow    = "22008"
	codeInvalidDatetime     = "22007"
)

// Translate maps driver errors onto the store error kinds. The original error
// stays in the chain. Errors it does not recognise are returned unchanged.
func Translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeForeignKeyViolation:
		return fmt.Errorf("%w (%s): %w", ErrForeignKeyViolation, pgErr.ConstraintName, err)
	case codeUniqueViolation, codeCheckViolation, codeNotNullViolation,
		codeInvalidText, codeNumericOutOfRange, codeDatetimeOverflow, codeInvalidDatetime:
		detail := pgErr.ConstraintName
		if detail == "" {
			detail = pgErr.ColumnName
		}
		return fmt.Errorf("%w (%s): %w", ErrConstraintViolation, detail, err)
	}
	return err
}
