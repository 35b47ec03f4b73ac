package store

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// SchemaNotReadyError indicates the vector schema (extension, tables or
// index) has not been bootstrapped yet. Recoverable by calling Init, which is
// idempotent.
type SchemaNotReadyError struct {
	Err error
}

func (e *SchemaNotReadyError) Error() string {
	return fmt.Sprintf("vector schema not initialized: %v", e.Err)
}

func (e *SchemaNotReadyError) Unwrap() error {
	return e.Err
}

// StorageError wraps any other relational-store I/O failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error in %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Postgres SQLSTATE codes for a missing table or missing vector type.
const (
	codeUndefinedTable  = "42P01"
	codeUndefinedObject = "42704"
)

func classify(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == codeUndefinedTable || pgErr.Code == codeUndefinedObject {
			return &SchemaNotReadyError{Err: err}
		}
	}
	return &StorageError{Op: op, Err: err}
}
