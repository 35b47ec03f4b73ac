package store

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestClassifyMissingTable(t *testing.T) {
	err := classify("nearest neighbors", &pgconn.PgError{Code: codeUndefinedTable, Message: "relation \"chunks\" does not exist"})

	var schemaErr *SchemaNotReadyError
	assert.ErrorAs(t, err, &schemaErr)
}

func TestClassifyMissingVectorType(t *testing.T) {
	err := classify("init", &pgconn.PgError{Code: codeUndefinedObject, Message: "type \"vector\" does not exist"})

	var schemaErr *SchemaNotReadyError
	assert.ErrorAs(t, err, &schemaErr)
}

func TestClassifyOtherErrors(t *testing.T) {
	cause := errors.New("connection refused")
	err := classify("insert chunks", cause)

	var storageErr *StorageError
	assert.ErrorAs(t, err, &storageErr)
	assert.Equal(t, "insert chunks", storageErr.Op)
	assert.ErrorIs(t, err, cause)
}
