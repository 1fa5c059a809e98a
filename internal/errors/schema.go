package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrSchemaAssetMissing is returned when the canonical schema script cannot be read.
	ErrSchemaAssetMissing = errors.New("schema asset missing")
	// ErrClearTarget is returned when an existing catalog file cannot be removed.
	ErrClearTarget = errors.New("cannot clear target")
)

// StatementError identifies the schema statement that failed to execute.
type StatementError struct {
	Origin string
	Err    error
}

func (e *StatementError) Error() string {
	return fmt.Sprintf("cannot create database: %s: %v", e.Origin, e.Err)
}

func (e *StatementError) Unwrap() error {
	return e.Err
}
