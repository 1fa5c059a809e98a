package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrAmbiguousNaturalKey is wrapped by NaturalKeyError when more than one row matches.
	ErrAmbiguousNaturalKey = errors.New("ambiguous natural key")
	// ErrNaturalKeyNotFound is wrapped by NaturalKeyError when nothing matches after a create.
	ErrNaturalKeyNotFound = errors.New("natural key not found after create")
	// ErrBookNotFound is returned when a freshly inserted book cannot be selected back by uuid.
	ErrBookNotFound = errors.New("book not found after insert")
)

// StoreError wraps a failing statement against the catalog database.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError wraps err with the operation that failed.
func NewStoreError(op string, err error) *StoreError {
	return &StoreError{Op: op, Err: err}
}

// IsStoreError reports whether err is a StoreError (even when wrapped).
func IsStoreError(err error) bool {
	var storeErr *StoreError
	return errors.As(err, &storeErr)
}

// NaturalKeyError reports a reference table that does not hold exactly one
// row for a natural key after a create.
type NaturalKeyError struct {
	Table  string
	Column string
	Value  string
	Count  int
}

func (e *NaturalKeyError) Error() string {
	if e.Count == 0 {
		return fmt.Sprintf("cannot find %s id for %s: %s", e.Table, e.Column, e.Value)
	}
	return fmt.Sprintf("multiple %s for %s: %s (%d rows)", e.Table, e.Column, e.Value, e.Count)
}

func (e *NaturalKeyError) Unwrap() error {
	if e.Count == 0 {
		return ErrNaturalKeyNotFound
	}
	return ErrAmbiguousNaturalKey
}

// BookIDMismatchError is returned when the store assigned a different id than
// the one requested from the continuity map.
type BookIDMismatchError struct {
	Want int64
	Got  int64
	UUID string
}

func (e *BookIDMismatchError) Error() string {
	return fmt.Sprintf("incorrect book id=%d vs %d for uuid: %s", e.Got, e.Want, e.UUID)
}

// IsBookIDMismatchError reports whether err is a BookIDMismatchError (even when wrapped).
func IsBookIDMismatchError(err error) bool {
	var mismatchErr *BookIDMismatchError
	return errors.As(err, &mismatchErr)
}

// UnreadableFileError is returned when the primary format file of a book is missing.
type UnreadableFileError struct {
	Path string
	Err  error
}

func (e *UnreadableFileError) Error() string {
	return fmt.Sprintf("cannot read file: %s", e.Path)
}

func (e *UnreadableFileError) Unwrap() error {
	return e.Err
}

// IsUnreadableFileError reports whether err is an UnreadableFileError (even when wrapped).
func IsUnreadableFileError(err error) bool {
	var fileErr *UnreadableFileError
	return errors.As(err, &fileErr)
}
