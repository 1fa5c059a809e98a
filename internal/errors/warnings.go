package errors

import (
	"errors"
	"strings"
)

// WarningsError carries the non-fatal notes collected while ingesting one book.
// The book row is committed when this error is reported.
type WarningsError struct {
	Warnings []string
}

func (e *WarningsError) Error() string {
	return strings.Join(e.Warnings, " - ")
}

// NewWarningsError returns nil when there is nothing to report.
func NewWarningsError(warnings []string) *WarningsError {
	if len(warnings) == 0 {
		return nil
	}
	return &WarningsError{Warnings: append([]string(nil), warnings...)}
}

// IsWarningsError reports whether err is a WarningsError (even when wrapped).
func IsWarningsError(err error) bool {
	var warnErr *WarningsError
	return errors.As(err, &warnErr)
}

// IsFatal reports whether err aborted the operation, as opposed to a
// warnings-only outcome.
func IsFatal(err error) bool {
	return err != nil && !IsWarningsError(err)
}
