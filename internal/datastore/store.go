package datastore

import "database/sql"

// Store is the connection the catalog loader works through. Statements are
// parameterised with "?" placeholders.
type Store interface {
	// Exec runs a statement that returns no rows
	Exec(query string, args ...any) (sql.Result, error)

	// Query runs a statement that returns rows
	Query(query string, args ...any) (*sql.Rows, error)

	// QueryRow runs a statement that returns at most one row
	QueryRow(query string, args ...any) *sql.Row

	// Close releases the connection
	Close() error
}
