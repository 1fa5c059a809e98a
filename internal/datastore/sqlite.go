package datastore

import (
	"database/sql"
	"fmt"

	"github.com/marsender/cops/internal/fileutil"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface for a single-file catalog database
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore creates a new SQLiteStore instance
func NewSQLiteStore(dbPath string) *SQLiteStore {
	return &SQLiteStore{
		dbPath: dbPath,
	}
}

// Open connects to an existing catalog. Unlike Connect it refuses to create a
// new empty database file.
func Open(dbPath string) (*SQLiteStore, error) {
	if !fileutil.FileExists(dbPath) {
		return nil, fmt.Errorf("failed to open catalog %s: no such file", dbPath)
	}

	s := NewSQLiteStore(dbPath)
	if err := s.Connect(); err != nil {
		return nil, err
	}
	return s, nil
}

// Connect opens a connection to the SQLite database with synchronous writes
// disabled. A crashed import is redone from scratch, so the bulk load does not
// need durability.
func (s *SQLiteStore) Connect() error {
	db, err := sql.Open("sqlite", s.dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// Pragmas are per connection and ":memory:" databases are per connection,
	// so everything goes through one.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA synchronous = OFF"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to open database [%s]: %w", s.dbPath, err)
	}

	s.db = db
	return nil
}

// Path returns the database file path
func (s *SQLiteStore) Path() string {
	return s.dbPath
}

// DB exposes the underlying handle
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Exec runs a statement that returns no rows
func (s *SQLiteStore) Exec(query string, args ...any) (sql.Result, error) {
	return s.db.Exec(query, args...)
}

// Query runs a statement that returns rows
func (s *SQLiteStore) Query(query string, args ...any) (*sql.Rows, error) {
	return s.db.Query(query, args...)
}

// QueryRow runs a statement that returns at most one row
func (s *SQLiteStore) QueryRow(query string, args ...any) *sql.Row {
	return s.db.QueryRow(query, args...)
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
