// Package schema builds an empty Calibre catalog from the canonical
// metadata_sqlite.sql script, with the loader's two extra columns.
package schema

import (
	"bytes"
	_ "embed"
	"fmt"
	"log/slog"
	"os"

	"github.com/marsender/cops/internal/datastore"
	loaderrors "github.com/marsender/cops/internal/errors"
	"github.com/marsender/cops/internal/fileutil"
)

// Calibre database script, kept unmodified from the Calibre project:
// https://raw.githubusercontent.com/kovidgoyal/calibre/master/resources/metadata_sqlite.sql
//
//go:embed metadata_sqlite.sql
var defaultScript []byte

// Patch adds a column to a canonical table right after an anchor column.
type Patch struct {
	Table  string
	After  string
	Column Column
}

// DefaultPatches are applied to every provisioned catalog. books.cover keeps
// the relative cover image path next to has_cover; tags.sort gives tags the
// sort column every other reference table already has.
var DefaultPatches = []Patch{
	{Table: "books", After: "has_cover", Column: Column{Name: "cover", Definition: `TEXT NOT NULL DEFAULT ""`}},
	{Table: "tags", After: "name", Column: Column{Name: "sort", Definition: "TEXT COLLATE NOCASE"}},
}

// Apply runs the patches against the parsed tables.
func (s *Script) Apply(patches ...Patch) error {
	for _, p := range patches {
		table, ok := s.Table(p.Table)
		if !ok {
			return fmt.Errorf("failed to patch schema: no table %s", p.Table)
		}
		if err := table.InsertColumnAfter(p.After, p.Column); err != nil {
			return fmt.Errorf("failed to patch schema: %w", err)
		}
	}
	return nil
}

// DefaultScript returns the embedded canonical schema.
func DefaultScript() []byte {
	return append([]byte(nil), defaultScript...)
}

// ReadScript reads a schema override. An empty path selects the embedded script.
func ReadScript(path string) ([]byte, error) {
	if path == "" {
		return DefaultScript(), nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot read sql file %s: %v", loaderrors.ErrSchemaAssetMissing, path, err)
	}
	return content, nil
}

// Provision replaces any file at targetPath with a fresh catalog built from
// script and returns the open store.
func Provision(targetPath string, script []byte) (*datastore.SQLiteStore, error) {
	if len(bytes.TrimSpace(script)) == 0 {
		return nil, loaderrors.ErrSchemaAssetMissing
	}

	parsed, err := Parse(script)
	if err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}
	if err := parsed.Apply(DefaultPatches...); err != nil {
		return nil, err
	}

	for _, suffix := range []string{"", "-journal", "-wal", "-shm"} {
		removed, err := fileutil.RemoveIfExists(targetPath + suffix)
		if err != nil {
			return nil, fmt.Errorf("%w: cannot remove database file %s: %v", loaderrors.ErrClearTarget, targetPath+suffix, err)
		}
		if removed {
			slog.Debug("Removed previous catalog file", "path", targetPath+suffix)
		}
	}

	store := datastore.NewSQLiteStore(targetPath)
	if err := store.Connect(); err != nil {
		return nil, err
	}

	executed := 0
	for _, stmt := range parsed.Executable() {
		if _, err := store.Exec(stmt.SQL()); err != nil {
			_ = store.Close()
			return nil, &loaderrors.StatementError{Origin: stmt.Origin(), Err: err}
		}
		executed++
	}

	slog.Info("Catalog provisioned", "path", targetPath, "statements", executed, "skipped", len(parsed.Statements)-executed)
	return store, nil
}
