package testutil

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
)

// WriteBookFile creates <dir>/<name>.<format> under the environment root and
// returns the root, to be used as the book base path.
func (e *TestEnv) WriteBookFile(dir, name, format, content string) string {
	e.t.Helper()

	e.WriteFileString(filepath.Join(dir, name+"."+format), content)
	return e.rootDir
}

// CountRows returns the number of rows in table.
func CountRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()

	var count int
	if err := db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count); err != nil {
		t.Fatalf("failed to count rows of %s: %v", table, err)
	}
	return count
}
