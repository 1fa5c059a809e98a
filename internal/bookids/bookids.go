// Package bookids keeps the file name -> catalog book id map that lets a
// rebuilt catalog reuse the ids of a previous run.
//
// The map file holds one "name<TAB>id" record per line. File names containing a
// tab or newline cannot be represented.
package bookids

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/marsender/cops/internal/fileutil"
)

// Map hands out stable book ids per source file name. It is not safe for
// concurrent use.
type Map struct {
	path string
	ids  map[string]int64
	max  int64
}

// New returns an empty map that will be saved to path.
func New(path string) *Map {
	return &Map{
		path: path,
		ids:  make(map[string]int64),
	}
}

// Load reads the map file at path. An empty path or a missing file yields an
// empty map. Malformed lines are skipped.
func Load(path string) (*Map, error) {
	m := New(path)
	if path == "" {
		return m, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read book ids file: %w", err)
	}

	skipped := 0
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		fields := strings.Split(strings.TrimSpace(scanner.Text()), "\t")
		if len(fields) != 2 {
			skipped++
			continue
		}
		id, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			skipped++
			continue
		}
		m.ids[fields[0]] = id
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan book ids file: %w", err)
	}
	// a repeated name keeps its last id, so the maximum is taken afterwards
	for _, id := range m.ids {
		if id > m.max {
			m.max = id
		}
	}

	slog.Debug("Loaded book ids", "path", path, "count", len(m.ids), "skipped", skipped)
	return m, nil
}

// Path returns the file the map is saved to.
func (m *Map) Path() string {
	return m.path
}

// Len returns the number of mapped file names.
func (m *Map) Len() int {
	return len(m.ids)
}

// Lookup returns the id stored for name without assigning one.
func (m *Map) Lookup(name string) (int64, bool) {
	id, ok := m.ids[name]
	return id, ok
}

// Resolve returns the id stored for name. Unknown names get the current
// maximum plus one, which is recorded before returning.
func (m *Map) Resolve(name string) int64 {
	if id, ok := m.ids[name]; ok {
		return id
	}
	id := m.max + 1
	m.set(name, id)
	return id
}

// Save rewrites the map file. It is a no-op when the map has no path.
func (m *Map) Save() error {
	if m.path == "" {
		return nil
	}

	names := make([]string, 0, len(m.ids))
	for name := range m.ids {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if m.ids[names[i]] != m.ids[names[j]] {
			return m.ids[names[i]] < m.ids[names[j]]
		}
		return names[i] < names[j]
	})

	var buf bytes.Buffer
	for _, name := range names {
		fmt.Fprintf(&buf, "%s\t%d\n", name, m.ids[name])
	}

	if err := fileutil.ReplaceFile(m.path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to save book ids: %w", err)
	}
	slog.Debug("Saved book ids", "path", m.path, "count", len(m.ids))
	return nil
}

func (m *Map) set(name string, id int64) {
	m.ids[name] = id
	if id > m.max {
		m.max = id
	}
}
