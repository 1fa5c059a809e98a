package ingest

import (
	"fmt"
	"log/slog"

	"github.com/marsender/cops/internal/datastore"
	loaderrors "github.com/marsender/cops/internal/errors"
)

// Resolution tells whether a reference row already existed or was created.
type Resolution int

const (
	Found Resolution = iota
	Created
)

func (r Resolution) String() string {
	switch r {
	case Found:
		return "found"
	case Created:
		return "created"
	default:
		return fmt.Sprintf("Resolution(%d)", int(r))
	}
}

// refTable describes a reference table keyed by a natural key and the link
// table that ties it to books.
type refTable struct {
	name       string
	keyColumn  string
	sortColumn string // empty when the table has no sort column
	linkTable  string
	linkColumn string
	ordered    bool // link rows carry an item_order
}

var (
	seriesTable = refTable{
		name: "series", keyColumn: "name", sortColumn: "sort",
		linkTable: "books_series_link", linkColumn: "series",
	}
	authorsTable = refTable{
		name: "authors", keyColumn: "name", sortColumn: "sort",
		linkTable: "books_authors_link", linkColumn: "author",
	}
	languagesTable = refTable{
		name: "languages", keyColumn: "lang_code",
		linkTable: "books_languages_link", linkColumn: "lang_code", ordered: true,
	}
	tagsTable = refTable{
		name: "tags", keyColumn: "name", sortColumn: "sort",
		linkTable: "books_tags_link", linkColumn: "tag",
	}
)

// resolver does lookup-or-create on reference tables.
type resolver struct {
	db datastore.Store
}

// resolve returns the id of the row whose natural key equals key, inserting
// it (with sort when the table has a sort column) if none exists.
func (r *resolver) resolve(t refTable, key, sort string) (int64, Resolution, error) {
	ids, err := r.lookup(t, key)
	if err != nil {
		return 0, Found, err
	}
	if len(ids) > 0 {
		return ids[0], Found, nil
	}

	if err := r.create(t, key, sort); err != nil {
		return 0, Created, err
	}

	ids, err = r.lookup(t, key)
	if err != nil {
		return 0, Created, err
	}
	if len(ids) != 1 {
		return 0, Created, &loaderrors.NaturalKeyError{
			Table:  t.name,
			Column: t.keyColumn,
			Value:  key,
			Count:  len(ids),
		}
	}

	slog.Debug("Created reference row", "table", t.name, "key", key, "id", ids[0])
	return ids[0], Created, nil
}

func (r *resolver) lookup(t refTable, key string) ([]int64, error) {
	query := fmt.Sprintf("SELECT id FROM %s WHERE %s = ?", t.name, t.keyColumn)
	rows, err := r.db.Query(query, key)
	if err != nil {
		return nil, loaderrors.NewStoreError("select "+t.name, err)
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, loaderrors.NewStoreError("scan "+t.name, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, loaderrors.NewStoreError("select "+t.name, err)
	}
	return ids, nil
}

func (r *resolver) create(t refTable, key, sort string) error {
	var err error
	if t.sortColumn != "" {
		query := fmt.Sprintf("INSERT INTO %s(%s, %s) VALUES(?, ?)", t.name, t.keyColumn, t.sortColumn)
		_, err = r.db.Exec(query, key, sort)
	} else {
		query := fmt.Sprintf("INSERT INTO %s(%s) VALUES(?)", t.name, t.keyColumn)
		_, err = r.db.Exec(query, key)
	}
	if err != nil {
		return loaderrors.NewStoreError("insert "+t.name, err)
	}
	return nil
}

// link ties a book to a reference row. Ordered links always use position 0.
func (r *resolver) link(t refTable, bookID, refID int64) error {
	var err error
	if t.ordered {
		query := fmt.Sprintf("INSERT INTO %s(book, %s, item_order) VALUES(?, ?, 0)", t.linkTable, t.linkColumn)
		_, err = r.db.Exec(query, bookID, refID)
	} else {
		query := fmt.Sprintf("INSERT INTO %s(book, %s) VALUES(?, ?)", t.linkTable, t.linkColumn)
		_, err = r.db.Exec(query, bookID, refID)
	}
	if err != nil {
		return loaderrors.NewStoreError("insert "+t.linkTable, err)
	}
	return nil
}
