// Package ingest writes parsed book metadata into a Calibre catalog.
//
// One Ingest call adds one book: the book row, its format files, comment and
// identifiers, plus links to shared authors, series, language and tags that
// are looked up by natural key and created on first use. Nothing is wrapped in
// a transaction; a fatal error leaves the rows written so far in place.
package ingest

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/marsender/cops/internal/bookinfo"
	"github.com/marsender/cops/internal/datastore"
	loaderrors "github.com/marsender/cops/internal/errors"
	"github.com/marsender/cops/internal/fileutil"
	"github.com/marsender/cops/internal/sortkey"
)

const (
	// DefaultCoverPrefix is the archive folder covers are found under in EPUB metadata.
	DefaultCoverPrefix = "OEBPS/"

	warnCoverNotFound = "Cover not found"
)

// DefaultFallbackFormats are attached when present next to the primary file.
var DefaultFallbackFormats = []string{"pdf"}

// Engine ingests books one at a time. It is not safe for concurrent use.
type Engine struct {
	db              datastore.Store
	refs            *resolver
	fallbackFormats []string
	coverPrefix     string
	now             func() time.Time
	newUUID         func() string
}

// Option is a functional option for configuring the Engine.
type Option func(*Engine)

// WithFallbackFormats replaces the secondary formats looked up for every book.
// An empty list disables them.
func WithFallbackFormats(formats ...string) Option {
	return func(e *Engine) {
		e.fallbackFormats = append([]string(nil), formats...)
	}
}

// WithCoverPrefix sets the prefix replaced by the book name in cover paths.
func WithCoverPrefix(prefix string) Option {
	return func(e *Engine) {
		e.coverPrefix = prefix
	}
}

// WithClock sets the time source used for books without a timestamp.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithUUIDGenerator sets the generator used to replace missing or clashing uuids.
func WithUUIDGenerator(gen func() string) Option {
	return func(e *Engine) {
		if gen != nil {
			e.newUUID = gen
		}
	}
}

// New creates an engine writing through db.
func New(db datastore.Store, opts ...Option) *Engine {
	e := &Engine{
		db:              db,
		refs:            &resolver{db: db},
		fallbackFormats: DefaultFallbackFormats,
		coverPrefix:     DefaultCoverPrefix,
		now:             time.Now,
		newUUID:         uuid.NewString,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Result describes a book that made it into the catalog.
type Result struct {
	BookID   int64
	UUID     string
	Warnings []string
	Formats  []string
}

// Err returns the warnings as a single error, or nil when there are none.
func (r *Result) Err() error {
	if r == nil {
		return nil
	}
	if warnErr := loaderrors.NewWarningsError(r.Warnings); warnErr != nil {
		return warnErr
	}
	return nil
}

func (r *Result) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Ingest adds rec to the catalog. When assignedID is non-zero the book row is
// created with that id. The returned error is always fatal; recoverable notes
// are carried in Result.Warnings. rec.UUID is updated when it had to be replaced.
func (e *Engine) Ingest(rec *bookinfo.Book, assignedID int64) (*Result, error) {
	if rec == nil {
		return nil, fmt.Errorf("failed to ingest book: nil record")
	}
	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("failed to ingest book: %w", err)
	}

	res := &Result{}

	if err := e.ensureUniqueUUID(rec, res); err != nil {
		return nil, err
	}
	res.UUID = rec.UUID

	bookID, err := e.insertBook(rec, assignedID, res)
	if err != nil {
		return nil, err
	}
	res.BookID = bookID

	if err := e.insertFormats(rec, bookID, res); err != nil {
		return nil, err
	}

	if _, err := e.db.Exec("INSERT INTO comments(book, text) VALUES(?, ?)", bookID, rec.Description); err != nil {
		return nil, loaderrors.NewStoreError("insert comments", err)
	}

	if err := e.insertIdentifiers(rec, bookID); err != nil {
		return nil, err
	}

	if err := e.linkReferences(rec, bookID); err != nil {
		return nil, err
	}

	slog.Info("Book ingested", "id", bookID, "title", rec.Title, "formats", res.Formats, "warnings", len(res.Warnings))
	return res, nil
}

// ensureUniqueUUID gives rec a fresh uuid when it is empty or already used by
// another book. A clash is reported as a warning.
func (e *Engine) ensureUniqueUUID(rec *bookinfo.Book, res *Result) error {
	if strings.TrimSpace(rec.UUID) == "" {
		rec.UUID = e.newUUID()
		return nil
	}

	rows, err := e.db.Query(`SELECT b.id, b.title, b.path, d.name
		FROM books b LEFT JOIN data d ON d.book = b.id
		WHERE b.uuid = ?`, rec.UUID)
	if err != nil {
		return loaderrors.NewStoreError("select books by uuid", err)
	}
	defer func() { _ = rows.Close() }()

	if rows.Next() {
		var (
			id    int64
			title string
			path  string
			name  sql.NullString
		)
		if err := rows.Scan(&id, &title, &path, &name); err != nil {
			return loaderrors.NewStoreError("scan books by uuid", err)
		}
		res.warn("Multiple book id for uuid: %s (already in file \"%s/%s.%s\" title \"%s\")",
			rec.UUID, path, name.String, rec.Format, title)

		previous := rec.UUID
		rec.UUID = e.newUUID()
		slog.Debug("Replaced duplicate uuid", "old", previous, "new", rec.UUID, "existing_id", id)
		return nil
	}
	if err := rows.Err(); err != nil {
		return loaderrors.NewStoreError("select books by uuid", err)
	}
	return nil
}

func (e *Engine) insertBook(rec *bookinfo.Book, assignedID int64, res *Result) (int64, error) {
	timestamp := bookinfo.NormalizeTimestamp(rec.Timestamp, e.now().UTC().Format(bookinfo.TimestampLayout))
	pubDate := bookinfo.NormalizeTimestamp(rec.CreationDate, bookinfo.DefaultDate)
	lastModified := bookinfo.NormalizeTimestamp(rec.ModificationDate, bookinfo.DefaultDate)

	hasCover := 0
	cover := rec.Cover
	if strings.TrimSpace(cover) == "" {
		res.warn(warnCoverNotFound)
		cover = ""
	} else {
		hasCover = 1
		if e.coverPrefix != "" {
			cover = strings.ReplaceAll(cover, e.coverPrefix, rec.Name+"/")
		}
	}

	columns := "title, sort, timestamp, pubdate, last_modified, series_index, uuid, path, has_cover, cover, isbn"
	placeholders := "?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?"
	args := []any{
		rec.Title, sortkey.Title(rec.Title), timestamp, pubDate, lastModified,
		seriesIndex(rec), rec.UUID, rec.Path, hasCover, cover, rec.ISBN,
	}
	if assignedID != 0 {
		columns = "id, " + columns
		placeholders = "?, " + placeholders
		args = append([]any{assignedID}, args...)
	}

	query := fmt.Sprintf("INSERT INTO books(%s) VALUES(%s)", columns, placeholders)
	if _, err := e.db.Exec(query, args...); err != nil {
		return 0, loaderrors.NewStoreError("insert books", err)
	}

	var bookID int64
	err := e.db.QueryRow("SELECT id FROM books WHERE uuid = ?", rec.UUID).Scan(&bookID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: uuid %s", loaderrors.ErrBookNotFound, rec.UUID)
	}
	if err != nil {
		return 0, loaderrors.NewStoreError("select book id", err)
	}

	if assignedID != 0 && bookID != assignedID {
		return 0, &loaderrors.BookIDMismatchError{Want: assignedID, Got: bookID, UUID: rec.UUID}
	}
	return bookID, nil
}

// seriesIndex defaults to 1 like the catalog column does.
func seriesIndex(rec *bookinfo.Book) float64 {
	if rec.SeriesIndex == 0 {
		return 1
	}
	return rec.SeriesIndex
}

// insertFormats records the primary format file, which must be readable, and
// any fallback format found next to it.
func (e *Engine) insertFormats(rec *bookinfo.Book, bookID int64, res *Result) error {
	formats := append([]string{rec.Format}, e.fallbackFormats...)
	seen := make(map[string]bool, len(formats))

	for i, format := range formats {
		upper := strings.ToUpper(format)
		if format == "" || seen[upper] {
			continue
		}
		seen[upper] = true

		filePath := rec.FilePath(format)
		size, err := fileutil.ReadableSize(filePath)
		if err != nil {
			if i == 0 {
				return &loaderrors.UnreadableFileError{Path: filePath, Err: err}
			}
			continue
		}

		if _, err := e.db.Exec("INSERT INTO data(book, format, name, uncompressed_size) VALUES(?, ?, ?, ?)",
			bookID, upper, rec.Name, size); err != nil {
			return loaderrors.NewStoreError("insert data", err)
		}
		res.Formats = append(res.Formats, upper)
	}
	return nil
}

func (e *Engine) insertIdentifiers(rec *bookinfo.Book, bookID int64) error {
	identifiers := []struct {
		kind  string
		value string
	}{
		{"URI", rec.URI},
		{"ISBN", rec.ISBN},
	}

	for _, id := range identifiers {
		if strings.TrimSpace(id.value) == "" {
			continue
		}
		if _, err := e.db.Exec("INSERT INTO identifiers(book, type, val) VALUES(?, ?, ?)", bookID, id.kind, id.value); err != nil {
			return loaderrors.NewStoreError("insert identifiers", err)
		}
	}
	return nil
}

// linkReferences resolves series, authors, language and tags and links them
// to the book. A value resolving to an already linked row is linked once.
func (e *Engine) linkReferences(rec *bookinfo.Book, bookID int64) error {
	linker := &bookLinker{refs: e.refs, bookID: bookID, linked: make(map[string]map[int64]bool)}

	if series := strings.TrimSpace(rec.Series); series != "" {
		if err := linker.add(seriesTable, series, sortkey.Title(series)); err != nil {
			return err
		}
	}

	for _, author := range rec.Authors {
		name := strings.TrimSpace(author.Name)
		if name == "" {
			continue
		}
		if err := linker.add(authorsTable, name, sortkey.Derive(author.AuthorSort())); err != nil {
			return err
		}
	}

	if lang := strings.TrimSpace(rec.Language); lang != "" {
		if err := linker.add(languagesTable, lang, ""); err != nil {
			return err
		}
	}

	for _, subject := range rec.Subjects {
		subject = strings.TrimSpace(subject)
		if subject == "" {
			continue
		}
		if err := linker.add(tagsTable, subject, sortkey.Title(subject)); err != nil {
			return err
		}
	}
	return nil
}

type bookLinker struct {
	refs   *resolver
	bookID int64
	linked map[string]map[int64]bool
}

func (l *bookLinker) add(t refTable, key, sort string) error {
	id, _, err := l.refs.resolve(t, key, sort)
	if err != nil {
		return fmt.Errorf("failed to resolve %s %q: %w", t.name, key, err)
	}

	if l.linked[t.name] == nil {
		l.linked[t.name] = make(map[int64]bool)
	}
	if l.linked[t.name][id] {
		return nil
	}
	l.linked[t.name][id] = true

	return l.refs.link(t, l.bookID, id)
}
