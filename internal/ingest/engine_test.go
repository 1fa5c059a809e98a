package ingest

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/marsender/cops/internal/bookids"
	"github.com/marsender/cops/internal/bookinfo"
	"github.com/marsender/cops/internal/datastore"
	loaderrors "github.com/marsender/cops/internal/errors"
	"github.com/marsender/cops/internal/schema"
	"github.com/marsender/cops/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type catalog struct {
	env   *testutil.TestEnv
	store *datastore.SQLiteStore
}

func newCatalog(t *testing.T) *catalog {
	t.Helper()
	env := testutil.NewTestEnv(t)
	return &catalog{env: env, store: provision(t, env)}
}

func provision(t *testing.T, env *testutil.TestEnv) *datastore.SQLiteStore {
	t.Helper()
	store, err := schema.Provision(env.Path("metadata.db"), schema.DefaultScript())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func (c *catalog) count(t *testing.T, table string) int {
	t.Helper()
	return testutil.CountRows(t, c.store.DB(), table)
}

// book returns a record whose epub exists on disk.
func (c *catalog) book(t *testing.T, title, uuid string) *bookinfo.Book {
	t.Helper()
	dir := "Frank Herbert/" + title
	base := c.env.WriteBookFile(dir, title, "epub", "epub:"+title)
	return &bookinfo.Book{
		Title:    title,
		Authors:  []bookinfo.Author{{Name: "Frank Herbert", Sort: "Herbert, Frank"}},
		Language: "eng",
		UUID:     uuid,
		Format:   "epub",
		Cover:    "OEBPS/cover.jpg",
		BasePath: base,
		Path:     dir,
		Name:     title,
	}
}

func fixedClock() time.Time {
	return time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
}

func TestIngest_Dune(t *testing.T) {
	c := newCatalog(t)
	rec := c.book(t, "Dune", "U1")
	rec.Series = "Dune"
	rec.SeriesIndex = 1
	rec.Subjects = []string{"Science Fiction"}
	rec.ISBN = "000"

	engine := New(c.store, WithClock(fixedClock))
	res, err := engine.Ingest(rec, 0)
	require.NoError(t, err)
	assert.NoError(t, res.Err())
	assert.Equal(t, "U1", res.UUID)
	assert.Equal(t, []string{"EPUB"}, res.Formats)

	assert.Equal(t, 1, c.count(t, "books"))
	assert.Equal(t, 1, c.count(t, "series"))
	assert.Equal(t, 1, c.count(t, "authors"))
	assert.Equal(t, 1, c.count(t, "languages"))
	assert.Equal(t, 1, c.count(t, "tags"))
	for _, link := range []string{"books_series_link", "books_authors_link", "books_languages_link", "books_tags_link"} {
		assert.Equal(t, 1, c.count(t, link), link)
	}

	var (
		uuid, sort, timestamp, pubdate, lastModified, isbn string
		seriesIndex                                      float64
	)
	err = c.store.QueryRow(`SELECT uuid, sort, CAST(timestamp AS TEXT), CAST(pubdate AS TEXT), CAST(last_modified AS TEXT), isbn, series_index
		FROM books WHERE id = ?`, res.BookID).
		Scan(&uuid, &sort, &timestamp, &pubdate, &lastModified, &isbn, &seriesIndex)
	require.NoError(t, err)
	assert.Equal(t, "U1", uuid)
	assert.Equal(t, "DUNE", sort)
	assert.Equal(t, "2024-05-06 07:08:09", timestamp)
	assert.Equal(t, bookinfo.DefaultDate, pubdate)
	assert.Equal(t, bookinfo.DefaultDate, lastModified)
	assert.Equal(t, "000", isbn)
	assert.Equal(t, 1.0, seriesIndex)

	var name, authorSort string
	require.NoError(t, c.store.QueryRow("SELECT name, sort FROM authors").Scan(&name, &authorSort))
	assert.Equal(t, "Frank Herbert", name)
	assert.Equal(t, "HERBERT, FRANK", authorSort)

	var tagSort string
	require.NoError(t, c.store.QueryRow("SELECT sort FROM tags WHERE name = ?", "Science Fiction").Scan(&tagSort))
	assert.Equal(t, "SCIENCE FICTION", tagSort)

	var itemOrder int
	require.NoError(t, c.store.QueryRow("SELECT item_order FROM books_languages_link WHERE book = ?", res.BookID).Scan(&itemOrder))
	assert.Equal(t, 0, itemOrder)

	var format, dataName string
	var size int64
	require.NoError(t, c.store.QueryRow("SELECT format, name, uncompressed_size FROM data WHERE book = ?", res.BookID).
		Scan(&format, &dataName, &size))
	assert.Equal(t, "EPUB", format)
	assert.Equal(t, "Dune", dataName)
	assert.Equal(t, int64(len("epub:Dune")), size)

	assert.Equal(t, 1, c.count(t, "comments"))
	assert.Equal(t, 1, c.count(t, "identifiers"))
}

func TestIngest_DuplicateUUID(t *testing.T) {
	c := newCatalog(t)
	engine := New(c.store, WithUUIDGenerator(func() string { return "U2" }))

	_, err := engine.Ingest(c.book(t, "Dune", "U1"), 0)
	require.NoError(t, err)

	rec := c.book(t, "Dune Messiah", "U1")
	res, err := engine.Ingest(rec, 0)
	require.NoError(t, err)

	require.Len(t, res.Warnings, 1)
	assert.Equal(t, `Multiple book id for uuid: U1 (already in file "Frank Herbert/Dune/Dune.epub" title "Dune")`, res.Warnings[0])
	assert.Equal(t, "U2", res.UUID)
	assert.Equal(t, "U2", rec.UUID)

	warnErr := res.Err()
	require.Error(t, warnErr)
	assert.True(t, loaderrors.IsWarningsError(warnErr))
	assert.False(t, loaderrors.IsFatal(warnErr))

	assert.Equal(t, 2, c.count(t, "books"))
	var uuids int
	require.NoError(t, c.store.QueryRow("SELECT COUNT(DISTINCT uuid) FROM books").Scan(&uuids))
	assert.Equal(t, 2, uuids)
}

func TestIngest_DuplicateUUIDWithoutData(t *testing.T) {
	c := newCatalog(t)
	_, err := c.store.Exec("INSERT INTO books(title, uuid, path) VALUES('Orphan', 'U1', 'orphan')")
	require.NoError(t, err)

	res, err := New(c.store).Ingest(c.book(t, "Dune", "U1"), 0)
	require.NoError(t, err)

	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], `already in file "orphan/.epub" title "Orphan"`)
	assert.NotEqual(t, "U1", res.UUID)
}

func TestIngest_MissingUUIDIsGenerated(t *testing.T) {
	c := newCatalog(t)
	engine := New(c.store, WithUUIDGenerator(func() string { return "generated" }))

	res, err := engine.Ingest(c.book(t, "Dune", ""), 0)
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, "generated", res.UUID)
}

func TestIngest_ReusesReferenceRows(t *testing.T) {
	c := newCatalog(t)
	engine := New(c.store)

	for i, title := range []string{"Dune", "Dune Messiah"} {
		rec := c.book(t, title, fmt.Sprintf("U%d", i+1))
		rec.Series = "Dune"
		rec.SeriesIndex = float64(i + 1)
		rec.Subjects = []string{"Science Fiction"}
		_, err := engine.Ingest(rec, 0)
		require.NoError(t, err)
	}

	assert.Equal(t, 2, c.count(t, "books"))
	for _, table := range []string{"series", "authors", "languages", "tags"} {
		assert.Equal(t, 1, c.count(t, table), table)
	}
	for _, link := range []string{"books_series_link", "books_authors_link", "books_languages_link", "books_tags_link"} {
		assert.Equal(t, 2, c.count(t, link), link)
	}
}

func TestIngest_DuplicateValuesInOneRecord(t *testing.T) {
	c := newCatalog(t)
	rec := c.book(t, "Dune", "U1")
	rec.Subjects = []string{"Science Fiction", "science fiction", " Science Fiction ", ""}
	rec.Authors = append(rec.Authors, bookinfo.Author{Name: "Frank Herbert"})

	_, err := New(c.store).Ingest(rec, 0)
	require.NoError(t, err)

	assert.Equal(t, 1, c.count(t, "tags"))
	assert.Equal(t, 1, c.count(t, "books_tags_link"))
	assert.Equal(t, 1, c.count(t, "authors"))
	assert.Equal(t, 1, c.count(t, "books_authors_link"))
}

func TestIngest_OptionalReferences(t *testing.T) {
	c := newCatalog(t)
	rec := c.book(t, "Dune", "U1")
	rec.Language = ""
	rec.Authors = nil

	_, err := New(c.store).Ingest(rec, 0)
	require.NoError(t, err)

	for _, table := range []string{"series", "authors", "languages", "tags", "identifiers"} {
		assert.Equal(t, 0, c.count(t, table), table)
	}
}

func TestIngest_Identifiers(t *testing.T) {
	c := newCatalog(t)
	rec := c.book(t, "Dune", "U1")
	rec.URI = "urn:uuid:U1"
	rec.ISBN = "9780441013593"

	res, err := New(c.store).Ingest(rec, 0)
	require.NoError(t, err)

	rows, err := c.store.Query("SELECT type, val FROM identifiers WHERE book = ? ORDER BY id", res.BookID)
	require.NoError(t, err)
	defer func() { _ = rows.Close() }()

	var got []string
	for rows.Next() {
		var kind, val string
		require.NoError(t, rows.Scan(&kind, &val))
		got = append(got, kind+"="+val)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"URI=urn:uuid:U1", "ISBN=9780441013593"}, got)
}

func TestIngest_Cover(t *testing.T) {
	tests := []struct {
		name         string
		cover        string
		prefix       string
		wantHasCover int
		wantCover    string
		wantWarnings []string
	}{
		{
			name:         "prefix replaced by book name",
			cover:        "OEBPS/Images/cover.jpg",
			prefix:       DefaultCoverPrefix,
			wantHasCover: 1,
			wantCover:    "Dune/Images/cover.jpg",
		},
		{
			name:         "other prefix kept",
			cover:        "images/cover.jpg",
			prefix:       DefaultCoverPrefix,
			wantHasCover: 1,
			wantCover:    "images/cover.jpg",
		},
		{
			name:         "empty prefix keeps path",
			cover:        "OEBPS/cover.jpg",
			prefix:       "",
			wantHasCover: 1,
			wantCover:    "OEBPS/cover.jpg",
		},
		{
			name:         "missing cover",
			cover:        "",
			prefix:       DefaultCoverPrefix,
			wantHasCover: 0,
			wantCover:    "",
			wantWarnings: []string{"Cover not found"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newCatalog(t)
			rec := c.book(t, "Dune", "U1")
			rec.Cover = tt.cover

			res, err := New(c.store, WithCoverPrefix(tt.prefix)).Ingest(rec, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.wantWarnings, res.Warnings)

			var hasCover int
			var cover string
			require.NoError(t, c.store.QueryRow("SELECT has_cover, cover FROM books WHERE id = ?", res.BookID).Scan(&hasCover, &cover))
			assert.Equal(t, tt.wantHasCover, hasCover)
			assert.Equal(t, tt.wantCover, cover)
		})
	}
}

func TestIngest_Formats(t *testing.T) {
	t.Run("fallback pdf attached when present", func(t *testing.T) {
		c := newCatalog(t)
		rec := c.book(t, "Dune", "U1")
		c.env.WriteBookFile(rec.Path, rec.Name, "pdf", "pdf content")

		res, err := New(c.store).Ingest(rec, 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"EPUB", "PDF"}, res.Formats)
		assert.Equal(t, 2, c.count(t, "data"))
	})

	t.Run("missing fallback skipped", func(t *testing.T) {
		c := newCatalog(t)

		res, err := New(c.store).Ingest(c.book(t, "Dune", "U1"), 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"EPUB"}, res.Formats)
	})

	t.Run("fallbacks disabled", func(t *testing.T) {
		c := newCatalog(t)
		rec := c.book(t, "Dune", "U1")
		c.env.WriteBookFile(rec.Path, rec.Name, "pdf", "pdf content")

		res, err := New(c.store, WithFallbackFormats()).Ingest(rec, 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"EPUB"}, res.Formats)
	})

	t.Run("primary repeated in fallbacks", func(t *testing.T) {
		c := newCatalog(t)

		res, err := New(c.store, WithFallbackFormats("EPUB", "pdf")).Ingest(c.book(t, "Dune", "U1"), 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"EPUB"}, res.Formats)
	})
}

func TestIngest_UnreadablePrimaryFormat(t *testing.T) {
	c := newCatalog(t)
	rec := c.book(t, "Dune", "U1")
	rec.Format = "mobi"

	res, err := New(c.store).Ingest(rec, 0)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, loaderrors.IsUnreadableFileError(err))
	assert.True(t, loaderrors.IsFatal(err))
	assert.Contains(t, err.Error(), "Dune.mobi")

	// no rollback: the book row stays
	assert.Equal(t, 1, c.count(t, "books"))
	assert.Equal(t, 0, c.count(t, "comments"))
}

func TestIngest_AssignedID(t *testing.T) {
	c := newCatalog(t)

	res, err := New(c.store).Ingest(c.book(t, "Dune", "U1"), 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), res.BookID)

	var links int
	require.NoError(t, c.store.QueryRow("SELECT COUNT(*) FROM books_authors_link WHERE book = 42").Scan(&links))
	assert.Equal(t, 1, links)
}

func TestIngest_AssignedIDMismatch(t *testing.T) {
	c := newCatalog(t)
	_, err := c.store.Exec(`CREATE TRIGGER shift_id AFTER INSERT ON books
		BEGIN UPDATE books SET id = NEW.id + 100 WHERE id = NEW.id; END`)
	require.NoError(t, err)

	_, err = New(c.store).Ingest(c.book(t, "Dune", "U1"), 7)
	require.Error(t, err)
	assert.True(t, loaderrors.IsBookIDMismatchError(err))

	var mismatch *loaderrors.BookIDMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, int64(7), mismatch.Want)
	assert.Equal(t, int64(107), mismatch.Got)
}

func TestIngest_BookNotFoundAfterInsert(t *testing.T) {
	c := newCatalog(t)
	_, err := c.store.Exec(`CREATE TRIGGER drop_uuid AFTER INSERT ON books
		BEGIN UPDATE books SET uuid = 'lost' WHERE id = NEW.id; END`)
	require.NoError(t, err)

	_, err = New(c.store).Ingest(c.book(t, "Dune", "U1"), 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, loaderrors.ErrBookNotFound)
}

func TestIngest_StoreFailureIsFatal(t *testing.T) {
	c := newCatalog(t)
	_, err := c.store.Exec("DROP TABLE comments")
	require.NoError(t, err)

	_, err = New(c.store).Ingest(c.book(t, "Dune", "U1"), 0)
	require.Error(t, err)
	assert.True(t, loaderrors.IsStoreError(err))
	assert.True(t, loaderrors.IsFatal(err))
}

func TestIngest_InvalidRecord(t *testing.T) {
	c := newCatalog(t)

	_, err := New(c.store).Ingest(&bookinfo.Book{Title: "Dune"}, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing name, format")

	_, err = New(c.store).Ingest(nil, 0)
	require.Error(t, err)
}

func TestIngest_IDContinuityAcrossRebuild(t *testing.T) {
	env := testutil.NewTestEnv(t)
	mapPath := env.Path("book_ids.txt")
	titles := []string{"Dune", "Dune Messiah", "Children of Dune"}

	run := func(order []string) map[string]int64 {
		store := provision(t, env)
		c := &catalog{env: env, store: store}
		ids, err := bookids.Load(mapPath)
		require.NoError(t, err)

		engine := New(store)
		got := make(map[string]int64)
		for i, title := range order {
			rec := c.book(t, title, fmt.Sprintf("U%d", i))
			res, err := engine.Ingest(rec, ids.Resolve(rec.FileKey()))
			require.NoError(t, err)
			got[title] = res.BookID
		}
		require.NoError(t, ids.Save())
		require.NoError(t, store.Close())
		return got
	}

	first := run(titles)
	second := run([]string{"Children of Dune", "Dune", "Dune Messiah"})

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), first["Dune"])
}

func TestResult_Err(t *testing.T) {
	var nilResult *Result
	assert.NoError(t, nilResult.Err())
	assert.NoError(t, (&Result{}).Err())

	err := (&Result{Warnings: []string{"Cover not found", "Multiple book id for uuid: U1"}}).Err()
	require.Error(t, err)
	assert.Equal(t, "Cover not found - Multiple book id for uuid: U1", err.Error())
}
