package cmd

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/marsender/cops/internal/bookids"
	"github.com/marsender/cops/internal/bookinfo"
	"github.com/marsender/cops/internal/config"
	"github.com/marsender/cops/internal/datastore"
	"github.com/marsender/cops/internal/ingest"
	"github.com/spf13/viper"
)

func (i *ImportCmd) Run() (err error) {
	// Read from config if value not provided via flag
	input := i.Input
	if input == "" {
		input = viper.GetString("import.manifest")
	}
	if input == "" {
		return fmt.Errorf("input manifest is required (provide via --input flag or import.manifest in config)")
	}

	cfg := config.Load()

	books, err := loadManifest(input)
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("failed to close catalog: %w", closeErr))
		}
	}()

	var ids *bookids.Map
	if cfg.BookIDsFile != "" {
		ids, err = bookids.Load(cfg.BookIDsFile)
		if err != nil {
			return err
		}
		slog.Debug("Loaded book id map", "path", cfg.BookIDsFile, "entries", ids.Len())
		// saved once, whatever happened to the books
		defer func() {
			if saveErr := ids.Save(); saveErr != nil {
				err = errors.Join(err, saveErr)
			}
		}()
	}

	engine := ingest.New(store,
		ingest.WithFallbackFormats(cfg.Formats...),
		ingest.WithCoverPrefix(cfg.CoverPrefix),
	)

	summary := importBooks(engine, books, ids)
	_, _ = fmt.Fprintln(stdout, renderSummary(cfg.DBFile, summary))

	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d books failed to import", summary.Failed, summary.Total())
	}
	return nil
}

// openStore provisions a fresh catalog when requested, otherwise opens the
// existing one.
func openStore(cfg config.Config) (datastore.Store, error) {
	if config.CreateCatalog {
		store, err := provision(cfg)
		if err != nil {
			return nil, err
		}
		return store, nil
	}

	if cfg.DBFile == "" {
		return nil, fmt.Errorf("catalog database path is required (provide via --db flag or catalog.dbfile in config)")
	}
	store, err := openCatalog(cfg.DBFile)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// bookIngester is the part of ingest.Engine the import loop needs.
type bookIngester interface {
	Ingest(rec *bookinfo.Book, assignedID int64) (*ingest.Result, error)
}

// importBooks ingests the books one at a time. A failed book does not stop
// the run.
func importBooks(engine bookIngester, books []bookinfo.Book, ids *bookids.Map) importSummary {
	var summary importSummary

	for idx := range books {
		rec := &books[idx]
		file := rec.FileKey()

		var assignedID int64
		if ids != nil {
			assignedID = ids.Resolve(file)
		}

		res, err := engine.Ingest(rec, assignedID)
		switch {
		case err != nil:
			summary.Failed++
			summary.Failures = append(summary.Failures, fmt.Sprintf("%s: %v", file, err))
			slog.Error("Failed to import book", "file", file, "error", err)
		case res.Err() != nil:
			summary.WithWarnings++
			slog.Warn("Imported book with warnings", "file", file, "id", res.BookID, "warnings", res.Err())
		default:
			summary.Imported++
			slog.Debug("Imported book", "file", file, "id", res.BookID)
		}
	}

	return summary
}
