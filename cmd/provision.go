package cmd

import (
	"fmt"

	"github.com/marsender/cops/internal/config"
	"github.com/marsender/cops/internal/datastore"
	"github.com/marsender/cops/internal/schema"
)

func (p *ProvisionCmd) Run() error {
	cfg := config.Load()

	store, err := provision(cfg)
	if err != nil {
		return err
	}
	if err := store.Close(); err != nil {
		return fmt.Errorf("failed to close catalog: %w", err)
	}

	_, _ = fmt.Fprintln(stdout, renderProvisioned(cfg.DBFile))
	return nil
}

// provision rebuilds the configured catalog from the configured schema script.
func provision(cfg config.Config) (*datastore.SQLiteStore, error) {
	if cfg.DBFile == "" {
		return nil, fmt.Errorf("catalog database path is required (provide via --db flag or catalog.dbfile in config)")
	}

	script, err := schema.ReadScript(cfg.SchemaFile)
	if err != nil {
		return nil, err
	}

	return provisionCatalog(cfg.DBFile, script)
}
