package testutil

import (
	"testing"

	"github.com/marsender/cops/internal/config"
	"github.com/spf13/viper"
)

// ResetConfig resets viper and the config package globals, restoring them
// when the test completes.
func ResetConfig(t *testing.T) {
	t.Helper()

	createCatalog := config.CreateCatalog
	viper.Reset()

	t.Cleanup(func() {
		config.CreateCatalog = createCatalog
		viper.Reset()
	})
}

// SetViperValue sets a viper configuration value and schedules cleanup.
func SetViperValue(t *testing.T, key string, value any) {
	t.Helper()

	oldValue := viper.Get(key)
	hadValue := viper.IsSet(key)

	viper.Set(key, value)

	t.Cleanup(func() {
		if hadValue {
			viper.Set(key, oldValue)
		}
		// viper has no Unset, so a previously unset key keeps the test value
	})
}

// SetupCatalogConfig points the catalog and book id map at files inside the
// test environment and returns the catalog path.
func SetupCatalogConfig(t *testing.T, env *TestEnv) string {
	t.Helper()

	config.SetDefaults()

	dbPath := env.Path("library", "metadata.db")
	env.MkdirAll("library")

	SetViperValue(t, config.KeyDBFile, dbPath)
	SetViperValue(t, config.KeyBookIDs, env.Path("library", "book_ids.txt"))

	return dbPath
}
