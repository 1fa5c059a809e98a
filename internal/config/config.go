package config

import (
	"github.com/spf13/viper"
)

// Configuration keys
const (
	KeyDBFile      = "catalog.dbfile"
	KeySchema      = "catalog.schema"
	KeyBookIDs     = "catalog.bookids"
	KeyFormats     = "import.formats"
	KeyCoverPrefix = "import.coverprefix"
)

// Global configuration variables
var (
	// CreateCatalog controls whether the catalog is rebuilt before importing
	CreateCatalog bool
)

// Config is the resolved loader configuration
type Config struct {
	// DBFile is the catalog database (metadata.db)
	DBFile string
	// SchemaFile overrides the embedded Calibre schema when set
	SchemaFile string
	// BookIDsFile persists file name -> book id across rebuilds; empty disables it
	BookIDsFile string
	// Formats are the secondary formats attached when found next to a book
	Formats []string
	// CoverPrefix is replaced by the book name in cover paths
	CoverPrefix string
}

// SetDefaults registers the default values with viper
func SetDefaults() {
	viper.SetDefault(KeyDBFile, "./metadata.db")
	viper.SetDefault(KeySchema, "")
	viper.SetDefault(KeyBookIDs, "")
	viper.SetDefault(KeyFormats, []string{"pdf"})
	viper.SetDefault(KeyCoverPrefix, "OEBPS/")
}

// InitConfig initializes the global configuration
func InitConfig() {
	SetDefaults()
	CreateCatalog = viper.GetBool("CreateCatalog")
}

// Load reads the current configuration from viper
func Load() Config {
	return Config{
		DBFile:      viper.GetString(KeyDBFile),
		SchemaFile:  viper.GetString(KeySchema),
		BookIDsFile: viper.GetString(KeyBookIDs),
		Formats:     viper.GetStringSlice(KeyFormats),
		CoverPrefix: viper.GetString(KeyCoverPrefix),
	}
}

// SetCreateCatalog sets the CreateCatalog flag
func SetCreateCatalog(create bool) {
	CreateCatalog = create
}
