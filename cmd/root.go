package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/lepinkainen/humanlog"
	"github.com/marsender/cops/internal/bookinfo"
	"github.com/marsender/cops/internal/config"
	"github.com/marsender/cops/internal/datastore"
	"github.com/marsender/cops/internal/schema"
	"github.com/spf13/viper"
)

var (
	provisionCatalog = schema.Provision
	openCatalog      = datastore.Open
	loadManifest     = bookinfo.LoadManifest

	stdout io.Writer = os.Stdout
)

// CLI represents the complete command structure for the cops application
type CLI struct {
	// Global flags
	Verbose bool   `short:"v" help:"Enable debug logging"`
	DBFile  string `name:"db" help:"Path to the Calibre catalog database (defaults to catalog.dbfile in config)"`

	Provision ProvisionCmd `cmd:"" help:"Create an empty Calibre catalog, replacing any existing one"`
	Import    ImportCmd    `cmd:"" help:"Import book metadata into a Calibre catalog"`
}

// ProvisionCmd represents the provision command
type ProvisionCmd struct {
	Schema string `help:"Path to a metadata_sqlite.sql script (defaults to the embedded Calibre schema)"`
}

// ImportCmd represents the import command
type ImportCmd struct {
	Input   string   `short:"f" help:"Path to the YAML or JSON book manifest"`
	Create  bool     `help:"Provision a fresh catalog before importing"`
	BookIDs string   `name:"book-ids" help:"Path to the file name -> book id map kept across rebuilds"`
	Formats []string `help:"Secondary formats attached when found next to a book (defaults to import.formats in config)"`
}

// Execute runs the Kong-based CLI
func Execute() {
	initLogging(slog.LevelInfo)
	if err := initConfig(); err != nil {
		slog.Error("Fatal error config file", "error", err)
		os.Exit(1)
	}

	var cli CLI

	ctx := kong.Parse(&cli,
		kong.Name("cops"),
		kong.Description("Build and fill Calibre catalogs from parsed book metadata."),
		kong.UsageOnError(),
	)

	if cli.Verbose {
		initLogging(slog.LevelDebug)
	}

	updateGlobalConfig(&cli)

	err := ctx.Run()
	if err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

// initConfig registers defaults, environment bindings and the optional
// config.yaml in the working directory.
func initConfig() error {
	config.SetDefaults()

	viper.SetEnvPrefix("COPS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
		slog.Debug("Config file not found, using defaults")
	}

	config.InitConfig()
	return nil
}

// updateGlobalConfig lets command line flags override config file values
func updateGlobalConfig(cli *CLI) {
	config.SetCreateCatalog(cli.Import.Create)

	if cli.DBFile != "" {
		viper.Set(config.KeyDBFile, cli.DBFile)
	}
	if cli.Provision.Schema != "" {
		viper.Set(config.KeySchema, cli.Provision.Schema)
	}
	if cli.Import.BookIDs != "" {
		viper.Set(config.KeyBookIDs, cli.Import.BookIDs)
	}
	if len(cli.Import.Formats) > 0 {
		viper.Set(config.KeyFormats, cli.Import.Formats)
	}
}

func initLogging(level slog.Level) {
	handler := humanlog.NewHandler(os.Stdout, &humanlog.Options{
		Level: level,
	})

	slog.SetDefault(slog.New(handler))
}
