// Package bookinfo holds the parsed metadata of one book file as handed to the
// catalog loader.
package bookinfo

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// Author pairs a display name with the form it sorts under.
type Author struct {
	Name string `yaml:"name" json:"name"`
	Sort string `yaml:"sort" json:"sort"`
}

// Book is the metadata of one book file. BasePath/Path/Name locate the files
// on disk: <BasePath>/<Path>/<Name>.<format>.
type Book struct {
	Title            string   `yaml:"title" json:"title"`
	Authors          []Author `yaml:"authors" json:"authors"`
	Series           string   `yaml:"series" json:"series"`
	SeriesIndex      float64  `yaml:"series_index" json:"series_index"`
	Language         string   `yaml:"language" json:"language"`
	Subjects         []string `yaml:"subjects" json:"subjects"`
	Description      string   `yaml:"description" json:"description"`
	UUID             string   `yaml:"uuid" json:"uuid"`
	ISBN             string   `yaml:"isbn" json:"isbn"`
	URI              string   `yaml:"uri" json:"uri"`
	Format           string   `yaml:"format" json:"format"`
	Timestamp        string   `yaml:"timestamp" json:"timestamp"`
	CreationDate     string   `yaml:"creation_date" json:"creation_date"`
	ModificationDate string   `yaml:"modification_date" json:"modification_date"`
	Cover            string   `yaml:"cover" json:"cover"`
	BasePath         string   `yaml:"base_path" json:"base_path"`
	Path             string   `yaml:"path" json:"path"`
	Name             string   `yaml:"name" json:"name"`

	// File is the key used by the book id map. Defaults to Path/Name.Format.
	File string `yaml:"file" json:"file"`
}

// Validate checks the fields the loader cannot do without.
func (b *Book) Validate() error {
	var missing []string
	if strings.TrimSpace(b.Title) == "" {
		missing = append(missing, "title")
	}
	if strings.TrimSpace(b.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(b.Format) == "" {
		missing = append(missing, "format")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// FileKey returns the name the book id map knows this book under.
func (b *Book) FileKey() string {
	if b.File != "" {
		return b.File
	}
	return path.Join(filepath.ToSlash(b.Path), b.Name+"."+b.Format)
}

// FilePath returns the on-disk location of the book in the given format.
func (b *Book) FilePath(format string) string {
	return filepath.Join(b.BasePath, b.Path, b.Name+"."+format)
}

// AuthorSort returns the sort form of an author, falling back to the display name.
func (a Author) AuthorSort() string {
	if strings.TrimSpace(a.Sort) != "" {
		return a.Sort
	}
	return a.Name
}
