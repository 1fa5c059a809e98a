// Package sortkey derives the collation keys stored in the catalog "sort"
// columns of books, authors, series and tags.
package sortkey

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// TitleArticles are moved to the end of a title key ("The Hobbit" -> "HOBBIT, THE").
var TitleArticles = []string{
	"The",
	"A",
	"An",
}

// Derive maps a display string to its sort key: whitespace collapsed,
// diacritics removed, upper-cased. Equal inputs always give equal keys.
func Derive(display string) string {
	display = strings.Join(strings.Fields(display), " ")
	if display == "" {
		return ""
	}
	return strings.ToUpper(fold(display))
}

// Title derives the key of a book title or series name. A leading article is
// moved to the end before folding.
func Title(title string) string {
	title = strings.Join(strings.Fields(title), " ")
	for _, article := range TitleArticles {
		prefix := article + " "
		if len(title) > len(prefix) && strings.EqualFold(title[:len(prefix)], prefix) {
			return Derive(title[len(prefix):] + ", " + title[:len(article)])
		}
	}
	return Derive(title)
}

// fold strips combining marks after canonical decomposition. Runes without a
// decomposition (ß, ø, Cyrillic) pass through unchanged.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
