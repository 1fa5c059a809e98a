package bookinfo

import (
	"strings"
	"time"
)

// TimestampLayout is the layout of every date stored in the catalog.
const TimestampLayout = "2006-01-02 15:04:05"

// DefaultDate stands in for missing publication and modification dates.
const DefaultDate = "2000-01-01 00:00:00"

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	TimestampLayout,
	"2006-01-02T15:04",
	"2006-01-02",
	"2006-01",
	"2006",
}

// NormalizeTimestamp converts a metadata date to the catalog layout in UTC.
// Empty or unparseable input yields fallback.
func NormalizeTimestamp(value, fallback string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC().Format(TimestampLayout)
		}
	}
	return fallback
}
