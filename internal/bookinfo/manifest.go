package bookinfo

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadManifest reads a YAML (or JSON) list of book records.
func LoadManifest(path string) ([]Book, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer func() { _ = f.Close() }()

	return ParseManifest(f)
}

// ParseManifest decodes records from r. Every record must pass Validate.
func ParseManifest(r io.Reader) ([]Book, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	if len(bytes.TrimSpace(content)) == 0 {
		return nil, nil
	}

	var books []Book
	if err := yaml.Unmarshal(content, &books); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	for i := range books {
		if err := books[i].Validate(); err != nil {
			return nil, fmt.Errorf("manifest record %d: %w", i, err)
		}
	}
	return books, nil
}
