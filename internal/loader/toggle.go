package loader

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"regsync/internal/registry/models"
)

// Identifier scheme prefixes applied to the raw toggle columns. The table
// carries bare numbers; stored identifiers carry the issuing-scheme digit.
const (
	newIDPrefix = "0"
	oldIDPrefix = "8"
)

// LoadCorrespondences parses a two-column correspondence table into a map
// keyed by old identifier. A row of any other width fails the whole load.
func (l *Loader) LoadCorrespondences(path string) (map[string]models.Correspondence, error) {
	l.logger.Info("loading correspondence table", "file", path)

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(l.decoder.Reader(file))
	reader.Comma = ';'
	reader.FieldsPerRecord = ToggleRowLength
	reader.LazyQuotes = true

	entries := make(map[string]models.Correspondence)
	header := true
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("malformed correspondence row: %w", err)
		}
		if header {
			header = false
			continue
		}
		entry := models.Correspondence{
			OldID: oldIDPrefix + row[1],
			NewID: newIDPrefix + row[0],
		}
		entries[entry.OldID] = entry
	}

	l.logger.Info("correspondence table loaded", "entries", len(entries))
	return entries, nil
}
