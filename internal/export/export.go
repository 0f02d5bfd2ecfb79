// Package export renders stored records as JSON or CSV downloads.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/scrapekit/scrapper/internal/scrape"
)

// Format names a supported export encoding.
type Format string

// Supported export formats.
const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// ParseFormat validates a format query value. An empty value defaults to
// JSON.
func ParseFormat(value string) (Format, error) {
	switch Format(value) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatCSV:
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", value)
	}
}

// ContentType returns the MIME type for the format.
func (f Format) ContentType() string {
	if f == FormatCSV {
		return "text/csv; charset=utf-8"
	}
	return "application/json; charset=utf-8"
}

// Write renders the records in the chosen format.
func Write(w io.Writer, format Format, records []scrape.Record) error {
	if format == FormatCSV {
		return writeCSV(w, records)
	}
	return writeJSON(w, records)
}

func writeJSON(w io.Writer, records []scrape.Record) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if records == nil {
		records = []scrape.Record{}
	}
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("encode records: %w", err)
	}
	return nil
}

// writeCSV emits one row per record. The header is the union of all field
// names in sorted order, preceded by record metadata columns.
func writeCSV(w io.Writer, records []scrape.Record) error {
	fieldNames := collectFieldNames(records)
	header := append([]string{"record_id", "run_id", "extracted_at"}, fieldNames...)

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, record := range records {
		row := make([]string, 0, len(header))
		row = append(row, record.ID, record.RunID, record.ExtractedAt.Format(time.RFC3339))
		for _, name := range fieldNames {
			row = append(row, record.Fields[name])
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func collectFieldNames(records []scrape.Record) []string {
	seen := make(map[string]struct{})
	for _, record := range records {
		for name := range record.Fields {
			seen[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
