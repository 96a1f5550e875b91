package export

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Format is an output encoding for scan records.
type Format string

const (
	FormatTable   Format = "table"
	FormatCSV     Format = "csv"
	FormatJSON    Format = "json"
	FormatParquet Format = "parquet"
)

// Formats lists the supported formats.
func Formats() []Format {
	return []Format{FormatTable, FormatCSV, FormatJSON, FormatParquet}
}

// ParseFormat validates a format name.
func ParseFormat(name string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Formats() {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("unsupported output format: %s", name)
}

// DetectFormat picks a format from the output file extension. No file means
// a console table; an unknown extension means CSV.
func DetectFormat(filename string) Format {
	if filename == "" {
		return FormatTable
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".parquet":
		return FormatParquet
	case ".json":
		return FormatJSON
	case ".txt":
		return FormatTable
	default:
		return FormatCSV
	}
}
