package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/segmentio/parquet-go"

	"github.com/raaihank/pii-sentinel/internal/results"
)

// Write encodes records to w in the given format.
func Write(w io.Writer, format Format, records []results.Record) error {
	switch format {
	case FormatTable:
		return writeTable(w, records)
	case FormatCSV:
		return writeCSV(w, records)
	case FormatJSON:
		return writeJSON(w, records)
	case FormatParquet:
		return writeParquet(w, records)
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

func writeTable(w io.Writer, records []results.Record) error {
	table := tablewriter.NewWriter(w)
	table.SetHeader(results.Headers())
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	for _, r := range records {
		table.Append(r.Fields())
	}
	table.Render()
	return nil
}

func writeCSV(w io.Writer, records []results.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(results.Headers()); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, r := range records {
		if err := cw.Write(r.Fields()); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeJSON(w io.Writer, records []results.Record) error {
	if records == nil {
		records = []results.Record{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

func writeParquet(w io.Writer, records []results.Record) error {
	pw := parquet.NewGenericWriter[results.Record](w)
	if _, err := pw.Write(records); err != nil {
		pw.Close()
		return fmt.Errorf("failed to write Parquet rows: %w", err)
	}
	if err := pw.Close(); err != nil {
		return fmt.Errorf("failed to close Parquet writer: %w", err)
	}
	return nil
}
