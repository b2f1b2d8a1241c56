package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
)

// CSVWriter writes the detail rows of a report as CSV with a header line.
type CSVWriter struct {
	w io.Writer
}

// NewCSVWriter creates a CSV writer on w.
func NewCSVWriter(w io.Writer) *CSVWriter {
	return &CSVWriter{w: w}
}

// Write implements Writer.
func (c *CSVWriter) Write(ctx context.Context, r Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	out := csv.NewWriter(c.w)
	if err := out.Write(Columns); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, row := range r.Rows {
		if err := out.Write(row.Values()); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	out.Flush()
	if err := out.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}
	return nil
}
