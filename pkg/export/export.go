// Package export renders tabular data as CSV or PDF downloads.
package export

import (
	"fmt"
	"strings"
)

// Format names a supported download format.
type Format string

const (
	FormatCSV Format = "csv"
	FormatPDF Format = "pdf"
)

// ParseFormat normalises a query value. Empty means CSV.
func ParseFormat(raw string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatPDF:
		return FormatPDF, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", raw)
	}
}

// ContentType returns the MIME type served for the format.
func (f Format) ContentType() string {
	if f == FormatPDF {
		return "application/pdf"
	}
	return "text/csv; charset=utf-8"
}

// Table is an ordered grid. Every row has len(Columns) cells.
type Table struct {
	Title   string
	Columns []Column
	Rows    [][]string
}

// Column is a header plus a relative width used by the PDF layout.
type Column struct {
	Header string
	Weight float64
}

// Renderer turns a table into file bytes.
type Renderer interface {
	Render(Table) ([]byte, error)
}

// For returns the renderer for a format.
func For(format Format) Renderer {
	if format == FormatPDF {
		return PDF{}
	}
	return CSV{}
}

// Filename builds a download name such as audit-log-20261019.csv.
func Filename(base, stamp string, format Format) string {
	return fmt.Sprintf("%s-%s.%s", base, stamp, format)
}

func (t Table) validate() error {
	if len(t.Columns) == 0 {
		return fmt.Errorf("export requires at least one column")
	}
	for i, row := range t.Rows {
		if len(row) != len(t.Columns) {
			return fmt.Errorf("row %d has %d cells, want %d", i, len(row), len(t.Columns))
		}
	}
	return nil
}
