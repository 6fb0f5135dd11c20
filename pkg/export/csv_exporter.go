package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
)

// utf8BOM makes spreadsheet tools detect UTF-8 for non-ASCII student names.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVExporter renders datasets as CSV. Cells are free text typed by operators
// (names, reasons), so anything a spreadsheet would evaluate as a formula is
// prefixed with a quote.
type CSVExporter struct {
	bom bool
}

// CSVOption tweaks a CSVExporter.
type CSVOption func(*CSVExporter)

// WithBOM prepends a UTF-8 byte order mark.
func WithBOM() CSVOption {
	return func(e *CSVExporter) { e.bom = true }
}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter(opts ...CSVOption) *CSVExporter {
	e := &CSVExporter{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Render writes the header row then one record per row, in header order.
func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("csv requires at least one header")
	}
	buf := &bytes.Buffer{}
	if e.bom {
		buf.Write(utf8BOM)
	}
	writer := csv.NewWriter(buf)
	if err := writer.Write(data.Headers); err != nil {
		return nil, fmt.Errorf("write csv headers: %w", err)
	}
	record := make([]string, len(data.Headers))
	for _, row := range data.Rows {
		for i, header := range data.Headers {
			record[i] = neutralizeFormula(row[header])
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// neutralizeFormula leaves signed numbers such as point changes alone.
func neutralizeFormula(cell string) string {
	if cell == "" {
		return cell
	}
	switch cell[0] {
	case '=', '@', '\t', '\r':
		return "'" + cell
	case '+', '-':
		if isSignedNumber(cell) {
			return cell
		}
		return "'" + cell
	}
	return cell
}

func isSignedNumber(cell string) bool {
	digits := strings.TrimLeft(cell[1:], "0123456789")
	if digits == "" {
		return len(cell) > 1
	}
	if digits[0] != '.' {
		return false
	}
	rest := digits[1:]
	return rest != "" && strings.Trim(rest, "0123456789") == ""
}
