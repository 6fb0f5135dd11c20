package export

import (
	"fmt"
	"strings"

	appErrors "github.com/noah-isme/batch-admin-api/pkg/errors"
)

// Format is a supported export encoding.
type Format string

const (
	FormatCSV Format = "csv"
	FormatPDF Format = "pdf"
)

// ParseFormat accepts csv or pdf in any case; empty means csv.
func ParseFormat(value string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(value))) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatPDF:
		return FormatPDF, nil
	default:
		return "", appErrors.Clone(appErrors.ErrUnsupportedFormat, fmt.Sprintf("unsupported export format %q", value))
	}
}

// Dataset defines tabular export content.
type Dataset struct {
	Headers []string
	Rows    []map[string]string
}

// File is a rendered export ready to be served.
type File struct {
	Name        string
	ContentType string
	Content     []byte
}

// Renderer renders datasets in either supported format.
type Renderer struct {
	csv *CSVExporter
	pdf *PDFExporter
}

// NewRenderer constructs a Renderer.
func NewRenderer() *Renderer {
	return &Renderer{csv: NewCSVExporter(WithBOM()), pdf: NewPDFExporter()}
}

// Render encodes data as format. baseName is used for the file name and the PDF title.
func (r *Renderer) Render(format Format, data Dataset, baseName, title string) (*File, error) {
	switch format {
	case FormatCSV:
		content, err := r.csv.Render(data)
		if err != nil {
			return nil, err
		}
		return &File{Name: baseName + ".csv", ContentType: "text/csv", Content: content}, nil
	case FormatPDF:
		content, err := r.pdf.Render(data, title)
		if err != nil {
			return nil, err
		}
		return &File{Name: baseName + ".pdf", ContentType: "application/pdf", Content: content}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrUnsupportedFormat, fmt.Sprintf("unsupported export format %q", format))
	}
}
