package service

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/noah-isme/batch-admin-api/internal/models"
	appErrors "github.com/noah-isme/batch-admin-api/pkg/errors"
)

var (
	nameHeaders = map[string]struct{}{
		"full name":    {},
		"name":         {},
		"participant":  {},
		"display name": {},
	}
	joinHeaders = map[string]struct{}{
		"first seen":  {},
		"join time":   {},
		"joined":      {},
		"time joined": {},
	}
	zipMagic = []byte("PK\x03\x04")
	utf8BOM  = "\ufeff"
)

// ParseParticipants reads a meeting export (CSV or XLSX) into participants.
// Rows before the header and rows without a name are skipped. Any failure to read
// the file as a whole is a single validation error.
func ParseParticipants(fileName string, data []byte) ([]models.Participant, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "participant file is empty")
	}

	var (
		rows [][]string
		err  error
	)
	if isSpreadsheet(fileName, data) {
		rows, err = readSpreadsheetRows(data)
	} else {
		rows, err = readDelimitedRows(data)
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "participant file could not be read")
	}
	return participantsFromRows(rows)
}

func participantsFromRows(rows [][]string) ([]models.Participant, error) {
	headerIdx, nameCol, joinCol := -1, -1, -1
	for i, row := range rows {
		nameCol, joinCol = locateColumns(row)
		if nameCol >= 0 {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "participant file has no name column (expected Full Name, Name, Participant or Display Name)")
	}

	participants := make([]models.Participant, 0, len(rows)-headerIdx-1)
	for _, row := range rows[headerIdx+1:] {
		name := cell(row, nameCol)
		if name == "" {
			continue
		}
		participants = append(participants, models.Participant{FullName: name, FirstSeen: cell(row, joinCol)})
	}
	if len(participants) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "participant file has no participant rows")
	}
	return participants, nil
}

func locateColumns(row []string) (int, int) {
	nameCol, joinCol := -1, -1
	for i, raw := range row {
		header := strings.ToLower(strings.Join(strings.Fields(strings.TrimPrefix(raw, utf8BOM)), " "))
		if _, ok := nameHeaders[header]; ok && nameCol < 0 {
			nameCol = i
		}
		if _, ok := joinHeaders[header]; ok && joinCol < 0 {
			joinCol = i
		}
	}
	return nameCol, joinCol
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func isSpreadsheet(fileName string, data []byte) bool {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".xlsx", ".xlsm":
		return true
	case ".csv", ".tsv", ".txt":
		return false
	}
	return bytes.HasPrefix(data, zipMagic)
}

func readDelimitedRows(data []byte) ([][]string, error) {
	data = bytes.TrimPrefix(data, []byte(utf8BOM))
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.Comma = sniffDelimiter(data)

	var rows [][]string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		rows = append(rows, record)
	}
	return rows, nil
}

// sniffDelimiter picks tab for exports whose first line has tabs but no commas.
func sniffDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	if bytes.IndexByte(line, '\t') >= 0 && bytes.IndexByte(line, ',') < 0 {
		return '\t'
	}
	return ','
}

func readSpreadsheetRows(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open spreadsheet: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("spreadsheet has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	return rows, nil
}
