// Package ingest parses uploaded URL lists in csv, xlsx and plain text form.
package ingest

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// DefaultMaxRows bounds how many rows a single upload may carry.
const DefaultMaxRows = 10_000

// ErrTooManyRows indicates the upload exceeds the row limit.
var ErrTooManyRows = errors.New("too many rows")

// Parse extracts URL candidates from r based on the file name's extension:
// .csv takes every non-empty cell, .xlsx takes every cell across all sheets,
// anything else is read line by line with # comments skipped. Values are
// trimmed; validation is the caller's concern.
func Parse(r io.Reader, filename string) ([]string, error) {
	return ParseLimit(r, filename, DefaultMaxRows)
}

// ParseLimit is Parse with an explicit row limit.
func ParseLimit(r io.Reader, filename string, maxRows int) ([]string, error) {
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return parseCSV(r, maxRows)
	case ".xlsx":
		return parseWorkbook(r, maxRows)
	default:
		return parseLines(r, maxRows)
	}
}

func parseCSV(r io.Reader, maxRows int) ([]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	var urls []string
	rows := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return urls, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		rows++
		if rows > maxRows {
			return nil, fmt.Errorf("csv: %w (max %d)", ErrTooManyRows, maxRows)
		}
		for _, cell := range record {
			if cell = strings.TrimSpace(cell); cell != "" {
				urls = append(urls, cell)
			}
		}
	}
}

func parseWorkbook(r io.Reader, maxRows int) ([]string, error) {
	book, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer func() { _ = book.Close() }()

	var urls []string
	rows := 0
	for _, sheet := range book.GetSheetList() {
		sheetRows, err := book.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
		}
		for _, row := range sheetRows {
			rows++
			if rows > maxRows {
				return nil, fmt.Errorf("workbook: %w (max %d)", ErrTooManyRows, maxRows)
			}
			for _, cell := range row {
				if cell = strings.TrimSpace(cell); cell != "" {
					urls = append(urls, cell)
				}
			}
		}
	}
	return urls, nil
}

func parseLines(r io.Reader, maxRows int) ([]string, error) {
	var urls []string
	rows := 0
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		rows++
		if rows > maxRows {
			return nil, fmt.Errorf("text: %w (max %d)", ErrTooManyRows, maxRows)
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan input: %w", err)
	}
	return urls, nil
}
