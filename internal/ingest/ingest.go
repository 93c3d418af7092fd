package ingest

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported input format")
	ErrNoSheets          = errors.New("workbook has no sheets")
)

// Load reads URLs from r, choosing the reader by the extension of name.
func Load(name string, r io.Reader) ([]string, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt":
		return ParseText(r)
	case ".xlsx":
		return ReadXLSX(r)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
	}
}

// ParseText reads one URL per line. Blank lines are skipped.
func ParseText(r io.Reader) ([]string, error) {
	var urls []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read text input: %w", err)
	}
	return urls, nil
}

// ReadXLSX returns the first column of the first sheet. The first row is a
// header and empty cells are dropped.
func ReadXLSX(r io.Reader) ([]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoSheets
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}

	var urls []string
	for i, row := range rows {
		if i == 0 || len(row) == 0 {
			continue
		}
		cell := strings.TrimSpace(row[0])
		if cell == "" {
			continue
		}
		urls = append(urls, cell)
	}
	return urls, nil
}
