package platform

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// tableReader reads a header row followed by data rows
type tableReader struct {
	headers []string
	rows    [][]string
}

// readCSV parses a UTF-8 CSV document, dropping a leading BOM
func readCSV(r io.Reader) (*tableReader, error) {
	buf := bufio.NewReader(r)

	head, err := buf.Peek(3)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	// UTF-8 BOM: 0xEF, 0xBB, 0xBF
	if len(head) >= 3 && head[0] == 0xEF && head[1] == 0xBB && head[2] == 0xBF {
		_, _ = buf.Discard(3)
	}

	const checkSize = 4096
	sample, err := buf.Peek(checkSize)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(sample) == 0 {
		return nil, ErrEmptyFile
	}
	if len(sample) == checkSize {
		sample = trimPartialRune(sample)
	}
	if !utf8.Valid(sample) {
		return nil, ErrInvalidEncoding
	}

	reader := csv.NewReader(buf)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	all, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	return newTable(all)
}

// newTable splits raw rows into a normalized header and trimmed data rows.
// Rows with no content are dropped.
func newTable(all [][]string) (*tableReader, error) {
	if len(all) == 0 {
		return nil, ErrMissingHeader
	}
	headers := make([]string, len(all[0]))
	for i, h := range all[0] {
		headers[i] = strings.ToLower(strings.TrimSpace(h))
	}

	rows := make([][]string, 0, len(all)-1)
	for _, row := range all[1:] {
		empty := true
		for i := range row {
			row[i] = strings.TrimSpace(row[i])
			if row[i] != "" {
				empty = false
			}
		}
		if !empty {
			rows = append(rows, row)
		}
	}
	return &tableReader{headers: headers, rows: rows}, nil
}

// maps returns each row keyed by header; missing cells are empty
func (t *tableReader) maps() []map[string]string {
	out := make([]map[string]string, len(t.rows))
	for i, row := range t.rows {
		m := make(map[string]string, len(t.headers))
		for j, h := range t.headers {
			if j < len(row) {
				m[h] = row[j]
			} else {
				m[h] = ""
			}
		}
		out[i] = m
	}
	return out
}

// trimPartialRune drops an incomplete rune cut off at the end of a sample
func trimPartialRune(b []byte) []byte {
	for i := 0; i < utf8.UTFMax && len(b) > 0; i++ {
		if utf8.Valid(b) {
			return b
		}
		b = b[:len(b)-1]
	}
	return b
}
