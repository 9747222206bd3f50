package feed

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Delimiter separates fields in every bulk export.
const Delimiter = ';'

// Row is one data row addressed by header name.
type Row struct {
	Line   int // 1-based line number in the document
	fields []string
	index  map[string]int
}

// Get returns the trimmed value of column name and whether the row has it.
// Ragged rows simply lack trailing columns.
func (r Row) Get(name string) (string, bool) {
	i, ok := r.index[name]
	if !ok || i >= len(r.fields) {
		return "", false
	}
	return strings.TrimSpace(r.fields[i]), true
}

// Len returns the number of fields present in the row.
func (r Row) Len() int {
	return len(r.fields)
}

// Table is a parsed semicolon-delimited document.
type Table struct {
	Header    []string
	Rows      []Row
	Malformed int // rows the CSV reader could not parse
	Preamble  []string
}

// Has reports whether the header contains column name.
func (t *Table) Has(name string) bool {
	for _, h := range t.Header {
		if h == name {
			return true
		}
	}
	return false
}

// ReadTable parses text. Lines before the first line containing marker are
// kept in Preamble (the registry export opens with an extraction date line).
// Rows the reader rejects are counted in Malformed and skipped.
func ReadTable(text, marker string) (*Table, error) {
	text = strings.TrimPrefix(text, "\ufeff")

	offset, preamble, err := findHeader(text, marker)
	if err != nil {
		return nil, err
	}

	r := csv.NewReader(strings.NewReader(text[offset:]))
	r.Comma = Delimiter
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.ReuseRecord = false

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	t := &Table{Preamble: preamble}
	index := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		t.Header = append(t.Header, h)
		if _, dup := index[h]; !dup {
			index[h] = i
		}
	}

	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				t.Malformed++
				continue
			}
			return nil, fmt.Errorf("read row: %w", err)
		}
		if blank(record) {
			continue
		}
		line, _ := r.FieldPos(0)
		t.Rows = append(t.Rows, Row{Line: line + len(preamble), fields: record, index: index})
	}

	return t, nil
}

func findHeader(text, marker string) (int, []string, error) {
	var preamble []string
	offset := 0
	for offset < len(text) {
		end := strings.IndexByte(text[offset:], '\n')
		line := text[offset:]
		if end >= 0 {
			line = text[offset : offset+end]
		}
		if strings.Contains(line, marker) {
			return offset, preamble, nil
		}
		preamble = append(preamble, strings.TrimRight(line, "\r"))
		if end < 0 {
			break
		}
		offset += end + 1
	}
	return 0, nil, fmt.Errorf("%w: marker %q", ErrHeaderNotFound, marker)
}

func blank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
