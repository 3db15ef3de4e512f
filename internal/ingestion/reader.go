// Package ingestion reads the delimited source files of a load into raw,
// untyped rows keyed by canonical column name.
package ingestion

import (
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

const utf8BOM = "\ufeff"

// Options controls how a source is parsed.
type Options struct {
	Delimiter rune // defaults to ','
	MaxRows   int  // 0 means unlimited
}

// Row is one data row keyed by canonical column name. Line is the 1-based
// line number of the record in the file.
type Row struct {
	Line   int
	Values map[string]string
}

// Get returns the trimmed value of a column, "" when absent.
func (r Row) Get(column string) string {
	return strings.TrimSpace(r.Values[column])
}

// Table is a parsed source file.
type Table struct {
	Schema   Schema
	Rows     []Row
	Metadata *Metadata
}

// ReadFile opens path and reads it against schema.
func ReadFile(path string, schema Schema, opts Options) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &SourceReadError{File: schema.File, Path: path, Err: err}
	}
	defer func() { _ = f.Close() }()
	return Read(f, path, schema, opts)
}

// Read parses delimited content. Missing required columns and row-limit
// violations are reported before any row is returned.
func Read(r io.Reader, path string, schema Schema, opts Options) (*Table, error) {
	hasher := sha256.New()
	cr := csv.NewReader(io.TeeReader(r, hasher))
	cr.Comma = opts.Delimiter
	if cr.Comma == 0 {
		cr.Comma = ','
	}
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, &MissingColumnsError{File: schema.File, Path: path, Missing: requiredNames(schema)}
	}
	if err != nil {
		return nil, &SourceReadError{File: schema.File, Path: path, Err: err}
	}

	index, missing := mapHeader(header, schema)
	if len(missing) > 0 {
		return nil, &MissingColumnsError{File: schema.File, Path: path, Missing: missing}
	}

	table := &Table{Schema: schema}
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &SourceReadError{File: schema.File, Path: path, Err: err}
		}
		if blankRecord(record) {
			continue
		}
		if opts.MaxRows > 0 && len(table.Rows) >= opts.MaxRows {
			return nil, &TooManyRowsError{File: schema.File, Path: path, Limit: opts.MaxRows}
		}

		line, _ := cr.FieldPos(0)
		row := Row{Line: line, Values: make(map[string]string, len(index))}
		for name, pos := range index {
			if pos < len(record) {
				row.Values[name] = record[pos]
			}
		}
		table.Rows = append(table.Rows, row)
	}

	// Drain anything the CSV reader buffered but did not consume so the
	// digest covers the whole input.
	if _, err := io.Copy(io.Discard, r); err != nil {
		return nil, &SourceReadError{File: schema.File, Path: path, Err: err}
	}
	table.Metadata = newMetadata(schema.File, path, hex.EncodeToString(hasher.Sum(nil)), len(table.Rows))
	return table, nil
}

// mapHeader resolves canonical column names to record positions. The first
// header cell matching a column wins.
func mapHeader(header []string, schema Schema) (map[string]int, []string) {
	positions := make(map[string]int, len(header))
	for i, cell := range header {
		if i == 0 {
			cell = strings.TrimPrefix(cell, utf8BOM)
		}
		key := strings.ToLower(strings.TrimSpace(cell))
		if _, seen := positions[key]; !seen {
			positions[key] = i
		}
	}

	index := make(map[string]int, len(schema.Columns))
	var missing []string
	for _, col := range schema.Columns {
		found := false
		for _, name := range append([]string{col.Name}, col.Aliases...) {
			if pos, ok := positions[strings.ToLower(name)]; ok {
				index[col.Name] = pos
				found = true
				break
			}
		}
		if !found && col.Required {
			missing = append(missing, col.Name)
		}
	}
	return index, missing
}

func requiredNames(schema Schema) []string {
	var names []string
	for _, col := range schema.Columns {
		if col.Required {
			names = append(names, col.Name)
		}
	}
	return names
}

func blankRecord(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// String renders a short description for logs.
func (t *Table) String() string {
	return fmt.Sprintf("%s (%d rows)", t.Schema.File, len(t.Rows))
}
