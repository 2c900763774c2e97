package rows

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsupportedFormat is returned for input files with an unknown extension.
var ErrUnsupportedFormat = errors.New("unsupported input format")

// maxLineSize bounds a single JSONL record.
const maxLineSize = 16 * 1024 * 1024

// utf8BOM is stripped from the first CSV header cell; spreadsheet exports add it.
const utf8BOM = "\ufeff"

// ReadFile loads every row from a .csv, .json or .jsonl file.
func ReadFile(path string) (Batch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening input %s: %w", path, err)
	}
	defer f.Close()

	var batch Batch
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		batch, err = ReadCSV(f)
	case ".json":
		batch, err = ReadJSON(f)
	case ".jsonl", ".ndjson":
		batch, err = ReadJSONL(f)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("reading input %s: %w", path, err)
	}
	return batch, nil
}

// ReadCSV reads rows from CSV with a header line naming the columns.
func ReadCSV(r io.Reader) (Batch, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return Batch{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], utf8BOM)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var batch Batch
	for line := 2; ; line++ {
		record, readErr := cr.Read()
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return nil, fmt.Errorf("reading CSV line %d: %w", line, readErr)
		}

		rec := make(map[string]any, len(header))
		for i, col := range header {
			rec[col] = record[i]
		}
		batch = append(batch, FromRecord(rec))
	}
	return batch, nil
}

// ReadJSON reads rows from a JSON array of objects.
func ReadJSON(r io.Reader) (Batch, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var records []map[string]any
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("decoding JSON rows: %w", err)
	}

	batch := make(Batch, 0, len(records))
	for _, rec := range records {
		batch = append(batch, FromRecord(rec))
	}
	return batch, nil
}

// ReadJSONL reads rows from newline-delimited JSON objects. Blank lines are skipped.
func ReadJSONL(r io.Reader) (Batch, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var batch Batch
	for line := 1; sc.Scan(); line++ {
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}

		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var rec map[string]any
		if err := dec.Decode(&rec); err != nil {
			return nil, fmt.Errorf("decoding JSONL line %d: %w", line, err)
		}
		batch = append(batch, FromRecord(rec))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scanning JSONL: %w", err)
	}
	return batch, nil
}
