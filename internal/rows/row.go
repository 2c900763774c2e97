// Package rows models the tabular records handed to a worker in a mini-batch.
package rows

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Identity column names.
const (
	ColumnCode    = "code"
	ColumnCompany = "company"
)

// Artifact naming.
const (
	ArtifactPrefix = "model_"
	ArtifactExt    = ".txt"
)

// Row identity errors.
var (
	ErrMissingCode      = errors.New("row has no code")
	ErrMissingCompany   = errors.New("row has no company")
	ErrUnsafeIdentifier = errors.New("row identifier is not a safe file name component")
)

// Row is one record of a batch. Code and Company identify the series; all
// other columns are carried in Fields untouched.
type Row struct {
	Code    string
	Company string
	Fields  map[string]any
}

// ArtifactName returns the scratch file name for the row:
// model_<code>_<company>.txt.
func (r Row) ArtifactName() (string, error) {
	if r.Code == "" {
		return "", ErrMissingCode
	}
	if r.Company == "" {
		return "", ErrMissingCompany
	}
	for _, part := range []string{r.Code, r.Company} {
		if err := checkComponent(part); err != nil {
			return "", err
		}
	}
	return ArtifactPrefix + r.Code + "_" + r.Company + ArtifactExt, nil
}

// String renders the row for status messages and logs.
func (r Row) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "code=%s company=%s", r.Code, r.Company)
	for _, k := range r.FieldNames() {
		fmt.Fprintf(&b, " %s=%v", k, r.Fields[k])
	}
	return b.String()
}

// FieldNames returns the passthrough column names in sorted order.
func (r Row) FieldNames() []string {
	names := make([]string, 0, len(r.Fields))
	for k := range r.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func checkComponent(s string) error {
	if s == "." || s == ".." || strings.ContainsAny(s, `/\`) || strings.ContainsRune(s, 0) {
		return fmt.Errorf("%w: %q", ErrUnsafeIdentifier, s)
	}
	return nil
}

// FromRecord builds a Row from a generic record. Code and company values are
// formatted with %v when they are not strings; a nil value counts as absent.
func FromRecord(rec map[string]any) Row {
	row := Row{Fields: make(map[string]any, len(rec))}
	for k, v := range rec {
		switch k {
		case ColumnCode:
			row.Code = identifier(v)
		case ColumnCompany:
			row.Company = identifier(v)
		default:
			row.Fields[k] = v
		}
	}
	return row
}

func identifier(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

// Batch is one mini-batch of rows.
type Batch []Row

// Shape returns the number of rows and distinct columns in the batch,
// counting the two identity columns.
func (b Batch) Shape() (int, int) {
	if len(b) == 0 {
		return 0, 0
	}
	cols := map[string]struct{}{}
	for _, r := range b {
		for k := range r.Fields {
			cols[k] = struct{}{}
		}
	}
	return len(b), len(cols) + 2
}
