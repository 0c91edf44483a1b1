package collections

import (
	"fmt"
	"net/mail"
	"strconv"
	"strings"
	"time"
)

// Column types reported in metadata.
const (
	DTypeInteger  = "integer"
	DTypeFloat    = "float"
	DTypeDatetime = "datetime"
	DTypeString   = "string"
	DTypeUnknown  = "unknown"
)

// dtypeSample bounds how many non-empty cells are inspected per column.
const dtypeSample = 100

// Table is an ordered set of named columns over rows of string cells.
type Table struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// Shape is the size of a table.
type Shape struct {
	Rows    int `json:"rows"`
	Columns int `json:"columns"`
}

// NewTable builds a table and checks that every row has one cell per
// column and that column names are unique and non-empty.
func NewTable(columns []string, rows [][]string) (*Table, error) {
	t := &Table{Columns: append([]string(nil), columns...), Rows: rows}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Table) validate() error {
	seen := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		if c == "" {
			return fmt.Errorf("%w: empty column name", ErrInvalidTable)
		}
		if seen[c] {
			return fmt.Errorf("%w: duplicate column %q", ErrInvalidTable, c)
		}
		seen[c] = true
	}
	for i, r := range t.Rows {
		if len(r) != len(t.Columns) {
			return fmt.Errorf("%w: row %d has %d cells, want %d", ErrInvalidTable, i, len(r), len(t.Columns))
		}
	}
	return nil
}

// Shape returns the number of rows and columns.
func (t *Table) Shape() Shape {
	return Shape{Rows: len(t.Rows), Columns: len(t.Columns)}
}

// Index returns the position of column name, or -1.
func (t *Table) Index(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

func (t *Table) column(name string) (int, error) {
	i := t.Index(name)
	if i < 0 {
		return -1, fmt.Errorf("unknown column %q (have %s)", name, strings.Join(t.Columns, ", "))
	}
	return i, nil
}

// Head returns a copy holding at most n rows. A non-positive n keeps all.
func (t *Table) Head(n int) *Table {
	rows := t.Rows
	if n > 0 && n < len(rows) {
		rows = rows[:n]
	}
	return &Table{Columns: append([]string(nil), t.Columns...), Rows: cloneRows(rows)}
}

// Clone returns a deep copy.
func (t *Table) Clone() *Table {
	return t.Head(0)
}

func cloneRows(rows [][]string) [][]string {
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = append([]string(nil), r...)
	}
	return out
}

// DTypes infers a type for every column.
func (t *Table) DTypes() map[string]string {
	out := make(map[string]string, len(t.Columns))
	for i, c := range t.Columns {
		out[c] = t.dtype(i)
	}
	return out
}

func (t *Table) dtype(col int) string {
	isInt, isFloat, isDate := true, true, true
	seen := 0
	for _, r := range t.Rows {
		v := strings.TrimSpace(r[col])
		if v == "" {
			continue
		}
		seen++
		if _, err := strconv.ParseInt(v, 10, 64); err != nil {
			isInt = false
		}
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			isFloat = false
		}
		if _, ok := parseTime(v); !ok {
			isDate = false
		}
		if seen >= dtypeSample || !(isInt || isFloat || isDate) {
			break
		}
	}
	switch {
	case seen == 0:
		return DTypeUnknown
	case isInt:
		return DTypeInteger
	case isFloat:
		return DTypeFloat
	case isDate:
		return DTypeDatetime
	default:
		return DTypeString
	}
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseTime accepts message Date headers as well as ISO forms.
func parseTime(s string) (time.Time, bool) {
	if t, err := mail.ParseDate(s); err == nil {
		return t, true
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// typed converts a cell for JSON output according to its column type.
// Empty cells become null.
func typed(v, dtype string) interface{} {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	switch dtype {
	case DTypeInteger:
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return n
		}
	case DTypeFloat:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return v
}
