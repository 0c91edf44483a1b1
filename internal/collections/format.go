package collections

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
)

// Fetch formats.
const (
	FormatRecords = "records"
	FormatDict    = "dict"
	FormatCSV     = "csv"
	FormatJSON    = "json"
)

// field is one key/value pair of an ordered JSON object.
type field struct {
	key   string
	value interface{}
}

// object is a JSON object that keeps its key order.
type object []field

func (o object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(f.key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(f.value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// records renders one object per row with typed cells.
func records(t *Table) []object {
	dtypes := t.DTypes()
	out := make([]object, len(t.Rows))
	for r, row := range t.Rows {
		o := make(object, len(t.Columns))
		for i, c := range t.Columns {
			o[i] = field{key: c, value: typed(row[i], dtypes[c])}
		}
		out[r] = o
	}
	return out
}

// dict renders column -> row index -> value.
func dict(t *Table) object {
	dtypes := t.DTypes()
	out := make(object, len(t.Columns))
	for i, c := range t.Columns {
		col := make(object, len(t.Rows))
		for r, row := range t.Rows {
			col[r] = field{key: strconv.Itoa(r), value: typed(row[i], dtypes[c])}
		}
		out[i] = field{key: c, value: col}
	}
	return out
}

func toCSV(t *Table) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(t.Columns); err != nil {
		return "", err
	}
	if err := w.WriteAll(t.Rows); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// render converts t into the payload for format.
func render(t *Table, format string) (interface{}, error) {
	switch format {
	case "", FormatRecords:
		return records(t), nil
	case FormatDict:
		return dict(t), nil
	case FormatCSV:
		return toCSV(t)
	case FormatJSON:
		b, err := json.Marshal(records(t))
		if err != nil {
			return nil, err
		}
		return string(b), nil
	default:
		return nil, fmt.Errorf("%w: %q (supported: records, dict, csv, json)", ErrUnsupportedFormat, format)
	}
}
