package state

import (
	"time"
)

// Dataset is an ordered table of typed cells. A cell is one of
// float64, string, time.Time, bool, or nil (missing).
// Datasets are immutable after construction; filter operations
// return a new Dataset sharing the underlying row slices.
type Dataset struct {
	Name    string
	Columns []string
	Rows    [][]interface{}
}

// NumRows returns the row count.
func (d *Dataset) NumRows() int {
	return len(d.Rows)
}

// ColIndex returns the index of a column name, or -1.
func (d *Dataset) ColIndex(name string) int {
	for i, c := range d.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Value returns the cell at (row, column name), nil if out of range.
func (d *Dataset) Value(row int, col string) interface{} {
	idx := d.ColIndex(col)
	if idx < 0 || row < 0 || row >= len(d.Rows) || idx >= len(d.Rows[row]) {
		return nil
	}
	return d.Rows[row][idx]
}

// Float returns the cell as float64. ok is false for missing or
// non-numeric cells; such cells must be excluded, never coerced to zero.
func (d *Dataset) Float(row, col int) (float64, bool) {
	if row >= len(d.Rows) || col >= len(d.Rows[row]) {
		return 0, false
	}
	switch v := d.Rows[row][col].(type) {
	case float64:
		return v, true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// String returns the cell rendered as a string for grouping.
// Missing cells return ("", false).
func (d *Dataset) String(row, col int) (string, bool) {
	if row >= len(d.Rows) || col >= len(d.Rows[row]) {
		return "", false
	}
	switch v := d.Rows[row][col].(type) {
	case nil:
		return "", false
	case string:
		return v, true
	case bool:
		if v {
			return "true", true
		}
		return "false", true
	case time.Time:
		return v.Format("2006-01-02 15:04:05"), true
	case float64:
		return formatFloat(v), true
	default:
		return "", false
	}
}

// Time returns the cell as a time.Time.
func (d *Dataset) Time(row, col int) (time.Time, bool) {
	if row >= len(d.Rows) || col >= len(d.Rows[row]) {
		return time.Time{}, false
	}
	t, ok := d.Rows[row][col].(time.Time)
	return t, ok
}

// FilterRows returns a new Dataset containing the rows for which keep
// returns true. Row slices are shared, not copied.
func (d *Dataset) FilterRows(keep func(row int) bool) *Dataset {
	out := &Dataset{Name: d.Name, Columns: d.Columns}
	for i := range d.Rows {
		if keep(i) {
			out.Rows = append(out.Rows, d.Rows[i])
		}
	}
	return out
}

// FloatColumn extracts the numeric values of a column in row order.
// excluded counts cells that are present but not numeric (malformed).
func (d *Dataset) FloatColumn(col string) (vals []float64, excluded int) {
	idx := d.ColIndex(col)
	if idx < 0 {
		return nil, 0
	}
	for i := range d.Rows {
		if idx >= len(d.Rows[i]) || d.Rows[i][idx] == nil {
			continue
		}
		if v, ok := d.Float(i, idx); ok {
			vals = append(vals, v)
		} else {
			excluded++
		}
	}
	return vals, excluded
}

func formatFloat(v float64) string {
	if v == float64(int64(v)) {
		return formatInt(int64(v))
	}
	return trimFloat(v)
}
