package state

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Tokens treated as missing values during load.
var missingTokens = map[string]bool{
	"": true, "null": true, "NULL": true, "None": true,
	"NaN": true, "nan": true, "NA": true, "N/A": true, "n/a": true,
}

// Date layouts tried in order during datetime inference.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"02/01/2006",
	"01/02/2006",
	"2006/01/02",
	"02-01-2006",
	"Jan 2, 2006",
	"2 Jan 2006",
}

// datetimeCoverage is the minimum share of non-missing values that must
// parse as dates for a text column to be converted to datetime.
const datetimeCoverage = 0.8

// LoadCSV reads a CSV stream into a typed Dataset. A header row is
// required. This is the one place a hard, user-visible error can
// originate: an unreadable or empty table leaves nothing to reason about.
func LoadCSV(r io.Reader, name string) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("empty file: no header row")
	}

	headers := make([]string, len(records[0]))
	for i, h := range records[0] {
		headers[i] = strings.TrimSpace(h)
	}
	raw := records[1:]

	ds := &Dataset{Name: name, Columns: headers}
	ds.Rows = make([][]interface{}, len(raw))
	for i, rec := range raw {
		row := make([]interface{}, len(headers))
		for j := range headers {
			if j < len(rec) && !missingTokens[strings.TrimSpace(rec[j])] {
				row[j] = strings.TrimSpace(rec[j])
			}
		}
		ds.Rows[i] = row
	}

	coerceColumns(ds)
	return ds, nil
}

// FromRecords builds a typed Dataset from generic rows, e.g. a database
// read. Values already typed by the driver are kept; strings go through
// the same column-majority coercion as CSV cells.
func FromRecords(name string, columns []string, rows []map[string]interface{}) (*Dataset, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("no columns")
	}
	ds := &Dataset{Name: name, Columns: columns}
	ds.Rows = make([][]interface{}, len(rows))
	for i, rec := range rows {
		row := make([]interface{}, len(columns))
		for j, col := range columns {
			row[j] = normalizeDriverValue(rec[col])
		}
		ds.Rows[i] = row
	}
	coerceColumns(ds)
	return ds, nil
}

func normalizeDriverValue(v interface{}) interface{} {
	switch t := v.(type) {
	case nil:
		return nil
	case int:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case float32:
		return float64(t)
	case float64, bool, time.Time:
		return t
	case []byte:
		s := strings.TrimSpace(string(t))
		if missingTokens[s] {
			return nil
		}
		return s
	case string:
		s := strings.TrimSpace(t)
		if missingTokens[s] {
			return nil
		}
		return s
	default:
		return fmt.Sprintf("%v", t)
	}
}

// coerceColumns decides each column's value kind by majority over the
// non-missing string cells and converts the cells that conform. Cells
// that fail to convert stay as strings so aggregates can exclude and
// count them instead of silently zeroing.
func coerceColumns(ds *Dataset) {
	for col := range ds.Columns {
		var strCells []int
		numeric, boolean := 0, 0
		dated, layoutHits := 0, map[string]int{}
		nonMissing := 0

		for i := range ds.Rows {
			if col >= len(ds.Rows[i]) || ds.Rows[i][col] == nil {
				continue
			}
			nonMissing++
			s, ok := ds.Rows[i][col].(string)
			if !ok {
				continue
			}
			strCells = append(strCells, i)
			if _, err := parseNumber(s); err == nil {
				numeric++
				continue
			}
			if _, err := strconv.ParseBool(strings.ToLower(s)); err == nil && !isNumericLiteral(s) {
				boolean++
			}
			if layout, ok := parseDateAny(s); ok {
				dated++
				layoutHits[layout]++
			}
		}

		if nonMissing == 0 || len(strCells) == 0 {
			continue
		}
		majority := func(n int) bool {
			return float64(n) > float64(nonMissing)*0.5
		}
		cover := func(n int) bool {
			return float64(n) >= float64(nonMissing)*datetimeCoverage
		}

		switch {
		case majority(numeric):
			for _, i := range strCells {
				if s, ok := ds.Rows[i][col].(string); ok {
					if v, err := parseNumber(s); err == nil {
						ds.Rows[i][col] = v
					}
				}
			}
		case cover(dated):
			for _, i := range strCells {
				if s, ok := ds.Rows[i][col].(string); ok {
					if t, ok := parseDate(s); ok {
						ds.Rows[i][col] = t
					}
				}
			}
		case majority(boolean):
			for _, i := range strCells {
				if s, ok := ds.Rows[i][col].(string); ok {
					if b, err := strconv.ParseBool(strings.ToLower(s)); err == nil {
						ds.Rows[i][col] = b
					}
				}
			}
		}
	}
}

func parseNumber(s string) (float64, error) {
	s = strings.ReplaceAll(s, ",", "")
	return strconv.ParseFloat(s, 64)
}

func isNumericLiteral(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseDateAny(s string) (string, bool) {
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return layout, true
		}
	}
	return "", false
}

func formatInt(v int64) string {
	return strconv.FormatInt(v, 10)
}

func trimFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
