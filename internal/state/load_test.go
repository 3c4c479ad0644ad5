package state_test

import (
	"strings"
	"testing"
	"time"

	"insight-backend/internal/state"
)

func TestLoadCSVTyping(t *testing.T) {
	csv := "date,state,amount,flag\n" +
		"2024-01-05,Maharashtra,\"1,200\",true\n" +
		"2024-01-06,Karnataka,350.5,false\n" +
		"2024-01-07,Delhi,NA,true\n"
	ds, err := state.LoadCSV(strings.NewReader(csv), "txns.csv")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if ds.NumRows() != 3 {
		t.Fatalf("expected 3 rows, got %d", ds.NumRows())
	}

	if _, ok := ds.Value(0, "date").(time.Time); !ok {
		t.Errorf("expected date cell to be time.Time, got %T", ds.Value(0, "date"))
	}
	if v, ok := ds.Value(0, "amount").(float64); !ok || v != 1200 {
		t.Errorf("expected amount 1200 with comma stripped, got %v", ds.Value(0, "amount"))
	}
	if v := ds.Value(2, "amount"); v != nil {
		t.Errorf("expected NA cell to be missing, got %v", v)
	}
	if _, ok := ds.Value(1, "flag").(bool); !ok {
		t.Errorf("expected flag cell to be bool, got %T", ds.Value(1, "flag"))
	}
	if v, ok := ds.Value(1, "state").(string); !ok || v != "Karnataka" {
		t.Errorf("expected state to stay string, got %v", ds.Value(1, "state"))
	}
}

func TestLoadCSVMalformedNumericExcluded(t *testing.T) {
	csv := "amount\n10\n20\n30\n40\nabc\n"
	ds, err := state.LoadCSV(strings.NewReader(csv), "m.csv")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	vals, excluded := ds.FloatColumn("amount")
	if len(vals) != 4 {
		t.Errorf("expected 4 numeric values, got %d", len(vals))
	}
	if excluded != 1 {
		t.Errorf("expected 1 excluded cell, got %d", excluded)
	}
	for _, v := range vals {
		if v == 0 {
			t.Errorf("malformed cell must not be coerced to zero")
		}
	}
}

func TestLoadCSVEmptyInput(t *testing.T) {
	if _, err := state.LoadCSV(strings.NewReader(""), "empty.csv"); err == nil {
		t.Fatal("expected error for empty file")
	}
}

func TestLoadCSVHeaderOnly(t *testing.T) {
	ds, err := state.LoadCSV(strings.NewReader("a,b\n"), "h.csv")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if ds.NumRows() != 0 {
		t.Fatalf("expected 0 rows, got %d", ds.NumRows())
	}
	if len(ds.Columns) != 2 {
		t.Fatalf("expected 2 columns, got %d", len(ds.Columns))
	}
}

func TestLoadCSVDatetimeCoverage(t *testing.T) {
	var b strings.Builder
	b.WriteString("created\n")
	for i := 1; i <= 9; i++ {
		b.WriteString("2024-03-0")
		b.WriteByte(byte('0' + i))
		b.WriteString("\n")
	}
	b.WriteString("not-a-date\n")
	ds, err := state.LoadCSV(strings.NewReader(b.String()), "d.csv")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	parsed := 0
	for i := 0; i < ds.NumRows(); i++ {
		if _, ok := ds.Time(i, 0); ok {
			parsed++
		}
	}
	if parsed != 9 {
		t.Errorf("expected 9 parsed dates, got %d", parsed)
	}
	if _, ok := ds.Value(9, "created").(string); !ok {
		t.Errorf("unparseable cell should remain a string, got %T", ds.Value(9, "created"))
	}
}

func TestFromRecords(t *testing.T) {
	rows := []map[string]interface{}{
		{"amount": int64(100), "city": []byte("Pune")},
		{"amount": 250.5, "city": "Mumbai"},
		{"amount": nil, "city": "null"},
	}
	ds, err := state.FromRecords("orders", []string{"amount", "city"}, rows)
	if err != nil {
		t.Fatalf("from records: %v", err)
	}
	if v, ok := ds.Value(0, "amount").(float64); !ok || v != 100 {
		t.Errorf("expected int64 normalized to float64 100, got %v", ds.Value(0, "amount"))
	}
	if v, ok := ds.Value(0, "city").(string); !ok || v != "Pune" {
		t.Errorf("expected []byte normalized to string, got %v", ds.Value(0, "city"))
	}
	if ds.Value(2, "city") != nil {
		t.Errorf("expected null token treated as missing")
	}
}

func TestFilterRowsSharesRows(t *testing.T) {
	csv := "amount\n10\n20\n30\n"
	ds, err := state.LoadCSV(strings.NewReader(csv), "f.csv")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	out := ds.FilterRows(func(row int) bool {
		v, _ := ds.Float(row, 0)
		return v > 15
	})
	if out.NumRows() != 2 {
		t.Fatalf("expected 2 rows after filter, got %d", out.NumRows())
	}
	if ds.NumRows() != 3 {
		t.Errorf("filter must not mutate the source dataset")
	}
}
