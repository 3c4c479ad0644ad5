package service_test

import (
	"strings"
	"testing"

	"insight-backend/internal/service"
)

func TestCompareGroups(t *testing.T) {
	ds, _ := loadFixture(t, txnCSV)
	report := service.NewComparator().Compare(ds, "state", "Maharashtra", "Karnataka", "amount")

	if report.CountA != 3 || report.CountB != 2 {
		t.Errorf("counts = %d/%d, want 3/2", report.CountA, report.CountB)
	}

	var sumMetric *struct{ a, b, diff, pct float64 }
	for _, m := range report.Metrics {
		if m.Metric == "Sum" {
			sumMetric = &struct{ a, b, diff, pct float64 }{m.A, m.B, m.Diff, m.DiffPct}
			if m.Higher != "Maharashtra" {
				t.Errorf("higher = %q, want Maharashtra", m.Higher)
			}
		}
	}
	if sumMetric == nil {
		t.Fatal("expected a Sum metric")
	}
	if sumMetric.a != 750 || sumMetric.b != 450 || sumMetric.diff != 300 {
		t.Errorf("sum = %v vs %v (diff %v), want 750 vs 450 (diff 300)", sumMetric.a, sumMetric.b, sumMetric.diff)
	}
	if sumMetric.pct != 66.67 {
		t.Errorf("diff pct = %v, want 66.67", sumMetric.pct)
	}
}

func TestCompareCaseInsensitiveMatch(t *testing.T) {
	ds, _ := loadFixture(t, txnCSV)
	report := service.NewComparator().Compare(ds, "state", "maharashtra", "KARNATAKA", "amount")
	if report.CountA != 3 || report.CountB != 2 {
		t.Errorf("matching must be case-insensitive, got counts %d/%d", report.CountA, report.CountB)
	}
}

func TestCompareEmptyGroups(t *testing.T) {
	ds, _ := loadFixture(t, txnCSV)
	report := service.NewComparator().Compare(ds, "state", "Atlantis", "ElDorado", "amount")

	if report.CountA != 0 || report.CountB != 0 {
		t.Errorf("unknown groups should have zero counts, got %d/%d", report.CountA, report.CountB)
	}
	for _, m := range report.Metrics {
		if m.A != 0 || m.B != 0 || m.Diff != 0 || m.DiffPct != 0 {
			t.Errorf("empty groups must yield zero metrics and a 0%% delta: %+v", m)
		}
		if m.Higher != "" {
			t.Errorf("no group is higher when both are empty: %+v", m)
		}
	}
	if !strings.Contains(report.Explanation, "Neither") {
		t.Errorf("explanation should say neither group matched: %q", report.Explanation)
	}
}

func TestCompareZeroDenominator(t *testing.T) {
	ds, _ := loadFixture(t, "state,amount\nA,100\nB,0\n")
	report := service.NewComparator().Compare(ds, "state", "A", "B", "amount")

	for _, m := range report.Metrics {
		if m.Metric == "Sum" && m.DiffPct != 0 {
			t.Errorf("a zero baseline must yield a 0%% delta, got %v", m.DiffPct)
		}
	}
}
