package service_test

import (
	"math"
	"testing"

	"insight-backend/internal/service"
)

func TestDetectIQR(t *testing.T) {
	ds, prof := loadFixture(t, "amount\n1\n2\n3\n4\n5\n100\n")
	report := service.NewAnomalyDetector().Detect(ds, prof, "amount", service.MethodIQR)

	if len(report.Findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(report.Findings))
	}
	f := report.Findings[0]
	if !f.Applicable {
		t.Fatal("IQR should be applicable to a numeric column")
	}
	if f.Count != 1 {
		t.Errorf("flagged count = %d, want 1 (only the 100)", f.Count)
	}
	if math.Abs(f.Params["lower"]-(-1.5)) > 1e-9 || math.Abs(f.Params["upper"]-8.5) > 1e-9 {
		t.Errorf("bounds = [%v, %v], want [-1.5, 8.5]", f.Params["lower"], f.Params["upper"])
	}
	if len(f.Rows) != 1 || f.Rows[0]["amount"] != 100.0 {
		t.Errorf("flagged row = %v, want the value 100", f.Rows)
	}
}

func TestDetectZScoreZeroVariance(t *testing.T) {
	ds, prof := loadFixture(t, "amount\n500\n500\n500\n500\n500\n")
	report := service.NewAnomalyDetector().Detect(ds, prof, "amount", service.MethodZScore)

	f := report.Findings[0]
	if !f.Applicable {
		t.Fatal("zscore should be applicable")
	}
	if f.Count != 0 {
		t.Errorf("zero-variance series must flag nothing, got %d", f.Count)
	}
}

func TestDetectPercentileFlagsHighSideOnly(t *testing.T) {
	ds, prof := loadFixture(t, "amount\n1\n2\n3\n4\n5\n100\n")
	report := service.NewAnomalyDetector().Detect(ds, prof, "amount", service.MethodPercentile)

	f := report.Findings[0]
	if f.Count != 1 {
		t.Errorf("flagged count = %d, want 1", f.Count)
	}
	for _, row := range f.Rows {
		if row["amount"].(float64) < f.Params["bound"] {
			t.Errorf("percentile method must only flag values above the bound, got %v", row["amount"])
		}
	}
}

func TestDetectSpike(t *testing.T) {
	ds, prof := loadFixture(t, txnCSV)
	report := service.NewAnomalyDetector().Detect(ds, prof, "amount", service.MethodSpike)

	f := report.Findings[0]
	if !f.Applicable {
		t.Fatal("spike should be applicable with three months of data")
	}
	// Monthly sums 300, 450, 750: only the 66.7% jump exceeds 50%.
	if f.Count != 1 {
		t.Errorf("spike count = %d, want 1", f.Count)
	}
}

func TestDetectRollingNeedsTimestamp(t *testing.T) {
	ds, prof := loadFixture(t, "amount\n10\n20\n30\n")
	report := service.NewAnomalyDetector().Detect(ds, prof, "amount", service.MethodRolling)

	f := report.Findings[0]
	if f.Applicable {
		t.Error("rolling must report not-applicable without a timestamp column")
	}
	if f.Description == "" {
		t.Error("not-applicable finding must explain itself")
	}
}

func TestDetectConcentration(t *testing.T) {
	ds, prof := loadFixture(t, txnCSV)
	report := service.NewAnomalyDetector().Detect(ds, prof, "amount", service.MethodConcentration)

	f := report.Findings[0]
	if !f.Applicable {
		t.Fatal("concentration should be applicable with a state column")
	}
	// Maharashtra holds 50% of 1500, the only share above 30%.
	if f.Count != 1 {
		t.Errorf("dominant groups = %d, want 1", f.Count)
	}
}

func TestDetectAllRunsEveryMethod(t *testing.T) {
	ds, prof := loadFixture(t, txnCSV)
	report := service.NewAnomalyDetector().Detect(ds, prof, "", service.MethodAll)

	if report.TargetColumn != "amount" {
		t.Errorf("empty target should default to the amount column, got %q", report.TargetColumn)
	}
	if len(report.Findings) != 6 {
		t.Errorf("expected 6 findings, got %d", len(report.Findings))
	}
	seen := map[string]bool{}
	for _, f := range report.Findings {
		if seen[f.Method] {
			t.Errorf("method %s ran twice", f.Method)
		}
		seen[f.Method] = true
	}
}

func TestDetectCustomThresholds(t *testing.T) {
	opts := service.DefaultAnomalyOptions()
	opts.IQRMultiplier = 100
	ds, prof := loadFixture(t, "amount\n1\n2\n3\n4\n5\n100\n")

	report := service.NewAnomalyDetectorWith(opts).Detect(ds, prof, "amount", service.MethodIQR)
	if report.Findings[0].Count != 0 {
		t.Errorf("a wide multiplier should flag nothing, got %d", report.Findings[0].Count)
	}
}
