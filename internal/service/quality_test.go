package service_test

import (
	"testing"

	"insight-backend/internal/service"
)

const cleanCSV = "transaction_id,date,amount,state,status\n" +
	"T1,2024-01-05,100,Maharashtra,SUCCESS\n" +
	"T2,2024-01-18,200,Karnataka,PENDING\n" +
	"T3,2024-02-02,150,Maharashtra,SUCCESS\n" +
	"T4,2024-02-20,300,Delhi,PENDING\n"

func TestQualityCleanDataset(t *testing.T) {
	ds, prof := loadFixture(t, cleanCSV)
	report := service.NewQualityChecker().Check(ds, prof)

	if report.Score != 100.0 {
		t.Errorf("clean dataset score = %v, want 100", report.Score)
	}
	if report.Grade != "A" {
		t.Errorf("grade = %q, want A", report.Grade)
	}
	for _, c := range report.Checks {
		if !c.Passed {
			t.Errorf("check %s should pass on a clean dataset: %s", c.Name, c.Description)
		}
	}
}

func TestQualityMissingAndDuplicates(t *testing.T) {
	ds, prof := loadFixture(t, "amount,city\n100,Pune\n100,Pune\nNA,Mumbai\n")
	report := service.NewQualityChecker().Check(ds, prof)

	if report.MissingCells != 1 {
		t.Errorf("missing cells = %d, want 1", report.MissingCells)
	}
	if report.DuplicateRows != 1 {
		t.Errorf("duplicate rows = %d, want 1", report.DuplicateRows)
	}
	// 16.7% missing caps at -20, 33% duplicates caps at -15.
	if report.Score != 65.0 {
		t.Errorf("score = %v, want 65", report.Score)
	}
	if report.Grade != "C" {
		t.Errorf("grade = %q, want C", report.Grade)
	}
}

func TestQualityNegativeAmounts(t *testing.T) {
	ds, prof := loadFixture(t, "amount\n100\n-50\n200\n300\n")
	report := service.NewQualityChecker().Check(ds, prof)

	var negatives *bool
	for _, c := range report.Checks {
		if c.Name == "negative_values" {
			v := c.Passed
			negatives = &v
		}
	}
	if negatives == nil || *negatives {
		t.Error("negative amounts must fail the negative_values check")
	}
	if report.Score >= 100 {
		t.Errorf("score should be penalized, got %v", report.Score)
	}
}

func TestQualityFailedRowsWithAmount(t *testing.T) {
	csv := "amount,status\n100,SUCCESS\n250,FAILED\n300,SUCCESS\n150,SUCCESS\n"
	ds, prof := loadFixture(t, csv)
	report := service.NewQualityChecker().Check(ds, prof)

	var consistency bool
	for _, c := range report.Checks {
		if c.Name == "consistency" {
			consistency = c.Passed
		}
	}
	if consistency {
		t.Error("failed rows carrying a nonzero amount must fail the consistency check")
	}
}

func TestQualityCaseInconsistency(t *testing.T) {
	csv := "amount,city\n10,Pune\n20,pune\n30,Mumbai\n40,Delhi\n"
	ds, prof := loadFixture(t, csv)
	report := service.NewQualityChecker().Check(ds, prof)

	var consistency bool
	for _, c := range report.Checks {
		if c.Name == "consistency" {
			consistency = c.Passed
		}
	}
	if consistency {
		t.Error("case drift across categorical values must fail the consistency check")
	}
	if report.Score >= 100 {
		t.Errorf("score should be penalized, got %v", report.Score)
	}
}
