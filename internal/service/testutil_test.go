package service_test

import (
	"strings"
	"testing"

	"insight-backend/internal/analysis"
	"insight-backend/internal/models"
	"insight-backend/internal/state"
)

// txnCSV is the shared transaction fixture: three states across three
// months with a mixed success/failed status column.
const txnCSV = "transaction_id,date,amount,state,merchant_category,status\n" +
	"T1,2024-01-05,100,Maharashtra,Food,SUCCESS\n" +
	"T2,2024-01-18,200,Karnataka,Shopping,SUCCESS\n" +
	"T3,2024-02-02,150,Maharashtra,Food,FAILED\n" +
	"T4,2024-02-20,300,Delhi,Travel,SUCCESS\n" +
	"T5,2024-03-11,250,Karnataka,Shopping,SUCCESS\n" +
	"T6,2024-03-21,500,Maharashtra,Food,SUCCESS\n"

func loadFixture(t *testing.T, csv string) (*state.Dataset, *models.DatasetProfile) {
	t.Helper()
	ds, err := state.LoadCSV(strings.NewReader(csv), "fixture.csv")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return ds, analysis.NewProfiler().Profile(ds)
}
