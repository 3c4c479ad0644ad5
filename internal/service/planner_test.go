package service_test

import (
	"fmt"
	"reflect"
	"strings"
	"testing"

	"insight-backend/internal/models"
	"insight-backend/internal/service"
)

func TestClassifyIntents(t *testing.T) {
	_, prof := loadFixture(t, txnCSV)
	planner := service.NewPlanner()

	cases := []struct {
		question string
		want     models.Intent
	}{
		{"Show top 10 anomalies in transactions", models.IntentAnomalyDetect},
		{"What is the month-over-month growth?", models.IntentMonthOverMonth},
		{"total amount spent", models.IntentTotalValue},
		{"average transaction value", models.IntentAverageValue},
		{"failed transactions last month", models.IntentFailureAnalysis},
		{"Is there any fraud?", models.IntentFraud},
		{"Compare Maharashtra vs Karnataka", models.IntentComparison},
		{"distribution by state", models.IntentDistribution},
		{"spending trend over time", models.IntentTrendAnalysis},
		{"top 3 states by amount", models.IntentTopK},
		{"bottom 5 categories", models.IntentBottomK},
		{"how many transactions", models.IntentTotalVolume},
		{"any duplicate records?", models.IntentDataQuality},
		{"concentration risk by state", models.IntentConcentration},
		{"when is the peak activity", models.IntentPeakAnalysis},
	}
	for _, c := range cases {
		plan := planner.Classify(c.question, prof)
		if plan.Intent != c.want {
			t.Errorf("%q: intent %s, want %s", c.question, plan.Intent, c.want)
		}
	}
}

func TestClassifyDeterministic(t *testing.T) {
	_, prof := loadFixture(t, txnCSV)
	planner := service.NewPlanner()

	for _, q := range []string{"top 5 states", "compare Maharashtra vs Delhi", "monthly trend of amount"} {
		a := planner.Classify(q, prof)
		b := planner.Classify(q, prof)
		if !reflect.DeepEqual(a, b) {
			t.Errorf("%q: identical input must produce identical plans", q)
		}
	}
}

func TestClassifyColumnResolution(t *testing.T) {
	_, prof := loadFixture(t, txnCSV)
	plan := service.NewPlanner().Classify("top 3 states by amount", prof)

	if plan.K != 3 {
		t.Errorf("k = %d, want 3", plan.K)
	}
	if plan.TargetColumn != "amount" {
		t.Errorf("target = %q, want amount", plan.TargetColumn)
	}
	if plan.DimensionColumn != "state" {
		t.Errorf("dimension = %q, want state", plan.DimensionColumn)
	}
}

func TestClassifyRoleLabelResolvesDimension(t *testing.T) {
	_, prof := loadFixture(t, txnCSV)
	// "category" names a role, not the merchant_category column itself.
	plan := service.NewPlanner().Classify("distribution by category", prof)
	if plan.DimensionColumn != "merchant_category" {
		t.Errorf("dimension = %q, want merchant_category", plan.DimensionColumn)
	}

	statusCSV := "outcome_flag,region_name,amount\nOK,North,10\nFAIL,South,20\nOK,North,30\n"
	_, statusProf := loadFixture(t, statusCSV)
	plan = service.NewPlanner().Classify("distribution by status", statusProf)
	if plan.DimensionColumn != "outcome_flag" {
		t.Errorf("dimension = %q, want outcome_flag over the entity default", plan.DimensionColumn)
	}
}

func TestClassifyStatusFilter(t *testing.T) {
	_, prof := loadFixture(t, txnCSV)
	plan := service.NewPlanner().Classify("failed transactions", prof)

	if len(plan.Filters) != 1 {
		t.Fatalf("expected 1 filter, got %d", len(plan.Filters))
	}
	f := plan.Filters[0]
	if f.Column != "status" || f.Op != "==" || f.Value != "FAILED" {
		t.Errorf("filter = %+v, want status == FAILED from profile values", f)
	}
}

func TestClassifyAmountThresholdFilter(t *testing.T) {
	_, prof := loadFixture(t, txnCSV)
	plan := service.NewPlanner().Classify("transactions above 200", prof)

	found := false
	for _, f := range plan.Filters {
		if f.Column == "amount" && f.Op == ">" && f.Value == 200.0 {
			found = true
		}
	}
	if !found {
		t.Errorf("expected amount > 200 filter, got %+v", plan.Filters)
	}
}

func TestClassifyComparisonGroups(t *testing.T) {
	_, prof := loadFixture(t, txnCSV)
	plan := service.NewPlanner().Classify("Compare Maharashtra vs Karnataka", prof)

	if plan.CompareA != "Maharashtra" || plan.CompareB != "Karnataka" {
		t.Errorf("groups = %q/%q, want Maharashtra/Karnataka", plan.CompareA, plan.CompareB)
	}
	if plan.DimensionColumn != "state" {
		t.Errorf("dimension = %q, want state", plan.DimensionColumn)
	}
}

func TestClassifyMatchesValuesBeyondTopTen(t *testing.T) {
	var b strings.Builder
	b.WriteString("state,amount\n")
	for i := 0; i < 10; i++ {
		fmt.Fprintf(&b, "State%02d,%d\n", i, 100+i)
		fmt.Fprintf(&b, "State%02d,%d\n", i, 200+i)
	}
	b.WriteString("Lakshadweep,50\nPuducherry,60\n")
	_, prof := loadFixture(t, b.String())
	planner := service.NewPlanner()

	// A value ranked below the serialized top-10 list must still filter.
	plan := planner.Classify("total spend in Lakshadweep", prof)
	found := false
	for _, f := range plan.Filters {
		if f.Column == "state" && f.Value == "Lakshadweep" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected state == Lakshadweep filter, got %+v", plan.Filters)
	}

	// And comparison groups must resolve instead of degrading to the
	// two most frequent values.
	plan = planner.Classify("compare Lakshadweep vs Puducherry", prof)
	if plan.CompareA != "Lakshadweep" || plan.CompareB != "Puducherry" {
		t.Errorf("groups = %q/%q, want Lakshadweep/Puducherry", plan.CompareA, plan.CompareB)
	}
}

func TestClassifyComparisonFallbackGroups(t *testing.T) {
	_, prof := loadFixture(t, txnCSV)
	// No resolvable group names: degrade to the two most frequent values.
	plan := service.NewPlanner().Classify("compare alpha vs beta", prof)

	if plan.CompareA == "" || plan.CompareB == "" || plan.CompareA == plan.CompareB {
		t.Errorf("fallback groups should be two distinct frequent values, got %q/%q", plan.CompareA, plan.CompareB)
	}
}

func TestClassifyFallbackIntent(t *testing.T) {
	_, prof := loadFixture(t, txnCSV)
	plan := service.NewPlanner().Classify("qwerty asdf", prof)
	if plan.Intent != models.IntentDistribution {
		t.Errorf("fallback with a dimension column should be distribution, got %s", plan.Intent)
	}

	_, noDimProf := loadFixture(t, "amount\n10\n20\n")
	plan = service.NewPlanner().Classify("qwerty asdf", noDimProf)
	if plan.Intent != models.IntentTotalValue {
		t.Errorf("fallback without a dimension column should be total_value, got %s", plan.Intent)
	}
}

func TestClassifyPlanCarriesNoComputedValues(t *testing.T) {
	_, prof := loadFixture(t, txnCSV)
	plan := service.NewPlanner().Classify("total amount by state", prof)

	// A plan holds references and parameters, never aggregates.
	if plan.Query == "" || plan.Aggregation == "" {
		t.Error("plan must carry the query text and an aggregation")
	}
	for _, f := range plan.Filters {
		if f.Column == "" || f.Op == "" {
			t.Errorf("filter must reference a column and operator: %+v", f)
		}
	}
}
