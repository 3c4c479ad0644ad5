package service

import (
	"fmt"
	"strings"

	"insight-backend/internal/analysis"
	"insight-backend/internal/models"
	"insight-backend/internal/state"
)

// Comparator compares two groups of a dimension column on a fixed
// bundle of metrics. It fails softly: groups without matching rows
// produce zero-valued metrics and a defined 0% delta, never an error.
type Comparator struct{}

// NewComparator creates a new comparator.
func NewComparator() *Comparator {
	return &Comparator{}
}

// Compare subsets the dataset by case-insensitive exact match on the
// dimension column and reports both raw values and percentage deltas
// (A relative to B).
func (c *Comparator) Compare(ds *state.Dataset, dimension, groupA, groupB, target string) *models.ComparisonReport {
	report := &models.ComparisonReport{Dimension: dimension, GroupA: groupA, GroupB: groupB}

	idx := ds.ColIndex(dimension)
	match := func(want string) *state.Dataset {
		lw := strings.ToLower(want)
		return ds.FilterRows(func(row int) bool {
			s, ok := ds.String(row, idx)
			return ok && strings.ToLower(s) == lw
		})
	}
	dsA, dsB := match(groupA), match(groupB)
	report.CountA, report.CountB = dsA.NumRows(), dsB.NumRows()

	valsA, _ := dsA.FloatColumn(target)
	valsB, _ := dsB.FloatColumn(target)

	add := func(name string, a, b float64) {
		m := models.ComparisonMetric{Metric: name, A: round2(a), B: round2(b), Diff: round2(a - b)}
		if b != 0 {
			m.DiffPct = round2((a - b) / b * 100)
		}
		switch {
		case a > b:
			m.Higher = groupA
		case b > a:
			m.Higher = groupB
		}
		report.Metrics = append(report.Metrics, m)
	}

	add("Count", float64(report.CountA), float64(report.CountB))
	add("Sum", sum(valsA), sum(valsB))
	add("Mean", analysis.Mean(valsA), analysis.Mean(valsB))
	add("Median", analysis.Median(valsA), analysis.Median(valsB))
	add("Max", maxOrZero(valsA), maxOrZero(valsB))

	report.Explanation = c.explain(report, sum(valsA), sum(valsB))
	return report
}

func (c *Comparator) explain(report *models.ComparisonReport, sumA, sumB float64) string {
	if report.CountA == 0 && report.CountB == 0 {
		return fmt.Sprintf("Neither %s nor %s has matching rows on %s.",
			report.GroupA, report.GroupB, report.Dimension)
	}
	direction := "higher"
	if sumA < sumB {
		direction = "lower"
	}
	pct := 0.0
	if sumB != 0 {
		pct = round2((sumA - sumB) / sumB * 100)
	}
	return fmt.Sprintf("%s vs %s: %s total by %+.2f%%. Volume: %d vs %d records.",
		report.GroupA, report.GroupB, direction, pct, report.CountA, report.CountB)
}

func maxOrZero(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	m := vals[0]
	for _, v := range vals[1:] {
		if v > m {
			m = v
		}
	}
	return m
}
