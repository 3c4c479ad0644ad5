package service

import (
	"fmt"
	"strings"

	"insight-backend/internal/analysis"
	"insight-backend/internal/models"
	"insight-backend/internal/state"
)

// QualityPenalties weight each failed check in the composite score.
// The score is 100 minus the capped penalties; a perfectly clean
// dataset scores exactly 100.
type QualityPenalties struct {
	MissingPerPct  float64 // per % of missing cells
	MissingMax     float64
	DuplicateMax   float64 // duplicate rows as % of rows, capped
	NegativePer    float64 // per column with implausible negatives
	NegativeMax    float64
	OutlierPer     float64 // per column with extreme outliers
	OutlierMax     float64
	ConsistencyPer float64 // per consistency issue
	ConsistencyMax float64
}

// DefaultQualityPenalties returns the documented defaults.
func DefaultQualityPenalties() QualityPenalties {
	return QualityPenalties{
		MissingPerPct: 5, MissingMax: 20,
		DuplicateMax: 15,
		NegativePer:  3, NegativeMax: 10,
		OutlierPer: 2, OutlierMax: 10,
		ConsistencyPer: 2, ConsistencyMax: 10,
	}
}

// QualityChecker runs the fixed battery of data-quality checks.
type QualityChecker struct {
	penalties QualityPenalties
}

// NewQualityChecker creates a checker with default penalties.
func NewQualityChecker() *QualityChecker {
	return &QualityChecker{penalties: DefaultQualityPenalties()}
}

// Check runs every check and computes the composite score and grade.
func (q *QualityChecker) Check(ds *state.Dataset, profile *models.DatasetProfile) *models.QualityReport {
	report := &models.QualityReport{
		TotalCells: ds.NumRows() * len(ds.Columns),
	}

	missingPct := q.missingValues(report, ds)
	dupPct := q.duplicates(report, ds, profile)
	negatives := q.negativeValues(report, ds, profile)
	outliers := q.extremeOutliers(report, ds, profile)
	issues := q.consistency(report, ds, profile)

	p := q.penalties
	score := 100.0
	score -= minF(missingPct*p.MissingPerPct, p.MissingMax)
	score -= minF(dupPct, p.DuplicateMax)
	score -= minF(float64(negatives)*p.NegativePer, p.NegativeMax)
	score -= minF(float64(outliers)*p.OutlierPer, p.OutlierMax)
	score -= minF(float64(issues)*p.ConsistencyPer, p.ConsistencyMax)
	if score < 0 {
		score = 0
	}
	report.Score = round1(score)

	switch {
	case report.Score >= 90:
		report.Grade = "A"
	case report.Score >= 75:
		report.Grade = "B"
	case report.Score >= 60:
		report.Grade = "C"
	default:
		report.Grade = "D"
	}
	return report
}

func (q *QualityChecker) missingValues(report *models.QualityReport, ds *state.Dataset) float64 {
	check := models.QualityCheck{Name: "missing_values"}
	totalMissing := 0
	for col := range ds.Columns {
		missing := 0
		for i := range ds.Rows {
			if col >= len(ds.Rows[i]) || ds.Rows[i][col] == nil {
				missing++
			}
		}
		if missing > 0 {
			check.Details = append(check.Details, map[string]interface{}{
				"column":      ds.Columns[col],
				"missing":     missing,
				"missing_pct": round2(float64(missing) / float64(ds.NumRows()) * 100),
			})
		}
		totalMissing += missing
	}
	report.MissingCells = totalMissing
	check.Passed = totalMissing == 0
	check.Description = fmt.Sprintf("Found %d missing cells across %d columns.", totalMissing, len(check.Details))
	report.Checks = append(report.Checks, check)

	if report.TotalCells == 0 {
		return 0
	}
	return float64(totalMissing) / float64(report.TotalCells) * 100
}

func (q *QualityChecker) duplicates(report *models.QualityReport, ds *state.Dataset, profile *models.DatasetProfile) float64 {
	check := models.QualityCheck{Name: "duplicate_rows"}
	dups := profile.DuplicateRows
	report.DuplicateRows = dups
	check.Passed = dups == 0
	check.Description = fmt.Sprintf("Found %d exact duplicate rows.", dups)
	report.Checks = append(report.Checks, check)

	if ds.NumRows() == 0 {
		return 0
	}
	return float64(dups) / float64(ds.NumRows()) * 100
}

// negativeValues checks the amount-role column, where negatives are
// implausible. Other numeric columns may legitimately go negative.
func (q *QualityChecker) negativeValues(report *models.QualityReport, ds *state.Dataset, profile *models.DatasetProfile) int {
	check := models.QualityCheck{Name: "negative_values", Passed: true}
	badColumns := 0

	if amount := profile.RoleColumn(models.RoleAmount); amount != "" {
		vals, _ := ds.FloatColumn(amount)
		neg := 0
		for _, v := range vals {
			if v < 0 {
				neg++
			}
		}
		if neg > 0 {
			badColumns++
			check.Passed = false
			check.Details = append(check.Details, map[string]interface{}{
				"column": amount, "negative_count": neg,
			})
		}
	}
	if check.Passed {
		check.Description = "No implausible negative values found."
	} else {
		check.Description = fmt.Sprintf("Found negative values in %d amount columns.", badColumns)
	}
	report.Checks = append(report.Checks, check)
	return badColumns
}

// extremeOutliers reuses the IQR method over every numeric column.
func (q *QualityChecker) extremeOutliers(report *models.QualityReport, ds *state.Dataset, profile *models.DatasetProfile) int {
	check := models.QualityCheck{Name: "extreme_outliers", Passed: true}
	badColumns := 0

	for _, col := range profile.NumericColumns {
		vals, _ := ds.FloatColumn(col)
		if len(vals) < 4 {
			continue
		}
		q1 := analysis.Quantile(vals, 0.25)
		q3 := analysis.Quantile(vals, 0.75)
		iqr := q3 - q1
		lower, upper := q1-3.0*iqr, q3+3.0*iqr
		outliers := 0
		for _, v := range vals {
			if v < lower || v > upper {
				outliers++
			}
		}
		if outliers > 0 {
			badColumns++
			check.Passed = false
			check.Details = append(check.Details, map[string]interface{}{
				"column": col, "outliers": outliers,
				"lower": round2(lower), "upper": round2(upper),
			})
		}
	}
	if check.Passed {
		check.Description = "No extreme outliers detected."
	} else {
		check.Description = fmt.Sprintf("Found extreme outliers (3x IQR) in %d columns.", badColumns)
	}
	report.Checks = append(report.Checks, check)
	return badColumns
}

// consistency covers logical and formatting rules: failed-status rows
// carrying a nonzero settlement amount, whitespace and case drift in
// categorical values, and constant columns.
func (q *QualityChecker) consistency(report *models.QualityReport, ds *state.Dataset, profile *models.DatasetProfile) int {
	check := models.QualityCheck{Name: "consistency", Passed: true}
	issues := 0
	note := func(column, issue, severity string) {
		issues++
		check.Passed = false
		check.Details = append(check.Details, map[string]interface{}{
			"column": column, "issue": issue, "severity": severity,
		})
	}

	statusCol := profile.RoleColumn(models.RoleStatus)
	amountCol := profile.RoleColumn(models.RoleAmount)
	if statusCol != "" && amountCol != "" {
		sIdx, aIdx := ds.ColIndex(statusCol), ds.ColIndex(amountCol)
		bad := 0
		for i := range ds.Rows {
			s, ok := ds.String(i, sIdx)
			if !ok || !strings.Contains(strings.ToLower(s), "fail") {
				continue
			}
			if v, ok := ds.Float(i, aIdx); ok && v != 0 {
				bad++
			}
		}
		if bad > 0 {
			note(statusCol, fmt.Sprintf("%d failed rows carry a nonzero %s", bad, amountCol), "Medium")
		}
	}

	for _, col := range profile.CategoricalColumns {
		idx := ds.ColIndex(col)
		distinct := map[string]bool{}
		lowered := map[string]bool{}
		whitespace := false
		for i := range ds.Rows {
			s, ok := ds.String(i, idx)
			if !ok {
				continue
			}
			distinct[s] = true
			lowered[strings.ToLower(s)] = true
			if s != strings.TrimSpace(s) {
				whitespace = true
			}
		}
		if whitespace {
			note(col, "leading or trailing whitespace", "Low")
		}
		if len(lowered) < len(distinct) {
			note(col, "case inconsistency across values", "Medium")
		}
		if len(distinct) == 1 && ds.NumRows() > 1 {
			note(col, "constant value", "Info")
		}
	}

	if check.Passed {
		check.Description = "No consistency issues found."
	} else {
		check.Description = fmt.Sprintf("Found %d consistency issues.", issues)
	}
	report.Checks = append(report.Checks, check)
	return issues
}
