package service

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"insight-backend/internal/analysis"
	"insight-backend/internal/models"
	"insight-backend/internal/state"
)

// Executor runs a query plan against a dataset snapshot. Execution is a
// pure function of (plan, dataset, profile): no hidden state, so the
// same plan over an unchanged dataset always yields the same result.
type Executor struct {
	anomaly    *AnomalyDetector
	risk       *RiskAnalyzer
	comparator *Comparator
	quality    *QualityChecker
}

// NewExecutor wires the executor with its analysis modules.
func NewExecutor() *Executor {
	return &Executor{
		anomaly:    NewAnomalyDetector(),
		risk:       NewRiskAnalyzer(),
		comparator: NewComparator(),
		quality:    NewQualityChecker(),
	}
}

// chartByIntent is the fixed intent→chart lookup. Chart choice is never
// inferred from the shape of the data.
var chartByIntent = map[models.Intent]string{
	models.IntentTotalVolume:     "metric",
	models.IntentTotalValue:      "metric",
	models.IntentAverageValue:    "metric",
	models.IntentTrendAnalysis:   "line",
	models.IntentMonthOverMonth:  "bar",
	models.IntentTopK:            "bar",
	models.IntentBottomK:         "bar",
	models.IntentComparison:      "bar",
	models.IntentDistribution:    "pie",
	models.IntentAnomalyDetect:   "table",
	models.IntentDataQuality:     "table",
	models.IntentConcentration:   "bar",
	models.IntentFraud:           "table",
	models.IntentFailureAnalysis: "table",
	models.IntentPeakAnalysis:    "bar",
}

// Execute dispatches the plan to its aggregation routine and assembles
// the result bundle. Semantic problems (unresolved columns, empty
// groups) degrade to explained empty results, never errors.
func (e *Executor) Execute(plan *models.QueryPlan, ds *state.Dataset, profile *models.DatasetProfile) *models.AnalysisResult {
	start := time.Now()

	filtered := applyFilters(ds, plan.Filters)
	res := &models.AnalysisResult{
		RowsScanned: filtered.NumRows(),
		Plan:        plan,
	}

	switch plan.Intent {
	case models.IntentTotalVolume:
		e.totalVolume(res, filtered)
	case models.IntentTotalValue:
		e.totalValue(res, filtered, plan)
	case models.IntentAverageValue:
		e.averageValue(res, filtered, plan)
	case models.IntentTrendAnalysis:
		e.trend(res, filtered, plan, profile)
	case models.IntentMonthOverMonth:
		e.monthOverMonth(res, filtered, plan, profile)
	case models.IntentTopK, models.IntentBottomK:
		e.rankGroups(res, filtered, plan)
	case models.IntentComparison:
		e.comparison(res, filtered, plan)
	case models.IntentDistribution:
		e.distribution(res, filtered, plan)
	case models.IntentAnomalyDetect:
		e.anomalies(res, filtered, profile, plan, nil)
	case models.IntentFraud:
		e.statusRestricted(res, filtered, profile, plan, []string{"fraud", "fail", "declin", "reject"})
	case models.IntentFailureAnalysis:
		e.statusRestricted(res, filtered, profile, plan, []string{"fail", "declin", "error", "reject"})
	case models.IntentDataQuality:
		e.dataQuality(res, filtered, profile)
	case models.IntentConcentration:
		e.concentration(res, filtered, plan, profile)
	case models.IntentPeakAnalysis:
		e.peak(res, filtered, plan, profile)
	default:
		e.distribution(res, filtered, plan)
	}

	res.Chart.Type = chartByIntent[plan.Intent]
	if res.Chart.Type == "" {
		res.Chart.Type = "table"
	}
	if len(res.Columns) >= 1 {
		res.Chart.X = res.Columns[0]
	}
	if len(res.Columns) >= 2 {
		res.Chart.Y = res.Columns[len(res.Columns)-1]
	}
	res.Chart.Title = plan.Query

	if desc := filterDescription(plan.Filters); desc != "" {
		res.Explanation = desc + " " + res.Explanation
	}
	res.ExecTimeMs = float64(time.Since(start).Microseconds()) / 1000
	return res
}

// ---------------------------------------------------------------------
// Aggregation routines
// ---------------------------------------------------------------------

func (e *Executor) totalVolume(res *models.AnalysisResult, ds *state.Dataset) {
	res.Columns = []string{"Metric", "Value"}
	res.Rows = []map[string]interface{}{{"Metric": "Total Records", "Value": ds.NumRows()}}
	res.Explanation = fmt.Sprintf("Total number of records: %d.", ds.NumRows())
}

func (e *Executor) totalValue(res *models.AnalysisResult, ds *state.Dataset, plan *models.QueryPlan) {
	if e.noTarget(res, plan) {
		return
	}
	vals, excluded := ds.FloatColumn(plan.TargetColumn)
	res.ExcludedCells = excluded
	res.Columns = []string{"Metric", "Value"}
	res.Rows = []map[string]interface{}{{"Metric": "Total " + plan.TargetColumn, "Value": sum(vals)}}
	res.Explanation = fmt.Sprintf("Sum of %s over %d records.", plan.TargetColumn, len(vals))
	noteExcluded(res, excluded)
}

func (e *Executor) averageValue(res *models.AnalysisResult, ds *state.Dataset, plan *models.QueryPlan) {
	if e.noTarget(res, plan) {
		return
	}
	vals, excluded := ds.FloatColumn(plan.TargetColumn)
	res.ExcludedCells = excluded
	res.Columns = []string{"Metric", "Value"}
	res.Rows = []map[string]interface{}{{"Metric": "Average " + plan.TargetColumn, "Value": round2(analysis.Mean(vals))}}
	res.Explanation = fmt.Sprintf("Mean of %s over %d records.", plan.TargetColumn, len(vals))
	noteExcluded(res, excluded)
}

func (e *Executor) trend(res *models.AnalysisResult, ds *state.Dataset, plan *models.QueryPlan, profile *models.DatasetProfile) {
	buckets, excluded, ok := timeBuckets(ds, plan, profile)
	if !ok {
		res.Columns = []string{}
		res.Explanation = "No timestamp column was found, so a time trend cannot be computed."
		return
	}
	res.ExcludedCells = excluded
	res.Columns = []string{"Period", "Value"}
	agg := effectiveAgg(plan)
	for _, b := range buckets {
		res.Rows = append(res.Rows, map[string]interface{}{"Period": b.key, "Value": round2(aggregate(agg, b.vals, b.count))})
	}
	res.Explanation = fmt.Sprintf("%s of %s by %s across %d periods.",
		capitalize(agg), targetLabel(plan), window(plan), len(buckets))
	noteExcluded(res, excluded)
}

func (e *Executor) monthOverMonth(res *models.AnalysisResult, ds *state.Dataset, plan *models.QueryPlan, profile *models.DatasetProfile) {
	buckets, excluded, ok := timeBuckets(ds, plan, profile)
	if !ok {
		res.Columns = []string{}
		res.Explanation = "No timestamp column was found, so month-over-month growth cannot be computed."
		return
	}
	res.ExcludedCells = excluded
	res.Columns = []string{"Month", "Value", "Growth %"}
	agg := effectiveAgg(plan)
	var prev float64
	for i, b := range buckets {
		val := round2(aggregate(agg, b.vals, b.count))
		row := map[string]interface{}{"Month": b.key, "Value": val}
		// First month's growth is undefined, not zero.
		if i == 0 || prev == 0 {
			row["Growth %"] = nil
		} else {
			row["Growth %"] = round2((val - prev) / prev * 100)
		}
		prev = val
		res.Rows = append(res.Rows, row)
	}
	res.Explanation = fmt.Sprintf("Monthly %s of %s with month-over-month growth across %d months.",
		agg, targetLabel(plan), len(buckets))
	noteExcluded(res, excluded)
}

func (e *Executor) rankGroups(res *models.AnalysisResult, ds *state.Dataset, plan *models.QueryPlan) {
	if plan.DimensionColumn == "" {
		res.Columns = []string{}
		res.Explanation = "No grouping column was found for ranking."
		return
	}
	groups, excluded := groupBy(ds, plan.DimensionColumn, plan.TargetColumn)
	res.ExcludedCells = excluded

	agg := effectiveAgg(plan)
	// Stable sort keeps original group-appearance order on ties.
	sort.SliceStable(groups, func(i, j int) bool {
		a := aggregate(agg, groups[i].vals, groups[i].count)
		b := aggregate(agg, groups[j].vals, groups[j].count)
		if plan.Intent == models.IntentBottomK {
			return a < b
		}
		return a > b
	})

	k := plan.K
	if k <= 0 {
		k = 10
	}
	if len(groups) > k {
		groups = groups[:k]
	}

	res.Columns = []string{plan.DimensionColumn, "Value"}
	for _, g := range groups {
		res.Rows = append(res.Rows, map[string]interface{}{plan.DimensionColumn: g.key, "Value": round2(aggregate(agg, g.vals, g.count))})
	}
	direction := "Top"
	if plan.Intent == models.IntentBottomK {
		direction = "Bottom"
	}
	res.Explanation = fmt.Sprintf("%s %d %s by %s of %s.", direction, k, plan.DimensionColumn, agg, targetLabel(plan))
	noteExcluded(res, excluded)
}

func (e *Executor) comparison(res *models.AnalysisResult, ds *state.Dataset, plan *models.QueryPlan) {
	if plan.DimensionColumn == "" || plan.CompareA == "" || plan.CompareB == "" {
		res.Columns = []string{}
		res.Explanation = "Could not resolve two comparison groups from the question."
		return
	}
	report := e.comparator.Compare(ds, plan.DimensionColumn, plan.CompareA, plan.CompareB, plan.TargetColumn)
	res.Columns = []string{"Metric", plan.CompareA, plan.CompareB, "Diff", "Diff %"}
	for _, m := range report.Metrics {
		res.Rows = append(res.Rows, map[string]interface{}{
			"Metric":      m.Metric,
			plan.CompareA: m.A,
			plan.CompareB: m.B,
			"Diff":        m.Diff,
			"Diff %":      m.DiffPct,
		})
	}
	res.Explanation = fmt.Sprintf("Comparison of %s and %s on %s.", plan.CompareA, plan.CompareB, plan.DimensionColumn)
}

func (e *Executor) distribution(res *models.AnalysisResult, ds *state.Dataset, plan *models.QueryPlan) {
	if plan.DimensionColumn == "" {
		res.Columns = []string{}
		res.Explanation = "No grouping column was found for a distribution."
		return
	}
	groups, excluded := groupBy(ds, plan.DimensionColumn, plan.TargetColumn)
	res.ExcludedCells = excluded

	total := 0.0
	useCount := plan.TargetColumn == "" || plan.Aggregation == "count"
	for _, g := range groups {
		if useCount {
			total += float64(g.count)
		} else {
			total += sum(g.vals)
		}
	}

	res.Columns = []string{plan.DimensionColumn, "Count", "Value", "Share %"}
	for _, g := range groups {
		share := 0.0
		if total > 0 {
			if useCount {
				share = float64(g.count) / total * 100
			} else {
				share = sum(g.vals) / total * 100
			}
		}
		res.Rows = append(res.Rows, map[string]interface{}{
			plan.DimensionColumn: g.key,
			"Count":              g.count,
			"Value":              round2(sum(g.vals)),
			"Share %":            round2(share),
		})
	}
	sort.SliceStable(res.Rows, func(i, j int) bool {
		return res.Rows[i]["Share %"].(float64) > res.Rows[j]["Share %"].(float64)
	})
	res.Explanation = fmt.Sprintf("Distribution of %s by %s across %d groups.",
		targetLabel(plan), plan.DimensionColumn, len(groups))
	noteExcluded(res, excluded)
}

func (e *Executor) anomalies(res *models.AnalysisResult, ds *state.Dataset, profile *models.DatasetProfile, plan *models.QueryPlan, note []string) {
	if e.noTarget(res, plan) {
		return
	}
	report := e.anomaly.Detect(ds, profile, plan.TargetColumn, MethodAll)
	res.Columns = []string{"Method", "Applicable", "Count", "Description"}
	for _, f := range report.Findings {
		res.Rows = append(res.Rows, map[string]interface{}{
			"Method":      f.Method,
			"Applicable":  f.Applicable,
			"Count":       f.Count,
			"Description": f.Description,
		})
	}
	res.Explanation = fmt.Sprintf("Anomaly detection on %s: %d methods ran over %d records.",
		plan.TargetColumn, len(report.Findings), ds.NumRows())
	if len(note) > 0 {
		res.Explanation = fmt.Sprintf("Restricted to records whose status matches %s. ", strings.Join(note, "/")) + res.Explanation
	}
}

// statusRestricted applies the implicit status filter for fraud and
// failure analysis, then delegates to the anomaly detector.
func (e *Executor) statusRestricted(res *models.AnalysisResult, ds *state.Dataset, profile *models.DatasetProfile, plan *models.QueryPlan, tokens []string) {
	statusCol := profile.RoleColumn(models.RoleStatus)
	if statusCol == "" {
		res.Columns = []string{}
		res.Explanation = "No status column was found, so this analysis is not available for the dataset."
		return
	}
	idx := ds.ColIndex(statusCol)
	restricted := ds.FilterRows(func(row int) bool {
		s, ok := ds.String(row, idx)
		if !ok {
			return false
		}
		ls := strings.ToLower(s)
		for _, tok := range tokens {
			if strings.Contains(ls, tok) {
				return true
			}
		}
		return false
	})
	res.RowsScanned = restricted.NumRows()
	e.anomalies(res, restricted, profile, plan, tokens)
}

func (e *Executor) dataQuality(res *models.AnalysisResult, ds *state.Dataset, profile *models.DatasetProfile) {
	report := e.quality.Check(ds, profile)
	res.Columns = []string{"Check", "Passed", "Description"}
	for _, c := range report.Checks {
		res.Rows = append(res.Rows, map[string]interface{}{
			"Check":       c.Name,
			"Passed":      c.Passed,
			"Description": c.Description,
		})
	}
	res.Rows = append(res.Rows, map[string]interface{}{
		"Check":       "Quality Score",
		"Passed":      report.Score == 100,
		"Description": fmt.Sprintf("%.1f/100, grade %s", report.Score, report.Grade),
	})
	res.Explanation = fmt.Sprintf("Data quality report: %d rows, %d columns, %d checks.",
		ds.NumRows(), len(ds.Columns), len(report.Checks))
}

func (e *Executor) concentration(res *models.AnalysisResult, ds *state.Dataset, plan *models.QueryPlan, profile *models.DatasetProfile) {
	if plan.DimensionColumn == "" || e.noTarget(res, plan) {
		if plan.DimensionColumn == "" {
			res.Columns = []string{}
			res.Explanation = "No grouping column was found for concentration analysis."
		}
		return
	}
	report := e.risk.Concentration(ds, plan.DimensionColumn, plan.TargetColumn)
	res.Columns = []string{plan.DimensionColumn, "Value", "Share %", "Cumulative %"}
	for _, s := range report.Shares {
		res.Rows = append(res.Rows, map[string]interface{}{
			plan.DimensionColumn: s.Group,
			"Value":              s.Value,
			"Share %":            s.SharePct,
			"Cumulative %":       s.CumulativePct,
		})
	}
	res.Explanation = fmt.Sprintf("Concentration of %s by %s: HHI %.4f (%s), %d groups.",
		plan.TargetColumn, plan.DimensionColumn, report.HHI, report.ConcentrationLevel, report.TotalGroups)
}

func (e *Executor) peak(res *models.AnalysisResult, ds *state.Dataset, plan *models.QueryPlan, profile *models.DatasetProfile) {
	var groups []bucket
	var excluded int
	label := plan.DimensionColumn

	if profile.RoleColumn(models.RoleTimestamp) != "" && plan.TimeWindow != "" {
		tb, ex, ok := timeBuckets(ds, plan, profile)
		if ok {
			groups, excluded, label = tb, ex, "Period"
		}
	}
	if groups == nil {
		if plan.DimensionColumn == "" {
			res.Columns = []string{}
			res.Explanation = "No time or grouping column was found for peak analysis."
			return
		}
		gs, ex := groupBy(ds, plan.DimensionColumn, plan.TargetColumn)
		groups, excluded = gs, ex
	}
	res.ExcludedCells = excluded
	res.Columns = []string{label, "Value"}

	peakIdx, peakVal := -1, 0.0
	agg := effectiveAgg(plan)
	for i, g := range groups {
		v := round2(aggregate(agg, g.vals, g.count))
		res.Rows = append(res.Rows, map[string]interface{}{label: g.key, "Value": v})
		if peakIdx < 0 || v > peakVal {
			peakIdx, peakVal = i, v
		}
	}
	res.Explanation = fmt.Sprintf("Peak analysis of %s by %s.", targetLabel(plan), strings.ToLower(label))
	if peakIdx >= 0 {
		res.Explanation += fmt.Sprintf(" Peak: %s.", groups[peakIdx].key)
	}
	noteExcluded(res, excluded)
}

// ---------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------

// effectiveAgg substitutes count when no numeric target resolved, so
// ranked and bucketed intents stay answerable on text-only datasets.
func effectiveAgg(plan *models.QueryPlan) string {
	if plan.TargetColumn == "" {
		return "count"
	}
	return plan.Aggregation
}

// noTarget reports and explains a missing target column (soft failure).
func (e *Executor) noTarget(res *models.AnalysisResult, plan *models.QueryPlan) bool {
	if plan.TargetColumn != "" {
		return false
	}
	res.Columns = []string{}
	res.Explanation = "No suitable numeric column was found in the dataset for this question."
	return true
}

type bucket struct {
	key   string
	vals  []float64
	count int
}

// groupBy aggregates target values per distinct dimension value,
// preserving first-appearance order.
func groupBy(ds *state.Dataset, dimension, target string) ([]bucket, int) {
	dimIdx := ds.ColIndex(dimension)
	tgtIdx := ds.ColIndex(target)
	index := map[string]int{}
	var groups []bucket
	excluded := 0

	for i := range ds.Rows {
		key, ok := ds.String(i, dimIdx)
		if !ok {
			continue
		}
		gi, seen := index[key]
		if !seen {
			gi = len(groups)
			index[key] = gi
			groups = append(groups, bucket{key: key})
		}
		groups[gi].count++
		if tgtIdx >= 0 {
			if tgtIdx < len(ds.Rows[i]) && ds.Rows[i][tgtIdx] != nil {
				if v, ok := ds.Float(i, tgtIdx); ok {
					groups[gi].vals = append(groups[gi].vals, v)
				} else {
					excluded++
				}
			}
		}
	}
	return groups, excluded
}

// timeBuckets groups rows by truncating the timestamp-role column to the
// plan's time window (month by default) and sorts chronologically.
func timeBuckets(ds *state.Dataset, plan *models.QueryPlan, profile *models.DatasetProfile) ([]bucket, int, bool) {
	tsCol := profile.RoleColumn(models.RoleTimestamp)
	if tsCol == "" {
		return nil, 0, false
	}
	tsIdx := ds.ColIndex(tsCol)
	tgtIdx := ds.ColIndex(plan.TargetColumn)

	layout := "2006-01"
	switch plan.TimeWindow {
	case "day":
		layout = "2006-01-02"
	case "hour":
		layout = "15:00"
	}

	index := map[string]int{}
	var groups []bucket
	excluded := 0
	for i := range ds.Rows {
		t, ok := ds.Time(i, tsIdx)
		if !ok {
			continue
		}
		key := t.Format(layout)
		gi, seen := index[key]
		if !seen {
			gi = len(groups)
			index[key] = gi
			groups = append(groups, bucket{key: key})
		}
		groups[gi].count++
		if tgtIdx >= 0 {
			if tgtIdx < len(ds.Rows[i]) && ds.Rows[i][tgtIdx] != nil {
				if v, ok := ds.Float(i, tgtIdx); ok {
					groups[gi].vals = append(groups[gi].vals, v)
				} else {
					excluded++
				}
			}
		}
	}
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].key < groups[j].key })
	return groups, excluded, true
}

func aggregate(agg string, vals []float64, count int) float64 {
	switch agg {
	case "count":
		return float64(count)
	case "mean":
		return analysis.Mean(vals)
	case "max":
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
	case "min":
		if len(vals) == 0 {
			return 0
		}
		m := vals[0]
		for _, v := range vals[1:] {
			if v < m {
				m = v
			}
		}
		return m
	default:
		return sum(vals)
	}
}

func applyFilters(ds *state.Dataset, filters []models.Filter) *state.Dataset {
	if len(filters) == 0 {
		return ds
	}
	out := ds
	for _, f := range filters {
		idx := out.ColIndex(f.Column)
		if idx < 0 {
			continue
		}
		filter := f
		src := out
		out = out.FilterRows(func(row int) bool {
			return matchFilter(src, row, idx, filter)
		})
	}
	return out
}

func matchFilter(ds *state.Dataset, row, col int, f models.Filter) bool {
	switch f.Op {
	case "==", "!=":
		want := strings.ToLower(fmt.Sprintf("%v", f.Value))
		got, ok := ds.String(row, col)
		if !ok {
			return false
		}
		eq := strings.ToLower(got) == want
		if f.Op == "!=" {
			return !eq
		}
		return eq
	case ">", "<", ">=", "<=":
		want, ok := toFloat(f.Value)
		if !ok {
			return false
		}
		got, ok := ds.Float(row, col)
		if !ok {
			return false
		}
		switch f.Op {
		case ">":
			return got > want
		case "<":
			return got < want
		case ">=":
			return got >= want
		default:
			return got <= want
		}
	}
	return true
}

func toFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	default:
		return 0, false
	}
}

func filterDescription(filters []models.Filter) string {
	if len(filters) == 0 {
		return ""
	}
	parts := make([]string, len(filters))
	for i, f := range filters {
		parts[i] = fmt.Sprintf("%s %s %v", f.Column, f.Op, f.Value)
	}
	return "Filters applied: " + strings.Join(parts, ", ") + "."
}

// noteExcluded appends the malformed-cell count to the explanation so
// excluded values are visible, not silently dropped.
func noteExcluded(res *models.AnalysisResult, excluded int) {
	if excluded > 0 {
		res.Explanation += fmt.Sprintf(" %d malformed numeric cells were excluded.", excluded)
	}
}

func targetLabel(plan *models.QueryPlan) string {
	if plan.TargetColumn == "" || plan.Aggregation == "count" {
		return "record count"
	}
	return plan.TargetColumn
}

func window(plan *models.QueryPlan) string {
	if plan.TimeWindow == "" {
		return "month"
	}
	return plan.TimeWindow
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func sum(vals []float64) float64 {
	s := 0.0
	for _, v := range vals {
		s += v
	}
	return s
}

func round2(v float64) float64 {
	if v < 0 {
		return float64(int64(v*100-0.5)) / 100
	}
	return float64(int64(v*100+0.5)) / 100
}
