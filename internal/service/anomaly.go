package service

import (
	"fmt"
	"math"
	"sort"

	"insight-backend/internal/analysis"
	"insight-backend/internal/models"
	"insight-backend/internal/state"
)

// Method names accepted by Detect.
const (
	MethodAll           = "all"
	MethodIQR           = "iqr"
	MethodZScore        = "zscore"
	MethodPercentile    = "percentile"
	MethodRolling       = "rolling"
	MethodSpike         = "spike"
	MethodConcentration = "concentration"
)

// maxFlaggedRows caps how many flagged rows a finding carries back.
const maxFlaggedRows = 50

// AnomalyOptions are policy constants, not invariants. Callers needing
// different sensitivity override them without touching the algorithms.
type AnomalyOptions struct {
	IQRMultiplier    float64 // bound = Q1/Q3 -/+ mult*IQR
	ZThreshold       float64 // flag |z| above this (population mean/std)
	Percentile       float64 // flag values above this percentile
	RollingWindow    int     // days in the rolling window
	RollingSigma     float64 // flag deviations beyond this many rolling σ
	SpikePct         float64 // flag |month-over-month change| above this %
	ConcentrationPct float64 // flag group shares above this %
}

// DefaultAnomalyOptions returns the documented defaults.
func DefaultAnomalyOptions() AnomalyOptions {
	return AnomalyOptions{
		IQRMultiplier:    1.5,
		ZThreshold:       3.0,
		Percentile:       0.99,
		RollingWindow:    7,
		RollingSigma:     2.0,
		SpikePct:         50.0,
		ConcentrationPct: 30.0,
	}
}

// AnomalyDetector runs independent, stateless detection methods over a
// target column. Methods never share state; their findings are unioned
// per-method, not merged.
type AnomalyDetector struct {
	opts AnomalyOptions
}

// NewAnomalyDetector creates a detector with default thresholds.
func NewAnomalyDetector() *AnomalyDetector {
	return &AnomalyDetector{opts: DefaultAnomalyOptions()}
}

// NewAnomalyDetectorWith creates a detector with custom thresholds.
func NewAnomalyDetectorWith(opts AnomalyOptions) *AnomalyDetector {
	return &AnomalyDetector{opts: opts}
}

// anomalyMethod is one strategy in the fixed ordered method list.
// Adding a method means appending here, never modifying existing ones.
type anomalyMethod struct {
	name string
	run  func(d *AnomalyDetector, ds *state.Dataset, profile *models.DatasetProfile, target string) models.AnomalyFinding
}

var anomalyMethods = []anomalyMethod{
	{MethodIQR, (*AnomalyDetector).iqr},
	{MethodZScore, (*AnomalyDetector).zscore},
	{MethodPercentile, (*AnomalyDetector).percentile},
	{MethodRolling, (*AnomalyDetector).rolling},
	{MethodSpike, (*AnomalyDetector).spike},
	{MethodConcentration, (*AnomalyDetector).concentration},
}

// Detect runs the named method, or every method for MethodAll.
func (d *AnomalyDetector) Detect(ds *state.Dataset, profile *models.DatasetProfile, target, method string) *models.AnomalyReport {
	if target == "" {
		target = profile.RoleColumn(models.RoleAmount)
	}
	report := &models.AnomalyReport{TargetColumn: target, RowsScanned: ds.NumRows()}
	if target == "" {
		return report
	}
	for _, m := range anomalyMethods {
		if method != MethodAll && method != m.name {
			continue
		}
		report.Findings = append(report.Findings, m.run(d, ds, profile, target))
	}
	return report
}

func (d *AnomalyDetector) iqr(ds *state.Dataset, profile *models.DatasetProfile, target string) models.AnomalyFinding {
	vals, _ := ds.FloatColumn(target)
	f := models.AnomalyFinding{Method: MethodIQR, Applicable: len(vals) > 0}
	if !f.Applicable {
		f.Description = "No numeric values to analyze."
		return f
	}
	q1 := analysis.Quantile(vals, 0.25)
	q3 := analysis.Quantile(vals, 0.75)
	iqr := q3 - q1
	lower := q1 - d.opts.IQRMultiplier*iqr
	upper := q3 + d.opts.IQRMultiplier*iqr

	f.Params = map[string]float64{"q1": q1, "q3": q3, "iqr": iqr, "lower": lower, "upper": upper}
	f.Rows = flagRows(ds, target, maxFlaggedRows, &f.Count, func(v float64) (bool, string) {
		if v < lower {
			return true, fmt.Sprintf("Below IQR lower bound (%.0f)", lower)
		}
		if v > upper {
			return true, fmt.Sprintf("Above IQR upper bound (%.0f)", upper)
		}
		return false, ""
	})
	f.Description = fmt.Sprintf("Found %d anomalies using IQR (%.1fx). Bounds: [%.0f, %.0f]",
		f.Count, d.opts.IQRMultiplier, lower, upper)
	return f
}

func (d *AnomalyDetector) zscore(ds *state.Dataset, profile *models.DatasetProfile, target string) models.AnomalyFinding {
	vals, _ := ds.FloatColumn(target)
	f := models.AnomalyFinding{Method: MethodZScore, Applicable: len(vals) > 0}
	if !f.Applicable {
		f.Description = "No numeric values to analyze."
		return f
	}
	mean := analysis.Mean(vals)
	std := analysis.StdPop(vals)
	f.Params = map[string]float64{"mean": mean, "std": std, "threshold": d.opts.ZThreshold}
	if std == 0 {
		f.Description = "Zero variance; no anomalies by z-score."
		return f
	}
	f.Rows = flagRows(ds, target, maxFlaggedRows, &f.Count, func(v float64) (bool, string) {
		z := (v - mean) / std
		if math.Abs(z) > d.opts.ZThreshold {
			return true, fmt.Sprintf("Z-score %.2f (threshold ±%.1f)", z, d.opts.ZThreshold)
		}
		return false, ""
	})
	f.Description = fmt.Sprintf("Found %d anomalies with |z| > %.1f. Mean: %.0f, Std: %.0f",
		f.Count, d.opts.ZThreshold, mean, std)
	return f
}

func (d *AnomalyDetector) percentile(ds *state.Dataset, profile *models.DatasetProfile, target string) models.AnomalyFinding {
	vals, _ := ds.FloatColumn(target)
	f := models.AnomalyFinding{Method: MethodPercentile, Applicable: len(vals) > 0}
	if !f.Applicable {
		f.Description = "No numeric values to analyze."
		return f
	}
	bound := analysis.Quantile(vals, d.opts.Percentile)
	f.Params = map[string]float64{"percentile": d.opts.Percentile * 100, "bound": bound}
	f.Rows = flagRows(ds, target, maxFlaggedRows, &f.Count, func(v float64) (bool, string) {
		if v > bound {
			return true, fmt.Sprintf("Above %.0fth percentile (%.0f)", d.opts.Percentile*100, bound)
		}
		return false, ""
	})
	f.Description = fmt.Sprintf("Found %d values above the %.0fth percentile (%.0f).",
		f.Count, d.opts.Percentile*100, bound)
	return f
}

// rolling flags day-bucketed totals that deviate from the local rolling
// mean. Degrades to "not applicable" without a timestamp column.
func (d *AnomalyDetector) rolling(ds *state.Dataset, profile *models.DatasetProfile, target string) models.AnomalyFinding {
	f := models.AnomalyFinding{Method: MethodRolling}
	tsCol := profile.RoleColumn(models.RoleTimestamp)
	if tsCol == "" {
		f.Description = "Not applicable: no timestamp column."
		return f
	}
	daily := bucketSums(ds, tsCol, target, "2006-01-02")
	if len(daily) == 0 {
		f.Description = "Not applicable: no dated numeric values."
		return f
	}
	f.Applicable = true
	f.Params = map[string]float64{"window": float64(d.opts.RollingWindow), "sigma": d.opts.RollingSigma}

	for i := range daily {
		lo := i - d.opts.RollingWindow + 1
		if lo < 0 {
			lo = 0
		}
		window := make([]float64, 0, i-lo+1)
		for _, p := range daily[lo : i+1] {
			window = append(window, p.value)
		}
		m := analysis.Mean(window)
		s := analysis.StdSample(window)
		if s == 0 {
			continue
		}
		dev := (daily[i].value - m) / s
		if math.Abs(dev) > d.opts.RollingSigma {
			f.Count++
			if len(f.Rows) < maxFlaggedRows {
				f.Rows = append(f.Rows, map[string]interface{}{
					"period": daily[i].key,
					"value":  daily[i].value,
					"reason": fmt.Sprintf("Deviates %.1fσ from rolling mean %.0f", dev, m),
				})
			}
		}
	}
	f.Description = fmt.Sprintf("Found %d daily anomalies using a %d-day rolling window (%.0fσ threshold).",
		f.Count, d.opts.RollingWindow, d.opts.RollingSigma)
	return f
}

// spike flags month-over-month jumps beyond the relative threshold.
func (d *AnomalyDetector) spike(ds *state.Dataset, profile *models.DatasetProfile, target string) models.AnomalyFinding {
	f := models.AnomalyFinding{Method: MethodSpike}
	tsCol := profile.RoleColumn(models.RoleTimestamp)
	if tsCol == "" {
		f.Description = "Not applicable: no timestamp column."
		return f
	}
	monthly := bucketSums(ds, tsCol, target, "2006-01")
	if len(monthly) < 2 {
		f.Description = "Not applicable: fewer than two months of data."
		return f
	}
	f.Applicable = true
	f.Params = map[string]float64{"threshold_pct": d.opts.SpikePct}

	for i := 1; i < len(monthly); i++ {
		prev := monthly[i-1].value
		if prev == 0 {
			continue
		}
		growth := (monthly[i].value - prev) / prev * 100
		if math.Abs(growth) > d.opts.SpikePct {
			f.Count++
			direction := "Surge"
			if growth < 0 {
				direction = "Drop"
			}
			if len(f.Rows) < maxFlaggedRows {
				f.Rows = append(f.Rows, map[string]interface{}{
					"period": monthly[i].key,
					"value":  monthly[i].value,
					"reason": fmt.Sprintf("%s of %.1f%% month-over-month", direction, growth),
				})
			}
		}
	}
	f.Description = fmt.Sprintf("Found %d month-over-month spikes (>%.0f%% change).", f.Count, d.opts.SpikePct)
	return f
}

// concentration flags dimension groups whose share of the total exceeds
// the dominance threshold.
func (d *AnomalyDetector) concentration(ds *state.Dataset, profile *models.DatasetProfile, target string) models.AnomalyFinding {
	f := models.AnomalyFinding{Method: MethodConcentration}
	dim := profile.RoleColumn(models.RoleEntity)
	if dim == "" {
		dim = profile.RoleColumn(models.RoleCategory)
	}
	if dim == "" {
		f.Description = "Not applicable: no entity or category column."
		return f
	}
	groups, _ := groupBy(ds, dim, target)
	total := 0.0
	for _, g := range groups {
		total += sum(g.vals)
	}
	if total == 0 {
		f.Description = "Not applicable: no value to distribute."
		return f
	}
	f.Applicable = true
	f.Params = map[string]float64{"threshold_pct": d.opts.ConcentrationPct}

	for _, g := range groups {
		share := sum(g.vals) / total * 100
		if share > d.opts.ConcentrationPct {
			f.Count++
			if len(f.Rows) < maxFlaggedRows {
				f.Rows = append(f.Rows, map[string]interface{}{
					"group":  g.key,
					"share":  round2(share),
					"reason": fmt.Sprintf("%s holds %.1f%% of total, above the %.0f%% threshold", g.key, share, d.opts.ConcentrationPct),
				})
			}
		}
	}
	f.Description = fmt.Sprintf("Found %d groups above %.0f%% concentration in %s.",
		f.Count, d.opts.ConcentrationPct, dim)
	return f
}

// flagRows walks the target column, applies the predicate to each
// numeric cell, and returns up to limit flagged rows while counting all.
func flagRows(ds *state.Dataset, target string, limit int, count *int, flag func(v float64) (bool, string)) []map[string]interface{} {
	idx := ds.ColIndex(target)
	if idx < 0 {
		return nil
	}
	var rows []map[string]interface{}
	for i := range ds.Rows {
		v, ok := ds.Float(i, idx)
		if !ok {
			continue
		}
		hit, reason := flag(v)
		if !hit {
			continue
		}
		*count++
		if len(rows) < limit {
			row := map[string]interface{}{"row": i, target: v, "reason": reason}
			rows = append(rows, row)
		}
	}
	return rows
}

type seriesPoint struct {
	key   string
	value float64
}

// bucketSums sums the target column per time bucket, sorted by bucket.
func bucketSums(ds *state.Dataset, tsCol, target, layout string) []seriesPoint {
	tsIdx := ds.ColIndex(tsCol)
	tgtIdx := ds.ColIndex(target)
	if tsIdx < 0 || tgtIdx < 0 {
		return nil
	}
	sums := map[string]float64{}
	for i := range ds.Rows {
		t, ok := ds.Time(i, tsIdx)
		if !ok {
			continue
		}
		v, ok := ds.Float(i, tgtIdx)
		if !ok {
			continue
		}
		sums[t.Format(layout)] += v
	}
	out := make([]seriesPoint, 0, len(sums))
	for k, v := range sums {
		out = append(out, seriesPoint{key: k, value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key < out[j].key })
	return out
}
