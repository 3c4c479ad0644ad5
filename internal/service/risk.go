package service

import (
	"sort"
	"strings"

	"insight-backend/internal/analysis"
	"insight-backend/internal/models"
	"insight-backend/internal/state"
)

// RiskWeights are the fixed weights of the composite risk index.
// Documented, stable across datasets, never re-fit; callers may override
// them as policy, not as algorithm.
type RiskWeights struct {
	ConcentrationMax float64 // cap of hhi·200
	VolatilityMax    float64 // cap of the CV contribution
	FailureMax       float64 // cap of failure-rate·2
	FraudMax         float64 // cap of fraud-rate·100
}

// DefaultRiskWeights returns the documented defaults (sums to 100).
func DefaultRiskWeights() RiskWeights {
	return RiskWeights{ConcentrationMax: 50, VolatilityMax: 30, FailureMax: 10, FraudMax: 10}
}

// RiskAnalyzer computes concentration, volatility and the composite
// risk index from the raw table and its profile.
type RiskAnalyzer struct {
	weights RiskWeights
}

// NewRiskAnalyzer creates an analyzer with default weights.
func NewRiskAnalyzer() *RiskAnalyzer {
	return &RiskAnalyzer{weights: DefaultRiskWeights()}
}

// NewRiskAnalyzerWith creates an analyzer with custom weights.
func NewRiskAnalyzerWith(w RiskWeights) *RiskAnalyzer {
	return &RiskAnalyzer{weights: w}
}

// HHI computes the Herfindahl-Hirschman Index from fractional shares,
// on the 0-1 scale. Display layers may multiply by 10000.
func HHI(shares []float64) float64 {
	h := 0.0
	for _, s := range shares {
		h += s * s
	}
	return h
}

// concentrationLevel bands an HHI value against fixed thresholds.
func concentrationLevel(hhi float64) string {
	switch {
	case hhi > 0.25:
		return "Highly Concentrated"
	case hhi > 0.15:
		return "Moderately Concentrated"
	default:
		return "Competitive"
	}
}

// Concentration computes the share table, HHI and banding for one
// dimension. This is the sub-metric the concentration intent delegates to.
func (r *RiskAnalyzer) Concentration(ds *state.Dataset, dimension, target string) *models.RiskReport {
	report := &models.RiskReport{Dimension: dimension, ConcentrationLevel: concentrationLevel(0)}

	groups, _ := groupBy(ds, dimension, target)
	total := 0.0
	for _, g := range groups {
		total += sum(g.vals)
	}
	if total == 0 || len(groups) == 0 {
		return report
	}

	sort.SliceStable(groups, func(i, j int) bool { return sum(groups[i].vals) > sum(groups[j].vals) })

	shares := make([]float64, len(groups))
	cumulative := 0.0
	for i, g := range groups {
		share := sum(g.vals) / total
		shares[i] = share
		cumulative += share
		report.Shares = append(report.Shares, models.ShareRow{
			Group:         g.key,
			Value:         round2(sum(g.vals)),
			SharePct:      round2(share * 100),
			CumulativePct: round2(cumulative * 100),
		})
	}

	report.HHI = round4(HHI(shares))
	report.ConcentrationLevel = concentrationLevel(report.HHI)
	report.Top1 = groups[0].key
	report.Top1SharePct = round2(shares[0] * 100)
	report.Top3SharePct = round2(sumOf(shares, 3) * 100)
	report.Top5SharePct = round2(sumOf(shares, 5) * 100)
	report.TotalGroups = len(groups)

	cum := 0.0
	for i, s := range shares {
		cum += s
		if cum > 0.80 {
			report.GroupsFor80Pct = i + 1
			break
		}
	}
	return report
}

// Analyze produces the full risk summary: concentration over the
// entity-role dimension, monthly volatility, failure and fraud rates,
// and the composite 0-100 index.
func (r *RiskAnalyzer) Analyze(ds *state.Dataset, profile *models.DatasetProfile) *models.RiskReport {
	target := profile.RoleColumn(models.RoleAmount)
	dimension := profile.RoleColumn(models.RoleEntity)
	if dimension == "" {
		dimension = profile.RoleColumn(models.RoleCategory)
	}

	var report *models.RiskReport
	if dimension != "" && target != "" {
		report = r.Concentration(ds, dimension, target)
	} else {
		report = &models.RiskReport{ConcentrationLevel: concentrationLevel(0)}
	}

	r.volatility(report, ds, profile, target)
	r.failureRate(report, ds, profile)
	r.fraudRate(report, ds)

	score := 0.0
	score += minF(report.HHI*200, r.weights.ConcentrationMax)
	score += minF(report.VolatilityCV, r.weights.VolatilityMax)
	if report.FailureRatePct != nil {
		score += minF(*report.FailureRatePct*2, r.weights.FailureMax)
	}
	if report.FraudRatePct != nil {
		score += minF(*report.FraudRatePct*100, r.weights.FraudMax)
	}
	report.RiskIndex = round1(minF(score, 100))
	switch {
	case report.RiskIndex < 20:
		report.RiskLevel = "Low Risk"
	case report.RiskIndex < 50:
		report.RiskLevel = "Moderate Risk"
	default:
		report.RiskLevel = "High Risk"
	}
	return report
}

// volatility is the coefficient of variation of monthly sums, in %.
func (r *RiskAnalyzer) volatility(report *models.RiskReport, ds *state.Dataset, profile *models.DatasetProfile, target string) {
	tsCol := profile.RoleColumn(models.RoleTimestamp)
	if tsCol == "" || target == "" {
		report.VolatilityNote = "Insufficient data"
		return
	}
	monthly := bucketSums(ds, tsCol, target, "2006-01")
	if len(monthly) < 2 {
		report.VolatilityNote = "Insufficient data"
		return
	}
	vals := make([]float64, len(monthly))
	for i, p := range monthly {
		vals[i] = p.value
	}
	mean := analysis.Mean(vals)
	std := analysis.StdSample(vals)
	report.MonthlyMean = round2(mean)
	report.MonthlyStd = round2(std)
	if mean != 0 {
		report.VolatilityCV = round2(std / mean * 100)
	}
	switch cv := report.VolatilityCV; {
	case cv < 5:
		report.VolatilityNote = "Very stable monthly pattern"
	case cv < 15:
		report.VolatilityNote = "Low volatility"
	case cv < 30:
		report.VolatilityNote = "Moderate volatility"
	default:
		report.VolatilityNote = "High volatility"
	}
}

func (r *RiskAnalyzer) failureRate(report *models.RiskReport, ds *state.Dataset, profile *models.DatasetProfile) {
	statusCol := profile.RoleColumn(models.RoleStatus)
	if statusCol == "" || ds.NumRows() == 0 {
		return
	}
	idx := ds.ColIndex(statusCol)
	failed := 0
	for i := range ds.Rows {
		if s, ok := ds.String(i, idx); ok && strings.Contains(strings.ToLower(s), "fail") {
			failed++
		}
	}
	rate := round3(float64(failed) / float64(ds.NumRows()) * 100)
	report.FailureRatePct = &rate
}

// fraudRate uses a fraud-flag column when the dataset carries one.
func (r *RiskAnalyzer) fraudRate(report *models.RiskReport, ds *state.Dataset) {
	fraudIdx := -1
	for i, c := range ds.Columns {
		if strings.Contains(strings.ToLower(c), "fraud") {
			fraudIdx = i
			break
		}
	}
	if fraudIdx < 0 || ds.NumRows() == 0 {
		return
	}
	flagged := 0
	for i := range ds.Rows {
		if v, ok := ds.Float(i, fraudIdx); ok && v != 0 {
			flagged++
		}
	}
	rate := round4(float64(flagged) / float64(ds.NumRows()) * 100)
	report.FraudRatePct = &rate
}

func sumOf(shares []float64, n int) float64 {
	if n > len(shares) {
		n = len(shares)
	}
	s := 0.0
	for _, v := range shares[:n] {
		s += v
	}
	return s
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func round1(v float64) float64 {
	return float64(int64(v*10+0.5)) / 10
}

func round3(v float64) float64 {
	return float64(int64(v*1000+0.5)) / 1000
}

func round4(v float64) float64 {
	return float64(int64(v*10000+0.5)) / 10000
}
