package analysis

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"insight-backend/internal/models"
	"insight-backend/internal/state"
)

// Profiler derives an immutable DatasetProfile from a loaded dataset.
// Profiling is a pure function of the dataset's contents and never fails
// for well-formed tabular input; empty or all-missing columns degrade to
// zero-valued statistics.
type Profiler struct{}

// NewProfiler creates a new profiler.
func NewProfiler() *Profiler {
	return &Profiler{}
}

// roleSpec scores one semantic role. Keywords match against lowercased
// column names; dtypes lists the compatible dtypes in preference order.
type roleSpec struct {
	role     string
	keywords []string
	dtypes   []string
}

// Role checks run in this order; a column can hold at most one role and
// an assigned column is ineligible for later roles.
var roleSpecs = []roleSpec{
	{models.RoleAmount, []string{"amount", "value", "price", "cost", "revenue", "txn", "amt", "settlement"}, []string{models.DTypeNumeric}},
	{models.RoleTimestamp, []string{"date", "time", "timestamp", "created"}, []string{models.DTypeDatetime}},
	{models.RoleEntity, []string{"state", "city", "region", "province", "location", "country"}, []string{models.DTypeCategorical}},
	{models.RoleCategory, []string{"category", "merchant", "segment", "type", "channel"}, []string{models.DTypeCategorical}},
	{models.RoleStatus, []string{"status", "success", "result", "outcome"}, []string{models.DTypeCategorical, models.DTypeBoolean}},
	{models.RoleIdentifier, []string{"id", "uuid", "ref", "reference"}, []string{models.DTypeID}},
}

// Profile computes the full dataset profile.
func (p *Profiler) Profile(ds *state.Dataset) *models.DatasetProfile {
	prof := &models.DatasetProfile{
		DatasetID:   uuid.NewString(),
		Name:        ds.Name,
		Rows:        ds.NumRows(),
		Columns:     len(ds.Columns),
		ColumnNames: append([]string(nil), ds.Columns...),
		Roles:       map[string]string{},
	}

	for idx, name := range ds.Columns {
		prof.ColumnProfiles = append(prof.ColumnProfiles, p.profileColumn(ds, idx, name))
	}

	for _, cp := range prof.ColumnProfiles {
		switch cp.DType {
		case models.DTypeNumeric:
			prof.NumericColumns = append(prof.NumericColumns, cp.Name)
		case models.DTypeCategorical, models.DTypeID:
			prof.CategoricalColumns = append(prof.CategoricalColumns, cp.Name)
		case models.DTypeDatetime:
			prof.DatetimeColumns = append(prof.DatetimeColumns, cp.Name)
		}
	}

	p.assignRoles(prof)
	prof.DuplicateRows = countDuplicates(ds)
	prof.Correlation = correlationMatrix(ds, prof.NumericColumns)

	if amount := prof.RoleColumn(models.RoleAmount); amount != "" {
		vals, _ := ds.FloatColumn(amount)
		if len(vals) > 0 {
			total, avg := Mean(vals)*float64(len(vals)), Mean(vals)
			prof.TotalValue = &total
			prof.AvgValue = &avg
		}
	}
	if ts := prof.RoleColumn(models.RoleTimestamp); ts != "" {
		prof.DateRange = dateRange(ds, ts)
	}
	return prof
}

func (p *Profiler) profileColumn(ds *state.Dataset, idx int, name string) models.ColumnProfile {
	cp := models.ColumnProfile{Name: name}

	counts := map[string]int{}
	var nums []float64
	var minT, maxT time.Time
	numeric, boolean, datetime, nonMissing := 0, 0, 0, 0

	for i := range ds.Rows {
		if idx >= len(ds.Rows[i]) || ds.Rows[i][idx] == nil {
			cp.Missing++
			continue
		}
		nonMissing++
		switch v := ds.Rows[i][idx].(type) {
		case float64:
			numeric++
			nums = append(nums, v)
		case bool:
			boolean++
		case time.Time:
			datetime++
			if minT.IsZero() || v.Before(minT) {
				minT = v
			}
			if v.After(maxT) {
				maxT = v
			}
		}
		if s, ok := ds.String(i, idx); ok {
			counts[s]++
			if cp.Sample == "" {
				cp.Sample = s
			}
		}
	}
	cp.Unique = len(counts)
	if n := ds.NumRows(); n > 0 {
		cp.MissingPct = round2(float64(cp.Missing) / float64(n) * 100)
	}

	// dtype by majority of non-missing cells
	switch {
	case nonMissing == 0:
		cp.DType = models.DTypeCategorical
	case numeric*2 >= nonMissing:
		cp.DType = models.DTypeNumeric
	case datetime*2 >= nonMissing:
		cp.DType = models.DTypeDatetime
	case boolean*2 >= nonMissing:
		cp.DType = models.DTypeBoolean
	default:
		cp.DType = models.DTypeCategorical
	}
	if cp.DType == models.DTypeCategorical && nonMissing > 0 &&
		float64(cp.Unique) >= float64(nonMissing)*0.95 && ds.NumRows() > 1 {
		cp.DType = models.DTypeID
	}

	switch cp.DType {
	case models.DTypeNumeric:
		if len(nums) > 0 {
			cp.Stats = &models.NumericStats{
				Mean:   round2(Mean(nums)),
				Median: round2(Median(nums)),
				Std:    round2(StdSample(nums)),
				Min:    minOf(nums),
				Max:    maxOf(nums),
				Q25:    round2(Quantile(nums, 0.25)),
				Q75:    round2(Quantile(nums, 0.75)),
			}
		}
	case models.DTypeCategorical:
		full := topValues(counts, len(counts))
		for _, vc := range full {
			cp.Values = append(cp.Values, vc.Value)
		}
		cp.TopValues = full
		if len(cp.TopValues) > 10 {
			cp.TopValues = cp.TopValues[:10]
		}
	case models.DTypeDatetime:
		if !minT.IsZero() {
			cp.MinDate = minT.Format("2006-01-02")
			cp.MaxDate = maxT.Format("2006-01-02")
			cp.DateRangeDays = int(maxT.Sub(minT).Hours() / 24)
		}
	}
	return cp
}

// assignRoles gives each role to at most one column. Candidates are
// scored by keyword hits on the column name plus dtype compatibility;
// ties break on the higher dtype score, then on column position.
func (p *Profiler) assignRoles(prof *models.DatasetProfile) {
	taken := map[string]bool{}
	for _, spec := range roleSpecs {
		bestIdx, bestScore, bestDtype := -1, 0, 0
		for i, cp := range prof.ColumnProfiles {
			if taken[cp.Name] {
				continue
			}
			dtypeScore := dtypeCompat(spec.dtypes, cp.DType)
			if dtypeScore == 0 {
				continue
			}
			nameScore := keywordHits(cp.Name, spec.keywords)
			if nameScore == 0 && spec.role != models.RoleIdentifier {
				continue
			}
			score := nameScore*2 + dtypeScore
			if score > bestScore || (score == bestScore && dtypeScore > bestDtype) {
				bestIdx, bestScore, bestDtype = i, score, dtypeScore
			}
		}
		if bestIdx >= 0 {
			name := prof.ColumnProfiles[bestIdx].Name
			prof.Roles[spec.role] = name
			prof.ColumnProfiles[bestIdx].Role = spec.role
			taken[name] = true
		}
	}
}

func dtypeCompat(preferred []string, dtype string) int {
	for i, d := range preferred {
		if d == dtype {
			return len(preferred) - i
		}
	}
	return 0
}

func keywordHits(name string, keywords []string) int {
	tokens := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return r == '_' || r == '-' || r == ' ' || r == '(' || r == ')'
	})
	hits := 0
	for _, kw := range keywords {
		for _, tok := range tokens {
			// whole-token or prefix only; a bare substring check lets
			// short keywords fire inside unrelated words
			if tok == kw || strings.HasPrefix(tok, kw) {
				hits++
				break
			}
		}
	}
	return hits
}

func countDuplicates(ds *state.Dataset) int {
	seen := map[string]int{}
	dups := 0
	for i := range ds.Rows {
		key := rowKey(ds, i)
		if seen[key] > 0 {
			dups++
		}
		seen[key]++
	}
	return dups
}

func rowKey(ds *state.Dataset, row int) string {
	parts := make([]string, len(ds.Columns))
	for j := range ds.Columns {
		s, ok := ds.String(row, j)
		if !ok {
			s = "\x00"
		}
		parts[j] = s
	}
	return strings.Join(parts, "\x1f")
}

// correlationMatrix pairs numeric columns row-wise, skipping rows where
// either cell is missing or malformed.
func correlationMatrix(ds *state.Dataset, numeric []string) map[string]map[string]float64 {
	if len(numeric) < 2 {
		return nil
	}
	out := map[string]map[string]float64{}
	for _, a := range numeric {
		out[a] = map[string]float64{}
		ai := ds.ColIndex(a)
		for _, b := range numeric {
			if a == b {
				out[a][b] = 1
				continue
			}
			bi := ds.ColIndex(b)
			var xs, ys []float64
			for i := range ds.Rows {
				x, okX := ds.Float(i, ai)
				y, okY := ds.Float(i, bi)
				if okX && okY {
					xs = append(xs, x)
					ys = append(ys, y)
				}
			}
			out[a][b] = round3(Pearson(xs, ys))
		}
	}
	return out
}

func dateRange(ds *state.Dataset, col string) *models.DateRange {
	idx := ds.ColIndex(col)
	var minT, maxT time.Time
	for i := range ds.Rows {
		t, ok := ds.Time(i, idx)
		if !ok {
			continue
		}
		if minT.IsZero() || t.Before(minT) {
			minT = t
		}
		if t.After(maxT) {
			maxT = t
		}
	}
	if minT.IsZero() {
		return nil
	}
	return &models.DateRange{
		Start:  minT.Format("2006-01-02"),
		End:    maxT.Format("2006-01-02"),
		Months: int(maxT.Sub(minT).Hours()/24/30) + 1,
	}
}

func topValues(counts map[string]int, limit int) []models.ValueCount {
	out := make([]models.ValueCount, 0, len(counts))
	for v, c := range counts {
		out = append(out, models.ValueCount{Value: v, Count: c})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Value < out[j].Value
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func minOf(vals []float64) float64 {
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxOf(vals []float64) float64 {
	m := vals[0]
	for _, v := range vals[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func round2(v float64) float64 {
	return roundN(v, 100)
}

func round3(v float64) float64 {
	return roundN(v, 1000)
}

func roundN(v float64, scale float64) float64 {
	if v < 0 {
		return float64(int64(v*scale-0.5)) / scale
	}
	return float64(int64(v*scale+0.5)) / scale
}
