package service

import (
	"regexp"
	"strconv"
	"strings"

	"insight-backend/internal/models"
)

// Planner compiles free-text questions into structured query plans.
// It reads the dataset profile only, never raw data values, and it
// never fails: unmatched text degrades to a best-guess plan so the
// pipeline always produces an answer.
type Planner struct{}

// NewPlanner creates a new planner.
func NewPlanner() *Planner {
	return &Planner{}
}

// intentRule pairs an intent with its trigger patterns. Rules run in
// declaration order and the first rule with any matching pattern wins.
// The order is load-bearing: overlapping vocabulary ("top 10 anomalies")
// must resolve to the earlier rule.
type intentRule struct {
	intent   models.Intent
	patterns []*regexp.Regexp
}

func rule(intent models.Intent, patterns ...string) intentRule {
	compiled := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		compiled[i] = regexp.MustCompile(p)
	}
	return intentRule{intent: intent, patterns: compiled}
}

var intentRules = []intentRule{
	rule(models.IntentMonthOverMonth,
		`\bmonth[\s\-]over[\s\-]month\b`, `\bmom\b`, `\bmonthly\s+growth\b`, `\bgrowth\s+rate\b`),
	rule(models.IntentAnomalyDetect,
		`\banomal`, `\boutlier`, `\bunusual\b`, `\bspike\b`, `\bsudden\b`, `\babnormal\b`, `\birregular\b`),
	rule(models.IntentFraud,
		`\bfraud`, `\bsuspicious\b`),
	rule(models.IntentFailureAnalysis,
		`\bfail`, `\bdeclin`, `\bsuccess\s+rate\b`, `\bstatus\b`),
	rule(models.IntentDataQuality,
		`\bmissing\b`, `\bnull\b`, `\bduplicate`, `\bquality\b`, `\binconsisten`, `\bdata\s+issue`),
	rule(models.IntentConcentration,
		`\bconcentrat`, `\bdominan`, `\bmarket\s+share\b`, `\bherfindahl\b`, `\bhhi\b`, `\brisk\b`),
	rule(models.IntentComparison,
		`\bcompare\b`, `\bvs\.?\b`, `\bversus\b`, `\bdifference\b.*\bbetween\b`, `\bcomparison\b`),
	rule(models.IntentDistribution,
		`\bdistribution\b`, `\bbreakdown\b`, `\bspread\b`, `\bshare\b`, `\bproportion\b`, `\bcomposition\b`, `\bpercentage\b.*\bby\b`),
	rule(models.IntentTrendAnalysis,
		`\btrend\b`, `\bover\s+time\b`, `\btime\s+series\b`, `\bmonthly\b`, `\bgrowth\b`, `\bshow\b.*\bmonth\b`),
	rule(models.IntentPeakAnalysis,
		`\bpeak\b`, `\bbusiest\b`, `\bhighest\s+activity\b`, `\bwhen\b.*\bmost\b`),
	rule(models.IntentTopK,
		`\btop\b\s*\d*`, `\bhighest\b`, `\blargest\b`, `\bbiggest\b`, `\bleading\b`, `\bbest\b`, `\bmaximum\b`, `\bmost\b`),
	rule(models.IntentBottomK,
		`\bbottom\b\s*\d*`, `\blowest\b`, `\bsmallest\b`, `\bleast\b`, `\bworst\b`, `\bminimum\b`, `\bfewest\b`),
	rule(models.IntentAverageValue,
		`\b(average|avg|mean)\b`),
	rule(models.IntentTotalVolume,
		`\bhow\s+many\b`, `\b(total|overall)\b.*\b(transactions?|count|volume|number)\b`, `\bcount\b`, `\bvolume\b`),
	rule(models.IntentTotalValue,
		`\b(total|overall|sum|aggregate)\b`),
}

// Aggregation keyword lookup, checked in order.
var aggKeywords = []struct {
	agg      string
	keywords []string
}{
	{"sum", []string{"sum", "total", "aggregate", "combined", "overall"}},
	{"mean", []string{"average", "avg", "mean"}},
	{"count", []string{"count", "number of", "how many", "volume"}},
	{"max", []string{"max", "maximum", "highest", "largest", "biggest", "peak"}},
	{"min", []string{"min", "minimum", "lowest", "smallest"}},
}

var (
	topKPattern    = regexp.MustCompile(`\btop\s*(\d+)`)
	bottomKPattern = regexp.MustCompile(`\bbottom\s*(\d+)`)
	rankKPattern   = regexp.MustCompile(`(\d+)\s*(largest|biggest|highest|lowest|smallest)`)
	abovePattern   = regexp.MustCompile(`(?:above|over|greater than|more than|>)\s*(?:rs\.?|inr)?\s*([\d,]+)`)
	belowPattern   = regexp.MustCompile(`(?:below|under|less than|<)\s*(?:rs\.?|inr)?\s*([\d,]+)`)
	punctPattern   = regexp.MustCompile(`[?!.,;:"']`)

	comparePatterns = []*regexp.Regexp{
		regexp.MustCompile(`compare\s+(.+?)\s+(?:vs\.?|versus|and|with)\s+(.+?)(?:\s+by\b|$)`),
		regexp.MustCompile(`(?:difference|comparison)\s+between\s+(.+?)\s+and\s+(.+?)(?:\s+by\b|$)`),
		regexp.MustCompile(`(\S+)\s+vs\.?\s+(\S+)`),
	}
)

// Classify produces a query plan for the given text and profile.
// Identical text and profile always yield an identical plan.
func (p *Planner) Classify(text string, profile *models.DatasetProfile) *models.QueryPlan {
	query := normalize(text)

	plan := &models.QueryPlan{
		Intent:      p.classifyIntent(query, profile),
		Query:       text,
		Aggregation: extractAggregation(query),
		K:           extractK(query),
	}

	plan.TargetColumn = resolveTarget(query, profile)
	plan.DimensionColumn = resolveDimension(query, profile)
	plan.TimeWindow = extractTimeWindow(query, plan.Intent)
	plan.Filters = extractFilters(query, profile)

	if plan.Intent == models.IntentComparison {
		a, b := extractComparisonGroups(query, profile, plan.DimensionColumn)
		plan.CompareA, plan.CompareB = a, b
	}
	return plan
}

func (p *Planner) classifyIntent(query string, profile *models.DatasetProfile) models.Intent {
	for _, r := range intentRules {
		for _, pat := range r.patterns {
			if pat.MatchString(query) {
				return r.intent
			}
		}
	}
	// Best-guess fallback: a chartable breakdown when a dimension exists,
	// otherwise the headline total.
	if profile.RoleColumn(models.RoleEntity) != "" || profile.RoleColumn(models.RoleCategory) != "" {
		return models.IntentDistribution
	}
	return models.IntentTotalValue
}

func normalize(text string) string {
	return strings.TrimSpace(punctPattern.ReplaceAllString(strings.ToLower(text), " "))
}

func extractAggregation(query string) string {
	for _, entry := range aggKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(query, kw) {
				return entry.agg
			}
		}
	}
	return "sum"
}

func extractK(query string) int {
	for _, pat := range []*regexp.Regexp{topKPattern, bottomKPattern, rankKPattern} {
		if m := pat.FindStringSubmatch(query); m != nil {
			if k, err := strconv.Atoi(m[1]); err == nil && k > 0 {
				return k
			}
		}
	}
	return 10
}

// resolveTarget picks the metric column: an explicitly named numeric
// column wins, then the amount-role column (which also serves an
// "amount" role-label mention), then the first numeric column. Empty
// means no suitable column exists and the executor must degrade softly.
func resolveTarget(query string, profile *models.DatasetProfile) string {
	for _, name := range profile.NumericColumns {
		if columnMentioned(query, name) {
			return name
		}
	}
	if amount := profile.RoleColumn(models.RoleAmount); amount != "" {
		return amount
	}
	if len(profile.NumericColumns) > 0 {
		return profile.NumericColumns[0]
	}
	return ""
}

// resolveDimension picks the grouping column: an explicitly named
// categorical column, then a mentioned role label, then entity role,
// then category role, then the first categorical column.
func resolveDimension(query string, profile *models.DatasetProfile) string {
	for _, name := range profile.CategoricalColumns {
		if columnMentioned(query, name) {
			return name
		}
	}
	for _, role := range []string{models.RoleCategory, models.RoleEntity, models.RoleStatus} {
		if col := profile.RoleColumn(role); col != "" && strings.Contains(query, role) {
			return col
		}
	}
	if entity := profile.RoleColumn(models.RoleEntity); entity != "" {
		return entity
	}
	if cat := profile.RoleColumn(models.RoleCategory); cat != "" {
		return cat
	}
	if len(profile.CategoricalColumns) > 0 {
		return profile.CategoricalColumns[0]
	}
	return ""
}

// columnMentioned checks case-insensitive substring containment between
// the query and a column name, with separators treated as spaces.
func columnMentioned(query, column string) bool {
	col := strings.ToLower(column)
	if strings.Contains(query, col) {
		return true
	}
	spaced := strings.NewReplacer("_", " ", "-", " ").Replace(col)
	return spaced != col && strings.Contains(query, spaced)
}

func extractTimeWindow(query string, intent models.Intent) string {
	switch {
	case strings.Contains(query, "hour"):
		return "hour"
	case strings.Contains(query, "daily") || strings.Contains(query, "per day") || strings.Contains(query, "by day"):
		return "day"
	case strings.Contains(query, "month"):
		return "month"
	}
	switch intent {
	case models.IntentTrendAnalysis, models.IntentMonthOverMonth, models.IntentPeakAnalysis:
		return "month"
	}
	return ""
}

// extractFilters derives row filters from the text using only the
// profile: status keywords, amount thresholds, and categorical values
// the profile has seen for the role columns.
func extractFilters(query string, profile *models.DatasetProfile) []models.Filter {
	var filters []models.Filter

	statusCol := profile.RoleColumn(models.RoleStatus)
	if statusCol != "" {
		hasSuccess := strings.Contains(query, "success")
		hasFail := strings.Contains(query, "fail")
		if hasSuccess && !hasFail {
			if v := statusValue(profile, statusCol, "success"); v != "" {
				filters = append(filters, models.Filter{Column: statusCol, Op: "==", Value: v})
			}
		} else if hasFail && !hasSuccess {
			if v := statusValue(profile, statusCol, "fail"); v != "" {
				filters = append(filters, models.Filter{Column: statusCol, Op: "==", Value: v})
			}
		}
	}

	amountCol := profile.RoleColumn(models.RoleAmount)
	if amountCol != "" {
		if m := abovePattern.FindStringSubmatch(query); m != nil {
			if v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64); err == nil {
				filters = append(filters, models.Filter{Column: amountCol, Op: ">", Value: v})
			}
		}
		if m := belowPattern.FindStringSubmatch(query); m != nil {
			if v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64); err == nil {
				filters = append(filters, models.Filter{Column: amountCol, Op: "<", Value: v})
			}
		}
	}

	for _, role := range []string{models.RoleEntity, models.RoleCategory} {
		col := profile.RoleColumn(role)
		if col == "" {
			continue
		}
		if v := mentionedValue(query, profile, col); v != "" {
			filters = append(filters, models.Filter{Column: col, Op: "==", Value: v})
		}
	}
	return filters
}

// statusValue finds the distinct status value containing the token,
// using the profile's observed values rather than a hardcoded literal.
func statusValue(profile *models.DatasetProfile, col, token string) string {
	cp := profile.Column(col)
	if cp == nil {
		return ""
	}
	for _, v := range distinctValues(cp) {
		if strings.Contains(strings.ToLower(v), token) {
			return v
		}
	}
	return ""
}

// mentionedValue returns the first distinct value of col that appears in
// the query as a substring. Containment, not edit distance.
func mentionedValue(query string, profile *models.DatasetProfile, col string) string {
	cp := profile.Column(col)
	if cp == nil {
		return ""
	}
	for _, v := range distinctValues(cp) {
		lv := strings.ToLower(v)
		if len(lv) >= 3 && strings.Contains(query, lv) {
			return v
		}
	}
	return ""
}

// distinctValues returns every observed value of the column, most
// frequent first. Matching must see the whole set, not the truncated
// display list.
func distinctValues(cp *models.ColumnProfile) []string {
	if len(cp.Values) > 0 {
		return cp.Values
	}
	out := make([]string, len(cp.TopValues))
	for i, vc := range cp.TopValues {
		out[i] = vc.Value
	}
	return out
}

// extractComparisonGroups pulls the two compared values out of the text
// and validates them against the dimension's observed values. Fewer than
// two resolvable groups degrade to the two most frequent values.
func extractComparisonGroups(query string, profile *models.DatasetProfile, dimension string) (string, string) {
	cp := profile.Column(dimension)

	var rawA, rawB string
	for _, pat := range comparePatterns {
		if m := pat.FindStringSubmatch(query); m != nil {
			rawA, rawB = strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
			break
		}
	}

	resolve := func(raw string) string {
		if raw == "" || cp == nil {
			return ""
		}
		for _, v := range distinctValues(cp) {
			lv := strings.ToLower(v)
			if strings.Contains(raw, lv) || strings.Contains(lv, raw) {
				return v
			}
		}
		return ""
	}

	a, b := resolve(rawA), resolve(rawB)
	if a != "" && b != "" && a != b {
		return a, b
	}
	// Fallback: two most frequent dimension values.
	if cp != nil {
		if vals := distinctValues(cp); len(vals) >= 2 {
			return vals[0], vals[1]
		}
	}
	return a, b
}
