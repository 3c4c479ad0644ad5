package models

// Intent identifies which aggregation routine the executor dispatches to.
type Intent string

const (
	IntentTotalVolume     Intent = "total_volume"
	IntentTotalValue      Intent = "total_value"
	IntentAverageValue    Intent = "average_value"
	IntentTrendAnalysis   Intent = "trend_analysis"
	IntentMonthOverMonth  Intent = "month_over_month"
	IntentTopK            Intent = "top_k"
	IntentBottomK         Intent = "bottom_k"
	IntentComparison      Intent = "comparison"
	IntentDistribution    Intent = "distribution"
	IntentAnomalyDetect   Intent = "anomaly_detection"
	IntentDataQuality     Intent = "data_quality"
	IntentConcentration   Intent = "concentration"
	IntentFraud           Intent = "fraud"
	IntentFailureAnalysis Intent = "failure_analysis"
	IntentPeakAnalysis    Intent = "peak_analysis"
)

// Filter is a single row-level filter condition.
// Op is one of "==", "!=", ">", "<", ">=", "<=".
type Filter struct {
	Column string      `json:"column"`
	Op     string      `json:"op"`
	Value  interface{} `json:"value"`
}

// QueryPlan is the structured, serializable output of the planner.
// It holds references and parameters only, never a computed result.
type QueryPlan struct {
	Intent          Intent   `json:"intent"`
	Query           string   `json:"query"`
	TargetColumn    string   `json:"target_column,omitempty"`
	DimensionColumn string   `json:"dimension_column,omitempty"`
	Aggregation     string   `json:"aggregation"` // "sum", "mean", "count", "max", "min"
	Filters         []Filter `json:"filters,omitempty"`
	K               int      `json:"k,omitempty"`
	TimeWindow      string   `json:"time_window,omitempty"` // "month", "day", "hour"
	CompareA        string   `json:"compare_a,omitempty"`
	CompareB        string   `json:"compare_b,omitempty"`
}
