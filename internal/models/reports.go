package models

// AnomalyFinding is the output of one detection method. Methods never share
// state; findings are unioned per-method, not merged.
type AnomalyFinding struct {
	Method      string                   `json:"method"`
	Applicable  bool                     `json:"applicable"`
	Count       int                      `json:"count"`
	Description string                   `json:"description"`
	Params      map[string]float64       `json:"params,omitempty"`
	Rows        []map[string]interface{} `json:"rows,omitempty"`
}

// AnomalyReport collects the findings of every method that ran.
type AnomalyReport struct {
	TargetColumn string           `json:"target_column"`
	RowsScanned  int              `json:"rows_scanned"`
	Findings     []AnomalyFinding `json:"findings"`
}

// ShareRow is one group's slice of the concentration table.
type ShareRow struct {
	Group         string  `json:"group"`
	Value         float64 `json:"value"`
	SharePct      float64 `json:"share_pct"`
	CumulativePct float64 `json:"cumulative_pct"`
}

// RiskReport bundles concentration, volatility and the composite index.
// HHI is reported on the 0-1 scale; multiply by 10000 for display only.
type RiskReport struct {
	Dimension          string     `json:"dimension,omitempty"`
	HHI                float64    `json:"hhi"`
	ConcentrationLevel string     `json:"concentration_level"`
	Top1               string     `json:"top1,omitempty"`
	Top1SharePct       float64    `json:"top1_share_pct"`
	Top3SharePct       float64    `json:"top3_share_pct"`
	Top5SharePct       float64    `json:"top5_share_pct"`
	GroupsFor80Pct     int        `json:"groups_for_80_pct"`
	TotalGroups        int        `json:"total_groups"`
	Shares             []ShareRow `json:"shares,omitempty"`
	VolatilityCV       float64    `json:"volatility_cv"`
	MonthlyMean        float64    `json:"monthly_mean"`
	MonthlyStd         float64    `json:"monthly_std"`
	VolatilityNote     string     `json:"volatility_note,omitempty"`
	FailureRatePct     *float64   `json:"failure_rate_pct,omitempty"`
	FraudRatePct       *float64   `json:"fraud_rate_pct,omitempty"`
	RiskIndex          float64    `json:"risk_index"`
	RiskLevel          string     `json:"risk_level"`
}

// ComparisonMetric is one row of the comparison table.
type ComparisonMetric struct {
	Metric  string  `json:"metric"`
	A       float64 `json:"a"`
	B       float64 `json:"b"`
	Diff    float64 `json:"diff"`
	DiffPct float64 `json:"diff_pct"`
	Higher  string  `json:"higher,omitempty"`
}

// ComparisonReport compares two groups of a dimension column.
type ComparisonReport struct {
	Dimension   string             `json:"dimension"`
	GroupA      string             `json:"group_a"`
	GroupB      string             `json:"group_b"`
	CountA      int                `json:"count_a"`
	CountB      int                `json:"count_b"`
	Metrics     []ComparisonMetric `json:"metrics"`
	Explanation string             `json:"explanation"`
}

// QualityCheck is the outcome of one data-quality check.
type QualityCheck struct {
	Name        string                   `json:"name"`
	Passed      bool                     `json:"passed"`
	Description string                   `json:"description"`
	Details     []map[string]interface{} `json:"details,omitempty"`
}

// QualityReport is the full battery plus the composite score.
type QualityReport struct {
	Checks        []QualityCheck `json:"checks"`
	MissingCells  int            `json:"missing_cells"`
	TotalCells    int            `json:"total_cells"`
	DuplicateRows int            `json:"duplicate_rows"`
	Score         float64        `json:"score"`
	Grade         string         `json:"grade"`
}
