package models

// ChartSpec tells the frontend how to render a result.
// The type is chosen from a fixed intent→chart table, never from data shape.
type ChartSpec struct {
	Type  string `json:"type"` // "line", "bar", "pie", "metric", "table"
	X     string `json:"x,omitempty"`
	Y     string `json:"y,omitempty"`
	Title string `json:"title,omitempty"`
}

// AnalysisResult is the executor's output for a single plan.
// Rows are ordered; each row maps output column name to value.
type AnalysisResult struct {
	Columns       []string                 `json:"columns"`
	Rows          []map[string]interface{} `json:"rows"`
	Chart         ChartSpec                `json:"chart_spec"`
	Explanation   string                   `json:"explanation"`
	RowsScanned   int                      `json:"rows_scanned"`
	ExcludedCells int                      `json:"excluded_cells,omitempty"`
	ExecTimeMs    float64                  `json:"exec_time_ms"`
	Plan          *QueryPlan               `json:"plan,omitempty"`
}
