package models

// Column dtypes assigned by the profiler.
const (
	DTypeNumeric     = "numeric"
	DTypeCategorical = "categorical"
	DTypeDatetime    = "datetime"
	DTypeBoolean     = "boolean"
	DTypeID          = "id"
)

// Semantic roles. At most one column per role.
const (
	RoleAmount     = "amount"
	RoleTimestamp  = "timestamp"
	RoleCategory   = "category"
	RoleEntity     = "entity"
	RoleStatus     = "status"
	RoleIdentifier = "identifier"
)

// NumericStats holds summary statistics for a numeric column.
type NumericStats struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Std    float64 `json:"std"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Q25    float64 `json:"q25"`
	Q75    float64 `json:"q75"`
}

// ValueCount is one entry of a categorical column's top-values list.
type ValueCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// ColumnProfile describes a single column of the active dataset.
type ColumnProfile struct {
	Name          string        `json:"name"`
	DType         string        `json:"dtype"`
	Role          string        `json:"role,omitempty"`
	Missing       int           `json:"missing"`
	MissingPct    float64       `json:"missing_pct"`
	Unique        int           `json:"unique"`
	Sample        string        `json:"sample,omitempty"`
	Stats         *NumericStats `json:"stats,omitempty"`
	TopValues     []ValueCount  `json:"top_values,omitempty"`
	// Values lists every distinct value, most frequent first. TopValues
	// is the serialized head of the same ordering.
	Values        []string      `json:"-"`
	MinDate       string        `json:"min_date,omitempty"`
	MaxDate       string        `json:"max_date,omitempty"`
	DateRangeDays int           `json:"date_range_days,omitempty"`
}

// DateRange summarizes the span of the timestamp-role column.
type DateRange struct {
	Start  string `json:"start"`
	End    string `json:"end"`
	Months int    `json:"months"`
}

// DatasetProfile is the immutable schema/stat snapshot computed once per load.
type DatasetProfile struct {
	DatasetID          string                        `json:"dataset_id"`
	Name               string                        `json:"name,omitempty"`
	Rows               int                           `json:"rows"`
	Columns            int                           `json:"columns"`
	ColumnNames        []string                      `json:"column_names"`
	ColumnProfiles     []ColumnProfile               `json:"column_profiles"`
	Roles              map[string]string             `json:"roles"`
	NumericColumns     []string                      `json:"numeric_columns"`
	CategoricalColumns []string                      `json:"categorical_columns"`
	DatetimeColumns    []string                      `json:"datetime_columns"`
	DuplicateRows      int                           `json:"duplicate_rows"`
	Correlation        map[string]map[string]float64 `json:"correlation,omitempty"`
	TotalValue         *float64                      `json:"total_value,omitempty"`
	AvgValue           *float64                      `json:"avg_value,omitempty"`
	DateRange          *DateRange                    `json:"date_range,omitempty"`
}

// Column returns the profile of the named column, or nil.
func (p *DatasetProfile) Column(name string) *ColumnProfile {
	for i := range p.ColumnProfiles {
		if p.ColumnProfiles[i].Name == name {
			return &p.ColumnProfiles[i]
		}
	}
	return nil
}

// RoleColumn returns the column assigned to a role, or "".
func (p *DatasetProfile) RoleColumn(role string) string {
	if p.Roles == nil {
		return ""
	}
	return p.Roles[role]
}
