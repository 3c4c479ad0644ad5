package service

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"insight-backend/internal/state"
)

// DataSourceConfig holds connection details
type DataSourceConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode"` // "disable", "require"
}

// DataSource defines the interface for external data sources
type DataSource interface {
	Connect(config DataSourceConfig) error
	Close() error
	ListTables() ([]string, error)
	LoadTable(tableName string, limit int) (*state.Dataset, error)
}

// PostgresDataSource implements DataSource for PostgreSQL
type PostgresDataSource struct {
	db *sql.DB
}

func NewPostgresDataSource() *PostgresDataSource {
	return &PostgresDataSource{}
}

func (p *PostgresDataSource) Connect(config DataSourceConfig) error {
	if config.SSLMode == "" {
		config.SSLMode = "disable"
	}
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return err
	}

	if err := db.Ping(); err != nil {
		return err
	}

	p.db = db
	return nil
}

func (p *PostgresDataSource) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

func (p *PostgresDataSource) ListTables() ([]string, error) {
	if p.db == nil {
		return nil, fmt.Errorf("not connected")
	}
	query := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = 'public'
		ORDER BY table_name;
	`
	rows, err := p.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var tableName string
		if err := rows.Scan(&tableName); err != nil {
			return nil, err
		}
		tables = append(tables, tableName)
	}
	return tables, rows.Err()
}

// LoadTable reads up to limit rows of a table into a Dataset. The table
// name must come from ListTables; it is interpolated into the query.
func (p *PostgresDataSource) LoadTable(tableName string, limit int) (*state.Dataset, error) {
	if p.db == nil {
		return nil, fmt.Errorf("not connected")
	}
	if err := p.validateTable(tableName); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100000
	}
	query := fmt.Sprintf(`SELECT * FROM "%s" LIMIT %d`, tableName, limit)

	rows, err := p.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var records []map[string]interface{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}

		rowMap := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			val := values[i]
			if b, ok := val.([]byte); ok {
				rowMap[col] = string(b)
			} else {
				rowMap[col] = val
			}
		}
		records = append(records, rowMap)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return state.FromRecords(tableName, columns, records)
}

func (p *PostgresDataSource) validateTable(tableName string) error {
	tables, err := p.ListTables()
	if err != nil {
		return err
	}
	for _, t := range tables {
		if t == tableName {
			return nil
		}
	}
	return fmt.Errorf("table %q not found", tableName)
}
