package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"insight-backend/internal/analysis"
	"insight-backend/internal/config"
	"insight-backend/internal/service"
	"insight-backend/internal/state"
)

type Handler struct {
	Config   *config.Config
	Store    *state.Store
	Profiler *analysis.Profiler
	Planner  *service.Planner
	Executor *service.Executor
	Anomaly  *service.AnomalyDetector
	Risk     *service.RiskAnalyzer
	Compare  *service.Comparator
	Quality  *service.QualityChecker

	dbMu      sync.Mutex
	CurrentDB service.DataSource // Active DB connection
}

func NewHandler(cfg *config.Config, store *state.Store) *Handler {
	return &Handler{
		Config:   cfg,
		Store:    store,
		Profiler: analysis.NewProfiler(),
		Planner:  service.NewPlanner(),
		Executor: service.NewExecutor(),
		Anomaly:  service.NewAnomalyDetector(),
		Risk:     service.NewRiskAnalyzer(),
		Compare:  service.NewComparator(),
		Quality:  service.NewQualityChecker(),
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.HealthCheck)

	r.Post("/upload", h.Upload)
	r.Post("/query", h.Query)
	r.Get("/profile", h.GetProfile)
	r.Get("/preview", h.GetPreview)
	r.Post("/reset", h.Reset)

	r.Post("/analyze/{kind}", h.Analyze)

	// DB Routes
	r.Post("/db/connect", h.ConnectDB)
	r.Get("/db/tables", h.ListTables)
	r.Post("/db/load", h.LoadTable)
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{"status": "ok", "dataset_loaded": h.Store.Current() != nil}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// Upload ingests a CSV file, profiles it and makes it the active
// dataset. Accepts a multipart "file" field or a raw text/csv body.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.Config.MaxUploadMB*1024*1024)

	var src io.Reader
	name := "upload.csv"
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		if err := r.ParseMultipartForm(h.Config.MaxUploadMB * 1024 * 1024); err != nil {
			http.Error(w, "File too large", http.StatusBadRequest)
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "No file uploaded", http.StatusBadRequest)
			return
		}
		defer file.Close()

		if !strings.HasSuffix(strings.ToLower(header.Filename), ".csv") {
			http.Error(w, "Only CSV files are allowed", http.StatusBadRequest)
			return
		}
		src, name = file, header.Filename
	} else {
		src = r.Body
	}

	start := time.Now()
	ds, err := state.LoadCSV(src, name)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to load file: %v", err), http.StatusBadRequest)
		return
	}

	profile := h.Profiler.Profile(ds)
	h.Store.Swap(&state.Snapshot{Dataset: ds, Profile: profile})

	log.Info().
		Str("file", name).
		Str("dataset_id", profile.DatasetID).
		Int("rows", ds.NumRows()).
		Int("columns", len(ds.Columns)).
		Dur("elapsed", time.Since(start)).
		Msg("dataset loaded")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(profile)
}

// Query compiles a natural language question into a plan and executes it.
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query    string `json:"query"`
		Question string `json:"question"` // accepted alias
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	text := req.Query
	if strings.TrimSpace(text) == "" {
		text = req.Question
	}
	if strings.TrimSpace(text) == "" {
		http.Error(w, "query is required", http.StatusBadRequest)
		return
	}

	snap := h.Store.Current()
	if snap == nil {
		http.Error(w, "No dataset loaded", http.StatusBadRequest)
		return
	}

	plan := h.Planner.Classify(text, snap.Profile)
	result := h.Executor.Execute(plan, snap.Dataset, snap.Profile)

	log.Info().
		Str("intent", string(plan.Intent)).
		Str("target", plan.TargetColumn).
		Str("dimension", plan.DimensionColumn).
		Int("rows_scanned", result.RowsScanned).
		Float64("exec_ms", result.ExecTimeMs).
		Msg("query executed")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// Analyze runs a named report directly, bypassing the planner.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	snap := h.Store.Current()
	if snap == nil {
		http.Error(w, "No dataset loaded", http.StatusBadRequest)
		return
	}

	var req struct {
		Target    string `json:"target"`
		Method    string `json:"method"`
		Dimension string `json:"dimension"`
		GroupA    string `json:"group_a"`
		GroupB    string `json:"group_b"`
	}
	if r.Body != nil {
		// Body is optional for report kinds that need no parameters.
		json.NewDecoder(r.Body).Decode(&req)
	}

	kind := chi.URLParam(r, "kind")
	var report interface{}
	switch kind {
	case "anomalies":
		report = h.Anomaly.Detect(snap.Dataset, snap.Profile, req.Target, req.Method)
	case "risk":
		report = h.Risk.Analyze(snap.Dataset, snap.Profile)
	case "quality":
		report = h.Quality.Check(snap.Dataset, snap.Profile)
	case "compare":
		dimension := req.Dimension
		if dimension == "" {
			if col := snap.Profile.RoleColumn("entity"); col != "" {
				dimension = col
			} else {
				dimension = snap.Profile.RoleColumn("category")
			}
		}
		if dimension == "" {
			http.Error(w, "dimension is required", http.StatusBadRequest)
			return
		}
		target := req.Target
		if target == "" {
			target = snap.Profile.RoleColumn("amount")
		}
		report = h.Compare.Compare(snap.Dataset, dimension, req.GroupA, req.GroupB, target)
	default:
		http.Error(w, fmt.Sprintf("Unknown report kind: %s", kind), http.StatusNotFound)
		return
	}

	log.Info().Str("kind", kind).Msg("report generated")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}

// GetProfile returns the profile of the active dataset.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	snap := h.Store.Current()
	if snap == nil {
		http.Error(w, "No dataset loaded", http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snap.Profile)
}

// GetPreview returns the first rows of the active dataset.
func (h *Handler) GetPreview(w http.ResponseWriter, r *http.Request) {
	snap := h.Store.Current()
	if snap == nil {
		http.Error(w, "No dataset loaded", http.StatusBadRequest)
		return
	}

	limit := h.Config.PreviewRows
	if v := r.URL.Query().Get("rows"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	ds := snap.Dataset
	if limit > ds.NumRows() {
		limit = ds.NumRows()
	}

	rows := make([]map[string]interface{}, 0, limit)
	for i := 0; i < limit; i++ {
		row := make(map[string]interface{}, len(ds.Columns))
		for _, col := range ds.Columns {
			row[col] = ds.Value(i, col)
		}
		rows = append(rows, row)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"name":       ds.Name,
		"columns":    ds.Columns,
		"rows":       rows,
		"total_rows": ds.NumRows(),
	})
}

// Reset discards the active dataset.
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	h.Store.Reset()
	log.Info().Msg("dataset reset")
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "reset"})
}

// ConnectDB establishes a database connection
func (h *Handler) ConnectDB(w http.ResponseWriter, r *http.Request) {
	var cfg service.DataSourceConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if cfg.Host == "" {
		cfg.Host = h.Config.DBHost
		cfg.Port = h.Config.DBPort
		cfg.User = h.Config.DBUser
		cfg.Password = h.Config.DBPassword
		cfg.DBName = h.Config.DBName
		cfg.SSLMode = h.Config.DBSSLMode
	}

	ds := service.NewPostgresDataSource()
	if err := ds.Connect(cfg); err != nil {
		http.Error(w, fmt.Sprintf("Failed to connect: %v", err), http.StatusInternalServerError)
		return
	}

	h.dbMu.Lock()
	if h.CurrentDB != nil {
		h.CurrentDB.Close()
	}
	h.CurrentDB = ds
	h.dbMu.Unlock()

	log.Info().Str("host", cfg.Host).Str("dbname", cfg.DBName).Msg("database connected")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "connected"})
}

// ListTables returns tables from connected DB
func (h *Handler) ListTables(w http.ResponseWriter, r *http.Request) {
	h.dbMu.Lock()
	db := h.CurrentDB
	h.dbMu.Unlock()
	if db == nil {
		http.Error(w, "No database connection", http.StatusBadRequest)
		return
	}

	tables, err := db.ListTables()
	if err != nil {
		http.Error(w, fmt.Sprintf("Error listing tables: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"tables": tables})
}

// LoadTable reads a table from the connected DB and makes it the active dataset.
func (h *Handler) LoadTable(w http.ResponseWriter, r *http.Request) {
	h.dbMu.Lock()
	db := h.CurrentDB
	h.dbMu.Unlock()
	if db == nil {
		http.Error(w, "No database connection", http.StatusBadRequest)
		return
	}

	var req struct {
		TableName string `json:"table_name"`
		Limit     int    `json:"limit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.TableName == "" {
		http.Error(w, "table_name is required", http.StatusBadRequest)
		return
	}

	start := time.Now()
	ds, err := db.LoadTable(req.TableName, req.Limit)
	if err != nil {
		http.Error(w, fmt.Sprintf("Error loading table: %v", err), http.StatusInternalServerError)
		return
	}

	profile := h.Profiler.Profile(ds)
	h.Store.Swap(&state.Snapshot{Dataset: ds, Profile: profile})

	log.Info().
		Str("table", req.TableName).
		Str("dataset_id", profile.DatasetID).
		Int("rows", ds.NumRows()).
		Dur("elapsed", time.Since(start)).
		Msg("table loaded")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(profile)
}
