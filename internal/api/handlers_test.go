package api_test

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"insight-backend/internal/api"
	"insight-backend/internal/config"
	"insight-backend/internal/models"
	"insight-backend/internal/state"
)

const txnCSV = "transaction_id,date,amount,state,merchant_category,status\n" +
	"T1,2024-01-05,100,Maharashtra,Food,SUCCESS\n" +
	"T2,2024-01-18,200,Karnataka,Shopping,SUCCESS\n" +
	"T3,2024-02-02,150,Maharashtra,Food,FAILED\n" +
	"T4,2024-02-20,300,Delhi,Travel,SUCCESS\n" +
	"T5,2024-03-11,250,Karnataka,Shopping,SUCCESS\n" +
	"T6,2024-03-21,500,Maharashtra,Food,SUCCESS\n"

func newTestRouter() *chi.Mux {
	cfg := &config.Config{Port: "8080", Env: "test", MaxUploadMB: 10, PreviewRows: 20}
	handler := api.NewHandler(cfg, state.NewStore())
	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r
}

func uploadCSV(t *testing.T, r http.Handler, name, content string) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", name)
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatalf("write part: %v", err)
	}
	w.Close()

	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHealthCheck(t *testing.T) {
	r := newTestRouter()
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["dataset_loaded"] != false {
		t.Errorf("dataset_loaded = %v, want false before upload", resp["dataset_loaded"])
	}
}

func TestUploadAndQuery(t *testing.T) {
	r := newTestRouter()

	rec := uploadCSV(t, r, "txns.csv", txnCSV)
	if rec.Code != http.StatusOK {
		t.Fatalf("upload status = %d: %s", rec.Code, rec.Body.String())
	}
	var prof models.DatasetProfile
	if err := json.NewDecoder(rec.Body).Decode(&prof); err != nil {
		t.Fatalf("decode profile: %v", err)
	}
	if prof.Rows != 6 || prof.DatasetID == "" {
		t.Errorf("profile rows=%d id=%q, want 6 rows and a dataset id", prof.Rows, prof.DatasetID)
	}

	body := strings.NewReader(`{"query":"top 3 states by amount"}`)
	req := httptest.NewRequest(http.MethodPost, "/query", body)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("query status = %d: %s", rec.Code, rec.Body.String())
	}
	var result models.AnalysisResult
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Plan == nil || result.Plan.Intent != models.IntentTopK {
		t.Errorf("expected a top_k plan, got %+v", result.Plan)
	}
	if len(result.Rows) != 3 {
		t.Errorf("expected 3 ranked rows, got %d", len(result.Rows))
	}
}

func TestQueryWithoutDataset(t *testing.T) {
	r := newTestRouter()
	req := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(`{"query":"total amount"}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 when no dataset is loaded", rec.Code)
	}
}

func TestUploadRawBody(t *testing.T) {
	r := newTestRouter()
	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader(txnCSV))
	req.Header.Set("Content-Type", "text/csv")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("raw body upload status = %d: %s", rec.Code, rec.Body.String())
	}
	var prof models.DatasetProfile
	if err := json.NewDecoder(rec.Body).Decode(&prof); err != nil {
		t.Fatalf("decode profile: %v", err)
	}
	if prof.Rows != 6 {
		t.Errorf("rows = %d, want 6", prof.Rows)
	}
}

func TestUploadRejectsNonCSV(t *testing.T) {
	r := newTestRouter()
	rec := uploadCSV(t, r, "data.xlsx", "not a csv")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for non-CSV uploads", rec.Code)
	}
}

func TestAnalyzeReports(t *testing.T) {
	r := newTestRouter()
	uploadCSV(t, r, "txns.csv", txnCSV)

	for _, kind := range []string{"anomalies", "risk", "quality", "compare"} {
		req := httptest.NewRequest(http.MethodPost, "/analyze/"+kind, strings.NewReader(`{}`))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("analyze/%s status = %d: %s", kind, rec.Code, rec.Body.String())
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/analyze/nonsense", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown kind status = %d, want 404", rec.Code)
	}
}

func TestPreviewAndReset(t *testing.T) {
	r := newTestRouter()
	uploadCSV(t, r, "txns.csv", txnCSV)

	req := httptest.NewRequest(http.MethodGet, "/preview?rows=2", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("preview status = %d", rec.Code)
	}
	var preview struct {
		Rows      []map[string]interface{} `json:"rows"`
		TotalRows int                      `json:"total_rows"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&preview); err != nil {
		t.Fatalf("decode preview: %v", err)
	}
	if len(preview.Rows) != 2 || preview.TotalRows != 6 {
		t.Errorf("preview = %d rows of %d, want 2 of 6", len(preview.Rows), preview.TotalRows)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/reset", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("reset status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/profile", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("profile after reset = %d, want 400", rec.Code)
	}
}
