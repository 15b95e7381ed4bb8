package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mediatrack-api/internal/config"
	"github.com/mediatrack-api/internal/mocks"
	"github.com/mediatrack-api/internal/repository"
	"github.com/mediatrack-api/internal/service"
)

func testRouter(t *testing.T) (*gin.Engine, *mocks.MockJobRepository, *mocks.MockCatalogRepository) {
	t.Helper()

	cfg := &config.Config{
		Import: config.ImportConfig{
			MaxFileSize:       10 * 1024 * 1024,
			MaxRows:           10000,
			MaxCellLength:     500,
			MaxStoredErrors:   100,
			ProgressFlushRows: 10,
			DateOrder:         config.DateOrderMDY,
			DuplicatePolicy:   config.DuplicateReject,
			UploadDir:         t.TempDir(),
		},
		Rate: config.RateConfig{UploadsPerHour: 5, ManualPerMinute: 30},
	}

	jobs := mocks.NewMockJobRepository()
	catalog := mocks.NewMockCatalogRepository()
	repos := &repository.Repositories{
		Job:         jobs,
		Catalog:     catalog,
		Consumption: mocks.NewMockConsumptionRepository(),
	}
	services := service.NewServices(repos, cfg, zerolog.Nop())
	return NewRouter(services, HeaderIdentityProvider{}, cfg, zerolog.Nop()), jobs, catalog
}

func multipartCSV(t *testing.T, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	w.Close()
	return &body, w.FormDataContentType()
}

func doRequest(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	router, _, _ := testRouter(t)
	rec := doRequest(router, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	router, _, _ := testRouter(t)

	tests := []struct {
		name   string
		header string
	}{
		{name: "missing header"},
		{name: "malformed header", header: "not-a-uuid"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/imports", nil)
			if tt.header != "" {
				req.Header.Set("X-User-ID", tt.header)
			}
			if rec := doRequest(router, req); rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
		})
	}
}

func TestCreateImport(t *testing.T) {
	router, jobs, _ := testRouter(t)
	userID := uuid.New()

	body, contentType := multipartCSV(t, "NetflixViewingHistory.csv", "Title,Date\nInception,2024-01-15\n")
	req := httptest.NewRequest(http.MethodPost, "/v1/imports", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-User-ID", userID.String())

	rec := doRequest(router, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		JobID         uuid.UUID `json:"job_id"`
		Status        string    `json:"status"`
		EstimatedRows int       `json:"estimated_rows"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "pending" || resp.EstimatedRows != 1 {
		t.Errorf("response = %+v", resp)
	}
	if jobs.Stored(resp.JobID) == nil {
		t.Error("accepted upload must create a ledger entry")
	}
}

func TestCreateImportRejectsNonCSV(t *testing.T) {
	router, _, _ := testRouter(t)

	body, contentType := multipartCSV(t, "history.xlsx", "Title,Date\nInception,2024-01-15\n")
	req := httptest.NewRequest(http.MethodPost, "/v1/imports", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-User-ID", uuid.New().String())

	rec := doRequest(router, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestCreateImportRateLimited(t *testing.T) {
	router, _, _ := testRouter(t)
	userID := uuid.New()

	for i := 0; i < 6; i++ {
		content := fmt.Sprintf("Title,Date\nMovie %d,2024-01-15\n", i)
		body, contentType := multipartCSV(t, "history.csv", content)
		req := httptest.NewRequest(http.MethodPost, "/v1/imports", body)
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("X-User-ID", userID.String())

		rec := doRequest(router, req)
		if i < 5 && rec.Code != http.StatusAccepted {
			t.Fatalf("upload %d: status = %d, want 202", i+1, rec.Code)
		}
		if i == 5 && rec.Code != http.StatusTooManyRequests {
			t.Errorf("upload %d: status = %d, want 429", i+1, rec.Code)
		}
	}
}

func TestGetImportStatus(t *testing.T) {
	router, _, _ := testRouter(t)
	userID := uuid.New()

	body, contentType := multipartCSV(t, "history.csv", "Title,Date\nInception,2024-01-15\n")
	req := httptest.NewRequest(http.MethodPost, "/v1/imports", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-User-ID", userID.String())
	created := doRequest(router, req)

	var resp struct {
		JobID uuid.UUID `json:"job_id"`
	}
	json.Unmarshal(created.Body.Bytes(), &resp)

	statusReq := httptest.NewRequest(http.MethodGet, "/v1/imports/"+resp.JobID.String(), nil)
	statusReq.Header.Set("X-User-ID", userID.String())
	rec := doRequest(router, statusReq)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"errors":[]`) {
		t.Errorf("fresh job should have an empty error list: %s", rec.Body.String())
	}

	// Job owned by someone else behaves as not found
	foreignReq := httptest.NewRequest(http.MethodGet, "/v1/imports/"+resp.JobID.String(), nil)
	foreignReq.Header.Set("X-User-ID", uuid.New().String())
	if rec := doRequest(router, foreignReq); rec.Code != http.StatusNotFound {
		t.Errorf("foreign job: status = %d, want 404", rec.Code)
	}
}

func TestGetImportStatusBadID(t *testing.T) {
	router, _, _ := testRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/imports/not-a-uuid", nil)
	req.Header.Set("X-User-ID", uuid.New().String())
	if rec := doRequest(router, req); rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestCancelImport(t *testing.T) {
	router, _, _ := testRouter(t)
	userID := uuid.New()

	body, contentType := multipartCSV(t, "history.csv", "Title,Date\nInception,2024-01-15\n")
	req := httptest.NewRequest(http.MethodPost, "/v1/imports", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-User-ID", userID.String())
	created := doRequest(router, req)

	var resp struct {
		JobID uuid.UUID `json:"job_id"`
	}
	json.Unmarshal(created.Body.Bytes(), &resp)

	del := httptest.NewRequest(http.MethodDelete, "/v1/imports/"+resp.JobID.String(), nil)
	del.Header.Set("X-User-ID", userID.String())
	if rec := doRequest(router, del); rec.Code != http.StatusNoContent {
		t.Fatalf("cancel: status = %d, want 204", rec.Code)
	}

	// Cancelling a terminal job conflicts
	del2 := httptest.NewRequest(http.MethodDelete, "/v1/imports/"+resp.JobID.String(), nil)
	del2.Header.Set("X-User-ID", userID.String())
	if rec := doRequest(router, del2); rec.Code != http.StatusConflict {
		t.Errorf("second cancel: status = %d, want 409", rec.Code)
	}
}

func TestManualAddEndpoint(t *testing.T) {
	router, _, _ := testRouter(t)
	userID := uuid.New()

	payload := `{"title":"Oppenheimer","platform":"cinema","consumed_at":"2024-07-21","kind":"movie"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/imports/manual", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", userID.String())

	rec := doRequest(router, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "Oppenheimer") {
		t.Errorf("response should echo the matched title: %s", rec.Body.String())
	}

	// Binding failure: platform is required
	bad := httptest.NewRequest(http.MethodPost, "/v1/imports/manual", strings.NewReader(`{"title":"Dune"}`))
	bad.Header.Set("Content-Type", "application/json")
	bad.Header.Set("X-User-ID", userID.String())
	if rec := doRequest(router, bad); rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestManualAddInfrastructureFailure(t *testing.T) {
	router, _, catalog := testRouter(t)
	catalog.GetOrCreateErr = errors.New("connection refused")

	payload := `{"title":"Dune","platform":"cinema"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/imports/manual", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", uuid.New().String())

	rec := doRequest(router, req)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500: %s", rec.Code, rec.Body.String())
	}
}

func TestHistoryEndpoint(t *testing.T) {
	router, _, _ := testRouter(t)
	userID := uuid.New()

	payload := `{"title":"Oppenheimer","platform":"cinema"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/imports/manual", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", userID.String())
	doRequest(router, req)

	histReq := httptest.NewRequest(http.MethodGet, "/v1/imports?page=1&page_size=10", nil)
	histReq.Header.Set("X-User-ID", userID.String())
	rec := doRequest(router, histReq)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp struct {
		Total    int `json:"total"`
		Page     int `json:"page"`
		PageSize int `json:"page_size"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Total != 1 || resp.Page != 1 || resp.PageSize != 10 {
		t.Errorf("response = %+v", resp)
	}
}

func TestCORSPreflight(t *testing.T) {
	router, _, _ := testRouter(t)
	req := httptest.NewRequest(http.MethodOptions, "/v1/imports", nil)
	rec := doRequest(router, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Headers"); !strings.Contains(got, "X-User-ID") {
		t.Errorf("identity header missing from CORS allow list: %q", got)
	}
}
