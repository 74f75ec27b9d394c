package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rvaldes/tributario/internal/domain"
	"github.com/rvaldes/tributario/internal/reports"
	"github.com/rvaldes/tributario/internal/repository"
)

type stubQualificationRepo struct {
	records []domain.QualificationRecord
}

func (s *stubQualificationRepo) ListActive(_ context.Context, limit int) ([]domain.QualificationRecord, error) {
	if len(s.records) > limit {
		return s.records[:limit], nil
	}
	return s.records, nil
}

type stubUserRepo struct{}

func (stubUserRepo) GetRut(context.Context, string) (string, error) {
	return "", repository.ErrNotFound
}

type stubReportRepo struct {
	runs []domain.ReportRun
}

func (s *stubReportRepo) Append(_ context.Context, run domain.ReportRun) (domain.ReportRun, error) {
	s.runs = append(s.runs, run)
	return run, nil
}

func (s *stubReportRepo) ListRecent(_ context.Context, identity domain.Identity, limit int) ([]domain.ReportRun, error) {
	if len(s.runs) > limit {
		return s.runs[:limit], nil
	}
	return s.runs, nil
}

func newTestHandler(records []domain.QualificationRecord, runs []domain.ReportRun) http.Handler {
	service := reports.NewService(
		&stubQualificationRepo{records: records},
		stubUserRepo{},
		&stubReportRepo{runs: runs},
	)
	return NewHTTPHandler(service)
}

func TestHandleQuery(t *testing.T) {
	records := []domain.QualificationRecord{
		{ID: "Q1", FechaDeclaracion: "2024-03-15", TipoImpuesto: "IVA", Pais: "Chile", Activo: true,
			Factores: domain.NewKeyedFactors(map[string]any{"factor_8": 0.5})},
		{ID: "Q2", FechaDeclaracion: "2024-05-01", TipoImpuesto: "IVA", Pais: "Chile", Activo: true,
			Factores: domain.NewKeyedFactors(nil)},
	}
	handler := newTestHandler(records, nil)

	body := strings.NewReader(`{"fechaDesde": "2024-03-01", "fechaHasta": "2024-03-31"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/query", body)
	req.Header.Set("X-User-Id", "U1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var response struct {
		Columns   []string         `json:"columns"`
		Rows      []map[string]any `json:"rows"`
		Total     int              `json:"total"`
		Truncated bool             `json:"truncated"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if response.Total != 1 || len(response.Rows) != 1 {
		t.Fatalf("total = %d, rows = %d", response.Total, len(response.Rows))
	}
	if response.Rows[0]["Fecha Declaración"] != "2024-03-15" {
		t.Fatalf("row = %v", response.Rows[0])
	}
	if len(response.Columns) != 27 {
		t.Fatalf("columns = %d", len(response.Columns))
	}
}

func TestHandleQuery_InvalidDate(t *testing.T) {
	handler := newTestHandler(nil, nil)

	body := strings.NewReader(`{"fechaDesde": "15-03-2024"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/query", body)
	req.Header.Set("X-User-Id", "U1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestHandleQuery_MissingIdentity(t *testing.T) {
	handler := newTestHandler(nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestHandleHistory(t *testing.T) {
	runs := []domain.ReportRun{{ID: "H1", UsuarioGeneradorID: "U1", Formato: "CSV"}}
	handler := newTestHandler(nil, runs)

	req := httptest.NewRequest(http.MethodGet, "/api/history", nil)
	req.Header.Set("X-User-Id", "U1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var decoded []domain.ReportRun
	if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(decoded) != 1 || decoded[0].ID != "H1" {
		t.Fatalf("history = %v", decoded)
	}
}

func TestServeHTTP_UnknownRoute(t *testing.T) {
	handler := newTestHandler(nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/unknown", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}
