package export

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/rvaldes/tributario/internal/domain"
)

func TestHandleQueue_AcceptsAndReturnsJob(t *testing.T) {
	svc, jobRepo := newTestExportService(t, testRecords())
	handler := NewHTTPHandler(svc)

	body := strings.NewReader(`{"tipoImpuesto": "IVA"}`)
	req := httptest.NewRequest(http.MethodPost, "/exports/csv", body)
	req.Header.Set("X-User-Id", "ADMIN")
	req.Header.Set("X-User-Role", "administrador")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var view struct {
		ID      uuid.UUID `json:"id"`
		Status  string    `json:"status"`
		Formato string    `json:"formato"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if view.ID == uuid.Nil || view.Status != "PENDING" || view.Formato != "CSV" {
		t.Fatalf("view = %+v", view)
	}

	// The worker picks the job up in the background.
	waitForTerminalStatus(t, jobRepo, view.ID)
}

func TestHandleQueue_MissingIdentity(t *testing.T) {
	svc, _ := newTestExportService(t, nil)
	handler := NewHTTPHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/exports/excel", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestHandleQueue_InvalidFilters(t *testing.T) {
	svc, _ := newTestExportService(t, nil)
	handler := NewHTTPHandler(svc)

	body := strings.NewReader(`{"estado": "extranjero"}`)
	req := httptest.NewRequest(http.MethodPost, "/exports/csv", body)
	req.Header.Set("X-User-Id", "U1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestHandleGetJob_ExposesDownloadLinkAndHidesPath(t *testing.T) {
	svc, jobRepo := newTestExportService(t, testRecords())
	handler := NewHTTPHandler(svc)

	job, err := svc.Queue(context.Background(),
		domain.Identity{ID: "ADMIN", Role: domain.RoleAdministrador}, domain.FormatCSV, domain.FilterSpec{})
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	waitForTerminalStatus(t, jobRepo, job.ID)

	req := httptest.NewRequest(http.MethodGet, "/exports/jobs/"+job.ID.String(), nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var view struct {
		Status      string  `json:"status"`
		FilePath    *string `json:"file_path"`
		DownloadURL *string `json:"download_url"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if view.Status != "COMPLETED" {
		t.Fatalf("status = %s", view.Status)
	}
	if view.FilePath == nil || strings.Contains(*view.FilePath, "/") {
		t.Fatalf("file path must be a bare name, got %v", view.FilePath)
	}
	if view.DownloadURL == nil || !strings.Contains(*view.DownloadURL, "token=") {
		t.Fatalf("download url = %v", view.DownloadURL)
	}
}

func TestHandleGetJob_UnknownJob(t *testing.T) {
	svc, _ := newTestExportService(t, nil)
	handler := NewHTTPHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/exports/jobs/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestHandleDownload_FullRoundTrip(t *testing.T) {
	svc, jobRepo := newTestExportService(t, testRecords())
	handler := NewHTTPHandler(svc)

	job, err := svc.Queue(context.Background(),
		domain.Identity{ID: "ADMIN", Role: domain.RoleAdministrador}, domain.FormatCSV, domain.FilterSpec{})
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	done := waitForTerminalStatus(t, jobRepo, job.ID)

	download, err := svc.BuildDownloadURL(done)
	if err != nil || download == nil {
		t.Fatalf("build download url: %v %v", download, err)
	}

	req := httptest.NewRequest(http.MethodGet, *download, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
		t.Fatalf("content type = %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "attachment") {
		t.Fatalf("content disposition = %q", cd)
	}
	if !strings.Contains(rec.Body.String(), "RUT Cliente") {
		t.Fatal("body must contain the exported header row")
	}
}

func TestHandleDownload_BadToken(t *testing.T) {
	svc, _ := newTestExportService(t, nil)
	handler := NewHTTPHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/exports/files/"+uuid.NewString()+"?token=invalido", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestHandleCancel_FinishedJobConflicts(t *testing.T) {
	svc, jobRepo := newTestExportService(t, testRecords())
	handler := NewHTTPHandler(svc)

	job, err := svc.Queue(context.Background(),
		domain.Identity{ID: "ADMIN", Role: domain.RoleAdministrador}, domain.FormatCSV, domain.FilterSpec{})
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	waitForTerminalStatus(t, jobRepo, job.ID)

	req := httptest.NewRequest(http.MethodPost, "/exports/jobs/"+job.ID.String()+"/cancel", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestJobIDFromPath(t *testing.T) {
	id := uuid.New()
	got, err := jobIDFromPath("/exports/jobs/"+id.String()+"/cancel", "/cancel")
	if err != nil || got != id {
		t.Fatalf("got %v, %v", got, err)
	}
	if _, err := jobIDFromPath("/exports/jobs/no-uuid", ""); err == nil {
		t.Fatal("expected invalid id to be rejected")
	}
}
