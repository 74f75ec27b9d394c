package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rvaldes/tributario/internal/auth"
	"github.com/rvaldes/tributario/internal/domain"
	"github.com/rvaldes/tributario/internal/repository"
)

type Handler struct {
	service *Service
}

func NewHTTPHandler(service *Service) http.Handler {
	return &Handler{service: service}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodGet && strings.Contains(r.URL.Path, "/files/"):
		h.handleDownload(w, r)
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/csv"):
		h.handleQueue(w, r, domain.FormatCSV)
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/excel"):
		h.handleQueue(w, r, domain.FormatExcel)
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/cancel"):
		h.handleCancel(w, r)
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/jobs"):
		h.handleListJobs(w, r)
	case r.Method == http.MethodGet:
		h.handleGetJob(w, r)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

type filtersPayload struct {
	FechaDesde   string `json:"fechaDesde"`
	FechaHasta   string `json:"fechaHasta"`
	TipoImpuesto string `json:"tipoImpuesto"`
	Pais         string `json:"pais"`
	RutCliente   string `json:"rutCliente"`
	Estado       string `json:"estado"`
}

func (p filtersPayload) toSpec() (domain.FilterSpec, error) {
	spec := domain.FilterSpec{
		TipoImpuesto: strings.TrimSpace(p.TipoImpuesto),
		Pais:         strings.TrimSpace(p.Pais),
		RutCliente:   strings.TrimSpace(p.RutCliente),
		Estado:       domain.LocalityFilter(strings.TrimSpace(p.Estado)),
	}
	if p.FechaDesde != "" {
		parsed, err := time.ParseInLocation("2006-01-02", p.FechaDesde, domain.ChileTZ)
		if err != nil {
			return domain.FilterSpec{}, fmt.Errorf("invalid fechaDesde: %w", err)
		}
		spec.FechaDesde = &parsed
	}
	if p.FechaHasta != "" {
		parsed, err := time.ParseInLocation("2006-01-02", p.FechaHasta, domain.ChileTZ)
		if err != nil {
			return domain.FilterSpec{}, fmt.Errorf("invalid fechaHasta: %w", err)
		}
		spec.FechaHasta = &parsed
	}
	if err := spec.Validate(); err != nil {
		return domain.FilterSpec{}, err
	}
	return spec, nil
}

type jobView struct {
	domain.ExportJob
	DownloadURL *string `json:"download_url,omitempty"`
}

func (h *Handler) jobView(job domain.ExportJob) jobView {
	download, err := h.service.BuildDownloadURL(job)
	if err != nil {
		download = nil
	}
	// The absolute server path stays private; clients only see the
	// file name and the signed download link.
	if job.FilePath != nil {
		name := filepath.Base(*job.FilePath)
		job.FilePath = &name
	}
	return jobView{ExportJob: job, DownloadURL: download}
}

func (h *Handler) handleQueue(w http.ResponseWriter, r *http.Request, formato string) {
	defer r.Body.Close()
	identity, err := auth.IdentityFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	var payload filtersPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
		return
	}
	spec, err := payload.toSpec()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	job, err := h.service.Queue(r.Context(), identity, formato, spec)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusAccepted, h.jobView(job))
}

func (h *Handler) handleListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var statuses []domain.ExportJobStatus
	for _, raw := range query["status"] {
		for _, value := range strings.Split(raw, ",") {
			value = strings.TrimSpace(strings.ToUpper(value))
			if value != "" {
				statuses = append(statuses, domain.ExportJobStatus(value))
			}
		}
	}
	limit := parseIntOr(query.Get("limit"), 20)
	offset := parseIntOr(query.Get("offset"), 0)

	jobs, err := h.service.ListJobs(r.Context(), statuses, limit, offset)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	views := make([]jobView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, h.jobView(job))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := jobIDFromPath(r.URL.Path, "")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	job, err := h.service.GetJob(r.Context(), jobID)
	if errors.Is(err, repository.ErrNotFound) {
		http.Error(w, "export job not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, h.jobView(job))
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	jobID, err := jobIDFromPath(r.URL.Path, "/cancel")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	job, err := h.service.CancelJob(r.Context(), jobID)
	if errors.Is(err, repository.ErrNotFound) {
		http.Error(w, "export job not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, h.jobView(job))
}

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	jobID, err := jobIDFromPath(r.URL.Path, "")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	token := r.URL.Query().Get("token")
	if err := h.service.ValidateDownloadToken(jobID, token); err != nil {
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}
	job, err := h.service.GetJob(r.Context(), jobID)
	if errors.Is(err, repository.ErrNotFound) {
		http.Error(w, "export job not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	file, err := h.service.OpenJobFile(job)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	defer file.Close()

	name := filepath.Base(file.Name())
	contentType := "text/csv"
	if strings.HasSuffix(name, ".xlsx") {
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	if _, err := io.Copy(w, file); err != nil {
		// Too late for an error status; the connection likely dropped.
		return
	}
}

func jobIDFromPath(path, suffix string) (uuid.UUID, error) {
	trimmed := strings.TrimSuffix(strings.TrimSuffix(path, "/"), suffix)
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 {
		return uuid.Nil, errors.New("missing job id")
	}
	jobID, err := uuid.Parse(trimmed[idx+1:])
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid job id: %w", err)
	}
	return jobID, nil
}

func parseIntOr(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
