package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rvaldes/tributario/internal/auth"
	"github.com/rvaldes/tributario/internal/domain"
	"github.com/rvaldes/tributario/internal/reports"
)

// Handler serves the query and history endpoints over the reports service.
type Handler struct {
	service *reports.Service
}

func NewHTTPHandler(service *reports.Service) http.Handler {
	return &Handler{service: service}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/query"):
		h.handleQuery(w, r)
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/history"):
		h.handleHistory(w, r)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

type queryPayload struct {
	FechaDesde   string `json:"fechaDesde"`
	FechaHasta   string `json:"fechaHasta"`
	TipoImpuesto string `json:"tipoImpuesto"`
	Pais         string `json:"pais"`
	RutCliente   string `json:"rutCliente"`
	Estado       string `json:"estado"`
}

func (p queryPayload) toSpec() (domain.FilterSpec, error) {
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

type queryResponse struct {
	Columns   []string      `json:"columns"`
	Rows      []reports.Row `json:"rows"`
	Total     int           `json:"total"`
	Truncated bool          `json:"truncated"`
}

func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	identity, err := auth.IdentityFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	var payload queryPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
		return
	}
	spec, err := payload.toSpec()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	preview := h.service.Preview(r.Context(), spec, identity)
	writeJSON(w, http.StatusOK, queryResponse{
		Columns:   preview.Columns,
		Rows:      preview.Rows,
		Total:     preview.Total,
		Truncated: preview.Truncated,
	})
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	identity, err := auth.IdentityFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	runs := h.service.History(r.Context(), identity)
	writeJSON(w, http.StatusOK, runs)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
