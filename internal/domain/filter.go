package domain

import (
	"errors"
	"strings"
	"time"
)

// LocalityFilter is the tri-state estado filter.
type LocalityFilter string

const (
	LocalityLocal LocalityFilter = "local"
	LocalityBolsa LocalityFilter = "bolsa"
	LocalityBoth  LocalityFilter = "ambos"
)

// dateLayout is the fixed-width declaration date form. Dates compare
// lexicographically, which is only correct because every stored date uses
// this layout.
const dateLayout = "2006-01-02"

// FilterSpec describes one qualification query. Zero values mean
// "no filter" for the optional fields.
type FilterSpec struct {
	FechaDesde   *time.Time     `json:"fechaDesde,omitempty"`
	FechaHasta   *time.Time     `json:"fechaHasta,omitempty"`
	TipoImpuesto string         `json:"tipoImpuesto,omitempty"`
	Pais         string         `json:"pais,omitempty"`
	RutCliente   string         `json:"rutCliente,omitempty"`
	Estado       LocalityFilter `json:"estado,omitempty"`
}

// Validate checks edge constraints before a spec enters the pipeline.
func (s FilterSpec) Validate() error {
	if s.FechaDesde != nil && s.FechaHasta != nil && s.FechaDesde.After(*s.FechaHasta) {
		return errors.New("fechaDesde must not be after fechaHasta")
	}
	switch s.Estado {
	case "", LocalityLocal, LocalityBolsa, LocalityBoth:
	default:
		return errors.New("estado must be local, bolsa or ambos")
	}
	return nil
}

// DateFromString returns the inclusive lower bound in stored form, or "".
func (s FilterSpec) DateFromString() string {
	if s.FechaDesde == nil {
		return ""
	}
	return s.FechaDesde.Format(dateLayout)
}

// DateToString returns the inclusive upper bound in stored form, or "".
func (s FilterSpec) DateToString() string {
	if s.FechaHasta == nil {
		return ""
	}
	return s.FechaHasta.Format(dateLayout)
}

// MatchesDates checks the declaration date against the inclusive range.
func (s FilterSpec) MatchesDates(fechaDeclaracion string) bool {
	if from := s.DateFromString(); from != "" && fechaDeclaracion < from {
		return false
	}
	if to := s.DateToString(); to != "" && fechaDeclaracion > to {
		return false
	}
	return true
}

// MatchesLocality checks the record's locality flag against the tri-state
// filter. An unset filter behaves as "ambos".
func (s FilterSpec) MatchesLocality(esLocal bool) bool {
	switch s.Estado {
	case LocalityLocal:
		return esLocal
	case LocalityBolsa:
		return !esLocal
	default:
		return true
	}
}

// NormalizedRut returns the trimmed, upper-cased RUT substring filter.
func (s FilterSpec) NormalizedRut() string {
	return strings.ToUpper(strings.TrimSpace(s.RutCliente))
}
