package domain

import (
	"fmt"
	"time"
)

// ChileTZ is the fixed civil time zone every generated timestamp uses.
// The offset is deliberately fixed at UTC-3 rather than following DST.
var ChileTZ = time.FixedZone("UTC-3", -3*60*60)

// Report type and format tags stored with every run.
const (
	ReportTypeExportacion = "exportacion_calificaciones"
	FormatCSV             = "CSV"
	FormatExcel           = "Excel"
)

// ReportRun is one append-only history entry describing a completed export.
// Entries are never updated or deleted.
type ReportRun struct {
	ID                 string         `json:"_id"`
	UsuarioGeneradorID string         `json:"usuarioGeneradorId"`
	TipoReporte        string         `json:"tipoReporte"`
	FiltrosAplicados   map[string]any `json:"filtrosAplicados"`
	TotalRegistros     int            `json:"totalRegistros"`
	Formato            string         `json:"formato"`
	NombreArchivo      string         `json:"nombreArchivo"`
	FechaGeneracion    time.Time      `json:"fechaGeneracion"`
}

// StorageFilters flattens a FilterSpec into storage-safe primitives. The
// store rejects composite values, so dates become midnight timestamps in
// the fixed zone and everything else is a plain string.
func (s FilterSpec) StorageFilters() map[string]any {
	out := map[string]any{}
	if s.FechaDesde != nil {
		out["fecha_desde"] = midnightIn(*s.FechaDesde, ChileTZ)
	}
	if s.FechaHasta != nil {
		out["fecha_hasta"] = midnightIn(*s.FechaHasta, ChileTZ)
	}
	if s.TipoImpuesto != "" {
		out["tipo_impuesto"] = s.TipoImpuesto
	}
	if s.Pais != "" {
		out["pais"] = s.Pais
	}
	if s.RutCliente != "" {
		out["rut_cliente"] = s.RutCliente
	}
	if s.Estado != "" {
		out["estado"] = string(s.Estado)
	}
	return out
}

func midnightIn(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// StoragePrimitive converts an arbitrary filter value into a form the
// store accepts: times and primitives pass through, composites and
// anything unrecognized become their string representation.
func StoragePrimitive(value any) any {
	switch v := value.(type) {
	case nil, bool, string, int, int32, int64, float32, float64:
		return v
	case time.Time:
		return v
	case *time.Time:
		if v == nil {
			return nil
		}
		return *v
	default:
		return fmt.Sprintf("%v", v)
	}
}
