package reports

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/rvaldes/tributario/internal/audit"
	"github.com/rvaldes/tributario/internal/domain"
	"github.com/rvaldes/tributario/internal/repository"
	"github.com/rvaldes/tributario/internal/rut"
)

// Safety limits. The storage query never returns more than maxRecords
// documents; results past that bound are silently absent from the store's
// answer, so FilterResult carries a Truncated flag for callers to surface.
const (
	maxRecords   = 10000
	maxPreview   = 50
	historyLimit = 50
)

// Service implements the filter, authorization, normalization, export and
// history pipeline over the document repositories.
type Service struct {
	qualifications repository.QualificationRepository
	users          repository.UserRepository
	reportRuns     repository.ReportRepository
	auditSink      audit.Sink
	now            func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithClock overrides the time source, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithAuditSink overrides the audit event destination.
func WithAuditSink(sink audit.Sink) Option {
	return func(s *Service) {
		if sink != nil {
			s.auditSink = sink
		}
	}
}

// NewService wires the reporting pipeline.
func NewService(
	qualifications repository.QualificationRepository,
	users repository.UserRepository,
	reportRuns repository.ReportRepository,
	opts ...Option,
) *Service {
	service := &Service{
		qualifications: qualifications,
		users:          users,
		reportRuns:     reportRuns,
		auditSink:      audit.LogSink{},
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// ChileTime returns the current time in the fixed report time zone.
func (s *Service) ChileTime() time.Time {
	return s.now().In(domain.ChileTZ)
}

// FilterResult is the outcome of a filter pass. Truncated indicates that
// the storage-side record cap may have hidden matches.
type FilterResult struct {
	Records   []domain.QualificationRecord
	Truncated bool
}

// FetchFiltered loads active qualifications and applies the filter spec
// and the visibility rule for the identity. Storage failures degrade to an
// empty result; they are logged, never propagated.
func (s *Service) FetchFiltered(ctx context.Context, spec domain.FilterSpec, identity domain.Identity) FilterResult {
	resolver := rut.NewResolver(s.users)
	defer resolver.Clear()
	return s.fetchFiltered(ctx, spec, identity, resolver)
}

func (s *Service) fetchFiltered(ctx context.Context, spec domain.FilterSpec, identity domain.Identity, resolver *rut.Resolver) FilterResult {
	records, err := s.qualifications.ListActive(ctx, maxRecords)
	if err != nil {
		log.Printf("[reports] error al obtener datos filtrados: %v", err)
		return FilterResult{Records: []domain.QualificationRecord{}}
	}

	rutFilter := spec.NormalizedRut()
	matched := make([]domain.QualificationRecord, 0, len(records))
	for _, record := range records {
		if !spec.MatchesDates(record.FechaDeclaracion) {
			continue
		}
		if spec.TipoImpuesto != "" && record.TipoImpuesto != spec.TipoImpuesto {
			continue
		}
		if spec.Pais != "" && record.Pais != spec.Pais {
			continue
		}
		if rutFilter != "" {
			rutCliente := resolver.Resolve(ctx, record.ClienteID)
			if !strings.Contains(strings.ToUpper(rutCliente), rutFilter) {
				continue
			}
		}
		if !spec.MatchesLocality(record.EsLocal) {
			continue
		}
		if !record.VisibleTo(identity) {
			continue
		}
		matched = append(matched, record)
	}

	log.Printf("[reports] usuario %s obtuvo %d registros filtrados", identity.ShortID(), len(matched))
	return FilterResult{
		Records:   matched,
		Truncated: len(records) >= maxRecords,
	}
}

// Authorize re-applies the ownership rule immediately before an export.
// The filtered set is deliberately not trusted: it may have been cached or
// passed through intermediate stages. Administrators bypass the check.
// The function is pure and idempotent.
func Authorize(records []domain.QualificationRecord, identity domain.Identity) []domain.QualificationRecord {
	if identity.IsAdministrator() {
		return records
	}
	authorized := make([]domain.QualificationRecord, 0, len(records))
	for _, record := range records {
		if !record.EsLocal {
			authorized = append(authorized, record)
			continue
		}
		if record.OwnedBy(identity.ID) {
			authorized = append(authorized, record)
		}
	}
	return authorized
}

// PreviewResult is the query-window view: the first rows in normalized
// form plus the full match count.
type PreviewResult struct {
	Rows      []Row
	Columns   []string
	Total     int
	Truncated bool
}

// Preview runs the filter pass and normalizes the first matches for
// display, sharing one RUT cache session across both steps.
func (s *Service) Preview(ctx context.Context, spec domain.FilterSpec, identity domain.Identity) PreviewResult {
	resolver := rut.NewResolver(s.users)
	defer resolver.Clear()

	result := s.fetchFiltered(ctx, spec, identity, resolver)
	head := result.Records
	if len(head) > maxPreview {
		head = head[:maxPreview]
	}
	table := Normalize(ctx, head, resolver)
	return PreviewResult{
		Rows:      table.Rows,
		Columns:   table.Columns,
		Total:     len(result.Records),
		Truncated: result.Truncated,
	}
}

// RecordReport appends one immutable history entry for a completed export
// and emits the audit event. Failures are logged and reported as false;
// they never invalidate the already-produced file.
func (s *Service) RecordReport(ctx context.Context, identity domain.Identity, tipoReporte string, spec domain.FilterSpec, totalRegistros int, formato, nombreArchivo string) bool {
	run := domain.ReportRun{
		UsuarioGeneradorID: identity.ID,
		TipoReporte:        tipoReporte,
		FiltrosAplicados:   spec.StorageFilters(),
		TotalRegistros:     totalRegistros,
		Formato:            formato,
		NombreArchivo:      nombreArchivo,
		FechaGeneracion:    s.ChileTime(),
	}
	if _, err := s.reportRuns.Append(ctx, run); err != nil {
		log.Printf("[reports] error al registrar reporte: %v", err)
		return false
	}

	s.auditSink.Record("REPORTE_GENERADO", identity, map[string]any{
		"tipo":      tipoReporte,
		"formato":   formato,
		"registros": totalRegistros,
		"archivo":   nombreArchivo,
	})
	log.Printf("[reports] reporte registrado: %s por usuario %s", nombreArchivo, identity.ShortID())
	return true
}

// History lists the most recent report runs, newest first, capped at 50.
// Administrators and auditors see every run; other roles only their own.
// Storage failures degrade to an empty list.
func (s *Service) History(ctx context.Context, identity domain.Identity) []domain.ReportRun {
	runs, err := s.reportRuns.ListRecent(ctx, identity, historyLimit)
	if err != nil {
		log.Printf("[reports] error al obtener historial: %v", err)
		return []domain.ReportRun{}
	}
	log.Printf("[reports] historial cargado: %d reportes para usuario %s", len(runs), identity.ShortID())
	return runs
}
