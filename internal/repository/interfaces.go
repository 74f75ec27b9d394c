package repository

import (
	"context"
	"errors"

	"github.com/rvaldes/tributario/internal/domain"

	"github.com/google/uuid"
)

// ErrNotFound indicates that a document does not exist.
var ErrNotFound = errors.New("document not found")

// ErrExportJobStatusConflict indicates that a job cannot transition to the
// requested state.
var ErrExportJobStatusConflict = errors.New("export job status conflict")

// QualificationRepository reads qualification documents. The store is
// queried with a single equality predicate plus a limit; all other
// filtering happens in memory.
type QualificationRepository interface {
	ListActive(ctx context.Context, limit int) ([]domain.QualificationRecord, error)
}

// UserRepository resolves user documents for RUT lookups.
type UserRepository interface {
	GetRut(ctx context.Context, userID string) (string, error)
}

// ReportRepository appends and lists report run history. Entries are
// append-only: there is no update or delete operation.
type ReportRepository interface {
	Append(ctx context.Context, run domain.ReportRun) (domain.ReportRun, error)
	ListRecent(ctx context.Context, identity domain.Identity, limit int) ([]domain.ReportRun, error)
}

// ExportJobResult carries the artifact metadata recorded on completion.
type ExportJobResult struct {
	TotalRecords int
	FilePath     *string
	FileByteSize *int64
}

// ExportJobRepository manages export job lifecycle rows.
type ExportJobRepository interface {
	Create(ctx context.Context, job domain.ExportJob) (domain.ExportJob, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.ExportJob, error)
	List(ctx context.Context, statuses []domain.ExportJobStatus, limit, offset int) ([]domain.ExportJob, error)
	MarkRunning(ctx context.Context, id uuid.UUID) error
	UpdateProgress(ctx context.Context, id uuid.UUID, progress int) error
	MarkCompleted(ctx context.Context, id uuid.UUID, result ExportJobResult) error
	MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string) error
	MarkCancelled(ctx context.Context, id uuid.UUID, reason string) error
}
