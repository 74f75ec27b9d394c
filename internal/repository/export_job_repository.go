package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rvaldes/tributario/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type exportJobRepository struct {
	pool *pgxpool.Pool
}

// NewExportJobRepository wires a repository for managing export jobs.
func NewExportJobRepository(pool *pgxpool.Pool) ExportJobRepository {
	return &exportJobRepository{pool: pool}
}

const exportJobColumns = `
	id, user_id, user_role, formato, filters, progress, total_records,
	file_path, file_byte_size, status, error_message,
	enqueued_at, started_at, completed_at, updated_at
`

func (r *exportJobRepository) Create(ctx context.Context, job domain.ExportJob) (domain.ExportJob, error) {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	filtersJSON, err := job.FiltersToJSON()
	if err != nil {
		return domain.ExportJob{}, fmt.Errorf("marshal export filters: %w", err)
	}
	if _, err := r.pool.Exec(ctx, `
		INSERT INTO export_jobs (id, user_id, user_role, formato, filters, status)
		VALUES ($1, $2, $3, $4, $5, 'PENDING')
	`, job.ID, job.UserID, string(job.UserRole), job.Formato, filtersJSON); err != nil {
		return domain.ExportJob{}, fmt.Errorf("insert export job: %w", err)
	}
	return r.GetByID(ctx, job.ID)
}

func (r *exportJobRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.ExportJob, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+exportJobColumns+` FROM export_jobs WHERE id = $1`, id)
	job, err := scanExportJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ExportJob{}, ErrNotFound
	}
	if err != nil {
		return domain.ExportJob{}, fmt.Errorf("get export job: %w", err)
	}
	return job, nil
}

func (r *exportJobRepository) List(ctx context.Context, statuses []domain.ExportJobStatus, limit, offset int) ([]domain.ExportJob, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	statusValues := make([]string, len(statuses))
	for i, status := range statuses {
		statusValues[i] = string(status)
	}
	query := `SELECT ` + exportJobColumns + ` FROM export_jobs`
	args := []any{}
	if len(statusValues) > 0 {
		query += ` WHERE status = ANY($1)`
		args = append(args, statusValues)
	}
	query += fmt.Sprintf(` ORDER BY enqueued_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list export jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]domain.ExportJob, 0, limit)
	for rows.Next() {
		job, scanErr := scanExportJob(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan export job: %w", scanErr)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate export jobs: %w", err)
	}
	return jobs, nil
}

func (r *exportJobRepository) MarkRunning(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE export_jobs
		SET status = 'RUNNING', started_at = now(), updated_at = now()
		WHERE id = $1 AND status = 'PENDING'
	`, id)
	if err != nil {
		return fmt.Errorf("mark export job running: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrExportJobStatusConflict
	}
	return nil
}

func (r *exportJobRepository) UpdateProgress(ctx context.Context, id uuid.UUID, progress int) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	if _, err := r.pool.Exec(ctx, `
		UPDATE export_jobs
		SET progress = GREATEST(progress, $1), updated_at = now()
		WHERE id = $2
	`, progress, id); err != nil {
		return fmt.Errorf("update export progress: %w", err)
	}
	return nil
}

func (r *exportJobRepository) MarkCompleted(ctx context.Context, id uuid.UUID, result ExportJobResult) error {
	filePath := pgtype.Text{}
	if result.FilePath != nil && *result.FilePath != "" {
		filePath = pgtype.Text{String: *result.FilePath, Valid: true}
	}
	fileSize := pgtype.Int8{}
	if result.FileByteSize != nil {
		fileSize = pgtype.Int8{Int64: *result.FileByteSize, Valid: true}
	}
	if _, err := r.pool.Exec(ctx, `
		UPDATE export_jobs
		SET status = 'COMPLETED', progress = 100, total_records = $1,
		    file_path = $2, file_byte_size = $3,
		    completed_at = now(), updated_at = now()
		WHERE id = $4
	`, result.TotalRecords, filePath, fileSize, id); err != nil {
		return fmt.Errorf("mark export job completed: %w", err)
	}
	return nil
}

func (r *exportJobRepository) MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string) error {
	msg := pgtype.Text{}
	if errorMessage != "" {
		msg = pgtype.Text{String: errorMessage, Valid: true}
	}
	if _, err := r.pool.Exec(ctx, `
		UPDATE export_jobs
		SET status = 'FAILED', error_message = $1,
		    completed_at = now(), updated_at = now()
		WHERE id = $2
	`, msg, id); err != nil {
		return fmt.Errorf("mark export job failed: %w", err)
	}
	return nil
}

func (r *exportJobRepository) MarkCancelled(ctx context.Context, id uuid.UUID, reason string) error {
	msg := pgtype.Text{}
	if strings.TrimSpace(reason) != "" {
		msg = pgtype.Text{String: reason, Valid: true}
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE export_jobs
		SET status = 'CANCELLED', error_message = $1,
		    completed_at = now(), updated_at = now()
		WHERE id = $2 AND status IN ('PENDING', 'RUNNING')
	`, msg, id)
	if err != nil {
		return fmt.Errorf("mark export job cancelled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrExportJobStatusConflict
	}
	return nil
}

func scanExportJob(row pgx.Row) (domain.ExportJob, error) {
	var (
		job          domain.ExportJob
		userRole     string
		filtersJSON  []byte
		filePath     pgtype.Text
		fileSize     pgtype.Int8
		status       string
		errorMessage pgtype.Text
		startedAt    pgtype.Timestamptz
		completedAt  pgtype.Timestamptz
	)
	if err := row.Scan(
		&job.ID, &job.UserID, &userRole, &job.Formato, &filtersJSON,
		&job.Progress, &job.TotalRecords,
		&filePath, &fileSize, &status, &errorMessage,
		&job.EnqueuedAt, &startedAt, &completedAt, &job.UpdatedAt,
	); err != nil {
		return domain.ExportJob{}, err
	}
	filters, err := domain.ExportFiltersFromJSON(filtersJSON)
	if err != nil {
		return domain.ExportJob{}, fmt.Errorf("unmarshal export filters: %w", err)
	}
	job.UserRole = domain.Role(userRole)
	job.Filters = filters
	job.Status = domain.ExportJobStatus(status)
	if filePath.Valid {
		value := filePath.String
		job.FilePath = &value
	}
	if fileSize.Valid {
		value := fileSize.Int64
		job.FileByteSize = &value
	}
	if errorMessage.Valid {
		value := errorMessage.String
		job.ErrorMessage = &value
	}
	if startedAt.Valid {
		value := startedAt.Time
		job.StartedAt = &value
	}
	if completedAt.Valid {
		value := completedAt.Time
		job.CompletedAt = &value
	}
	return job, nil
}
