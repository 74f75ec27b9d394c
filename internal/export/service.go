package export

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rvaldes/tributario/internal/domain"
	"github.com/rvaldes/tributario/internal/reports"
	"github.com/rvaldes/tributario/internal/repository"
)

var errJobNotRunnable = errors.New("export job is no longer runnable")

// Service queues export jobs and runs each one on its own worker
// goroutine. The pipeline itself stays single-threaded per job; the worker
// only exists so the caller is never blocked on serialization.
type Service struct {
	reports *reports.Service
	jobRepo repository.ExportJobRepository

	exportDir  string
	jobTimeout time.Duration
	now        func() time.Time

	downloadSigner *downloadSigner

	workerCancels sync.Map // map[uuid.UUID]context.CancelFunc
}

type Option func(*Service)

func WithExportDirectory(dir string) Option {
	return func(s *Service) {
		if strings.TrimSpace(dir) != "" {
			s.exportDir = filepath.Clean(dir)
		}
	}
}

func WithJobTimeout(timeout time.Duration) Option {
	return func(s *Service) {
		if timeout > 0 {
			s.jobTimeout = timeout
		}
	}
}

// WithDownloadTokenTTL customizes the TTL for generated download links.
func WithDownloadTokenTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.downloadSigner = newDownloadSigner(ttl)
		}
	}
}

func NewService(reportService *reports.Service, jobRepo repository.ExportJobRepository, opts ...Option) *Service {
	service := &Service{
		reports:    reportService,
		jobRepo:    jobRepo,
		exportDir:  filepath.Join(os.TempDir(), "tributario-exports"),
		jobTimeout: 30 * time.Minute,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	if service.jobTimeout <= 0 {
		service.jobTimeout = 30 * time.Minute
	}
	if strings.TrimSpace(service.exportDir) == "" {
		service.exportDir = filepath.Join(os.TempDir(), "tributario-exports")
	}
	if service.downloadSigner == nil {
		service.downloadSigner = newDownloadSigner(5 * time.Minute)
	}
	if service.now == nil {
		service.now = time.Now
	}
	return service
}

// Queue persists a pending export job and launches its worker.
func (s *Service) Queue(ctx context.Context, identity domain.Identity, formato string, spec domain.FilterSpec) (domain.ExportJob, error) {
	if strings.TrimSpace(identity.ID) == "" {
		return domain.ExportJob{}, errors.New("identity is required")
	}
	if formato != domain.FormatCSV && formato != domain.FormatExcel {
		return domain.ExportJob{}, fmt.Errorf("unsupported export format %q", formato)
	}
	if err := spec.Validate(); err != nil {
		return domain.ExportJob{}, fmt.Errorf("validate filters: %w", err)
	}
	job := domain.ExportJob{
		UserID:   identity.ID,
		UserRole: identity.Role,
		Formato:  formato,
		Filters:  spec,
	}
	persisted, err := s.jobRepo.Create(ctx, job)
	if err != nil {
		return domain.ExportJob{}, err
	}
	s.launchWorker(persisted)
	return persisted, nil
}

func (s *Service) ListJobs(ctx context.Context, statuses []domain.ExportJobStatus, limit, offset int) ([]domain.ExportJob, error) {
	return s.jobRepo.List(ctx, statuses, limit, offset)
}

// GetJob returns the metadata for a single export job.
func (s *Service) GetJob(ctx context.Context, id uuid.UUID) (domain.ExportJob, error) {
	if id == uuid.Nil {
		return domain.ExportJob{}, errors.New("job ID is required")
	}
	return s.jobRepo.GetByID(ctx, id)
}

// BuildDownloadURL signs a short-lived download URL for completed export files.
func (s *Service) BuildDownloadURL(job domain.ExportJob) (*string, error) {
	if job.Status != domain.ExportJobStatusCompleted {
		return nil, nil
	}
	if job.FilePath == nil || strings.TrimSpace(*job.FilePath) == "" {
		return nil, nil
	}
	if s.downloadSigner == nil {
		return nil, errors.New("download signer not configured")
	}
	token := s.downloadSigner.Sign(job.ID, s.now())
	values := url.Values{}
	values.Set("token", token)
	download := fmt.Sprintf("/exports/files/%s?%s", job.ID.String(), values.Encode())
	return &download, nil
}

// ValidateDownloadToken ensures the token is valid for the given job.
func (s *Service) ValidateDownloadToken(jobID uuid.UUID, token string) error {
	if s.downloadSigner == nil {
		return errors.New("download signer not configured")
	}
	return s.downloadSigner.Verify(jobID, token, s.now())
}

// OpenJobFile opens the completed export file for streaming to the client.
func (s *Service) OpenJobFile(job domain.ExportJob) (*os.File, error) {
	if job.Status != domain.ExportJobStatusCompleted {
		return nil, errors.New("export is not completed")
	}
	if job.FilePath == nil || strings.TrimSpace(*job.FilePath) == "" {
		return nil, errors.New("export file is unavailable")
	}
	file, err := os.Open(*job.FilePath)
	if err != nil {
		return nil, fmt.Errorf("open export file: %w", err)
	}
	return file, nil
}

// CancelJob requests cooperative cancellation for a pending or running job.
func (s *Service) CancelJob(ctx context.Context, id uuid.UUID) (domain.ExportJob, error) {
	if id == uuid.Nil {
		return domain.ExportJob{}, errors.New("job ID is required")
	}
	job, err := s.jobRepo.GetByID(ctx, id)
	if err != nil {
		return domain.ExportJob{}, err
	}
	if job.Status != domain.ExportJobStatusPending && job.Status != domain.ExportJobStatusRunning {
		return job, fmt.Errorf("export job in status %s cannot be cancelled", job.Status)
	}
	reason := "Cancelado por el usuario"
	if err := s.jobRepo.MarkCancelled(ctx, id, reason); err != nil {
		if errors.Is(err, repository.ErrExportJobStatusConflict) {
			updated, getErr := s.jobRepo.GetByID(ctx, id)
			if getErr != nil {
				return domain.ExportJob{}, getErr
			}
			return updated, nil
		}
		return domain.ExportJob{}, err
	}
	if cancel, ok := s.workerCancels.LoadAndDelete(id); ok {
		if fn, okCast := cancel.(context.CancelFunc); okCast {
			fn()
		}
	}
	return s.jobRepo.GetByID(ctx, id)
}

func (s *Service) launchWorker(job domain.ExportJob) {
	baseCtx, baseCancel := context.WithCancel(context.Background())
	ctx := baseCtx
	cancelFunc := baseCancel
	if s.jobTimeout > 0 {
		timeoutCtx, timeoutCancel := context.WithTimeout(baseCtx, s.jobTimeout)
		ctx = timeoutCtx
		cancelFunc = func() {
			timeoutCancel()
			baseCancel()
		}
	}
	s.workerCancels.Store(job.ID, cancelFunc)
	go func() {
		defer func() {
			cancelFunc()
			s.workerCancels.Delete(job.ID)
		}()
		defer func() {
			if rec := recover(); rec != nil {
				err := fmt.Errorf("panic: %v", rec)
				log.Printf("[export] panic while processing job %s: %v", job.ID, rec)
				s.failJob(context.Background(), job.ID, err)
			}
		}()
		if err := s.runExport(ctx, job); err != nil {
			switch {
			case errors.Is(err, context.Canceled):
				log.Printf("[export] job %s cancelled", job.ID)
			case errors.Is(err, errJobNotRunnable):
				log.Printf("[export] job %s not runnable, skipping", job.ID)
			default:
				s.failJob(ctx, job.ID, err)
			}
		}
	}()
}

func (s *Service) failJob(ctx context.Context, jobID uuid.UUID, err error) {
	if err == nil {
		return
	}
	if ctx == nil || ctx.Err() != nil {
		ctx = context.Background()
	}
	message := truncateError(err)
	if markErr := s.jobRepo.MarkFailed(ctx, jobID, message); markErr != nil {
		log.Printf("[export] failed to mark job %s as failed: %v (original error: %v)", jobID, markErr, err)
		return
	}
	log.Printf("[export] job %s failed: %v", jobID, err)
}

func (s *Service) runExport(ctx context.Context, job domain.ExportJob) error {
	if err := s.jobRepo.MarkRunning(ctx, job.ID); err != nil {
		if errors.Is(err, repository.ErrExportJobStatusConflict) {
			return errJobNotRunnable
		}
		return fmt.Errorf("mark export job running: %w", err)
	}
	if err := s.ensureExportDirectory(); err != nil {
		return err
	}

	identity := job.Identity()
	result := s.reports.FetchFiltered(ctx, job.Filters, identity)
	if ctx.Err() != nil {
		return ctx.Err()
	}

	finalPath := filepath.Join(s.exportDir, s.finalFileName(job))
	req := reports.ExportRequest{
		FilePath: finalPath,
		Records:  result.Records,
		Filters:  job.Filters,
		Identity: identity,
		Progress: func(percent int) {
			if err := s.jobRepo.UpdateProgress(ctx, job.ID, percent); err != nil {
				log.Printf("[export] failed to update progress for job %s: %v", job.ID, err)
			}
		},
	}

	var exportResult reports.ExportResult
	switch job.Formato {
	case domain.FormatExcel:
		exportResult = s.reports.ExportExcel(ctx, req)
	default:
		exportResult = s.reports.ExportCSV(ctx, req)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if !exportResult.Success {
		return errors.New(exportResult.Message)
	}

	info, err := os.Stat(finalPath)
	if err != nil {
		return fmt.Errorf("stat export file: %w", err)
	}
	size := info.Size()
	if err := s.jobRepo.MarkCompleted(ctx, job.ID, repository.ExportJobResult{
		TotalRecords: exportResult.TotalRegistros,
		FilePath:     &finalPath,
		FileByteSize: &size,
	}); err != nil {
		return fmt.Errorf("mark export completed: %w", err)
	}
	log.Printf("[export] job %s completed (rows=%d path=%s)", job.ID, exportResult.TotalRegistros, finalPath)
	return nil
}

func (s *Service) ensureExportDirectory() error {
	if strings.TrimSpace(s.exportDir) == "" {
		return errors.New("export directory is not configured")
	}
	if err := os.MkdirAll(s.exportDir, 0o755); err != nil {
		return fmt.Errorf("ensure export directory: %w", err)
	}
	return nil
}

func (s *Service) finalFileName(job domain.ExportJob) string {
	ext := "csv"
	if job.Formato == domain.FormatExcel {
		ext = "xlsx"
	}
	return fmt.Sprintf("calificaciones-%s.%s", job.ID.String(), ext)
}

func truncateError(err error) string {
	if err == nil {
		return ""
	}
	const maxLen = 512
	msg := err.Error()
	if len(msg) > maxLen {
		return msg[:maxLen]
	}
	return msg
}

type downloadSigner struct {
	secret []byte
	ttl    time.Duration
}

func newDownloadSigner(ttl time.Duration) *downloadSigner {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &downloadSigner{secret: []byte(uuid.New().String()), ttl: ttl}
}

func (s *downloadSigner) Sign(jobID uuid.UUID, now time.Time) string {
	expires := now.Add(s.ttl).Unix()
	payload := fmt.Sprintf("%s:%d", jobID.String(), expires)
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(payload))
	signature := hex.EncodeToString(mac.Sum(nil))
	raw := fmt.Sprintf("%s:%s", payload, signature)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func (s *downloadSigner) Verify(jobID uuid.UUID, token string, now time.Time) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("missing download token")
	}
	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return fmt.Errorf("decode token: %w", err)
	}
	parts := strings.Split(string(decoded), ":")
	if len(parts) != 3 {
		return errors.New("invalid token format")
	}
	if parts[0] != jobID.String() {
		return errors.New("token does not match export job")
	}
	expires, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid token expiration: %w", err)
	}
	if now.Unix() > expires {
		return errors.New("download token expired")
	}
	payload := fmt.Sprintf("%s:%s", parts[0], parts[1])
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(payload))
	expected := mac.Sum(nil)
	provided, err := hex.DecodeString(parts[2])
	if err != nil {
		return fmt.Errorf("invalid token signature: %w", err)
	}
	if !hmac.Equal(expected, provided) {
		return errors.New("invalid download token")
	}
	return nil
}
