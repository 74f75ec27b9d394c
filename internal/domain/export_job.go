package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ExportJobStatus captures lifecycle state for an export job.
type ExportJobStatus string

const (
	ExportJobStatusPending   ExportJobStatus = "PENDING"
	ExportJobStatusRunning   ExportJobStatus = "RUNNING"
	ExportJobStatusCompleted ExportJobStatus = "COMPLETED"
	ExportJobStatusFailed    ExportJobStatus = "FAILED"
	ExportJobStatusCancelled ExportJobStatus = "CANCELLED"
)

// ExportJob mirrors persisted export job metadata for workers and status
// endpoints. The ReportRun history entry is written separately once the
// artifact exists; the job row only tracks execution.
type ExportJob struct {
	ID            uuid.UUID       `json:"id"`
	UserID        string          `json:"user_id"`
	UserRole      Role            `json:"user_role"`
	Formato       string          `json:"formato"`
	Filters       FilterSpec      `json:"filters"`
	Progress      int             `json:"progress"`
	TotalRecords  int             `json:"total_records"`
	FilePath      *string         `json:"file_path,omitempty"`
	FileByteSize  *int64          `json:"file_byte_size,omitempty"`
	Status        ExportJobStatus `json:"status"`
	ErrorMessage  *string         `json:"error_message,omitempty"`
	EnqueuedAt    time.Time       `json:"enqueued_at"`
	StartedAt     *time.Time      `json:"started_at,omitempty"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Identity reconstructs the requesting identity persisted with the job.
func (j ExportJob) Identity() Identity {
	return Identity{ID: j.UserID, Role: j.UserRole}
}

// FiltersToJSON marshals the filter spec into the JSONB layout stored
// alongside the job row.
func (j ExportJob) FiltersToJSON() (json.RawMessage, error) {
	return json.Marshal(j.Filters)
}

// ExportFiltersFromJSON unmarshals a persisted filter spec.
func ExportFiltersFromJSON(data []byte) (FilterSpec, error) {
	if len(data) == 0 {
		return FilterSpec{}, nil
	}
	var spec FilterSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return FilterSpec{}, err
	}
	return spec, nil
}
