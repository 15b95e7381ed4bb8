package models

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the lifecycle state of an import job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusPartial    JobStatus = "partial"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Terminal reports whether no further transition is defined out of s.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusPartial, JobStatusFailed, JobStatusCancelled:
		return true
	case JobStatusPending, JobStatusProcessing:
		return false
	}
	return false
}

// ImportSource represents where an import job originated
type ImportSource string

const (
	SourceNetflixCSV ImportSource = "netflix_csv"
	SourceManual     ImportSource = "manual"
)

// ImportJob is the durable ledger record for one upload attempt.
//
// Counter invariants, held at every persisted point:
// successful_rows + failed_rows = processed_rows <= total_rows. Once the
// status is terminal the record is immutable.
type ImportJob struct {
	ID             uuid.UUID    `json:"job_id" db:"id"`
	UserID         uuid.UUID    `json:"-" db:"user_id"`
	Source         ImportSource `json:"source" db:"source"`
	Status         JobStatus    `json:"status" db:"status"`
	TotalRows      int          `json:"total_rows" db:"total_rows"`
	ProcessedRows  int          `json:"processed_rows" db:"processed_rows"`
	SuccessfulRows int          `json:"successful_rows" db:"successful_rows"`
	FailedRows     int          `json:"failed_rows" db:"failed_rows"`
	Filename       string       `json:"filename,omitempty" db:"filename"`
	FileSize       int64        `json:"file_size,omitempty" db:"file_size"`
	FileHash       string       `json:"-" db:"file_hash"`
	FilePath       string       `json:"-" db:"file_path"`
	CreatedAt      time.Time    `json:"created_at" db:"created_at"`
	StartedAt      *time.Time   `json:"started_at,omitempty" db:"started_at"`
	CompletedAt    *time.Time   `json:"completed_at,omitempty" db:"completed_at"`
}

// RowError is a failure scoped to a single input row. Row numbers are 1-based
// over the data rows, excluding the header.
type RowError struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
	Data  string `json:"data,omitempty"`
}

// UploadResponse is the API response for a CSV upload
type UploadResponse struct {
	JobID         uuid.UUID `json:"job_id"`
	Status        JobStatus `json:"status"`
	EstimatedRows int       `json:"estimated_rows"`
	Message       string    `json:"message,omitempty"`
}

// JobStatusResponse is the API response for a job status query
type JobStatusResponse struct {
	ImportJob
	Errors []RowError `json:"errors"`
}

// HistoryItem is one entry in a user's import history
type HistoryItem struct {
	JobID          uuid.UUID    `json:"job_id"`
	Source         ImportSource `json:"source"`
	Status         JobStatus    `json:"status"`
	TotalRows      int          `json:"total_rows"`
	SuccessfulRows int          `json:"successful_rows"`
	FailedRows     int          `json:"failed_rows"`
	CreatedAt      time.Time    `json:"created_at"`
	CompletedAt    *time.Time   `json:"completed_at,omitempty"`
}

// HistoryResponse is the paginated import history
type HistoryResponse struct {
	Imports  []HistoryItem `json:"imports"`
	Total    int           `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
}
