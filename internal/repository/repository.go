package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/mediatrack-api/internal/database"
	"github.com/mediatrack-api/internal/models"
)

// JobRepository is the durable ledger for import jobs
type JobRepository interface {
	Create(ctx context.Context, job *models.ImportJob) error
	// GetByID is scoped to the owning user; a job owned by someone else
	// behaves as not found.
	GetByID(ctx context.Context, id, userID uuid.UUID) (*models.ImportJob, error)
	GetPending(ctx context.Context) ([]*models.ImportJob, error)
	// MarkProcessing atomically claims a pending job for a worker
	MarkProcessing(ctx context.Context, jobID uuid.UUID) (bool, error)
	// UpdateProgress persists counters for a job still in processing. A
	// concurrent cancellation makes this a no-op rather than an error.
	UpdateProgress(ctx context.Context, job *models.ImportJob) error
	// Finalize writes the terminal state. It only applies while the job is
	// still processing, so it can never overwrite a cancellation.
	Finalize(ctx context.Context, job *models.ImportJob, status models.JobStatus) error
	// Cancel transitions a pending or processing job to cancelled
	Cancel(ctx context.Context, id, userID uuid.UUID) (bool, error)
	// GetStatus is the cheap cancellation poll used between rows
	GetStatus(ctx context.Context, jobID uuid.UUID) (models.JobStatus, error)
	// FindSuccessfulByHash locates a prior successful import of the same
	// content fingerprint by the same user
	FindSuccessfulByHash(ctx context.Context, userID uuid.UUID, hash string) (*models.ImportJob, error)
	AddErrors(ctx context.Context, jobID uuid.UUID, errs []models.RowError) error
	GetErrors(ctx context.Context, jobID uuid.UUID, limit int) ([]models.RowError, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.HistoryItem, error)
	CountByUser(ctx context.Context, userID uuid.UUID) (int, error)
}

// CatalogRepository manages the shared media catalog
type CatalogRepository interface {
	// GetOrCreate resolves a normalized title to exactly one catalog entry.
	// The lookup and insert are a single atomic statement; two jobs racing
	// on the same title converge on one row.
	GetOrCreate(ctx context.Context, entry *models.CatalogEntry) (*models.CatalogEntry, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.CatalogEntry, error)
}

// ConsumptionRepository manages per-user consumption records
type ConsumptionRepository interface {
	// Upsert inserts a consumption record, or no-ops when the identical
	// (user, entry, date, episode metadata) tuple already exists. The bool
	// reports whether a new row was written.
	Upsert(ctx context.Context, rec *models.ConsumptionRecord) (bool, error)
	CountByJob(ctx context.Context, jobID uuid.UUID) (int, error)
}

// Repositories holds all repository interfaces
type Repositories struct {
	Job         JobRepository
	Catalog     CatalogRepository
	Consumption ConsumptionRepository
}

// New creates all repositories with the given database connection
func New(db *database.DB) *Repositories {
	return &Repositories{
		Job:         NewJobRepo(db),
		Catalog:     NewCatalogRepo(db),
		Consumption: NewConsumptionRepo(db),
	}
}
