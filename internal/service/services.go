package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mediatrack-api/internal/config"
	"github.com/mediatrack-api/internal/models"
	"github.com/mediatrack-api/internal/repository"
	"github.com/mediatrack-api/internal/titleparse"
)

// Sentinel errors surfaced to the API layer
var (
	// ErrJobNotFound covers both absent jobs and jobs owned by another user
	ErrJobNotFound = errors.New("import job not found")
	// ErrJobTerminal is returned for cancellation requests against jobs
	// that already reached a terminal state
	ErrJobTerminal = errors.New("import job already finished")
	// ErrDuplicateFile is returned under the reject policy when the same
	// content fingerprint was already imported successfully by this user
	ErrDuplicateFile = errors.New("identical file already imported")
	// ErrInvalidInput marks request payloads rejected before any
	// processing, as opposed to infrastructure failures
	ErrInvalidInput = errors.New("invalid input")
)

// ImportService drives uploads through the ingestion pipeline
type ImportService interface {
	// CreateImportJob validates the request, applies fingerprint
	// deduplication and persists a pending ledger entry
	CreateImportJob(ctx context.Context, userID uuid.UUID, filename string, content []byte) (*models.ImportJob, error)
	// ProcessImport runs the row loop for a job already claimed as
	// processing
	ProcessImport(ctx context.Context, job *models.ImportJob) error
	// ManualAdd records a single structured item, bypassing the sanitizer
	// and title parser but still going through the matcher
	ManualAdd(ctx context.Context, userID uuid.UUID, req *models.ManualAddRequest) (*models.ManualAddResponse, error)
}

// JobService manages the ledger surface and background scheduling
type JobService interface {
	StartProcessor(ctx context.Context)
	StopProcessor()
	GetJob(ctx context.Context, id, userID uuid.UUID) (*models.JobStatusResponse, error)
	CancelJob(ctx context.Context, id, userID uuid.UUID) error
	GetHistory(ctx context.Context, userID uuid.UUID, page, pageSize int) (*models.HistoryResponse, error)
	SetImportService(importService ImportService)
}

// MatchInput carries the per-record context for a Matcher call
type MatchInput struct {
	Platform   string
	ConsumedOn *time.Time
	Source     models.ImportSource
	JobID      *uuid.UUID
	RawRow     string
}

// Matcher resolves a parsed descriptor to a catalog entry and upserts the
// consumption record
type Matcher interface {
	Match(ctx context.Context, userID uuid.UUID, desc *titleparse.Descriptor, in MatchInput) (*models.CatalogEntry, bool, error)
}

// Services holds all service interfaces
type Services struct {
	Import  ImportService
	Job     JobService
	Matcher Matcher
}

// NewServices creates all services
func NewServices(repos *repository.Repositories, cfg *config.Config, log zerolog.Logger) *Services {
	matcher := newMatcher(repos.Catalog, repos.Consumption, log)
	jobSvc := newJobService(repos.Job, log)
	importSvc := newImportService(repos, matcher, cfg, log)

	// Wire up job processor to import service
	jobSvc.SetImportService(importSvc)

	return &Services{
		Import:  importSvc,
		Job:     jobSvc,
		Matcher: matcher,
	}
}
