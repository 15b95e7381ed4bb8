package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mediatrack-api/internal/config"
	"github.com/mediatrack-api/internal/models"
	"github.com/mediatrack-api/internal/repository"
	"github.com/mediatrack-api/internal/titleparse"
	"github.com/mediatrack-api/internal/validation"
)

// csvPlatform tags rows ingested from the vendor viewing-history export
const csvPlatform = "netflix"

// importService is the concrete implementation of ImportService
type importService struct {
	repos   *repository.Repositories
	matcher Matcher
	cfg     *config.Config
	log     zerolog.Logger
}

// newImportService creates a new ImportService
func newImportService(repos *repository.Repositories, matcher Matcher, cfg *config.Config, log zerolog.Logger) *importService {
	return &importService{
		repos:   repos,
		matcher: matcher,
		cfg:     cfg,
		log:     log.With().Str("service", "import").Logger(),
	}
}

// Fingerprint computes the content fingerprint used for job-level
// deduplication
func Fingerprint(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// CreateImportJob validates the upload request, applies the duplicate-upload
// policy and persists a pending ledger entry. Request-rejection errors
// (oversize, duplicate under the reject policy) create no job.
func (s *importService) CreateImportJob(ctx context.Context, userID uuid.UUID, filename string, content []byte) (*models.ImportJob, error) {
	if int64(len(content)) > s.cfg.Import.MaxFileSize {
		return nil, &validation.Error{
			Code:    validation.CodeFileTooLarge,
			Message: fmt.Sprintf("file too large, maximum size is %d MB", s.cfg.Import.MaxFileSize/(1024*1024)),
		}
	}
	if len(content) == 0 {
		return nil, &validation.Error{Code: validation.CodeEmptyFile, Message: "empty file uploaded"}
	}

	hash := Fingerprint(content)
	prior, err := s.repos.Job.FindSuccessfulByHash(ctx, userID, hash)
	if err != nil {
		return nil, fmt.Errorf("fingerprint lookup failed: %w", err)
	}
	if prior != nil {
		if s.cfg.Import.DuplicatePolicy == config.DuplicateReject {
			return nil, fmt.Errorf("%w (job %s)", ErrDuplicateFile, prior.ID)
		}
		s.log.Warn().
			Str("user_id", userID.String()).
			Str("prior_job_id", prior.ID.String()).
			Msg("Duplicate fingerprint re-imported under warn policy")
	}

	jobID := uuid.New()
	if err := os.MkdirAll(s.cfg.Import.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create upload directory: %w", err)
	}
	filePath := filepath.Join(s.cfg.Import.UploadDir, jobID.String()+".csv")
	if err := os.WriteFile(filePath, content, 0o600); err != nil {
		return nil, fmt.Errorf("cannot persist upload: %w", err)
	}

	job := &models.ImportJob{
		ID:        jobID,
		UserID:    userID,
		Source:    models.SourceNetflixCSV,
		Status:    models.JobStatusPending,
		TotalRows: estimateRows(content),
		Filename:  filepath.Base(filename),
		FileSize:  int64(len(content)),
		FileHash:  hash,
		FilePath:  filePath,
		CreatedAt: time.Now(),
	}

	if err := s.repos.Job.Create(ctx, job); err != nil {
		os.Remove(filePath)
		return nil, fmt.Errorf("cannot create import job: %w", err)
	}

	s.log.Info().
		Str("job_id", job.ID.String()).
		Str("user_id", userID.String()).
		Str("filename", job.Filename).
		Int64("size_bytes", job.FileSize).
		Int("estimated_rows", job.TotalRows).
		Msg("Import job created")

	return job, nil
}

// estimateRows is a cheap newline count over the raw bytes; the sanitizer
// later establishes the exact total.
func estimateRows(content []byte) int {
	n := validation.CountDataRows(string(content))
	if n < 0 {
		return 0
	}
	return n
}

// ProcessImport runs the row loop for a job already marked processing. Row
// failures are recorded and never abort the loop; file-level validation
// failures and infrastructure errors transition the job to failed while
// preserving whatever was last persisted.
func (s *importService) ProcessImport(ctx context.Context, job *models.ImportJob) error {
	log := s.log.With().Str("job_id", job.ID.String()).Logger()

	content, err := os.ReadFile(job.FilePath)
	if err != nil {
		return s.failJob(ctx, job, fmt.Sprintf("cannot read uploaded file: %v", err))
	}

	v := validation.NewValidator(s.cfg.Import.MaxFileSize, s.cfg.Import.MaxRows, s.cfg.Import.MaxCellLength)
	file, verr := v.ValidateFile(content)
	if verr != nil {
		log.Warn().Str("code", string(verr.Code)).Msg("Upload failed validation")
		return s.failJob(ctx, job, verr.Error())
	}

	job.TotalRows = len(file.Records)

	// Sanitizer warnings land in the error list but do not fail rows
	var buf []models.RowError
	for _, w := range file.Warnings {
		buf = append(buf, models.RowError{Row: w.Row, Error: "warning: " + w.Message})
	}

	log.Info().Int("total_rows", job.TotalRows).Msg("Starting import processing")

	flushEvery := s.cfg.Import.ProgressFlushRows
	start := time.Now()

	for i, record := range file.Records {
		rowNum := i + 1

		// Cooperative cancellation, checked before every row. The status
		// read is a single primary-key select; no row starts once the
		// cancellation is visible. Progress updates are status-guarded,
		// so counters persisted before the cancellation never move
		// afterwards.
		status, serr := s.repos.Job.GetStatus(ctx, job.ID)
		if serr == nil && status == models.JobStatusCancelled {
			log.Info().Int("processed", job.ProcessedRows).Msg("Cancellation observed, stopping row loop")
			if len(buf) > 0 {
				if aerr := s.repos.Job.AddErrors(ctx, job.ID, buf); aerr != nil {
					log.Error().Err(aerr).Msg("Failed to persist row errors for cancelled job")
				}
			}
			s.cleanupUpload(job)
			return nil
		}
		select {
		case <-ctx.Done():
			return s.failJobDetached(job, "processing interrupted by shutdown")
		default:
		}

		rawRow := strings.Join(record, ",")
		rowErr := s.processRow(ctx, job, file, record)
		job.ProcessedRows++
		if rowErr != nil {
			job.FailedRows++
			buf = append(buf, models.RowError{Row: rowNum, Error: rowErr.Error(), Data: rawRow})
		} else {
			job.SuccessfulRows++
		}

		if rowNum%flushEvery == 0 {
			if err := s.flushProgress(ctx, job, &buf); err != nil {
				log.Error().Err(err).Msg("Ledger persistence failed mid-job")
				return s.failJobDetached(job, fmt.Sprintf("storage unavailable: %v", err))
			}
		}
	}

	if err := s.flushProgress(ctx, job, &buf); err != nil {
		log.Error().Err(err).Msg("Ledger persistence failed at completion")
		return s.failJobDetached(job, fmt.Sprintf("storage unavailable: %v", err))
	}

	var final models.JobStatus
	switch {
	case job.FailedRows == 0:
		final = models.JobStatusCompleted
	case job.SuccessfulRows == 0:
		final = models.JobStatusFailed
	default:
		final = models.JobStatusPartial
	}

	if err := s.repos.Job.Finalize(ctx, job, final); err != nil {
		return fmt.Errorf("cannot finalize job: %w", err)
	}
	s.cleanupUpload(job)

	log.Info().
		Str("status", string(final)).
		Int("total", job.TotalRows).
		Int("successful", job.SuccessfulRows).
		Int("failed", job.FailedRows).
		Dur("duration", time.Since(start)).
		Msg("Import finished")

	return nil
}

// processRow takes one sanitized record through the title parser and matcher
func (s *importService) processRow(ctx context.Context, job *models.ImportJob, file *validation.File, record []string) error {
	// The formula-neutralization prefix is a re-export safety measure, not
	// part of the title
	title := validation.StripFormulaGuard(file.Field(record, "title"))
	if title == "" {
		return fmt.Errorf("missing title")
	}

	desc, err := titleparse.Parse(title)
	if err != nil {
		return err
	}

	var consumed *time.Time
	if dateStr := file.Field(record, "date"); dateStr != "" {
		t, err := titleparse.ParseDate(dateStr, s.cfg.Import.DateOrder)
		if err != nil {
			return err
		}
		consumed = &t
	}

	_, _, err = s.matcher.Match(ctx, job.UserID, desc, MatchInput{
		Platform:   csvPlatform,
		ConsumedOn: consumed,
		Source:     job.Source,
		JobID:      &job.ID,
		RawRow:     strings.Join(record, ","),
	})
	return err
}

// flushProgress persists accumulated row errors and counters. The buffer is
// reset so error memory stays bounded regardless of failure rate.
func (s *importService) flushProgress(ctx context.Context, job *models.ImportJob, buf *[]models.RowError) error {
	if len(*buf) > 0 {
		if err := s.repos.Job.AddErrors(ctx, job.ID, *buf); err != nil {
			return err
		}
		*buf = (*buf)[:0]
	}
	return s.repos.Job.UpdateProgress(ctx, job)
}

// failJob records a single ledger-level error and moves the job to failed
func (s *importService) failJob(ctx context.Context, job *models.ImportJob, reason string) error {
	if err := s.repos.Job.AddErrors(ctx, job.ID, []models.RowError{{Row: 0, Error: reason}}); err != nil {
		s.log.Error().Err(err).Str("job_id", job.ID.String()).Msg("Failed to record job error")
	}
	if err := s.repos.Job.Finalize(ctx, job, models.JobStatusFailed); err != nil {
		return fmt.Errorf("cannot mark job failed: %w", err)
	}
	s.cleanupUpload(job)
	return fmt.Errorf("import job failed: %s", reason)
}

// failJobDetached is failJob on a fresh context, for paths where the request
// context itself is the casualty (shutdown, storage failure). Best effort: a
// job must not be left in processing forever.
func (s *importService) failJobDetached(job *models.ImportJob, reason string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.failJob(ctx, job, reason)
}

func (s *importService) cleanupUpload(job *models.ImportJob) {
	if job.FilePath == "" {
		return
	}
	if err := os.Remove(job.FilePath); err != nil && !os.IsNotExist(err) {
		s.log.Debug().Err(err).Str("job_id", job.ID.String()).Msg("Could not remove uploaded file")
	}
}

// ManualAdd records a single structured item. It skips the sanitizer and
// title parser but flows through the matcher and the same ledger state
// machine as a one-row import.
func (s *importService) ManualAdd(ctx context.Context, userID uuid.UUID, req *models.ManualAddRequest) (*models.ManualAddResponse, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}

	kind := models.KindMovie
	if req.Kind == "series" {
		kind = models.KindSeries
	}

	var consumed *time.Time
	if req.ConsumedAt != "" {
		t, err := titleparse.ParseDate(req.ConsumedAt, s.cfg.Import.DateOrder)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid consumed_at: %v", ErrInvalidInput, err)
		}
		consumed = &t
	}

	job := &models.ImportJob{
		ID:        uuid.New(),
		UserID:    userID,
		Source:    models.SourceManual,
		Status:    models.JobStatusPending,
		TotalRows: 1,
		CreatedAt: time.Now(),
	}
	if err := s.repos.Job.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("cannot create ledger entry: %w", err)
	}
	if _, err := s.repos.Job.MarkProcessing(ctx, job.ID); err != nil {
		return nil, fmt.Errorf("cannot claim ledger entry: %w", err)
	}

	desc := &titleparse.Descriptor{Title: title, Kind: kind}
	entry, inserted, err := s.matcher.Match(ctx, userID, desc, MatchInput{
		Platform:   strings.ToLower(strings.TrimSpace(req.Platform)),
		ConsumedOn: consumed,
		Source:     models.SourceManual,
		JobID:      &job.ID,
		RawRow:     req.Notes,
	})

	job.ProcessedRows = 1
	if err != nil {
		job.FailedRows = 1
		if ferr := s.failJob(ctx, job, err.Error()); ferr != nil {
			s.log.Error().Err(ferr).Str("job_id", job.ID.String()).Msg("Failed to finalize manual add")
		}
		return nil, err
	}
	job.SuccessfulRows = 1
	if err := s.repos.Job.Finalize(ctx, job, models.JobStatusCompleted); err != nil {
		return nil, fmt.Errorf("cannot finalize ledger entry: %w", err)
	}

	message := "Media added successfully"
	if !inserted {
		message = "Already recorded, nothing added"
	}

	return &models.ManualAddResponse{
		Success:      true,
		CatalogID:    entry.ID,
		MatchedTitle: entry.Title,
		Message:      message,
	}, nil
}
