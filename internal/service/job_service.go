package service

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mediatrack-api/internal/models"
	"github.com/mediatrack-api/internal/repository"
)

// jobService is the concrete implementation of JobService
type jobService struct {
	jobRepo       repository.JobRepository
	importService ImportService
	log           zerolog.Logger
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	running       bool
	mu            sync.Mutex
	// Semaphore: buffered channel bounding concurrent job processing.
	// Each job runs on exactly one worker; different jobs, including
	// several for the same user, may run in parallel.
	sem chan struct{}
}

// newJobService creates a new JobService with a worker pool sized for
// I/O-bound work
func newJobService(jobRepo repository.JobRepository, log zerolog.Logger) *jobService {
	// Imports spend most of their time waiting on the database, so more
	// workers than cores is fine; capped to keep connection usage sane.
	maxWorkers := runtime.NumCPU() * 4
	if maxWorkers < 4 {
		maxWorkers = 4
	}
	if maxWorkers > 32 {
		maxWorkers = 32
	}

	log.Info().Int("max_workers", maxWorkers).Msg("Initializing import worker pool")

	return &jobService{
		jobRepo: jobRepo,
		log:     log.With().Str("service", "job").Logger(),
		sem:     make(chan struct{}, maxWorkers),
	}
}

// SetImportService sets the import service for job processing
func (s *jobService) SetImportService(importService ImportService) {
	s.importService = importService
}

// StartProcessor starts the background job processor
func (s *jobService) StartProcessor(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.log.Info().Msg("Job processor started")

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			s.log.Info().Msg("Job processor stopping")
			return
		case <-ticker.C:
			s.processPendingJobs()
		}
	}
}

// StopProcessor stops the background job processor and waits for in-flight
// jobs
func (s *jobService) StopProcessor() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	s.cancel()
	s.wg.Wait()
	s.running = false
	s.log.Info().Msg("Job processor stopped")
}

// processPendingJobs claims and dispatches pending jobs
func (s *jobService) processPendingJobs() {
	jobs, err := s.jobRepo.GetPending(s.ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to get pending jobs")
		return
	}

	for _, job := range jobs {
		// Acquire a worker slot; blocks for backpressure rather than
		// spawning unbounded goroutines
		select {
		case s.sem <- struct{}{}:
		case <-s.ctx.Done():
			return
		}

		// Atomic claim: a pending job that was cancelled or picked up
		// by another worker in the meantime is skipped
		marked, err := s.jobRepo.MarkProcessing(s.ctx, job.ID)
		if err != nil || !marked {
			<-s.sem
			continue
		}

		s.wg.Add(1)
		go func(j *models.ImportJob) {
			defer s.wg.Done()
			defer func() { <-s.sem }()

			// A panicking import must not crash the process or leave
			// the job stuck in processing
			defer func() {
				if r := recover(); r != nil {
					s.log.Error().
						Interface("panic", r).
						Str("job_id", j.ID.String()).
						Msg("Job processing panicked - recovered")
					s.jobRepo.Finalize(s.ctx, j, models.JobStatusFailed)
				}
			}()

			if s.importService == nil {
				return
			}
			if err := s.importService.ProcessImport(s.ctx, j); err != nil {
				s.log.Error().Err(err).Str("job_id", j.ID.String()).Msg("Import processing failed")
			}
		}(job)
	}
}

// GetJob retrieves a job with its error list, scoped to the owning user
func (s *jobService) GetJob(ctx context.Context, id, userID uuid.UUID) (*models.JobStatusResponse, error) {
	job, err := s.jobRepo.GetByID(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, ErrJobNotFound
	}

	errs, err := s.jobRepo.GetErrors(ctx, id, 100)
	if err != nil {
		s.log.Error().Err(err).Str("job_id", id.String()).Msg("Failed to get job errors")
	}
	if errs == nil {
		errs = []models.RowError{}
	}

	return &models.JobStatusResponse{
		ImportJob: *job,
		Errors:    errs,
	}, nil
}

// CancelJob cancels a pending or processing job. Requests against terminal
// jobs fail with ErrJobTerminal rather than being silently ignored.
func (s *jobService) CancelJob(ctx context.Context, id, userID uuid.UUID) error {
	job, err := s.jobRepo.GetByID(ctx, id, userID)
	if err != nil {
		return err
	}
	if job == nil {
		return ErrJobNotFound
	}
	if job.Status.Terminal() {
		return ErrJobTerminal
	}

	cancelled, err := s.jobRepo.Cancel(ctx, id, userID)
	if err != nil {
		return err
	}
	if !cancelled {
		// Lost the race with job completion
		return ErrJobTerminal
	}

	s.log.Info().Str("job_id", id.String()).Msg("Import job cancelled")
	return nil
}

// GetHistory returns the user's import history, newest first
func (s *jobService) GetHistory(ctx context.Context, userID uuid.UUID, page, pageSize int) (*models.HistoryResponse, error) {
	total, err := s.jobRepo.CountByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	items, err := s.jobRepo.ListByUser(ctx, userID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []models.HistoryItem{}
	}

	return &models.HistoryResponse{
		Imports:  items,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}, nil
}
