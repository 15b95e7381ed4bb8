package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mediatrack-api/internal/mocks"
	"github.com/mediatrack-api/internal/models"
)

func seedJob(t *testing.T, repo *mocks.MockJobRepository, userID uuid.UUID, status models.JobStatus) *models.ImportJob {
	t.Helper()
	job := &models.ImportJob{
		ID:        uuid.New(),
		UserID:    userID,
		Source:    models.SourceNetflixCSV,
		Status:    status,
		CreatedAt: time.Now(),
	}
	if err := repo.Create(context.Background(), job); err != nil {
		t.Fatalf("seed job: %v", err)
	}
	return job
}

func TestGetJob(t *testing.T) {
	repo := mocks.NewMockJobRepository()
	svc := newJobService(repo, zerolog.Nop())
	userID := uuid.New()
	job := seedJob(t, repo, userID, models.JobStatusCompleted)
	repo.AddErrors(context.Background(), job.ID, []models.RowError{{Row: 3, Error: "missing title"}})

	resp, err := svc.GetJob(context.Background(), job.ID, userID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if resp.ID != job.ID {
		t.Errorf("job ID = %s, want %s", resp.ID, job.ID)
	}
	if len(resp.Errors) != 1 || resp.Errors[0].Row != 3 {
		t.Errorf("errors = %+v", resp.Errors)
	}
}

func TestGetJobNotFound(t *testing.T) {
	repo := mocks.NewMockJobRepository()
	svc := newJobService(repo, zerolog.Nop())
	userID := uuid.New()
	job := seedJob(t, repo, userID, models.JobStatusCompleted)

	if _, err := svc.GetJob(context.Background(), uuid.New(), userID); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("unknown job: err = %v, want ErrJobNotFound", err)
	}

	// Another user's job behaves as not found, not as forbidden
	if _, err := svc.GetJob(context.Background(), job.ID, uuid.New()); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("foreign job: err = %v, want ErrJobNotFound", err)
	}
}

func TestGetJobEmptyErrorList(t *testing.T) {
	repo := mocks.NewMockJobRepository()
	svc := newJobService(repo, zerolog.Nop())
	userID := uuid.New()
	job := seedJob(t, repo, userID, models.JobStatusPending)

	resp, err := svc.GetJob(context.Background(), job.ID, userID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if resp.Errors == nil {
		t.Error("error list must be an empty slice, not nil")
	}
}

func TestCancelJob(t *testing.T) {
	tests := []struct {
		name    string
		status  models.JobStatus
		wantErr error
	}{
		{name: "pending job cancels", status: models.JobStatusPending},
		{name: "processing job cancels", status: models.JobStatusProcessing},
		{name: "completed job refuses", status: models.JobStatusCompleted, wantErr: ErrJobTerminal},
		{name: "failed job refuses", status: models.JobStatusFailed, wantErr: ErrJobTerminal},
		{name: "cancelled job refuses", status: models.JobStatusCancelled, wantErr: ErrJobTerminal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := mocks.NewMockJobRepository()
			svc := newJobService(repo, zerolog.Nop())
			userID := uuid.New()
			job := seedJob(t, repo, userID, tt.status)

			err := svc.CancelJob(context.Background(), job.ID, userID)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				if got := repo.Stored(job.ID).Status; got != tt.status {
					t.Errorf("terminal status changed to %s", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("CancelJob: %v", err)
			}
			if got := repo.Stored(job.ID).Status; got != models.JobStatusCancelled {
				t.Errorf("status = %s, want cancelled", got)
			}
		})
	}
}

func TestCancelJobNotFound(t *testing.T) {
	repo := mocks.NewMockJobRepository()
	svc := newJobService(repo, zerolog.Nop())

	if err := svc.CancelJob(context.Background(), uuid.New(), uuid.New()); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("err = %v, want ErrJobNotFound", err)
	}
}

func TestGetHistory(t *testing.T) {
	repo := mocks.NewMockJobRepository()
	svc := newJobService(repo, zerolog.Nop())
	userID := uuid.New()

	for i := 0; i < 5; i++ {
		job := seedJob(t, repo, userID, models.JobStatusCompleted)
		job.CreatedAt = time.Now().Add(time.Duration(i) * time.Minute)
		repo.Jobs[job.ID].CreatedAt = job.CreatedAt
	}
	seedJob(t, repo, uuid.New(), models.JobStatusCompleted) // someone else's

	resp, err := svc.GetHistory(context.Background(), userID, 1, 3)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if resp.Total != 5 {
		t.Errorf("total = %d, want 5", resp.Total)
	}
	if len(resp.Imports) != 3 {
		t.Errorf("page size = %d, want 3", len(resp.Imports))
	}
	for i := 1; i < len(resp.Imports); i++ {
		if resp.Imports[i].CreatedAt.After(resp.Imports[i-1].CreatedAt) {
			t.Error("history must be newest first")
		}
	}

	second, err := svc.GetHistory(context.Background(), userID, 2, 3)
	if err != nil {
		t.Fatalf("GetHistory page 2: %v", err)
	}
	if len(second.Imports) != 2 {
		t.Errorf("second page = %d items, want 2", len(second.Imports))
	}
}

func TestGetHistoryEmpty(t *testing.T) {
	repo := mocks.NewMockJobRepository()
	svc := newJobService(repo, zerolog.Nop())

	resp, err := svc.GetHistory(context.Background(), uuid.New(), 1, 20)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if resp.Imports == nil {
		t.Error("imports must be an empty slice, not nil")
	}
	if resp.Total != 0 {
		t.Errorf("total = %d, want 0", resp.Total)
	}
}

// trackingImportService records which jobs the processor handed it
type trackingImportService struct {
	done chan uuid.UUID
}

func (s *trackingImportService) CreateImportJob(ctx context.Context, userID uuid.UUID, filename string, content []byte) (*models.ImportJob, error) {
	return nil, nil
}

func (s *trackingImportService) ProcessImport(ctx context.Context, job *models.ImportJob) error {
	s.done <- job.ID
	return nil
}

func (s *trackingImportService) ManualAdd(ctx context.Context, userID uuid.UUID, req *models.ManualAddRequest) (*models.ManualAddResponse, error) {
	return nil, nil
}

func TestProcessPendingJobsClaimsAndDispatches(t *testing.T) {
	repo := mocks.NewMockJobRepository()
	svc := newJobService(repo, zerolog.Nop())
	tracker := &trackingImportService{done: make(chan uuid.UUID, 8)}
	svc.SetImportService(tracker)
	svc.ctx, svc.cancel = context.WithCancel(context.Background())
	defer svc.cancel()

	userID := uuid.New()
	pending := seedJob(t, repo, userID, models.JobStatusPending)
	seedJob(t, repo, userID, models.JobStatusCompleted) // must be skipped

	svc.processPendingJobs()
	svc.wg.Wait()

	select {
	case id := <-tracker.done:
		if id != pending.ID {
			t.Errorf("dispatched job %s, want %s", id, pending.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("pending job was never dispatched")
	}

	if got := repo.Stored(pending.ID).Status; got != models.JobStatusProcessing {
		t.Errorf("claimed job status = %s, want processing", got)
	}

	// A second scan finds nothing pending and dispatches nothing
	svc.processPendingJobs()
	svc.wg.Wait()
	select {
	case id := <-tracker.done:
		t.Errorf("job %s dispatched twice", id)
	default:
	}
}
