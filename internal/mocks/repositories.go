package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mediatrack-api/internal/models"
)

// MockJobRepository is an in-memory implementation of JobRepository. Jobs are
// stored as copies so that tests observe persistence semantics, not shared
// pointers.
type MockJobRepository struct {
	mu   sync.Mutex
	Jobs map[uuid.UUID]*models.ImportJob
	Errs map[uuid.UUID][]models.RowError

	// Injectable failures
	UpdateProgressErr error
	AddErrorsErr      error

	// OnProgress, when set, runs after each applied progress write. It is
	// called without the lock held so it may call back into the repository.
	OnProgress func(job *models.ImportJob)

	ProgressUpdates int
}

func NewMockJobRepository() *MockJobRepository {
	return &MockJobRepository{
		Jobs: make(map[uuid.UUID]*models.ImportJob),
		Errs: make(map[uuid.UUID][]models.RowError),
	}
}

func (m *MockJobRepository) Create(ctx context.Context, job *models.ImportJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.Jobs[job.ID] = &cp
	return nil
}

func (m *MockJobRepository) GetByID(ctx context.Context, id, userID uuid.UUID) (*models.ImportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.Jobs[id]
	if !ok || job.UserID != userID {
		return nil, nil
	}
	cp := *job
	return &cp, nil
}

func (m *MockJobRepository) GetPending(ctx context.Context) ([]*models.ImportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var jobs []*models.ImportJob
	for _, job := range m.Jobs {
		if job.Status == models.JobStatusPending {
			cp := *job
			jobs = append(jobs, &cp)
		}
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt.Before(jobs[j].CreatedAt) })
	return jobs, nil
}

func (m *MockJobRepository) MarkProcessing(ctx context.Context, jobID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.Jobs[jobID]
	if !ok || job.Status != models.JobStatusPending {
		return false, nil
	}
	now := time.Now()
	job.Status = models.JobStatusProcessing
	job.StartedAt = &now
	return true, nil
}

func (m *MockJobRepository) UpdateProgress(ctx context.Context, job *models.ImportJob) error {
	if m.UpdateProgressErr != nil {
		return m.UpdateProgressErr
	}
	m.mu.Lock()
	stored, ok := m.Jobs[job.ID]
	if !ok || stored.Status != models.JobStatusProcessing {
		m.mu.Unlock()
		return nil
	}
	stored.TotalRows = job.TotalRows
	stored.ProcessedRows = job.ProcessedRows
	stored.SuccessfulRows = job.SuccessfulRows
	stored.FailedRows = job.FailedRows
	m.ProgressUpdates++
	cp := *stored
	hook := m.OnProgress
	m.mu.Unlock()
	if hook != nil {
		hook(&cp)
	}
	return nil
}

func (m *MockJobRepository) Finalize(ctx context.Context, job *models.ImportJob, status models.JobStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.Jobs[job.ID]
	if !ok || stored.Status != models.JobStatusProcessing {
		return nil
	}
	now := time.Now()
	stored.Status = status
	stored.TotalRows = job.TotalRows
	stored.ProcessedRows = job.ProcessedRows
	stored.SuccessfulRows = job.SuccessfulRows
	stored.FailedRows = job.FailedRows
	stored.CompletedAt = &now
	job.Status = status
	job.CompletedAt = &now
	return nil
}

func (m *MockJobRepository) Cancel(ctx context.Context, id, userID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.Jobs[id]
	if !ok || job.UserID != userID {
		return false, nil
	}
	if job.Status != models.JobStatusPending && job.Status != models.JobStatusProcessing {
		return false, nil
	}
	now := time.Now()
	job.Status = models.JobStatusCancelled
	job.CompletedAt = &now
	return true, nil
}

func (m *MockJobRepository) GetStatus(ctx context.Context, jobID uuid.UUID) (models.JobStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job, ok := m.Jobs[jobID]; ok {
		return job.Status, nil
	}
	return "", nil
}

func (m *MockJobRepository) FindSuccessfulByHash(ctx context.Context, userID uuid.UUID, hash string) (*models.ImportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *models.ImportJob
	for _, job := range m.Jobs {
		if job.UserID != userID || job.FileHash != hash {
			continue
		}
		if job.Status != models.JobStatusCompleted && job.Status != models.JobStatusPartial {
			continue
		}
		if latest == nil || job.CreatedAt.After(latest.CreatedAt) {
			latest = job
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (m *MockJobRepository) AddErrors(ctx context.Context, jobID uuid.UUID, errs []models.RowError) error {
	if m.AddErrorsErr != nil {
		return m.AddErrorsErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Errs[jobID] = append(m.Errs[jobID], errs...)
	return nil
}

func (m *MockJobRepository) GetErrors(ctx context.Context, jobID uuid.UUID, limit int) ([]models.RowError, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	errs := m.Errs[jobID]
	if limit > 0 && len(errs) > limit {
		errs = errs[:limit]
	}
	out := make([]models.RowError, len(errs))
	copy(out, errs)
	return out, nil
}

func (m *MockJobRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.HistoryItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var jobs []*models.ImportJob
	for _, job := range m.Jobs {
		if job.UserID == userID {
			jobs = append(jobs, job)
		}
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt.After(jobs[j].CreatedAt) })

	var items []models.HistoryItem
	for i := offset; i < len(jobs) && len(items) < limit; i++ {
		job := jobs[i]
		items = append(items, models.HistoryItem{
			JobID:          job.ID,
			Source:         job.Source,
			Status:         job.Status,
			TotalRows:      job.TotalRows,
			SuccessfulRows: job.SuccessfulRows,
			FailedRows:     job.FailedRows,
			CreatedAt:      job.CreatedAt,
			CompletedAt:    job.CompletedAt,
		})
	}
	return items, nil
}

func (m *MockJobRepository) CountByUser(ctx context.Context, userID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, job := range m.Jobs {
		if job.UserID == userID {
			count++
		}
	}
	return count, nil
}

// Stored returns a copy of the persisted job state, for assertions
func (m *MockJobRepository) Stored(id uuid.UUID) *models.ImportJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job, ok := m.Jobs[id]; ok {
		cp := *job
		return &cp
	}
	return nil
}

// MockCatalogRepository is an in-memory implementation of CatalogRepository.
// GetOrCreate is atomic under the lock, mirroring the storage-level
// uniqueness constraint.
type MockCatalogRepository struct {
	mu      sync.Mutex
	Entries map[string]*models.CatalogEntry

	GetOrCreateErr error
	Creates        int
}

func NewMockCatalogRepository() *MockCatalogRepository {
	return &MockCatalogRepository{Entries: make(map[string]*models.CatalogEntry)}
}

func catalogKey(normalized string, kind models.WorkKind) string {
	return normalized + "|" + string(kind)
}

func (m *MockCatalogRepository) GetOrCreate(ctx context.Context, entry *models.CatalogEntry) (*models.CatalogEntry, error) {
	if m.GetOrCreateErr != nil {
		return nil, m.GetOrCreateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := catalogKey(entry.NormalizedTitle, entry.Kind)
	if existing, ok := m.Entries[key]; ok {
		cp := *existing
		return &cp, nil
	}
	cp := *entry
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	cp.CreatedAt = time.Now()
	m.Entries[key] = &cp
	m.Creates++
	out := cp
	return &out, nil
}

func (m *MockCatalogRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.CatalogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, entry := range m.Entries {
		if entry.ID == id {
			cp := *entry
			return &cp, nil
		}
	}
	return nil, nil
}

// Len returns the number of distinct catalog entries
func (m *MockCatalogRepository) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Entries)
}

// MockConsumptionRepository is an in-memory implementation of
// ConsumptionRepository with tuple-level deduplication.
type MockConsumptionRepository struct {
	mu      sync.Mutex
	Records map[string]*models.ConsumptionRecord

	UpsertErr error
}

func NewMockConsumptionRepository() *MockConsumptionRepository {
	return &MockConsumptionRepository{Records: make(map[string]*models.ConsumptionRecord)}
}

func consumptionKey(rec *models.ConsumptionRecord) string {
	date := "0001-01-01"
	if rec.ConsumedOn != nil {
		date = rec.ConsumedOn.Format("2006-01-02")
	}
	return rec.UserID.String() + "|" + rec.CatalogID.String() + "|" + date + "|" + rec.SeasonLabel + "|" + rec.EpisodeLabel
}

func (m *MockConsumptionRepository) Upsert(ctx context.Context, rec *models.ConsumptionRecord) (bool, error) {
	if m.UpsertErr != nil {
		return false, m.UpsertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := consumptionKey(rec)
	if _, ok := m.Records[key]; ok {
		return false, nil
	}
	cp := *rec
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	cp.CreatedAt = time.Now()
	m.Records[key] = &cp
	return true, nil
}

func (m *MockConsumptionRepository) CountByJob(ctx context.Context, jobID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, rec := range m.Records {
		if rec.JobID != nil && *rec.JobID == jobID {
			count++
		}
	}
	return count, nil
}

// Len returns the number of stored consumption records
func (m *MockConsumptionRepository) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Records)
}
