package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/mediatrack-api/internal/database"
	"github.com/mediatrack-api/internal/models"
)

// jobRepo is the concrete implementation of JobRepository
type jobRepo struct {
	db *database.DB
}

// NewJobRepo creates a new job repository
func NewJobRepo(db *database.DB) JobRepository {
	return &jobRepo{db: db}
}

const jobColumns = `id, user_id, source, status, total_rows, processed_rows,
	successful_rows, failed_rows, filename, file_size, file_hash, file_path,
	created_at, started_at, completed_at`

// Create inserts a new job
func (r *jobRepo) Create(ctx context.Context, job *models.ImportJob) error {
	query := `
		INSERT INTO import_jobs (id, user_id, source, status, total_rows, processed_rows,
			successful_rows, failed_rows, filename, file_size, file_hash, file_path, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := r.db.ExecContext(ctx, query,
		job.ID, job.UserID, job.Source, job.Status, job.TotalRows, job.ProcessedRows,
		job.SuccessfulRows, job.FailedRows, nullString(job.Filename), job.FileSize,
		nullString(job.FileHash), nullString(job.FilePath), job.CreatedAt,
	)
	return err
}

// GetByID retrieves a job owned by the given user
func (r *jobRepo) GetByID(ctx context.Context, id, userID uuid.UUID) (*models.ImportJob, error) {
	query := `SELECT ` + jobColumns + ` FROM import_jobs WHERE id = $1 AND user_id = $2`
	return r.scanJob(r.db.QueryRowContext(ctx, query, id, userID))
}

// GetPending retrieves all pending jobs, oldest first. The scan takes no
// locks; MarkProcessing is the atomic claim.
func (r *jobRepo) GetPending(ctx context.Context) ([]*models.ImportJob, error) {
	query := `
		SELECT id, user_id, source, file_path, created_at
		FROM import_jobs WHERE status = 'pending'
		ORDER BY created_at
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*models.ImportJob
	for rows.Next() {
		var job models.ImportJob
		var filePath sql.NullString
		if err := rows.Scan(&job.ID, &job.UserID, &job.Source, &filePath, &job.CreatedAt); err != nil {
			continue
		}
		job.FilePath = filePath.String
		job.Status = models.JobStatusPending
		jobs = append(jobs, &job)
	}

	return jobs, rows.Err()
}

// MarkProcessing atomically marks a pending job as processing
func (r *jobRepo) MarkProcessing(ctx context.Context, jobID uuid.UUID) (bool, error) {
	query := `
		UPDATE import_jobs SET status = 'processing', started_at = $1
		WHERE id = $2 AND status = 'pending'
	`
	result, err := r.db.ExecContext(ctx, query, time.Now(), jobID)
	if err != nil {
		return false, err
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// UpdateProgress persists counters for an in-flight job. The status guard
// keeps a concurrently cancelled job immutable.
func (r *jobRepo) UpdateProgress(ctx context.Context, job *models.ImportJob) error {
	query := `
		UPDATE import_jobs SET total_rows = $1, processed_rows = $2,
			successful_rows = $3, failed_rows = $4
		WHERE id = $5 AND status = 'processing'
	`
	_, err := r.db.ExecContext(ctx, query,
		job.TotalRows, job.ProcessedRows, job.SuccessfulRows, job.FailedRows, job.ID,
	)
	return err
}

// Finalize writes the terminal state of a processing job
func (r *jobRepo) Finalize(ctx context.Context, job *models.ImportJob, status models.JobStatus) error {
	now := time.Now()
	query := `
		UPDATE import_jobs SET status = $1, total_rows = $2, processed_rows = $3,
			successful_rows = $4, failed_rows = $5, completed_at = $6
		WHERE id = $7 AND status = 'processing'
	`
	_, err := r.db.ExecContext(ctx, query,
		status, job.TotalRows, job.ProcessedRows, job.SuccessfulRows,
		job.FailedRows, now, job.ID,
	)
	if err == nil {
		job.Status = status
		job.CompletedAt = &now
	}
	return err
}

// Cancel transitions a pending or processing job owned by the user to
// cancelled. Returns false when the job is already terminal or not visible
// to this user.
func (r *jobRepo) Cancel(ctx context.Context, id, userID uuid.UUID) (bool, error) {
	query := `
		UPDATE import_jobs SET status = 'cancelled', completed_at = $1
		WHERE id = $2 AND user_id = $3 AND status IN ('pending', 'processing')
	`
	result, err := r.db.ExecContext(ctx, query, time.Now(), id, userID)
	if err != nil {
		return false, err
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// GetStatus returns just the status column, cheap enough to poll per row
func (r *jobRepo) GetStatus(ctx context.Context, jobID uuid.UUID) (models.JobStatus, error) {
	var status models.JobStatus
	err := r.db.QueryRowContext(ctx,
		`SELECT status FROM import_jobs WHERE id = $1`, jobID,
	).Scan(&status)
	return status, err
}

// FindSuccessfulByHash locates the most recent successful import of the same
// content fingerprint by this user
func (r *jobRepo) FindSuccessfulByHash(ctx context.Context, userID uuid.UUID, hash string) (*models.ImportJob, error) {
	query := `SELECT ` + jobColumns + `
		FROM import_jobs
		WHERE user_id = $1 AND file_hash = $2 AND status IN ('completed', 'partial')
		ORDER BY created_at DESC
		LIMIT 1`
	return r.scanJob(r.db.QueryRowContext(ctx, query, userID, hash))
}

// AddErrors bulk-inserts row errors using the COPY protocol. Error volume is
// bounded by the row ceiling but a fully failing file still produces
// thousands of rows, where COPY beats an INSERT loop by an order of
// magnitude.
func (r *jobRepo) AddErrors(ctx context.Context, jobID uuid.UUID, errs []models.RowError) error {
	if len(errs) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("job_errors",
		"job_id", "row_number", "message", "raw_data",
	))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range errs {
		if _, err := stmt.ExecContext(ctx, jobID, e.Row, e.Error, e.Data); err != nil {
			return err
		}
	}

	// Flush the COPY buffer
	if _, err := stmt.ExecContext(ctx); err != nil {
		return err
	}

	return tx.Commit()
}

// GetErrors retrieves row errors for a job, ordered by row number
func (r *jobRepo) GetErrors(ctx context.Context, jobID uuid.UUID, limit int) ([]models.RowError, error) {
	query := `SELECT row_number, message, raw_data FROM job_errors WHERE job_id = $1 ORDER BY row_number, id`
	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = r.db.QueryContext(ctx, query+` LIMIT $2`, jobID, limit)
	} else {
		rows, err = r.db.QueryContext(ctx, query, jobID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var errs []models.RowError
	for rows.Next() {
		var e models.RowError
		var data sql.NullString
		if err := rows.Scan(&e.Row, &e.Error, &data); err != nil {
			continue
		}
		e.Data = data.String
		errs = append(errs, e)
	}

	return errs, rows.Err()
}

// ListByUser returns the user's import history, newest first
func (r *jobRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.HistoryItem, error) {
	query := `
		SELECT id, source, status, total_rows, successful_rows, failed_rows, created_at, completed_at
		FROM import_jobs
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]models.HistoryItem, 0, limit)
	for rows.Next() {
		var item models.HistoryItem
		var completedAt sql.NullTime
		if err := rows.Scan(&item.JobID, &item.Source, &item.Status, &item.TotalRows,
			&item.SuccessfulRows, &item.FailedRows, &item.CreatedAt, &completedAt); err != nil {
			continue
		}
		if completedAt.Valid {
			item.CompletedAt = &completedAt.Time
		}
		items = append(items, item)
	}

	return items, rows.Err()
}

// CountByUser counts the user's import jobs
func (r *jobRepo) CountByUser(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM import_jobs WHERE user_id = $1`, userID,
	).Scan(&count)
	return count, err
}

func (r *jobRepo) scanJob(row *sql.Row) (*models.ImportJob, error) {
	var job models.ImportJob
	var filename, fileHash, filePath sql.NullString
	var fileSize sql.NullInt64
	var startedAt, completedAt sql.NullTime

	err := row.Scan(
		&job.ID, &job.UserID, &job.Source, &job.Status, &job.TotalRows,
		&job.ProcessedRows, &job.SuccessfulRows, &job.FailedRows,
		&filename, &fileSize, &fileHash, &filePath,
		&job.CreatedAt, &startedAt, &completedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	job.Filename = filename.String
	job.FileSize = fileSize.Int64
	job.FileHash = fileHash.String
	job.FilePath = filePath.String
	if startedAt.Valid {
		job.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}

	return &job, nil
}

// helper to convert empty string to NULL
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
