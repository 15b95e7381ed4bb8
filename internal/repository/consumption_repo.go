package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/mediatrack-api/internal/database"
	"github.com/mediatrack-api/internal/models"
)

// consumptionRepo is the concrete implementation of ConsumptionRepository
type consumptionRepo struct {
	db *database.DB
}

// NewConsumptionRepo creates a new consumption repository
func NewConsumptionRepo(db *database.DB) ConsumptionRepository {
	return &consumptionRepo{db: db}
}

// Upsert inserts a consumption record or no-ops on an identical tuple.
//
// The conflict target matches the expression index on (user_id,
// catalog_entry_id, COALESCE(consumed_on, '0001-01-01'), season_label,
// episode_label); the COALESCE keeps date-less records deduplicated too,
// since unique indexes treat NULLs as distinct.
func (r *consumptionRepo) Upsert(ctx context.Context, rec *models.ConsumptionRecord) (bool, error) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}

	query := `
		INSERT INTO consumption_records (id, user_id, catalog_entry_id, platform,
			consumed_on, season_label, episode_label, imported_from, job_id, raw_row, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (user_id, catalog_entry_id, COALESCE(consumed_on, '0001-01-01'::date), season_label, episode_label)
			DO NOTHING
		RETURNING id
	`

	var id uuid.UUID
	err := r.db.QueryRowContext(ctx, query,
		rec.ID, rec.UserID, rec.CatalogID, rec.Platform,
		nullDate(rec.ConsumedOn), rec.SeasonLabel, rec.EpisodeLabel,
		rec.ImportedFrom, nullUUID(rec.JobID), nullString(rec.RawRow), time.Now(),
	).Scan(&id)
	if err == sql.ErrNoRows {
		// Conflict: the identical tuple was already recorded
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return true, nil
}

// CountByJob counts the consumption records a job produced
func (r *consumptionRepo) CountByJob(ctx context.Context, jobID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM consumption_records WHERE job_id = $1`, jobID,
	).Scan(&count)
	return count, err
}

func nullDate(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}
