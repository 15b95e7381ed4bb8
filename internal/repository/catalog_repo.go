package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/mediatrack-api/internal/database"
	"github.com/mediatrack-api/internal/models"
)

// catalogRepo is the concrete implementation of CatalogRepository
type catalogRepo struct {
	db *database.DB
}

// NewCatalogRepo creates a new catalog repository
func NewCatalogRepo(db *database.DB) CatalogRepository {
	return &catalogRepo{db: db}
}

// GetOrCreate resolves a normalized title to exactly one catalog entry.
//
// The uniqueness constraint on (normalized_title, kind) plus the no-op
// conflict update make this a single atomic statement: whichever of two
// racing inserts loses still gets the surviving row back via RETURNING.
// A plain read-then-write here would be a correctness bug.
func (r *catalogRepo) GetOrCreate(ctx context.Context, entry *models.CatalogEntry) (*models.CatalogEntry, error) {
	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return nil, err
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}

	query := `
		INSERT INTO catalog_entries (id, title, normalized_title, kind, parent_id, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (normalized_title, kind) DO UPDATE
			SET normalized_title = EXCLUDED.normalized_title
		RETURNING id, title, normalized_title, kind, parent_id, metadata, created_at
	`

	var out models.CatalogEntry
	var parentID sql.NullString
	var rawMetadata []byte
	err = r.db.QueryRowContext(ctx, query,
		entry.ID, entry.Title, entry.NormalizedTitle, entry.Kind,
		nullUUID(entry.ParentID), metadata, time.Now(),
	).Scan(&out.ID, &out.Title, &out.NormalizedTitle, &out.Kind, &parentID, &rawMetadata, &out.CreatedAt)
	if err != nil {
		return nil, err
	}

	if parentID.Valid {
		if id, err := uuid.Parse(parentID.String); err == nil {
			out.ParentID = &id
		}
	}
	if len(rawMetadata) > 0 {
		_ = json.Unmarshal(rawMetadata, &out.Metadata)
	}

	return &out, nil
}

// GetByID retrieves a catalog entry
func (r *catalogRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.CatalogEntry, error) {
	query := `SELECT id, title, normalized_title, kind, parent_id, metadata, created_at
		FROM catalog_entries WHERE id = $1`

	var out models.CatalogEntry
	var parentID sql.NullString
	var rawMetadata []byte
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&out.ID, &out.Title, &out.NormalizedTitle, &out.Kind, &parentID, &rawMetadata, &out.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if parentID.Valid {
		if pid, err := uuid.Parse(parentID.String); err == nil {
			out.ParentID = &pid
		}
	}
	if len(rawMetadata) > 0 {
		_ = json.Unmarshal(rawMetadata, &out.Metadata)
	}

	return &out, nil
}

func nullUUID(id *uuid.UUID) interface{} {
	if id == nil {
		return nil
	}
	return *id
}
