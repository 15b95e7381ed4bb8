package models

import (
	"time"

	"github.com/google/uuid"
)

// WorkKind classifies a catalog entry or parsed row
type WorkKind string

const (
	KindMovie  WorkKind = "movie"
	KindSeries WorkKind = "series"
)

// CatalogEntry is a media work shared across all users. Entries are created
// lazily on first unmatched title and never deleted by the import pipeline.
// (normalized_title, kind) is unique; concurrent creation collapses to one
// row via the storage-level conflict clause.
type CatalogEntry struct {
	ID              uuid.UUID         `json:"id" db:"id"`
	Title           string            `json:"title" db:"title"`
	NormalizedTitle string            `json:"-" db:"normalized_title"`
	Kind            WorkKind          `json:"kind" db:"kind"`
	ParentID        *uuid.UUID        `json:"parent_id,omitempty" db:"parent_id"`
	Metadata        map[string]string `json:"metadata,omitempty" db:"metadata"`
	CreatedAt       time.Time         `json:"created_at" db:"created_at"`
}

// ConsumptionRecord links a user to a catalog entry for one viewing. At most
// one record exists per (user, entry, consumed_on, season, episode) tuple.
type ConsumptionRecord struct {
	ID           uuid.UUID    `json:"id" db:"id"`
	UserID       uuid.UUID    `json:"-" db:"user_id"`
	CatalogID    uuid.UUID    `json:"catalog_entry_id" db:"catalog_entry_id"`
	Platform     string       `json:"platform" db:"platform"`
	ConsumedOn   *time.Time   `json:"consumed_on,omitempty" db:"consumed_on"`
	SeasonLabel  string       `json:"season,omitempty" db:"season_label"`
	EpisodeLabel string       `json:"episode,omitempty" db:"episode_label"`
	ImportedFrom ImportSource `json:"imported_from" db:"imported_from"`
	JobID        *uuid.UUID   `json:"-" db:"job_id"`
	RawRow       string       `json:"-" db:"raw_row"`
	CreatedAt    time.Time    `json:"created_at" db:"created_at"`
}

// ManualAddRequest is the structured input for a manual single-item addition
type ManualAddRequest struct {
	Title      string `json:"title" binding:"required,max=255"`
	Platform   string `json:"platform" binding:"required,max=50"`
	ConsumedAt string `json:"consumed_at,omitempty"`
	Kind       string `json:"kind,omitempty" binding:"omitempty,oneof=movie series"`
	Notes      string `json:"notes,omitempty" binding:"max=1000"`
}

// ManualAddResponse is the result of a manual single-item addition
type ManualAddResponse struct {
	Success      bool      `json:"success"`
	CatalogID    uuid.UUID `json:"catalog_entry_id"`
	MatchedTitle string    `json:"matched_title"`
	Message      string    `json:"message"`
}
