package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mediatrack-api/internal/models"
	"github.com/mediatrack-api/internal/repository"
	"github.com/mediatrack-api/internal/titleparse"
)

// matcher is the concrete implementation of Matcher.
//
// Matching is exact-normalized-string only: trim, collapse whitespace,
// case-fold. No fuzzy matching and no external metadata lookups happen here;
// anything of that kind runs after import completion and never blocks
// row-level success.
type matcher struct {
	catalog     repository.CatalogRepository
	consumption repository.ConsumptionRepository
	log         zerolog.Logger
}

// newMatcher creates a new Matcher
func newMatcher(catalog repository.CatalogRepository, consumption repository.ConsumptionRepository, log zerolog.Logger) *matcher {
	return &matcher{
		catalog:     catalog,
		consumption: consumption,
		log:         log.With().Str("service", "matcher").Logger(),
	}
}

// Match resolves the descriptor to a catalog entry, creating one when the
// normalized title is unknown, and upserts the consumption record. The bool
// reports whether a new consumption record was written; false means the
// identical tuple was already recorded and the call was an idempotent no-op.
func (m *matcher) Match(ctx context.Context, userID uuid.UUID, desc *titleparse.Descriptor, in MatchInput) (*models.CatalogEntry, bool, error) {
	entry := &models.CatalogEntry{
		Title:           desc.Title,
		NormalizedTitle: titleparse.Normalize(desc.Title),
		Kind:            desc.Kind,
	}
	if entry.NormalizedTitle == "" {
		return nil, false, fmt.Errorf("empty title after normalization")
	}

	entry, err := m.catalog.GetOrCreate(ctx, entry)
	if err != nil {
		return nil, false, fmt.Errorf("catalog lookup failed: %w", err)
	}

	rec := &models.ConsumptionRecord{
		UserID:       userID,
		CatalogID:    entry.ID,
		Platform:     in.Platform,
		ConsumedOn:   in.ConsumedOn,
		SeasonLabel:  desc.SeasonLabel,
		EpisodeLabel: desc.EpisodeLabel,
		ImportedFrom: in.Source,
		JobID:        in.JobID,
		RawRow:       in.RawRow,
	}

	inserted, err := m.consumption.Upsert(ctx, rec)
	if err != nil {
		return nil, false, fmt.Errorf("consumption record upsert failed: %w", err)
	}

	if !inserted {
		m.log.Debug().
			Str("catalog_entry", entry.ID.String()).
			Str("title", entry.Title).
			Msg("Duplicate consumption tuple, record unchanged")
	}

	return entry, inserted, nil
}
