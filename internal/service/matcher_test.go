package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mediatrack-api/internal/mocks"
	"github.com/mediatrack-api/internal/models"
	"github.com/mediatrack-api/internal/titleparse"
)

func newTestMatcher() (*matcher, *mocks.MockCatalogRepository, *mocks.MockConsumptionRepository) {
	catalog := mocks.NewMockCatalogRepository()
	consumption := mocks.NewMockConsumptionRepository()
	return newMatcher(catalog, consumption, zerolog.Nop()), catalog, consumption
}

func TestMatchCreatesCatalogEntryOnce(t *testing.T) {
	m, catalog, _ := newTestMatcher()
	userID := uuid.New()
	desc := &titleparse.Descriptor{Title: "Inception", Kind: models.KindMovie}

	first, inserted, err := m.Match(context.Background(), userID, desc, MatchInput{Platform: "netflix"})
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if !inserted {
		t.Error("first match should insert a consumption record")
	}

	// Same title, different casing and spacing, converges on the same entry
	again := &titleparse.Descriptor{Title: "  INCEPTION ", Kind: models.KindMovie}
	second, _, err := m.Match(context.Background(), uuid.New(), again, MatchInput{Platform: "netflix"})
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("normalized variants resolved to different entries: %s vs %s", first.ID, second.ID)
	}
	if catalog.Creates != 1 {
		t.Errorf("catalog creates = %d, want 1", catalog.Creates)
	}
}

func TestMatchKindDistinguishesEntries(t *testing.T) {
	m, catalog, _ := newTestMatcher()
	userID := uuid.New()

	movie := &titleparse.Descriptor{Title: "Fargo", Kind: models.KindMovie}
	series := &titleparse.Descriptor{Title: "Fargo", Kind: models.KindSeries}

	a, _, err := m.Match(context.Background(), userID, movie, MatchInput{Platform: "netflix"})
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	b, _, err := m.Match(context.Background(), userID, series, MatchInput{Platform: "netflix"})
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if a.ID == b.ID {
		t.Error("same title with different kinds must be distinct entries")
	}
	if catalog.Len() != 2 {
		t.Errorf("catalog entries = %d, want 2", catalog.Len())
	}
}

func TestMatchDuplicateTuple(t *testing.T) {
	m, _, consumption := newTestMatcher()
	userID := uuid.New()
	date := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	desc := &titleparse.Descriptor{
		Title:        "Breaking Bad",
		Kind:         models.KindSeries,
		SeasonLabel:  "Season 1",
		EpisodeLabel: "Pilot",
	}
	in := MatchInput{Platform: "netflix", ConsumedOn: &date}

	if _, inserted, err := m.Match(context.Background(), userID, desc, in); err != nil || !inserted {
		t.Fatalf("first match: inserted=%v err=%v", inserted, err)
	}
	if _, inserted, err := m.Match(context.Background(), userID, desc, in); err != nil || inserted {
		t.Fatalf("identical tuple must be a no-op: inserted=%v err=%v", inserted, err)
	}
	if consumption.Len() != 1 {
		t.Errorf("consumption records = %d, want 1", consumption.Len())
	}

	// A different episode of the same show is a new record
	other := *desc
	other.EpisodeLabel = "Cat's in the Bag..."
	if _, inserted, err := m.Match(context.Background(), userID, &other, in); err != nil || !inserted {
		t.Fatalf("different episode should insert: inserted=%v err=%v", inserted, err)
	}

	// Same tuple for a different user is also a new record
	if _, inserted, err := m.Match(context.Background(), uuid.New(), desc, in); err != nil || !inserted {
		t.Fatalf("different user should insert: inserted=%v err=%v", inserted, err)
	}
}

func TestMatchConcurrentSameTitle(t *testing.T) {
	m, catalog, _ := newTestMatcher()

	var wg sync.WaitGroup
	ids := make([]uuid.UUID, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			desc := &titleparse.Descriptor{Title: "The Matrix", Kind: models.KindMovie}
			entry, _, err := m.Match(context.Background(), uuid.New(), desc, MatchInput{Platform: "netflix"})
			if err != nil {
				t.Errorf("Match: %v", err)
				return
			}
			ids[i] = entry.ID
		}(i)
	}
	wg.Wait()

	if catalog.Len() != 1 {
		t.Fatalf("concurrent matches created %d entries, want 1", catalog.Len())
	}
	for i := 1; i < len(ids); i++ {
		if ids[i] != ids[0] {
			t.Fatalf("entry IDs diverged: %s vs %s", ids[0], ids[i])
		}
	}
}

func TestMatchEmptyNormalizedTitle(t *testing.T) {
	m, _, _ := newTestMatcher()
	desc := &titleparse.Descriptor{Title: "   ", Kind: models.KindMovie}
	if _, _, err := m.Match(context.Background(), uuid.New(), desc, MatchInput{}); err == nil {
		t.Fatal("expected error for empty normalized title")
	}
}
