// Package titleparse decodes vendor composite title strings from viewing
// history exports into structured work descriptors.
package titleparse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/mediatrack-api/internal/config"
	"github.com/mediatrack-api/internal/models"
)

// Descriptor is the structured result of parsing one raw title string
type Descriptor struct {
	// Title is the main title with original casing preserved for display
	Title string
	Kind  models.WorkKind
	// SeasonLabel and EpisodeLabel are set together for series episodes,
	// never one without the other
	SeasonLabel  string
	EpisodeLabel string
}

// season markers recognized in the second segment of a composite title
var seasonRe = regexp.MustCompile(`(?i)^(season\s+\d+|limited series)$`)

// Parse decodes a sanitized composite title.
//
// The vendor format is colon-delimited: "Show: Season N: Episode Title" for
// series episodes, a bare string for movies. Episode titles may themselves
// contain colons and are rejoined verbatim. Any unexpected shape falls back
// to a movie using the whole string, so odd exports still import as
// something instead of failing the row.
func Parse(raw string) (*Descriptor, error) {
	title := strings.TrimSpace(raw)
	if title == "" {
		return nil, fmt.Errorf("missing title")
	}

	parts := strings.Split(title, ":")
	if len(parts) >= 2 {
		season := strings.TrimSpace(parts[1])
		if seasonRe.MatchString(season) {
			main := strings.TrimSpace(parts[0])
			if main == "" {
				return nil, fmt.Errorf("series title missing before season marker")
			}
			episode := strings.TrimSpace(strings.Join(parts[2:], ":"))
			if episode == "" {
				// A season marker with no episode segment cannot be
				// recorded as a consistent episode descriptor.
				return nil, fmt.Errorf("season marker without episode title: %q", title)
			}
			return &Descriptor{
				Title:        main,
				Kind:         models.KindSeries,
				SeasonLabel:  season,
				EpisodeLabel: episode,
			}, nil
		}
	}

	return &Descriptor{Title: title, Kind: models.KindMovie}, nil
}

// Normalize produces the matching key for a title: whitespace trimmed and
// collapsed, case-folded. Display titles keep their original casing.
func Normalize(title string) string {
	return strings.ToLower(strings.Join(strings.Fields(title), " "))
}

// ParseDate parses a consumption date. Accepted shapes are YYYY-MM-DD and
// numeric D/M/Y orderings with 2- or 4-digit years, separated by "/" or "-".
// When both leading components are <= 12 the configured regional order
// decides; otherwise the unambiguous reading wins.
func ParseDate(s string, order config.DateOrder) (time.Time, error) {
	s = strings.Trim(strings.TrimSpace(s), `"'`)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}

	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}

	sep := "/"
	if !strings.Contains(s, "/") {
		sep = "-"
	}
	parts := strings.Split(s, sep)
	if len(parts) != 3 {
		return time.Time{}, fmt.Errorf("unable to parse date: %q", s)
	}

	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 {
			return time.Time{}, fmt.Errorf("unable to parse date: %q", s)
		}
		nums[i] = n
	}

	a, b, year := nums[0], nums[1], nums[2]
	if year < 100 {
		year += 2000
	}

	var month, day int
	switch {
	case a > 12 && b > 12:
		return time.Time{}, fmt.Errorf("invalid date: %q", s)
	case a > 12:
		day, month = a, b
	case b > 12:
		month, day = a, b
	case order == config.DateOrderDMY:
		day, month = a, b
	default:
		month, day = a, b
	}

	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || t.Month() != time.Month(month) || t.Day() != day {
		return time.Time{}, fmt.Errorf("invalid date: %q", s)
	}
	return t, nil
}
