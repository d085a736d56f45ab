package match

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	apperrors "github.com/spotifx/spotifx-go/internal/errors"
	"github.com/spotifx/spotifx-go/internal/monitoring"
)

// durationToleranceSecs is the absolute duration slack allowed between a
// candidate and the target before falling back to the ratio test.
const durationToleranceSecs = 15

// durationToleranceRatio accepts candidates whose duration differs from the
// target by at most this fraction of the target.
const durationToleranceRatio = 0.2

// Candidate is a media source candidate under consideration
type Candidate struct {
	Locator         string
	Title           string
	DurationSeconds int
	Popularity      int64
}

// Searcher returns ranked candidates for a free-text query
type Searcher interface {
	Search(ctx context.Context, query string) ([]Candidate, error)
}

// TrackQuery carries the canonical metadata used to build search queries
type TrackQuery struct {
	Title      string
	Artist     string
	Album      string
	DurationMS int
}

// Selector picks the best media source candidate for a track
type Selector struct {
	searcher Searcher
	logger   *zap.Logger
}

// NewSelector creates a selector over the given search provider
func NewSelector(searcher Searcher, logger *zap.Logger) *Selector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Selector{searcher: searcher, logger: logger}
}

// Select finds the best candidate for the track, or a no match error.
//
// Queries are tried in order of increasing generality. The first query
// yielding at least one candidate that passes the duration filter wins;
// among passing candidates the most popular one is returned. If every
// query fails the filter, the top result of a final unqualified query is
// used as a last resort.
func (s *Selector) Select(ctx context.Context, q TrackQuery) (*Candidate, error) {
	if q.Title == "" || q.Artist == "" {
		return nil, apperrors.NewValidationError("track title and artist are required for matching")
	}

	queries := []string{
		fmt.Sprintf("%s - %s audio", q.Artist, q.Title),
		fmt.Sprintf("%s %s audio", q.Artist, q.Title),
		fmt.Sprintf("%s %s %s audio", q.Artist, q.Title, q.Album),
		fmt.Sprintf("%s %s official audio", q.Artist, q.Title),
		fmt.Sprintf("%s %s topic", q.Title, q.Artist),
	}

	targetSecs := float64(q.DurationMS) / 1000

	for _, query := range queries {
		candidates, err := s.searcher.Search(ctx, query)
		if err != nil {
			s.logger.Warn("search query failed",
				zap.String("query", query),
				zap.Error(err))
			continue
		}

		passing := filterCandidates(candidates, query, targetSecs)
		if len(passing) == 0 {
			continue
		}

		sort.SliceStable(passing, func(i, j int) bool {
			return passing[i].Popularity > passing[j].Popularity
		})

		monitoring.RecordMatchAttempt("matched")
		best := passing[0]
		return &best, nil
	}

	// Last resort: take whatever the plain query ranks first
	fallbackQuery := fmt.Sprintf("%s %s", q.Artist, q.Title)
	candidates, err := s.searcher.Search(ctx, fallbackQuery)
	if err != nil {
		s.logger.Warn("fallback search query failed",
			zap.String("query", fallbackQuery),
			zap.Error(err))
	}
	if len(candidates) > 0 {
		monitoring.RecordMatchAttempt("fallback")
		best := candidates[0]
		return &best, nil
	}

	monitoring.RecordMatchAttempt("none")
	return nil, apperrors.NewNoMatchError(fmt.Sprintf("no source found for %s - %s", q.Artist, q.Title))
}

// filterCandidates applies the qualifier exclusion and duration filter
func filterCandidates(candidates []Candidate, query string, targetSecs float64) []Candidate {
	wantsAudio := strings.Contains(strings.ToLower(query), "official audio")

	var passing []Candidate
	for _, c := range candidates {
		if wantsAudio && strings.Contains(strings.ToLower(c.Title), "official video") {
			continue
		}

		if targetSecs <= 0 {
			passing = append(passing, c)
			continue
		}

		diff := float64(c.DurationSeconds) - targetSecs
		if diff < 0 {
			diff = -diff
		}
		if diff <= durationToleranceSecs || diff/targetSecs <= durationToleranceRatio {
			passing = append(passing, c)
		}
	}
	return passing
}
