package download

import (
	"context"

	"github.com/spotifx/spotifx-go/internal/match"
	"github.com/spotifx/spotifx-go/internal/search"
)

// SourceSearcher adapts the media source search client to the selector's
// candidate model.
type SourceSearcher struct {
	client *search.Client
}

// NewSourceSearcher wraps a search client
func NewSourceSearcher(client *search.Client) *SourceSearcher {
	return &SourceSearcher{client: client}
}

// Search implements match.Searcher
func (s *SourceSearcher) Search(ctx context.Context, query string) ([]match.Candidate, error) {
	results, err := s.client.Search(ctx, query)
	if err != nil {
		return nil, err
	}

	candidates := make([]match.Candidate, 0, len(results))
	for _, r := range results {
		candidates = append(candidates, match.Candidate{
			Locator:         r.URL(),
			Title:           r.Title,
			DurationSeconds: r.DurationSeconds,
			Popularity:      r.ViewCount,
		})
	}
	return candidates, nil
}
