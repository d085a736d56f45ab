package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/spotifx/spotifx-go/internal/errors"
	"github.com/spotifx/spotifx-go/internal/monitoring"
	"github.com/spotifx/spotifx-go/internal/network"
)

// Candidate is a single media source candidate returned by a search
type Candidate struct {
	ID              string `json:"videoId"`
	Title           string `json:"title"`
	Author          string `json:"author"`
	DurationSeconds int    `json:"lengthSeconds"`
	ViewCount       int64  `json:"viewCount"`
}

// URL returns the watch URL for the candidate
func (c *Candidate) URL() string {
	return "https://www.youtube.com/watch?v=" + c.ID
}

// Client searches an Invidious-compatible API for media source candidates
type Client struct {
	httpClient *http.Client
	baseURL    string
	maxResults int
}

// NewClient creates a new search client
func NewClient(baseURL string, maxResults int, timeout time.Duration) *Client {
	config := network.DefaultClientConfig()
	if timeout > 0 {
		config.Timeout = timeout
	}
	if maxResults < 1 {
		maxResults = 10
	}

	return &Client{
		httpClient: network.NewClient(config),
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		maxResults: maxResults,
	}
}

// Search returns video candidates for the given query, in API order
func (c *Client) Search(ctx context.Context, query string) ([]Candidate, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("type", "video")

	apiURL := c.baseURL + "/api/v1/search?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", apiURL, nil)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		monitoring.RecordAPIRequest("search", "error", time.Since(start))
		return nil, apperrors.NewNetworkError("search request failed", err)
	}
	defer resp.Body.Close()

	monitoring.RecordAPIRequest("search", fmt.Sprintf("%d", resp.StatusCode), time.Since(start))

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := 1
		fmt.Sscanf(resp.Header.Get("Retry-After"), "%d", &retryAfter)
		return nil, apperrors.NewRateLimitError("search rate limit exceeded", retryAfter)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search request failed with status: %d", resp.StatusCode)
	}

	var results []struct {
		Type string `json:"type"`
		Candidate
	}
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	candidates := make([]Candidate, 0, len(results))
	for _, r := range results {
		if r.Type != "" && r.Type != "video" {
			continue
		}
		if r.ID == "" {
			continue
		}
		candidates = append(candidates, r.Candidate)
		if len(candidates) >= c.maxResults {
			break
		}
	}

	return candidates, nil
}
