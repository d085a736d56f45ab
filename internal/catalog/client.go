package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/spotifx/spotifx-go/internal/cache"
	apperrors "github.com/spotifx/spotifx-go/internal/errors"
	"github.com/spotifx/spotifx-go/internal/monitoring"
	"github.com/spotifx/spotifx-go/internal/network"
)

const pageLimit = 50

// Client handles all catalog API interactions. Authentication uses the
// client credentials flow and tokens are refreshed transparently.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	tokenURL     string
	clientID     string
	clientSecret string
	rateLimiter  *rate.Limiter
	cache        *cache.Cache
	retryConfig  apperrors.RetryConfig

	mu          sync.RWMutex
	accessToken string
	tokenExpiry time.Time
}

// ClientOptions configures a catalog client
type ClientOptions struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
	RateLimit    int
	Cache        *cache.Cache
}

// NewClient creates a new catalog API client
func NewClient(opts ClientOptions) *Client {
	config := network.DefaultClientConfig()
	if opts.Timeout > 0 {
		config.Timeout = opts.Timeout
	}

	rps := opts.RateLimit
	if rps < 1 {
		rps = 10
	}

	return &Client{
		httpClient:   network.NewClient(config),
		baseURL:      strings.TrimSuffix(opts.BaseURL, "/"),
		tokenURL:     opts.TokenURL,
		clientID:     opts.ClientID,
		clientSecret: opts.ClientSecret,
		rateLimiter:  rate.NewLimiter(rate.Limit(rps), rps),
		cache:        opts.Cache,
		retryConfig:  apperrors.DefaultRetryConfig(),
	}
}

// Authenticate obtains an access token using the client credentials flow
func (c *Client) Authenticate(ctx context.Context) error {
	if c.clientID == "" || c.clientSecret == "" {
		return apperrors.NewValidationError("catalog client credentials are not configured")
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, "POST", c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.clientID, c.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.NewNetworkError("token request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("token request failed with status: %d", resp.StatusCode)
	}

	var result struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode token response: %w", err)
	}

	if result.AccessToken == "" {
		return fmt.Errorf("token response contained no access token")
	}

	c.mu.Lock()
	c.accessToken = result.AccessToken
	// Refresh one minute early to avoid using a token at the edge of expiry
	c.tokenExpiry = time.Now().Add(time.Duration(result.ExpiresIn)*time.Second - time.Minute)
	c.mu.Unlock()

	return nil
}

// IsAuthenticated returns whether the client holds a valid token
func (c *Client) IsAuthenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken != "" && time.Now().Before(c.tokenExpiry)
}

func (c *Client) ensureToken(ctx context.Context) error {
	if c.IsAuthenticated() {
		return nil
	}
	return c.Authenticate(ctx)
}

// doAPIRequest performs a GET request against the catalog API with rate
// limiting, response caching and backoff on retryable failures.
// Responses are cached by full URL.
func (c *Client) doAPIRequest(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	apiURL := c.baseURL + endpoint
	if len(params) > 0 {
		apiURL += "?" + params.Encode()
	}

	if c.cache != nil {
		if body, ok := c.cache.Get(apiURL); ok {
			return body, nil
		}
	}

	var body []byte
	err := apperrors.RetryWithBackoff(ctx, c.retryConfig, func() error {
		var attemptErr error
		body, attemptErr = c.requestOnce(ctx, endpoint, apiURL)
		return attemptErr
	})
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		// Best effort, a failed cache write never fails the request
		_ = c.cache.Set(apiURL, body)
	}

	return body, nil
}

// requestOnce is a single authenticated attempt against the API.
// Network and 429 responses come back retryable.
func (c *Client) requestOnce(ctx context.Context, endpoint, apiURL string) ([]byte, error) {
	if err := c.ensureToken(ctx); err != nil {
		return nil, err
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", apiURL, nil)
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	c.mu.RUnlock()

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		monitoring.RecordAPIRequest(endpoint, "error", time.Since(start))
		return nil, apperrors.NewNetworkError("catalog request failed", err)
	}
	defer resp.Body.Close()

	monitoring.RecordAPIRequest(endpoint, fmt.Sprintf("%d", resp.StatusCode), time.Since(start))

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("catalog resource not found: %s", endpoint))
	case http.StatusTooManyRequests:
		retryAfter := 1
		fmt.Sscanf(resp.Header.Get("Retry-After"), "%d", &retryAfter)
		return nil, apperrors.NewRateLimitError("catalog rate limit exceeded", retryAfter)
	case http.StatusUnauthorized:
		// Token invalidated server side, drop it so the next call re-authenticates
		c.mu.Lock()
		c.accessToken = ""
		c.mu.Unlock()
		return nil, apperrors.NewNetworkError("catalog token rejected", nil)
	default:
		return nil, fmt.Errorf("catalog request failed with status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog response: %w", err)
	}

	return body, nil
}

// GetTrack fetches a single track by ID
func (c *Client) GetTrack(ctx context.Context, id string) (*Track, error) {
	body, err := c.doAPIRequest(ctx, "/tracks/"+id, nil)
	if err != nil {
		return nil, err
	}

	var track Track
	if err := json.Unmarshal(body, &track); err != nil {
		return nil, fmt.Errorf("failed to decode track: %w", err)
	}
	return &track, nil
}

// GetAlbum fetches an album with its full track listing
func (c *Client) GetAlbum(ctx context.Context, id string) (*Album, error) {
	body, err := c.doAPIRequest(ctx, "/albums/"+id, nil)
	if err != nil {
		return nil, err
	}

	var album Album
	if err := json.Unmarshal(body, &album); err != nil {
		return nil, fmt.Errorf("failed to decode album: %w", err)
	}

	tracks, err := c.getAlbumTracks(ctx, id)
	if err != nil {
		return nil, err
	}

	// Album track listings omit the album object, fill it in for callers
	albumRef := album
	albumRef.Tracks = nil
	for i := range tracks {
		tracks[i].Album = albumRef
	}
	album.Tracks = tracks

	return &album, nil
}

func (c *Client) getAlbumTracks(ctx context.Context, id string) ([]Track, error) {
	var tracks []Track
	offset := 0

	for {
		params := url.Values{}
		params.Set("limit", fmt.Sprintf("%d", pageLimit))
		params.Set("offset", fmt.Sprintf("%d", offset))

		body, err := c.doAPIRequest(ctx, "/albums/"+id+"/tracks", params)
		if err != nil {
			return nil, err
		}

		var page struct {
			Items []Track `json:"items"`
			Next  string  `json:"next"`
			Total int     `json:"total"`
		}
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("failed to decode album tracks: %w", err)
		}

		tracks = append(tracks, page.Items...)
		if page.Next == "" || len(page.Items) == 0 {
			break
		}
		offset += len(page.Items)
	}

	return tracks, nil
}

// GetPlaylist fetches a playlist with its full track listing
func (c *Client) GetPlaylist(ctx context.Context, id string) (*Playlist, error) {
	body, err := c.doAPIRequest(ctx, "/playlists/"+id, nil)
	if err != nil {
		return nil, err
	}

	var raw struct {
		ID     string  `json:"id"`
		Name   string  `json:"name"`
		Images []Image `json:"images"`
		Owner  struct {
			DisplayName string `json:"display_name"`
		} `json:"owner"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode playlist: %w", err)
	}

	playlist := &Playlist{
		ID:     raw.ID,
		Name:   raw.Name,
		Owner:  raw.Owner.DisplayName,
		Images: raw.Images,
	}

	tracks, err := c.getPlaylistTracks(ctx, id)
	if err != nil {
		return nil, err
	}
	playlist.Tracks = tracks

	return playlist, nil
}

func (c *Client) getPlaylistTracks(ctx context.Context, id string) ([]Track, error) {
	var tracks []Track
	offset := 0

	for {
		params := url.Values{}
		params.Set("limit", fmt.Sprintf("%d", pageLimit))
		params.Set("offset", fmt.Sprintf("%d", offset))

		body, err := c.doAPIRequest(ctx, "/playlists/"+id+"/tracks", params)
		if err != nil {
			return nil, err
		}

		var page struct {
			Items []struct {
				Track *Track `json:"track"`
			} `json:"items"`
			Next  string `json:"next"`
			Total int    `json:"total"`
		}
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("failed to decode playlist tracks: %w", err)
		}

		for _, item := range page.Items {
			// Removed or local tracks come back as null entries
			if item.Track == nil || item.Track.ID == "" {
				continue
			}
			tracks = append(tracks, *item.Track)
		}

		if page.Next == "" || len(page.Items) == 0 {
			break
		}
		offset += len(page.Items)
	}

	return tracks, nil
}
