package nasa

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/cosmicwatch/neo-watch-service/internal/domain"
)

// Client fetches the NASA NeoWs close-approach feed.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a NeoWs feed client. baseURL is the feed endpoint,
// normally https://api.nasa.gov/neo/rest/v1/feed.
func NewClient(baseURL, apiKey string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// FetchFeed requests the feed for a single day (start_date = end_date = day,
// UTC). Network and HTTP-status failures return a FetchError; a body that
// does not decode into the expected shape returns a ParseError.
func (c *Client) FetchFeed(ctx context.Context, day time.Time) (*domain.FeedResponse, error) {
	date := day.UTC().Format("2006-01-02")
	params := url.Values{
		"start_date": {date},
		"end_date":   {date},
		"api_key":    {c.apiKey},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, &domain.FetchError{Err: fmt.Errorf("create request: %w", err)}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.FetchError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &domain.FetchError{Err: fmt.Errorf("neows status %d: %s", resp.StatusCode, body)}
	}

	var feed domain.FeedResponse
	if err := json.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, &domain.ParseError{Err: err}
	}
	if feed.NearEarthObjects == nil {
		return nil, &domain.ParseError{Err: fmt.Errorf("response missing near_earth_objects")}
	}

	c.logger.Debug("feed fetched", "date", date, "element_count", feed.ElementCount)
	return &feed, nil
}
