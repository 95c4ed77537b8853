package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jellydator/ttlcache/v3"
)

const (
	defaultEndpoint   = "https://www.googleapis.com/customsearch/v1"
	defaultNumResults = 5
	defaultCacheTTL   = 15 * time.Minute
	defaultMaxTries   = 3
	defaultTimeout    = 10 * time.Second
)

// GoogleConfig holds the configuration for the Google Programmable Search client.
type GoogleConfig struct {
	Logger   *slog.Logger
	APIKey   string
	EngineID string // Programmable Search Engine ID ("cx" parameter)

	Endpoint   string        // defaults to the public customsearch endpoint
	NumResults int           // results per query (default 5, API max 10)
	CacheTTL   time.Duration // how long to cache results per query (default 15m)
	MaxTries   int           // attempts per query including the first (default 3)
	HTTPClient *http.Client
}

// GoogleClient queries the Google Programmable Search JSON API.
// Results are cached per query so that repeated issue/location pairs
// don't re-hit the API.
type GoogleClient struct {
	cfg   *GoogleConfig
	log   *slog.Logger
	http  *http.Client
	cache *ttlcache.Cache[string, []Snippet]
}

// NewGoogleClient creates a new GoogleClient.
func NewGoogleClient(cfg *GoogleConfig) (*GoogleClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if cfg.EngineID == "" {
		return nil, fmt.Errorf("search engine ID is required")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	if cfg.NumResults == 0 {
		cfg.NumResults = defaultNumResults
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	if cfg.MaxTries == 0 {
		cfg.MaxTries = defaultMaxTries
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}

	return &GoogleClient{
		cfg:  cfg,
		log:  cfg.Logger,
		http: httpClient,
		cache: ttlcache.New(
			ttlcache.WithTTL[string, []Snippet](cfg.CacheTTL),
		),
	}, nil
}

// Search returns result snippets for a query, retrying transient failures
// with exponential backoff.
func (c *GoogleClient) Search(ctx context.Context, query string) ([]Snippet, error) {
	if item := c.cache.Get(query); item != nil {
		if c.log != nil {
			c.log.Debug("search: cache hit", "query", query)
		}
		return item.Value(), nil
	}

	attempt := 0
	snippets, err := backoff.Retry(ctx, func() ([]Snippet, error) {
		attempt++
		if attempt > 1 && c.log != nil {
			c.log.Warn("search: retrying failed query", "query", query, "attempt", attempt)
		}
		return c.doSearch(ctx, query)
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(uint(c.cfg.MaxTries)),
	)
	if err != nil {
		return nil, fmt.Errorf("search failed for %q: %w", query, err)
	}

	c.cache.Set(query, snippets, ttlcache.DefaultTTL)
	return snippets, nil
}

// googleResponse is the subset of the customsearch response we consume.
type googleResponse struct {
	Items []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"items"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *GoogleClient) doSearch(ctx context.Context, query string) ([]Snippet, error) {
	params := url.Values{}
	params.Set("key", c.cfg.APIKey)
	params.Set("cx", c.cfg.EngineID)
	params.Set("q", query)
	params.Set("num", strconv.Itoa(c.cfg.NumResults))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	// 4xx responses (bad key, quota exhausted, malformed query) won't get
	// better on retry; 5xx and transport errors are retried.
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return nil, backoff.Permanent(fmt.Errorf("search API returned status %d: %s", resp.StatusCode, string(body)))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search API returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed googleResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}
	if parsed.Error != nil {
		return nil, backoff.Permanent(fmt.Errorf("search API error %d: %s", parsed.Error.Code, parsed.Error.Message))
	}

	snippets := make([]Snippet, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		snippets = append(snippets, Snippet{
			Title: item.Title,
			URL:   item.Link,
			Text:  item.Snippet,
		})
	}

	if c.log != nil {
		c.log.Debug("search: query completed", "query", query, "results", len(snippets))
	}

	return snippets, nil
}
