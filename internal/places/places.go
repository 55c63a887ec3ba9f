package places

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"outing/internal/cache"
	outingerrors "outing/internal/errors"
	"outing/internal/logging"
	"outing/internal/metrics"
)

// API is the venue search surface the executor depends on.
type API interface {
	TextSearch(ctx context.Context, req TextSearchRequest) ([]Place, error)
	Details(ctx context.Context, placeID string) (*Place, error)
}

// TextSearchRequest is one text search. LocationLatLng and RadiusM are only
// sent together; MaxResults truncates client-side.
type TextSearchRequest struct {
	Query          string
	LocationLatLng string
	RadiusM        int
	MaxResults     int
	Language       string
}

// Place is the wire shape shared by search results and detail lookups.
// Rating, review count and price level are pointers because the API omits
// them freely.
type Place struct {
	PlaceID          string    `json:"place_id"`
	Name             string    `json:"name"`
	FormattedAddress string    `json:"formatted_address"`
	Rating           *float64  `json:"rating,omitempty"`
	UserRatingsTotal *int      `json:"user_ratings_total,omitempty"`
	PriceLevel       *int      `json:"price_level,omitempty"`
	Types            []string  `json:"types,omitempty"`
	Geometry         *Geometry `json:"geometry,omitempty"`
}

// Geometry carries the venue coordinates.
type Geometry struct {
	Location LatLng `json:"location"`
}

// LatLng is a coordinate pair.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// LatLngString renders the coordinates as "lat,lng", or "" when absent.
func (p *Place) LatLngString() string {
	if p == nil || p.Geometry == nil {
		return ""
	}
	return fmt.Sprintf("%g,%g", p.Geometry.Location.Lat, p.Geometry.Location.Lng)
}

// Category returns the primary venue type.
func (p *Place) Category() string {
	if p == nil || len(p.Types) == 0 {
		return "unknown"
	}
	return p.Types[0]
}

// Config configures the HTTP client.
type Config struct {
	APIKey       string
	BaseURL      string
	Timeout      time.Duration
	Language     string
	CacheEnabled bool
	CacheMaxSize int
	CacheTTL     time.Duration
}

// Defaults applied by NewClient when Config fields are zero.
const (
	DefaultBaseURL      = "https://maps.googleapis.com/maps/api"
	DefaultTimeout      = 10 * time.Second
	DefaultLanguage     = "en"
	DefaultCacheMaxSize = 1000
	DefaultCacheTTL     = 24 * time.Hour

	detailFields = "place_id,name,rating,user_ratings_total,formatted_address,price_level,geometry"

	maxResponseBytes = 4 << 20
	placesCacheName  = "places"
)

// Client is the production API implementation: bounded TTL caches in front
// of the HTTP endpoints, retries per the configured policy, and a call
// counter for cost accounting.
type Client struct {
	apiKey   string
	baseURL  string
	language string
	http     *http.Client
	logger   *logging.Logger
	policy   outingerrors.RetryPolicy
	metrics  *metrics.Metrics

	searchCache  *cache.Cache[[]Place]
	detailsCache *cache.Cache[Place]

	callCount atomic.Int64
}

// NewClient constructs the production venue search client.
func NewClient(cfg Config, policy outingerrors.RetryPolicy, logger *logging.Logger, m *metrics.Metrics) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Language == "" {
		cfg.Language = DefaultLanguage
	}

	c := &Client{
		apiKey:   cfg.APIKey,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		language: cfg.Language,
		http:     &http.Client{Timeout: cfg.Timeout},
		logger:   logging.OrNop(logger),
		policy:   policy,
		metrics:  m,
	}
	if cfg.CacheEnabled {
		maxSize := cfg.CacheMaxSize
		if maxSize <= 0 {
			maxSize = DefaultCacheMaxSize
		}
		ttl := cfg.CacheTTL
		if ttl <= 0 {
			ttl = DefaultCacheTTL
		}
		c.searchCache = cache.New[[]Place](maxSize, ttl)
		c.detailsCache = cache.New[Place](maxSize, ttl)
	}
	return c
}

// CallCount reports how many outbound API calls this client has made.
func (c *Client) CallCount() int {
	return int(c.callCount.Load())
}

type searchResponse struct {
	Status  string  `json:"status"`
	Results []Place `json:"results"`
}

type detailsResponse struct {
	Status string `json:"status"`
	Result Place  `json:"result"`
}

// TextSearch runs a text query and returns up to MaxResults places.
// ZERO_RESULTS is a successful empty answer, not an error.
func (c *Client) TextSearch(ctx context.Context, req TextSearchRequest) ([]Place, error) {
	if req.Query == "" {
		return nil, fmt.Errorf("text search requires a query")
	}
	if req.MaxResults <= 0 {
		req.MaxResults = 10
	}

	key := searchCacheKey(req, c.language)
	if c.searchCache != nil {
		if cached, ok := c.searchCache.Get(key); ok {
			c.logger.Debug("places cache hit", "query", req.Query, "key", key[:16])
			c.metrics.RecordCacheHit(placesCacheName)
			return cached, nil
		}
		c.metrics.RecordCacheMiss(placesCacheName)
	}

	params := url.Values{}
	params.Set("query", req.Query)
	params.Set("key", c.apiKey)
	params.Set("language", c.language)
	if req.LocationLatLng != "" && req.RadiusM > 0 {
		params.Set("location", req.LocationLatLng)
		params.Set("radius", strconv.Itoa(req.RadiusM))
	}

	results, err := outingerrors.CallWithRetry(ctx, c.policy, c.logger, "places text search",
		func(ctx context.Context) ([]Place, error) {
			var parsed searchResponse
			if err := c.get(ctx, "/place/textsearch/json", params, &parsed); err != nil {
				return nil, err
			}
			if err := checkStatus(parsed.Status); err != nil {
				return nil, err
			}
			return parsed.Results, nil
		})
	if err != nil {
		return nil, err
	}

	if len(results) > req.MaxResults {
		results = results[:req.MaxResults]
	}
	if c.searchCache != nil {
		c.searchCache.Set(key, results)
	}
	return results, nil
}

// Details fetches the detail fields for one place.
func (c *Client) Details(ctx context.Context, placeID string) (*Place, error) {
	if placeID == "" {
		return nil, fmt.Errorf("details requires a place id")
	}

	key := detailsCacheKey(placeID, c.language)
	if c.detailsCache != nil {
		if cached, ok := c.detailsCache.Get(key); ok {
			c.metrics.RecordCacheHit(placesCacheName)
			return &cached, nil
		}
		c.metrics.RecordCacheMiss(placesCacheName)
	}

	params := url.Values{}
	params.Set("place_id", placeID)
	params.Set("fields", detailFields)
	params.Set("key", c.apiKey)
	params.Set("language", c.language)

	result, err := outingerrors.CallWithRetry(ctx, c.policy, c.logger, "places details",
		func(ctx context.Context) (Place, error) {
			var parsed detailsResponse
			if err := c.get(ctx, "/place/details/json", params, &parsed); err != nil {
				return Place{}, err
			}
			if err := checkStatus(parsed.Status); err != nil {
				return Place{}, err
			}
			return parsed.Result, nil
		})
	if err != nil {
		return nil, err
	}

	if c.detailsCache != nil {
		c.detailsCache.Set(key, result)
	}
	return &result, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	endpoint := c.baseURL + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	c.callCount.Add(1)
	if err != nil {
		c.metrics.RecordAPICall(placesCacheName, 0, time.Since(start))
		return outingerrors.NewTransientError(err, "places connection failed")
	}
	defer func() { _ = resp.Body.Close() }()

	c.metrics.RecordAPICall(placesCacheName, resp.StatusCode, time.Since(start))

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return outingerrors.NewTransientError(err, "read places response")
	}

	if resp.StatusCode != http.StatusOK {
		base := fmt.Errorf("places api http status %d", resp.StatusCode)
		switch {
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return outingerrors.NewTransientError(base, fmt.Sprintf("places api returned %d", resp.StatusCode))
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return outingerrors.NewPermanentError(base, "places authentication failed")
		default:
			return base
		}
	}

	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode places response: %w", err)
	}
	return nil
}

// checkStatus maps the API-level status field onto the retry taxonomy.
// OK and ZERO_RESULTS are success; quota exhaustion is transient; denied
// requests are permanent.
func checkStatus(status string) error {
	switch status {
	case "OK", "ZERO_RESULTS":
		return nil
	case "OVER_QUERY_LIMIT":
		return outingerrors.NewTransientError(
			fmt.Errorf("places api status %s", status), "places rate limit exceeded")
	case "REQUEST_DENIED":
		return outingerrors.NewPermanentError(
			fmt.Errorf("places api status %s", status), "places request denied")
	default:
		return fmt.Errorf("places api returned error status: %s", status)
	}
}

func searchCacheKey(req TextSearchRequest, language string) string {
	content := strings.Join([]string{
		"text_search",
		"language=" + language,
		"location=" + req.LocationLatLng,
		"max_results=" + strconv.Itoa(req.MaxResults),
		"query=" + req.Query,
		"radius=" + strconv.Itoa(req.RadiusM),
	}, "|")
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func detailsCacheKey(placeID, language string) string {
	content := strings.Join([]string{"details", "language=" + language, "place_id=" + placeID}, "|")
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
