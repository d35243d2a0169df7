// Package client provides the GitHub REST API fetcher with rate limit
// handling, conditional-request caching and network retries.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/gh-harvester/pkg/cache"
	"github.com/Sternrassler/gh-harvester/pkg/logging"
	"github.com/Sternrassler/gh-harvester/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the GitHub REST API root.
	DefaultBaseURL = "https://api.github.com"

	// AcceptHeader selects the v3 JSON media type.
	AcceptHeader = "application/vnd.github.v3+json"

	// DefaultUserAgent identifies the harvester to GitHub.
	DefaultUserAgent = "ghharvest/1.0"

	// maxErrorBody bounds how much of an error response is kept in APIError.
	maxErrorBody = 64 << 10
)

// Prometheus metrics for GitHub client operations.
var (
	ghRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ghh_requests_total",
		Help: "Total GitHub API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	ghRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ghh_request_duration_seconds",
		Help:    "GitHub API request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	ghErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ghh_errors_total",
		Help: "Total GitHub API errors by class",
	}, []string{"class"})

	ghRateLimitedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ghh_rate_limited_responses_total",
		Help: "Total 403/429 responses answered with a sleep until reset",
	}, []string{"resource"})

	ghRateLimitSleepSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ghh_rate_limit_sleep_seconds",
		Help:    "Sleep duration after a rate limit response",
		Buckets: []float64{1, 5, 30, 60, 300, 900, 3600},
	})
)

// Client is the GitHub API fetcher.
type Client struct {
	httpClient *http.Client
	tracker    *ratelimit.Tracker
	limiter    *rate.Limiter
	buckets    map[string]*semaphore.Weighted
	cache      *cache.Manager
	clock      ratelimit.Clock
	retry      RetryConfig
	baseURL    *url.URL
	scope      string
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// Token is the personal access token sent as "Authorization: token <token>". REQUIRED.
	Token Credential

	// BaseURL of the REST API (default DefaultBaseURL)
	BaseURL string

	// User-Agent header (GitHub rejects requests without one)
	UserAgent string

	// Timeout per HTTP request (default 30s)
	Timeout time.Duration

	// BucketConcurrency is how many requests may be in flight per rate limit
	// bucket across all goroutines sharing the client (default 1)
	BucketConcurrency int

	// Client-side pacing; 0 disables it
	RequestsPerSecond float64
	Burst             int

	// Network retry
	MaxNetworkRetries int
	InitialBackoff    time.Duration

	// RateLimitStore shares rate limit state. Defaults to a Redis store when
	// Redis is set, otherwise an in-memory store.
	RateLimitStore ratelimit.Store

	// Redis enables the conditional-request cache
	Redis *redis.Client

	// CacheRetention is how long 200 bodies are kept for revalidation
	CacheRetention time.Duration

	// HTTPClient supplies the base transport (for testing)
	HTTPClient *http.Client

	// Clock drives rate limit sleeps and retry backoff (for testing)
	Clock ratelimit.Clock
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(token string) Config {
	return Config{
		Token:             Credential(token),
		BaseURL:           DefaultBaseURL,
		UserAgent:         DefaultUserAgent,
		Timeout:           30 * time.Second,
		Burst:             1,
		BucketConcurrency: 1,
		MaxNetworkRetries: 3,
		InitialBackoff:    1 * time.Second,
		CacheRetention:    cache.DefaultRetention,
	}
}

// New creates a new GitHub client.
func New(cfg Config) (*Client, error) {
	if cfg.Token.Empty() {
		return nil, ErrMissingToken
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.BucketConcurrency < 1 {
		cfg.BucketConcurrency = 1
	}
	if cfg.RequestsPerSecond < 0 {
		return nil, fmt.Errorf("requests_per_second must be >= 0 (got %v)", cfg.RequestsPerSecond)
	}

	baseURL, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	logger := logging.NewLogger("github-client")

	clock := cfg.Clock
	if clock == nil {
		clock = ratelimit.SystemClock{}
	}

	store := cfg.RateLimitStore
	if store == nil && cfg.Redis != nil {
		store = ratelimit.NewRedisStore(cfg.Redis)
	}
	tracker := ratelimit.NewTracker(store, logger)
	tracker.SetClock(clock)

	var cacheManager *cache.Manager
	if cfg.Redis != nil {
		cacheManager = cache.NewManager(cfg.Redis)
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	buckets := make(map[string]*semaphore.Weighted)
	for _, resource := range []string{ratelimit.ResourceCore, ratelimit.ResourceSearch} {
		buckets[resource] = semaphore.NewWeighted(int64(cfg.BucketConcurrency))
	}

	retry := DefaultRetryConfig()
	if cfg.MaxNetworkRetries > 0 {
		retry.MaxAttempts = cfg.MaxNetworkRetries
	}
	if cfg.InitialBackoff > 0 {
		retry.InitialBackoff = cfg.InitialBackoff
	}

	base := http.DefaultTransport
	if cfg.HTTPClient != nil && cfg.HTTPClient.Transport != nil {
		base = cfg.HTTPClient.Transport
	}
	source := oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: string(cfg.Token),
		TokenType:   "token",
	})

	return &Client{
		httpClient: &http.Client{
			Transport: &oauth2.Transport{Source: source, Base: base},
			Timeout:   cfg.Timeout,
		},
		tracker: tracker,
		limiter: limiter,
		buckets: buckets,
		cache:   cacheManager,
		clock:   clock,
		retry:   retry,
		baseURL: baseURL,
		scope:   cache.ScopeForToken(string(cfg.Token)),
		config:  cfg,
		logger:  logger,
	}, nil
}

// URL returns the absolute URL of an API path.
func (c *Client) URL(path string) string {
	return c.baseURL.String() + "/" + strings.TrimLeft(path, "/")
}

// Get fetches rawURL with params merged into its query and decodes the JSON
// body of a 200 response into v (v may be nil).
//
// 403 and 429 responses are treated as rate limiting: the call sleeps until
// X-RateLimit-Reset plus one second and retries the same request, with no
// bound on the number of retries. Any other non-200 status is returned as
// *APIError without retrying.
//
// Concurrent calls charged to the same rate limit bucket hold one of its
// BucketConcurrency slots for the whole call, rate limit sleeps included.
func (c *Client) Get(ctx context.Context, rawURL string, params url.Values, v any) error {
	u, err := c.resolve(rawURL, params)
	if err != nil {
		return err
	}

	resource := ratelimit.ResourceForPath(u.Path)
	endpoint := endpointLabel(u.Path)
	cacheKey := cache.CacheKey{
		Endpoint:    u.Path,
		QueryParams: u.Query(),
		Scope:       c.scope,
	}

	bucket := c.bucket(resource)
	if err := bucket.Acquire(ctx, 1); err != nil {
		return contextError(err)
	}
	defer bucket.Release(1)

	for {
		if err := c.tracker.Wait(ctx, resource); err != nil {
			return contextError(err)
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return contextError(err)
			}
		}

		cachedEntry := c.lookupCache(ctx, cacheKey, endpoint)

		resp, err := c.send(ctx, u, endpoint, cachedEntry)
		if err != nil {
			return err
		}

		if err := c.tracker.UpdateFromHeaders(ctx, resource, resp.Header); err != nil {
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Failed to update rate limit from headers")
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			ghRequestsTotal.WithLabelValues(endpoint, "200").Inc()
			return c.handleOK(ctx, resp, cacheKey, endpoint, v)

		case resp.StatusCode == http.StatusNotModified && cachedEntry != nil:
			drain(resp)
			ghRequestsTotal.WithLabelValues(endpoint, "304").Inc()
			cache.NotModifiedResponses.Inc()
			c.logger.Debug().Str("endpoint", endpoint).Msg("304 Not Modified - using cache")

			if err := c.cache.Touch(ctx, cacheKey, time.Now().Add(c.cacheRetention())); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to extend cache retention")
			}
			return decode(cache.EntryToResponse(cachedEntry, resp.Request), v)

		case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests:
			drain(resp)
			ghRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()
			ghErrorsTotal.WithLabelValues(string(ErrorClassRateLimit)).Inc()
			if err := c.sleepUntilReset(ctx, resource, endpoint, resp); err != nil {
				return err
			}

		default:
			return c.apiError(resp, u, endpoint)
		}
	}
}

// sleepUntilReset blocks for max(reset-now, 0)+1s after a rate limit response.
func (c *Client) sleepUntilReset(ctx context.Context, resource, endpoint string, resp *http.Response) error {
	reset := ratelimit.ResetFromHeaders(resp.Header)
	sleep := ratelimit.SleepDuration(reset, c.clock.Now())

	c.logger.Warn().
		Str("endpoint", endpoint).
		Int("status", resp.StatusCode).
		Int64("reset", reset).
		Dur("sleep", sleep).
		Msgf("Rate limit exceeded. Sleeping for %.0f seconds", sleep.Seconds())

	if reset > 0 {
		if err := c.tracker.MarkLimited(ctx, resource, time.Unix(reset, 0)); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to record rate limit")
		}
	}

	ghRateLimitedTotal.WithLabelValues(resource).Inc()
	ghRateLimitSleepSeconds.Observe(sleep.Seconds())

	if err := c.clock.Sleep(ctx, sleep); err != nil {
		return contextError(err)
	}
	return nil
}

// send performs one GET, retrying transport failures with backoff.
func (c *Client) send(ctx context.Context, u *url.URL, endpoint string, cachedEntry *cache.CacheEntry) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", AcceptHeader)
	req.Header.Set("User-Agent", c.config.UserAgent)

	if cache.ShouldMakeConditionalRequest(cachedEntry) {
		cache.AddConditionalHeaders(req, cachedEntry)
		cache.ConditionalRequestsSent.Inc()
		c.logger.Debug().
			Str("endpoint", endpoint).
			Str("etag", cachedEntry.ETag).
			Msg("Making conditional request")
	}

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("url", u.String()).
		Msg("Executing GitHub request")

	var resp *http.Response
	err = retryWithBackoff(ctx, c.clock, c.retry, c.logger, func() error {
		startTime := time.Now()
		var reqErr error
		resp, reqErr = c.httpClient.Do(req)
		ghRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())

		if reqErr != nil {
			ghErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			ghRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
			c.logger.Warn().Err(reqErr).Str("endpoint", endpoint).Msg("HTTP request failed")
			return reqErr
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) handleOK(ctx context.Context, resp *http.Response, key cache.CacheKey, endpoint string, v any) error {
	if c.cache != nil {
		entry, err := cache.ResponseToEntry(resp, c.cacheRetention())
		if err != nil {
			resp.Body.Close()
			return fmt.Errorf("read response body: %w", err)
		}
		if entry.ETag != "" || !entry.LastModified.IsZero() {
			if err := c.cache.Set(ctx, key, entry); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to cache response")
			} else {
				c.logger.Debug().
					Str("endpoint", endpoint).
					Dur("ttl", entry.TTL()).
					Msg("Cached response")
			}
		}
	}
	return decode(resp, v)
}

func (c *Client) lookupCache(ctx context.Context, key cache.CacheKey, endpoint string) *cache.CacheEntry {
	if c.cache == nil {
		return nil
	}
	entry, err := c.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Cache get error")
		}
		return nil
	}
	return entry
}

func (c *Client) apiError(resp *http.Response, u *url.URL, endpoint string) error {
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	ghRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()
	ghErrorsTotal.WithLabelValues(string(ErrorClassAPI)).Inc()

	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Body:       string(body),
		URL:        u.String(),
	}
	c.logger.Error().
		Str("endpoint", endpoint).
		Int("status", resp.StatusCode).
		Str("body", apiErr.Body).
		Msg("GitHub API error")
	return apiErr
}

func (c *Client) cacheRetention() time.Duration {
	if c.config.CacheRetention > 0 {
		return c.config.CacheRetention
	}
	return cache.DefaultRetention
}

// resolve turns rawURL (absolute, or a path relative to the base URL) into a
// URL carrying params in addition to its own query.
func (c *Client) resolve(rawURL string, params url.Values) (*url.URL, error) {
	target := rawURL
	if strings.HasPrefix(rawURL, "/") {
		target = c.baseURL.String() + rawURL
	}
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	if len(params) > 0 {
		q := u.Query()
		for key, values := range params {
			q.Del(key)
			for _, value := range values {
				q.Add(key, value)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u, nil
}

// Tracker returns the rate limit tracker shared by all requests of this client.
func (c *Client) Tracker() *ratelimit.Tracker {
	return c.tracker
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func decode(resp *http.Response, v any) error {
	defer resp.Body.Close()
	if v == nil {
		_, err := io.Copy(io.Discard, resp.Body)
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()
}

func contextError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrContextCancelled, err)
	}
	return err
}

// bucket returns the request slots of resource.
func (c *Client) bucket(resource string) *semaphore.Weighted {
	if b, ok := c.buckets[resource]; ok {
		return b
	}
	return c.buckets[ratelimit.ResourceCore]
}

// endpointLabel collapses user names out of a path so metric cardinality stays bounded.
func endpointLabel(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) >= 2 && parts[0] == "users" {
		parts[1] = "{login}"
	}
	if len(parts) >= 3 && parts[0] == "repos" {
		parts[1], parts[2] = "{owner}", "{repo}"
	}
	return "/" + strings.Join(parts, "/")
}
