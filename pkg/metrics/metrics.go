// Package metrics exposes the Prometheus metrics of the harvester.
// All metrics are defined in their respective packages (client, cache,
// ratelimit, pagination, scraper) to maintain modularity and avoid circular
// dependencies; this package documents them and serves them over HTTP.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the harvester.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the registry read by Handler.
var Gatherer = prometheus.DefaultGatherer

// Handler serves the registered metrics in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Rate Limit Metrics (pkg/ratelimit):
//   - ghh_rate_limit_remaining{resource} (Gauge): Requests left in the current window
//   - ghh_rate_limit_waits_total{resource} (Counter): Requests held back until a reset
//   - ghh_rate_limit_wait_seconds{resource} (Histogram): Time spent waiting for a reset
//
// Cache Metrics (pkg/cache):
//   - ghh_cache_hits_total{layer="redis"} (Counter): Responses served from the ETag cache
//   - ghh_cache_misses_total (Counter): Cache misses
//   - ghh_conditional_requests_total (Counter): Requests sent with If-None-Match
//   - ghh_304_responses_total (Counter): 304 Not Modified responses
//   - ghh_cache_errors_total{operation} (Counter): Cache operation errors
//
// Request Metrics (pkg/client):
//   - ghh_requests_total{endpoint, status} (Counter): Requests by endpoint and HTTP status
//   - ghh_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - ghh_errors_total{class} (Counter): Errors by class (rate_limit, api, network)
//   - ghh_rate_limited_responses_total{resource} (Counter): 403/429 responses
//   - ghh_rate_limit_sleep_seconds (Histogram): Sleep after a rate limit response
//
// Retry Metrics (pkg/client):
//   - ghh_retries_total{error_class} (Counter): Network retry attempts
//   - ghh_retry_backoff_seconds{error_class} (Histogram): Backoff duration
//   - ghh_retry_exhausted_total{error_class} (Counter): Requests that exhausted their retries
//
// Harvest Metrics (pkg/pagination, pkg/scraper):
//   - ghh_pages_fetched_total{flow} (Counter): Result pages fetched by flow
//   - ghh_harvested_records_total{kind} (Counter): Users and repositories harvested
//   - ghh_harvest_duration_seconds (Histogram): Duration of complete runs
//
// Example Prometheus Queries:
//
//   # Search budget left
//   ghh_rate_limit_remaining{resource="search"}
//
//   # Time lost to rate limiting
//   sum(rate(ghh_rate_limit_sleep_seconds_sum[1h]))
//
//   # Revalidation rate
//   rate(ghh_304_responses_total[5m]) / rate(ghh_conditional_requests_total[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(ghh_request_duration_seconds_bucket[5m]))
