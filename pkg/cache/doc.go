// Package cache provides a Redis-backed response cache for GitHub REST API GETs.
//
// GitHub answers a conditional request (If-None-Match / If-Modified-Since)
// with 304 Not Modified when the resource did not change, and a 304 is not
// charged against the primary rate limit. The cache keeps the last 200 body
// and its validators for a retention window so that repeated harvests of the
// same users revalidate instead of re-downloading.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	manager := cache.NewManager(redisClient)
//
//	key := cache.CacheKey{
//		Endpoint:    "/users/octocat/repos",
//		QueryParams: url.Values{"page": []string{"1"}},
//		Scope:       cache.ScopeForToken(token),
//	}
//
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// plain request
//	}
//
// # Conditional Requests
//
//	if cache.ShouldMakeConditionalRequest(entry) {
//		cache.AddConditionalHeaders(req, entry)
//	}
//	// on 304:
//	resp = cache.EntryToResponse(entry, req)
//
// # Metrics
//
//   - ghh_cache_hits_total{layer="redis"} - Cache hits
//   - ghh_cache_misses_total - Cache misses
//   - ghh_conditional_requests_total - Requests sent with validators
//   - ghh_304_responses_total - Requests answered with 304 Not Modified
//   - ghh_cache_errors_total{operation} - Cache operation errors
//
// Entries are scoped by a token fingerprint so that two credentials never
// share cached bodies.
package cache
