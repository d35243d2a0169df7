// Package ratelimit implements GitHub rate limit tracking and request gating.
// It reads the X-RateLimit-Remaining and X-RateLimit-Reset headers returned on
// every API response and keeps the last observed state per resource bucket so
// that all requests sharing a bucket wait for the same reset.
package ratelimit

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// GitHub rate limit response headers.
const (
	HeaderLimit     = "X-RateLimit-Limit"
	HeaderRemaining = "X-RateLimit-Remaining"
	HeaderReset     = "X-RateLimit-Reset"
	HeaderResource  = "X-RateLimit-Resource"
)

// Resource buckets. The search API is metered separately from the rest of the REST API.
const (
	ResourceCore   = "core"
	ResourceSearch = "search"
)

// RedisKeyPrefix prefixes the per-resource state hashes stored in Redis.
const RedisKeyPrefix = "ghh:rate_limit:"

// ResetPadding is added to every computed wait so requests never land right on the reset second.
const ResetPadding = 1 * time.Second

// State is the last observed rate limit state of one resource bucket.
type State struct {
	// Resource is the bucket name reported by X-RateLimit-Resource.
	Resource string `json:"resource"`

	// Limit is the bucket size (X-RateLimit-Limit).
	Limit int `json:"limit"`

	// Remaining is the number of requests left in the current window (X-RateLimit-Remaining).
	Remaining int `json:"remaining"`

	// ResetAt is when the window resets (X-RateLimit-Reset, epoch seconds).
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is when this state was observed.
	LastUpdate time.Time `json:"last_update"`
}

// IsStale returns true if the state is older than maxAge.
func (s *State) IsStale(now time.Time, maxAge time.Duration) bool {
	return now.Sub(s.LastUpdate) > maxAge
}

// Exhausted reports whether the bucket has no requests left and has not reset yet.
func (s *State) Exhausted(now time.Time) bool {
	return s.Remaining <= 0 && now.Before(s.ResetAt)
}

// TimeUntilReset returns the duration until the window resets, or 0 if it already has.
func (s *State) TimeUntilReset(now time.Time) time.Duration {
	d := s.ResetAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// SleepDuration returns how long to wait for a window resetting at the given
// epoch second: max(reset - now, 0) + ResetPadding.
func SleepDuration(reset int64, now time.Time) time.Duration {
	d := time.Unix(reset, 0).Sub(now)
	if d < 0 {
		d = 0
	}
	return d + ResetPadding
}

// ResetFromHeaders returns the X-RateLimit-Reset epoch second, or 0 when the
// header is missing or malformed.
func ResetFromHeaders(headers http.Header) int64 {
	reset, err := strconv.ParseInt(strings.TrimSpace(headers.Get(HeaderReset)), 10, 64)
	if err != nil {
		return 0
	}
	return reset
}

// ResourceForPath maps an API path to the rate limit bucket it is charged to.
func ResourceForPath(path string) string {
	if strings.HasPrefix(path, "/search/") {
		return ResourceSearch
	}
	return ResourceCore
}

// ParseHeaders builds a State from response headers. ok is false when the
// response carries no rate limit headers at all. fallbackResource is used when
// X-RateLimit-Resource is absent.
func ParseHeaders(headers http.Header, fallbackResource string, now time.Time) (state *State, ok bool, err error) {
	remainStr := headers.Get(HeaderRemaining)
	if remainStr == "" {
		return nil, false, nil
	}

	remaining, err := strconv.Atoi(strings.TrimSpace(remainStr))
	if err != nil {
		return nil, false, fmt.Errorf("parse %s header: %w", HeaderRemaining, err)
	}

	resetStr := headers.Get(HeaderReset)
	if resetStr == "" {
		return nil, false, fmt.Errorf("%s header missing", HeaderReset)
	}
	reset, err := strconv.ParseInt(strings.TrimSpace(resetStr), 10, 64)
	if err != nil {
		return nil, false, fmt.Errorf("parse %s header: %w", HeaderReset, err)
	}

	limit := 0
	if limitStr := headers.Get(HeaderLimit); limitStr != "" {
		if limit, err = strconv.Atoi(strings.TrimSpace(limitStr)); err != nil {
			return nil, false, fmt.Errorf("parse %s header: %w", HeaderLimit, err)
		}
	}

	resource := headers.Get(HeaderResource)
	if resource == "" {
		resource = fallbackResource
	}

	return &State{
		Resource:   resource,
		Limit:      limit,
		Remaining:  remaining,
		ResetAt:    time.Unix(reset, 0),
		LastUpdate: now,
	}, true, nil
}
