package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for rate limit tracking.
var (
	rateLimitRemaining = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ghh_rate_limit_remaining",
		Help: "Requests remaining in the current GitHub rate limit window by resource",
	}, []string{"resource"})

	rateLimitWaitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ghh_rate_limit_waits_total",
		Help: "Total number of requests held back until the rate limit window reset",
	}, []string{"resource"})

	rateLimitWaitSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ghh_rate_limit_wait_seconds",
		Help:    "Time spent waiting for a rate limit window to reset",
		Buckets: []float64{1, 5, 30, 60, 300, 900, 3600},
	}, []string{"resource"})
)

// Tracker records GitHub rate limit state and holds requests back while a
// bucket is exhausted.
type Tracker struct {
	store  Store
	clock  Clock
	logger zerolog.Logger
}

// NewTracker creates a tracker over store. A nil store means a fresh MemoryStore.
func NewTracker(store Store, logger zerolog.Logger) *Tracker {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Tracker{
		store:  store,
		clock:  SystemClock{},
		logger: logger,
	}
}

// SetClock replaces the time source (for testing).
func (t *Tracker) SetClock(clock Clock) {
	if clock != nil {
		t.clock = clock
	}
}

// GetState returns the last observed state of resource, or nil if none.
func (t *Tracker) GetState(ctx context.Context, resource string) (*State, error) {
	state, err := t.store.Get(ctx, resource)
	if err != nil {
		return nil, fmt.Errorf("get rate limit state: %w", err)
	}
	return state, nil
}

// UpdateFromHeaders stores the state carried by a response. Responses without
// rate limit headers are ignored.
func (t *Tracker) UpdateFromHeaders(ctx context.Context, resource string, headers http.Header) error {
	state, ok, err := ParseHeaders(headers, resource, t.clock.Now())
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	if err := t.store.Set(ctx, state); err != nil {
		return err
	}
	rateLimitRemaining.WithLabelValues(state.Resource).Set(float64(state.Remaining))

	t.logger.Debug().
		Str("resource", state.Resource).
		Int("remaining", state.Remaining).
		Int("limit", state.Limit).
		Time("reset_at", state.ResetAt).
		Msg("Rate limit state updated")

	return nil
}

// MarkLimited records that resource was refused until resetAt, so that other
// requests on the same bucket wait instead of discovering the limit themselves.
func (t *Tracker) MarkLimited(ctx context.Context, resource string, resetAt time.Time) error {
	now := t.clock.Now()
	state, err := t.store.Get(ctx, resource)
	if err != nil {
		return fmt.Errorf("get rate limit state: %w", err)
	}
	if state == nil {
		state = &State{Resource: resource}
	}
	state.Remaining = 0
	state.ResetAt = resetAt
	state.LastUpdate = now

	if err := t.store.Set(ctx, state); err != nil {
		return err
	}
	rateLimitRemaining.WithLabelValues(resource).Set(0)
	return nil
}

// Wait blocks until resource may be used. It returns immediately when the
// bucket has budget left or no state is known.
func (t *Tracker) Wait(ctx context.Context, resource string) error {
	state, err := t.GetState(ctx, resource)
	if err != nil {
		return err
	}
	now := t.clock.Now()
	if state == nil || !state.Exhausted(now) {
		return nil
	}

	wait := SleepDuration(state.ResetAt.Unix(), now)
	t.logger.Warn().
		Str("resource", resource).
		Time("reset_at", state.ResetAt).
		Dur("sleep", wait).
		Msg("Rate limit exhausted - waiting for reset")

	rateLimitWaitsTotal.WithLabelValues(resource).Inc()
	rateLimitWaitSeconds.WithLabelValues(resource).Observe(wait.Seconds())

	if err := t.clock.Sleep(ctx, wait); err != nil {
		return fmt.Errorf("wait for rate limit reset: %w", err)
	}
	return nil
}
