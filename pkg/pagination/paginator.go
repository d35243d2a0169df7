package pagination

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/gh-harvester/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// DefaultPerPage is the largest page size GitHub accepts.
const DefaultPerPage = 100

var pagesFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ghh_pages_fetched_total",
	Help: "Total result pages fetched by paginated flow",
}, []string{"flow"})

// Phase is a state of the pagination walk.
type Phase int

const (
	PhaseFetchingPage Phase = iota
	PhaseNormalizing
	PhaseAdvancing
	PhaseDone
)

// String returns the state name used in logs.
func (p Phase) String() string {
	switch p {
	case PhaseFetchingPage:
		return "FETCHING_PAGE"
	case PhaseNormalizing:
		return "NORMALIZING"
	case PhaseAdvancing:
		return "ADVANCING"
	case PhaseDone:
		return "DONE"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// StopRule selects when a short page ends the walk.
type StopRule int

const (
	// StopOnEmpty stops only on an empty page.
	StopOnEmpty StopRule = iota

	// StopOnShort also stops on a page with fewer than PerPage items.
	StopOnShort
)

// Config holds paginator configuration.
type Config struct {
	// Flow names the walk in logs and metrics (e.g. "search_users")
	Flow string

	// PerPage is the requested page size
	PerPage int

	// Stop is the termination rule for partial pages
	Stop StopRule

	// Max caps the number of records; 0 means unbounded
	Max int
}

// DefaultConfig returns the configuration used for GitHub search.
func DefaultConfig() Config {
	return Config{
		Flow:    "default",
		PerPage: DefaultPerPage,
		Stop:    StopOnEmpty,
	}
}

// FetchFunc returns the raw items of one page. Pages are numbered from 1.
type FetchFunc[R any] func(ctx context.Context, page, perPage int) ([]R, error)

// NormalizeFunc maps one raw item to a record.
type NormalizeFunc[R, T any] func(ctx context.Context, item R) (T, error)

// Paginator drives a FetchFunc across pages until its termination rule holds.
type Paginator[R, T any] struct {
	fetch     FetchFunc[R]
	normalize NormalizeFunc[R, T]
	config    Config
	observe   func(phase Phase, page int)
	logger    zerolog.Logger
}

// New creates a paginator.
func New[R, T any](fetch FetchFunc[R], normalize NormalizeFunc[R, T], config Config) *Paginator[R, T] {
	if config.PerPage <= 0 {
		config.PerPage = DefaultPerPage
	}
	if config.Max < 0 {
		config.Max = 0
	}
	if config.Flow == "" {
		config.Flow = "default"
	}

	return &Paginator[R, T]{
		fetch:     fetch,
		normalize: normalize,
		config:    config,
		logger:    logging.NewLogger("paginator"),
	}
}

// Observe registers fn to be called on every phase transition.
func (p *Paginator[R, T]) Observe(fn func(phase Phase, page int)) *Paginator[R, T] {
	p.observe = fn
	return p
}

func (p *Paginator[R, T]) enter(phase Phase, page int) {
	if p.observe != nil {
		p.observe(phase, page)
	}
}

// Collect walks the pages and returns the normalized records in page order.
func (p *Paginator[R, T]) Collect(ctx context.Context) ([]T, error) {
	if p.fetch == nil || p.normalize == nil {
		return nil, errors.New("paginator requires fetch and normalize functions")
	}

	start := time.Now()
	records := make([]T, 0)
	page := 1

	for {
		p.enter(PhaseFetchingPage, page)
		items, err := p.fetch(ctx, page, p.config.PerPage)
		if err != nil {
			return nil, fmt.Errorf("fetch page %d: %w", page, err)
		}
		pagesFetchedTotal.WithLabelValues(p.config.Flow).Inc()

		if len(items) == 0 {
			break
		}

		p.enter(PhaseNormalizing, page)
		for _, item := range items {
			record, err := p.normalize(ctx, item)
			if err != nil {
				return nil, fmt.Errorf("normalize page %d: %w", page, err)
			}
			records = append(records, record)
		}

		p.logger.Debug().
			Str("flow", p.config.Flow).
			Int("page", page).
			Int("items", len(items)).
			Int("collected", len(records)).
			Msg("Page collected")

		if p.config.Max > 0 && len(records) >= p.config.Max {
			break
		}
		if p.config.Stop == StopOnShort && len(items) < p.config.PerPage {
			break
		}

		p.enter(PhaseAdvancing, page)
		page++
	}

	p.enter(PhaseDone, page)

	if p.config.Max > 0 && len(records) > p.config.Max {
		records = records[:p.config.Max]
	}

	p.logger.Debug().
		Str("flow", p.config.Flow).
		Int("pages", page).
		Int("records", len(records)).
		Dur("duration", time.Since(start)).
		Msg("Pagination complete")

	return records, nil
}
