// Package scraper walks GitHub user search and repository listings and
// normalizes the results into records.
package scraper

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/Sternrassler/gh-harvester/pkg/export"
	"github.com/Sternrassler/gh-harvester/pkg/logging"
	"github.com/Sternrassler/gh-harvester/pkg/model"
	"github.com/Sternrassler/gh-harvester/pkg/pagination"
	"github.com/google/go-github/v53/github"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxRepos is the per-user repository cap.
const DefaultMaxRepos = 500

var (
	harvestedRecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ghh_harvested_records_total",
		Help: "Total records harvested by kind",
	}, []string{"kind"})

	harvestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ghh_harvest_duration_seconds",
		Help:    "Duration of complete harvest runs",
		Buckets: []float64{1, 10, 60, 300, 900, 1800, 3600, 7200},
	})
)

// Fetcher performs rate-limit-aware GET requests. *client.Client implements it.
type Fetcher interface {
	Get(ctx context.Context, rawURL string, params url.Values, v any) error
	URL(path string) string
}

// Config holds scraper configuration.
type Config struct {
	// PerPage is the page size for search and listing (max 100)
	PerPage int

	// MaxRepos caps repositories per user when a call passes 0
	MaxRepos int

	// Workers is the number of users whose repositories are listed concurrently
	Workers int
}

// DefaultConfig returns the sequential configuration.
func DefaultConfig() Config {
	return Config{
		PerPage:  pagination.DefaultPerPage,
		MaxRepos: DefaultMaxRepos,
		Workers:  1,
	}
}

// Scraper runs the search and listing flows against a Fetcher.
type Scraper struct {
	fetcher Fetcher
	config  Config
	logger  zerolog.Logger
}

// New creates a scraper.
func New(fetcher Fetcher, cfg Config) *Scraper {
	if cfg.PerPage <= 0 || cfg.PerPage > pagination.DefaultPerPage {
		cfg.PerPage = pagination.DefaultPerPage
	}
	if cfg.MaxRepos <= 0 {
		cfg.MaxRepos = DefaultMaxRepos
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}

	return &Scraper{
		fetcher: fetcher,
		config:  cfg,
		logger:  logging.NewLogger("scraper"),
	}
}

// SearchQuery builds the search qualifier string for location and followers.
func SearchQuery(location string, minFollowers int) string {
	return fmt.Sprintf("location:%s followers:>=%d", location, minFollowers)
}

// SearchUsers returns the full profiles of every user matching the location
// and follower threshold, in search order. Each hit costs one extra request
// for the profile. The walk ends on the first empty page.
func (s *Scraper) SearchUsers(ctx context.Context, location string, minFollowers int) ([]model.UserRecord, error) {
	query := SearchQuery(location, minFollowers)
	logger := s.logger.With().Str("query", query).Logger()

	fetch := func(ctx context.Context, page, perPage int) ([]*github.User, error) {
		params := url.Values{
			"q":        {query},
			"per_page": {strconv.Itoa(perPage)},
			"page":     {strconv.Itoa(page)},
		}
		var result github.UsersSearchResult
		if err := s.fetcher.Get(ctx, s.fetcher.URL("/search/users"), params, &result); err != nil {
			return nil, err
		}
		logger.Debug().Int("page", page).Int("hits", len(result.Users)).Msg("Search page fetched")
		return result.Users, nil
	}

	normalize := func(ctx context.Context, hit *github.User) (model.UserRecord, error) {
		profileURL := hit.GetURL()
		if profileURL == "" {
			profileURL = s.fetcher.URL("/users/" + hit.GetLogin())
		}
		var user github.User
		if err := s.fetcher.Get(ctx, profileURL, nil, &user); err != nil {
			return model.UserRecord{}, fmt.Errorf("get user %s: %w", hit.GetLogin(), err)
		}
		return NormalizeUser(&user), nil
	}

	cfg := pagination.Config{
		Flow:    "search_users",
		PerPage: s.config.PerPage,
		Stop:    pagination.StopOnEmpty,
	}
	users, err := pagination.New(fetch, normalize, cfg).Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}

	logger.Info().Int("count", len(users)).Msg("User search complete")
	return users, nil
}

// ListUserRepositories returns up to maxRepos repositories of login, most
// recently pushed first. maxRepos <= 0 uses the configured cap.
func (s *Scraper) ListUserRepositories(ctx context.Context, login string, maxRepos int) ([]model.RepositoryRecord, error) {
	if maxRepos <= 0 {
		maxRepos = s.config.MaxRepos
	}
	logger := s.logger.With().Str("login", login).Logger()
	reposURL := s.fetcher.URL("/users/" + url.PathEscape(login) + "/repos")

	fetch := func(ctx context.Context, page, perPage int) ([]*github.Repository, error) {
		params := url.Values{
			"sort":      {"pushed"},
			"direction": {"desc"},
			"per_page":  {strconv.Itoa(perPage)},
			"page":      {strconv.Itoa(page)},
		}
		var repos []*github.Repository
		if err := s.fetcher.Get(ctx, reposURL, params, &repos); err != nil {
			return nil, err
		}
		logger.Debug().Int("page", page).Int("repos", len(repos)).Msg("Repository page fetched")
		return repos, nil
	}

	normalize := func(_ context.Context, r *github.Repository) (model.RepositoryRecord, error) {
		return NormalizeRepository(login, r), nil
	}

	cfg := pagination.Config{
		Flow:    "list_repositories",
		PerPage: s.config.PerPage,
		Stop:    pagination.StopOnShort,
		Max:     maxRepos,
	}
	repos, err := pagination.New(fetch, normalize, cfg).Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("list repositories of %s: %w", login, err)
	}

	logger.Debug().Int("count", len(repos)).Msg("Repository listing complete")
	return repos, nil
}

// Query describes one harvest run.
type Query struct {
	// RunID tags logs and stored rows; generated when empty
	RunID string

	Location     string
	MinFollowers int

	// MaxRepos caps repositories per user; 0 uses the configured cap
	MaxRepos int
}

// Result is the output of a harvest run.
type Result struct {
	RunID        string
	Users        []model.UserRecord
	Repositories []model.RepositoryRecord
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Harvest searches users, then lists the repositories of each user. With
// Workers > 1 the listings run concurrently; requests charged to the same
// rate limit bucket are still sent one at a time by the client. The output
// order is the same as a sequential run. sink may be nil; otherwise each non-empty flow is written
// to it as soon as the flow completes. The first error aborts the run.
func (s *Scraper) Harvest(ctx context.Context, q Query, sink export.Sink) (*Result, error) {
	if q.RunID == "" {
		q.RunID = uuid.NewString()
	}
	logger := s.logger.With().Str("run_id", q.RunID).Logger()
	result := &Result{RunID: q.RunID, StartedAt: time.Now()}

	logger.Info().
		Str("location", q.Location).
		Int("min_followers", q.MinFollowers).
		Int("workers", s.config.Workers).
		Msg("Harvest started")

	users, err := s.SearchUsers(ctx, q.Location, q.MinFollowers)
	if err != nil {
		return nil, err
	}
	result.Users = users
	harvestedRecordsTotal.WithLabelValues("user").Add(float64(len(users)))

	if sink != nil && len(users) > 0 {
		if err := sink.WriteUsers(ctx, users); err != nil {
			return nil, fmt.Errorf("write users: %w", err)
		}
	}

	repos, err := s.listAll(ctx, users, q.MaxRepos)
	if err != nil {
		return nil, err
	}
	result.Repositories = repos
	harvestedRecordsTotal.WithLabelValues("repository").Add(float64(len(repos)))

	if sink != nil && len(repos) > 0 {
		if err := sink.WriteRepositories(ctx, repos); err != nil {
			return nil, fmt.Errorf("write repositories: %w", err)
		}
	}

	result.FinishedAt = time.Now()
	duration := result.FinishedAt.Sub(result.StartedAt)
	harvestDuration.Observe(duration.Seconds())

	logger.Info().
		Int("users", len(users)).
		Int("repositories", len(repos)).
		Dur("duration", duration).
		Msg("Harvest complete")
	return result, nil
}

// listAll lists repositories for every user, keeping per-user results in
// user order regardless of completion order.
func (s *Scraper) listAll(ctx context.Context, users []model.UserRecord, maxRepos int) ([]model.RepositoryRecord, error) {
	perUser := make([][]model.RepositoryRecord, len(users))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Workers)

	for i, u := range users {
		i, u := i, u
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			repos, err := s.ListUserRepositories(gctx, u.Login, maxRepos)
			if err != nil {
				return err
			}
			perUser[i] = repos
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, repos := range perUser {
		total += len(repos)
	}
	all := make([]model.RepositoryRecord, 0, total)
	for _, repos := range perUser {
		all = append(all, repos...)
	}
	return all, nil
}
