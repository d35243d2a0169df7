package analysis

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Sternrassler/gh-harvester/pkg/model"
	"github.com/montanaflynn/stats"
)

// ErrNotEnoughData is returned when a query has too few values to answer.
var ErrNotEnoughData = errors.New("not enough data")

// inLocation reports whether the user's location contains location,
// ignoring case and surrounding whitespace.
func inLocation(u model.UserRecord, location string) bool {
	return strings.Contains(
		strings.ToLower(strings.TrimSpace(u.Location)),
		strings.ToLower(strings.TrimSpace(location)),
	)
}

// TopByFollowers returns the logins of the n users in location with the
// most followers, most followed first. Ties keep input order.
func TopByFollowers(users []model.UserRecord, location string, n int) []string {
	var matched []model.UserRecord
	for _, u := range users {
		if inLocation(u, location) {
			matched = append(matched, u)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Followers > matched[j].Followers
	})
	return logins(matched, n)
}

// EarliestCreated returns the logins of the n users in location who joined
// first. Users with an unparseable created_at are logged and skipped.
func EarliestCreated(users []model.UserRecord, location string, n int) []string {
	type dated struct {
		user    model.UserRecord
		created time.Time
	}

	var matched []dated
	for _, u := range users {
		if !inLocation(u, location) {
			continue
		}
		created, err := model.ParseTimestamp(u.CreatedAt)
		if err != nil {
			log := logger()
			log.Warn().Err(err).Str("login", u.Login).Msg("Skipping user with invalid created_at")
			continue
		}
		matched = append(matched, dated{u, created})
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].created.Before(matched[j].created)
	})

	out := make([]model.UserRecord, len(matched))
	for i, d := range matched {
		out[i] = d.user
	}
	return logins(out, n)
}

func logins(users []model.UserRecord, n int) []string {
	if n >= 0 && len(users) > n {
		users = users[:n]
	}
	out := make([]string, len(users))
	for i, u := range users {
		out[i] = u.Login
	}
	return out
}

// LanguageCount is the number of repositories using one language.
type LanguageCount struct {
	Language string
	Count    int
}

// PopularLanguages counts the languages of repositories owned by users who
// joined after joinedAfter, most used first. Ties keep first-seen order.
// Repositories without a language are not counted.
func PopularLanguages(users []model.UserRecord, repos []model.RepositoryRecord, joinedAfter time.Time) []LanguageCount {
	recent := make(map[string]bool)
	for _, u := range users {
		created, err := model.ParseTimestamp(u.CreatedAt)
		if err != nil {
			log := logger()
			log.Warn().Err(err).Str("login", u.Login).Msg("Skipping user with invalid created_at")
			continue
		}
		if created.After(joinedAfter) {
			recent[u.Login] = true
		}
	}

	index := make(map[string]int)
	var counts []LanguageCount
	for _, r := range repos {
		if !recent[r.Login] || r.Language == "" {
			continue
		}
		i, ok := index[r.Language]
		if !ok {
			i = len(counts)
			index[r.Language] = i
			counts = append(counts, LanguageCount{Language: r.Language})
		}
		counts[i].Count++
	}

	sort.SliceStable(counts, func(i, j int) bool {
		return counts[i].Count > counts[j].Count
	})
	return counts
}

// SecondMostPopularLanguage returns the second entry of PopularLanguages.
func SecondMostPopularLanguage(users []model.UserRecord, repos []model.RepositoryRecord, joinedAfter time.Time) (LanguageCount, error) {
	counts := PopularLanguages(users, repos, joinedAfter)
	if len(counts) < 2 {
		return LanguageCount{}, fmt.Errorf("%w: %d languages", ErrNotEnoughData, len(counts))
	}
	return counts[1], nil
}

// FollowersReposCorrelation is the Pearson correlation of followers and
// public repositories.
func FollowersReposCorrelation(users []model.UserRecord) (float64, error) {
	followers, repos := userSeries(users, func(u model.UserRecord) float64 {
		return float64(u.PublicRepos)
	})
	return correlation(followers, repos)
}

// ProjectsWikiCorrelation is the Pearson correlation of has_projects and
// has_wiki, each as 0 or 1.
func ProjectsWikiCorrelation(repos []model.RepositoryRecord) (float64, error) {
	projects := make(stats.Float64Data, len(repos))
	wiki := make(stats.Float64Data, len(repos))
	for i, r := range repos {
		projects[i] = boolValue(r.HasProjects)
		wiki[i] = boolValue(r.HasWiki)
	}
	return correlation(projects, wiki)
}

// FollowersPerRepoSlope is the least-squares slope of followers regressed on
// public repositories.
func FollowersPerRepoSlope(users []model.UserRecord) (float64, error) {
	followers, repos := userSeries(users, func(u model.UserRecord) float64 {
		return float64(u.PublicRepos)
	})
	return slope(repos, followers)
}

// BioWordCountSlope is the least-squares slope of followers regressed on
// the number of words in the bio, over users with a bio.
func BioWordCountSlope(users []model.UserRecord) (float64, error) {
	var withBio []model.UserRecord
	for _, u := range users {
		if strings.TrimSpace(u.Bio) != "" {
			withBio = append(withBio, u)
		}
	}
	followers, words := userSeries(withBio, func(u model.UserRecord) float64 {
		return float64(len(strings.Fields(u.Bio)))
	})
	return slope(words, followers)
}

func userSeries(users []model.UserRecord, x func(model.UserRecord) float64) (followers, xs stats.Float64Data) {
	followers = make(stats.Float64Data, len(users))
	xs = make(stats.Float64Data, len(users))
	for i, u := range users {
		followers[i] = float64(u.Followers)
		xs[i] = x(u)
	}
	return followers, xs
}

func correlation(a, b stats.Float64Data) (float64, error) {
	if len(a) < 2 {
		return 0, fmt.Errorf("%w: %d values", ErrNotEnoughData, len(a))
	}
	return stats.Pearson(a, b)
}

// slope fits y = a + b*x and returns b.
func slope(x, y stats.Float64Data) (float64, error) {
	if len(x) < 2 {
		return 0, fmt.Errorf("%w: %d values", ErrNotEnoughData, len(x))
	}
	cov, err := stats.Covariance(x, y)
	if err != nil {
		return 0, err
	}
	variance, err := stats.SampleVariance(x)
	if err != nil {
		return 0, err
	}
	if variance == 0 {
		return 0, fmt.Errorf("%w: x has no variance", ErrNotEnoughData)
	}
	return cov / variance, nil
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
