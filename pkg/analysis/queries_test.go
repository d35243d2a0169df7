package analysis

import (
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/gh-harvester/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixtures(t *testing.T) ([]model.UserRecord, []model.RepositoryRecord) {
	t.Helper()
	users, err := ReadUsers(strings.NewReader(usersCSV))
	require.NoError(t, err)
	repos, err := ReadRepositories(strings.NewReader(reposCSV))
	require.NoError(t, err)
	return users, repos
}

func TestTopByFollowers(t *testing.T) {
	users, _ := fixtures(t)

	assert.Equal(t, []string{"alice", "dave", "bob"}, TopByFollowers(users, "Austin", 5))
	assert.Equal(t, []string{"alice"}, TopByFollowers(users, " austin ", 1))
	assert.Empty(t, TopByFollowers(users, "Berlin", 5))
}

func TestTopByFollowers_TiesKeepInputOrder(t *testing.T) {
	users := []model.UserRecord{
		{Login: "first", Location: "Austin", Followers: 10},
		{Login: "second", Location: "Austin", Followers: 10},
		{Login: "top", Location: "Austin", Followers: 20},
	}
	assert.Equal(t, []string{"top", "first", "second"}, TopByFollowers(users, "austin", 5))
}

func TestEarliestCreated(t *testing.T) {
	users, _ := fixtures(t)
	users = append(users, model.UserRecord{Login: "undated", Location: "Austin", CreatedAt: "yesterday"})

	assert.Equal(t, []string{"alice", "bob", "dave"}, EarliestCreated(users, "Austin", 5))
	assert.Equal(t, []string{"alice", "bob"}, EarliestCreated(users, "Austin", 2))
}

func TestEarliestCreated_LogsInvalidDate(t *testing.T) {
	logs := captureLogs(t)
	users := []model.UserRecord{
		{Login: "undated", Location: "Austin", CreatedAt: "yesterday"},
		{Login: "dated", Location: "Austin", CreatedAt: "2015-01-01T00:00:00Z"},
	}

	assert.Equal(t, []string{"dated"}, EarliestCreated(users, "Austin", 5))
	assert.Contains(t, logs.String(), `"login":"undated"`)
	assert.Contains(t, logs.String(), "Skipping user with invalid created_at")
}

func TestPopularLanguages(t *testing.T) {
	users, repos := fixtures(t)
	since := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	counts := PopularLanguages(users, repos, since)
	assert.Equal(t, []LanguageCount{{"Go", 2}, {"Python", 1}}, counts, "alice joined before 2020; empty languages are ignored")

	second, err := SecondMostPopularLanguage(users, repos, since)
	require.NoError(t, err)
	assert.Equal(t, LanguageCount{"Python", 1}, second)
}

func TestSecondMostPopularLanguage_NotEnough(t *testing.T) {
	users, repos := fixtures(t)
	_, err := SecondMostPopularLanguage(users, repos, time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, ErrNotEnoughData)
}

func TestFollowersReposCorrelation(t *testing.T) {
	users := []model.UserRecord{
		{Followers: 10, PublicRepos: 1},
		{Followers: 20, PublicRepos: 2},
		{Followers: 30, PublicRepos: 3},
	}
	r, err := FollowersReposCorrelation(users)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, r, 1e-9)

	users[2].PublicRepos = 0
	r, err = FollowersReposCorrelation(users)
	require.NoError(t, err)
	assert.InDelta(t, -0.5, r, 1e-9)

	_, err = FollowersReposCorrelation(users[:1])
	assert.ErrorIs(t, err, ErrNotEnoughData)
}

func TestProjectsWikiCorrelation(t *testing.T) {
	_, repos := fixtures(t)
	// projects: 1 1 0 1 1, wiki: 1 0 0 1 1
	r, err := ProjectsWikiCorrelation(repos)
	require.NoError(t, err)
	assert.InDelta(t, 0.612372, r, 1e-6)
}

func TestFollowersPerRepoSlope(t *testing.T) {
	users := []model.UserRecord{
		{Followers: 5, PublicRepos: 0},
		{Followers: 7, PublicRepos: 1},
		{Followers: 9, PublicRepos: 2},
		{Followers: 11, PublicRepos: 3},
	}
	slope, err := FollowersPerRepoSlope(users)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, slope, 1e-9)

	_, err = FollowersPerRepoSlope([]model.UserRecord{{PublicRepos: 4}, {PublicRepos: 4}})
	assert.ErrorIs(t, err, ErrNotEnoughData)
}

func TestBioWordCountSlope(t *testing.T) {
	users := []model.UserRecord{
		{Bio: "one", Followers: 100},
		{Bio: "one two", Followers: 110},
		{Bio: "  one   two three ", Followers: 120},
		{Bio: "", Followers: 100000},
		{Bio: "   ", Followers: 100000},
	}
	slope, err := BioWordCountSlope(users)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, slope, 1e-9, "users without a bio are ignored")
}
