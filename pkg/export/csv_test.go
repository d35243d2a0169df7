package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/Sternrassler/gh-harvester/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testUsers = []model.UserRecord{
		{Login: "alice", Name: "Alice", Company: "ACME", Location: "Austin, TX", Hireable: true,
			Bio: "Builds, things", PublicRepos: 3, Followers: 250, Following: 1, CreatedAt: "2012-05-01T10:00:00Z"},
		{Login: "bob", Location: "Austin", PublicRepos: 1, Followers: 120, CreatedAt: "2019-07-04T00:00:00Z"},
	}
	testRepos = []model.RepositoryRecord{
		{Login: "alice", FullName: "alice/one", CreatedAt: "2020-01-01T00:00:00Z", StargazersCount: 5,
			WatchersCount: 5, Language: "Go", HasProjects: true, HasWiki: true, LicenseName: "mit"},
		{Login: "alice", FullName: "alice/two", CreatedAt: "2019-01-01T00:00:00Z"},
		{Login: "bob", FullName: "bob/solo", CreatedAt: "2021-01-01T00:00:00Z", Language: "Python", HasWiki: true},
	}
)

func TestWriteUsersCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteUsersCSV(&buf, testUsers))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, model.UserColumns, rows[0])
	assert.Equal(t, "Builds, things", rows[1][6], "quoted field survives")
	assert.Equal(t, "true", rows[1][5])
	assert.Equal(t, "false", rows[2][5])
}

func TestWriteRepositoriesCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteRepositoriesCSV(&buf, testRepos))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, model.RepositoryColumns, rows[0])
	assert.Equal(t, []string{"alice", "alice/two", "2019-01-01T00:00:00Z", "0", "0", "", "false", "false", ""}, rows[2])
}

func TestWriteCSV_EmptyWritesHeaderOnly(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteUsersCSV(&buf, nil))
	assert.Equal(t, "login,name,company,location,email,hireable,bio,public_repos,followers,following,created_at\n", buf.String())
}

func TestCSVSink_WritesFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	sink, err := NewCSVSink(dir, "", "")
	require.NoError(t, err)
	defer sink.Close()

	ctx := context.Background()
	require.NoError(t, sink.WriteUsers(ctx, testUsers))
	require.NoError(t, sink.WriteRepositories(ctx, testRepos))

	assert.Equal(t, filepath.Join(dir, DefaultUsersFile), sink.UsersPath())
	assert.Equal(t, filepath.Join(dir, DefaultRepositoriesFile), sink.RepositoriesPath())

	data, err := os.ReadFile(sink.RepositoriesPath())
	require.NoError(t, err)
	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, len(testRepos)+1)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no temporary files left behind")
}

func TestCSVSink_CustomNamesOverwrite(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewCSVSink(dir, "u.csv", "r.csv")
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, sink.WriteUsers(ctx, testUsers))
	require.NoError(t, sink.WriteUsers(ctx, testUsers[:1]))

	data, err := os.ReadFile(filepath.Join(dir, "u.csv"))
	require.NoError(t, err)
	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

type recordingSink struct {
	users  int
	repos  int
	closed bool
	err    error
}

func (r *recordingSink) WriteUsers(_ context.Context, users []model.UserRecord) error {
	r.users += len(users)
	return r.err
}

func (r *recordingSink) WriteRepositories(_ context.Context, repos []model.RepositoryRecord) error {
	r.repos += len(repos)
	return r.err
}

func (r *recordingSink) Close() error {
	r.closed = true
	return r.err
}

func TestMultiSink(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	m := MultiSink{a, b}

	ctx := context.Background()
	require.NoError(t, m.WriteUsers(ctx, testUsers))
	require.NoError(t, m.WriteRepositories(ctx, testRepos))
	require.NoError(t, m.Close())

	for _, s := range []*recordingSink{a, b} {
		assert.Equal(t, 2, s.users)
		assert.Equal(t, 3, s.repos)
		assert.True(t, s.closed)
	}
}

func TestMultiSink_StopsOnError(t *testing.T) {
	failing := &recordingSink{err: assert.AnError}
	after := &recordingSink{}
	m := MultiSink{failing, after}

	err := m.WriteUsers(context.Background(), testUsers)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Zero(t, after.users)

	assert.ErrorIs(t, m.Close(), assert.AnError)
	assert.True(t, after.closed, "Close reaches every sink")
}
