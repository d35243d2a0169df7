package scraper

import (
	"testing"
	"time"

	"github.com/google/go-github/v53/github"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeCompany(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"   ", ""},
		{"github", "GITHUB"},
		{"  @github ", "GITHUB"},
		{"@@github", "GITHUB"},
		{"@ @acme", "ACME"},
		{"@ Acme", "ACME"},
		{"\t@Acme @ Labs\n", "ACME @ LABS"},
		{"Acme Corp.", "ACME CORP."},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := NormalizeCompany(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, NormalizeCompany(got), "normalizing twice changes nothing")
		})
	}
}

func TestLicenseName(t *testing.T) {
	assert.Equal(t, "", LicenseName(&github.Repository{}))
	assert.Equal(t, "mit", LicenseName(&github.Repository{License: &github.License{Key: github.String("mit")}}))
	assert.Equal(t, "", LicenseName(&github.Repository{License: &github.License{Name: github.String("Other")}}))
}

func TestNormalizeUser_NullFields(t *testing.T) {
	u := &github.User{
		Login:     github.String("octocat"),
		Followers: github.Int(150),
		CreatedAt: &github.Timestamp{Time: time.Date(2011, 1, 25, 18, 44, 36, 0, time.UTC)},
	}

	rec := NormalizeUser(u)
	assert.Equal(t, "octocat", rec.Login)
	assert.Equal(t, "", rec.Name)
	assert.Equal(t, "", rec.Company)
	assert.Equal(t, "", rec.Email)
	assert.False(t, rec.Hireable)
	assert.Equal(t, 150, rec.Followers)
	assert.Equal(t, "2011-01-25T18:44:36Z", rec.CreatedAt)
}

func TestNormalizeUser_Company(t *testing.T) {
	rec := NormalizeUser(&github.User{Login: github.String("a"), Company: github.String(" @acme ")})
	assert.Equal(t, "ACME", rec.Company)
}

func TestNormalizeRepository(t *testing.T) {
	r := &github.Repository{
		FullName:        github.String("octocat/hello"),
		CreatedAt:       &github.Timestamp{Time: time.Date(2020, 2, 3, 4, 5, 6, 0, time.UTC)},
		StargazersCount: github.Int(12),
		WatchersCount:   github.Int(12),
		HasProjects:     github.Bool(true),
		License:         &github.License{Key: github.String("apache-2.0")},
	}

	rec := NormalizeRepository("octocat", r)
	assert.Equal(t, "octocat", rec.Login)
	assert.Equal(t, "octocat/hello", rec.FullName)
	assert.Equal(t, "2020-02-03T04:05:06Z", rec.CreatedAt)
	assert.Equal(t, 12, rec.StargazersCount)
	assert.Equal(t, "", rec.Language)
	assert.True(t, rec.HasProjects)
	assert.False(t, rec.HasWiki)
	assert.Equal(t, "apache-2.0", rec.LicenseName)
}
