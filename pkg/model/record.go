// Package model defines the normalized records persisted by the harvester.
package model

import (
	"strconv"
	"time"
)

// TimestampLayout is the created_at format written to every output.
const TimestampLayout = "2006-01-02T15:04:05Z"

// UserColumns is the column order of the users table.
var UserColumns = []string{
	"login",
	"name",
	"company",
	"location",
	"email",
	"hireable",
	"bio",
	"public_repos",
	"followers",
	"following",
	"created_at",
}

// RepositoryColumns is the column order of the repositories table.
var RepositoryColumns = []string{
	"login",
	"full_name",
	"created_at",
	"stargazers_count",
	"watchers_count",
	"language",
	"has_projects",
	"has_wiki",
	"license_name",
}

// UserRecord is a normalized GitHub user profile.
type UserRecord struct {
	Login       string `json:"login"`
	Name        string `json:"name"`
	Company     string `json:"company"`
	Location    string `json:"location"`
	Email       string `json:"email"`
	Hireable    bool   `json:"hireable"`
	Bio         string `json:"bio"`
	PublicRepos int    `json:"public_repos"`
	Followers   int    `json:"followers"`
	Following   int    `json:"following"`
	CreatedAt   string `json:"created_at"`
}

// Row returns the record in UserColumns order.
func (u UserRecord) Row() []string {
	return []string{
		u.Login,
		u.Name,
		u.Company,
		u.Location,
		u.Email,
		strconv.FormatBool(u.Hireable),
		u.Bio,
		strconv.Itoa(u.PublicRepos),
		strconv.Itoa(u.Followers),
		strconv.Itoa(u.Following),
		u.CreatedAt,
	}
}

// RepositoryRecord is a normalized repository owned by UserRecord.Login.
type RepositoryRecord struct {
	Login           string `json:"login"`
	FullName        string `json:"full_name"`
	CreatedAt       string `json:"created_at"`
	StargazersCount int    `json:"stargazers_count"`
	WatchersCount   int    `json:"watchers_count"`
	Language        string `json:"language"`
	HasProjects     bool   `json:"has_projects"`
	HasWiki         bool   `json:"has_wiki"`
	LicenseName     string `json:"license_name"`
}

// Row returns the record in RepositoryColumns order.
func (r RepositoryRecord) Row() []string {
	return []string{
		r.Login,
		r.FullName,
		r.CreatedAt,
		strconv.Itoa(r.StargazersCount),
		strconv.Itoa(r.WatchersCount),
		r.Language,
		strconv.FormatBool(r.HasProjects),
		strconv.FormatBool(r.HasWiki),
		r.LicenseName,
	}
}

// FormatTimestamp renders t in UTC with TimestampLayout; the zero time is "".
func FormatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp parses a created_at value written by FormatTimestamp.
func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(TimestampLayout, s)
}
