package scraper

import (
	"strings"
	"unicode"

	"github.com/Sternrassler/gh-harvester/pkg/model"
	"github.com/google/go-github/v53/github"
)

// NormalizeCompany drops leading "@" handles and surrounding whitespace and
// upper-cases the rest. Applying it twice yields the same value.
func NormalizeCompany(company string) string {
	c := strings.TrimLeftFunc(company, func(r rune) bool {
		return r == '@' || unicode.IsSpace(r)
	})
	return strings.TrimSpace(strings.ToUpper(c))
}

// LicenseName returns the license key of a repository, or "".
func LicenseName(repo *github.Repository) string {
	return repo.GetLicense().GetKey()
}

// NormalizeUser maps a full user profile to a record.
func NormalizeUser(u *github.User) model.UserRecord {
	return model.UserRecord{
		Login:       u.GetLogin(),
		Name:        u.GetName(),
		Company:     NormalizeCompany(u.GetCompany()),
		Location:    u.GetLocation(),
		Email:       u.GetEmail(),
		Hireable:    u.GetHireable(),
		Bio:         u.GetBio(),
		PublicRepos: u.GetPublicRepos(),
		Followers:   u.GetFollowers(),
		Following:   u.GetFollowing(),
		CreatedAt:   model.FormatTimestamp(u.GetCreatedAt().Time),
	}
}

// NormalizeRepository maps a repository owned by login to a record.
func NormalizeRepository(login string, r *github.Repository) model.RepositoryRecord {
	return model.RepositoryRecord{
		Login:           login,
		FullName:        r.GetFullName(),
		CreatedAt:       model.FormatTimestamp(r.GetCreatedAt().Time),
		StargazersCount: r.GetStargazersCount(),
		WatchersCount:   r.GetWatchersCount(),
		Language:        r.GetLanguage(),
		HasProjects:     r.GetHasProjects(),
		HasWiki:         r.GetHasWiki(),
		LicenseName:     LicenseName(r),
	}
}
