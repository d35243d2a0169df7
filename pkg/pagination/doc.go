// Package pagination walks numbered result pages of the GitHub REST API.
//
// GitHub list and search endpoints take page and per_page query parameters
// and do not announce the total page count up front. A Paginator therefore
// fetches pages strictly in order, normalizes every item of a page before
// asking for the next one, and stops when a termination rule holds:
//
//   - StopOnEmpty: an empty page ends the walk (search results).
//   - StopOnShort: an empty page or a page shorter than PerPage ends the walk
//     (user repository listings).
//   - Max: once at least Max records were collected the walk ends and the
//     result is truncated to exactly Max.
//
// Example usage:
//
//	cfg := pagination.DefaultConfig()
//	cfg.Stop = pagination.StopOnShort
//	cfg.Max = 500
//	p := pagination.New(fetchRepos, normalizeRepo, cfg)
//	records, err := p.Collect(ctx)
//
// A Paginator moves through FETCHING_PAGE, NORMALIZING and ADVANCING and
// ends in DONE; it never goes back to an earlier page. Observe exposes the
// transitions for tracing and tests.
package pagination
