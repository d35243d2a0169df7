// Package testutil provides testing utilities for the GitHub harvester.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock GitHub endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockGitHub is a configurable mock GitHub REST API server for testing.
type MockGitHub struct {
	server         *httptest.Server
	mu             sync.RWMutex
	handlers       map[string]http.HandlerFunc
	prefixHandlers map[string]http.HandlerFunc
	pathCounts     map[string]int

	// Tracking
	RequestCount      int
	ConditionalCount  int
	LastRequestHeader http.Header
}

// NewMockGitHub creates a new mock GitHub server.
func NewMockGitHub() *MockGitHub {
	mock := &MockGitHub{
		handlers:       make(map[string]http.HandlerFunc),
		prefixHandlers: make(map[string]http.HandlerFunc),
		pathCounts:     make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.pathCounts[r.URL.Path]++
		mock.LastRequestHeader = r.Header.Clone()

		if r.Header.Get("If-None-Match") != "" || r.Header.Get("If-Modified-Since") != "" {
			mock.ConditionalCount++
		}
		mock.mu.Unlock()

		if handler := mock.lookup(r.URL.Path); handler != nil {
			handler(w, r)
			return
		}

		mock.defaultHandler(w, r)
	}))

	return mock
}

func (m *MockGitHub) lookup(path string) http.HandlerFunc {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if handler, ok := m.handlers[path]; ok {
		return handler
	}
	var best string
	for prefix := range m.prefixHandlers {
		if strings.HasPrefix(path, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best != "" {
		return m.prefixHandlers[best]
	}
	return nil
}

// URL returns the mock server URL.
func (m *MockGitHub) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockGitHub) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockGitHub) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.ConditionalCount = 0
	m.LastRequestHeader = nil
	m.pathCounts = make(map[string]int)
}

// SetHandler sets a custom handler for a specific path.
func (m *MockGitHub) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetPrefixHandler sets a handler for every path under prefix. Exact handlers win.
func (m *MockGitHub) SetPrefixHandler(prefix string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefixHandlers[prefix] = handler
}

// SetResponse configures a simple response for a path.
func (m *MockGitHub) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		writeResponse(w, resp)
	})
}

// SetSequence serves the responses in order; the last one repeats.
func (m *MockGitHub) SetSequence(path string, responses ...MockResponse) {
	var (
		mu   sync.Mutex
		next int
	)
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		resp := responses[next]
		if next < len(responses)-1 {
			next++
		}
		mu.Unlock()
		writeResponse(w, resp)
	})
}

func writeResponse(w http.ResponseWriter, resp MockResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}

	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}

	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockGitHub) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetConditionalCount returns the number of conditional requests.
func (m *MockGitHub) GetConditionalCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ConditionalCount
}

// GetPathCount returns the number of requests made to path.
func (m *MockGitHub) GetPathCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pathCounts[path]
}

// GetLastRequestHeader returns the headers of the most recent request.
func (m *MockGitHub) GetLastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastRequestHeader.Clone()
}

// defaultHandler answers like GitHub does for unknown resources.
func (m *MockGitHub) defaultHandler(w http.ResponseWriter, r *http.Request) {
	setRateLimitHeaders(w, r.URL.Path)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	w.Write([]byte(`{"message":"Not Found","documentation_url":"https://docs.github.com/rest"}`))
}

func setRateLimitHeaders(w http.ResponseWriter, path string) {
	resource, limit := "core", "5000"
	if strings.HasPrefix(path, "/search/") {
		resource, limit = "search", "30"
	}
	w.Header().Set("X-RateLimit-Limit", limit)
	w.Header().Set("X-RateLimit-Remaining", "29")
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(time.Hour).Unix(), 10))
	w.Header().Set("X-RateLimit-Resource", resource)
}

// NewJSONResponse creates a standard 200 OK response with rate limit headers.
func NewJSONResponse(data string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       data,
		Headers: map[string]string{
			"X-RateLimit-Limit":     "5000",
			"X-RateLimit-Remaining": "4999",
			"X-RateLimit-Reset":     strconv.FormatInt(time.Now().Add(time.Hour).Unix(), 10),
			"ETag":                  `"test-etag-123"`,
			"Content-Type":          "application/json; charset=utf-8",
		},
	}
}

// NewRateLimitResponse creates a rate limit refusal (403 or 429) resetting at reset.
func NewRateLimitResponse(status int, reset int64) MockResponse {
	headers := map[string]string{
		"X-RateLimit-Limit":     "5000",
		"X-RateLimit-Remaining": "0",
		"Content-Type":          "application/json; charset=utf-8",
	}
	if reset > 0 {
		headers["X-RateLimit-Reset"] = strconv.FormatInt(reset, 10)
	}
	return MockResponse{
		StatusCode: status,
		Body:       `{"message":"API rate limit exceeded"}`,
		Headers:    headers,
	}
}

// NewErrorResponse creates a non-retryable error response.
func NewErrorResponse(status int, body string) MockResponse {
	return MockResponse{
		StatusCode: status,
		Body:       body,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewConditionalHandler creates a handler that responds with 304 for conditional requests.
func NewConditionalHandler(etag string, data string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		setRateLimitHeaders(w, r.URL.Path)
		w.Header().Set("Content-Type", "application/json; charset=utf-8")

		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}

		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(data))
	}
}

// FixtureUser describes a user served by ServeUsers.
type FixtureUser struct {
	Login     string
	Name      string
	Company   string
	Location  string
	Followers int
	Bio       string
	Repos     int
	CreatedAt time.Time
}

// ServeUsers installs search, profile and repository handlers backed by users.
// Search returns the users in order; every user owns Repos repositories named
// <login>-repo-<n>, newest first.
func (m *MockGitHub) ServeUsers(users []FixtureUser) {
	byLogin := make(map[string]FixtureUser, len(users))
	for _, u := range users {
		byLogin[u.Login] = u
	}

	m.SetHandler("/search/users", func(w http.ResponseWriter, r *http.Request) {
		page, perPage := pageParams(r)
		start, end := pageBounds(len(users), page, perPage)

		items := make([]map[string]any, 0, end-start)
		for _, u := range users[start:end] {
			items = append(items, map[string]any{
				"login": u.Login,
				"type":  "User",
				"url":   m.URL() + "/users/" + u.Login,
			})
		}
		writeJSON(w, r, map[string]any{
			"total_count":        len(users),
			"incomplete_results": false,
			"items":              items,
		})
	})

	m.SetPrefixHandler("/users/", func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/users/"), "/"), "/")
		u, ok := byLogin[parts[0]]
		if !ok {
			m.defaultHandler(w, r)
			return
		}

		switch {
		case len(parts) == 1:
			writeJSON(w, r, fixtureProfile(u))
		case len(parts) == 2 && parts[1] == "repos":
			page, perPage := pageParams(r)
			start, end := pageBounds(u.Repos, page, perPage)
			repos := make([]map[string]any, 0, end-start)
			for i := start; i < end; i++ {
				repos = append(repos, fixtureRepository(u, i))
			}
			writeJSON(w, r, repos)
		default:
			m.defaultHandler(w, r)
		}
	})
}

func fixtureProfile(u FixtureUser) map[string]any {
	created := u.CreatedAt
	if created.IsZero() {
		created = time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	profile := map[string]any{
		"login":        u.Login,
		"name":         u.Name,
		"location":     u.Location,
		"email":        nil,
		"hireable":     nil,
		"bio":          u.Bio,
		"public_repos": u.Repos,
		"followers":    u.Followers,
		"following":    0,
		"created_at":   created.UTC().Format(time.RFC3339),
	}
	if u.Company != "" {
		profile["company"] = u.Company
	} else {
		profile["company"] = nil
	}
	return profile
}

func fixtureRepository(u FixtureUser, i int) map[string]any {
	repo := map[string]any{
		"name":             fmt.Sprintf("%s-repo-%d", u.Login, i),
		"full_name":        fmt.Sprintf("%s/%s-repo-%d", u.Login, u.Login, i),
		"created_at":       time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC).Add(-time.Duration(i) * time.Hour).Format(time.RFC3339),
		"stargazers_count": i,
		"watchers_count":   i,
		"has_projects":     i%2 == 0,
		"has_wiki":         i%3 == 0,
	}
	if i%2 == 0 {
		repo["language"] = "Go"
		repo["license"] = map[string]any{"key": "mit", "name": "MIT License"}
	} else {
		repo["language"] = nil
		repo["license"] = nil
	}
	return repo
}

func pageParams(r *http.Request) (page, perPage int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	perPage, _ = strconv.Atoi(r.URL.Query().Get("per_page"))
	if perPage < 1 {
		perPage = 30
	}
	return page, perPage
}

func pageBounds(total, page, perPage int) (start, end int) {
	start = (page - 1) * perPage
	if start > total {
		start = total
	}
	end = start + perPage
	if end > total {
		end = total
	}
	return start, end
}

func writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	setRateLimitHeaders(w, r.URL.Path)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(v)
}
