// Package analysis answers questions about harvested users and
// repositories from the CSV tables written by the export package.
package analysis

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/Sternrassler/gh-harvester/pkg/logging"
	"github.com/Sternrassler/gh-harvester/pkg/model"
	"github.com/rs/zerolog"
)

func logger() zerolog.Logger { return logging.NewLogger("analysis") }

// header maps column names to positions.
type header map[string]int

func newHeader(row []string, required []string) (header, error) {
	h := make(header, len(row))
	for i, name := range row {
		h[name] = i
	}
	for _, name := range required {
		if _, ok := h[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}
	return h, nil
}

func (h header) str(row []string, name string) string {
	i, ok := h[name]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}

func (h header) intField(row []string, name string) (int, error) {
	v := h.str(row, name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("column %s: %w", name, err)
	}
	return n, nil
}

// boolField accepts true, True, TRUE, 1 and their negations.
func (h header) boolField(row []string, name string) (bool, error) {
	v := h.str(row, name)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("column %s: %w", name, err)
	}
	return b, nil
}

// readRows calls fn for every data row; rows fn rejects are logged and skipped.
func readRows(r io.Reader, required []string, fn func(h header, row []string) error) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	first, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	h, err := newHeader(first, required)
	if err != nil {
		return err
	}

	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read line %d: %w", line, err)
		}
		if err := fn(h, row); err != nil {
			log := logger()
			log.Warn().Err(err).Int("line", line).Msg("Skipping malformed row")
		}
	}
}

// ReadUsers parses a users table by column name.
func ReadUsers(r io.Reader) ([]model.UserRecord, error) {
	var users []model.UserRecord
	err := readRows(r, []string{"login"}, func(h header, row []string) error {
		u := model.UserRecord{
			Login:     h.str(row, "login"),
			Name:      h.str(row, "name"),
			Company:   h.str(row, "company"),
			Location:  h.str(row, "location"),
			Email:     h.str(row, "email"),
			Bio:       h.str(row, "bio"),
			CreatedAt: h.str(row, "created_at"),
		}
		var err error
		if u.Hireable, err = h.boolField(row, "hireable"); err != nil {
			return err
		}
		if u.PublicRepos, err = h.intField(row, "public_repos"); err != nil {
			return err
		}
		if u.Followers, err = h.intField(row, "followers"); err != nil {
			return err
		}
		if u.Following, err = h.intField(row, "following"); err != nil {
			return err
		}
		users = append(users, u)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read users: %w", err)
	}
	return users, nil
}

// ReadRepositories parses a repositories table by column name.
func ReadRepositories(r io.Reader) ([]model.RepositoryRecord, error) {
	var repos []model.RepositoryRecord
	err := readRows(r, []string{"login"}, func(h header, row []string) error {
		rec := model.RepositoryRecord{
			Login:       h.str(row, "login"),
			FullName:    h.str(row, "full_name"),
			CreatedAt:   h.str(row, "created_at"),
			Language:    h.str(row, "language"),
			LicenseName: h.str(row, "license_name"),
		}
		var err error
		if rec.StargazersCount, err = h.intField(row, "stargazers_count"); err != nil {
			return err
		}
		if rec.WatchersCount, err = h.intField(row, "watchers_count"); err != nil {
			return err
		}
		if rec.HasProjects, err = h.boolField(row, "has_projects"); err != nil {
			return err
		}
		if rec.HasWiki, err = h.boolField(row, "has_wiki"); err != nil {
			return err
		}
		repos = append(repos, rec)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read repositories: %w", err)
	}
	return repos, nil
}

// ReadUsersFile opens path and reads it with ReadUsers.
func ReadUsersFile(path string) ([]model.UserRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadUsers(f)
}

// ReadRepositoriesFile opens path and reads it with ReadRepositories.
func ReadRepositoriesFile(path string) ([]model.RepositoryRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadRepositories(f)
}
